package config

import (
	"chordkv/internal/logger"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

type TelemetryConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

type FileLoggerConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"maxSize"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAge     int    `yaml:"maxAge"`
	Compress   bool   `yaml:"compress"`
}

type LoggerConfig struct {
	Active   bool             `yaml:"active"`
	Level    string           `yaml:"level"`
	Encoding string           `yaml:"encoding"`
	Mode     string           `yaml:"mode"`
	File     FileLoggerConfig `yaml:"file"`
}

// FingerConfig controls the finger table: how many entries it has and
// how often the fix-fingers maintenance loop refreshes a random entry.
type FingerConfig struct {
	Count       int           `yaml:"count"`
	FixInterval time.Duration `yaml:"fixInterval"`
}

type FaultToleranceConfig struct {
	SuccessorListSize     int           `yaml:"successorListSize"`
	StabilizationInterval time.Duration `yaml:"stabilizationInterval"`
	CheckPredecessorInterval time.Duration `yaml:"checkPredecessorInterval"`
	FailureTimeout        time.Duration `yaml:"failureTimeout"`
	MaxMissedHeartbeats   int           `yaml:"maxMissedHeartbeats"`
}

type CoreDNSConfig struct {
	EtcdEndpoints []string `yaml:"etcdEndpoints"`
	BasePath      string   `yaml:"basePath"`
	Domain        string   `yaml:"domain"`
}

type Route53Config struct {
	HostedZoneID string `yaml:"hostedZoneId"`
	DomainSuffix string `yaml:"domainSuffix"`
	TTL          int64  `yaml:"ttl"`
}

type RegisterConfig struct {
	Enabled bool          `yaml:"enabled"`
	Type    string        `yaml:"type"` // "route53" | "coredns"
	TTL     int64         `yaml:"ttl"`
	Route53 Route53Config `yaml:"route53"`
	CoreDNS CoreDNSConfig `yaml:"coredns"`
}

type BootstrapConfig struct {
	Mode     string         `yaml:"mode"` // "init" | "static" | "dns"
	DNSName  string         `yaml:"dnsName"`
	SRV      bool           `yaml:"srv"`
	Service  string         `yaml:"service"` // SRV service name, e.g. "chord"
	Proto    string         `yaml:"proto"`   // SRV protocol, e.g. "tcp"
	Resolver string         `yaml:"resolver"` // DNS server to query, host or host:port
	Port     int            `yaml:"port"`
	Peers    []string       `yaml:"peers"`
	Register RegisterConfig `yaml:"register"`
}

// StorageConfig controls the replicated key-value storage engine.
type StorageConfig struct {
	ReplicationFactor     int           `yaml:"replicationFactor"`
	RequestTimeout        time.Duration `yaml:"requestTimeout"`
	TimeoutSweepInterval  time.Duration `yaml:"timeoutSweepInterval"`
	RepairInterval        time.Duration `yaml:"repairInterval"`
}

type DHTConfig struct {
	IDBits         int                  `yaml:"idBits"`
	Mode           string               `yaml:"mode"`
	Finger         FingerConfig         `yaml:"finger"`
	FaultTolerance FaultToleranceConfig `yaml:"faultTolerance"`
	Storage        StorageConfig        `yaml:"storage"`
	Bootstrap      BootstrapConfig      `yaml:"bootstrap"`
}

type NodeConfig struct {
	Id   string `yaml:"id"`
	Bind string `yaml:"bind"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type Config struct {
	Logger    LoggerConfig    `yaml:"logger"`
	DHT       DHTConfig       `yaml:"dht"`
	Node      NodeConfig      `yaml:"node"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LoadConfig loads the configuration from a YAML file at the given path.
//
// This performs only syntactic parsing. To validate the structure, call
// cfg.ValidateConfig() after loading.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyEnvOverrides layers environment variables over the loaded
// configuration. Supported overrides:
//
//	NODE_ID, NODE_BIND, NODE_HOST, NODE_PORT
//	BOOTSTRAP_MODE, BOOTSTRAP_DNSNAME, BOOTSTRAP_SRV, BOOTSTRAP_PORT, BOOTSTRAP_PEERS
//	REGISTER_ENABLED, REGISTER_TYPE, REGISTER_TTL,
//	REGISTER_ROUTE53_ZONE_ID, REGISTER_ROUTE53_SUFFIX,
//	REGISTER_COREDNS_ETCD_ENDPOINTS, REGISTER_COREDNS_BASEPATH, REGISTER_COREDNS_DOMAIN
//	FINGER_COUNT, FINGER_FIX_INTERVAL
//	REPLICATION_FACTOR, REQUEST_TIMEOUT
//	TRACE_ENABLED, TRACE_EXPORTER, TRACE_ENDPOINT
//	LOGGER_ENABLED, LOGGER_LEVEL, LOGGER_ENCODING, LOGGER_MODE, LOGGER_FILE_PATH
func (cfg *Config) ApplyEnvOverrides() {
	overrideString(&cfg.Node.Id, "NODE_ID")
	if v := os.Getenv("NODE_BIND"); v != "" {
		cfg.Node.Bind = v
	} else if cfg.Node.Bind == "" {
		cfg.Node.Bind = "0.0.0.0"
	}
	overrideString(&cfg.Node.Host, "NODE_HOST")
	overrideInt(&cfg.Node.Port, "NODE_PORT")

	overrideString(&cfg.DHT.Bootstrap.Mode, "BOOTSTRAP_MODE")
	overrideString(&cfg.DHT.Bootstrap.DNSName, "BOOTSTRAP_DNSNAME")
	overrideBool(&cfg.DHT.Bootstrap.SRV, "BOOTSTRAP_SRV")
	overrideInt(&cfg.DHT.Bootstrap.Port, "BOOTSTRAP_PORT")
	overrideStringSlice(&cfg.DHT.Bootstrap.Peers, "BOOTSTRAP_PEERS")

	overrideBool(&cfg.DHT.Bootstrap.Register.Enabled, "REGISTER_ENABLED")
	overrideString(&cfg.DHT.Bootstrap.Register.Type, "REGISTER_TYPE")
	overrideInt64(&cfg.DHT.Bootstrap.Register.TTL, "REGISTER_TTL")
	overrideString(&cfg.DHT.Bootstrap.Register.Route53.HostedZoneID, "REGISTER_ROUTE53_ZONE_ID")
	overrideString(&cfg.DHT.Bootstrap.Register.Route53.DomainSuffix, "REGISTER_ROUTE53_SUFFIX")
	overrideStringSlice(&cfg.DHT.Bootstrap.Register.CoreDNS.EtcdEndpoints, "REGISTER_COREDNS_ETCD_ENDPOINTS")
	overrideString(&cfg.DHT.Bootstrap.Register.CoreDNS.BasePath, "REGISTER_COREDNS_BASEPATH")
	overrideString(&cfg.DHT.Bootstrap.Register.CoreDNS.Domain, "REGISTER_COREDNS_DOMAIN")

	overrideInt(&cfg.DHT.Finger.Count, "FINGER_COUNT")
	overrideDuration(&cfg.DHT.Finger.FixInterval, "FINGER_FIX_INTERVAL")
	overrideInt(&cfg.DHT.Storage.ReplicationFactor, "REPLICATION_FACTOR")
	overrideDuration(&cfg.DHT.Storage.RequestTimeout, "REQUEST_TIMEOUT")

	overrideBool(&cfg.Telemetry.Tracing.Enabled, "TRACE_ENABLED")
	overrideString(&cfg.Telemetry.Tracing.Exporter, "TRACE_EXPORTER")
	overrideString(&cfg.Telemetry.Tracing.Endpoint, "TRACE_ENDPOINT")

	overrideBool(&cfg.Logger.Active, "LOGGER_ENABLED")
	overrideString(&cfg.Logger.Level, "LOGGER_LEVEL")
	overrideString(&cfg.Logger.Encoding, "LOGGER_ENCODING")
	overrideString(&cfg.Logger.Mode, "LOGGER_MODE")
	overrideString(&cfg.Logger.File.Path, "LOGGER_FILE_PATH")
}

// ValidateConfig performs structural validation of the loaded
// configuration: required fields, ranges, and cross-field constraints.
// It does not validate deployment-time reachability (e.g. whether
// bootstrap peers actually respond). All detected issues are
// accumulated and returned together.
func (cfg *Config) ValidateConfig() error {
	var errs []string

	switch cfg.Logger.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid logger.level: %s", cfg.Logger.Level))
	}
	switch cfg.Logger.Encoding {
	case "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("invalid logger.encoding: %s", cfg.Logger.Encoding))
	}
	switch cfg.Logger.Mode {
	case "stdout":
	case "file":
		if cfg.Logger.File.Path == "" {
			errs = append(errs, "logger.file.path is required when mode=file")
		}
		if cfg.Logger.File.MaxSize < 0 || cfg.Logger.File.MaxBackups < 0 || cfg.Logger.File.MaxAge < 0 {
			errs = append(errs, "logger.file.* values must be non-negative")
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid logger.mode: %s", cfg.Logger.Mode))
	}

	if cfg.DHT.IDBits <= 0 {
		errs = append(errs, "dht.idBits must be > 0")
	}
	switch cfg.DHT.Mode {
	case "public", "private":
	default:
		errs = append(errs, fmt.Sprintf("invalid dht.mode: %s", cfg.DHT.Mode))
	}
	if cfg.DHT.Finger.Count <= 0 || cfg.DHT.Finger.Count > cfg.DHT.IDBits {
		errs = append(errs, "dht.finger.count must be in (0, idBits]")
	}
	if cfg.DHT.Finger.FixInterval <= 0 {
		errs = append(errs, "dht.finger.fixInterval must be > 0")
	}
	if cfg.DHT.FaultTolerance.SuccessorListSize <= 0 {
		errs = append(errs, "dht.faultTolerance.successorListSize must be > 0")
	}
	if cfg.DHT.FaultTolerance.StabilizationInterval <= 0 {
		errs = append(errs, "dht.faultTolerance.stabilizationInterval must be > 0")
	}
	if cfg.DHT.FaultTolerance.CheckPredecessorInterval <= 0 {
		errs = append(errs, "dht.faultTolerance.checkPredecessorInterval must be > 0")
	}
	if cfg.DHT.FaultTolerance.FailureTimeout <= 0 {
		errs = append(errs, "dht.faultTolerance.failureTimeout must be > 0")
	}
	if cfg.DHT.FaultTolerance.MaxMissedHeartbeats <= 0 {
		errs = append(errs, "dht.faultTolerance.maxMissedHeartbeats must be > 0")
	}

	if cfg.DHT.Storage.ReplicationFactor <= 0 {
		errs = append(errs, "dht.storage.replicationFactor must be > 0")
	}
	if cfg.DHT.Storage.ReplicationFactor > cfg.DHT.FaultTolerance.SuccessorListSize {
		errs = append(errs, "dht.storage.replicationFactor must be <= dht.faultTolerance.successorListSize")
	}
	if cfg.DHT.Storage.RequestTimeout <= 0 {
		errs = append(errs, "dht.storage.requestTimeout must be > 0")
	}
	if cfg.DHT.Storage.TimeoutSweepInterval <= 0 {
		errs = append(errs, "dht.storage.timeoutSweepInterval must be > 0")
	}
	if cfg.DHT.Storage.RepairInterval <= 0 {
		errs = append(errs, "dht.storage.repairInterval must be > 0")
	}

	b := cfg.DHT.Bootstrap
	switch b.Mode {
	case "dns":
		if b.DNSName == "" {
			errs = append(errs, "bootstrap.dnsName is required in mode=dns")
		}
		if !b.SRV && b.Port <= 0 {
			errs = append(errs, "bootstrap.port must be > 0 when using A/AAAA (srv=false)")
		}
	case "static":
		for _, p := range b.Peers {
			if _, _, err := net.SplitHostPort(p); err != nil {
				errs = append(errs, fmt.Sprintf("invalid peer address %q in bootstrap.peers: %v", p, err))
			}
		}
	case "init":
		// first node in the ring, no extra constraints
	default:
		errs = append(errs, fmt.Sprintf("invalid bootstrap.mode: %s (must be dns, static or init)", b.Mode))
	}

	if b.Register.Enabled {
		switch b.Register.Type {
		case "route53":
			if b.Register.Route53.HostedZoneID == "" {
				errs = append(errs, "bootstrap.register.route53.hostedZoneId is required when register.type=route53")
			}
			if b.Register.Route53.DomainSuffix == "" {
				errs = append(errs, "bootstrap.register.route53.domainSuffix is required when register.type=route53")
			}
		case "coredns":
			if len(b.Register.CoreDNS.EtcdEndpoints) == 0 {
				errs = append(errs, "bootstrap.register.coredns.etcdEndpoints is required when register.type=coredns")
			}
			if b.Register.CoreDNS.Domain == "" {
				errs = append(errs, "bootstrap.register.coredns.domain is required when register.type=coredns")
			}
		default:
			errs = append(errs, fmt.Sprintf("invalid bootstrap.register.type: %s", b.Register.Type))
		}
		if b.Register.TTL <= 0 {
			errs = append(errs, "bootstrap.register.ttl must be > 0 when register.enabled=true")
		}
	}

	if cfg.Node.Port < 0 || cfg.Node.Port > 65535 {
		errs = append(errs, fmt.Sprintf("node.port must be in [0,65535], got %d", cfg.Node.Port))
	}

	if cfg.Telemetry.Tracing.Enabled {
		switch cfg.Telemetry.Tracing.Exporter {
		case "stdout", "otlp":
		default:
			errs = append(errs, fmt.Sprintf("invalid telemetry.tracing.exporter: %s", cfg.Telemetry.Tracing.Exporter))
		}
		if cfg.Telemetry.Tracing.Endpoint == "" && cfg.Telemetry.Tracing.Exporter == "otlp" {
			errs = append(errs, "telemetry.tracing.endpoint is required when exporter=otlp")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// LogConfig prints the loaded configuration at DEBUG level. Useful for
// debugging startup issues and verifying the configuration was parsed
// as expected.
func (cfg *Config) LogConfig(lgr logger.Logger) {
	lgr.Debug("Loaded configuration",
		logger.F("logger.active", cfg.Logger.Active),
		logger.F("logger.level", cfg.Logger.Level),
		logger.F("logger.encoding", cfg.Logger.Encoding),
		logger.F("logger.mode", cfg.Logger.Mode),
		logger.F("logger.file.path", cfg.Logger.File.Path),

		logger.F("dht.idBits", cfg.DHT.IDBits),
		logger.F("dht.mode", cfg.DHT.Mode),

		logger.F("dht.finger.count", cfg.DHT.Finger.Count),
		logger.F("dht.finger.fixInterval", cfg.DHT.Finger.FixInterval.String()),

		logger.F("dht.storage.replicationFactor", cfg.DHT.Storage.ReplicationFactor),
		logger.F("dht.storage.requestTimeout", cfg.DHT.Storage.RequestTimeout.String()),
		logger.F("dht.storage.timeoutSweepInterval", cfg.DHT.Storage.TimeoutSweepInterval.String()),
		logger.F("dht.storage.repairInterval", cfg.DHT.Storage.RepairInterval.String()),

		logger.F("dht.faultTolerance.successorListSize", cfg.DHT.FaultTolerance.SuccessorListSize),
		logger.F("dht.faultTolerance.stabilizationInterval", cfg.DHT.FaultTolerance.StabilizationInterval.String()),
		logger.F("dht.faultTolerance.checkPredecessorInterval", cfg.DHT.FaultTolerance.CheckPredecessorInterval.String()),
		logger.F("dht.faultTolerance.failureTimeout", cfg.DHT.FaultTolerance.FailureTimeout.String()),
		logger.F("dht.faultTolerance.maxMissedHeartbeats", cfg.DHT.FaultTolerance.MaxMissedHeartbeats),

		logger.F("dht.bootstrap.mode", cfg.DHT.Bootstrap.Mode),
		logger.F("dht.bootstrap.dnsName", cfg.DHT.Bootstrap.DNSName),
		logger.F("dht.bootstrap.srv", cfg.DHT.Bootstrap.SRV),
		logger.F("dht.bootstrap.port", cfg.DHT.Bootstrap.Port),
		logger.F("dht.bootstrap.peers", cfg.DHT.Bootstrap.Peers),

		logger.F("dht.bootstrap.register.enabled", cfg.DHT.Bootstrap.Register.Enabled),
		logger.F("dht.bootstrap.register.type", cfg.DHT.Bootstrap.Register.Type),
		logger.F("dht.bootstrap.register.ttl", cfg.DHT.Bootstrap.Register.TTL),

		logger.F("node.id", cfg.Node.Id),
		logger.F("node.bind", cfg.Node.Bind),
		logger.F("node.port", cfg.Node.Port),

		logger.F("telemetry.tracing.enabled", cfg.Telemetry.Tracing.Enabled),
		logger.F("telemetry.tracing.exporter", cfg.Telemetry.Tracing.Exporter),
		logger.F("telemetry.tracing.endpoint", cfg.Telemetry.Tracing.Endpoint),
	)
}
