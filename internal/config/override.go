package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// overrideString overrides a string field if the environment variable is set.
func overrideString(field *string, env string) {
	if val := os.Getenv(env); val != "" {
		*field = val
	}
}

// overrideInt overrides an int field if the environment variable is set.
func overrideInt(field *int, env string) {
	if val := os.Getenv(env); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*field = i
		}
	}
}

// overrideBool overrides a bool field if the environment variable is set.
func overrideBool(field *bool, env string) {
	if val := os.Getenv(env); val != "" {
		switch val {
		case "1", "true", "TRUE", "True":
			*field = true
		case "0", "false", "FALSE", "False":
			*field = false
		}
	}
}

// overrideStringSlice overrides a []string field if the environment variable
// is set. The variable must be a comma-separated list.
func overrideStringSlice(field *[]string, env string) {
	if val := os.Getenv(env); val != "" {
		parts := strings.Split(val, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		*field = trimmed
	}
}

// overrideDuration overrides a time.Duration field if the environment
// variable is set.
func overrideDuration(field *time.Duration, env string) {
	if val := os.Getenv(env); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*field = d
		}
	}
}

// overrideInt64 overrides an int64 field if the environment variable is set.
func overrideInt64(field *int64, env string) {
	if val := os.Getenv(env); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			*field = i
		}
	}
}
