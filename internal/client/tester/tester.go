package tester

import (
	"chordkv/internal/bootstrap"
	"chordkv/internal/client"
	"chordkv/internal/client/tester/writer"
	"chordkv/internal/domain"
	"chordkv/internal/logger"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

const maxLookupHops = 64

type Tester struct {
	cfg     *Config
	logger  logger.Logger
	writer  writer.Writer
	boot    bootstrap.Bootstrap
	space   domain.Space
	cp      *client.Pool
	started time.Time
}

// New creates a new Tester instance.
func New(cfg *Config, lgr logger.Logger, w writer.Writer, boot bootstrap.Bootstrap, space domain.Space) *Tester {
	return &Tester{
		cfg:    cfg,
		logger: lgr,
		writer: w,
		space:  space,
		boot:   boot,
		cp:     client.New(lgr.Named("pool"), cfg.Query.Timeout),
	}
}

// Run starts the tester for the configured duration or until the
// context is cancelled, firing a wave of parallel lookups at a
// configured rate.
func (t *Tester) Run(ctx context.Context) error {
	defer t.cp.CloseAll()

	t.logger.Info("Tester started", logger.F("duration", t.cfg.Simulation.Duration))
	t.started = time.Now()
	endTime := t.started.Add(t.cfg.Simulation.Duration)
	interval := time.Duration(float64(time.Second) / t.cfg.Query.Rate)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		now := time.Now()
		if now.After(endTime) {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := t.runQueryWave(ctx); err != nil {
				t.logger.Error("query wave failed", logger.F("err", err))
			}
		}
	}

	t.logger.Info("Tester finished")
	return nil
}

// runQueryWave executes a wave of parallel lookups against randomly
// discovered nodes.
func (t *Tester) runQueryWave(ctx context.Context) error {
	nodes, err := t.boot.Discover(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap discovery failed: %w", err)
	}
	if len(nodes) == 0 {
		t.logger.Warn("no nodes discovered")
		return nil
	}

	p := randomInt(t.cfg.Query.Parallelism.MinWorkers, t.cfg.Query.Parallelism.MaxWorkers)
	t.logger.Info("Starting query wave",
		logger.F("parallel", p),
		logger.F("nodes", len(nodes)),
	)

	var wg sync.WaitGroup
	wg.Add(p)

	for i := 0; i < p; i++ {
		go func() {
			defer wg.Done()
			select {
			case <-ctx.Done():
				return
			default:
				t.doLookup(nodes)
			}
		}()
	}

	wg.Wait()
	return nil
}

// doLookup performs a single FindSuccessor lookup starting from a
// random entry node, hopping until the owning node answers.
func (t *Tester) doLookup(nodes []string) {
	entry := nodes[rand.Intn(len(nodes))]
	keyHex, err := t.generateRandomID()
	if err != nil {
		t.logger.Warn("failed to generate random ID", logger.F("err", err))
		return
	}
	target, err := t.space.FromHexString(keyHex)
	if err != nil {
		t.logger.Warn("failed to parse generated ID", logger.F("err", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.Query.Timeout)
	defer cancel()

	start := time.Now()
	_, err = t.resolveOwner(ctx, entry, target)
	delay := time.Since(start)

	var result string
	switch {
	case err == nil:
		result = "SUCCESS"
	case errors.Is(err, context.DeadlineExceeded):
		result = "TIMEOUT"
	default:
		result = fmt.Sprintf("ERROR_%v", err)
	}

	t.logger.Info("Lookup result",
		logger.F("node", entry),
		logger.F("id", keyHex),
		logger.F("result", result),
		logger.F("delay_ms", delay.Milliseconds()),
	)

	if err := t.writer.WriteRow(entry, result, delay); err != nil {
		t.logger.Warn("failed to write CSV row", logger.F("err", err))
	}
}

// resolveOwner walks FindSuccessor hops against addr until the node
// responsible for target answers directly.
func (t *Tester) resolveOwner(ctx context.Context, addr string, target domain.ID) (*domain.Node, error) {
	for hops := 0; hops < maxLookupHops; hops++ {
		node, done, err := t.cp.FindSuccessor(ctx, target, addr)
		if err != nil {
			return nil, err
		}
		if done {
			return node, nil
		}
		addr = node.Addr
	}
	return nil, fmt.Errorf("tester: lookup did not converge after %d hops", maxLookupHops)
}

// randomInt returns a random integer between min and max (inclusive).
func randomInt(min, max int) int {
	if min >= max {
		return min
	}
	return rand.Intn(max-min+1) + min
}

// generateRandomID generates a random valid ID string using the
// configured identifier space.
func (t *Tester) generateRandomID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random input: %w", err)
	}
	randomStr := hex.EncodeToString(buf)

	id := t.space.NewIdFromString(randomStr)
	return id.ToHexString(true), nil
}
