// Package client manages outbound connections to other nodes in the
// ring and the RPC helpers built on top of them.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chordkv/internal/logger"
	"chordkv/internal/transport"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// poolEntry is a reference-counted connection: refs tracks how many
// in-flight operations are currently using conn, and lastUsed is
// updated whenever refs drops back to zero so the eviction loop can
// find connections that have been idle for failureTimeout.
type poolEntry struct {
	mu       sync.Mutex
	conn     *grpc.ClientConn
	refs     int
	lastUsed time.Time
}

// Pool is a reference-counted cache of gRPC connections to peer nodes,
// keyed by address. Connections are dialed lazily on first use and
// closed once they have been unreferenced for longer than
// failureTimeout.
type Pool struct {
	lgr    logger.Logger
	mu     sync.RWMutex
	conns  map[string]*poolEntry
	dialer []grpc.DialOption

	failureTimeout time.Duration
	stopCh         chan struct{}
}

func New(lgr logger.Logger, failureTimeout time.Duration, opts ...grpc.DialOption) *Pool {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	p := &Pool{
		lgr:            lgr,
		conns:          make(map[string]*poolEntry),
		dialer:         opts,
		failureTimeout: failureTimeout,
		stopCh:         make(chan struct{}),
	}
	go p.evictLoop()
	return p
}

// FailureTimeout returns the configured idle-connection eviction
// window, also used by callers as the default RPC deadline.
func (p *Pool) FailureTimeout() time.Duration {
	return p.failureTimeout
}

// GetFromPool returns a live channel to addr, dialing and caching a new
// connection if none exists yet. The returned channel holds a
// reference on the pool entry; callers must call Release(addr) once
// done with it.
func (p *Pool) GetFromPool(addr string) (*transport.Channel, error) {
	p.mu.RLock()
	entry, ok := p.conns[addr]
	p.mu.RUnlock()
	if !ok {
		p.mu.Lock()
		if entry, ok = p.conns[addr]; !ok {
			conn, err := grpc.NewClient(addr, p.dialer...)
			if err != nil {
				p.mu.Unlock()
				return nil, fmt.Errorf("client: dial %s: %w", addr, err)
			}
			entry = &poolEntry{conn: conn}
			p.conns[addr] = entry
			p.lgr.Debug("Pool: new connection cached", logger.F("addr", addr))
		}
		p.mu.Unlock()
	}
	p.AddRef(entry)
	return transport.NewChannel(entry.conn), nil
}

func (p *Pool) AddRef(entry *poolEntry) {
	entry.mu.Lock()
	entry.refs++
	entry.mu.Unlock()
}

// Release drops a reference previously acquired via GetFromPool.
func (p *Pool) Release(addr string) {
	p.mu.RLock()
	entry, ok := p.conns[addr]
	p.mu.RUnlock()
	if !ok {
		return
	}
	entry.mu.Lock()
	if entry.refs > 0 {
		entry.refs--
	}
	if entry.refs == 0 {
		entry.lastUsed = time.Now()
	}
	entry.mu.Unlock()
}

// DialEphemeral opens a connection that is not cached in the pool,
// intended for one-off contacts (e.g. the first hop of a join request
// to a bootstrap peer this node will likely never talk to again).
// Callers are responsible for closing the returned channel's
// underlying connection themselves.
func (p *Pool) DialEphemeral(ctx context.Context, addr string) (*transport.Channel, func() error, error) {
	conn, err := grpc.NewClient(addr, p.dialer...)
	if err != nil {
		return nil, nil, fmt.Errorf("client: ephemeral dial %s: %w", addr, err)
	}
	return transport.NewChannel(conn), conn.Close, nil
}

func (p *Pool) evictLoop() {
	interval := p.failureTimeout
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-t.C:
			p.evictIdle()
		}
	}
}

func (p *Pool) evictIdle() {
	now := time.Now()
	var toClose []string

	p.mu.Lock()
	for addr, entry := range p.conns {
		entry.mu.Lock()
		idle := entry.refs == 0 && !entry.lastUsed.IsZero() && now.Sub(entry.lastUsed) >= p.failureTimeout
		entry.mu.Unlock()
		if idle {
			toClose = append(toClose, addr)
		}
	}
	for _, addr := range toClose {
		entry := p.conns[addr]
		_ = entry.conn.Close()
		delete(p.conns, addr)
	}
	p.mu.Unlock()

	for _, addr := range toClose {
		p.lgr.Debug("Pool: evicted idle connection", logger.F("addr", addr))
	}
}

// CloseAll tears down every cached connection and stops the eviction
// loop. Called once during node shutdown.
func (p *Pool) CloseAll() {
	close(p.stopCh)
	p.mu.Lock()
	defer p.mu.Unlock()
	for addr, entry := range p.conns {
		_ = entry.conn.Close()
		delete(p.conns, addr)
	}
	p.lgr.Info("Pool: all connections closed")
}

// DebugLog emits a snapshot of the current pool state.
func (p *Pool) DebugLog() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entries := make([]map[string]any, 0, len(p.conns))
	for addr, entry := range p.conns {
		entry.mu.Lock()
		entries = append(entries, map[string]any{"addr": addr, "refs": entry.refs})
		entry.mu.Unlock()
	}
	p.lgr.Debug("Pool snapshot", logger.F("count", len(entries)), logger.F("connections", entries))
}
