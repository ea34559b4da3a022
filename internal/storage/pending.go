package storage

import (
	"sync"
	"time"

	"chordkv/internal/logger"
	"chordkv/internal/transport"
)

// PendingRequests tracks in-flight GET requests that were sent out as a
// transport.Send and whose answer will arrive later as a separate
// inbound RESULT envelope, addressed back at the sender by request ID.
// This is what makes the asynchronous message bus present a
// synchronous request/response API to callers of node.Get.
type PendingRequests struct {
	lgr logger.Logger
	mu  sync.Mutex
	m   map[string]*pendingEntry
}

type pendingEntry struct {
	ch      chan *transport.Envelope
	expires time.Time
}

func NewPendingRequests(lgr logger.Logger) *PendingRequests {
	return &PendingRequests{
		lgr: lgr,
		m:   make(map[string]*pendingEntry),
	}
}

// Register creates a waiting slot for requestID and returns the channel
// that will receive the matching RESULT envelope. The caller must
// eventually call Resolve or let the entry expire via Sweep.
func (p *PendingRequests) Register(requestID string, timeout time.Duration) <-chan *transport.Envelope {
	ch := make(chan *transport.Envelope, 1)
	p.mu.Lock()
	p.m[requestID] = &pendingEntry{ch: ch, expires: time.Now().Add(timeout)}
	p.mu.Unlock()
	return ch
}

// Resolve delivers env to the waiting request with matching RequestID,
// if one is still pending. It is a no-op if the request already
// expired or was never registered (e.g. a duplicate or late reply).
func (p *PendingRequests) Resolve(env *transport.Envelope) bool {
	p.mu.Lock()
	entry, ok := p.m[env.RequestID]
	if ok {
		delete(p.m, env.RequestID)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	entry.ch <- env
	return true
}

// Forget removes a pending entry without resolving it, typically called
// by the waiter itself after a context deadline fires locally.
func (p *PendingRequests) Forget(requestID string) {
	p.mu.Lock()
	delete(p.m, requestID)
	p.mu.Unlock()
}

// Sweep closes and removes any entry whose timeout has elapsed. Run
// periodically from a background loop so a reply that never arrives
// (dead remote node, dropped packet) doesn't leak a goroutine/channel
// forever.
func (p *PendingRequests) Sweep() {
	now := time.Now()
	var expired []string
	p.mu.Lock()
	for id, entry := range p.m {
		if now.After(entry.expires) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		close(p.m[id].ch)
		delete(p.m, id)
	}
	p.mu.Unlock()
	if len(expired) > 0 {
		p.lgr.Debug("PendingRequests: swept expired entries", logger.F("count", len(expired)), logger.F("ids", expired))
	}
}
