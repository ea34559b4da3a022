package client

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"chordkv/internal/ctxutil"
	"chordkv/internal/domain"
	"chordkv/internal/telemetry/lookuptrace"
	"chordkv/internal/transport"
)

var (
	ErrNoPredecessor = errors.New("client: remote node has no predecessor")
	ErrTimeout       = errors.New("client: RPC timed out, no response from remote node")
)

func nodeToData(n *domain.Node) map[string]any {
	if n == nil {
		return nil
	}
	return map[string]any{"id": n.ID.String(), "addr": n.Addr}
}

func nodeFromData(m map[string]any) *domain.Node {
	if m == nil {
		return nil
	}
	idStr, _ := m["id"].(string)
	addr, _ := m["addr"].(string)
	if idStr == "" {
		return nil
	}
	raw, err := hex.DecodeString(idStr)
	if err != nil {
		return nil
	}
	return &domain.Node{ID: domain.ID(raw), Addr: addr}
}

func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func portOf(addr string) int {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	p, _ := strconv.Atoi(port)
	return p
}

func wrapTimeout(err error, addr, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return fmt.Errorf("client: %s RPC to %s failed: %w", op, addr, err)
}

// request performs a synchronous envelope round trip to addr using a
// pooled connection, releasing the reference when done.
func (p *Pool) request(ctx context.Context, addr string, in *transport.Envelope) (*transport.Envelope, error) {
	if err := ctxutil.CheckContext(ctx); err != nil {
		return nil, err
	}
	ch, err := p.GetFromPool(addr)
	if err != nil {
		return nil, err
	}
	defer p.Release(addr)

	ctx, cancel := context.WithTimeout(ctx, p.failureTimeout)
	defer cancel()
	return ch.Request(ctx, in)
}

// FindSuccessor asks the remote node at addr to resolve target,
// returning either the immediate answer or the next hop to query,
// signalled by the reply's Data["done"].
func (p *Pool) FindSuccessor(ctx context.Context, target domain.ID, addr string) (node *domain.Node, done bool, err error) {
	ctx = lookuptrace.WithLookup(ctx)
	resp, err := p.request(ctx, addr, &transport.Envelope{
		Type: transport.TypeFindSuccessor,
		Data: map[string]any{"target": target.String()},
	})
	if err != nil {
		return nil, false, wrapTimeout(err, addr, "FindSuccessor")
	}
	if resp.Error != "" {
		return nil, false, fmt.Errorf("client: FindSuccessor to %s: %s", addr, resp.Error)
	}
	done, _ = resp.Data["done"].(bool)
	node = nodeFromData(dataMap(resp.Data["node"]))
	return node, done, nil
}

func dataMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// GetPredecessor asks the remote node at addr for its predecessor.
func (p *Pool) GetPredecessor(ctx context.Context, addr string) (*domain.Node, error) {
	resp, err := p.request(ctx, addr, &transport.Envelope{Type: transport.TypeGetPredecessor})
	if err != nil {
		return nil, wrapTimeout(err, addr, "GetPredecessor")
	}
	if resp.Error != "" {
		return nil, ErrNoPredecessor
	}
	return nodeFromData(dataMap(resp.Data["node"])), nil
}

// GetSuccessorList asks the remote node at addr for its successor list.
func (p *Pool) GetSuccessorList(ctx context.Context, addr string) ([]*domain.Node, error) {
	resp, err := p.request(ctx, addr, &transport.Envelope{Type: transport.TypeGetSuccessorList})
	if err != nil {
		return nil, wrapTimeout(err, addr, "GetSuccessorList")
	}
	raw, _ := resp.Data["successors"].([]any)
	out := make([]*domain.Node, 0, len(raw))
	for _, r := range raw {
		if n := nodeFromData(dataMap(r)); n != nil {
			out = append(out, n)
		}
	}
	return out, nil
}

// Notify informs the remote node at addr that self might be its
// predecessor.
func (p *Pool) Notify(ctx context.Context, self *domain.Node, addr string) error {
	_, err := p.request(ctx, addr, &transport.Envelope{
		Type: transport.TypeNotify,
		Data: map[string]any{"node": nodeToData(self)},
	})
	if err != nil {
		return wrapTimeout(err, addr, "Notify")
	}
	return nil
}

// Ping checks whether the remote node at addr is alive.
func (p *Pool) Ping(ctx context.Context, addr string) error {
	_, err := p.request(ctx, addr, &transport.Envelope{Type: transport.TypeHeartbeat})
	if err != nil {
		return wrapTimeout(err, addr, "Ping")
	}
	return nil
}

// Replicate pushes a resource to addr as a replica write. It goes out
// through Send, which waits for the Exchange round trip but discards the
// reply envelope, so an error the remote node reports in its reply is
// not returned to the caller.
func (p *Pool) Replicate(ctx context.Context, res domain.Resource, addr string) error {
	ch, err := p.GetFromPool(addr)
	if err != nil {
		return err
	}
	defer p.Release(addr)
	return ch.Send(ctx, &transport.Envelope{
		Type: transport.TypeReplicate,
		Data: map[string]any{
			"key":       res.Key.String(),
			"rawKey":    res.RawKey,
			"value":     res.Value,
			"timestamp": res.Timestamp.Format(time.RFC3339Nano),
		},
	})
}

// Put sends a PUT request to addr and waits for the Exchange ack
// (transport-level accepted, not durability confirmation).
func (p *Pool) Put(ctx context.Context, res domain.Resource, addr string) error {
	resp, err := p.request(ctx, addr, &transport.Envelope{
		Type: transport.TypePut,
		Data: map[string]any{
			"key":       res.Key.String(),
			"rawKey":    res.RawKey,
			"value":     res.Value,
			"timestamp": res.Timestamp.Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		return wrapTimeout(err, addr, "Put")
	}
	if resp.Error != "" {
		return fmt.Errorf("client: Put to %s: %s", addr, resp.Error)
	}
	return nil
}

// Delete sends a DELETE request to addr.
func (p *Pool) Delete(ctx context.Context, id domain.ID, addr string) error {
	resp, err := p.request(ctx, addr, &transport.Envelope{
		Type: transport.TypeDelete,
		Data: map[string]any{"key": id.String()},
	})
	if err != nil {
		return wrapTimeout(err, addr, "Delete")
	}
	if resp.Error != "" {
		return fmt.Errorf("client: Delete to %s: %s", addr, resp.Error)
	}
	return nil
}

// GetAsync kicks off a GET by sending a request that will be answered
// out-of-band by a separate RESULT envelope addressed back at self;
// the caller must have already registered requestID with its
// storage.PendingRequests before calling this.
func (p *Pool) GetAsync(ctx context.Context, id domain.ID, self *domain.Node, requestID, addr string) error {
	ch, err := p.GetFromPool(addr)
	if err != nil {
		return err
	}
	defer p.Release(addr)
	return ch.Send(ctx, &transport.Envelope{
		Type:       transport.TypeGet,
		SenderID:   self.ID.String(),
		SenderIP:   hostOf(self.Addr),
		SenderPort: portOf(self.Addr),
		RequestID:  requestID,
		Data:       map[string]any{"key": id.String()},
	})
}

// UpdateSuccessor asks the remote node at addr to repoint its
// successor at node, part of the ring-stitch a gracefully leaving node
// sends to its predecessor. The remote node rejects this with an error
// if node would name itself.
func (p *Pool) UpdateSuccessor(ctx context.Context, node *domain.Node, addr string) error {
	resp, err := p.request(ctx, addr, &transport.Envelope{
		Type: transport.TypeUpdateSuccessor,
		Data: map[string]any{"node": nodeToData(node)},
	})
	if err != nil {
		return wrapTimeout(err, addr, "UpdateSuccessor")
	}
	if resp.Error != "" {
		return fmt.Errorf("client: UpdateSuccessor to %s: %s", addr, resp.Error)
	}
	return nil
}

// UpdatePredecessor asks the remote node at addr to repoint its
// predecessor at node, the mirror of UpdateSuccessor sent to a
// gracefully leaving node's successor.
func (p *Pool) UpdatePredecessor(ctx context.Context, node *domain.Node, addr string) error {
	resp, err := p.request(ctx, addr, &transport.Envelope{
		Type: transport.TypeUpdatePredecessor,
		Data: map[string]any{"node": nodeToData(node)},
	})
	if err != nil {
		return wrapTimeout(err, addr, "UpdatePredecessor")
	}
	if resp.Error != "" {
		return fmt.Errorf("client: UpdatePredecessor to %s: %s", addr, resp.Error)
	}
	return nil
}

// JoinRequest asks addr (a node already in the ring) to resolve
// self's successor, the first step of joining.
func (p *Pool) JoinRequest(ctx context.Context, self *domain.Node, addr string) (*domain.Node, error) {
	resp, err := p.request(ctx, addr, &transport.Envelope{
		Type: transport.TypeJoinRequest,
		Data: map[string]any{"node": nodeToData(self)},
	})
	if err != nil {
		return nil, wrapTimeout(err, addr, "JoinRequest")
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("client: JoinRequest to %s: %s", addr, resp.Error)
	}
	return nodeFromData(dataMap(resp.Data["successor"])), nil
}
