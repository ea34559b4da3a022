package node

import (
	"context"
	"encoding/hex"
	"time"

	"chordkv/internal/domain"
	"chordkv/internal/logger"
	"chordkv/internal/transport"
)

// Exchange implements transport.ExchangeServer, routing an inbound
// envelope to the node operation matching its Type. This is the single
// entry point every remote call (ring control or key-value data) goes
// through on the wire.
func (n *Node) Exchange(ctx context.Context, in *transport.Envelope) (*transport.Envelope, error) {
	switch in.Type {
	case transport.TypeFindSuccessor:
		return n.dispatchFindSuccessor(in)
	case transport.TypeGetPredecessor:
		return n.dispatchGetPredecessor()
	case transport.TypeGetSuccessorList:
		return n.dispatchGetSuccessorList()
	case transport.TypeNotify:
		return n.dispatchNotify(in)
	case transport.TypeHeartbeat:
		return &transport.Envelope{Type: transport.TypeHeartbeat, Timestamp: time.Now()}, nil
	case transport.TypeJoinRequest:
		return n.dispatchJoinRequest(ctx, in)
	case transport.TypePut:
		return n.dispatchPut(ctx, in)
	case transport.TypeDelete:
		return n.dispatchDelete(in)
	case transport.TypeReplicate:
		return n.dispatchReplicate(in)
	case transport.TypeGet:
		return n.dispatchGet(ctx, in)
	case transport.TypeResult:
		n.HandleResult(in)
		return &transport.Envelope{Type: transport.TypeResult}, nil
	case transport.TypeUpdateSuccessor:
		return n.dispatchUpdateSuccessor(in)
	case transport.TypeUpdatePredecessor:
		return n.dispatchUpdatePredecessor(in)
	default:
		return &transport.Envelope{Error: "node: unknown envelope type " + string(in.Type)}, nil
	}
}

func errEnvelope(reqType transport.Type, err error) *transport.Envelope {
	return &transport.Envelope{Type: reqType, Error: err.Error()}
}

func (n *Node) dispatchFindSuccessor(in *transport.Envelope) (*transport.Envelope, error) {
	targetHex, _ := in.Data["target"].(string)
	target, err := n.rt.Space().FromHexString(targetHex)
	if err != nil {
		return errEnvelope(transport.TypeFindSuccessor, err), nil
	}
	node, done, err := n.HandleFindSuccessor(target)
	if err != nil {
		return errEnvelope(transport.TypeFindSuccessor, err), nil
	}
	return &transport.Envelope{
		Type: transport.TypeFindSuccessor,
		Data: map[string]any{"node": nodeToEnvelopeData(node), "done": done},
	}, nil
}

func (n *Node) dispatchGetPredecessor() (*transport.Envelope, error) {
	pred := n.rt.GetPredecessor()
	if pred == nil {
		return &transport.Envelope{Type: transport.TypeGetPredecessor, Error: "no predecessor"}, nil
	}
	return &transport.Envelope{
		Type: transport.TypeGetPredecessor,
		Data: map[string]any{"node": nodeToEnvelopeData(pred)},
	}, nil
}

func (n *Node) dispatchGetSuccessorList() (*transport.Envelope, error) {
	list := n.rt.SuccessorList()
	out := make([]any, 0, len(list))
	for _, s := range list {
		out = append(out, nodeToEnvelopeData(s))
	}
	return &transport.Envelope{
		Type: transport.TypeGetSuccessorList,
		Data: map[string]any{"successors": out},
	}, nil
}

func (n *Node) dispatchNotify(in *transport.Envelope) (*transport.Envelope, error) {
	other := nodeFromEnvelopeData(dataMapField(in.Data["node"]))
	n.Notify(other)
	return &transport.Envelope{Type: transport.TypeNotify}, nil
}

func (n *Node) dispatchJoinRequest(ctx context.Context, in *transport.Envelope) (*transport.Envelope, error) {
	joining := nodeFromEnvelopeData(dataMapField(in.Data["node"]))
	if joining == nil {
		return errEnvelope(transport.TypeJoinRequest, errMissingField("node")), nil
	}
	succ, err := n.HandleJoinRequest(ctx, joining.ID)
	if err != nil {
		return errEnvelope(transport.TypeJoinRequest, err), nil
	}
	return &transport.Envelope{
		Type: transport.TypeJoinRequest,
		Data: map[string]any{"successor": nodeToEnvelopeData(succ)},
	}, nil
}

func (n *Node) dispatchPut(ctx context.Context, in *transport.Envelope) (*transport.Envelope, error) {
	res, err := resourceFromEnvelope(n.rt.Space(), in.Data)
	if err != nil {
		return errEnvelope(transport.TypePut, err), nil
	}
	if err := n.HandlePut(ctx, res); err != nil {
		return errEnvelope(transport.TypePut, err), nil
	}
	return &transport.Envelope{Type: transport.TypePut}, nil
}

func (n *Node) dispatchDelete(in *transport.Envelope) (*transport.Envelope, error) {
	keyHex, _ := in.Data["key"].(string)
	id, err := n.rt.Space().FromHexString(keyHex)
	if err != nil {
		return errEnvelope(transport.TypeDelete, err), nil
	}
	if err := n.HandleDelete(id); err != nil {
		return errEnvelope(transport.TypeDelete, err), nil
	}
	return &transport.Envelope{Type: transport.TypeDelete}, nil
}

func (n *Node) dispatchReplicate(in *transport.Envelope) (*transport.Envelope, error) {
	res, err := resourceFromEnvelope(n.rt.Space(), in.Data)
	if err != nil {
		return errEnvelope(transport.TypeReplicate, err), nil
	}
	n.HandleReplicate(res)
	return &transport.Envelope{Type: transport.TypeReplicate}, nil
}

// dispatchGet handles an incoming GET request forwarded from another
// node on behalf of a client. The answer is not returned as the
// Exchange reply (which only acknowledges transport-level receipt);
// instead it is delivered asynchronously as a separate RESULT envelope
// sent back to the requester's reply address.
func (n *Node) dispatchGet(ctx context.Context, in *transport.Envelope) (*transport.Envelope, error) {
	keyHex, _ := in.Data["key"].(string)
	id, err := n.rt.Space().FromHexString(keyHex)
	if err != nil {
		return errEnvelope(transport.TypeGet, err), nil
	}
	replyAddr := in.SenderAddr()
	requestID := in.RequestID

	go func() {
		getCtx, cancel := context.WithTimeout(context.Background(), n.requestTimeout)
		defer cancel()
		res, err := n.store.Get(id)
		result := &transport.Envelope{
			Type:      transport.TypeResult,
			RequestID: requestID,
			Timestamp: time.Now(),
		}
		if err != nil {
			result.Error = err.Error()
		} else {
			result.Data = map[string]any{
				"key":       res.Key.String(),
				"rawKey":    res.RawKey,
				"value":     res.Value,
				"timestamp": res.Timestamp.Format(time.RFC3339Nano),
			}
		}
		ch, err := n.cp.GetFromPool(replyAddr)
		if err != nil {
			n.lgr.Warn("dispatchGet: failed to reach requester", logger.F("addr", replyAddr), logger.F("error", err.Error()))
			return
		}
		defer n.cp.Release(replyAddr)
		if err := ch.Send(getCtx, result); err != nil {
			n.lgr.Warn("dispatchGet: failed to deliver result", logger.F("addr", replyAddr), logger.F("error", err.Error()))
		}
	}()

	return &transport.Envelope{Type: transport.TypeGet}, nil
}

// dispatchUpdateSuccessor handles a ring-stitch request sent by a
// gracefully leaving successor: self's successor is repointed at the
// node named in the request. Naming self is an invariant violation
// rejected via an ACK carrying an error flag; state is left unchanged.
func (n *Node) dispatchUpdateSuccessor(in *transport.Envelope) (*transport.Envelope, error) {
	node := nodeFromEnvelopeData(dataMapField(in.Data["node"]))
	if node == nil {
		return errEnvelope(transport.TypeUpdateSuccessor, errMissingField("node")), nil
	}
	if err := n.HandleUpdateSuccessor(node); err != nil {
		return errEnvelope(transport.TypeUpdateSuccessor, err), nil
	}
	return &transport.Envelope{Type: transport.TypeUpdateSuccessor}, nil
}

// dispatchUpdatePredecessor is the mirror of dispatchUpdateSuccessor,
// sent by a gracefully leaving predecessor to repoint
// self's predecessor pointer directly rather than waiting on
// stabilization to discover it.
func (n *Node) dispatchUpdatePredecessor(in *transport.Envelope) (*transport.Envelope, error) {
	node := nodeFromEnvelopeData(dataMapField(in.Data["node"]))
	if node == nil {
		return errEnvelope(transport.TypeUpdatePredecessor, errMissingField("node")), nil
	}
	if err := n.HandleUpdatePredecessor(node); err != nil {
		return errEnvelope(transport.TypeUpdatePredecessor, err), nil
	}
	return &transport.Envelope{Type: transport.TypeUpdatePredecessor}, nil
}

func errMissingField(field string) error {
	return &missingFieldError{field: field}
}

type missingFieldError struct{ field string }

func (e *missingFieldError) Error() string { return "node: missing envelope field " + e.field }

func nodeToEnvelopeData(n *domain.Node) map[string]any {
	if n == nil {
		return nil
	}
	return map[string]any{"id": n.ID.String(), "addr": n.Addr}
}

func dataMapField(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func nodeFromEnvelopeData(m map[string]any) *domain.Node {
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

func resourceFromEnvelope(space domain.Space, data map[string]any) (domain.Resource, error) {
	keyHex, _ := data["key"].(string)
	id, err := space.FromHexString(keyHex)
	if err != nil {
		return domain.Resource{}, err
	}
	rawKey, _ := data["rawKey"].(string)
	value, _ := data["value"].(string)
	ts, _ := data["timestamp"].(string)
	parsedTs, _ := time.Parse(time.RFC3339Nano, ts)
	return domain.Resource{Key: id, RawKey: rawKey, Value: value, Timestamp: parsedTs}, nil
}

func resourceFromEnvelopeData(data map[string]any) domain.Resource {
	rawKey, _ := data["rawKey"].(string)
	value, _ := data["value"].(string)
	ts, _ := data["timestamp"].(string)
	parsedTs, _ := time.Parse(time.RFC3339Nano, ts)
	return domain.Resource{RawKey: rawKey, Value: value, Timestamp: parsedTs}
}
