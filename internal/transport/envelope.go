// Package transport implements the single-RPC message bus nodes use to
// talk to each other. Every ring-control and data operation rides over
// one gRPC method, Exchange, carrying an Envelope whose Type selects the
// behavior. This avoids a generated client/server stub per operation:
// adding a new message kind means adding a Type constant and a
// dispatcher case, not regenerating protobuf code.
package transport

import (
	"strconv"
	"time"
)

type Type string

const (
	TypeFindSuccessor     Type = "FIND_SUCCESSOR"
	TypeGetPredecessor    Type = "GET_PREDECESSOR"
	TypeNotify            Type = "NOTIFY"
	TypeJoinRequest       Type = "JOIN_REQUEST"
	TypeGetSuccessorList  Type = "GET_SUCCESSOR_LIST"
	TypeHeartbeat         Type = "HEARTBEAT"
	TypePut               Type = "PUT"
	TypeGet               Type = "GET"
	TypeDelete            Type = "DELETE"
	TypeReplicate         Type = "REPLICATE"
	TypeResult            Type = "RESULT"
	TypeUpdateSuccessor   Type = "UPDATE_SUCCESSOR"
	TypeUpdatePredecessor Type = "UPDATE_PREDECESSOR"
)

// Envelope is the single message shape exchanged between nodes. Data
// carries operation-specific fields, keyed by name; this keeps the wire
// shape stable as new operations are added, at the cost of losing
// compile-time field checking on the payload itself.
type Envelope struct {
	Type        Type           `json:"type"`
	SenderID    string         `json:"sender_id"`
	SenderIP    string         `json:"sender_ip"`
	SenderPort  int            `json:"sender_port"`
	RequestID   string         `json:"request_id"`
	Timestamp   time.Time      `json:"timestamp"`
	Data        map[string]any `json:"data,omitempty"`
	Error       string         `json:"error,omitempty"`
}

func (e *Envelope) SenderAddr() string {
	if e.SenderIP == "" {
		return ""
	}
	return e.SenderIP + ":" + strconv.Itoa(e.SenderPort)
}
