package node

import "chordkv/internal/logger"

type Option func(*Node)

// WithLogger injects a custom logger into the Node.
func WithLogger(l logger.Logger) Option {
	return func(n *Node) {
		if l != nil {
			n.lgr = l
		}
	}
}
