package writer

import "time"

// Writer is the common interface implemented by tester result writers.
type Writer interface {
	WriteRow(node, result string, delay time.Duration) error
	Flush() error
	Close() error
}
