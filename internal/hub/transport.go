package hub

import "time"

// Transport is a message oriented, bidirectional channel to a single device.
//
// ReadMessage is only ever called from the session loop goroutine. WriteMessage
// calls are serialised by the owning Session. Close may be called concurrently
// with both and must be idempotent. A normal close by the peer is reported by
// ReadMessage as io.EOF.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	SetReadDeadline(t time.Time) error
	Close() error
	RemoteAddr() string
}
