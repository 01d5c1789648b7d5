package hub

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errFakeClosed = errors.New("fake transport closed")

// fakeTransport is an in-memory Transport. The test plays the device: it pushes
// frames with send and reads what the hub wrote from out.
type fakeTransport struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	peer   chan struct{}

	mu        sync.Mutex
	deadline  time.Time
	writeErr  error
	delay     time.Duration
	closeOnce sync.Once
	peerOnce  sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
		peer:   make(chan struct{}),
	}
}

func (f *fakeTransport) ReadMessage() ([]byte, error) {
	f.mu.Lock()
	deadline := f.deadline
	f.mu.Unlock()

	var timeout <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case data := <-f.in:
		return data, nil
	case <-f.peer:
		return nil, io.EOF
	case <-f.closed:
		return nil, errFakeClosed
	case <-timeout:
		return nil, errors.New("read deadline exceeded")
	}
}

func (f *fakeTransport) WriteMessage(data []byte) error {
	f.mu.Lock()
	err, delay := f.writeErr, f.delay
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-f.closed:
			return errFakeClosed
		}
	}
	select {
	case <-f.closed:
		return errFakeClosed
	case f.out <- data:
		return nil
	}
}

func (f *fakeTransport) SetReadDeadline(t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadline = t
	return nil
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) RemoteAddr() string {
	return "fake:1"
}

func (f *fakeTransport) failWrites(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

// slowWrites makes every write take d, like a congested link.
func (f *fakeTransport) slowWrites(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// hangUp simulates the device closing the connection normally.
func (f *fakeTransport) hangUp() {
	f.peerOnce.Do(func() { close(f.peer) })
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeTransport) send(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	f.in <- data
}

func (f *fakeTransport) sendRaw(data string) {
	f.in <- []byte(data)
}

// next returns the next frame written by the hub, decoded into a generic map.
func (f *fakeTransport) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case data := <-f.out:
		var frame map[string]any
		require.NoError(t, json.Unmarshal(data, &frame))
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame from the hub")
		return nil
	}
}

// expectSilence asserts that the hub writes nothing for a short while.
func (f *fakeTransport) expectSilence(t *testing.T) {
	t.Helper()
	select {
	case data := <-f.out:
		t.Fatalf("unexpected frame from the hub: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}
