package hub

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/benmeehan/device-hub/internal/constants"
	"github.com/benmeehan/device-hub/internal/models"
	"github.com/google/uuid"
)

// Session is the live binding between a device id and its transport.
type Session struct {
	id           string
	deviceID     string
	transport    Transport
	registeredAt time.Time

	mu            sync.RWMutex
	status        constants.SessionStatus
	lastHeartbeat time.Time
	metadata      models.DeviceMetadata

	// writeMu serialises frames onto the transport.
	writeMu sync.Mutex

	closeOnce   sync.Once
	closed      chan struct{}
	releaseOnce sync.Once
}

func newSession(deviceID string, transport Transport, metadata models.DeviceMetadata, now time.Time) *Session {
	return &Session{
		id:            uuid.NewString(),
		deviceID:      deviceID,
		transport:     transport,
		registeredAt:  now,
		status:        constants.SessionOnline,
		lastHeartbeat: now,
		metadata:      metadata,
		closed:        make(chan struct{}),
	}
}

// ID returns the unique id of this session. A reconnecting device gets a new one.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) DeviceID() string {
	return s.deviceID
}

func (s *Session) RegisteredAt() time.Time {
	return s.registeredAt
}

func (s *Session) Status() constants.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) LastHeartbeat() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastHeartbeat
}

// Done is closed once the session has been closed.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}

// WriteJSON serialises v and writes it as a single frame. Writes to a closed
// session fail with ErrSessionClosed.
func (s *Session) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to serialize frame: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}

	if err := s.transport.WriteMessage(data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// Close marks the session closed and closes its transport. Safe to call many times.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.status = constants.SessionClosed
		s.mu.Unlock()
		close(s.closed)
		err = s.transport.Close()
	})
	return err
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == constants.SessionClosed {
		return
	}
	s.lastHeartbeat = now
	s.status = constants.SessionOnline
}

// live reports whether the session is open and has heartbeated within timeout.
func (s *Session) live(now time.Time, timeout time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status != constants.SessionClosed && now.Sub(s.lastHeartbeat) <= timeout
}

// markStaleIfExpired moves an expired online session to stale and reports
// whether the session is still live.
func (s *Session) markStaleIfExpired(now time.Time, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == constants.SessionClosed {
		return false
	}
	if now.Sub(s.lastHeartbeat) <= timeout {
		return true
	}
	s.status = constants.SessionStale
	return false
}

func (s *Session) updateStatus(status models.DeviceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status.Battery != nil {
		s.metadata.Battery = status.Battery
	}
	if status.SignalStrength != nil {
		s.metadata.SignalStrength = status.SignalStrength
	}
}

// Info returns a snapshot of the session for listings.
func (s *Session) Info(now time.Time, timeout time.Duration) models.DeviceInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.DeviceInfo{
		DeviceID:      s.deviceID,
		SessionID:     s.id,
		Status:        s.status,
		Online:        s.status != constants.SessionClosed && now.Sub(s.lastHeartbeat) <= timeout,
		RemoteAddr:    s.transport.RemoteAddr(),
		ConnectedAt:   s.registeredAt,
		LastHeartbeat: s.lastHeartbeat,
		Metadata:      s.metadata,
	}
}
