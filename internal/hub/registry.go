package hub

import (
	"sort"
	"time"

	"github.com/benmeehan/device-hub/internal/models"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

// Registry maps a device id to its single live session.
type Registry struct {
	sessions cmap.ConcurrentMap[string, *Session]
	logger   zerolog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		sessions: cmap.New[*Session](),
		logger:   logger,
	}
}

// Register stores a new online session for deviceID. A session already held for
// the same id is closed and returned as superseded so the caller can fail its
// pending commands.
func (r *Registry) Register(deviceID string, transport Transport, metadata models.DeviceMetadata) (session, superseded *Session) {
	session = newSession(deviceID, transport, metadata, time.Now())

	r.sessions.Upsert(deviceID, session, func(exist bool, inMap, newValue *Session) *Session {
		if exist {
			superseded = inMap
		}
		return newValue
	})

	if superseded != nil {
		r.logger.Warn().
			Str("device_id", deviceID).
			Str("previous_session", superseded.ID()).
			Str("session_id", session.ID()).
			Msg("Device registered again, closing previous session")
		if err := superseded.Close(); err != nil {
			r.logger.Debug().Err(err).Str("device_id", deviceID).Msg("Error closing superseded transport")
		}
	}

	r.logger.Info().Str("device_id", deviceID).Str("session_id", session.ID()).Msg("Device registered")
	return session, superseded
}

// Touch records a heartbeat for deviceID. Unknown ids are ignored.
func (r *Registry) Touch(deviceID string) {
	if s, ok := r.sessions.Get(deviceID); ok {
		s.touch(time.Now())
	}
}

// Get returns the current session for deviceID, whatever its status.
func (r *Registry) Get(deviceID string) (*Session, bool) {
	return r.sessions.Get(deviceID)
}

// IsOnline reports whether deviceID has an open session whose last heartbeat is
// no older than timeout.
func (r *Registry) IsOnline(deviceID string, now time.Time, timeout time.Duration) bool {
	_, ok := r.online(deviceID, now, timeout)
	return ok
}

func (r *Registry) online(deviceID string, now time.Time, timeout time.Duration) (*Session, bool) {
	s, ok := r.sessions.Get(deviceID)
	if !ok || !s.live(now, timeout) {
		return nil, false
	}
	return s, true
}

// ListOnline returns the set of online devices. Expired sessions found along the
// way are marked stale; their transports stay open.
func (r *Registry) ListOnline(now time.Time, timeout time.Duration) map[string]struct{} {
	online := make(map[string]struct{})
	for item := range r.sessions.IterBuffered() {
		if item.Val.markStaleIfExpired(now, timeout) {
			online[item.Key] = struct{}{}
		}
	}
	return online
}

// Unregister closes session and removes it if it is still the current session
// for its device. It reports whether the map entry was removed.
func (r *Registry) Unregister(session *Session) bool {
	removed := r.sessions.RemoveCb(session.DeviceID(), func(_ string, v *Session, exists bool) bool {
		return exists && v == session
	})
	if err := session.Close(); err != nil {
		r.logger.Debug().Err(err).Str("device_id", session.DeviceID()).Msg("Error closing transport")
	}
	if removed {
		r.logger.Info().Str("device_id", session.DeviceID()).Str("session_id", session.ID()).Msg("Device unregistered")
	}
	return removed
}

// Snapshot lists every known session ordered by device id.
func (r *Registry) Snapshot(now time.Time, timeout time.Duration) []models.DeviceInfo {
	devices := make([]models.DeviceInfo, 0, r.sessions.Count())
	for item := range r.sessions.IterBuffered() {
		devices = append(devices, item.Val.Info(now, timeout))
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].DeviceID < devices[j].DeviceID
	})
	return devices
}

// Count returns the number of registered sessions, stale ones included.
func (r *Registry) Count() int {
	return r.sessions.Count()
}

// Sessions returns the current sessions in no particular order.
func (r *Registry) Sessions() []*Session {
	sessions := make([]*Session, 0, r.sessions.Count())
	for item := range r.sessions.IterBuffered() {
		sessions = append(sessions, item.Val)
	}
	return sessions
}
