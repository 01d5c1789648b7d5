// Package hub keeps live connections to devices, forwards commands to them and
// correlates their asynchronous replies with the callers that issued them.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/benmeehan/device-hub/internal/constants"
	"github.com/benmeehan/device-hub/internal/models"
	"github.com/rs/zerolog"
)

// Config holds the hub timing policy.
type Config struct {
	// HeartbeatTimeout is the liveness threshold for IsOnline and ListOnline.
	// It never fails in-flight commands.
	HeartbeatTimeout time.Duration

	// RegisterTimeout bounds the wait for the register frame.
	RegisterTimeout time.Duration

	// IdleTimeout closes a registered connection that sends nothing. Zero disables it.
	IdleTimeout time.Duration

	DefaultCommandTimeout time.Duration
	MaxCommandTimeout     time.Duration

	// MinAppVersion is a semver constraint, e.g. ">= 2.1.0". Devices that do not
	// satisfy it are accepted and flagged outdated.
	MinAppVersion string
}

func (c Config) withDefaults() Config {
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = constants.DefaultHeartbeatTimeout
	}
	if c.RegisterTimeout <= 0 {
		c.RegisterTimeout = constants.DefaultRegisterTimeout
	}
	if c.DefaultCommandTimeout <= 0 {
		c.DefaultCommandTimeout = constants.DefaultCommandTimeout
	}
	if c.MaxCommandTimeout <= 0 {
		c.MaxCommandTimeout = constants.MaxCommandTimeout
	}
	return c
}

// Hub ties together the registry, the pending-reply table, the dispatcher and
// the per-device session loops.
type Hub struct {
	cfg        Config
	registry   *Registry
	pending    *PendingTable
	dispatcher *Dispatcher
	minVersion *semver.Constraints
	logger     zerolog.Logger

	loops sync.WaitGroup
}

// NewHub creates a Hub. It fails only if MinAppVersion is not a valid constraint.
func NewHub(cfg Config, logger zerolog.Logger) (*Hub, error) {
	cfg = cfg.withDefaults()
	logger = logger.With().Str("component", "hub").Logger()

	var minVersion *semver.Constraints
	if cfg.MinAppVersion != "" {
		c, err := semver.NewConstraint(cfg.MinAppVersion)
		if err != nil {
			return nil, fmt.Errorf("invalid min app version %q: %w", cfg.MinAppVersion, err)
		}
		minVersion = c
	}

	registry := NewRegistry(logger)
	pending := NewPendingTable()

	return &Hub{
		cfg:        cfg,
		registry:   registry,
		pending:    pending,
		dispatcher: NewDispatcher(registry, pending, cfg.HeartbeatTimeout, logger),
		minVersion: minVersion,
		logger:     logger,
	}, nil
}

// Send forwards action to deviceID and waits for the result. See Dispatcher.Send.
func (h *Hub) Send(ctx context.Context, deviceID, action string, payload json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	return h.dispatcher.Send(ctx, deviceID, action, payload, timeout)
}

// CommandTimeout turns a caller supplied timeout into the one actually used:
// zero or negative selects the default, anything above the maximum is capped.
func (h *Hub) CommandTimeout(requested time.Duration) time.Duration {
	if requested <= 0 {
		return h.cfg.DefaultCommandTimeout
	}
	if requested > h.cfg.MaxCommandTimeout {
		return h.cfg.MaxCommandTimeout
	}
	return requested
}

// IsOnline reports whether deviceID is connected and heartbeating.
func (h *Hub) IsOnline(deviceID string) bool {
	return h.registry.IsOnline(deviceID, time.Now(), h.cfg.HeartbeatTimeout)
}

// ListOnline returns the set of online devices, marking expired sessions stale.
func (h *Hub) ListOnline() map[string]struct{} {
	return h.registry.ListOnline(time.Now(), h.cfg.HeartbeatTimeout)
}

// Devices lists every registered session, stale ones included.
func (h *Hub) Devices() []models.DeviceInfo {
	return h.registry.Snapshot(time.Now(), h.cfg.HeartbeatTimeout)
}

// Device returns the session snapshot of a single device.
func (h *Hub) Device(deviceID string) (models.DeviceInfo, bool) {
	s, ok := h.registry.Get(deviceID)
	if !ok {
		return models.DeviceInfo{}, false
	}
	return s.Info(time.Now(), h.cfg.HeartbeatTimeout), true
}

func (h *Hub) SessionCount() int {
	return h.registry.Count()
}

func (h *Hub) OnlineCount() int {
	return len(h.ListOnline())
}

func (h *Hub) PendingCount() int {
	return h.pending.Len()
}

// Shutdown closes every session and waits for the session loops to finish
// their cleanup or for ctx to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	for _, s := range h.registry.Sessions() {
		_ = s.Close()
	}

	done := make(chan struct{})
	go func() {
		h.loops.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info().Msg("All device sessions closed")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for device sessions: %w", ctx.Err())
	}
}

// release is the single cleanup path of a session: it leaves the registry and
// every command still waiting on it fails with ErrDisconnected.
func (h *Hub) release(s *Session) {
	s.releaseOnce.Do(func() {
		h.registry.Unregister(s)

		expired := h.pending.ExpireAllFor(s.DeviceID(), s.ID())
		for _, p := range expired {
			p.complete(Outcome{Err: newDispatchError(ErrDisconnected, p.DeviceID, p.Action, p.CorrelationID)})
		}
		if len(expired) > 0 {
			h.logger.Info().
				Str("device_id", s.DeviceID()).
				Int("commands", len(expired)).
				Msg("Failed pending commands of closed session")
		}
	})
}

// metadataFor builds the metadata of a registering device and applies the
// app version policy.
func (h *Hub) metadataFor(frame models.RegisterFrame, logger zerolog.Logger) models.DeviceMetadata {
	metadata := models.DeviceMetadata{
		DeviceName: frame.DeviceName,
		AppVersion: frame.AppVersion,
		Extra:      frame.Metadata,
	}
	if h.minVersion == nil || frame.AppVersion == "" {
		return metadata
	}

	v, err := semver.NewVersion(frame.AppVersion)
	if err != nil {
		logger.Warn().Err(err).Str("app_version", frame.AppVersion).Msg("Device reported an unparsable app version")
		metadata.Outdated = true
		return metadata
	}
	if !h.minVersion.Check(v) {
		logger.Warn().
			Str("app_version", frame.AppVersion).
			Str("required", h.cfg.MinAppVersion).
			Msg("Device app is outdated")
		metadata.Outdated = true
	}
	return metadata
}
