package hub

import (
	"time"

	"github.com/benmeehan/device-hub/internal/models"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// Outcome is the single resolution of a pending command: either a device
// response or an error.
type Outcome struct {
	Response *models.ResponseFrame
	Err      error
}

// PendingCommand is a command awaiting exactly one resolution.
type PendingCommand struct {
	CorrelationID string
	DeviceID      string
	SessionID     string
	Action        string
	CreatedAt     time.Time
	Deadline      time.Time

	done chan Outcome
}

// Done delivers the outcome once the command has been resolved.
func (p *PendingCommand) Done() <-chan Outcome {
	return p.done
}

// complete must only be called by whoever removed p from the table.
func (p *PendingCommand) complete(outcome Outcome) {
	p.done <- outcome
}

// PendingTable correlates outstanding commands with device replies. Removal from
// the table is the point of resolution, so at most one caller ever completes a
// given command.
type PendingTable struct {
	entries cmap.ConcurrentMap[string, *PendingCommand]
}

// NewPendingTable creates an empty PendingTable.
func NewPendingTable() *PendingTable {
	return &PendingTable{entries: cmap.New[*PendingCommand]()}
}

// Create registers a new pending command.
func (t *PendingTable) Create(correlationID, deviceID, sessionID, action string, deadline time.Time) (*PendingCommand, error) {
	p := &PendingCommand{
		CorrelationID: correlationID,
		DeviceID:      deviceID,
		SessionID:     sessionID,
		Action:        action,
		CreatedAt:     time.Now(),
		Deadline:      deadline,
		done:          make(chan Outcome, 1),
	}
	if !t.entries.SetIfAbsent(correlationID, p) {
		return nil, ErrDuplicateCommandID
	}
	return p, nil
}

// Resolve completes the command with outcome. Unknown or already resolved ids
// are a silent no-op; the return value reports whether anything was resolved.
func (t *PendingTable) Resolve(correlationID string, outcome Outcome) bool {
	p, ok := t.entries.Pop(correlationID)
	if !ok {
		return false
	}
	p.complete(outcome)
	return true
}

// ResolveFromSession is Resolve restricted to commands that were sent over
// sessionID, so a device can never complete a command addressed to another one.
func (t *PendingTable) ResolveFromSession(sessionID, correlationID string, outcome Outcome) bool {
	var p *PendingCommand
	removed := t.entries.RemoveCb(correlationID, func(_ string, v *PendingCommand, exists bool) bool {
		if exists && v.SessionID == sessionID {
			p = v
			return true
		}
		return false
	})
	if !removed {
		return false
	}
	p.complete(outcome)
	return true
}

// Remove drops a command without completing it. It reports whether the entry was
// still present; if not, another path already resolved it and its outcome is
// waiting on Done.
func (t *PendingTable) Remove(correlationID string) bool {
	_, ok := t.entries.Pop(correlationID)
	return ok
}

// ExpireAllFor removes every command sent over the given session of deviceID
// and hands them to the caller, which must complete each one.
func (t *PendingTable) ExpireAllFor(deviceID, sessionID string) []*PendingCommand {
	var expired []*PendingCommand
	for item := range t.entries.IterBuffered() {
		p := item.Val
		if p.DeviceID != deviceID || p.SessionID != sessionID {
			continue
		}
		removed := t.entries.RemoveCb(item.Key, func(_ string, v *PendingCommand, exists bool) bool {
			return exists && v == p
		})
		if removed {
			expired = append(expired, p)
		}
	}
	return expired
}

// Len returns the number of outstanding commands.
func (t *PendingTable) Len() int {
	return t.entries.Count()
}
