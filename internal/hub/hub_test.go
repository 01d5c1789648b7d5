package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benmeehan/device-hub/internal/constants"
	"github.com/benmeehan/device-hub/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T, cfg Config) *Hub {
	t.Helper()
	h, err := NewHub(cfg, zerolog.Nop())
	require.NoError(t, err)
	return h
}

// connect runs a session loop for deviceID and completes the registration
// handshake. The returned channel receives the loop's result.
func connect(t *testing.T, h *Hub, deviceID string) (*fakeTransport, <-chan error) {
	t.Helper()
	ft := newFakeTransport()
	errCh := make(chan error, 1)
	go func() {
		errCh <- h.Serve(context.Background(), ft)
	}()

	ft.send(t, models.RegisterFrame{Type: constants.FrameRegister, DeviceID: deviceID, AppVersion: "2.3.0"})
	ack := ft.next(t)
	require.Equal(t, constants.FrameRegisterAck, ack["type"])
	require.Equal(t, deviceID, ack["device_id"])
	return ft, errCh
}

// actAsDevice answers every command written to ft with the response built by
// handle. A nil response leaves the command unanswered.
func actAsDevice(ft *fakeTransport, handle func(models.CommandFrame) *models.ResponseFrame) {
	go func() {
		for {
			select {
			case <-ft.closed:
				return
			case data := <-ft.out:
				var cmd models.CommandFrame
				if err := json.Unmarshal(data, &cmd); err != nil || cmd.Type != constants.FrameCommand {
					continue
				}
				resp := handle(cmd)
				if resp == nil {
					continue
				}
				out, _ := json.Marshal(resp)
				select {
				case ft.in <- out:
				case <-ft.closed:
					return
				}
			}
		}
	}()
}

func echo(cmd models.CommandFrame) *models.ResponseFrame {
	return &models.ResponseFrame{Type: constants.FrameResponse, ID: cmd.ID, OK: true, Data: cmd.Data}
}

func waitLoop(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("session loop did not finish")
		return nil
	}
}

// TestHub_Send_Success tests a full command round trip.
func TestHub_Send_Success(t *testing.T) {
	// Setup
	h := newTestHub(t, Config{})
	ft, _ := connect(t, h, "dev-1")

	commands := make(chan models.CommandFrame, 1)
	actAsDevice(ft, func(cmd models.CommandFrame) *models.ResponseFrame {
		commands <- cmd
		return &models.ResponseFrame{Type: constants.FrameResponse, ID: cmd.ID, OK: true, Data: json.RawMessage(`{"level":80}`)}
	})

	// Execute
	data, err := h.Send(context.Background(), "dev-1", "get_battery", json.RawMessage(`{"unit":"pct"}`), time.Second)

	// Assert
	require.NoError(t, err)
	assert.JSONEq(t, `{"level":80}`, string(data))

	cmd := <-commands
	assert.Equal(t, "get_battery", cmd.Action)
	assert.JSONEq(t, `{"unit":"pct"}`, string(cmd.Data))
	assert.NotEmpty(t, cmd.ID)
	assert.Equal(t, 0, h.PendingCount())
}

// TestHub_Send_EmptyPayload tests that a missing payload is sent as an empty object.
func TestHub_Send_EmptyPayload(t *testing.T) {
	// Setup
	h := newTestHub(t, Config{})
	ft, _ := connect(t, h, "dev-1")
	actAsDevice(ft, echo)

	// Execute
	data, err := h.Send(context.Background(), "dev-1", "ping", nil, time.Second)

	// Assert
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))
}

// TestHub_Send_DeviceError tests that a negative response carries the device's
// error verbatim.
func TestHub_Send_DeviceError(t *testing.T) {
	// Setup
	h := newTestHub(t, Config{})
	ft, _ := connect(t, h, "dev-1")
	actAsDevice(ft, func(cmd models.CommandFrame) *models.ResponseFrame {
		return &models.ResponseFrame{Type: constants.FrameResponse, ID: cmd.ID, OK: false, Error: json.RawMessage(`"Camera not available"`)}
	})

	// Execute
	data, err := h.Send(context.Background(), "dev-1", "take_photo", nil, time.Second)

	// Assert
	assert.Nil(t, data)
	require.ErrorIs(t, err, ErrDeviceError)

	var dispatchErr *DispatchError
	require.True(t, errors.As(err, &dispatchErr))
	assert.Equal(t, "Camera not available", dispatchErr.DetailString())
	assert.Equal(t, constants.ErrorCodeDeviceError, dispatchErr.Code())
	assert.Equal(t, "dev-1", dispatchErr.DeviceID)
	assert.Equal(t, "take_photo", dispatchErr.Action)
}

// TestHub_Send_NotConnected tests addressing an unknown device.
func TestHub_Send_NotConnected(t *testing.T) {
	// Setup
	h := newTestHub(t, Config{})

	// Execute
	_, err := h.Send(context.Background(), "ghost", "ping", nil, time.Second)

	// Assert
	require.ErrorIs(t, err, ErrNotConnected)
	var dispatchErr *DispatchError
	require.True(t, errors.As(err, &dispatchErr))
	assert.Equal(t, constants.ErrorCodeNotConnected, dispatchErr.Code())
	assert.Equal(t, 0, h.PendingCount())
}

// TestHub_Send_NotConnected_Stale tests that a device whose heartbeat expired
// cannot be addressed even though its connection is open.
func TestHub_Send_NotConnected_Stale(t *testing.T) {
	// Setup
	h := newTestHub(t, Config{HeartbeatTimeout: 20 * time.Millisecond})
	ft, _ := connect(t, h, "dev-1")
	time.Sleep(40 * time.Millisecond)

	// Execute
	_, err := h.Send(context.Background(), "dev-1", "ping", nil, time.Second)

	// Assert
	assert.ErrorIs(t, err, ErrNotConnected)
	ft.expectSilence(t)
}

// TestHub_Send_InvalidArguments tests argument validation.
func TestHub_Send_InvalidArguments(t *testing.T) {
	h := newTestHub(t, Config{})

	_, err := h.Send(context.Background(), "", "ping", nil, time.Second)
	assert.ErrorIs(t, err, ErrMissingDeviceID)

	_, err = h.Send(context.Background(), "dev-1", "", nil, time.Second)
	assert.ErrorIs(t, err, ErrMissingAction)

	_, err = h.Send(context.Background(), "dev-1", "ping", nil, 0)
	assert.ErrorIs(t, err, ErrInvalidTimeout)

	_, err = h.Send(context.Background(), "dev-1", "ping", nil, -time.Second)
	assert.ErrorIs(t, err, ErrInvalidTimeout)
}

// TestHub_Send_Timeout tests that an unanswered command times out, leaves no
// pending entry and that a late response is ignored.
func TestHub_Send_Timeout(t *testing.T) {
	// Setup
	h := newTestHub(t, Config{})
	ft, _ := connect(t, h, "dev-1")

	commands := make(chan models.CommandFrame, 1)
	actAsDevice(ft, func(cmd models.CommandFrame) *models.ResponseFrame {
		commands <- cmd
		return nil
	})

	// Execute
	start := time.Now()
	_, err := h.Send(context.Background(), "dev-1", "slow", nil, 50*time.Millisecond)

	// Assert
	require.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 0, h.PendingCount())

	// A late reply changes nothing and the session stays usable
	cmd := <-commands
	ft.send(t, models.ResponseFrame{Type: constants.FrameResponse, ID: cmd.ID, OK: true})
	ft.send(t, models.Heartbeat{Type: constants.FrameHeartbeat})
	assert.Eventually(t, func() bool { return h.IsOnline("dev-1") }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, h.PendingCount())
}

// TestHub_Send_TimeoutIncludesWrite tests that a slow write is charged to the
// command timeout instead of delaying the result past it.
func TestHub_Send_TimeoutIncludesWrite(t *testing.T) {
	// Setup
	h := newTestHub(t, Config{})
	ft, _ := connect(t, h, "dev-1")
	ft.slowWrites(300 * time.Millisecond)

	// Execute
	start := time.Now()
	_, err := h.Send(context.Background(), "dev-1", "ping", nil, 100*time.Millisecond)
	elapsed := time.Since(start)

	// Assert
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, elapsed, 380*time.Millisecond)
	assert.Equal(t, 0, h.PendingCount())
}

// TestHub_Send_ContextCancelled tests caller cancellation.
func TestHub_Send_ContextCancelled(t *testing.T) {
	// Setup
	h := newTestHub(t, Config{})
	ft, _ := connect(t, h, "dev-1")

	ctx, cancel := context.WithCancel(context.Background())
	actAsDevice(ft, func(cmd models.CommandFrame) *models.ResponseFrame {
		cancel()
		return nil
	})

	// Execute
	_, err := h.Send(ctx, "dev-1", "ping", nil, 5*time.Second)

	// Assert
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, h.PendingCount())
	assert.True(t, h.IsOnline("dev-1"))
}

// TestHub_Send_DisconnectWhilePending tests that a disconnect fails the
// in-flight command promptly instead of waiting for the timeout.
func TestHub_Send_DisconnectWhilePending(t *testing.T) {
	// Setup
	h := newTestHub(t, Config{})
	ft, errCh := connect(t, h, "dev-1")
	actAsDevice(ft, func(cmd models.CommandFrame) *models.ResponseFrame {
		ft.hangUp()
		return nil
	})

	// Execute
	start := time.Now()
	_, err := h.Send(context.Background(), "dev-1", "reboot", nil, 10*time.Second)

	// Assert
	require.ErrorIs(t, err, ErrDisconnected)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.NoError(t, waitLoop(t, errCh))
	assert.False(t, h.IsOnline("dev-1"))
	assert.Equal(t, 0, h.SessionCount())
	assert.Equal(t, 0, h.PendingCount())
	assert.True(t, ft.isClosed())
}

// TestHub_Send_WriteFailure tests that a failed write is reported as a disconnect.
func TestHub_Send_WriteFailure(t *testing.T) {
	// Setup
	h := newTestHub(t, Config{})
	ft, _ := connect(t, h, "dev-1")
	ft.failWrites(errors.New("broken pipe"))

	// Execute
	_, err := h.Send(context.Background(), "dev-1", "ping", nil, time.Second)

	// Assert
	assert.ErrorIs(t, err, ErrDisconnected)
	assert.Equal(t, 0, h.PendingCount())
}

// TestHub_Send_Concurrent tests that concurrent commands to one device are each
// matched with their own reply.
func TestHub_Send_Concurrent(t *testing.T) {
	const callers = 25

	h := newTestHub(t, Config{})
	ft, _ := connect(t, h, "dev-1")
	actAsDevice(ft, echo)

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := json.RawMessage(fmt.Sprintf(`{"n":%d}`, i))
			data, err := h.Send(context.Background(), "dev-1", "echo", payload, 2*time.Second)
			if err != nil {
				errs <- err
				return
			}
			if string(data) != string(payload) {
				errs <- fmt.Errorf("caller %d got %s", i, data)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	assert.Equal(t, 0, h.PendingCount())
}

// TestHub_Send_OutOfOrderReplies tests that two commands in flight are each
// resolved with their own data when the device answers the second one first.
func TestHub_Send_OutOfOrderReplies(t *testing.T) {
	// Setup
	h := newTestHub(t, Config{})
	ft, _ := connect(t, h, "dev-1")

	type reply struct {
		data json.RawMessage
		err  error
	}
	send := func(action string) <-chan reply {
		ch := make(chan reply, 1)
		go func() {
			data, err := h.Send(context.Background(), "dev-1", action, nil, 2*time.Second)
			ch <- reply{data: data, err: err}
		}()
		return ch
	}

	firstResult := send("first")
	firstCmd := ft.next(t)
	secondResult := send("second")
	secondCmd := ft.next(t)
	require.Equal(t, "first", firstCmd["action"])
	require.Equal(t, "second", secondCmd["action"])
	require.Equal(t, 2, h.PendingCount())

	// Execute
	ft.send(t, models.ResponseFrame{Type: constants.FrameResponse, ID: secondCmd["id"].(string), OK: true, Data: json.RawMessage(`"second"`)})
	ft.send(t, models.ResponseFrame{Type: constants.FrameResponse, ID: firstCmd["id"].(string), OK: true, Data: json.RawMessage(`"first"`)})

	// Assert
	for want, ch := range map[string]<-chan reply{"first": firstResult, "second": secondResult} {
		select {
		case r := <-ch:
			require.NoError(t, r.err)
			assert.JSONEq(t, `"`+want+`"`, string(r.data))
		case <-time.After(2 * time.Second):
			t.Fatalf("command %s was not resolved", want)
		}
	}
	assert.Equal(t, 0, h.PendingCount())
}

// TestHub_Supersede tests that a second connection for the same device fails
// the commands of the first and takes over.
func TestHub_Supersede(t *testing.T) {
	// Setup
	h := newTestHub(t, Config{})
	first, firstErr := connect(t, h, "dev-1")

	sent := make(chan struct{})
	actAsDevice(first, func(cmd models.CommandFrame) *models.ResponseFrame {
		close(sent)
		return nil
	})

	result := make(chan error, 1)
	go func() {
		_, err := h.Send(context.Background(), "dev-1", "ping", nil, 10*time.Second)
		result <- err
	}()
	<-sent

	// Execute
	second, _ := connect(t, h, "dev-1")
	actAsDevice(second, echo)

	// Assert
	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrDisconnected)
	case <-time.After(2 * time.Second):
		t.Fatal("command on superseded session was not failed")
	}
	assert.NoError(t, waitLoop(t, firstErr))
	assert.True(t, first.isClosed())
	assert.Equal(t, 1, h.SessionCount())

	data, err := h.Send(context.Background(), "dev-1", "ping", json.RawMessage(`{"via":"second"}`), time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"via":"second"}`, string(data))
}

// TestHub_ResponseFromOtherDevice tests that a device cannot resolve a command
// addressed to another device.
func TestHub_ResponseFromOtherDevice(t *testing.T) {
	// Setup
	h := newTestHub(t, Config{})
	target, _ := connect(t, h, "dev-1")
	intruder, _ := connect(t, h, "dev-2")

	actAsDevice(target, func(cmd models.CommandFrame) *models.ResponseFrame {
		forged, _ := json.Marshal(models.ResponseFrame{Type: constants.FrameResponse, ID: cmd.ID, OK: true})
		intruder.in <- forged
		return nil
	})

	// Execute
	_, err := h.Send(context.Background(), "dev-1", "ping", nil, 100*time.Millisecond)

	// Assert
	assert.ErrorIs(t, err, ErrTimeout)
}

// TestHub_Heartbeat tests that heartbeats are acknowledged with the device's
// timestamp echoed back.
func TestHub_Heartbeat(t *testing.T) {
	// Setup
	h := newTestHub(t, Config{})
	ft, _ := connect(t, h, "dev-1")
	before, ok := h.Device("dev-1")
	require.True(t, ok)
	time.Sleep(5 * time.Millisecond)

	// Execute
	ft.sendRaw(`{"type":"heartbeat","timestamp":1700000000000}`)
	ack := ft.next(t)

	// Assert
	assert.Equal(t, constants.FrameHeartbeatAck, ack["type"])
	assert.Equal(t, "ok", ack["status"])
	assert.Equal(t, float64(1700000000000), ack["timestamp"])
	assert.NotEmpty(t, ack["server_time"])

	after, ok := h.Device("dev-1")
	require.True(t, ok)
	assert.True(t, after.LastHeartbeat.After(before.LastHeartbeat))
}

// TestHub_Heartbeat_SupersededSession tests that a heartbeat read by a replaced
// session does not refresh the liveness of the session that replaced it.
func TestHub_Heartbeat_SupersededSession(t *testing.T) {
	// Setup
	h := newTestHub(t, Config{HeartbeatTimeout: 50 * time.Millisecond})
	old, _ := h.registry.Register("dev-1", newFakeTransport(), models.DeviceMetadata{})
	current, superseded := h.registry.Register("dev-1", newFakeTransport(), models.DeviceMetadata{})
	require.Same(t, old, superseded)
	lastHeartbeat := current.LastHeartbeat()

	time.Sleep(80 * time.Millisecond)
	require.False(t, h.IsOnline("dev-1"))

	// Execute
	h.handleFrame(old, []byte(`{"type":"heartbeat"}`), zerolog.Nop())

	// Assert
	assert.False(t, h.IsOnline("dev-1"))
	assert.NotContains(t, h.ListOnline(), "dev-1")
	assert.Equal(t, lastHeartbeat, current.LastHeartbeat())

	h.handleFrame(current, []byte(`{"type":"heartbeat"}`), zerolog.Nop())
	assert.True(t, h.IsOnline("dev-1"))
}

// TestHub_ProtocolErrorsAreIgnored tests that malformed and unknown frames do
// not end the session.
func TestHub_ProtocolErrorsAreIgnored(t *testing.T) {
	// Setup
	h := newTestHub(t, Config{})
	ft, _ := connect(t, h, "dev-1")

	// Execute
	ft.sendRaw(`not json`)
	ft.sendRaw(`{"type":"telemetry","value":1}`)
	ft.sendRaw(`{"type":"response"}`)
	ft.sendRaw(`{"type":"response","id":"unknown","ok":true}`)
	ft.sendRaw(`{"type":"register","device_id":"someone-else"}`)
	ft.sendRaw(`{"type":"heartbeat"}`)

	// Assert
	ack := ft.next(t)
	assert.Equal(t, constants.FrameHeartbeatAck, ack["type"])
	assert.True(t, h.IsOnline("dev-1"))
	assert.False(t, h.IsOnline("someone-else"))
}

// TestHub_DeviceStatus tests that status frames update device metadata.
func TestHub_DeviceStatus(t *testing.T) {
	// Setup
	h := newTestHub(t, Config{})
	ft, _ := connect(t, h, "dev-1")

	// Execute
	ft.sendRaw(`{"type":"device_status","battery":42.5,"signal_strength":-70}`)

	// Assert
	assert.Eventually(t, func() bool {
		info, ok := h.Device("dev-1")
		return ok && info.Metadata.Battery != nil && *info.Metadata.Battery == 42.5
	}, time.Second, 10*time.Millisecond)

	info, _ := h.Device("dev-1")
	require.NotNil(t, info.Metadata.SignalStrength)
	assert.Equal(t, -70.0, *info.Metadata.SignalStrength)
	assert.Equal(t, "2.3.0", info.Metadata.AppVersion)
}

// TestHub_Serve_IgnoresFramesBeforeRegistration tests the CONNECTING state.
func TestHub_Serve_IgnoresFramesBeforeRegistration(t *testing.T) {
	// Setup
	h := newTestHub(t, Config{})
	ft := newFakeTransport()
	go func() { _ = h.Serve(context.Background(), ft) }()

	// Execute
	ft.sendRaw(`garbage`)
	ft.sendRaw(`{"type":"heartbeat"}`)
	ft.sendRaw(`{"type":"register"}`)
	ft.sendRaw(`{"type":"register","device_id":"dev-1","metadata":{"model":"X1"}}`)

	// Assert
	ack := ft.next(t)
	assert.Equal(t, constants.FrameRegisterAck, ack["type"])
	assert.Equal(t, "dev-1", ack["device_id"])
	assert.NotEmpty(t, ack["session_id"])
	assert.True(t, h.IsOnline("dev-1"))

	info, ok := h.Device("dev-1")
	require.True(t, ok)
	assert.JSONEq(t, `{"model":"X1"}`, string(info.Metadata.Extra))
}

// TestHub_Serve_RegistrationTimeout tests that a silent connection is dropped.
func TestHub_Serve_RegistrationTimeout(t *testing.T) {
	// Setup
	h := newTestHub(t, Config{RegisterTimeout: 30 * time.Millisecond})
	ft := newFakeTransport()

	// Execute
	err := h.Serve(context.Background(), ft)

	// Assert
	assert.ErrorIs(t, err, ErrRegistrationTimeout)
	assert.True(t, ft.isClosed())
	assert.Equal(t, 0, h.SessionCount())
}

// TestHub_Serve_PeerCloseBeforeRegistration tests a connection that closes
// before registering.
func TestHub_Serve_PeerCloseBeforeRegistration(t *testing.T) {
	h := newTestHub(t, Config{})
	ft := newFakeTransport()
	ft.hangUp()

	err := h.Serve(context.Background(), ft)

	assert.NoError(t, err)
	assert.True(t, ft.isClosed())
}

// TestHub_Serve_IdleTimeout tests that a registered but silent device is dropped.
func TestHub_Serve_IdleTimeout(t *testing.T) {
	// Setup
	h := newTestHub(t, Config{IdleTimeout: 40 * time.Millisecond})
	ft, errCh := connect(t, h, "dev-1")

	// Execute
	err := waitLoop(t, errCh)

	// Assert
	assert.Error(t, err)
	assert.True(t, ft.isClosed())
	assert.False(t, h.IsOnline("dev-1"))
	assert.Equal(t, 0, h.SessionCount())
}

// TestHub_Serve_ContextCancelled tests that cancelling the serve context closes
// the session cleanly.
func TestHub_Serve_ContextCancelled(t *testing.T) {
	// Setup
	h := newTestHub(t, Config{})
	ft := newFakeTransport()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.Serve(ctx, ft) }()

	ft.send(t, models.RegisterFrame{Type: constants.FrameRegister, DeviceID: "dev-1"})
	ft.next(t)

	// Execute
	cancel()

	// Assert
	assert.NoError(t, waitLoop(t, errCh))
	assert.True(t, ft.isClosed())
	assert.Equal(t, 0, h.SessionCount())
}

// TestHub_ServeDevice tests registration by a known device id.
func TestHub_ServeDevice(t *testing.T) {
	// Setup
	h := newTestHub(t, Config{})
	ft := newFakeTransport()
	errCh := make(chan error, 1)

	// Execute
	go func() { errCh <- h.ServeDevice(context.Background(), ft, "dev-path") }()

	// Assert
	ack := ft.next(t)
	assert.Equal(t, constants.FrameRegisterAck, ack["type"])
	assert.Equal(t, "dev-path", ack["device_id"])
	assert.True(t, h.IsOnline("dev-path"))

	ft.hangUp()
	assert.NoError(t, waitLoop(t, errCh))
	assert.False(t, h.IsOnline("dev-path"))
}

// TestHub_ServeDevice_MissingID tests that an empty path id is rejected.
func TestHub_ServeDevice_MissingID(t *testing.T) {
	h := newTestHub(t, Config{})
	ft := newFakeTransport()

	err := h.ServeDevice(context.Background(), ft, "")

	assert.ErrorIs(t, err, ErrMissingDeviceID)
	assert.True(t, ft.isClosed())
}

// TestHub_MinAppVersion tests that outdated devices are accepted and flagged.
func TestHub_MinAppVersion(t *testing.T) {
	// Setup
	h := newTestHub(t, Config{MinAppVersion: ">= 2.0.0"})
	oldDevice := newFakeTransport()
	go func() { _ = h.Serve(context.Background(), oldDevice) }()

	// Execute
	oldDevice.send(t, models.RegisterFrame{Type: constants.FrameRegister, DeviceID: "old", AppVersion: "1.9.4"})
	oldDevice.next(t)
	_, _ = connect(t, h, "new")

	// Assert
	info, ok := h.Device("old")
	require.True(t, ok)
	assert.True(t, info.Metadata.Outdated)

	info, ok = h.Device("new")
	require.True(t, ok)
	assert.False(t, info.Metadata.Outdated)
}

// TestNewHub_InvalidMinAppVersion tests constraint validation.
func TestNewHub_InvalidMinAppVersion(t *testing.T) {
	_, err := NewHub(Config{MinAppVersion: "not a constraint"}, zerolog.Nop())
	assert.Error(t, err)
}

// TestHub_CommandTimeout tests defaulting and capping of caller timeouts.
func TestHub_CommandTimeout(t *testing.T) {
	h := newTestHub(t, Config{DefaultCommandTimeout: 5 * time.Second, MaxCommandTimeout: time.Minute})

	assert.Equal(t, 5*time.Second, h.CommandTimeout(0))
	assert.Equal(t, 5*time.Second, h.CommandTimeout(-time.Second))
	assert.Equal(t, 3*time.Second, h.CommandTimeout(3*time.Second))
	assert.Equal(t, time.Minute, h.CommandTimeout(time.Hour))
}

// TestHub_ListOnline tests the online set and counters.
func TestHub_ListOnline(t *testing.T) {
	h := newTestHub(t, Config{})
	connect(t, h, "dev-1")
	connect(t, h, "dev-2")

	assert.Equal(t, map[string]struct{}{"dev-1": {}, "dev-2": {}}, h.ListOnline())
	assert.Equal(t, 2, h.OnlineCount())
	assert.Equal(t, 2, h.SessionCount())
	assert.Len(t, h.Devices(), 2)
}

// TestHub_Shutdown tests that shutdown closes every session and waits for the
// loops.
func TestHub_Shutdown(t *testing.T) {
	// Setup
	h := newTestHub(t, Config{})
	a, aErr := connect(t, h, "dev-a")
	b, bErr := connect(t, h, "dev-b")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Execute
	err := h.Shutdown(ctx)

	// Assert
	require.NoError(t, err)
	assert.NoError(t, waitLoop(t, aErr))
	assert.NoError(t, waitLoop(t, bErr))
	assert.True(t, a.isClosed())
	assert.True(t, b.isClosed())
	assert.Equal(t, 0, h.SessionCount())
}
