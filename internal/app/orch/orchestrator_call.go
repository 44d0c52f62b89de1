package orch

import (
	"context"
	"errors"

	"github.com/dkeye/callbroker/internal/app/call"
	"github.com/dkeye/callbroker/internal/domain"
	"github.com/rs/zerolog/log"
)

// Call places an outgoing call. A connect attempt still in flight is
// canceled and awaited first; the new attempt is itself canceled by Hangup,
// Close or the next Call.
func (c *Coordinator) Call(ctx context.Context, peer domain.PeerID, video bool) error {
	c.callMu.Lock()
	c.cancelConnect(true)
	actx, a := c.beginConnect(ctx)
	c.callMu.Unlock()
	defer c.endConnect(a)

	return c.submit(ctx, string(call.ActionCall), func(context.Context) error {
		return c.machine.Call(actx, peer, video)
	})
}

func (c *Coordinator) beginConnect(ctx context.Context) (context.Context, *attempt) {
	actx, cancel := context.WithCancel(ctx)
	a := &attempt{cancel: cancel, done: make(chan struct{})}
	c.connMu.Lock()
	c.connect = a
	c.connMu.Unlock()
	return actx, a
}

func (c *Coordinator) endConnect(a *attempt) {
	c.connMu.Lock()
	if c.connect == a {
		c.connect = nil
	}
	c.connMu.Unlock()
	a.cancel()
	close(a.done)
}

// cancelConnect signals the in-flight connect attempt, if any, and
// optionally waits until it has unwound.
func (c *Coordinator) cancelConnect(wait bool) bool {
	c.connMu.Lock()
	a := c.connect
	c.connMu.Unlock()
	if a == nil {
		return false
	}
	a.cancel()
	log.Debug().Str("module", "app.orch").Bool("wait", wait).Msg("canceling connect attempt")
	if wait {
		<-a.done
	}
	return true
}

func (c *Coordinator) Answer(ctx context.Context) error {
	return c.submit(ctx, string(call.ActionAnswer), c.machine.Answer)
}

func (c *Coordinator) Reject(ctx context.Context, reason string) error {
	return c.submit(ctx, string(call.ActionReject), func(ctx context.Context) error {
		return c.machine.Reject(ctx, reason)
	})
}

// Hangup ends the call. Hanging up while the connect attempt is still
// running cancels it; the attempt then unwinds to Idle on its own.
func (c *Coordinator) Hangup(ctx context.Context) error {
	canceled := c.cancelConnect(false)
	err := c.submit(ctx, string(call.ActionHangup), c.machine.Hangup)
	if canceled && errors.Is(err, call.ErrInvalidState) {
		return nil
	}
	return err
}

func (c *Coordinator) Hold(ctx context.Context) error {
	return c.submit(ctx, string(call.ActionHold), func(context.Context) error {
		return c.machine.Hold()
	})
}

func (c *Coordinator) Resume(ctx context.Context) error {
	return c.submit(ctx, string(call.ActionResume), func(context.Context) error {
		return c.machine.Resume()
	})
}

// OnRemoteMessage hands one inbound signaling message to the machine.
func (c *Coordinator) OnRemoteMessage(ctx context.Context, from domain.PeerID, msg domain.Message) error {
	return c.submit(ctx, "message:"+string(msg.Type), func(ctx context.Context) error {
		return c.machine.HandleMessage(ctx, from, msg)
	})
}

func (c *Coordinator) ConfigureMicrophone(ctx context.Context, muted bool) error {
	return c.submit(ctx, "microphone", func(context.Context) error {
		return c.machine.SetMicrophoneMuted(muted)
	})
}

func (c *Coordinator) ConfigureVideo(ctx context.Context, enabled bool) error {
	return c.submit(ctx, "video", func(context.Context) error {
		return c.machine.SetVideoEnabled(enabled)
	})
}

// SelectDevices records the devices for the next session and switches the
// camera of a running call.
func (c *Coordinator) SelectDevices(ctx context.Context, sel domain.DeviceSelection) error {
	return c.submit(ctx, "devices", func(context.Context) error {
		return c.machine.SelectDevices(sel)
	})
}

// SwitchCamera changes only the camera of the current selection.
func (c *Coordinator) SwitchCamera(ctx context.Context, deviceID string) error {
	return c.submit(ctx, "camera", func(context.Context) error {
		sel := c.machine.Status().Devices
		sel.Camera = deviceID
		return c.machine.SelectDevices(sel)
	})
}
