// Package orch serializes every call operation through a single gate.
//
// The Coordinator owns one call.Machine. Public actions, inbound signaling
// and media engine events are funnelled into one goroutine, so at most one
// transition is in flight at a time. Local ICE candidates bypass the gate and
// go straight to the candidate buffer.
package orch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/callbroker/internal/app/call"
	"github.com/dkeye/callbroker/internal/core"
	"github.com/dkeye/callbroker/internal/domain"
	"github.com/dkeye/callbroker/internal/ice"
	"github.com/rs/zerolog/log"
)

var ErrClosed = errors.New("coordinator closed")

const eventQueueSize = 64

type Deps struct {
	Engine     core.MediaEngine
	Signaler   core.Signaler
	Notifier   core.Notifier
	Prefs      domain.MediaPreferences
	Devices    domain.DeviceSelection
	FlushDelay time.Duration
	BatchSize  int
}

type op struct {
	name string
	ctx  context.Context
	fn   func(ctx context.Context) error
	res  chan error
}

type attempt struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type Coordinator struct {
	machine    *call.Machine
	candidates *ice.Buffer
	notifier   core.Notifier

	ops    chan op
	events chan op
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once

	statusMu sync.RWMutex
	status   domain.CallStatus
	live     string

	callMu  sync.Mutex
	connMu  sync.Mutex
	connect *attempt
}

func New(deps Deps) *Coordinator {
	c := &Coordinator{
		notifier: deps.Notifier,
		ops:      make(chan op),
		events:   make(chan op, eventQueueSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if c.notifier == nil {
		c.notifier = core.NotifierFunc(func(core.Event) {})
	}
	signaler := deps.Signaler
	c.candidates = ice.NewBuffer(deps.FlushDelay, deps.BatchSize,
		func(ctx context.Context, peer domain.PeerID, batch []domain.IceCandidate) error {
			return signaler.Send(ctx, peer, domain.NewCandidates(batch...))
		})
	c.machine = call.NewMachine(call.Deps{
		Engine:     deps.Engine,
		Signaler:   deps.Signaler,
		Notifier:   core.NotifierFunc(c.onMachineEvent),
		Candidates: c.candidates,
		Prefs:      deps.Prefs,
		Devices:    deps.Devices,
		Listen:     c.listen,
	})
	c.status = c.machine.Status()
	go c.loop()
	return c
}

func (c *Coordinator) loop() {
	defer close(c.done)
	for {
		select {
		case <-c.quit:
			return
		case o := <-c.ops:
			o.res <- c.run(o)
		case o := <-c.events:
			if err := c.run(o); err != nil {
				log.Warn().Err(err).Str("module", "app.orch").Str("event", o.name).Msg("media event")
			}
		}
	}
}

// run executes one operation while holding the gate. A panic is contained
// here and leaves the machine Idle.
func (c *Coordinator) run(o op) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "app.orch").Str("op", o.name).Interface("panic", r).Msg("operation panicked")
			c.machine.Reset()
			err = fmt.Errorf("%s: internal error: %v", o.name, r)
		}
		c.publish()
	}()
	return o.fn(o.ctx)
}

func (c *Coordinator) submit(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	o := op{name: name, ctx: ctx, fn: fn, res: make(chan error, 1)}
	select {
	case c.ops <- o:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.quit:
		return ErrClosed
	}
	return <-o.res
}

// post queues an engine event without waiting for it to run.
func (c *Coordinator) post(name string, fn func(ctx context.Context) error) {
	select {
	case c.events <- op{name: name, ctx: context.Background(), fn: fn}:
	case <-c.quit:
	}
}

// onMachineEvent runs inside the gate, synchronously with the transition
// that produced e.
func (c *Coordinator) onMachineEvent(e core.Event) {
	c.publish()
	c.notifier.Notify(e)
}

func (c *Coordinator) publish() {
	st := c.machine.Status()
	live := ""
	if st.Session != nil && st.State != domain.CallStateIdle && st.State != domain.CallStateHangingUp {
		live = st.Session.ID
	}
	c.statusMu.Lock()
	c.status = st
	c.live = live
	c.statusMu.Unlock()
}

func (c *Coordinator) liveSession() string {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.live
}

// Status returns a copy of the last published call state.
func (c *Coordinator) Status() domain.CallStatus {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	st := c.status
	if st.Session != nil {
		s := *st.Session
		st.Session = &s
	}
	return st
}

// Close hangs up any call, best effort, and stops the gate. It is safe to
// call more than once.
func (c *Coordinator) Close(ctx context.Context) error {
	c.cancelConnect(false)
	err := c.submit(ctx, "close", func(ctx context.Context) error {
		switch st := c.machine.State(); {
		case st == domain.CallStateLocalRinging:
			return c.machine.Reject(ctx, "shutdown")
		case st.HasSession():
			return c.machine.Hangup(ctx)
		}
		return nil
	})
	c.once.Do(func() { close(c.quit) })
	<-c.done
	c.candidates.Clear()
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}
