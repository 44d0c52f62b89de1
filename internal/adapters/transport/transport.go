// Package transport is the endpoint side of the relay: a WebSocket channel
// with an HTTP POST fallback.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/callbroker/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var (
	ErrMissingCredentials = errors.New("room id and client id are required")
	ErrNotRegistered      = errors.New("transport not registered")
	ErrClosed             = errors.New("transport closed")
	ErrBackpressure       = errors.New("backpressure")
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

type Config struct {
	WSURL             string
	HTTPURL           string
	ReadLimit         int64
	PingPeriod        time.Duration
	ReconnectInterval time.Duration
	QueueSize         int
	HTTPClient        *http.Client
	Dialer            *websocket.Dialer
}

// Handler receives inbound signaling messages in relay order.
type Handler func(from domain.PeerID, msg domain.Message)

type queued struct {
	seq  uint64
	to   domain.PeerID
	typ  domain.MessageType
	data []byte
}

type Transport struct {
	cfg       Config
	ctx       context.Context
	cancel    context.CancelFunc
	reconnect *rate.Limiter

	mu         sync.Mutex
	state      State
	closed     bool
	registered bool
	room       domain.RoomID
	client     domain.ClientID
	link       *link
	pending    []queued
	seq        uint64
	posting    bool
	handler    Handler

	// sendMu keeps Send calls, and their fallback posts, in call order.
	sendMu sync.Mutex
}

func New(cfg Config) *Transport {
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = 54 * time.Second
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 2 * time.Second
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 32768
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 5 * time.Second}
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
		reconnect: rate.NewLimiter(rate.Every(cfg.ReconnectInterval), 1),
	}
}

// OnMessage sets the inbound handler. Set it before Open.
func (t *Transport) OnMessage(h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transport) Registered() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.registered
}

// Open dials the relay and returns once the socket is up. Credentials set
// earlier are registered right away.
func (t *Transport) Open(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.state != StateDisconnected {
		t.mu.Unlock()
		return nil
	}
	t.state = StateConnecting
	t.mu.Unlock()

	if err := t.dial(ctx); err != nil {
		t.mu.Lock()
		if t.state == StateConnecting {
			t.state = StateDisconnected
		}
		t.mu.Unlock()
		return err
	}
	return nil
}

func (t *Transport) dial(ctx context.Context) error {
	ws, _, err := t.cfg.Dialer.DialContext(ctx, t.cfg.WSURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.cfg.WSURL, err)
	}
	ws.SetReadLimit(t.cfg.ReadLimit)
	l := newLink(ws)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		l.close()
		return ErrClosed
	}
	t.link = l
	t.state = StateConnected
	t.registered = false
	go t.writePump(l)
	go t.readPump(l)
	log.Info().Str("module", "transport").Str("url", t.cfg.WSURL).Msg("connected")

	if t.room != "" && t.client != "" {
		if err := t.registerLocked(); err != nil {
			log.Error().Err(err).Str("module", "transport").Msg("register replay")
		}
	}
	return nil
}

// Register binds this endpoint to a room. Registering the same credentials
// again is a no-op.
func (t *Transport) Register(room domain.RoomID, client domain.ClientID) error {
	if room == "" || client == "" {
		return ErrMissingCredentials
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.room == room && t.client == client {
		log.Warn().Str("module", "transport").Str("room", string(room)).Str("client", string(client)).Msg("already registered")
		return nil
	}
	t.room, t.client = room, client
	if t.link == nil {
		return nil
	}
	return t.registerLocked()
}

func (t *Transport) registerLocked() error {
	b, err := json.Marshal(domain.ClientEnvelope{Cmd: domain.CmdRegister, RoomID: t.room, ClientID: t.client})
	if err != nil {
		return err
	}
	if err := t.link.trySend(b); err != nil {
		return err
	}
	t.registered = true
	log.Info().Str("module", "transport").Str("room", string(t.room)).Str("client", string(t.client)).Msg("registered")
	t.flushLocked()
	return nil
}

// flushLocked replays queued messages over the socket in order. It waits
// while a fallback post of the queue head is in flight.
func (t *Transport) flushLocked() {
	if t.posting {
		return
	}
	for len(t.pending) > 0 {
		if err := t.link.trySend(t.pending[0].data); err != nil {
			log.Warn().Err(err).Str("module", "transport").Int("pending", len(t.pending)).Msg("replay stalled")
			return
		}
		t.pending = t.pending[1:]
	}
}

// resume continues a stalled replay once the socket has drained a frame.
func (t *Transport) resume(l *link) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.link == l && t.registered && len(t.pending) > 0 {
		t.flushLocked()
	}
}

func (t *Transport) liveLocked() bool {
	return t.link != nil && t.registered
}

// usableLocked is liveLocked minus a socket that died before lost ran.
func (t *Transport) usableLocked() bool {
	return t.liveLocked() && !t.link.closed()
}

func (t *Transport) enqueueLocked(to domain.PeerID, typ domain.MessageType, data []byte) error {
	if len(t.pending) >= t.cfg.QueueSize {
		return fmt.Errorf("queue %s: %w", typ, ErrBackpressure)
	}
	t.seq++
	t.pending = append(t.pending, queued{seq: t.seq, to: to, typ: typ, data: data})
	return nil
}

// Send delivers msg to peer through the socket when registered, otherwise
// through the HTTP fallback. Messages never overtake each other: once
// anything is queued, later messages wait behind it, and a full socket
// buffer queues instead of racing the socket over HTTP. Queued messages go
// out on the next successful post or connection.
func (t *Transport) Send(ctx context.Context, to domain.PeerID, msg domain.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.room == "" || t.client == "" {
		t.mu.Unlock()
		return ErrNotRegistered
	}
	env := domain.ClientEnvelope{Cmd: domain.CmdSend, To: domain.ClientID(to), Msg: raw}
	data, err := json.Marshal(env)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	if t.liveLocked() {
		if len(t.pending) == 0 {
			err = t.link.trySend(data)
			if err == nil {
				t.mu.Unlock()
				log.Debug().Str("module", "transport").Str("to", string(to)).Str("type", string(msg.Type)).Msg("sent")
				return nil
			}
		}
		if len(t.pending) > 0 || errors.Is(err, ErrBackpressure) {
			err = t.enqueueLocked(to, msg.Type, data)
			t.flushLocked()
			t.mu.Unlock()
			return err
		}
		log.Warn().Err(err).Str("module", "transport").Str("type", string(msg.Type)).Msg("socket send failed, using fallback")
	}
	err = t.enqueueLocked(to, msg.Type, data)
	t.mu.Unlock()
	if err != nil {
		return err
	}
	t.drainFallback(ctx)
	return nil
}

// drainFallback posts the queue head by head until a post fails or the
// socket takes over.
func (t *Transport) drainFallback(ctx context.Context) {
	for {
		t.mu.Lock()
		if t.closed || len(t.pending) == 0 || t.usableLocked() {
			t.mu.Unlock()
			return
		}
		head := t.pending[0]
		room, client := t.room, t.client
		t.posting = true
		t.mu.Unlock()

		err := t.post(ctx, room, client, head.data)

		t.mu.Lock()
		t.posting = false
		if err == nil && len(t.pending) > 0 && t.pending[0].seq == head.seq {
			t.pending = t.pending[1:]
		}
		if t.usableLocked() {
			t.flushLocked()
		}
		n := len(t.pending)
		t.mu.Unlock()

		if err != nil {
			log.Warn().Err(err).Str("module", "transport").Str("type", string(head.typ)).Int("pending", n).Msg("fallback failed, queued")
			return
		}
		log.Debug().Str("module", "transport").Str("to", string(head.to)).Str("type", string(head.typ)).Msg("sent via fallback")
	}
}

// EndCall drops what is still queued for peer, except bye.
func (t *Transport) EndCall(peer domain.PeerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.pending[:0]
	for _, q := range t.pending {
		if q.to != peer || q.typ == domain.MessageBye {
			kept = append(kept, q)
		}
	}
	if dropped := len(t.pending) - len(kept); dropped > 0 {
		log.Info().Str("module", "transport").Str("peer", string(peer)).Int("dropped", dropped).Msg("dropped queued messages of finished call")
	}
	t.pending = kept
}

func (t *Transport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Close is safe to call more than once.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.cancel()
	l := t.link
	t.link = nil
	t.state = StateDisconnected
	t.registered = false
	t.mu.Unlock()

	if l != nil {
		_ = l.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		l.close()
	}
	log.Info().Str("module", "transport").Msg("closed")
	return nil
}

// lost handles the end of a socket and schedules a reconnect.
func (t *Transport) lost(l *link) {
	t.mu.Lock()
	if t.link != l {
		t.mu.Unlock()
		return
	}
	t.link = nil
	t.state = StateDisconnected
	t.registered = false
	closed := t.closed
	t.mu.Unlock()
	if !closed {
		log.Warn().Str("module", "transport").Msg("connection lost, reconnecting")
		go t.reconnectLoop()
	}
}

func (t *Transport) reconnectLoop() {
	for {
		if err := t.reconnect.Wait(t.ctx); err != nil {
			return
		}
		t.mu.Lock()
		if t.closed || t.state != StateDisconnected {
			t.mu.Unlock()
			return
		}
		t.state = StateConnecting
		t.mu.Unlock()

		err := t.dial(t.ctx)
		if err == nil {
			return
		}
		log.Warn().Err(err).Str("module", "transport").Msg("reconnect failed")
		t.mu.Lock()
		if t.state == StateConnecting {
			t.state = StateDisconnected
		}
		t.mu.Unlock()
		if errors.Is(err, ErrClosed) {
			return
		}
	}
}
