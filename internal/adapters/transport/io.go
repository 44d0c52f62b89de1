package transport

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/dkeye/callbroker/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	sendBuffer = 32
	writeWait  = 5 * time.Second
)

// link is one WebSocket connection and its outbound queue.
type link struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newLink(ws *websocket.Conn) *link {
	return &link{ws: ws, send: make(chan []byte, sendBuffer), done: make(chan struct{})}
}

func (l *link) trySend(b []byte) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	select {
	case l.send <- b:
		return nil
	default:
		return ErrBackpressure
	}
}

func (l *link) closed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

func (l *link) close() {
	l.once.Do(func() {
		close(l.done)
		_ = l.ws.Close()
	})
}

func (t *Transport) writePump(l *link) {
	ticker := time.NewTicker(t.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		l.close()
	}()
	for {
		select {
		case <-l.done:
			return
		case data := <-l.send:
			if err := l.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "transport").Msg("writePump set deadline")
				return
			}
			if err := l.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "transport").Msg("writePump write error")
				return
			}
			if len(l.send) == 0 {
				t.resume(l)
			}
		case <-ticker.C:
			if err := l.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "transport").Msg("writePump ping")
				return
			}
		}
	}
}

func (t *Transport) readPump(l *link) {
	defer func() {
		l.close()
		t.lost(l)
	}()

	pongWait := t.cfg.PingPeriod * 10 / 9
	_ = l.ws.SetReadDeadline(time.Now().Add(pongWait))
	l.ws.SetPongHandler(func(string) error {
		return l.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := l.ws.ReadMessage()
		if err != nil {
			select {
			case <-l.done:
			default:
				log.Error().Err(err).Str("module", "transport").Msg("readPump read error")
			}
			return
		}
		_ = l.ws.SetReadDeadline(time.Now().Add(pongWait))
		t.dispatch(data)
	}
}

func (t *Transport) dispatch(data []byte) {
	var env domain.RelayEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "transport").Msg("bad relay envelope")
		return
	}
	if env.Error != "" {
		log.Warn().Str("module", "transport").Str("error", env.Error).Msg("relay error")
		if env.Error == domain.RelayErrRoomFull || env.Error == domain.RelayErrNotRegistered {
			t.mu.Lock()
			t.registered = false
			t.mu.Unlock()
		}
		return
	}
	if len(env.Msg) == 0 {
		log.Warn().Str("module", "transport").Str("from", string(env.From)).Msg("relay envelope without message")
		return
	}
	msg, err := domain.DecodeMessage(env.Msg)
	if err != nil {
		log.Warn().Err(err).Str("module", "transport").Str("from", string(env.From)).Msg("dropping malformed message")
		return
	}

	t.mu.Lock()
	h := t.handler
	t.mu.Unlock()
	if h == nil {
		log.Debug().Str("module", "transport").Str("type", string(msg.Type)).Msg("no handler")
		return
	}
	h(domain.PeerID(env.From), msg)
}
