package broadcast

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/domain"
)

var (
	ErrObserverClosed     = errors.New("observer connection closed")
	ErrObserverBacklogged = errors.New("observer outbox full")
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	outboxSize     = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// SnapshotFunc returns up to limit of the most recent measurements, newest first.
type SnapshotFunc func(ctx context.Context, limit int) ([]domain.MeasurementView, error)

type wsObserver struct {
	id   string
	conn *websocket.Conn
	out  chan domain.Event

	done      chan struct{}
	closeOnce sync.Once
}

func newWSObserver(conn *websocket.Conn) *wsObserver {
	return &wsObserver{
		id:   uuid.NewString(),
		conn: conn,
		out:  make(chan domain.Event, outboxSize),
		done: make(chan struct{}),
	}
}

func (o *wsObserver) ID() string { return o.id }

// Send only enqueues; the write happens on the observer's own writer goroutine.
func (o *wsObserver) Send(ev domain.Event) error {
	select {
	case <-o.done:
		return ErrObserverClosed
	default:
	}
	select {
	case o.out <- ev:
		return nil
	case <-o.done:
		return ErrObserverClosed
	default:
		return ErrObserverBacklogged
	}
}

func (o *wsObserver) close() {
	o.closeOnce.Do(func() {
		close(o.done)
		o.conn.Close()
	})
}

func (o *wsObserver) write(ev domain.Event) error {
	o.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return o.conn.WriteJSON(ev)
}

func (o *wsObserver) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		o.close()
	}()

	for {
		select {
		case <-o.done:
			return
		case ev := <-o.out:
			if err := o.write(ev); err != nil {
				log.Debug().Err(err).Str("observer", o.id).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			if err := o.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readPump discards client messages and returns once the connection is gone.
func (o *wsObserver) readPump() {
	o.conn.SetReadLimit(maxMessageSize)
	o.conn.SetReadDeadline(time.Now().Add(pongWait))
	o.conn.SetPongHandler(func(string) error {
		return o.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := o.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Handler upgrades observers to websockets. Each new observer first receives up to
// snapshotSize historical events, oldest first, and is then registered for live events.
// Events published between the snapshot read and registration are not replayed.
func Handler(hub *Hub, snapshot SnapshotFunc, snapshotSize int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		obs := newWSObserver(conn)
		defer obs.close()

		if err := sendSnapshot(r.Context(), obs, snapshot, snapshotSize); err != nil {
			log.Warn().Err(err).Str("observer", obs.id).Msg("historical snapshot not delivered")
			if errors.Is(err, errWrite) {
				return
			}
		}

		hub.Register(obs)
		defer hub.Unregister(obs)

		go obs.writePump()
		obs.readPump()
	})
}

var errWrite = errors.New("snapshot write failed")

func sendSnapshot(ctx context.Context, obs *wsObserver, snapshot SnapshotFunc, size int) error {
	if snapshot == nil || size <= 0 {
		return nil
	}
	views, err := snapshot(ctx, size)
	if err != nil {
		return err
	}
	for i := len(views) - 1; i >= 0; i-- {
		if err := obs.write(domain.HistoricalEvent(views[i])); err != nil {
			return errors.Join(errWrite, err)
		}
	}
	return nil
}
