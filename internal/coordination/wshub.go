package coordination

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kdapp-net/auth-episode/internal/telemetry"
)

// subscriberBuffer bounds how many undelivered messages a slow WebSocket
// client accumulates before the hub starts dropping its oldest ones. This
// is deliberately small: a client that falls this far behind is expected
// to re-sync via GET /auth/status rather than trust replayed history.
const subscriberBuffer = 16

// Hub fans engine events out to connected WebSocket clients. It generalizes
// the teacher stack's per-user ConnectionHub (pkg/rpc/connection_hub.go) to
// per-episode-subscriber delivery: a client may ask for one episode's
// events (?episode_id=N) or, with no filter, every episode's events, as
// spec.md's GET /ws describes. Publish never blocks on a slow subscriber.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]*subscriber

	logger telemetry.Logger
}

type subscriber struct {
	id            string
	episodeFilter *uint32
	send          chan []byte
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{
		subs:   make(map[string]*subscriber),
		logger: telemetry.NewLogger("coordination.wshub"),
	}
}

// Publish delivers msg to every subscriber whose filter matches episodeID.
// Delivery is non-blocking and lossy: a subscriber whose buffer is full has
// its oldest queued message dropped to make room, so Publish never waits on
// a slow client and never blocks the engine's single writer goroutine.
func (h *Hub) Publish(episodeID uint32, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if s.episodeFilter != nil && *s.episodeFilter != episodeID {
			continue
		}
		deliver(s.send, msg)
	}
}

func deliver(ch chan []byte, msg []byte) {
	for {
		select {
		case ch <- msg:
			return
		default:
		}
		select {
		case <-ch:
		default:
			return
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The protocol's WebSocket feed is read-only server push with no
	// credentials in the handshake; origin checking is left to whatever
	// reverse proxy terminates TLS in front of this process.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
	wsPongWait   = 60 * time.Second
)

// ServeWS upgrades the request to a WebSocket and blocks, pumping events to
// the new subscriber until the connection closes or r.Context() is done.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	var filter *uint32
	if raw := r.URL.Query().Get("episode_id"); raw != "" {
		id, err := parseEpisodeIDQuery(raw)
		if err != nil {
			http.Error(w, "invalid episode_id", http.StatusBadRequest)
			return
		}
		filter = &id
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := &subscriber{id: uuid.NewString(), episodeFilter: filter, send: make(chan []byte, subscriberBuffer)}
	h.add(sub)
	defer h.remove(sub.id)

	// The client never sends anything meaningful on this connection; the
	// read loop exists only to surface close frames and keep pong
	// deadlines fresh.
	go func() {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(wsPongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-sub.send:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[s.id] = s
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

// Count reports the number of currently connected WebSocket subscribers,
// for the coordination layer's connected-clients gauge.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
