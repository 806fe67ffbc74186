package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/speedhud/gohud/internal/app"
	"github.com/speedhud/gohud/internal/events"
	"github.com/speedhud/gohud/internal/metrics"
	"github.com/speedhud/gohud/pkg/sigchan"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// the dashboard is served off the same listener on a LAN device
	CheckOrigin: func(r *http.Request) bool { return true },
}

// frame is one push message on the live feed.
type frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// hub fans application events out to websocket clients. Display updates are
// coalesced through a signal channel: a burst of snapshots collapses into
// one push carrying the newest state. Discrete events (trips, lookups,
// power) queue up and are dropped under pressure; the next display frame
// carries the current truth anyway.
type hub struct {
	app *app.App

	mu      sync.Mutex
	clients map[*client]struct{}

	displayC *sigchan.Chan
	eventC   chan frame
}

func newHub(application *app.App) *hub {
	h := &hub{
		app:      application,
		clients:  make(map[*client]struct{}),
		displayC: sigchan.New(1),
		eventC:   make(chan frame, 64),
	}
	application.OnEvent(h.onEvent)
	return h
}

// onEvent runs on pipeline goroutines; it only signals, it never blocks.
func (h *hub) onEvent(ev any) {
	switch e := ev.(type) {
	case events.DisplayUpdatedEvent:
		h.displayC.Emit()
	case events.LookupTriggeredEvent:
		h.offer(frame{Type: "lookup_triggered", Data: e})
	case events.LookupCompletedEvent:
		h.offer(frame{Type: "lookup_completed", Data: e})
	case events.TripStartedEvent:
		h.offer(frame{Type: "trip_started", Data: e})
	case events.TripEndedEvent:
		h.offer(frame{Type: "trip_ended", Data: e})
	case events.PowerChangedEvent:
		h.offer(frame{Type: "power", Data: e})
	}
}

func (h *hub) offer(f frame) {
	select {
	case h.eventC <- f:
	default:
	}
}

func (h *hub) start(ctx context.Context) {
	go h.run(ctx)
}

func (h *hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-h.displayC.C():
			h.broadcast(frame{Type: "display", Data: h.app.State().Load()})
		case f := <-h.eventC:
			h.broadcast(f)
		}
	}
}

func (h *hub) broadcast(f frame) {
	b, err := json.Marshal(f)
	if err != nil {
		log.Errorf("marshal push frame: %v", err)
		return
	}

	h.mu.Lock()
	for cl := range h.clients {
		select {
		case cl.send <- b:
		default:
			// a stalled client must not hold up the feed for the rest
			delete(h.clients, cl)
			close(cl.send)
			metrics.PushClients.Add(-1)
			log.Warnf("websocket client dropped: send queue full")
		}
	}
	h.mu.Unlock()
}

func (h *hub) add(conn *websocket.Conn) {
	cl := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()
	metrics.PushClients.Add(1)

	// greet with the current snapshot so the page renders before the next fix
	if b, err := json.Marshal(frame{Type: "display", Data: h.app.State().Load()}); err == nil {
		cl.send <- b
	}

	go cl.writeLoop()
	go cl.readLoop(h)
}

func (h *hub) remove(cl *client) {
	h.mu.Lock()
	if _, ok := h.clients[cl]; ok {
		delete(h.clients, cl)
		close(cl.send)
		metrics.PushClients.Add(-1)
	}
	h.mu.Unlock()
	_ = cl.conn.Close()
}

func (h *hub) closeAll() {
	h.mu.Lock()
	for cl := range h.clients {
		delete(h.clients, cl)
		close(cl.send)
		metrics.PushClients.Add(-1)
	}
	h.mu.Unlock()
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (s *Server) handleLive(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warnf("websocket upgrade failed: %v", err)
		return
	}
	s.hub.add(conn)
}

func (cl *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()

	for {
		select {
		case b, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop drains the connection for control frames. The feed is one-way;
// anything the client sends besides pongs is ignored.
func (cl *client) readLoop(h *hub) {
	defer h.remove(cl)

	cl.conn.SetReadLimit(512)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}
