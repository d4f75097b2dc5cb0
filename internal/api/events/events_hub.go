package events

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/FACorreiaa/go-trip-planner/internal/types"
)

const writeWait = 10 * time.Second

// Hub delivers the terminal event of a plan to every websocket subscribed
// to it. Each subscription receives exactly one event and is then closed.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu          sync.Mutex
	subscribers map[uuid.UUID]map[*subscriber]struct{}
}

type subscriber struct {
	conn *websocket.Conn
	once sync.Once
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		subscribers: make(map[uuid.UUID]map[*subscriber]struct{}),
	}
}

// ServeWS upgrades the request and waits for the plan's terminal event.
// initial reports an event that already happened; it is consulted after the
// subscription is registered so nothing published in between is lost.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, planID uuid.UUID, initial func(ctx context.Context) (*types.PlanEvent, error)) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "WebSocket upgrade failed", slog.Any("error", err))
		return
	}

	sub := &subscriber{conn: conn}
	h.add(planID, sub)
	defer h.remove(planID, sub)

	if initial != nil {
		event, err := initial(r.Context())
		if err != nil {
			h.logger.ErrorContext(r.Context(), "Failed to load plan state for subscriber", slog.String("plan_id", planID.String()), slog.Any("error", err))
			sub.close(websocket.CloseInternalServerErr, "plan state unavailable")
			return
		}
		if event != nil {
			h.deliver(sub, *event)
			return
		}
	}

	// Keeps the connection until the client leaves or the event closes it.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	sub.close(websocket.CloseNormalClosure, "")
}

// Publish sends the event to every subscriber of the plan and drops them.
func (h *Hub) Publish(event types.PlanEvent) {
	h.mu.Lock()
	subs := h.subscribers[event.PlanID]
	delete(h.subscribers, event.PlanID)
	h.mu.Unlock()

	for sub := range subs {
		h.deliver(sub, event)
	}
	h.logger.Debug("Plan event published",
		slog.String("plan_id", event.PlanID.String()),
		slog.String("event", event.Event),
		slog.Int("subscribers", len(subs)))
}

// Subscribers reports how many connections wait on a plan.
func (h *Hub) Subscribers(planID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[planID])
}

func (h *Hub) add(planID uuid.UUID, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subscribers[planID] == nil {
		h.subscribers[planID] = make(map[*subscriber]struct{})
	}
	h.subscribers[planID][sub] = struct{}{}
}

func (h *Hub) remove(planID uuid.UUID, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.subscribers[planID]
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.subscribers, planID)
	}
}

func (h *Hub) deliver(sub *subscriber, event types.PlanEvent) {
	sub.once.Do(func() {
		_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := sub.conn.WriteJSON(event); err != nil {
			h.logger.Warn("Failed to deliver plan event", slog.String("plan_id", event.PlanID.String()), slog.Any("error", err))
		}
		closeWith(sub.conn, websocket.CloseNormalClosure, "")
	})
}

func (s *subscriber) close(code int, text string) {
	s.once.Do(func() {
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		closeWith(s.conn, code, text)
	})
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
	_ = conn.Close()
}
