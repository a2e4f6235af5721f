package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/Vladislav15-maker/English-family-app-sub000/internal/progress"
)

const (
	subscriberBuffer = 64
	writeTimeout     = 5 * time.Second
)

// Hub fans progress events out to websocket subscribers. It implements
// progress.EventLogger so the store can publish to it directly.
type Hub struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	studentID string // empty means every student
	events    chan progress.Event
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{})}
}

// LogEvent delivers the event to every matching subscriber. Slow subscribers
// miss events rather than block the store.
func (h *Hub) LogEvent(event progress.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		if sub.studentID != "" && sub.studentID != event.StudentID {
			continue
		}
		select {
		case sub.events <- event:
		default:
			slog.Warn("dropping progress event for slow subscriber", "type", event.EventType, "student_id", event.StudentID)
		}
	}
	return nil
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) subscribe(studentID string) *subscriber {
	sub := &subscriber{studentID: studentID, events: make(chan progress.Event, subscriberBuffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

// ServeHTTP upgrades to a websocket and streams events as JSON until the
// client goes away. ?student=<id> limits the stream to one student.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	sub := h.subscribe(r.URL.Query().Get("student"))
	defer h.unsubscribe(sub)

	// Clients only listen; CloseRead handles their close frames.
	ctx := conn.CloseRead(r.Context())

	if err := h.stream(ctx, conn, sub); err != nil {
		slog.Debug("event stream closed", "error", err)
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func (h *Hub) stream(ctx context.Context, conn *websocket.Conn, sub *subscriber) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-sub.events:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, event)
			cancel()
			if err != nil {
				return fmt.Errorf("write event: %w", err)
			}
		}
	}
}
