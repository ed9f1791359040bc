package api

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"trainhub/internal/apperrors"
	"trainhub/internal/watch"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients connect cross-origin from the dashboard.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsSubscriber adapts one WebSocket connection to the watch.Subscriber
// interface. Writes are serialized with a mutex because the hub's poll loop
// and the connected ack may send concurrently with the close path.
type wsSubscriber struct {
	conn *websocket.Conn

	mu   sync.Mutex
	done chan struct{}
	once sync.Once
}

func newWSSubscriber(conn *websocket.Conn) *wsSubscriber {
	return &wsSubscriber{
		conn: conn,
		done: make(chan struct{}),
	}
}

// Send writes one message to the peer. A terminal message (finished or
// error) also signals the handler to tear the connection down.
func (s *wsSubscriber) Send(msg watch.Message) error {
	s.mu.Lock()
	s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	err := s.conn.WriteJSON(msg)
	s.mu.Unlock()

	if msg.Type == watch.TypeFinished || msg.Type == watch.TypeError {
		s.signalDone()
	}
	return err
}

func (s *wsSubscriber) signalDone() {
	s.once.Do(func() { close(s.done) })
}

// WatchTask handles GET /ws/training/{taskId} - the live progress channel.
// The connection receives a connected ack, progress messages as the row
// changes, and one finished message before the server closes the socket.
// Unknown task ids get a single error message and an immediate close.
func (h *Handler) WatchTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("taskId")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		slog.Warn("WebSocket upgrade failed", "taskId", taskID, "error", err)
		return
	}
	defer conn.Close()

	sub := newWSSubscriber(conn)

	if err := h.hub.Subscribe(r.Context(), taskID, sub); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			sub.Send(watch.Error("task " + taskID + " not found"))
		} else {
			slog.Warn("WebSocket subscribe failed", "taskId", taskID, "error", err)
		}
		return
	}
	defer h.hub.Unsubscribe(taskID, sub)

	// Reader goroutine detects client disconnects. Inbound payloads are
	// not part of the protocol and are discarded.
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		conn.SetReadLimit(512)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-sub.done:
		// Terminal message delivered, close the channel cleanly.
		sub.mu.Lock()
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		sub.mu.Unlock()
	case <-disconnected:
	case <-r.Context().Done():
	}
}
