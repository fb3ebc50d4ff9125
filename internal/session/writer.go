package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

// Sink accepts outbound frames without blocking the caller.
type Sink interface {
	Send(msg map[string]any)
}

// Writer owns the outbound half of the socket. Producers enqueue frames
// from any goroutine; only the Run loop touches the connection.
type Writer struct {
	conn *websocket.Conn

	mu     sync.Mutex
	queue  []map[string]any
	notify chan struct{}
}

func NewWriter(conn *websocket.Conn) *Writer {
	return &Writer{
		conn:   conn,
		notify: make(chan struct{}, 1),
	}
}

// Send enqueues one frame. It never blocks.
func (w *Writer) Send(msg map[string]any) {
	w.mu.Lock()
	w.queue = append(w.queue, msg)
	w.mu.Unlock()
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// Run drains the queue onto the socket until cancelled or the socket dies.
func (w *Writer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.notify:
		}

		w.mu.Lock()
		batch := w.queue
		w.queue = nil
		w.mu.Unlock()

		for _, msg := range batch {
			data, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return err
			}
		}
	}
}
