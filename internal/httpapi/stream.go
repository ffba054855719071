package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/p-n-ai/pai-lms/internal/events"
	"github.com/p-n-ai/pai-lms/internal/platform/apierr"
)

const writeTimeout = 5 * time.Second

// handleStream upgrades to a websocket and pushes a progress snapshot
// whenever the student's ledger for the course changes. The first frame is
// the current snapshot.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.broker == nil {
		http.NotFound(w, r)
		return
	}
	student, course := r.PathValue("student"), r.PathValue("course")

	// Subscribe before the initial sync so no change slips in between.
	msgs, unsubscribe, err := s.broker.Subscribe(r.Context(), events.Channel(student, course))
	if err != nil {
		writeError(w, r, apierr.Computation("subscribe to progress", err))
		return
	}
	defer unsubscribe()

	snap, err := s.learning.GetProgressSnapshot(r.Context(), student, course)
	if err != nil {
		writeError(w, r, err)
		return
	}
	first, err := json.Marshal(snap)
	if err != nil {
		writeError(w, r, err)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "student_id", student, "course_id", course, "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())
	if err := writeFrame(ctx, conn, first); err != nil {
		return
	}
	last := first

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "progress stream closed")
				return
			}
			if bytes.Equal(msg, last) {
				continue
			}
			if err := writeFrame(ctx, conn, msg); err != nil {
				slog.Debug("progress stream write failed", "student_id", student, "error", err)
				return
			}
			last = msg
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}
