package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/spinalsurgery-research/acquisition-service/internal/domain"
)

const (
	// streamWriteWait bounds a single frame write.
	streamWriteWait = 10 * time.Second
	// streamPongWait is how long the connection may go without a pong.
	streamPongWait = 60 * time.Second
	// streamPingPeriod must be shorter than streamPongWait.
	streamPingPeriod = (streamPongWait * 9) / 10
	// subscribeWait bounds how long the client has to send its
	// subscription frame after connecting.
	subscribeWait = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// subscriptionFrame is the first message a client sends on the stream.
// Caller identifies who is watching; replay requests the persisted
// events.log before live delivery.
type subscriptionFrame struct {
	Caller string `json:"caller"`
	Replay bool   `json:"replay"`
}

// streamFrame is the envelope for every server-to-client message.
type streamFrame struct {
	Type    string                `json:"type"` // replay, event, dropped, error
	Event   *domain.ProgressEvent `json:"event,omitempty"`
	Message string                `json:"message,omitempty"`
}

// streamProgress handles GET /acquisition-jobs/{jobID}/stream. The
// connection upgrades to a websocket; the client sends a subscription
// frame, optionally receives a replay of events.log, then live events.
// A client that cannot keep up is disconnected and must reconnect with
// replay to recover the events it missed.
func (s *Server) streamProgress(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseUUID(w, chi.URLParam(r, "jobID"), "job_id")
	if !ok {
		return
	}
	if _, err := s.manager.Get(r.Context(), jobID); err != nil {
		writeDomainError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	var frame subscriptionFrame
	conn.SetReadDeadline(time.Now().Add(subscribeWait))
	if err := conn.ReadJSON(&frame); err != nil || frame.Caller == "" {
		s.writeStreamFrame(conn, streamFrame{Type: "error", Message: "subscription frame with caller identity required"})
		return
	}
	logger := s.logger.With().
		Str("job_id", jobID.String()).
		Str("caller", frame.Caller).
		Logger()

	s.metrics.SubscribersActive.Inc()
	defer s.metrics.SubscribersActive.Dec()

	sub := s.bus.Subscribe(jobID)
	defer s.bus.Unsubscribe(sub)

	// Replay the persisted log before live events. Live events that
	// raced the replay are filtered by timestamp; per-job emission is
	// sequential so timestamps are strictly ordered.
	var lastReplayed time.Time
	if frame.Replay {
		events, err := s.store.ReadEvents(jobID)
		if err != nil {
			s.writeStreamFrame(conn, streamFrame{Type: "error", Message: "event log unavailable"})
			return
		}
		for i := range events {
			event := events[i]
			if !s.writeStreamFrame(conn, streamFrame{Type: "replay", Event: &event}) {
				return
			}
			lastReplayed = event.Timestamp
			if event.IsTerminal() {
				return
			}
		}
	}

	// Reader: consume pongs and notice the client going away.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(streamPingPeriod)
	defer pingTicker.Stop()

	for {
		select {
		case <-readerDone:
			return

		case <-r.Context().Done():
			return

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case event, open := <-sub.Events():
			if !open {
				if sub.Dropped() {
					s.metrics.SubscribersDropped.Inc()
					logger.Warn().Msg("dropping slow progress subscriber")
					s.writeStreamFrame(conn, streamFrame{
						Type:    "dropped",
						Message: "subscriber fell behind; reconnect with replay to recover",
					})
				}
				return
			}
			if frame.Replay && !event.Timestamp.After(lastReplayed) {
				continue
			}
			if !s.writeStreamFrame(conn, streamFrame{Type: "event", Event: &event}) {
				return
			}
			if event.IsTerminal() {
				return
			}
		}
	}
}

// writeStreamFrame sends one frame, reporting false when the
// connection is no longer usable.
func (s *Server) writeStreamFrame(conn *websocket.Conn, frame streamFrame) bool {
	conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := conn.WriteJSON(frame); err != nil {
		return false
	}
	return true
}
