package console

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/hlog"

	"github.com/seanblong/codelens/internal/render"
	"github.com/seanblong/codelens/pkg/models"
)

const (
	eventsWriteWait = 10 * time.Second
	eventsPongWait  = 60 * time.Second
	eventsPingEvery = (eventsPongWait * 9) / 10
)

// The default origin check only admits same-host pages, which is what the
// session cookie needs.
var eventsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type event struct {
	Type    string      `json:"type"`
	Seq     uint64      `json:"seq,omitempty"`
	Role    models.Role `json:"role,omitempty"`
	Content string      `json:"content,omitempty"`
	HTML    string      `json:"html,omitempty"`
}

// handleEvents streams transcript entries committed after the connection
// opens. The stream ends when the client goes away or the session expires.
// Watching never creates a session; an unknown one is answered with 404.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.existingSession(r)
	if !ok {
		http.Error(w, "No session", http.StatusNotFound)
		return
	}
	logger := hlog.FromRequest(r)

	conn, err := eventsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug().Err(err).Msg("events upgrade failed")
		return
	}
	defer conn.Close()

	msgs, cancel := sess.Subscribe()
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(eventsPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(eventsPongWait))
	})

	// The page never sends anything; reading keeps pongs and close frames
	// flowing.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(ev event) error {
		if err := conn.SetWriteDeadline(time.Now().Add(eventsWriteWait)); err != nil {
			return err
		}
		return conn.WriteJSON(ev)
	}

	if err := write(event{Type: "subscribed"}); err != nil {
		return
	}

	ticker := time.NewTicker(eventsPingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-readerDone:
			return
		case m, ok := <-msgs:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
				return
			}
			ev, err := s.messageEvent(m)
			if err != nil {
				logger.Error().Err(err).Msg("render transcript entry")
				continue
			}
			if err := write(ev); err != nil {
				logger.Debug().Err(err).Msg("events write failed")
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(eventsWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) messageEvent(m models.ChatMessage) (event, error) {
	var buf bytes.Buffer
	if err := s.html.Message(&buf, render.BuildMessage(m)); err != nil {
		return event{}, err
	}
	return event{Type: "message", Seq: m.Seq, Role: m.Role, Content: m.Content, HTML: buf.String()}, nil
}
