package web

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"loglens/internal/logindex"
	"loglens/internal/record"
)

type wsTailMessage struct {
	Type    string         `json:"type"` // status, record, error
	Event   string         `json:"event,omitempty"`
	Code    string         `json:"code,omitempty"`
	Message string         `json:"message,omitempty"`
	Record  *record.Record `json:"record,omitempty"`
	Time    time.Time      `json:"time,omitempty"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     allowWSOrigin,
}

func allowWSOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil || originURL.Host == "" {
		return false
	}

	return strings.EqualFold(originURL.Host, r.Host)
}

// handleSessionTailWS streams new records of /ws/sessions/{id}/tail as they
// are appended to the log. Only terminated lines are delivered; a partial
// trailing line is held back until its terminator arrives.
func (s *Server) handleSessionTailWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorize(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/ws/sessions/")
	id, op, _ := strings.Cut(rest, "/")
	if id == "" || op != "tail" {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "expected /ws/sessions/{id}/tail")
		return
	}

	path, err := s.sessions.Resolve(id)
	if err != nil {
		writeIndexError(w, err)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	webLog.Info("tail_stream_opened", slog.String("session_id", id))
	tailer := logindex.NewTailer(path, s.cfg.TailPoll)
	go tailer.Start()
	defer tailer.Stop()

	// Drain client frames so close handshakes are noticed; any read error
	// means the client is gone.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	_ = conn.WriteJSON(wsTailMessage{
		Type:  "status",
		Event: "connected",
		Time:  time.Now().UTC(),
	})

	for {
		select {
		case rec, ok := <-tailer.Records():
			if !ok {
				// Tailer stopped; report the fatal error if there is one.
				select {
				case terr := <-tailer.Errors():
					_ = conn.WriteJSON(wsTailMessage{
						Type:    "error",
						Code:    tailErrorCode(terr),
						Message: terr.Error(),
						Time:    time.Now().UTC(),
					})
				default:
				}
				return
			}
			if err := conn.WriteJSON(wsTailMessage{Type: "record", Record: &rec}); err != nil {
				return
			}
		case <-clientGone:
			return
		case <-s.baseCtx.Done():
			return
		}
	}
}

func tailErrorCode(err error) string {
	switch {
	case errors.Is(err, logindex.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, logindex.ErrCorruptIndex):
		return "CORRUPT_INDEX"
	case errors.Is(err, logindex.ErrIO):
		return "IO_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}
