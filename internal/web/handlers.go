package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"loglens/internal/logindex"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiErrorResponse{
		Error: apiError{
			Code:    code,
			Message: message,
		},
	})
}

// writeIndexError maps the indexing error taxonomy onto HTTP statuses.
func writeIndexError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, logindex.ErrNotFound):
		writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "session not found")
	case errors.Is(err, logindex.ErrCorruptIndex):
		writeAPIError(w, http.StatusConflict, "CORRUPT_INDEX", "index no longer matches the file; rebuild required")
	case errors.Is(err, logindex.ErrIO):
		writeAPIError(w, http.StatusInternalServerError, "IO_ERROR", "failed to read session log")
	default:
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

type sessionListResponse struct {
	Sessions []sessionSummary `json:"sessions"`
}

type sessionSummary struct {
	ID         string `json:"id"`
	Size       int64  `json:"size"`
	Modified   string `json:"modified"`
	IndexState string `json:"index_state"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorize(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	sessions, err := s.sessions.List()
	if err != nil {
		writeIndexError(w, err)
		return
	}

	resp := sessionListResponse{Sessions: make([]sessionSummary, 0, len(sessions))}
	for _, sess := range sessions {
		resp.Sessions = append(resp.Sessions, sessionSummary{
			ID:         sess.ID,
			Size:       sess.Size,
			Modified:   sess.Modified.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			IndexState: s.indexes.State(sess.Path).String(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSessionByID dispatches /api/sessions/{id}/{op}.
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	id, op, _ := strings.Cut(rest, "/")
	if id == "" || op == "" || strings.Contains(op, "/") {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "expected /api/sessions/{id}/{index|range|full|rebuild}")
		return
	}

	switch op {
	case "index":
		s.requireGet(w, r, func() { s.handleIndex(w, r, id) })
	case "range":
		s.requireGet(w, r, func() { s.handleRange(w, r, id) })
	case "full":
		s.requireGet(w, r, func() { s.handleFull(w, r, id) })
	case "rebuild":
		if r.Method != http.MethodPost {
			writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
			return
		}
		s.handleRebuild(w, r, id)
	default:
		writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "unknown operation")
	}
}

func (s *Server) requireGet(w http.ResponseWriter, r *http.Request, next func()) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	next()
}

type indexResponse struct {
	ID           string           `json:"id"`
	State        string           `json:"state"`
	TotalLines   int64            `json:"total_lines"`
	IndexedBytes int64            `json:"indexed_bytes"`
	Entries      []logindex.Entry `json:"entries"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request, id string) {
	ix, err := s.index(id)
	if err != nil {
		writeIndexError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, indexResponse{
		ID:           id,
		State:        ix.State().String(),
		TotalLines:   ix.Len(),
		IndexedBytes: ix.IndexedBytes(),
		Entries:      ix.Entries(),
	})
}

type rangeResponse struct {
	Start int64    `json:"start"`
	End   int64    `json:"end"`
	Lines []string `json:"lines"`
}

func (s *Server) handleRange(w http.ResponseWriter, r *http.Request, id string) {
	start, err := strconv.ParseInt(r.URL.Query().Get("start"), 10, 64)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "start must be an integer")
		return
	}
	end, err := strconv.ParseInt(r.URL.Query().Get("end"), 10, 64)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "end must be an integer")
		return
	}

	ix, err := s.index(id)
	if err != nil {
		writeIndexError(w, err)
		return
	}
	lines, err := ix.ReadRange(start, end)
	if err != nil {
		writeIndexError(w, err)
		return
	}

	// Echo the clamped start so returned lines align with the caller's
	// line numbering even when the request ran off either edge.
	first := start
	if first < 1 {
		first = 1
	}
	writeJSON(w, http.StatusOK, rangeResponse{
		Start: first,
		End:   first + int64(len(lines)),
		Lines: rawLines(lines),
	})
}

func (s *Server) handleFull(w http.ResponseWriter, r *http.Request, id string) {
	path, err := s.sessions.Resolve(id)
	if err != nil {
		writeIndexError(w, err)
		return
	}
	lines, err := logindex.ReadAll(path)
	if err != nil {
		writeIndexError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rangeResponse{
		Start: 1,
		End:   1 + int64(len(lines)),
		Lines: rawLines(lines),
	})
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request, id string) {
	path, err := s.sessions.Resolve(id)
	if err != nil {
		writeIndexError(w, err)
		return
	}
	ix, err := s.indexes.Rebuild(path)
	if err != nil {
		writeIndexError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, indexResponse{
		ID:           id,
		State:        ix.State().String(),
		TotalLines:   ix.Len(),
		IndexedBytes: ix.IndexedBytes(),
		Entries:      ix.Entries(),
	})
}

func (s *Server) index(id string) (*logindex.Index, error) {
	path, err := s.sessions.Resolve(id)
	if err != nil {
		return nil, err
	}
	return s.indexes.Get(path)
}

// rawLines converts line payloads, keeping the terminator out of the wire
// format. Lines are JSONL so they transport cleanly as JSON strings.
func rawLines(lines [][]byte) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = strings.TrimRight(string(l), "\r\n")
	}
	return out
}
