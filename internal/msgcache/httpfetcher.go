package msgcache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"loglens/internal/logindex"
)

// HTTPFetcher is the transport-side Fetcher: it resolves ranges through a
// loglens server's range endpoint, so a cache can sit in a different process
// than the indexer. Timeouts and cancellation come from the caller's ctx.
type HTTPFetcher struct {
	BaseURL   string
	SessionID string
	Token     string

	// Client defaults to http.DefaultClient.
	Client *http.Client
}

type httpRangeResponse struct {
	Start int64    `json:"start"`
	End   int64    `json:"end"`
	Lines []string `json:"lines"`
}

type httpIndexResponse struct {
	TotalLines int64 `json:"total_lines"`
}

type httpErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ReadRange fetches lines [start, end) from the server.
func (f *HTTPFetcher) ReadRange(ctx context.Context, start, end int64) ([][]byte, error) {
	var body httpRangeResponse
	path := fmt.Sprintf("/api/sessions/%s/range?start=%d&end=%d", f.SessionID, start, end)
	if err := f.getJSON(ctx, path, &body); err != nil {
		return nil, err
	}

	lines := make([][]byte, len(body.Lines))
	for i, l := range body.Lines {
		lines[i] = []byte(l)
	}
	return lines, nil
}

// TotalLines fetches the server's current line count for the session.
func (f *HTTPFetcher) TotalLines(ctx context.Context) (int64, error) {
	var body httpIndexResponse
	if err := f.getJSON(ctx, "/api/sessions/"+f.SessionID+"/index", &body); err != nil {
		return 0, err
	}
	return body.TotalLines, nil
}

func (f *HTTPFetcher) getJSON(ctx context.Context, path string, out any) error {
	url := strings.TrimRight(f.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	if f.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.Token)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		// ctx deadline/cancel errors stay unwrappable via errors.Is.
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(path, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("fetch %s: decode: %v: %w", path, err, logindex.ErrIO)
	}
	return nil
}

// statusError maps the server's error codes back onto the local taxonomy.
func statusError(path string, resp *http.Response) error {
	var body httpErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)
	msg := body.Error.Message
	if msg == "" {
		msg = resp.Status
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("fetch %s: %s: %w", path, msg, logindex.ErrNotFound)
	case http.StatusConflict:
		return fmt.Errorf("fetch %s: %s: %w", path, msg, logindex.ErrCorruptIndex)
	default:
		return fmt.Errorf("fetch %s: %s: %w", path, msg, logindex.ErrIO)
	}
}
