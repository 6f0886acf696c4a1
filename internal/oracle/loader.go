package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"peerquiz/internal/domain"
)

// SourceLoader fetches the raw entries of a question collection. Entries are
// returned undecoded; validation and filtering happen inside the worker.
type SourceLoader interface {
	LoadSource(ctx context.Context, ref string) ([]json.RawMessage, error)
}

// HTTPLoader fetches question collections over HTTP(S).
type HTTPLoader struct {
	client *http.Client
}

// NewHTTPLoader wraps the given client; nil gets a client with a sane timeout.
func NewHTTPLoader(client *http.Client) *HTTPLoader {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPLoader{client: client}
}

func (l *HTTPLoader) LoadSource(ctx context.Context, ref string) ([]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("build source request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch source: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	return decodeEntries(body)
}

// decodeEntries unmarshals a source payload, distinguishing a non-list root
// from plain malformed JSON.
func decodeEntries(body []byte) ([]json.RawMessage, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(body, &entries); err != nil {
		if _, ok := err.(*json.UnmarshalTypeError); ok {
			return nil, domain.ErrSourceFormat
		}
		return nil, fmt.Errorf("decode source: %w", err)
	}
	return entries, nil
}
