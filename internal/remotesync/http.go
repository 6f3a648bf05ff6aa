package remotesync

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hyperengineering/goalboard/internal/types"
)

// StatusError is a non-2xx response from the document service.
type StatusError struct {
	StatusCode int
	Title      string
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Title, e.Detail)
	}
	return fmt.Sprintf("%d %s", e.StatusCode, e.Title)
}

// HTTPBackend talks to a goalboard document service. It implements Backend
// and the sign-in calls used by session.Provider.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
	stream  *http.Client

	mu    sync.RWMutex
	token string
}

// NewHTTPBackend returns a client for the service at baseURL. Requests other
// than the watch stream are bounded by timeout.
func NewHTTPBackend(baseURL string, timeout time.Duration) *HTTPBackend {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		stream:  &http.Client{},
	}
}

var _ Backend = (*HTTPBackend)(nil)

// SetToken sets the bearer token sent with document requests.
func (b *HTTPBackend) SetToken(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.token = token
}

func (b *HTTPBackend) bearer() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.token
}

// SignInAnonymously creates a new anonymous identity and adopts its token.
func (b *HTTPBackend) SignInAnonymously(ctx context.Context) (types.SignInResponse, error) {
	var resp types.SignInResponse
	if err := b.do(ctx, http.MethodPost, "/api/v1/auth/anonymous", nil, &resp); err != nil {
		return types.SignInResponse{}, err
	}
	b.SetToken(resp.Token)
	return resp, nil
}

// RedeemCustomToken exchanges an externally issued token for a session and adopts it.
func (b *HTTPBackend) RedeemCustomToken(ctx context.Context, token string) (types.SignInResponse, error) {
	body, err := json.Marshal(types.RedeemTokenRequest{Token: token})
	if err != nil {
		return types.SignInResponse{}, err
	}
	var resp types.SignInResponse
	if err := b.do(ctx, http.MethodPost, "/api/v1/auth/token", body, &resp); err != nil {
		return types.SignInResponse{}, err
	}
	b.SetToken(resp.Token)
	return resp, nil
}

// Get returns the current snapshot of ref.
func (b *HTTPBackend) Get(ctx context.Context, ref types.DocumentRef) (types.DocumentSnapshot, error) {
	var snap types.DocumentSnapshot
	err := b.do(ctx, http.MethodGet, documentPath("documents", ref), nil, &snap)
	return snap, err
}

// Set overwrites ref.
func (b *HTTPBackend) Set(ctx context.Context, ref types.DocumentRef, data json.RawMessage) (types.DocumentSnapshot, error) {
	var snap types.DocumentSnapshot
	err := b.do(ctx, http.MethodPut, documentPath("documents", ref), data, &snap)
	return snap, err
}

// Merge shallow-merges data into ref.
func (b *HTTPBackend) Merge(ctx context.Context, ref types.DocumentRef, data json.RawMessage) (types.DocumentSnapshot, error) {
	var snap types.DocumentSnapshot
	err := b.do(ctx, http.MethodPatch, documentPath("documents", ref), data, &snap)
	return snap, err
}

// Watch reads the server-sent event stream for ref.
func (b *HTTPBackend) Watch(ctx context.Context, ref types.DocumentRef, fn func(types.DocumentSnapshot)) error {
	req, err := b.newRequest(ctx, http.MethodGet, documentPath("watch", ref), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := b.stream.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("open watch stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return readStatusError(resp)
	}

	err = readEvents(resp.Body, func(event string, data []byte) error {
		if event != "snapshot" {
			return nil
		}
		var snap types.DocumentSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return fmt.Errorf("decode snapshot event: %w", err)
		}
		fn(snap)
		return nil
	})
	if ctx.Err() != nil {
		return nil
	}
	if err == nil {
		return errors.New("watch stream ended")
	}
	return err
}

// readEvents parses a text/event-stream body, calling fn once per event.
func readEvents(r io.Reader, fn func(event string, data []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		event string
		data  bytes.Buffer
	)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				if event == "" {
					event = "message"
				}
				if err := fn(event, bytes.TrimSuffix(data.Bytes(), []byte("\n"))); err != nil {
					return err
				}
			}
			event = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			data.WriteByte('\n')
		}
	}
	return scanner.Err()
}

func documentPath(kind string, ref types.DocumentRef) string {
	segments := strings.Split(ref.Key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return "/api/v1/apps/" + url.PathEscape(ref.App) + "/" + kind + "/" + strings.Join(segments, "/")
}

func (b *HTTPBackend) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := b.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (b *HTTPBackend) do(ctx context.Context, method, path string, body []byte, out any) error {
	req, err := b.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readStatusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readStatusError(resp *http.Response) error {
	se := &StatusError{StatusCode: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
	var p struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&p); err == nil {
		if p.Title != "" {
			se.Title = p.Title
		}
		se.Detail = p.Detail
	}
	return se
}
