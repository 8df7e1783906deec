package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sctrl/eventstack/internal/es"
)

// RemoteStore is an HTTP client for a hosted event service. Appends and
// reads map onto the service's event API; a 409 on write is the service's
// sequence-conflict signal and comes back as an InvalidSequenceError.
type RemoteStore struct {
	base   string
	token  string
	client *http.Client
}

// RemoteOption configures a RemoteStore.
type RemoteOption func(*RemoteStore)

// WithHTTPClient substitutes the HTTP client (timeouts, transport).
func WithHTTPClient(client *http.Client) RemoteOption {
	return func(s *RemoteStore) { s.client = client }
}

// WithToken sets the bearer token sent on every request.
func WithToken(token string) RemoteOption {
	return func(s *RemoteStore) { s.token = token }
}

// NewRemoteStore creates a client for the service at base (scheme and
// host, no trailing slash).
func NewRemoteStore(base string, opts ...RemoteOption) *RemoteStore {
	s := &RemoteStore{base: base, client: http.DefaultClient}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RemoteStore) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.base+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	return s.client.Do(req)
}

func decodeInto(resp *http.Response, out any) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// GetStack checks the stack exists remotely, or es.ErrStackNotFound.
func (s *RemoteStore) GetStack(ctx context.Context, entityType, entityID string) (es.Stack, error) {
	ns := Namespace(entityType, entityID)
	resp, err := s.do(ctx, http.MethodGet, "/v1/stack/"+url.PathEscape(ns), nil)
	if err != nil {
		return nil, fmt.Errorf("get stack %s: %w", ns, err)
	}
	drain(resp)
	switch resp.StatusCode {
	case http.StatusOK:
		return &remoteStack{store: s, namespace: ns}, nil
	case http.StatusNotFound:
		return nil, es.ErrStackNotFound
	default:
		return nil, fmt.Errorf("get stack %s: unexpected status %d", ns, resp.StatusCode)
	}
}

// CreateStack registers the stack remotely. Idempotent on the service side.
func (s *RemoteStore) CreateStack(ctx context.Context, entityType, entityID string) (es.Stack, error) {
	ns := Namespace(entityType, entityID)
	resp, err := s.do(ctx, http.MethodPost, "/v1/stack/create", map[string]string{"namespace": ns})
	if err != nil {
		return nil, fmt.Errorf("create stack %s: %w", ns, err)
	}
	drain(resp)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("create stack %s: unexpected status %d", ns, resp.StatusCode)
	}
	return &remoteStack{store: s, namespace: ns}, nil
}

// GetOrCreateStack resolves the stack, creating it on first use.
func (s *RemoteStore) GetOrCreateStack(ctx context.Context, entityType, entityID string) (es.Stack, error) {
	return s.CreateStack(ctx, entityType, entityID)
}

type remoteStack struct {
	store     *RemoteStore
	namespace string
}

func (st *remoteStack) Namespace() string { return st.namespace }

type writeRequest struct {
	Namespace string    `json:"namespace"`
	Event     *es.Event `json:"event"`
	Anonymous bool      `json:"anonymous,omitempty"`
}

func (st *remoteStack) write(ctx context.Context, ev es.Event, anonymous bool) error {
	resp, err := st.store.do(ctx, http.MethodPost, "/v1/event/write", writeRequest{
		Namespace: st.namespace,
		Event:     &ev,
		Anonymous: anonymous,
	})
	if err != nil {
		return fmt.Errorf("write to %s: %w", st.namespace, err)
	}
	drain(resp)
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusConflict:
		return &es.InvalidSequenceError{Namespace: st.namespace, EventID: ev.ID}
	default:
		return fmt.Errorf("write to %s: unexpected status %d", st.namespace, resp.StatusCode)
	}
}

func (st *remoteStack) CommitEvent(ctx context.Context, ev es.Event) error {
	return st.write(ctx, ev, false)
}

func (st *remoteStack) CommitAnonymousEvent(ctx context.Context, ev es.Event) error {
	return st.write(ctx, ev, true)
}

func (st *remoteStack) GetEvent(ctx context.Context, id int64) (es.Event, error) {
	events, err := st.Slice(ctx, id, id)
	if err != nil {
		return es.Event{}, err
	}
	if len(events) == 0 {
		return es.Event{}, es.ErrEventNotFound
	}
	return events[0], nil
}

// Slice fetches the id range in one request. The service uses "tip" for
// an open-ended range.
func (st *remoteStack) Slice(ctx context.Context, start, end int64) ([]es.Event, error) {
	if start < 0 {
		start = 0
	}
	rangeSpec := fmt.Sprintf("%d-tip", start)
	if end != es.NoEventID {
		rangeSpec = fmt.Sprintf("%d-%d", start, end)
	}
	path := fmt.Sprintf("/v1/event/query/%s/%s", url.PathEscape(st.namespace), rangeSpec)
	resp, err := st.store.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("slice %s: %w", st.namespace, err)
	}
	if resp.StatusCode != http.StatusOK {
		drain(resp)
		return nil, fmt.Errorf("slice %s: unexpected status %d", st.namespace, resp.StatusCode)
	}
	var payload struct {
		Events []es.Event `json:"events"`
	}
	if err := decodeInto(resp, &payload); err != nil {
		return nil, fmt.Errorf("slice %s: decode response: %w", st.namespace, err)
	}
	return payload.Events, nil
}
