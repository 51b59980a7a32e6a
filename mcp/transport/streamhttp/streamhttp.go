// Package streamhttp implements the client side of the MCP streamable
// HTTP transport. Every outgoing message is POSTed to the endpoint; the
// server answers either with a single JSON body or with an SSE stream of
// messages. A session identifier returned by the server in the
// Mcp-Session-Id header is echoed on subsequent requests.
package streamhttp

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/reagent/mcp/transport"
	"github.com/effective-security/xlog"
	jsoniter "github.com/json-iterator/go"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/reagent/mcp/transport", "streamhttp")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const sessionHeader = "Mcp-Session-Id"

// Transport is a stateless client transport over streamable HTTP.
type Transport struct {
	url     string
	headers map[string]string
	client  *http.Client

	mu             sync.RWMutex
	sessionID      string
	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()
	closed         bool
}

// Option configures the transport.
type Option func(*Transport)

// WithHeaders sets additional headers sent with every request.
func WithHeaders(headers map[string]string) Option {
	return func(t *Transport) {
		t.headers = headers
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(t *Transport) {
		t.client = client
	}
}

// New creates a transport POSTing to the given endpoint URL.
func New(url string, opts ...Option) *Transport {
	t := &Transport{
		url:    url,
		client: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start implements Transport.Start. The transport is stateless per
// request, so there is nothing to start.
func (t *Transport) Start(ctx context.Context) error {
	return nil
}

// SessionID returns the session identifier assigned by the server,
// empty before initialization.
func (t *Transport) SessionID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessionID
}

// Send implements Transport.Send. It POSTs the message and dispatches
// any messages carried by the response body.
func (t *Transport) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	t.mu.RLock()
	closed := t.closed
	t.mu.RUnlock()
	if closed {
		return errors.New("transport is closed")
	}

	body, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	if sid := t.SessionID(); sid != "" {
		req.Header.Set(sessionHeader, sid)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send message")
	}
	defer resp.Body.Close()

	if sid := resp.Header.Get(sessionHeader); sid != "" {
		t.mu.Lock()
		t.sessionID = sid
		t.mu.Unlock()
	}

	if resp.StatusCode == http.StatusAccepted {
		// notification accepted, no body
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	contentType := resp.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "application/json"):
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.Wrap(err, "failed to read response body")
		}
		t.dispatch(ctx, raw)
		return nil
	case strings.HasPrefix(contentType, "text/event-stream"):
		return t.readEventStream(ctx, resp.Body)
	default:
		return errors.Errorf("unsupported response content type: %s", contentType)
	}
}

// readEventStream reads SSE events until the stream ends, dispatching
// every data payload as a JSON-RPC message.
func (t *Transport) readEventStream(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var data []string
	flush := func() {
		if len(data) == 0 {
			return
		}
		t.dispatch(ctx, []byte(strings.Join(data, "\n")))
		data = nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			flush()
			continue
		}
		if strings.HasPrefix(line, "data:") {
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
		// event and id fields are not used
	}
	flush()

	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "failed to read event stream")
	}
	return nil
}

func (t *Transport) dispatch(ctx context.Context, body []byte) {
	message, err := transport.ParseMessage(body)
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "err", err.Error())
		t.mu.RLock()
		handler := t.errorHandler
		t.mu.RUnlock()
		if handler != nil {
			handler(errors.WithMessage(err, "failed to parse message"))
		}
		return
	}

	t.mu.RLock()
	handler := t.messageHandler
	t.mu.RUnlock()
	if handler != nil {
		handler(ctx, message)
	}
}

// Close implements Transport.Close.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	closeHandler := t.closeHandler
	t.mu.Unlock()

	if closeHandler != nil {
		closeHandler()
	}
	return nil
}

// SetCloseHandler implements Transport.SetCloseHandler.
func (t *Transport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}

// SetErrorHandler implements Transport.SetErrorHandler.
func (t *Transport) SetErrorHandler(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorHandler = handler
}

// SetMessageHandler implements Transport.SetMessageHandler.
func (t *Transport) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}

var _ transport.Transport = (*Transport)(nil)
