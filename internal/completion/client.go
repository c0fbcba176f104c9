// Package completion talks to an OpenAI-compatible chat completions
// endpoint and delivers streamed responses as a channel of fragments.
package completion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kir-gadjello/oai/internal/config"
	"github.com/kir-gadjello/oai/internal/conversation"
)

// maxLine bounds a single SSE line.
const maxLine = 4 << 20

// Event is one item of a streamed response: either a text fragment or the
// terminal error. The channel closes after end-of-stream or after an error.
type Event struct {
	Text string
	Err  error
}

// TransportError is any failure talking to the completion service,
// including malformed or truncated streams.
type TransportError struct {
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("API error (status %d): %s", e.Status, e.Body)
	}
	return fmt.Sprintf("completion transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

var (
	errTruncated = errors.New("stream ended without [DONE]")
	errMalformed = errors.New("malformed fragment")
)

// Request is one chat completion call.
type Request struct {
	Model       string
	Messages    []conversation.Message
	Temperature *float64
	// Extra is merged into the request body and overrides its keys.
	Extra map[string]interface{}
}

type chatRequest struct {
	Model       string                 `json:"model"`
	Temperature *float64               `json:"temperature,omitempty"`
	Stream      bool                   `json:"stream"`
	Messages    []conversation.Message `json:"messages"`
}

type chunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			Reasoning string `json:"reasoning"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Client is a chat completions client.
type Client struct {
	apiKey  string
	apiBase string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient returns a Client for apiBase. A zero timeout means none.
func NewClient(apiBase, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		apiKey:  apiKey,
		apiBase: strings.TrimSuffix(apiBase, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func urlJoin(base, rel string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	relURL, err := url.Parse(rel)
	if err != nil {
		return "", err
	}
	if relURL.Scheme != "" && relURL.Host != "" {
		return rel, nil
	}
	result := &url.URL{
		Scheme: baseURL.Scheme,
		User:   baseURL.User,
		Host:   baseURL.Host,
		Path:   path.Join(baseURL.Path, relURL.Path),
	}
	return result.String(), nil
}

func (c *Client) body(req Request) ([]byte, error) {
	raw, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		Stream:      true,
		Messages:    req.Messages,
	})
	if err != nil {
		return nil, err
	}
	if len(req.Extra) == 0 {
		return raw, nil
	}

	merged := map[string]interface{}{}
	if err := json.Unmarshal(raw, &merged); err != nil {
		return nil, err
	}
	for k, v := range req.Extra {
		merged[k] = v
	}
	return json.Marshal(merged)
}

func (c *Client) newRequest(ctx context.Context, method, rel string, body []byte) (*http.Request, string, error) {
	u, err := urlJoin(c.apiBase, rel)
	if err != nil {
		return nil, "", err
	}
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return nil, "", err
	}
	id := uuid.NewString()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-Id", id)
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return httpReq, id, nil
}

// Stream submits req and returns its fragments in arrival order. Errors
// before the response status is known are returned directly; later ones
// arrive as the final Event.
func (c *Client) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	payload, err := c.body(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, id, err := c.newRequest(ctx, http.MethodPost, "chat/completions", payload)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	c.logger.Debug("completion request", "id", id, "model", req.Model, "messages", len(req.Messages), "url", httpReq.URL.String())
	c.logger.Log(ctx, config.LevelTrace, "completion request body", "id", id, "body", string(payload))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &TransportError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	ch := make(chan Event)
	go c.read(ctx, id, resp.Body, ch)
	return ch, nil
}

func (c *Client) read(ctx context.Context, id string, body io.ReadCloser, ch chan<- Event) {
	defer close(ch)
	defer body.Close()

	send := func(ev Event) bool {
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(err error) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		c.logger.Debug("completion stream failed", "id", id, "error", err)
		send(Event{Err: &TransportError{Err: err}})
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxLine)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		c.logger.Log(ctx, config.LevelTrace, "completion chunk", "id", id, "data", data)

		if data == "[DONE]" {
			c.logger.Debug("completion stream done", "id", id)
			return
		}

		var ck chunk
		if err := json.Unmarshal([]byte(data), &ck); err != nil {
			fail(fmt.Errorf("%w: %v", errMalformed, err))
			return
		}
		if ck.Error != nil {
			fail(fmt.Errorf("service error: %s", ck.Error.Message))
			return
		}
		if len(ck.Choices) == 0 {
			continue
		}
		if text := ck.Choices[0].Delta.Content; text != "" {
			if !send(Event{Text: text}) {
				return
			}
		}
	}

	if err := scanner.Err(); err != nil {
		fail(err)
		return
	}
	fail(errTruncated)
}

// Model is one entry of the models listing.
type Model struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// Models lists the models the service offers.
func (c *Client) Models(ctx context.Context) ([]Model, error) {
	httpReq, _, err := c.newRequest(ctx, http.MethodGet, "models", nil)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &TransportError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var list struct {
		Data []Model `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, &TransportError{Err: fmt.Errorf("decoding models: %w", err)}
	}
	return list.Data, nil
}
