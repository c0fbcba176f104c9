package completion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kir-gadjello/oai/internal/config"
	"github.com/kir-gadjello/oai/internal/conversation"
)

func sseServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for _, l := range lines {
			fmt.Fprintf(w, "%s\n\n", l)
		}
	}))
}

func delta(text string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"choices": []interface{}{
			map[string]interface{}{"delta": map[string]interface{}{"content": text}},
		},
	})
	return "data: " + string(b)
}

func collect(ch <-chan Event) (string, error) {
	var b strings.Builder
	for ev := range ch {
		if ev.Err != nil {
			return b.String(), ev.Err
		}
		b.WriteString(ev.Text)
	}
	return b.String(), nil
}

var hello = []conversation.Message{{Role: conversation.RoleUser, Content: "hello"}}

func TestStream(t *testing.T) {
	ctx := context.Background()

	t.Run("Fragments In Order", func(t *testing.T) {
		server := sseServer(t, ": keep-alive", delta("hi"), delta(""), delta(" there"), "data: [DONE]")
		defer server.Close()

		c := NewClient(server.URL, "k", time.Minute, nil)
		ch, err := c.Stream(ctx, Request{Model: "m", Messages: hello})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		text, err := collect(ch)
		if err != nil {
			t.Fatalf("unexpected stream error: %v", err)
		}
		if text != "hi there" {
			t.Errorf("expected %q, got %q", "hi there", text)
		}
	})

	t.Run("Reasoning Ignored", func(t *testing.T) {
		server := sseServer(t,
			`data: {"choices":[{"delta":{"reasoning":"thinking"}}]}`,
			delta("answer"),
			"data: [DONE]")
		defer server.Close()

		ch, err := NewClient(server.URL, "", 0, nil).Stream(ctx, Request{Model: "m", Messages: hello})
		if err != nil {
			t.Fatal(err)
		}
		if text, err := collect(ch); err != nil || text != "answer" {
			t.Errorf("expected answer, got %q (%v)", text, err)
		}
	})

	t.Run("Non 200", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("bad key"))
		}))
		defer server.Close()

		_, err := NewClient(server.URL, "k", 0, nil).Stream(ctx, Request{Model: "m", Messages: hello})
		var te *TransportError
		if !errors.As(err, &te) {
			t.Fatalf("expected TransportError, got %v", err)
		}
		if te.Status != http.StatusUnauthorized || te.Body != "bad key" {
			t.Errorf("unexpected error contents: %+v", te)
		}
	})

	t.Run("Malformed Fragment", func(t *testing.T) {
		server := sseServer(t, delta("hi"), "data: {not json", "data: [DONE]")
		defer server.Close()

		ch, err := NewClient(server.URL, "k", 0, nil).Stream(ctx, Request{Model: "m", Messages: hello})
		if err != nil {
			t.Fatal(err)
		}
		text, err := collect(ch)
		var te *TransportError
		if !errors.As(err, &te) || !errors.Is(err, errMalformed) {
			t.Fatalf("expected malformed TransportError, got %v", err)
		}
		if text != "hi" {
			t.Errorf("fragments before the failure should arrive, got %q", text)
		}
	})

	t.Run("Service Error Chunk", func(t *testing.T) {
		server := sseServer(t, `data: {"error":{"message":"overloaded"}}`)
		defer server.Close()

		ch, err := NewClient(server.URL, "k", 0, nil).Stream(ctx, Request{Model: "m", Messages: hello})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := collect(ch); err == nil || !strings.Contains(err.Error(), "overloaded") {
			t.Errorf("expected service error, got %v", err)
		}
	})

	t.Run("Truncated Stream", func(t *testing.T) {
		server := sseServer(t, delta("partial"))
		defer server.Close()

		ch, err := NewClient(server.URL, "k", 0, nil).Stream(ctx, Request{Model: "m", Messages: hello})
		if err != nil {
			t.Fatal(err)
		}
		_, err = collect(ch)
		if !errors.Is(err, errTruncated) {
			t.Errorf("expected truncated stream error, got %v", err)
		}
	})

	t.Run("Connection Refused", func(t *testing.T) {
		server := sseServer(t)
		url := server.URL
		server.Close()

		_, err := NewClient(url, "k", time.Second, nil).Stream(ctx, Request{Model: "m", Messages: hello})
		var te *TransportError
		if !errors.As(err, &te) {
			t.Errorf("expected TransportError, got %v", err)
		}
	})
}

func TestStream_Cancel(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "%s\n\n", delta("first"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := NewClient(server.URL, "k", 0, nil).Stream(ctx, Request{Model: "m", Messages: hello})
	if err != nil {
		t.Fatal(err)
	}

	ev := <-ch
	if ev.Text != "first" {
		t.Fatalf("expected first fragment, got %+v", ev)
	}
	cancel()

	done := make(chan struct{})
	go func() {
		for range ch {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not close after cancellation")
	}
}

func TestRequestBody(t *testing.T) {
	var got map[string]interface{}
	var auth, accept, reqID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		accept = r.Header.Get("Accept")
		reqID = r.Header.Get("X-Request-Id")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	temp := 0.2
	c := NewClient(server.URL+"/v1/", "secret", 0, nil)
	ch, err := c.Stream(context.Background(), Request{
		Model:       "upstream-model",
		Messages:    hello,
		Temperature: &temp,
		Extra:       map[string]interface{}{"temperature": 0.9, "seed": 7},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := collect(ch); err != nil {
		t.Fatal(err)
	}

	if auth != "Bearer secret" {
		t.Errorf("Authorization = %q", auth)
	}
	if accept != "text/event-stream" {
		t.Errorf("Accept = %q", accept)
	}
	if reqID == "" {
		t.Error("expected a request id header")
	}
	if got["model"] != "upstream-model" || got["stream"] != true {
		t.Errorf("unexpected body %v", got)
	}
	if got["temperature"] != 0.9 {
		t.Errorf("extra body should override temperature, got %v", got["temperature"])
	}
	if got["seed"] != float64(7) {
		t.Errorf("expected seed 7, got %v", got["seed"])
	}
	msgs, _ := got["messages"].([]interface{})
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %v", got["messages"])
	}
	m := msgs[0].(map[string]interface{})
	if m["role"] != "user" || m["content"] != "hello" {
		t.Errorf("unexpected message %v", m)
	}
}

func TestModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `{"object":"list","data":[{"id":"gpt-4o","owned_by":"openai"},{"id":"local"}]}`)
	}))
	defer server.Close()

	models, err := NewClient(server.URL, "", 0, nil).Models(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(models) != 2 || models[0].ID != "gpt-4o" || models[1].ID != "local" {
		t.Errorf("unexpected models %+v", models)
	}
}

func TestStream_TraceLogging(t *testing.T) {
	server := sseServer(t, delta("hi"), "data: [DONE]")
	defer server.Close()

	var buf strings.Builder
	logger := config.NewLogger(&buf, config.LevelTrace, "text")
	ch, err := NewClient(server.URL, "", time.Minute, logger).Stream(context.Background(), Request{Model: "m", Messages: hello})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := collect(ch); err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"level=TRACE", "completion request body", "completion chunk"} {
		if !strings.Contains(out, want) {
			t.Errorf("trace log missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "DEBUG-4") {
		t.Errorf("trace level rendered without its name:\n%s", out)
	}
}
