package genaiclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func collectChunks(t *testing.T, chunks <-chan Chunk, errs <-chan error) ([]string, error) {
	t.Helper()
	var got []string
	for {
		select {
		case c, ok := <-chunks:
			if !ok {
				chunks = nil
				break
			}
			got = append(got, string(c.Data))
			continue
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			return got, err
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for stream")
		}
		if chunks == nil && errs == nil {
			return got, nil
		}
	}
}

func TestStreamParsesServerSentEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		for _, line := range []string{
			"data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"a\"}]}}]}\n\n",
			"data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"b\"}]}}]}\n\n",
			"data: [DONE]\n\n",
		} {
			_, _ = w.Write([]byte(line))
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
	defer srv.Close()

	c := New(Config{Backend: BackendDeveloper, BaseURL: srv.URL, APIKey: "k"}, nil, zerolog.Nop())
	chunks, errs := c.Stream(context.Background(), "gemini-2.5-flash", []byte(`{}`))
	got, err := collectChunks(t, chunks, errs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks (DONE sentinel skipped), got %d: %v", len(got), got)
	}
	if got[0] != `{"candidates":[{"content":{"parts":[{"text":"a"}]}}]}` {
		t.Fatalf("unexpected first chunk: %s", got[0])
	}
}

func TestStreamParsesNDJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{\"totalTokenCount\":1}\n{\"totalTokenCount\":2}\n"))
	}))
	defer srv.Close()

	c := New(Config{Backend: BackendDeveloper, BaseURL: srv.URL, APIKey: "k"}, nil, zerolog.Nop())
	chunks, errs := c.Stream(context.Background(), "gemini-2.5-flash", []byte(`{}`))
	got, err := collectChunks(t, chunks, errs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %v", len(got), got)
	}
	if got[1] != `{"totalTokenCount":2}` {
		t.Fatalf("unexpected second chunk: %s", got[1])
	}
}

func TestStreamSurfacesHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	c := New(Config{Backend: BackendDeveloper, BaseURL: srv.URL, APIKey: "k"}, nil, zerolog.Nop())
	chunks, errs := c.Stream(context.Background(), "gemini-2.5-flash", []byte(`{}`))
	got, err := collectChunks(t, chunks, errs)
	if err == nil {
		t.Fatal("expected an error for non-2xx stream response")
	}
	if len(got) != 0 {
		t.Fatalf("expected no chunks before the error, got %v", got)
	}
}
