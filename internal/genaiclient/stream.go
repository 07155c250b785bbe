package genaiclient

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/genaibridge/genai-bridge/internal/apierr"
	"github.com/genaibridge/genai-bridge/internal/redact"
)

// Chunk is one parsed event from a streamGenerateContent response.
type Chunk struct {
	Data []byte
}

// Stream opens a streamGenerateContent call and returns a channel of
// parsed chunks, closed when the upstream stream ends, the context is
// cancelled, or an error occurs (in which case it is sent on errCh before
// both channels close). Per the Open Question in spec.md §9, the wire
// shape (SSE vs newline-delimited JSON) is not fixed in advance: the
// response's Content-Type is sniffed and the matching decoder is chosen.
func (c *Client) Stream(ctx context.Context, model string, body []byte) (<-chan Chunk, <-chan error) {
	chunks := make(chan Chunk)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		mode := c.initialAuthMode()
		req, err := c.buildRequest(ctx, "POST", VerbStreamGenerateContent, model, body, mode, false)
		if err != nil {
			errs <- err
			return
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				errs <- &apierr.Cancelled{Cause: ctx.Err()}
				return
			}
			errs <- &apierr.ApiError{Message: redact.String(err.Error())}
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(resp.Body)
			errs <- c.apiErrorFromBody(resp.StatusCode, body)
			return
		}

		ct := resp.Header.Get("Content-Type")
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		if strings.Contains(ct, "text/event-stream") {
			scanSSE(ctx, scanner, chunks)
		} else {
			scanNDJSON(ctx, scanner, chunks)
		}

		if err := scanner.Err(); err != nil {
			errs <- &apierr.ApiError{Message: redact.String(err.Error())}
		}
	}()

	return chunks, errs
}

// scanSSE parses "data: {...}" lines, per the server-sent-events framing;
// blank lines separate events and are skipped.
func scanSSE(ctx context.Context, scanner *bufio.Scanner, out chan<- Chunk) {
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}
		select {
		case out <- Chunk{Data: []byte(data)}:
		case <-ctx.Done():
			return
		}
	}
}

// scanNDJSON parses one JSON value per line.
func scanNDJSON(ctx context.Context, scanner *bufio.Scanner, out chan<- Chunk) {
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		data := make([]byte, len(line))
		copy(data, line)
		select {
		case out <- Chunk{Data: data}:
		case <-ctx.Done():
			return
		}
	}
}
