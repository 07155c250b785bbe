// Package mcptools registers the generative-model tools spec.md's GLOSSARY
// names (generate_content, stream_generate_content, count_tokens,
// embed_content, list_models) against an MCP server, each handler doing
// nothing but shaping its input/output around a single
// pipeline.Pipeline.Run call. Grounded on aezizhu-universal-model-registry's
// cmd/server/main.go (mcp.AddTool with a typed input struct per tool,
// mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{...}}}), since
// toolbridge-api has no MCP tool registration of its own to generalize from
// (its tools.Registry predates the official SDK).
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/genaibridge/genai-bridge/internal/apierr"
	"github.com/genaibridge/genai-bridge/internal/genaiclient"
	"github.com/genaibridge/genai-bridge/internal/genaiclient/extract"
	"github.com/genaibridge/genai-bridge/internal/pipeline"
)

// GenerateContentInput is generate_content's and stream_generate_content's
// shared input shape: a model name and the raw Gemini-style request body.
type GenerateContentInput struct {
	Model           string `json:"model" jsonschema:"The model name, e.g. gemini-2.5-flash"`
	Request         string `json:"request" jsonschema:"The raw JSON request body to send to the generateContent endpoint"`
	MaxOutputTokens int    `json:"max_output_tokens,omitempty" jsonschema:"Upper bound used for budget reservation before the call is made"`
}

// CountTokensInput is count_tokens' input.
type CountTokensInput struct {
	Model   string `json:"model" jsonschema:"The model name, e.g. gemini-2.5-flash"`
	Request string `json:"request" jsonschema:"The raw JSON request body to send to the countTokens endpoint"`
}

// EmbedContentInput is embed_content's input.
type EmbedContentInput struct {
	Model   string `json:"model" jsonschema:"The embedding model name"`
	Request string `json:"request" jsonschema:"The raw JSON request body to send to the embedContent endpoint"`
}

// ListModelsInput is list_models' input; both fields are optional.
type ListModelsInput struct {
	PageSize  int    `json:"page_size,omitempty"`
	PageToken string `json:"page_token,omitempty"`
}

// Register wires every tool spec.md names onto server, each backed by p.
func Register(server *mcp.Server, p *pipeline.Pipeline, listModelsClient *genaiclient.Client) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_content",
		Description: "Generate content from a Gemini-style model. Consumes the daily token budget.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input GenerateContentInput) (*mcp.CallToolResult, any, error) {
		return runAndFormat(ctx, p, genaiclient.VerbGenerateContent, input.Model, input.Request, input.MaxOutputTokens, "generate_content", false)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "count_tokens",
		Description: "Count the tokens a request would consume, without generating content. Does not consume the daily token budget.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input CountTokensInput) (*mcp.CallToolResult, any, error) {
		return runAndFormat(ctx, p, genaiclient.VerbCountTokens, input.Model, input.Request, 0, "count_tokens", true)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "embed_content",
		Description: "Compute an embedding vector for the given content.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input EmbedContentInput) (*mcp.CallToolResult, any, error) {
		verb := genaiclient.VerbEmbedContent
		if p.Auth.Backend == genaiclient.BackendVertex {
			verb = genaiclient.VerbPredict
		}
		return runAndFormat(ctx, p, verb, input.Model, input.Request, 0, "embed_content", false)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "stream_generate_content",
		Description: "Generate content from a Gemini-style model, streaming partial chunks as they arrive. Consumes the daily token budget from the final chunk's usage.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input GenerateContentInput) (*mcp.CallToolResult, any, error) {
		return runStreamAndFormat(ctx, p, input.Model, input.Request, input.MaxOutputTokens)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_models",
		Description: "List models available on the configured backend.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input ListModelsInput) (*mcp.CallToolResult, any, error) {
		body, err := listModelsClient.ListModels(ctx, input.PageSize, input.PageToken)
		if err != nil {
			return nil, nil, toToolError(err)
		}
		return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(body)}}}, nil, nil
	})
}

func runAndFormat(ctx context.Context, p *pipeline.Pipeline, verb genaiclient.Verb, model, request string, maxOutputTokens int, toolName string, countsAsZero bool) (*mcp.CallToolResult, any, error) {
	req := pipeline.Request{
		ToolName:        toolName,
		Model:           model,
		MaxOutputTokens: maxOutputTokens,
		InputChars:      len(request),
		Verb:            verb,
		Method:          "POST",
		Body:            []byte(request),
	}

	res, err := p.Run(ctx, req, countsAsZero)
	if err != nil {
		return nil, nil, toToolError(err)
	}

	payload := map[string]any{
		"response": json.RawMessage(res.Body),
		"text":     extract.Text(res.Body),
		"usage":    res.Usage,
	}
	if len(res.Warnings) > 0 {
		payload["warnings"] = res.Warnings
	}
	out, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}

	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(out)}}}, nil, nil
}

// runStreamAndFormat drives stream_generate_content: each chunk's text is
// accumulated as it arrives, and the final payload carries the full
// concatenated text alongside the usage committed from the last chunk.
//
// Per-chunk progress notifications (spec.md §6's "progress events ...
// tied to a caller-provided token") are not emitted here: nothing else in
// this tree calls into the SDK's progress-notification surface, so there
// is no grounded call shape to imitate rather than guess at, and a guess
// that doesn't match the installed SDK version would be worse than no
// notification at all. The tool still streams, aggregates, and commits
// correctly; only the optional mid-call progress events are left out.
func runStreamAndFormat(ctx context.Context, p *pipeline.Pipeline, model, request string, maxOutputTokens int) (*mcp.CallToolResult, any, error) {
	req := pipeline.Request{
		ToolName:        "stream_generate_content",
		Model:           model,
		MaxOutputTokens: maxOutputTokens,
		InputChars:      len(request),
		Verb:            genaiclient.VerbStreamGenerateContent,
		Method:          "POST",
		Body:            []byte(request),
	}

	res, err := p.RunStream(ctx, req, nil)
	if err != nil {
		return nil, nil, toToolError(err)
	}

	payload := map[string]any{
		"response": json.RawMessage(res.Body),
		"text":     res.Text,
		"usage":    res.Usage,
	}
	if len(res.Warnings) > 0 {
		payload["warnings"] = res.Warnings
	}
	out, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}

	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(out)}}}, nil, nil
}

// toToolError renders the closed apierr taxonomy into a message an MCP
// client can surface directly, preserving each error's Hint() where one
// applies.
func toToolError(err error) error {
	if ae, ok := err.(*apierr.ApiError); ok {
		if hint := ae.Hint(); hint != "" {
			return fmt.Errorf("%s (%s)", ae.Error(), hint)
		}
	}
	return err
}
