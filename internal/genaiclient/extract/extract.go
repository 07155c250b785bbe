// Package extract implements spec.md §4.J: pure, total functions over a
// parsed generative-model API response object. Every helper tolerates
// missing fields and returns a typed absent marker rather than panicking
// or erroring. Directly grounded on
// j2h4u-Context-Gateway/internal/adapters/gemini.go's ExtractUsage and
// ExtractModel, extended to the rest of the field set spec.md §4.J names.
package extract

import "encoding/json"

// Usage mirrors usageMetadata; Total is computed as the sum of the two
// counts when the API omits totalTokenCount.
type Usage struct {
	PromptTokens     int
	CandidatesTokens int
	TotalTokens      int
}

type candidateShape struct {
	Content struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"content"`
	FinishReason      string           `json:"finishReason"`
	SafetyRatings     []map[string]any `json:"safetyRatings"`
	GroundingMetadata json.RawMessage `json:"groundingMetadata"`
}

type responseShape struct {
	Candidates []candidateShape `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func parse(body []byte) (responseShape, bool) {
	var r responseShape
	if len(body) == 0 {
		return r, false
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return r, false
	}
	return r, true
}

// Text concatenates the text parts of the first candidate's content;
// returns "" if any ancestor (candidates, content, parts) is missing.
func Text(body []byte) string {
	r, ok := parse(body)
	if !ok || len(r.Candidates) == 0 {
		return ""
	}
	var out string
	for _, p := range r.Candidates[0].Content.Parts {
		out += p.Text
	}
	return out
}

// FinishReason returns the first candidate's finishReason, or "" if
// absent.
func FinishReason(body []byte) string {
	r, ok := parse(body)
	if !ok || len(r.Candidates) == 0 {
		return ""
	}
	return r.Candidates[0].FinishReason
}

// BlockReason returns promptFeedback.blockReason, or "" if absent.
func BlockReason(body []byte) string {
	r, ok := parse(body)
	if !ok {
		return ""
	}
	return r.PromptFeedback.BlockReason
}

// GroundingMetadata returns the first candidate's raw groundingMetadata
// object, or nil if absent.
func GroundingMetadata(body []byte) json.RawMessage {
	r, ok := parse(body)
	if !ok || len(r.Candidates) == 0 {
		return nil
	}
	return r.Candidates[0].GroundingMetadata
}

// SafetyRatings returns the first candidate's safetyRatings, or nil if
// absent.
func SafetyRatings(body []byte) []map[string]any {
	r, ok := parse(body)
	if !ok || len(r.Candidates) == 0 {
		return nil
	}
	return r.Candidates[0].SafetyRatings
}

// UsageFromResponse reads usageMetadata.{prompt,candidates,total}TokenCount,
// computing Total as the sum of the other two when the API omits it.
func UsageFromResponse(body []byte) Usage {
	r, ok := parse(body)
	if !ok {
		return Usage{}
	}
	u := Usage{
		PromptTokens:     r.UsageMetadata.PromptTokenCount,
		CandidatesTokens: r.UsageMetadata.CandidatesTokenCount,
		TotalTokens:      r.UsageMetadata.TotalTokenCount,
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CandidatesTokens
	}
	return u
}

// Model strips a leading "models/" prefix from a request body's "model"
// field, mirroring gemini.go's ExtractModel exactly.
func Model(requestBody []byte) string {
	if len(requestBody) == 0 {
		return ""
	}
	var req struct {
		Model string `json:"model"`
	}
	if err := json.Unmarshal(requestBody, &req); err != nil {
		return ""
	}
	const prefix = "models/"
	if len(req.Model) > len(prefix) && req.Model[:len(prefix)] == prefix {
		return req.Model[len(prefix):]
	}
	return req.Model
}
