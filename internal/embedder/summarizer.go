package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/connexus-ai/discovery-engine/internal/retry"
)

// TextSummarizerClient calls a Gemini-style global-endpoint REST API to
// produce a shorter text. One real implementation standing in for the
// opaque summarizer interface; global endpoint only, so it needs no SDK
// dependency beyond the shared *http.Client.
type TextSummarizerClient struct {
	project string
	model   string
	client  *http.Client
}

func NewTextSummarizerClient(project, model string, httpClient *http.Client) *TextSummarizerClient {
	return &TextSummarizerClient{project: project, model: model, client: httpClient}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Summarize sends text to the model with a fixed summarization prompt
// and returns the generated shorter text.
func (a *TextSummarizerClient) Summarize(ctx context.Context, text string) (string, error) {
	return retry.Do(ctx, retry.DefaultPolicy, "embedder.summarize", func() (string, error) {
		return a.doSummarize(ctx, text)
	})
}

func (a *TextSummarizerClient) doSummarize(ctx context.Context, text string) (string, error) {
	prompt := "Summarize the following text in one or two sentences, preserving its key facts:\n\n" + text

	reqBody, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("embedder.Summarize: marshal: %w", err)
	}

	url := fmt.Sprintf(
		"https://aiplatform.googleapis.com/v1/projects/%s/locations/global/publishers/google/models/%s:generateContent",
		a.project, a.model)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("embedder.Summarize: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("embedder.Summarize: call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("embedder.Summarize: status %d: %s", resp.StatusCode, body)
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("embedder.Summarize: decode: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("embedder.Summarize: empty response")
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}
