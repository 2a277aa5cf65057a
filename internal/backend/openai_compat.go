package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/agentcore/qcode/internal/apperrors"
	"github.com/agentcore/qcode/internal/llmtypes"
	"github.com/agentcore/qcode/internal/stream"
)

// openAICompatCore implements the shared OpenAI-compatible chat-completions
// protocol that LM Studio, vLLM, and OpenRouter all speak, grounded on
// original_source backends/lm_studio.py, vllm.py, and openrouter.py, which
// differ only in base URL, auth header, and model-detection behavior.
type openAICompatCore struct {
	base
	httpClient *http.Client
	authHeader string // full "Bearer <key>" value, empty if unauthenticated
	// detectCurrentModel mirrors LM Studio's behavior of treating the
	// first entry returned by /v1/models as the currently loaded model.
	detectCurrentModel bool
}

func (d *openAICompatCore) newRequest(ctx context.Context, method, url string, body []byte) (*http.Request, error) {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.authHeader != "" {
		req.Header.Set("Authorization", d.authHeader)
	}
	return req, nil
}

func (d *openAICompatCore) healthCheck(ctx context.Context, modelsURL string) error {
	req, err := d.newRequest(ctx, http.MethodGet, modelsURL, nil)
	if err != nil {
		return err
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.setError(llmtypes.StatusErrored, err.Error())
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		d.setStatus(llmtypes.StatusUnavailable)
		return fmt.Errorf("health check returned HTTP %d", resp.StatusCode)
	}
	d.setStatus(llmtypes.StatusAvailable)
	return nil
}

type openAIModelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// listModels fetches /v1/models and, if detectCurrentModel is set, records
// the first entry as the currently loaded model (LM Studio's convention).
func (d *openAICompatCore) listModels(ctx context.Context, modelsURL string) ([]string, error) {
	if models, ok := d.cachedModels(); ok {
		return models, nil
	}
	req, err := d.newRequest(ctx, http.MethodGet, modelsURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindBackend, apperrors.SubConnection, "fetching model list", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get models: HTTP %d", resp.StatusCode)
	}
	var parsed openAIModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	models := make([]string, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		models = append(models, m.ID)
	}
	d.storeModels(models)
	if d.detectCurrentModel && len(models) > 0 {
		d.setModel(models[0])
	}
	return models, nil
}

type openAIChatRequest struct {
	Model            string                `json:"model,omitempty"`
	Messages         []openAIMessage       `json:"messages"`
	Stream           bool                  `json:"stream"`
	Temperature      *float64              `json:"temperature,omitempty"`
	MaxTokens        *int                  `json:"max_tokens,omitempty"`
	TopP             *float64              `json:"top_p,omitempty"`
	Tools            []llmtypes.ToolSchema `json:"tools,omitempty"`
	ToolChoice       string                `json:"tool_choice,omitempty"`
	ResponseFormat   map[string]any        `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChoice struct {
	Message struct {
		Content   string              `json:"content"`
		ToolCalls []llmtypes.ToolCall `json:"tool_calls"`
	} `json:"message"`
	Delta struct {
		Content   string              `json:"content"`
		ToolCalls []llmtypes.ToolCall `json:"tool_calls"`
	} `json:"delta"`
	FinishReason string `json:"finish_reason"`
}

type openAIChatResponse struct {
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
	Usage   *llmtypes.Usage `json:"usage"`
}

func buildOpenAIRequest(req llmtypes.Request, defaultModel string) openAIChatRequest {
	model := req.Model
	if model == "" {
		model = defaultModel
	}
	msgs := make([]openAIMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openAIMessage{Role: string(m.Role), Content: m.Content})
	}
	body := openAIChatRequest{
		Model: model, Messages: msgs, Stream: req.Stream,
		Temperature: req.Temperature, MaxTokens: req.MaxTokens, TopP: req.TopP,
		ResponseFormat: req.ResponseFormat,
	}
	if len(req.Tools) > 0 {
		body.Tools = req.Tools
		body.ToolChoice = "auto"
	}
	return body
}

// generateSSE POSTs to endpoint and streams Server-Sent-Events "data: "
// lines as normalized Responses, per the shared _handle_streaming_response
// logic in lm_studio.py/vllm.py/openrouter.py.
func (d *openAICompatCore) generateSSE(ctx context.Context, endpoint string, body openAIChatRequest) (*stream.Stream[llmtypes.Response], error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	httpReq, err := d.newRequest(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindBackend, apperrors.SubConnection, "sending generate request", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, fmt.Errorf("request failed: HTTP %d", resp.StatusCode)
	}

	out, ch, pctx, errp := stream.NewProducer[llmtypes.Response](ctx)
	go func() {
		defer resp.Body.Close()
		defer close(ch)

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || !strings.HasPrefix(line, "data: ") {
				continue
			}
			dataStr := strings.TrimPrefix(line, "data: ")
			if dataStr == "[DONE]" {
				return
			}

			var data openAIChatResponse
			if err := json.Unmarshal([]byte(dataStr), &data); err != nil {
				continue
			}
			if len(data.Choices) == 0 {
				continue
			}
			choice := data.Choices[0]

			r := llmtypes.Response{Model: data.Model, ResponseTime: time.Since(start).Seconds(), Usage: data.Usage}
			if choice.Delta.Content != "" || len(choice.Delta.ToolCalls) > 0 {
				r.IsPartial = true
				r.Delta = choice.Delta.Content
				r.Content = choice.Delta.Content
				r.ToolCalls = choice.Delta.ToolCalls
			} else {
				r.Content = choice.Message.Content
				r.ToolCalls = choice.Message.ToolCalls
			}
			if choice.FinishReason != "" {
				r.FinishReason = choice.FinishReason
			}

			if !stream.Send(pctx, ch, r) {
				return
			}
			if choice.FinishReason != "" {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			*errp = err
		}
	}()

	return out, nil
}

// generateNonStream POSTs to endpoint and returns a single-element stream,
// used when req.Stream is false.
func (d *openAICompatCore) generateNonStream(ctx context.Context, endpoint string, body openAIChatRequest) (*stream.Stream[llmtypes.Response], error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	httpReq, err := d.newRequest(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindBackend, apperrors.SubConnection, "sending generate request", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed: HTTP %d", resp.StatusCode)
	}
	var data openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}

	r := llmtypes.Response{Model: data.Model, ResponseTime: time.Since(start).Seconds(), Usage: data.Usage, FinishReason: "stop"}
	if len(data.Choices) > 0 {
		r.Content = data.Choices[0].Message.Content
		r.ToolCalls = data.Choices[0].Message.ToolCalls
		if data.Choices[0].FinishReason != "" {
			r.FinishReason = data.Choices[0].FinishReason
		}
	}

	out, ch, _, _ := stream.NewProducer[llmtypes.Response](ctx)
	go func() {
		defer close(ch)
		ch <- r
	}()
	return out, nil
}
