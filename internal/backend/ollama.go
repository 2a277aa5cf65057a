package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/agentcore/qcode/internal/apperrors"
	"github.com/agentcore/qcode/internal/config"
	"github.com/agentcore/qcode/internal/llmtypes"
	"github.com/agentcore/qcode/internal/logx"
	"github.com/agentcore/qcode/internal/stream"
)

var ollamaLog = logx.For("backend.ollama")

// OllamaDriver talks to a local Ollama server's JSON-lines /api/chat
// protocol, grounded on original_source backends/ollama.py.
type OllamaDriver struct {
	base
	cfg        config.OllamaConfig
	httpClient *http.Client
}

// NewOllamaDriver constructs a driver for the given Ollama configuration.
func NewOllamaDriver(cfg config.OllamaConfig) *OllamaDriver {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &OllamaDriver{
		base:       newBase("ollama", "ollama", cfg.Host, cfg.Port, 5*time.Minute),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (d *OllamaDriver) Type() string { return "ollama" }

func (d *OllamaDriver) baseURL() string {
	return fmt.Sprintf("http://%s:%d", d.cfg.Host, d.cfg.Port)
}

func (d *OllamaDriver) Initialize(ctx context.Context) error {
	ollamaLog.Info("initializing ollama backend", "host", d.cfg.Host, "port", d.cfg.Port)
	if err := d.HealthCheck(ctx); err != nil {
		d.setError(llmtypes.StatusErrored, err.Error())
		return apperrors.New(apperrors.KindBackend, apperrors.SubConnection,
			fmt.Sprintf("failed to connect to Ollama at %s", d.baseURL())).
			WithGuidance("Check that Ollama is running and reachable at the configured host/port.")
	}
	d.setStatus(llmtypes.StatusConnected)
	ollamaLog.Info("ollama backend initialized")
	return nil
}

func (d *OllamaDriver) Cleanup(ctx context.Context) error {
	d.setStatus(llmtypes.StatusDisconnected)
	ollamaLog.Info("ollama backend cleaned up")
	return nil
}

func (d *OllamaDriver) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL()+"/api/version", nil)
	if err != nil {
		return err
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		ollamaLog.Debug("ollama health check failed", "error", err)
		d.setError(llmtypes.StatusErrored, err.Error())
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		d.setStatus(llmtypes.StatusUnavailable)
		return fmt.Errorf("ollama health check returned HTTP %d", resp.StatusCode)
	}
	d.setStatus(llmtypes.StatusAvailable)
	return nil
}

func (d *OllamaDriver) ListModels(ctx context.Context) ([]string, error) {
	if models, ok := d.cachedModels(); ok {
		return models, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL()+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindBackend, apperrors.SubConnection, "connecting to Ollama", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get models: HTTP %d", resp.StatusCode)
	}
	var body struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	models := make([]string, 0, len(body.Models))
	for _, m := range body.Models {
		models = append(models, m.Name)
	}
	d.storeModels(models)
	return models, nil
}

func (d *OllamaDriver) Info() llmtypes.BackendInfo {
	info := d.base.info()
	if models, ok := d.cachedModels(); ok {
		caps := []string{fmt.Sprintf("models: %d", len(models))}
		for i, m := range models {
			if i >= 5 {
				break
			}
			caps = append(caps, m)
		}
		info.Capabilities = caps
	}
	return info
}

func (d *OllamaDriver) SwitchModel(ctx context.Context, modelID string) (bool, error) {
	d.cfg.Model = modelID
	d.setModel(modelID)
	return true, nil
}

type ollamaChatRequest struct {
	Model    string                 `json:"model"`
	Messages []ollamaMessage        `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]any         `json:"options,omitempty"`
	Tools    []llmtypes.ToolSchema  `json:"tools,omitempty"`
	KeepAlive string                `json:"keep_alive,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Model     string `json:"model"`
	Done      bool   `json:"done"`
	DoneReason string `json:"done_reason"`
	Message   struct {
		Content   string                 `json:"content"`
		ToolCalls []llmtypes.ToolCall    `json:"tool_calls"`
	} `json:"message"`
	PromptEvalCount *int `json:"prompt_eval_count"`
	EvalCount       *int `json:"eval_count"`
}

func (d *OllamaDriver) Generate(ctx context.Context, req llmtypes.Request) (*stream.Stream[llmtypes.Response], error) {
	model := req.Model
	if model == "" {
		model = d.cfg.Model
	}

	options := map[string]any{}
	if req.Temperature != nil {
		options["temperature"] = *req.Temperature
	}
	if req.MaxTokens != nil {
		options["num_predict"] = *req.MaxTokens
	}
	if req.TopP != nil {
		options["top_p"] = *req.TopP
	}
	for k, v := range req.BackendParams {
		options[k] = v
	}

	msgs := make([]ollamaMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, ollamaMessage{Role: string(m.Role), Content: m.Content})
	}

	body := ollamaChatRequest{
		Model: model, Messages: msgs, Stream: req.Stream,
		Options: options, Tools: req.Tools, KeepAlive: d.cfg.KeepAlive,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	ollamaLog.Info("sending request to ollama", "model", model, "messages", len(req.Messages), "tools", len(req.Tools))
	ollamaLog.Debug("ollama request payload", "payload", string(payload))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL()+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindBackend, apperrors.SubConnection, "connecting to Ollama", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, fmt.Errorf("ollama request failed: HTTP %d", resp.StatusCode)
	}

	out, ch, pctx, errp := stream.NewProducer[llmtypes.Response](ctx)
	go func() {
		defer resp.Body.Close()
		defer close(ch)

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var data ollamaChatResponse
			if err := json.Unmarshal(line, &data); err != nil {
				ollamaLog.Warn("failed to parse streaming response chunk", "error", err)
				continue
			}

			r := llmtypes.Response{
				Content:      data.Message.Content,
				ToolCalls:    data.Message.ToolCalls,
				Model:        data.Model,
				ResponseTime: time.Since(start).Seconds(),
			}
			if data.DoneReason != "" {
				r.FinishReason = data.DoneReason
			} else if data.Done {
				r.FinishReason = "stop"
			}
			if data.PromptEvalCount != nil || data.EvalCount != nil {
				p, e := 0, 0
				if data.PromptEvalCount != nil {
					p = *data.PromptEvalCount
				}
				if data.EvalCount != nil {
					e = *data.EvalCount
				}
				r.Usage = &llmtypes.Usage{PromptTokens: p, CompletionTokens: e, TotalTokens: p + e}
			}
			if !data.Done {
				r.IsPartial = true
				r.Delta = data.Message.Content
			}

			if !stream.Send(pctx, ch, r) {
				return
			}
			if data.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			*errp = err
		}
	}()

	return out, nil
}
