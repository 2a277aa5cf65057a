package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agentcore/qcode/internal/apperrors"
	"github.com/agentcore/qcode/internal/config"
	"github.com/agentcore/qcode/internal/llmtypes"
	"github.com/agentcore/qcode/internal/logx"
	"github.com/agentcore/qcode/internal/stream"
)

var openRouterLog = logx.For("backend.openrouter")

// OpenRouterDriver speaks OpenRouter's OpenAI-compatible, bearer-auth cloud
// API, grounded on original_source backends/openrouter.py. It is the only
// remote (non-localhost) driver and so is the one that needs an API key.
type OpenRouterDriver struct {
	openAICompatCore
	cfg     config.OpenRouterConfig
	baseURL string
}

func NewOpenRouterDriver(cfg config.OpenRouterConfig) *OpenRouterDriver {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &OpenRouterDriver{
		openAICompatCore: openAICompatCore{
			base:       newBase("openrouter", "openrouter", "openrouter.ai", 443, 10*time.Minute),
			httpClient: httpClientWithTimeout(timeout),
			authHeader: "Bearer " + cfg.APIKey,
		},
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

func (d *OpenRouterDriver) Type() string { return "openrouter" }

func (d *OpenRouterDriver) Initialize(ctx context.Context) error {
	openRouterLog.Info("initializing openrouter backend", "base_url", d.baseURL)
	if d.cfg.APIKey == "" {
		return apperrors.New(apperrors.KindBackend, apperrors.SubAuthentication,
			"OpenRouter API key is not configured").
			WithGuidance("Set OPENROUTER_API_KEY or config.openrouter.api_key.")
	}
	if err := d.HealthCheck(ctx); err != nil {
		d.setError(llmtypes.StatusErrored, err.Error())
		return apperrors.Wrap(apperrors.KindBackend, apperrors.SubConnection,
			fmt.Sprintf("failed to connect to OpenRouter at %s", d.baseURL), err)
	}
	d.setStatus(llmtypes.StatusConnected)
	openRouterLog.Info("openrouter backend initialized")
	return nil
}

func (d *OpenRouterDriver) Cleanup(ctx context.Context) error {
	d.setStatus(llmtypes.StatusDisconnected)
	openRouterLog.Info("openrouter backend cleaned up")
	return nil
}

func (d *OpenRouterDriver) HealthCheck(ctx context.Context) error {
	err := d.healthCheck(ctx, d.baseURL+"/models")
	if err != nil {
		openRouterLog.Debug("openrouter health check failed", "error", err)
	}
	return err
}

func (d *OpenRouterDriver) ListModels(ctx context.Context) ([]string, error) {
	return d.listModels(ctx, d.baseURL+"/models")
}

func (d *OpenRouterDriver) Info() llmtypes.BackendInfo {
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

func (d *OpenRouterDriver) SwitchModel(ctx context.Context, modelID string) (bool, error) {
	d.cfg.Model = modelID
	d.setModel(modelID)
	return true, nil
}

func (d *OpenRouterDriver) Generate(ctx context.Context, req llmtypes.Request) (*stream.Stream[llmtypes.Response], error) {
	defaultModel := req.Model
	if defaultModel == "" {
		defaultModel = d.cfg.Model
	}
	body := buildOpenAIRequest(req, defaultModel)
	openRouterLog.Info("sending request to openrouter", "model", body.Model, "messages", len(req.Messages), "tools", len(req.Tools))

	endpoint := d.baseURL + "/chat/completions"
	if req.Stream {
		return d.generateSSE(ctx, endpoint, body)
	}
	return d.generateNonStream(ctx, endpoint, body)
}
