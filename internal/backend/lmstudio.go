package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/agentcore/qcode/internal/apperrors"
	"github.com/agentcore/qcode/internal/config"
	"github.com/agentcore/qcode/internal/llmtypes"
	"github.com/agentcore/qcode/internal/logx"
	"github.com/agentcore/qcode/internal/stream"
)

var lmStudioLog = logx.For("backend.lmstudio")

// LMStudioDriver speaks LM Studio's OpenAI-compatible API. Unlike the other
// OpenAI-compatible backends, LM Studio's active model is chosen in its GUI
// rather than per-request, so the driver polls /v1/models and treats the
// first entry as current, grounded on original_source backends/lm_studio.py.
type LMStudioDriver struct {
	openAICompatCore
	cfg config.LMStudioConfig
}

func NewLMStudioDriver(cfg config.LMStudioConfig) *LMStudioDriver {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	var authHeader string
	if cfg.APIKey != "" {
		authHeader = "Bearer " + cfg.APIKey
	}
	return &LMStudioDriver{
		openAICompatCore: openAICompatCore{
			base:               newBase("lm_studio", "lm_studio", cfg.Host, cfg.Port, time.Minute),
			httpClient:         httpClientWithTimeout(timeout),
			authHeader:         authHeader,
			detectCurrentModel: true,
		},
		cfg: cfg,
	}
}

func (d *LMStudioDriver) Type() string { return "lm_studio" }

func (d *LMStudioDriver) baseURL() string {
	return fmt.Sprintf("http://%s:%d/v1", d.cfg.Host, d.cfg.Port)
}

func (d *LMStudioDriver) Initialize(ctx context.Context) error {
	lmStudioLog.Info("initializing lm studio backend", "host", d.cfg.Host, "port", d.cfg.Port)
	if err := d.HealthCheck(ctx); err != nil {
		d.setError(llmtypes.StatusErrored, err.Error())
		return apperrors.New(apperrors.KindBackend, apperrors.SubConnection,
			fmt.Sprintf("failed to connect to LM Studio at %s", d.baseURL())).
			WithGuidance("Start LM Studio's local server and load a model.")
	}
	if _, err := d.ListModels(ctx); err != nil {
		lmStudioLog.Warn("initial model cache refresh failed", "error", err)
	}
	d.setStatus(llmtypes.StatusConnected)
	lmStudioLog.Info("lm studio backend initialized")
	return nil
}

func (d *LMStudioDriver) Cleanup(ctx context.Context) error {
	d.setStatus(llmtypes.StatusDisconnected)
	lmStudioLog.Info("lm studio backend cleaned up")
	return nil
}

func (d *LMStudioDriver) HealthCheck(ctx context.Context) error {
	err := d.healthCheck(ctx, d.baseURL()+"/models")
	if err != nil {
		lmStudioLog.Debug("lm studio health check failed", "error", err)
	}
	return err
}

func (d *LMStudioDriver) ListModels(ctx context.Context) ([]string, error) {
	return d.listModels(ctx, d.baseURL()+"/models")
}

func (d *LMStudioDriver) Info() llmtypes.BackendInfo {
	info := d.base.info()
	if models, ok := d.cachedModels(); ok {
		caps := []string{fmt.Sprintf("models: %d", len(models))}
		for i, m := range models {
			if i >= 3 {
				caps = append(caps, fmt.Sprintf("... +%d more", len(models)-3))
				break
			}
			caps = append(caps, m)
		}
		info.Capabilities = caps
	}
	return info
}

// SwitchModel cannot force LM Studio's GUI to load a different model; it
// invalidates the cache and reports whether the requested model is now
// detected as current, matching original_source's switch_model.
func (d *LMStudioDriver) SwitchModel(ctx context.Context, modelID string) (bool, error) {
	lmStudioLog.Info("model switch requested", "current", d.currentModel(), "requested", modelID)
	d.invalidateModelCache()
	if _, err := d.ListModels(ctx); err != nil {
		return false, err
	}
	if d.currentModel() == modelID {
		lmStudioLog.Info("model switch detected", "model", modelID)
		return true, nil
	}
	lmStudioLog.Warn("model switch not detected, manual switch required in LM Studio GUI",
		"requested", modelID, "current", d.currentModel())
	return false, nil
}

func (d *LMStudioDriver) Generate(ctx context.Context, req llmtypes.Request) (*stream.Stream[llmtypes.Response], error) {
	defaultModel := req.Model
	if defaultModel == "" {
		defaultModel = d.currentModel()
	}
	body := buildOpenAIRequest(req, defaultModel)
	lmStudioLog.Info("sending request to lm studio", "model", body.Model, "messages", len(req.Messages), "tools", len(req.Tools))

	endpoint := d.baseURL() + "/chat/completions"
	if req.Stream {
		return d.generateSSE(ctx, endpoint, body)
	}
	return d.generateNonStream(ctx, endpoint, body)
}
