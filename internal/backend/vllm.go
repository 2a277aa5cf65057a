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

var vllmLog = logx.For("backend.vllm")

// VLLMDriver speaks vLLM's OpenAI-compatible API, grounded on
// original_source backends/vllm.py. Unlike LM Studio, vLLM serves a single
// fixed model so there is no hot-swap detection.
type VLLMDriver struct {
	openAICompatCore
	cfg config.VLLMConfig
}

func NewVLLMDriver(cfg config.VLLMConfig) *VLLMDriver {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &VLLMDriver{
		openAICompatCore: openAICompatCore{
			base:       newBase("vllm", "vllm", cfg.Host, cfg.Port, 5*time.Minute),
			httpClient: httpClientWithTimeout(timeout),
		},
		cfg: cfg,
	}
}

func (d *VLLMDriver) Type() string { return "vllm" }

func (d *VLLMDriver) baseURL() string {
	return fmt.Sprintf("http://%s:%d/v1", d.cfg.Host, d.cfg.Port)
}

func (d *VLLMDriver) Initialize(ctx context.Context) error {
	vllmLog.Info("initializing vllm backend", "host", d.cfg.Host, "port", d.cfg.Port)
	if err := d.HealthCheck(ctx); err != nil {
		d.setError(llmtypes.StatusErrored, err.Error())
		return apperrors.New(apperrors.KindBackend, apperrors.SubConnection,
			fmt.Sprintf("failed to connect to vLLM at %s", d.baseURL())).
			WithGuidance("Check that the vLLM OpenAI-compatible server is running at the configured host/port.")
	}
	d.setStatus(llmtypes.StatusConnected)
	vllmLog.Info("vllm backend initialized")
	return nil
}

func (d *VLLMDriver) Cleanup(ctx context.Context) error {
	d.setStatus(llmtypes.StatusDisconnected)
	vllmLog.Info("vllm backend cleaned up")
	return nil
}

func (d *VLLMDriver) HealthCheck(ctx context.Context) error {
	err := d.healthCheck(ctx, d.baseURL()+"/models")
	if err != nil {
		vllmLog.Debug("vllm health check failed", "error", err)
	}
	return err
}

func (d *VLLMDriver) ListModels(ctx context.Context) ([]string, error) {
	return d.listModels(ctx, d.baseURL()+"/models")
}

func (d *VLLMDriver) Info() llmtypes.BackendInfo {
	info := d.base.info()
	models, ok := d.cachedModels()
	if ok {
		caps := []string{fmt.Sprintf("models: %d", len(models))}
		for i, m := range models {
			if i >= 5 {
				break
			}
			caps = append(caps, m)
		}
		info.Capabilities = caps
		if len(models) > 0 {
			info.Model = models[0]
		}
	}
	return info
}

// SwitchModel is unsupported: vLLM serves exactly one fixed model per
// server process.
func (d *VLLMDriver) SwitchModel(ctx context.Context, modelID string) (bool, error) {
	return false, apperrors.New(apperrors.KindBackend, apperrors.SubUnsupported,
		"vLLM does not support switching models at runtime")
}

func (d *VLLMDriver) Generate(ctx context.Context, req llmtypes.Request) (*stream.Stream[llmtypes.Response], error) {
	defaultModel := req.Model
	if defaultModel == "" {
		defaultModel = d.cfg.Model
	}
	body := buildOpenAIRequest(req, defaultModel)
	vllmLog.Info("sending request to vllm", "model", body.Model, "messages", len(req.Messages), "tools", len(req.Tools))

	endpoint := d.baseURL() + "/chat/completions"
	if req.Stream {
		return d.generateSSE(ctx, endpoint, body)
	}
	return d.generateNonStream(ctx, endpoint, body)
}
