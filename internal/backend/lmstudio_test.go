package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agentcore/qcode/internal/config"
	"github.com/agentcore/qcode/internal/llmtypes"
	"github.com/stretchr/testify/require"
)

func lmStudioConfig(host string, port int) config.LMStudioConfig {
	return config.LMStudioConfig{Host: host, Port: port, Timeout: 30}
}

func TestLMStudioDriver_DetectsCurrentModelFromFirstEntry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"data":[{"id":"qwen2.5-coder-7b"},{"id":"llama3"}]}`))
	}))
	defer srv.Close()

	host, port := splitTestServerAddr(t, srv)
	d := NewLMStudioDriver(lmStudioConfig(host, port))
	require.NoError(t, d.Initialize(context.Background()))
	require.Equal(t, "qwen2.5-coder-7b", d.currentModel())
}

func TestLMStudioDriver_GenerateStreamingSSE(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/models":
			w.Write([]byte(`{"data":[{"id":"qwen2.5-coder-7b"}]}`))
		case "/v1/chat/completions":
			w.Header().Set("Content-Type", "text/event-stream")
			lines := []string{
				`data: {"model":"qwen2.5-coder-7b","choices":[{"delta":{"content":"Hi"},"finish_reason":null}]}`,
				`data: {"model":"qwen2.5-coder-7b","choices":[{"delta":{"content":" there"},"finish_reason":"stop"}]}`,
				`data: [DONE]`,
			}
			for _, l := range lines {
				fmt.Fprintln(w, l)
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	host, port := splitTestServerAddr(t, srv)
	d := NewLMStudioDriver(lmStudioConfig(host, port))
	req := llmtypes.Request{Messages: []llmtypes.Message{{Role: llmtypes.RoleUser, Content: "hi"}}, Stream: true}
	out, err := d.Generate(context.Background(), req)
	require.NoError(t, err)

	var got string
	for {
		r, ok := out.Recv()
		if !ok {
			break
		}
		got += r.Delta
	}
	require.Equal(t, "Hi there", got)
}
