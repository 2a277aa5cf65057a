package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/agentcore/qcode/internal/config"
	"github.com/agentcore/qcode/internal/llmtypes"
	"github.com/stretchr/testify/require"
)

func ollamaConfigFor(t *testing.T, srv *httptest.Server) config.OllamaConfig {
	t.Helper()
	host, port := splitTestServerAddr(t, srv)
	return config.OllamaConfig{Host: host, Port: port, Model: "qwen2.5-coder:latest", Timeout: 30}
}

func splitTestServerAddr(t *testing.T, srv *httptest.Server) (string, int) {
	t.Helper()
	u := strings.TrimPrefix(srv.URL, "http://")
	parts := strings.SplitN(u, ":", 2)
	require.Len(t, parts, 2)
	var port int
	_, err := fmt.Sscanf(parts[1], "%d", &port)
	require.NoError(t, err)
	return parts[0], port
}

func TestOllamaDriver_InitializeAndHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/version" {
			w.Write([]byte(`{"version":"0.1.0"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d := NewOllamaDriver(ollamaConfigFor(t, srv))
	require.NoError(t, d.Initialize(context.Background()))
	require.Equal(t, llmtypes.StatusConnected, d.Info().Status)
}

func TestOllamaDriver_ListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/version":
			w.Write([]byte(`{"version":"0.1.0"}`))
		case "/api/tags":
			w.Write([]byte(`{"models":[{"name":"qwen2.5-coder:latest"},{"name":"llama3:8b"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	d := NewOllamaDriver(ollamaConfigFor(t, srv))
	models, err := d.ListModels(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"qwen2.5-coder:latest", "llama3:8b"}, models)
}

func TestOllamaDriver_GenerateStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		lines := []string{
			`{"model":"qwen2.5-coder:latest","message":{"role":"assistant","content":"Hel"},"done":false}`,
			`{"model":"qwen2.5-coder:latest","message":{"role":"assistant","content":"lo"},"done":false}`,
			`{"model":"qwen2.5-coder:latest","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":5,"eval_count":2}`,
		}
		for _, l := range lines {
			fmt.Fprintln(w, l)
		}
	}))
	defer srv.Close()

	d := NewOllamaDriver(ollamaConfigFor(t, srv))
	req := llmtypes.Request{Messages: []llmtypes.Message{{Role: llmtypes.RoleUser, Content: "hi"}}, Stream: true}
	out, err := d.Generate(context.Background(), req)
	require.NoError(t, err)

	var deltas []string
	var finishReason string
	for {
		r, ok := out.Recv()
		if !ok {
			break
		}
		if r.IsPartial {
			deltas = append(deltas, r.Delta)
		}
		if r.FinishReason != "" {
			finishReason = r.FinishReason
		}
	}
	require.Equal(t, []string{"Hel", "lo"}, deltas)
	require.Equal(t, "stop", finishReason)
}
