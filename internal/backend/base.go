package backend

import (
	"net/http"
	"sync"
	"time"

	"github.com/agentcore/qcode/internal/llmtypes"
)

// httpClientWithTimeout builds an http.Client with an overall request
// timeout. Each driver builds its own client with it and uses that client
// for every call, streaming ones included, so the timeout also bounds how
// long a streamed response may run.
func httpClientWithTimeout(d time.Duration) *http.Client {
	return &http.Client{Timeout: d}
}

// base holds the bookkeeping shared by every Driver implementation:
// status, last-check timestamp, and a time-boxed model cache. Embed it
// rather than duplicating this state in each driver.
type base struct {
	mu sync.RWMutex

	name   string
	typ    string
	host   string
	port   int
	status llmtypes.BackendStatus
	model  string
	errMsg string

	lastCheck *time.Time

	cacheTTL  time.Duration
	cachedAt  time.Time
	cached    []string
}

func newBase(name, typ, host string, port int, cacheTTL time.Duration) base {
	return base{name: name, typ: typ, host: host, port: port, cacheTTL: cacheTTL, status: llmtypes.StatusUnknown}
}

func (b *base) setStatus(s llmtypes.BackendStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = s
	now := time.Now()
	b.lastCheck = &now
	if s != llmtypes.StatusErrored {
		b.errMsg = ""
	}
}

func (b *base) setError(s llmtypes.BackendStatus, msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = s
	b.errMsg = msg
	now := time.Now()
	b.lastCheck = &now
}

func (b *base) Status() llmtypes.BackendStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

func (b *base) setModel(m string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.model = m
}

func (b *base) currentModel() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.model
}

// cachedModels returns (models, true) if the cache is still within TTL,
// mirroring every Python backend's `(current_time - self._model_cache_time)
// < self._model_cache_ttl` check.
func (b *base) cachedModels() ([]string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.cached) == 0 {
		return nil, false
	}
	if time.Since(b.cachedAt) >= b.cacheTTL {
		return nil, false
	}
	return b.cached, true
}

func (b *base) storeModels(models []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cached = models
	b.cachedAt = time.Now()
}

// invalidateModelCache forces the next ListModels call to refetch.
func (b *base) invalidateModelCache() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cachedAt = time.Time{}
}

func (b *base) info() llmtypes.BackendInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return llmtypes.BackendInfo{
		Name:         b.name,
		Type:         b.typ,
		Host:         b.host,
		Port:         b.port,
		Model:        b.model,
		Status:       b.status,
		LastCheck:    b.lastCheck,
		ErrorMessage: b.errMsg,
	}
}
