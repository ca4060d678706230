// Package health implements the liveness and readiness endpoints of the bot.
package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
)

// Gate tracks whether the service finished starting up and the state of its components.
type Gate struct {
	ready      int32
	mu         sync.RWMutex
	components map[string]bool
}

// New returns a Gate that is not ready.
func New() *Gate {
	return &Gate{components: make(map[string]bool)}
}

// SetReady flips the readiness of the whole service.
func (g *Gate) SetReady(ready bool) {
	if ready {
		atomic.StoreInt32(&g.ready, 1)
	} else {
		atomic.StoreInt32(&g.ready, 0)
	}
}

// Ready reports whether the service is ready and every registered component is up.
func (g *Gate) Ready() bool {
	if atomic.LoadInt32(&g.ready) == 0 {
		return false
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, up := range g.components {
		if !up {
			return false
		}
	}

	return true
}

// Set records the state of a named component (store, broker, relay...).
func (g *Gate) Set(component string, up bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.components[component] = up
}

// LivenessHandler always replies OK while the process serves HTTP.
func (g *Gate) LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type status struct {
	Status     string          `json:"status"`
	Components map[string]bool `json:"components"`
}

// ReadinessHandler replies 200 with the component states when ready, 503 otherwise.
func (g *Gate) ReadinessHandler(w http.ResponseWriter, _ *http.Request) {
	res := status{Status: "Ready", Components: make(map[string]bool)}

	g.mu.RLock()
	for name, up := range g.components {
		res.Components[name] = up
	}
	g.mu.RUnlock()

	code := http.StatusOK
	if !g.Ready() {
		res.Status = "Not Ready"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(res)
}
