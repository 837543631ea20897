package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"provably-fair-dice/internal/middleware"
	"provably-fair-dice/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type seqSeeds struct {
	mu      sync.Mutex
	servers int
	clients int
}

func (s *seqSeeds) NewServerSeed() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servers++
	return fmt.Sprintf("server-seed-%d", s.servers)
}

func (s *seqSeeds) NewClientSeed() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients++
	return fmt.Sprintf("clientseed%d", s.clients)
}

// inlineScheduler settles a bet before PlaceBet returns.
type inlineScheduler struct{}

func (inlineScheduler) AfterFunc(_ time.Duration, f func()) { f() }

// heldScheduler never settles.
type heldScheduler struct{}

func (heldScheduler) AfterFunc(time.Duration, func()) {}

func newRegistry(t *testing.T, scheduler services.Scheduler, broadcaster services.Broadcaster) *services.LedgerRegistry {
	t.Helper()

	registry, err := services.NewLedgerRegistry(&services.RegistryConfig{
		StartingBalance: 1000,
		DefaultBet:      10,
		Seeds:           &seqSeeds{},
		Scheduler:       scheduler,
		Logger:          zap.NewNop(),
		Broadcaster:     broadcaster,
	})
	require.NoError(t, err)
	t.Cleanup(registry.Close)

	return registry
}

// asPlayer stands in for the JWT middleware.
func asPlayer(playerID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextPlayerID, playerID)
		c.Set(middleware.ContextSessionID, "session-1")
		c.Next()
	}
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}
