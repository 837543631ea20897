package services_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"provably-fair-dice/internal/config"
	"provably-fair-dice/internal/models"
	"provably-fair-dice/internal/services"
)

// seqSeeds hands out predictable seeds: server-seed-N and clientseedN, unless
// a server seed override is queued.
type seqSeeds struct {
	mu        sync.Mutex
	servers   int
	clients   int
	overrides []string
}

func (s *seqSeeds) NewServerSeed() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.servers++
	if len(s.overrides) > 0 {
		seed := s.overrides[0]
		s.overrides = s.overrides[1:]
		return seed
	}
	return fmt.Sprintf("server-seed-%d", s.servers)
}

func (s *seqSeeds) NewClientSeed() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clients++
	return fmt.Sprintf("clientseed%d", s.clients)
}

// manualScheduler queues settlement callbacks until the test runs them.
type manualScheduler struct {
	mu      sync.Mutex
	pending []func()
	delays  []time.Duration
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, f)
	s.delays = append(s.delays, d)
}

func (s *manualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *manualScheduler) RunAll() {
	s.mu.Lock()
	fns := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, f := range fns {
		f()
	}
}

type eventRecorder struct {
	mu     sync.Mutex
	events []models.LedgerEvent
}

func (r *eventRecorder) record(ev models.LedgerEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) Events() []models.LedgerEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.LedgerEvent(nil), r.events...)
}

func newTestRedis(t *testing.T) (*services.RedisService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	redisService, err := services.NewRedisService(&config.Config{RedisURL: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { redisService.Close() })

	return redisService, mr
}
