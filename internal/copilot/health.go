package copilot

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wealthops/wealthops-backend/internal/platform/logger"
)

type healthConfig struct {
	orchestratorURL string
	nl2sqlURL       string
	timeout         time.Duration
	interval        time.Duration
	client          *http.Client
}

// HealthMonitor polls the orchestrator and NL2SQL agent health endpoints
// while the copilot panel is open. Probes run in parallel with a bounded
// timeout; a failed probe reads false, it never errors. The snapshot is
// replaced as a whole so observers never see a half-updated status.
type HealthMonitor struct {
	cfg      healthConfig
	log      *logger.Logger
	onChange func(ServiceStatus)

	mu      sync.Mutex
	status  ServiceStatus
	stop    chan struct{}
	running bool
}

func newHealthMonitor(cfg healthConfig, log *logger.Logger, onChange func(ServiceStatus)) *HealthMonitor {
	if cfg.timeout <= 0 {
		cfg.timeout = defaultHealthTimeout
	}
	if cfg.interval <= 0 {
		cfg.interval = defaultHealthInterval
	}
	if cfg.client == nil {
		cfg.client = &http.Client{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &HealthMonitor{
		cfg:      cfg,
		log:      log.With("component", "HealthMonitor"),
		onChange: onChange,
	}
}

// Start launches the polling loop: one probe immediately, then one per
// interval. Calling Start on a running monitor is a no-op, so repeated
// open/close cycles never accumulate duplicate timers.
func (m *HealthMonitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	stop := make(chan struct{})
	m.stop = stop
	m.mu.Unlock()

	go m.run(stop)
}

// Stop tears the polling loop down. Idempotent.
func (m *HealthMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	close(m.stop)
	m.stop = nil
}

// Running reports whether the polling loop is active.
func (m *HealthMonitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Status returns the most recent snapshot.
func (m *HealthMonitor) Status() ServiceStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *HealthMonitor) run(stop chan struct{}) {
	m.Refresh(context.Background())

	ticker := time.NewTicker(m.cfg.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.Refresh(context.Background())
		}
	}
}

// Refresh probes both services in parallel and publishes the combined
// snapshot atomically.
func (m *HealthMonitor) Refresh(ctx context.Context) ServiceStatus {
	var (
		orchestrator bool
		nl2sql       bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		orchestrator = m.probe(gctx, m.cfg.orchestratorURL)
		return nil
	})
	g.Go(func() error {
		nl2sql = m.probe(gctx, m.cfg.nl2sqlURL)
		return nil
	})
	_ = g.Wait()

	status := ServiceStatus{Orchestrator: orchestrator, NL2SQL: nl2sql}

	m.mu.Lock()
	changed := status != m.status
	m.status = status
	m.mu.Unlock()

	if changed {
		m.log.Debug("service status changed",
			"orchestrator", status.Orchestrator,
			"nl2sql", status.NL2SQL,
		)
	}
	if m.onChange != nil {
		m.onChange(status)
	}
	return status
}

func (m *HealthMonitor) probe(ctx context.Context, baseURL string) bool {
	if baseURL == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, m.cfg.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := m.cfg.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
