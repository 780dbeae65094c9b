package jobqueue

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/Marketly/internal/pkg/env"
	metrics "github.com/ManuelReschke/Marketly/internal/pkg/metrics/counter"
)

const (
	defaultWorkerCount  = 5
	defaultCounterFlush = 5 * time.Second
	workerCountEnvKey   = "JOB_QUEUE_WORKERS"
	counterFlushEnvKey  = "COUNTER_FLUSH_SECONDS"
)

// Manager manages the global job queue and background tasks
type Manager struct {
	queue              *Queue
	counterFlushTicker *time.Ticker
	flushInterval      time.Duration
	flush              func() error
	stopCh             chan struct{}
	wg                 sync.WaitGroup
	mu                 sync.Mutex
	running            bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = &Manager{
			queue:         NewQueue(workerCount()),
			flushInterval: counterFlushInterval(),
			flush:         metrics.FlushAll,
			stopCh:        make(chan struct{}),
		}
	})
	return globalManager
}

func workerCount() int {
	n := env.GetEnvInt(workerCountEnvKey, defaultWorkerCount)
	if n <= 0 {
		return defaultWorkerCount
	}
	return n
}

func counterFlushInterval() time.Duration {
	secs := env.GetEnvInt(counterFlushEnvKey, int(defaultCounterFlush/time.Second))
	if secs <= 0 {
		return defaultCounterFlush
	}
	return time.Duration(secs) * time.Second
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Configure registers the job handlers on the managed queue.
func (m *Manager) Configure(p *Processors) {
	p.Register(m.queue)
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	// Counter flush worker (Redis -> DB)
	m.counterFlushTicker = time.NewTicker(m.flushInterval)
	m.wg.Add(1)
	go m.counterFlushWorker(m.stopCh, m.counterFlushTicker)

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.counterFlushTicker != nil {
		m.counterFlushTicker.Stop()
	}

	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	// Final flush so buffered counters survive a restart
	if err := m.flush(); err != nil {
		log.Errorf("[JobQueue Manager] Final counter flush error: %v", err)
	}

	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// counterFlushWorker periodically flushes buffered counters from Redis to DB
func (m *Manager) counterFlushWorker(stopCh <-chan struct{}, ticker *time.Ticker) {
	defer m.wg.Done()
	for {
		select {
		case <-stopCh:
			log.Info("[JobQueue Manager] Counter flush worker stopping")
			return
		case <-ticker.C:
			if err := m.flush(); err != nil {
				log.Errorf("[JobQueue Manager] Counter flush error: %v", err)
			}
		}
	}
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
