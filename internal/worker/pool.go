package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrPoolClosed = errors.New("worker pool is closed")
	ErrJobTimeout = errors.New("job execution timeout")
)

// Task is one unit of work executed by a worker
type Task func(ctx context.Context) error

// PoolConfig holds configuration for the worker pool
type PoolConfig struct {
	Name       string
	NumWorkers int
	QueueSize  int
	JobTimeout time.Duration

	// OnJobDone is called after every job with its outcome and duration
	OnJobDone func(err error, elapsed time.Duration)
}

// WorkerPool runs tasks on a fixed set of goroutines
type WorkerPool struct {
	config   PoolConfig
	workers  []*worker
	jobQueue chan *job

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	// Metrics
	jobsProcessed uint64
	jobsFailed    uint64
	jobsTimeout   uint64
	workersActive int64
}

// worker represents a single worker in the pool
type worker struct {
	id   int
	pool *WorkerPool

	jobsProcessed uint64
	jobsFailed    uint64
	lastActive    atomic.Int64
}

// job represents a unit of work
type job struct {
	task     Task
	ctx      context.Context
	resultCh chan error
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(config PoolConfig) *WorkerPool {
	if config.NumWorkers <= 0 {
		config.NumWorkers = 4
	}
	if config.QueueSize <= 0 {
		config.QueueSize = config.NumWorkers * 4
	}
	if config.JobTimeout == 0 {
		config.JobTimeout = 30 * time.Second
	}
	if config.Name == "" {
		config.Name = "default"
	}

	pool := &WorkerPool{
		config:   config,
		workers:  make([]*worker, config.NumWorkers),
		jobQueue: make(chan *job, config.QueueSize),
	}

	for i := 0; i < config.NumWorkers; i++ {
		pool.workers[i] = &worker{id: i, pool: pool}
	}

	return pool
}

// Start starts all workers in the pool
func (p *WorkerPool) Start() {
	for _, w := range p.workers {
		p.wg.Add(1)
		go w.run()
	}
}

// Go queues a task and returns a channel that receives its result.
// It blocks while the queue is full.
func (p *WorkerPool) Go(ctx context.Context, task Task) (<-chan error, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	j := &job{
		task:     task,
		ctx:      ctx,
		resultCh: make(chan error, 1),
	}

	select {
	case p.jobQueue <- j:
		return j.resultCh, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop lets queued jobs drain and waits for the workers to exit
func (p *WorkerPool) Stop() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobQueue)
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

// run is the main worker loop
func (w *worker) run() {
	defer w.pool.wg.Done()

	for j := range w.pool.jobQueue {
		w.processJob(j)
	}
}

// processJob processes a single job
func (w *worker) processJob(j *job) {
	atomic.AddInt64(&w.pool.workersActive, 1)
	defer atomic.AddInt64(&w.pool.workersActive, -1)

	start := time.Now()
	w.lastActive.Store(start.UnixNano())

	ctx, cancel := context.WithTimeout(j.ctx, w.pool.config.JobTimeout)
	defer cancel()

	var err error
	if cerr := ctx.Err(); cerr != nil {
		err = cerr
	} else {
		err = j.task(ctx)
	}
	if errors.Is(err, context.DeadlineExceeded) && j.ctx.Err() == nil {
		atomic.AddUint64(&w.pool.jobsTimeout, 1)
		err = ErrJobTimeout
	}

	atomic.AddUint64(&w.jobsProcessed, 1)
	atomic.AddUint64(&w.pool.jobsProcessed, 1)
	if err != nil {
		atomic.AddUint64(&w.jobsFailed, 1)
		atomic.AddUint64(&w.pool.jobsFailed, 1)
	}

	if w.pool.config.OnJobDone != nil {
		w.pool.config.OnJobDone(err, time.Since(start))
	}

	j.resultCh <- err
}

// Metrics returns worker pool statistics
func (p *WorkerPool) Metrics() PoolMetrics {
	workerMetrics := make([]WorkerMetrics, len(p.workers))
	for i, w := range p.workers {
		workerMetrics[i] = WorkerMetrics{
			ID:            w.id,
			JobsProcessed: atomic.LoadUint64(&w.jobsProcessed),
			JobsFailed:    atomic.LoadUint64(&w.jobsFailed),
			LastActive:    time.Unix(0, w.lastActive.Load()),
		}
	}

	return PoolMetrics{
		NumWorkers:    len(p.workers),
		JobsProcessed: atomic.LoadUint64(&p.jobsProcessed),
		JobsFailed:    atomic.LoadUint64(&p.jobsFailed),
		JobsTimeout:   atomic.LoadUint64(&p.jobsTimeout),
		WorkersActive: atomic.LoadInt64(&p.workersActive),
		QueueSize:     len(p.jobQueue),
		QueueCapacity: cap(p.jobQueue),
		WorkerMetrics: workerMetrics,
	}
}

// PoolMetrics holds worker pool statistics
type PoolMetrics struct {
	NumWorkers    int
	JobsProcessed uint64
	JobsFailed    uint64
	JobsTimeout   uint64
	WorkersActive int64
	QueueSize     int
	QueueCapacity int
	WorkerMetrics []WorkerMetrics
}

// WorkerMetrics holds individual worker statistics
type WorkerMetrics struct {
	ID            int
	JobsProcessed uint64
	JobsFailed    uint64
	LastActive    time.Time
}

// Utilization returns the queue utilization percentage (0-100)
func (m PoolMetrics) Utilization() float64 {
	if m.QueueCapacity == 0 {
		return 0
	}
	return (float64(m.QueueSize) / float64(m.QueueCapacity)) * 100.0
}

// SuccessRate returns the job success rate percentage (0-100)
func (m PoolMetrics) SuccessRate() float64 {
	total := m.JobsProcessed
	if total == 0 {
		return 100.0
	}
	successful := total - m.JobsFailed
	return (float64(successful) / float64(total)) * 100.0
}
