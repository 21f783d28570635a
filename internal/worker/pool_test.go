package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewWorkerPool(t *testing.T) {
	tests := []struct {
		name        string
		config      PoolConfig
		wantWorkers int
	}{
		{
			name:        "default config",
			config:      PoolConfig{},
			wantWorkers: 4,
		},
		{
			name: "custom config",
			config: PoolConfig{
				NumWorkers: 8,
				QueueSize:  500,
				JobTimeout: 10 * time.Second,
			},
			wantWorkers: 8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewWorkerPool(tt.config)
			defer pool.Stop()

			if len(pool.workers) != tt.wantWorkers {
				t.Errorf("workers = %d, want %d", len(pool.workers), tt.wantWorkers)
			}
		})
	}
}

// runTask queues task and waits for its result
func runTask(pool *WorkerPool, task Task) error {
	done, err := pool.Go(context.Background(), task)
	if err != nil {
		return err
	}
	return <-done
}

func TestWorkerPool_Run(t *testing.T) {
	var done int64
	pool := NewWorkerPool(PoolConfig{NumWorkers: 2})
	pool.Start()
	defer pool.Stop()

	for i := 0; i < 10; i++ {
		err := runTask(pool, func(ctx context.Context) error {
			atomic.AddInt64(&done, 1)
			return nil
		})
		if err != nil {
			t.Fatalf("task error = %v", err)
		}
	}

	if atomic.LoadInt64(&done) != 10 {
		t.Errorf("tasks run = %d, want 10", done)
	}

	m := pool.Metrics()
	if m.JobsProcessed != 10 || m.JobsFailed != 0 {
		t.Errorf("metrics = %+v", m)
	}
	if m.SuccessRate() != 100 {
		t.Errorf("SuccessRate() = %v, want 100", m.SuccessRate())
	}
	if m.Utilization() != 0 {
		t.Errorf("Utilization() = %v, want 0 with an empty queue", m.Utilization())
	}
}

func TestWorkerPool_TaskError(t *testing.T) {
	wantErr := errors.New("boom")
	var observed error

	pool := NewWorkerPool(PoolConfig{
		NumWorkers: 1,
		OnJobDone: func(err error, _ time.Duration) {
			observed = err
		},
	})
	pool.Start()
	defer pool.Stop()

	err := runTask(pool, func(ctx context.Context) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("task error = %v, want %v", err, wantErr)
	}
	if !errors.Is(observed, wantErr) {
		t.Errorf("OnJobDone saw %v, want %v", observed, wantErr)
	}
	m := pool.Metrics()
	if m.JobsFailed != 1 {
		t.Errorf("JobsFailed = %d, want 1", m.JobsFailed)
	}
	if m.SuccessRate() != 0 {
		t.Errorf("SuccessRate() = %v, want 0", m.SuccessRate())
	}
}

func TestWorkerPool_Timeout(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{NumWorkers: 1, JobTimeout: 20 * time.Millisecond})
	pool.Start()
	defer pool.Stop()

	err := runTask(pool, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, ErrJobTimeout) {
		t.Errorf("task error = %v, want %v", err, ErrJobTimeout)
	}
	if pool.Metrics().JobsTimeout != 1 {
		t.Errorf("JobsTimeout = %d, want 1", pool.Metrics().JobsTimeout)
	}
}

func TestWorkerPool_GoPreservesResults(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{NumWorkers: 4, QueueSize: 16})
	pool.Start()
	defer pool.Stop()

	results := make([]int, 16)
	chans := make([]<-chan error, 16)
	for i := range results {
		i := i
		ch, err := pool.Go(context.Background(), func(ctx context.Context) error {
			results[i] = i * i
			return nil
		})
		if err != nil {
			t.Fatalf("Go() error = %v", err)
		}
		chans[i] = ch
	}

	for i, ch := range chans {
		if err := <-ch; err != nil {
			t.Errorf("task %d error = %v", i, err)
		}
		if results[i] != i*i {
			t.Errorf("results[%d] = %d, want %d", i, results[i], i*i)
		}
	}
}

func TestWorkerPool_Stopped(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{NumWorkers: 1})
	pool.Start()
	pool.Stop()

	_, err := pool.Go(context.Background(), func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Go() after Stop error = %v, want %v", err, ErrPoolClosed)
	}

	// second Stop is a no-op
	if err := pool.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}
