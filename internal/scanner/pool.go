package scanner

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"time"

	"sitemedic/internal/store"
)

// Pool is a competing-consumers worker pool: each worker polls for queued
// scans and relies on the atomic claim to decide who runs one. There is no
// central scheduler.
type Pool struct {
	db      *sql.DB
	runner  *Runner
	workers int
	poll    time.Duration

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewPool creates a pool of workers polling every poll interval.
func NewPool(db *sql.DB, runner *Runner, workers int, poll time.Duration) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if poll <= 0 {
		poll = 3 * time.Second
	}
	return &Pool{
		db:      db,
		runner:  runner,
		workers: workers,
		poll:    poll,
		stop:    make(chan struct{}),
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i + 1)
	}
	log.Printf("[Pool] %d scan workers started (poll=%s)", p.workers, p.poll)
}

// Stop signals the workers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	close(p.stop)
	p.wg.Wait()
	log.Printf("[Pool] Scan workers stopped")
}

func (p *Pool) worker(n int) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.drain(n)
		}
	}
}

// drain runs queued scans until the queue is empty. A lost claim race is
// not an error, the other worker has the job.
func (p *Pool) drain(n int) {
	for {
		select {
		case <-p.stop:
			return
		default:
		}

		id, err := store.NextQueuedScan(p.db)
		if err != nil {
			log.Printf("⚠️  [Worker %d] queue poll: %v", n, err)
			return
		}
		if id == 0 {
			return
		}
		p.runOne(n, id)
	}
}

// runOne executes a single scan with panic isolation so one hostile tree
// cannot take the pool down.
func (p *Pool) runOne(n int, id int64) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ [Worker %d] recovered from panic on scan %d: %v", n, id, r)
		}
	}()

	if err := p.runner.Run(context.Background(), id); err != nil {
		log.Printf("❌ [Worker %d] scan %d: %v", n, id, err)
	}
}
