// Package workerpool implements the FFT worker pool of spec §4.3: a
// pool of W worker goroutines servicing a FIFO job queue guarded by a
// mutex, with a condition variable waking exactly one worker per
// enqueue, and a free list of job descriptors to avoid allocator
// pressure on the hot path. Shaped directly on the teacher's
// transmit-queue (tq.go: tq_mutex, wake_up_cond, wake_up_mutex)
// generalized from a queue of AX.25 packets to a queue of FFT jobs.
package workerpool

import (
	"sync"

	"github.com/charmbracelet/log"
)

// MaxWorkers is the configuration ceiling from spec §4.3.
const MaxWorkers = 20

// Job is one unit of work: run fn, then signal completion. Jobs are
// borrowed from a free list and returned after the worker finishes
// them; with W=0 Submit runs fn inline and borrows no Job — spec §3
// "Allocated from a free-list; never freed during normal operation."
type Job struct {
	fn   func()
	next *Job
}

// Pool is a FIFO of jobs serviced by W persistent worker goroutines,
// or executed inline by the caller when W==0 (spec §4.3's "inline
// fallback").
type Pool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	head     *Job
	tail     *Job
	free     *Job
	terminate bool
	workers  int
	wg       sync.WaitGroup
	logger   *log.Logger
}

// New starts a pool of W workers (0 <= W <= MaxWorkers). W=0 means
// every Submit runs synchronously on the caller's goroutine — the
// choice is frozen at creation, matching spec §4.2's "The choice of
// inline vs. workers is frozen at filter creation."
func New(workers int, logger *log.Logger) *Pool {
	if workers < 0 {
		workers = 0
	}
	if workers > MaxWorkers {
		workers = MaxWorkers
	}
	if logger == nil {
		logger = log.Default()
	}
	p := &Pool{workers: workers, logger: logger}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.runWorker(i)
	}
	return p
}

// Submit runs fn, either inline (W==0) or on a pooled worker. It
// blocks until fn has completed, matching the synchronous
// request/notify contract an input filter needs from execute-input
// (spec §4.2): the forward FFT must finish, bins must be written, and
// the completion broadcast must happen before execute-input returns.
func (p *Pool) Submit(fn func()) {
	if p.workers == 0 {
		fn()
		return
	}

	done := make(chan struct{})
	job := p.getJob()
	job.fn = func() {
		fn()
		close(done)
	}
	p.enqueue(job)
	<-done
}

func (p *Pool) getJob() *Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.free != nil {
		j := p.free
		p.free = j.next
		j.next = nil
		return j
	}
	return &Job{}
}

func (p *Pool) putJob(j *Job) {
	p.mu.Lock()
	defer p.mu.Unlock()
	j.fn = nil
	j.next = p.free
	p.free = j
}

func (p *Pool) enqueue(j *Job) {
	p.mu.Lock()
	j.next = nil
	if p.tail == nil {
		p.head = j
		p.tail = j
	} else {
		p.tail.next = j
		p.tail = j
	}
	p.mu.Unlock()
	p.cond.Signal() // wake exactly one worker, not a broadcast
}

func (p *Pool) dequeue() (*Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.head == nil && !p.terminate {
		p.cond.Wait()
	}
	if p.head == nil && p.terminate {
		return nil, false
	}
	j := p.head
	p.head = j.next
	if p.head == nil {
		p.tail = nil
	}
	return j, true
}

func (p *Pool) runWorker(id int) {
	defer p.wg.Done()
	for {
		job, ok := p.dequeue()
		if !ok {
			return
		}
		fn := job.fn
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("worker job panicked", "worker", id, "recover", r)
				}
			}()
			fn()
		}()
		p.putJob(job)
	}
}

// Close terminates all workers and waits for them to exit. Workers
// "never shut down in normal operation" per spec §4.3/§5 — Close is
// for orderly process shutdown, not part of the steady-state loop.
func (p *Pool) Close() {
	p.mu.Lock()
	p.terminate = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}

// Workers reports the configured pool size (0 means inline execution).
func (p *Pool) Workers() int { return p.workers }
