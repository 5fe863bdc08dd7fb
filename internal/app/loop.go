package app

import (
	"log/slog"
	"sync"
)

// loop runs queued jobs one at a time on a single goroutine. Every job
// runs to completion before the next one starts.
type loop struct {
	jobs   chan func()
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func newLoop(logger *slog.Logger, buf int) *loop {
	l := &loop{
		jobs:   make(chan func(), buf),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
	go l.run()
	return l
}

func (l *loop) run() {
	defer close(l.done)
	for {
		select {
		case <-l.quit:
			return
		case job := <-l.jobs:
			l.exec(job)
		}
	}
}

func (l *loop) exec(job func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("job panicked", slog.Any("panic", r))
		}
	}()
	job()
}

// Post queues fn and reports false once the loop is closed. It must not
// be called from a job while the queue is full.
func (l *loop) Post(fn func()) bool {
	select {
	case <-l.quit:
		return false
	default:
	}
	select {
	case l.jobs <- fn:
		return true
	case <-l.quit:
		return false
	}
}

// Do queues fn and waits for it to run. Calling Do from a job deadlocks.
func (l *loop) Do(fn func()) bool {
	ran := make(chan struct{})
	if !l.Post(func() {
		defer close(ran)
		fn()
	}) {
		return false
	}
	select {
	case <-ran:
		return true
	case <-l.done:
		select {
		case <-ran:
			return true
		default:
			return false
		}
	}
}

// Close stops the loop after the running job. Queued jobs are dropped.
func (l *loop) Close() {
	l.once.Do(func() { close(l.quit) })
	<-l.done
}
