package orchestrator

import (
	"sync"
	"time"
)

// Tick is one proactive timer firing.
type Tick struct {
	At time.Time
}

// Scheduler is a restartable recurring timer. At most one tick is ever
// pending: if the consumer has not taken the previous tick, the next one is
// dropped rather than queued.
type Scheduler struct {
	mu       sync.Mutex
	ticks    chan Tick
	stop     chan struct{}
	done     chan struct{}
	interval time.Duration
	running  bool
}

func NewScheduler() *Scheduler {
	return &Scheduler{ticks: make(chan Tick, 1)}
}

// C delivers ticks.
func (s *Scheduler) C() <-chan Tick {
	return s.ticks
}

// Start runs the timer with the given period. Starting with the period
// already in effect is a no-op; any other period stops the running timer
// first and starts a fresh one.
func (s *Scheduler) Start(interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.mu.Lock()
	if s.running && s.interval == interval {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = interval
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true
	go s.run(interval, s.stop, s.done)
}

// Stop halts the timer and discards a tick that has fired but not yet been
// received. After Stop returns no tick is delivered until the next Start.
// It must be called from the goroutine that consumes C.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done

	select {
	case <-s.ticks:
	default:
	}
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *Scheduler) run(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			select {
			case s.ticks <- Tick{At: now}:
			default:
			}
		}
	}
}
