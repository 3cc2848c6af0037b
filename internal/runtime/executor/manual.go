package executor

import (
	"sort"
	"sync"
	"time"
)

// Manual is a deterministic Executor driven by the caller. Posted tasks run
// only inside RunPending, Drain or Advance, on the calling goroutine, and
// PostAfter timers follow a virtual clock that moves only through Advance.
type Manual struct {
	mu      sync.Mutex
	now     time.Duration
	ready   []func()
	timers  []*manualTimer
	seq     uint64
	stopped bool
}

type manualTimer struct {
	owner *Manual
	due   time.Duration
	seq   uint64
	task  func()
}

// NewManual returns a Manual executor whose virtual clock starts at zero.
func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) Post(task func()) error {
	if task == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrStopped
	}
	m.ready = append(m.ready, task)
	return nil
}

func (m *Manual) PostAfter(delay time.Duration, task func()) (Timer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, ErrStopped
	}
	if delay < 0 {
		delay = 0
	}
	m.seq++
	t := &manualTimer{owner: m, due: m.now + delay, seq: m.seq, task: task}
	m.timers = append(m.timers, t)
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].due == m.timers[j].due {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].due < m.timers[j].due
	})
	return t, nil
}

// RunPending runs the tasks queued at the time of the call and returns how
// many ran. Tasks they post are left for the next call.
func (m *Manual) RunPending() int {
	m.mu.Lock()
	batch := m.ready
	m.ready = nil
	m.mu.Unlock()

	for _, task := range batch {
		task()
	}
	return len(batch)
}

// Drain runs queued tasks until none are left, including tasks posted while
// draining. Timers are not fired.
func (m *Manual) Drain() int {
	total := 0
	for {
		n := m.RunPending()
		if n == 0 {
			return total
		}
		total += n
	}
}

// Advance moves the virtual clock forward by d, firing every timer that
// becomes due in order and draining the work each one produces.
func (m *Manual) Advance(d time.Duration) int {
	total := m.Drain()

	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		if len(m.timers) == 0 || m.timers[0].due > target {
			m.now = target
			m.mu.Unlock()
			return total
		}
		next := m.timers[0]
		m.timers = m.timers[1:]
		m.now = next.due
		if !m.stopped {
			m.ready = append(m.ready, next.task)
		}
		m.mu.Unlock()

		total += m.Drain()
	}
}

// Now returns the virtual time elapsed since the executor was created.
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending returns the number of queued tasks.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ready)
}

// Timers returns the number of armed timers.
func (m *Manual) Timers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Stop discards queued tasks and timers and rejects new work.
func (m *Manual) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	m.ready = nil
	m.timers = nil
}

func (t *manualTimer) Stop() bool {
	m := t.owner
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, armed := range m.timers {
		if armed == t {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return true
		}
	}
	return false
}
