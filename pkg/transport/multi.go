package transport

import (
	"context"
	"sync"
	"time"
)

// transfer is one handle registered with a netMulti.
type transfer struct {
	h         *netHandle
	ctx       context.Context
	cancel    context.CancelFunc
	started   bool
	finished  chan struct{}
	// completed is set once the completion message is queued.
	completed bool
}

// netMulti runs each started transfer on its own goroutine and reports
// completions through a queue drained with InfoRead.
type netMulti struct {
	engine *NetEngine
	dns    *dnsCache
	locks  *lockTable

	mu        sync.Mutex
	closed    bool
	maxTotal  int
	transfers map[*netHandle]*transfer
	waiting   []*transfer
	running   int
	done      []Message
	notify    chan struct{}
}

func newNetMulti(e *NetEngine) *netMulti {
	return &netMulti{
		engine:    e,
		dns:       newDNSCache(),
		locks:     newLockTable(),
		transfers: make(map[*netHandle]*transfer),
		notify:    make(chan struct{}, 1),
	}
}

// Add implements Multi.
func (m *netMulti) Add(h Handle) Code {
	nh, ok := h.(*netHandle)
	if !ok || nh == nil {
		return CodeBadEasyHandle
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return CodeBadHandle
	}

	nh.mu.Lock()
	defer nh.mu.Unlock()
	switch {
	case nh.closed || !nh.configured || nh.executing:
		return CodeBadEasyHandle
	case nh.multi != nil:
		return CodeAddedAlready
	}
	nh.multi = m

	ctx, cancel := context.WithCancel(context.Background())
	tr := &transfer{h: nh, ctx: ctx, cancel: cancel, finished: make(chan struct{})}
	m.transfers[nh] = tr
	m.waiting = append(m.waiting, tr)
	return CodeOK
}

// Remove implements Multi. A running transfer is aborted and Remove waits
// for it to stop using the handle.
func (m *netMulti) Remove(h Handle) Code {
	nh, ok := h.(*netHandle)
	if !ok || nh == nil {
		return CodeBadEasyHandle
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return CodeBadHandle
	}
	tr, ok := m.transfers[nh]
	if !ok {
		m.mu.Unlock()
		return CodeOK
	}
	delete(m.transfers, nh)
	for i, w := range m.waiting {
		if w == tr {
			m.waiting = append(m.waiting[:i], m.waiting[i+1:]...)
			break
		}
	}
	for i, msg := range m.done {
		if msg.Handle == h {
			m.done = append(m.done[:i], m.done[i+1:]...)
			break
		}
	}
	tr.cancel()
	started := tr.started
	m.mu.Unlock()

	if started {
		<-tr.finished
	}
	nh.mu.Lock()
	nh.multi = nil
	nh.mu.Unlock()
	return CodeOK
}

// SetOption implements Multi.
func (m *netMulti) SetOption(opt MultiOption, value int) Code {
	if value < 0 {
		return CodeBadArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return CodeBadHandle
	}
	switch opt {
	case MultiMaxTotalConnections:
		m.maxTotal = value
	case MultiDNSCacheTimeout:
		m.dns.setDefaultTTL(time.Duration(value) * time.Second)
	default:
		return CodeUnknownOption
	}
	return CodeOK
}

// Perform implements Multi. It starts waiting transfers up to the
// connection cap and reports the transfers not yet completed.
func (m *netMulti) Perform() (Code, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return CodeBadHandle, 0
	}
	for len(m.waiting) > 0 && (m.maxTotal == 0 || m.running < m.maxTotal) {
		tr := m.waiting[0]
		m.waiting = m.waiting[1:]
		m.start(tr)
	}
	inFlight := 0
	for _, tr := range m.transfers {
		if !tr.completed {
			inFlight++
		}
	}
	return CodeOK, inFlight
}

// start must be called with m.mu held.
func (m *netMulti) start(tr *transfer) {
	tr.started = true
	m.running++
	go func() {
		err := tr.h.perform(tr.ctx, m.dns, m.locks)
		m.finish(tr, err)
		close(tr.finished)
	}()
}

func (m *netMulti) finish(tr *transfer, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running--
	if m.closed || m.transfers[tr.h] != tr {
		return
	}
	tr.completed = true
	m.done = append(m.done, Message{Handle: tr.h, Err: err})
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// InfoRead implements Multi.
func (m *netMulti) InfoRead() (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.done) == 0 {
		return Message{}, false
	}
	msg := m.done[0]
	m.done = m.done[1:]
	return msg, true
}

// Wait implements Multi.
func (m *netMulti) Wait(ctx context.Context, timeout time.Duration) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrHandleReleased
	}
	n := len(m.done)
	m.mu.Unlock()
	if n > 0 {
		return n, nil
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case <-m.notify:
		m.mu.Lock()
		n = len(m.done)
		m.mu.Unlock()
		if n == 0 {
			// The completion was already drained or removed.
			return 0, ErrWaitAgain
		}
		return n, nil
	case <-expired:
		return 0, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Close implements Multi. Running transfers are aborted and every handle is
// detached; the handles themselves stay open.
func (m *netMulti) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrHandleReleased
	}
	m.closed = true
	transfers := make([]*transfer, 0, len(m.transfers))
	for _, tr := range m.transfers {
		tr.cancel()
		transfers = append(transfers, tr)
	}
	m.transfers = nil
	m.waiting = nil
	m.done = nil
	m.mu.Unlock()

	for _, tr := range transfers {
		if tr.started {
			<-tr.finished
		}
		tr.h.mu.Lock()
		tr.h.multi = nil
		tr.h.mu.Unlock()
	}
	return nil
}
