package ifc

import (
	"sync"
	"time"

	"github.com/NTillmann/davinci-fireplace-ha/internal/fireplace"
)

// pendingRequest tracks one dispatched command awaiting its response.
// Registered before the write completes so the response cannot race the
// registration.
type pendingRequest struct {
	kind      commandKind
	property  fireplace.Property
	createdAt time.Time
	done      chan error
	timer     *time.Timer
}

// signal delivers the request's single result. The done channel is
// buffered and each request is removed from the list before signalling,
// so exactly one signal is ever sent.
func (p *pendingRequest) signal(err error) {
	p.done <- err
}

// pendingList holds outstanding requests in FIFO order, one list per
// request kind. The queue's strict serialization means each list almost
// always holds zero or one entry, but order is preserved regardless.
type pendingList struct {
	mu   sync.Mutex
	acks []*pendingRequest
	gets []*pendingRequest
}

func newPendingList() *pendingList {
	return &pendingList{}
}

// register adds a request and arms its response timeout. If the timeout
// fires before a response correlates, the request is removed, the caller
// is signalled with ErrCommandTimeout, and onTimeout runs (for stats).
func (l *pendingList) register(cmd *command, timeout time.Duration, onTimeout func(*pendingRequest)) *pendingRequest {
	req := &pendingRequest{
		kind:      cmd.kind,
		property:  cmd.property,
		createdAt: time.Now(),
		done:      cmd.done,
	}

	l.mu.Lock()
	if cmd.kind == kindGet {
		l.gets = append(l.gets, req)
	} else {
		l.acks = append(l.acks, req)
	}
	l.mu.Unlock()

	req.timer = time.AfterFunc(timeout, func() {
		if l.remove(req) {
			req.signal(ErrCommandTimeout)
			if onTimeout != nil {
				onTimeout(req)
			}
		}
	})

	return req
}

// completeOldestAck resolves the oldest pending SET acknowledgment and
// returns it. Returns false if none is pending (the line should be
// discarded).
func (l *pendingList) completeOldestAck(err error) (*pendingRequest, bool) {
	l.mu.Lock()
	if len(l.acks) == 0 {
		l.mu.Unlock()
		return nil, false
	}
	req := l.acks[0]
	l.acks = l.acks[1:]
	l.mu.Unlock()

	req.timer.Stop()
	req.signal(err)
	return req, true
}

// oldestGet returns the oldest pending GET without removing it, so a
// parse failure can leave it in place until its timeout fires.
func (l *pendingList) oldestGet() (*pendingRequest, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.gets) == 0 {
		return nil, false
	}
	return l.gets[0], true
}

// complete resolves a specific pending request. Returns false if the
// request was already removed (timed out concurrently).
func (l *pendingList) complete(req *pendingRequest, err error) bool {
	if !l.remove(req) {
		return false
	}
	req.timer.Stop()
	req.signal(err)
	return true
}

// failAll resolves every outstanding request with the given error.
// Called on disconnect and shutdown.
func (l *pendingList) failAll(err error) {
	l.mu.Lock()
	acks := l.acks
	gets := l.gets
	l.acks = nil
	l.gets = nil
	l.mu.Unlock()

	for _, req := range acks {
		req.timer.Stop()
		req.signal(err)
	}
	for _, req := range gets {
		req.timer.Stop()
		req.signal(err)
	}
}

// counts returns the number of outstanding requests per kind.
func (l *pendingList) counts() (acks, gets int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.acks), len(l.gets)
}

// remove deletes a specific request from whichever list holds it.
// Returns false if it is no longer present.
func (l *pendingList) remove(req *pendingRequest) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	list := &l.acks
	if req.kind == kindGet {
		list = &l.gets
	}
	for i, candidate := range *list {
		if candidate == req {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return true
		}
	}
	return false
}
