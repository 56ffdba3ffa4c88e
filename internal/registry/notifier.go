// notifier.go — per-window wakeup primitive for rule tasks pulling via
// cursor. Must satisfy an enable-before-drain requirement: a naive
// wait()-then-drain() loop can miss an append that lands in the gap
// between drain and wait. Every waiter's channel is buffered to depth 1
// and written to with a non-blocking send, so a pending wakeup is never
// lost even if the waiter hasn't received from its channel yet — the same shape as the
// keyed-window buffer's refreshTimeoutChan/keyCompletedChan pair retrieved
// from redpanda-data-benthos.
//
// A window may be read by more than one rule task (several rules can bind
// to the same window). NotifyWaiters therefore broadcasts to every
// subscriber independently rather than delivering to whichever goroutine
// happens to receive first off a single shared channel.
package registry

import "sync"

// Notifier lets a window's writer (the Router) wake every rule task
// reading from that window without any one of them missing a signal that
// arrived between its last drain and its next wait.
type Notifier struct {
	signal chan struct{} // the default waiter, always present (see Chan)

	mu      sync.Mutex
	waiters []chan struct{} // additional subscribers registered via Subscribe
}

// NewNotifier constructs a Notifier with its default signal channel
// buffered to 1: a pending wakeup is coalesced, never queued, never
// dropped.
func NewNotifier() *Notifier {
	return &Notifier{signal: make(chan struct{}, 1)}
}

// NotifyWaiters wakes every waiting reader, if any. Non-blocking: a
// waiter with an already-pending wakeup is left untouched (the condition
// implied by both wakeups is observed on its next drain regardless of how
// many signals arrived).
func (n *Notifier) NotifyWaiters() {
	trySend(n.signal)
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.waiters {
		trySend(ch)
	}
}

// Chan exposes the default signal channel for callers that need to select
// over it alongside a timeout tick or cancellation. Receiving from it IS
// "enable": the channel's buffer means a signal sent before this receive
// is not lost, so a waiter registered before data is appended is still
// guaranteed its wakeup. Use Subscribe instead when more than one
// independent reader shares this window — every Chan() caller shares the
// same channel and only one of them observes a given wakeup.
func (n *Notifier) Chan() <-chan struct{} { return n.signal }

// Subscribe registers a new, independent waiter channel and returns it.
// Each subscriber gets its own coalesced signal, so N rule tasks reading
// the same window each reliably observe every append.
func (n *Notifier) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	n.waiters = append(n.waiters, ch)
	n.mu.Unlock()
	return ch
}

func trySend(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
