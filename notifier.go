package gutter

import (
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Notifier fans RedrawEvents and ErrorEvents out to subscribers. Handlers
// run synchronously on the publishing goroutine in subscription order.
// A handler must not call back into the Controller that published the
// event; hand the work to another goroutine instead. Handlers also run
// while the controller holds its pool slot, so one that does I/O should
// queue it, as the bridge server does for redraws sent to the editor.
type Notifier struct {
	mu     sync.RWMutex
	redraw []redrawSub
	errs   []errorSub
}

type redrawSub struct {
	id string
	fn func(RedrawEvent)
}

type errorSub struct {
	id string
	fn func(*ErrorEvent)
}

// Subscription is a handle returned by the Subscribe methods.
type Subscription struct {
	ID   string
	once sync.Once
	stop func()
}

// Unsubscribe removes the handler. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.stop)
}

// NewNotifier returns a Notifier with no subscribers.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// SubscribeRedraw registers fn for every published RedrawEvent.
func (n *Notifier) SubscribeRedraw(fn func(RedrawEvent)) *Subscription {
	id := uuid.NewString()
	n.mu.Lock()
	n.redraw = append(n.redraw, redrawSub{id: id, fn: fn})
	n.mu.Unlock()
	return &Subscription{ID: id, stop: func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.redraw = slices.DeleteFunc(n.redraw, func(s redrawSub) bool { return s.id == id })
	}}
}

// SubscribeErrors registers fn for every published ErrorEvent. A handler
// marks the event handled by setting ErrorEvent.Handled.
func (n *Notifier) SubscribeErrors(fn func(*ErrorEvent)) *Subscription {
	id := uuid.NewString()
	n.mu.Lock()
	n.errs = append(n.errs, errorSub{id: id, fn: fn})
	n.mu.Unlock()
	return &Subscription{ID: id, stop: func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.errs = slices.DeleteFunc(n.errs, func(s errorSub) bool { return s.id == id })
	}}
}

// PublishRedraw delivers ev to every redraw subscriber.
func (n *Notifier) PublishRedraw(ev RedrawEvent) {
	n.mu.RLock()
	subs := slices.Clone(n.redraw)
	n.mu.RUnlock()
	for _, s := range subs {
		s.fn(ev)
	}
}

// PublishError delivers ev to every error subscriber and reports whether
// any of them handled it.
func (n *Notifier) PublishError(ev *ErrorEvent) (handled bool) {
	n.mu.RLock()
	subs := slices.Clone(n.errs)
	n.mu.RUnlock()
	for _, s := range subs {
		s.fn(ev)
	}
	return ev.Handled
}
