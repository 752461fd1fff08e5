// Package toast keeps the stack of transient status messages shown at the
// bottom of the portal.
//
// A Notifier never mutates its stack from a timer goroutine. Timer expiry
// posts an Expired or Removed message to the owner, which hands it back to
// Handle on its own loop.
package toast

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Timing.
const (
	DefaultDuration = 3 * time.Second
	ExitDuration    = 300 * time.Millisecond

	// RetryDelay spaces reposts of a timer message the owner rejected.
	RetryDelay = 100 * time.Millisecond
	// MaxRetries bounds reposts once the owner keeps rejecting.
	MaxRetries = 50
)

// Kind is the visual category of a toast.
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// ParseKind maps s to a Kind. Unknown values are informational.
func ParseKind(s string) Kind {
	switch Kind(s) {
	case KindSuccess:
		return KindSuccess
	case KindError:
		return KindError
	default:
		return KindInfo
	}
}

func (k Kind) classes() string {
	switch k {
	case KindSuccess:
		return "bg-accent text-white"
	case KindError:
		return "bg-red-600 text-white"
	default:
		return "bg-gray-700 text-white"
	}
}

// Phase is the lifecycle step of a toast.
type Phase int

const (
	// Entering toasts are displayed with the entry transition.
	Entering Phase = iota
	// Exiting toasts play the exit transition before removal.
	Exiting
)

// Options tune a single toast.
type Options struct {
	Loader     bool
	Persistent bool
	// Duration before auto-dismiss. Zero means DefaultDuration.
	Duration time.Duration
}

// Toast is one displayed message.
type Toast struct {
	ID         string
	Kind       Kind
	Text       string
	Loader     bool
	Persistent bool
	Duration   time.Duration
	Phase      Phase
}

const baseClasses = "toast shadow-lg rounded-md py-3 px-5 flex gap-3 items-center"

// Class returns the element classes for the toast's kind and phase.
func (t *Toast) Class() string {
	var b strings.Builder
	b.WriteString(baseClasses)
	b.WriteByte(' ')
	b.WriteString(t.Kind.classes())
	if t.Phase == Exiting {
		b.WriteString(" slide-out-bottom")
	} else {
		b.WriteString(" slide-in-bottom")
	}
	return b.String()
}

// Expired is posted when a toast's display duration elapses.
type Expired struct{ ID string }

// Removed is posted when a toast's exit transition ends.
type Removed struct{ ID string }

// Poster delivers timer messages to the notifier's owner.
type Poster func(msg any) error

// Notifier owns a stack of toasts and their timers. It is not safe for
// concurrent use; the owner calls it from a single loop.
type Notifier struct {
	clock  Clock
	post   Poster
	toasts []*Toast
	timers map[string]Timer
}

// NewNotifier creates a notifier. A nil clock uses RealClock.
func NewNotifier(clock Clock, post Poster) *Notifier {
	if clock == nil {
		clock = RealClock{}
	}
	return &Notifier{
		clock:  clock,
		post:   post,
		timers: make(map[string]Timer),
	}
}

// Show appends a toast and, unless it is persistent, schedules its expiry.
func (n *Notifier) Show(kind Kind, text string, opts Options) *Toast {
	d := opts.Duration
	if d <= 0 {
		d = DefaultDuration
	}
	t := &Toast{
		ID:         uuid.NewString(),
		Kind:       ParseKind(string(kind)),
		Text:       text,
		Loader:     opts.Loader,
		Persistent: opts.Persistent,
		Duration:   d,
		Phase:      Entering,
	}
	n.toasts = append(n.toasts, t)
	if !t.Persistent {
		n.schedule(t.ID, d, Expired{ID: t.ID})
	}
	return t
}

// Info shows an informational toast with default options.
func (n *Notifier) Info(text string) *Toast { return n.Show(KindInfo, text, Options{}) }

// Success shows a success toast with default options.
func (n *Notifier) Success(text string) *Toast { return n.Show(KindSuccess, text, Options{}) }

// Error shows an error toast with default options.
func (n *Notifier) Error(text string) *Toast { return n.Show(KindError, text, Options{}) }

// Dismiss cancels a pending expiry and starts the exit transition.
func (n *Notifier) Dismiss(id string) bool {
	return n.exit(id)
}

// Handle applies a timer message. It reports whether msg belonged to the
// notifier.
func (n *Notifier) Handle(msg any) bool {
	switch m := msg.(type) {
	case Expired:
		n.exit(m.ID)
		return true
	case Removed:
		delete(n.timers, m.ID)
		n.remove(m.ID)
		return true
	}
	return false
}

// Stop cancels every pending timer.
func (n *Notifier) Stop() {
	for id, t := range n.timers {
		t.Stop()
		delete(n.timers, id)
	}
}

// List returns the toasts in creation order.
func (n *Notifier) List() []*Toast {
	out := make([]*Toast, len(n.toasts))
	copy(out, n.toasts)
	return out
}

// Len returns the number of displayed toasts.
func (n *Notifier) Len() int {
	return len(n.toasts)
}

// Get finds a toast by id.
func (n *Notifier) Get(id string) (*Toast, bool) {
	for _, t := range n.toasts {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

func (n *Notifier) exit(id string) bool {
	t, ok := n.Get(id)
	if !ok || t.Phase == Exiting {
		return false
	}
	if timer, ok := n.timers[id]; ok {
		timer.Stop()
		delete(n.timers, id)
	}
	t.Phase = Exiting
	n.schedule(id, ExitDuration, Removed{ID: id})
	return true
}

func (n *Notifier) schedule(id string, d time.Duration, msg any) {
	p := &postTimer{clock: n.clock, post: n.post, msg: msg}
	p.mu.Lock()
	p.cur = n.clock.AfterFunc(d, p.fire)
	p.mu.Unlock()
	n.timers[id] = p
}

// postTimer posts msg when its deadline passes. A rejected post is tried
// again after RetryDelay, so a full owner inbox delays the message instead
// of losing it.
type postTimer struct {
	clock Clock
	post  Poster
	msg   any

	mu      sync.Mutex
	cur     Timer
	retries int
	stopped bool
}

func (p *postTimer) fire() {
	p.mu.Lock()
	if p.stopped || p.post == nil {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	if err := p.post(p.msg); err == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || p.retries >= MaxRetries {
		return
	}
	p.retries++
	p.cur = p.clock.AfterFunc(RetryDelay, p.fire)
}

// Stop cancels the pending post or retry.
func (p *postTimer) Stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}
	p.stopped = true
	return p.cur.Stop()
}

func (n *Notifier) remove(id string) {
	for i, t := range n.toasts {
		if t.ID == id {
			n.toasts = append(n.toasts[:i], n.toasts[i+1:]...)
			return
		}
	}
}
