// Package queue implements the per-guild playback queue and its drain loops.
//
// Each guild owns one bounded priority queue and one drain goroutine. Higher
// priority numbers drain first; within a priority, requests drain in arrival
// order. Requests that wait longer than the configured TTL are discarded at
// dequeue time rather than played stale.
package queue

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/settings"
)

// Sentinel errors callers match with errors.Is.
var (
	// ErrQueueFull is returned by Enqueue when the guild's queue is at
	// capacity.
	ErrQueueFull = errors.New("queue: full")

	// ErrMessageTooLong is returned by Enqueue when the request's text
	// exceeds the resolved maxLength setting.
	ErrMessageTooLong = errors.New("queue: message too long")

	// ErrIgnoredSender is returned by Enqueue for bot-authored requests
	// while the resolved ignoreBots setting is on.
	ErrIgnoredSender = errors.New("queue: sender ignored")
)

const (
	// DefaultMaxSize bounds each guild's queue when no capacity is
	// configured.
	DefaultMaxSize = 100

	// DefaultTTL is the request lifetime when none is configured.
	DefaultTTL = 5 * time.Minute
)

// Priorities used by the bot layer. Higher numbers drain first.
const (
	// PriorityMessage is the default priority for chat messages.
	PriorityMessage = 0

	// PriorityAnnouncement orders short join announcements ahead of the
	// message backlog.
	PriorityAnnouncement = 10
)

// Request is one utterance waiting to be played.
//
// Settings is resolved at enqueue time and never re-resolved: changes made
// while a request waits do not affect it.
type Request struct {
	// GuildID is the guild whose queue holds this request.
	GuildID string

	// UserID and Username identify the author, when there is one.
	// Announcements carry an empty UserID.
	UserID   string
	Username string

	// FromBot marks requests authored by another bot.
	FromBot bool

	// Text is the utterance to synthesise.
	Text string

	// Priority orders draining; higher numbers drain first.
	Priority int

	// Settings is the effective settings snapshot taken at enqueue.
	Settings settings.Effective

	// EnqueuedAt is when the request entered the queue.
	EnqueuedAt time.Time

	// seq breaks ties between requests with equal priority and timestamp.
	// Assigned by the queue, monotonically increasing.
	seq uint64
}

// Validate checks req against its own settings snapshot. It returns
// ErrMessageTooLong when the text exceeds maxLength (counted in runes) and
// ErrIgnoredSender for bot authors while ignoreBots is on. Enqueue applies
// the same checks, so an invalid request never enters a queue.
func (r *Request) Validate() error {
	if r.FromBot && r.Settings.IgnoreBots {
		return ErrIgnoredSender
	}
	if limit := r.Settings.MaxLength; limit > 0 && utf8.RuneCountInString(r.Text) > limit {
		return ErrMessageTooLong
	}
	return nil
}

// requestHeap orders requests for draining: priority desc, then enqueue time
// asc, then sequence asc.
type requestHeap []*Request

func (h requestHeap) Len() int { return len(h) }

func (h requestHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	if !h[i].EnqueuedAt.Equal(h[j].EnqueuedAt) {
		return h[i].EnqueuedAt.Before(h[j].EnqueuedAt)
	}
	return h[i].seq < h[j].seq
}

func (h requestHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *requestHeap) Push(x any) { *h = append(*h, x.(*Request)) }

func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue is one guild's bounded priority queue. Safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	items   requestHeap
	maxSize int
	ttl     time.Duration
	seq     uint64

	// ready signals waiting Dequeue callers that an item arrived.
	ready chan struct{}

	// now is the clock; overridden in tests.
	now func() time.Time

	// discarded counts requests dropped for exceeding the TTL.
	discarded uint64
}

// QueueOption is a functional option for configuring a Queue.
type QueueOption func(*Queue)

// WithMaxSize bounds the queue. Values < 1 keep the default.
func WithMaxSize(n int) QueueOption {
	return func(q *Queue) {
		if n >= 1 {
			q.maxSize = n
		}
	}
}

// WithTTL sets the request lifetime. Values <= 0 keep the default.
func WithTTL(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.ttl = d
		}
	}
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) QueueOption {
	return func(q *Queue) {
		q.now = now
	}
}

// NewQueue creates an empty queue with the given options.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		maxSize: DefaultMaxSize,
		ttl:     DefaultTTL,
		ready:   make(chan struct{}, 1),
		now:     time.Now,
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Enqueue adds req to the queue. Invalid requests are rejected before they
// take a slot; ErrQueueFull means the queue is at capacity and the request
// is rejected, not substituted for an older one.
func (q *Queue) Enqueue(req *Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	q.mu.Lock()
	if len(q.items) >= q.maxSize {
		q.mu.Unlock()
		return ErrQueueFull
	}
	if req.EnqueuedAt.IsZero() {
		req.EnqueuedAt = q.now()
	}
	req.seq = q.seq
	q.seq++
	heap.Push(&q.items, req)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

// Dequeue blocks until a non-expired request is available or ctx is
// cancelled. Expired requests are discarded silently as they surface.
func (q *Queue) Dequeue(ctx context.Context) (*Request, error) {
	for {
		q.mu.Lock()
		for len(q.items) > 0 {
			req := heap.Pop(&q.items).(*Request)
			if q.now().Sub(req.EnqueuedAt) > q.ttl {
				q.discarded++
				continue
			}
			q.mu.Unlock()
			return req, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.ready:
		}
	}
}

// Len returns the number of queued requests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear removes all queued requests and returns how many were dropped.
// In-flight playback is unaffected.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

// Discarded returns the number of requests dropped for exceeding the TTL.
func (q *Queue) Discarded() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.discarded
}
