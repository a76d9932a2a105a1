package queue_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/queue"
	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/settings"
)

func TestDequeue_PriorityThenArrivalOrder(t *testing.T) {
	t.Parallel()
	q := queue.NewQueue()

	base := time.Now()
	r1 := &queue.Request{GuildID: "g", Text: "first", Priority: 0, EnqueuedAt: base}
	r2 := &queue.Request{GuildID: "g", Text: "urgent", Priority: 5, EnqueuedAt: base.Add(time.Millisecond)}
	r3 := &queue.Request{GuildID: "g", Text: "second", Priority: 0, EnqueuedAt: base.Add(2 * time.Millisecond)}

	for _, r := range []*queue.Request{r1, r2, r3} {
		if err := q.Enqueue(r); err != nil {
			t.Fatal(err)
		}
	}

	ctx := context.Background()
	var got []string
	for range 3 {
		req, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, req.Text)
	}

	want := []string{"urgent", "first", "second"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("drain order = %v, want %v", got, want)
		}
	}
}

func TestDequeue_TieBreakBySequence(t *testing.T) {
	t.Parallel()
	q := queue.NewQueue()

	// Identical priority and timestamp: enqueue order must hold.
	at := time.Now()
	for _, text := range []string{"a", "b", "c"} {
		if err := q.Enqueue(&queue.Request{Text: text, EnqueuedAt: at}); err != nil {
			t.Fatal(err)
		}
	}

	ctx := context.Background()
	for _, want := range []string{"a", "b", "c"} {
		req, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if req.Text != want {
			t.Fatalf("tie-break order broken: got %q, want %q", req.Text, want)
		}
	}
}

func TestEnqueue_Full(t *testing.T) {
	t.Parallel()
	q := queue.NewQueue(queue.WithMaxSize(2))

	if err := q.Enqueue(&queue.Request{Text: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(&queue.Request{Text: "b"}); err != nil {
		t.Fatal(err)
	}
	err := q.Enqueue(&queue.Request{Text: "c"})
	if !errors.Is(err, queue.ErrQueueFull) {
		t.Fatalf("want ErrQueueFull, got %v", err)
	}
	if q.Len() != 2 {
		t.Errorf("rejected enqueue changed length: %d", q.Len())
	}

	// The existing requests are untouched: the new one was rejected, not
	// substituted.
	req, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if req.Text != "a" {
		t.Errorf("head = %q, want a", req.Text)
	}
}

func TestEnqueue_RejectsOverLongMessage(t *testing.T) {
	t.Parallel()
	q := queue.NewQueue()

	long := strings.Repeat("héllo ", 100) // 600 runes
	err := q.Enqueue(&queue.Request{
		Text:     long,
		Settings: settings.Effective{MaxLength: 500},
	})
	if !errors.Is(err, queue.ErrMessageTooLong) {
		t.Fatalf("want ErrMessageTooLong, got %v", err)
	}
	if q.Len() != 0 {
		t.Errorf("rejected request reached the queue: len = %d", q.Len())
	}

	// Exactly at the limit is accepted; the limit counts runes, not bytes.
	exact := strings.Repeat("é", 500)
	if err := q.Enqueue(&queue.Request{Text: exact, Settings: settings.Effective{MaxLength: 500}}); err != nil {
		t.Fatalf("limit-length message rejected: %v", err)
	}
}

func TestEnqueue_RejectsIgnoredBotSender(t *testing.T) {
	t.Parallel()
	q := queue.NewQueue()

	err := q.Enqueue(&queue.Request{
		Text:     "beep",
		FromBot:  true,
		Settings: settings.Effective{IgnoreBots: true, MaxLength: 500},
	})
	if !errors.Is(err, queue.ErrIgnoredSender) {
		t.Fatalf("want ErrIgnoredSender, got %v", err)
	}
	if q.Len() != 0 {
		t.Errorf("rejected request reached the queue: len = %d", q.Len())
	}

	// With ignoreBots off, bot-authored requests queue normally.
	err = q.Enqueue(&queue.Request{
		Text:     "beep",
		FromBot:  true,
		Settings: settings.Effective{MaxLength: 500},
	})
	if err != nil {
		t.Fatalf("bot request rejected with ignoreBots off: %v", err)
	}
}

func TestDequeue_DiscardsExpired(t *testing.T) {
	t.Parallel()
	now := time.Now()
	clock := &now
	q := queue.NewQueue(
		queue.WithTTL(time.Minute),
		queue.WithClock(func() time.Time { return *clock }),
	)

	if err := q.Enqueue(&queue.Request{Text: "stale"}); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(&queue.Request{Text: "fresh", EnqueuedAt: now.Add(2 * time.Minute)}); err != nil {
		t.Fatal(err)
	}

	// Advance past the first request's TTL.
	later := now.Add(2 * time.Minute)
	clock = &later

	req, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if req.Text != "fresh" {
		t.Errorf("dequeued %q, want the fresh request", req.Text)
	}
	if q.Discarded() != 1 {
		t.Errorf("discarded = %d, want 1", q.Discarded())
	}
}

func TestDequeue_BlocksUntilEnqueue(t *testing.T) {
	t.Parallel()
	q := queue.NewQueue()

	done := make(chan *queue.Request, 1)
	go func() {
		req, err := q.Dequeue(context.Background())
		if err != nil {
			done <- nil
			return
		}
		done <- req
	}()

	time.Sleep(20 * time.Millisecond)
	if err := q.Enqueue(&queue.Request{Text: "late"}); err != nil {
		t.Fatal(err)
	}

	select {
	case req := <-done:
		if req == nil || req.Text != "late" {
			t.Fatalf("got %+v, want the late request", req)
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not wake up")
	}
}

func TestDequeue_ContextCancel(t *testing.T) {
	t.Parallel()
	q := queue.NewQueue()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(ctx)
		errCh <- err
	}()

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("want context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not return after cancel")
	}
}

func TestClear(t *testing.T) {
	t.Parallel()
	q := queue.NewQueue()
	for range 3 {
		if err := q.Enqueue(&queue.Request{Text: "x"}); err != nil {
			t.Fatal(err)
		}
	}
	if n := q.Clear(); n != 3 {
		t.Errorf("Clear = %d, want 3", n)
	}
	if q.Len() != 0 {
		t.Errorf("Len after clear = %d", q.Len())
	}
}
