package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/cache"
	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/observe"
	"github.com/Viker/Kokoro-TTS-Discord-Bot/pkg/audio"
	"github.com/Viker/Kokoro-TTS-Discord-Bot/pkg/provider/tts"
)

// ConnectionSource supplies the dispatcher with the guild's current voice
// connection. The lifecycle manager implements it.
type ConnectionSource interface {
	// Connection returns the guild's active voice connection, or nil while
	// disconnected or still connecting.
	Connection(guildID string) audio.Connection

	// NotifyActivity marks playback activity for the guild, rearming its
	// inactivity timer.
	NotifyActivity(guildID string)
}

// connectionPollInterval is how often a drain loop re-checks for a voice
// connection while one is absent.
const connectionPollInterval = 500 * time.Millisecond

// Dispatcher owns all guild queues and their drain loops.
//
// One goroutine drains each guild's queue, so a guild never plays two clips
// at once while different guilds play in parallel. A failed request is
// logged, counted and dropped; the drain loop moves on to the next request.
type Dispatcher struct {
	provider tts.Provider
	cache    *cache.Cache
	conns    ConnectionSource
	metrics  *observe.Metrics
	logger   *slog.Logger

	queueOpts []QueueOption
	ttl       time.Duration

	mu      sync.Mutex
	queues  map[string]*Queue
	running bool
	ctx     context.Context
	wg      sync.WaitGroup
}

// DispatcherOption is a functional option for configuring a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithQueueOptions sets the options applied to every guild queue the
// dispatcher creates.
func WithQueueOptions(opts ...QueueOption) DispatcherOption {
	return func(d *Dispatcher) {
		d.queueOpts = opts
		probe := NewQueue(opts...)
		d.ttl = probe.ttl
	}
}

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// NewDispatcher creates a Dispatcher synthesising through provider, caching
// in c and playing on connections from conns.
func NewDispatcher(provider tts.Provider, c *cache.Cache, conns ConnectionSource, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		provider: provider,
		cache:    c,
		conns:    conns,
		ttl:      DefaultTTL,
		queues:   make(map[string]*Queue),
	}
	for _, o := range opts {
		o(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Run starts drain loops for existing queues and blocks until ctx is
// cancelled and every loop has exited.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.mu.Lock()
	d.ctx = ctx
	d.running = true
	for guildID, q := range d.queues {
		d.startDrainLocked(guildID, q)
	}
	d.mu.Unlock()

	<-ctx.Done()

	d.mu.Lock()
	d.running = false
	d.mu.Unlock()

	d.wg.Wait()
	return nil
}

// Enqueue adds req to its guild's queue, creating the queue and drain loop
// on first use. Returns ErrQueueFull when the guild's queue is at capacity.
func (d *Dispatcher) Enqueue(req *Request) error {
	q := d.queueFor(req.GuildID)
	if err := q.Enqueue(req); err != nil {
		d.metrics.RecordQueueDiscard(context.Background(), "full", 1)
		return err
	}
	d.metrics.QueuedRequests.Add(context.Background(), 1)
	return nil
}

// Clear drops all pending requests for guildID and returns how many were
// removed. The request currently playing is unaffected.
func (d *Dispatcher) Clear(guildID string) int {
	d.mu.Lock()
	q, ok := d.queues[guildID]
	d.mu.Unlock()
	if !ok {
		return 0
	}
	n := q.Clear()
	if n > 0 {
		d.metrics.QueuedRequests.Add(context.Background(), int64(-n))
		d.metrics.RecordQueueDiscard(context.Background(), "cleared", int64(n))
	}
	return n
}

// Depth returns the number of pending requests for guildID.
func (d *Dispatcher) Depth(guildID string) int {
	d.mu.Lock()
	q, ok := d.queues[guildID]
	d.mu.Unlock()
	if !ok {
		return 0
	}
	return q.Len()
}

// Depths returns the pending request count for every guild with a queue.
func (d *Dispatcher) Depths() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int, len(d.queues))
	for guildID, q := range d.queues {
		out[guildID] = q.Len()
	}
	return out
}

// queueFor returns guildID's queue, creating it (and, when running, its
// drain loop) on first use.
func (d *Dispatcher) queueFor(guildID string) *Queue {
	d.mu.Lock()
	defer d.mu.Unlock()

	q, ok := d.queues[guildID]
	if !ok {
		q = NewQueue(d.queueOpts...)
		d.queues[guildID] = q
		if d.running {
			d.startDrainLocked(guildID, q)
		}
	}
	return q
}

// startDrainLocked launches the guild's drain goroutine. Caller holds mu.
func (d *Dispatcher) startDrainLocked(guildID string, q *Queue) {
	ctx := d.ctx
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.drain(ctx, guildID, q)
	}()
}

// drain pulls requests for one guild and plays them in order until ctx is
// cancelled.
func (d *Dispatcher) drain(ctx context.Context, guildID string, q *Queue) {
	for {
		before := q.Discarded()
		req, err := q.Dequeue(ctx)
		if dropped := q.Discarded() - before; dropped > 0 {
			d.metrics.QueuedRequests.Add(context.Background(), int64(-dropped))
			d.metrics.RecordQueueDiscard(context.Background(), "expired", int64(dropped))
		}
		if err != nil {
			return
		}
		d.metrics.QueuedRequests.Add(context.Background(), -1)

		d.process(ctx, guildID, req)
	}
}

// process synthesises and plays one request. Failures are logged and
// swallowed so one bad request never stalls the guild's queue.
func (d *Dispatcher) process(ctx context.Context, guildID string, req *Request) {
	conn := d.awaitConnection(ctx, guildID, req)
	if conn == nil {
		return
	}

	synthReq := tts.Request{
		Text:     req.Text,
		Voice:    req.Settings.Voice,
		Speed:    req.Settings.Speed,
		Pitch:    req.Settings.Pitch,
		Language: req.Settings.Language,
	}

	clip, err := d.synthesize(ctx, synthReq)
	if err != nil {
		if ctx.Err() == nil {
			d.logger.Error("synthesis failed, dropping request",
				"guild", guildID, "user", req.UserID, "error", err)
		}
		return
	}

	// Volume applies at playback so one cached clip serves every volume.
	clip.PCM = audio.ApplyGain(clip.PCM, req.Settings.Volume)

	start := time.Now()
	if err := conn.Play(ctx, clip); err != nil {
		d.metrics.PlaybackErrors.Add(context.Background(), 1)
		if ctx.Err() == nil {
			d.logger.Error("playback failed, dropping request",
				"guild", guildID, "user", req.UserID, "error", err)
		}
		return
	}
	d.metrics.PlaybackDuration.Record(context.Background(), time.Since(start).Seconds())

	d.conns.NotifyActivity(guildID)
}

// synthesize returns the clip for synthReq, consulting the cache first.
func (d *Dispatcher) synthesize(ctx context.Context, synthReq tts.Request) (audio.Clip, error) {
	fp := cache.NewFingerprint(synthReq)
	if cached := d.cache.Get(fp); cached != nil {
		d.metrics.RecordCacheLookup(context.Background(), "hit")
		return audio.Clip{PCM: cached.PCM, SampleRate: cached.SampleRate, Channels: cached.Channels}, nil
	}
	d.metrics.RecordCacheLookup(context.Background(), "miss")

	start := time.Now()
	out, err := d.provider.Synthesize(ctx, synthReq)
	if err != nil {
		d.metrics.RecordSynthesisError(context.Background(), "pipeline")
		return audio.Clip{}, err
	}
	d.metrics.SynthesisDuration.Record(context.Background(), time.Since(start).Seconds())

	d.cache.Put(fp, out)
	return audio.Clip{PCM: out.PCM, SampleRate: out.SampleRate, Channels: out.Channels}, nil
}

// awaitConnection polls for the guild's voice connection until one exists,
// the request outlives its TTL, or ctx is cancelled. A dropped connection
// therefore holds requests rather than failing them, up to the TTL.
func (d *Dispatcher) awaitConnection(ctx context.Context, guildID string, req *Request) audio.Connection {
	for {
		if conn := d.conns.Connection(guildID); conn != nil {
			return conn
		}
		if time.Since(req.EnqueuedAt) > d.ttl {
			d.metrics.RecordQueueDiscard(context.Background(), "expired", 1)
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(connectionPollInterval):
		}
	}
}
