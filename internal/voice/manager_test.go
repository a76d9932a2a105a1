package voice_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/voice"
	"github.com/Viker/Kokoro-TTS-Discord-Bot/pkg/audio"
	audiomock "github.com/Viker/Kokoro-TTS-Discord-Bot/pkg/audio/mock"
)

// teardownRecorder counts teardown hook invocations per guild.
type teardownRecorder struct {
	mu     sync.Mutex
	guilds []string
}

func (r *teardownRecorder) hook(guildID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guilds = append(r.guilds, guildID)
}

func (r *teardownRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.guilds)
}

func TestJoin_Connects(t *testing.T) {
	t.Parallel()
	platform := &audiomock.Platform{}
	m := voice.NewManager(platform)

	if err := m.Join(context.Background(), "g1", "c1"); err != nil {
		t.Fatal(err)
	}

	status := m.Status("g1")
	if status.State != voice.StateConnected || status.ChannelID != "c1" {
		t.Errorf("status = %+v, want connected to c1", status)
	}
	if m.Connection("g1") == nil {
		t.Error("Connection should be non-nil while connected")
	}
	if platform.CallCount() != 1 {
		t.Errorf("connect calls = %d, want 1", platform.CallCount())
	}
}

func TestJoin_SameChannelIsNoOp(t *testing.T) {
	t.Parallel()
	platform := &audiomock.Platform{}
	m := voice.NewManager(platform)

	if err := m.Join(context.Background(), "g1", "c1"); err != nil {
		t.Fatal(err)
	}
	if err := m.Join(context.Background(), "g1", "c1"); err != nil {
		t.Fatal(err)
	}
	if platform.CallCount() != 1 {
		t.Errorf("rejoining the same channel should not reconnect: %d calls", platform.CallCount())
	}
}

func TestJoin_DifferentChannelMoves(t *testing.T) {
	t.Parallel()
	platform := &audiomock.Platform{}
	m := voice.NewManager(platform)

	if err := m.Join(context.Background(), "g1", "c1"); err != nil {
		t.Fatal(err)
	}
	if err := m.Join(context.Background(), "g1", "c2"); err != nil {
		t.Fatal(err)
	}

	status := m.Status("g1")
	if status.ChannelID != "c2" {
		t.Errorf("channel after move = %q, want c2", status.ChannelID)
	}
	if platform.CallCount() != 2 {
		t.Errorf("connect calls = %d, want 2", platform.CallCount())
	}
}

func TestJoin_FailureLeavesDisconnected(t *testing.T) {
	t.Parallel()
	platform := &audiomock.Platform{ConnectErr: errors.New("no permission")}
	m := voice.NewManager(platform)

	if err := m.Join(context.Background(), "g1", "c1"); err == nil {
		t.Fatal("expected join error")
	}
	if status := m.Status("g1"); status.State != voice.StateDisconnected {
		t.Errorf("state after failed join = %v, want disconnected", status.State)
	}
}

func TestJoin_WhileConnectingReturnsError(t *testing.T) {
	t.Parallel()
	started := make(chan struct{})
	release := make(chan struct{})
	platform := &audiomock.Platform{
		ConnectFunc: func(_ context.Context, _, channelID string) (audio.Connection, error) {
			close(started)
			<-release
			return &audiomock.Connection{Channel: channelID}, nil
		},
	}
	m := voice.NewManager(platform)

	go func() {
		_ = m.Join(context.Background(), "g1", "c1")
	}()
	<-started

	if err := m.Join(context.Background(), "g1", "c2"); !errors.Is(err, voice.ErrAlreadyConnecting) {
		t.Errorf("concurrent join: want ErrAlreadyConnecting, got %v", err)
	}
	if err := m.Leave("g1"); !errors.Is(err, voice.ErrAlreadyConnecting) {
		t.Errorf("leave during connect: want ErrAlreadyConnecting, got %v", err)
	}
	close(release)
}

func TestLeave_RunsTeardownAndDisconnects(t *testing.T) {
	t.Parallel()
	conn := &audiomock.Connection{}
	platform := &audiomock.Platform{ConnectResult: conn}
	rec := &teardownRecorder{}
	m := voice.NewManager(platform, voice.WithTeardownHook(rec.hook))

	if err := m.Join(context.Background(), "g1", "c1"); err != nil {
		t.Fatal(err)
	}
	if err := m.Leave("g1"); err != nil {
		t.Fatal(err)
	}

	if rec.count() != 1 {
		t.Errorf("teardown hook ran %d times, want 1", rec.count())
	}
	if conn.DisconnectCalls != 1 {
		t.Errorf("disconnect calls = %d, want 1", conn.DisconnectCalls)
	}
	if status := m.Status("g1"); status.State != voice.StateDisconnected {
		t.Errorf("state after leave = %v", status.State)
	}
}

func TestLeave_Idempotent(t *testing.T) {
	t.Parallel()
	rec := &teardownRecorder{}
	m := voice.NewManager(&audiomock.Platform{}, voice.WithTeardownHook(rec.hook))

	// Leaving while never connected is a no-op.
	if err := m.Leave("g1"); err != nil {
		t.Fatal(err)
	}

	if err := m.Join(context.Background(), "g1", "c1"); err != nil {
		t.Fatal(err)
	}
	if err := m.Leave("g1"); err != nil {
		t.Fatal(err)
	}
	if err := m.Leave("g1"); err != nil {
		t.Fatal(err)
	}
	if rec.count() != 1 {
		t.Errorf("teardown hook ran %d times, want 1", rec.count())
	}
}

func TestHandleConnectionLoss_SkipsTeardown(t *testing.T) {
	t.Parallel()
	rec := &teardownRecorder{}
	m := voice.NewManager(&audiomock.Platform{}, voice.WithTeardownHook(rec.hook))

	if err := m.Join(context.Background(), "g1", "c1"); err != nil {
		t.Fatal(err)
	}
	m.HandleConnectionLoss("g1")

	if status := m.Status("g1"); status.State != voice.StateDisconnected {
		t.Errorf("state after loss = %v", status.State)
	}
	// Pending requests must survive an unsolicited drop, so the queue-clear
	// hook must not run.
	if rec.count() != 0 {
		t.Errorf("teardown hook ran %d times on connection loss, want 0", rec.count())
	}
	if m.Connection("g1") != nil {
		t.Error("Connection should be nil after loss")
	}

	// A loss while already disconnected is ignored.
	m.HandleConnectionLoss("g1")
}

func TestInactivityTimeout_Leaves(t *testing.T) {
	t.Parallel()
	rec := &teardownRecorder{}
	m := voice.NewManager(&audiomock.Platform{},
		voice.WithTeardownHook(rec.hook),
		voice.WithTimeoutSource(func(string) time.Duration { return 30 * time.Millisecond }),
	)

	if err := m.Join(context.Background(), "g1", "c1"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.Status("g1").State == voice.StateDisconnected {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if m.Status("g1").State != voice.StateDisconnected {
		t.Fatal("inactivity timer did not disconnect")
	}
	if rec.count() != 1 {
		t.Errorf("inactivity leave should run teardown once, got %d", rec.count())
	}
}

func TestNotifyActivity_RearmsTimer(t *testing.T) {
	t.Parallel()
	m := voice.NewManager(&audiomock.Platform{},
		voice.WithTimeoutSource(func(string) time.Duration { return 80 * time.Millisecond }),
	)

	if err := m.Join(context.Background(), "g1", "c1"); err != nil {
		t.Fatal(err)
	}

	// Keep rearming at half the timeout: the session must stay connected.
	for range 5 {
		time.Sleep(40 * time.Millisecond)
		m.NotifyActivity("g1")
	}
	if m.Status("g1").State != voice.StateConnected {
		t.Error("activity did not keep the session alive")
	}

	// Stop rearming: the timer fires.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.Status("g1").State == voice.StateDisconnected {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timer did not fire after activity stopped")
}

func TestZeroTimeout_DisablesTimer(t *testing.T) {
	t.Parallel()
	m := voice.NewManager(&audiomock.Platform{},
		voice.WithTimeoutSource(func(string) time.Duration { return 0 }),
	)

	if err := m.Join(context.Background(), "g1", "c1"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if m.Status("g1").State != voice.StateConnected {
		t.Error("zero timeout should keep the session connected indefinitely")
	}
}

func TestShutdown_LeavesAllGuilds(t *testing.T) {
	t.Parallel()
	m := voice.NewManager(&audiomock.Platform{})

	for _, g := range []string{"g1", "g2", "g3"} {
		if err := m.Join(context.Background(), g, "c"); err != nil {
			t.Fatal(err)
		}
	}
	m.Shutdown()

	for _, g := range []string{"g1", "g2", "g3"} {
		if m.Status(g).State != voice.StateDisconnected {
			t.Errorf("guild %s still connected after shutdown", g)
		}
	}
	if len(m.Statuses()) != 0 {
		t.Errorf("Statuses after shutdown = %v", m.Statuses())
	}
}
