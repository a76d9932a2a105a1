// Package voice implements the per-guild voice connection lifecycle.
//
// Each guild moves through Disconnected → Connecting → Connected. A single
// inactivity timer per guild disconnects idle sessions; every playback or
// join rearms it with the guild's current timeout. Deliberate leaves clear
// the guild's pending queue; unsolicited transport losses do not, so queued
// requests survive until reconnection or their TTL.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/observe"
	"github.com/Viker/Kokoro-TTS-Discord-Bot/pkg/audio"
)

// ErrAlreadyConnecting is returned when a join or leave races with a connect
// already in progress for the same guild.
var ErrAlreadyConnecting = errors.New("voice: connect already in progress")

// State is the lifecycle state of one guild's voice session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Status is a point-in-time snapshot of one guild's session.
type Status struct {
	State     State
	ChannelID string
}

// session is one guild's lifecycle record. Guarded by Manager.mu.
type session struct {
	state     State
	channelID string
	conn      audio.Connection

	// timer is the single inactivity timer; timerGen invalidates stale
	// fires after a rearm.
	timer    *time.Timer
	timerGen uint64
}

// Manager owns every guild's voice session.
//
// Manager is safe for concurrent use and implements the dispatcher's
// ConnectionSource.
type Manager struct {
	platform audio.Platform

	// timeoutFor resolves the guild's current inactivity timeout. Zero
	// disables the timer.
	timeoutFor func(guildID string) time.Duration

	// onTeardown runs after a deliberate leave, before the connection is
	// torn down. The application wires it to the queue clear.
	onTeardown func(guildID string)

	metrics *observe.Metrics
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// Option is a functional option for configuring a Manager.
type Option func(*Manager)

// WithTimeoutSource sets the resolver for per-guild inactivity timeouts.
func WithTimeoutSource(fn func(guildID string) time.Duration) Option {
	return func(m *Manager) {
		m.timeoutFor = fn
	}
}

// WithTeardownHook sets the hook invoked on every deliberate leave.
func WithTeardownHook(fn func(guildID string)) Option {
	return func(m *Manager) {
		m.onTeardown = fn
	}
}

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics.
func WithMetrics(met *observe.Metrics) Option {
	return func(m *Manager) {
		m.metrics = met
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager creates a Manager connecting through platform.
func NewManager(platform audio.Platform, opts ...Option) *Manager {
	m := &Manager{
		platform: platform,
		sessions: make(map[string]*session),
	}
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Join connects the guild to channelID. Joining the current channel is a
// no-op that rearms the inactivity timer; joining a different channel while
// connected moves the session. A join racing another in-flight connect for
// the same guild returns ErrAlreadyConnecting.
func (m *Manager) Join(ctx context.Context, guildID, channelID string) error {
	m.mu.Lock()
	s := m.sessionLocked(guildID)

	switch s.state {
	case StateConnecting:
		m.mu.Unlock()
		return ErrAlreadyConnecting
	case StateConnected:
		if s.channelID == channelID {
			m.rearmLocked(guildID, s)
			m.mu.Unlock()
			return nil
		}
	}

	wasConnected := s.state == StateConnected
	s.state = StateConnecting
	m.stopTimerLocked(s)
	m.mu.Unlock()

	conn, err := m.platform.Connect(ctx, guildID, channelID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		s.state = StateDisconnected
		s.conn = nil
		s.channelID = ""
		if wasConnected {
			m.metrics.ActiveConnections.Add(context.Background(), -1)
		}
		return fmt.Errorf("voice: join guild %s channel %s: %w", guildID, channelID, err)
	}

	s.state = StateConnected
	s.conn = conn
	s.channelID = channelID
	if !wasConnected {
		m.metrics.ActiveConnections.Add(context.Background(), 1)
	}
	m.rearmLocked(guildID, s)

	m.logger.Info("voice connected", "guild", guildID, "channel", channelID)
	return nil
}

// Leave disconnects the guild and clears its pending queue. Leaving while
// disconnected is a no-op; leaving during an in-flight connect returns
// ErrAlreadyConnecting.
func (m *Manager) Leave(guildID string) error {
	m.mu.Lock()
	s, ok := m.sessions[guildID]
	if !ok || s.state == StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	if s.state == StateConnecting {
		m.mu.Unlock()
		return ErrAlreadyConnecting
	}

	conn := s.conn
	channelID := s.channelID
	m.stopTimerLocked(s)
	s.state = StateDisconnected
	s.conn = nil
	s.channelID = ""
	m.mu.Unlock()

	if m.onTeardown != nil {
		m.onTeardown(guildID)
	}
	if conn != nil {
		if err := conn.Disconnect(); err != nil {
			m.logger.Warn("voice disconnect error", "guild", guildID, "error", err)
		}
	}
	m.metrics.ActiveConnections.Add(context.Background(), -1)

	m.logger.Info("voice disconnected", "guild", guildID, "channel", channelID)
	return nil
}

// HandleConnectionLoss records an unsolicited transport drop. The session
// becomes Disconnected but the guild's queue is left intact so pending
// requests survive until reconnection or their TTL.
func (m *Manager) HandleConnectionLoss(guildID string) {
	m.mu.Lock()
	s, ok := m.sessions[guildID]
	if !ok || s.state != StateConnected {
		m.mu.Unlock()
		return
	}
	conn := s.conn
	m.stopTimerLocked(s)
	s.state = StateDisconnected
	s.conn = nil
	s.channelID = ""
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Disconnect()
	}
	m.metrics.ActiveConnections.Add(context.Background(), -1)

	m.logger.Warn("voice connection lost", "guild", guildID)
}

// Connection implements the dispatcher's ConnectionSource. Returns nil
// unless the guild is fully connected.
func (m *Manager) Connection(guildID string) audio.Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[guildID]
	if !ok || s.state != StateConnected {
		return nil
	}
	return s.conn
}

// NotifyActivity implements the dispatcher's ConnectionSource: it rearms the
// guild's inactivity timer with the current timeout.
func (m *Manager) NotifyActivity(guildID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[guildID]
	if !ok || s.state != StateConnected {
		return
	}
	m.rearmLocked(guildID, s)
}

// Status returns the guild's current lifecycle snapshot.
func (m *Manager) Status(guildID string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[guildID]
	if !ok {
		return Status{State: StateDisconnected}
	}
	return Status{State: s.state, ChannelID: s.channelID}
}

// Statuses returns a snapshot of every non-disconnected guild session.
func (m *Manager) Statuses() map[string]Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Status)
	for guildID, s := range m.sessions {
		if s.state == StateDisconnected {
			continue
		}
		out[guildID] = Status{State: s.state, ChannelID: s.channelID}
	}
	return out
}

// Shutdown leaves every connected guild. Used during graceful stop.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	guilds := make([]string, 0, len(m.sessions))
	for guildID, s := range m.sessions {
		if s.state == StateConnected {
			guilds = append(guilds, guildID)
		}
	}
	m.mu.Unlock()

	for _, guildID := range guilds {
		if err := m.Leave(guildID); err != nil {
			m.logger.Warn("voice shutdown leave error", "guild", guildID, "error", err)
		}
	}
}

// sessionLocked returns guildID's session, creating it if needed. Caller
// holds mu.
func (m *Manager) sessionLocked(guildID string) *session {
	s, ok := m.sessions[guildID]
	if !ok {
		s = &session{state: StateDisconnected}
		m.sessions[guildID] = s
	}
	return s
}

// rearmLocked replaces the guild's inactivity timer with a fresh one using
// the current timeout. A zero timeout disables the timer entirely. Caller
// holds mu.
func (m *Manager) rearmLocked(guildID string, s *session) {
	m.stopTimerLocked(s)

	if m.timeoutFor == nil {
		return
	}
	timeout := m.timeoutFor(guildID)
	if timeout <= 0 {
		return
	}

	s.timerGen++
	gen := s.timerGen
	s.timer = time.AfterFunc(timeout, func() {
		m.onInactivity(guildID, gen)
	})
}

// stopTimerLocked cancels any pending timer and invalidates in-flight fires.
// Caller holds mu.
func (m *Manager) stopTimerLocked(s *session) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
}

// onInactivity fires when a guild's inactivity timer elapses. Stale fires
// (rearm or teardown happened since the timer was set) are ignored.
func (m *Manager) onInactivity(guildID string, gen uint64) {
	m.mu.Lock()
	s, ok := m.sessions[guildID]
	if !ok || s.state != StateConnected || s.timerGen != gen {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.logger.Info("voice inactivity timeout", "guild", guildID)
	if err := m.Leave(guildID); err != nil {
		m.logger.Warn("voice inactivity leave error", "guild", guildID, "error", err)
	}
}
