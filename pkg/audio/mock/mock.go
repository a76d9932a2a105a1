// Package mock provides test doubles for the audio.Platform and
// audio.Connection interfaces.
//
// Use Platform to hand out scripted connections and Connection to record the
// clips a drain loop plays.
package mock

import (
	"context"
	"sync"

	"github.com/Viker/Kokoro-TTS-Discord-Bot/pkg/audio"
)

// ConnectCall records a single invocation of Platform.Connect.
type ConnectCall struct {
	// Ctx is the context passed to Connect.
	Ctx context.Context
	// GuildID is the guild passed to Connect.
	GuildID string
	// ChannelID is the channel passed to Connect.
	ChannelID string
}

// Platform is a mock implementation of audio.Platform.
type Platform struct {
	mu sync.Mutex

	// ConnectResult is returned by Connect when ConnectFunc and ConnectErr
	// are nil. A fresh *Connection is returned when this is also nil.
	ConnectResult audio.Connection

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ConnectFunc, if non-nil, is invoked by Connect instead of the static
	// result fields.
	ConnectFunc func(ctx context.Context, guildID, channelID string) (audio.Connection, error)

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns the configured connection.
func (p *Platform) Connect(ctx context.Context, guildID, channelID string) (audio.Connection, error) {
	p.mu.Lock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, GuildID: guildID, ChannelID: channelID})
	fn := p.ConnectFunc
	result, err := p.ConnectResult, p.ConnectErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, guildID, channelID)
	}
	if err != nil {
		return nil, err
	}
	if result != nil {
		return result, nil
	}
	return &Connection{Channel: channelID}, nil
}

// CallCount returns the number of Connect calls so far. Thread-safe.
func (p *Platform) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ConnectCalls)
}

// PlayCall records a single invocation of Connection.Play.
type PlayCall struct {
	// Ctx is the context passed to Play.
	Ctx context.Context
	// Clip is the clip passed to Play.
	Clip audio.Clip
}

// Connection is a mock implementation of audio.Connection.
type Connection struct {
	mu sync.Mutex

	// Channel is returned by ChannelID.
	Channel string

	// PlayErr, if non-nil, is returned as the error from Play.
	PlayErr error

	// PlayFunc, if non-nil, is invoked by Play instead of PlayErr. Useful
	// for blocking playback until a test releases it.
	PlayFunc func(ctx context.Context, clip audio.Clip) error

	// DisconnectErr is returned by the first Disconnect call.
	DisconnectErr error

	// PlayCalls records every call to Play in order.
	PlayCalls []PlayCall

	// DisconnectCalls counts calls to Disconnect.
	DisconnectCalls int
}

// Play records the call and returns the configured error.
func (c *Connection) Play(ctx context.Context, clip audio.Clip) error {
	c.mu.Lock()
	c.PlayCalls = append(c.PlayCalls, PlayCall{Ctx: ctx, Clip: clip})
	fn := c.PlayFunc
	err := c.PlayErr
	c.mu.Unlock()

	if fn != nil {
		return fn(ctx, clip)
	}
	return err
}

// ChannelID returns the configured channel.
func (c *Connection) ChannelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Channel
}

// Disconnect records the call. Only the first call returns DisconnectErr.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DisconnectCalls++
	if c.DisconnectCalls == 1 {
		return c.DisconnectErr
	}
	return nil
}

// Played returns the clips passed to Play so far. Thread-safe.
func (c *Connection) Played() []audio.Clip {
	c.mu.Lock()
	defer c.mu.Unlock()
	clips := make([]audio.Clip, len(c.PlayCalls))
	for i, call := range c.PlayCalls {
		clips[i] = call.Clip
	}
	return clips
}

// Compile-time interface assertions.
var (
	_ audio.Platform   = (*Platform)(nil)
	_ audio.Connection = (*Connection)(nil)
)
