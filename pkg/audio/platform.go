// Package audio defines the interfaces and types for voice-channel playback.
//
// The two primary abstractions are:
//
//   - [Platform] — joins a voice channel and returns a [Connection].
//   - [Connection] — an active session on that channel that plays PCM clips.
//
// Implementations are provided by platform-specific adapter packages (e.g.,
// audio/discord). The interfaces are intentionally narrow so the playback
// dispatcher and the connection lifecycle manager stay decoupled from
// provider details.
package audio

import "context"

// Connection represents an active session on a voice channel.
//
// A Connection is obtained from [Platform.Connect] and remains valid until
// [Connection.Disconnect] is called or the underlying transport drops.
//
// Implementations must be safe for concurrent use, though Play is expected
// to be called from a single goroutine at a time per connection (the guild's
// drain loop serialises playback).
type Connection interface {
	// Play converts clip to the platform's wire format and transmits it,
	// blocking until the whole clip has been handed to the transport or ctx
	// is cancelled. A dropped transport surfaces as an error.
	Play(ctx context.Context, clip Clip) error

	// ChannelID returns the ID of the voice channel this connection is on.
	ChannelID() string

	// Disconnect cleanly tears down the connection. It is safe to call more
	// than once; subsequent calls are no-ops and return nil.
	Disconnect() error
}

// Platform is the entry point for a voice-channel provider.
//
// Implementations must be safe for concurrent use; connections for different
// guilds may be established in parallel.
type Platform interface {
	// Connect joins the voice channel identified by guildID and channelID and
	// returns an active [Connection]. Connecting while already connected
	// elsewhere in the same guild moves the existing session to the new
	// channel and returns a fresh Connection for it.
	//
	// The supplied ctx governs the connection attempt only; once connected,
	// the Connection lives until [Connection.Disconnect] is called.
	Connect(ctx context.Context, guildID, channelID string) (Connection, error)
}
