package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/Viker/Kokoro-TTS-Discord-Bot/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Connection = (*Connection)(nil)

// ErrClosed is returned by Play after the connection has been torn down.
var ErrClosed = errors.New("discord: connection closed")

// Connection wraps a discordgo.VoiceConnection and adapts it to the
// [audio.Connection] interface. Clips are converted to 48 kHz stereo,
// chunked into 20 ms frames, Opus-encoded and pushed to the voice transport.
//
// Connection is safe for concurrent use; Play calls are serialised
// internally.
type Connection struct {
	vc  *discordgo.VoiceConnection
	enc *opusEncoder

	// playMu serialises Play so interleaved clips cannot corrupt the
	// encoder's frame state.
	playMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once

	// disconnectVC tears down the voice connection during Disconnect.
	// Defaults to vc.Disconnect; overridden in tests.
	disconnectVC func() error
}

// newConnection initialises a Connection for an already-joined voice channel.
func newConnection(vc *discordgo.VoiceConnection) (*Connection, error) {
	enc, err := newOpusEncoder()
	if err != nil {
		return nil, err
	}
	return &Connection{
		vc:           vc,
		enc:          enc,
		done:         make(chan struct{}),
		disconnectVC: vc.Disconnect,
	}, nil
}

// ChannelID returns the ID of the voice channel this connection is on.
func (c *Connection) ChannelID() string {
	return c.vc.ChannelID
}

// Play converts clip to Discord's wire format and transmits it, blocking
// until the whole clip has been handed to the transport or ctx is cancelled.
func (c *Connection) Play(ctx context.Context, clip audio.Clip) error {
	if clip.Empty() {
		return nil
	}

	c.playMu.Lock()
	defer c.playMu.Unlock()

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	converted := audio.ConvertClip(clip, audio.Format{SampleRate: opusSampleRate, Channels: opusChannels})
	pcm := converted.PCM
	if len(pcm) == 0 {
		return fmt.Errorf("discord: play: clip has misaligned PCM data")
	}

	c.setSpeaking(true)
	defer c.setSpeaking(false)

	for off := 0; off < len(pcm); off += opusFrameBytes {
		end := off + opusFrameBytes
		frame := pcm[off:min(end, len(pcm))]
		if len(frame) < opusFrameBytes {
			// Pad the trailing partial frame with silence.
			padded := make([]byte, opusFrameBytes)
			copy(padded, frame)
			frame = padded
		}

		encoded, err := c.enc.encode(frame)
		if err != nil {
			return err
		}

		select {
		case c.vc.OpusSend <- encoded:
		case <-ctx.Done():
			return fmt.Errorf("discord: play: %w", ctx.Err())
		case <-c.done:
			return ErrClosed
		}
	}
	return nil
}

// Disconnect cleanly tears down the voice connection. It is safe to call more
// than once; subsequent calls return nil.
func (c *Connection) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.disconnectVC != nil {
			err = c.disconnectVC()
		}
	})
	return err
}

// setSpeaking sends a speaking notification to Discord, logging any errors.
func (c *Connection) setSpeaking(b bool) {
	if err := c.vc.Speaking(b); err != nil {
		slog.Warn("discord: speaking notification error", "speaking", b, "error", err)
	}
}
