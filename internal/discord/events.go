package discord

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/observe"
	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/queue"
	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/settings"
	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/voice"
)

// autoJoinTimeout bounds the voice connect triggered by an incoming message.
const autoJoinTimeout = 10 * time.Second

// Events translates Discord gateway events into playback requests and
// lifecycle transitions.
type Events struct {
	settings   *settings.Manager
	dispatcher *queue.Dispatcher
	voices     *voice.Manager
	metrics    *observe.Metrics
	logger     *slog.Logger
}

// NewEvents creates the gateway event handler set.
func NewEvents(st *settings.Manager, d *queue.Dispatcher, vm *voice.Manager, met *observe.Metrics, logger *slog.Logger) *Events {
	if met == nil {
		met = observe.DefaultMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Events{
		settings:   st,
		dispatcher: d,
		voices:     vm,
		metrics:    met,
		logger:     logger,
	}
}

// Register attaches the handlers to the session.
func (e *Events) Register(s *discordgo.Session) {
	s.AddHandler(e.handleMessageCreate)
	s.AddHandler(e.handleVoiceStateUpdate)
}

// handleMessageCreate turns a guild text message into a playback request.
func (e *Events) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.GuildID == "" || m.Author == nil || m.Content == "" {
		return
	}
	if s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}

	eff := e.settings.Resolve(m.GuildID, m.Author.ID)

	req := &queue.Request{
		GuildID:    m.GuildID,
		UserID:     m.Author.ID,
		Username:   displayName(m),
		FromBot:    m.Author.Bot,
		Text:       m.Content,
		Priority:   queue.PriorityMessage,
		Settings:   eff,
		EnqueuedAt: time.Now(),
	}

	// Reject invalid submissions before any side effect, so a bot message or
	// an over-length message never triggers an auto-join.
	if err := req.Validate(); err != nil {
		if errors.Is(err, queue.ErrMessageTooLong) {
			e.logger.Info("message too long, rejected",
				"guild", m.GuildID, "user", m.Author.ID, "max", eff.MaxLength)
			e.react(s, m, "⚠️")
		}
		return
	}

	// Ensure a voice connection before accepting the message. Without
	// autoJoin the message is silently skipped while disconnected.
	if e.voices.Status(m.GuildID).State != voice.StateConnected {
		if !eff.AutoJoin {
			return
		}
		channelID := e.memberVoiceChannel(s, m.GuildID, m.Author.ID)
		if channelID == "" {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), autoJoinTimeout)
		err := e.voices.Join(ctx, m.GuildID, channelID)
		cancel()
		if err != nil && !errors.Is(err, voice.ErrAlreadyConnecting) {
			e.logger.Warn("auto-join failed", "guild", m.GuildID, "channel", channelID, "error", err)
			return
		}
	}

	if err := e.dispatcher.Enqueue(req); err != nil {
		if errors.Is(err, queue.ErrQueueFull) {
			e.logger.Warn("queue full, message dropped", "guild", m.GuildID, "user", m.Author.ID)
			e.react(s, m, "⚠️")
			return
		}
		e.logger.Error("enqueue failed", "guild", m.GuildID, "error", err)
		return
	}
	e.metrics.MessagesProcessed.Add(context.Background(), 1)
}

// react adds an emoji reaction to the message, best-effort.
func (e *Events) react(s *discordgo.Session, m *discordgo.MessageCreate, emoji string) {
	if err := s.MessageReactionAdd(m.ChannelID, m.ID, emoji); err != nil {
		e.logger.Debug("failed to add reaction", "error", err)
	}
}

// handleVoiceStateUpdate tracks the bot's own connection and the humans in
// its channel. It announces joins when readUsernames is on, records
// unsolicited connection losses, and leaves once the channel empties.
func (e *Events) handleVoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if v.GuildID == "" || s.State.User == nil {
		return
	}

	status := e.voices.Status(v.GuildID)

	if v.UserID == s.State.User.ID {
		// The bot's own state changed. An empty channel with a Connected
		// session means the gateway dropped us without a Leave.
		if v.ChannelID == "" && status.State == voice.StateConnected {
			e.voices.HandleConnectionLoss(v.GuildID)
		}
		return
	}

	if status.State != voice.StateConnected {
		return
	}

	if v.ChannelID == status.ChannelID && joinedChannel(v) {
		e.announceJoin(s, v)
		return
	}

	// Someone left or moved away. Disconnect once no humans remain in the
	// bot's channel.
	if leftChannel(v, status.ChannelID) && !e.humansPresent(s, v.GuildID, status.ChannelID) {
		e.logger.Info("voice channel empty, leaving", "guild", v.GuildID, "channel", status.ChannelID)
		if err := e.voices.Leave(v.GuildID); err != nil {
			e.logger.Warn("leave on empty channel failed", "guild", v.GuildID, "error", err)
		}
	}
}

// announceJoin enqueues a short spoken announcement for a user entering the
// bot's channel, honoring the guild's readUsernames and ignoreBots settings.
func (e *Events) announceJoin(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	eff := e.settings.Resolve(v.GuildID, "")
	if !eff.ReadUsernames {
		return
	}

	member := v.Member
	if member == nil {
		var err error
		member, err = s.State.Member(v.GuildID, v.UserID)
		if err != nil {
			return
		}
	}
	if member.User == nil || member.User.Bot && eff.IgnoreBots {
		return
	}

	name := member.Nick
	if name == "" {
		name = member.User.Username
	}

	req := &queue.Request{
		GuildID:    v.GuildID,
		Username:   name,
		Text:       name + " joined",
		Priority:   queue.PriorityAnnouncement,
		Settings:   eff,
		EnqueuedAt: time.Now(),
	}
	if err := e.dispatcher.Enqueue(req); err != nil {
		e.logger.Debug("join announcement dropped", "guild", v.GuildID, "error", err)
	}
}

// memberVoiceChannel returns the voice channel userID currently occupies in
// guildID, or "" when they are not in voice.
func (e *Events) memberVoiceChannel(s *discordgo.Session, guildID, userID string) string {
	guild, err := s.State.Guild(guildID)
	if err != nil {
		return ""
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID
		}
	}
	return ""
}

// humansPresent reports whether any non-bot user other than the bot itself
// remains in channelID.
func (e *Events) humansPresent(s *discordgo.Session, guildID, channelID string) bool {
	guild, err := s.State.Guild(guildID)
	if err != nil {
		// Without state we cannot tell; err on the side of staying.
		return true
	}
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != channelID || vs.UserID == s.State.User.ID {
			continue
		}
		member, err := s.State.Member(guildID, vs.UserID)
		if err != nil || member.User == nil || !member.User.Bot {
			return true
		}
	}
	return false
}

// joinedChannel reports whether v represents a user entering a channel they
// were not in before.
func joinedChannel(v *discordgo.VoiceStateUpdate) bool {
	if v.ChannelID == "" {
		return false
	}
	return v.BeforeUpdate == nil || v.BeforeUpdate.ChannelID != v.ChannelID
}

// leftChannel reports whether v represents a user leaving channelID.
func leftChannel(v *discordgo.VoiceStateUpdate, channelID string) bool {
	if v.BeforeUpdate == nil || v.BeforeUpdate.ChannelID != channelID {
		return false
	}
	return v.ChannelID != channelID
}

// displayName prefers the guild nickname over the account username.
func displayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	return m.Author.Username
}
