// Package commands implements the bot's slash command surface.
package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/cache"
	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/discord"
	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/queue"
	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/resilience"
	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/voice"
	"github.com/Viker/Kokoro-TTS-Discord-Bot/pkg/provider/tts"
)

// joinTimeout bounds the voice connect triggered by /tts join.
const joinTimeout = 10 * time.Second

// VoiceCommands handles the /tts slash command group.
type VoiceCommands struct {
	voices     *voice.Manager
	dispatcher *queue.Dispatcher
	cache      *cache.Cache
	provider   tts.Provider

	// breakers reports circuit breaker states for /tts status. May be nil
	// when no fallback chain is configured.
	breakers func() map[string]resilience.BreakerState
}

// NewVoiceCommands creates a VoiceCommands handler.
func NewVoiceCommands(vm *voice.Manager, d *queue.Dispatcher, c *cache.Cache, provider tts.Provider, breakers func() map[string]resilience.BreakerState) *VoiceCommands {
	return &VoiceCommands{
		voices:     vm,
		dispatcher: d,
		cache:      c,
		provider:   provider,
		breakers:   breakers,
	}
}

// Register registers all /tts subcommands with the router.
func (vc *VoiceCommands) Register(router *discord.CommandRouter) {
	def := vc.Definition()
	router.RegisterCommand("tts", def, func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		discord.RespondEphemeral(s, i, "Please use a subcommand: `/tts join`, `/tts leave`, `/tts stop`, `/tts voices`, `/tts status`.")
	})
	router.RegisterHandler("tts/join", vc.handleJoin)
	router.RegisterHandler("tts/leave", vc.handleLeave)
	router.RegisterHandler("tts/stop", vc.handleStop)
	router.RegisterHandler("tts/voices", vc.handleVoices)
	router.RegisterHandler("tts/status", vc.handleStatus)
}

// Definition returns the /tts ApplicationCommand for Discord registration.
func (vc *VoiceCommands) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "tts",
		Description: "Control text-to-speech playback",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "join",
				Description: "Join your current voice channel",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "channel",
						Description: "Voice channel to join (defaults to yours)",
						Type:        discordgo.ApplicationCommandOptionChannel,
						ChannelTypes: []discordgo.ChannelType{
							discordgo.ChannelTypeGuildVoice,
						},
					},
				},
			},
			{
				Name:        "leave",
				Description: "Leave the voice channel and drop queued messages",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
			},
			{
				Name:        "stop",
				Description: "Drop queued messages without leaving",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
			},
			{
				Name:        "voices",
				Description: "List available voices",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
			},
			{
				Name:        "status",
				Description: "Show connection, queue and cache status",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
			},
		},
	}
}

// handleJoin handles /tts join [channel].
func (vc *VoiceCommands) handleJoin(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		discord.RespondEphemeral(s, i, "This command only works in a server.")
		return
	}

	channelID := subcommandChannelOption(i, "channel")
	if channelID == "" && i.Member != nil {
		channelID = memberVoiceChannel(s, i.GuildID, i.Member.User.ID)
	}
	if channelID == "" {
		discord.RespondEphemeral(s, i, "Join a voice channel first, or pass one with the `channel` option.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()

	if err := vc.voices.Join(ctx, i.GuildID, channelID); err != nil {
		discord.RespondError(s, i, err)
		return
	}
	discord.RespondEphemeral(s, i, fmt.Sprintf("Joined <#%s>.", channelID))
}

// handleLeave handles /tts leave.
func (vc *VoiceCommands) handleLeave(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if err := vc.voices.Leave(i.GuildID); err != nil {
		discord.RespondError(s, i, err)
		return
	}
	discord.RespondEphemeral(s, i, "Left the voice channel.")
}

// handleStop handles /tts stop.
func (vc *VoiceCommands) handleStop(s *discordgo.Session, i *discordgo.InteractionCreate) {
	n := vc.dispatcher.Clear(i.GuildID)
	discord.RespondEphemeral(s, i, fmt.Sprintf("Dropped %d queued message(s).", n))
}

// handleVoices handles /tts voices. Listing hits the synthesis backend, so
// the reply is deferred.
func (vc *VoiceCommands) handleVoices(s *discordgo.Session, i *discordgo.InteractionCreate) {
	discord.DeferReply(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	voices, err := vc.provider.ListVoices(ctx)
	if err != nil {
		discord.FollowUp(s, i, fmt.Sprintf("Failed to list voices: %v", err))
		return
	}
	if len(voices) == 0 {
		discord.FollowUp(s, i, "No voices available.")
		return
	}

	sort.Strings(voices)
	reply := "Available voices:\n" + strings.Join(voices, ", ")
	// Discord caps message content at 2000 characters.
	if len(reply) > 2000 {
		reply = reply[:1997] + "..."
	}
	discord.FollowUp(s, i, reply)
}

// handleStatus handles /tts status.
func (vc *VoiceCommands) handleStatus(s *discordgo.Session, i *discordgo.InteractionCreate) {
	status := vc.voices.Status(i.GuildID)

	connection := status.State.String()
	if status.State == voice.StateConnected {
		connection = fmt.Sprintf("connected to <#%s>", status.ChannelID)
	}

	stats := vc.cache.Stats()

	fields := []*discordgo.MessageEmbedField{
		{Name: "Connection", Value: connection, Inline: true},
		{Name: "Queued", Value: fmt.Sprintf("%d", vc.dispatcher.Depth(i.GuildID)), Inline: true},
		{
			Name: "Cache",
			Value: fmt.Sprintf("%d entries, %d hits / %d misses, %d evicted",
				stats.Entries, stats.Hits, stats.Misses, stats.Evictions),
		},
	}

	if vc.breakers != nil {
		states := vc.breakers()
		names := make([]string, 0, len(states))
		for name := range states {
			names = append(names, name)
		}
		sort.Strings(names)
		var lines []string
		for _, name := range names {
			lines = append(lines, fmt.Sprintf("%s: %s", name, states[name]))
		}
		if len(lines) > 0 {
			fields = append(fields, &discordgo.MessageEmbedField{
				Name:  "Synthesis",
				Value: strings.Join(lines, "\n"),
			})
		}
	}

	discord.RespondEmbed(s, i, &discordgo.MessageEmbed{
		Title:  "TTS Status",
		Color:  0x5865F2,
		Fields: fields,
	})
}

// memberVoiceChannel returns the voice channel userID currently occupies, or
// "" when they are not in voice.
func memberVoiceChannel(s *discordgo.Session, guildID, userID string) string {
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

// subcommandStringOption extracts a string option value from a subcommand
// interaction, descending through a subcommand group when present.
func subcommandStringOption(i *discordgo.InteractionCreate, name string) string {
	for _, opt := range subcommandOptions(i) {
		if opt.Name == name {
			return opt.StringValue()
		}
	}
	return ""
}

// subcommandChannelOption extracts a channel option's ID from a subcommand
// interaction.
func subcommandChannelOption(i *discordgo.InteractionCreate, name string) string {
	for _, opt := range subcommandOptions(i) {
		if opt.Name == name {
			if v, ok := opt.Value.(string); ok {
				return v
			}
		}
	}
	return ""
}

// subcommandOptions returns the options of the invoked subcommand, handling
// both "cmd sub" and "cmd group sub" layouts.
func subcommandOptions(i *discordgo.InteractionCreate) []*discordgo.ApplicationCommandInteractionDataOption {
	opts := i.ApplicationCommandData().Options
	for len(opts) > 0 {
		switch opts[0].Type {
		case discordgo.ApplicationCommandOptionSubCommandGroup:
			opts = opts[0].Options
		case discordgo.ApplicationCommandOptionSubCommand:
			return opts[0].Options
		default:
			return opts
		}
	}
	return nil
}
