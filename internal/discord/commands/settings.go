package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/discord"
	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/settings"
	"github.com/Viker/Kokoro-TTS-Discord-Bot/pkg/provider/tts"
)

// SettingsCommands handles the /settings slash command group.
//
// Guild-level writes are gated behind the admin check; the "me" subcommand
// group lets any user manage their own overrides.
type SettingsCommands struct {
	settings *settings.Manager
	perms    *discord.PermissionChecker

	// provider powers the voice value autocomplete. May be nil.
	provider tts.Provider
}

// NewSettingsCommands creates a SettingsCommands handler.
func NewSettingsCommands(st *settings.Manager, perms *discord.PermissionChecker, provider tts.Provider) *SettingsCommands {
	return &SettingsCommands{
		settings: st,
		perms:    perms,
		provider: provider,
	}
}

// Register registers all /settings subcommands with the router.
func (sc *SettingsCommands) Register(router *discord.CommandRouter) {
	def := sc.Definition()
	router.RegisterCommand("settings", def, func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		discord.RespondEphemeral(s, i, "Please use a subcommand: `/settings list`, `/settings get`, `/settings set`, `/settings info`, `/settings me set`, `/settings me reset`.")
	})
	router.RegisterHandler("settings/list", sc.handleList)
	router.RegisterHandler("settings/get", sc.handleGet)
	router.RegisterHandler("settings/set", sc.handleSetGuild)
	router.RegisterHandler("settings/info", sc.handleInfo)
	router.RegisterHandler("settings/me/set", sc.handleSetUser)
	router.RegisterHandler("settings/me/reset", sc.handleResetUser)

	router.RegisterAutocomplete("settings/get", sc.handleAutocomplete)
	router.RegisterAutocomplete("settings/set", sc.handleAutocomplete)
	router.RegisterAutocomplete("settings/info", sc.handleAutocomplete)
	router.RegisterAutocomplete("settings/me/set", sc.handleAutocomplete)
}

// Definition returns the /settings ApplicationCommand for Discord
// registration.
func (sc *SettingsCommands) Definition() *discordgo.ApplicationCommand {
	keyOption := &discordgo.ApplicationCommandOption{
		Name:         "key",
		Description:  "Setting name",
		Type:         discordgo.ApplicationCommandOptionString,
		Required:     true,
		Autocomplete: true,
	}
	valueOption := &discordgo.ApplicationCommandOption{
		Name:         "value",
		Description:  "Setting value",
		Type:         discordgo.ApplicationCommandOptionString,
		Required:     true,
		Autocomplete: true,
	}

	return &discordgo.ApplicationCommand{
		Name:        "settings",
		Description: "Inspect and change TTS settings",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "list",
				Description: "Show the effective settings for you in this server",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
			},
			{
				Name:        "get",
				Description: "Show one setting and where its value comes from",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options:     []*discordgo.ApplicationCommandOption{keyOption},
			},
			{
				Name:        "set",
				Description: "Change a server-wide setting (admin only)",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options:     []*discordgo.ApplicationCommandOption{keyOption, valueOption},
			},
			{
				Name:        "info",
				Description: "Describe a setting: type, default and valid range",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options:     []*discordgo.ApplicationCommandOption{keyOption},
			},
			{
				Name:        "me",
				Description: "Manage your personal overrides",
				Type:        discordgo.ApplicationCommandOptionSubCommandGroup,
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "set",
						Description: "Override a setting for yourself in this server",
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Options:     []*discordgo.ApplicationCommandOption{keyOption, valueOption},
					},
					{
						Name:        "reset",
						Description: "Remove all of your personal overrides in this server",
						Type:        discordgo.ApplicationCommandOptionSubCommand,
					},
				},
			},
		},
	}
}

// handleList handles /settings list.
func (sc *SettingsCommands) handleList(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" || i.Member == nil {
		discord.RespondEphemeral(s, i, "This command only works in a server.")
		return
	}

	userID := i.Member.User.ID
	var lines []string
	for _, key := range settings.Keys() {
		val, source, err := sc.settings.Get(i.GuildID, userID, key)
		if err != nil {
			continue
		}
		line := fmt.Sprintf("`%s` = `%v`", key, val)
		if source != settings.SourceDefault {
			line += fmt.Sprintf(" (%s)", source)
		}
		lines = append(lines, line)
	}

	discord.RespondEmbed(s, i, &discordgo.MessageEmbed{
		Title:       "Effective Settings",
		Description: strings.Join(lines, "\n"),
		Color:       0x5865F2,
	})
}

// handleGet handles /settings get <key>.
func (sc *SettingsCommands) handleGet(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" || i.Member == nil {
		discord.RespondEphemeral(s, i, "This command only works in a server.")
		return
	}

	key := subcommandStringOption(i, "key")
	val, source, err := sc.settings.Get(i.GuildID, i.Member.User.ID, key)
	if err != nil {
		discord.RespondError(s, i, err)
		return
	}
	discord.RespondEphemeral(s, i, fmt.Sprintf("`%s` = `%v` (from %s)", key, val, source))
}

// handleSetGuild handles /settings set <key> <value>.
func (sc *SettingsCommands) handleSetGuild(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		discord.RespondEphemeral(s, i, "This command only works in a server.")
		return
	}
	if !sc.perms.IsAdmin(s, i) {
		discord.RespondEphemeral(s, i, "You need admin permissions to change server settings.")
		return
	}

	key := subcommandStringOption(i, "key")
	value := subcommandStringOption(i, "value")
	if err := sc.settings.SetGuild(i.GuildID, key, value); err != nil {
		discord.RespondError(s, i, err)
		return
	}
	discord.RespondEphemeral(s, i, fmt.Sprintf("Server setting `%s` set to `%s`.", key, value))
}

// handleInfo handles /settings info <key>.
func (sc *SettingsCommands) handleInfo(s *discordgo.Session, i *discordgo.InteractionCreate) {
	key := subcommandStringOption(i, "key")
	meta, err := settings.Lookup(key)
	if err != nil {
		discord.RespondError(s, i, err)
		return
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Type", Value: meta.Kind.String(), Inline: true},
		{Name: "Default", Value: fmt.Sprintf("`%v`", meta.Default), Inline: true},
	}
	if meta.Kind == settings.KindFloat || meta.Kind == settings.KindInt {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Range", Value: fmt.Sprintf("%g to %g", meta.Min, meta.Max), Inline: true,
		})
	}

	discord.RespondEmbed(s, i, &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Setting: %s", key),
		Description: meta.Description,
		Color:       0x5865F2,
		Fields:      fields,
	})
}

// handleSetUser handles /settings me set <key> <value>.
func (sc *SettingsCommands) handleSetUser(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" || i.Member == nil {
		discord.RespondEphemeral(s, i, "This command only works in a server.")
		return
	}

	key := subcommandStringOption(i, "key")
	value := subcommandStringOption(i, "value")
	if err := sc.settings.SetUser(i.GuildID, i.Member.User.ID, key, value); err != nil {
		discord.RespondError(s, i, err)
		return
	}
	discord.RespondEphemeral(s, i, fmt.Sprintf("Your setting `%s` set to `%s`.", key, value))
}

// handleResetUser handles /settings me reset.
func (sc *SettingsCommands) handleResetUser(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" || i.Member == nil {
		discord.RespondEphemeral(s, i, "This command only works in a server.")
		return
	}

	if err := sc.settings.ResetUser(i.GuildID, i.Member.User.ID); err != nil {
		discord.RespondError(s, i, err)
		return
	}
	discord.RespondEphemeral(s, i, "Your personal overrides were removed.")
}

// handleAutocomplete serves the "key" option for every subcommand and the
// "value" option when the chosen key is the voice.
func (sc *SettingsCommands) handleAutocomplete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	focused, partial := focusedOption(i)

	var choices []*discordgo.ApplicationCommandOptionChoice
	switch focused {
	case "key":
		for _, key := range settings.Keys() {
			if partial == "" || strings.HasPrefix(strings.ToLower(key), partial) {
				choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
					Name:  key,
					Value: key,
				})
			}
		}

	case "value":
		if subcommandStringOption(i, "key") == settings.KeyVoice && sc.provider != nil {
			choices = sc.voiceChoices(partial)
		}
	}

	// Discord limits autocomplete to 25 choices.
	if len(choices) > 25 {
		choices = choices[:25]
	}

	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{
			Choices: choices,
		},
	})
}

// voiceChoices lists voices from the synthesis backend matching partial.
func (sc *SettingsCommands) voiceChoices(partial string) []*discordgo.ApplicationCommandOptionChoice {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	voices, err := sc.provider.ListVoices(ctx)
	if err != nil {
		return nil
	}
	sort.Strings(voices)

	var choices []*discordgo.ApplicationCommandOptionChoice
	for _, v := range voices {
		if partial == "" || strings.HasPrefix(strings.ToLower(v), partial) {
			choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
				Name:  v,
				Value: v,
			})
		}
	}
	return choices
}

// focusedOption returns the name and lower-cased partial value of the option
// currently being completed.
func focusedOption(i *discordgo.InteractionCreate) (name, partial string) {
	for _, opt := range subcommandOptions(i) {
		if opt.Focused {
			return opt.Name, strings.ToLower(opt.StringValue())
		}
	}
	return "", ""
}
