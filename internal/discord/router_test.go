package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestInteractionKey(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data discordgo.ApplicationCommandInteractionData
		want string
	}{
		{
			name: "top-level command",
			data: discordgo.ApplicationCommandInteractionData{Name: "tts"},
			want: "tts",
		},
		{
			name: "subcommand",
			data: discordgo.ApplicationCommandInteractionData{
				Name: "tts",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{Name: "join", Type: discordgo.ApplicationCommandOptionSubCommand},
				},
			},
			want: "tts/join",
		},
		{
			name: "grouped subcommand",
			data: discordgo.ApplicationCommandInteractionData{
				Name: "settings",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{
						Name: "me",
						Type: discordgo.ApplicationCommandOptionSubCommandGroup,
						Options: []*discordgo.ApplicationCommandInteractionDataOption{
							{Name: "set", Type: discordgo.ApplicationCommandOptionSubCommand},
						},
					},
				},
			},
			want: "settings/me/set",
		},
		{
			name: "plain options are not subcommands",
			data: discordgo.ApplicationCommandInteractionData{
				Name: "tts",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{Name: "channel", Type: discordgo.ApplicationCommandOptionChannel},
				},
			},
			want: "tts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := interactionKey(tt.data); got != tt.want {
				t.Errorf("interactionKey = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestApplicationCommands_Deduplicates(t *testing.T) {
	t.Parallel()
	r := NewCommandRouter()

	def := &discordgo.ApplicationCommand{Name: "tts"}
	noop := func(*discordgo.Session, *discordgo.InteractionCreate) {}

	r.RegisterCommand("tts", def, noop)
	r.RegisterCommand("tts/join", def, noop)
	r.RegisterHandler("tts/leave", noop)

	cmds := r.ApplicationCommands()
	if len(cmds) != 1 {
		t.Fatalf("got %d command definitions, want 1", len(cmds))
	}
	if cmds[0].Name != "tts" {
		t.Errorf("command name = %q", cmds[0].Name)
	}
}

func TestPermissionChecker_NoMember(t *testing.T) {
	t.Parallel()
	p := NewPermissionChecker("admin")
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{}}
	if p.IsAdmin(nil, i) {
		t.Error("interaction without a member should never be admin")
	}
}

func TestPermissionChecker_ManageGuildFallback(t *testing.T) {
	t.Parallel()
	p := NewPermissionChecker("")

	manager := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Member: &discordgo.Member{Permissions: discordgo.PermissionManageGuild},
	}}
	if !p.IsAdmin(nil, manager) {
		t.Error("Manage Server permission should grant admin with no role configured")
	}

	pleb := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Member: &discordgo.Member{},
	}}
	if p.IsAdmin(nil, pleb) {
		t.Error("member without Manage Server should not be admin")
	}
}

func TestPermissionChecker_RoleID(t *testing.T) {
	t.Parallel()
	p := NewPermissionChecker("role-123")

	holder := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Member: &discordgo.Member{Roles: []string{"role-999", "role-123"}},
	}}
	if !p.IsAdmin(nil, holder) {
		t.Error("member holding the configured role ID should be admin")
	}
}
