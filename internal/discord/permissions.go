package discord

import (
	"slices"

	"github.com/bwmarrin/discordgo"
)

// PermissionChecker validates that a Discord user may run privileged slash
// commands (guild-level settings changes, forcing the bot out of a channel).
type PermissionChecker struct {
	adminRole string
}

// NewPermissionChecker creates a PermissionChecker. adminRole may be a role
// ID or a role name; when empty, the Discord "Manage Server" permission is
// required instead.
func NewPermissionChecker(adminRole string) *PermissionChecker {
	return &PermissionChecker{adminRole: adminRole}
}

// IsAdmin checks whether the interaction author may run privileged commands.
// Returns false for interactions without a Member (DM channels).
func (p *PermissionChecker) IsAdmin(s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	if i.Member == nil {
		return false
	}

	if p.adminRole == "" {
		return i.Member.Permissions&discordgo.PermissionManageGuild != 0
	}

	if slices.Contains(i.Member.Roles, p.adminRole) {
		return true
	}

	// The configured value may be a role name; resolve it through the state
	// cache.
	guild, err := s.State.Guild(i.GuildID)
	if err != nil {
		return false
	}
	for _, role := range guild.Roles {
		if role.Name == p.adminRole && slices.Contains(i.Member.Roles, role.ID) {
			return true
		}
	}
	return false
}
