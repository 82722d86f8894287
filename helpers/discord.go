package helpers

import (
	"github.com/bwmarrin/discordgo"
)

// Callback is a function without arguments, used by the Require* helpers
type Callback func()

type permissionSource interface {
	UserChannelPermissions(userID, channelID string) (int, error)
}

// IsBotAdmin checks if $id is in $botAdmins
func IsBotAdmin(id string, botAdmins []string) bool {
	for _, s := range botAdmins {
		if s == id {
			return true
		}
	}

	return false
}

// IsAdmin is true for configured bot admins and for members with the administrator permission in the channel
func IsAdmin(session permissionSource, msg *discordgo.Message, botAdmins []string) bool {
	if msg == nil || msg.Author == nil {
		return false
	}

	if IsBotAdmin(msg.Author.ID, botAdmins) {
		return true
	}

	permissions, err := session.UserChannelPermissions(msg.Author.ID, msg.ChannelID)
	if err != nil {
		return false
	}

	return permissions&discordgo.PermissionAdministrator == discordgo.PermissionAdministrator
}

// RequireAdmin only calls $cb if the author is an admin, $denied otherwise
func RequireAdmin(session permissionSource, msg *discordgo.Message, botAdmins []string, cb Callback, denied Callback) {
	if !IsAdmin(session, msg, botAdmins) {
		if denied != nil {
			denied()
		}
		return
	}

	cb()
}
