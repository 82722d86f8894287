package helpers

import (
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
)

type fixedPermissions struct {
	permissions int
	err         error
}

func (f fixedPermissions) UserChannelPermissions(userID, channelID string) (int, error) {
	return f.permissions, f.err
}

func TestIsAdmin(t *testing.T) {
	msg := &discordgo.Message{ChannelID: "c1", Author: &discordgo.User{ID: "u1"}}

	assert.True(t, IsAdmin(fixedPermissions{}, msg, []string{"u1"}))
	assert.True(t, IsAdmin(fixedPermissions{permissions: discordgo.PermissionAdministrator}, msg, nil))
	assert.False(t, IsAdmin(fixedPermissions{permissions: discordgo.PermissionSendMessages}, msg, nil))
	assert.False(t, IsAdmin(fixedPermissions{err: errors.New("unknown member")}, msg, nil))
	assert.False(t, IsAdmin(fixedPermissions{}, &discordgo.Message{}, []string{"u1"}))
}

func TestRequireAdmin(t *testing.T) {
	msg := &discordgo.Message{ChannelID: "c1", Author: &discordgo.User{ID: "u1"}}

	var ran, denied bool
	RequireAdmin(fixedPermissions{}, msg, nil, func() { ran = true }, func() { denied = true })
	assert.False(t, ran)
	assert.True(t, denied)

	RequireAdmin(fixedPermissions{}, msg, []string{"u1"}, func() { ran = true }, nil)
	assert.True(t, ran)
}
