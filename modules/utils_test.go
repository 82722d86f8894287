package modules

import (
	"testing"

	"github.com/Redeven/Streambot/cache"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPlugin struct {
	commands    []string
	initialized bool
	calls       []string
}

func (p *recordingPlugin) Commands() []string { return p.commands }

func (p *recordingPlugin) Init(session *discordgo.Session) { p.initialized = true }

func (p *recordingPlugin) Action(command string, content string, msg *discordgo.Message, session *discordgo.Session) {
	p.calls = append(p.calls, command+":"+content)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in      string
		command string
		rest    string
		ok      bool
	}{
		{"?addstreamers twitch a b", "addstreamers", "twitch a b", true},
		{"?StreamerList", "streamerlist", "", true},
		{"?", "", "", false},
		{"? setchannel", "", "", false},
		{"hello", "", "", false},
	}
	for _, test := range tests {
		command, rest, ok := ParseCommand(test.in)
		assert.Equal(t, test.ok, ok, test.in)
		assert.Equal(t, test.command, command, test.in)
		assert.Equal(t, test.rest, rest, test.in)
	}
}

func TestInitRejectsDuplicateCommands(t *testing.T) {
	err := Init(nil,
		&recordingPlugin{commands: []string{"a"}},
		&recordingPlugin{commands: []string{"b", "a"}},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'a'")
}

func TestCallBotPlugin(t *testing.T) {
	cache.SetSession(&discordgo.Session{})
	plug := &recordingPlugin{commands: []string{"setchannel"}}
	require.NoError(t, Init(nil, plug))
	assert.True(t, plug.initialized)

	msg := &discordgo.Message{ID: "m1", ChannelID: "c1", GuildID: "g1"}
	assert.True(t, CallBotPlugin("setchannel", "", msg))
	assert.False(t, CallBotPlugin("unknown", "", msg))
	assert.Equal(t, []string{"setchannel:"}, plug.calls)
}
