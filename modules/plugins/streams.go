package plugins

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Redeven/Streambot/cache"
	"github.com/Redeven/Streambot/helpers"
	"github.com/Redeven/Streambot/models"
	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
)

const (
	reactionSuccess = "✅"
	reactionFail    = "❌"

	commandTimeout = 30 * time.Second
)

// Chat is the part of the discord session the commands talk to
type Chat interface {
	ChannelMessageSend(channelID string, content string) (*discordgo.Message, error)
	MessageReactionAdd(channelID, messageID, emojiID string) error
	UserChannelPermissions(userID, channelID string) (int, error)
}

// Subscriptions is implemented by streams.Service
type Subscriptions interface {
	AddSubscriptions(ctx context.Context, guildID, platform string, names []string) ([]models.StreamerInfo, error)
	RemoveSubscriptions(ctx context.Context, guildID, platform string, names []string) (int, error)
	ListSubscriptions(guildID string) map[string][]string
}

// GuildSettings is implemented by storage.Storage
type GuildSettings interface {
	AdminUsers() []string
	SetChannel(guildID, channelID string) bool
	SetAnnouncementMessage(guildID, message string) bool
}

// Streams manages the streamers a guild follows and where announcements go
type Streams struct {
	subscriptions Subscriptions
	settings      GuildSettings
	log           *logrus.Entry
}

func NewStreams(subscriptions Subscriptions, settings GuildSettings) *Streams {
	return &Streams{
		subscriptions: subscriptions,
		settings:      settings,
		log:           cache.GetLogger().WithField("module", "streams-commands"),
	}
}

func (s *Streams) Commands() []string {
	return []string{
		"setmessage",
		"setchannel",
		"streamerlist",
		"addstreamers",
		"delstreamers",
	}
}

func (s *Streams) Init(session *discordgo.Session) {}

func (s *Streams) Action(command string, content string, msg *discordgo.Message, session *discordgo.Session) {
	s.Handle(session, command, content, msg)
}

// Handle runs $command against $chat
func (s *Streams) Handle(chat Chat, command string, content string, msg *discordgo.Message) {
	if msg.GuildID == "" {
		s.react(chat, msg, false)
		return
	}

	args := strings.Fields(content)

	switch command {
	case "streamerlist":
		s.streamerList(chat, msg)
		return
	case "setmessage", "setchannel", "addstreamers", "delstreamers":
	default:
		return
	}

	helpers.RequireAdmin(chat, msg, s.settings.AdminUsers(), func() {
		switch command {
		case "setmessage":
			s.react(chat, msg, s.settings.SetAnnouncementMessage(msg.GuildID, strings.TrimSpace(content)))
		case "setchannel":
			s.react(chat, msg, s.settings.SetChannel(msg.GuildID, msg.ChannelID))
		case "addstreamers":
			s.addStreamers(chat, msg, args)
		case "delstreamers":
			s.delStreamers(chat, msg, args)
		}
	}, func() {
		s.react(chat, msg, false)
	})
}

func (s *Streams) streamerList(chat Chat, msg *discordgo.Message) {
	list := s.subscriptions.ListSubscriptions(msg.GuildID)
	if list == nil {
		s.react(chat, msg, false)
		return
	}

	lines := make([]string, 0, len(models.Platforms))
	for _, platform := range models.Platforms {
		names := make([]string, 0, len(list[platform]))
		for _, name := range list[platform] {
			names = append(names, helpers.Sanitize(name))
		}
		lines = append(lines, helpers.Capitalize(platform)+": "+strings.Join(names, ", "))
	}
	s.send(chat, msg, "Channels:\n"+strings.Join(lines, "\n"))
}

func (s *Streams) addStreamers(chat Chat, msg *discordgo.Message, args []string) {
	if len(args) < 2 || !models.IsPlatform(args[0]) {
		s.react(chat, msg, false)
		return
	}
	platform := args[0]

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	added, err := s.subscriptions.AddSubscriptions(ctx, msg.GuildID, platform, args[1:])
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"guild": msg.GuildID, "platform": platform}).Warn("addstreamers failed")
		s.react(chat, msg, false)
		return
	}
	s.send(chat, msg, fmt.Sprintf("Added %d %s channel%s", len(added), helpers.Capitalize(platform), helpers.Plural(len(added))))
}

func (s *Streams) delStreamers(chat Chat, msg *discordgo.Message, args []string) {
	if len(args) < 2 || !models.IsPlatform(args[0]) {
		s.react(chat, msg, false)
		return
	}
	platform := args[0]

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	removed, err := s.subscriptions.RemoveSubscriptions(ctx, msg.GuildID, platform, args[1:])
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"guild": msg.GuildID, "platform": platform}).Warn("delstreamers failed")
		s.react(chat, msg, false)
		return
	}
	s.send(chat, msg, fmt.Sprintf("Removed %d %s channel%s", removed, helpers.Capitalize(platform), helpers.Plural(removed)))
}

func (s *Streams) send(chat Chat, msg *discordgo.Message, content string) {
	_, err := chat.ChannelMessageSend(msg.ChannelID, content)
	if err != nil {
		s.log.WithError(err).WithField("channel", msg.ChannelID).Warn("failed to send command reply")
	}
}

func (s *Streams) react(chat Chat, msg *discordgo.Message, success bool) {
	emoji := reactionFail
	if success {
		emoji = reactionSuccess
	}

	err := chat.MessageReactionAdd(msg.ChannelID, msg.ID, emoji)
	if err != nil {
		s.log.WithError(err).WithField("channel", msg.ChannelID).Debug("failed to react to command")
	}
}
