package main

import (
	"context"

	"github.com/Redeven/Streambot/cache"
	"github.com/Redeven/Streambot/helpers"
	"github.com/Redeven/Streambot/modules"
	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
)

type tenants interface {
	EnsureTenant(guildID, guildName string)
	RemoveTenant(ctx context.Context, guildID string) int
}

type botStatus interface {
	BotStatus() string
}

type statusUpdater interface {
	UpdateStatus(idle int, game string) error
}

// Bot keeps the guild settings in sync with the gateway and routes commands
type Bot struct {
	service tenants
	store   botStatus

	// commands is modules.CallBotPlugin outside of tests
	commands func(command, content string, msg *discordgo.Message) bool
}

// OnReady gets called after the gateway connected
func (b *Bot) OnReady(session *discordgo.Session, event *discordgo.Ready) {
	defer helpers.Recover()

	cache.GetLogger().WithField("module", "bot").Infof("Connected to discord as %s#%s", event.User.Username, event.User.Discriminator)
	b.ready(session, event.Guilds)
}

func (b *Bot) ready(session statusUpdater, guilds []*discordgo.Guild) {
	err := session.UpdateStatus(0, b.store.BotStatus())
	if err != nil {
		cache.GetLogger().WithField("module", "bot").Warn("failed to set status: ", err.Error())
	}

	for _, guild := range guilds {
		b.service.EnsureTenant(guild.ID, guild.Name)
	}
}

// OnGuildCreate fires on join and for every guild after connecting, names are refreshed each time
func (b *Bot) OnGuildCreate(session *discordgo.Session, event *discordgo.GuildCreate) {
	defer helpers.Recover()

	b.service.EnsureTenant(event.ID, event.Name)
}

func (b *Bot) OnGuildDelete(session *discordgo.Session, event *discordgo.GuildDelete) {
	defer helpers.Recover()

	b.guildDelete(event.Guild)
}

func (b *Bot) guildDelete(guild *discordgo.Guild) {
	// outages send an unavailable guild, the bot is still a member
	if guild == nil || guild.Unavailable {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	stopped := b.service.RemoveTenant(ctx, guild.ID)
	cache.GetLogger().WithField("module", "bot").WithFields(logrus.Fields{
		"guild":   guild.ID,
		"watches": stopped,
	}).Info("left guild")
}

func (b *Bot) OnMessageCreate(session *discordgo.Session, message *discordgo.MessageCreate) {
	defer helpers.Recover()

	b.messageCreate(message.Message)
}

func (b *Bot) messageCreate(msg *discordgo.Message) {
	// Ignore other bots and direct messages
	if msg.Author == nil || msg.Author.Bot || msg.GuildID == "" {
		return
	}

	command, content, ok := modules.ParseCommand(msg.Content)
	if !ok {
		return
	}

	call := b.commands
	if call == nil {
		call = modules.CallBotPlugin
	}
	call(command, content, msg)
}
