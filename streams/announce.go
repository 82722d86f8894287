package streams

import (
	"fmt"
	"strings"
	"time"

	"github.com/Redeven/Streambot/helpers"
	"github.com/Redeven/Streambot/models"
	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"
)

const (
	displayNamePlaceholder = "{DISPLAYNAME}"
	defaultAnnouncement    = "¡**%s** prendió stream!"
)

var platformColors = map[string]int{
	models.PlatformTwitch: 0x9147ff,
	models.PlatformTrovo:  0x30c07b,
}

// announcementContent renders the guild template for $displayName
func announcementContent(template, displayName string) string {
	name := helpers.Sanitize(displayName)
	if strings.TrimSpace(template) == "" {
		return fmt.Sprintf(defaultAnnouncement, name)
	}
	return strings.Replace(template, displayNamePlaceholder, name, -1)
}

func announcementEmbed(platform, displayName string, snapshot Snapshot, now time.Time) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       snapshot.Title,
		URL:         snapshot.URL,
		Description: snapshot.URL,
		Color:       platformColors[platform],
		Timestamp:   now.UTC().Format(time.RFC3339),
		Author: &discordgo.MessageEmbedAuthor{
			Name:    displayName,
			URL:     snapshot.URL,
			IconURL: snapshot.ProfileImageURL,
		},
	}
	if snapshot.Category != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: snapshot.Category}
	}
	if snapshot.ThumbnailURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: snapshot.ThumbnailURL}
	}
	if snapshot.Viewers > 0 {
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "Viewers", Value: humanize.Comma(int64(snapshot.Viewers)), Inline: true},
		}
	}
	return embed
}

// messageTime is the embed timestamp of $message, or when it was sent if the embed has none
func messageTime(message *discordgo.Message) (time.Time, error) {
	for _, embed := range message.Embeds {
		if embed == nil || embed.Timestamp == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, embed.Timestamp); err == nil {
			return t, nil
		}
	}
	return message.Timestamp.Parse()
}

// authorName returns the author name rendered in the first embed of $message
func authorName(message *discordgo.Message) string {
	if message == nil || len(message.Embeds) == 0 || message.Embeds[0] == nil || message.Embeds[0].Author == nil {
		return ""
	}
	return message.Embeds[0].Author.Name
}
