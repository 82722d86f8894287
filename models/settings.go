package models

import "strings"

const (
	PlatformTwitch = "twitch"
	PlatformTrovo  = "trovo"

	DefaultBotStatus    = "StreamBot"
	DefaultPollInterval = 2
)

// Platforms lists every supported streaming platform
var Platforms = []string{PlatformTwitch, PlatformTrovo}

// IsPlatform reports whether $name is a supported platform
func IsPlatform(name string) bool {
	for _, platform := range Platforms {
		if platform == name {
			return true
		}
	}
	return false
}

// Settings is the persisted document, one per process
type Settings struct {
	BotStatus  string                    `json:"botStatus"`
	AdminUsers []string                  `json:"adminUsers"`
	Twitch     PollSettings              `json:"twitch"`
	Trovo      PollSettings              `json:"trovo"`
	Guilds     map[string]*GuildSettings `json:"guilds"`
}

// PollSettings holds the global poll interval of a pull platform in minutes
type PollSettings struct {
	Interval int `json:"interval"`
}

type GuildSettings struct {
	GuildID             string                  `json:"guildId"`
	GuildName           string                  `json:"guildName"`
	ChannelID           string                  `json:"channelId,omitempty"`
	AnnouncementMessage string                  `json:"announcementMessage"`
	Sources             map[string]StreamerList `json:"sources"`
}

// StreamerList maps the platform user id to the streamer
type StreamerList map[string]StreamerInfo

type StreamerInfo struct {
	UserID              string `json:"userId"`
	DisplayName         string `json:"displayName"`
	LastStreamMessageID string `json:"lastStreamMessageId,omitempty"`
}

// DefaultSettings is the document used when nothing was persisted yet
func DefaultSettings() *Settings {
	return &Settings{
		BotStatus:  DefaultBotStatus,
		AdminUsers: []string{},
		Twitch:     PollSettings{Interval: DefaultPollInterval},
		Trovo:      PollSettings{Interval: DefaultPollInterval},
		Guilds:     map[string]*GuildSettings{},
	}
}

// NewGuildSettings returns an empty guild with a source list for every platform
func NewGuildSettings(guildID, guildName string) *GuildSettings {
	guild := &GuildSettings{
		GuildID:   guildID,
		GuildName: guildName,
	}
	guild.ApplyDefaults()
	return guild
}

// ApplyDefaults fills in missing fields without touching existing ones
func (s *Settings) ApplyDefaults() {
	if s.BotStatus == "" {
		s.BotStatus = DefaultBotStatus
	}
	if s.AdminUsers == nil {
		s.AdminUsers = []string{}
	}
	if s.Twitch.Interval <= 0 {
		s.Twitch.Interval = DefaultPollInterval
	}
	if s.Trovo.Interval <= 0 {
		s.Trovo.Interval = DefaultPollInterval
	}
	if s.Guilds == nil {
		s.Guilds = map[string]*GuildSettings{}
	}
	for id, guild := range s.Guilds {
		if guild == nil {
			delete(s.Guilds, id)
			continue
		}
		if guild.GuildID == "" {
			guild.GuildID = id
		}
		guild.ApplyDefaults()
	}
}

// ApplyDefaults makes sure every platform has a source list
func (g *GuildSettings) ApplyDefaults() {
	if g.Sources == nil {
		g.Sources = map[string]StreamerList{}
	}
	for _, platform := range Platforms {
		if g.Sources[platform] == nil {
			g.Sources[platform] = StreamerList{}
		}
	}
}

// Copy returns a deep copy
func (g *GuildSettings) Copy() GuildSettings {
	c := *g
	c.Sources = make(map[string]StreamerList, len(g.Sources))
	for platform, list := range g.Sources {
		c.Sources[platform] = list.Copy()
	}
	return c
}

func (l StreamerList) Copy() StreamerList {
	c := make(StreamerList, len(l))
	for id, streamer := range l {
		c[id] = streamer
	}
	return c
}

// FindByName looks a streamer up by display name, case-insensitive
func (l StreamerList) FindByName(displayName string) (StreamerInfo, bool) {
	for _, streamer := range l {
		if strings.EqualFold(streamer.DisplayName, displayName) {
			return streamer, true
		}
	}
	return StreamerInfo{}, false
}
