package modules

import (
	"strings"
	"sync"

	"github.com/Redeven/Streambot/cache"
	"github.com/Redeven/Streambot/helpers"
	"github.com/Redeven/Streambot/metrics"
	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
)

// Prefix starts every command message
const Prefix = "?"

var (
	pluginMu    sync.RWMutex
	pluginCache map[string]Plugin
)

// Init registers the commands of $plugins and initializes them
func Init(session *discordgo.Session, plugins ...Plugin) error {
	cmds, err := commandTable(plugins)
	if err != nil {
		return err
	}

	for _, plug := range plugins {
		cache.GetLogger().WithField("module", "modules").Infof(
			"[PLUG] %s reacts to [ %s ]",
			helpers.Typeof(plug),
			strings.Join(plug.Commands(), " "),
		)
		plug.Init(session)
	}

	pluginMu.Lock()
	pluginCache = cmds
	pluginMu.Unlock()

	cache.GetLogger().WithField("module", "modules").Infof("Initializer finished. Loaded %d plugins", len(plugins))
	return nil
}

// ParseCommand splits a prefixed message into command and the remaining content
func ParseCommand(content string) (command, rest string, ok bool) {
	if !strings.HasPrefix(content, Prefix) {
		return "", "", false
	}

	content = strings.TrimPrefix(content, Prefix)
	parts := strings.SplitN(content, " ", 2)
	if parts[0] == "" {
		return "", "", false
	}
	if len(parts) > 1 {
		rest = strings.TrimSpace(parts[1])
	}
	return strings.ToLower(parts[0]), rest, true
}

// CallBotPlugin runs the plugin registered for $command, unknown commands are ignored
//
// command - The command that triggered this execution
// content - The content without command
// msg     - The message object
func CallBotPlugin(command string, content string, msg *discordgo.Message) bool {
	defer helpers.Recover()

	pluginMu.RLock()
	plug, ok := pluginCache[command]
	pluginMu.RUnlock()
	if !ok {
		return false
	}

	metrics.CommandsExecuted.WithLabelValues(command).Inc()

	plug.Action(command, content, msg, cache.GetSession())
	return true
}

func commandTable(plugins []Plugin) (map[string]Plugin, error) {
	cmds := make(map[string]Plugin)
	for _, plug := range plugins {
		for _, cmd := range plug.Commands() {
			if occupant, ok := cmds[cmd]; ok {
				return nil, errors.Errorf(
					"failed to load %s because '%s' was already registered by %s",
					helpers.Typeof(plug), cmd, helpers.Typeof(occupant),
				)
			}
			cmds[cmd] = plug
		}
	}
	return cmds, nil
}
