package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/Redeven/Streambot/cache"
	"github.com/Redeven/Streambot/helpers"
	"github.com/Redeven/Streambot/logging"
	"github.com/Redeven/Streambot/metrics"
	"github.com/Redeven/Streambot/models"
	"github.com/Redeven/Streambot/modules"
	"github.com/Redeven/Streambot/modules/plugins"
	"github.com/Redeven/Streambot/rest"
	"github.com/Redeven/Streambot/storage"
	"github.com/Redeven/Streambot/streams"
	"github.com/Redeven/Streambot/streams/trovo"
	"github.com/Redeven/Streambot/streams/twitch"
	"github.com/Redeven/Streambot/version"
	"github.com/bwmarrin/discordgo"
	"github.com/getsentry/raven-go"
	"github.com/go-redis/redis"
	"github.com/jonboulle/clockwork"
	"github.com/kz/discordrus"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 30 * time.Second

// Entrypoint
func main() {
	log := logrus.New()
	log.Out = os.Stdout
	log.Level = logrus.InfoLevel
	log.Formatter = &logrus.TextFormatter{ForceColors: true, FullTimestamp: true, TimestampFormat: time.RFC3339}
	log.Hooks = make(logrus.LevelHooks)
	cache.SetLogger(log)

	// Read config
	helpers.LoadConfig("config.json")

	if helpers.ConfigBool("debug", false) {
		helpers.DEBUG_MODE = true
		log.Level = logrus.DebugLevel
	}

	if path := helpers.ConfigString("logging.jsonfile", ""); path != "" {
		fileHook, err := logging.NewFileHook(path, log.Level)
		if err != nil {
			log.WithField("module", "launcher").Error("logrus file hook failed, err:", err.Error())
		} else {
			log.Hooks.Add(fileHook)
		}
	}

	if webhook := helpers.ConfigString("logging.discord_webhook", ""); webhook != "" {
		log.Hooks.Add(discordrus.NewHook(
			webhook,
			logrus.ErrorLevel,
			&discordrus.Opts{
				Username:           "Streambot",
				TimestampFormat:    "Jan 2 15:04:05.00000",
				EnableCustomColors: true,
				CustomLevelColors: &discordrus.LevelColors{
					Error: 13631488,
					Panic: 13631488,
					Fatal: 13631488,
				},
			},
		))
	}

	log.WithField("module", "launcher").Info("Booting Streambot...")
	version.DumpInfo()

	metrics.Init(helpers.ConfigString("metrics.listen", ""))

	if dsn := helpers.ConfigString("sentry", ""); dsn != "" {
		log.WithField("module", "launcher").Info("[SENTRY] Calling home...")
		helpers.Relax(raven.SetDSN(dsn))
		raven.SetRelease(version.BOT_VERSION)
	}

	if address := helpers.ConfigString("redis.address", ""); address != "" {
		log.WithField("module", "launcher").Info("Connecting to redis...")
		cache.SetRedisClient(redis.NewClient(&redis.Options{
			Addr: address,
			DB:   0,
		}))
	}

	backend, err := openBackend()
	helpers.Relax(err)
	store, err := storage.Open(backend)
	helpers.Relax(err)

	// Connect and add event handlers
	discordgo.Logger = func(msgL, caller int, format string, a ...interface{}) {
		pc, file, line, _ := runtime.Caller(caller)

		files := strings.Split(file, "/")
		file = files[len(files)-1]

		name := runtime.FuncForPC(pc).Name()
		fns := strings.Split(name, ".")
		name = fns[len(fns)-1]

		msg := format
		if strings.Contains(msg, "%") {
			msg = fmt.Sprintf(format, a...)
		}

		switch msgL {
		case discordgo.LogError:
			log.WithField("module", "discordgo").Errorf("%s:%d:%s() %s", file, line, name, msg)
		case discordgo.LogWarning:
			log.WithField("module", "discordgo").Warnf("%s:%d:%s() %s", file, line, name, msg)
		case discordgo.LogInformational:
			log.WithField("module", "discordgo").Infof("%s:%d:%s() %s", file, line, name, msg)
		case discordgo.LogDebug:
			log.WithField("module", "discordgo").Debugf("%s:%d:%s() %s", file, line, name, msg)
		}
	}
	discord, err := discordgo.New("Bot " + helpers.ConfigString("discord.token", ""))
	helpers.Relax(err)

	discord.Lock()
	discord.Debug = false
	discord.LogLevel = discordgo.LogInformational
	discord.StateEnabled = true
	discord.Unlock()
	cache.SetSession(discord)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	platforms, webhookPlatform := buildPlatforms()

	bus := streams.NewBus(streams.DefaultBusSize)
	registry := streams.NewRegistry(bus, store, clockwork.NewRealClock(), platforms...)
	service := streams.NewService(store, registry, bus)
	dispatcher := streams.NewDispatcher(store, discord, clockwork.NewRealClock(), map[string]time.Duration{
		models.PlatformTwitch: helpers.ConfigDuration("windows.twitch", streams.DefaultWindows[models.PlatformTwitch]),
		models.PlatformTrovo:  helpers.ConfigDuration("windows.trovo", streams.DefaultWindows[models.PlatformTrovo]),
	})
	go dispatcher.Run(ctx, service.OnNotableChange())

	// Open REST API, twitch needs the callback route before subscriptions are created
	var webhook http.Handler
	if webhookPlatform != nil {
		webhook = twitch.NewWebhook(webhookPlatform, registry)
	}
	container := rest.NewContainer(service, registry, store, webhook)
	listen := helpers.ConfigString("api.listen", "localhost:2021")
	go func() {
		server := &http.Server{Addr: listen, Handler: container}
		log.WithField("module", "launcher").Fatal(server.ListenAndServe())
	}()
	log.WithField("module", "launcher").Info("REST API listening on " + listen)

	started, err := service.StartAll(ctx)
	if err != nil {
		helpers.RelaxLog(errors.Wrap(err, "restoring watches"))
	}
	log.WithField("module", "launcher").Infof("restored %d watches", started)

	bot := &Bot{service: service, store: store}
	discord.AddHandler(bot.OnReady)
	discord.AddHandler(bot.OnGuildCreate)
	discord.AddHandler(bot.OnGuildDelete)
	discord.AddHandler(bot.OnMessageCreate)

	helpers.Relax(modules.Init(discord, plugins.NewStreams(service, store)))

	log.WithField("module", "launcher").Info("Connecting Streambot to discord...")
	err = discord.Open()
	if err != nil {
		raven.CaptureErrorAndWait(err, nil)
		panic(err)
	}

	// Make a channel that waits for a os signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Wait until the os wants us to shutdown
	<-shutdown

	log.WithField("module", "launcher").Info("Streambot is stopping")
	discord.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	for _, guild := range store.Tenants() {
		registry.StopAll(shutdownCtx, guild.GuildID)
	}
	cancel()

	err = store.Close(shutdownCtx)
	if err != nil {
		log.WithField("module", "launcher").Error("failed to flush settings: ", err.Error())
	}
}

// openBackend picks the settings backend from storage.backend: file (default), mongodb or redis
func openBackend() (storage.Backend, error) {
	switch helpers.ConfigString("storage.backend", "file") {
	case "file":
		return storage.NewFileBackend(helpers.ConfigString("storage.path", "settings.json")), nil
	case "mongodb":
		return storage.DialMongo(
			helpers.ConfigString("mongodb.url", "mongodb://localhost:27017"),
			helpers.ConfigString("mongodb.db", "streambot"),
		)
	case "redis":
		if !cache.HasRedisClient() {
			return nil, errors.New("storage.backend redis needs redis.address")
		}
		return storage.NewRedisBackend(cache.GetRedisClient()), nil
	default:
		return nil, errors.New("unknown storage.backend " + helpers.ConfigString("storage.backend", ""))
	}
}

// buildPlatforms returns every configured platform, the twitch platform is returned again if it needs the webhook route
func buildPlatforms() ([]streams.Platform, *twitch.Platform) {
	log := cache.GetLogger().WithField("module", "launcher")
	platforms := make([]streams.Platform, 0, len(models.Platforms))

	var webhookPlatform *twitch.Platform
	if clientID := helpers.ConfigString("twitch.client_id", ""); clientID != "" {
		twitchPlatform, err := twitch.New(twitch.Config{
			ClientID:      clientID,
			ClientSecret:  helpers.ConfigString("twitch.client_secret", ""),
			CallbackURL:   helpers.ConfigString("twitch.callback_url", ""),
			WebhookSecret: helpers.ConfigString("twitch.webhook_secret", ""),
			Poll:          helpers.ConfigString("twitch.mode", "push") == "pull",
		})
		helpers.Relax(err)
		platforms = append(platforms, twitchPlatform)
		if twitchPlatform.Mode() == streams.Push {
			webhookPlatform = twitchPlatform
		}
	} else {
		log.Warn("twitch.client_id is empty, twitch is disabled")
	}

	if clientID := helpers.ConfigString("trovo.client_id", ""); clientID != "" {
		platforms = append(platforms, trovo.New(clientID, helpers.ConfigString("trovo.base_url", trovo.DefaultBaseURL)))
	} else {
		log.Warn("trovo.client_id is empty, trovo is disabled")
	}

	return platforms, webhookPlatform
}
