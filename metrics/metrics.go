package metrics

import (
	"net/http"
	"time"

	"github.com/Redeven/Streambot/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WatchesActive counts running watches per platform
	WatchesActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "streambot_watches_active",
		Help: "Number of active streamer watches.",
	}, []string{"platform"})

	// FetchErrors counts failed snapshot fetches
	FetchErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "streambot_fetch_errors_total",
		Help: "Snapshot fetches that failed.",
	}, []string{"platform"})

	// TicksSkipped counts ticks dropped because the previous one was still in flight
	TicksSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "streambot_ticks_skipped_total",
		Help: "Ticks or webhook deliveries skipped while a watch was busy.",
	}, []string{"platform"})

	// NotableEvents counts events published to the bus
	NotableEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "streambot_notable_events_total",
		Help: "Notable stream changes detected.",
	}, []string{"platform"})

	// Notifications counts dispatch outcomes: posted, edited, dropped, failed
	Notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "streambot_notifications_total",
		Help: "Announcement dispatch results.",
	}, []string{"platform", "result"})

	// SettingsWrites counts settings document writes by result
	SettingsWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "streambot_settings_writes_total",
		Help: "Full settings document writes.",
	}, []string{"result"})

	// CommandsExecuted counts chat commands routed to a plugin
	CommandsExecuted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "streambot_commands_total",
		Help: "Chat commands executed.",
	}, []string{"command"})

	// Uptime stores the timestamp of the bot's boot
	Uptime = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "streambot_boot_timestamp_seconds",
		Help: "Unix time the bot booted.",
	})
)

func init() {
	prometheus.MustRegister(
		WatchesActive,
		FetchErrors,
		TicksSkipped,
		NotableEvents,
		Notifications,
		SettingsWrites,
		CommandsExecuted,
		Uptime,
	)
}

// Init starts the /metrics listener on $listen, an empty address disables it
func Init(listen string) {
	Uptime.Set(float64(time.Now().Unix()))
	if listen == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		err := http.ListenAndServe(listen, mux)
		if err != nil {
			cache.GetLogger().WithField("module", "metrics").Error("metrics listener died: ", err.Error())
		}
	}()
	cache.GetLogger().WithField("module", "metrics").Info("Listening on " + listen)
}
