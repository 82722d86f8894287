package twitch

import (
	"context"
	"io"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/Redeven/Streambot/helpers"
	"github.com/Redeven/Streambot/models"
	"github.com/Redeven/Streambot/streams"
	jsoniter "github.com/json-iterator/go"
	"github.com/nicklaw5/helix/v2"
	"github.com/sirupsen/logrus"
)

const (
	headerMessageType = "Twitch-Eventsub-Message-Type"
	headerMessageID   = "Twitch-Eventsub-Message-Id"

	messageVerification = "webhook_callback_verification"
	messageNotification = "notification"
	messageRevocation   = "revocation"

	maxBodySize  = 1 << 20
	fetchTimeout = 30 * time.Second
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Deliverer routes pushed snapshots to the watches of a streamer, *streams.Registry implements it
type Deliverer interface {
	Deliver(platform, userID string, snapshot streams.Snapshot) int
}

type notification struct {
	Subscription helix.EventSubSubscription `json:"subscription"`
	Challenge    string                     `json:"challenge"`
	Event        jsoniter.RawMessage        `json:"event"`
}

// broadcasterEvent holds the fields shared by the stream and channel events we subscribe to
type broadcasterEvent struct {
	BroadcasterUserID    string `json:"broadcaster_user_id"`
	BroadcasterUserLogin string `json:"broadcaster_user_login"`
	BroadcasterUserName  string `json:"broadcaster_user_name"`
	Title                string `json:"title"`
	CategoryName         string `json:"category_name"`
}

// Webhook is the EventSub callback endpoint
type Webhook struct {
	platform  *Platform
	deliverer Deliverer
	log       *logrus.Entry
}

func NewWebhook(platform *Platform, deliverer Deliverer) *Webhook {
	return &Webhook{
		platform:  platform,
		deliverer: deliverer,
		log:       platform.log.WithField("handler", "webhook"),
	}
}

func (h *Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := ioutil.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}
	if !helix.VerifyEventSubNotification(h.platform.config.WebhookSecret, r.Header, string(body)) {
		h.log.Warn("rejected eventsub message with invalid signature")
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	var msg notification
	if err = json.Unmarshal(body, &msg); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	log := h.log.WithFields(logrus.Fields{
		"message": r.Header.Get(headerMessageID),
		"topic":   msg.Subscription.Type,
	})

	switch r.Header.Get(headerMessageType) {
	case messageVerification:
		log.Info("answering eventsub challenge")
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(msg.Challenge))
	case messageRevocation:
		log.WithField("status", msg.Subscription.Status).Warn("eventsub subscription revoked")
		w.WriteHeader(http.StatusNoContent)
	case messageNotification:
		var event broadcasterEvent
		if err = json.Unmarshal(msg.Event, &event); err != nil || event.BroadcasterUserID == "" {
			http.Error(w, "invalid event", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		go h.handle(msg.Subscription.Type, event, log)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// handle turns an event into a snapshot and delivers it to every watch of the broadcaster
func (h *Webhook) handle(topic string, event broadcasterEvent, log *logrus.Entry) {
	defer helpers.Recover()

	snapshot, ok := h.snapshot(topic, event, log)
	if !ok {
		return
	}
	delivered := h.deliverer.Deliver(models.PlatformTwitch, event.BroadcasterUserID, snapshot)
	log.WithField("watches", delivered).Debug("delivered eventsub notification")
}

func (h *Webhook) snapshot(topic string, event broadcasterEvent, log *logrus.Entry) (streams.Snapshot, bool) {
	if topic == topicStreamOffline {
		return streams.Snapshot{}, true
	}

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	snapshot, err := h.platform.FetchSnapshot(ctx, event.BroadcasterUserID)
	if err != nil {
		log.WithError(err).Warn("failed to fetch stream for notification")
	}

	switch topic {
	case topicStreamOnline:
		// helix can lag behind the online event
		if err != nil || !snapshot.Live {
			return streams.Snapshot{
				Live:        true,
				DisplayName: event.BroadcasterUserName,
				URL:         channelURL + event.BroadcasterUserLogin,
			}, true
		}
		return snapshot, true
	case topicChannelUpdate:
		if err != nil {
			return streams.Snapshot{}, false
		}
		// the event carries the new values before helix serves them
		snapshot.Title = event.Title
		snapshot.Category = event.CategoryName
		return snapshot, true
	}
	return streams.Snapshot{}, false
}
