// Package twitch watches Twitch channels through the Helix API, either with
// EventSub webhooks or by polling.
package twitch

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Redeven/Streambot/cache"
	"github.com/Redeven/Streambot/helpers"
	"github.com/Redeven/Streambot/models"
	"github.com/Redeven/Streambot/streams"
	redisCache "github.com/go-redis/cache"
	"github.com/nicklaw5/helix/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	channelURL        = "https://www.twitch.tv/"
	userCacheKey      = "streambot:twitch:user-by-login:"
	userCacheDuration = 24 * time.Hour
	// helix caps user and stream lookups at 100 entries
	maxBatch = 100

	topicStreamOnline  = "stream.online"
	topicStreamOffline = "stream.offline"
	topicChannelUpdate = "channel.update"
)

// subscriptionTypes are created for every watched broadcaster, with their EventSub version
var subscriptionTypes = []struct{ name, version string }{
	{topicStreamOnline, "1"},
	{topicStreamOffline, "1"},
	{topicChannelUpdate, "2"},
}

// helixAPI is the part of *helix.Client the platform uses
type helixAPI interface {
	RequestAppAccessToken(scopes []string) (*helix.AppAccessTokenResponse, error)
	SetAppAccessToken(accessToken string)
	GetUsers(params *helix.UsersParams) (*helix.UsersResponse, error)
	GetStreams(params *helix.StreamsParams) (*helix.StreamsResponse, error)
	CreateEventSubSubscription(payload *helix.EventSubSubscription) (*helix.EventSubSubscriptionsResponse, error)
	RemoveEventSubSubscription(id string) (*helix.RemoveEventSubSubscriptionParamsResponse, error)
}

// userCache stores login lookups, *redisCache.Codec implements it
type userCache interface {
	Get(key string, object interface{}) error
	Set(item *redisCache.Item) error
}

type Config struct {
	ClientID      string
	ClientSecret  string
	CallbackURL   string
	WebhookSecret string
	// Poll disables EventSub, the registry polls instead
	Poll bool
}

// subscription tracks the EventSub ids of one broadcaster shared by every guild following it
type subscription struct {
	ids  []string
	refs int
}

type Platform struct {
	config Config

	// helix.Client keeps the token on the client, calls are serialized
	apiMu    sync.Mutex
	api      helixAPI
	tokenTTL time.Time
	now      func() time.Time

	users userCache

	subsMu sync.Mutex
	subs   map[string]*subscription

	log *logrus.Entry
}

// New creates the helix client, the login cache is used if redis is configured
func New(config Config) (*Platform, error) {
	client, err := helix.NewClient(&helix.Options{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		HTTPClient:   &http.Client{Timeout: 15 * time.Second},
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating helix client")
	}

	platform := newPlatform(config, client)
	if cache.HasRedisClient() {
		platform.users = cache.GetRedisCacheCodec()
	}
	return platform, nil
}

func newPlatform(config Config, api helixAPI) *Platform {
	return &Platform{
		config: config,
		api:    api,
		now:    time.Now,
		subs:   make(map[string]*subscription),
		log:    cache.GetLogger().WithField("module", "twitch"),
	}
}

func (p *Platform) Name() string {
	return models.PlatformTwitch
}

func (p *Platform) Mode() streams.Mode {
	if p.config.Poll {
		return streams.Pull
	}
	return streams.Push
}

// ensureToken requests a new app access token when the current one is about to expire, p.apiMu must be held
func (p *Platform) ensureToken() error {
	if p.now().Before(p.tokenTTL) {
		return nil
	}

	resp, err := p.api.RequestAppAccessToken(nil)
	if err != nil {
		return errors.Wrap(err, "requesting app access token")
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("requesting app access token: %d %s", resp.StatusCode, resp.ErrorMessage)
	}

	p.api.SetAppAccessToken(resp.Data.AccessToken)
	expiresIn := time.Duration(resp.Data.ExpiresIn) * time.Second
	p.tokenTTL = p.now().Add(expiresIn - time.Minute)
	return nil
}

// call runs $fn with a valid token and retries once with a fresh token on 401
func (p *Platform) call(fn func() (int, error)) error {
	p.apiMu.Lock()
	defer p.apiMu.Unlock()

	for attempt := 0; ; attempt++ {
		if err := p.ensureToken(); err != nil {
			return err
		}
		status, err := fn()
		if err == nil && status == http.StatusUnauthorized && attempt == 0 {
			p.tokenTTL = time.Time{}
			continue
		}
		return err
	}
}

func (p *Platform) FetchSnapshot(ctx context.Context, userID string) (streams.Snapshot, error) {
	var resp *helix.StreamsResponse
	err := p.call(func() (status int, err error) {
		resp, err = p.api.GetStreams(&helix.StreamsParams{UserIDs: []string{userID}})
		if resp != nil {
			status = resp.StatusCode
		}
		return status, err
	})
	if err != nil {
		return streams.Snapshot{}, errors.Wrap(err, "fetching stream")
	}
	if resp.StatusCode != http.StatusOK {
		return streams.Snapshot{}, errors.Errorf("fetching stream: %d %s", resp.StatusCode, resp.ErrorMessage)
	}

	if len(resp.Data.Streams) == 0 {
		return streams.Snapshot{}, nil
	}
	return streamSnapshot(resp.Data.Streams[0]), nil
}

func streamSnapshot(stream helix.Stream) streams.Snapshot {
	thumbnail := strings.NewReplacer("{width}", "320", "{height}", "180").Replace(stream.ThumbnailURL)
	return streams.Snapshot{
		Live:         stream.Type == "live" || stream.Type == "",
		Title:        stream.Title,
		Category:     stream.GameName,
		DisplayName:  stream.UserName,
		URL:          channelURL + stream.UserLogin,
		ThumbnailURL: thumbnail,
		Viewers:      stream.ViewerCount,
	}
}

// ResolveUsers looks logins up, cached entries skip the API
func (p *Platform) ResolveUsers(ctx context.Context, names []string) ([]models.StreamerInfo, error) {
	found := make([]models.StreamerInfo, 0, len(names))
	missing := make([]string, 0, len(names))
	for _, name := range names {
		login := strings.ToLower(strings.TrimSpace(name))
		if login == "" {
			continue
		}
		var cached models.StreamerInfo
		if p.users != nil && p.users.Get(userCacheKey+login, &cached) == nil {
			found = append(found, cached)
			continue
		}
		missing = append(missing, login)
	}

	for start := 0; start < len(missing); start += maxBatch {
		end := start + maxBatch
		if end > len(missing) {
			end = len(missing)
		}

		var resp *helix.UsersResponse
		err := p.call(func() (status int, err error) {
			resp, err = p.api.GetUsers(&helix.UsersParams{Logins: missing[start:end]})
			if resp != nil {
				status = resp.StatusCode
			}
			return status, err
		})
		if err != nil {
			return found, errors.Wrap(err, "looking up users")
		}
		if resp.StatusCode != http.StatusOK {
			return found, errors.Errorf("looking up users: %d %s", resp.StatusCode, resp.ErrorMessage)
		}

		for _, user := range resp.Data.Users {
			info := models.StreamerInfo{UserID: user.ID, DisplayName: user.DisplayName}
			found = append(found, info)
			if p.users != nil {
				helpers.RelaxLog(p.users.Set(&redisCache.Item{
					Key:        userCacheKey + strings.ToLower(user.Login),
					Object:     info,
					Expiration: userCacheDuration,
				}))
			}
		}
	}
	return found, nil
}

// StartWatch subscribes to the broadcaster's EventSub topics. Guilds following
// the same broadcaster share one set of subscriptions, the token is the user id.
func (p *Platform) StartWatch(ctx context.Context, userID string) (string, error) {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()

	if sub, ok := p.subs[userID]; ok {
		sub.refs++
		return userID, nil
	}

	sub := &subscription{refs: 1}
	for _, topic := range subscriptionTypes {
		id, err := p.subscribe(topic.name, topic.version, userID)
		if err != nil {
			p.unsubscribe(sub.ids)
			return "", err
		}
		if id != "" {
			sub.ids = append(sub.ids, id)
		}
	}
	p.subs[userID] = sub

	p.log.WithField("streamer", userID).Info("subscribed to eventsub")
	return userID, nil
}

// StopWatch releases one reference, the last one removes the subscriptions
func (p *Platform) StopWatch(ctx context.Context, token string) error {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()

	sub, ok := p.subs[token]
	if !ok {
		return nil
	}
	sub.refs--
	if sub.refs > 0 {
		return nil
	}
	delete(p.subs, token)

	p.log.WithField("streamer", token).Info("unsubscribing from eventsub")
	return p.unsubscribe(sub.ids)
}

// Watching reports whether EventSub subscriptions are held for $userID
func (p *Platform) Watching(userID string) bool {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()

	_, ok := p.subs[userID]
	return ok
}

func (p *Platform) subscribe(topic, version, userID string) (string, error) {
	var resp *helix.EventSubSubscriptionsResponse
	err := p.call(func() (status int, err error) {
		resp, err = p.api.CreateEventSubSubscription(&helix.EventSubSubscription{
			Type:    topic,
			Version: version,
			Condition: helix.EventSubCondition{
				BroadcasterUserID: userID,
			},
			Transport: helix.EventSubTransport{
				Method:   "webhook",
				Callback: p.config.CallbackURL,
				Secret:   p.config.WebhookSecret,
			},
		})
		if resp != nil {
			status = resp.StatusCode
		}
		return status, err
	})
	if err != nil {
		return "", errors.Wrap(err, "creating "+topic+" subscription")
	}

	switch resp.StatusCode {
	case http.StatusAccepted:
		if len(resp.Data.EventSubSubscriptions) == 0 {
			return "", errors.New("creating " + topic + " subscription: empty response")
		}
		return resp.Data.EventSubSubscriptions[0].ID, nil
	case http.StatusConflict:
		// left over from a previous run, it keeps delivering to the same callback
		p.log.WithFields(logrus.Fields{"streamer": userID, "topic": topic}).Warn("subscription already exists")
		return "", nil
	default:
		return "", errors.Errorf("creating %s subscription: %d %s", topic, resp.StatusCode, resp.ErrorMessage)
	}
}

func (p *Platform) unsubscribe(ids []string) error {
	var lastErr error
	for _, id := range ids {
		var resp *helix.RemoveEventSubSubscriptionParamsResponse
		err := p.call(func() (status int, err error) {
			resp, err = p.api.RemoveEventSubSubscription(id)
			if resp != nil {
				status = resp.StatusCode
			}
			return status, err
		})
		if err == nil && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
			err = errors.Errorf("%d %s", resp.StatusCode, resp.ErrorMessage)
		}
		if err != nil {
			lastErr = errors.Wrap(err, "removing subscription "+id)
			p.log.WithError(lastErr).Warn("failed to remove eventsub subscription")
		}
	}
	return lastErr
}
