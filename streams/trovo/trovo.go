// Package trovo polls Trovo channels through the open platform API.
package trovo

import (
	"bytes"
	"context"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/Redeven/Streambot/cache"
	"github.com/Redeven/Streambot/helpers"
	"github.com/Redeven/Streambot/models"
	"github.com/Redeven/Streambot/streams"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/sethgrid/pester"
	"github.com/sirupsen/logrus"
)

const DefaultBaseURL = "https://open-api.trovo.live/openplatform"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type channel struct {
	IsLive         bool   `json:"is_live"`
	CategoryName   string `json:"category_name"`
	LiveTitle      string `json:"live_title"`
	Thumbnail      string `json:"thumbnail"`
	CurrentViewers int    `json:"current_viewers"`
	ProfilePic     string `json:"profile_pic"`
	ChannelURL     string `json:"channel_url"`
	Username       string `json:"username"`
}

type user struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Nickname  string `json:"nickname"`
	ChannelID string `json:"channel_id"`
}

type usersResponse struct {
	Total int    `json:"total"`
	Users []user `json:"users"`
}

type apiError struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Platform is a pull platform, it never registers webhooks
type Platform struct {
	clientID string
	baseURL  string
	client   *pester.Client
	log      *logrus.Entry
}

// New returns a platform using the retrying pester client, an empty $baseURL means DefaultBaseURL
func New(clientID, baseURL string) *Platform {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := pester.NewExtendedClient(&http.Client{Timeout: 15 * time.Second})
	client.MaxRetries = 3
	client.Backoff = pester.ExponentialJitterBackoff

	return &Platform{
		clientID: clientID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   client,
		log:      cache.GetLogger().WithField("module", "trovo"),
	}
}

func (p *Platform) Name() string {
	return models.PlatformTrovo
}

func (p *Platform) Mode() streams.Mode {
	return streams.Pull
}

// post sends $payload as JSON to $endpoint and decodes the answer into $target
func (p *Platform) post(ctx context.Context, endpoint string, payload, target interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encoding request")
	}

	req, err := http.NewRequest(http.MethodPost, p.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req = req.WithContext(ctx)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Client-ID", p.clientID)

	resp, err := p.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "requesting "+endpoint)
	}
	defer resp.Body.Close()

	data, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "reading "+endpoint)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		json.Unmarshal(data, &apiErr)
		return errors.Errorf("%s: %d %s", endpoint, resp.StatusCode, apiErr.Message)
	}

	return errors.Wrap(json.Unmarshal(data, target), "decoding "+endpoint)
}

// FetchSnapshot reads the channel with the id stored as the streamer's user id
func (p *Platform) FetchSnapshot(ctx context.Context, userID string) (streams.Snapshot, error) {
	var ch channel
	err := p.post(ctx, "/channels/id", map[string]string{"channel_id": userID}, &ch)
	if err != nil {
		return streams.Snapshot{}, err
	}

	return streams.Snapshot{
		Live:            ch.IsLive,
		Title:           ch.LiveTitle,
		Category:        ch.CategoryName,
		DisplayName:     ch.Username,
		URL:             ch.ChannelURL,
		ProfileImageURL: ch.ProfilePic,
		ThumbnailURL:    ch.Thumbnail,
		Viewers:         ch.CurrentViewers,
	}, nil
}

// ResolveUsers only accepts users whose username matches a requested name, the channel id becomes the user id
func (p *Platform) ResolveUsers(ctx context.Context, names []string) ([]models.StreamerInfo, error) {
	if len(names) == 0 {
		return nil, nil
	}

	var resp usersResponse
	err := p.post(ctx, "/getusers", map[string][]string{"user": names}, &resp)
	if err != nil {
		return nil, err
	}

	found := make([]models.StreamerInfo, 0, len(resp.Users))
	for _, u := range resp.Users {
		if u.ChannelID == "" || !helpers.ContainsFold(names, u.Username) {
			continue
		}
		found = append(found, models.StreamerInfo{UserID: u.ChannelID, DisplayName: u.Username})
	}

	p.log.WithFields(logrus.Fields{
		"requested": len(names),
		"found":     len(found),
	}).Debug("resolved trovo users")
	return found, nil
}

func (p *Platform) StartWatch(ctx context.Context, userID string) (string, error) {
	return "", errors.New("trovo does not support webhooks")
}

func (p *Platform) StopWatch(ctx context.Context, token string) error {
	return nil
}
