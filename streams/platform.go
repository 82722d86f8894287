// Package streams watches streamers on behalf of guilds and turns notable
// changes into announcements.
package streams

import (
	"context"
	"fmt"

	"github.com/Redeven/Streambot/models"
	"github.com/pkg/errors"
)

var (
	ErrUnknownPlatform = errors.New("unknown platform")
	ErrNoChannel       = errors.New("no announcement channel configured")
)

// Mode tells the registry how a platform produces snapshots
type Mode int

const (
	// Pull platforms are polled on the platform interval
	Pull Mode = iota
	// Push platforms deliver snapshots through webhooks
	Push
)

func (m Mode) String() string {
	if m == Push {
		return "push"
	}
	return "pull"
}

// Snapshot is a point in time view of a channel.
// Only Live, Title and Category take part in change detection.
type Snapshot struct {
	Live     bool
	Title    string
	Category string

	DisplayName     string
	URL             string
	ProfileImageURL string
	ThumbnailURL    string
	Viewers         int
}

// Key identifies one subscription
type Key struct {
	GuildID  string
	Platform string
	UserID   string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.GuildID, k.Platform, k.UserID)
}

// Platform is implemented once per streaming site
type Platform interface {
	Name() string
	Mode() Mode
	FetchSnapshot(ctx context.Context, userID string) (Snapshot, error)
	// ResolveUsers looks up display names, names that do not exist are left out
	ResolveUsers(ctx context.Context, displayNames []string) ([]models.StreamerInfo, error)
	// StartWatch registers a webhook for $userID and returns a token for StopWatch
	StartWatch(ctx context.Context, userID string) (string, error)
	StopWatch(ctx context.Context, token string) error
}
