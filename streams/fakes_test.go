package streams

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Redeven/Streambot/models"
	"github.com/bwmarrin/discordgo"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

var (
	offline = Snapshot{}
	liveA   = Snapshot{Live: true, Title: "A", Category: "Just Chatting"}
	liveB   = Snapshot{Live: true, Title: "B", Category: "Just Chatting"}
)

type step struct {
	snapshot Snapshot
	err      error
}

func snap(s Snapshot) step { return step{snapshot: s} }

func fail() step { return step{err: errors.New("api down")} }

type fakePlatform struct {
	name string
	mode Mode

	mu         sync.Mutex
	scripts    map[string][]step
	fetches    map[string]int
	users      map[string]models.StreamerInfo
	resolveErr error
	startErr   error
	tokens     int
	started    []string
	stopped    []string
}

func newFakePlatform(name string, mode Mode) *fakePlatform {
	return &fakePlatform{
		name:    name,
		mode:    mode,
		scripts: make(map[string][]step),
		fetches: make(map[string]int),
		users:   make(map[string]models.StreamerInfo),
	}
}

func (p *fakePlatform) Name() string { return p.name }

func (p *fakePlatform) Mode() Mode { return p.mode }

// script sets the fetch results for $userID, the last one repeats forever
func (p *fakePlatform) script(userID string, steps ...step) {
	p.mu.Lock()
	p.scripts[userID] = steps
	p.mu.Unlock()
}

func (p *fakePlatform) addUser(userID, displayName string) {
	p.mu.Lock()
	p.users[strings.ToLower(displayName)] = models.StreamerInfo{UserID: userID, DisplayName: displayName}
	p.mu.Unlock()
}

func (p *fakePlatform) fetchCount(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetches[userID]
}

func (p *fakePlatform) startCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.started)
}

func (p *fakePlatform) stopCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.stopped)
}

func (p *fakePlatform) FetchSnapshot(ctx context.Context, userID string) (Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.fetches[userID]++
	steps := p.scripts[userID]
	if len(steps) == 0 {
		return offline, nil
	}
	i := p.fetches[userID] - 1
	if i >= len(steps) {
		i = len(steps) - 1
	}
	return steps[i].snapshot, steps[i].err
}

func (p *fakePlatform) ResolveUsers(ctx context.Context, names []string) ([]models.StreamerInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.resolveErr != nil {
		return nil, p.resolveErr
	}
	var found []models.StreamerInfo
	for _, name := range names {
		if user, ok := p.users[strings.ToLower(name)]; ok {
			found = append(found, user)
		}
	}
	return found, nil
}

func (p *fakePlatform) StartWatch(ctx context.Context, userID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.startErr != nil {
		return "", p.startErr
	}
	p.tokens++
	p.started = append(p.started, userID)
	return fmt.Sprintf("token-%d", p.tokens), nil
}

func (p *fakePlatform) StopWatch(ctx context.Context, token string) error {
	p.mu.Lock()
	p.stopped = append(p.stopped, token)
	p.mu.Unlock()
	return nil
}

type fixedInterval time.Duration

func (i fixedInterval) Interval(string) time.Duration { return time.Duration(i) }

// collector acknowledges every event on the bus and keeps it
type collector struct {
	mu     sync.Mutex
	events []*Event
}

func collect(t *testing.T, bus *Bus) *collector {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	c := &collector{}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-bus.Events():
				c.mu.Lock()
				c.events = append(c.events, event)
				c.mu.Unlock()
				event.Done()
			}
		}
	}()
	return c
}

func (c *collector) all() []*Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Event(nil), c.events...)
}

func (c *collector) count() int {
	return len(c.all())
}

// advanceUntil keeps moving the fake clock by $step until $done holds
func advanceUntil(t *testing.T, clock clockwork.FakeClock, step time.Duration, done func() bool) {
	t.Helper()

	require.Eventually(t, func() bool {
		if done() {
			return true
		}
		clock.Advance(step)
		return false
	}, 5*time.Second, time.Millisecond)
}

type fakeGateway struct {
	clock clockwork.Clock

	mu       sync.Mutex
	channels map[string]bool
	messages map[string]*discordgo.Message
	sendErr  error
	author   string
	nextID   int
	posts    int
	edits    int
}

func newFakeGateway(clock clockwork.Clock, channels ...string) *fakeGateway {
	g := &fakeGateway{
		clock:    clock,
		channels: make(map[string]bool),
		messages: make(map[string]*discordgo.Message),
	}
	for _, channel := range channels {
		g.channels[channel] = true
	}
	return g
}

// seed stores an announcement whose embed was stamped $age ago
func (g *fakeGateway) seed(channelID, messageID string, age time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.messages[messageID] = &discordgo.Message{
		ID:        messageID,
		ChannelID: channelID,
		Embeds: []*discordgo.MessageEmbed{{
			Timestamp: g.clock.Now().Add(-age).UTC().Format(time.RFC3339),
		}},
	}
}

func (g *fakeGateway) counts() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.posts, g.edits
}

func (g *fakeGateway) message(id string) *discordgo.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.messages[id]
}

func (g *fakeGateway) Channel(channelID string) (*discordgo.Channel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.channels[channelID] {
		return nil, errors.New("HTTP 404 Not Found")
	}
	return &discordgo.Channel{ID: channelID}, nil
}

func (g *fakeGateway) ChannelMessage(channelID, messageID string) (*discordgo.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	message, ok := g.messages[messageID]
	if !ok || message.ChannelID != channelID {
		return nil, errors.New("HTTP 404 Not Found")
	}
	return message, nil
}

func (g *fakeGateway) render(embed *discordgo.MessageEmbed) *discordgo.MessageEmbed {
	if g.author != "" && embed != nil && embed.Author != nil {
		rendered := *embed
		rendered.Author = &discordgo.MessageEmbedAuthor{Name: g.author}
		return &rendered
	}
	return embed
}

func (g *fakeGateway) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend) (*discordgo.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.sendErr != nil {
		return nil, g.sendErr
	}
	g.nextID++
	g.posts++
	message := &discordgo.Message{
		ID:        fmt.Sprintf("m%d", g.nextID),
		ChannelID: channelID,
		Content:   data.Content,
		Embeds:    []*discordgo.MessageEmbed{g.render(data.Embed)},
		Timestamp: discordgo.Timestamp(g.clock.Now().UTC().Format(time.RFC3339)),
	}
	g.messages[message.ID] = message
	return message, nil
}

func (g *fakeGateway) ChannelMessageEditComplex(edit *discordgo.MessageEdit) (*discordgo.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.sendErr != nil {
		return nil, g.sendErr
	}
	message, ok := g.messages[edit.ID]
	if !ok {
		return nil, errors.New("HTTP 404 Not Found")
	}
	g.edits++
	if edit.Content != nil {
		message.Content = *edit.Content
	}
	if edit.Embed != nil {
		message.Embeds = []*discordgo.MessageEmbed{g.render(edit.Embed)}
	}
	return message, nil
}
