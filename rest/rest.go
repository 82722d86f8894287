package rest

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Redeven/Streambot/cache"
	"github.com/Redeven/Streambot/models"
	"github.com/Redeven/Streambot/version"
	"github.com/emicklei/go-restful"
	"github.com/pkg/errors"
)

// Subscriptions is implemented by *streams.Service
type Subscriptions interface {
	ListSubscriptions(guildID string) map[string][]string
}

// Watches is implemented by *streams.Registry
type Watches interface {
	Len() int
}

// Writes is implemented by *storage.Storage
type Writes interface {
	Pending() int
}

type api struct {
	subscriptions Subscriptions
	watches       Watches
	writes        Writes
}

// NewContainer builds the REST API. $webhook receives twitch EventSub callbacks, nil disables the route.
func NewContainer(subscriptions Subscriptions, watches Watches, writes Writes, webhook http.Handler) *restful.Container {
	a := &api{subscriptions: subscriptions, watches: watches, writes: writes}
	container := restful.NewContainer()

	for _, service := range a.services(webhook) {
		container.Add(service)
	}
	container.Filter(logRequests)
	return container
}

func (a *api) services(webhook http.Handler) []*restful.WebService {
	services := make([]*restful.WebService, 0)

	service := new(restful.WebService)
	service.
		Path("/guilds").
		Produces(restful.MIME_JSON)
	service.Route(service.GET("/{guild-id}/streamers").To(a.GetGuildStreamers))
	services = append(services, service)

	service = new(restful.WebService)
	service.
		Path("/healthz").
		Produces(restful.MIME_JSON)
	service.Route(service.GET("").To(a.GetHealth))
	services = append(services, service)

	if webhook != nil {
		service = new(restful.WebService)
		service.
			Path("/webhooks").
			Consumes(restful.MIME_JSON)
		service.Route(service.POST("/twitch").To(func(request *restful.Request, response *restful.Response) {
			webhook.ServeHTTP(response.ResponseWriter, request.Request)
		}))
		services = append(services, service)
	}

	return services
}

func (a *api) GetGuildStreamers(request *restful.Request, response *restful.Response) {
	guildID := request.PathParameter("guild-id")

	streamers := a.subscriptions.ListSubscriptions(guildID)
	if streamers == nil {
		response.WriteError(http.StatusNotFound, errors.New("Guild not found."))
		return
	}

	response.WriteEntity(&models.Rest_Guild_Streamers{
		GuildID:   guildID,
		Streamers: streamers,
	})
}

func (a *api) GetHealth(request *restful.Request, response *restful.Response) {
	response.WriteEntity(&models.Rest_Health{
		Status:        "ok",
		Version:       version.BOT_VERSION,
		Watches:       a.watches.Len(),
		PendingWrites: a.writes.Pending(),
	})
}

func logRequests(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	now := time.Now()
	chain.ProcessFilter(req, resp)
	tookTime := time.Since(now)

	cache.GetLogger().WithField("module", "rest").Debug(fmt.Sprintf("received api request: %s %s (status %d, took %v)",
		req.Request.Method, req.Request.URL, resp.StatusCode(), tookTime))
}
