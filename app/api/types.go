package api

import (
	"context"
	"net/http"
	"time"

	"github.com/mkorzh/tube-relay/app/cache"
	"github.com/mkorzh/tube-relay/app/channels"
	"github.com/mkorzh/tube-relay/app/database"
	"github.com/mkorzh/tube-relay/app/feed"
	"github.com/mkorzh/tube-relay/app/hub"
	"github.com/mkorzh/tube-relay/app/pipeline"
	"github.com/mkorzh/tube-relay/app/tasks"
)

// PipelineInterface is the pipeline surface the HTTP layer needs.
type PipelineInterface interface {
	Handle(ctx context.Context, ev feed.Event) error
	InFlight() bool
	Snapshot() (startedAt, lastNotification time.Time, processed, failed int)
}

var _ PipelineInterface = (*pipeline.Orchestrator)(nil)

// HubInterface is the subscription manager surface the HTTP layer needs.
type HubInterface interface {
	Subscribe(ctx context.Context, channelID string) error
	Unsubscribe(ctx context.Context, channelID string)
	Secret(channelID string) (string, bool)
	Expecting(channelID string) bool
	States() map[string]string
	ActiveCount() int
}

var _ HubInterface = (*hub.Manager)(nil)

type Handler struct {
	orchestrator   PipelineInterface
	subscriptions  HubInterface
	table          *channels.Table
	store          *cache.Store
	checkpointRepo database.CheckpointRepository
	httpClient     *http.Client
	parser         *feed.Parser
	scheduler      tasks.TaskSchedulerInterface
}

// channelRequest is the JSON body for channel registration.
type channelRequest struct {
	Name               string        `json:"name" binding:"required"`
	ChannelID          string        `json:"channel_id" binding:"required"`
	DestinationAccount string        `json:"destination_account"`
	Proxy              *proxyRequest `json:"proxy"`
}

type proxyRequest struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r channelRequest) toChannel() channels.Channel {
	ch := channels.Channel{
		Name:               r.Name,
		ChannelID:          r.ChannelID,
		DestinationAccount: r.DestinationAccount,
	}
	if r.Proxy != nil && r.Proxy.Host != "" {
		ch.Proxy = &channels.Proxy{
			Host:     r.Proxy.Host,
			Port:     r.Proxy.Port,
			Username: r.Proxy.Username,
			Password: r.Proxy.Password,
		}
	}
	return ch
}
