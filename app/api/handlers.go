package api

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mkorzh/tube-relay/app/cache"
	"github.com/mkorzh/tube-relay/app/cfg"
	"github.com/mkorzh/tube-relay/app/channels"
	"github.com/mkorzh/tube-relay/app/database"
	"github.com/mkorzh/tube-relay/app/feed"
	"github.com/mkorzh/tube-relay/app/metrics"
	"github.com/mkorzh/tube-relay/app/tasks"
)

func NewHandler(orchestrator PipelineInterface, subscriptions HubInterface,
	table *channels.Table, store *cache.Store, checkpointRepo database.CheckpointRepository,
	httpClient *http.Client, parser *feed.Parser, scheduler tasks.TaskSchedulerInterface) *Handler {
	return &Handler{
		orchestrator:   orchestrator,
		subscriptions:  subscriptions,
		table:          table,
		store:          store,
		checkpointRepo: checkpointRepo,
		httpClient:     httpClient,
		parser:         parser,
		scheduler:      scheduler,
	}
}

// VerifyWebhook answers the hub's subscription intent verification. The hub
// sends a GET with hub.challenge; echoing it back confirms the subscription.
func (h *Handler) VerifyWebhook(c *gin.Context) {
	channelID := c.Param("channel")
	challenge := c.Query("hub.challenge")
	mode := c.Query("hub.mode")

	if challenge == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	if !h.subscriptions.Expecting(channelID) {
		slog.Warn("Verification request for unknown channel", "channel_id", channelID, "mode", mode)
		c.Status(http.StatusNotFound)
		return
	}

	slog.Info("Subscription verified by hub", "channel_id", channelID, "mode", mode,
		"lease_seconds", c.Query("hub.lease_seconds"))
	c.String(http.StatusOK, challenge)
}

// ReceiveWebhook handles a push notification: an Atom payload describing new
// channel items. Duplicates and busy drops still return 200 so the hub does
// not retry deliveries we have deliberately ignored.
func (h *Handler) ReceiveWebhook(c *gin.Context) {
	channelID := c.Param("channel")

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		slog.Error("Failed to read notification body", "channel_id", channelID, "error", err)
		c.Status(http.StatusBadRequest)
		return
	}

	metrics.NotificationsReceived.Inc()

	if !h.verifySignature(c, channelID, body) {
		// Per protocol the payload is ignored but the delivery acknowledged
		slog.Warn("Notification signature mismatch, payload ignored", "channel_id", channelID)
		c.Status(http.StatusOK)
		return
	}

	events, err := h.parser.Run(body)
	if err != nil {
		slog.Error("Failed to parse notification payload", "channel_id", channelID, "error", err)
		c.Status(http.StatusBadRequest)
		return
	}

	accepted := 0
	for _, ev := range events {
		if ev.ChannelID == "" {
			ev.ChannelID = channelID
		}
		if err := h.orchestrator.Handle(c.Request.Context(), ev); err == nil {
			accepted++
		}
	}

	slog.Info("Notification processed", "channel_id", channelID, "events", len(events), "accepted", accepted)
	c.Status(http.StatusOK)
}

// verifySignature checks X-Hub-Signature when both the header and a known
// secret are present. Absent header or unknown secret passes through.
func (h *Handler) verifySignature(c *gin.Context, channelID string, body []byte) bool {
	header := c.GetHeader("X-Hub-Signature")
	if header == "" {
		return true
	}

	secret, ok := h.subscriptions.Secret(channelID)
	if !ok {
		return true
	}

	expected, found := strings.CutPrefix(header, "sha1=")
	if !found {
		return false
	}

	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(computed), []byte(expected))
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"channels":  h.table.Len(),
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	startedAt, lastNotification, processed, failed := h.orchestrator.Snapshot()

	stats := map[string]interface{}{
		"started_at":       startedAt.Format(time.RFC3339),
		"uptime":           time.Since(startedAt).Round(time.Second).String(),
		"in_flight":        h.orchestrator.InFlight(),
		"videos_processed": processed,
		"jobs_failed":      failed,
		"channels":         h.table.Len(),
		"cache_entries":    h.store.Len(),
		"processed_items":  h.store.ProcessedCount(),
		"active_leases":    h.subscriptions.ActiveCount(),
		"leases":           h.subscriptions.States(),
	}
	if !lastNotification.IsZero() {
		stats["last_notification"] = lastNotification.Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) APIListChannels(c *gin.Context) {
	monitored := h.table.All()
	states := h.subscriptions.States()

	list := make([]map[string]interface{}, 0, len(monitored))
	for _, ch := range monitored {
		info := map[string]interface{}{
			"name":                ch.Name,
			"channel_id":          ch.ChannelID,
			"destination_account": ch.DestinationAccount,
			"proxy":               ch.Proxy != nil,
			"lease_state":         "unsubscribed",
		}
		if state, ok := states[ch.ChannelID]; ok {
			info["lease_state"] = state
		}
		list = append(list, info)
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"channels": list,
		"total":    len(list),
	})
}

func (h *Handler) APIAddChannel(c *gin.Context) {
	var req channelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid channel payload", "details": err.Error()})
		return
	}

	ch := req.toChannel()
	if err := h.table.Add(ch); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Failed to add channel", "details": err.Error()})
		return
	}

	if err := h.subscriptions.Subscribe(c.Request.Context(), ch.ChannelID); err != nil {
		// The channel stays registered; the renewal loop retries the lease
		slog.Warn("Initial subscription failed, will retry in background", "channel_id", ch.ChannelID, "error", err)
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"channel": gin.H{
			"name":       ch.Name,
			"channel_id": ch.ChannelID,
		},
	})
}

func (h *Handler) APIRemoveChannel(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing channel id parameter"})
		return
	}

	if err := h.table.Remove(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Channel not found", "details": err.Error()})
		return
	}

	h.subscriptions.Unsubscribe(c.Request.Context(), id)

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// APITriggerCheck enqueues an immediate poll of every monitored channel.
func (h *Handler) APITriggerCheck(c *gin.Context) {
	cfg := cfg.Get()
	ttl := time.Duration(cfg.ListCacheTTL()) * time.Second

	enqueued := 0
	for _, ch := range h.table.All() {
		task := tasks.NewCheckChannelTask(ch, h.httpClient, h.parser, h.store, h.checkpointRepo,
			h.orchestrator, cfg.TopicTemplate, cfg.UserAgent, cfg.PollLimit, ttl)
		if err := h.scheduler.EnqueueTask(task); err != nil {
			slog.Error("Failed to enqueue check task", "channel_id", ch.ChannelID, "error", err)
			continue
		}
		enqueued++
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"enqueued": enqueued,
	})
}
