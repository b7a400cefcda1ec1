package hub

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkorzh/tube-relay/app/database"
	"github.com/mkorzh/tube-relay/app/metrics"
)

// State is a channel's position in the subscription lifecycle.
type State int

const (
	StateUnsubscribed State = iota
	StateSubscribing
	StateActive
	StateRenewing
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateSubscribing:
		return "subscribing"
	case StateActive:
		return "active"
	case StateRenewing:
		return "renewing"
	case StateExpired:
		return "expired"
	default:
		return "unsubscribed"
	}
}

// renewMargin is the fraction of lease lifetime left at which renewal kicks
// in.
const renewMargin = 0.1

// maxRetryBackoff caps the exponential backoff for expired channels.
const maxRetryBackoff = 15 * time.Minute

type lease struct {
	channelID   string
	topic       string
	secret      string
	callbackURL string
	expiresAt   time.Time
	state       State

	retries   int
	nextRetry time.Time
}

// Manager maintains one subscription lease per channel against the push
// notification hub, renewing each lease before it expires. Leases survive
// restarts through the lease repository.
type Manager struct {
	hubURL        string
	topicTemplate string
	callbackBase  string
	leaseSeconds  int
	userAgent     string

	httpClient *http.Client
	repo       database.LeaseRepository

	mu     sync.Mutex
	leases map[string]*lease

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(hubURL, topicTemplate, callbackBase, userAgent string, leaseSeconds int,
	repo database.LeaseRepository) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		hubURL:        hubURL,
		topicTemplate: topicTemplate,
		callbackBase:  strings.TrimRight(callbackBase, "/"),
		leaseSeconds:  leaseSeconds,
		userAgent:     userAgent,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		repo:          repo,
		leases:        make(map[string]*lease),
		ctx:           ctx,
		cancel:        cancel,
	}

	m.restore()
	return m
}

func (m *Manager) restore() {
	stored, err := m.repo.LoadAll()
	if err != nil {
		slog.Warn("Failed to restore subscription leases", "error", err)
		return
	}

	now := time.Now()
	for _, l := range stored {
		state := StateActive
		if now.After(l.ExpiresAt) {
			state = StateExpired
		}
		m.leases[l.ChannelID] = &lease{
			channelID:   l.ChannelID,
			topic:       l.Topic,
			secret:      l.Secret,
			callbackURL: l.CallbackURL,
			expiresAt:   l.ExpiresAt,
			state:       state,
		}
	}

	if len(stored) > 0 {
		slog.Info("Subscription leases restored", "count", len(stored))
	}
	m.updateGauge()
}

// Subscribe issues a hub subscription for channelID. Calling it for an
// already-active channel is an idempotent no-op.
func (m *Manager) Subscribe(ctx context.Context, channelID string) error {
	m.mu.Lock()
	if l, ok := m.leases[channelID]; ok && l.state == StateActive {
		m.mu.Unlock()
		slog.Debug("Channel already subscribed", "channel_id", channelID)
		return nil
	}

	l, ok := m.leases[channelID]
	if !ok {
		l = &lease{
			channelID:   channelID,
			topic:       fmt.Sprintf(m.topicTemplate, channelID),
			secret:      uuid.NewString(),
			callbackURL: m.callbackBase + "/webhook/" + channelID,
		}
		m.leases[channelID] = l
	}
	l.state = StateSubscribing
	topic, callback, secret := l.topic, l.callbackURL, l.secret
	m.mu.Unlock()

	err := m.hubRequest(ctx, "subscribe", topic, callback, secret)

	// updateGauge takes the manager lock itself, so it must run after the
	// lock is released
	m.mu.Lock()
	if err != nil {
		l.state = StateUnsubscribed
		m.mu.Unlock()
		m.updateGauge()
		return fmt.Errorf("subscription request failed: %w", err)
	}

	l.state = StateActive
	expiresAt := time.Now().Add(time.Duration(m.leaseSeconds) * time.Second)
	l.expiresAt = expiresAt
	l.retries = 0
	m.persist(l)
	m.mu.Unlock()
	m.updateGauge()

	slog.Info("Subscribed to channel", "channel_id", channelID, "expires_at", expiresAt)
	return nil
}

// Unsubscribe removes the channel from the active set. The hub call is best
// effort; local state is cleared regardless of the hub's response.
func (m *Manager) Unsubscribe(ctx context.Context, channelID string) {
	m.mu.Lock()
	l, ok := m.leases[channelID]
	if ok {
		delete(m.leases, channelID)
	}
	m.mu.Unlock()
	m.updateGauge()

	if err := m.repo.Delete(channelID); err != nil {
		slog.Warn("Failed to delete persisted lease", "channel_id", channelID, "error", err)
	}

	if !ok {
		return
	}

	if err := m.hubRequest(ctx, "unsubscribe", l.topic, l.callbackURL, l.secret); err != nil {
		slog.Warn("Hub unsubscribe failed, channel removed anyway", "channel_id", channelID, "error", err)
	} else {
		slog.Info("Unsubscribed from channel", "channel_id", channelID)
	}
}

// Secret returns the shared secret for a channel's callbacks.
func (m *Manager) Secret(channelID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leases[channelID]
	if !ok {
		return "", false
	}
	return l.secret, true
}

// Expecting reports whether a hub verification request for channelID is
// plausible, i.e. the channel has a lease in any state.
func (m *Manager) Expecting(channelID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.leases[channelID]
	return ok
}

// States returns a snapshot of lease states keyed by channel id.
func (m *Manager) States() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.leases))
	for id, l := range m.leases {
		out[id] = l.state.String()
	}
	return out
}

func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.leases {
		if l.state == StateActive {
			n++
		}
	}
	return n
}

// Start launches the background renewal loop.
func (m *Manager) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				m.renewDue()
			}
		}
	}()
}

// Stop halts renewals. In-flight hub calls finish on their own deadlines.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) renewDue() {
	margin := time.Duration(float64(m.leaseSeconds)*renewMargin) * time.Second
	now := time.Now()

	m.mu.Lock()
	var due []*lease
	for _, l := range m.leases {
		switch l.state {
		case StateActive:
			if now.After(l.expiresAt.Add(-margin)) {
				l.state = StateRenewing
				due = append(due, l)
			}
		case StateExpired, StateUnsubscribed:
			if now.After(l.nextRetry) {
				l.state = StateSubscribing
				due = append(due, l)
			}
		}
	}
	m.mu.Unlock()

	for _, l := range due {
		m.renew(l)
	}
	m.updateGauge()
}

// renew resubscribes one lease. The hub call uses a deadline derived from
// the lease expiry rather than a fixed wall-clock timeout.
func (m *Manager) renew(l *lease) {
	deadline := l.expiresAt
	if deadline.Before(time.Now()) {
		deadline = time.Now().Add(time.Duration(m.leaseSeconds) * time.Second / 10)
	}
	ctx, cancel := context.WithDeadline(m.ctx, deadline)
	defer cancel()

	err := m.hubRequest(ctx, "subscribe", l.topic, l.callbackURL, l.secret)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err == nil {
		l.state = StateActive
		l.expiresAt = time.Now().Add(time.Duration(m.leaseSeconds) * time.Second)
		l.retries = 0
		m.persist(l)
		slog.Info("Lease renewed", "channel_id", l.channelID, "expires_at", l.expiresAt)
		return
	}

	if time.Now().Before(l.expiresAt) {
		// Renewal failed but the old lease is still valid; keep it and try
		// again on the next tick
		l.state = StateActive
		slog.Warn("Lease renewal failed, old lease still valid",
			"channel_id", l.channelID, "expires_at", l.expiresAt, "error", err)
		return
	}

	l.state = StateExpired
	l.retries++
	backoff := min(time.Duration(1<<uint(l.retries))*time.Second, maxRetryBackoff)
	l.nextRetry = time.Now().Add(backoff)
	slog.Error("Lease expired, retry scheduled",
		"channel_id", l.channelID, "retry_count", l.retries, "delay", backoff.String(), "error", err)
}

func (m *Manager) hubRequest(ctx context.Context, mode, topic, callback, secret string) error {
	form := url.Values{
		"hub.mode":          {mode},
		"hub.topic":         {topic},
		"hub.callback":      {callback},
		"hub.verify":        {"async"},
		"hub.secret":        {secret},
		"hub.lease_seconds": {strconv.Itoa(m.leaseSeconds)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.hubURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create hub request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", m.userAgent)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("hub request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("hub returned status %d", resp.StatusCode)
	}

	return nil
}

// persist stores the lease; callers hold the manager lock.
func (m *Manager) persist(l *lease) {
	err := m.repo.Upsert(database.Lease{
		ChannelID:   l.channelID,
		Topic:       l.topic,
		Secret:      l.secret,
		CallbackURL: l.callbackURL,
		ExpiresAt:   l.expiresAt,
	})
	if err != nil {
		slog.Warn("Failed to persist lease", "channel_id", l.channelID, "error", err)
	}
}

func (m *Manager) updateGauge() {
	metrics.ActiveLeases.Set(float64(m.ActiveCount()))
}
