package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voicebridge/byova/internal/observe"
	"github.com/voicebridge/byova/internal/resilience"
	"github.com/voicebridge/byova/internal/segment"
	"github.com/voicebridge/byova/pkg/connector"
)

// ErrSessionNotFound reports that a conversation id has no live session.
var ErrSessionNotFound = errors.New("gateway: session not found")

// ErrNoAgents reports that no connector registered any agent.
var ErrNoAgents = errors.New("gateway: no agents available")

// RouterConfig tunes the Router.
type RouterConfig struct {
	// IdleTimeout after which a conversation with no caller input is
	// reaped. Default 300s.
	IdleTimeout time.Duration

	// ReapInterval between idle sweeps. Default 60s.
	ReapInterval time.Duration

	// BackendTimeout bounds each backend call. Default 15s.
	BackendTimeout time.Duration

	// CleanupGrace bounds the backend Close call when reaping. Default 5s.
	CleanupGrace time.Duration

	// Segment configures the per-conversation segmenter.
	Segment segment.Config

	Metrics *observe.Metrics
	Logger  *slog.Logger
}

func (c RouterConfig) withDefaults() RouterConfig {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 300 * time.Second
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = 60 * time.Second
	}
	if c.BackendTimeout <= 0 {
		c.BackendTimeout = 15 * time.Second
	}
	if c.CleanupGrace <= 0 {
		c.CleanupGrace = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Metrics == nil {
		c.Metrics = observe.DefaultMetrics()
	}
	return c
}

// sessionEntry couples one conversation's controller with its backend
// handle for cleanup.
type sessionEntry struct {
	turn      *TurnController
	backend   connector.Session
	agentID   string
	createdAt time.Time
}

// SessionInfo is one row of the status-page session table.
type SessionInfo struct {
	ConversationID string    `json:"conversation_id"`
	AgentID        string    `json:"agent_id"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivity   time.Time `json:"last_activity"`
}

// Router multiplexes conversations onto vendor backend sessions. It owns
// agent discovery, session lifecycle (creation, dispatch, idle reaping)
// and the status-page snapshot.
//
// The map is guarded by a single mutex; per-session state is owned by the
// conversation's stream goroutine and never touched under the lock.
type Router struct {
	cfg    RouterConfig
	log    *slog.Logger
	events *EventLog

	mu         sync.Mutex
	sessions   map[string]*sessionEntry
	byAgent    map[string]connector.Connector
	agentOrder []string
	breakers   map[connector.Connector]*resilience.Breaker
}

// NewRouter returns an empty Router.
func NewRouter(cfg RouterConfig) *Router {
	cfg = cfg.withDefaults()
	return &Router{
		cfg:      cfg,
		log:      cfg.Logger,
		events:   NewEventLog(0),
		sessions: make(map[string]*sessionEntry),
		byAgent:  make(map[string]connector.Connector),
		breakers: make(map[connector.Connector]*resilience.Breaker),
	}
}

// RegisterConnector queries the connector for its agents and makes them
// routable. The first agent registered overall becomes the default for
// conversations that do not name one.
func (r *Router) RegisterConnector(ctx context.Context, name string, c connector.Connector) error {
	agents, err := c.Agents(ctx)
	if err != nil {
		return fmt.Errorf("gateway: register %s: %w", name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range agents {
		if _, dup := r.byAgent[id]; dup {
			r.log.Warn("duplicate agent id, keeping first registration", "agent_id", id)
			continue
		}
		r.byAgent[id] = c
		r.agentOrder = append(r.agentOrder, id)
	}
	if _, ok := r.breakers[c]; !ok {
		r.breakers[c] = resilience.New(resilience.Config{Name: name, Logger: r.log})
	}
	r.log.Info("connector registered", "connector", name, "agents", len(agents))
	return nil
}

// Agents lists all routable agent ids in registration order.
func (r *Router) Agents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.agentOrder))
	copy(out, r.agentOrder)
	return out
}

// Resolve returns the live controller for a conversation, or starts a new
// session when none exists. The greeting Outbound is non-nil only for a
// fresh session. An empty agentID selects the default agent.
func (r *Router) Resolve(ctx context.Context, conversationID, agentID string) (*TurnController, *Outbound, error) {
	r.mu.Lock()
	if entry, ok := r.sessions[conversationID]; ok {
		r.mu.Unlock()
		return entry.turn, nil, nil
	}
	if agentID == "" && len(r.agentOrder) > 0 {
		agentID = r.agentOrder[0]
	}
	conn, ok := r.byAgent[agentID]
	if !ok {
		r.mu.Unlock()
		if agentID == "" {
			return nil, nil, ErrNoAgents
		}
		return nil, nil, fmt.Errorf("gateway: agent %q: %w", agentID, connector.ErrAgentNotFound)
	}
	breaker := r.breakers[conn]
	r.mu.Unlock()

	// Start the backend session outside the lock; backends do network IO.
	backend, greeting, err := conn.Start(ctx, agentID, conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("gateway: start conversation %s: %w", conversationID, err)
	}

	turn := NewTurnController(TurnConfig{
		ConversationID: conversationID,
		AgentID:        agentID,
		Backend:        backend,
		Breaker:        breaker,
		Segmenter:      segment.New(conversationID, r.cfg.Segment),
		Metrics:        r.cfg.Metrics,
		Logger:         r.log,
		BackendTimeout: r.cfg.BackendTimeout,
	})
	entry := &sessionEntry{turn: turn, backend: backend, agentID: agentID, createdAt: time.Now()}

	r.mu.Lock()
	if existing, ok := r.sessions[conversationID]; ok {
		// Lost the race to another goroutine for the same conversation.
		r.mu.Unlock()
		go r.closeBackend(backend, conversationID)
		return existing.turn, nil, nil
	}
	r.sessions[conversationID] = entry
	r.mu.Unlock()

	r.cfg.Metrics.ActiveSessions.Add(ctx, 1)
	r.events.Add(ConnectionEvent{Type: "session_start", ConversationID: conversationID, AgentID: agentID})
	r.log.Info("session started", "conversation_id", conversationID, "agent_id", agentID)

	out := turn.Greeting(greeting)
	return turn, &out, nil
}

// Dispatch routes one inbound message to its conversation's controller,
// creating the session on first contact. It returns the caller-bound
// messages; a done conversation is removed and its backend closed.
func (r *Router) Dispatch(ctx context.Context, msg Inbound) ([]Outbound, error) {
	turn, greeting, err := r.Resolve(ctx, msg.ConversationID, msg.AgentID)
	if err != nil {
		return nil, err
	}

	var msgs []Outbound
	if greeting != nil {
		msgs = append(msgs, *greeting)
	}

	var (
		replies []Outbound
		done    bool
	)
	now := time.Now()
	switch {
	case msg.Audio != nil:
		replies, done = turn.HandleAudio(ctx, msg.Audio, now)
	case msg.DTMF != nil:
		replies, done = turn.HandleDTMF(ctx, msg.DTMF, now)
	case msg.Event != nil:
		// A fresh session's session_start is satisfied by the greeting.
		if greeting != nil && msg.Event.Type == EventSessionStart {
			break
		}
		replies, done = turn.HandleEvent(ctx, msg.Event, now)
	}
	msgs = append(msgs, replies...)

	if done {
		r.EndConversation(ctx, msg.ConversationID, "completed")
	}
	return msgs, nil
}

// Tick drives the segmentation timeout for one conversation. Called from
// the conversation's stream goroutine.
func (r *Router) Tick(ctx context.Context, conversationID string) ([]Outbound, error) {
	r.mu.Lock()
	entry, ok := r.sessions[conversationID]
	r.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	msgs, done := entry.turn.Tick(ctx, time.Now())
	if done {
		r.EndConversation(ctx, conversationID, "completed")
	}
	return msgs, nil
}

// EndConversation removes a session and closes its backend handle. It is
// a no-op for unknown ids, so racing cleanups are safe.
func (r *Router) EndConversation(ctx context.Context, conversationID, reason string) {
	r.mu.Lock()
	entry, ok := r.sessions[conversationID]
	if ok {
		delete(r.sessions, conversationID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	r.cfg.Metrics.ActiveSessions.Add(ctx, -1)
	r.events.Add(ConnectionEvent{Type: "session_end", ConversationID: conversationID,
		AgentID: entry.agentID, Reason: reason})
	r.log.Info("session ended", "conversation_id", conversationID, "reason", reason)
	r.closeBackend(entry.backend, conversationID)
}

func (r *Router) closeBackend(backend connector.Session, conversationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.CleanupGrace)
	defer cancel()
	if err := backend.Close(ctx); err != nil {
		r.log.Warn("backend close failed", "conversation_id", conversationID, "error", err)
	}
}

// RunReaper sweeps idle sessions until ctx is cancelled. Run it from the
// main errgroup.
func (r *Router) RunReaper(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			r.reap(ctx, now)
		}
	}
}

// reap removes every session idle past the timeout. Sessions are removed
// from the map first; the backend close happens after, bounded by the
// cleanup grace, so a hung backend cannot stall the sweep of the rest.
func (r *Router) reap(ctx context.Context, now time.Time) {
	r.mu.Lock()
	var idle []*sessionEntry
	var ids []string
	for id, entry := range r.sessions {
		if now.Sub(entry.turn.LastActivity()) >= r.cfg.IdleTimeout {
			idle = append(idle, entry)
			ids = append(ids, id)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for i, entry := range idle {
		id := ids[i]
		r.cfg.Metrics.ActiveSessions.Add(ctx, -1)
		r.cfg.Metrics.SessionsReaped.Add(ctx, 1)
		r.events.Add(ConnectionEvent{Type: "session_reaped", ConversationID: id,
			AgentID: entry.agentID, Reason: "idle_timeout"})
		r.log.Info("idle session reaped", "conversation_id", id,
			"idle", now.Sub(entry.turn.LastActivity()).Round(time.Second))
		r.closeBackend(entry.backend, id)
	}
}

// Snapshot returns the live sessions for the status page.
func (r *Router) Snapshot() []SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SessionInfo, 0, len(r.sessions))
	for id, entry := range r.sessions {
		out = append(out, SessionInfo{
			ConversationID: id,
			AgentID:        entry.agentID,
			CreatedAt:      entry.createdAt,
			LastActivity:   entry.turn.LastActivity(),
		})
	}
	return out
}

// Events returns the recent connection-event history, oldest first.
func (r *Router) Events() []ConnectionEvent {
	return r.events.All()
}
