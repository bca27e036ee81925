package gateway

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/voicebridge/byova/internal/segment"
	"github.com/voicebridge/byova/pkg/connector"
	"github.com/voicebridge/byova/pkg/connector/mock"
)

func newTestRouter(t *testing.T, conn *mock.Connector) *Router {
	t.Helper()
	log := slog.New(slog.DiscardHandler)
	r := NewRouter(RouterConfig{
		Segment: segment.Config{Logger: log},
		Metrics: testMetrics(t),
		Logger:  log,
	})
	if err := r.RegisterConnector(context.Background(), "mock", conn); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestDispatchCreatesSessionAndGreets(t *testing.T) {
	conn := &mock.Connector{
		Session:  &mock.Session{},
		Greeting: connector.Reply{Text: "welcome", BargeIn: true},
	}
	r := newTestRouter(t, conn)

	msgs, err := r.Dispatch(context.Background(), Inbound{
		ConversationID: "conv-1",
		AgentID:        "mock: agent",
		Event:          &Event{Type: EventSessionStart},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Text != "welcome" {
		t.Fatalf("msgs = %+v", msgs)
	}
	if conn.StartCallCount() != 1 {
		t.Errorf("start calls = %d", conn.StartCallCount())
	}
	if got := r.Snapshot(); len(got) != 1 || got[0].ConversationID != "conv-1" {
		t.Errorf("snapshot = %+v", got)
	}

	// Subsequent messages reuse the session.
	if _, err := r.Dispatch(context.Background(), Inbound{
		ConversationID: "conv-1",
		DTMF:           &DTMF{Digits: []int{1}},
	}); err != nil {
		t.Fatal(err)
	}
	if conn.StartCallCount() != 1 {
		t.Errorf("start calls after reuse = %d", conn.StartCallCount())
	}
}

func TestDefaultAgentWhenUnspecified(t *testing.T) {
	conn := &mock.Connector{Session: &mock.Session{}, AgentIDs: []string{"mock: first", "mock: second"}}
	r := newTestRouter(t, conn)

	if _, err := r.Dispatch(context.Background(), Inbound{
		ConversationID: "conv-1",
		Event:          &Event{Type: EventSessionStart},
	}); err != nil {
		t.Fatal(err)
	}
	if got := conn.StartCalls[0].AgentID; got != "mock: first" {
		t.Errorf("agent = %q, want the default", got)
	}
}

func TestDispatchUnknownAgent(t *testing.T) {
	r := newTestRouter(t, &mock.Connector{Session: &mock.Session{}})
	_, err := r.Dispatch(context.Background(), Inbound{
		ConversationID: "conv-1",
		AgentID:        "mock: missing",
		Event:          &Event{Type: EventSessionStart},
	})
	if !errors.Is(err, connector.ErrAgentNotFound) {
		t.Errorf("err = %v, want ErrAgentNotFound", err)
	}
}

func TestFulfilledOutcomeRemovesSession(t *testing.T) {
	sess := &mock.Session{Replies: []connector.Reply{
		{Outcome: connector.OutcomeFulfilled, IntentName: "BookRoom"},
	}}
	conn := &mock.Connector{Session: sess}
	r := newTestRouter(t, conn)
	ctx := context.Background()

	if _, err := r.Dispatch(ctx, Inbound{ConversationID: "conv-1", Event: &Event{Type: EventSessionStart}}); err != nil {
		t.Fatal(err)
	}
	msgs, err := r.Dispatch(ctx, Inbound{ConversationID: "conv-1", DTMF: &DTMF{Digits: []int{9}}})
	if err != nil {
		t.Fatal(err)
	}
	evs := eventTypes(msgs)
	if len(evs) != 1 || evs[0] != OutSessionEnd {
		t.Fatalf("events = %v", evs)
	}
	if msgs[len(msgs)-1].Events[0].Metadata["intent_name"] != "BookRoom" {
		t.Error("intent name missing from terminal metadata")
	}
	if len(r.Snapshot()) != 0 {
		t.Error("session not removed after terminal outcome")
	}
	if sess.CloseCallCount != 1 {
		t.Errorf("backend close calls = %d", sess.CloseCallCount)
	}
}

func TestTickUnknownSession(t *testing.T) {
	r := newTestRouter(t, &mock.Connector{Session: &mock.Session{}})
	if _, err := r.Tick(context.Background(), "conv-404"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestEndConversationIsIdempotent(t *testing.T) {
	sess := &mock.Session{}
	r := newTestRouter(t, &mock.Connector{Session: sess})
	ctx := context.Background()

	if _, err := r.Dispatch(ctx, Inbound{ConversationID: "conv-1", Event: &Event{Type: EventSessionStart}}); err != nil {
		t.Fatal(err)
	}
	r.EndConversation(ctx, "conv-1", "test")
	r.EndConversation(ctx, "conv-1", "test")
	if sess.CloseCallCount != 1 {
		t.Errorf("close calls = %d, want 1", sess.CloseCallCount)
	}
}

func TestReaperRemovesIdleSessionsOnly(t *testing.T) {
	idleSess := &mock.Session{}
	conn := &mock.Connector{Session: idleSess}
	r := newTestRouter(t, conn)
	ctx := context.Background()

	if _, err := r.Dispatch(ctx, Inbound{ConversationID: "conv-idle", Event: &Event{Type: EventSessionStart}}); err != nil {
		t.Fatal(err)
	}

	// Not yet idle.
	r.reap(ctx, time.Now())
	if len(r.Snapshot()) != 1 {
		t.Fatal("active session reaped")
	}

	// Past the idle timeout.
	r.reap(ctx, time.Now().Add(301*time.Second))
	if len(r.Snapshot()) != 0 {
		t.Fatal("idle session survived the sweep")
	}
	if idleSess.CloseCallCount != 1 {
		t.Errorf("close calls = %d, want exactly 1", idleSess.CloseCallCount)
	}

	// A new message after the reap starts a fresh session rather than
	// resurrecting the old one.
	conn.Session = &mock.Session{}
	if _, err := r.Dispatch(ctx, Inbound{ConversationID: "conv-idle", DTMF: &DTMF{Digits: []int{1}}}); err != nil {
		t.Fatal(err)
	}
	if conn.StartCallCount() != 2 {
		t.Errorf("start calls = %d, want 2", conn.StartCallCount())
	}

	events := r.Events()
	var reaped bool
	for _, ev := range events {
		if ev.Type == "session_reaped" && ev.ConversationID == "conv-idle" {
			reaped = true
		}
	}
	if !reaped {
		t.Error("reap not recorded in the event history")
	}
}
