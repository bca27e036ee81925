// Package mock provides test doubles for the connector package interfaces.
//
// Use Connector to verify which agents get started, and Session to script
// backend replies turn by turn. Queue replies on Session.Replies; each
// Recognize call pops the next one, and an exhausted queue yields a plain
// continue Reply.
//
// Example:
//
//	sess := &mock.Session{Replies: []connector.Reply{
//	    {Text: "how many nights?"},
//	    {Text: "booked", Outcome: connector.OutcomeFulfilled, IntentName: "BookRoom"},
//	}}
//	c := &mock.Connector{Session: sess, AgentIDs: []string{"mock: hotel"}}
package mock

import (
	"context"
	"sync"

	"github.com/voicebridge/byova/pkg/connector"
)

// StartCall records a single invocation of Connector.Start.
type StartCall struct {
	AgentID        string
	ConversationID string
}

// Connector is a mock implementation of connector.Connector.
type Connector struct {
	mu sync.Mutex

	// AgentIDs is returned by Agents. Defaults to {"mock: agent"} when empty.
	AgentIDs []string

	// AgentsErr, if non-nil, is returned as the error from Agents.
	AgentsErr error

	// Session is returned by Start. If nil, Start returns a new empty
	// Session.
	Session *Session

	// Greeting is the Reply returned by Start alongside the session.
	Greeting connector.Reply

	// StartErr, if non-nil, is returned as the error from Start.
	StartErr error

	// StartCalls records every call to Start.
	StartCalls []StartCall
}

// Agents returns AgentIDs, AgentsErr.
func (c *Connector) Agents(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.AgentsErr != nil {
		return nil, c.AgentsErr
	}
	if len(c.AgentIDs) == 0 {
		return []string{"mock: agent"}, nil
	}
	ids := make([]string, len(c.AgentIDs))
	copy(ids, c.AgentIDs)
	return ids, nil
}

// Start records the call and returns Session, Greeting, StartErr.
func (c *Connector) Start(ctx context.Context, agentID, conversationID string) (connector.Session, connector.Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StartCalls = append(c.StartCalls, StartCall{AgentID: agentID, ConversationID: conversationID})
	if c.StartErr != nil {
		return nil, connector.Reply{}, c.StartErr
	}
	if c.Session == nil {
		c.Session = &Session{}
	}
	return c.Session, c.Greeting, nil
}

// StartCallCount returns the number of Start calls. Thread-safe.
func (c *Connector) StartCallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.StartCalls)
}

// Ensure Connector implements connector.Connector at compile time.
var _ connector.Connector = (*Connector)(nil)

// AudioCall records a single invocation of Session.RecognizeAudio.
type AudioCall struct {
	// PCM is a copy of the audio bytes that were passed in.
	PCM []byte
}

// TextCall records a single invocation of Session.RecognizeText.
type TextCall struct {
	Text string
}

// Session is a mock implementation of connector.Session.
type Session struct {
	mu sync.Mutex

	// Replies is the scripted queue. Each Recognize call pops the head;
	// when empty, a zero-valued continue Reply is returned.
	Replies []connector.Reply

	// RecognizeErr, if non-nil, is returned by every Recognize call.
	RecognizeErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// AudioCalls records every call to RecognizeAudio in order.
	AudioCalls []AudioCall

	// TextCalls records every call to RecognizeText in order.
	TextCalls []TextCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// RecognizeAudio records the call and pops the next scripted Reply.
func (s *Session) RecognizeAudio(ctx context.Context, pcm []byte) (connector.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	s.AudioCalls = append(s.AudioCalls, AudioCall{PCM: cp})
	return s.pop()
}

// RecognizeText records the call and pops the next scripted Reply.
func (s *Session) RecognizeText(ctx context.Context, text string) (connector.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TextCalls = append(s.TextCalls, TextCall{Text: text})
	return s.pop()
}

func (s *Session) pop() (connector.Reply, error) {
	if s.RecognizeErr != nil {
		return connector.Reply{}, s.RecognizeErr
	}
	if len(s.Replies) == 0 {
		return connector.Reply{}, nil
	}
	head := s.Replies[0]
	s.Replies = s.Replies[1:]
	return head, nil
}

// Close records the call and returns CloseErr.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// RecognizeCallCount returns the combined number of audio and text calls.
// Thread-safe.
func (s *Session) RecognizeCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.AudioCalls) + len(s.TextCalls)
}

// ResetCalls clears all recorded calls. Thread-safe.
func (s *Session) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AudioCalls = nil
	s.TextCalls = nil
	s.CloseCallCount = 0
}

// Ensure Session implements connector.Session at compile time.
var _ connector.Session = (*Session)(nil)
