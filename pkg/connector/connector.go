// Package connector defines the contract between the gateway and the
// turn-based conversational backends it bridges to.
//
// A Connector is one configured backend integration (AWS Lex, the local
// audio stub). Each caller conversation maps to exactly one backend
// Session obtained from [Connector.Start]. Sessions are turn-based:
// the gateway hands over one complete utterance or text input and receives
// one [Reply].
//
// Implementations must be safe for concurrent use: the gateway starts
// sessions for many conversations against the same Connector.
package connector

import (
	"context"
	"errors"
)

// Sentinel errors implementations return so the gateway can map failures
// to caller-facing behavior with errors.Is.
var (
	// ErrAgentNotFound reports that an agent id does not belong to this
	// connector. The gateway rejects the conversation.
	ErrAgentNotFound = errors.New("connector: agent not found")

	// ErrBackendUnavailable reports that the backend could not be reached.
	// The gateway absorbs the turn and keeps the call alive.
	ErrBackendUnavailable = errors.New("connector: backend unavailable")
)

// Outcome classifies how a backend turn left the conversation.
type Outcome int

const (
	// OutcomeContinue means the conversation goes on; the Reply carries the
	// next prompt.
	OutcomeContinue Outcome = iota

	// OutcomeFulfilled means the backend completed its goal; the gateway
	// ends the session normally.
	OutcomeFulfilled

	// OutcomeFailed means the backend gave up; the gateway escalates the
	// caller to a human.
	OutcomeFailed

	// OutcomeClosed means the backend closed the dialog on its own terms.
	OutcomeClosed
)

// String returns the outcome name for logs.
func (o Outcome) String() string {
	switch o {
	case OutcomeContinue:
		return "continue"
	case OutcomeFulfilled:
		return "fulfilled"
	case OutcomeFailed:
		return "failed"
	case OutcomeClosed:
		return "closed"
	}
	return "unknown"
}

// Reply is the backend's answer to one turn.
type Reply struct {
	// Text is the prompt transcript, may be empty when only audio is set.
	Text string

	// Audio is the prompt payload in the format named by ContentType.
	// Backends return their native format; the gateway transcodes for the
	// call leg.
	Audio []byte

	// ContentType of Audio, e.g. "audio/pcm" or "audio/wav".
	ContentType string

	// Outcome tells the gateway how to proceed after playing the prompt.
	Outcome Outcome

	// IntentName is the matched backend intent, when the backend exposes
	// one. Informational; surfaced in terminal event metadata.
	IntentName string

	// ErrorCode carries a backend-specific failure detail for logs.
	ErrorCode string

	// BargeIn allows the caller to interrupt this prompt.
	BargeIn bool
}

// Connector is one backend integration hosting one or more agents.
type Connector interface {
	// Agents lists the agent ids this connector serves, used for discovery
	// and routing. The first id is the connector's default agent.
	Agents(ctx context.Context) ([]string, error)

	// Start opens a backend session for a conversation and returns the
	// greeting Reply to play to the caller. agentID must be one of the ids
	// reported by Agents, otherwise ErrAgentNotFound.
	Start(ctx context.Context, agentID, conversationID string) (Session, Reply, error)
}

// Session is one live backend dialog bound to a single conversation.
// A Session is driven by one goroutine at a time.
type Session interface {
	// RecognizeAudio submits one complete utterance as 16 kHz 16-bit
	// little-endian mono PCM and returns the backend's turn.
	RecognizeAudio(ctx context.Context, pcm []byte) (Reply, error)

	// RecognizeText submits a text input, e.g. collected DTMF digits.
	RecognizeText(ctx context.Context, text string) (Reply, error)

	// Close releases backend resources. Idempotent.
	Close(ctx context.Context) error
}
