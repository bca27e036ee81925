// Package gateway contains the call-control core: the per-conversation
// turn controller and the session router that multiplexes conversations
// onto vendor backend sessions.
package gateway

import (
	"strings"
	"time"
)

// EventType labels discrete events arriving from the caller platform.
type EventType string

const (
	EventSessionStart EventType = "session_start"
	EventSessionEnd   EventType = "session_end"
	EventNoInput      EventType = "no_input"
	EventStartOfDTMF  EventType = "start_of_dtmf"
	EventCustom       EventType = "custom"
)

// AudioFrame is one chunk of caller audio.
type AudioFrame struct {
	Data         []byte
	Encoding     string
	SampleRateHz int
	Channels     int
}

// DTMF is a batch of keypad digits pressed by the caller. Digits 0-9 map
// to themselves, 10 is '*' and 11 is '#'.
type DTMF struct {
	Digits []int
}

// Event is a discrete control event from the caller platform.
type Event struct {
	Type       EventType
	Name       string
	Parameters map[string]string
}

// Inbound is one message from the caller stream. Exactly one of Audio,
// DTMF or Event is set.
type Inbound struct {
	ConversationID string
	AgentID        string

	Audio *AudioFrame
	DTMF  *DTMF
	Event *Event
}

// OutboundEventType labels events the gateway raises toward the caller
// platform.
type OutboundEventType string

const (
	OutStartOfInput    OutboundEventType = "START_OF_INPUT"
	OutEndOfInput      OutboundEventType = "END_OF_INPUT"
	OutSessionStart    OutboundEventType = "SESSION_START"
	OutSessionEnd      OutboundEventType = "SESSION_END"
	OutTransferToHuman OutboundEventType = "TRANSFER_TO_AGENT"
	OutCustom          OutboundEventType = "CUSTOM"
)

// OutboundEvent is one control event raised toward the caller platform.
type OutboundEvent struct {
	Type     OutboundEventType
	Name     string
	Metadata map[string]string
}

// Outbound is one reply message toward the caller stream: an optional
// prompt plus zero or more control events.
type Outbound struct {
	ConversationID string
	Text           string
	Audio          []byte
	ContentType    string
	BargeInEnabled bool
	ResponseIsFinal bool
	Events         []OutboundEvent
}

// ConnectionEvent is one entry of the status-page event history.
type ConnectionEvent struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversation_id"`
	AgentID        string    `json:"agent_id"`
	Reason         string    `json:"reason,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// DigitsToString renders DTMF digits as the text forwarded to backends.
// Values outside the keypad range are skipped.
func DigitsToString(digits []int) string {
	var sb strings.Builder
	for _, d := range digits {
		switch {
		case d >= 0 && d <= 9:
			sb.WriteByte(byte('0' + d))
		case d == 10:
			sb.WriteByte('*')
		case d == 11:
			sb.WriteByte('#')
		}
	}
	return sb.String()
}
