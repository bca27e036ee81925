package transport

import "github.com/voicebridge/byova/internal/gateway"

// Wire message types, client to server.
const (
	typeSessionStart = "session_start"
	typeAudio        = "audio"
	typeDTMF         = "dtmf"
	typeEvent        = "event"
	typeListAgents   = "list_agents"
)

// Wire message types, server to client.
const (
	typeReply  = "reply"
	typeAgents = "agents"
	typeError  = "error"
)

// clientMessage is one JSON frame from the caller platform. Audio bytes
// travel base64-encoded by encoding/json.
type clientMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	AgentID        string `json:"agent_id,omitempty"`

	// Audio fields.
	Audio        []byte `json:"audio,omitempty"`
	Encoding     string `json:"encoding,omitempty"`
	SampleRateHz int    `json:"sample_rate_hz,omitempty"`
	Channels     int    `json:"channels,omitempty"`

	// DTMF fields.
	Digits []int `json:"digits,omitempty"`

	// Event fields.
	EventName  string            `json:"event_name,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// outboundEvent mirrors gateway.OutboundEvent on the wire.
type outboundEvent struct {
	Type     string            `json:"type"`
	Name     string            `json:"name,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// serverMessage is one JSON frame toward the caller platform.
type serverMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`

	// Reply fields.
	Text            string          `json:"text,omitempty"`
	Audio           []byte          `json:"audio,omitempty"`
	ContentType     string          `json:"content_type,omitempty"`
	BargeInEnabled  bool            `json:"barge_in_enabled,omitempty"`
	ResponseIsFinal bool            `json:"response_is_final,omitempty"`
	Events          []outboundEvent `json:"events,omitempty"`

	// Agent listing.
	Agents []string `json:"agents,omitempty"`

	// Error detail.
	Error string `json:"error,omitempty"`
}

// toInbound translates a wire frame into the gateway message model.
// list_agents frames have no gateway equivalent and return false.
func (m clientMessage) toInbound() (gateway.Inbound, bool) {
	in := gateway.Inbound{ConversationID: m.ConversationID, AgentID: m.AgentID}
	switch m.Type {
	case typeAudio:
		in.Audio = &gateway.AudioFrame{
			Data:         m.Audio,
			Encoding:     m.Encoding,
			SampleRateHz: m.SampleRateHz,
			Channels:     m.Channels,
		}
	case typeDTMF:
		in.DTMF = &gateway.DTMF{Digits: m.Digits}
	case typeSessionStart:
		in.Event = &gateway.Event{Type: gateway.EventSessionStart, Parameters: m.Parameters}
	case typeEvent:
		in.Event = &gateway.Event{
			Type:       gateway.EventType(m.EventName),
			Name:       m.EventName,
			Parameters: m.Parameters,
		}
	default:
		return gateway.Inbound{}, false
	}
	return in, true
}

// toWire translates a gateway reply into a wire frame.
func toWire(out gateway.Outbound) serverMessage {
	msg := serverMessage{
		Type:            typeReply,
		ConversationID:  out.ConversationID,
		Text:            out.Text,
		Audio:           out.Audio,
		ContentType:     out.ContentType,
		BargeInEnabled:  out.BargeInEnabled,
		ResponseIsFinal: out.ResponseIsFinal,
	}
	for _, ev := range out.Events {
		msg.Events = append(msg.Events, outboundEvent{
			Type:     string(ev.Type),
			Name:     ev.Name,
			Metadata: ev.Metadata,
		})
	}
	return msg
}

// endsConversation reports whether a reply carries a terminal event, after
// which the server closes the stream.
func endsConversation(out gateway.Outbound) bool {
	for _, ev := range out.Events {
		switch ev.Type {
		case gateway.OutSessionEnd, gateway.OutTransferToHuman:
			return true
		}
	}
	return false
}
