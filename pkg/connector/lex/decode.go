package lex

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/voicebridge/byova/pkg/connector"
)

// Lex compresses the structured RecognizeUtterance response headers as
// gzip then base64. The shapes below cover only the fields the gateway
// acts on.

type lexIntent struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

type lexInterpretation struct {
	Intent lexIntent `json:"intent"`
}

type lexSessionState struct {
	DialogAction struct {
		Type string `json:"type"`
	} `json:"dialogAction"`
}

type lexMessage struct {
	Content     string `json:"content"`
	ContentType string `json:"contentType"`
}

func decodeCompressed(field *string, out any) error {
	if field == nil || *field == "" {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(*field)
	if err != nil {
		return fmt.Errorf("lex: base64 decode: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("lex: gzip open: %w", err)
	}
	defer zr.Close()
	plain, err := io.ReadAll(zr)
	if err != nil {
		return fmt.Errorf("lex: gzip read: %w", err)
	}
	if err := json.Unmarshal(plain, out); err != nil {
		return fmt.Errorf("lex: decode json: %w", err)
	}
	return nil
}

// buildReply assembles a Reply from the compressed response fields. A
// field that fails to decode is treated as absent; the turn still goes
// through as a plain continue so a cosmetic header problem never kills a
// call.
func buildReply(log *slog.Logger, messages, sessionState, interpretations *string) connector.Reply {
	var (
		msgs    []lexMessage
		state   lexSessionState
		interps []lexInterpretation
	)
	if err := decodeCompressed(messages, &msgs); err != nil {
		log.Warn("undecodable messages field", "error", err)
	}
	if err := decodeCompressed(sessionState, &state); err != nil {
		log.Warn("undecodable session state field", "error", err)
	}
	if err := decodeCompressed(interpretations, &interps); err != nil {
		log.Warn("undecodable interpretations field", "error", err)
	}

	reply := connector.Reply{BargeIn: true}
	for _, m := range msgs {
		if m.Content != "" {
			reply.Text = m.Content
			break
		}
	}
	reply.Outcome, reply.IntentName = mapOutcome(interps, state)
	return reply
}

// mapOutcome folds the Lex intent state and dialog action into the
// gateway's outcome taxonomy. The first interpretation is the primary
// intent and decides alone.
func mapOutcome(interps []lexInterpretation, state lexSessionState) (connector.Outcome, string) {
	if len(interps) > 0 {
		primary := interps[0].Intent
		switch primary.State {
		case "Fulfilled":
			return connector.OutcomeFulfilled, primary.Name
		case "ReadyForFulfillment":
			// The reserved "agent" intent means the caller asked for a
			// human; every other intent reaching this state completed its
			// business goal.
			if strings.EqualFold(primary.Name, "agent") {
				return connector.OutcomeFailed, primary.Name
			}
			return connector.OutcomeFulfilled, primary.Name
		case "Failed":
			return connector.OutcomeFailed, primary.Name
		}
		if state.DialogAction.Type == "Close" {
			return connector.OutcomeClosed, primary.Name
		}
		return connector.OutcomeContinue, primary.Name
	}
	if state.DialogAction.Type == "Close" {
		return connector.OutcomeClosed, ""
	}
	return connector.OutcomeContinue, ""
}
