package gateway

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/voicebridge/byova/internal/observe"
	"github.com/voicebridge/byova/internal/resilience"
	"github.com/voicebridge/byova/internal/segment"
	"github.com/voicebridge/byova/pkg/audio"
	"github.com/voicebridge/byova/pkg/connector"
)

// Terminal-event metadata reasons.
const (
	reasonIntentFulfilled = "intent_fulfilled"
	reasonIntentFailed    = "intent_failed"
	reasonBackendClosed   = "backend_closed"
)

// TurnController drives one conversation: it feeds caller audio through
// the segmenter, submits completed utterances and DTMF to the backend
// session, and translates backend outcomes into caller-facing events.
//
// A TurnController is owned by its conversation's stream goroutine and is
// not safe for concurrent use. All handlers return the messages to send
// to the caller plus a done flag; once done is true the conversation is
// over and the controller must not be used again.
type TurnController struct {
	conversationID string
	agentID        string
	backend        connector.Session
	breaker        *resilience.Breaker
	seg            *segment.Segmenter
	metrics        *observe.Metrics
	log            *slog.Logger
	backendTimeout time.Duration

	startOfInputSent bool
	done             bool

	// lastActivity is written by the stream goroutine and read by the idle
	// reaper, hence atomic.
	lastActivity atomic.Int64
}

// TurnConfig assembles a TurnController.
type TurnConfig struct {
	ConversationID string
	AgentID        string
	Backend        connector.Session
	Breaker        *resilience.Breaker
	Segmenter      *segment.Segmenter
	Metrics        *observe.Metrics
	Logger         *slog.Logger

	// BackendTimeout bounds each backend call. Default 15s.
	BackendTimeout time.Duration
}

// NewTurnController wires a controller for one conversation.
func NewTurnController(cfg TurnConfig) *TurnController {
	if cfg.BackendTimeout <= 0 {
		cfg.BackendTimeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	t := &TurnController{
		conversationID: cfg.ConversationID,
		agentID:        cfg.AgentID,
		backend:        cfg.Backend,
		breaker:        cfg.Breaker,
		seg:            cfg.Segmenter,
		metrics:        cfg.Metrics,
		log:            cfg.Logger.With("conversation_id", cfg.ConversationID, "agent_id", cfg.AgentID),
		backendTimeout: cfg.BackendTimeout,
	}
	t.touch(time.Now())
	return t
}

// LastActivity reports when the conversation last saw caller input.
func (t *TurnController) LastActivity() time.Time {
	return time.Unix(0, t.lastActivity.Load())
}

func (t *TurnController) touch(now time.Time) {
	t.lastActivity.Store(now.UnixNano())
}

// Greeting renders the backend's opening reply as the first caller
// message.
func (t *TurnController) Greeting(reply connector.Reply) Outbound {
	out, _ := t.renderReply(reply)
	return out
}

// HandleAudio processes one caller audio frame.
func (t *TurnController) HandleAudio(ctx context.Context, frame *AudioFrame, now time.Time) ([]Outbound, bool) {
	t.touch(now)
	res := t.seg.Process(frame.Data, now)

	var msgs []Outbound
	if res.SpeechStarted && !t.startOfInputSent {
		t.startOfInputSent = true
		msgs = append(msgs, t.eventOnly(OutboundEvent{Type: OutStartOfInput}))
	}
	if res.Utterance != nil {
		msgs = append(msgs, t.finishUtterance(ctx, res.Utterance, now)...)
	}
	return msgs, t.done
}

// Tick drives the segmentation timeout for streams that stop sending
// frames during silence. Called periodically by the stream goroutine.
func (t *TurnController) Tick(ctx context.Context, now time.Time) ([]Outbound, bool) {
	utterance := t.seg.CheckTimeout(now)
	if utterance == nil {
		return nil, t.done
	}
	return t.finishUtterance(ctx, utterance, now), t.done
}

// HandleDTMF forwards a digit batch to the backend as text. Digit
// semantics belong to the backend's dialog model, not the gateway.
func (t *TurnController) HandleDTMF(ctx context.Context, d *DTMF, now time.Time) ([]Outbound, bool) {
	t.touch(now)
	text := DigitsToString(d.Digits)
	if text == "" {
		return nil, t.done
	}
	t.metrics.DTMFInputs.Add(ctx, 1)
	t.log.Info("dtmf received", "digits", text)

	// A keypress ends any utterance in progress.
	t.seg.Reset()
	t.startOfInputSent = false

	reply, err := t.callBackend(ctx, "text", func(ctx context.Context) (connector.Reply, error) {
		return t.backend.RecognizeText(ctx, text)
	})
	if err != nil {
		return nil, t.done
	}
	out, final := t.renderReply(reply)
	t.done = t.done || final
	return []Outbound{out}, t.done
}

// HandleEvent processes a discrete control event.
func (t *TurnController) HandleEvent(ctx context.Context, ev *Event, now time.Time) ([]Outbound, bool) {
	t.touch(now)
	switch ev.Type {
	case EventSessionStart:
		// The session already exists; acknowledge without replaying the
		// greeting.
		t.log.Debug("duplicate session start")
		return []Outbound{{ConversationID: t.conversationID, ResponseIsFinal: true}}, t.done

	case EventSessionEnd:
		t.log.Info("caller ended session")
		t.done = true
		return nil, true

	case EventNoInput:
		t.log.Debug("no input from caller")
		return nil, t.done

	case EventStartOfDTMF:
		t.log.Debug("dtmf entry started")
		return nil, t.done

	default:
		t.log.Debug("ignoring event", "type", ev.Type, "name", ev.Name)
		return nil, t.done
	}
}

// finishUtterance closes the input cycle and runs the backend turn.
// END_OF_INPUT is always raised, even when the backend call fails; a
// failed turn is absorbed so the caller can simply speak again.
func (t *TurnController) finishUtterance(ctx context.Context, utterance []byte, now time.Time) []Outbound {
	t.startOfInputSent = false
	t.metrics.Utterances.Add(ctx, 1)
	t.log.Info("utterance complete", "bytes", len(utterance))

	msgs := []Outbound{t.eventOnly(OutboundEvent{Type: OutEndOfInput})}

	pcm := audio.TelephonyToBackend(utterance)
	reply, err := t.callBackend(ctx, "audio", func(ctx context.Context) (connector.Reply, error) {
		return t.backend.RecognizeAudio(ctx, pcm)
	})
	if err != nil {
		return msgs
	}
	t.metrics.TurnDuration.Record(ctx, time.Since(now).Seconds())

	out, final := t.renderReply(reply)
	t.done = t.done || final
	return append(msgs, out)
}

// callBackend runs one backend call under the circuit breaker and the
// per-call timeout. Any failure is absorbed: logged, counted, and reported
// to the breaker, with the segmenter reset for the next input cycle.
func (t *TurnController) callBackend(ctx context.Context, kind string, fn func(context.Context) (connector.Reply, error)) (connector.Reply, error) {
	if err := t.breaker.Allow(); err != nil {
		t.log.Warn("backend bypassed", "kind", kind, "error", err)
		t.metrics.RecordBackendError(ctx, kind)
		t.seg.Reset()
		return connector.Reply{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, t.backendTimeout)
	defer cancel()
	start := time.Now()
	reply, err := fn(callCtx)
	t.metrics.BackendDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		t.breaker.Failure()
		t.metrics.RecordBackendRequest(ctx, kind, "error")
		t.metrics.RecordBackendError(ctx, kind)
		t.log.Error("backend call failed, absorbing turn", "kind", kind, "error", err)
		t.seg.Reset()
		return connector.Reply{}, err
	}
	t.breaker.Success()
	t.metrics.RecordBackendRequest(ctx, kind, "ok")
	return reply, nil
}

// renderReply translates a backend Reply into a caller message and reports
// whether it ends the conversation.
func (t *TurnController) renderReply(reply connector.Reply) (Outbound, bool) {
	switch reply.Outcome {
	case connector.OutcomeFulfilled:
		return t.terminal(OutSessionEnd, reasonIntentFulfilled, reply.IntentName), true
	case connector.OutcomeFailed:
		return t.terminal(OutTransferToHuman, reasonIntentFailed, reply.IntentName), true
	case connector.OutcomeClosed:
		return t.terminal(OutSessionEnd, reasonBackendClosed, reply.IntentName), true
	}

	out := Outbound{
		ConversationID:  t.conversationID,
		Text:            reply.Text,
		BargeInEnabled:  reply.BargeIn,
		ResponseIsFinal: true,
	}
	if len(reply.Audio) > 0 {
		out.Audio, out.ContentType = t.transcode(reply)
	}
	return out, false
}

// transcode brings backend audio into telephony format. WAV payloads that
// are already telephony-compatible pass through untouched.
func (t *TurnController) transcode(reply connector.Reply) ([]byte, string) {
	if reply.ContentType == audio.ContentTypeWAV {
		if info, err := audio.ParseWAVInfo(reply.Audio); err == nil && info.TelephonyReady {
			return reply.Audio, reply.ContentType
		}
	}
	out, contentType, ok := audio.BackendToTelephony(audio.StripWAVHeader(reply.Audio))
	if !ok {
		t.log.Warn("audio conversion failed, forwarding as-is",
			"content_type", reply.ContentType, "bytes", len(reply.Audio))
	}
	return out, contentType
}

func (t *TurnController) terminal(typ OutboundEventType, reason, intentName string) Outbound {
	md := map[string]string{"reason": reason}
	if intentName != "" {
		md["intent_name"] = intentName
	}
	t.log.Info("conversation ending", "reason", reason, "intent", intentName)
	return t.eventOnly(OutboundEvent{Type: typ, Metadata: md})
}

func (t *TurnController) eventOnly(ev OutboundEvent) Outbound {
	return Outbound{
		ConversationID:  t.conversationID,
		ResponseIsFinal: true,
		Events:          []OutboundEvent{ev},
	}
}
