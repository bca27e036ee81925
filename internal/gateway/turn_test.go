package gateway

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/voicebridge/byova/internal/observe"
	"github.com/voicebridge/byova/internal/resilience"
	"github.com/voicebridge/byova/internal/segment"
	"github.com/voicebridge/byova/pkg/audio"
	"github.com/voicebridge/byova/pkg/connector"
	"github.com/voicebridge/byova/pkg/connector/mock"
)

var turnBase = time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)

func at(i int) time.Time { return turnBase.Add(time.Duration(i) * 20 * time.Millisecond) }

func speech() *AudioFrame {
	return &AudioFrame{Data: bytes.Repeat([]byte{0x20}, audio.FrameSamples), Encoding: "ulaw"}
}

func silence() *AudioFrame {
	return &AudioFrame{Data: bytes.Repeat([]byte{0xFF}, audio.FrameSamples), Encoding: "ulaw"}
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func newTurn(t *testing.T, sess *mock.Session) *TurnController {
	t.Helper()
	log := slog.New(slog.DiscardHandler)
	return NewTurnController(TurnConfig{
		ConversationID: "conv-1",
		AgentID:        "mock: agent",
		Backend:        sess,
		Breaker:        resilience.New(resilience.Config{Name: "mock", Logger: log}),
		Segmenter:      segment.New("conv-1", segment.Config{Logger: log}),
		Metrics:        testMetrics(t),
		Logger:         log,
	})
}

func eventTypes(msgs []Outbound) []OutboundEventType {
	var out []OutboundEventType
	for _, m := range msgs {
		for _, ev := range m.Events {
			out = append(out, ev.Type)
		}
	}
	return out
}

func TestSpeechCycleEmitsInputEventsAndReply(t *testing.T) {
	sess := &mock.Session{Replies: []connector.Reply{{Text: "how many nights?", BargeIn: true}}}
	tc := newTurn(t, sess)
	ctx := context.Background()

	i := 0
	for ; i < 5; i++ {
		if msgs, _ := tc.HandleAudio(ctx, silence(), at(i)); len(msgs) != 0 {
			t.Fatalf("leading silence produced %v", msgs)
		}
	}

	msgs, _ := tc.HandleAudio(ctx, speech(), at(i))
	if got := eventTypes(msgs); len(got) != 1 || got[0] != OutStartOfInput {
		t.Fatalf("first speech frame events = %v", got)
	}
	i++
	for ; i < 15; i++ {
		if msgs, _ := tc.HandleAudio(ctx, speech(), at(i)); len(msgs) != 0 {
			t.Fatalf("mid-speech frame %d produced %v", i, msgs)
		}
	}

	var all []Outbound
	var done bool
	for ; i < 200 && len(all) == 0; i++ {
		all, done = tc.HandleAudio(ctx, silence(), at(i))
	}
	if done {
		t.Fatal("continue reply should not end the conversation")
	}
	types := eventTypes(all)
	if len(types) != 1 || types[0] != OutEndOfInput {
		t.Fatalf("events = %v, want END_OF_INPUT once", types)
	}
	if len(all) != 2 || all[1].Text != "how many nights?" || !all[1].BargeInEnabled {
		t.Fatalf("reply = %+v", all)
	}

	// The backend saw 16 kHz PCM: 10 speech frames plus buffered trailing
	// silence, each µ-law byte widened 4x.
	if len(sess.AudioCalls) != 1 {
		t.Fatalf("backend audio calls = %d", len(sess.AudioCalls))
	}
	if got := len(sess.AudioCalls[0].PCM); got%4 != 0 || got < 10*audio.FrameSamples*4 {
		t.Errorf("backend pcm = %d bytes", got)
	}
}

func TestStartOfInputSentOncePerCycle(t *testing.T) {
	tc := newTurn(t, &mock.Session{})
	ctx := context.Background()

	msgs, _ := tc.HandleAudio(ctx, speech(), at(0))
	if got := eventTypes(msgs); len(got) != 1 || got[0] != OutStartOfInput {
		t.Fatalf("events = %v", got)
	}
	for i := 1; i < 10; i++ {
		msgs, _ := tc.HandleAudio(ctx, speech(), at(i))
		if len(eventTypes(msgs)) != 0 {
			t.Fatal("START_OF_INPUT repeated within a cycle")
		}
	}

	// Complete the cycle via the poll path, then a new cycle raises it
	// again.
	if msgs, _ := tc.Tick(ctx, at(9).Add(segment.DefaultSilenceDuration)); len(msgs) == 0 {
		t.Fatal("tick did not complete the utterance")
	}
	msgs, _ = tc.HandleAudio(ctx, speech(), at(300))
	if got := eventTypes(msgs); len(got) != 1 || got[0] != OutStartOfInput {
		t.Errorf("next cycle events = %v", got)
	}
}

func TestOutcomeMapping(t *testing.T) {
	tests := []struct {
		name      string
		outcome   connector.Outcome
		intent    string
		wantType  OutboundEventType
		wantMeta  string
		terminal  bool
	}{
		{"fulfilled", connector.OutcomeFulfilled, "BookRoom", OutSessionEnd, reasonIntentFulfilled, true},
		{"failed", connector.OutcomeFailed, "agent", OutTransferToHuman, reasonIntentFailed, true},
		{"closed", connector.OutcomeClosed, "", OutSessionEnd, reasonBackendClosed, true},
		{"continue", connector.OutcomeContinue, "", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := &mock.Session{Replies: []connector.Reply{
				{Outcome: tt.outcome, IntentName: tt.intent, Text: "prompt"},
			}}
			tc := newTurn(t, sess)
			msgs, done := tc.HandleDTMF(context.Background(), &DTMF{Digits: []int{1}}, at(0))
			if done != tt.terminal {
				t.Fatalf("done = %v, want %v", done, tt.terminal)
			}
			if len(msgs) != 1 {
				t.Fatalf("messages = %d", len(msgs))
			}
			if !tt.terminal {
				if len(msgs[0].Events) != 0 || msgs[0].Text != "prompt" {
					t.Errorf("continue reply = %+v", msgs[0])
				}
				return
			}
			// Terminal replies are event-only.
			if msgs[0].Text != "" || msgs[0].Audio != nil {
				t.Errorf("terminal reply carried a prompt: %+v", msgs[0])
			}
			evs := msgs[0].Events
			if len(evs) != 1 || evs[0].Type != tt.wantType {
				t.Fatalf("events = %+v", evs)
			}
			if evs[0].Metadata["reason"] != tt.wantMeta {
				t.Errorf("reason = %q, want %q", evs[0].Metadata["reason"], tt.wantMeta)
			}
			if tt.intent != "" && evs[0].Metadata["intent_name"] != tt.intent {
				t.Errorf("intent_name = %q", evs[0].Metadata["intent_name"])
			}
		})
	}
}

func TestEmptyContinueReplyBecomesSilence(t *testing.T) {
	sess := &mock.Session{Replies: []connector.Reply{{}}}
	tc := newTurn(t, sess)
	msgs, done := tc.HandleDTMF(context.Background(), &DTMF{Digits: []int{1}}, at(0))
	if done || len(msgs) != 1 {
		t.Fatalf("msgs = %v, done = %v", msgs, done)
	}
	if msgs[0].Text != "" || msgs[0].Audio != nil || len(msgs[0].Events) != 0 || !msgs[0].ResponseIsFinal {
		t.Errorf("silence reply = %+v", msgs[0])
	}
}

func TestDTMFForwardedAsText(t *testing.T) {
	sess := &mock.Session{}
	tc := newTurn(t, sess)
	tc.HandleDTMF(context.Background(), &DTMF{Digits: []int{5, 6}}, at(0))
	if len(sess.TextCalls) != 1 || sess.TextCalls[0].Text != "56" {
		t.Errorf("text calls = %+v", sess.TextCalls)
	}

	tc.HandleDTMF(context.Background(), &DTMF{Digits: []int{10, 11, 99}}, at(1))
	if got := sess.TextCalls[1].Text; got != "*#" {
		t.Errorf("star/hash batch = %q", got)
	}
}

func TestBackendFailureIsAbsorbed(t *testing.T) {
	sess := &mock.Session{RecognizeErr: connector.ErrBackendUnavailable}
	tc := newTurn(t, sess)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		tc.HandleAudio(ctx, speech(), at(i))
	}
	msgs, done := tc.Tick(ctx, at(9).Add(segment.DefaultSilenceDuration))
	if done {
		t.Fatal("absorbed failure must not end the conversation")
	}
	// END_OF_INPUT still goes out, but no reply follows.
	types := eventTypes(msgs)
	if len(msgs) != 1 || len(types) != 1 || types[0] != OutEndOfInput {
		t.Fatalf("msgs = %+v", msgs)
	}

	// The next cycle starts clean.
	msgs, _ = tc.HandleAudio(ctx, speech(), at(400))
	if got := eventTypes(msgs); len(got) != 1 || got[0] != OutStartOfInput {
		t.Errorf("post-failure cycle events = %v", got)
	}
}

func TestSessionEndEventEndsConversation(t *testing.T) {
	tc := newTurn(t, &mock.Session{})
	msgs, done := tc.HandleEvent(context.Background(), &Event{Type: EventSessionEnd}, at(0))
	if !done || msgs != nil {
		t.Errorf("msgs = %v, done = %v", msgs, done)
	}
}

func TestTelephonyReadyWAVPassesThrough(t *testing.T) {
	wav := audio.EncodeWAV(bytes.Repeat([]byte{0xA0}, 80), audio.TelephonyRate, 8, 1, audio.CodecMulaw)
	sess := &mock.Session{Replies: []connector.Reply{
		{Audio: wav, ContentType: audio.ContentTypeWAV},
	}}
	tc := newTurn(t, sess)
	msgs, _ := tc.HandleDTMF(context.Background(), &DTMF{Digits: []int{1}}, at(0))
	if len(msgs) != 1 || !bytes.Equal(msgs[0].Audio, wav) {
		t.Error("telephony-ready WAV should not be re-encoded")
	}
}

func TestBackendPCMIsTranscoded(t *testing.T) {
	sess := &mock.Session{Replies: []connector.Reply{
		{Audio: make([]byte, 640), ContentType: audio.ContentTypePCM},
	}}
	tc := newTurn(t, sess)
	msgs, _ := tc.HandleDTMF(context.Background(), &DTMF{Digits: []int{1}}, at(0))
	if len(msgs) != 1 {
		t.Fatalf("msgs = %d", len(msgs))
	}
	info, err := audio.ParseWAVInfo(msgs[0].Audio)
	if err != nil {
		t.Fatalf("reply audio is not WAV: %v", err)
	}
	if !info.TelephonyReady {
		t.Errorf("reply audio not telephony ready: %+v", info)
	}
	if msgs[0].ContentType != audio.ContentTypeWAV {
		t.Errorf("content type = %q", msgs[0].ContentType)
	}
}
