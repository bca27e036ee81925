// Package segment turns a continuous stream of telephony audio frames into
// discrete utterances by watching for trailing silence.
//
// A Segmenter is a per-conversation state machine. It starts waiting for
// speech, discarding silent frames. The first voiced frame opens an
// utterance buffer; once the stream stays silent for the configured
// duration the buffered audio is emitted as one utterance and the cycle
// restarts. Callers own the clock: every entry point takes the current
// time so behavior is reproducible in tests.
//
// Segmenter is not safe for concurrent use. Each conversation's stream
// goroutine owns its Segmenter exclusively.
package segment

import (
	"log/slog"
	"time"

	"github.com/voicebridge/byova/pkg/audio"
)

// Defaults applied by Config.withDefaults for zero-valued fields.
const (
	// DefaultSilenceThreshold tunes the voiced-frame ratio. The fraction of
	// significant bytes a frame needs to count as speech is
	// 100 - threshold/100 percent, clamped to [1, 100].
	DefaultSilenceThreshold = 2000

	// DefaultSilenceDuration is how long the stream must stay silent before
	// the buffered utterance is considered complete.
	DefaultSilenceDuration = 2 * time.Second

	// DefaultQuietBandHalfWidth is the half-width of the µ-law byte band
	// around the 127 center that counts as quiet.
	DefaultQuietBandHalfWidth = 20

	// DefaultMaxBufferBytes caps one utterance at 1 MiB, about 131 seconds
	// of 8 kHz µ-law audio.
	DefaultMaxBufferBytes = 1 << 20
)

// Config tunes silence detection for one Segmenter.
type Config struct {
	SilenceThreshold   int
	SilenceDuration    time.Duration
	QuietBandHalfWidth int
	MaxBufferBytes     int

	// Encoding of the inbound frames. Silence is only detectable on µ-law
	// streams; any other encoding classifies every frame as speech, so
	// segmentation falls back entirely on CheckTimeout.
	Encoding audio.Encoding

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = DefaultSilenceThreshold
	}
	if c.SilenceDuration <= 0 {
		c.SilenceDuration = DefaultSilenceDuration
	}
	if c.QuietBandHalfWidth <= 0 {
		c.QuietBandHalfWidth = DefaultQuietBandHalfWidth
	}
	if c.MaxBufferBytes <= 0 {
		c.MaxBufferBytes = DefaultMaxBufferBytes
	}
	if c.Encoding == "" {
		c.Encoding = audio.EncodingMulaw
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

type state int

const (
	waitingForSpeech state = iota
	buffering
)

// Result reports what Process concluded about one frame.
type Result struct {
	// SpeechStarted is true when this frame was the first voiced frame of a
	// new utterance.
	SpeechStarted bool

	// Utterance holds a completed utterance, or nil. The slice is a copy;
	// the Segmenter retains no reference to it.
	Utterance []byte
}

// Stats is a point-in-time snapshot of a Segmenter.
type Stats struct {
	ConversationID string
	Buffering      bool
	BufferedBytes  int
	Utterances     int
	Truncations    int
}

// Segmenter accumulates audio frames into silence-delimited utterances.
type Segmenter struct {
	conversationID string
	cfg            Config
	log            *slog.Logger

	state     state
	buf       []byte
	lastAudio time.Time

	utterances  int
	truncations int
	truncated   bool
}

// New returns a Segmenter for one conversation. Zero-valued Config fields
// take the package defaults.
func New(conversationID string, cfg Config) *Segmenter {
	cfg = cfg.withDefaults()
	return &Segmenter{
		conversationID: conversationID,
		cfg:            cfg,
		log:            cfg.Logger.With("conversation_id", conversationID),
		state:          waitingForSpeech,
	}
}

// Process classifies one frame and advances the state machine. Empty
// frames are a no-op. The frame slice is never retained.
func (s *Segmenter) Process(frame []byte, now time.Time) Result {
	if len(frame) == 0 {
		return Result{}
	}
	silent := s.isSilence(frame)

	switch s.state {
	case waitingForSpeech:
		if silent {
			return Result{}
		}
		s.state = buffering
		s.lastAudio = now
		s.append(frame)
		s.log.Debug("speech detected", "frame_bytes", len(frame))
		return Result{SpeechStarted: true}

	case buffering:
		s.append(frame)
		if !silent {
			s.lastAudio = now
			return Result{}
		}
		if now.Sub(s.lastAudio) >= s.cfg.SilenceDuration {
			return Result{Utterance: s.complete()}
		}
		return Result{}
	}
	return Result{}
}

// CheckTimeout emits the buffered utterance if the silence window has
// elapsed without a new frame arriving. It returns nil when there is
// nothing to emit. This covers streams that stop sending frames entirely
// during silence instead of sending silent ones.
func (s *Segmenter) CheckTimeout(now time.Time) []byte {
	if s.state != buffering || len(s.buf) == 0 {
		return nil
	}
	if now.Sub(s.lastAudio) < s.cfg.SilenceDuration {
		return nil
	}
	return s.complete()
}

// Reset discards any partial buffer and returns to waiting for speech.
// Safe to call in any state.
func (s *Segmenter) Reset() {
	if s.state == buffering && len(s.buf) > 0 {
		s.log.Debug("discarding partial utterance", "buffered_bytes", len(s.buf))
	}
	s.state = waitingForSpeech
	s.buf = nil
	s.truncated = false
}

// Buffered reports how many bytes of the current partial utterance are
// held.
func (s *Segmenter) Buffered() int { return len(s.buf) }

// Snapshot returns current counters for the status page.
func (s *Segmenter) Snapshot() Stats {
	return Stats{
		ConversationID: s.conversationID,
		Buffering:      s.state == buffering,
		BufferedBytes:  len(s.buf),
		Utterances:     s.utterances,
		Truncations:    s.truncations,
	}
}

func (s *Segmenter) append(frame []byte) {
	room := s.cfg.MaxBufferBytes - len(s.buf)
	if room <= 0 {
		s.noteTruncation(len(frame))
		return
	}
	if len(frame) > room {
		s.noteTruncation(len(frame) - room)
		frame = frame[:room]
	}
	s.buf = append(s.buf, frame...)
}

func (s *Segmenter) noteTruncation(dropped int) {
	if !s.truncated {
		s.truncated = true
		s.truncations++
		s.log.Warn("utterance buffer full, truncating",
			"max_bytes", s.cfg.MaxBufferBytes, "dropped_bytes", dropped)
	}
}

func (s *Segmenter) complete() []byte {
	out := make([]byte, len(s.buf))
	copy(out, s.buf)
	s.buf = nil
	s.state = waitingForSpeech
	s.truncated = false
	s.utterances++
	s.log.Debug("utterance complete", "bytes", len(out))
	return out
}

// isSilence classifies a frame. Only µ-law streams are classified; a byte
// is significant when it sits outside the quiet band around the 127
// center and is not the 0xFF digital-silence code. The frame is silent
// when the share of significant bytes falls below the voiced-ratio
// threshold derived from SilenceThreshold.
func (s *Segmenter) isSilence(frame []byte) bool {
	if s.cfg.Encoding != audio.EncodingMulaw {
		return false
	}
	significant := 0
	for _, b := range frame {
		d := int(b) - 127
		if d < 0 {
			d = -d
		}
		if d > s.cfg.QuietBandHalfWidth && b != 0xFF {
			significant++
		}
	}
	required := 100 - s.cfg.SilenceThreshold/100
	if required < 1 {
		required = 1
	}
	if required > 100 {
		required = 100
	}
	return significant*100 < required*len(frame)
}
