// Package localaudio is a self-contained connector that replays canned WAV
// prompts instead of calling a real backend. It exists for demos and for
// exercising the full gateway path (segmentation, transcoding, turn
// control) without cloud credentials.
//
// Prompt files are loaded from a directory at construction time:
//
//	welcome.wav       greeting returned by Start
//	default.wav       reply to any recognized utterance
//	transferring.wav  played when input "5" escalates the call
//	goodbye.wav       played when input "6" ends the call
//
// Missing files are tolerated; the affected replies are text-only.
package localaudio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/voicebridge/byova/pkg/audio"
	"github.com/voicebridge/byova/pkg/connector"
)

const agentPrefix = "local_audio: "

// Prompt file names resolved under Config.AudioDir.
const (
	promptWelcome  = "welcome.wav"
	promptDefault  = "default.wav"
	promptTransfer = "transferring.wav"
	promptGoodbye  = "goodbye.wav"
)

// Config for the local audio connector.
type Config struct {
	// AudioDir holds the prompt WAV files.
	AudioDir string

	// AgentID overrides the advertised agent name. Defaults to "agent".
	AgentID string

	Logger *slog.Logger
}

// Connector replays local WAV prompts.
type Connector struct {
	agentID string
	log     *slog.Logger
	prompts map[string]prompt
}

type prompt struct {
	data        []byte
	contentType string
}

// New loads the prompt files and returns the connector. A missing or
// unreadable directory is not an error; all prompts degrade to text.
func New(cfg Config) *Connector {
	name := cfg.AgentID
	if name == "" {
		name = "agent"
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	c := &Connector{
		agentID: agentPrefix + name,
		log:     log.With("connector", "local_audio"),
		prompts: make(map[string]prompt),
	}
	for _, file := range []string{promptWelcome, promptDefault, promptTransfer, promptGoodbye} {
		data, err := os.ReadFile(filepath.Join(cfg.AudioDir, file))
		if err != nil {
			c.log.Warn("prompt file unavailable", "file", file, "error", err)
			continue
		}
		contentType := audio.ContentTypeWAV
		if _, err := audio.ParseWAVInfo(data); err != nil {
			contentType = audio.ContentTypePCM
		}
		c.prompts[file] = prompt{data: data, contentType: contentType}
	}
	return c
}

// Agents returns the single advertised agent id.
func (c *Connector) Agents(ctx context.Context) ([]string, error) {
	return []string{c.agentID}, nil
}

// Start returns a session and the welcome prompt.
func (c *Connector) Start(ctx context.Context, agentID, conversationID string) (connector.Session, connector.Reply, error) {
	if agentID != c.agentID {
		return nil, connector.Reply{}, fmt.Errorf("local_audio: start %q: %w", agentID, connector.ErrAgentNotFound)
	}
	c.log.Info("conversation started", "conversation_id", conversationID)
	sess := &session{c: c, conversationID: conversationID}
	return sess, c.reply("Welcome! How can I help you today?", promptWelcome, connector.OutcomeContinue, ""), nil
}

func (c *Connector) reply(text, promptFile string, outcome connector.Outcome, intent string) connector.Reply {
	r := connector.Reply{Text: text, Outcome: outcome, IntentName: intent, BargeIn: true}
	if p, ok := c.prompts[promptFile]; ok {
		r.Audio = p.data
		r.ContentType = p.contentType
	}
	return r
}

// Ensure Connector implements connector.Connector at compile time.
var _ connector.Connector = (*Connector)(nil)

type session struct {
	mu             sync.Mutex
	c              *Connector
	conversationID string
	closed         bool
}

// RecognizeAudio always answers with the default prompt; the stub has no
// speech recognition.
func (s *session) RecognizeAudio(ctx context.Context, pcm []byte) (connector.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.log.Debug("utterance received", "conversation_id", s.conversationID, "pcm_bytes", len(pcm))
	return s.c.reply("I heard you. Anything else?", promptDefault, connector.OutcomeContinue, ""), nil
}

// RecognizeText implements the stub's dialog model: "5" escalates to a
// human, "6" says goodbye, anything else gets the default prompt.
func (s *session) RecognizeText(ctx context.Context, text string) (connector.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case strings.Contains(text, "5"):
		return s.c.reply("Transferring you to an agent.", promptTransfer, connector.OutcomeFailed, "agent"), nil
	case strings.Contains(text, "6"):
		return s.c.reply("Goodbye!", promptGoodbye, connector.OutcomeClosed, ""), nil
	}
	return s.c.reply("I heard you. Anything else?", promptDefault, connector.OutcomeContinue, ""), nil
}

// Close marks the session done.
func (s *session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.c.log.Info("conversation closed", "conversation_id", s.conversationID)
	}
	return nil
}

// Ensure session implements connector.Session at compile time.
var _ connector.Session = (*session)(nil)
