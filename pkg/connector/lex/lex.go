// Package lex implements the connector contract against AWS Lex v2.
//
// Each gateway conversation maps to one Lex runtime session. Utterances go
// up as 16 kHz linear PCM via RecognizeUtterance and replies come back as
// raw PCM plus gzip+base64-compressed JSON fields (messages, session
// state, interpretations) that drive the outcome mapping.
//
// Agent ids are discovered from the bot inventory and presented as
// "aws_lex: <bot name>"; the display-name-to-bot-id mapping is cached
// after the first listing.
package lex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/lexmodelsv2"
	"github.com/aws/aws-sdk-go-v2/service/lexruntimev2"
	"github.com/voicebridge/byova/pkg/audio"
	"github.com/voicebridge/byova/pkg/connector"
)

const (
	agentPrefix = "aws_lex: "

	// Content types for the RecognizeUtterance exchange. Lex wants 16 kHz
	// linear PCM up and returns raw PCM down.
	requestContentTypeAudio = "audio/l16; rate=16000; channels=1"
	requestContentTypeText  = "text/plain; charset=utf-8"
	responseContentType     = "audio/pcm"

	// startUtterance primes the bot so Start can return a spoken greeting.
	startUtterance = "hello"
)

// Config for the Lex connector.
type Config struct {
	// Region is the AWS region hosting the bots. Required.
	Region string

	// AccessKeyID and SecretAccessKey select static credentials. Leave
	// both empty to use the default AWS credential chain.
	AccessKeyID     string
	SecretAccessKey string

	// BotAliasID defaults to TSTALIASID, the alias Lex creates for every
	// bot draft.
	BotAliasID string

	// LocaleID defaults to en_US.
	LocaleID string

	Logger *slog.Logger
}

// runtimeAPI is the slice of the lexruntimev2 client the connector uses.
type runtimeAPI interface {
	RecognizeUtterance(ctx context.Context, in *lexruntimev2.RecognizeUtteranceInput, opts ...func(*lexruntimev2.Options)) (*lexruntimev2.RecognizeUtteranceOutput, error)
	DeleteSession(ctx context.Context, in *lexruntimev2.DeleteSessionInput, opts ...func(*lexruntimev2.Options)) (*lexruntimev2.DeleteSessionOutput, error)
}

// modelsAPI is the slice of the lexmodelsv2 client the connector uses.
type modelsAPI interface {
	ListBots(ctx context.Context, in *lexmodelsv2.ListBotsInput, opts ...func(*lexmodelsv2.Options)) (*lexmodelsv2.ListBotsOutput, error)
}

// Connector bridges gateway conversations to AWS Lex v2 bots.
type Connector struct {
	runtime runtimeAPI
	models  modelsAPI
	aliasID string
	locale  string
	log     *slog.Logger

	mu             sync.RWMutex
	botIDByDisplay map[string]string
}

// New builds the AWS clients and returns the connector. No AWS call is
// made until Agents or Start.
func New(ctx context.Context, cfg Config) (*Connector, error) {
	if cfg.Region == "" {
		return nil, errors.New("lex: region is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("lex: load aws config: %w", err)
	}
	return newWithClients(lexruntimev2.NewFromConfig(awsCfg), lexmodelsv2.NewFromConfig(awsCfg), cfg), nil
}

func newWithClients(runtime runtimeAPI, models modelsAPI, cfg Config) *Connector {
	if cfg.BotAliasID == "" {
		cfg.BotAliasID = "TSTALIASID"
	}
	if cfg.LocaleID == "" {
		cfg.LocaleID = "en_US"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Connector{
		runtime:        runtime,
		models:         models,
		aliasID:        cfg.BotAliasID,
		locale:         cfg.LocaleID,
		log:            cfg.Logger.With("connector", "aws_lex"),
		botIDByDisplay: make(map[string]string),
	}
}

// Agents lists the bots in the region as "aws_lex: <name>" display ids and
// refreshes the display-to-bot-id cache.
func (c *Connector) Agents(ctx context.Context) ([]string, error) {
	var (
		ids       []string
		byDisplay = make(map[string]string)
		next      *string
	)
	for {
		out, err := c.models.ListBots(ctx, &lexmodelsv2.ListBotsInput{NextToken: next})
		if err != nil {
			return nil, fmt.Errorf("lex: list bots: %w", errors.Join(connector.ErrBackendUnavailable, err))
		}
		for _, bot := range out.BotSummaries {
			if bot.BotId == nil {
				continue
			}
			name := *bot.BotId
			if bot.BotName != nil {
				name = *bot.BotName
			}
			display := agentPrefix + name
			byDisplay[display] = *bot.BotId
			ids = append(ids, display)
		}
		if out.NextToken == nil {
			break
		}
		next = out.NextToken
	}

	c.mu.Lock()
	c.botIDByDisplay = byDisplay
	c.mu.Unlock()
	c.log.Info("discovered lex bots", "count", len(ids))
	return ids, nil
}

// Start opens a Lex session for the conversation and runs one priming turn
// so the greeting carries the bot's spoken welcome.
func (c *Connector) Start(ctx context.Context, agentID, conversationID string) (connector.Session, connector.Reply, error) {
	botID, err := c.resolveBot(ctx, agentID)
	if err != nil {
		return nil, connector.Reply{}, err
	}
	sess := &session{
		c:              c,
		botID:          botID,
		botName:        strings.TrimPrefix(agentID, agentPrefix),
		sessionID:      "session_" + conversationID,
		conversationID: conversationID,
	}
	greeting, err := sess.recognize(ctx, requestContentTypeText, []byte(startUtterance))
	if err != nil {
		c.log.Warn("greeting turn failed, starting without spoken welcome",
			"conversation_id", conversationID, "error", err)
		greeting = connector.Reply{}
	}
	greeting.Text = fmt.Sprintf("Hello! I'm your %s assistant. How can I help you today?", sess.botName)
	greeting.Outcome = connector.OutcomeContinue
	greeting.BargeIn = true
	c.log.Info("lex conversation started",
		"conversation_id", conversationID, "bot_id", botID, "alias_id", c.aliasID)
	return sess, greeting, nil
}

func (c *Connector) resolveBot(ctx context.Context, agentID string) (string, error) {
	c.mu.RLock()
	botID, ok := c.botIDByDisplay[agentID]
	c.mu.RUnlock()
	if ok {
		return botID, nil
	}
	// Cache miss; the inventory may be stale or never fetched.
	if _, err := c.Agents(ctx); err != nil {
		return "", err
	}
	c.mu.RLock()
	botID, ok = c.botIDByDisplay[agentID]
	c.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("lex: bot %q: %w", agentID, connector.ErrAgentNotFound)
	}
	return botID, nil
}

// Ensure Connector implements connector.Connector at compile time.
var _ connector.Connector = (*Connector)(nil)

type session struct {
	c              *Connector
	botID          string
	botName        string
	sessionID      string
	conversationID string
}

func (s *session) RecognizeAudio(ctx context.Context, pcm []byte) (connector.Reply, error) {
	return s.recognize(ctx, requestContentTypeAudio, pcm)
}

func (s *session) RecognizeText(ctx context.Context, text string) (connector.Reply, error) {
	return s.recognize(ctx, requestContentTypeText, []byte(text))
}

func (s *session) recognize(ctx context.Context, contentType string, body []byte) (connector.Reply, error) {
	out, err := s.c.runtime.RecognizeUtterance(ctx, &lexruntimev2.RecognizeUtteranceInput{
		BotId:               &s.botID,
		BotAliasId:          &s.c.aliasID,
		LocaleId:            &s.c.locale,
		SessionId:           &s.sessionID,
		RequestContentType:  &contentType,
		ResponseContentType: ptr(responseContentType),
		InputStream:         bytes.NewReader(body),
	})
	if err != nil {
		return connector.Reply{}, fmt.Errorf("lex: recognize utterance: %w",
			errors.Join(connector.ErrBackendUnavailable, err))
	}

	reply := buildReply(s.c.log, out.Messages, out.SessionState, out.Interpretations)
	if out.AudioStream != nil {
		pcm, readErr := io.ReadAll(out.AudioStream)
		out.AudioStream.Close()
		if readErr != nil {
			return connector.Reply{}, fmt.Errorf("lex: read audio stream: %w",
				errors.Join(connector.ErrBackendUnavailable, readErr))
		}
		if len(pcm) > 0 {
			reply.Audio = pcm
			reply.ContentType = audio.ContentTypePCM
		}
	}
	return reply, nil
}

// Close deletes the Lex session. A session that is already gone is fine.
func (s *session) Close(ctx context.Context) error {
	_, err := s.c.runtime.DeleteSession(ctx, &lexruntimev2.DeleteSessionInput{
		BotId:      &s.botID,
		BotAliasId: &s.c.aliasID,
		LocaleId:   &s.c.locale,
		SessionId:  &s.sessionID,
	})
	if err != nil {
		s.c.log.Debug("delete session failed", "conversation_id", s.conversationID, "error", err)
	}
	return nil
}

// Ensure session implements connector.Session at compile time.
var _ connector.Session = (*session)(nil)

func ptr[T any](v T) *T { return &v }
