// Package transport exposes the caller-facing duplex stream as a
// websocket endpoint. Each connection carries one conversation: JSON
// frames with audio, DTMF or control events flow in, prompt replies and
// gateway events flow out.
//
// One goroutine owns each connection end to end. A read pump feeds frames
// into the serve loop, which also runs the segmentation tick so
// conversations that stop sending frames during silence still complete
// their utterances.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/voicebridge/byova/internal/auth"
	"github.com/voicebridge/byova/internal/gateway"
	"github.com/voicebridge/byova/pkg/connector"
)

// defaultTickInterval drives segmentation timeouts between frames.
const defaultTickInterval = 500 * time.Millisecond

// Config for the stream server.
type Config struct {
	Router *gateway.Router

	// Validator guards the stream endpoint. nil disables authentication.
	Validator *auth.Validator

	// TickInterval between segmentation timeout checks. Default 500ms.
	TickInterval time.Duration

	Logger *slog.Logger
}

// Server handles websocket stream connections.
type Server struct {
	router *gateway.Router
	valid  *auth.Validator
	tick   time.Duration
	log    *slog.Logger
}

// New returns a stream Server.
func New(cfg Config) *Server {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		router: cfg.Router,
		valid:  cfg.Validator,
		tick:   cfg.TickInterval,
		log:    cfg.Logger,
	}
}

// Handler returns the routed HTTP handler for the stream listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /v1/stream", s.valid.Middleware(http.HandlerFunc(s.handleStream)))
	return mux
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	log := s.log.With("stream_id", uuid.NewString())
	log.Debug("stream opened", "remote_addr", r.RemoteAddr)
	s.serve(r.Context(), conn, log)
}

// serve runs one connection. It returns when the client disconnects, the
// conversation reaches a terminal event, or the server shuts down.
func (s *Server) serve(ctx context.Context, conn *websocket.Conn, log *slog.Logger) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan clientMessage)
	readErr := make(chan error, 1)
	go s.readPump(ctx, conn, frames, readErr)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	var conversationID string
	defer func() {
		// Best-effort cleanup when the stream dies mid-conversation. A
		// conversation that already ended is a no-op here.
		if conversationID != "" {
			s.router.EndConversation(context.Background(), conversationID, "stream_closed")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return

		case err := <-readErr:
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				log.Debug("stream read failed", "conversation_id", conversationID, "error", err)
			}
			return

		case <-ticker.C:
			if conversationID == "" {
				continue
			}
			outs, err := s.router.Tick(ctx, conversationID)
			if err != nil {
				continue
			}
			if done := s.writeReplies(ctx, conn, outs); done {
				conversationID = ""
				conn.Close(websocket.StatusNormalClosure, "conversation ended")
				return
			}

		case msg := <-frames:
			if msg.Type == typeListAgents {
				s.write(ctx, conn, serverMessage{Type: typeAgents, Agents: s.router.Agents()})
				continue
			}
			in, ok := msg.toInbound()
			if !ok {
				s.write(ctx, conn, serverMessage{Type: typeError, Error: "unknown message type: " + msg.Type})
				continue
			}
			if in.ConversationID == "" {
				s.write(ctx, conn, serverMessage{Type: typeError, Error: "conversation_id is required"})
				continue
			}

			outs, err := s.router.Dispatch(ctx, in)
			if err != nil {
				s.write(ctx, conn, serverMessage{
					Type:           typeError,
					ConversationID: in.ConversationID,
					Error:          err.Error(),
				})
				if errors.Is(err, connector.ErrAgentNotFound) || errors.Is(err, gateway.ErrNoAgents) {
					conn.Close(websocket.StatusPolicyViolation, "unknown agent")
					return
				}
				continue
			}
			conversationID = in.ConversationID

			if done := s.writeReplies(ctx, conn, outs); done {
				conversationID = ""
				conn.Close(websocket.StatusNormalClosure, "conversation ended")
				return
			}
		}
	}
}

func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, frames chan<- clientMessage, readErr chan<- error) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			readErr <- err
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			readErr <- err
			return
		}
		select {
		case frames <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// writeReplies sends each reply and reports whether one of them carried a
// terminal event.
func (s *Server) writeReplies(ctx context.Context, conn *websocket.Conn, outs []gateway.Outbound) bool {
	done := false
	for _, out := range outs {
		s.write(ctx, conn, toWire(out))
		if endsConversation(out) {
			done = true
		}
	}
	return done
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, msg serverMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Error("marshal server message", "error", err)
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		s.log.Debug("stream write failed", "error", err)
	}
}
