package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chris/taskchat/internal/db"
	"github.com/chris/taskchat/internal/llm"
)

const tracerName = "github.com/chris/taskchat/internal/agent"

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrEmptyMessage        = errors.New("message is empty")
	ErrUpstreamUnavailable = errors.New("language model unavailable")
)

// Store is everything a chat turn reads or writes.
type Store interface {
	TaskStore
	GetConversation(ctx context.Context, userID string, id int64) (*db.Conversation, error)
	RecentMessages(ctx context.Context, conversationID int64, limit int) ([]db.Message, error)
	SaveTurn(ctx context.Context, userID string, conversationID int64, userText, replyText string) (int64, error)
}

// Reply is the outcome of one chat turn.
type Reply struct {
	ConversationID int64
	Response       string
	ToolCalls      int
}

type Agent struct {
	store        Store
	client       llm.Client
	dispatcher   *Dispatcher
	historyLimit int
	log          logrus.FieldLogger
	tracer       trace.Tracer
}

type Option func(*Agent)

// WithHistoryLimit sets how many stored messages are replayed to the model.
func WithHistoryLimit(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.historyLimit = n
		}
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(a *Agent) { a.log = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(a *Agent) { a.tracer = t }
}

func New(store Store, client llm.Client, opts ...Option) (*Agent, error) {
	d, err := NewDispatcher(store)
	if err != nil {
		return nil, err
	}
	a := &Agent{
		store:        store,
		client:       client,
		dispatcher:   d,
		historyLimit: db.DefaultHistoryLimit,
		log:          logrus.StandardLogger(),
		tracer:       otel.Tracer(tracerName),
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Chat runs one turn: a first model call offered the tools, at most one round
// of tool execution, and a second tool-less call to phrase the answer. The
// user message and final reply are persisted only when the whole turn succeeds.
// A zero conversationID starts a new conversation.
func (a *Agent) Chat(ctx context.Context, userID string, conversationID int64, message string) (_ *Reply, err error) {
	ctx, span := a.tracer.Start(ctx, "agent.chat", trace.WithAttributes(
		attribute.Int64("conversation.id", conversationID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if userID == "" {
		return nil, ErrUnauthorized
	}
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}

	var history []db.Message
	if conversationID != 0 {
		if _, err := a.store.GetConversation(ctx, userID, conversationID); err != nil {
			return nil, err
		}
		history, err = a.store.RecentMessages(ctx, conversationID, a.historyLimit)
		if err != nil {
			return nil, fmt.Errorf("loading history: %w", err)
		}
	}

	messages := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		// Tool results cannot be replayed without their originating call.
		if m.Role == db.RoleTool {
			continue
		}
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: message})

	first, err := a.complete(ctx, messages, llm.AgentTools)
	if err != nil {
		return nil, err
	}

	reply := first.Content
	if len(first.ToolCalls) > 0 {
		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   first.Content,
			ToolCalls: first.ToolCalls,
		})
		for _, tc := range first.ToolCalls {
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    a.runTool(ctx, userID, tc),
				ToolCallID: tc.ID,
			})
		}

		second, err := a.complete(ctx, messages, nil)
		if err != nil {
			return nil, err
		}
		reply = second.Content
	}

	convID, err := a.store.SaveTurn(ctx, userID, conversationID, message, reply)
	if err != nil {
		return nil, fmt.Errorf("saving turn: %w", err)
	}
	span.SetAttributes(attribute.Int64("conversation.id", convID), attribute.Int("tool_calls", len(first.ToolCalls)))

	a.log.WithFields(logrus.Fields{
		"user_id":         userID,
		"conversation_id": convID,
		"tool_calls":      len(first.ToolCalls),
	}).Debug("chat turn complete")

	return &Reply{ConversationID: convID, Response: reply, ToolCalls: len(first.ToolCalls)}, nil
}

func (a *Agent) complete(ctx context.Context, messages []llm.Message, tools []llm.Tool) (*llm.Response, error) {
	ctx, span := a.tracer.Start(ctx, "llm.chat", trace.WithAttributes(
		attribute.Int("llm.messages", len(messages)),
		attribute.Int("llm.tools", len(tools)),
	))
	defer span.End()

	resp, err := a.client.Chat(ctx, llm.SystemPrompt, messages, tools)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.log.WithError(err).Warn("llm call failed")
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	if resp == nil {
		resp = &llm.Response{}
	}
	span.SetAttributes(attribute.Int("llm.tool_calls", len(resp.ToolCalls)))
	return resp, nil
}

func (a *Agent) runTool(ctx context.Context, userID string, tc llm.ToolCall) string {
	ctx, span := a.tracer.Start(ctx, "tool."+tc.Name, trace.WithAttributes(
		attribute.String("tool.name", tc.Name),
		attribute.String("tool.call_id", tc.ID),
	))
	defer span.End()

	result, err := a.dispatcher.Execute(ctx, userID, tc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.log.WithError(err).WithField("tool", tc.Name).Info("tool call failed")
	}
	a.log.Debugf("tool %s → %s", tc.Name, truncate(result, 200))
	return result
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
