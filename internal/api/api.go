package api

import (
	"context"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/chris/taskchat/internal/agent"
	"github.com/chris/taskchat/internal/db"
)

const maxBodySize = "64K"

// Authenticator turns an Authorization header into a user id.
type Authenticator interface {
	UserIDFromAuthHeader(header string) (string, error)
}

// Chatter runs one assistant turn.
type Chatter interface {
	Chat(ctx context.Context, userID string, conversationID int64, message string) (*agent.Reply, error)
}

// Store is the persistence used directly by the REST routes.
type Store interface {
	CreateTask(ctx context.Context, userID, title, description string) (*db.Task, error)
	ListTasks(ctx context.Context, userID, status string) ([]db.Task, error)
	GetTask(ctx context.Context, userID string, id int64) (*db.Task, error)
	CompleteTask(ctx context.Context, userID string, id int64) (*db.Task, error)
	UpdateTask(ctx context.Context, userID string, id int64, u db.TaskUpdate) (*db.Task, error)
	DeleteTask(ctx context.Context, userID string, id int64) error
	GetConversation(ctx context.Context, userID string, id int64) (*db.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]db.Conversation, error)
	RecentMessages(ctx context.Context, conversationID int64, limit int) ([]db.Message, error)
	Ping(ctx context.Context) error
}

// Deduper records idempotency keys. A nil Deduper disables the Idempotency-Key header.
type Deduper interface {
	Add(ctx context.Context, userID, key string) (bool, error)
	Remove(ctx context.Context, userID, key string) error
}

type Deps struct {
	Store   Store
	Chat    Chatter
	Auth    Authenticator
	Deduper Deduper
	Log     *log.Logger
	Tracer  trace.Tracer
}

// New builds the echo server with middleware and every route registered.
func New(deps Deps) *echo.Echo {
	if deps.Log == nil {
		deps.Log = log.StandardLogger()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer("github.com/chris/taskchat/internal/api")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = sonicSerializer{}
	e.HTTPErrorHandler = errorHandler(deps.Log)

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(requestLogger(deps.Log))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, headerIdempotencyKey},
	}))
	e.Use(middleware.BodyLimit(maxBodySize))
	e.Use(tracing(deps.Tracer))

	Register(e, deps)
	return e
}

// Register wires up all routes on the provided Echo instance.
func Register(e *echo.Echo, deps Deps) {
	h := &handler{store: deps.Store, chat: deps.Chat, dedup: deps.Deduper, log: deps.Log}

	e.GET("/health", h.health)

	g := e.Group("/api", requireUser(deps.Auth))
	g.POST("/chat", h.postChat)
	g.GET("/tasks", h.listTasks)
	g.POST("/tasks", h.createTask)
	g.GET("/tasks/:id", h.getTask)
	g.PUT("/tasks/:id", h.updateTask)
	g.POST("/tasks/:id/complete", h.completeTask)
	g.DELETE("/tasks/:id", h.deleteTask)
	g.GET("/conversations", h.listConversations)
	g.GET("/conversations/:id/messages", h.listMessages)
}

type handler struct {
	store Store
	chat  Chatter
	dedup Deduper
	log   *log.Logger
}
