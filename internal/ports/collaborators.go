package ports

import (
	"context"
	"time"

	"github.com/inkwell/contractflow/internal/domain"
)

// Event is the notification emitted after a mutation commits.
type Event struct {
	ContractID string             `json:"contract_id"`
	Action     domain.AuditAction `json:"action"`
	ActorID    string             `json:"actor_id"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// Notifier delivers events. Implementations must not block the caller on delivery.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Rendered is a stored body prepared for display.
type Rendered struct {
	ContentType string `json:"content_type"`
	Content     string `json:"content"`
}

// Renderer turns a stored document body into something displayable.
type Renderer interface {
	RenderBody(ctx context.Context, body string) (Rendered, error)
}

// BodyCache caches published bodies keyed by contract id.
type BodyCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Invalidate(ctx context.Context, key string) error
}

// Limiter decides whether another request for key fits the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
