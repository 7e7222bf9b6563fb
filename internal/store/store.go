package store

import (
	"context"

	"github.com/hyperengineering/deskflow/internal/routing"
	"github.com/hyperengineering/deskflow/internal/types"
)

// Store defines the interface contract for all routing storage operations.
// The routing engine sees only the Repository and AlertSource subsets; the
// rest serves configuration management and dashboard reads.
type Store interface {
	routing.Repository
	routing.AlertSource

	GetRoutingByIdea(ctx context.Context, ideaID string) (*types.IdeaRouting, error)
	ListStatusLog(ctx context.Context, routingID string) ([]types.RoutingStatusLog, error)
	ListRoutings(ctx context.Context, status types.RoutingStatus) ([]types.IdeaRouting, error)

	CreateRule(ctx context.Context, rule *types.RoutingRule) error
	UpdateRule(ctx context.Context, rule *types.RoutingRule) error
	DeleteRule(ctx context.Context, id string) error

	CreatePublication(ctx context.Context, pub *types.Publication) error
	GetPublication(ctx context.Context, id string) (*types.Publication, error)
	UpdatePublication(ctx context.Context, pub *types.Publication) error

	CreateRubric(ctx context.Context, rubric *types.ScoringRubric) error
	UpdateRubric(ctx context.Context, rubric *types.ScoringRubric) error
	DeleteRubric(ctx context.Context, id string) error

	CreateThreshold(ctx context.Context, threshold *types.TierThreshold) error
	UpdateThreshold(ctx context.Context, threshold *types.TierThreshold) error
	DeleteThreshold(ctx context.Context, id string) error

	CreateSlot(ctx context.Context, slot *types.CalendarSlot) error
	UpdateSlot(ctx context.Context, slot *types.CalendarSlot) error
	DeleteSlot(ctx context.Context, id string) error

	GetStats(ctx context.Context) (*types.RoutingStats, error)
	IdeaCount(ctx context.Context) (int64, error)

	Close() error
}
