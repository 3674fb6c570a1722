package contract

import (
	"context"

	"tracking-support-be/internal/entity"
	"tracking-support-be/internal/repository/specification"
)

type TurnLogRepository interface {
	Create(ctx context.Context, log *entity.TurnLog) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.TurnLog, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
