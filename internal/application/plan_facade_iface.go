package application

import (
	"context"

	"dispatch-bot/internal/domain/model"
	"dispatch-bot/internal/usecase"
)

// PlanUseCaseIface is the part of usecase.ExecutorPlanUseCase the facade needs.
// Tests pass a light-weight fake.
type PlanUseCaseIface interface {
	Submit(ctx context.Context, m model.Mutation) (*usecase.CommandResult, error)
	Get(ctx context.Context, id int64) (*model.ExecutorPlan, error)
	Summary(p *model.ExecutorPlan) string
	AttachCard(ctx context.Context, id, chatID int64, messageID int) error
	FlushBacklog(ctx context.Context) (applied int, remaining int64, err error)
	IsBlocked(ctx context.Context, phone string) (bool, *model.ExecutorBlock, error)
}

var _ PlanUseCaseIface = (*usecase.ExecutorPlanUseCase)(nil)
