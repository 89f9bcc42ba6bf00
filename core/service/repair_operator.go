package service

import (
	"context"

	"github.com/ruudy-sib/corepay/core/domain"
	"github.com/ruudy-sib/corepay/core/port/primary"
	"github.com/ruudy-sib/corepay/core/repair"
)

// RepairOperator implements primary.RepairOperator over a repair.Engine,
// the operator-facing counterpart to the worker-driven repair.Worker.
type RepairOperator struct {
	engine *repair.Engine
}

// NewRepairOperator builds a RepairOperator.
func NewRepairOperator(engine *repair.Engine) *RepairOperator {
	return &RepairOperator{engine: engine}
}

func (o *RepairOperator) PickNextBatch(ctx context.Context, tenantID string, limit int) ([]domain.RepairRecord, error) {
	return o.engine.PickNextBatch(ctx, tenantID, limit)
}

func (o *RepairOperator) Apply(ctx context.Context, rec *domain.RepairRecord, action domain.CorrectiveAction) error {
	return o.engine.Apply(ctx, rec, action)
}

func (o *RepairOperator) Sweep(ctx context.Context) error {
	_, err := o.engine.Sweep(ctx)
	return err
}

var _ primary.RepairOperator = (*RepairOperator)(nil)
