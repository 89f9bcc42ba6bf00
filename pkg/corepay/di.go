package corepay

import (
	"context"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/ruudy-sib/corepay/core/port/secondary"
)

// DIParams holds the dependencies needed to create a Corepay instance via
// dig, generalizing pkg/rebound.DIParams to this module's extra
// caller-supplied ports (the core-banking adapter is never optional; id
// generation and clock are).
type DIParams struct {
	dig.In

	Logger *zap.Logger
	Config *Config                   `optional:"true"`
	Bank   secondary.CoreBankingAdapter
	IDGen  secondary.IDGenerator `optional:"true"`
	Clock  secondary.Clock       `optional:"true"`
	Ctx    context.Context       `optional:"true"`
}

// ProvideCorepay builds a Corepay instance for dependency injection.
//
// Example:
//
//	container := dig.New()
//	container.Provide(corepay.ProvideCorepay)
//	container.Invoke(func(cp *corepay.Corepay) {
//	    cp.Start(ctx)
//	})
func ProvideCorepay(params DIParams) (*Corepay, error) {
	cfg := params.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.Logger = params.Logger

	ctx := params.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	return New(ctx, cfg, params.Bank, params.IDGen, params.Clock)
}

// RegisterWithContainer registers Corepay's constructor with a dig
// container, a convenience wrapper over container.Provide.
//
// Example:
//
//	container := dig.New()
//	if err := corepay.RegisterWithContainer(container); err != nil {
//	    log.Fatal(err)
//	}
func RegisterWithContainer(container *dig.Container) error {
	return container.Provide(ProvideCorepay)
}

// StartParams holds the dependencies for starting a Corepay via dig.
type StartParams struct {
	dig.In

	Corepay *Corepay
	Context context.Context `optional:"true"`
}

// StartCorepay is a lifecycle hook that starts a Corepay's background
// workers when invoked via dig.
//
// Example:
//
//	container.Invoke(corepay.StartCorepay)
func StartCorepay(params StartParams) error {
	ctx := params.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return params.Corepay.Start(ctx)
}
