package credit

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
)

// Treasury moves funds between a pool and a borrower. Manager calls it
// inside the operation's transaction, so a failed transfer rolls the
// operation back.
type Treasury interface {
	Disburse(ctx context.Context, poolID, borrower string, amount decimal.Decimal) error
	Collect(ctx context.Context, poolID, borrower string, amount decimal.Decimal) error
}

// LogTreasury records transfers in the log only. It stands in for a real
// payment rail in development deployments.
type LogTreasury struct {
	Logger *slog.Logger
}

func (t LogTreasury) Disburse(ctx context.Context, poolID, borrower string, amount decimal.Decimal) error {
	t.logger().InfoContext(ctx, "treasury disburse", "pool", poolID, "borrower", borrower, "amount", amount.String())
	return nil
}

func (t LogTreasury) Collect(ctx context.Context, poolID, borrower string, amount decimal.Decimal) error {
	t.logger().InfoContext(ctx, "treasury collect", "pool", poolID, "borrower", borrower, "amount", amount.String())
	return nil
}

func (t LogTreasury) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.Default()
	}
	return t.Logger
}
