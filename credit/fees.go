package credit

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/credit-engine/calendar"
)

// =============================================================================
// POOL CONFIGURATION
// =============================================================================

// FeeStructure holds the pool-wide rates applied to every credit in a pool.
type FeeStructure struct {
	// YieldInBps is the default annual yield for credits that don't set one.
	YieldInBps int

	// MinPrincipalRateInBps is the share of unbilled principal each
	// non-final bill collects.
	MinPrincipalRateInBps int

	LateFeeFlat decimal.Decimal
	LateFeeBps  int

	// MembershipFee is added to the yield of every bill.
	MembershipFee decimal.Decimal

	FrontLoadingFeeFlat decimal.Decimal
	FrontLoadingFeeBps  int
}

// PoolSettings are the non-fee parameters of a pool.
type PoolSettings struct {
	PeriodDuration               calendar.PeriodDuration
	LatePaymentGracePeriodInDays int
	DefaultGracePeriodInDays     int
	AdvanceRateInBps             int

	// MaxCreditLine caps CreditConfig.CreditLimit. Zero means no cap.
	MaxCreditLine decimal.Decimal
}

// PoolConfig is everything the engine needs to know about a pool.
type PoolConfig struct {
	PoolID   string
	Name     string
	Settings PoolSettings
	Fees     FeeStructure
}

// FrontLoadingFee is charged on each drawdown and kept by the pool.
func (f FeeStructure) FrontLoadingFee(amount decimal.Decimal) decimal.Decimal {
	return f.FrontLoadingFeeFlat.Add(ApplyBps(amount, f.FrontLoadingFeeBps))
}

// Validate rejects configurations the billing math cannot run with.
func (p PoolConfig) Validate() error {
	switch {
	case p.PoolID == "":
		return fmt.Errorf("pool id is required")
	case p.Fees.MinPrincipalRateInBps < 0 || p.Fees.MinPrincipalRateInBps > BpsDenominator:
		return fmt.Errorf("min principal rate %d bps out of range", p.Fees.MinPrincipalRateInBps)
	case p.Settings.AdvanceRateInBps < 0 || p.Settings.AdvanceRateInBps > BpsDenominator:
		return fmt.Errorf("advance rate %d bps out of range", p.Settings.AdvanceRateInBps)
	case p.Settings.LatePaymentGracePeriodInDays < 0 || p.Settings.DefaultGracePeriodInDays < 0:
		return fmt.Errorf("grace periods must not be negative")
	case p.Fees.YieldInBps < 0 || p.Fees.LateFeeBps < 0 || p.Fees.FrontLoadingFeeBps < 0:
		return fmt.Errorf("rates must not be negative")
	case p.Fees.LateFeeFlat.IsNegative() || p.Fees.MembershipFee.IsNegative() || p.Fees.FrontLoadingFeeFlat.IsNegative():
		return fmt.Errorf("flat fees must not be negative")
	}
	return nil
}

// =============================================================================
// FEE ORACLE
// =============================================================================

// FeeOracle resolves the pool configuration that applies to a credit.
type FeeOracle interface {
	PoolConfig(ctx context.Context, poolID string) (PoolConfig, error)
}

// PoolStore persists pool configurations.
type PoolStore interface {
	GetPool(ctx context.Context, poolID string) (*PoolConfig, error)
	SavePool(ctx context.Context, pool PoolConfig) error
	ListPools(ctx context.Context) ([]PoolConfig, error)
}

// StoreFeeOracle reads pool configurations from a PoolStore.
type StoreFeeOracle struct {
	Pools PoolStore
}

func (o StoreFeeOracle) PoolConfig(ctx context.Context, poolID string) (PoolConfig, error) {
	pool, err := o.Pools.GetPool(ctx, poolID)
	if err != nil {
		return PoolConfig{}, err
	}
	return *pool, nil
}

// StaticFeeOracle serves a fixed set of pools. Used by tests and tools.
type StaticFeeOracle map[string]PoolConfig

func (o StaticFeeOracle) PoolConfig(_ context.Context, poolID string) (PoolConfig, error) {
	pool, ok := o[poolID]
	if !ok {
		return PoolConfig{}, fmt.Errorf("%w: %s", ErrPoolNotFound, poolID)
	}
	return pool, nil
}
