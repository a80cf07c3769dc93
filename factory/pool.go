/*
Package factory provides JSON to Go pool and credit configuration conversion.

PURPOSE:
  Converts JSON pool definitions into credit.PoolConfig and JSON credit
  terms into credit.CreditConfig. Pool operators change rates and grace
  periods by editing a document, not code.

JSON SCHEMA:
  {
    "id": "pool-main",
    "name": "Main Receivables Pool",
    "period_duration": "monthly",
    "late_payment_grace_period_days": 5,
    "default_grace_period_days": 90,
    "advance_rate_bps": 8000,
    "max_credit_line": "10000000",
    "fees": {
      "yield_bps": 1200,
      "min_principal_rate_bps": 100,
      "late_fee_flat": "100",
      "late_fee_bps": 2400,
      "membership_fee": "0",
      "front_loading_fee_flat": "0",
      "front_loading_fee_bps": 0
    }
  }

  Amounts are integral smallest-unit values, given as strings or numbers.

USAGE:
  f := factory.NewPoolFactory()
  pool, err := f.ParsePool(factory.StandardPoolJSON("pool-main", "Main Pool"))

SEE ALSO:
  - credit/fees.go: PoolConfig
  - presets.go: ready-made pool documents
*/
package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/credit-engine/calendar"
	"github.com/warp/credit-engine/credit"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PoolJSON is the JSON representation of a pool.
type PoolJSON struct {
	ID                         string          `json:"id" validate:"required"`
	Name                       string          `json:"name"`
	PeriodDuration             string          `json:"period_duration,omitempty" validate:"omitempty,oneof=monthly quarterly semi_annually"`
	LatePaymentGracePeriodDays int             `json:"late_payment_grace_period_days" validate:"gte=0,lte=365"`
	DefaultGracePeriodDays     int             `json:"default_grace_period_days" validate:"gte=0"`
	AdvanceRateBps             int             `json:"advance_rate_bps" validate:"gte=0,lte=10000"`
	MaxCreditLine              decimal.Decimal `json:"max_credit_line"`
	Fees                       FeesJSON        `json:"fees"`
}

// FeesJSON represents a pool's fee structure.
type FeesJSON struct {
	YieldBps            int             `json:"yield_bps" validate:"gte=0"`
	MinPrincipalRateBps int             `json:"min_principal_rate_bps" validate:"gte=0,lte=10000"`
	LateFeeFlat         decimal.Decimal `json:"late_fee_flat"`
	LateFeeBps          int             `json:"late_fee_bps" validate:"gte=0"`
	MembershipFee       decimal.Decimal `json:"membership_fee"`
	FrontLoadingFeeFlat decimal.Decimal `json:"front_loading_fee_flat"`
	FrontLoadingFeeBps  int             `json:"front_loading_fee_bps" validate:"gte=0,lte=10000"`
}

// CreditJSON represents the terms of a credit line.
type CreditJSON struct {
	CreditLimit         decimal.Decimal `json:"credit_limit"`
	CommittedAmount     decimal.Decimal `json:"committed_amount"`
	PeriodDuration      string          `json:"period_duration,omitempty" validate:"omitempty,oneof=monthly quarterly semi_annually"`
	NumOfPeriods        int             `json:"num_of_periods" validate:"gt=0"`
	YieldBps            int             `json:"yield_bps,omitempty" validate:"gte=0"`
	AdvanceRateBps      int             `json:"advance_rate_bps,omitempty" validate:"gte=0,lte=10000"`
	Revolving           bool            `json:"revolving"`
	ReceivableBacked    bool            `json:"receivable_backed"`
	BorrowerLevelCredit bool            `json:"borrower_level_credit"`
}

// =============================================================================
// VALIDATION ERRORS
// =============================================================================

// FieldError describes one invalid field of a document.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every invalid field of a document.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid configuration: " + strings.Join(parts, "; ")
}

// ParseValidationErrors turns validator errors into a ValidationError. Other
// errors are returned unchanged.
func ParseValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	fields := make([]FieldError, 0, len(validationErrors))
	for _, fe := range validationErrors {
		fields = append(fields, FieldError{Field: fieldPath(fe), Message: translateValidationError(fe)})
	}
	return &ValidationError{Fields: fields}
}

// fieldPath drops the top-level struct name from the JSON namespace, so
// "PoolJSON.fees.yield_bps" becomes "fees.yield_bps".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func translateValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// =============================================================================
// POOL FACTORY
// =============================================================================

// PoolFactory converts JSON documents to engine configuration.
type PoolFactory struct {
	validate *validator.Validate
}

// NewPoolFactory creates a new pool factory.
func NewPoolFactory() *PoolFactory {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &PoolFactory{validate: v}
}

// Validate runs struct-tag validation on v, reporting failures as a
// ValidationError.
func (f *PoolFactory) Validate(v any) error {
	if err := f.validate.Struct(v); err != nil {
		return ParseValidationErrors(err)
	}
	return nil
}

// ParsePool parses a JSON string into a PoolConfig.
func (f *PoolFactory) ParsePool(jsonStr string) (credit.PoolConfig, error) {
	var pj PoolJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return credit.PoolConfig{}, fmt.Errorf("failed to parse pool JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// LoadPools reads a JSON array of pool documents.
func (f *PoolFactory) LoadPools(r io.Reader) ([]credit.PoolConfig, error) {
	var docs []PoolJSON
	if err := json.NewDecoder(r).Decode(&docs); err != nil {
		return nil, fmt.Errorf("failed to parse pools file: %w", err)
	}
	pools := make([]credit.PoolConfig, 0, len(docs))
	for _, pj := range docs {
		pool, err := f.FromJSON(pj)
		if err != nil {
			return nil, fmt.Errorf("pool %q: %w", pj.ID, err)
		}
		pools = append(pools, pool)
	}
	return pools, nil
}

// FromJSON converts PoolJSON to credit.PoolConfig.
func (f *PoolFactory) FromJSON(pj PoolJSON) (credit.PoolConfig, error) {
	if err := f.Validate(pj); err != nil {
		return credit.PoolConfig{}, err
	}
	period, err := calendar.ParsePeriodDuration(pj.PeriodDuration)
	if err != nil {
		return credit.PoolConfig{}, err
	}
	if err := checkAmounts(map[string]decimal.Decimal{
		"max_credit_line":        pj.MaxCreditLine,
		"fees.late_fee_flat":     pj.Fees.LateFeeFlat,
		"fees.membership_fee":    pj.Fees.MembershipFee,
		"fees.front_loading_fee": pj.Fees.FrontLoadingFeeFlat,
	}); err != nil {
		return credit.PoolConfig{}, err
	}

	pool := credit.PoolConfig{
		PoolID: pj.ID,
		Name:   pj.Name,
		Settings: credit.PoolSettings{
			PeriodDuration:               period,
			LatePaymentGracePeriodInDays: pj.LatePaymentGracePeriodDays,
			DefaultGracePeriodInDays:     pj.DefaultGracePeriodDays,
			AdvanceRateInBps:             pj.AdvanceRateBps,
			MaxCreditLine:                pj.MaxCreditLine,
		},
		Fees: credit.FeeStructure{
			YieldInBps:            pj.Fees.YieldBps,
			MinPrincipalRateInBps: pj.Fees.MinPrincipalRateBps,
			LateFeeFlat:           pj.Fees.LateFeeFlat,
			LateFeeBps:            pj.Fees.LateFeeBps,
			MembershipFee:         pj.Fees.MembershipFee,
			FrontLoadingFeeFlat:   pj.Fees.FrontLoadingFeeFlat,
			FrontLoadingFeeBps:    pj.Fees.FrontLoadingFeeBps,
		},
	}
	if err := pool.Validate(); err != nil {
		return credit.PoolConfig{}, err
	}
	return pool, nil
}

// ToJSON converts a PoolConfig to PoolJSON.
func (f *PoolFactory) ToJSON(pool credit.PoolConfig) PoolJSON {
	return PoolJSON{
		ID:                         pool.PoolID,
		Name:                       pool.Name,
		PeriodDuration:             pool.Settings.PeriodDuration.String(),
		LatePaymentGracePeriodDays: pool.Settings.LatePaymentGracePeriodInDays,
		DefaultGracePeriodDays:     pool.Settings.DefaultGracePeriodInDays,
		AdvanceRateBps:             pool.Settings.AdvanceRateInBps,
		MaxCreditLine:              pool.Settings.MaxCreditLine,
		Fees: FeesJSON{
			YieldBps:            pool.Fees.YieldInBps,
			MinPrincipalRateBps: pool.Fees.MinPrincipalRateInBps,
			LateFeeFlat:         pool.Fees.LateFeeFlat,
			LateFeeBps:          pool.Fees.LateFeeBps,
			MembershipFee:       pool.Fees.MembershipFee,
			FrontLoadingFeeFlat: pool.Fees.FrontLoadingFeeFlat,
			FrontLoadingFeeBps:  pool.Fees.FrontLoadingFeeBps,
		},
	}
}

// =============================================================================
// CREDIT TERMS
// =============================================================================

// ParseCreditConfig parses a JSON string into a CreditConfig.
func (f *PoolFactory) ParseCreditConfig(jsonStr string) (credit.CreditConfig, error) {
	var cj CreditJSON
	if err := json.Unmarshal([]byte(jsonStr), &cj); err != nil {
		return credit.CreditConfig{}, fmt.Errorf("failed to parse credit JSON: %w", err)
	}
	return f.CreditFromJSON(cj)
}

// CreditFromJSON converts CreditJSON to credit.CreditConfig. Rates left at
// zero are filled from the pool when the credit is approved.
func (f *PoolFactory) CreditFromJSON(cj CreditJSON) (credit.CreditConfig, error) {
	if err := f.Validate(cj); err != nil {
		return credit.CreditConfig{}, err
	}
	period, err := calendar.ParsePeriodDuration(cj.PeriodDuration)
	if err != nil {
		return credit.CreditConfig{}, err
	}
	if err := checkAmounts(map[string]decimal.Decimal{
		"credit_limit":     cj.CreditLimit,
		"committed_amount": cj.CommittedAmount,
	}); err != nil {
		return credit.CreditConfig{}, err
	}
	if !cj.CreditLimit.IsPositive() {
		return credit.CreditConfig{}, &ValidationError{Fields: []FieldError{{Field: "credit_limit", Message: "must be greater than 0"}}}
	}

	return credit.CreditConfig{
		CreditLimit:         cj.CreditLimit,
		CommittedAmount:     cj.CommittedAmount,
		PeriodDuration:      period,
		NumOfPeriods:        cj.NumOfPeriods,
		YieldInBps:          cj.YieldBps,
		AdvanceRateInBps:    cj.AdvanceRateBps,
		Revolving:           cj.Revolving,
		ReceivableBacked:    cj.ReceivableBacked,
		BorrowerLevelCredit: cj.BorrowerLevelCredit,
	}, nil
}

// CreditToJSON converts a CreditConfig to CreditJSON.
func (f *PoolFactory) CreditToJSON(cc credit.CreditConfig) CreditJSON {
	return CreditJSON{
		CreditLimit:         cc.CreditLimit,
		CommittedAmount:     cc.CommittedAmount,
		PeriodDuration:      cc.PeriodDuration.String(),
		NumOfPeriods:        cc.NumOfPeriods,
		YieldBps:            cc.YieldInBps,
		AdvanceRateBps:      cc.AdvanceRateInBps,
		Revolving:           cc.Revolving,
		ReceivableBacked:    cc.ReceivableBacked,
		BorrowerLevelCredit: cc.BorrowerLevelCredit,
	}
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

// checkAmounts rejects negative or fractional money values.
func checkAmounts(amounts map[string]decimal.Decimal) error {
	var fields []FieldError
	for name, amount := range amounts {
		switch {
		case amount.IsNegative():
			fields = append(fields, FieldError{Field: name, Message: "must not be negative"})
		case !amount.IsInteger():
			fields = append(fields, FieldError{Field: name, Message: "must be a whole number of units"})
		}
	}
	if len(fields) > 0 {
		sort.Slice(fields, func(i, j int) bool { return fields[i].Field < fields[j].Field })
		return &ValidationError{Fields: fields}
	}
	return nil
}
