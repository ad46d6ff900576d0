// Package currency handles minor-unit arithmetic and exchange rates.
// All ledger amounts are stored as integer minor units; decimal values
// appear only at the API boundary.
package currency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// PYG is the platform's base currency.
const PYG = "PYG"

var (
	ErrUnknownCurrency  = errors.New("currency: unknown currency")
	ErrRateUnavailable  = errors.New("currency: exchange rate unavailable")
	ErrNotRepresentable = errors.New("currency: amount not representable in minor units")
)

// exponents maps ISO codes to their minor-unit exponent. The guaraní has
// no fractional unit.
var exponents = map[string]int32{
	PYG:   0,
	"USD": 2,
	"EUR": 2,
	"BRL": 2,
	"ARS": 2,
}

// Exponent returns the minor-unit exponent for an ISO currency code.
func Exponent(code string) (int32, error) {
	exp, ok := exponents[strings.ToUpper(code)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCurrency, code)
	}
	return exp, nil
}

// ToMinorUnits converts a decimal amount into integer minor units.
// Amounts with more precision than the currency carries are rejected
// rather than rounded.
func ToMinorUnits(amount decimal.Decimal, code string) (int64, error) {
	exp, err := Exponent(code)
	if err != nil {
		return 0, err
	}
	scaled := amount.Shift(exp)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("%w: %s %s", ErrNotRepresentable, amount, code)
	}
	if !scaled.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: %s %s overflows", ErrNotRepresentable, amount, code)
	}
	return scaled.IntPart(), nil
}

// FromMinorUnits converts integer minor units back to a decimal amount.
func FromMinorUnits(minor int64, code string) (decimal.Decimal, error) {
	exp, err := Exponent(code)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromInt(minor).Shift(-exp), nil
}

// RateSource provides exchange rates quoted as units of the target
// currency per one unit of the base currency.
type RateSource interface {
	Rate(ctx context.Context, base, target string) (decimal.Decimal, error)
}

// StaticRates is a fixed in-memory rate table.
type StaticRates struct {
	mu    sync.RWMutex
	rates map[string]decimal.Decimal
}

// NewStaticRates builds a rate table from "BASE/TARGET" keys.
func NewStaticRates(rates map[string]decimal.Decimal) *StaticRates {
	cp := make(map[string]decimal.Decimal, len(rates))
	for k, v := range rates {
		cp[strings.ToUpper(k)] = v
	}
	return &StaticRates{rates: cp}
}

// Rate implements RateSource.
func (s *StaticRates) Rate(_ context.Context, base, target string) (decimal.Decimal, error) {
	base, target = strings.ToUpper(base), strings.ToUpper(target)
	if base == target {
		return decimal.NewFromInt(1), nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rate, ok := s.rates[base+"/"+target]; ok {
		return rate, nil
	}
	if inverse, ok := s.rates[target+"/"+base]; ok && !inverse.IsZero() {
		return decimal.NewFromInt(1).Div(inverse), nil
	}
	return decimal.Zero, fmt.Errorf("%w: %s/%s", ErrRateUnavailable, base, target)
}

// SetRate updates or inserts a rate pair.
func (s *StaticRates) SetRate(base, target string, rate decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[strings.ToUpper(base)+"/"+strings.ToUpper(target)] = rate
}

// Converter converts minor-unit amounts between currencies using a
// RateSource.
type Converter struct {
	source RateSource
}

// NewConverter wraps a rate source.
func NewConverter(source RateSource) *Converter {
	return &Converter{source: source}
}

// Convert converts minor units of base into minor units of target,
// truncating toward zero at the target currency's precision.
func (c *Converter) Convert(ctx context.Context, minor int64, base, target string) (int64, error) {
	if strings.EqualFold(base, target) {
		return minor, nil
	}
	rate, err := c.source.Rate(ctx, base, target)
	if err != nil {
		return 0, err
	}
	amount, err := FromMinorUnits(minor, base)
	if err != nil {
		return 0, err
	}
	targetExp, err := Exponent(target)
	if err != nil {
		return 0, err
	}
	converted := amount.Mul(rate).Truncate(targetExp)
	return converted.Shift(targetExp).IntPart(), nil
}
