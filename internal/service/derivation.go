package service

import (
	"math/big"

	"github.com/position-dashboard/internal/adapter"
	"github.com/position-dashboard/internal/amount"
	"github.com/position-dashboard/internal/config"
	apperrors "github.com/position-dashboard/internal/errors"
	"github.com/position-dashboard/internal/types"
	"github.com/shopspring/decimal"
)

// Display precisions
const (
	collateralDigits = 6
	tokenDigits      = 2
	baseDigits       = 4
	usdDigits        = 2
	percentDigits    = 2
)

// LTV thresholds, in percent, of the risk bands
var (
	ltvDanger  = decimal.NewFromInt(75)
	ltvWarning = decimal.NewFromInt(60)
	hundred    = decimal.NewFromInt(100)
)

// Side names used in NoMatchingPosition errors
const (
	SideLending = "lending"
	SidePerp    = "perp"
)

// DerivedMetrics is the display-ready result of one derivation
type DerivedMetrics struct {
	Lending *types.LendingView
	Perp    *types.PerpView
}

// Deriver turns raw protocol views into display sections for the tracked markets.
// It holds no mutable state: identical inputs always produce identical output.
type Deriver struct {
	markets config.MarketsConfig
}

// NewDeriver creates a deriver for the given markets
func NewDeriver(markets config.MarketsConfig) *Deriver {
	return &Deriver{markets: markets}
}

// DerivePosition derives both sides. A lending side without the tracked pair
// returns NoMatchingPosition; the perp side is only derived when perp is non-nil.
func (d *Deriver) DerivePosition(loan types.LoanSnapshot, market adapter.Market, perp *types.PerpPosition, slot uint64, collateralPrice *decimal.Decimal) (*DerivedMetrics, error) {
	lending, err := d.DeriveLoan(loan, market, slot)
	if err != nil {
		return nil, err
	}

	out := &DerivedMetrics{Lending: lending}
	if perp != nil {
		view, err := d.DerivePerp(*perp, collateralPrice)
		if err != nil {
			return nil, err
		}
		out.Perp = view
	}
	return out, nil
}

// DeriveLoan derives the lending card from one obligation.
//
// The collateral deposit and the borrow are matched by resolving each entry's
// mint to its reserve and comparing against the configured reserve addresses.
// A missing deposit, a missing borrow or a zero collateral amount is
// NoMatchingPosition.
func (d *Deriver) DeriveLoan(loan types.LoanSnapshot, market adapter.Market, slot uint64) (*types.LendingView, error) {
	cfg := d.markets.Lending

	deposit, collateralReserve, ok := findDeposit(loan.Deposits, market, cfg.CollateralReserve)
	if !ok {
		return nil, apperrors.NewNoPositionError(SideLending, "no "+cfg.CollateralSymbol+" collateral deposit")
	}
	borrow, borrowReserve, ok := findBorrow(loan.Borrows, market, cfg.BorrowReserve)
	if !ok {
		return nil, apperrors.NewNoPositionError(SideLending, "no "+cfg.BorrowSymbol+" borrow")
	}

	collateralFactor := collateralReserve.MintFactor()
	if collateralFactor <= 0 || borrowReserve.MintFactor() <= 0 {
		return nil, apperrors.NewParseError("lending reserve", nil)
	}

	collateralUnits := deposit.Amount.Div(decimal.NewFromInt(collateralFactor))
	if !collateralUnits.IsPositive() {
		return nil, apperrors.NewNoPositionError(SideLending, "zero "+cfg.CollateralSymbol+" collateral")
	}

	stats := loan.Stats
	ltvPercent := stats.LoanToValue.Mul(hundred)
	liqLtvPercent := stats.LiquidationLtv.Mul(hundred)

	apy := borrowReserve.TotalBorrowAPY(slot).Mul(hundred)

	return &types.LendingView{
		CollateralAmount:            amount.NormalizeDecimal(deposit.Amount, collateralFactor, collateralDigits),
		CollateralValue:             amount.RoundFixed(deposit.MarketValueUSD, usdDigits),
		BorrowedAmount:              amount.NormalizeDecimal(borrow.Amount, borrowReserve.MintFactor(), tokenDigits),
		BorrowValueWithBorrowFactor: amount.RoundFixed(stats.UserTotalBorrow, usdDigits),
		BorrowAPY:                   amount.RoundFixed(apy, percentDigits),
		NetPositionValue:            amount.RoundFixed(stats.NetAccountValue, usdDigits),
		CurrentLTV:                  amount.RoundFixed(ltvPercent, percentDigits),
		LiquidationLTV:              amount.RoundFixed(liqLtvPercent, percentDigits),
		LiquidationPrice:            LiquidationPrice(borrow.MarketValueUSD, collateralUnits, liqLtvPercent),
		LTVRisk:                     RiskBandFor(ltvPercent),
	}, nil
}

// LiquidationPrice returns borrowed / (collateral * liquidationLtvPercent/100)
// rounded to cents, or "unknown" when the denominator is not positive.
func LiquidationPrice(borrowedUSD, collateralUnits, liquidationLtvPercent decimal.Decimal) string {
	denom := collateralUnits.Mul(liquidationLtvPercent.Div(hundred))
	if !denom.IsPositive() {
		return types.PriceUnknown
	}
	return amount.RoundFixed(borrowedUSD.Div(denom), usdDigits)
}

// RiskBandFor buckets an LTV percentage
func RiskBandFor(ltvPercent decimal.Decimal) types.RiskBand {
	switch {
	case ltvPercent.GreaterThan(ltvDanger):
		return types.RiskDanger
	case ltvPercent.GreaterThan(ltvWarning):
		return types.RiskWarning
	default:
		return types.RiskHealthy
	}
}

func findDeposit(deposits []types.Deposit, market adapter.Market, reserve types.PublicKey) (types.Deposit, adapter.Reserve, bool) {
	for _, dep := range deposits {
		r, ok := market.GetReserveByMint(dep.Mint)
		if !ok {
			continue
		}
		if r.Address() == reserve {
			return dep, r, true
		}
	}
	return types.Deposit{}, nil, false
}

func findBorrow(borrows []types.Borrow, market adapter.Market, reserve types.PublicKey) (types.Borrow, adapter.Reserve, bool) {
	for _, b := range borrows {
		r, ok := market.GetReserveByMint(b.Mint)
		if !ok {
			continue
		}
		if r.Address() == reserve {
			return b, r, true
		}
	}
	return types.Borrow{}, nil, false
}

// DerivePerp derives the perp card. Each raw field is normalized by its own
// scale: size by the base scale, quote amounts and PnL by the quote scale,
// prices by the price scale and notional by base*price.
//
// collateralPrice may be nil when the price feed failed; the collateral value
// and leverage are then omitted rather than shown as zero.
func (d *Deriver) DerivePerp(p types.PerpPosition, collateralPrice *decimal.Decimal) (*types.PerpView, error) {
	cfg := d.markets.Perp
	if p.BaseAssetAmount == 0 {
		return nil, apperrors.NewNoPositionError(SidePerp, "no open "+cfg.BaseSymbol+"-PERP position")
	}

	notionalRaw := new(big.Int).Mul(big.NewInt(p.BaseAssetAmount), big.NewInt(p.OraclePrice))
	notionalRaw.Abs(notionalRaw)

	size := amount.New(p.BaseAssetAmount, cfg.BaseScale, baseDigits)
	notional := amount.TokenAmount{Raw: decimal.NewFromBigInt(notionalRaw, 0), Scale: cfg.BaseScale * cfg.PriceScale, Precision: usdDigits}
	costBasis := amount.TokenAmount{Raw: decimal.NewFromInt(p.QuoteEntryAmount).Abs(), Scale: cfg.QuoteScale, Precision: usdDigits}
	pnl := amount.New(p.UnrealizedPnl, cfg.QuoteScale, usdDigits)
	deposit := amount.New(p.CumulativeDeposits, cfg.CollateralScale, baseDigits)

	view := &types.PerpView{
		TotalDeposit:     deposit.String(),
		CostBasis:        costBasis.String(),
		PositionSizeBase: size.String(),
		PositionSizeUSD:  notional.String(),
		EntryPrice:       amount.New(p.EntryPrice, cfg.PriceScale, usdDigits).String(),
		CurrentPrice:     amount.New(p.OraclePrice, cfg.PriceScale, usdDigits).String(),
		PnL:              pnl.String(),
	}

	if costBasis.Raw.IsPositive() {
		// both operands are at quote scale so the ratio is scale free
		pct := pnl.Raw.Div(costBasis.Raw).Mul(hundred)
		s := amount.RoundFixed(pct, percentDigits)
		view.PnLPercent = &s
	}

	if collateralPrice != nil && collateralPrice.IsPositive() {
		units := deposit.Raw.Div(decimal.NewFromInt(deposit.Scale))
		value := units.Mul(*collateralPrice)
		v := amount.RoundFixed(value, usdDigits)
		view.CollateralValueUSD = &v

		if value.IsPositive() {
			lev := amount.RoundFixed(notional.Units().Div(value), percentDigits)
			view.Leverage = &lev
		}
	}

	return view, nil
}
