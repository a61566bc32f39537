package types

import "github.com/shopspring/decimal"

// Deposit is one collateral entry of a lending obligation.
// Amount is the raw on-chain quantity; MarketValueUSD is already USD-denominated.
type Deposit struct {
	Mint           PublicKey       `json:"mint" yaml:"mint"`
	Amount         decimal.Decimal `json:"amount" yaml:"amount"`
	MarketValueUSD decimal.Decimal `json:"marketValueUsd" yaml:"marketValueUsd"`
}

// Borrow is one debt entry of a lending obligation
type Borrow struct {
	Mint           PublicKey       `json:"mint" yaml:"mint"`
	Amount         decimal.Decimal `json:"amount" yaml:"amount"`
	MarketValueUSD decimal.Decimal `json:"marketValueUsd" yaml:"marketValueUsd"`
}

// ObligationStats holds the aggregate figures the lending client computes
// for an obligation. LTV values are fractions (0.8 == 80%).
type ObligationStats struct {
	UserTotalDeposit decimal.Decimal `json:"userTotalDeposit" yaml:"userTotalDeposit"`
	UserTotalBorrow  decimal.Decimal `json:"userTotalBorrow" yaml:"userTotalBorrow"`
	NetAccountValue  decimal.Decimal `json:"netAccountValue" yaml:"netAccountValue"`
	LoanToValue      decimal.Decimal `json:"loanToValue" yaml:"loanToValue"`
	LiquidationLtv   decimal.Decimal `json:"liquidationLtv" yaml:"liquidationLtv"`
}

// LoanSnapshot is a read-only view of one lending obligation, fetched fresh
// every poll tick and never persisted.
type LoanSnapshot struct {
	Obligation PublicKey       `json:"obligation" yaml:"obligation"`
	Owner      PublicKey       `json:"owner" yaml:"owner"`
	Deposits   []Deposit       `json:"deposits" yaml:"deposits"`
	Borrows    []Borrow        `json:"borrows" yaml:"borrows"`
	Stats      ObligationStats `json:"stats" yaml:"stats"`
}

// PerpPosition is a read-only view of one perpetual position plus the
// collateral spot deposit backing it. All numeric fields are raw fixed-point
// integers: BaseAssetAmount at base scale, quote figures and prices at quote scale,
// CumulativeDeposits at the collateral spot market scale.
type PerpPosition struct {
	MarketIndex           uint16 `json:"marketIndex" yaml:"marketIndex"`
	BaseAssetAmount       int64  `json:"baseAssetAmount" yaml:"baseAssetAmount"`
	QuoteEntryAmount      int64  `json:"quoteEntryAmount" yaml:"quoteEntryAmount"`
	EntryPrice            int64  `json:"entryPrice" yaml:"entryPrice"`
	OraclePrice           int64  `json:"oraclePrice" yaml:"oraclePrice"`
	UnrealizedPnl         int64  `json:"unrealizedPnl" yaml:"unrealizedPnl"`
	CollateralMarketIndex uint16 `json:"collateralMarketIndex" yaml:"collateralMarketIndex"`
	CumulativeDeposits    int64  `json:"cumulativeDeposits" yaml:"cumulativeDeposits"`
}
