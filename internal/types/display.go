package types

import "time"

// Status is the per-wallet lifecycle state of the dashboard
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusLoading      Status = "loading"
	StatusPopulated    Status = "populated"
	StatusEmpty        Status = "empty"
	StatusErrored      Status = "errored"
)

// SectionStatus describes one side (lending or perp) of the display
type SectionStatus string

const (
	SectionLoading    SectionStatus = "loading"
	SectionPopulated  SectionStatus = "populated"
	SectionNoPosition SectionStatus = "no_position"
	SectionErrored    SectionStatus = "errored"
)

// PriceUnknown is rendered when a price could not be fetched. It is never zero.
const PriceUnknown = "unknown"

// RiskBand buckets the current LTV for display
type RiskBand string

const (
	RiskHealthy RiskBand = "healthy"
	RiskWarning RiskBand = "warning"
	RiskDanger  RiskBand = "danger"
)

// LendingView is the human-readable lending card
type LendingView struct {
	CollateralAmount            string   `json:"collateralAmount"`
	CollateralValue             string   `json:"collateralValue"`
	BorrowedAmount              string   `json:"borrowedAmount"`
	BorrowValueWithBorrowFactor string   `json:"borrowValueWithBorrowFactor"`
	BorrowAPY                   string   `json:"borrowApy"`
	NetPositionValue            string   `json:"netPositionValue"`
	CurrentLTV                  string   `json:"currentLtv"`
	LiquidationLTV              string   `json:"liquidationLtv"`
	LiquidationPrice            string   `json:"liquidationPrice"`
	LTVRisk                     RiskBand `json:"ltvRisk"`
}

// PerpView is the human-readable perpetuals card
type PerpView struct {
	TotalDeposit       string  `json:"totalDeposit"`
	CollateralValueUSD *string `json:"collateralValueUsd,omitempty"`
	CostBasis          string  `json:"costBasis"`
	PositionSizeBase   string  `json:"positionSizeBase"`
	PositionSizeUSD    string  `json:"positionSizeUsd"`
	EntryPrice         string  `json:"entryPrice"`
	CurrentPrice       string  `json:"currentPrice"`
	PnL                string  `json:"pnl"`
	PnLPercent         *string `json:"pnlPercent,omitempty"`
	Leverage           *string `json:"leverage,omitempty"`
}

// DisplayState is the flat presentation-facing record. Sections are nil until
// their first successful derivation so consumers must tolerate absent fields.
type DisplayState struct {
	SessionID       string        `json:"sessionId"`
	Wallet          PublicKey     `json:"wallet,omitempty"`
	Status          Status        `json:"status"`
	Generation      uint64        `json:"generation"`
	Sequence        uint64        `json:"sequence"`
	BTCPrice        string        `json:"btcPrice"`
	CollateralPrice string        `json:"collateralPrice"`
	LendingStatus   SectionStatus `json:"lendingStatus,omitempty"`
	Lending         *LendingView  `json:"lending,omitempty"`
	PerpStatus      SectionStatus `json:"perpStatus,omitempty"`
	Perp            *PerpView     `json:"perp,omitempty"`
	LastError       string        `json:"lastError,omitempty"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// NewDisconnectedState returns the initial state of a session
func NewDisconnectedState(sessionID string) *DisplayState {
	return &DisplayState{
		SessionID:       sessionID,
		Status:          StatusDisconnected,
		BTCPrice:        PriceUnknown,
		CollateralPrice: PriceUnknown,
		UpdatedAt:       time.Now().UTC(),
	}
}

// Clone returns a deep copy safe to hand to other goroutines
func (d *DisplayState) Clone() *DisplayState {
	if d == nil {
		return nil
	}
	c := *d
	if d.Lending != nil {
		l := *d.Lending
		c.Lending = &l
	}
	if d.Perp != nil {
		p := *d.Perp
		c.Perp = &p
	}
	return &c
}
