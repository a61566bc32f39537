package service

import (
	"github.com/position-dashboard/internal/amount"
	apperrors "github.com/position-dashboard/internal/errors"
	"github.com/position-dashboard/internal/types"
	"github.com/shopspring/decimal"
)

// ApplyTo folds a fetch result into st.
//
// A failed price becomes "unknown", never zero. A side with no position
// clears its card. A side that failed keeps its previous card and is marked
// errored, so a transient failure never blanks what is on screen.
func (snap *Snapshot) ApplyTo(st *types.DisplayState) {
	st.BTCPrice = formatPrice(snap.BTCPrice)
	st.CollateralPrice = formatPrice(snap.CollateralPrice)

	st.LendingStatus = sectionStatus(snap.LendingErr)
	switch st.LendingStatus {
	case types.SectionPopulated:
		st.Lending = snap.Lending
	case types.SectionNoPosition:
		st.Lending = nil
	}

	st.PerpStatus = sectionStatus(snap.PerpErr)
	switch st.PerpStatus {
	case types.SectionPopulated:
		st.Perp = snap.Perp
	case types.SectionNoPosition:
		st.Perp = nil
	}

	st.Status = overallStatus(st.LendingStatus, st.PerpStatus)
	st.LastError = firstFault(snap.LendingErr, snap.PerpErr, snap.PriceErr)
}

func formatPrice(p *decimal.Decimal) string {
	if p == nil {
		return types.PriceUnknown
	}
	return amount.RoundFixed(*p, usdDigits)
}

func sectionStatus(err error) types.SectionStatus {
	switch {
	case err == nil:
		return types.SectionPopulated
	case apperrors.IsNoPosition(err):
		return types.SectionNoPosition
	default:
		return types.SectionErrored
	}
}

func overallStatus(lending, perp types.SectionStatus) types.Status {
	switch {
	case lending == types.SectionPopulated || perp == types.SectionPopulated:
		return types.StatusPopulated
	case lending == types.SectionNoPosition && perp == types.SectionNoPosition:
		return types.StatusEmpty
	default:
		return types.StatusErrored
	}
}

// firstFault returns the message of the first error that is a real failure
func firstFault(errs ...error) string {
	for _, err := range errs {
		if err != nil && !apperrors.IsNoPosition(err) {
			return err.Error()
		}
	}
	return ""
}
