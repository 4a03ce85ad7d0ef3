// Package services – cost calculator.
//
// Pure and deterministic: no I/O, no clock, no randomness. Fees are integer
// minor units, so summation is exact; the single-currency rule is enforced
// here because this subsystem performs no conversion.
package services

import (
	"golang.org/x/text/currency"
)

// SelectedDirectory is one (instance, directory) pair chosen for submission,
// with the fee quoted by discovery.
type SelectedDirectory struct {
	InstanceURL   string `json:"instance_url"`
	DirectoryID   string `json:"directory_id"`
	DirectoryName string `json:"directory_name,omitempty"`
	FeeAmount     int64  `json:"fee_amount"`
	FeeCurrency   string `json:"fee_currency"`
}

// CostLine is the per-directory entry of a cost breakdown.
type CostLine struct {
	InstanceURL string `json:"instance_url"`
	DirectoryID string `json:"directory_id"`
	Amount      int64  `json:"amount"`
}

// CostEstimate is the result of a cost calculation: the total in a single
// currency plus a per-directory breakdown preserving input order.
type CostEstimate struct {
	Total     int64      `json:"total"`
	Currency  string     `json:"currency"`
	Breakdown []CostLine `json:"breakdown"`
}

// CalculateCost validates the selection and sums its fees.
//
// Rules:
//   - an empty selection is ErrEmptyDirectorySet;
//   - every fee must carry the same, valid ISO-4217 currency code
//     (ErrCurrencyMismatch / ErrInvalidCurrency otherwise);
//   - negative fees are ErrNegativeFee; zero fees are fine (free directories).
func CalculateCost(selection []SelectedDirectory) (*CostEstimate, error) {
	if len(selection) == 0 {
		return nil, ErrEmptyDirectorySet
	}

	est := &CostEstimate{Breakdown: make([]CostLine, 0, len(selection))}
	for i, sel := range selection {
		unit, err := currency.ParseISO(sel.FeeCurrency)
		if err != nil {
			return nil, ErrInvalidCurrency
		}
		if sel.FeeAmount < 0 {
			return nil, ErrNegativeFee
		}
		if i == 0 {
			est.Currency = unit.String()
		} else if est.Currency != unit.String() {
			return nil, ErrCurrencyMismatch
		}
		est.Total += sel.FeeAmount
		est.Breakdown = append(est.Breakdown, CostLine{
			InstanceURL: sel.InstanceURL,
			DirectoryID: sel.DirectoryID,
			Amount:      sel.FeeAmount,
		})
	}
	return est, nil
}
