package domain

import "soleworks/backend/internal/money"

// IsTerminal reports whether an order status accepts no further
// lifecycle mutations.
func IsTerminal(status string) bool {
	return status == StatusDelivered || status == StatusCancelled
}

var transitions = map[string][]string{
	StatusReceived:  {StatusCleaning, StatusRepairing, StatusReady, StatusCancelled},
	StatusCleaning:  {StatusReceived, StatusRepairing, StatusReady, StatusCancelled},
	StatusRepairing: {StatusReceived, StatusCleaning, StatusReady, StatusCancelled},
	StatusReady:     {StatusReceived, StatusCleaning, StatusRepairing, StatusDelivered, StatusCancelled},
}

// ValidTransition reports whether from → to is a legal status edge.
// Terminal states have no outgoing edges.
func ValidTransition(from, to string) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// GenericStatusTarget reports whether a status may be set through the
// plain set-status operation. READY and DELIVERED have dedicated
// operations with side effects and are rejected here.
func GenericStatusTarget(status string) bool {
	switch status {
	case StatusReceived, StatusCleaning, StatusRepairing, StatusCancelled:
		return true
	}
	return false
}

// KnownStatus reports whether the string names any order status.
func KnownStatus(status string) bool {
	switch status {
	case StatusReceived, StatusCleaning, StatusRepairing, StatusReady, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// ComputeTotals re-derives the order money columns from the child
// collections. The discount is clamped to [0, subTotal] so child
// removal can never strand a discount above the subtotal, and the
// total is floored at zero.
func ComputeTotals(lines []ServiceLine, parts []ServicePart, discount string, decimals int) (subMinor, discMinor, totalMinor int64) {
	for _, l := range lines {
		subMinor += int64(l.Qty) * money.ToMinor(l.UnitPrice, decimals)
	}
	for _, p := range parts {
		subMinor += int64(p.Qty) * money.ToMinor(p.UnitPrice, decimals)
	}
	discMinor = money.ToMinor(discount, decimals)
	if discMinor < 0 {
		discMinor = 0
	}
	if discMinor > subMinor {
		discMinor = subMinor
	}
	totalMinor = money.ClampNonNegative(subMinor - discMinor)
	return subMinor, discMinor, totalMinor
}

// PaidMinor sums the payment ledger. Refund entries carry negative
// amounts, so the sum is the net paid position.
func PaidMinor(payments []Payment, decimals int) int64 {
	var paid int64
	for _, p := range payments {
		paid += money.ToMinor(p.Amount, decimals)
	}
	return paid
}

// DerivePaymentStatus maps the derived total and net paid amount to a
// payment status. A zero or negative total with money on the ledger
// reads PARTIAL, never PAID; PAID always implies a positive total.
func DerivePaymentStatus(totalMinor, paidMinor int64) string {
	if totalMinor <= 0 {
		if paidMinor > 0 {
			return PayPartial
		}
		return PayUnpaid
	}
	if paidMinor <= 0 {
		return PayUnpaid
	}
	if paidMinor < totalMinor {
		return PayPartial
	}
	return PayPaid
}
