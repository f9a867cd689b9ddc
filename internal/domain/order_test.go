package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitions(t *testing.T) {
	require.True(t, ValidTransition(StatusReceived, StatusCleaning))
	require.True(t, ValidTransition(StatusCleaning, StatusReceived))
	require.True(t, ValidTransition(StatusReady, StatusDelivered))
	require.True(t, ValidTransition(StatusRepairing, StatusCancelled))

	require.False(t, ValidTransition(StatusReceived, StatusDelivered))
	require.False(t, ValidTransition(StatusDelivered, StatusReceived))
	require.False(t, ValidTransition(StatusCancelled, StatusCleaning))
}

func TestGenericStatusTarget(t *testing.T) {
	require.True(t, GenericStatusTarget(StatusReceived))
	require.True(t, GenericStatusTarget(StatusCancelled))
	require.False(t, GenericStatusTarget(StatusReady))
	require.False(t, GenericStatusTarget(StatusDelivered))
	require.False(t, GenericStatusTarget("SHIPPED"))
}

func TestComputeTotals(t *testing.T) {
	lines := []ServiceLine{{Qty: 2, UnitPrice: "250.00"}}
	parts := []ServicePart{{Qty: 1, UnitPrice: "30.00"}}

	sub, disc, total := ComputeTotals(lines, parts, "30.00", 2)
	require.Equal(t, int64(53000), sub)
	require.Equal(t, int64(3000), disc)
	require.Equal(t, int64(50000), total)

	// recompute is idempotent
	sub2, disc2, total2 := ComputeTotals(lines, parts, "30.00", 2)
	require.Equal(t, sub, sub2)
	require.Equal(t, disc, disc2)
	require.Equal(t, total, total2)
}

func TestComputeTotalsClampsDiscount(t *testing.T) {
	lines := []ServiceLine{{Qty: 2, UnitPrice: "250.00"}}

	sub, disc, total := ComputeTotals(lines, nil, "600.00", 2)
	require.Equal(t, int64(50000), sub)
	require.Equal(t, int64(50000), disc)
	require.Equal(t, int64(0), total)

	_, disc, total = ComputeTotals(lines, nil, "-10.00", 2)
	require.Equal(t, int64(0), disc)
	require.Equal(t, int64(50000), total)

	// no children at all
	sub, disc, total = ComputeTotals(nil, nil, "50.00", 2)
	require.Equal(t, int64(0), sub)
	require.Equal(t, int64(0), disc)
	require.Equal(t, int64(0), total)
}

func TestDerivePaymentStatus(t *testing.T) {
	require.Equal(t, PayUnpaid, DerivePaymentStatus(1000, 0))
	require.Equal(t, PayUnpaid, DerivePaymentStatus(1000, -50))
	require.Equal(t, PayPartial, DerivePaymentStatus(1000, 500))
	require.Equal(t, PayPaid, DerivePaymentStatus(1000, 1000))
	require.Equal(t, PayPaid, DerivePaymentStatus(1000, 1500))

	// deposit before any lines exist must never read PAID
	require.Equal(t, PayPartial, DerivePaymentStatus(0, 500))
	require.Equal(t, PayUnpaid, DerivePaymentStatus(0, 0))
	require.Equal(t, PayPartial, DerivePaymentStatus(-100, 500))
}

func TestPaidMinorNetsRefunds(t *testing.T) {
	payments := []Payment{
		{Amount: "500.00"},
		{Amount: "-200.00"},
	}
	require.Equal(t, int64(30000), PaidMinor(payments, 2))
}
