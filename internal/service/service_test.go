package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"soleworks/backend/internal/cache"
	"soleworks/backend/internal/domain"
	"soleworks/backend/internal/store"
	"soleworks/backend/internal/store/memory"
)

func newTestService() *Service {
	repo := memory.NewSeeded(2)
	return New(repo, cache.NoopOverviewCache{}, 5*time.Second)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		UserID:   "usr-test-admin",
		Username: "admin",
		Role:     domain.RoleAdmin,
	})
}

func staffCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		UserID:   "usr-test-staff",
		Username: "staff",
		Role:     domain.RoleStaff,
	})
}

func createOrderWithLine(t *testing.T, svc *Service, ctx context.Context) *domain.ServiceOrder {
	t.Helper()

	customer, err := svc.CreateCustomer(ctx, domain.CustomerCreateRequest{Name: "Dara Chan", Phone: "012-555-111"})
	if err != nil {
		t.Fatalf("create customer failed: %v", err)
	}

	order, err := svc.CreateServiceOrder(ctx, domain.OrderCreateRequest{
		CustomerID:      customer.ID,
		ItemDescription: "Leather oxford shoes",
		Brand:           "Clarks",
		Color:           "brown",
		Problem:         "worn soles on both shoes",
		PairCount:       1,
		Lines: []domain.OrderLineRequest{
			{Description: "Sole replacement", Qty: 2, UnitPrice: "250.00"},
		},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	return order
}

func TestOrderLifecycleHappyPath(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	order := createOrderWithLine(t, svc, ctx)
	if order.Status != domain.StatusReceived {
		t.Fatalf("expected RECEIVED, got %s", order.Status)
	}
	if order.Total != "500.00" {
		t.Fatalf("expected total 500.00, got %s", order.Total)
	}
	if order.PaymentStatus != domain.PayUnpaid {
		t.Fatalf("expected UNPAID, got %s", order.PaymentStatus)
	}

	order, err := svc.AddServiceOrderPayment(ctx, order.ID, domain.PaymentRequest{Amount: "500.00", Method: "CASH"})
	if err != nil {
		t.Fatalf("payment failed: %v", err)
	}
	if order.PaymentStatus != domain.PayPaid {
		t.Fatalf("expected PAID, got %s", order.PaymentStatus)
	}

	order, err = svc.MarkServiceOrderReady(ctx, order.ID, domain.MarkReadyRequest{})
	if err != nil {
		t.Fatalf("mark ready failed: %v", err)
	}
	if order.Status != domain.StatusReady {
		t.Fatalf("expected READY, got %s", order.Status)
	}

	order, err = svc.DeliverServiceOrder(ctx, order.ID, domain.DeliverRequest{Note: "picked up in person"})
	if err != nil {
		t.Fatalf("deliver failed: %v", err)
	}
	if order.Status != domain.StatusDelivered {
		t.Fatalf("expected DELIVERED, got %s", order.Status)
	}
	if order.DeliveredAt == nil {
		t.Fatalf("expected delivered_at to be set")
	}
}

func TestDeliverRejectsUnpaidOrder(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	order := createOrderWithLine(t, svc, ctx)
	if _, err := svc.MarkServiceOrderReady(ctx, order.ID, domain.MarkReadyRequest{}); err != nil {
		t.Fatalf("mark ready failed: %v", err)
	}

	_, err := svc.DeliverServiceOrder(ctx, order.ID, domain.DeliverRequest{})
	if !errors.Is(err, store.ErrBusinessRule) {
		t.Fatalf("expected business rule error for unpaid delivery, got %v", err)
	}
}

func TestGenericStatusRejectsReadyAndDelivered(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()
	order := createOrderWithLine(t, svc, ctx)

	for _, target := range []string{domain.StatusReady, domain.StatusDelivered} {
		_, err := svc.SetServiceOrderStatus(ctx, order.ID, domain.StatusRequest{Status: target})
		if !errors.Is(err, store.ErrValidation) {
			t.Fatalf("expected validation error for %s, got %v", target, err)
		}
	}

	// Backward movement between working states is allowed.
	if _, err := svc.SetServiceOrderStatus(ctx, order.ID, domain.StatusRequest{Status: domain.StatusCleaning}); err != nil {
		t.Fatalf("move to CLEANING failed: %v", err)
	}
	if _, err := svc.SetServiceOrderStatus(ctx, order.ID, domain.StatusRequest{Status: domain.StatusReceived}); err != nil {
		t.Fatalf("move back to RECEIVED failed: %v", err)
	}
}

func TestTerminalOrderRejectsMutations(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	order := createOrderWithLine(t, svc, ctx)
	if _, err := svc.SetServiceOrderStatus(ctx, order.ID, domain.StatusRequest{Status: domain.StatusCancelled, Note: "customer changed mind"}); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	_, err := svc.AddServiceLine(ctx, order.ID, domain.OrderLineRequest{Description: "Extra polish", Qty: 1, UnitPrice: "6.00"})
	if !errors.Is(err, store.ErrBusinessRule) {
		t.Fatalf("expected business rule error on cancelled order, got %v", err)
	}
	_, err = svc.AddServiceOrderPayment(ctx, order.ID, domain.PaymentRequest{Amount: "10.00", Method: "CASH"})
	if !errors.Is(err, store.ErrBusinessRule) {
		t.Fatalf("expected business rule error for payment on cancelled order, got %v", err)
	}
}

func TestDiscountClampsToSubtotal(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	order := createOrderWithLine(t, svc, ctx)
	order, err := svc.AddServiceOrderPayment(ctx, order.ID, domain.PaymentRequest{Amount: "100.00", Method: "CASH"})
	if err != nil {
		t.Fatalf("payment failed: %v", err)
	}

	order, err = svc.ApplyServiceOrderDiscount(ctx, order.ID, domain.DiscountRequest{Discount: "900.00"})
	if err != nil {
		t.Fatalf("discount failed: %v", err)
	}
	if order.Discount != "500.00" {
		t.Fatalf("expected discount clamped to 500.00, got %s", order.Discount)
	}
	if order.Total != "0.00" {
		t.Fatalf("expected total 0.00, got %s", order.Total)
	}
	// Zero-total order with money received stays PARTIAL, never PAID.
	if order.PaymentStatus != domain.PayPartial {
		t.Fatalf("expected PARTIAL at zero total with payments, got %s", order.PaymentStatus)
	}
}

func TestRefundBounds(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	order := createOrderWithLine(t, svc, ctx)
	order, err := svc.AddServiceOrderPayment(ctx, order.ID, domain.PaymentRequest{Amount: "200.00", Method: "CARD", Reference: "AUTH-91"})
	if err != nil {
		t.Fatalf("payment failed: %v", err)
	}
	paymentID := order.Payments[0].ID

	_, err = svc.RefundServiceOrderPayment(ctx, order.ID, domain.RefundRequest{PaymentID: paymentID, Amount: "250.00", Reason: "overcharge"})
	if !errors.Is(err, store.ErrBusinessRule) {
		t.Fatalf("expected business rule error for over-refund, got %v", err)
	}
	_, err = svc.RefundServiceOrderPayment(ctx, order.ID, domain.RefundRequest{PaymentID: paymentID, Amount: "50.00"})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for missing reason, got %v", err)
	}

	order, err = svc.RefundServiceOrderPayment(ctx, order.ID, domain.RefundRequest{PaymentID: paymentID, Amount: "50.00", Reason: "partial rework"})
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if len(order.Payments) != 2 {
		t.Fatalf("expected refund as a second payment entry, got %d", len(order.Payments))
	}
	refund := order.Payments[1]
	if refund.Amount != "-50.00" {
		t.Fatalf("expected refund amount -50.00, got %s", refund.Amount)
	}
	if refund.Method != "CARD" {
		t.Fatalf("expected refund to copy method CARD, got %s", refund.Method)
	}
	if order.PaymentStatus != domain.PayPartial {
		t.Fatalf("expected PARTIAL after partial refund, got %s", order.PaymentStatus)
	}

	_, err = svc.RefundServiceOrderPayment(ctx, order.ID, domain.RefundRequest{PaymentID: refund.ID, Amount: "10.00", Reason: "oops"})
	if !errors.Is(err, store.ErrBusinessRule) {
		t.Fatalf("expected business rule error for refunding a refund, got %v", err)
	}
}

func TestReadyChargesAccountsReceivableOnce(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	order := createOrderWithLine(t, svc, ctx)
	order, err := svc.MarkServiceOrderReady(ctx, order.ID, domain.MarkReadyRequest{})
	if err != nil {
		t.Fatalf("mark ready failed: %v", err)
	}

	// Send back for rework and mark ready again.
	if _, err := svc.SetServiceOrderStatus(ctx, order.ID, domain.StatusRequest{Status: domain.StatusRepairing, Note: "glue line failed"}); err != nil {
		t.Fatalf("back to REPAIRING failed: %v", err)
	}
	if _, err := svc.MarkServiceOrderReady(ctx, order.ID, domain.MarkReadyRequest{}); err != nil {
		t.Fatalf("second mark ready failed: %v", err)
	}

	entries, err := svc.ListARTransactions(ctx, order.CustomerID, 50)
	if err != nil {
		t.Fatalf("list AR failed: %v", err)
	}
	charges := 0
	for _, e := range entries {
		if e.Type == domain.ARCharge && e.OrderID == order.ID {
			charges++
		}
	}
	if charges != 1 {
		t.Fatalf("expected exactly one AR charge, got %d", charges)
	}
}

func TestPartConsumesStockAndRemovalDoesNotRestore(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	items, err := svc.ListItems(ctx, "PRT-SOLE-01", 10)
	if err != nil || len(items) != 1 {
		t.Fatalf("expected seeded sole item, got %d items err=%v", len(items), err)
	}
	before := items[0].OnHand

	order := createOrderWithLine(t, svc, ctx)
	order, err = svc.AddServicePart(ctx, order.ID, domain.OrderPartRequest{ItemID: items[0].ID, Qty: 2})
	if err != nil {
		t.Fatalf("add part failed: %v", err)
	}

	after, err := svc.GetItem(ctx, items[0].ID)
	if err != nil {
		t.Fatalf("get item failed: %v", err)
	}
	if after.OnHand != before-2 {
		t.Fatalf("expected on-hand %d, got %d", before-2, after.OnHand)
	}

	movements, err := svc.ListStockMovements(ctx, items[0].ID, 10)
	if err != nil {
		t.Fatalf("list movements failed: %v", err)
	}
	found := false
	for _, m := range movements {
		if m.Type == domain.MovementServiceOut && m.Qty == -2 && m.RefID == order.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected SERVICE_OUT movement referencing the order")
	}

	if _, err := svc.RemoveServicePart(ctx, order.ID, order.Parts[0].ID); err != nil {
		t.Fatalf("remove part failed: %v", err)
	}
	after, err = svc.GetItem(ctx, items[0].ID)
	if err != nil {
		t.Fatalf("get item failed: %v", err)
	}
	if after.OnHand != before-2 {
		t.Fatalf("expected stock unchanged after part removal, got %d", after.OnHand)
	}
}

func TestDepositOnCreateDerivesPartial(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	customer, err := svc.CreateCustomer(ctx, domain.CustomerCreateRequest{Name: "Sokha Men"})
	if err != nil {
		t.Fatalf("create customer failed: %v", err)
	}
	order, err := svc.CreateServiceOrder(ctx, domain.OrderCreateRequest{
		CustomerID:      customer.ID,
		ItemDescription: "Suede boots",
		Lines: []domain.OrderLineRequest{
			{Description: "Deep clean", Qty: 1, UnitPrice: "8.00"},
		},
		Deposit: &domain.PaymentRequest{Amount: "3.00", Method: "CASH"},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if order.PaymentStatus != domain.PayPartial {
		t.Fatalf("expected PARTIAL after deposit, got %s", order.PaymentStatus)
	}
	if len(order.Payments) != 1 {
		t.Fatalf("expected one payment entry for the deposit, got %d", len(order.Payments))
	}
}

func TestCustomerOverviewAggregates(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	order := createOrderWithLine(t, svc, ctx)
	if _, err := svc.AddServiceOrderPayment(ctx, order.ID, domain.PaymentRequest{Amount: "200.00", Method: "CASH"}); err != nil {
		t.Fatalf("payment failed: %v", err)
	}

	ov, err := svc.GetCustomerOverview(ctx, order.CustomerID)
	if err != nil {
		t.Fatalf("overview failed: %v", err)
	}
	if ov.TicketCount != 1 {
		t.Fatalf("expected 1 ticket, got %d", ov.TicketCount)
	}
	if ov.TotalSpent != "500.00" || ov.TotalPaid != "200.00" || ov.Outstanding != "300.00" {
		t.Fatalf("unexpected overview totals: spent=%s paid=%s outstanding=%s", ov.TotalSpent, ov.TotalPaid, ov.Outstanding)
	}
	if ov.Repeat {
		t.Fatalf("single-ticket customer should not be flagged repeat")
	}
}

func TestLineUsesCatalogDefaults(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	services, err := svc.ListRepairServices(ctx, "Heel repair", true, 10)
	if err != nil || len(services) != 1 {
		t.Fatalf("expected seeded heel repair service, got %d err=%v", len(services), err)
	}

	order := createOrderWithLine(t, svc, ctx)
	order, err = svc.AddServiceLine(ctx, order.ID, domain.OrderLineRequest{
		RepairServiceID: services[0].ID,
		Qty:             1,
	})
	if err != nil {
		t.Fatalf("add line failed: %v", err)
	}
	line := order.Lines[len(order.Lines)-1]
	if line.Description != "Heel repair" {
		t.Fatalf("expected catalog description, got %q", line.Description)
	}
	if line.UnitPrice != "12.00" {
		t.Fatalf("expected catalog price 12.00, got %s", line.UnitPrice)
	}
}

func TestLinePriceMustResolve(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	customer, err := svc.CreateCustomer(ctx, domain.CustomerCreateRequest{Name: "Sokha Lim", Phone: "012-555-222"})
	if err != nil {
		t.Fatalf("create customer failed: %v", err)
	}

	// No explicit price and no catalog service to fall back on.
	_, err = svc.CreateServiceOrder(ctx, domain.OrderCreateRequest{
		CustomerID:      customer.ID,
		ItemDescription: "Suede boots",
		Lines: []domain.OrderLineRequest{
			{Description: "Mystery work", Qty: 1},
		},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for priceless line on create, got %v", err)
	}

	order := createOrderWithLine(t, svc, ctx)
	_, err = svc.AddServiceLine(ctx, order.ID, domain.OrderLineRequest{Description: "Mystery work", Qty: 1})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for priceless line on add, got %v", err)
	}

	// An explicit zero price is still a deliberate choice and stays valid.
	order, err = svc.AddServiceLine(ctx, order.ID, domain.OrderLineRequest{Description: "Goodwill touch-up", Qty: 1, UnitPrice: "0.00"})
	if err != nil {
		t.Fatalf("explicit zero price rejected: %v", err)
	}
	line := order.Lines[len(order.Lines)-1]
	if line.UnitPrice != "0.00" {
		t.Fatalf("expected explicit 0.00 price, got %s", line.UnitPrice)
	}
}

func TestUserManagementRequiresAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateUser(staffCtx(), domain.UserCreateRequest{Username: "newstaff", Password: "secret1"})
	if err == nil {
		t.Fatalf("expected staff user creation to be rejected")
	}

	view, err := svc.CreateUser(adminCtx(), domain.UserCreateRequest{Username: "NewStaff", Password: "secret1"})
	if err != nil {
		t.Fatalf("admin user creation failed: %v", err)
	}
	if view.Username != "newstaff" {
		t.Fatalf("expected lowercased username, got %s", view.Username)
	}
	if view.Role != domain.RoleStaff {
		t.Fatalf("expected default staff role, got %s", view.Role)
	}

	if err := svc.SetUserActive(adminCtx(), "newstaff", false); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
}

func TestSoftDeleteOrderRequiresAdmin(t *testing.T) {
	svc := newTestService()
	order := createOrderWithLine(t, svc, staffCtx())

	if err := svc.SoftDeleteServiceOrder(staffCtx(), order.ID); err == nil {
		t.Fatalf("expected staff delete to be rejected")
	}
	if err := svc.SoftDeleteServiceOrder(adminCtx(), order.ID); err != nil {
		t.Fatalf("admin delete failed: %v", err)
	}
	if _, err := svc.GetServiceOrder(context.Background(), order.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found after soft delete, got %v", err)
	}
}
