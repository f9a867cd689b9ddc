package store

import (
	"context"
	"errors"

	"soleworks/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("invalid input")
	ErrBusinessRule = errors.New("business rule violation")
)

// Repository is the persistence contract. Every mutating service-order
// operation executes as a single atomic unit: the postgres store runs
// one serializable transaction, the memory store one mutex critical
// section. actorID is the id of the authenticated user performing the
// mutation; it lands in status history, payments and audit rows.
type Repository interface {
	// service-order lifecycle
	CreateServiceOrder(ctx context.Context, req domain.OrderCreateRequest, actorID string) (*domain.ServiceOrder, error)
	GetServiceOrder(ctx context.Context, orderID string) (*domain.ServiceOrder, error)
	ListServiceOrders(ctx context.Context, status string, customerID string, q string, limit int) ([]domain.ServiceOrder, error)
	UpdateServiceOrderHeader(ctx context.Context, orderID string, req domain.OrderHeaderUpdateRequest, actorID string) (*domain.ServiceOrder, error)
	AddServiceLine(ctx context.Context, orderID string, req domain.OrderLineRequest, actorID string) (*domain.ServiceOrder, error)
	RemoveServiceLine(ctx context.Context, orderID string, lineID string, actorID string) (*domain.ServiceOrder, error)
	AddServicePart(ctx context.Context, orderID string, req domain.OrderPartRequest, actorID string) (*domain.ServiceOrder, error)
	RemoveServicePart(ctx context.Context, orderID string, partID string, actorID string) (*domain.ServiceOrder, error)
	SetServiceOrderStatus(ctx context.Context, orderID string, req domain.StatusRequest, actorID string) (*domain.ServiceOrder, error)
	MarkServiceOrderReady(ctx context.Context, orderID string, req domain.MarkReadyRequest, actorID string) (*domain.ServiceOrder, error)
	DeliverServiceOrder(ctx context.Context, orderID string, req domain.DeliverRequest, actorID string) (*domain.ServiceOrder, error)
	ApplyServiceOrderDiscount(ctx context.Context, orderID string, req domain.DiscountRequest, actorID string) (*domain.ServiceOrder, error)
	AddServiceOrderPayment(ctx context.Context, orderID string, req domain.PaymentRequest, actorID string) (*domain.ServiceOrder, error)
	RefundServiceOrderPayment(ctx context.Context, orderID string, req domain.RefundRequest, actorID string) (*domain.ServiceOrder, error)
	SoftDeleteServiceOrder(ctx context.Context, orderID string, actorID string) error

	// customers
	CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (*domain.Customer, error)
	GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error)
	ListCustomers(ctx context.Context, q string, limit int) ([]domain.Customer, error)
	UpdateCustomer(ctx context.Context, customerID string, req domain.CustomerUpdateRequest) (*domain.Customer, error)
	SoftDeleteCustomer(ctx context.Context, customerID string) error
	GetCustomerOverview(ctx context.Context, customerID string) (*domain.CustomerOverview, error)

	// repair-service catalog
	CreateRepairService(ctx context.Context, req domain.RepairServiceCreateRequest) (*domain.RepairService, error)
	GetRepairService(ctx context.Context, serviceID string) (*domain.RepairService, error)
	ListRepairServices(ctx context.Context, q string, activeOnly bool, limit int) ([]domain.RepairService, error)
	UpdateRepairService(ctx context.Context, serviceID string, req domain.RepairServiceUpdateRequest) (*domain.RepairService, error)
	SoftDeleteRepairService(ctx context.Context, serviceID string) error

	// inventory items + stock ledger
	CreateItem(ctx context.Context, req domain.ItemCreateRequest) (*domain.Item, error)
	GetItem(ctx context.Context, itemID string) (*domain.Item, error)
	ListItems(ctx context.Context, q string, limit int) ([]domain.Item, error)
	UpdateItem(ctx context.Context, itemID string, req domain.ItemUpdateRequest) (*domain.Item, error)
	SoftDeleteItem(ctx context.Context, itemID string) error
	AdjustItemStock(ctx context.Context, itemID string, req domain.StockAdjustRequest) (*domain.Item, error)
	ListStockMovements(ctx context.Context, itemID string, limit int) ([]domain.StockMovement, error)

	// suppliers
	CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (*domain.Supplier, error)
	GetSupplier(ctx context.Context, supplierID string) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context, q string, limit int) ([]domain.Supplier, error)
	UpdateSupplier(ctx context.Context, supplierID string, req domain.SupplierUpdateRequest) (*domain.Supplier, error)
	SoftDeleteSupplier(ctx context.Context, supplierID string) error

	// purchases
	CreatePurchase(ctx context.Context, req domain.PurchaseCreateRequest) (*domain.Purchase, error)
	GetPurchase(ctx context.Context, purchaseID string) (*domain.Purchase, error)
	ListPurchases(ctx context.Context, status string, limit int) ([]domain.Purchase, error)
	UpdatePurchase(ctx context.Context, purchaseID string, req domain.PurchaseUpdateRequest) (*domain.Purchase, error)
	ReceivePurchase(ctx context.Context, purchaseID string, actorID string) (*domain.Purchase, error)
	SoftDeletePurchase(ctx context.Context, purchaseID string) error

	// staff
	CreateStaff(ctx context.Context, req domain.StaffCreateRequest) (*domain.Staff, error)
	GetStaff(ctx context.Context, staffID string) (*domain.Staff, error)
	ListStaff(ctx context.Context, q string, limit int) ([]domain.Staff, error)
	UpdateStaff(ctx context.Context, staffID string, req domain.StaffUpdateRequest) (*domain.Staff, error)
	SoftDeleteStaff(ctx context.Context, staffID string) error

	// money ledgers
	CreateOtherIncome(ctx context.Context, req domain.OtherIncomeRequest) (*domain.OtherIncome, error)
	ListOtherIncome(ctx context.Context, limit int) ([]domain.OtherIncome, error)
	SoftDeleteOtherIncome(ctx context.Context, incomeID string) error
	CreateExpense(ctx context.Context, req domain.ExpenseRequest) (*domain.Expense, error)
	ListExpenses(ctx context.Context, limit int) ([]domain.Expense, error)
	SoftDeleteExpense(ctx context.Context, expenseID string) error

	// cross-order ledgers
	ListPayments(ctx context.Context, limit int) ([]domain.Payment, error)
	ListARTransactions(ctx context.Context, customerID string, limit int) ([]domain.ARTransaction, error)
	ListAuditLogs(ctx context.Context, entityType string, entityID string, limit int) ([]domain.AuditLog, error)

	// users
	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
	SetUserActive(ctx context.Context, username string, active bool) error
}
