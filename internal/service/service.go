package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"soleworks/backend/internal/cache"
	"soleworks/backend/internal/domain"
	"soleworks/backend/internal/store"
	"soleworks/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo          store.Repository
	overviewCache cache.OverviewCache
	overviewTTL   time.Duration
}

func New(repo store.Repository, overviewCache cache.OverviewCache, overviewTTL time.Duration) *Service {
	if overviewCache == nil {
		overviewCache = cache.NoopOverviewCache{}
	}
	if overviewTTL <= 0 {
		overviewTTL = 30 * time.Second
	}

	return &Service{
		repo:          repo,
		overviewCache: overviewCache,
		overviewTTL:   overviewTTL,
	}
}

func (s *Service) requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.UserID == "" {
		return domain.Actor{}, fmt.Errorf("authentication required")
	}
	return actor, nil
}

func (s *Service) requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if actor.Role != domain.RoleAdmin {
		return domain.Actor{}, fmt.Errorf("admin role required")
	}
	return actor, nil
}

func overviewKey(customerID string) string {
	return "overview:" + customerID
}

func (s *Service) dropOverview(ctx context.Context, customerID string) {
	if customerID == "" {
		return
	}
	if err := s.overviewCache.Invalidate(ctx, overviewKey(customerID)); err != nil {
		log.Printf("[service] WARN: overview cache invalidate customer=%s: %v", customerID, err)
	}
}

// service orders

func (s *Service) CreateServiceOrder(ctx context.Context, req domain.OrderCreateRequest) (*domain.ServiceOrder, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	o, err := s.repo.CreateServiceOrder(ctx, req, actor.UserID)
	if err != nil {
		return nil, err
	}
	s.dropOverview(ctx, o.CustomerID)
	return o, nil
}

func (s *Service) GetServiceOrder(ctx context.Context, orderID string) (*domain.ServiceOrder, error) {
	return s.repo.GetServiceOrder(ctx, orderID)
}

func (s *Service) ListServiceOrders(ctx context.Context, status, customerID, q string, limit int) ([]domain.ServiceOrder, error) {
	return s.repo.ListServiceOrders(ctx, status, customerID, q, limit)
}

func (s *Service) UpdateServiceOrderHeader(ctx context.Context, orderID string, req domain.OrderHeaderUpdateRequest) (*domain.ServiceOrder, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	o, err := s.repo.UpdateServiceOrderHeader(ctx, orderID, req, actor.UserID)
	if err != nil {
		return nil, err
	}
	s.dropOverview(ctx, o.CustomerID)
	return o, nil
}

func (s *Service) AddServiceLine(ctx context.Context, orderID string, req domain.OrderLineRequest) (*domain.ServiceOrder, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	o, err := s.repo.AddServiceLine(ctx, orderID, req, actor.UserID)
	if err != nil {
		return nil, err
	}
	s.dropOverview(ctx, o.CustomerID)
	return o, nil
}

func (s *Service) RemoveServiceLine(ctx context.Context, orderID string, lineID string) (*domain.ServiceOrder, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	o, err := s.repo.RemoveServiceLine(ctx, orderID, lineID, actor.UserID)
	if err != nil {
		return nil, err
	}
	s.dropOverview(ctx, o.CustomerID)
	return o, nil
}

func (s *Service) AddServicePart(ctx context.Context, orderID string, req domain.OrderPartRequest) (*domain.ServiceOrder, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	o, err := s.repo.AddServicePart(ctx, orderID, req, actor.UserID)
	if err != nil {
		return nil, err
	}
	s.dropOverview(ctx, o.CustomerID)
	return o, nil
}

func (s *Service) RemoveServicePart(ctx context.Context, orderID string, partID string) (*domain.ServiceOrder, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	o, err := s.repo.RemoveServicePart(ctx, orderID, partID, actor.UserID)
	if err != nil {
		return nil, err
	}
	s.dropOverview(ctx, o.CustomerID)
	return o, nil
}

func (s *Service) SetServiceOrderStatus(ctx context.Context, orderID string, req domain.StatusRequest) (*domain.ServiceOrder, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	o, err := s.repo.SetServiceOrderStatus(ctx, orderID, req, actor.UserID)
	if err != nil {
		return nil, err
	}
	s.dropOverview(ctx, o.CustomerID)
	return o, nil
}

func (s *Service) MarkServiceOrderReady(ctx context.Context, orderID string, req domain.MarkReadyRequest) (*domain.ServiceOrder, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	o, err := s.repo.MarkServiceOrderReady(ctx, orderID, req, actor.UserID)
	if err != nil {
		return nil, err
	}
	s.dropOverview(ctx, o.CustomerID)
	return o, nil
}

func (s *Service) DeliverServiceOrder(ctx context.Context, orderID string, req domain.DeliverRequest) (*domain.ServiceOrder, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	o, err := s.repo.DeliverServiceOrder(ctx, orderID, req, actor.UserID)
	if err != nil {
		return nil, err
	}
	s.dropOverview(ctx, o.CustomerID)
	return o, nil
}

func (s *Service) ApplyServiceOrderDiscount(ctx context.Context, orderID string, req domain.DiscountRequest) (*domain.ServiceOrder, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	o, err := s.repo.ApplyServiceOrderDiscount(ctx, orderID, req, actor.UserID)
	if err != nil {
		return nil, err
	}
	s.dropOverview(ctx, o.CustomerID)
	return o, nil
}

func (s *Service) AddServiceOrderPayment(ctx context.Context, orderID string, req domain.PaymentRequest) (*domain.ServiceOrder, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	o, err := s.repo.AddServiceOrderPayment(ctx, orderID, req, actor.UserID)
	if err != nil {
		return nil, err
	}
	s.dropOverview(ctx, o.CustomerID)
	return o, nil
}

func (s *Service) RefundServiceOrderPayment(ctx context.Context, orderID string, req domain.RefundRequest) (*domain.ServiceOrder, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	o, err := s.repo.RefundServiceOrderPayment(ctx, orderID, req, actor.UserID)
	if err != nil {
		return nil, err
	}
	s.dropOverview(ctx, o.CustomerID)
	return o, nil
}

func (s *Service) SoftDeleteServiceOrder(ctx context.Context, orderID string) error {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return err
	}
	o, getErr := s.repo.GetServiceOrder(ctx, orderID)
	if err := s.repo.SoftDeleteServiceOrder(ctx, orderID, actor.UserID); err != nil {
		return err
	}
	if getErr == nil {
		s.dropOverview(ctx, o.CustomerID)
	}
	return nil
}

// customers

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (*domain.Customer, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}
	return s.repo.CreateCustomer(ctx, req)
}

func (s *Service) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	return s.repo.GetCustomer(ctx, customerID)
}

func (s *Service) ListCustomers(ctx context.Context, q string, limit int) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx, q, limit)
}

func (s *Service) UpdateCustomer(ctx context.Context, customerID string, req domain.CustomerUpdateRequest) (*domain.Customer, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}
	return s.repo.UpdateCustomer(ctx, customerID, req)
}

func (s *Service) SoftDeleteCustomer(ctx context.Context, customerID string) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.SoftDeleteCustomer(ctx, customerID); err != nil {
		return err
	}
	s.dropOverview(ctx, customerID)
	return nil
}

func (s *Service) GetCustomerOverview(ctx context.Context, customerID string) (*domain.CustomerOverview, error) {
	key := overviewKey(customerID)
	if cached, ok, err := s.overviewCache.Get(ctx, key); err != nil {
		log.Printf("[service] WARN: overview cache get customer=%s: %v", customerID, err)
	} else if ok {
		return cached, nil
	}

	ov, err := s.repo.GetCustomerOverview(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if err := s.overviewCache.Set(ctx, key, ov, s.overviewTTL); err != nil {
		log.Printf("[service] WARN: overview cache set customer=%s: %v", customerID, err)
	}
	return ov, nil
}

// repair-service catalog

func (s *Service) CreateRepairService(ctx context.Context, req domain.RepairServiceCreateRequest) (*domain.RepairService, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.CreateRepairService(ctx, req)
}

func (s *Service) GetRepairService(ctx context.Context, serviceID string) (*domain.RepairService, error) {
	return s.repo.GetRepairService(ctx, serviceID)
}

func (s *Service) ListRepairServices(ctx context.Context, q string, activeOnly bool, limit int) ([]domain.RepairService, error) {
	return s.repo.ListRepairServices(ctx, q, activeOnly, limit)
}

func (s *Service) UpdateRepairService(ctx context.Context, serviceID string, req domain.RepairServiceUpdateRequest) (*domain.RepairService, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.UpdateRepairService(ctx, serviceID, req)
}

func (s *Service) SoftDeleteRepairService(ctx context.Context, serviceID string) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.SoftDeleteRepairService(ctx, serviceID)
}

// inventory

func (s *Service) CreateItem(ctx context.Context, req domain.ItemCreateRequest) (*domain.Item, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.CreateItem(ctx, req)
}

func (s *Service) GetItem(ctx context.Context, itemID string) (*domain.Item, error) {
	return s.repo.GetItem(ctx, itemID)
}

func (s *Service) ListItems(ctx context.Context, q string, limit int) ([]domain.Item, error) {
	return s.repo.ListItems(ctx, q, limit)
}

func (s *Service) UpdateItem(ctx context.Context, itemID string, req domain.ItemUpdateRequest) (*domain.Item, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.UpdateItem(ctx, itemID, req)
}

func (s *Service) SoftDeleteItem(ctx context.Context, itemID string) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.SoftDeleteItem(ctx, itemID)
}

func (s *Service) AdjustItemStock(ctx context.Context, itemID string, req domain.StockAdjustRequest) (*domain.Item, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}
	return s.repo.AdjustItemStock(ctx, itemID, req)
}

func (s *Service) ListStockMovements(ctx context.Context, itemID string, limit int) ([]domain.StockMovement, error) {
	return s.repo.ListStockMovements(ctx, itemID, limit)
}

// suppliers and purchasing

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (*domain.Supplier, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}
	return s.repo.CreateSupplier(ctx, req)
}

func (s *Service) GetSupplier(ctx context.Context, supplierID string) (*domain.Supplier, error) {
	return s.repo.GetSupplier(ctx, supplierID)
}

func (s *Service) ListSuppliers(ctx context.Context, q string, limit int) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx, q, limit)
}

func (s *Service) UpdateSupplier(ctx context.Context, supplierID string, req domain.SupplierUpdateRequest) (*domain.Supplier, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}
	return s.repo.UpdateSupplier(ctx, supplierID, req)
}

func (s *Service) SoftDeleteSupplier(ctx context.Context, supplierID string) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.SoftDeleteSupplier(ctx, supplierID)
}

func (s *Service) CreatePurchase(ctx context.Context, req domain.PurchaseCreateRequest) (*domain.Purchase, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}
	return s.repo.CreatePurchase(ctx, req)
}

func (s *Service) GetPurchase(ctx context.Context, purchaseID string) (*domain.Purchase, error) {
	return s.repo.GetPurchase(ctx, purchaseID)
}

func (s *Service) ListPurchases(ctx context.Context, status string, limit int) ([]domain.Purchase, error) {
	return s.repo.ListPurchases(ctx, status, limit)
}

func (s *Service) UpdatePurchase(ctx context.Context, purchaseID string, req domain.PurchaseUpdateRequest) (*domain.Purchase, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}
	return s.repo.UpdatePurchase(ctx, purchaseID, req)
}

func (s *Service) ReceivePurchase(ctx context.Context, purchaseID string) (*domain.Purchase, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ReceivePurchase(ctx, purchaseID, actor.UserID)
}

func (s *Service) SoftDeletePurchase(ctx context.Context, purchaseID string) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.SoftDeletePurchase(ctx, purchaseID)
}

// staff

func (s *Service) CreateStaff(ctx context.Context, req domain.StaffCreateRequest) (*domain.Staff, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.CreateStaff(ctx, req)
}

func (s *Service) GetStaff(ctx context.Context, staffID string) (*domain.Staff, error) {
	return s.repo.GetStaff(ctx, staffID)
}

func (s *Service) ListStaff(ctx context.Context, q string, limit int) ([]domain.Staff, error) {
	return s.repo.ListStaff(ctx, q, limit)
}

func (s *Service) UpdateStaff(ctx context.Context, staffID string, req domain.StaffUpdateRequest) (*domain.Staff, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.UpdateStaff(ctx, staffID, req)
}

func (s *Service) SoftDeleteStaff(ctx context.Context, staffID string) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.SoftDeleteStaff(ctx, staffID)
}

// money ledgers

func (s *Service) CreateOtherIncome(ctx context.Context, req domain.OtherIncomeRequest) (*domain.OtherIncome, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}
	return s.repo.CreateOtherIncome(ctx, req)
}

func (s *Service) ListOtherIncome(ctx context.Context, limit int) ([]domain.OtherIncome, error) {
	return s.repo.ListOtherIncome(ctx, limit)
}

func (s *Service) SoftDeleteOtherIncome(ctx context.Context, incomeID string) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.SoftDeleteOtherIncome(ctx, incomeID)
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseRequest) (*domain.Expense, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}
	return s.repo.CreateExpense(ctx, req)
}

func (s *Service) ListExpenses(ctx context.Context, limit int) ([]domain.Expense, error) {
	return s.repo.ListExpenses(ctx, limit)
}

func (s *Service) SoftDeleteExpense(ctx context.Context, expenseID string) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.SoftDeleteExpense(ctx, expenseID)
}

func (s *Service) ListPayments(ctx context.Context, limit int) ([]domain.Payment, error) {
	return s.repo.ListPayments(ctx, limit)
}

func (s *Service) ListARTransactions(ctx context.Context, customerID string, limit int) ([]domain.ARTransaction, error) {
	return s.repo.ListARTransactions(ctx, customerID, limit)
}

func (s *Service) ListAuditLogs(ctx context.Context, entityType, entityID string, limit int) ([]domain.AuditLog, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, entityType, entityID, limit)
}

// user accounts

func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (*domain.UserView, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" || len(req.Password) < 6 {
		return nil, fmt.Errorf("%w: username and a password of at least 6 characters are required", store.ErrValidation)
	}
	role := req.Role
	if role == "" {
		role = domain.RoleStaff
	}
	if role != domain.RoleAdmin && role != domain.RoleStaff {
		return nil, fmt.Errorf("%w: role must be admin or staff", store.ErrValidation)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := domain.UserAccount{
		ID:       xid.New("usr"),
		Username: username,
		Password: string(hashed),
		Role:     role,
		Active:   true,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return &domain.UserView{ID: user.ID, Username: user.Username, Role: user.Role, Active: user.Active}, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.UserView, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	accounts, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]domain.UserView, 0, len(accounts))
	for _, u := range accounts {
		views = append(views, domain.UserView{ID: u.ID, Username: u.Username, Role: u.Role, Active: u.Active})
	}
	return views, nil
}

func (s *Service) SetUserActive(ctx context.Context, username string, active bool) error {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return err
	}
	if actor.Username == username && !active {
		return fmt.Errorf("%w: cannot deactivate your own account", store.ErrBusinessRule)
	}
	return s.repo.SetUserActive(ctx, username, active)
}

func (s *Service) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return err
	}
	if len(newPassword) < 6 {
		return fmt.Errorf("%w: password must be at least 6 characters", store.ErrValidation)
	}
	user, err := s.repo.GetUserByUsername(ctx, actor.Username)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(currentPassword)) != nil {
		return fmt.Errorf("%w: current password does not match", store.ErrValidation)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.repo.UpdateUserPassword(ctx, actor.Username, string(hashed))
}
