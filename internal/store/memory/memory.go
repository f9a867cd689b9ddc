package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"soleworks/backend/internal/domain"
	"soleworks/backend/internal/money"
	"soleworks/backend/internal/store"
	"soleworks/backend/internal/xid"
)

// Store is the in-memory Repository used in dev mode and unit tests.
// One mutex critical section per mutating call stands in for the
// postgres store's serializable transaction.
type Store struct {
	mu sync.RWMutex

	decimals int

	customers      map[string]*domain.Customer
	repairServices map[string]*domain.RepairService
	items          map[string]*domain.Item
	movements      map[string][]domain.StockMovement
	suppliers      map[string]*domain.Supplier
	purchases      map[string]*domain.Purchase
	staff          map[string]*domain.Staff
	otherIncome    map[string]*domain.OtherIncome
	expenses       map[string]*domain.Expense
	orders         map[string]*domain.ServiceOrder
	codeSeq        map[string]int
	arLedger       []domain.ARTransaction
	auditLogs      []domain.AuditLog
	users          map[string]domain.UserAccount
}

func New(decimals int) *Store {
	return &Store{
		decimals:       decimals,
		customers:      make(map[string]*domain.Customer),
		repairServices: make(map[string]*domain.RepairService),
		items:          make(map[string]*domain.Item),
		movements:      make(map[string][]domain.StockMovement),
		suppliers:      make(map[string]*domain.Supplier),
		purchases:      make(map[string]*domain.Purchase),
		staff:          make(map[string]*domain.Staff),
		otherIncome:    make(map[string]*domain.OtherIncome),
		expenses:       make(map[string]*domain.Expense),
		orders:         make(map[string]*domain.ServiceOrder),
		codeSeq:        make(map[string]int),
		arLedger:       make([]domain.ARTransaction, 0, 64),
		auditLogs:      make([]domain.AuditLog, 0, 128),
		users:          make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial accounts for dev/demo mode. Credentials
// come from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD; hardcoded dev
// defaults with a warning otherwise. Production deployments run on
// PostgreSQL (DATABASE_URL set) and never hit this path.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"staff", staffPwd, domain.RoleStaff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			ID:        xid.New("usr"),
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded(decimals int) *Store {
	s := New(decimals)
	s.users = seedUsers()
	now := time.Now().UTC()

	for _, svc := range []struct {
		name     string
		price    string
		duration int
	}{
		{"Sole replacement", "25.00", 5},
		{"Heel repair", "12.00", 3},
		{"Deep clean", "8.00", 2},
		{"Stitching", "10.00", 3},
		{"Polish and condition", "6.00", 1},
	} {
		id := xid.New("svc")
		s.repairServices[id] = &domain.RepairService{
			ID:           id,
			Name:         svc.name,
			DefaultPrice: s.canon(svc.price),
			DurationDays: svc.duration,
			Active:       true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}

	for _, it := range []struct {
		sku   string
		name  string
		unit  string
		cost  string
		price string
		stock int
	}{
		{"PRT-SOLE-01", "Rubber sole sheet", "sheet", "6.50", "11.00", 40},
		{"PRT-HEEL-01", "Heel cap pair", "pair", "1.80", "4.00", 60},
		{"PRT-LACE-01", "Leather laces", "pair", "0.90", "2.50", 80},
		{"PRT-GLUE-01", "Contact adhesive", "tube", "2.20", "5.00", 30},
	} {
		id := xid.New("item")
		s.items[id] = &domain.Item{
			ID:           id,
			SKU:          it.sku,
			Name:         it.name,
			Unit:         it.unit,
			Cost:         s.canon(it.cost),
			Price:        s.canon(it.price),
			ReorderLevel: 10,
			OnHand:       it.stock,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		s.movements[id] = []domain.StockMovement{{
			ID:        xid.New("mov"),
			ItemID:    id,
			Type:      domain.MovementIn,
			Qty:       it.stock,
			Note:      "opening stock",
			CreatedAt: now,
		}}
	}

	walkIn := &domain.Customer{
		ID:        xid.New("cust"),
		Name:      "Walk-in",
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.customers[walkIn.ID] = walkIn

	return s
}

// canon normalizes a decimal string to the store's currency scale.
func (s *Store) canon(v string) string {
	return money.MinorToDecimal(money.ToMinor(v, s.decimals), s.decimals)
}

func (s *Store) userByID(id string) (domain.UserAccount, bool) {
	for _, u := range s.users {
		if u.ID == id {
			return u, true
		}
	}
	return domain.UserAccount{}, false
}

// audit appends an audit row. Must be called with the write lock held.
func (s *Store) audit(actorID, action, entityType, entityID, detail string) {
	entry := domain.AuditLog{
		ID:         xid.New("aud"),
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}
	if u, ok := s.userByID(actorID); ok {
		entry.ActorUsername = u.Username
		entry.ActorRole = u.Role
	}
	s.auditLogs = append(s.auditLogs, entry)
}

func cloneOrder(o *domain.ServiceOrder) *domain.ServiceOrder {
	c := *o
	c.Lines = slices.Clone(o.Lines)
	c.Parts = slices.Clone(o.Parts)
	c.Payments = slices.Clone(o.Payments)
	c.History = slices.Clone(o.History)
	return &c
}

// recalc re-derives the money columns and payment status from the
// child collections. Never incremental.
func (s *Store) recalc(o *domain.ServiceOrder) {
	sub, disc, total := domain.ComputeTotals(o.Lines, o.Parts, o.Discount, s.decimals)
	o.SubTotal = money.MinorToDecimal(sub, s.decimals)
	o.Discount = money.MinorToDecimal(disc, s.decimals)
	o.Total = money.MinorToDecimal(total, s.decimals)
	paid := domain.PaidMinor(o.Payments, s.decimals)
	o.PaymentStatus = domain.DerivePaymentStatus(total, paid)
	o.UpdatedAt = time.Now().UTC()
}

func (s *Store) orderByID(orderID string) (*domain.ServiceOrder, error) {
	o, ok := s.orders[orderID]
	if !ok || o.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	return o, nil
}

// mutableOrder loads an order and rejects lifecycle mutations on
// terminal orders.
func (s *Store) mutableOrder(orderID string) (*domain.ServiceOrder, error) {
	o, err := s.orderByID(orderID)
	if err != nil {
		return nil, err
	}
	if domain.IsTerminal(o.Status) {
		return nil, fmt.Errorf("%w: order %s is %s", store.ErrBusinessRule, o.Code, o.Status)
	}
	return o, nil
}

func (s *Store) nextOrderCode(now time.Time) string {
	date := now.Format("20060102")
	for {
		s.codeSeq[date]++
		code := fmt.Sprintf("SR-%s-%04d", date, s.codeSeq[date])
		taken := false
		for _, o := range s.orders {
			if o.Code == code {
				taken = true
				break
			}
		}
		if !taken {
			return code
		}
	}
}

func normalizeMethod(method string) (string, error) {
	m := strings.ToUpper(strings.TrimSpace(method))
	if m == "" {
		return domain.MethodCash, nil
	}
	switch m {
	case domain.MethodCash, domain.MethodCard, domain.MethodTransfer, domain.MethodOther:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown payment method %q", store.ErrValidation, method)
}

func parsePromisedAt(v string) (*time.Time, error) {
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("%w: promised_at must be RFC 3339", store.ErrValidation)
	}
	t = t.UTC()
	return &t, nil
}

// buildLine resolves a line request against the repair-service catalog.
// Description and unit price fall back to the catalog entry when a
// service id is given.
func (s *Store) buildLine(orderID string, req domain.OrderLineRequest) (domain.ServiceLine, error) {
	if req.Qty < 1 {
		return domain.ServiceLine{}, fmt.Errorf("%w: line qty must be at least 1", store.ErrValidation)
	}
	desc := strings.TrimSpace(req.Description)
	price := strings.TrimSpace(req.UnitPrice)
	if req.RepairServiceID != "" {
		svc, ok := s.repairServices[req.RepairServiceID]
		if !ok || svc.DeletedAt != nil {
			return domain.ServiceLine{}, fmt.Errorf("%w: repair service not found", store.ErrValidation)
		}
		if desc == "" {
			desc = svc.Name
		}
		if price == "" {
			price = svc.DefaultPrice
		}
	}
	if desc == "" {
		return domain.ServiceLine{}, fmt.Errorf("%w: line description is required", store.ErrValidation)
	}
	if price == "" {
		return domain.ServiceLine{}, fmt.Errorf("%w: line unit price is required", store.ErrValidation)
	}
	unitMinor := money.ToMinor(price, s.decimals)
	if unitMinor < 0 {
		return domain.ServiceLine{}, fmt.Errorf("%w: line unit price must not be negative", store.ErrValidation)
	}
	return domain.ServiceLine{
		ID:              xid.New("line"),
		OrderID:         orderID,
		RepairServiceID: req.RepairServiceID,
		Description:     desc,
		Qty:             req.Qty,
		UnitPrice:       money.MinorToDecimal(unitMinor, s.decimals),
		LineTotal:       money.MinorToDecimal(int64(req.Qty)*unitMinor, s.decimals),
	}, nil
}

func (s *Store) CreateServiceOrder(_ context.Context, req domain.OrderCreateRequest, actorID string) (*domain.ServiceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cust, ok := s.customers[req.CustomerID]
	if !ok || cust.DeletedAt != nil {
		return nil, fmt.Errorf("%w: customer not found", store.ErrValidation)
	}
	if req.StaffID != "" {
		st, ok := s.staff[req.StaffID]
		if !ok || st.DeletedAt != nil {
			return nil, fmt.Errorf("%w: staff not found", store.ErrValidation)
		}
	}
	pairCount := req.PairCount
	if pairCount == 0 {
		pairCount = 1
	}
	if pairCount < 1 {
		return nil, fmt.Errorf("%w: pair count must be at least 1", store.ErrValidation)
	}
	promisedAt, err := parsePromisedAt(req.PromisedAt)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	o := &domain.ServiceOrder{
		ID:              xid.New("ord"),
		Code:            s.nextOrderCode(now),
		CustomerID:      req.CustomerID,
		StaffID:         req.StaffID,
		ItemDescription: strings.TrimSpace(req.ItemDescription),
		Brand:           strings.TrimSpace(req.Brand),
		Color:           strings.TrimSpace(req.Color),
		Problem:         strings.TrimSpace(req.Problem),
		Notes:           strings.TrimSpace(req.Notes),
		Urgent:          req.Urgent,
		PairCount:       pairCount,
		ReceivedAt:      now,
		PromisedAt:      promisedAt,
		Status:          domain.StatusReceived,
		Discount:        money.MinorToDecimal(0, s.decimals),
		Lines:           []domain.ServiceLine{},
		Parts:           []domain.ServicePart{},
		Payments:        []domain.Payment{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	for _, lr := range req.Lines {
		line, err := s.buildLine(o.ID, lr)
		if err != nil {
			return nil, err
		}
		o.Lines = append(o.Lines, line)
	}

	o.History = []domain.StatusHistoryEntry{{
		ID:        xid.New("hist"),
		OrderID:   o.ID,
		ToStatus:  domain.StatusReceived,
		Note:      "order created",
		ChangedBy: actorID,
		CreatedAt: now,
	}}

	if req.Deposit != nil {
		amt := money.ToMinor(req.Deposit.Amount, s.decimals)
		if amt <= 0 {
			return nil, fmt.Errorf("%w: deposit amount must be positive", store.ErrValidation)
		}
		method, err := normalizeMethod(req.Deposit.Method)
		if err != nil {
			return nil, err
		}
		p := domain.Payment{
			ID:         xid.New("pay"),
			OrderID:    o.ID,
			Amount:     money.MinorToDecimal(amt, s.decimals),
			Method:     method,
			Reference:  req.Deposit.Reference,
			Note:       req.Deposit.Note,
			ReceivedBy: actorID,
			CreatedAt:  now,
		}
		o.Payments = append(o.Payments, p)
		s.arLedger = append(s.arLedger, domain.ARTransaction{
			ID:         xid.New("ar"),
			CustomerID: o.CustomerID,
			OrderID:    o.ID,
			Type:       domain.ARPayment,
			Amount:     p.Amount,
			Note:       "deposit on " + o.Code,
			CreatedAt:  now,
		})
	}

	s.recalc(o)
	s.orders[o.ID] = o
	s.audit(actorID, "service_order.create", "service_order", o.ID, o.Code)
	return cloneOrder(o), nil
}

func (s *Store) GetServiceOrder(_ context.Context, orderID string) (*domain.ServiceOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, err := s.orderByID(orderID)
	if err != nil {
		return nil, err
	}
	return cloneOrder(o), nil
}

func (s *Store) ListServiceOrders(_ context.Context, status string, customerID string, q string, limit int) ([]domain.ServiceOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q = strings.ToLower(strings.TrimSpace(q))
	out := make([]domain.ServiceOrder, 0, len(s.orders))
	for _, o := range s.orders {
		if o.DeletedAt != nil {
			continue
		}
		if status != "" && o.Status != status {
			continue
		}
		if customerID != "" && o.CustomerID != customerID {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(o.Code), q) &&
			!strings.Contains(strings.ToLower(o.ItemDescription), q) &&
			!strings.Contains(strings.ToLower(o.Brand), q) {
			continue
		}
		out = append(out, *cloneOrder(o))
	}
	slices.SortFunc(out, func(a, b domain.ServiceOrder) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return capped(out, limit), nil
}

func (s *Store) UpdateServiceOrderHeader(_ context.Context, orderID string, req domain.OrderHeaderUpdateRequest, actorID string) (*domain.ServiceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.mutableOrder(orderID)
	if err != nil {
		return nil, err
	}
	if req.CustomerID != nil {
		cust, ok := s.customers[*req.CustomerID]
		if !ok || cust.DeletedAt != nil {
			return nil, fmt.Errorf("%w: customer not found", store.ErrValidation)
		}
		o.CustomerID = *req.CustomerID
	}
	if req.StaffID != nil {
		if *req.StaffID != "" {
			st, ok := s.staff[*req.StaffID]
			if !ok || st.DeletedAt != nil {
				return nil, fmt.Errorf("%w: staff not found", store.ErrValidation)
			}
		}
		o.StaffID = *req.StaffID
	}
	if req.ItemDescription != nil {
		o.ItemDescription = strings.TrimSpace(*req.ItemDescription)
	}
	if req.Brand != nil {
		o.Brand = strings.TrimSpace(*req.Brand)
	}
	if req.Color != nil {
		o.Color = strings.TrimSpace(*req.Color)
	}
	if req.Problem != nil {
		o.Problem = strings.TrimSpace(*req.Problem)
	}
	if req.Notes != nil {
		o.Notes = strings.TrimSpace(*req.Notes)
	}
	if req.Urgent != nil {
		o.Urgent = *req.Urgent
	}
	if req.PairCount != nil {
		if *req.PairCount < 1 {
			return nil, fmt.Errorf("%w: pair count must be at least 1", store.ErrValidation)
		}
		o.PairCount = *req.PairCount
	}
	if req.PromisedAt != nil {
		promisedAt, err := parsePromisedAt(*req.PromisedAt)
		if err != nil {
			return nil, err
		}
		o.PromisedAt = promisedAt
	}
	o.UpdatedAt = time.Now().UTC()
	s.audit(actorID, "service_order.update", "service_order", o.ID, o.Code)
	return cloneOrder(o), nil
}

func (s *Store) AddServiceLine(_ context.Context, orderID string, req domain.OrderLineRequest, actorID string) (*domain.ServiceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.mutableOrder(orderID)
	if err != nil {
		return nil, err
	}
	line, err := s.buildLine(o.ID, req)
	if err != nil {
		return nil, err
	}
	o.Lines = append(o.Lines, line)
	s.recalc(o)
	s.audit(actorID, "service_order.line_add", "service_order", o.ID, line.Description)
	return cloneOrder(o), nil
}

func (s *Store) RemoveServiceLine(_ context.Context, orderID string, lineID string, actorID string) (*domain.ServiceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.mutableOrder(orderID)
	if err != nil {
		return nil, err
	}
	idx := slices.IndexFunc(o.Lines, func(l domain.ServiceLine) bool { return l.ID == lineID })
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	removed := o.Lines[idx]
	o.Lines = slices.Delete(o.Lines, idx, idx+1)
	s.recalc(o)
	s.audit(actorID, "service_order.line_remove", "service_order", o.ID, removed.Description)
	return cloneOrder(o), nil
}

func (s *Store) AddServicePart(_ context.Context, orderID string, req domain.OrderPartRequest, actorID string) (*domain.ServiceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.mutableOrder(orderID)
	if err != nil {
		return nil, err
	}
	item, ok := s.items[req.ItemID]
	if !ok || item.DeletedAt != nil {
		return nil, fmt.Errorf("%w: item not found", store.ErrValidation)
	}
	if req.Qty < 1 {
		return nil, fmt.Errorf("%w: part qty must be at least 1", store.ErrValidation)
	}
	price := strings.TrimSpace(req.UnitPrice)
	if price == "" {
		price = item.Price
	}
	unitMinor := money.ToMinor(price, s.decimals)
	if unitMinor < 0 {
		return nil, fmt.Errorf("%w: part unit price must not be negative", store.ErrValidation)
	}

	now := time.Now().UTC()
	part := domain.ServicePart{
		ID:        xid.New("part"),
		OrderID:   o.ID,
		ItemID:    item.ID,
		Qty:       req.Qty,
		UnitPrice: money.MinorToDecimal(unitMinor, s.decimals),
		LineTotal: money.MinorToDecimal(int64(req.Qty)*unitMinor, s.decimals),
	}
	o.Parts = append(o.Parts, part)

	// Stock leaves inventory the moment the part is attached. Removal
	// of the part does not restore it.
	item.OnHand -= req.Qty
	item.UpdatedAt = now
	s.movements[item.ID] = append(s.movements[item.ID], domain.StockMovement{
		ID:        xid.New("mov"),
		ItemID:    item.ID,
		Type:      domain.MovementServiceOut,
		Qty:       -req.Qty,
		Note:      "used on " + o.Code,
		RefType:   "service_order",
		RefID:     o.ID,
		CreatedAt: now,
	})

	s.recalc(o)
	s.audit(actorID, "service_order.part_add", "service_order", o.ID, item.SKU)
	return cloneOrder(o), nil
}

func (s *Store) RemoveServicePart(_ context.Context, orderID string, partID string, actorID string) (*domain.ServiceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.mutableOrder(orderID)
	if err != nil {
		return nil, err
	}
	idx := slices.IndexFunc(o.Parts, func(p domain.ServicePart) bool { return p.ID == partID })
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	removed := o.Parts[idx]
	o.Parts = slices.Delete(o.Parts, idx, idx+1)
	s.recalc(o)
	s.audit(actorID, "service_order.part_remove", "service_order", o.ID, removed.ItemID)
	return cloneOrder(o), nil
}

func (s *Store) SetServiceOrderStatus(_ context.Context, orderID string, req domain.StatusRequest, actorID string) (*domain.ServiceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.orderByID(orderID)
	if err != nil {
		return nil, err
	}
	target := strings.ToUpper(strings.TrimSpace(req.Status))
	if !domain.KnownStatus(target) {
		return nil, fmt.Errorf("%w: unknown status %q", store.ErrValidation, req.Status)
	}
	if !domain.GenericStatusTarget(target) {
		return nil, fmt.Errorf("%w: status %s has a dedicated operation", store.ErrValidation, target)
	}
	if domain.IsTerminal(o.Status) {
		return nil, fmt.Errorf("%w: order %s is %s", store.ErrBusinessRule, o.Code, o.Status)
	}
	if !domain.ValidTransition(o.Status, target) {
		return nil, fmt.Errorf("%w: cannot move %s from %s to %s", store.ErrBusinessRule, o.Code, o.Status, target)
	}

	s.applyStatus(o, target, req.Note, actorID)
	s.audit(actorID, "service_order.status", "service_order", o.ID, o.Status)
	return cloneOrder(o), nil
}

// applyStatus performs the status write plus its append-only history
// entry. Must be called with the write lock held and the transition
// already validated.
func (s *Store) applyStatus(o *domain.ServiceOrder, target, note, actorID string) {
	now := time.Now().UTC()
	o.History = append(o.History, domain.StatusHistoryEntry{
		ID:         xid.New("hist"),
		OrderID:    o.ID,
		FromStatus: o.Status,
		ToStatus:   target,
		Note:       note,
		ChangedBy:  actorID,
		CreatedAt:  now,
	})
	o.Status = target
	o.UpdatedAt = now
}

func (s *Store) MarkServiceOrderReady(_ context.Context, orderID string, req domain.MarkReadyRequest, actorID string) (*domain.ServiceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.mutableOrder(orderID)
	if err != nil {
		return nil, err
	}
	if !domain.ValidTransition(o.Status, domain.StatusReady) {
		return nil, fmt.Errorf("%w: cannot mark %s ready from %s", store.ErrBusinessRule, o.Code, o.Status)
	}
	if req.Discount != nil {
		if money.ToMinor(*req.Discount, s.decimals) < 0 {
			return nil, fmt.Errorf("%w: discount must not be negative", store.ErrValidation)
		}
		o.Discount = *req.Discount
	}
	s.recalc(o)

	// One-time AR charge on the first transition to READY.
	charged := slices.ContainsFunc(s.arLedger, func(ar domain.ARTransaction) bool {
		return ar.OrderID == o.ID && ar.Type == domain.ARCharge
	})
	if !charged {
		s.arLedger = append(s.arLedger, domain.ARTransaction{
			ID:         xid.New("ar"),
			CustomerID: o.CustomerID,
			OrderID:    o.ID,
			Type:       domain.ARCharge,
			Amount:     o.Total,
			Note:       "charge for " + o.Code,
			CreatedAt:  time.Now().UTC(),
		})
	}

	s.applyStatus(o, domain.StatusReady, req.Note, actorID)
	s.audit(actorID, "service_order.ready", "service_order", o.ID, o.Total)
	return cloneOrder(o), nil
}

func (s *Store) DeliverServiceOrder(_ context.Context, orderID string, req domain.DeliverRequest, actorID string) (*domain.ServiceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.orderByID(orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != domain.StatusReady {
		return nil, fmt.Errorf("%w: order %s must be READY to deliver, is %s", store.ErrBusinessRule, o.Code, o.Status)
	}
	// Re-derive under the lock so the paid guard never trusts a stale field.
	s.recalc(o)
	if o.PaymentStatus != domain.PayPaid {
		return nil, fmt.Errorf("%w: order %s is not fully paid", store.ErrBusinessRule, o.Code)
	}

	s.applyStatus(o, domain.StatusDelivered, req.Note, actorID)
	now := o.UpdatedAt
	o.DeliveredAt = &now
	s.audit(actorID, "service_order.deliver", "service_order", o.ID, o.Code)
	return cloneOrder(o), nil
}

func (s *Store) ApplyServiceOrderDiscount(_ context.Context, orderID string, req domain.DiscountRequest, actorID string) (*domain.ServiceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.mutableOrder(orderID)
	if err != nil {
		return nil, err
	}
	if money.ToMinor(req.Discount, s.decimals) < 0 {
		return nil, fmt.Errorf("%w: discount must not be negative", store.ErrValidation)
	}
	o.Discount = req.Discount
	s.recalc(o)
	s.audit(actorID, "service_order.discount", "service_order", o.ID, o.Discount)
	return cloneOrder(o), nil
}

func (s *Store) AddServiceOrderPayment(_ context.Context, orderID string, req domain.PaymentRequest, actorID string) (*domain.ServiceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.mutableOrder(orderID)
	if err != nil {
		return nil, err
	}
	amt := money.ToMinor(req.Amount, s.decimals)
	if amt <= 0 {
		return nil, fmt.Errorf("%w: payment amount must be positive", store.ErrValidation)
	}
	method, err := normalizeMethod(req.Method)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p := domain.Payment{
		ID:         xid.New("pay"),
		OrderID:    o.ID,
		Amount:     money.MinorToDecimal(amt, s.decimals),
		Method:     method,
		Reference:  req.Reference,
		Note:       req.Note,
		ReceivedBy: actorID,
		CreatedAt:  now,
	}
	o.Payments = append(o.Payments, p)
	s.recalc(o)
	s.arLedger = append(s.arLedger, domain.ARTransaction{
		ID:         xid.New("ar"),
		CustomerID: o.CustomerID,
		OrderID:    o.ID,
		Type:       domain.ARPayment,
		Amount:     p.Amount,
		Note:       "payment on " + o.Code,
		CreatedAt:  now,
	})
	s.audit(actorID, "service_order.payment", "service_order", o.ID, p.Amount)
	return cloneOrder(o), nil
}

func (s *Store) RefundServiceOrderPayment(_ context.Context, orderID string, req domain.RefundRequest, actorID string) (*domain.ServiceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.mutableOrder(orderID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, fmt.Errorf("%w: refund reason is required", store.ErrValidation)
	}
	idx := slices.IndexFunc(o.Payments, func(p domain.Payment) bool { return p.ID == req.PaymentID })
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	orig := o.Payments[idx]
	origMinor := money.ToMinor(orig.Amount, s.decimals)
	if origMinor <= 0 {
		return nil, fmt.Errorf("%w: cannot refund a refund entry", store.ErrBusinessRule)
	}
	amt := origMinor
	if strings.TrimSpace(req.Amount) != "" {
		amt = money.ToMinor(req.Amount, s.decimals)
	}
	if amt <= 0 {
		return nil, fmt.Errorf("%w: refund amount must be positive", store.ErrValidation)
	}
	if amt > origMinor {
		return nil, fmt.Errorf("%w: refund exceeds original payment", store.ErrBusinessRule)
	}

	now := time.Now().UTC()
	refund := domain.Payment{
		ID:         xid.New("pay"),
		OrderID:    o.ID,
		Amount:     money.MinorToDecimal(-amt, s.decimals),
		Method:     orig.Method,
		Note:       "REFUND: " + req.Reason,
		ReceivedBy: actorID,
		CreatedAt:  now,
	}
	o.Payments = append(o.Payments, refund)
	s.recalc(o)
	s.arLedger = append(s.arLedger, domain.ARTransaction{
		ID:         xid.New("ar"),
		CustomerID: o.CustomerID,
		OrderID:    o.ID,
		Type:       domain.ARRefund,
		Amount:     refund.Amount,
		Note:       "refund on " + o.Code + ": " + req.Reason,
		CreatedAt:  now,
	})
	s.audit(actorID, "service_order.refund", "service_order", o.ID, refund.Amount)
	return cloneOrder(o), nil
}

func (s *Store) SoftDeleteServiceOrder(_ context.Context, orderID string, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.orderByID(orderID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	o.DeletedAt = &now
	o.UpdatedAt = now
	s.audit(actorID, "service_order.delete", "service_order", o.ID, o.Code)
	return nil
}
