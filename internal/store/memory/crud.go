package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"soleworks/backend/internal/domain"
	"soleworks/backend/internal/money"
	"soleworks/backend/internal/store"
	"soleworks/backend/internal/xid"
)

func capped[T any](items []T, limit int) []T {
	if limit <= 0 {
		limit = 100
	}
	if len(items) > limit {
		return items[:limit]
	}
	return items
}

func matches(q string, fields ...string) bool {
	if q == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

func parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Now().UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: date must be RFC 3339 or YYYY-MM-DD", store.ErrValidation)
}

// customers

func (s *Store) CreateCustomer(_ context.Context, req domain.CustomerCreateRequest) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: customer name is required", store.ErrValidation)
	}
	now := time.Now().UTC()
	c := &domain.Customer{
		ID:        xid.New("cust"),
		Name:      strings.TrimSpace(req.Name),
		Phone:     strings.TrimSpace(req.Phone),
		Email:     strings.TrimSpace(req.Email),
		Address:   strings.TrimSpace(req.Address),
		Notes:     strings.TrimSpace(req.Notes),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.customers[c.ID] = c
	created := *c
	return &created, nil
}

func (s *Store) GetCustomer(_ context.Context, customerID string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[customerID]
	if !ok || c.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	found := *c
	return &found, nil
}

func (s *Store) ListCustomers(_ context.Context, q string, limit int) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q = strings.ToLower(strings.TrimSpace(q))
	out := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		if c.DeletedAt != nil || !matches(q, c.Name, c.Phone, c.Email) {
			continue
		}
		out = append(out, *c)
	}
	slices.SortFunc(out, func(a, b domain.Customer) int { return strings.Compare(a.Name, b.Name) })
	return capped(out, limit), nil
}

func (s *Store) UpdateCustomer(_ context.Context, customerID string, req domain.CustomerUpdateRequest) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customers[customerID]
	if !ok || c.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, fmt.Errorf("%w: customer name is required", store.ErrValidation)
		}
		c.Name = strings.TrimSpace(*req.Name)
	}
	if req.Phone != nil {
		c.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Email != nil {
		c.Email = strings.TrimSpace(*req.Email)
	}
	if req.Address != nil {
		c.Address = strings.TrimSpace(*req.Address)
	}
	if req.Notes != nil {
		c.Notes = strings.TrimSpace(*req.Notes)
	}
	c.UpdatedAt = time.Now().UTC()
	updated := *c
	return &updated, nil
}

func (s *Store) SoftDeleteCustomer(_ context.Context, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customers[customerID]
	if !ok || c.DeletedAt != nil {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	c.DeletedAt = &now
	c.UpdatedAt = now
	return nil
}

func (s *Store) GetCustomerOverview(_ context.Context, customerID string) (*domain.CustomerOverview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[customerID]
	if !ok || c.DeletedAt != nil {
		return nil, store.ErrNotFound
	}

	var spentMinor, paidMinor int64
	var lastVisit *time.Time
	count := 0
	for _, o := range s.orders {
		if o.DeletedAt != nil || o.CustomerID != customerID {
			continue
		}
		count++
		if o.Status != domain.StatusCancelled {
			spentMinor += money.ToMinor(o.Total, s.decimals)
		}
		paidMinor += domain.PaidMinor(o.Payments, s.decimals)
		if lastVisit == nil || o.CreatedAt.After(*lastVisit) {
			v := o.CreatedAt
			lastVisit = &v
		}
	}

	return &domain.CustomerOverview{
		CustomerID:  customerID,
		TicketCount: count,
		TotalSpent:  money.MinorToDecimal(spentMinor, s.decimals),
		TotalPaid:   money.MinorToDecimal(paidMinor, s.decimals),
		Outstanding: money.MinorToDecimal(money.ClampNonNegative(spentMinor-paidMinor), s.decimals),
		LastVisit:   lastVisit,
		Repeat:      count >= 2,
	}, nil
}

// repair-service catalog

func (s *Store) CreateRepairService(_ context.Context, req domain.RepairServiceCreateRequest) (*domain.RepairService, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: service name is required", store.ErrValidation)
	}
	if money.ToMinor(req.DefaultPrice, s.decimals) < 0 {
		return nil, fmt.Errorf("%w: default price must not be negative", store.ErrValidation)
	}
	now := time.Now().UTC()
	svc := &domain.RepairService{
		ID:           xid.New("svc"),
		Name:         strings.TrimSpace(req.Name),
		Description:  strings.TrimSpace(req.Description),
		DefaultPrice: s.canon(req.DefaultPrice),
		DurationDays: req.DurationDays,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.repairServices[svc.ID] = svc
	created := *svc
	return &created, nil
}

func (s *Store) GetRepairService(_ context.Context, serviceID string) (*domain.RepairService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	svc, ok := s.repairServices[serviceID]
	if !ok || svc.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	found := *svc
	return &found, nil
}

func (s *Store) ListRepairServices(_ context.Context, q string, activeOnly bool, limit int) ([]domain.RepairService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q = strings.ToLower(strings.TrimSpace(q))
	out := make([]domain.RepairService, 0, len(s.repairServices))
	for _, svc := range s.repairServices {
		if svc.DeletedAt != nil || (activeOnly && !svc.Active) || !matches(q, svc.Name, svc.Description) {
			continue
		}
		out = append(out, *svc)
	}
	slices.SortFunc(out, func(a, b domain.RepairService) int { return strings.Compare(a.Name, b.Name) })
	return capped(out, limit), nil
}

func (s *Store) UpdateRepairService(_ context.Context, serviceID string, req domain.RepairServiceUpdateRequest) (*domain.RepairService, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.repairServices[serviceID]
	if !ok || svc.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, fmt.Errorf("%w: service name is required", store.ErrValidation)
		}
		svc.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		svc.Description = strings.TrimSpace(*req.Description)
	}
	if req.DefaultPrice != nil {
		if money.ToMinor(*req.DefaultPrice, s.decimals) < 0 {
			return nil, fmt.Errorf("%w: default price must not be negative", store.ErrValidation)
		}
		svc.DefaultPrice = s.canon(*req.DefaultPrice)
	}
	if req.DurationDays != nil {
		svc.DurationDays = *req.DurationDays
	}
	if req.Active != nil {
		svc.Active = *req.Active
	}
	svc.UpdatedAt = time.Now().UTC()
	updated := *svc
	return &updated, nil
}

func (s *Store) SoftDeleteRepairService(_ context.Context, serviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.repairServices[serviceID]
	if !ok || svc.DeletedAt != nil {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	svc.DeletedAt = &now
	svc.UpdatedAt = now
	return nil
}

// inventory items

func (s *Store) CreateItem(_ context.Context, req domain.ItemCreateRequest) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(req.SKU) == "" || strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: item sku and name are required", store.ErrValidation)
	}
	for _, it := range s.items {
		if it.DeletedAt == nil && it.SKU == req.SKU {
			return nil, fmt.Errorf("%w: sku already exists", store.ErrValidation)
		}
	}
	if money.ToMinor(req.Cost, s.decimals) < 0 || money.ToMinor(req.Price, s.decimals) < 0 {
		return nil, fmt.Errorf("%w: cost and price must not be negative", store.ErrValidation)
	}
	if req.InitialStock < 0 {
		return nil, fmt.Errorf("%w: initial stock must not be negative", store.ErrValidation)
	}

	now := time.Now().UTC()
	it := &domain.Item{
		ID:           xid.New("item"),
		SKU:          strings.TrimSpace(req.SKU),
		Barcode:      strings.TrimSpace(req.Barcode),
		Name:         strings.TrimSpace(req.Name),
		Unit:         strings.TrimSpace(req.Unit),
		Cost:         s.canon(req.Cost),
		Price:        s.canon(req.Price),
		ReorderLevel: req.ReorderLevel,
		OnHand:       req.InitialStock,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.items[it.ID] = it
	if req.InitialStock > 0 {
		s.movements[it.ID] = append(s.movements[it.ID], domain.StockMovement{
			ID:        xid.New("mov"),
			ItemID:    it.ID,
			Type:      domain.MovementIn,
			Qty:       req.InitialStock,
			Note:      "opening stock",
			CreatedAt: now,
		})
	}
	created := *it
	return &created, nil
}

func (s *Store) GetItem(_ context.Context, itemID string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.items[itemID]
	if !ok || it.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	found := *it
	return &found, nil
}

func (s *Store) ListItems(_ context.Context, q string, limit int) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q = strings.ToLower(strings.TrimSpace(q))
	out := make([]domain.Item, 0, len(s.items))
	for _, it := range s.items {
		if it.DeletedAt != nil || !matches(q, it.SKU, it.Barcode, it.Name) {
			continue
		}
		out = append(out, *it)
	}
	slices.SortFunc(out, func(a, b domain.Item) int { return strings.Compare(a.Name, b.Name) })
	return capped(out, limit), nil
}

func (s *Store) UpdateItem(_ context.Context, itemID string, req domain.ItemUpdateRequest) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[itemID]
	if !ok || it.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	if req.SKU != nil {
		sku := strings.TrimSpace(*req.SKU)
		if sku == "" {
			return nil, fmt.Errorf("%w: item sku is required", store.ErrValidation)
		}
		for _, other := range s.items {
			if other.ID != it.ID && other.DeletedAt == nil && other.SKU == sku {
				return nil, fmt.Errorf("%w: sku already exists", store.ErrValidation)
			}
		}
		it.SKU = sku
	}
	if req.Barcode != nil {
		it.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, fmt.Errorf("%w: item name is required", store.ErrValidation)
		}
		it.Name = strings.TrimSpace(*req.Name)
	}
	if req.Unit != nil {
		it.Unit = strings.TrimSpace(*req.Unit)
	}
	if req.Cost != nil {
		if money.ToMinor(*req.Cost, s.decimals) < 0 {
			return nil, fmt.Errorf("%w: cost must not be negative", store.ErrValidation)
		}
		it.Cost = s.canon(*req.Cost)
	}
	if req.Price != nil {
		if money.ToMinor(*req.Price, s.decimals) < 0 {
			return nil, fmt.Errorf("%w: price must not be negative", store.ErrValidation)
		}
		it.Price = s.canon(*req.Price)
	}
	if req.ReorderLevel != nil {
		it.ReorderLevel = *req.ReorderLevel
	}
	it.UpdatedAt = time.Now().UTC()
	updated := *it
	return &updated, nil
}

func (s *Store) SoftDeleteItem(_ context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[itemID]
	if !ok || it.DeletedAt != nil {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	it.DeletedAt = &now
	it.UpdatedAt = now
	return nil
}

func (s *Store) AdjustItemStock(_ context.Context, itemID string, req domain.StockAdjustRequest) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[itemID]
	if !ok || it.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	if req.Qty == 0 {
		return nil, fmt.Errorf("%w: adjustment qty must not be zero", store.ErrValidation)
	}
	now := time.Now().UTC()
	it.OnHand += req.Qty
	it.UpdatedAt = now
	s.movements[it.ID] = append(s.movements[it.ID], domain.StockMovement{
		ID:        xid.New("mov"),
		ItemID:    it.ID,
		Type:      domain.MovementAdjust,
		Qty:       req.Qty,
		Note:      req.Note,
		CreatedAt: now,
	})
	updated := *it
	return &updated, nil
}

func (s *Store) ListStockMovements(_ context.Context, itemID string, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.items[itemID]; !ok {
		return nil, store.ErrNotFound
	}
	out := slices.Clone(s.movements[itemID])
	slices.SortFunc(out, func(a, b domain.StockMovement) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return capped(out, limit), nil
}

// suppliers

func (s *Store) CreateSupplier(_ context.Context, req domain.SupplierCreateRequest) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: supplier name is required", store.ErrValidation)
	}
	now := time.Now().UTC()
	sup := &domain.Supplier{
		ID:        xid.New("sup"),
		Name:      strings.TrimSpace(req.Name),
		Phone:     strings.TrimSpace(req.Phone),
		Email:     strings.TrimSpace(req.Email),
		Address:   strings.TrimSpace(req.Address),
		Notes:     strings.TrimSpace(req.Notes),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.suppliers[sup.ID] = sup
	created := *sup
	return &created, nil
}

func (s *Store) GetSupplier(_ context.Context, supplierID string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sup, ok := s.suppliers[supplierID]
	if !ok || sup.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	found := *sup
	return &found, nil
}

func (s *Store) ListSuppliers(_ context.Context, q string, limit int) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q = strings.ToLower(strings.TrimSpace(q))
	out := make([]domain.Supplier, 0, len(s.suppliers))
	for _, sup := range s.suppliers {
		if sup.DeletedAt != nil || !matches(q, sup.Name, sup.Phone, sup.Email) {
			continue
		}
		out = append(out, *sup)
	}
	slices.SortFunc(out, func(a, b domain.Supplier) int { return strings.Compare(a.Name, b.Name) })
	return capped(out, limit), nil
}

func (s *Store) UpdateSupplier(_ context.Context, supplierID string, req domain.SupplierUpdateRequest) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sup, ok := s.suppliers[supplierID]
	if !ok || sup.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, fmt.Errorf("%w: supplier name is required", store.ErrValidation)
		}
		sup.Name = strings.TrimSpace(*req.Name)
	}
	if req.Phone != nil {
		sup.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Email != nil {
		sup.Email = strings.TrimSpace(*req.Email)
	}
	if req.Address != nil {
		sup.Address = strings.TrimSpace(*req.Address)
	}
	if req.Notes != nil {
		sup.Notes = strings.TrimSpace(*req.Notes)
	}
	sup.UpdatedAt = time.Now().UTC()
	updated := *sup
	return &updated, nil
}

func (s *Store) SoftDeleteSupplier(_ context.Context, supplierID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sup, ok := s.suppliers[supplierID]
	if !ok || sup.DeletedAt != nil {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	sup.DeletedAt = &now
	sup.UpdatedAt = now
	return nil
}

// purchases

func (s *Store) buildPurchaseLines(reqs []domain.PurchaseLineRequest) ([]domain.PurchaseLine, int64, error) {
	if len(reqs) == 0 {
		return nil, 0, fmt.Errorf("%w: purchase needs at least one line", store.ErrValidation)
	}
	lines := make([]domain.PurchaseLine, 0, len(reqs))
	var subMinor int64
	for _, lr := range reqs {
		it, ok := s.items[lr.ItemID]
		if !ok || it.DeletedAt != nil {
			return nil, 0, fmt.Errorf("%w: item not found", store.ErrValidation)
		}
		if lr.Qty < 1 {
			return nil, 0, fmt.Errorf("%w: purchase qty must be at least 1", store.ErrValidation)
		}
		costMinor := money.ToMinor(lr.UnitCost, s.decimals)
		if costMinor < 0 {
			return nil, 0, fmt.Errorf("%w: unit cost must not be negative", store.ErrValidation)
		}
		lineMinor := int64(lr.Qty) * costMinor
		subMinor += lineMinor
		lines = append(lines, domain.PurchaseLine{
			ID:        xid.New("pln"),
			ItemID:    lr.ItemID,
			Qty:       lr.Qty,
			UnitCost:  money.MinorToDecimal(costMinor, s.decimals),
			LineTotal: money.MinorToDecimal(lineMinor, s.decimals),
		})
	}
	return lines, subMinor, nil
}

func (s *Store) setPurchaseTotals(p *domain.Purchase, subMinor int64) {
	discMinor := money.ToMinor(p.Discount, s.decimals)
	if discMinor < 0 {
		discMinor = 0
	}
	if discMinor > subMinor {
		discMinor = subMinor
	}
	p.SubTotal = money.MinorToDecimal(subMinor, s.decimals)
	p.Discount = money.MinorToDecimal(discMinor, s.decimals)
	p.Total = money.MinorToDecimal(subMinor-discMinor, s.decimals)
}

func (s *Store) CreatePurchase(_ context.Context, req domain.PurchaseCreateRequest) (*domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sup, ok := s.suppliers[req.SupplierID]
	if !ok || sup.DeletedAt != nil {
		return nil, fmt.Errorf("%w: supplier not found", store.ErrValidation)
	}
	lines, subMinor, err := s.buildPurchaseLines(req.Lines)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	p := &domain.Purchase{
		ID:         xid.New("pur"),
		SupplierID: req.SupplierID,
		InvoiceNo:  strings.TrimSpace(req.InvoiceNo),
		Status:     domain.PurchaseDraft,
		Discount:   req.Discount,
		Notes:      strings.TrimSpace(req.Notes),
		Lines:      lines,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.setPurchaseTotals(p, subMinor)
	s.purchases[p.ID] = p
	created := *p
	created.Lines = slices.Clone(p.Lines)
	return &created, nil
}

func (s *Store) GetPurchase(_ context.Context, purchaseID string) (*domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.purchases[purchaseID]
	if !ok || p.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	found := *p
	found.Lines = slices.Clone(p.Lines)
	return &found, nil
}

func (s *Store) ListPurchases(_ context.Context, status string, limit int) ([]domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Purchase, 0, len(s.purchases))
	for _, p := range s.purchases {
		if p.DeletedAt != nil {
			continue
		}
		if status != "" && p.Status != status {
			continue
		}
		cp := *p
		cp.Lines = slices.Clone(p.Lines)
		out = append(out, cp)
	}
	slices.SortFunc(out, func(a, b domain.Purchase) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return capped(out, limit), nil
}

func (s *Store) UpdatePurchase(_ context.Context, purchaseID string, req domain.PurchaseUpdateRequest) (*domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.purchases[purchaseID]
	if !ok || p.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	if p.Status != domain.PurchaseDraft {
		return nil, fmt.Errorf("%w: only draft purchases can be edited", store.ErrBusinessRule)
	}
	if req.SupplierID != nil {
		sup, ok := s.suppliers[*req.SupplierID]
		if !ok || sup.DeletedAt != nil {
			return nil, fmt.Errorf("%w: supplier not found", store.ErrValidation)
		}
		p.SupplierID = *req.SupplierID
	}
	if req.InvoiceNo != nil {
		p.InvoiceNo = strings.TrimSpace(*req.InvoiceNo)
	}
	if req.Notes != nil {
		p.Notes = strings.TrimSpace(*req.Notes)
	}
	if req.Discount != nil {
		if money.ToMinor(*req.Discount, s.decimals) < 0 {
			return nil, fmt.Errorf("%w: discount must not be negative", store.ErrValidation)
		}
		p.Discount = *req.Discount
	}
	if req.Lines != nil {
		lines, subMinor, err := s.buildPurchaseLines(req.Lines)
		if err != nil {
			return nil, err
		}
		p.Lines = lines
		s.setPurchaseTotals(p, subMinor)
	} else {
		var subMinor int64
		for _, l := range p.Lines {
			subMinor += int64(l.Qty) * money.ToMinor(l.UnitCost, s.decimals)
		}
		s.setPurchaseTotals(p, subMinor)
	}
	p.UpdatedAt = time.Now().UTC()
	updated := *p
	updated.Lines = slices.Clone(p.Lines)
	return &updated, nil
}

func (s *Store) ReceivePurchase(_ context.Context, purchaseID string, actorID string) (*domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.purchases[purchaseID]
	if !ok || p.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	if p.Status != domain.PurchaseDraft {
		return nil, fmt.Errorf("%w: purchase already received", store.ErrBusinessRule)
	}

	now := time.Now().UTC()
	for _, l := range p.Lines {
		it, ok := s.items[l.ItemID]
		if !ok || it.DeletedAt != nil {
			return nil, fmt.Errorf("%w: item not found", store.ErrValidation)
		}
		it.OnHand += l.Qty
		it.Cost = l.UnitCost
		it.UpdatedAt = now
		s.movements[it.ID] = append(s.movements[it.ID], domain.StockMovement{
			ID:        xid.New("mov"),
			ItemID:    it.ID,
			Type:      domain.MovementIn,
			Qty:       l.Qty,
			Note:      "purchase received",
			RefType:   "purchase",
			RefID:     p.ID,
			CreatedAt: now,
		})
	}
	p.Status = domain.PurchaseReceived
	p.ReceivedAt = &now
	p.ReceivedBy = actorID
	p.UpdatedAt = now
	s.audit(actorID, "purchase.receive", "purchase", p.ID, p.Total)

	updated := *p
	updated.Lines = slices.Clone(p.Lines)
	return &updated, nil
}

func (s *Store) SoftDeletePurchase(_ context.Context, purchaseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.purchases[purchaseID]
	if !ok || p.DeletedAt != nil {
		return store.ErrNotFound
	}
	if p.Status != domain.PurchaseDraft {
		return fmt.Errorf("%w: received purchases cannot be deleted", store.ErrBusinessRule)
	}
	now := time.Now().UTC()
	p.DeletedAt = &now
	p.UpdatedAt = now
	return nil
}

// staff

func (s *Store) CreateStaff(_ context.Context, req domain.StaffCreateRequest) (*domain.Staff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(req.Code) == "" || strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: staff code and name are required", store.ErrValidation)
	}
	for _, st := range s.staff {
		if st.DeletedAt == nil && st.Code == req.Code {
			return nil, fmt.Errorf("%w: staff code already exists", store.ErrValidation)
		}
	}
	if money.ToMinor(req.Salary, s.decimals) < 0 {
		return nil, fmt.Errorf("%w: salary must not be negative", store.ErrValidation)
	}
	now := time.Now().UTC()
	st := &domain.Staff{
		ID:        xid.New("stf"),
		Code:      strings.TrimSpace(req.Code),
		Name:      strings.TrimSpace(req.Name),
		Phone:     strings.TrimSpace(req.Phone),
		Position:  strings.TrimSpace(req.Position),
		Salary:    s.canon(req.Salary),
		Status:    domain.StaffActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.staff[st.ID] = st
	created := *st
	return &created, nil
}

func (s *Store) GetStaff(_ context.Context, staffID string) (*domain.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.staff[staffID]
	if !ok || st.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	found := *st
	return &found, nil
}

func (s *Store) ListStaff(_ context.Context, q string, limit int) ([]domain.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q = strings.ToLower(strings.TrimSpace(q))
	out := make([]domain.Staff, 0, len(s.staff))
	for _, st := range s.staff {
		if st.DeletedAt != nil || !matches(q, st.Code, st.Name, st.Position) {
			continue
		}
		out = append(out, *st)
	}
	slices.SortFunc(out, func(a, b domain.Staff) int { return strings.Compare(a.Name, b.Name) })
	return capped(out, limit), nil
}

func (s *Store) UpdateStaff(_ context.Context, staffID string, req domain.StaffUpdateRequest) (*domain.Staff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.staff[staffID]
	if !ok || st.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	if req.Code != nil {
		code := strings.TrimSpace(*req.Code)
		if code == "" {
			return nil, fmt.Errorf("%w: staff code is required", store.ErrValidation)
		}
		for _, other := range s.staff {
			if other.ID != st.ID && other.DeletedAt == nil && other.Code == code {
				return nil, fmt.Errorf("%w: staff code already exists", store.ErrValidation)
			}
		}
		st.Code = code
	}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, fmt.Errorf("%w: staff name is required", store.ErrValidation)
		}
		st.Name = strings.TrimSpace(*req.Name)
	}
	if req.Phone != nil {
		st.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Position != nil {
		st.Position = strings.TrimSpace(*req.Position)
	}
	if req.Salary != nil {
		if money.ToMinor(*req.Salary, s.decimals) < 0 {
			return nil, fmt.Errorf("%w: salary must not be negative", store.ErrValidation)
		}
		st.Salary = s.canon(*req.Salary)
	}
	if req.Status != nil {
		if *req.Status != domain.StaffActive && *req.Status != domain.StaffInactive {
			return nil, fmt.Errorf("%w: staff status must be ACTIVE or INACTIVE", store.ErrValidation)
		}
		st.Status = *req.Status
	}
	st.UpdatedAt = time.Now().UTC()
	updated := *st
	return &updated, nil
}

func (s *Store) SoftDeleteStaff(_ context.Context, staffID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.staff[staffID]
	if !ok || st.DeletedAt != nil {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	st.DeletedAt = &now
	st.UpdatedAt = now
	return nil
}

// money ledgers

func (s *Store) CreateOtherIncome(_ context.Context, req domain.OtherIncomeRequest) (*domain.OtherIncome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(req.Source) == "" {
		return nil, fmt.Errorf("%w: income source is required", store.ErrValidation)
	}
	amt := money.ToMinor(req.Amount, s.decimals)
	if amt <= 0 {
		return nil, fmt.Errorf("%w: income amount must be positive", store.ErrValidation)
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	inc := &domain.OtherIncome{
		ID:        xid.New("inc"),
		Date:      date,
		Source:    strings.TrimSpace(req.Source),
		Amount:    money.MinorToDecimal(amt, s.decimals),
		Notes:     strings.TrimSpace(req.Notes),
		CreatedAt: time.Now().UTC(),
	}
	s.otherIncome[inc.ID] = inc
	created := *inc
	return &created, nil
}

func (s *Store) ListOtherIncome(_ context.Context, limit int) ([]domain.OtherIncome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.OtherIncome, 0, len(s.otherIncome))
	for _, inc := range s.otherIncome {
		if inc.DeletedAt != nil {
			continue
		}
		out = append(out, *inc)
	}
	slices.SortFunc(out, func(a, b domain.OtherIncome) int { return b.Date.Compare(a.Date) })
	return capped(out, limit), nil
}

func (s *Store) SoftDeleteOtherIncome(_ context.Context, incomeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inc, ok := s.otherIncome[incomeID]
	if !ok || inc.DeletedAt != nil {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	inc.DeletedAt = &now
	return nil
}

func (s *Store) CreateExpense(_ context.Context, req domain.ExpenseRequest) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(req.Category) == "" {
		return nil, fmt.Errorf("%w: expense category is required", store.ErrValidation)
	}
	amt := money.ToMinor(req.Amount, s.decimals)
	if amt <= 0 {
		return nil, fmt.Errorf("%w: expense amount must be positive", store.ErrValidation)
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	exp := &domain.Expense{
		ID:        xid.New("exp"),
		Date:      date,
		Category:  strings.TrimSpace(req.Category),
		Amount:    money.MinorToDecimal(amt, s.decimals),
		Notes:     strings.TrimSpace(req.Notes),
		CreatedAt: time.Now().UTC(),
	}
	s.expenses[exp.ID] = exp
	created := *exp
	return &created, nil
}

func (s *Store) ListExpenses(_ context.Context, limit int) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Expense, 0, len(s.expenses))
	for _, exp := range s.expenses {
		if exp.DeletedAt != nil {
			continue
		}
		out = append(out, *exp)
	}
	slices.SortFunc(out, func(a, b domain.Expense) int { return b.Date.Compare(a.Date) })
	return capped(out, limit), nil
}

func (s *Store) SoftDeleteExpense(_ context.Context, expenseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.expenses[expenseID]
	if !ok || exp.DeletedAt != nil {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	exp.DeletedAt = &now
	return nil
}

// cross-order ledgers

func (s *Store) ListPayments(_ context.Context, limit int) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Payment
	for _, o := range s.orders {
		if o.DeletedAt != nil {
			continue
		}
		out = append(out, o.Payments...)
	}
	slices.SortFunc(out, func(a, b domain.Payment) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return capped(out, limit), nil
}

func (s *Store) ListARTransactions(_ context.Context, customerID string, limit int) ([]domain.ARTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ARTransaction, 0, len(s.arLedger))
	for _, ar := range s.arLedger {
		if customerID != "" && ar.CustomerID != customerID {
			continue
		}
		out = append(out, ar)
	}
	slices.SortFunc(out, func(a, b domain.ARTransaction) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return capped(out, limit), nil
}

func (s *Store) ListAuditLogs(_ context.Context, entityType string, entityID string, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AuditLog, 0, len(s.auditLogs))
	for _, entry := range s.auditLogs {
		if entityType != "" && entry.EntityType != entityType {
			continue
		}
		if entityID != "" && entry.EntityID != entityID {
			continue
		}
		out = append(out, entry)
	}
	slices.SortFunc(out, func(a, b domain.AuditLog) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return capped(out, limit), nil
}

// users

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return fmt.Errorf("%w: username and password are required", store.ErrValidation)
	}
	if _, exists := s.users[user.Username]; exists {
		return fmt.Errorf("%w: username already exists", store.ErrValidation)
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[user.Username] = user
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := u
	return &found, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UserAccount, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b domain.UserAccount) int { return strings.Compare(a.Username, b.Username) })
	return out, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return store.ErrNotFound
	}
	u.Password = password
	s.users[username] = u
	return nil
}

func (s *Store) SetUserActive(_ context.Context, username string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return store.ErrNotFound
	}
	u.Active = active
	s.users[username] = u
	return nil
}
