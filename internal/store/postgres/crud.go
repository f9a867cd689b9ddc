package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"soleworks/backend/internal/domain"
	"soleworks/backend/internal/money"
	"soleworks/backend/internal/store"
	"soleworks/backend/internal/xid"
)

func normLimit(limit int) int {
	if limit < 1 {
		return 100
	}
	return limit
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

func (s *Store) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (*domain.Customer, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: customer name is required", store.ErrValidation)
	}
	c := &domain.Customer{
		ID:      xid.New("cust"),
		Name:    strings.TrimSpace(req.Name),
		Phone:   strings.TrimSpace(req.Phone),
		Email:   strings.TrimSpace(req.Email),
		Address: strings.TrimSpace(req.Address),
		Notes:   strings.TrimSpace(req.Notes),
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO customers (id, name, phone, email, address, notes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now())
		RETURNING created_at, updated_at
	`, c.ID, c.Name, c.Phone, c.Email, c.Address, c.Notes).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func scanCustomer(row interface{ Scan(...any) error }) (*domain.Customer, error) {
	var c domain.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

const customerColumns = `
	id, name, COALESCE(phone, ''), COALESCE(email, ''), COALESCE(address, ''), COALESCE(notes, ''), created_at, updated_at
`

func (s *Store) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	c, err := scanCustomer(s.db.QueryRowContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE id = $1 AND deleted_at IS NULL
	`, customerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return c, err
}

func (s *Store) ListCustomers(ctx context.Context, q string, limit int) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE deleted_at IS NULL
		  AND ($1 = '' OR name ILIKE '%' || $1 || '%' OR phone ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%')
		ORDER BY name
		LIMIT $2
	`, strings.TrimSpace(q), normLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 32)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, *c)
	}
	return customers, rows.Err()
}

func (s *Store) UpdateCustomer(ctx context.Context, customerID string, req domain.CustomerUpdateRequest) (*domain.Customer, error) {
	c, err := s.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
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
	err = s.db.QueryRowContext(ctx, `
		UPDATE customers
		SET name = $2, phone = $3, email = $4, address = $5, notes = $6, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at
	`, c.ID, c.Name, c.Phone, c.Email, c.Address, c.Notes).Scan(&c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) SoftDeleteCustomer(ctx context.Context, customerID string) error {
	return s.softDelete(ctx, "customers", customerID)
}

func (s *Store) softDelete(ctx context.Context, table string, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE `+table+` SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetCustomerOverview(ctx context.Context, customerID string) (*domain.CustomerOverview, error) {
	if _, err := s.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.status, o.total, o.created_at
		FROM service_orders o
		WHERE o.customer_id = $1 AND o.deleted_at IS NULL
	`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var spentMinor int64
	var lastVisit *time.Time
	count := 0
	orderIDs := make([]string, 0, 16)
	for rows.Next() {
		var id, status, total string
		var createdAt time.Time
		if err := rows.Scan(&id, &status, &total, &createdAt); err != nil {
			return nil, err
		}
		count++
		orderIDs = append(orderIDs, id)
		if status != domain.StatusCancelled {
			spentMinor += money.ToMinor(total, s.decimals)
		}
		if lastVisit == nil || createdAt.After(*lastVisit) {
			v := createdAt.UTC()
			lastVisit = &v
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var paidMinor int64
	if len(orderIDs) > 0 {
		payRows, err := s.db.QueryContext(ctx, `
			SELECT p.amount
			FROM payments p
			JOIN service_orders o ON o.id = p.order_id
			WHERE o.customer_id = $1 AND o.deleted_at IS NULL
		`, customerID)
		if err != nil {
			return nil, err
		}
		defer payRows.Close()
		for payRows.Next() {
			var amount string
			if err := payRows.Scan(&amount); err != nil {
				return nil, err
			}
			paidMinor += money.ToMinor(amount, s.decimals)
		}
		if err := payRows.Err(); err != nil {
			return nil, err
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

const repairServiceColumns = `
	id, name, COALESCE(description, ''), default_price, duration_days, active, created_at, updated_at
`

func scanRepairService(row interface{ Scan(...any) error }) (*domain.RepairService, error) {
	var svc domain.RepairService
	err := row.Scan(&svc.ID, &svc.Name, &svc.Description, &svc.DefaultPrice, &svc.DurationDays, &svc.Active, &svc.CreatedAt, &svc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &svc, nil
}

func (s *Store) CreateRepairService(ctx context.Context, req domain.RepairServiceCreateRequest) (*domain.RepairService, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: service name is required", store.ErrValidation)
	}
	if money.ToMinor(req.DefaultPrice, s.decimals) < 0 {
		return nil, fmt.Errorf("%w: default price must not be negative", store.ErrValidation)
	}
	svc := &domain.RepairService{
		ID:           xid.New("svc"),
		Name:         strings.TrimSpace(req.Name),
		Description:  strings.TrimSpace(req.Description),
		DefaultPrice: s.canon(req.DefaultPrice),
		DurationDays: req.DurationDays,
		Active:       true,
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO repair_services (id, name, description, default_price, duration_days, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,true,now(),now())
		RETURNING created_at, updated_at
	`, svc.ID, svc.Name, svc.Description, svc.DefaultPrice, svc.DurationDays).Scan(&svc.CreatedAt, &svc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *Store) GetRepairService(ctx context.Context, serviceID string) (*domain.RepairService, error) {
	svc, err := scanRepairService(s.db.QueryRowContext(ctx, `
		SELECT `+repairServiceColumns+`
		FROM repair_services
		WHERE id = $1 AND deleted_at IS NULL
	`, serviceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return svc, err
}

func (s *Store) ListRepairServices(ctx context.Context, q string, activeOnly bool, limit int) ([]domain.RepairService, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+repairServiceColumns+`
		FROM repair_services
		WHERE deleted_at IS NULL
		  AND ($1 = '' OR name ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%')
		  AND ($2 = false OR active = true)
		ORDER BY name
		LIMIT $3
	`, strings.TrimSpace(q), activeOnly, normLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	services := make([]domain.RepairService, 0, 32)
	for rows.Next() {
		svc, err := scanRepairService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, *svc)
	}
	return services, rows.Err()
}

func (s *Store) UpdateRepairService(ctx context.Context, serviceID string, req domain.RepairServiceUpdateRequest) (*domain.RepairService, error) {
	svc, err := s.GetRepairService(ctx, serviceID)
	if err != nil {
		return nil, err
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
	err = s.db.QueryRowContext(ctx, `
		UPDATE repair_services
		SET name = $2, description = $3, default_price = $4, duration_days = $5, active = $6, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at
	`, svc.ID, svc.Name, svc.Description, svc.DefaultPrice, svc.DurationDays, svc.Active).Scan(&svc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *Store) SoftDeleteRepairService(ctx context.Context, serviceID string) error {
	return s.softDelete(ctx, "repair_services", serviceID)
}

// inventory items

const itemColumns = `
	id, sku, COALESCE(barcode, ''), name, COALESCE(unit, ''), cost, price, reorder_level, on_hand, created_at, updated_at
`

func scanItem(row interface{ Scan(...any) error }) (*domain.Item, error) {
	var it domain.Item
	err := row.Scan(&it.ID, &it.SKU, &it.Barcode, &it.Name, &it.Unit, &it.Cost, &it.Price, &it.ReorderLevel, &it.OnHand, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (s *Store) CreateItem(ctx context.Context, req domain.ItemCreateRequest) (*domain.Item, error) {
	if strings.TrimSpace(req.SKU) == "" || strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: item sku and name are required", store.ErrValidation)
	}
	if money.ToMinor(req.Cost, s.decimals) < 0 || money.ToMinor(req.Price, s.decimals) < 0 {
		return nil, fmt.Errorf("%w: cost and price must not be negative", store.ErrValidation)
	}
	if req.InitialStock < 0 {
		return nil, fmt.Errorf("%w: initial stock must not be negative", store.ErrValidation)
	}

	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

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
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO items (id, sku, barcode, name, unit, cost, price, reorder_level, on_hand, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now(),now())
		RETURNING created_at, updated_at
	`, it.ID, it.SKU, it.Barcode, it.Name, it.Unit, it.Cost, it.Price, it.ReorderLevel, it.OnHand).Scan(&it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: sku already exists", store.ErrValidation)
		}
		return nil, err
	}
	if req.InitialStock > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stock_movements (id, item_id, type, qty, note, created_at)
			VALUES ($1,$2,$3,$4,'opening stock',now())
		`, xid.New("mov"), it.ID, domain.MovementIn, req.InitialStock)
		if err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return it, nil
}

func (s *Store) GetItem(ctx context.Context, itemID string) (*domain.Item, error) {
	it, err := scanItem(s.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE id = $1 AND deleted_at IS NULL
	`, itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return it, err
}

func (s *Store) ListItems(ctx context.Context, q string, limit int) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE deleted_at IS NULL
		  AND ($1 = '' OR sku ILIKE '%' || $1 || '%' OR barcode ILIKE '%' || $1 || '%' OR name ILIKE '%' || $1 || '%')
		ORDER BY name
		LIMIT $2
	`, strings.TrimSpace(q), normLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Item, 0, 32)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func (s *Store) UpdateItem(ctx context.Context, itemID string, req domain.ItemUpdateRequest) (*domain.Item, error) {
	it, err := s.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if req.SKU != nil {
		if strings.TrimSpace(*req.SKU) == "" {
			return nil, fmt.Errorf("%w: item sku is required", store.ErrValidation)
		}
		it.SKU = strings.TrimSpace(*req.SKU)
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
	err = s.db.QueryRowContext(ctx, `
		UPDATE items
		SET sku = $2, barcode = $3, name = $4, unit = $5, cost = $6, price = $7, reorder_level = $8, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at
	`, it.ID, it.SKU, it.Barcode, it.Name, it.Unit, it.Cost, it.Price, it.ReorderLevel).Scan(&it.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: sku already exists", store.ErrValidation)
		}
		return nil, err
	}
	return it, nil
}

func (s *Store) SoftDeleteItem(ctx context.Context, itemID string) error {
	return s.softDelete(ctx, "items", itemID)
}

func (s *Store) AdjustItemStock(ctx context.Context, itemID string, req domain.StockAdjustRequest) (*domain.Item, error) {
	if req.Qty == 0 {
		return nil, fmt.Errorf("%w: adjustment qty must not be zero", store.ErrValidation)
	}

	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	it, err := scanItem(tx.QueryRowContext(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE id = $1 AND deleted_at IS NULL
		FOR UPDATE
	`, itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	it.OnHand += req.Qty
	_, err = tx.ExecContext(ctx, `
		UPDATE items SET on_hand = $2, updated_at = now() WHERE id = $1
	`, it.ID, it.OnHand)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_movements (id, item_id, type, qty, note, created_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, xid.New("mov"), it.ID, domain.MovementAdjust, req.Qty, nullIfEmpty(req.Note))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return it, nil
}

func (s *Store) ListStockMovements(ctx context.Context, itemID string, limit int) ([]domain.StockMovement, error) {
	if _, err := s.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_id, type, qty, COALESCE(note, ''), COALESCE(ref_type, ''), COALESCE(ref_id, ''), created_at
		FROM stock_movements
		WHERE item_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, itemID, normLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, 32)
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.ID, &m.ItemID, &m.Type, &m.Qty, &m.Note, &m.RefType, &m.RefID, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// suppliers

const supplierColumns = `
	id, name, COALESCE(phone, ''), COALESCE(email, ''), COALESCE(address, ''), COALESCE(notes, ''), created_at, updated_at
`

func scanSupplier(row interface{ Scan(...any) error }) (*domain.Supplier, error) {
	var sup domain.Supplier
	err := row.Scan(&sup.ID, &sup.Name, &sup.Phone, &sup.Email, &sup.Address, &sup.Notes, &sup.CreatedAt, &sup.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sup, nil
}

func (s *Store) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (*domain.Supplier, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: supplier name is required", store.ErrValidation)
	}
	sup := &domain.Supplier{
		ID:      xid.New("sup"),
		Name:    strings.TrimSpace(req.Name),
		Phone:   strings.TrimSpace(req.Phone),
		Email:   strings.TrimSpace(req.Email),
		Address: strings.TrimSpace(req.Address),
		Notes:   strings.TrimSpace(req.Notes),
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO suppliers (id, name, phone, email, address, notes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now())
		RETURNING created_at, updated_at
	`, sup.ID, sup.Name, sup.Phone, sup.Email, sup.Address, sup.Notes).Scan(&sup.CreatedAt, &sup.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return sup, nil
}

func (s *Store) GetSupplier(ctx context.Context, supplierID string) (*domain.Supplier, error) {
	sup, err := scanSupplier(s.db.QueryRowContext(ctx, `
		SELECT `+supplierColumns+`
		FROM suppliers
		WHERE id = $1 AND deleted_at IS NULL
	`, supplierID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return sup, err
}

func (s *Store) ListSuppliers(ctx context.Context, q string, limit int) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+supplierColumns+`
		FROM suppliers
		WHERE deleted_at IS NULL
		  AND ($1 = '' OR name ILIKE '%' || $1 || '%' OR phone ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%')
		ORDER BY name
		LIMIT $2
	`, strings.TrimSpace(q), normLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 16)
	for rows.Next() {
		sup, err := scanSupplier(rows)
		if err != nil {
			return nil, err
		}
		suppliers = append(suppliers, *sup)
	}
	return suppliers, rows.Err()
}

func (s *Store) UpdateSupplier(ctx context.Context, supplierID string, req domain.SupplierUpdateRequest) (*domain.Supplier, error) {
	sup, err := s.GetSupplier(ctx, supplierID)
	if err != nil {
		return nil, err
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
	err = s.db.QueryRowContext(ctx, `
		UPDATE suppliers
		SET name = $2, phone = $3, email = $4, address = $5, notes = $6, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at
	`, sup.ID, sup.Name, sup.Phone, sup.Email, sup.Address, sup.Notes).Scan(&sup.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sup, nil
}

func (s *Store) SoftDeleteSupplier(ctx context.Context, supplierID string) error {
	return s.softDelete(ctx, "suppliers", supplierID)
}

// purchases

const purchaseColumns = `
	id, supplier_id, COALESCE(invoice_no, ''), status, sub_total, discount, total,
	COALESCE(notes, ''), received_at, COALESCE(received_by, ''), created_at, updated_at
`

func scanPurchase(row interface{ Scan(...any) error }) (*domain.Purchase, error) {
	var p domain.Purchase
	var receivedAt sql.NullTime
	err := row.Scan(&p.ID, &p.SupplierID, &p.InvoiceNo, &p.Status, &p.SubTotal, &p.Discount, &p.Total,
		&p.Notes, &receivedAt, &p.ReceivedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if receivedAt.Valid {
		t := receivedAt.Time.UTC()
		p.ReceivedAt = &t
	}
	return &p, nil
}

func (s *Store) loadPurchaseLines(ctx context.Context, q dbtx, purchaseID string) ([]domain.PurchaseLine, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, item_id, qty, unit_cost, line_total
		FROM purchase_lines
		WHERE purchase_id = $1
		ORDER BY created_at, id
	`, purchaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.PurchaseLine, 0, 8)
	for rows.Next() {
		var l domain.PurchaseLine
		if err := rows.Scan(&l.ID, &l.ItemID, &l.Qty, &l.UnitCost, &l.LineTotal); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (s *Store) writePurchaseLines(ctx context.Context, tx *sql.Tx, purchaseID string, reqs []domain.PurchaseLineRequest) (int64, error) {
	if len(reqs) == 0 {
		return 0, fmt.Errorf("%w: purchase needs at least one line", store.ErrValidation)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM purchase_lines WHERE purchase_id = $1`, purchaseID); err != nil {
		return 0, err
	}
	var subMinor int64
	for _, lr := range reqs {
		var exists bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM items WHERE id = $1 AND deleted_at IS NULL)
		`, lr.ItemID).Scan(&exists); err != nil {
			return 0, err
		}
		if !exists {
			return 0, fmt.Errorf("%w: item not found", store.ErrValidation)
		}
		if lr.Qty < 1 {
			return 0, fmt.Errorf("%w: purchase qty must be at least 1", store.ErrValidation)
		}
		costMinor := money.ToMinor(lr.UnitCost, s.decimals)
		if costMinor < 0 {
			return 0, fmt.Errorf("%w: unit cost must not be negative", store.ErrValidation)
		}
		lineMinor := int64(lr.Qty) * costMinor
		subMinor += lineMinor
		_, err := tx.ExecContext(ctx, `
			INSERT INTO purchase_lines (id, purchase_id, item_id, qty, unit_cost, line_total, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,now())
		`, xid.New("pln"), purchaseID, lr.ItemID, lr.Qty,
			money.MinorToDecimal(costMinor, s.decimals),
			money.MinorToDecimal(lineMinor, s.decimals))
		if err != nil {
			return 0, err
		}
	}
	return subMinor, nil
}

func (s *Store) purchaseTotals(subMinor int64, discount string) (string, string, string) {
	discMinor := money.ToMinor(discount, s.decimals)
	if discMinor < 0 {
		discMinor = 0
	}
	if discMinor > subMinor {
		discMinor = subMinor
	}
	return money.MinorToDecimal(subMinor, s.decimals),
		money.MinorToDecimal(discMinor, s.decimals),
		money.MinorToDecimal(subMinor-discMinor, s.decimals)
}

func (s *Store) CreatePurchase(ctx context.Context, req domain.PurchaseCreateRequest) (*domain.Purchase, error) {
	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM suppliers WHERE id = $1 AND deleted_at IS NULL)
	`, req.SupplierID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: supplier not found", store.ErrValidation)
	}

	purchaseID := xid.New("pur")
	zero := money.MinorToDecimal(0, s.decimals)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchases (id, supplier_id, invoice_no, status, sub_total, discount, total, notes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now(),now())
	`, purchaseID, req.SupplierID, strings.TrimSpace(req.InvoiceNo), domain.PurchaseDraft,
		zero, zero, zero, strings.TrimSpace(req.Notes))
	if err != nil {
		return nil, err
	}

	subMinor, err := s.writePurchaseLines(ctx, tx, purchaseID, req.Lines)
	if err != nil {
		return nil, err
	}
	sub, disc, total := s.purchaseTotals(subMinor, req.Discount)
	_, err = tx.ExecContext(ctx, `
		UPDATE purchases SET sub_total = $2, discount = $3, total = $4, updated_at = now() WHERE id = $1
	`, purchaseID, sub, disc, total)
	if err != nil {
		return nil, err
	}

	p, err := scanPurchase(tx.QueryRowContext(ctx, `
		SELECT `+purchaseColumns+` FROM purchases WHERE id = $1
	`, purchaseID))
	if err != nil {
		return nil, err
	}
	if p.Lines, err = s.loadPurchaseLines(ctx, tx, purchaseID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) GetPurchase(ctx context.Context, purchaseID string) (*domain.Purchase, error) {
	p, err := scanPurchase(s.db.QueryRowContext(ctx, `
		SELECT `+purchaseColumns+`
		FROM purchases
		WHERE id = $1 AND deleted_at IS NULL
	`, purchaseID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.Lines, err = s.loadPurchaseLines(ctx, s.db, purchaseID); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) ListPurchases(ctx context.Context, status string, limit int) ([]domain.Purchase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+purchaseColumns+`
		FROM purchases
		WHERE deleted_at IS NULL
		  AND ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, status, normLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	purchases := make([]domain.Purchase, 0, 16)
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		purchases = append(purchases, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range purchases {
		if purchases[i].Lines, err = s.loadPurchaseLines(ctx, s.db, purchases[i].ID); err != nil {
			return nil, err
		}
	}
	return purchases, nil
}

func (s *Store) UpdatePurchase(ctx context.Context, purchaseID string, req domain.PurchaseUpdateRequest) (*domain.Purchase, error) {
	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	p, err := scanPurchase(tx.QueryRowContext(ctx, `
		SELECT `+purchaseColumns+`
		FROM purchases
		WHERE id = $1 AND deleted_at IS NULL
		FOR UPDATE
	`, purchaseID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.Status != domain.PurchaseDraft {
		return nil, fmt.Errorf("%w: only draft purchases can be edited", store.ErrBusinessRule)
	}

	if req.SupplierID != nil {
		var exists bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM suppliers WHERE id = $1 AND deleted_at IS NULL)
		`, *req.SupplierID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
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

	var subMinor int64
	if req.Lines != nil {
		subMinor, err = s.writePurchaseLines(ctx, tx, purchaseID, req.Lines)
		if err != nil {
			return nil, err
		}
	} else {
		existing, err := s.loadPurchaseLines(ctx, tx, purchaseID)
		if err != nil {
			return nil, err
		}
		for _, l := range existing {
			subMinor += int64(l.Qty) * money.ToMinor(l.UnitCost, s.decimals)
		}
	}
	sub, disc, total := s.purchaseTotals(subMinor, p.Discount)

	_, err = tx.ExecContext(ctx, `
		UPDATE purchases
		SET supplier_id = $2, invoice_no = $3, notes = $4, sub_total = $5, discount = $6, total = $7, updated_at = now()
		WHERE id = $1
	`, p.ID, p.SupplierID, p.InvoiceNo, p.Notes, sub, disc, total)
	if err != nil {
		return nil, err
	}
	p.SubTotal, p.Discount, p.Total = sub, disc, total
	if p.Lines, err = s.loadPurchaseLines(ctx, tx, purchaseID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) ReceivePurchase(ctx context.Context, purchaseID string, actorID string) (*domain.Purchase, error) {
	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	p, err := scanPurchase(tx.QueryRowContext(ctx, `
		SELECT `+purchaseColumns+`
		FROM purchases
		WHERE id = $1 AND deleted_at IS NULL
		FOR UPDATE
	`, purchaseID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.Status != domain.PurchaseDraft {
		return nil, fmt.Errorf("%w: purchase already received", store.ErrBusinessRule)
	}

	if p.Lines, err = s.loadPurchaseLines(ctx, tx, purchaseID); err != nil {
		return nil, err
	}
	for _, l := range p.Lines {
		res, err := tx.ExecContext(ctx, `
			UPDATE items SET on_hand = on_hand + $2, cost = $3, updated_at = now()
			WHERE id = $1 AND deleted_at IS NULL
		`, l.ItemID, l.Qty, l.UnitCost)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, fmt.Errorf("%w: item not found", store.ErrValidation)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stock_movements (id, item_id, type, qty, note, ref_type, ref_id, created_at)
			VALUES ($1,$2,$3,$4,'purchase received','purchase',$5,now())
		`, xid.New("mov"), l.ItemID, domain.MovementIn, l.Qty, p.ID)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE purchases SET status = $2, received_at = $3, received_by = $4, updated_at = now() WHERE id = $1
	`, p.ID, domain.PurchaseReceived, now, actorID)
	if err != nil {
		return nil, err
	}
	p.Status = domain.PurchaseReceived
	p.ReceivedAt = &now
	p.ReceivedBy = actorID
	if err := s.insertAudit(ctx, tx, actorID, "purchase.receive", "purchase", p.ID, p.Total); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) SoftDeletePurchase(ctx context.Context, purchaseID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE purchases SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL AND status = $2
	`, purchaseID, domain.PurchaseDraft)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM purchases WHERE id = $1 AND deleted_at IS NULL)
		`, purchaseID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: received purchases cannot be deleted", store.ErrBusinessRule)
		}
		return store.ErrNotFound
	}
	return nil
}

// staff

const staffColumns = `
	id, code, name, COALESCE(phone, ''), COALESCE(position, ''), salary, status, created_at, updated_at
`

func scanStaff(row interface{ Scan(...any) error }) (*domain.Staff, error) {
	var st domain.Staff
	err := row.Scan(&st.ID, &st.Code, &st.Name, &st.Phone, &st.Position, &st.Salary, &st.Status, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) CreateStaff(ctx context.Context, req domain.StaffCreateRequest) (*domain.Staff, error) {
	if strings.TrimSpace(req.Code) == "" || strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: staff code and name are required", store.ErrValidation)
	}
	if money.ToMinor(req.Salary, s.decimals) < 0 {
		return nil, fmt.Errorf("%w: salary must not be negative", store.ErrValidation)
	}
	st := &domain.Staff{
		ID:       xid.New("stf"),
		Code:     strings.TrimSpace(req.Code),
		Name:     strings.TrimSpace(req.Name),
		Phone:    strings.TrimSpace(req.Phone),
		Position: strings.TrimSpace(req.Position),
		Salary:   s.canon(req.Salary),
		Status:   domain.StaffActive,
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO staff (id, code, name, phone, position, salary, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now(),now())
		RETURNING created_at, updated_at
	`, st.ID, st.Code, st.Name, st.Phone, st.Position, st.Salary, st.Status).Scan(&st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: staff code already exists", store.ErrValidation)
		}
		return nil, err
	}
	return st, nil
}

func (s *Store) GetStaff(ctx context.Context, staffID string) (*domain.Staff, error) {
	st, err := scanStaff(s.db.QueryRowContext(ctx, `
		SELECT `+staffColumns+`
		FROM staff
		WHERE id = $1 AND deleted_at IS NULL
	`, staffID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return st, err
}

func (s *Store) ListStaff(ctx context.Context, q string, limit int) ([]domain.Staff, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+staffColumns+`
		FROM staff
		WHERE deleted_at IS NULL
		  AND ($1 = '' OR code ILIKE '%' || $1 || '%' OR name ILIKE '%' || $1 || '%' OR position ILIKE '%' || $1 || '%')
		ORDER BY name
		LIMIT $2
	`, strings.TrimSpace(q), normLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	staffList := make([]domain.Staff, 0, 16)
	for rows.Next() {
		st, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		staffList = append(staffList, *st)
	}
	return staffList, rows.Err()
}

func (s *Store) UpdateStaff(ctx context.Context, staffID string, req domain.StaffUpdateRequest) (*domain.Staff, error) {
	st, err := s.GetStaff(ctx, staffID)
	if err != nil {
		return nil, err
	}
	if req.Code != nil {
		if strings.TrimSpace(*req.Code) == "" {
			return nil, fmt.Errorf("%w: staff code is required", store.ErrValidation)
		}
		st.Code = strings.TrimSpace(*req.Code)
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
	err = s.db.QueryRowContext(ctx, `
		UPDATE staff
		SET code = $2, name = $3, phone = $4, position = $5, salary = $6, status = $7, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at
	`, st.ID, st.Code, st.Name, st.Phone, st.Position, st.Salary, st.Status).Scan(&st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: staff code already exists", store.ErrValidation)
		}
		return nil, err
	}
	return st, nil
}

func (s *Store) SoftDeleteStaff(ctx context.Context, staffID string) error {
	return s.softDelete(ctx, "staff", staffID)
}

// money ledgers

func (s *Store) CreateOtherIncome(ctx context.Context, req domain.OtherIncomeRequest) (*domain.OtherIncome, error) {
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
		ID:     xid.New("inc"),
		Date:   date,
		Source: strings.TrimSpace(req.Source),
		Amount: money.MinorToDecimal(amt, s.decimals),
		Notes:  strings.TrimSpace(req.Notes),
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO other_income (id, date, source, amount, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,now())
		RETURNING created_at
	`, inc.ID, inc.Date, inc.Source, inc.Amount, inc.Notes).Scan(&inc.CreatedAt)
	if err != nil {
		return nil, err
	}
	return inc, nil
}

func (s *Store) ListOtherIncome(ctx context.Context, limit int) ([]domain.OtherIncome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, source, amount, COALESCE(notes, ''), created_at
		FROM other_income
		WHERE deleted_at IS NULL
		ORDER BY date DESC
		LIMIT $1
	`, normLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	incomes := make([]domain.OtherIncome, 0, 16)
	for rows.Next() {
		var inc domain.OtherIncome
		if err := rows.Scan(&inc.ID, &inc.Date, &inc.Source, &inc.Amount, &inc.Notes, &inc.CreatedAt); err != nil {
			return nil, err
		}
		incomes = append(incomes, inc)
	}
	return incomes, rows.Err()
}

func (s *Store) SoftDeleteOtherIncome(ctx context.Context, incomeID string) error {
	return s.softDelete(ctx, "other_income", incomeID)
}

func (s *Store) CreateExpense(ctx context.Context, req domain.ExpenseRequest) (*domain.Expense, error) {
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
		ID:       xid.New("exp"),
		Date:     date,
		Category: strings.TrimSpace(req.Category),
		Amount:   money.MinorToDecimal(amt, s.decimals),
		Notes:    strings.TrimSpace(req.Notes),
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO expenses (id, date, category, amount, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,now())
		RETURNING created_at
	`, exp.ID, exp.Date, exp.Category, exp.Amount, exp.Notes).Scan(&exp.CreatedAt)
	if err != nil {
		return nil, err
	}
	return exp, nil
}

func (s *Store) ListExpenses(ctx context.Context, limit int) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, category, amount, COALESCE(notes, ''), created_at
		FROM expenses
		WHERE deleted_at IS NULL
		ORDER BY date DESC
		LIMIT $1
	`, normLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 16)
	for rows.Next() {
		var exp domain.Expense
		if err := rows.Scan(&exp.ID, &exp.Date, &exp.Category, &exp.Amount, &exp.Notes, &exp.CreatedAt); err != nil {
			return nil, err
		}
		expenses = append(expenses, exp)
	}
	return expenses, rows.Err()
}

func (s *Store) SoftDeleteExpense(ctx context.Context, expenseID string) error {
	return s.softDelete(ctx, "expenses", expenseID)
}

// cross-order ledgers

func (s *Store) ListPayments(ctx context.Context, limit int) ([]domain.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.order_id, p.amount, p.method, COALESCE(p.reference, ''), COALESCE(p.note, ''), p.received_by, p.created_at
		FROM payments p
		JOIN service_orders o ON o.id = p.order_id
		WHERE o.deleted_at IS NULL
		ORDER BY p.created_at DESC
		LIMIT $1
	`, normLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, 32)
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Method, &p.Reference, &p.Note, &p.ReceivedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (s *Store) ListARTransactions(ctx context.Context, customerID string, limit int) ([]domain.ARTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, COALESCE(order_id, ''), type, amount, COALESCE(note, ''), created_at
		FROM ar_transactions
		WHERE ($1 = '' OR customer_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, customerID, normLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.ARTransaction, 0, 32)
	for rows.Next() {
		var ar domain.ARTransaction
		if err := rows.Scan(&ar.ID, &ar.CustomerID, &ar.OrderID, &ar.Type, &ar.Amount, &ar.Note, &ar.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, ar)
	}
	return entries, rows.Err()
}

func (s *Store) ListAuditLogs(ctx context.Context, entityType string, entityID string, limit int) ([]domain.AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_id, actor_username, actor_role, action, entity_type, entity_id, COALESCE(detail, ''), created_at
		FROM audit_logs
		WHERE ($1 = '' OR entity_type = $1)
		  AND ($2 = '' OR entity_id = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, entityType, entityID, normLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, 32)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// users

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return fmt.Errorf("%w: username and password are required", store.ErrValidation)
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.ID, user.Username, user.Password, user.Role, user.Active)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("%w: username already exists", store.ErrValidation)
	}
	return err
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var u domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password, role, active, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&u.ID, &u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.ID, &u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SetUserActive(ctx context.Context, username string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET active = $2 WHERE username = $1
	`, username, active)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
