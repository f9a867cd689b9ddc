package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"soleworks/backend/internal/domain"
	"soleworks/backend/internal/money"
	"soleworks/backend/internal/store"
	"soleworks/backend/internal/xid"
)

// Store is the PostgreSQL Repository. Every mutating service-order
// operation runs in one serializable transaction: lock the order row,
// validate, write children, re-derive the money columns, append the
// audit row, commit.
type Store struct {
	db       *sql.DB
	decimals int
}

func New(ctx context.Context, databaseURL string, decimals int) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, decimals: decimals}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) canon(v string) string {
	return money.MinorToDecimal(money.ToMinor(v, s.decimals), s.decimals)
}

func (s *Store) beginSerializable(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
}

const orderColumns = `
	id, code, customer_id, COALESCE(staff_id, ''), item_description, brand, color,
	problem, notes, urgent, pair_count, received_at, promised_at, status,
	sub_total, discount, total, payment_status, delivered_at, created_at, updated_at
`

func scanOrder(row interface{ Scan(...any) error }) (*domain.ServiceOrder, error) {
	var o domain.ServiceOrder
	var promisedAt, deliveredAt sql.NullTime
	err := row.Scan(
		&o.ID, &o.Code, &o.CustomerID, &o.StaffID, &o.ItemDescription, &o.Brand, &o.Color,
		&o.Problem, &o.Notes, &o.Urgent, &o.PairCount, &o.ReceivedAt, &promisedAt, &o.Status,
		&o.SubTotal, &o.Discount, &o.Total, &o.PaymentStatus, &deliveredAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if promisedAt.Valid {
		t := promisedAt.Time.UTC()
		o.PromisedAt = &t
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time.UTC()
		o.DeliveredAt = &t
	}
	return &o, nil
}

// lockOrder loads an order header FOR UPDATE inside a transaction.
func (s *Store) lockOrder(ctx context.Context, tx *sql.Tx, orderID string) (*domain.ServiceOrder, error) {
	o, err := scanOrder(tx.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM service_orders
		WHERE id = $1 AND deleted_at IS NULL
		FOR UPDATE
	`, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return o, err
}

// lockMutableOrder additionally rejects terminal orders.
func (s *Store) lockMutableOrder(ctx context.Context, tx *sql.Tx, orderID string) (*domain.ServiceOrder, error) {
	o, err := s.lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if domain.IsTerminal(o.Status) {
		return nil, fmt.Errorf("%w: order %s is %s", store.ErrBusinessRule, o.Code, o.Status)
	}
	return o, nil
}

func (s *Store) loadLines(ctx context.Context, q dbtx, orderID string) ([]domain.ServiceLine, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, COALESCE(repair_service_id, ''), description, qty, unit_price, line_total
		FROM service_lines
		WHERE order_id = $1
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.ServiceLine, 0, 8)
	for rows.Next() {
		var l domain.ServiceLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.RepairServiceID, &l.Description, &l.Qty, &l.UnitPrice, &l.LineTotal); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (s *Store) loadParts(ctx context.Context, q dbtx, orderID string) ([]domain.ServicePart, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, item_id, qty, unit_price, line_total
		FROM service_parts
		WHERE order_id = $1
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	parts := make([]domain.ServicePart, 0, 4)
	for rows.Next() {
		var p domain.ServicePart
		if err := rows.Scan(&p.ID, &p.OrderID, &p.ItemID, &p.Qty, &p.UnitPrice, &p.LineTotal); err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

func (s *Store) loadPayments(ctx context.Context, q dbtx, orderID string) ([]domain.Payment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, amount, method, COALESCE(reference, ''), COALESCE(note, ''), received_by, created_at
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, 4)
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Method, &p.Reference, &p.Note, &p.ReceivedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (s *Store) loadHistory(ctx context.Context, q dbtx, orderID string) ([]domain.StatusHistoryEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, from_status, to_status, COALESCE(note, ''), changed_by, created_at
		FROM status_history
		WHERE order_id = $1
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]domain.StatusHistoryEntry, 0, 4)
	for rows.Next() {
		var h domain.StatusHistoryEntry
		if err := rows.Scan(&h.ID, &h.OrderID, &h.FromStatus, &h.ToStatus, &h.Note, &h.ChangedBy, &h.CreatedAt); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

func (s *Store) loadChildren(ctx context.Context, q dbtx, o *domain.ServiceOrder) error {
	var err error
	if o.Lines, err = s.loadLines(ctx, q, o.ID); err != nil {
		return err
	}
	if o.Parts, err = s.loadParts(ctx, q, o.ID); err != nil {
		return err
	}
	if o.Payments, err = s.loadPayments(ctx, q, o.ID); err != nil {
		return err
	}
	o.History, err = s.loadHistory(ctx, q, o.ID)
	return err
}

// recalcOrder reloads the children and re-derives the money columns
// and payment status, writing them back to the order row. Must run
// inside the mutating transaction.
func (s *Store) recalcOrder(ctx context.Context, tx *sql.Tx, o *domain.ServiceOrder) error {
	if err := s.loadChildren(ctx, tx, o); err != nil {
		return err
	}
	sub, disc, total := domain.ComputeTotals(o.Lines, o.Parts, o.Discount, s.decimals)
	o.SubTotal = money.MinorToDecimal(sub, s.decimals)
	o.Discount = money.MinorToDecimal(disc, s.decimals)
	o.Total = money.MinorToDecimal(total, s.decimals)
	paid := domain.PaidMinor(o.Payments, s.decimals)
	o.PaymentStatus = domain.DerivePaymentStatus(total, paid)

	_, err := tx.ExecContext(ctx, `
		UPDATE service_orders
		SET sub_total = $2, discount = $3, total = $4, payment_status = $5, updated_at = now()
		WHERE id = $1
	`, o.ID, o.SubTotal, o.Discount, o.Total, o.PaymentStatus)
	return err
}

func (s *Store) insertHistory(ctx context.Context, tx *sql.Tx, o *domain.ServiceOrder, target, note, actorID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO status_history (id, order_id, from_status, to_status, note, changed_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, xid.New("hist"), o.ID, o.Status, target, nullIfEmpty(note), actorID)
	return err
}

func (s *Store) insertAudit(ctx context.Context, tx dbtx, actorID, action, entityType, entityID, detail string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		SELECT $1, $2, COALESCE(u.username, ''), COALESCE(u.role, ''), $3, $4, $5, $6, now()
		FROM (SELECT 1) one
		LEFT JOIN users u ON u.id = $2
	`, xid.New("aud"), actorID, action, entityType, entityID, nullIfEmpty(detail))
	return err
}

// resolveLine applies the repair-service catalog fallbacks to a line
// request inside the transaction.
func (s *Store) resolveLine(ctx context.Context, tx *sql.Tx, orderID string, req domain.OrderLineRequest) (*domain.ServiceLine, error) {
	if req.Qty < 1 {
		return nil, fmt.Errorf("%w: line qty must be at least 1", store.ErrValidation)
	}
	desc := strings.TrimSpace(req.Description)
	price := strings.TrimSpace(req.UnitPrice)
	if req.RepairServiceID != "" {
		var name, defaultPrice string
		err := tx.QueryRowContext(ctx, `
			SELECT name, default_price
			FROM repair_services
			WHERE id = $1 AND deleted_at IS NULL
		`, req.RepairServiceID).Scan(&name, &defaultPrice)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: repair service not found", store.ErrValidation)
		}
		if err != nil {
			return nil, err
		}
		if desc == "" {
			desc = name
		}
		if price == "" {
			price = defaultPrice
		}
	}
	if desc == "" {
		return nil, fmt.Errorf("%w: line description is required", store.ErrValidation)
	}
	if price == "" {
		return nil, fmt.Errorf("%w: line unit price is required", store.ErrValidation)
	}
	unitMinor := money.ToMinor(price, s.decimals)
	if unitMinor < 0 {
		return nil, fmt.Errorf("%w: line unit price must not be negative", store.ErrValidation)
	}
	return &domain.ServiceLine{
		ID:              xid.New("line"),
		OrderID:         orderID,
		RepairServiceID: req.RepairServiceID,
		Description:     desc,
		Qty:             req.Qty,
		UnitPrice:       money.MinorToDecimal(unitMinor, s.decimals),
		LineTotal:       money.MinorToDecimal(int64(req.Qty)*unitMinor, s.decimals),
	}, nil
}

func (s *Store) insertLine(ctx context.Context, tx *sql.Tx, l *domain.ServiceLine) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO service_lines (id, order_id, repair_service_id, description, qty, unit_price, line_total, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
	`, l.ID, l.OrderID, nullIfEmpty(l.RepairServiceID), l.Description, l.Qty, l.UnitPrice, l.LineTotal)
	return err
}

func (s *Store) insertPayment(ctx context.Context, tx *sql.Tx, p *domain.Payment) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, amount, method, reference, note, received_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
	`, p.ID, p.OrderID, p.Amount, p.Method, nullIfEmpty(p.Reference), nullIfEmpty(p.Note), p.ReceivedBy)
	return err
}

func (s *Store) insertAR(ctx context.Context, tx *sql.Tx, ar *domain.ARTransaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ar_transactions (id, customer_id, order_id, type, amount, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, ar.ID, ar.CustomerID, nullIfEmpty(ar.OrderID), ar.Type, ar.Amount, nullIfEmpty(ar.Note))
	return err
}

func (s *Store) nextOrderCode(ctx context.Context, tx *sql.Tx, now time.Time) (string, error) {
	date := now.Format("20060102")
	prefix := "SR-" + date + "-"
	var last string
	err := tx.QueryRowContext(ctx, `
		SELECT code
		FROM service_orders
		WHERE code LIKE $1
		ORDER BY code DESC
		LIMIT 1
	`, prefix+"%").Scan(&last)
	seq := 0
	if err == nil {
		fmt.Sscanf(strings.TrimPrefix(last, prefix), "%d", &seq)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	for {
		seq++
		code := fmt.Sprintf("%s%04d", prefix, seq)
		var exists bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM service_orders WHERE code = $1)
		`, code).Scan(&exists); err != nil {
			return "", err
		}
		if !exists {
			return code, nil
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

func (s *Store) customerExists(ctx context.Context, q dbtx, customerID string) error {
	var exists bool
	if err := q.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM customers WHERE id = $1 AND deleted_at IS NULL)
	`, customerID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: customer not found", store.ErrValidation)
	}
	return nil
}

func (s *Store) staffExists(ctx context.Context, q dbtx, staffID string) error {
	var exists bool
	if err := q.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM staff WHERE id = $1 AND deleted_at IS NULL)
	`, staffID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: staff not found", store.ErrValidation)
	}
	return nil
}

func (s *Store) CreateServiceOrder(ctx context.Context, req domain.OrderCreateRequest, actorID string) (*domain.ServiceOrder, error) {
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

	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.customerExists(ctx, tx, req.CustomerID); err != nil {
		return nil, err
	}
	if req.StaffID != "" {
		if err := s.staffExists(ctx, tx, req.StaffID); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	code, err := s.nextOrderCode(ctx, tx, now)
	if err != nil {
		return nil, err
	}

	orderID := xid.New("ord")
	zero := money.MinorToDecimal(0, s.decimals)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO service_orders (
			id, code, customer_id, staff_id, item_description, brand, color, problem,
			notes, urgent, pair_count, received_at, promised_at, status,
			sub_total, discount, total, payment_status, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,now(),now())
	`, orderID, code, req.CustomerID, nullIfEmpty(req.StaffID),
		strings.TrimSpace(req.ItemDescription), strings.TrimSpace(req.Brand),
		strings.TrimSpace(req.Color), strings.TrimSpace(req.Problem),
		strings.TrimSpace(req.Notes), req.Urgent, pairCount, now, nullTime(promisedAt),
		domain.StatusReceived, zero, zero, zero, domain.PayUnpaid)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: order code collision", store.ErrBusinessRule)
		}
		return nil, err
	}

	for _, lr := range req.Lines {
		line, err := s.resolveLine(ctx, tx, orderID, lr)
		if err != nil {
			return nil, err
		}
		if err := s.insertLine(ctx, tx, line); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO status_history (id, order_id, from_status, to_status, note, changed_by, created_at)
		VALUES ($1,$2,'',$3,$4,$5,now())
	`, xid.New("hist"), orderID, domain.StatusReceived, "order created", actorID)
	if err != nil {
		return nil, err
	}

	if req.Deposit != nil {
		amt := money.ToMinor(req.Deposit.Amount, s.decimals)
		if amt <= 0 {
			return nil, fmt.Errorf("%w: deposit amount must be positive", store.ErrValidation)
		}
		method, err := normalizeMethod(req.Deposit.Method)
		if err != nil {
			return nil, err
		}
		p := &domain.Payment{
			ID:         xid.New("pay"),
			OrderID:    orderID,
			Amount:     money.MinorToDecimal(amt, s.decimals),
			Method:     method,
			Reference:  req.Deposit.Reference,
			Note:       req.Deposit.Note,
			ReceivedBy: actorID,
		}
		if err := s.insertPayment(ctx, tx, p); err != nil {
			return nil, err
		}
		if err := s.insertAR(ctx, tx, &domain.ARTransaction{
			ID:         xid.New("ar"),
			CustomerID: req.CustomerID,
			OrderID:    orderID,
			Type:       domain.ARPayment,
			Amount:     p.Amount,
			Note:       "deposit on " + code,
		}); err != nil {
			return nil, err
		}
	}

	o, err := s.lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.recalcOrder(ctx, tx, o); err != nil {
		return nil, err
	}
	if err := s.insertAudit(ctx, tx, actorID, "service_order.create", "service_order", orderID, code); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) GetServiceOrder(ctx context.Context, orderID string) (*domain.ServiceOrder, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM service_orders
		WHERE id = $1 AND deleted_at IS NULL
	`, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadChildren(ctx, s.db, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) ListServiceOrders(ctx context.Context, status string, customerID string, q string, limit int) ([]domain.ServiceOrder, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM service_orders
		WHERE deleted_at IS NULL
		  AND ($1 = '' OR status = $1)
		  AND ($2 = '' OR customer_id = $2)
		  AND ($3 = '' OR code ILIKE '%' || $3 || '%' OR item_description ILIKE '%' || $3 || '%' OR brand ILIKE '%' || $3 || '%')
		ORDER BY created_at DESC
		LIMIT $4
	`, status, customerID, strings.TrimSpace(q), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.ServiceOrder, 0, limit)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range orders {
		if err := s.loadChildren(ctx, s.db, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (s *Store) UpdateServiceOrderHeader(ctx context.Context, orderID string, req domain.OrderHeaderUpdateRequest, actorID string) (*domain.ServiceOrder, error) {
	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	o, err := s.lockMutableOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if req.CustomerID != nil {
		if err := s.customerExists(ctx, tx, *req.CustomerID); err != nil {
			return nil, err
		}
		o.CustomerID = *req.CustomerID
	}
	if req.StaffID != nil {
		if *req.StaffID != "" {
			if err := s.staffExists(ctx, tx, *req.StaffID); err != nil {
				return nil, err
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

	_, err = tx.ExecContext(ctx, `
		UPDATE service_orders
		SET customer_id = $2, staff_id = $3, item_description = $4, brand = $5, color = $6,
		    problem = $7, notes = $8, urgent = $9, pair_count = $10, promised_at = $11, updated_at = now()
		WHERE id = $1
	`, o.ID, o.CustomerID, nullIfEmpty(o.StaffID), o.ItemDescription, o.Brand, o.Color,
		o.Problem, o.Notes, o.Urgent, o.PairCount, nullTime(o.PromisedAt))
	if err != nil {
		return nil, err
	}
	if err := s.loadChildren(ctx, tx, o); err != nil {
		return nil, err
	}
	if err := s.insertAudit(ctx, tx, actorID, "service_order.update", "service_order", o.ID, o.Code); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) AddServiceLine(ctx context.Context, orderID string, req domain.OrderLineRequest, actorID string) (*domain.ServiceOrder, error) {
	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	o, err := s.lockMutableOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	line, err := s.resolveLine(ctx, tx, o.ID, req)
	if err != nil {
		return nil, err
	}
	if err := s.insertLine(ctx, tx, line); err != nil {
		return nil, err
	}
	if err := s.recalcOrder(ctx, tx, o); err != nil {
		return nil, err
	}
	if err := s.insertAudit(ctx, tx, actorID, "service_order.line_add", "service_order", o.ID, line.Description); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) RemoveServiceLine(ctx context.Context, orderID string, lineID string, actorID string) (*domain.ServiceOrder, error) {
	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	o, err := s.lockMutableOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, `
		DELETE FROM service_lines WHERE id = $1 AND order_id = $2
	`, lineID, o.ID)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	if err := s.recalcOrder(ctx, tx, o); err != nil {
		return nil, err
	}
	if err := s.insertAudit(ctx, tx, actorID, "service_order.line_remove", "service_order", o.ID, lineID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) AddServicePart(ctx context.Context, orderID string, req domain.OrderPartRequest, actorID string) (*domain.ServiceOrder, error) {
	if req.Qty < 1 {
		return nil, fmt.Errorf("%w: part qty must be at least 1", store.ErrValidation)
	}

	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	o, err := s.lockMutableOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	var sku, itemPrice string
	err = tx.QueryRowContext(ctx, `
		SELECT sku, price
		FROM items
		WHERE id = $1 AND deleted_at IS NULL
		FOR UPDATE
	`, req.ItemID).Scan(&sku, &itemPrice)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: item not found", store.ErrValidation)
	}
	if err != nil {
		return nil, err
	}

	price := strings.TrimSpace(req.UnitPrice)
	if price == "" {
		price = itemPrice
	}
	unitMinor := money.ToMinor(price, s.decimals)
	if unitMinor < 0 {
		return nil, fmt.Errorf("%w: part unit price must not be negative", store.ErrValidation)
	}

	partID := xid.New("part")
	_, err = tx.ExecContext(ctx, `
		INSERT INTO service_parts (id, order_id, item_id, qty, unit_price, line_total, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, partID, o.ID, req.ItemID, req.Qty,
		money.MinorToDecimal(unitMinor, s.decimals),
		money.MinorToDecimal(int64(req.Qty)*unitMinor, s.decimals))
	if err != nil {
		return nil, err
	}

	// Stock leaves inventory when the part is attached; removing the
	// part later does not restore it.
	_, err = tx.ExecContext(ctx, `
		UPDATE items SET on_hand = on_hand - $2, updated_at = now() WHERE id = $1
	`, req.ItemID, req.Qty)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_movements (id, item_id, type, qty, note, ref_type, ref_id, created_at)
		VALUES ($1,$2,$3,$4,$5,'service_order',$6,now())
	`, xid.New("mov"), req.ItemID, domain.MovementServiceOut, -req.Qty, "used on "+o.Code, o.ID)
	if err != nil {
		return nil, err
	}

	if err := s.recalcOrder(ctx, tx, o); err != nil {
		return nil, err
	}
	if err := s.insertAudit(ctx, tx, actorID, "service_order.part_add", "service_order", o.ID, sku); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) RemoveServicePart(ctx context.Context, orderID string, partID string, actorID string) (*domain.ServiceOrder, error) {
	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	o, err := s.lockMutableOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, `
		DELETE FROM service_parts WHERE id = $1 AND order_id = $2
	`, partID, o.ID)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	if err := s.recalcOrder(ctx, tx, o); err != nil {
		return nil, err
	}
	if err := s.insertAudit(ctx, tx, actorID, "service_order.part_remove", "service_order", o.ID, partID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) SetServiceOrderStatus(ctx context.Context, orderID string, req domain.StatusRequest, actorID string) (*domain.ServiceOrder, error) {
	target := strings.ToUpper(strings.TrimSpace(req.Status))
	if !domain.KnownStatus(target) {
		return nil, fmt.Errorf("%w: unknown status %q", store.ErrValidation, req.Status)
	}
	if !domain.GenericStatusTarget(target) {
		return nil, fmt.Errorf("%w: status %s has a dedicated operation", store.ErrValidation, target)
	}

	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	o, err := s.lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if domain.IsTerminal(o.Status) {
		return nil, fmt.Errorf("%w: order %s is %s", store.ErrBusinessRule, o.Code, o.Status)
	}
	if !domain.ValidTransition(o.Status, target) {
		return nil, fmt.Errorf("%w: cannot move %s from %s to %s", store.ErrBusinessRule, o.Code, o.Status, target)
	}

	if err := s.insertHistory(ctx, tx, o, target, req.Note, actorID); err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE service_orders SET status = $2, updated_at = now() WHERE id = $1
	`, o.ID, target)
	if err != nil {
		return nil, err
	}
	o.Status = target
	if err := s.loadChildren(ctx, tx, o); err != nil {
		return nil, err
	}
	if err := s.insertAudit(ctx, tx, actorID, "service_order.status", "service_order", o.ID, target); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) MarkServiceOrderReady(ctx context.Context, orderID string, req domain.MarkReadyRequest, actorID string) (*domain.ServiceOrder, error) {
	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	o, err := s.lockMutableOrder(ctx, tx, orderID)
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
	if err := s.recalcOrder(ctx, tx, o); err != nil {
		return nil, err
	}

	// One-time AR charge on the first transition to READY.
	var charged bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM ar_transactions WHERE order_id = $1 AND type = $2)
	`, o.ID, domain.ARCharge).Scan(&charged)
	if err != nil {
		return nil, err
	}
	if !charged {
		if err := s.insertAR(ctx, tx, &domain.ARTransaction{
			ID:         xid.New("ar"),
			CustomerID: o.CustomerID,
			OrderID:    o.ID,
			Type:       domain.ARCharge,
			Amount:     o.Total,
			Note:       "charge for " + o.Code,
		}); err != nil {
			return nil, err
		}
	}

	if err := s.insertHistory(ctx, tx, o, domain.StatusReady, req.Note, actorID); err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE service_orders SET status = $2, updated_at = now() WHERE id = $1
	`, o.ID, domain.StatusReady)
	if err != nil {
		return nil, err
	}
	o.Status = domain.StatusReady
	if err := s.loadChildren(ctx, tx, o); err != nil {
		return nil, err
	}
	if err := s.insertAudit(ctx, tx, actorID, "service_order.ready", "service_order", o.ID, o.Total); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) DeliverServiceOrder(ctx context.Context, orderID string, req domain.DeliverRequest, actorID string) (*domain.ServiceOrder, error) {
	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	o, err := s.lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != domain.StatusReady {
		return nil, fmt.Errorf("%w: order %s must be READY to deliver, is %s", store.ErrBusinessRule, o.Code, o.Status)
	}
	// Re-derive under the lock so the paid guard never trusts a stale column.
	if err := s.recalcOrder(ctx, tx, o); err != nil {
		return nil, err
	}
	if o.PaymentStatus != domain.PayPaid {
		return nil, fmt.Errorf("%w: order %s is not fully paid", store.ErrBusinessRule, o.Code)
	}

	if err := s.insertHistory(ctx, tx, o, domain.StatusDelivered, req.Note, actorID); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE service_orders SET status = $2, delivered_at = $3, updated_at = now() WHERE id = $1
	`, o.ID, domain.StatusDelivered, now)
	if err != nil {
		return nil, err
	}
	o.Status = domain.StatusDelivered
	o.DeliveredAt = &now
	if err := s.loadChildren(ctx, tx, o); err != nil {
		return nil, err
	}
	if err := s.insertAudit(ctx, tx, actorID, "service_order.deliver", "service_order", o.ID, o.Code); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) ApplyServiceOrderDiscount(ctx context.Context, orderID string, req domain.DiscountRequest, actorID string) (*domain.ServiceOrder, error) {
	if money.ToMinor(req.Discount, s.decimals) < 0 {
		return nil, fmt.Errorf("%w: discount must not be negative", store.ErrValidation)
	}

	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	o, err := s.lockMutableOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	o.Discount = req.Discount
	if err := s.recalcOrder(ctx, tx, o); err != nil {
		return nil, err
	}
	if err := s.insertAudit(ctx, tx, actorID, "service_order.discount", "service_order", o.ID, o.Discount); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) AddServiceOrderPayment(ctx context.Context, orderID string, req domain.PaymentRequest, actorID string) (*domain.ServiceOrder, error) {
	amt := money.ToMinor(req.Amount, s.decimals)
	if amt <= 0 {
		return nil, fmt.Errorf("%w: payment amount must be positive", store.ErrValidation)
	}
	method, err := normalizeMethod(req.Method)
	if err != nil {
		return nil, err
	}

	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	o, err := s.lockMutableOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	p := &domain.Payment{
		ID:         xid.New("pay"),
		OrderID:    o.ID,
		Amount:     money.MinorToDecimal(amt, s.decimals),
		Method:     method,
		Reference:  req.Reference,
		Note:       req.Note,
		ReceivedBy: actorID,
	}
	if err := s.insertPayment(ctx, tx, p); err != nil {
		return nil, err
	}
	if err := s.insertAR(ctx, tx, &domain.ARTransaction{
		ID:         xid.New("ar"),
		CustomerID: o.CustomerID,
		OrderID:    o.ID,
		Type:       domain.ARPayment,
		Amount:     p.Amount,
		Note:       "payment on " + o.Code,
	}); err != nil {
		return nil, err
	}
	if err := s.recalcOrder(ctx, tx, o); err != nil {
		return nil, err
	}
	if err := s.insertAudit(ctx, tx, actorID, "service_order.payment", "service_order", o.ID, p.Amount); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) RefundServiceOrderPayment(ctx context.Context, orderID string, req domain.RefundRequest, actorID string) (*domain.ServiceOrder, error) {
	if strings.TrimSpace(req.Reason) == "" {
		return nil, fmt.Errorf("%w: refund reason is required", store.ErrValidation)
	}

	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	o, err := s.lockMutableOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	var origAmount, origMethod string
	err = tx.QueryRowContext(ctx, `
		SELECT amount, method
		FROM payments
		WHERE id = $1 AND order_id = $2
	`, req.PaymentID, o.ID).Scan(&origAmount, &origMethod)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	origMinor := money.ToMinor(origAmount, s.decimals)
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

	refund := &domain.Payment{
		ID:         xid.New("pay"),
		OrderID:    o.ID,
		Amount:     money.MinorToDecimal(-amt, s.decimals),
		Method:     origMethod,
		Note:       "REFUND: " + req.Reason,
		ReceivedBy: actorID,
	}
	if err := s.insertPayment(ctx, tx, refund); err != nil {
		return nil, err
	}
	if err := s.insertAR(ctx, tx, &domain.ARTransaction{
		ID:         xid.New("ar"),
		CustomerID: o.CustomerID,
		OrderID:    o.ID,
		Type:       domain.ARRefund,
		Amount:     refund.Amount,
		Note:       "refund on " + o.Code + ": " + req.Reason,
	}); err != nil {
		return nil, err
	}
	if err := s.recalcOrder(ctx, tx, o); err != nil {
		return nil, err
	}
	if err := s.insertAudit(ctx, tx, actorID, "service_order.refund", "service_order", o.ID, refund.Amount); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) SoftDeleteServiceOrder(ctx context.Context, orderID string, actorID string) error {
	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	o, err := s.lockOrder(ctx, tx, orderID)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE service_orders SET deleted_at = now(), updated_at = now() WHERE id = $1
	`, o.ID)
	if err != nil {
		return err
	}
	if err := s.insertAudit(ctx, tx, actorID, "service_order.delete", "service_order", o.ID, o.Code); err != nil {
		return err
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
