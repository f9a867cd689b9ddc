package domain

import "time"

// Monetary fields travel as canonical decimal strings. Arithmetic never
// happens on these strings directly; stores convert through minor units
// (internal/money) at the configured currency scale.

type Customer struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Phone     string     `json:"phone"`
	Email     string     `json:"email,omitempty"`
	Address   string     `json:"address,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"-"`
}

type CustomerCreateRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
	Notes   string `json:"notes"`
}

type CustomerUpdateRequest struct {
	Name    *string `json:"name,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Email   *string `json:"email,omitempty"`
	Address *string `json:"address,omitempty"`
	Notes   *string `json:"notes,omitempty"`
}

type CustomerOverview struct {
	CustomerID  string     `json:"customer_id"`
	TicketCount int        `json:"ticket_count"`
	TotalSpent  string     `json:"total_spent"`
	TotalPaid   string     `json:"total_paid"`
	Outstanding string     `json:"outstanding"`
	LastVisit   *time.Time `json:"last_visit,omitempty"`
	Repeat      bool       `json:"repeat"`
}

type RepairService struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	DefaultPrice string     `json:"default_price"`
	DurationDays int        `json:"duration_days"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"-"`
}

type RepairServiceCreateRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	DefaultPrice string `json:"default_price"`
	DurationDays int    `json:"duration_days"`
}

type RepairServiceUpdateRequest struct {
	Name         *string `json:"name,omitempty"`
	Description  *string `json:"description,omitempty"`
	DefaultPrice *string `json:"default_price,omitempty"`
	DurationDays *int    `json:"duration_days,omitempty"`
	Active       *bool   `json:"active,omitempty"`
}

type Item struct {
	ID           string     `json:"id"`
	SKU          string     `json:"sku"`
	Barcode      string     `json:"barcode,omitempty"`
	Name         string     `json:"name"`
	Unit         string     `json:"unit"`
	Cost         string     `json:"cost"`
	Price        string     `json:"price"`
	ReorderLevel int        `json:"reorder_level"`
	OnHand       int        `json:"on_hand"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"-"`
}

type ItemCreateRequest struct {
	SKU          string `json:"sku"`
	Barcode      string `json:"barcode"`
	Name         string `json:"name"`
	Unit         string `json:"unit"`
	Cost         string `json:"cost"`
	Price        string `json:"price"`
	ReorderLevel int    `json:"reorder_level"`
	InitialStock int    `json:"initial_stock"`
}

type ItemUpdateRequest struct {
	SKU          *string `json:"sku,omitempty"`
	Barcode      *string `json:"barcode,omitempty"`
	Name         *string `json:"name,omitempty"`
	Unit         *string `json:"unit,omitempty"`
	Cost         *string `json:"cost,omitempty"`
	Price        *string `json:"price,omitempty"`
	ReorderLevel *int    `json:"reorder_level,omitempty"`
}

type StockMovement struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"item_id"`
	Type      string    `json:"type"`
	Qty       int       `json:"qty"`
	Note      string    `json:"note,omitempty"`
	RefType   string    `json:"ref_type,omitempty"`
	RefID     string    `json:"ref_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type StockAdjustRequest struct {
	Qty  int    `json:"qty"`
	Note string `json:"note"`
}

type Supplier struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Phone     string     `json:"phone,omitempty"`
	Email     string     `json:"email,omitempty"`
	Address   string     `json:"address,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"-"`
}

type SupplierCreateRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
	Notes   string `json:"notes"`
}

type SupplierUpdateRequest struct {
	Name    *string `json:"name,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Email   *string `json:"email,omitempty"`
	Address *string `json:"address,omitempty"`
	Notes   *string `json:"notes,omitempty"`
}

type PurchaseLine struct {
	ID        string `json:"id"`
	ItemID    string `json:"item_id"`
	Qty       int    `json:"qty"`
	UnitCost  string `json:"unit_cost"`
	LineTotal string `json:"line_total"`
}

type Purchase struct {
	ID         string         `json:"id"`
	SupplierID string         `json:"supplier_id"`
	InvoiceNo  string         `json:"invoice_no,omitempty"`
	Status     string         `json:"status"`
	SubTotal   string         `json:"sub_total"`
	Discount   string         `json:"discount"`
	Total      string         `json:"total"`
	Notes      string         `json:"notes,omitempty"`
	ReceivedAt *time.Time     `json:"received_at,omitempty"`
	ReceivedBy string         `json:"received_by,omitempty"`
	Lines      []PurchaseLine `json:"lines"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  *time.Time     `json:"-"`
}

type PurchaseLineRequest struct {
	ItemID   string `json:"item_id"`
	Qty      int    `json:"qty"`
	UnitCost string `json:"unit_cost"`
}

type PurchaseCreateRequest struct {
	SupplierID string                `json:"supplier_id"`
	InvoiceNo  string                `json:"invoice_no"`
	Discount   string                `json:"discount"`
	Notes      string                `json:"notes"`
	Lines      []PurchaseLineRequest `json:"lines"`
}

type PurchaseUpdateRequest struct {
	SupplierID *string               `json:"supplier_id,omitempty"`
	InvoiceNo  *string               `json:"invoice_no,omitempty"`
	Discount   *string               `json:"discount,omitempty"`
	Notes      *string               `json:"notes,omitempty"`
	Lines      []PurchaseLineRequest `json:"lines,omitempty"`
}

type Staff struct {
	ID        string     `json:"id"`
	Code      string     `json:"code"`
	Name      string     `json:"name"`
	Phone     string     `json:"phone,omitempty"`
	Position  string     `json:"position,omitempty"`
	Salary    string     `json:"salary"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"-"`
}

type StaffCreateRequest struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Position string `json:"position"`
	Salary   string `json:"salary"`
}

type StaffUpdateRequest struct {
	Code     *string `json:"code,omitempty"`
	Name     *string `json:"name,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Position *string `json:"position,omitempty"`
	Salary   *string `json:"salary,omitempty"`
	Status   *string `json:"status,omitempty"`
}

type OtherIncome struct {
	ID        string     `json:"id"`
	Date      time.Time  `json:"date"`
	Source    string     `json:"source"`
	Amount    string     `json:"amount"`
	Notes     string     `json:"notes,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"-"`
}

type OtherIncomeRequest struct {
	Date   string `json:"date"`
	Source string `json:"source"`
	Amount string `json:"amount"`
	Notes  string `json:"notes"`
}

type Expense struct {
	ID        string     `json:"id"`
	Date      time.Time  `json:"date"`
	Category  string     `json:"category"`
	Amount    string     `json:"amount"`
	Notes     string     `json:"notes,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"-"`
}

type ExpenseRequest struct {
	Date     string `json:"date"`
	Category string `json:"category"`
	Amount   string `json:"amount"`
	Notes    string `json:"notes"`
}

type ServiceLine struct {
	ID              string `json:"id"`
	OrderID         string `json:"order_id"`
	RepairServiceID string `json:"repair_service_id,omitempty"`
	Description     string `json:"description"`
	Qty             int    `json:"qty"`
	UnitPrice       string `json:"unit_price"`
	LineTotal       string `json:"line_total"`
}

type ServicePart struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	ItemID    string `json:"item_id"`
	Qty       int    `json:"qty"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

type StatusHistoryEntry struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"order_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Note       string    `json:"note,omitempty"`
	ChangedBy  string    `json:"changed_by"`
	CreatedAt  time.Time `json:"created_at"`
}

type Payment struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"order_id"`
	Amount     string    `json:"amount"`
	Method     string    `json:"method"`
	Reference  string    `json:"reference,omitempty"`
	Note       string    `json:"note,omitempty"`
	ReceivedBy string    `json:"received_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// ServiceOrder is the lifecycle aggregate. SubTotal, Discount, Total and
// PaymentStatus are derived columns, re-derived in full from the child
// collections on every mutation.
type ServiceOrder struct {
	ID              string               `json:"id"`
	Code            string               `json:"code"`
	CustomerID      string               `json:"customer_id"`
	StaffID         string               `json:"staff_id,omitempty"`
	ItemDescription string               `json:"item_description"`
	Brand           string               `json:"brand,omitempty"`
	Color           string               `json:"color,omitempty"`
	Problem         string               `json:"problem,omitempty"`
	Notes           string               `json:"notes,omitempty"`
	Urgent          bool                 `json:"urgent"`
	PairCount       int                  `json:"pair_count"`
	ReceivedAt      time.Time            `json:"received_at"`
	PromisedAt      *time.Time           `json:"promised_at,omitempty"`
	Status          string               `json:"status"`
	SubTotal        string               `json:"sub_total"`
	Discount        string               `json:"discount"`
	Total           string               `json:"total"`
	PaymentStatus   string               `json:"payment_status"`
	DeliveredAt     *time.Time           `json:"delivered_at,omitempty"`
	Lines           []ServiceLine        `json:"lines"`
	Parts           []ServicePart        `json:"parts"`
	Payments        []Payment            `json:"payments"`
	History         []StatusHistoryEntry `json:"history"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
	DeletedAt       *time.Time           `json:"-"`
}

type OrderLineRequest struct {
	RepairServiceID string `json:"repair_service_id"`
	Description     string `json:"description"`
	Qty             int    `json:"qty"`
	UnitPrice       string `json:"unit_price"`
}

type OrderPartRequest struct {
	ItemID    string `json:"item_id"`
	Qty       int    `json:"qty"`
	UnitPrice string `json:"unit_price"`
}

type PaymentRequest struct {
	Amount    string `json:"amount"`
	Method    string `json:"method"`
	Reference string `json:"reference"`
	Note      string `json:"note"`
}

type OrderCreateRequest struct {
	CustomerID      string             `json:"customer_id"`
	StaffID         string             `json:"staff_id"`
	ItemDescription string             `json:"item_description"`
	Brand           string             `json:"brand"`
	Color           string             `json:"color"`
	Problem         string             `json:"problem"`
	Notes           string             `json:"notes"`
	Urgent          bool               `json:"urgent"`
	PairCount       int                `json:"pair_count"`
	PromisedAt      string             `json:"promised_at"`
	Lines           []OrderLineRequest `json:"lines"`
	Deposit         *PaymentRequest    `json:"deposit,omitempty"`
}

type OrderHeaderUpdateRequest struct {
	CustomerID      *string `json:"customer_id,omitempty"`
	StaffID         *string `json:"staff_id,omitempty"`
	ItemDescription *string `json:"item_description,omitempty"`
	Brand           *string `json:"brand,omitempty"`
	Color           *string `json:"color,omitempty"`
	Problem         *string `json:"problem,omitempty"`
	Notes           *string `json:"notes,omitempty"`
	Urgent          *bool   `json:"urgent,omitempty"`
	PairCount       *int    `json:"pair_count,omitempty"`
	PromisedAt      *string `json:"promised_at,omitempty"`
}

type StatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

type MarkReadyRequest struct {
	Discount *string `json:"discount,omitempty"`
	Note     string  `json:"note"`
}

type DeliverRequest struct {
	Note string `json:"note"`
}

type DiscountRequest struct {
	Discount string `json:"discount"`
}

type RefundRequest struct {
	PaymentID string `json:"payment_id"`
	Amount    string `json:"amount"`
	Reason    string `json:"reason"`
}

type ARTransaction struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	OrderID    string    `json:"order_id,omitempty"`
	Type       string    `json:"type"`
	Amount     string    `json:"amount"`
	Note       string    `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorID       string    `json:"actor_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	UserID   string
	Username string
	Role     string
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type UserView struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID        string
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	StatusReceived  = "RECEIVED"
	StatusCleaning  = "CLEANING"
	StatusRepairing = "REPAIRING"
	StatusReady     = "READY"
	StatusDelivered = "DELIVERED"
	StatusCancelled = "CANCELLED"
)

const (
	PayUnpaid  = "UNPAID"
	PayPartial = "PARTIAL"
	PayPaid    = "PAID"
)

const (
	MethodCash     = "CASH"
	MethodCard     = "CARD"
	MethodTransfer = "TRANSFER"
	MethodOther    = "OTHER"
)

const (
	ARCharge  = "CHARGE"
	ARPayment = "PAYMENT"
	ARRefund  = "REFUND"
)

const (
	MovementIn         = "IN"
	MovementServiceOut = "SERVICE_OUT"
	MovementAdjust     = "ADJUST"
)

const (
	PurchaseDraft    = "DRAFT"
	PurchaseReceived = "RECEIVED"
)

const (
	StaffActive   = "ACTIVE"
	StaffInactive = "INACTIVE"
)

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)
