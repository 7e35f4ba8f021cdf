package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DiscountType is how a discount value is interpreted
type DiscountType string

const (
	DiscountNone    DiscountType = "NONE"
	DiscountPercent DiscountType = "PERCENT"
	DiscountFixed   DiscountType = "FIXED"
)

// ProductStatus controls catalog visibility
type ProductStatus string

const (
	StatusDraft     ProductStatus = "DRAFT"
	StatusPublished ProductStatus = "PUBLISHED"
	StatusArchived  ProductStatus = "ARCHIVED"
)

// Condition of a device or item
type Condition string

const (
	ConditionNew    Condition = "NEW"
	ConditionUKUsed Condition = "UK_USED"
	ConditionNGUsed Condition = "NG_USED"
)

func (d DiscountType) Valid() bool {
	return d == DiscountNone || d == DiscountPercent || d == DiscountFixed
}

func (s ProductStatus) Valid() bool {
	return s == StatusDraft || s == StatusPublished || s == StatusArchived
}

func (c Condition) Valid() bool {
	return c == ConditionNew || c == ConditionUKUsed || c == ConditionNGUsed
}

// Label is the customer facing name of the condition
func (c Condition) Label() string {
	switch c {
	case ConditionNew:
		return "Brand New"
	case ConditionUKUsed:
		return "UK Used"
	case ConditionNGUsed:
		return "Nigerian Used"
	default:
		return string(c)
	}
}

// Discount pairs a type with its value. PERCENT values are whole percents,
// FIXED values are minor currency units.
type Discount struct {
	Type  DiscountType `json:"type"`
	Value int64        `json:"value"`
}

// StringList is stored as a JSON array column
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = StringList{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for StringList", src)
	}
	if len(raw) == 0 {
		*l = StringList{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("failed to decode StringList: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	*l = out
	return nil
}

// Category groups products
type Category struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Product represents a product in the catalog
type Product struct {
	ID          int64         `json:"id" db:"id"`
	CategoryID  int64         `json:"categoryId" db:"category_id"`
	Slug        string        `json:"slug" db:"slug"`
	Name        string        `json:"name" db:"name"`
	Brand       string        `json:"brand" db:"brand"`
	Description string        `json:"description" db:"description"`
	Images      StringList    `json:"images" db:"images"`
	Price       int64         `json:"price" db:"price"`
	Discount    Discount      `json:"discount"`
	FinalPrice  int64         `json:"finalPrice"`
	Stock       int           `json:"stock" db:"stock"`
	Status      ProductStatus `json:"status" db:"status"`
	Condition   Condition     `json:"condition" db:"condition"`
	DealType    string        `json:"dealType" db:"deal_type"`
	Tags        StringList    `json:"tags" db:"tags"`
	Specs       StringList    `json:"specs" db:"specs"`
	Details     StringList    `json:"details" db:"details"`
	CreatedAt   time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time     `json:"updatedAt" db:"updated_at"`
}

// Cart is identified by the id stored in the cart cookie
type Cart struct {
	ID        string    `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// CartItem keeps a snapshot of the product price at the time it was added
type CartItem struct {
	ID           int64     `json:"id" db:"id"`
	CartID       string    `json:"cartId" db:"cart_id"`
	ProductID    int64     `json:"productId" db:"product_id"`
	ProductSlug  string    `json:"productSlug" db:"product_slug"`
	ProductName  string    `json:"productName" db:"product_name"`
	ProductImage string    `json:"productImage" db:"product_image"`
	Condition    Condition `json:"condition" db:"condition"`
	Quantity     int       `json:"quantity" db:"quantity"`
	UnitPrice    int64     `json:"unitPrice" db:"unit_price"`
	Discount     Discount  `json:"discount"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// Totals are computed from cart line snapshots, in minor units
type Totals struct {
	ItemCount int   `json:"itemCount"`
	Subtotal  int64 `json:"subtotal"`
	Discount  int64 `json:"discount"`
	Total     int64 `json:"total"`
}

// CartLine is a cart item with its computed amounts
type CartLine struct {
	CartItem
	FinalUnitPrice int64 `json:"finalUnitPrice"`
	LineSubtotal   int64 `json:"lineSubtotal"`
	LineDiscount   int64 `json:"lineDiscount"`
	LineTotal      int64 `json:"lineTotal"`
}

// CartResponse represents a cart with its items
type CartResponse struct {
	Cart   *Cart      `json:"cart"`
	Items  []CartLine `json:"items"`
	Totals Totals     `json:"totals"`
}

// CustomerProfile is upserted by phone or email during checkout
type CustomerProfile struct {
	ID              string    `json:"id" db:"id"`
	FullName        string    `json:"fullName" db:"full_name"`
	Phone           string    `json:"phone" db:"phone"`
	Email           string    `json:"email,omitempty" db:"email"`
	DefaultLocation string    `json:"defaultLocation,omitempty" db:"default_location"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time `json:"updatedAt" db:"updated_at"`
}

// OrderIntentLine is the frozen form of a cart line
type OrderIntentLine struct {
	ProductID      int64     `json:"productId"`
	ProductSlug    string    `json:"productSlug"`
	ProductName    string    `json:"productName"`
	Condition      Condition `json:"condition"`
	Quantity       int       `json:"quantity"`
	UnitPrice      int64     `json:"unitPrice"`
	Discount       Discount  `json:"discount"`
	FinalUnitPrice int64     `json:"finalUnitPrice"`
	LineTotal      int64     `json:"lineTotal"`
}

// OrderIntent is written once when a customer submits WhatsApp checkout
type OrderIntent struct {
	ID          string            `json:"id" db:"id"`
	Reference   string            `json:"reference" db:"reference"`
	CustomerID  string            `json:"customerId" db:"customer_id"`
	FullName    string            `json:"fullName" db:"full_name"`
	Phone       string            `json:"phone" db:"phone"`
	Email       string            `json:"email,omitempty" db:"email"`
	Location    string            `json:"location" db:"location"`
	Note        string            `json:"note,omitempty" db:"note"`
	Lines       []OrderIntentLine `json:"lines" db:"line_items"`
	Totals      Totals            `json:"totals"`
	Message     string            `json:"message" db:"message"`
	WhatsAppURL string            `json:"whatsappUrl" db:"whatsapp_url"`
	CreatedAt   time.Time         `json:"createdAt" db:"created_at"`
}

// AdminUser gates the admin surface
type AdminUser struct {
	ID           int64     `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// ProductFilter narrows the public catalog listing
type ProductFilter struct {
	CategorySlug string
	Query        string
	Condition    Condition
	Limit        int
	Offset       int
}

// CategoryRequest creates or updates a category
type CategoryRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// ProductRequest creates or updates a product
type ProductRequest struct {
	CategoryID  int64         `json:"categoryId"`
	Slug        string        `json:"slug"`
	Name        string        `json:"name"`
	Brand       string        `json:"brand"`
	Description string        `json:"description"`
	Images      []string      `json:"images"`
	Price       int64         `json:"price"`
	Discount    Discount      `json:"discount"`
	Stock       int           `json:"stock"`
	Status      ProductStatus `json:"status"`
	Condition   Condition     `json:"condition"`
	DealType    string        `json:"dealType"`
	Tags        []string      `json:"tags"`
	Specs       []string      `json:"specs"`
	Details     []string      `json:"details"`
}

// AddToCartRequest represents a request to add item to cart
type AddToCartRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// UpdateCartItemRequest sets the quantity of a cart line
type UpdateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

// ContactRequest carries customer contact details
type ContactRequest struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Location string `json:"location"`
}

// CheckoutRequest submits the cart as a WhatsApp order
type CheckoutRequest struct {
	ContactRequest
	Note string `json:"note"`
}

// CheckoutResponse is returned after an order intent is recorded
type CheckoutResponse struct {
	OrderIntent *OrderIntent `json:"orderIntent"`
	Message     string       `json:"message"`
	URL         string       `json:"url"`
}

// LoginRequest authenticates an admin
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
