package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/xenastore/storefront/internal/db"
	"github.com/xenastore/storefront/internal/metrics"
	"github.com/xenastore/storefront/internal/models"
	"github.com/xenastore/storefront/internal/pricing"
	"github.com/xenastore/storefront/internal/whatsapp"
	"go.opentelemetry.io/otel/attribute"
)

const maxNoteLength = 1000

const (
	referenceHexLength   = 12
	maxReferenceAttempts = 3
)

const orderIntentColumns = "id, reference, customer_id, full_name, phone, email, location, note, line_items, " +
	"item_count, subtotal, discount, total, message, whatsapp_url, created_at"

// IntentPublisher is notified after an order intent is committed
type IntentPublisher interface {
	Publish(intent *models.OrderIntent)
}

// CheckoutConfig holds the store details rendered into WhatsApp messages
type CheckoutConfig struct {
	StoreName      string
	CurrencySymbol string
	WhatsAppPhone  string
}

// CheckoutService turns carts into WhatsApp order intents
type CheckoutService struct {
	db        *db.DB
	metrics   *metrics.AppMetrics
	carts     *CartService
	customers *CustomerService
	publisher IntentPublisher
	cfg       CheckoutConfig
}

// NewCheckoutService creates a new checkout service. publisher may be nil.
func NewCheckoutService(db *db.DB, metrics *metrics.AppMetrics, carts *CartService, customers *CustomerService, publisher IntentPublisher, cfg CheckoutConfig) *CheckoutService {
	return &CheckoutService{
		db:        db,
		metrics:   metrics,
		carts:     carts,
		customers: customers,
		publisher: publisher,
		cfg:       cfg,
	}
}

// CreateWhatsAppIntent snapshots the cart into an order intent, upserts the
// customer profile and clears the cart in one transaction.
func (s *CheckoutService) CreateWhatsAppIntent(ctx context.Context, cartID string, req models.CheckoutRequest) (*models.CheckoutResponse, *models.CustomerProfile, error) {
	contact, err := NormalizeContact(req.ContactRequest)
	if err != nil {
		return nil, nil, err
	}
	note := strings.TrimSpace(req.Note)
	if utf8.RuneCountInString(note) > maxNoteLength {
		return nil, nil, invalidf("note must be at most %d characters", maxNoteLength)
	}
	if cartID == "" {
		return nil, nil, ErrEmptyCart
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	items, err := s.carts.loadItems(ctx, tx, cartID, true)
	if err != nil {
		return nil, nil, err
	}
	if len(items) == 0 {
		return nil, nil, ErrEmptyCart
	}

	profile, err := s.customers.upsert(ctx, tx, contact)
	if err != nil {
		return nil, nil, err
	}

	var intent *models.OrderIntent
	for attempt := 1; ; attempt++ {
		intent = newOrderIntent(profile.ID, contact, note, items)
		intent.Message = whatsapp.BuildMessage(intent, whatsapp.Options{
			StoreName:      s.cfg.StoreName,
			CurrencySymbol: s.cfg.CurrencySymbol,
		})
		intent.WhatsAppURL = whatsapp.Link(s.cfg.WhatsAppPhone, intent.Message)

		err = s.insertIntent(ctx, tx, intent)
		if err == nil {
			break
		}
		// a reference collision only fails the statement, the transaction stays usable
		if !isDuplicate(err) || attempt == maxReferenceAttempts {
			return nil, nil, fmt.Errorf("failed to create order intent: %w", err)
		}
		slog.WarnContext(ctx, "order intent reference collision, retrying", "reference", intent.Reference)
	}

	if err := s.carts.clearItems(ctx, tx, cartID); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit order intent: %w", err)
	}

	attrs := s.metrics.Attrs(attribute.Int("item_count", intent.Totals.ItemCount))
	s.metrics.OrderIntentsCreated.Add(ctx, 1, attrs)
	s.metrics.OrderIntentValue.Add(ctx, intent.Totals.Total, attrs)

	if s.publisher != nil {
		s.publisher.Publish(intent)
	}

	slog.InfoContext(ctx, "order intent created",
		"order_intent_id", intent.ID,
		"reference", intent.Reference,
		"customer_id", intent.CustomerID,
		"item_count", intent.Totals.ItemCount,
		"total", intent.Totals.Total,
	)

	return &models.CheckoutResponse{
		OrderIntent: intent,
		Message:     intent.Message,
		URL:         intent.WhatsAppURL,
	}, profile, nil
}

func (s *CheckoutService) insertIntent(ctx context.Context, q querier, intent *models.OrderIntent) error {
	linesJSON, err := json.Marshal(intent.Lines)
	if err != nil {
		return fmt.Errorf("failed to encode order lines: %w", err)
	}

	start := time.Now()
	query := "INSERT INTO order_intents (id, reference, customer_id, full_name, phone, email, location, note, " +
		"line_items, item_count, subtotal, discount, total, message, whatsapp_url) " +
		"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	_, err = q.ExecContext(ctx, query,
		intent.ID, intent.Reference, intent.CustomerID, intent.FullName, intent.Phone, intent.Email,
		intent.Location, intent.Note, string(linesJSON), intent.Totals.ItemCount, intent.Totals.Subtotal,
		intent.Totals.Discount, intent.Totals.Total, intent.Message, intent.WhatsAppURL,
	)
	s.metrics.RecordDBQuery(ctx, "INSERT", "order_intents", query, start, err == nil)
	return err
}

func newOrderIntent(customerID string, contact models.ContactRequest, note string, items []models.CartItem) *models.OrderIntent {
	id := uuid.New()
	intent := &models.OrderIntent{
		ID:         id.String(),
		Reference:  "XS-" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:referenceHexLength]),
		CustomerID: customerID,
		FullName:   contact.FullName,
		Phone:      contact.Phone,
		Email:      contact.Email,
		Location:   contact.Location,
		Note:       note,
		Lines:      make([]models.OrderIntentLine, 0, len(items)),
		CreatedAt:  time.Now().UTC(),
	}

	priced := make([]pricing.Line, 0, len(items))
	for _, it := range items {
		l := pricing.Line{UnitPrice: it.UnitPrice, Discount: it.Discount, Quantity: it.Quantity}
		a := pricing.Price(l)
		intent.Lines = append(intent.Lines, models.OrderIntentLine{
			ProductID:      it.ProductID,
			ProductSlug:    it.ProductSlug,
			ProductName:    it.ProductName,
			Condition:      it.Condition,
			Quantity:       it.Quantity,
			UnitPrice:      it.UnitPrice,
			Discount:       it.Discount,
			FinalUnitPrice: a.FinalUnitPrice,
			LineTotal:      a.Total,
		})
		priced = append(priced, l)
	}
	intent.Totals = pricing.Summarize(priced)
	return intent
}

func scanOrderIntent(row rowScanner) (models.OrderIntent, error) {
	var o models.OrderIntent
	var lines []byte
	err := row.Scan(
		&o.ID, &o.Reference, &o.CustomerID, &o.FullName, &o.Phone, &o.Email, &o.Location, &o.Note, &lines,
		&o.Totals.ItemCount, &o.Totals.Subtotal, &o.Totals.Discount, &o.Totals.Total,
		&o.Message, &o.WhatsAppURL, &o.CreatedAt,
	)
	if err != nil {
		return o, err
	}
	if err := json.Unmarshal(lines, &o.Lines); err != nil {
		return o, fmt.Errorf("failed to decode order lines: %w", err)
	}
	return o, nil
}

// Get returns an order intent by ID
func (s *CheckoutService) Get(ctx context.Context, id string) (*models.OrderIntent, error) {
	start := time.Now()
	query := "SELECT " + orderIntentColumns + " FROM order_intents WHERE id = ?"
	o, err := scanOrderIntent(s.db.QueryRowContext(ctx, query, id))
	s.metrics.RecordDBQuery(ctx, "SELECT", "order_intents", query, start, err == nil || errors.Is(err, sql.ErrNoRows))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundf("order intent %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order intent: %w", err)
	}
	return &o, nil
}

// List returns order intents newest first
func (s *CheckoutService) List(ctx context.Context, limit, offset int) ([]models.OrderIntent, error) {
	limit, offset = normalizePage(limit, offset)

	start := time.Now()
	query := "SELECT " + orderIntentColumns + " FROM order_intents ORDER BY created_at DESC LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	s.metrics.RecordDBQuery(ctx, "SELECT", "order_intents", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query order intents: %w", err)
	}
	defer rows.Close()

	intents := []models.OrderIntent{}
	for rows.Next() {
		o, err := scanOrderIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order intent: %w", err)
		}
		intents = append(intents, o)
	}
	return intents, rows.Err()
}
