package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xenastore/storefront/internal/db"
	"github.com/xenastore/storefront/internal/metrics"
	"github.com/xenastore/storefront/internal/models"
	"github.com/xenastore/storefront/internal/whatsapp"
)

const customerColumns = "id, full_name, phone, email, default_location, created_at, updated_at"

// CustomerService handles customer profile operations
type CustomerService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
}

// NewCustomerService creates a new customer service
func NewCustomerService(db *db.DB, metrics *metrics.AppMetrics) *CustomerService {
	return &CustomerService{db: db, metrics: metrics}
}

func scanCustomer(row rowScanner) (models.CustomerProfile, error) {
	var c models.CustomerProfile
	var email sql.NullString
	err := row.Scan(&c.ID, &c.FullName, &c.Phone, &email, &c.DefaultLocation, &c.CreatedAt, &c.UpdatedAt)
	c.Email = email.String
	return c, err
}

// Get returns a customer profile by ID
func (s *CustomerService) Get(ctx context.Context, id string) (*models.CustomerProfile, error) {
	c, err := s.getBy(ctx, s.db, "id = ?", id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, notFoundf("customer")
	}
	return c, nil
}

func (s *CustomerService) getBy(ctx context.Context, q querier, where string, args ...any) (*models.CustomerProfile, error) {
	start := time.Now()
	query := "SELECT " + customerColumns + " FROM customer_profiles WHERE " + where + " LIMIT 1"
	c, err := scanCustomer(q.QueryRowContext(ctx, query, args...))
	s.metrics.RecordDBQuery(ctx, "SELECT", "customer_profiles", query, start, err == nil || errors.Is(err, sql.ErrNoRows))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &c, nil
}

// NormalizeContact trims and validates contact details and reduces the
// phone to its digits.
func NormalizeContact(req models.ContactRequest) (models.ContactRequest, error) {
	out := models.ContactRequest{
		FullName: strings.TrimSpace(req.FullName),
		Phone:    strings.TrimSpace(req.Phone),
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Location: strings.TrimSpace(req.Location),
	}
	if out.FullName == "" {
		return out, invalidf("fullName is required")
	}
	if out.Phone == "" {
		return out, invalidf("phone is required")
	}
	// stored and matched as bare digits so spacing and punctuation never split a profile
	digits := whatsapp.Digits(out.Phone)
	if n := len(digits); n < 7 || n > 15 {
		return out, invalidf("phone %q is not a valid number", out.Phone)
	}
	out.Phone = digits
	if out.Email != "" {
		addr, err := mail.ParseAddress(out.Email)
		if err != nil || addr.Address != out.Email {
			return out, invalidf("email %q is not valid", out.Email)
		}
	}
	return out, nil
}

// Upsert matches an existing profile by phone, then by email, and updates it,
// or creates a new one.
func (s *CustomerService) Upsert(ctx context.Context, req models.ContactRequest) (*models.CustomerProfile, error) {
	return s.upsert(ctx, s.db, req)
}

func (s *CustomerService) upsert(ctx context.Context, q querier, req models.ContactRequest) (*models.CustomerProfile, error) {
	contact, err := NormalizeContact(req)
	if err != nil {
		return nil, err
	}

	existing, err := s.getBy(ctx, q, "phone = ?", contact.Phone)
	if err != nil {
		return nil, err
	}
	if existing == nil && contact.Email != "" {
		existing, err = s.getBy(ctx, q, "email = ?", contact.Email)
		if err != nil {
			return nil, err
		}
	}

	email := sql.NullString{String: contact.Email, Valid: contact.Email != ""}
	now := time.Now()

	if existing == nil {
		c := models.CustomerProfile{
			ID:              uuid.NewString(),
			FullName:        contact.FullName,
			Phone:           contact.Phone,
			Email:           contact.Email,
			DefaultLocation: contact.Location,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		start := time.Now()
		query := "INSERT INTO customer_profiles (id, full_name, phone, email, default_location) VALUES (?, ?, ?, ?, ?)"
		_, err := q.ExecContext(ctx, query, c.ID, c.FullName, c.Phone, email, c.DefaultLocation)
		s.metrics.RecordDBQuery(ctx, "INSERT", "customer_profiles", query, start, err == nil)
		if err != nil {
			if isDuplicate(err) {
				return nil, fmt.Errorf("%w: phone or email already belongs to another customer", ErrConflict)
			}
			return nil, fmt.Errorf("failed to create customer: %w", err)
		}
		return &c, nil
	}

	c := *existing
	c.FullName = contact.FullName
	c.Phone = contact.Phone
	if contact.Email != "" {
		c.Email = contact.Email
	}
	if contact.Location != "" {
		c.DefaultLocation = contact.Location
	}
	c.UpdatedAt = now

	start := time.Now()
	query := "UPDATE customer_profiles SET full_name = ?, phone = ?, email = ?, default_location = ? WHERE id = ?"
	_, err = q.ExecContext(ctx, query, c.FullName, c.Phone,
		sql.NullString{String: c.Email, Valid: c.Email != ""}, c.DefaultLocation, c.ID)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "customer_profiles", query, start, err == nil)
	if err != nil {
		if isDuplicate(err) {
			return nil, fmt.Errorf("%w: phone or email already belongs to another customer", ErrConflict)
		}
		return nil, fmt.Errorf("failed to update customer: %w", err)
	}
	return &c, nil
}
