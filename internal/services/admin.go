package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xenastore/storefront/internal/db"
	"github.com/xenastore/storefront/internal/metrics"
	"github.com/xenastore/storefront/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// AdminService authenticates and provisions admin users
type AdminService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
	cost    int
}

// NewAdminService creates a new admin service
func NewAdminService(db *db.DB, metrics *metrics.AppMetrics) *AdminService {
	return &AdminService{db: db, metrics: metrics, cost: bcrypt.DefaultCost}
}

// WithCost overrides the bcrypt cost, mainly for tests
func (s *AdminService) WithCost(cost int) *AdminService {
	s.cost = cost
	return s
}

func (s *AdminService) getByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	start := time.Now()
	query := "SELECT id, username, password_hash, created_at FROM admin_users WHERE username = ?"
	var u models.AdminUser
	err := s.db.QueryRowContext(ctx, query, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	s.metrics.RecordDBQuery(ctx, "SELECT", "admin_users", query, start, err == nil || errors.Is(err, sql.ErrNoRows))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get admin user: %w", err)
	}
	return &u, nil
}

// Authenticate checks a username and password. Unknown users and wrong
// passwords both return ErrUnauthorized.
func (s *AdminService) Authenticate(ctx context.Context, username, password string) (*models.AdminUser, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		s.recordLogin(ctx, false)
		return nil, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}

	u, err := s.getByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if u == nil {
		s.recordLogin(ctx, false)
		return nil, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.recordLogin(ctx, false)
		return nil, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}

	s.recordLogin(ctx, true)
	return u, nil
}

func (s *AdminService) recordLogin(ctx context.Context, success bool) {
	s.metrics.AdminLogins.Add(ctx, 1, s.metrics.Attrs(attribute.Bool("success", success)))
}

// Create hashes the password and inserts a new admin user
func (s *AdminService) Create(ctx context.Context, username, password string) (*models.AdminUser, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, invalidf("username is required")
	}
	if len(password) < minPasswordLength {
		return nil, invalidf("password must be at least %d characters", minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	start := time.Now()
	query := "INSERT INTO admin_users (username, password_hash) VALUES (?, ?)"
	result, err := s.db.ExecContext(ctx, query, username, string(hash))
	s.metrics.RecordDBQuery(ctx, "INSERT", "admin_users", query, start, err == nil)
	if err != nil {
		if isDuplicate(err) {
			return nil, fmt.Errorf("%w: admin %q already exists", ErrConflict, username)
		}
		return nil, fmt.Errorf("failed to create admin user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get admin ID: %w", err)
	}
	return &models.AdminUser{ID: id, Username: username, PasswordHash: string(hash), CreatedAt: time.Now()}, nil
}

// EnsureAdmin creates the bootstrap admin when it does not exist yet.
// Empty credentials are a no-op.
func (s *AdminService) EnsureAdmin(ctx context.Context, username, password string) error {
	if username == "" && password == "" {
		return nil
	}

	u, err := s.getByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return err
	}
	if u != nil {
		return nil
	}

	if _, err := s.Create(ctx, username, password); err != nil && !errors.Is(err, ErrConflict) {
		return err
	}
	slog.InfoContext(ctx, "bootstrap admin created", "username", username)
	return nil
}
