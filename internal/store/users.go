package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/apperr"
	"storefront/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const userColumns = "id, email, display_name, password_hash, role, liked_products, created_at"

// CreateUser inserts a user. The email is stored lower-cased.
func (s *Store) CreateUser(ctx context.Context, user *models.UserProfile) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = models.RoleCustomer
	}
	if user.LikedProducts == nil {
		user.LikedProducts = pq.StringArray{}
	}
	user.Email = strings.ToLower(user.Email)

	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO users (id, email, display_name, password_hash, role, liked_products)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		user.ID, user.Email, user.DisplayName, user.PasswordHash, user.Role, user.LikedProducts,
	).Scan(&user.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("email %s already registered: %w", user.Email, apperr.ErrConflict)
		}
		return unavailable(err)
	}
	return nil
}

// GetUserByID retrieves a user by ID
func (s *Store) GetUserByID(ctx context.Context, id string) (*models.UserProfile, error) {
	var user models.UserProfile
	err := s.db.GetContext(ctx, &user, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email, case-insensitively
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.UserProfile, error) {
	var user models.UserProfile
	err := s.db.GetContext(ctx, &user,
		"SELECT "+userColumns+" FROM users WHERE email = $1", strings.ToLower(email))
	if err != nil {
		return nil, notFound(err, "user", email)
	}
	return &user, nil
}

// GetRole returns the role of a user
func (s *Store) GetRole(ctx context.Context, userID string) (models.Role, error) {
	var role models.Role
	err := s.db.GetContext(ctx, &role, "SELECT role FROM users WHERE id = $1", userID)
	if err != nil {
		return "", notFound(err, "user", userID)
	}
	return role, nil
}

// SetRole changes the role of a user
func (s *Store) SetRole(ctx context.Context, userID string, role models.Role) error {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET role = $1 WHERE id = $2", role, userID)
	if err != nil {
		return unavailable(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s: %w", userID, apperr.ErrNotFound)
	}
	return nil
}

// GetLikedProducts returns the product IDs a user has liked
func (s *Store) GetLikedProducts(ctx context.Context, userID string) ([]string, error) {
	var liked pq.StringArray
	err := s.db.GetContext(ctx, &liked, "SELECT liked_products FROM users WHERE id = $1", userID)
	if err != nil {
		return nil, notFound(err, "user", userID)
	}
	return []string(liked), nil
}

// ToggleLikedProduct adds productID to the user's liked list, or removes it when
// already present, and reports whether it is now liked
func (s *Store) ToggleLikedProduct(ctx context.Context, userID, productID string) (bool, error) {
	var liked bool
	err := s.db.GetContext(ctx, &liked, `
		UPDATE users
		SET liked_products = CASE
			WHEN $2::text = ANY(liked_products) THEN array_remove(liked_products, $2)
			ELSE array_append(liked_products, $2)
		END
		WHERE id = $1
		RETURNING $2::text = ANY(liked_products)`,
		userID, productID)
	if err != nil {
		return false, notFound(err, "user", userID)
	}
	return liked, nil
}
