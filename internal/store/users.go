package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"keymarket/internal/models"
)

const userColumns = "id, username, password, role, created_at"

// GetUserByUsername retrieves a user by username
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user,
		s.db.Rebind("SELECT "+userColumns+" FROM users WHERE username = ?"), username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDBNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByID retrieves a user by ID
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user,
		s.db.Rebind("SELECT "+userColumns+" FROM users WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDBNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers retrieves all users ordered by ID
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	err := s.db.SelectContext(ctx, &users, "SELECT "+userColumns+" FROM users ORDER BY id")
	return users, err
}

// AdminExists reports whether at least one admin account exists
func (s *Store) AdminExists(ctx context.Context) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		s.db.Rebind("SELECT EXISTS(SELECT 1 FROM users WHERE role = ?)"), models.RoleAdmin)
	return exists, err
}

// CreateUserTx inserts a user and, when pending is set, its pending-seller
// row in a single transaction. user.ID is filled in on success.
func (s *Store) CreateUserTx(ctx context.Context, user *models.User, pending bool) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists bool
	err = tx.GetContext(ctx, &exists,
		tx.Rebind("SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)"), user.Username)
	if err != nil {
		return fmt.Errorf("failed to check username: %w", err)
	}
	if exists {
		return ErrDBDuplicate
	}

	err = tx.GetContext(ctx, &user.ID,
		tx.Rebind("INSERT INTO users (username, password, role, created_at) VALUES (?, ?, ?, ?) RETURNING id"),
		user.Username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDBDuplicate
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	if pending {
		_, err = tx.ExecContext(ctx,
			tx.Rebind("INSERT INTO pending_sellers (user_id, created_at) VALUES (?, ?)"),
			user.ID, user.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert pending seller: %w", err)
		}
	}

	return tx.Commit()
}

// ListPendingSellers retrieves sellers that have not opened a shop yet
func (s *Store) ListPendingSellers(ctx context.Context) ([]models.PendingSeller, error) {
	pending := []models.PendingSeller{}
	err := s.db.SelectContext(ctx, &pending, `
		SELECT ps.user_id, u.username, ps.created_at
		FROM pending_sellers ps
		JOIN users u ON u.id = ps.user_id
		ORDER BY ps.created_at, ps.user_id`)
	return pending, err
}

// IsPendingSeller reports whether the user is awaiting shop creation
func (s *Store) IsPendingSeller(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		s.db.Rebind("SELECT EXISTS(SELECT 1 FROM pending_sellers WHERE user_id = ?)"), userID)
	return exists, err
}

// DeleteUserTx removes a user together with its pending-seller row and shop.
// Keys the shop still had on sale are withdrawn; sold keys and sales stay,
// with the buyer reference cleared.
func (s *Store) DeleteUserTx(ctx context.Context, userID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var id int64
	err = tx.GetContext(ctx, &id, tx.Rebind("SELECT id FROM users WHERE id = ?"), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrDBNotFound
	}
	if err != nil {
		return err
	}

	var shopIDs []int64
	if err := tx.SelectContext(ctx, &shopIDs,
		tx.Rebind("SELECT shop_id FROM shops WHERE seller_id = ?"), userID); err != nil {
		return err
	}

	for _, shopID := range shopIDs {
		for _, query := range []string{
			"DELETE FROM prices WHERE key_id IN (SELECT key_id FROM keys WHERE shop_id = ? AND status = 'available')",
			"DELETE FROM shop_keys WHERE shop_id = ?",
			"DELETE FROM keys WHERE shop_id = ? AND status = 'available'",
			"DELETE FROM shop_games WHERE shop_id = ?",
			"DELETE FROM shops WHERE shop_id = ?",
		} {
			if _, err := tx.ExecContext(ctx, tx.Rebind(query), shopID); err != nil {
				return fmt.Errorf("failed to remove shop %d: %w", shopID, err)
			}
		}
	}

	for _, query := range []string{
		"DELETE FROM pending_sellers WHERE user_id = ?",
		"UPDATE sales SET buyer_id = NULL WHERE buyer_id = ?",
		"DELETE FROM users WHERE id = ?",
	} {
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), userID); err != nil {
			return fmt.Errorf("failed to delete user %d: %w", userID, err)
		}
	}

	return tx.Commit()
}
