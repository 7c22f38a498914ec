package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
)

const messageColumns = `id, name, email, phone, service, message, status, created_at, updated_at`

// CreateMessage inserts a contact message
func (s *Store) CreateMessage(ctx context.Context, msg *models.ContactMessage) error {
	query := `
		INSERT INTO messages (id, name, email, phone, service, message, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		msg.ID, msg.Name, msg.Email, msg.Phone, msg.Service, msg.Message, msg.Status,
	).Scan(&msg.CreatedAt, &msg.UpdatedAt)
}

// GetMessage retrieves a message by ID
func (s *Store) GetMessage(ctx context.Context, id string) (*models.ContactMessage, error) {
	var msg models.ContactMessage
	err := s.db.GetContext(ctx, &msg, "SELECT "+messageColumns+" FROM messages WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("message %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListMessages retrieves live messages, newest first
func (s *Store) ListMessages(ctx context.Context) ([]models.ContactMessage, error) {
	msgs := []models.ContactMessage{}
	err := s.db.SelectContext(ctx, &msgs,
		"SELECT "+messageColumns+" FROM messages ORDER BY created_at DESC")
	return msgs, err
}

// TransitionMessage moves a message to next under a row lock and returns the
// previous status. Setting the current status again is a no-op.
func (s *Store) TransitionMessage(ctx context.Context, id string, next models.MessageStatus) (*models.ContactMessage, models.MessageStatus, error) {
	var (
		msg  models.ContactMessage
		from models.MessageStatus
	)

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &msg,
			"SELECT "+messageColumns+" FROM messages WHERE id = $1 FOR UPDATE", id)
		if errors.Is(err, sql.ErrNoRows) {
			return models.NotFoundf("message %s", id)
		}
		if err != nil {
			return err
		}

		from = msg.Status
		if msg.Status == next {
			return nil
		}
		if !msg.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, msg.Status, next)
		}

		return tx.GetContext(ctx, &msg,
			"UPDATE messages SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING "+messageColumns,
			next, id)
	})
	if err != nil {
		return nil, "", err
	}
	return &msg, from, nil
}

// ArchiveMessage moves a replied message into messages_history and removes it
// from the live table within one transaction.
func (s *Store) ArchiveMessage(ctx context.Context, id string) (*models.ArchivedMessage, error) {
	archived := &models.ArchivedMessage{}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &archived.ContactMessage,
			"SELECT "+messageColumns+" FROM messages WHERE id = $1 FOR UPDATE", id)
		if errors.Is(err, sql.ErrNoRows) {
			return models.NotFoundf("message %s", id)
		}
		if err != nil {
			return err
		}

		if archived.Status != models.MessageStatusReplied {
			return fmt.Errorf("%w: message %s is %s", models.ErrInvalidTransition, id, archived.Status)
		}

		err = tx.QueryRowxContext(ctx,
			"INSERT INTO messages_history ("+messageColumns+") SELECT "+messageColumns+" FROM messages WHERE id = $1 RETURNING archived_at",
			id).Scan(&archived.ArchivedAt)
		if err != nil {
			return fmt.Errorf("failed to copy message to history: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE id = $1", id); err != nil {
			return fmt.Errorf("failed to delete archived message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return archived, nil
}

// ListMessageHistory retrieves archived messages, most recently archived first
func (s *Store) ListMessageHistory(ctx context.Context) ([]models.ArchivedMessage, error) {
	msgs := []models.ArchivedMessage{}
	err := s.db.SelectContext(ctx, &msgs,
		"SELECT "+messageColumns+", archived_at FROM messages_history ORDER BY archived_at DESC")
	return msgs, err
}
