package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avvvet/electionday-services/internal/electionsvc/models"
)

type NotificationStore struct {
	db *pgxpool.Pool
}

func NewNotificationStore(db *pgxpool.Pool) *NotificationStore {
	return &NotificationStore{db: db}
}

func (s *NotificationStore) Create(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (id, type, election_id, vote_id, last_modified)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`
	err := s.db.QueryRow(ctx, query, n.ID, n.Type, n.ElectionID, n.VoteID, n.LastModified).Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// LastNotified returns the last_modified of the newest notification of
// the given type for a vote or election. ErrNotFound means it was never
// notified.
func (s *NotificationStore) LastNotified(ctx context.Context, notificationType, kind, id string) (*time.Time, error) {
	column := "vote_id"
	if kind == models.KindElection {
		column = "election_id"
	}
	query := `
		SELECT last_modified
		FROM notifications
		WHERE type = $1 AND ` + column + ` = $2
		ORDER BY created_at DESC
		LIMIT 1`

	var lastModified *time.Time
	err := s.db.QueryRow(ctx, query, notificationType, id).Scan(&lastModified)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get last notification: %w", err)
	}
	return lastModified, nil
}
