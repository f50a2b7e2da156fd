package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"onboarding/internal/application/models"
	"onboarding/internal/otp"
	id "onboarding/pkg/domain"
	"onboarding/pkg/platform/sentinel"
	"onboarding/pkg/platform/tx"
)

// PostgresStore persists verification records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, v *otp.Verification) error {
	query := `
		INSERT INTO otp_verifications
			(id, application_id, channel, code_hash, status, attempts, max_attempts, expires_at, created_at, updated_at, verified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			attempts = EXCLUDED.attempts,
			updated_at = EXCLUDED.updated_at,
			verified_at = EXCLUDED.verified_at
	`
	_, err := tx.Conn(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(v.ID), uuid.UUID(v.ApplicationID), string(v.Channel), v.CodeHash, string(v.Status),
		v.Attempts, v.MaxAttempts, v.ExpiresAt, v.CreatedAt, v.UpdatedAt, v.VerifiedAt,
	)
	if err != nil {
		return fmt.Errorf("save otp verification: %w", err)
	}
	return nil
}

// RecordAttempt writes the outcome of one presentation. The attempts guard
// makes concurrent presentations against the same record serialize: only one
// of them moves the counter from seen, the rest get sentinel.ErrConflict.
func (s *PostgresStore) RecordAttempt(ctx context.Context, v *otp.Verification, seen int) error {
	res, err := tx.Conn(ctx, s.db).ExecContext(ctx, `
		UPDATE otp_verifications
		SET status = $2, attempts = $3, updated_at = $4, verified_at = $5
		WHERE id = $1 AND status = $6 AND attempts = $7`,
		uuid.UUID(v.ID), string(v.Status), v.Attempts, v.UpdatedAt, v.VerifiedAt,
		string(otp.StatusPending), seen,
	)
	if err != nil {
		return fmt.Errorf("record otp attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record otp attempt: %w", err)
	}
	if n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) FindLatestPending(ctx context.Context, appID id.ApplicationID, channel models.Channel) (*otp.Verification, error) {
	query := `
		SELECT id, application_id, channel, code_hash, status, attempts, max_attempts, expires_at, created_at, updated_at, verified_at
		FROM otp_verifications
		WHERE application_id = $1 AND channel = $2 AND status = $3
		ORDER BY created_at DESC
		LIMIT 1
	`
	var (
		v          otp.Verification
		vid, appid uuid.UUID
		ch, status string
		verifiedAt sql.NullTime
	)
	err := tx.Conn(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(appID), string(channel), string(otp.StatusPending)).Scan(
		&vid, &appid, &ch, &v.CodeHash, &status, &v.Attempts, &v.MaxAttempts,
		&v.ExpiresAt, &v.CreatedAt, &v.UpdatedAt, &verifiedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find pending otp verification: %w", err)
	}
	v.ID = id.VerificationID(vid)
	v.ApplicationID = id.ApplicationID(appid)
	v.Channel = models.Channel(ch)
	v.Status = otp.Status(status)
	if verifiedAt.Valid {
		t := verifiedAt.Time
		v.VerifiedAt = &t
	}
	return &v, nil
}

func (s *PostgresStore) ExpirePending(ctx context.Context, appID id.ApplicationID, channel models.Channel, now time.Time) (int, error) {
	res, err := tx.Conn(ctx, s.db).ExecContext(ctx, `
		UPDATE otp_verifications SET status = $4, updated_at = $5
		WHERE application_id = $1 AND channel = $2 AND status = $3`,
		uuid.UUID(appID), string(channel), string(otp.StatusPending), string(otp.StatusExpired), now,
	)
	if err != nil {
		return 0, fmt.Errorf("expire pending otp verifications: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire pending otp verifications: %w", err)
	}
	return int(n), nil
}
