package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"onboarding/internal/application/models"
	id "onboarding/pkg/domain"
	"onboarding/pkg/platform/sentinel"
	"onboarding/pkg/platform/tx"
)

// PostgresStore persists applications with their documents and consents.
// Writes run in one transaction; the version column guards concurrent saves.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const applicationColumns = `
	id, status, first_name, last_name, date_of_birth, ssn, nationality,
	email, phone, address_line1, address_line2, address_city, address_postal_code, address_country,
	email_verified, phone_verified, customer_id, account_number, assigned_to,
	review_reason, requires_manual_review, additional_info, marked_for_deletion, anonymized,
	retention_until, created_at, updated_at, submitted_at, approved_at, rejected_at,
	approved_by, verified_by, version`

func (s *PostgresStore) FindByID(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	return s.findOne(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, uuid.UUID(appID))
}

func (s *PostgresStore) FindByAccountNumber(ctx context.Context, accountNumber string) (*models.Application, error) {
	return s.findOne(ctx, `SELECT `+applicationColumns+` FROM applications WHERE account_number = $1`, accountNumber)
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg any) (*models.Application, error) {
	q := tx.Conn(ctx, s.db)
	app, status, err := scanApplication(q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find application: %w", err)
	}
	docs, err := s.loadDocuments(ctx, q, app.ID)
	if err != nil {
		return nil, err
	}
	consents, err := s.loadConsents(ctx, q, app.ID)
	if err != nil {
		return nil, err
	}
	return models.Restore(app, status, docs, consents), nil
}

// Save inserts a new application (Version 0) or updates an existing one
// where the stored version still matches. Children are rewritten in full.
func (s *PostgresStore) Save(ctx context.Context, app *models.Application) error {
	next := app.Version + 1
	err := tx.Run(ctx, s.db, func(ctx context.Context, t *sql.Tx) error {
		if app.Version == 0 {
			if err := insertApplication(ctx, t, app, next); err != nil {
				return err
			}
		} else if err := updateApplication(ctx, t, app, next); err != nil {
			return err
		}
		if err := replaceDocuments(ctx, t, app); err != nil {
			return err
		}
		return replaceConsents(ctx, t, app)
	})
	if err != nil {
		return err
	}
	app.Version = next
	return nil
}

func (s *PostgresStore) ExistsBySSN(ctx context.Context, ssn string) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM applications WHERE ssn = $1 AND NOT anonymized)`, ssn)
}

func (s *PostgresStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM applications WHERE email = $1 AND NOT anonymized)`,
		strings.ToLower(strings.TrimSpace(email)))
}

func (s *PostgresStore) ExistsByPhone(ctx context.Context, phone string) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM applications WHERE phone = $1 AND NOT anonymized)`, phone)
}

func (s *PostgresStore) ExistsByAccountNumber(ctx context.Context, accountNumber string) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM applications WHERE account_number = $1)`, accountNumber)
}

func (s *PostgresStore) exists(ctx context.Context, query string, arg string) (bool, error) {
	var found bool
	if err := tx.Conn(ctx, s.db).QueryRowContext(ctx, query, arg).Scan(&found); err != nil {
		return false, fmt.Errorf("application exists: %w", err)
	}
	return found, nil
}

func insertApplication(ctx context.Context, t *sql.Tx, app *models.Application, version int64) error {
	query := `INSERT INTO applications (` + applicationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33)
		ON CONFLICT (id) DO NOTHING`
	res, err := t.ExecContext(ctx, query, applicationArgs(app, version)...)
	if err != nil {
		return fmt.Errorf("insert application: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrAlreadyExists
	}
	return nil
}

func updateApplication(ctx context.Context, t *sql.Tx, app *models.Application, version int64) error {
	query := `UPDATE applications SET
		status = $2, first_name = $3, last_name = $4, date_of_birth = $5, ssn = $6, nationality = $7,
		email = $8, phone = $9, address_line1 = $10, address_line2 = $11, address_city = $12,
		address_postal_code = $13, address_country = $14, email_verified = $15, phone_verified = $16,
		customer_id = $17, account_number = $18, assigned_to = $19, review_reason = $20,
		requires_manual_review = $21, additional_info = $22, marked_for_deletion = $23, anonymized = $24,
		retention_until = $25, created_at = $26, updated_at = $27, submitted_at = $28, approved_at = $29,
		rejected_at = $30, approved_by = $31, verified_by = $32, version = $33
		WHERE id = $1 AND version = $34`
	args := append(applicationArgs(app, version), app.Version)
	res, err := t.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update application rows: %w", err)
	}
	if n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func applicationArgs(app *models.Application, version int64) []any {
	var accountNumber sql.NullString
	if app.AccountNumber != "" {
		accountNumber = sql.NullString{String: app.AccountNumber, Valid: true}
	}
	var customerID uuid.NullUUID
	if app.CustomerID != nil {
		customerID = uuid.NullUUID{UUID: uuid.UUID(*app.CustomerID), Valid: true}
	}
	p, c := app.Personal, app.Contact
	return []any{
		uuid.UUID(app.ID), string(app.Status()), p.FirstName, p.LastName, p.DateOfBirth, p.SSN, p.Nationality,
		c.Email, c.Phone, c.Address.Line1, c.Address.Line2, c.Address.City, c.Address.PostalCode, c.Address.Country,
		app.EmailVerified, app.PhoneVerified, customerID, accountNumber, nullUser(app.AssignedTo),
		app.ReviewReason, app.RequiresManualReview, app.AdditionalInfo, app.MarkedForDeletion, app.Anonymized,
		app.RetentionUntil, app.CreatedAt, app.UpdatedAt, app.SubmittedAt, app.ApprovedAt, app.RejectedAt,
		nullUser(app.ApprovedBy), nullUser(app.VerifiedBy), version,
	}
}

func replaceDocuments(ctx context.Context, t *sql.Tx, app *models.Application) error {
	if _, err := t.ExecContext(ctx, `DELETE FROM application_documents WHERE application_id = $1`, uuid.UUID(app.ID)); err != nil {
		return fmt.Errorf("clear documents: %w", err)
	}
	query := `INSERT INTO application_documents
		(id, application_id, kind, storage_key, file_name, content_type, size_bytes, status, position, uploaded_at, verified_at, verified_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	for i, d := range app.Documents() {
		_, err := t.ExecContext(ctx, query,
			uuid.UUID(d.ID), uuid.UUID(app.ID), string(d.Kind), d.StorageKey, d.FileName, d.ContentType,
			d.SizeBytes, string(d.Status), i, d.UploadedAt, d.VerifiedAt, nullUser(d.VerifiedBy))
		if err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
	}
	return nil
}

func replaceConsents(ctx context.Context, t *sql.Tx, app *models.Application) error {
	if _, err := t.ExecContext(ctx, `DELETE FROM application_consents WHERE application_id = $1`, uuid.UUID(app.ID)); err != nil {
		return fmt.Errorf("clear consents: %w", err)
	}
	query := `INSERT INTO application_consents
		(id, application_id, consent_type, granted, granted_at, revoked_at, disclosure_version, ip_address, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	for i, c := range app.Consents() {
		_, err := t.ExecContext(ctx, query,
			uuid.UUID(c.ID), uuid.UUID(app.ID), string(c.Type), c.Granted, c.GrantedAt, c.RevokedAt,
			c.DisclosureVersion, c.IPAddress, i)
		if err != nil {
			return fmt.Errorf("insert consent: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) loadDocuments(ctx context.Context, q tx.DBTX, appID id.ApplicationID) ([]models.Document, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, kind, storage_key, file_name, content_type, size_bytes, status, uploaded_at, verified_at, verified_by
		FROM application_documents WHERE application_id = $1 ORDER BY position`, uuid.UUID(appID))
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var (
			d          models.Document
			docID      uuid.UUID
			kind       string
			status     string
			verifiedAt sql.NullTime
			verifiedBy uuid.NullUUID
		)
		if err := rows.Scan(&docID, &kind, &d.StorageKey, &d.FileName, &d.ContentType, &d.SizeBytes,
			&status, &d.UploadedAt, &verifiedAt, &verifiedBy); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.ID = id.DocumentID(docID)
		d.Kind = models.DocumentKind(kind)
		d.Status = models.DocumentStatus(status)
		d.VerifiedAt = timePtr(verifiedAt)
		d.VerifiedBy = userPtr(verifiedBy)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func (s *PostgresStore) loadConsents(ctx context.Context, q tx.DBTX, appID id.ApplicationID) ([]models.Consent, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, consent_type, granted, granted_at, revoked_at, disclosure_version, ip_address
		FROM application_consents WHERE application_id = $1 ORDER BY position`, uuid.UUID(appID))
	if err != nil {
		return nil, fmt.Errorf("load consents: %w", err)
	}
	defer rows.Close()

	var consents []models.Consent
	for rows.Next() {
		var (
			c         models.Consent
			consentID uuid.UUID
			ctype     string
			revokedAt sql.NullTime
		)
		if err := rows.Scan(&consentID, &ctype, &c.Granted, &c.GrantedAt, &revokedAt,
			&c.DisclosureVersion, &c.IPAddress); err != nil {
			return nil, fmt.Errorf("scan consent: %w", err)
		}
		c.ID = id.ConsentID(consentID)
		c.Type = models.ConsentType(ctype)
		c.RevokedAt = timePtr(revokedAt)
		consents = append(consents, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consents: %w", err)
	}
	return consents, nil
}

func scanApplication(row *sql.Row) (models.Application, models.Status, error) {
	var (
		a              models.Application
		appID          uuid.UUID
		status         string
		dob            sql.NullTime
		customerID     uuid.NullUUID
		accountNumber  sql.NullString
		assignedTo     uuid.NullUUID
		retentionUntil sql.NullTime
		submittedAt    sql.NullTime
		approvedAt     sql.NullTime
		rejectedAt     sql.NullTime
		approvedBy     uuid.NullUUID
		verifiedBy     uuid.NullUUID
	)
	err := row.Scan(
		&appID, &status, &a.Personal.FirstName, &a.Personal.LastName, &dob, &a.Personal.SSN, &a.Personal.Nationality,
		&a.Contact.Email, &a.Contact.Phone, &a.Contact.Address.Line1, &a.Contact.Address.Line2,
		&a.Contact.Address.City, &a.Contact.Address.PostalCode, &a.Contact.Address.Country,
		&a.EmailVerified, &a.PhoneVerified, &customerID, &accountNumber, &assignedTo,
		&a.ReviewReason, &a.RequiresManualReview, &a.AdditionalInfo, &a.MarkedForDeletion, &a.Anonymized,
		&retentionUntil, &a.CreatedAt, &a.UpdatedAt, &submittedAt, &approvedAt, &rejectedAt,
		&approvedBy, &verifiedBy, &a.Version,
	)
	if err != nil {
		return models.Application{}, "", err
	}
	a.ID = id.ApplicationID(appID)
	a.Personal.DateOfBirth = timePtr(dob)
	if customerID.Valid {
		cid := id.CustomerID(customerID.UUID)
		a.CustomerID = &cid
	}
	a.AccountNumber = accountNumber.String
	a.AssignedTo = userPtr(assignedTo)
	a.RetentionUntil = timePtr(retentionUntil)
	a.SubmittedAt = timePtr(submittedAt)
	a.ApprovedAt = timePtr(approvedAt)
	a.RejectedAt = timePtr(rejectedAt)
	a.ApprovedBy = userPtr(approvedBy)
	a.VerifiedBy = userPtr(verifiedBy)

	st, err := models.ParseStatus(status)
	if err != nil {
		return models.Application{}, "", fmt.Errorf("stored status: %w", err)
	}
	return a, st, nil
}

func nullUser(u *id.UserID) uuid.NullUUID {
	if u == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*u), Valid: true}
}

func userPtr(n uuid.NullUUID) *id.UserID {
	if !n.Valid {
		return nil
	}
	u := id.UserID(n.UUID)
	return &u
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}
