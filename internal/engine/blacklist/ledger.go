package blacklist

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"alumnet/internal/engine/tenant"
	"alumnet/internal/platform/models"
	"alumnet/internal/pkg/validator"
)

// Ledger maintains the set of (organization, email) pairs barred from fresh
// registration. Entries never apply across tenants.
type Ledger struct {
	db *sql.DB
}

func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// AddTx inserts an active entry, or reactivates and updates the reason when
// one already exists for the (org, email) pair. A second rejection of the
// same email is not an error.
func (l *Ledger) AddTx(tx *sql.Tx, scope tenant.Scope, email, reason, blacklistedBy string) error {
	now := time.Now().Unix()
	_, err := tx.Exec(`
		INSERT INTO blacklist (id, organization_id, email, reason, blacklisted_by, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(organization_id, email) DO UPDATE SET
			reason = excluded.reason,
			blacklisted_by = excluded.blacklisted_by,
			active = 1,
			updated_at = excluded.updated_at
	`, "bl_"+uuid.NewString(), scope.OrgID(), validator.NormalizeEmail(email), reason, blacklistedBy, now, now)
	return err
}

func (l *Ledger) Add(scope tenant.Scope, email, reason, blacklistedBy string) error {
	tx, err := l.db.Begin()
	if err != nil {
		return err
	}
	if err := l.AddTx(tx, scope, email, reason, blacklistedBy); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// RemoveTx deactivates the entry for an email. Used by the unblock
// transition only.
func (l *Ledger) RemoveTx(tx *sql.Tx, scope tenant.Scope, email string) error {
	_, err := tx.Exec(`
		UPDATE blacklist SET active = 0, updated_at = ?
		WHERE organization_id = ? AND email = ?
	`, time.Now().Unix(), scope.OrgID(), validator.NormalizeEmail(email))
	return err
}

// IsBlacklisted reports whether an active entry exists for the exact
// (organization, email) pair.
func (l *Ledger) IsBlacklisted(scope tenant.Scope, email string) (bool, error) {
	var exists bool
	err := l.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM blacklist WHERE organization_id = ? AND email = ? AND active = 1)
	`, scope.OrgID(), validator.NormalizeEmail(email)).Scan(&exists)
	return exists, err
}

func (l *Ledger) List(scope tenant.Scope) ([]*models.BlacklistEntry, error) {
	rows, err := l.db.Query(`
		SELECT id, organization_id, email, reason, blacklisted_by, active, created_at, updated_at
		FROM blacklist WHERE organization_id = ? AND active = 1 ORDER BY created_at DESC
	`, scope.OrgID())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.BlacklistEntry
	for rows.Next() {
		e := &models.BlacklistEntry{}
		if err := rows.Scan(&e.ID, &e.OrganizationID, &e.Email, &e.Reason, &e.BlacklistedBy, &e.Active, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
