package serial

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"alumnet/internal/engine/tenant"
	"alumnet/internal/platform/models"
)

var (
	ErrOrganizationNotConfigured = errors.New("organization not configured for serial allocation")
	ErrGenerationFailed          = errors.New("serial generation failed")
)

// Allocator owns the organization serial counter. The counter is mutated
// nowhere else except the administrative reset, which goes through the same
// transactional path.
type Allocator struct{}

func NewAllocator() *Allocator {
	return &Allocator{}
}

// AllocateTx mints the next counter value for the scoped organization and
// records the allocation, all inside the caller's transaction. The increment
// is a single atomic UPDATE against the organization row, so two concurrent
// allocations can never consume the same value.
func (a *Allocator) AllocateTx(tx *sql.Tx, scope tenant.Scope, member *models.Member) (*models.SerialAllocation, error) {
	res, err := tx.Exec(`
		UPDATE organizations SET serial_counter = serial_counter + 1, updated_at = ?
		WHERE id = ? AND active = 1
	`, time.Now().Unix(), scope.OrgID())
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrOrganizationNotConfigured
	}

	var code string
	var counter int64
	err = tx.QueryRow(`
		SELECT code, serial_counter FROM organizations WHERE id = ?
	`, scope.OrgID()).Scan(&code, &counter)
	if err != nil {
		return nil, err
	}

	alloc := &models.SerialAllocation{
		ID:             "sa_" + uuid.NewString(),
		OrganizationID: scope.OrgID(),
		MemberID:       member.ID,
		SerialID:       Format(code, Fragment(member.FullName, member.PassoutYear), counter),
		Counter:        counter,
		CreatedAt:      time.Now().Unix(),
	}

	_, err = tx.Exec(`
		INSERT INTO serial_allocations (id, organization_id, member_id, serial_id, counter, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, alloc.ID, alloc.OrganizationID, alloc.MemberID, alloc.SerialID, alloc.Counter, alloc.CreatedAt)
	if err != nil {
		return nil, err
	}

	return alloc, nil
}

// CounterTx reads the current counter value inside a transaction.
func (a *Allocator) CounterTx(tx *sql.Tx, scope tenant.Scope) (int64, error) {
	var counter int64
	err := tx.QueryRow(`SELECT serial_counter FROM organizations WHERE id = ?`, scope.OrgID()).Scan(&counter)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrOrganizationNotConfigured
		}
		return 0, err
	}
	return counter, nil
}

// ResetTx overwrites the counter. Only the privileged administrative reset
// path calls this; it shares the allocation transaction discipline so a reset
// cannot interleave with an in-flight increment.
func (a *Allocator) ResetTx(tx *sql.Tx, scope tenant.Scope, newValue int64) error {
	res, err := tx.Exec(`
		UPDATE organizations SET serial_counter = ?, updated_at = ? WHERE id = ?
	`, newValue, time.Now().Unix(), scope.OrgID())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrganizationNotConfigured
	}
	return nil
}

// IsRetryable reports whether an allocation error is transient lock
// contention worth another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked") || strings.Contains(msg, "busy")
}
