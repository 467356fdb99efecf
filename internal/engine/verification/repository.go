package verification

import (
	"database/sql"

	"alumnet/internal/engine/tenant"
	"alumnet/internal/platform/models"
)

const memberColumns = `id, organization_id, email, full_name, admission_year, passout_year, state, email_verified,
	serial_id, serial_counter, serial_pending,
	verified_by, verified_at, verification_notes,
	rejected_by, rejected_at, rejection_reason,
	unblocked_by, unblocked_at, created_at, updated_at`

// MemberRepository accesses member rows. Every read and write takes a Scope
// and intersects with its organization predicate; a member of one tenant is
// never visible to another even by primary-key coincidence.
type MemberRepository struct {
	db *sql.DB
}

func NewMemberRepository(db *sql.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

func (r *MemberRepository) Create(scope tenant.Scope, m *models.Member) error {
	m.OrganizationID = scope.OrgID()
	_, err := r.db.Exec(`
		INSERT INTO members (id, organization_id, email, full_name, admission_year, passout_year, state, email_verified, serial_pending, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
	`, m.ID, m.OrganizationID, m.Email, m.FullName, m.AdmissionYear, m.PassoutYear, m.State, m.EmailVerified, m.CreatedAt, m.UpdatedAt)
	return err
}

func (r *MemberRepository) GetByID(scope tenant.Scope, id string) (*models.Member, error) {
	row := r.db.QueryRow(`
		SELECT `+memberColumns+` FROM members WHERE id = ? AND organization_id = ?
	`, id, scope.OrgID())
	return scanMember(row)
}

func (r *MemberRepository) GetByEmail(scope tenant.Scope, email string) (*models.Member, error) {
	row := r.db.QueryRow(`
		SELECT `+memberColumns+` FROM members WHERE email = ? AND organization_id = ?
	`, email, scope.OrgID())
	return scanMember(row)
}

func (r *MemberRepository) List(scope tenant.Scope, state models.MemberState, limit, offset int) ([]*models.Member, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `SELECT ` + memberColumns + ` FROM members WHERE organization_id = ?`
	args := []interface{}{scope.OrgID()}
	if state != "" {
		query += ` AND state = ?`
		args = append(args, state)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*models.Member
	for rows.Next() {
		m, err := scanMemberRows(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// markVerifiedTx flips a pending member to verified. The state guard in the
// WHERE clause makes concurrent transitions race-safe: the loser affects zero
// rows and the caller maps the observed state to a precondition error.
func (r *MemberRepository) markVerifiedTx(tx *sql.Tx, scope tenant.Scope, id, verifiedBy, notes, serialID string, counter *int64, serialPending bool, now int64) (bool, error) {
	res, err := tx.Exec(`
		UPDATE members SET
			state = ?, serial_id = ?, serial_counter = ?, serial_pending = ?,
			verified_by = ?, verified_at = ?, verification_notes = ?,
			rejected_by = '', rejected_at = NULL, rejection_reason = '',
			updated_at = ?
		WHERE id = ? AND organization_id = ? AND state = ?
	`, models.MemberStateVerified, serialID, counter, serialPending,
		verifiedBy, now, notes, now, id, scope.OrgID(), models.MemberStatePending)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected == 1, err
}

func (r *MemberRepository) markRejectedTx(tx *sql.Tx, scope tenant.Scope, id, rejectedBy, reason string, now int64) (bool, error) {
	res, err := tx.Exec(`
		UPDATE members SET
			state = ?, rejected_by = ?, rejected_at = ?, rejection_reason = ?, updated_at = ?
		WHERE id = ? AND organization_id = ? AND state = ?
	`, models.MemberStateRejected, rejectedBy, now, reason, now, id, scope.OrgID(), models.MemberStatePending)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected == 1, err
}

func (r *MemberRepository) markPendingTx(tx *sql.Tx, scope tenant.Scope, id, unblockedBy string, now int64) (bool, error) {
	res, err := tx.Exec(`
		UPDATE members SET
			state = ?, unblocked_by = ?, unblocked_at = ?, updated_at = ?
		WHERE id = ? AND organization_id = ? AND state = ?
	`, models.MemberStatePending, unblockedBy, now, now, id, scope.OrgID(), models.MemberStateRejected)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected == 1, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMember(row scanner) (*models.Member, error) {
	m := &models.Member{}
	var verifiedBy, notes, rejectedBy, rejectionReason, unblockedBy, serialID sql.NullString
	err := row.Scan(&m.ID, &m.OrganizationID, &m.Email, &m.FullName, &m.AdmissionYear, &m.PassoutYear, &m.State, &m.EmailVerified,
		&serialID, &m.SerialCounter, &m.SerialPending,
		&verifiedBy, &m.VerifiedAt, &notes,
		&rejectedBy, &m.RejectedAt, &rejectionReason,
		&unblockedBy, &m.UnblockedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	m.SerialID = serialID.String
	m.VerifiedBy = verifiedBy.String
	m.VerificationNotes = notes.String
	m.RejectedBy = rejectedBy.String
	m.RejectionReason = rejectionReason.String
	m.UnblockedBy = unblockedBy.String
	return m, nil
}

func scanMemberRows(rows *sql.Rows) (*models.Member, error) {
	m, err := scanMember(rows)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, sql.ErrNoRows
	}
	return m, nil
}
