package verification

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alumnet/internal/engine/blacklist"
	"alumnet/internal/engine/serial"
	"alumnet/internal/engine/tenant"
	"alumnet/internal/platform/audit"
	"alumnet/internal/platform/auth"
	"alumnet/internal/platform/models"
)

const testSchema = `
CREATE TABLE organizations (
	id TEXT PRIMARY KEY,
	code TEXT UNIQUE NOT NULL,
	name TEXT NOT NULL,
	founded_year INTEGER DEFAULT 0,
	serial_counter INTEGER NOT NULL DEFAULT 0,
	active INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE members (
	id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	email TEXT NOT NULL,
	full_name TEXT NOT NULL,
	admission_year INTEGER DEFAULT 0,
	passout_year INTEGER DEFAULT 0,
	state TEXT NOT NULL DEFAULT 'PENDING',
	email_verified INTEGER NOT NULL DEFAULT 0,
	serial_id TEXT,
	serial_counter INTEGER,
	serial_pending INTEGER NOT NULL DEFAULT 0,
	verified_by TEXT,
	verified_at INTEGER,
	verification_notes TEXT,
	rejected_by TEXT,
	rejected_at INTEGER,
	rejection_reason TEXT,
	unblocked_by TEXT,
	unblocked_at INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE (organization_id, email)
);
CREATE TABLE blacklist (
	id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	email TEXT NOT NULL,
	reason TEXT,
	blacklisted_by TEXT,
	active INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE (organization_id, email)
);
CREATE TABLE serial_allocations (
	id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	member_id TEXT NOT NULL,
	serial_id TEXT NOT NULL,
	counter INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE (organization_id, counter)
);
CREATE TABLE audit_logs (
	id TEXT PRIMARY KEY,
	organization_id TEXT,
	actor_id TEXT,
	action TEXT NOT NULL,
	resource_type TEXT,
	resource_id TEXT,
	before_state TEXT,
	after_state TEXT,
	metadata TEXT,
	critical INTEGER NOT NULL DEFAULT 0,
	ip_address TEXT,
	user_agent TEXT,
	created_at INTEGER NOT NULL
);
`

// setupService opens a file-backed database so concurrent connections share
// state, which an in-memory sqlite database does not allow.
func setupService(t *testing.T) (*Service, *sql.DB) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "verification_test.db")
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	now := time.Now().Unix()
	_, err = db.Exec(`INSERT INTO organizations (id, code, name, serial_counter, active, created_at, updated_at) VALUES ('org_1', 'ABC', 'Test School', 0, 1, ?, ?)`, now, now)
	require.NoError(t, err)

	svc := NewService(db, NewMemberRepository(db), blacklist.NewLedger(db), serial.NewAllocator(), audit.NewRecorder(db), 3)
	return svc, db
}

func seedMember(t *testing.T, db *sql.DB, orgID, id, email, fullName string, passoutYear int, state models.MemberState) {
	t.Helper()
	now := time.Now().Unix()
	_, err := db.Exec(`
		INSERT INTO members (id, organization_id, email, full_name, passout_year, state, email_verified, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
	`, id, orgID, email, fullName, passoutYear, state, now, now)
	require.NoError(t, err)
}

var (
	admin = Actor{ID: "usr_admin", Role: auth.RoleAdmin}
	owner = Actor{ID: "usr_owner", Role: auth.RoleOwner}
	staff = Actor{ID: "usr_member", Role: auth.RoleMember}
)

func TestApprove(t *testing.T) {
	svc, db := setupService(t)
	scope := tenant.ScopeFor("org_1")
	seedMember(t, db, "org_1", "mem_1", "jane@example.com", "Jane Doe", 2014, models.MemberStatePending)

	res, err := svc.Approve(context.Background(), scope, admin, "mem_1", "checked transcripts")
	require.NoError(t, err)

	assert.Equal(t, "ABC-JD14-00001", res.SerialID)
	require.NotNil(t, res.Counter)
	assert.Equal(t, int64(1), *res.Counter)
	assert.False(t, res.SerialPending)

	m, err := svc.members.GetByID(scope, "mem_1")
	require.NoError(t, err)
	assert.Equal(t, models.MemberStateVerified, m.State)
	assert.Equal(t, "ABC-JD14-00001", m.SerialID)
	assert.Equal(t, "usr_admin", m.VerifiedBy)
	assert.Equal(t, "checked transcripts", m.VerificationNotes)

	var counter int64
	require.NoError(t, db.QueryRow(`SELECT serial_counter FROM organizations WHERE id = 'org_1'`).Scan(&counter))
	assert.Equal(t, int64(1), counter)
}

func TestApprovePreconditions(t *testing.T) {
	svc, db := setupService(t)
	scope := tenant.ScopeFor("org_1")
	seedMember(t, db, "org_1", "mem_verified", "a@example.com", "A A", 2010, models.MemberStateVerified)
	seedMember(t, db, "org_1", "mem_rejected", "b@example.com", "B B", 2010, models.MemberStateRejected)
	seedMember(t, db, "org_1", "mem_pending", "c@example.com", "C C", 2010, models.MemberStatePending)

	_, err := svc.Approve(context.Background(), scope, admin, "mem_verified", "")
	assert.ErrorIs(t, err, ErrAlreadyVerified)

	_, err = svc.Approve(context.Background(), scope, admin, "mem_rejected", "")
	assert.ErrorIs(t, err, ErrNotPending)

	_, err = svc.Approve(context.Background(), scope, admin, "mem_missing", "")
	assert.ErrorIs(t, err, ErrMemberNotFound)

	_, err = svc.Approve(context.Background(), scope, staff, "mem_pending", "")
	assert.ErrorIs(t, err, ErrInsufficientPrivilege)

	// Failed approvals must not burn counter values.
	var counter int64
	require.NoError(t, db.QueryRow(`SELECT serial_counter FROM organizations WHERE id = 'org_1'`).Scan(&counter))
	assert.Equal(t, int64(0), counter)
}

func TestApproveConcurrentSerialsUnique(t *testing.T) {
	svc, db := setupService(t)
	scope := tenant.ScopeFor("org_1")

	const n = 10
	for i := 0; i < n; i++ {
		seedMember(t, db, "org_1", fmt.Sprintf("mem_%d", i), fmt.Sprintf("m%d@example.com", i), "Jane Doe", 2014, models.MemberStatePending)
	}

	var wg sync.WaitGroup
	results := make([]*ApprovalResult, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Approve(context.Background(), scope, admin, fmt.Sprintf("mem_%d", i), "")
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i], "approve %d", i)
		if results[i].SerialPending {
			continue
		}
		assert.False(t, seen[results[i].SerialID], "duplicate serial %s", results[i].SerialID)
		seen[results[i].SerialID] = true
	}

	var counter int64
	require.NoError(t, db.QueryRow(`SELECT serial_counter FROM organizations WHERE id = 'org_1'`).Scan(&counter))
	assert.Equal(t, int64(len(seen)), counter, "counter advances once per minted serial")
}

func TestApproveTenantIsolation(t *testing.T) {
	svc, db := setupService(t)
	now := time.Now().Unix()
	_, err := db.Exec(`INSERT INTO organizations (id, code, name, serial_counter, active, created_at, updated_at) VALUES ('org_2', 'XYZ', 'Other School', 0, 1, ?, ?)`, now, now)
	require.NoError(t, err)

	seedMember(t, db, "org_1", "mem_1", "jane@example.com", "Jane Doe", 2014, models.MemberStatePending)
	seedMember(t, db, "org_2", "mem_2", "john@example.com", "John Smith", 2012, models.MemberStatePending)

	// An admin scoped to org_2 cannot touch org_1's member.
	_, err = svc.Approve(context.Background(), tenant.ScopeFor("org_2"), admin, "mem_1", "")
	assert.ErrorIs(t, err, ErrMemberNotFound)

	// Counters advance independently per organization.
	_, err = svc.Approve(context.Background(), tenant.ScopeFor("org_1"), admin, "mem_1", "")
	require.NoError(t, err)
	res, err := svc.Approve(context.Background(), tenant.ScopeFor("org_2"), admin, "mem_2", "")
	require.NoError(t, err)
	assert.Equal(t, "XYZ-JS12-00001", res.SerialID)
}

func TestReject(t *testing.T) {
	svc, db := setupService(t)
	scope := tenant.ScopeFor("org_1")
	seedMember(t, db, "org_1", "mem_1", "jane@example.com", "Jane Doe", 2014, models.MemberStatePending)

	res, err := svc.Reject(context.Background(), scope, owner, "mem_1", "forged documents")
	require.NoError(t, err)
	assert.True(t, res.Blacklisted)

	m, err := svc.members.GetByID(scope, "mem_1")
	require.NoError(t, err)
	assert.Equal(t, models.MemberStateRejected, m.State)
	assert.Equal(t, "forged documents", m.RejectionReason)

	blocked, err := svc.ledger.IsBlacklisted(scope, "jane@example.com")
	require.NoError(t, err)
	assert.True(t, blocked, "rejection must blacklist the email")
}

func TestRejectPreconditions(t *testing.T) {
	svc, db := setupService(t)
	scope := tenant.ScopeFor("org_1")
	seedMember(t, db, "org_1", "mem_verified", "a@example.com", "A A", 2010, models.MemberStateVerified)
	seedMember(t, db, "org_1", "mem_rejected", "b@example.com", "B B", 2010, models.MemberStateRejected)
	seedMember(t, db, "org_1", "mem_pending", "c@example.com", "C C", 2010, models.MemberStatePending)

	_, err := svc.Reject(context.Background(), scope, owner, "mem_verified", "reason")
	assert.ErrorIs(t, err, ErrCannotRejectVerified)

	// A failed rejection leaves the verified member untouched.
	m, _ := svc.members.GetByID(scope, "mem_verified")
	assert.Equal(t, models.MemberStateVerified, m.State)

	_, err = svc.Reject(context.Background(), scope, owner, "mem_rejected", "reason")
	assert.ErrorIs(t, err, ErrAlreadyRejected)

	_, err = svc.Reject(context.Background(), scope, owner, "mem_pending", "   ")
	assert.ErrorIs(t, err, ErrReasonRequired)

	_, err = svc.Reject(context.Background(), scope, admin, "mem_pending", "reason")
	assert.ErrorIs(t, err, ErrInsufficientPrivilege, "reject requires the owner role")
}

func TestUnblockRoundTrip(t *testing.T) {
	svc, db := setupService(t)
	scope := tenant.ScopeFor("org_1")
	seedMember(t, db, "org_1", "mem_1", "jane@example.com", "Jane Doe", 2014, models.MemberStatePending)

	_, err := svc.Reject(context.Background(), scope, owner, "mem_1", "suspicious")
	require.NoError(t, err)

	_, err = svc.Unblock(context.Background(), scope, admin, "mem_1", "appeal accepted")
	assert.ErrorIs(t, err, ErrInsufficientPrivilege)

	res, err := svc.Unblock(context.Background(), scope, owner, "mem_1", "appeal accepted")
	require.NoError(t, err)
	assert.Equal(t, "mem_1", res.MemberID)

	m, err := svc.members.GetByID(scope, "mem_1")
	require.NoError(t, err)
	assert.Equal(t, models.MemberStatePending, m.State)
	assert.Equal(t, "usr_owner", m.UnblockedBy)

	blocked, err := svc.ledger.IsBlacklisted(scope, "jane@example.com")
	require.NoError(t, err)
	assert.False(t, blocked, "unblock must lift the blacklist entry")

	// The reinstated member can now be approved normally.
	appr, err := svc.Approve(context.Background(), scope, admin, "mem_1", "")
	require.NoError(t, err)
	assert.Equal(t, "ABC-JD14-00001", appr.SerialID)
}

func TestUnblockRequiresRejectedState(t *testing.T) {
	svc, db := setupService(t)
	scope := tenant.ScopeFor("org_1")
	seedMember(t, db, "org_1", "mem_1", "jane@example.com", "Jane Doe", 2014, models.MemberStatePending)

	_, err := svc.Unblock(context.Background(), scope, owner, "mem_1", "")
	assert.ErrorIs(t, err, ErrNotRejected)

	_, err = svc.Unblock(context.Background(), scope, owner, "mem_missing", "")
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestBulkApprovePartialFailure(t *testing.T) {
	svc, db := setupService(t)
	scope := tenant.ScopeFor("org_1")
	seedMember(t, db, "org_1", "mem_1", "a@example.com", "Jane Doe", 2014, models.MemberStatePending)
	seedMember(t, db, "org_1", "mem_2", "b@example.com", "John Smith", 2012, models.MemberStatePending)
	seedMember(t, db, "org_1", "mem_3", "c@example.com", "C C", 2010, models.MemberStateRejected)

	res, err := svc.BulkApprove(context.Background(), scope, owner, []string{"mem_1", "mem_2", "mem_3"}, "batch")
	require.NoError(t, err)

	assert.Len(t, res.Successful, 2)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "mem_3", res.Failed[0].MemberID)
	assert.Equal(t, ErrNotPending.Error(), res.Failed[0].Reason)
}

func TestBulkApproveLimits(t *testing.T) {
	svc, _ := setupService(t)
	scope := tenant.ScopeFor("org_1")

	ids := make([]string, BulkApproveLimit+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("mem_%d", i)
	}
	_, err := svc.BulkApprove(context.Background(), scope, owner, ids, "")
	assert.ErrorIs(t, err, ErrBatchTooLarge)

	_, err = svc.BulkApprove(context.Background(), scope, admin, []string{"mem_1"}, "")
	assert.ErrorIs(t, err, ErrInsufficientPrivilege, "bulk approve requires the owner role")
}

func TestResetSerialCounter(t *testing.T) {
	svc, db := setupService(t)
	scope := tenant.ScopeFor("org_1")
	seedMember(t, db, "org_1", "mem_1", "jane@example.com", "Jane Doe", 2014, models.MemberStatePending)

	_, err := svc.Approve(context.Background(), scope, admin, "mem_1", "")
	require.NoError(t, err)

	_, err = svc.ResetSerialCounter(context.Background(), scope, owner, 0, "reset please")
	assert.ErrorIs(t, err, ErrConfirmationMismatch)

	_, err = svc.ResetSerialCounter(context.Background(), scope, owner, -1, ResetConfirmationToken)
	assert.ErrorIs(t, err, ErrNegativeCounter)

	_, err = svc.ResetSerialCounter(context.Background(), scope, admin, 0, ResetConfirmationToken)
	assert.ErrorIs(t, err, ErrInsufficientPrivilege)

	res, err := svc.ResetSerialCounter(context.Background(), scope, owner, 100, ResetConfirmationToken)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.PreviousValue)
	assert.Equal(t, int64(100), res.NewValue)

	var counter int64
	require.NoError(t, db.QueryRow(`SELECT serial_counter FROM organizations WHERE id = 'org_1'`).Scan(&counter))
	assert.Equal(t, int64(100), counter)
}
