package serial

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"alumnet/internal/engine/tenant"
	"alumnet/internal/platform/models"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}

	query := `
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
	CREATE TABLE serial_allocations (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		member_id TEXT NOT NULL,
		serial_id TEXT NOT NULL,
		counter INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE (organization_id, counter)
	);
	`
	if _, err := db.Exec(query); err != nil {
		t.Fatalf("Failed to create tables: %v", err)
	}

	now := time.Now().Unix()
	_, err = db.Exec(`INSERT INTO organizations (id, code, name, serial_counter, active, created_at, updated_at) VALUES ('org_1', 'ABC', 'Test School', 0, 1, ?, ?)`, now, now)
	if err != nil {
		t.Fatalf("Failed to seed organization: %v", err)
	}
	return db
}

func testMember(id string) *models.Member {
	return &models.Member{
		ID:          id,
		FullName:    "Jane Doe",
		PassoutYear: 2014,
	}
}

func TestAllocateTx(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	allocator := NewAllocator()
	scope := tenant.ScopeFor("org_1")

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Failed to begin tx: %v", err)
	}
	alloc, err := allocator.AllocateTx(tx, scope, testMember("mem_1"))
	if err != nil {
		t.Fatalf("AllocateTx failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if alloc.Counter != 1 {
		t.Errorf("Expected counter 1, got %d", alloc.Counter)
	}
	if alloc.SerialID != "ABC-JD14-00001" {
		t.Errorf("Expected serial ABC-JD14-00001, got %s", alloc.SerialID)
	}

	var counter int64
	if err := db.QueryRow(`SELECT serial_counter FROM organizations WHERE id = 'org_1'`).Scan(&counter); err != nil {
		t.Fatalf("Failed to read counter: %v", err)
	}
	if counter != 1 {
		t.Errorf("Expected org counter 1, got %d", counter)
	}
}

func TestAllocateTxSequential(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	allocator := NewAllocator()
	scope := tenant.ScopeFor("org_1")

	seen := make(map[int64]bool)
	for i := 0; i < 5; i++ {
		tx, err := db.Begin()
		if err != nil {
			t.Fatalf("Failed to begin tx: %v", err)
		}
		alloc, err := allocator.AllocateTx(tx, scope, testMember("mem_1"))
		if err != nil {
			t.Fatalf("AllocateTx failed on iteration %d: %v", i, err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}
		if seen[alloc.Counter] {
			t.Errorf("Duplicate counter value %d", alloc.Counter)
		}
		seen[alloc.Counter] = true
	}

	var counter int64
	db.QueryRow(`SELECT serial_counter FROM organizations WHERE id = 'org_1'`).Scan(&counter)
	if counter != 5 {
		t.Errorf("Expected counter to advance by exactly 5, got %d", counter)
	}
}

func TestAllocateTxRollbackLeavesNoGap(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	allocator := NewAllocator()
	scope := tenant.ScopeFor("org_1")

	tx, _ := db.Begin()
	if _, err := allocator.AllocateTx(tx, scope, testMember("mem_1")); err != nil {
		t.Fatalf("AllocateTx failed: %v", err)
	}
	tx.Rollback()

	var counter int64
	db.QueryRow(`SELECT serial_counter FROM organizations WHERE id = 'org_1'`).Scan(&counter)
	if counter != 0 {
		t.Errorf("Expected counter 0 after rollback, got %d", counter)
	}
}

func TestAllocateTxUnknownOrg(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	allocator := NewAllocator()

	tx, _ := db.Begin()
	defer tx.Rollback()

	_, err := allocator.AllocateTx(tx, tenant.ScopeFor("org_missing"), testMember("mem_1"))
	if err != ErrOrganizationNotConfigured {
		t.Errorf("Expected ErrOrganizationNotConfigured, got %v", err)
	}
}

func TestAllocateTxInactiveOrg(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	if _, err := db.Exec(`UPDATE organizations SET active = 0 WHERE id = 'org_1'`); err != nil {
		t.Fatalf("Failed to deactivate org: %v", err)
	}

	allocator := NewAllocator()

	tx, _ := db.Begin()
	defer tx.Rollback()

	_, err := allocator.AllocateTx(tx, tenant.ScopeFor("org_1"), testMember("mem_1"))
	if err != ErrOrganizationNotConfigured {
		t.Errorf("Expected ErrOrganizationNotConfigured, got %v", err)
	}
}

func TestResetTx(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	allocator := NewAllocator()
	scope := tenant.ScopeFor("org_1")

	tx, _ := db.Begin()
	prev, err := allocator.CounterTx(tx, scope)
	if err != nil {
		t.Fatalf("CounterTx failed: %v", err)
	}
	if prev != 0 {
		t.Errorf("Expected counter 0, got %d", prev)
	}
	if err := allocator.ResetTx(tx, scope, 100); err != nil {
		t.Fatalf("ResetTx failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	var counter int64
	db.QueryRow(`SELECT serial_counter FROM organizations WHERE id = 'org_1'`).Scan(&counter)
	if counter != 100 {
		t.Errorf("Expected counter 100 after reset, got %d", counter)
	}
}
