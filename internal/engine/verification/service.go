package verification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"alumnet/internal/engine/blacklist"
	"alumnet/internal/engine/serial"
	"alumnet/internal/engine/tenant"
	"alumnet/internal/platform/audit"
	"alumnet/internal/platform/auth"
	"alumnet/internal/platform/models"
)

const (
	// BulkApproveLimit caps how many members one bulk call may process.
	BulkApproveLimit = 50

	// ResetConfirmationToken must be sent verbatim with a serial counter
	// reset. Resetting while allocations are in flight risks duplicate
	// serials, so the request has to prove it is deliberate.
	ResetConfirmationToken = "RESET-SERIAL-COUNTER"

	defaultTxRetries = 3
)

// Actor identifies the admin performing a transition.
type Actor struct {
	ID   string
	Role string
}

type ApprovalResult struct {
	MemberID      string `json:"member_id"`
	SerialID      string `json:"serial_id,omitempty"`
	Counter       *int64 `json:"counter,omitempty"`
	SerialPending bool   `json:"serial_pending"`
	VerifiedAt    int64  `json:"verified_at"`
}

type RejectionResult struct {
	MemberID    string `json:"member_id"`
	RejectedAt  int64  `json:"rejected_at"`
	Blacklisted bool   `json:"blacklisted"`
}

type UnblockResult struct {
	MemberID     string `json:"member_id"`
	ReinstatedAt int64  `json:"reinstated_at"`
}

type BulkFailure struct {
	MemberID string `json:"member_id"`
	Reason   string `json:"reason"`
}

type BulkResult struct {
	Successful []*ApprovalResult `json:"successful"`
	Failed     []BulkFailure     `json:"failed"`
}

type ResetResult struct {
	PreviousValue int64 `json:"previous_value"`
	NewValue      int64 `json:"new_value"`
}

// errRaceLost signals that a guarded state update affected zero rows: a
// concurrent transition got there first and the member must be re-read to
// report the right precondition error.
var errRaceLost = errors.New("state transition lost race")

// Service is the only mutator of member verification state. Each transition
// checks preconditions, applies the change atomically, and records an audit
// entry.
type Service struct {
	db         *sql.DB
	members    *MemberRepository
	ledger     *blacklist.Ledger
	allocator  *serial.Allocator
	audit      *audit.Recorder
	maxRetries int
}

func NewService(db *sql.DB, members *MemberRepository, ledger *blacklist.Ledger, allocator *serial.Allocator, recorder *audit.Recorder, maxRetries int) *Service {
	if maxRetries <= 0 {
		maxRetries = defaultTxRetries
	}
	return &Service{
		db:         db,
		members:    members,
		ledger:     ledger,
		allocator:  allocator,
		audit:      recorder,
		maxRetries: maxRetries,
	}
}

// Approve transitions a pending member to verified and mints a serial ID in
// the same transaction. If allocation keeps failing on lock contention the
// member is still verified, without a serial, and flagged for manual
// assignment.
func (s *Service) Approve(ctx context.Context, scope tenant.Scope, actor Actor, memberID, notes string) (*ApprovalResult, error) {
	if !auth.RoleAtLeast(actor.Role, auth.RoleAdmin) {
		return nil, ErrInsufficientPrivilege
	}

	m, err := s.members.GetByID(scope, memberID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrMemberNotFound
	}
	switch m.State {
	case models.MemberStateVerified:
		return nil, ErrAlreadyVerified
	case models.MemberStateRejected:
		return nil, ErrNotPending
	}

	now := time.Now().Unix()

	var alloc *models.SerialAllocation
	var txErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		alloc, txErr = s.approveTx(scope, actor, m, notes, now)
		if txErr == nil || !serial.IsRetryable(txErr) {
			break
		}
		time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
	}

	switch {
	case txErr == nil:
		s.audit.Record(ctx, audit.Entry{
			OrganizationID: scope.OrgID(),
			ActorID:        actor.ID,
			Action:         "member.approve",
			ResourceType:   "member",
			ResourceID:     m.ID,
			BeforeState:    string(models.MemberStatePending),
			AfterState:     string(models.MemberStateVerified),
			Metadata:       map[string]interface{}{"serial_id": alloc.SerialID, "counter": alloc.Counter, "notes": notes},
		})
		counter := alloc.Counter
		return &ApprovalResult{MemberID: m.ID, SerialID: alloc.SerialID, Counter: &counter, VerifiedAt: now}, nil

	case errors.Is(txErr, errRaceLost):
		return nil, s.approvePreconditionError(scope, m.ID)

	case errors.Is(txErr, serial.ErrOrganizationNotConfigured):
		return nil, txErr

	case serial.IsRetryable(txErr):
		// Retry budget exhausted. Verification proceeds without a serial
		// rather than blocking the approval on a numbering concern.
		return s.approveDegraded(ctx, scope, actor, m, notes, now, txErr)

	default:
		return nil, fmt.Errorf("approve member: %w", txErr)
	}
}

func (s *Service) approveTx(scope tenant.Scope, actor Actor, m *models.Member, notes string, now int64) (*models.SerialAllocation, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}

	alloc, err := s.allocator.AllocateTx(tx, scope, m)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	ok, err := s.members.markVerifiedTx(tx, scope, m.ID, actor.ID, notes, alloc.SerialID, &alloc.Counter, false, now)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if !ok {
		// The counter increment rolls back with the transaction, so a lost
		// race leaves no gap in the sequence.
		tx.Rollback()
		return nil, errRaceLost
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return alloc, nil
}

func (s *Service) approveDegraded(ctx context.Context, scope tenant.Scope, actor Actor, m *models.Member, notes string, now int64, cause error) (*ApprovalResult, error) {
	log.Warn().Err(cause).
		Str("org_id", scope.OrgID()).
		Str("member_id", m.ID).
		Msg("serial allocation failed, verifying member without serial")

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	ok, err := s.members.markVerifiedTx(tx, scope, m.ID, actor.ID, notes, "", nil, true, now)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("%w: %v", serial.ErrGenerationFailed, err)
	}
	if !ok {
		tx.Rollback()
		return nil, s.approvePreconditionError(scope, m.ID)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		OrganizationID: scope.OrgID(),
		ActorID:        actor.ID,
		Action:         "member.approve",
		ResourceType:   "member",
		ResourceID:     m.ID,
		BeforeState:    string(models.MemberStatePending),
		AfterState:     string(models.MemberStateVerified),
		Metadata:       map[string]interface{}{"serial_pending": true, "serial_error": cause.Error(), "notes": notes},
	})
	return &ApprovalResult{MemberID: m.ID, SerialPending: true, VerifiedAt: now}, nil
}

// Reject moves a pending member to rejected and blacklists the email within
// the organization. Highest-privilege operation.
func (s *Service) Reject(ctx context.Context, scope tenant.Scope, actor Actor, memberID, reason string) (*RejectionResult, error) {
	if !auth.RoleAtLeast(actor.Role, auth.RoleOwner) {
		return nil, ErrInsufficientPrivilege
	}
	if strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired
	}

	m, err := s.members.GetByID(scope, memberID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrMemberNotFound
	}
	switch m.State {
	case models.MemberStateVerified:
		return nil, ErrCannotRejectVerified
	case models.MemberStateRejected:
		return nil, ErrAlreadyRejected
	}

	now := time.Now().Unix()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	ok, err := s.members.markRejectedTx(tx, scope, m.ID, actor.ID, reason, now)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if !ok {
		tx.Rollback()
		return nil, s.rejectPreconditionError(scope, m.ID)
	}
	if err := s.ledger.AddTx(tx, scope, m.Email, reason, actor.ID); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		OrganizationID: scope.OrgID(),
		ActorID:        actor.ID,
		Action:         "member.reject",
		ResourceType:   "member",
		ResourceID:     m.ID,
		BeforeState:    string(models.MemberStatePending),
		AfterState:     string(models.MemberStateRejected),
		Metadata:       map[string]interface{}{"reason": reason, "email": m.Email},
	})
	return &RejectionResult{MemberID: m.ID, RejectedAt: now, Blacklisted: true}, nil
}

// Unblock returns a rejected member to pending and lifts the blacklist entry
// for their email. The email-verification flag is left untouched.
func (s *Service) Unblock(ctx context.Context, scope tenant.Scope, actor Actor, memberID, reason string) (*UnblockResult, error) {
	if !auth.RoleAtLeast(actor.Role, auth.RoleOwner) {
		return nil, ErrInsufficientPrivilege
	}

	m, err := s.members.GetByID(scope, memberID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrMemberNotFound
	}
	if m.State != models.MemberStateRejected {
		return nil, ErrNotRejected
	}

	now := time.Now().Unix()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	ok, err := s.members.markPendingTx(tx, scope, m.ID, actor.ID, now)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if !ok {
		tx.Rollback()
		return nil, ErrNotRejected
	}
	if err := s.ledger.RemoveTx(tx, scope, m.Email); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		OrganizationID: scope.OrgID(),
		ActorID:        actor.ID,
		Action:         "member.unblock",
		ResourceType:   "member",
		ResourceID:     m.ID,
		BeforeState:    string(models.MemberStateRejected),
		AfterState:     string(models.MemberStatePending),
		Metadata:       map[string]interface{}{"reason": reason, "email": m.Email},
	})
	return &UnblockResult{MemberID: m.ID, ReinstatedAt: now}, nil
}

// BulkApprove applies the approve transition to each member independently.
// One member failing does not roll back or stop the others.
func (s *Service) BulkApprove(ctx context.Context, scope tenant.Scope, actor Actor, memberIDs []string, notes string) (*BulkResult, error) {
	if !auth.RoleAtLeast(actor.Role, auth.RoleOwner) {
		return nil, ErrInsufficientPrivilege
	}
	if len(memberIDs) > BulkApproveLimit {
		return nil, ErrBatchTooLarge
	}

	result := &BulkResult{
		Successful: []*ApprovalResult{},
		Failed:     []BulkFailure{},
	}
	for _, id := range memberIDs {
		res, err := s.Approve(ctx, scope, actor, id, notes)
		if err != nil {
			result.Failed = append(result.Failed, BulkFailure{MemberID: id, Reason: err.Error()})
			continue
		}
		result.Successful = append(result.Successful, res)
	}
	return result, nil
}

// ResetSerialCounter overwrites the organization's counter. A misused reset
// can mint duplicate serials, so it demands the literal confirmation token
// and is recorded as a critical audit event.
func (s *Service) ResetSerialCounter(ctx context.Context, scope tenant.Scope, actor Actor, newValue int64, confirmationToken string) (*ResetResult, error) {
	if !auth.RoleAtLeast(actor.Role, auth.RoleOwner) {
		return nil, ErrInsufficientPrivilege
	}
	if confirmationToken != ResetConfirmationToken {
		return nil, ErrConfirmationMismatch
	}
	if newValue < 0 {
		return nil, ErrNegativeCounter
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	previous, err := s.allocator.CounterTx(tx, scope)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := s.allocator.ResetTx(tx, scope, newValue); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Info().
		Str("org_id", scope.OrgID()).
		Int64("previous", previous).
		Int64("new", newValue).
		Msg("serial counter reset")

	s.audit.Record(ctx, audit.Entry{
		OrganizationID: scope.OrgID(),
		ActorID:        actor.ID,
		Action:         "serial_counter.reset",
		ResourceType:   "organization",
		ResourceID:     scope.OrgID(),
		BeforeState:    fmt.Sprintf("%d", previous),
		AfterState:     fmt.Sprintf("%d", newValue),
		Critical:       true,
	})
	return &ResetResult{PreviousValue: previous, NewValue: newValue}, nil
}

func (s *Service) approvePreconditionError(scope tenant.Scope, memberID string) error {
	m, err := s.members.GetByID(scope, memberID)
	if err != nil {
		return err
	}
	if m == nil {
		return ErrMemberNotFound
	}
	switch m.State {
	case models.MemberStateVerified:
		return ErrAlreadyVerified
	case models.MemberStateRejected:
		return ErrNotPending
	}
	return ErrNotPending
}

func (s *Service) rejectPreconditionError(scope tenant.Scope, memberID string) error {
	m, err := s.members.GetByID(scope, memberID)
	if err != nil {
		return err
	}
	if m == nil {
		return ErrMemberNotFound
	}
	switch m.State {
	case models.MemberStateVerified:
		return ErrCannotRejectVerified
	case models.MemberStateRejected:
		return ErrAlreadyRejected
	}
	return ErrAlreadyRejected
}
