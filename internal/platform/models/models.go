package models

// MemberState is the single source of truth for a member's verification
// status. Exactly one state holds at any observable instant; transitions are
// performed only by the verification service.
type MemberState string

const (
	MemberStatePending  MemberState = "PENDING"
	MemberStateVerified MemberState = "VERIFIED"
	MemberStateRejected MemberState = "REJECTED"
)

type Organization struct {
	ID            string `json:"id"`
	Code          string `json:"code"`
	Name          string `json:"name"`
	FoundedYear   int    `json:"founded_year"`
	SerialCounter int64  `json:"serial_counter"`
	Active        bool   `json:"active"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
}

// User is an authenticated account (admin or owner) acting on an
// organization's members. Members themselves are tracked separately.
type User struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Email          string `json:"email"`
	PasswordHash   string `json:"-"`
	FullName       string `json:"full_name"`
	Role           string `json:"role"`
	CreatedAt      int64  `json:"created_at"`
	UpdatedAt      int64  `json:"updated_at"`
}

type Member struct {
	ID             string      `json:"id"`
	OrganizationID string      `json:"organization_id"`
	Email          string      `json:"email"`
	FullName       string      `json:"full_name"`
	AdmissionYear  int         `json:"admission_year"`
	PassoutYear    int         `json:"passout_year"`
	State          MemberState `json:"state"`
	EmailVerified  bool        `json:"email_verified"`

	SerialID      string `json:"serial_id,omitempty"`
	SerialCounter *int64 `json:"serial_counter,omitempty"`
	// SerialPending marks a member verified in degraded mode: allocation
	// failed and a serial must be assigned manually.
	SerialPending bool `json:"serial_pending"`

	VerifiedBy        string `json:"verified_by,omitempty"`
	VerifiedAt        *int64 `json:"verified_at,omitempty"`
	VerificationNotes string `json:"verification_notes,omitempty"`
	RejectedBy        string `json:"rejected_by,omitempty"`
	RejectedAt        *int64 `json:"rejected_at,omitempty"`
	RejectionReason   string `json:"rejection_reason,omitempty"`
	UnblockedBy       string `json:"unblocked_by,omitempty"`
	UnblockedAt       *int64 `json:"unblocked_at,omitempty"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

type BlacklistEntry struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Email          string `json:"email"`
	Reason         string `json:"reason"`
	BlacklistedBy  string `json:"blacklisted_by"`
	Active         bool   `json:"active"`
	CreatedAt      int64  `json:"created_at"`
	UpdatedAt      int64  `json:"updated_at"`
}

// SerialAllocation records the immutable pairing of a member to the serial
// string it received and the counter value consumed to produce it.
type SerialAllocation struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	MemberID       string `json:"member_id"`
	SerialID       string `json:"serial_id"`
	Counter        int64  `json:"counter"`
	CreatedAt      int64  `json:"created_at"`
}
