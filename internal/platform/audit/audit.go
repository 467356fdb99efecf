package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type metaKey struct{}

// Meta carries request metadata recorded alongside every audit entry.
type Meta struct {
	IP        string
	UserAgent string
}

func WithMeta(ctx context.Context, meta Meta) context.Context {
	return context.WithValue(ctx, metaKey{}, meta)
}

func MetaFromContext(ctx context.Context) Meta {
	if m, ok := ctx.Value(metaKey{}).(Meta); ok {
		return m
	}
	return Meta{IP: "unknown", UserAgent: "unknown"}
}

type Entry struct {
	ID             string                 `json:"id"`
	OrganizationID string                 `json:"organization_id"`
	ActorID        string                 `json:"actor_id"`
	Action         string                 `json:"action"`
	ResourceType   string                 `json:"resource_type"`
	ResourceID     string                 `json:"resource_id"`
	BeforeState    string                 `json:"before_state"`
	AfterState     string                 `json:"after_state"`
	Metadata       map[string]interface{} `json:"metadata"`
	Critical       bool                   `json:"critical"`
	IPAddress      string                 `json:"ip_address"`
	UserAgent      string                 `json:"user_agent"`
	CreatedAt      int64                  `json:"created_at"`
}

type Recorder struct {
	db *sql.DB
}

func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

// Record persists an audit entry asynchronously. Writes are best-effort: a
// failed insert is logged but never blocks or fails the transition that
// produced it.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	meta := MetaFromContext(ctx)

	e.ID = "audit_" + uuid.NewString()
	e.IPAddress = meta.IP
	e.UserAgent = meta.UserAgent
	e.CreatedAt = time.Now().Unix()

	metaJSON, _ := json.Marshal(e.Metadata)

	go func() {
		query := `
			INSERT INTO audit_logs (id, organization_id, actor_id, action, resource_type, resource_id, before_state, after_state, metadata, critical, ip_address, user_agent, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := r.db.Exec(query,
			e.ID, e.OrganizationID, e.ActorID, e.Action, e.ResourceType, e.ResourceID,
			e.BeforeState, e.AfterState, string(metaJSON), e.Critical, e.IPAddress, e.UserAgent, e.CreatedAt,
		)
		if err != nil {
			log.Error().Err(err).
				Str("action", e.Action).
				Str("resource_id", e.ResourceID).
				Msg("failed to write audit entry")
			return
		}
		if e.Critical {
			log.Warn().
				Str("action", e.Action).
				Str("org_id", e.OrganizationID).
				Str("actor_id", e.ActorID).
				Msg("critical administrative action recorded")
		}
	}()
}

// List returns the most recent entries for an organization.
func (r *Recorder) List(orgID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT id, organization_id, actor_id, action, resource_type, resource_id, before_state, after_state, metadata, critical, ip_address, user_agent, created_at
		FROM audit_logs WHERE organization_id = ? ORDER BY created_at DESC LIMIT ?
	`
	rows, err := r.db.Query(query, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var metaStr string
		if err := rows.Scan(&e.ID, &e.OrganizationID, &e.ActorID, &e.Action, &e.ResourceType, &e.ResourceID,
			&e.BeforeState, &e.AfterState, &metaStr, &e.Critical, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(metaStr), &e.Metadata)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
