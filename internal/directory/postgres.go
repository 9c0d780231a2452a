package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Matsukatm/callcenter/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const activeAssignmentsQuery = `
SELECT a.id, a.user_id, u.name, u.status, e.id, e.extension_number,
       e.max_concurrent_calls, a.assigned_at, a.assignment_reason, a.metadata
FROM extension_assignments a
JOIN users u ON u.id = a.user_id
JOIN extensions e ON e.id = a.extension_id
WHERE a.released_at IS NULL
ORDER BY a.assigned_at`

// NewPool opens a small connection pool for the directory database
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid directory database url: %w", err)
	}

	cfg.MaxConns = 5
	cfg.MaxConnLifetime = time.Hour

	return pgxpool.NewWithConfig(ctx, cfg)
}

// PostgresSource reads and writes the directory tables directly
type PostgresSource struct {
	db     *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresSource wraps an open pool
func NewPostgresSource(db *pgxpool.Pool, logger zerolog.Logger) *PostgresSource {
	return &PostgresSource{
		db:     db,
		logger: logger.With().Str("component", "directory_postgres").Logger(),
	}
}

func (p *PostgresSource) Name() string { return "postgres" }

// ActiveAssignments lists assignments that have not been released
func (p *PostgresSource) ActiveAssignments(ctx context.Context) ([]types.Assignment, error) {
	rows, err := p.db.Query(ctx, activeAssignmentsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var out []types.Assignment
	for rows.Next() {
		var r assignmentRow
		if err := rows.Scan(&r.id, &r.userID, &r.name, &r.status, &r.extensionID, &r.number,
			&r.maxCalls, &r.assignedAt, &r.reason, &r.metadata); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		a, err := r.assignment()
		if err != nil {
			p.logger.Warn().Err(err).Str("assignment_id", a.ID).Msg("ignoring malformed assignment metadata")
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read assignments: %w", err)
	}
	return out, nil
}

// assignmentRow is one row of activeAssignmentsQuery
type assignmentRow struct {
	id, userID, extensionID int64
	name, status, number    string
	maxCalls                *int32
	assignedAt              time.Time
	reason                  *string
	metadata                []byte
}

// assignment maps the row. A metadata decode error is returned alongside a
// usable assignment without metadata.
func (r assignmentRow) assignment() (types.Assignment, error) {
	a := types.Assignment{
		ID:             strconv.FormatInt(r.id, 10),
		AgentID:        strconv.FormatInt(r.userID, 10),
		AgentName:      r.name,
		PresenceStatus: r.status,
		ExtensionID:    strconv.FormatInt(r.extensionID, 10),
		Extension:      r.number,
		AssignedAt:     r.assignedAt,
	}
	if r.maxCalls != nil {
		a.MaxConcurrentCalls = int(*r.maxCalls)
	}
	if r.reason != nil {
		a.AssignmentReason = *r.reason
	}
	if len(r.metadata) > 0 {
		if err := json.Unmarshal(r.metadata, &a.Metadata); err != nil {
			a.Metadata = nil
			return a, err
		}
	}
	return a, nil
}

// statusMetadata is the status_metadata document written with each status
func statusMetadata(update StatusUpdate) ([]byte, error) {
	return json.Marshal(map[string]any{
		"updated_by": systemActor,
		"timestamp":  update.UpdatedAt.UTC().Format(time.RFC3339),
		"concurrent_calls": map[string]any{
			"active_count": len(update.ActiveCalls),
			"active_calls": update.ActiveCalls,
			"max_capacity": update.MaxCalls,
		},
	})
}

// UpdateAgentStatus stores the derived status and occupancy on the user row
func (p *PostgresSource) UpdateAgentStatus(ctx context.Context, agentID string, update StatusUpdate) error {
	occupancy, err := statusMetadata(update)
	if err != nil {
		return err
	}

	tag, err := p.db.Exec(ctx,
		`UPDATE users SET status = $1, status_metadata = $2, updated_at = $3 WHERE id = $4`,
		string(update.Status), occupancy, update.UpdatedAt, agentID)
	if err != nil {
		return fmt.Errorf("failed to update agent status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownAgent
	}
	return nil
}

// AssignExtension releases the agent's current assignment and creates a new
// one in a single transaction
func (p *PostgresSource) AssignExtension(ctx context.Context, agentID, extension, reason string) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var extensionID int64
	err = tx.QueryRow(ctx, `SELECT id FROM extensions WHERE extension_number = $1`, extension).Scan(&extensionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrUnknownExtension
	}
	if err != nil {
		return fmt.Errorf("failed to look up extension: %w", err)
	}

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	batch.Queue(`UPDATE extension_assignments SET released_at = $1, release_reason = 'reassigned', released_by = $2
		WHERE released_at IS NULL AND (user_id = $3 OR extension_id = $4)`, now, systemActor, agentID, extensionID)
	batch.Queue(`INSERT INTO extension_assignments (user_id, extension_id, assigned_at, assigned_by, assignment_reason, metadata)
		VALUES ($1, $2, $3, $4, $5, '{}'::jsonb)`, agentID, extensionID, now, systemActor, reason)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to assign extension: %w", err)
	}
	return tx.Commit(ctx)
}

// ReleaseAssignment marks an assignment released
func (p *PostgresSource) ReleaseAssignment(ctx context.Context, assignmentID, reason string) error {
	tag, err := p.db.Exec(ctx,
		`UPDATE extension_assignments SET released_at = $1, release_reason = $2, released_by = $3
		WHERE id = $4 AND released_at IS NULL`,
		time.Now().UTC(), reason, systemActor, assignmentID)
	if err != nil {
		return fmt.Errorf("failed to release assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownAgent
	}
	return nil
}

// UpdateAssignmentMetadata merges metadata into the assignment
func (p *PostgresSource) UpdateAssignmentMetadata(ctx context.Context, assignmentID string, metadata map[string]any) error {
	buf, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(ctx,
		`UPDATE extension_assignments SET metadata = COALESCE(metadata, '{}'::jsonb) || $1::jsonb WHERE id = $2`,
		buf, assignmentID)
	if err != nil {
		return fmt.Errorf("failed to update assignment metadata: %w", err)
	}
	return nil
}
