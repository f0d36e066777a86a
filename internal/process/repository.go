package process

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridline-energy/gridline/internal/platform/db"
)

// PgRepository is the pgx-backed process store.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Insert stores a freshly created instance.
func (r *PgRepository) Insert(ctx context.Context, p ProcessInstance) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO process_instances
  (id, process_type, role, current_state, correlation_id, metering_point_id, effective_date, started_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, string(p.Type), string(p.Role), string(p.CurrentState),
		p.CorrelationID, p.MeteringPointID, p.EffectiveDate, p.StartedAt)
	return err
}

// Get loads one instance.
func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (ProcessInstance, error) {
	return scanInstance(r.pool.QueryRow(ctx, `
SELECT id, process_type, role, current_state, correlation_id, metering_point_id,
       effective_date, started_at, completed_at, outcome, error_detail
FROM process_instances WHERE id=$1`, id))
}

// List returns matching instances, newest first, with a total count.
func (r *PgRepository) List(ctx context.Context, filter ListFilter) ([]ProcessInstance, int, error) {
	if filter.PerPage <= 0 {
		filter.PerPage = 20
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	where := `WHERE ($1='' OR process_type=$1)
  AND ($2='' OR metering_point_id=$2)
  AND (NOT $3 OR outcome IS NULL)`
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM process_instances `+where,
		string(filter.Type), filter.MeteringPointID, filter.ActiveOnly).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
SELECT id, process_type, role, current_state, correlation_id, metering_point_id,
       effective_date, started_at, completed_at, outcome, error_detail
FROM process_instances `+where+`
ORDER BY started_at DESC LIMIT $4 OFFSET $5`,
		string(filter.Type), filter.MeteringPointID, filter.ActiveOnly,
		filter.PerPage, (filter.Page-1)*filter.PerPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []ProcessInstance
	for rows.Next() {
		p, err := scanInstance(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// ApplyTransition updates the state conditionally on the expected previous
// state and appends the audit record in one transaction. A conditional
// update that matches no row while the process exists means a concurrent
// transition won; the caller re-reads and retries.
func (r *PgRepository) ApplyTransition(ctx context.Context, input ApplyTransitionInput) (ProcessInstance, error) {
	var updated ProcessInstance
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
UPDATE process_instances
SET current_state=$1, completed_at=$2, outcome=$3
WHERE id=$4 AND current_state=$5
RETURNING id, process_type, role, current_state, correlation_id, metering_point_id,
          effective_date, started_at, completed_at, outcome, error_detail`,
			string(input.To), input.CompletedAt, outcomeArg(input.Outcome),
			input.ProcessID, string(input.From))
		p, err := scanInstance(row)
		if err != nil {
			if errors.Is(err, ErrProcessNotFound) {
				var exists bool
				if checkErr := r.pool.QueryRow(ctx,
					`SELECT EXISTS(SELECT 1 FROM process_instances WHERE id=$1)`,
					input.ProcessID).Scan(&exists); checkErr != nil {
					return checkErr
				}
				if exists {
					return ErrTransitionConflict
				}
				return ErrProcessNotFound
			}
			return err
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO process_transitions (process_id, from_state, to_state, at, trigger_ref)
VALUES ($1, $2, $3, $4, $5)`,
			input.ProcessID, string(input.From), string(input.To), input.At, input.TriggerRef); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return ProcessInstance{}, err
	}
	return updated, nil
}

// Transitions returns the audit trail, oldest first.
func (r *PgRepository) Transitions(ctx context.Context, processID uuid.UUID) ([]TransitionRecord, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, process_id, from_state, to_state, at, trigger_ref
FROM process_transitions WHERE process_id=$1 ORDER BY at ASC, id ASC`, processID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TransitionRecord
	for rows.Next() {
		var rec TransitionRecord
		var from, to string
		if err := rows.Scan(&rec.ID, &rec.ProcessID, &from, &to, &rec.At, &rec.TriggerRef); err != nil {
			return nil, err
		}
		rec.FromState = State(from)
		rec.ToState = State(to)
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row rowScanner) (ProcessInstance, error) {
	var p ProcessInstance
	var pt, role, state string
	var outcome *string
	var errDetail *string
	err := row.Scan(&p.ID, &pt, &role, &state, &p.CorrelationID, &p.MeteringPointID,
		&p.EffectiveDate, &p.StartedAt, &p.CompletedAt, &outcome, &errDetail)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProcessInstance{}, ErrProcessNotFound
		}
		return ProcessInstance{}, err
	}
	p.Type = ProcessType(pt)
	p.Role = Role(role)
	p.CurrentState = State(state)
	if outcome != nil {
		o := Outcome(*outcome)
		p.Outcome = &o
	}
	if errDetail != nil {
		p.ErrorDetail = *errDetail
	}
	return p, nil
}

func outcomeArg(o *Outcome) *string {
	if o == nil {
		return nil
	}
	s := string(*o)
	return &s
}
