package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dropwatch/dropwatch/internal/errors"
	"github.com/dropwatch/dropwatch/internal/store"
)

var _ store.AuditStore = (*Store)(nil)

const dispatchColumns = `seq, id, path, event_id, digest, size, status, error, started_at, duration_ns`

// Record inserts a dispatch and its attempts in one transaction.
func (s *Store) Record(ctx context.Context, rec *store.DispatchRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO dispatches (id, path, event_id, digest, size, status, error, started_at, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Path,
		nullString(rec.EventID),
		nullString(rec.Digest),
		int64(rec.Size), //nolint:gosec // G115: file sizes fit in int64
		rec.Status,
		nullString(rec.Error),
		formatTime(rec.StartedAt),
		int64(rec.Duration),
	)
	if err != nil {
		return fmt.Errorf("insert dispatch %s: %w", rec.ID, err)
	}

	for i, a := range rec.Attempts {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO attempts (dispatch_id, position, action, ok, error, panicked, timed_out, duration_ns)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, i, a.Action, boolInt(a.OK), nullString(a.Error),
			boolInt(a.Panicked), boolInt(a.TimedOut), int64(a.Duration),
		)
		if err != nil {
			return fmt.Errorf("insert attempt %d of %s: %w", i, rec.ID, err)
		}
	}

	return tx.Commit()
}

// Get returns one dispatch by ID.
func (s *Store) Get(ctx context.Context, id string) (*store.DispatchRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+dispatchColumns+` FROM dispatches WHERE id = ?`, id)
	rec, _, err := scanDispatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFoundf("dispatch %s not found", id)
	}
	if err != nil {
		return nil, err
	}

	recs := []store.DispatchRecord{*rec}
	if err := s.loadAttempts(ctx, recs); err != nil {
		return nil, err
	}
	return &recs[0], nil
}

// Recent returns dispatches newest first.
func (s *Store) Recent(ctx context.Context, params store.PaginationParams) (*store.PaginatedResult[store.DispatchRecord], error) {
	params.Validate()

	var before int64
	if key, err := store.DecodeCursor(params.Cursor); err != nil {
		return nil, errors.Wrap(err, errors.CodeValidation, "bad cursor")
	} else if key != "" {
		before, err = strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeValidation, "bad cursor")
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+dispatchColumns+` FROM dispatches
		WHERE (? = 0 OR seq < ?)
		ORDER BY seq DESC
		LIMIT ?`, before, before, params.Limit+1)
	if err != nil {
		return nil, fmt.Errorf("query dispatches: %w", err)
	}
	defer rows.Close()

	var (
		items []store.DispatchRecord
		seqs  []int64
	)
	for rows.Next() {
		rec, seq, err := scanDispatch(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *rec)
		seqs = append(seqs, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatches: %w", err)
	}

	result := &store.PaginatedResult[store.DispatchRecord]{Items: []store.DispatchRecord{}}
	if len(items) > params.Limit {
		items = items[:params.Limit]
		result.HasMore = true
		result.NextCursor = store.EncodeCursor(strconv.FormatInt(seqs[params.Limit-1], 10))
	}

	if err := s.loadAttempts(ctx, items); err != nil {
		return nil, err
	}
	if items != nil {
		result.Items = items
	}
	return result, nil
}

// loadAttempts fills the Attempts of recs.
func (s *Store) loadAttempts(ctx context.Context, recs []store.DispatchRecord) error {
	if len(recs) == 0 {
		return nil
	}

	index := make(map[string]int, len(recs))
	args := make([]any, len(recs))
	for i := range recs {
		index[recs[i].ID] = i
		args[i] = recs[i].ID
		recs[i].Attempts = []store.AttemptRecord{}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(recs)), ",")
	rows, err := s.db.QueryContext(ctx, `
		SELECT dispatch_id, action, ok, error, panicked, timed_out, duration_ns
		FROM attempts
		WHERE dispatch_id IN (`+placeholders+`)
		ORDER BY dispatch_id, position`, args...)
	if err != nil {
		return fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			dispatchID string
			a          store.AttemptRecord
			errText    sql.NullString
			duration   int64
		)
		if err := rows.Scan(&dispatchID, &a.Action, &a.OK, &errText, &a.Panicked, &a.TimedOut, &duration); err != nil {
			return fmt.Errorf("scan attempt: %w", err)
		}
		a.Error = errText.String
		a.Duration = time.Duration(duration)

		i := index[dispatchID]
		recs[i].Attempts = append(recs[i].Attempts, a)
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDispatch(row scanner) (*store.DispatchRecord, int64, error) {
	var (
		rec       store.DispatchRecord
		seq       int64
		eventID   sql.NullString
		digest    sql.NullString
		size      int64
		errText   sql.NullString
		startedAt string
		duration  int64
	)
	if err := row.Scan(&seq, &rec.ID, &rec.Path, &eventID, &digest, &size, &rec.Status, &errText, &startedAt, &duration); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("scan dispatch: %w", err)
	}

	t, err := parseTime(startedAt)
	if err != nil {
		return nil, 0, fmt.Errorf("parse started_at %q: %w", startedAt, err)
	}

	rec.EventID = eventID.String
	rec.Digest = digest.String
	rec.Size = uint64(size) //nolint:gosec // G115: stored from uint64
	rec.Error = errText.String
	rec.StartedAt = t
	rec.Duration = time.Duration(duration)
	return &rec, seq, nil
}
