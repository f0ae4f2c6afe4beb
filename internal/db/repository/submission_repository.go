package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dunelab/dune/internal/apperr"
	"github.com/dunelab/dune/internal/db"
	"github.com/dunelab/dune/internal/tracer"
	"github.com/dunelab/dune/internal/util"
	"github.com/dunelab/dune/model"
)

const submissionColumns = `
	id,
	language,
	code,
	created_at,
	updated_at,
	user_id,
	status,
	benchmark_id,
	stdout,
	stderr,
	exec_duration,
	message,
	error,
	lint_score,
	quality_score,
	mem_usage,
	code_hash,
	cyclomatic_complexity`

type SubmissionRepository struct {
	db *db.DB
}

func NewSubmissionRepository(db *db.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

func scanSubmission(row pgx.Row) (*model.Submission, error) {
	var s model.Submission
	err := row.Scan(
		&s.ID,
		&s.Language,
		&s.Code,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.UserID,
		&s.Status,
		&s.BenchmarkID,
		&s.Stdout,
		&s.Stderr,
		&s.ExecDuration,
		&s.Message,
		&s.Error,
		&s.LintScore,
		&s.QualityScore,
		&s.MemUsage,
		&s.CodeHash,
		&s.CyclomaticComplexity,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SubmissionRepository) FindAll(ctx context.Context) ([]*model.Submission, error) {
	ctx, span := tracer.Get().Start(ctx, "Postgres/ListSubmissions")
	defer span.End()

	query := `SELECT ` + submissionColumns + ` FROM submission ORDER BY created_at DESC`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, fmt.Errorf("%w: list submissions: %v", apperr.ErrPersistence, err)
	}
	defer rows.Close()

	var submissions []*model.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			util.RecordSpanError(span, err)
			return nil, fmt.Errorf("%w: scan submission: %v", apperr.ErrPersistence, err)
		}
		submissions = append(submissions, s)
	}

	if err := rows.Err(); err != nil {
		util.RecordSpanError(span, err)
		return nil, fmt.Errorf("%w: list submissions: %v", apperr.ErrPersistence, err)
	}

	return submissions, nil
}

func (r *SubmissionRepository) Find(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	ctx, span := tracer.Get().Start(ctx, "Postgres/GetSubmission")
	defer span.End()

	query := `SELECT ` + submissionColumns + ` FROM submission WHERE id = $1`

	s, err := scanSubmission(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFoundf("submission %s", id)
		}
		util.RecordSpanError(span, err)
		return nil, fmt.Errorf("%w: get submission %s: %v", apperr.ErrPersistence, id, err)
	}

	return s, nil
}

func (r *SubmissionRepository) FindByUser(ctx context.Context, userID uuid.UUID) ([]*model.Submission, error) {
	ctx, span := tracer.Get().Start(ctx, "Postgres/ListUserSubmissions")
	defer span.End()

	query := `SELECT ` + submissionColumns + ` FROM submission WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, fmt.Errorf("%w: list submissions for user %s: %v", apperr.ErrPersistence, userID, err)
	}
	defer rows.Close()

	var submissions []*model.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			util.RecordSpanError(span, err)
			return nil, fmt.Errorf("%w: scan submission: %v", apperr.ErrPersistence, err)
		}
		submissions = append(submissions, s)
	}

	if err := rows.Err(); err != nil {
		util.RecordSpanError(span, err)
		return nil, fmt.Errorf("%w: list submissions for user %s: %v", apperr.ErrPersistence, userID, err)
	}

	return submissions, nil
}

func (r *SubmissionRepository) Insert(ctx context.Context, s *model.Submission) error {
	ctx, span := tracer.Get().Start(ctx, "Postgres/CreateSubmission")
	defer span.End()

	span.AddEvent("submission.context",
		trace.WithAttributes(attribute.String("submission_id", s.ID.String())),
	)

	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO submission (`+submissionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`,
		s.ID,
		s.Language,
		s.Code,
		s.CreatedAt,
		s.UpdatedAt,
		s.UserID,
		s.Status,
		s.BenchmarkID,
		s.Stdout,
		s.Stderr,
		s.ExecDuration,
		s.Message,
		s.Error,
		s.LintScore,
		s.QualityScore,
		s.MemUsage,
		s.CodeHash,
		s.CyclomaticComplexity,
	)
	if err != nil {
		util.RecordSpanError(span, err)
		return fmt.Errorf("%w: create submission %s: %v", apperr.ErrPersistence, s.ID, err)
	}

	return nil
}

func (r *SubmissionRepository) Update(ctx context.Context, s *model.Submission) (*model.Submission, error) {
	ctx, span := tracer.Get().Start(ctx, "Postgres/UpdateSubmission")
	defer span.End()

	span.AddEvent("submission.context",
		trace.WithAttributes(attribute.String("submission_id", s.ID.String())),
	)

	// Status is deliberately absent from the SET list: owner updates
	// must never race a lifecycle transition. Status only moves through
	// TransitionStatus and ApplyResult.
	query := `
		UPDATE submission
		SET
			language     = $2,
			code         = $3,
			updated_at   = $4,
			benchmark_id = $5,
			code_hash    = $6
		WHERE id = $1
	`
	tag, err := r.db.Pool.Exec(ctx, query,
		s.ID,
		s.Language,
		s.Code,
		s.UpdatedAt,
		s.BenchmarkID,
		s.CodeHash,
	)
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, fmt.Errorf("%w: update submission %s: %v", apperr.ErrPersistence, s.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, apperr.NotFoundf("submission %s", s.ID)
	}
	return s, nil
}

func (r *SubmissionRepository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	ctx, span := tracer.Get().Start(ctx, "Postgres/DeleteSubmission")
	defer span.End()

	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM submission WHERE id = $1`, id)
	if err != nil {
		util.RecordSpanError(span, err)
		return 0, fmt.Errorf("%w: delete submission %s: %v", apperr.ErrPersistence, id, err)
	}
	return tag.RowsAffected(), nil
}

// TransitionStatus flips status from one value to another in a single
// conditional update. Returns false when the row was not in the
// expected prior status (or does not exist).
func (r *SubmissionRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.Status) (bool, error) {
	ctx, span := tracer.Get().Start(ctx, "Postgres/TransitionStatus")
	defer span.End()

	span.AddEvent("submission.context",
		trace.WithAttributes(
			attribute.String("submission_id", id.String()),
			attribute.String("from", string(from)),
			attribute.String("to", string(to)),
		),
	)

	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE submission
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
	`, id, from, to, time.Now().UTC())
	if err != nil {
		util.RecordSpanError(span, err)
		return false, fmt.Errorf("%w: transition submission %s: %v", apperr.ErrPersistence, id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ApplyResult merges a grading result into a submission, gated on the
// row still being in running status. The WHERE clause is the per-row
// compare-and-set that keeps two concurrent results from both landing.
func (r *SubmissionRepository) ApplyResult(ctx context.Context, id uuid.UUID, res *model.ExecResult, to model.Status) (*model.Submission, error) {
	ctx, span := tracer.Get().Start(ctx, "Postgres/ApplyResult")
	defer span.End()

	span.AddEvent("submission.context",
		trace.WithAttributes(
			attribute.String("submission_id", id.String()),
			attribute.String("status", string(to)),
		),
	)

	query := `
		UPDATE submission
		SET
			status                = $2,
			stdout                = $3,
			stderr                = $4,
			exec_duration         = $5,
			mem_usage             = $6,
			message               = $7,
			error                 = $8,
			lint_score            = $9,
			quality_score         = $10,
			cyclomatic_complexity = $11,
			updated_at            = $12
		WHERE id = $1 AND status = 'running'
		RETURNING ` + submissionColumns

	var message, errText *string
	if res.Message != "" {
		message = &res.Message
	}
	if res.Error != "" {
		errText = &res.Error
	}
	var stdout, stderr *string
	if res.Stdout != "" {
		stdout = &res.Stdout
	}
	if res.Stderr != "" {
		stderr = &res.Stderr
	}

	row := r.db.Pool.QueryRow(ctx, query,
		id,
		to,
		stdout,
		stderr,
		res.ExecDuration,
		res.MemUsage,
		message,
		errText,
		res.LintScore,
		res.QualityScore,
		res.CyclomaticComplexity,
		time.Now().UTC(),
	)

	s, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Row missing or not in running; disambiguate for the caller.
			if _, findErr := r.Find(ctx, id); findErr != nil {
				return nil, findErr
			}
			return nil, fmt.Errorf("%w: submission %s is not running", apperr.ErrInvalidTransition, id)
		}
		util.RecordSpanError(span, err)
		return nil, fmt.Errorf("%w: apply result to submission %s: %v", apperr.ErrPersistence, id, err)
	}

	return s, nil
}
