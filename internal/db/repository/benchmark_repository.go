package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dunelab/dune/internal/apperr"
	"github.com/dunelab/dune/internal/db"
	"github.com/dunelab/dune/internal/tracer"
	"github.com/dunelab/dune/internal/util"
	"github.com/dunelab/dune/model"
)

const benchmarkColumns = `
	id,
	title,
	subject,
	difficulty,
	creator_id,
	git_url,
	max_cyclomatic_complex`

type BenchmarkRepository struct {
	db *db.DB
}

func NewBenchmarkRepository(db *db.DB) *BenchmarkRepository {
	return &BenchmarkRepository{db: db}
}

func scanBenchmark(row pgx.Row) (*model.Benchmark, error) {
	var b model.Benchmark
	err := row.Scan(
		&b.ID,
		&b.Title,
		&b.Subject,
		&b.Difficulty,
		&b.CreatorID,
		&b.GitURL,
		&b.MaxCyclomaticComplex,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BenchmarkRepository) FindAll(ctx context.Context) ([]*model.Benchmark, error) {
	ctx, span := tracer.Get().Start(ctx, "Postgres/ListBenchmarks")
	defer span.End()

	rows, err := r.db.Pool.Query(ctx, `SELECT `+benchmarkColumns+` FROM benchmark`)
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, fmt.Errorf("%w: list benchmarks: %v", apperr.ErrPersistence, err)
	}
	defer rows.Close()

	var benchmarks []*model.Benchmark
	for rows.Next() {
		b, err := scanBenchmark(rows)
		if err != nil {
			util.RecordSpanError(span, err)
			return nil, fmt.Errorf("%w: scan benchmark: %v", apperr.ErrPersistence, err)
		}
		benchmarks = append(benchmarks, b)
	}

	if err := rows.Err(); err != nil {
		util.RecordSpanError(span, err)
		return nil, fmt.Errorf("%w: list benchmarks: %v", apperr.ErrPersistence, err)
	}

	return benchmarks, nil
}

func (r *BenchmarkRepository) Find(ctx context.Context, id uuid.UUID) (*model.Benchmark, error) {
	ctx, span := tracer.Get().Start(ctx, "Postgres/GetBenchmark")
	defer span.End()

	b, err := scanBenchmark(r.db.Pool.QueryRow(ctx, `SELECT `+benchmarkColumns+` FROM benchmark WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFoundf("benchmark %s", id)
		}
		util.RecordSpanError(span, err)
		return nil, fmt.Errorf("%w: get benchmark %s: %v", apperr.ErrPersistence, id, err)
	}
	return b, nil
}

func (r *BenchmarkRepository) Insert(ctx context.Context, b *model.Benchmark) error {
	ctx, span := tracer.Get().Start(ctx, "Postgres/CreateBenchmark")
	defer span.End()

	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO benchmark (`+benchmarkColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		b.ID,
		b.Title,
		b.Subject,
		b.Difficulty,
		b.CreatorID,
		b.GitURL,
		b.MaxCyclomaticComplex,
	)
	if err != nil {
		util.RecordSpanError(span, err)
		return fmt.Errorf("%w: create benchmark %s: %v", apperr.ErrPersistence, b.ID, err)
	}
	return nil
}

func (r *BenchmarkRepository) Update(ctx context.Context, b *model.Benchmark) (*model.Benchmark, error) {
	ctx, span := tracer.Get().Start(ctx, "Postgres/UpdateBenchmark")
	defer span.End()

	query := `
		UPDATE benchmark
		SET
			title                  = $2,
			subject                = $3,
			difficulty             = $4,
			git_url                = $5,
			max_cyclomatic_complex = $6
		WHERE id = $1
	`
	tag, err := r.db.Pool.Exec(ctx, query,
		b.ID,
		b.Title,
		b.Subject,
		b.Difficulty,
		b.GitURL,
		b.MaxCyclomaticComplex,
	)
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, fmt.Errorf("%w: update benchmark %s: %v", apperr.ErrPersistence, b.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, apperr.NotFoundf("benchmark %s", b.ID)
	}
	return b, nil
}

func (r *BenchmarkRepository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	ctx, span := tracer.Get().Start(ctx, "Postgres/DeleteBenchmark")
	defer span.End()

	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM benchmark WHERE id = $1`, id)
	if err != nil {
		util.RecordSpanError(span, err)
		return 0, fmt.Errorf("%w: delete benchmark %s: %v", apperr.ErrPersistence, id, err)
	}
	return tag.RowsAffected(), nil
}
