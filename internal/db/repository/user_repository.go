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

const userColumns = `
	id,
	name,
	email,
	password,
	username,
	data_version,
	created_at,
	updated_at`

type UserRepository struct {
	db *db.DB
}

func NewUserRepository(db *db.DB) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.Password,
		&u.Username,
		&u.DataVersion,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) FindAll(ctx context.Context) ([]*model.User, error) {
	ctx, span := tracer.Get().Start(ctx, "Postgres/ListUsers")
	defer span.End()

	rows, err := r.db.Pool.Query(ctx, `SELECT `+userColumns+` FROM "user"`)
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, fmt.Errorf("%w: list users: %v", apperr.ErrPersistence, err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			util.RecordSpanError(span, err)
			return nil, fmt.Errorf("%w: scan user: %v", apperr.ErrPersistence, err)
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		util.RecordSpanError(span, err)
		return nil, fmt.Errorf("%w: list users: %v", apperr.ErrPersistence, err)
	}

	return users, nil
}

func (r *UserRepository) Find(ctx context.Context, id uuid.UUID) (*model.User, error) {
	ctx, span := tracer.Get().Start(ctx, "Postgres/GetUser")
	defer span.End()

	u, err := scanUser(r.db.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM "user" WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFoundf("user %s", id)
		}
		util.RecordSpanError(span, err)
		return nil, fmt.Errorf("%w: get user %s: %v", apperr.ErrPersistence, id, err)
	}
	return u, nil
}

// FindByEmailOrUsername resolves sign-in credentials; either field may
// identify the account.
func (r *UserRepository) FindByEmailOrUsername(ctx context.Context, email, username string) (*model.User, error) {
	ctx, span := tracer.Get().Start(ctx, "Postgres/GetUserByCredentials")
	defer span.End()

	query := `SELECT ` + userColumns + ` FROM "user" WHERE email = $1 OR username = $2`

	u, err := scanUser(r.db.Pool.QueryRow(ctx, query, email, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFoundf("user %s", username)
		}
		util.RecordSpanError(span, err)
		return nil, fmt.Errorf("%w: get user by credentials: %v", apperr.ErrPersistence, err)
	}
	return u, nil
}

func (r *UserRepository) Insert(ctx context.Context, u *model.User) error {
	ctx, span := tracer.Get().Start(ctx, "Postgres/CreateUser")
	defer span.End()

	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO "user" (`+userColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		u.ID,
		u.Name,
		u.Email,
		u.Password,
		u.Username,
		u.DataVersion,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		util.RecordSpanError(span, err)
		return fmt.Errorf("%w: create user %s: %v", apperr.ErrPersistence, u.ID, err)
	}
	return nil
}

func (r *UserRepository) Update(ctx context.Context, u *model.User) (*model.User, error) {
	ctx, span := tracer.Get().Start(ctx, "Postgres/UpdateUser")
	defer span.End()

	query := `
		UPDATE "user"
		SET
			name         = $2,
			email        = $3,
			password     = $4,
			username     = $5,
			data_version = $6,
			updated_at   = $7
		WHERE id = $1
	`
	tag, err := r.db.Pool.Exec(ctx, query,
		u.ID,
		u.Name,
		u.Email,
		u.Password,
		u.Username,
		u.DataVersion,
		u.UpdatedAt,
	)
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, fmt.Errorf("%w: update user %s: %v", apperr.ErrPersistence, u.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, apperr.NotFoundf("user %s", u.ID)
	}
	return u, nil
}

func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	ctx, span := tracer.Get().Start(ctx, "Postgres/DeleteUser")
	defer span.End()

	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM "user" WHERE id = $1`, id)
	if err != nil {
		util.RecordSpanError(span, err)
		return 0, fmt.Errorf("%w: delete user %s: %v", apperr.ErrPersistence, id, err)
	}
	return tag.RowsAffected(), nil
}
