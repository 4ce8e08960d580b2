package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"dosepics/internal/models"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

type postgresRepository struct {
	pool *pgxpool.Pool
	cfg  PostgresConfig
}

// NewPostgresRepository opens a Postgres-backed repository and applies the
// schema migrations.
func NewPostgresRepository(ctx context.Context, dsn string, opts ...Option) (Repository, error) {
	cfg := newPostgresConfig(dsn, opts...)
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections >= 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := MigratePostgres(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &postgresRepository{pool: pool, cfg: cfg}, nil
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *postgresRepository) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// User operations

func (r *postgresRepository) CreateUser(ctx context.Context, params CreateUserParams) (models.User, error) {
	username, err := NormalizeUsername(params.Username)
	if err != nil {
		return models.User{}, err
	}
	if params.Password == "" {
		return models.User{}, fmt.Errorf("password is required: %w", ErrInvalidInput)
	}
	passwordHash, err := HashPassword(params.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	name := strings.TrimSpace(params.Name)
	_, err = r.pool.Exec(ctx,
		`INSERT INTO users (username, name, password_hash, admin) VALUES ($1, $2, $3, $4)`,
		username, name, passwordHash, params.Admin)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, fmt.Errorf("user %s: %w", username, ErrConflict)
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}

	return models.User{
		Username:     username,
		Name:         name,
		PasswordHash: passwordHash,
		Admin:        params.Admin,
	}, nil
}

func (r *postgresRepository) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT username, name, password_hash, admin FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.Username, &user.Name, &user.PasswordHash, &user.Admin); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (r *postgresRepository) GetUser(ctx context.Context, username string) (models.User, error) {
	var user models.User
	err := r.pool.QueryRow(ctx,
		`SELECT username, name, password_hash, admin FROM users WHERE username = $1`,
		username).Scan(&user.Username, &user.Name, &user.PasswordHash, &user.Admin)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, fmt.Errorf("user %s: %w", username, ErrNotFound)
	} else if err != nil {
		return models.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// UpdateUser applies all requested field changes inside one transaction so a
// partial update never becomes visible.
func (r *postgresRepository) UpdateUser(ctx context.Context, username string, update UserUpdate) (models.User, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("begin update user: %w", err)
	}
	defer tx.Rollback(ctx)

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if err := execUserUpdate(ctx, tx, username,
			`UPDATE users SET name = $1 WHERE username = $2`, name); err != nil {
			return models.User{}, err
		}
	}
	if update.Password != nil {
		if *update.Password == "" {
			return models.User{}, fmt.Errorf("password cannot be empty: %w", ErrInvalidInput)
		}
		hashed, err := HashPassword(*update.Password)
		if err != nil {
			return models.User{}, fmt.Errorf("hash password: %w", err)
		}
		if err := execUserUpdate(ctx, tx, username,
			`UPDATE users SET password_hash = $1 WHERE username = $2`, hashed); err != nil {
			return models.User{}, err
		}
	}
	if update.Admin != nil {
		if err := execUserUpdate(ctx, tx, username,
			`UPDATE users SET admin = $1 WHERE username = $2`, *update.Admin); err != nil {
			return models.User{}, err
		}
	}

	var user models.User
	err = tx.QueryRow(ctx,
		`SELECT username, name, password_hash, admin FROM users WHERE username = $1`,
		username).Scan(&user.Username, &user.Name, &user.PasswordHash, &user.Admin)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, fmt.Errorf("user %s: %w", username, ErrNotFound)
	} else if err != nil {
		return models.User{}, fmt.Errorf("reload user: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.User{}, fmt.Errorf("commit update user: %w", err)
	}
	return user, nil
}

func execUserUpdate(ctx context.Context, tx pgx.Tx, username, query string, value any) error {
	tag, err := tx.Exec(ctx, query, value, username)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", username, ErrNotFound)
	}
	return nil
}

func (r *postgresRepository) DeleteUser(ctx context.Context, username string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE username = $1`, username)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", username, ErrNotFound)
	}
	return nil
}

func (r *postgresRepository) VerifyCredentials(ctx context.Context, username, password string) (models.User, error) {
	if password == "" {
		return models.User{}, ErrInvalidCredentials
	}
	user, err := r.GetUser(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return models.User{}, ErrInvalidCredentials
	} else if err != nil {
		return models.User{}, err
	}
	if err := verifyPassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}
	return user, nil
}

// Picture operations

func (r *postgresRepository) CreatePicture(ctx context.Context, params CreatePictureParams) (models.Picture, error) {
	if strings.TrimSpace(params.Filename) == "" {
		return models.Picture{}, errors.New("filename is required")
	}
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO pics (owner, info, filename) VALUES ($1, $2, $3) RETURNING id`,
		params.Owner, params.Info, params.Filename).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return models.Picture{}, fmt.Errorf("owner %s: %w", params.Owner, ErrNotFound)
		}
		return models.Picture{}, fmt.Errorf("insert picture: %w", err)
	}
	owner := params.Owner
	return models.Picture{
		ID:       id,
		Owner:    &owner,
		Info:     params.Info,
		Filename: params.Filename,
	}, nil
}

func (r *postgresRepository) ListPictures(ctx context.Context) ([]models.Picture, error) {
	return r.queryPictures(ctx,
		`SELECT id, owner, info, filename FROM pics ORDER BY id`)
}

func (r *postgresRepository) ListPicturesByOwner(ctx context.Context, owner string) ([]models.Picture, error) {
	return r.queryPictures(ctx,
		`SELECT id, owner, info, filename FROM pics WHERE owner = $1 ORDER BY id`, owner)
}

func (r *postgresRepository) queryPictures(ctx context.Context, query string, args ...any) ([]models.Picture, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pictures: %w", err)
	}
	defer rows.Close()

	pics := make([]models.Picture, 0)
	for rows.Next() {
		var pic models.Picture
		if err := rows.Scan(&pic.ID, &pic.Owner, &pic.Info, &pic.Filename); err != nil {
			return nil, fmt.Errorf("scan picture: %w", err)
		}
		pics = append(pics, pic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pictures: %w", err)
	}
	return pics, nil
}

func (r *postgresRepository) GetPicture(ctx context.Context, id int64) (models.Picture, error) {
	var pic models.Picture
	err := r.pool.QueryRow(ctx,
		`SELECT id, owner, info, filename FROM pics WHERE id = $1`,
		id).Scan(&pic.ID, &pic.Owner, &pic.Info, &pic.Filename)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Picture{}, fmt.Errorf("picture %d: %w", id, ErrNotFound)
	} else if err != nil {
		return models.Picture{}, fmt.Errorf("get picture: %w", err)
	}
	return pic, nil
}

func (r *postgresRepository) UpdatePicture(ctx context.Context, id int64, update PictureUpdate) (models.Picture, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.Picture{}, fmt.Errorf("begin update picture: %w", err)
	}
	defer tx.Rollback(ctx)

	if update.Owner != nil {
		tag, err := tx.Exec(ctx,
			`UPDATE pics SET owner = $1 WHERE id = $2`, *update.Owner, id)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
				return models.Picture{}, fmt.Errorf("owner %s: %w", *update.Owner, ErrNotFound)
			}
			return models.Picture{}, fmt.Errorf("update picture owner: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return models.Picture{}, fmt.Errorf("picture %d: %w", id, ErrNotFound)
		}
	}
	if update.Info != nil {
		tag, err := tx.Exec(ctx,
			`UPDATE pics SET info = $1 WHERE id = $2`, *update.Info, id)
		if err != nil {
			return models.Picture{}, fmt.Errorf("update picture info: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return models.Picture{}, fmt.Errorf("picture %d: %w", id, ErrNotFound)
		}
	}

	var pic models.Picture
	err = tx.QueryRow(ctx,
		`SELECT id, owner, info, filename FROM pics WHERE id = $1`,
		id).Scan(&pic.ID, &pic.Owner, &pic.Info, &pic.Filename)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Picture{}, fmt.Errorf("picture %d: %w", id, ErrNotFound)
	} else if err != nil {
		return models.Picture{}, fmt.Errorf("reload picture: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Picture{}, fmt.Errorf("commit update picture: %w", err)
	}
	return pic, nil
}

func (r *postgresRepository) DeletePicture(ctx context.Context, id int64) (models.Picture, error) {
	var pic models.Picture
	err := r.pool.QueryRow(ctx,
		`DELETE FROM pics WHERE id = $1 RETURNING id, owner, info, filename`,
		id).Scan(&pic.ID, &pic.Owner, &pic.Info, &pic.Filename)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Picture{}, fmt.Errorf("picture %d: %w", id, ErrNotFound)
	} else if err != nil {
		return models.Picture{}, fmt.Errorf("delete picture: %w", err)
	}
	return pic, nil
}

var _ Repository = (*postgresRepository)(nil)
