package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"student_system/internal/config"
	"student_system/internal/models"
	"student_system/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg *config.Config) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	poolConfig, err := pgxpool.ParseConfig(dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	return &PostgresRepo{pool: pool}, nil
}

func (r *PostgresRepo) SaveUser(ctx context.Context, username, email string, passHash []byte, roles []string) (int64, error) {
	const op = "storage.postgres.SaveUser"

	query := `
		INSERT INTO users (username, email, password_hash, roles)
		VALUES ($1, $2, $3, $4)
		RETURNING id;
	`

	// The bootstrap admin has no email; keep the unique column NULL.
	var emailArg any
	if email != "" {
		emailArg = email
	}

	var id int64

	err := r.pool.QueryRow(ctx, query, username, emailArg, string(passHash), roles).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, storage.ErrUserExists
		}

		return 0, fmt.Errorf("%s: failed to save user: %w", op, err)
	}

	return id, nil
}

func (r *PostgresRepo) UserByUsername(ctx context.Context, username string) (models.User, error) {
	query := `
		SELECT id, username, COALESCE(email, ''), password_hash, roles
		FROM users
		WHERE username = $1;
	`

	return r.scanUser(r.pool.QueryRow(ctx, query, username))
}

func (r *PostgresRepo) UserByEmail(ctx context.Context, email string) (models.User, error) {
	query := `
		SELECT id, username, COALESCE(email, ''), password_hash, roles
		FROM users
		WHERE email = $1;
	`

	return r.scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *PostgresRepo) scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PassHash,
		&u.Roles,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, err
	}

	return u, nil
}

func (r *PostgresRepo) EmailTaken(ctx context.Context, email string) (bool, error) {
	const op = "storage.postgres.EmailTaken"

	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1);`

	var taken bool
	if err := r.pool.QueryRow(ctx, query, email).Scan(&taken); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return taken, nil
}

func (r *PostgresRepo) UpdatePassword(ctx context.Context, email string, passHash []byte) error {
	const op = "storage.postgres.UpdatePassword"

	query := `UPDATE users SET password_hash = $1 WHERE email = $2;`

	tag, err := r.pool.Exec(ctx, query, string(passHash), email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

// ReplaceCode invalidates the prior PENDING record for (email, scene) and
// inserts the new one in one transaction, keeping at most one PENDING record
// per pair.
func (r *PostgresRepo) ReplaceCode(ctx context.Context, code models.VerificationCode) (int64, error) {
	const op = "storage.postgres.ReplaceCode"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to begin tx: %w", op, err)
	}
	defer tx.Rollback(ctx)

	invalidate := `
		UPDATE email_verification_codes
		SET status = $1, updated_at = $2
		WHERE email = $3 AND scene = $4 AND status = $5;
	`

	_, err = tx.Exec(ctx, invalidate,
		models.CodeInvalidated, code.CreatedAt, code.Email, code.Scene, models.CodePending)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to invalidate prior code: %w", op, err)
	}

	insert := `
		INSERT INTO email_verification_codes
			(email, code, scene, expires_at, try_count, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id;
	`

	var id int64
	err = tx.QueryRow(ctx, insert,
		code.Email, code.Code, code.Scene, code.ExpiresAt,
		code.TryCount, code.Status, code.CreatedAt, code.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to insert code: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%s: failed to commit: %w", op, err)
	}

	return id, nil
}

func (r *PostgresRepo) UpdateCode(ctx context.Context, code models.VerificationCode) error {
	const op = "storage.postgres.UpdateCode"

	query := `
		UPDATE email_verification_codes
		SET status = $1, try_count = $2, updated_at = $3
		WHERE id = $4;
	`

	tag, err := r.pool.Exec(ctx, query, code.Status, code.TryCount, code.UpdatedAt, code.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrCodeNotFound
	}

	return nil
}

func (r *PostgresRepo) LatestCode(ctx context.Context, email, scene string) (models.VerificationCode, error) {
	query := `
		SELECT id, email, code, scene, expires_at, try_count, status, created_at, updated_at
		FROM email_verification_codes
		WHERE email = $1 AND scene = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1;
	`

	var c models.VerificationCode
	err := r.pool.QueryRow(ctx, query, email, scene).Scan(
		&c.ID,
		&c.Email,
		&c.Code,
		&c.Scene,
		&c.ExpiresAt,
		&c.TryCount,
		&c.Status,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.VerificationCode{}, storage.ErrCodeNotFound
		}

		return models.VerificationCode{}, err
	}

	return c, nil
}

func (r *PostgresRepo) CountCodesSince(ctx context.Context, email, scene string, since time.Time) (int64, error) {
	const op = "storage.postgres.CountCodesSince"

	query := `
		SELECT COUNT(*)
		FROM email_verification_codes
		WHERE email = $1 AND scene = $2 AND created_at > $3;
	`

	var count int64
	if err := r.pool.QueryRow(ctx, query, email, scene, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return count, nil
}

func (r *PostgresRepo) SaveStudent(ctx context.Context, s models.Student) (int64, error) {
	const op = "storage.postgres.SaveStudent"

	query := `
		INSERT INTO students (number, name, email, major)
		VALUES ($1, $2, $3, $4)
		RETURNING id;
	`

	var id int64

	err := r.pool.QueryRow(ctx, query, s.Number, s.Name, s.Email, s.Major).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, storage.ErrStudentExists
		}

		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (r *PostgresRepo) Students(ctx context.Context) ([]models.Student, error) {
	const op = "storage.postgres.Students"

	query := `
		SELECT id, number, name, COALESCE(email, ''), COALESCE(major, ''), created_at, updated_at
		FROM students
		ORDER BY id;
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var students []models.Student

	for rows.Next() {
		var s models.Student
		err := rows.Scan(&s.ID, &s.Number, &s.Name, &s.Email, &s.Major, &s.CreatedAt, &s.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		students = append(students, s)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%s: %w", op, rows.Err())
	}

	return students, nil
}

func (r *PostgresRepo) StudentByID(ctx context.Context, id int64) (models.Student, error) {
	query := `
		SELECT id, number, name, COALESCE(email, ''), COALESCE(major, ''), created_at, updated_at
		FROM students
		WHERE id = $1;
	`

	var s models.Student
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.Number, &s.Name, &s.Email, &s.Major, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Student{}, storage.ErrStudentNotFound
		}

		return models.Student{}, err
	}

	return s, nil
}

func (r *PostgresRepo) UpdateStudent(ctx context.Context, s models.Student) error {
	const op = "storage.postgres.UpdateStudent"

	query := `
		UPDATE students
		SET number = $1, name = $2, email = $3, major = $4, updated_at = now()
		WHERE id = $5;
	`

	tag, err := r.pool.Exec(ctx, query, s.Number, s.Name, s.Email, s.Major, s.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return storage.ErrStudentExists
		}

		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrStudentNotFound
	}

	return nil
}

func (r *PostgresRepo) DeleteStudent(ctx context.Context, id int64) error {
	const op = "storage.postgres.DeleteStudent"

	tag, err := r.pool.Exec(ctx, `DELETE FROM students WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrStudentNotFound
	}

	return nil
}

func (r *PostgresRepo) Close() {
	r.pool.Close()
}

func dsn(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}
