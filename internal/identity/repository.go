package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carbonmax/carbonmax/internal/apperrors"
	"github.com/carbonmax/carbonmax/internal/infra"
)

// ErrEmailTaken indicates an account already uses the email address.
var ErrEmailTaken = fmt.Errorf("email already registered: %w", apperrors.ErrValidation)

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	UpdateTokenVersion(ctx context.Context, id string, version int) error
	UpdateProfile(ctx context.Context, id string, profile Profile) error
	TouchLogin(ctx context.Context, id string, at time.Time) error
	CountByRole(ctx context.Context) (map[Role]int, error)
}

const userColumns = `id, email, role, password_hash, full_name, phone, region, district, company_name,
        gst_number, industry_type, token_version, last_login, created_at`

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new user.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return fmt.Errorf("%w: user id: %v", apperrors.ErrValidation, err)
	}
	p := user.Profile
	_, err = r.db.Exec(ctx, `INSERT INTO accounts (id, email, role, password_hash, full_name, phone, region, district,
            company_name, gst_number, industry_type, token_version, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		userID, user.Email, string(user.Role), user.PasswordHash, p.FullName, p.Phone, p.Region, p.District,
		p.CompanyName, p.GSTNumber, p.IndustryType, user.TokenVersion, user.CreatedAt.UTC())
	if infra.IsUniqueViolation(err, "accounts_email_key") {
		return ErrEmailTaken
	}
	return infra.PgError(err)
}

// FindByEmail fetches a user by email address.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM accounts WHERE email = $1`, email)
}

// FindByID fetches a user by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, fmt.Errorf("user %s: %w", id, apperrors.ErrNotFound)
	}
	return r.findOne(ctx, `SELECT `+userColumns+` FROM accounts WHERE id = $1`, userID)
}

func (r *PostgresRepository) findOne(ctx context.Context, sql string, arg any) (User, error) {
	var (
		user      User
		id        uuid.UUID
		role      string
		lastLogin *time.Time
	)
	p := &user.Profile
	err := r.db.QueryRow(ctx, sql, arg).Scan(&id, &user.Email, &role, &user.PasswordHash, &p.FullName, &p.Phone,
		&p.Region, &p.District, &p.CompanyName, &p.GSTNumber, &p.IndustryType, &user.TokenVersion, &lastLogin, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("user: %w", apperrors.ErrNotFound)
	}
	if err != nil {
		return User{}, infra.PgError(err)
	}
	user.ID = id.String()
	user.Role = Role(role)
	user.CreatedAt = user.CreatedAt.UTC()
	if lastLogin != nil {
		t := lastLogin.UTC()
		user.LastLogin = &t
	}
	return user, nil
}

// UpdateTokenVersion stores a new token version, invalidating older tokens.
func (r *PostgresRepository) UpdateTokenVersion(ctx context.Context, id string, version int) error {
	return r.update(ctx, id, `UPDATE accounts SET token_version = $2 WHERE id = $1`, version)
}

// UpdateProfile replaces the profile fields.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, id string, p Profile) error {
	return r.update(ctx, id, `UPDATE accounts SET full_name = $2, phone = $3, region = $4, district = $5,
        company_name = $6, gst_number = $7, industry_type = $8 WHERE id = $1`,
		p.FullName, p.Phone, p.Region, p.District, p.CompanyName, p.GSTNumber, p.IndustryType)
}

// TouchLogin records the last successful login.
func (r *PostgresRepository) TouchLogin(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, `UPDATE accounts SET last_login = $2 WHERE id = $1`, at.UTC())
}

func (r *PostgresRepository) update(ctx context.Context, id, sql string, args ...any) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("user %s: %w", id, apperrors.ErrNotFound)
	}
	cmd, err := r.db.Exec(ctx, sql, append([]any{userID}, args...)...)
	if err != nil {
		return infra.PgError(err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

// CountByRole counts accounts per role.
func (r *PostgresRepository) CountByRole(ctx context.Context) (map[Role]int, error) {
	rows, err := r.db.Query(ctx, `SELECT role, COUNT(*) FROM accounts GROUP BY role`)
	if err != nil {
		return nil, infra.PgError(err)
	}
	defer rows.Close()
	out := map[Role]int{}
	for rows.Next() {
		var (
			role  string
			count int
		)
		if err := rows.Scan(&role, &count); err != nil {
			return nil, infra.PgError(err)
		}
		out[Role(role)] = count
	}
	return out, infra.PgError(rows.Err())
}
