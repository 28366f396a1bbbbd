package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"unveil/internal/models"
)

type VerificationCodeRepository interface {
	Save(ctx context.Context, v *models.VerificationCode) error
	// FindActive — самый свежий код с expires_at > now и verified = false, либо nil.
	FindActive(ctx context.Context, emailHash string, now time.Time) (*models.VerificationCode, error)
	FindLatest(ctx context.Context, emailHash string) (*models.VerificationCode, error)
	DeleteExpired(ctx context.Context, emailHash string, now time.Time) (int64, error)
	DeleteByEmailHash(ctx context.Context, emailHash string) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// ReserveAttempt атомарно занимает попытку до сверки кода.
	// ErrAttemptsExhausted — попытки кончились, ErrNotFound — кода нет или он уже подтверждён.
	ReserveAttempt(ctx context.Context, id uuid.UUID) (int, error)
	MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) error
	CountRecentByEmailHash(ctx context.Context, emailHash string, since time.Time) (int, error)
	CountRecentByIP(ctx context.Context, ip string, since time.Time) (int, error)
	DeleteAllExpired(ctx context.Context, before time.Time) (int64, error)
}

type verificationCodeRepository struct{ pg }

func NewVerificationCodeRepository(db *sql.DB, timeout time.Duration) VerificationCodeRepository {
	return &verificationCodeRepository{pg{DB: db, Timeout: timeout}}
}

const codeColumns = `id, email_hash, code_hash, created_at, expires_at, attempts, max_attempts, verified, verified_at, COALESCE(source_ip, '')`

func scanCode(row interface{ Scan(...any) error }) (*models.VerificationCode, error) {
	var (
		v          models.VerificationCode
		verifiedAt sql.NullTime
	)
	if err := row.Scan(&v.ID, &v.EmailHash, &v.CodeHash, &v.CreatedAt, &v.ExpiresAt,
		&v.Attempts, &v.MaxAttempts, &v.Verified, &verifiedAt, &v.SourceIP); err != nil {
		return nil, err
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		v.VerifiedAt = &t
	}
	return &v, nil
}

func (r *verificationCodeRepository) Save(ctx context.Context, v *models.VerificationCode) error {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	const q = `
		INSERT INTO verification_codes (id, email_hash, code_hash, created_at, expires_at, attempts, max_attempts, verified, verified_at, source_ip)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if _, err := r.DB.ExecContext(ctx, q, v.ID, v.EmailHash, v.CodeHash, v.CreatedAt, v.ExpiresAt,
		v.Attempts, v.MaxAttempts, v.Verified, v.VerifiedAt, nullIfEmpty(v.SourceIP)); err != nil {
		return fmt.Errorf("verification_code save: %w", err)
	}
	return nil
}

func (r *verificationCodeRepository) FindActive(ctx context.Context, emailHash string, now time.Time) (*models.VerificationCode, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	q := `
		SELECT ` + codeColumns + `
		FROM verification_codes
		WHERE email_hash = $1 AND verified = FALSE AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	v, err := scanCode(r.DB.QueryRowContext(ctx, q, emailHash, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("verification_code find active: %w", err)
	}
	return v, nil
}

func (r *verificationCodeRepository) FindLatest(ctx context.Context, emailHash string) (*models.VerificationCode, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	q := `SELECT ` + codeColumns + ` FROM verification_codes WHERE email_hash = $1 ORDER BY created_at DESC LIMIT 1`
	v, err := scanCode(r.DB.QueryRowContext(ctx, q, emailHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("verification_code find latest: %w", err)
	}
	return v, nil
}

func (r *verificationCodeRepository) DeleteExpired(ctx context.Context, emailHash string, now time.Time) (int64, error) {
	return r.exec(ctx, "delete expired",
		`DELETE FROM verification_codes WHERE email_hash = $1 AND expires_at <= $2`, emailHash, now)
}

func (r *verificationCodeRepository) DeleteByEmailHash(ctx context.Context, emailHash string) (int64, error) {
	return r.exec(ctx, "delete by email",
		`DELETE FROM verification_codes WHERE email_hash = $1`, emailHash)
}

func (r *verificationCodeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.exec(ctx, "delete", `DELETE FROM verification_codes WHERE id = $1`, id)
	return err
}

// ReserveAttempt — +1 попытка, только пока attempts < max_attempts и код не подтверждён.
// Проверка и инкремент одним UPDATE, поэтому параллельные запросы не проскочат лимит.
func (r *verificationCodeRepository) ReserveAttempt(ctx context.Context, id uuid.UUID) (int, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	const q = `
		UPDATE verification_codes
		SET attempts = attempts + 1
		WHERE id = $1 AND attempts < max_attempts AND verified = FALSE
		RETURNING attempts
	`
	var attempts int
	err := r.DB.QueryRowContext(ctx, q, id).Scan(&attempts)
	if err == nil {
		return attempts, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("verification_code reserve attempt: %w", err)
	}

	// попытку не дали — выясняем почему
	var verified bool
	err = r.DB.QueryRowContext(ctx,
		`SELECT verified FROM verification_codes WHERE id = $1`, id).Scan(&verified)
	switch {
	case errors.Is(err, sql.ErrNoRows), err == nil && verified:
		return 0, ErrNotFound
	case err != nil:
		return 0, fmt.Errorf("verification_code reserve attempt: %w", err)
	default:
		return 0, ErrAttemptsExhausted
	}
}

// MarkVerified переводит код в verified только если он ещё не был подтверждён.
func (r *verificationCodeRepository) MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	n, err := r.exec(ctx, "mark verified",
		`UPDATE verification_codes SET verified = TRUE, verified_at = $2 WHERE id = $1 AND verified = FALSE`, id, at)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *verificationCodeRepository) CountRecentByEmailHash(ctx context.Context, emailHash string, since time.Time) (int, error) {
	return r.count(ctx, "count recent by email",
		`SELECT COUNT(*) FROM verification_codes WHERE email_hash = $1 AND created_at > $2`, emailHash, since)
}

func (r *verificationCodeRepository) CountRecentByIP(ctx context.Context, ip string, since time.Time) (int, error) {
	return r.count(ctx, "count recent by ip",
		`SELECT COUNT(*) FROM verification_codes WHERE source_ip = $1 AND created_at > $2`, ip, since)
}

func (r *verificationCodeRepository) DeleteAllExpired(ctx context.Context, before time.Time) (int64, error) {
	return r.exec(ctx, "delete all expired",
		`DELETE FROM verification_codes WHERE expires_at <= $1`, before)
}

func (r *verificationCodeRepository) exec(ctx context.Context, op, q string, args ...any) (int64, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	res, err := r.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("verification_code %s: %w", op, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *verificationCodeRepository) count(ctx context.Context, op, q string, args ...any) (int, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	var c int
	if err := r.DB.QueryRowContext(ctx, q, args...).Scan(&c); err != nil {
		return 0, fmt.Errorf("verification_code %s: %w", op, err)
	}
	return c, nil
}
