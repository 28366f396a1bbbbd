package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"unveil/internal/models"
)

// NeedsVotesThreshold — дело «нуждается в голосах», пока голосов меньше.
const NeedsVotesThreshold = 5

type CaseRepository interface {
	Create(ctx context.Context, c *models.Case) error
	GetByID(ctx context.Context, id int64) (*models.Case, error)
	// Update меняет только описательные поля, счётчики голосов не трогает.
	Update(ctx context.Context, c *models.Case) error
	Delete(ctx context.Context, id int64) (bool, error)
	ListRecent(ctx context.Context, limit, offset int) ([]*models.Case, int, error)
	ListTopVoted(ctx context.Context, limit, offset int) ([]*models.Case, int, error)
	ListNeedingVotes(ctx context.Context, limit, offset int) ([]*models.Case, int, error)
	Search(ctx context.Context, filter models.CaseFilter, value string, limit, offset int) ([]*models.Case, int, error)
	// FindDuplicate: тот же email, или тот же телефон, или то же имя+компания.
	FindDuplicate(ctx context.Context, email, phone, name, company string) (*models.Case, error)
	Ping(ctx context.Context) error
}

type caseRepository struct{ pg }

func NewCaseRepository(db *sql.DB, timeout time.Duration) CaseRepository {
	return &caseRepository{pg{DB: db, Timeout: timeout}}
}

const caseColumns = `id, COALESCE(name, ''), COALESCE(email, ''), COALESCE(phone, ''), COALESCE(company, ''),
	actions, description, reported_by, COALESCE(source_ip, ''),
	verdict_score, total_votes, guilty_votes, not_guilty_votes, created_at, last_voted_at`

func scanCase(row interface{ Scan(...any) error }, extra ...any) (*models.Case, error) {
	var (
		c           models.Case
		lastVotedAt sql.NullTime
	)
	dest := []any{&c.ID, &c.Name, &c.Email, &c.Phone, &c.Company,
		&c.Actions, &c.Description, &c.ReportedBy, &c.SourceIP,
		&c.VerdictScore, &c.TotalVotes, &c.GuiltyVotes, &c.NotGuiltyVotes, &c.CreatedAt, &lastVotedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if lastVotedAt.Valid {
		t := lastVotedAt.Time
		c.LastVotedAt = &t
	}
	return &c, nil
}

func (r *caseRepository) Create(ctx context.Context, c *models.Case) error {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	const q = `
		INSERT INTO cases (name, email, phone, company, actions, description, reported_by, source_ip, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	err := r.DB.QueryRowContext(ctx, q,
		nullIfEmpty(c.Name), nullIfEmpty(c.Email), nullIfEmpty(c.Phone), nullIfEmpty(c.Company),
		c.Actions, c.Description, c.ReportedBy, nullIfEmpty(c.SourceIP), c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("case create: %w", err)
	}
	return nil
}

func (r *caseRepository) GetByID(ctx context.Context, id int64) (*models.Case, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	c, err := scanCase(r.DB.QueryRowContext(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("case get: %w", err)
	}
	return c, nil
}

func (r *caseRepository) Update(ctx context.Context, c *models.Case) error {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	const q = `
		UPDATE cases
		SET name = $2, email = $3, phone = $4, company = $5, actions = $6, description = $7
		WHERE id = $1
	`
	res, err := r.DB.ExecContext(ctx, q, c.ID,
		nullIfEmpty(c.Name), nullIfEmpty(c.Email), nullIfEmpty(c.Phone), nullIfEmpty(c.Company),
		c.Actions, c.Description)
	if err != nil {
		return fmt.Errorf("case update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *caseRepository) Delete(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	res, err := r.DB.ExecContext(ctx, `DELETE FROM cases WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("case delete: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *caseRepository) ListRecent(ctx context.Context, limit, offset int) ([]*models.Case, int, error) {
	return r.list(ctx, "list recent", "", "ORDER BY created_at DESC, id DESC", limit, offset)
}

func (r *caseRepository) ListTopVoted(ctx context.Context, limit, offset int) ([]*models.Case, int, error) {
	return r.list(ctx, "list top voted", "WHERE total_votes > 0", "ORDER BY total_votes DESC, id ASC", limit, offset)
}

func (r *caseRepository) ListNeedingVotes(ctx context.Context, limit, offset int) ([]*models.Case, int, error) {
	where := fmt.Sprintf("WHERE total_votes < %d", NeedsVotesThreshold)
	return r.list(ctx, "list needing votes", where, "ORDER BY created_at DESC, id DESC", limit, offset)
}

func (r *caseRepository) Search(ctx context.Context, filter models.CaseFilter, value string, limit, offset int) ([]*models.Case, int, error) {
	var conds []string
	switch filter {
	case models.FilterName:
		conds = []string{"LOWER(name) LIKE $1"}
	case models.FilterEmail:
		conds = []string{"LOWER(email) LIKE $1"}
	case models.FilterPhone:
		conds = []string{"phone LIKE $1"}
	case models.FilterCompany:
		conds = []string{"LOWER(company) LIKE $1"}
	case models.FilterAction:
		conds = []string{"LOWER(actions) LIKE $1"}
	case models.FilterAll:
		conds = []string{"LOWER(name) LIKE $1", "LOWER(email) LIKE $1", "phone LIKE $1",
			"LOWER(company) LIKE $1", "LOWER(actions) LIKE $1"}
	default:
		return nil, 0, fmt.Errorf("case search: unsupported filter %q", filter)
	}
	where := "WHERE " + strings.Join(conds, " OR ")
	return r.list(ctx, "search", where, "ORDER BY created_at DESC, id DESC", limit, offset, likePattern(value))
}

// list добавляет LIMIT/OFFSET после аргументов where и считает total через COUNT(*) OVER().
func (r *caseRepository) list(ctx context.Context, op, where, order string, limit, offset int, args ...any) ([]*models.Case, int, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	n := len(args)
	q := fmt.Sprintf(`SELECT %s, COUNT(*) OVER() FROM cases %s %s LIMIT $%d OFFSET $%d`,
		caseColumns, where, order, n+1, n+2)
	args = append(args, limit, offset)

	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("case %s: %w", op, err)
	}
	defer rows.Close()

	var (
		out   []*models.Case
		total int
	)
	for rows.Next() {
		c, err := scanCase(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("case %s scan: %w", op, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("case %s rows: %w", op, err)
	}
	if len(out) == 0 && offset > 0 {
		// страница за пределами выборки: total всё равно нужен клиенту
		if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM cases `+where, args[:n]...).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("case %s count: %w", op, err)
		}
	}
	return out, total, nil
}

func (r *caseRepository) FindDuplicate(ctx context.Context, email, phone, name, company string) (*models.Case, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	q := `
		SELECT ` + caseColumns + `
		FROM cases
		WHERE ($1::text <> '' AND LOWER(email) = LOWER($1::text))
		   OR ($2::text <> '' AND phone = $2::text)
		   OR ($3::text <> '' AND $4::text <> '' AND LOWER(name) = LOWER($3::text) AND LOWER(company) = LOWER($4::text))
		LIMIT 1
	`
	c, err := scanCase(r.DB.QueryRowContext(ctx, q, email, phone, name, company))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("case find duplicate: %w", err)
	}
	return c, nil
}

func (r *caseRepository) Ping(ctx context.Context) error {
	ctx, cancel := r.ctx(ctx)
	defer cancel()
	return r.DB.PingContext(ctx)
}
