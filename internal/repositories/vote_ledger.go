package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"unveil/internal/models"
)

// VoteLedger единственный, кто меняет счётчики голосов дела.
type VoteLedger interface {
	// RecordVote одним шагом пишет строку (identity, case) и обновляет счётчики.
	// ErrNotFound — дела нет, ErrDuplicate — уже голосовал.
	RecordVote(ctx context.Context, caseID int64, identity models.VoterIdentity, choice models.VoteChoice, at time.Time) (*models.Case, error)
	ResetCase(ctx context.Context, caseID int64) (*models.Case, error)
	HasVoted(ctx context.Context, identity models.VoterIdentity, caseID int64) (bool, error)
}

type voteLedger struct{ pg }

func NewVoteLedger(db *sql.DB, timeout time.Duration) VoteLedger {
	return &voteLedger{pg{DB: db, Timeout: timeout}}
}

func (r *voteLedger) RecordVote(ctx context.Context, caseID int64, identity models.VoterIdentity, choice models.VoteChoice, at time.Time) (*models.Case, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("vote begin: %w", err)
	}
	defer tx.Rollback()

	// блокируем строку дела: инкременты по одному делу идут строго по очереди
	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM cases WHERE id = $1 FOR UPDATE`, caseID).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("vote lock case: %w", err)
	}

	var voteID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO votes (voter_identity, case_id, choice, cast_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (voter_identity, case_id) DO NOTHING
		RETURNING id
	`, string(identity), caseID, string(choice), at).Scan(&voteID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("vote insert: %w", err)
	}

	guilty, notGuilty := 0, 0
	if choice == models.VoteGuilty {
		guilty = 1
	} else {
		notGuilty = 1
	}
	updated, err := scanCase(tx.QueryRowContext(ctx, `
		UPDATE cases
		SET guilty_votes     = guilty_votes + $2,
		    not_guilty_votes = not_guilty_votes + $3,
		    total_votes      = total_votes + 1,
		    verdict_score    = verdict_score + $2 - $3,
		    last_voted_at    = $4
		WHERE id = $1
		RETURNING `+caseColumns, caseID, guilty, notGuilty, at))
	if err != nil {
		return nil, fmt.Errorf("vote update tally: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("vote commit: %w", err)
	}
	return updated, nil
}

func (r *voteLedger) ResetCase(ctx context.Context, caseID int64) (*models.Case, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("vote reset begin: %w", err)
	}
	defer tx.Rollback()

	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM cases WHERE id = $1 FOR UPDATE`, caseID).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("vote reset lock case: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM votes WHERE case_id = $1`, caseID); err != nil {
		return nil, fmt.Errorf("vote reset delete votes: %w", err)
	}
	updated, err := scanCase(tx.QueryRowContext(ctx, `
		UPDATE cases
		SET guilty_votes = 0, not_guilty_votes = 0, total_votes = 0, verdict_score = 0, last_voted_at = NULL
		WHERE id = $1
		RETURNING `+caseColumns, caseID))
	if err != nil {
		return nil, fmt.Errorf("vote reset tally: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("vote reset commit: %w", err)
	}
	return updated, nil
}

func (r *voteLedger) HasVoted(ctx context.Context, identity models.VoterIdentity, caseID int64) (bool, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	var ok bool
	err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM votes WHERE voter_identity = $1 AND case_id = $2)`,
		string(identity), caseID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("vote has voted: %w", err)
	}
	return ok, nil
}
