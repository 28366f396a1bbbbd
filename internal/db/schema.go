package db

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS cases (
	id               BIGSERIAL PRIMARY KEY,
	name             VARCHAR(255),
	email            VARCHAR(255),
	phone            VARCHAR(50),
	company          VARCHAR(255),
	actions          VARCHAR(300) NOT NULL,
	description      TEXT NOT NULL,
	reported_by      VARCHAR(255) NOT NULL,
	source_ip        VARCHAR(64),
	verdict_score    INTEGER NOT NULL DEFAULT 0,
	total_votes      INTEGER NOT NULL DEFAULT 0,
	guilty_votes     INTEGER NOT NULL DEFAULT 0,
	not_guilty_votes INTEGER NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_voted_at    TIMESTAMPTZ,
	CONSTRAINT cases_tally_consistent CHECK (
		verdict_score = guilty_votes - not_guilty_votes
		AND total_votes = guilty_votes + not_guilty_votes
	)
);
CREATE INDEX IF NOT EXISTS idx_cases_created_at ON cases (created_at DESC);
CREATE INDEX IF NOT EXISTS idx_cases_total_votes ON cases (total_votes DESC);
CREATE INDEX IF NOT EXISTS idx_cases_email ON cases (LOWER(email));
CREATE INDEX IF NOT EXISTS idx_cases_phone ON cases (phone);

CREATE TABLE IF NOT EXISTS votes (
	id             BIGSERIAL PRIMARY KEY,
	voter_identity VARCHAR(320) NOT NULL,
	case_id        BIGINT NOT NULL REFERENCES cases (id) ON DELETE CASCADE,
	choice         VARCHAR(16) NOT NULL CHECK (choice IN ('guilty', 'not_guilty')),
	cast_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT votes_voter_case_unique UNIQUE (voter_identity, case_id)
);
CREATE INDEX IF NOT EXISTS idx_votes_case_id ON votes (case_id);

CREATE TABLE IF NOT EXISTS verification_codes (
	id           UUID PRIMARY KEY,
	email_hash   CHAR(64) NOT NULL,
	code_hash    VARCHAR(100) NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	expires_at   TIMESTAMPTZ NOT NULL,
	attempts     INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL,
	verified     BOOLEAN NOT NULL DEFAULT FALSE,
	verified_at  TIMESTAMPTZ,
	source_ip    VARCHAR(64)
);
CREATE INDEX IF NOT EXISTS idx_verification_codes_email_hash ON verification_codes (email_hash);
CREATE INDEX IF NOT EXISTS idx_verification_codes_expires_at ON verification_codes (expires_at);
CREATE INDEX IF NOT EXISTS idx_verification_codes_ip_created ON verification_codes (source_ip, created_at);
`

// CreateSchema применяет DDL; все операторы идемпотентны.
func CreateSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}
