package store

const schema = `
CREATE TABLE IF NOT EXISTS market_jobs (
	id                  UUID PRIMARY KEY,
	owner_id            TEXT NOT NULL,
	title               TEXT NOT NULL,
	description         TEXT NOT NULL DEFAULT '',
	category            TEXT NOT NULL DEFAULT '',
	tags                TEXT[] NOT NULL DEFAULT '{}',
	job_type            TEXT NOT NULL,
	experience_level    TEXT NOT NULL,
	budget_type         TEXT NOT NULL,
	budget_min          NUMERIC(14,2),
	budget_max          NUMERIC(14,2),
	budget_currency     TEXT NOT NULL DEFAULT 'USD',
	estimated_hours     INTEGER,
	duration            TEXT NOT NULL DEFAULT '',
	location_type       TEXT NOT NULL DEFAULT 'remote',
	location_country    TEXT NOT NULL DEFAULT '',
	required_skills     TEXT[] NOT NULL DEFAULT '{}',
	preferred_skills    TEXT[] NOT NULL DEFAULT '{}',
	screening_questions JSONB NOT NULL DEFAULT '[]',
	visibility          TEXT NOT NULL DEFAULT 'public',
	embedding           JSONB,
	status              TEXT NOT NULL DEFAULT 'draft',
	views_count         INTEGER NOT NULL DEFAULT 0,
	is_featured         BOOLEAN NOT NULL DEFAULT FALSE,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	posted_at           TIMESTAMPTZ,
	version             INTEGER NOT NULL DEFAULT 1,
	CHECK (budget_min IS NULL OR budget_max IS NULL OR budget_max >= budget_min)
);

CREATE INDEX IF NOT EXISTS market_jobs_status_idx ON market_jobs (status, posted_at DESC);
CREATE INDEX IF NOT EXISTS market_jobs_owner_idx ON market_jobs (owner_id);

CREATE TABLE IF NOT EXISTS market_proposals (
	id                   UUID PRIMARY KEY,
	job_id               UUID NOT NULL REFERENCES market_jobs(id),
	freelancer_id        TEXT NOT NULL,
	cover_letter         TEXT NOT NULL DEFAULT '',
	proposed_rate        NUMERIC(14,2) NOT NULL,
	rate_type            TEXT NOT NULL,
	milestones           JSONB NOT NULL DEFAULT '[]',
	status               TEXT NOT NULL DEFAULT 'draft',
	match_score          INTEGER,
	quoted_fee           NUMERIC(14,2),
	quoted_net           NUMERIC(14,2),
	fee_schedule_version TEXT NOT NULL DEFAULT '',
	accepted_fee         NUMERIC(14,2),
	accepted_net         NUMERIC(14,2),
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	submitted_at         TIMESTAMPTZ,
	closed_at            TIMESTAMPTZ,
	version              INTEGER NOT NULL DEFAULT 1
);

-- At most one non-withdrawn proposal per (job, freelancer).
CREATE UNIQUE INDEX IF NOT EXISTS market_proposals_active_pair_idx
	ON market_proposals (job_id, freelancer_id) WHERE status <> 'withdrawn';
CREATE INDEX IF NOT EXISTS market_proposals_freelancer_idx ON market_proposals (freelancer_id);

CREATE TABLE IF NOT EXISTS market_invitations (
	id            UUID PRIMARY KEY,
	job_id        UUID NOT NULL REFERENCES market_jobs(id) ON DELETE CASCADE,
	freelancer_id TEXT NOT NULL,
	message       TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'pending',
	expires_at    TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	responded_at  TIMESTAMPTZ,
	version       INTEGER NOT NULL DEFAULT 1
);

CREATE UNIQUE INDEX IF NOT EXISTS market_invitations_pending_pair_idx
	ON market_invitations (job_id, freelancer_id) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS market_invitations_expiry_idx
	ON market_invitations (expires_at) WHERE status = 'pending';

CREATE TABLE IF NOT EXISTS market_saved_jobs (
	user_id    TEXT NOT NULL,
	job_id     UUID NOT NULL REFERENCES market_jobs(id) ON DELETE CASCADE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, job_id)
);
`
