package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	bzerrors "github.com/MikeSquared-Agency/Bazaar/internal/errors"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Migrate applies the schema. Statements are idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// --- Jobs ---

const jobColumns = `j.id, j.owner_id, j.title, j.description, j.category, j.tags,
	j.job_type, j.experience_level,
	j.budget_type, j.budget_min, j.budget_max, j.budget_currency,
	j.estimated_hours, j.duration, j.location_type, j.location_country,
	j.required_skills, j.preferred_skills, j.screening_questions, j.visibility, j.embedding,
	j.status, j.views_count, j.is_featured,
	j.created_at, j.updated_at, j.posted_at, j.version,
	(SELECT count(*) FROM market_proposals p
		WHERE p.job_id = j.id AND p.status NOT IN ('draft', 'withdrawn')) AS proposals_count`

func (s *PostgresStore) CreateJob(ctx context.Context, job *JobPosting) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = JobStatusDraft
	}
	questionsJSON, embeddingJSON := jobJSON(job)

	err := s.pool.QueryRow(ctx, `
		INSERT INTO market_jobs (id, owner_id, title, description, category, tags,
			job_type, experience_level,
			budget_type, budget_min, budget_max, budget_currency,
			estimated_hours, duration, location_type, location_country,
			required_skills, preferred_skills, screening_questions, visibility, embedding,
			status, is_featured, posted_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, 1)
		RETURNING created_at, updated_at, version`,
		job.ID, job.OwnerID, job.Title, job.Description, job.Category, nonNil(job.Tags),
		job.JobType, job.ExperienceLevel,
		job.Budget.Type, nullDec(job.Budget.Min), nullDec(job.Budget.Max), job.Budget.Currency,
		job.EstimatedHours, job.Duration, job.Location.Type, job.Location.Country,
		nonNil(job.RequiredSkills), nonNil(job.PreferredSkills), questionsJSON, job.Visibility, embeddingJSON,
		job.Status, job.IsFeatured, job.PostedAt,
	).Scan(&job.CreatedAt, &job.UpdatedAt, &job.Version)
	if isUniqueViolation(err) {
		return bzerrors.ConflictingState("job %s already exists", job.ID)
	}
	return err
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*JobPosting, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM market_jobs j WHERE j.id = $1`, id)
	j, err := scanJob(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (s *PostgresStore) SaveJob(ctx context.Context, job *JobPosting, expectedVersion int) error {
	questionsJSON, embeddingJSON := jobJSON(job)

	err := s.pool.QueryRow(ctx, `
		UPDATE market_jobs SET
			title = $3, description = $4, category = $5, tags = $6,
			job_type = $7, experience_level = $8,
			budget_type = $9, budget_min = $10, budget_max = $11, budget_currency = $12,
			estimated_hours = $13, duration = $14, location_type = $15, location_country = $16,
			required_skills = $17, preferred_skills = $18, screening_questions = $19,
			visibility = $20, embedding = $21,
			status = $22, is_featured = $23, posted_at = $24,
			updated_at = now(), version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING updated_at, version`,
		job.ID, expectedVersion, job.Title, job.Description, job.Category, nonNil(job.Tags),
		job.JobType, job.ExperienceLevel,
		job.Budget.Type, nullDec(job.Budget.Min), nullDec(job.Budget.Max), job.Budget.Currency,
		job.EstimatedHours, job.Duration, job.Location.Type, job.Location.Country,
		nonNil(job.RequiredSkills), nonNil(job.PreferredSkills), questionsJSON,
		job.Visibility, embeddingJSON,
		job.Status, job.IsFeatured, job.PostedAt,
	).Scan(&job.UpdatedAt, &job.Version)
	if err == pgx.ErrNoRows {
		return s.casFailure(ctx, "market_jobs", "job", job.ID, expectedVersion)
	}
	return err
}

func (s *PostgresStore) DeleteJob(ctx context.Context, id uuid.UUID, expectedVersion int) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM market_jobs j
		WHERE j.id = $1 AND j.version = $2
			AND NOT EXISTS (SELECT 1 FROM market_proposals p WHERE p.job_id = j.id)`,
		id, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var version int
	var hasProposals bool
	err = s.pool.QueryRow(ctx, `
		SELECT j.version, EXISTS (SELECT 1 FROM market_proposals p WHERE p.job_id = j.id)
		FROM market_jobs j WHERE j.id = $1`, id,
	).Scan(&version, &hasProposals)
	if err == pgx.ErrNoRows {
		return bzerrors.NotFound("job %s not found", id)
	}
	if err != nil {
		return err
	}
	if version != expectedVersion {
		return bzerrors.StaleState("job %s at version %d, expected %d", id, version, expectedVersion)
	}
	return bzerrors.ConflictingState("job %s has proposals", id)
}

func (s *PostgresStore) QueryJobs(ctx context.Context, q JobQuery) ([]*JobPosting, error) {
	query := `SELECT ` + jobColumns + ` FROM market_jobs j WHERE 1=1`
	args := []interface{}{}
	n := 0

	if len(q.Statuses) > 0 {
		statuses := make([]string, len(q.Statuses))
		for i, st := range q.Statuses {
			statuses[i] = string(st)
		}
		n++
		query += fmt.Sprintf(" AND j.status = ANY($%d)", n)
		args = append(args, statuses)
	}
	if q.OwnerID != "" {
		n++
		query += fmt.Sprintf(" AND j.owner_id = $%d", n)
		args = append(args, q.OwnerID)
	}
	if q.Visibility != nil {
		n++
		query += fmt.Sprintf(" AND j.visibility = $%d", n)
		args = append(args, string(*q.Visibility))
	}

	query += " ORDER BY j.created_at DESC, j.id ASC"

	if q.Limit > 0 {
		n++
		query += fmt.Sprintf(" LIMIT $%d", n)
		args = append(args, q.Limit)
	}
	if q.Offset > 0 {
		n++
		query += fmt.Sprintf(" OFFSET $%d", n)
		args = append(args, q.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*JobPosting
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) IncrementJobViews(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `UPDATE market_jobs SET views_count = views_count + 1 WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return bzerrors.NotFound("job %s not found", id)
	}
	return nil
}

func scanJob(row pgx.Row) (*JobPosting, error) {
	j := &JobPosting{}
	var budgetMin, budgetMax decimal.NullDecimal
	var questionsJSON, embeddingJSON []byte
	if err := row.Scan(
		&j.ID, &j.OwnerID, &j.Title, &j.Description, &j.Category, &j.Tags,
		&j.JobType, &j.ExperienceLevel,
		&j.Budget.Type, &budgetMin, &budgetMax, &j.Budget.Currency,
		&j.EstimatedHours, &j.Duration, &j.Location.Type, &j.Location.Country,
		&j.RequiredSkills, &j.PreferredSkills, &questionsJSON, &j.Visibility, &embeddingJSON,
		&j.Status, &j.ViewsCount, &j.IsFeatured,
		&j.CreatedAt, &j.UpdatedAt, &j.PostedAt, &j.Version,
		&j.ProposalsCount,
	); err != nil {
		return nil, err
	}
	j.Budget.Min = decPtr(budgetMin)
	j.Budget.Max = decPtr(budgetMax)
	if questionsJSON != nil {
		_ = json.Unmarshal(questionsJSON, &j.ScreeningQuestions)
	}
	if embeddingJSON != nil {
		_ = json.Unmarshal(embeddingJSON, &j.Embedding)
	}
	return j, nil
}

func jobJSON(job *JobPosting) (questions, embedding []byte) {
	questions, _ = json.Marshal(nonNilQuestions(job.ScreeningQuestions))
	if job.Embedding != nil {
		embedding, _ = json.Marshal(job.Embedding)
	}
	return questions, embedding
}

// --- Proposals ---

const proposalColumns = `id, job_id, freelancer_id, cover_letter, proposed_rate, rate_type, milestones,
	status, match_score,
	quoted_fee, quoted_net, fee_schedule_version, accepted_fee, accepted_net,
	created_at, updated_at, submitted_at, closed_at, version`

func (s *PostgresStore) CreateProposal(ctx context.Context, p *Proposal) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = ProposalStatusDraft
	}
	milestonesJSON, _ := json.Marshal(nonNilMilestones(p.Milestones))

	err := s.pool.QueryRow(ctx, `
		INSERT INTO market_proposals (id, job_id, freelancer_id, cover_letter, proposed_rate, rate_type,
			milestones, status, match_score, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1)
		RETURNING created_at, updated_at, version`,
		p.ID, p.JobID, p.FreelancerID, p.CoverLetter, p.ProposedRate, p.RateType,
		milestonesJSON, p.Status, p.MatchScore,
	).Scan(&p.CreatedAt, &p.UpdatedAt, &p.Version)
	if isUniqueViolation(err) {
		return bzerrors.ConflictingState("freelancer %s already has a proposal on job %s", p.FreelancerID, p.JobID)
	}
	return err
}

func (s *PostgresStore) GetProposal(ctx context.Context, id uuid.UUID) (*Proposal, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+proposalColumns+` FROM market_proposals WHERE id = $1`, id)
	p, err := scanProposal(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) SaveProposal(ctx context.Context, p *Proposal, expectedVersion int) error {
	return s.SaveProposals(ctx, nil, []ProposalUpdate{{Proposal: p, ExpectedVersion: expectedVersion}})
}

// SaveProposals writes all updates in one transaction; any version mismatch
// rolls back the whole batch. The guarded job row is locked first.
func (s *PostgresStore) SaveProposals(ctx context.Context, guard *JobGuard, updates []ProposalUpdate) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if guard != nil {
		tag, err := tx.Exec(ctx, `
			UPDATE market_jobs SET updated_at = now(), version = version + 1
			WHERE id = $1 AND version = $2`,
			guard.JobID, guard.ExpectedVersion)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return s.casFailure(ctx, "market_jobs", "job", guard.JobID, guard.ExpectedVersion)
		}
	}

	for _, u := range updates {
		p := u.Proposal
		milestonesJSON, _ := json.Marshal(nonNilMilestones(p.Milestones))
		err := tx.QueryRow(ctx, `
			UPDATE market_proposals SET
				cover_letter = $3, proposed_rate = $4, rate_type = $5, milestones = $6,
				status = $7, match_score = $8,
				quoted_fee = $9, quoted_net = $10, fee_schedule_version = $11,
				accepted_fee = $12, accepted_net = $13,
				submitted_at = $14, closed_at = $15,
				updated_at = now(), version = version + 1
			WHERE id = $1 AND version = $2
			RETURNING updated_at, version`,
			p.ID, u.ExpectedVersion, p.CoverLetter, p.ProposedRate, p.RateType, milestonesJSON,
			p.Status, p.MatchScore,
			nullDec(p.QuotedFee), nullDec(p.QuotedNet), p.FeeScheduleVersion,
			nullDec(p.AcceptedFee), nullDec(p.AcceptedNet),
			p.SubmittedAt, p.ClosedAt,
		).Scan(&p.UpdatedAt, &p.Version)
		if err == pgx.ErrNoRows {
			return s.casFailure(ctx, "market_proposals", "proposal", p.ID, u.ExpectedVersion)
		}
		if isUniqueViolation(err) {
			return bzerrors.ConflictingState("freelancer %s already has a proposal on job %s", p.FreelancerID, p.JobID)
		}
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListProposalsForJob(ctx context.Context, jobID uuid.UUID) ([]*Proposal, error) {
	return s.queryProposals(ctx, `SELECT `+proposalColumns+` FROM market_proposals
		WHERE job_id = $1 ORDER BY created_at ASC, id ASC`, jobID)
}

func (s *PostgresStore) ListProposalsForFreelancer(ctx context.Context, freelancerID string) ([]*Proposal, error) {
	return s.queryProposals(ctx, `SELECT `+proposalColumns+` FROM market_proposals
		WHERE freelancer_id = $1 ORDER BY created_at ASC, id ASC`, freelancerID)
}

func (s *PostgresStore) queryProposals(ctx context.Context, query string, args ...interface{}) ([]*Proposal, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProposal(row pgx.Row) (*Proposal, error) {
	p := &Proposal{}
	var milestonesJSON []byte
	var quotedFee, quotedNet, acceptedFee, acceptedNet decimal.NullDecimal
	if err := row.Scan(
		&p.ID, &p.JobID, &p.FreelancerID, &p.CoverLetter, &p.ProposedRate, &p.RateType, &milestonesJSON,
		&p.Status, &p.MatchScore,
		&quotedFee, &quotedNet, &p.FeeScheduleVersion, &acceptedFee, &acceptedNet,
		&p.CreatedAt, &p.UpdatedAt, &p.SubmittedAt, &p.ClosedAt, &p.Version,
	); err != nil {
		return nil, err
	}
	p.QuotedFee = decPtr(quotedFee)
	p.QuotedNet = decPtr(quotedNet)
	p.AcceptedFee = decPtr(acceptedFee)
	p.AcceptedNet = decPtr(acceptedNet)
	if milestonesJSON != nil {
		_ = json.Unmarshal(milestonesJSON, &p.Milestones)
	}
	return p, nil
}

// --- Invitations ---

const invitationColumns = `id, job_id, freelancer_id, message, status, expires_at, created_at, responded_at, version`

func (s *PostgresStore) CreateInvitation(ctx context.Context, inv *Invitation) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO market_invitations (id, job_id, freelancer_id, message, status, expires_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, 1)
		RETURNING created_at, version`,
		inv.ID, inv.JobID, inv.FreelancerID, inv.Message, inv.Status, inv.ExpiresAt,
	).Scan(&inv.CreatedAt, &inv.Version)
	if isUniqueViolation(err) {
		return bzerrors.ConflictingState("freelancer %s already has a pending invitation to job %s",
			inv.FreelancerID, inv.JobID)
	}
	return err
}

func (s *PostgresStore) GetInvitation(ctx context.Context, id uuid.UUID) (*Invitation, error) {
	inv := &Invitation{}
	err := s.pool.QueryRow(ctx, `SELECT `+invitationColumns+` FROM market_invitations WHERE id = $1`, id).Scan(
		&inv.ID, &inv.JobID, &inv.FreelancerID, &inv.Message, &inv.Status,
		&inv.ExpiresAt, &inv.CreatedAt, &inv.RespondedAt, &inv.Version,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *PostgresStore) SaveInvitation(ctx context.Context, inv *Invitation, expectedVersion int) error {
	err := s.pool.QueryRow(ctx, `
		UPDATE market_invitations SET
			message = $3, status = $4, expires_at = $5, responded_at = $6, version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING version`,
		inv.ID, expectedVersion, inv.Message, inv.Status, inv.ExpiresAt, inv.RespondedAt,
	).Scan(&inv.Version)
	if err == pgx.ErrNoRows {
		return s.casFailure(ctx, "market_invitations", "invitation", inv.ID, expectedVersion)
	}
	return err
}

func (s *PostgresStore) ListExpiredInvitations(ctx context.Context, now time.Time) ([]*Invitation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+invitationColumns+` FROM market_invitations
		WHERE status = 'pending' AND expires_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at ASC`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Invitation
	for rows.Next() {
		inv := &Invitation{}
		if err := rows.Scan(
			&inv.ID, &inv.JobID, &inv.FreelancerID, &inv.Message, &inv.Status,
			&inv.ExpiresAt, &inv.CreatedAt, &inv.RespondedAt, &inv.Version,
		); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// --- Saved jobs ---

func (s *PostgresStore) SaveJobForUser(ctx context.Context, userID string, jobID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO market_saved_jobs (user_id, job_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, job_id) DO NOTHING`, userID, jobID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return bzerrors.NotFound("job %s not found", jobID)
	}
	return err
}

func (s *PostgresStore) UnsaveJobForUser(ctx context.Context, userID string, jobID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM market_saved_jobs WHERE user_id = $1 AND job_id = $2`, userID, jobID)
	return err
}

func (s *PostgresStore) ListSavedJobs(ctx context.Context, userID string) ([]*SavedJob, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, job_id, created_at FROM market_saved_jobs
		WHERE user_id = $1 ORDER BY created_at DESC, job_id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*SavedJob
	for rows.Next() {
		sj := &SavedJob{}
		if err := rows.Scan(&sj.UserID, &sj.JobID, &sj.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sj)
	}
	return out, rows.Err()
}

// --- helpers ---

// casFailure distinguishes a missing row from a version mismatch after a
// conditional update matched nothing.
func (s *PostgresStore) casFailure(ctx context.Context, table, kind string, id uuid.UUID, expected int) error {
	var version int
	err := s.pool.QueryRow(ctx, `SELECT version FROM `+table+` WHERE id = $1`, id).Scan(&version)
	if err == pgx.ErrNoRows {
		return bzerrors.NotFound("%s %s not found", kind, id)
	}
	if err != nil {
		return err
	}
	return bzerrors.StaleState("%s %s at version %d, expected %d", kind, id, version, expected)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func nullDec(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decPtr(nd decimal.NullDecimal) *decimal.Decimal {
	if !nd.Valid {
		return nil
	}
	d := nd.Decimal
	return &d
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilQuestions(q []ScreeningQuestion) []ScreeningQuestion {
	if q == nil {
		return []ScreeningQuestion{}
	}
	return q
}

func nonNilMilestones(m []Milestone) []Milestone {
	if m == nil {
		return []Milestone{}
	}
	return m
}
