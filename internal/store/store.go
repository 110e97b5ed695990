package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

type Store struct {
	DB *sql.DB
}

// Application review statuses.
const (
	ApplicationPending   = "pending"
	ApplicationProcessed = "processed"
)

// JobPosting is an open position shown on the careers page.
type JobPosting struct {
	ID             int64     `json:"id"`
	Title          string    `json:"title"`
	Department     string    `json:"department"`
	Location       string    `json:"location"`
	EmploymentType string    `json:"employment_type"`
	Description    string    `json:"description"`
	CreatedAt      time.Time `json:"created_at"`
}

// Application is a candidate's submission against a posting.
type Application struct {
	ID        int64     `json:"id"`
	JobID     int64     `json:"job_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Position  string    `json:"position"`
	ResumeURL string    `json:"resume_url"`
	Processed bool      `json:"processed"`
	CreatedAt time.Time `json:"created_at"`
}

// Interview is the persisted record of one session, live or demo.
type Interview struct {
	ID            int64      `json:"id"`
	ApplicationID int64      `json:"application_id"`
	SessionID     string     `json:"session_id"`
	Mode          string     `json:"mode"`
	State         string     `json:"state"`
	Failure       string     `json:"failure,omitempty"`
	NextStage     string     `json:"next_stage,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
}

// NewWithDSN opens the database, pings it and ensures the schema exists.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	s := &Store{DB: db}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS job_postings (
			id SERIAL PRIMARY KEY,
			title TEXT NOT NULL,
			department TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			employment_type TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS applications (
			id SERIAL PRIMARY KEY,
			job_id BIGINT NOT NULL REFERENCES job_postings(id),
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			position TEXT NOT NULL DEFAULT '',
			resume_url TEXT NOT NULL,
			processed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS interviews (
			id SERIAL PRIMARY KEY,
			application_id BIGINT NOT NULL REFERENCES applications(id),
			session_id TEXT UNIQUE NOT NULL,
			mode TEXT NOT NULL,
			state TEXT NOT NULL,
			failure TEXT NOT NULL DEFAULT '',
			next_stage TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			ended_at TIMESTAMPTZ
		)`,
	}
	for _, q := range stmts {
		if _, err := s.DB.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, email, hash string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2)`, email, hash)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	return
}

func (s *Store) CreateJob(ctx context.Context, j JobPosting) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO job_postings (title, department, location, employment_type, description)
		 VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		j.Title, j.Department, j.Location, j.EmploymentType, j.Description).Scan(&id)
	return id, err
}

func (s *Store) GetJob(ctx context.Context, id int64) (JobPosting, error) {
	var j JobPosting
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, title, department, location, employment_type, description, created_at
		 FROM job_postings WHERE id=$1`, id).
		Scan(&j.ID, &j.Title, &j.Department, &j.Location, &j.EmploymentType, &j.Description, &j.CreatedAt)
	return j, err
}

func (s *Store) ListJobs(ctx context.Context) ([]JobPosting, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, title, department, location, employment_type, description, created_at
		 FROM job_postings ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []JobPosting
	for rows.Next() {
		var j JobPosting
		if err := rows.Scan(&j.ID, &j.Title, &j.Department, &j.Location, &j.EmploymentType, &j.Description, &j.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *Store) CreateApplication(ctx context.Context, a Application) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO applications (job_id, name, email, phone, position, resume_url)
		 VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		a.JobID, a.Name, a.Email, a.Phone, a.Position, a.ResumeURL).Scan(&id)
	return id, err
}

func (s *Store) GetApplication(ctx context.Context, id int64) (Application, error) {
	var a Application
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, job_id, name, email, phone, position, resume_url, processed, created_at
		 FROM applications WHERE id=$1`, id).
		Scan(&a.ID, &a.JobID, &a.Name, &a.Email, &a.Phone, &a.Position, &a.ResumeURL, &a.Processed, &a.CreatedAt)
	return a, err
}

// ListApplications returns submissions newest first, optionally filtered by
// review status.
func (s *Store) ListApplications(ctx context.Context, processed *bool) ([]Application, error) {
	q := `SELECT id, job_id, name, email, phone, position, resume_url, processed, created_at
	      FROM applications`
	args := []interface{}{}
	if processed != nil {
		q += ` WHERE processed=$1`
		args = append(args, *processed)
	}
	q += ` ORDER BY created_at DESC`
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Application
	for rows.Next() {
		var a Application
		if err := rows.Scan(&a.ID, &a.JobID, &a.Name, &a.Email, &a.Phone, &a.Position, &a.ResumeURL, &a.Processed, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) SetApplicationProcessed(ctx context.Context, id int64, processed bool) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE applications SET processed=$2 WHERE id=$1`, id, processed)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return err
}

func (s *Store) CreateInterview(ctx context.Context, applicationID int64, sessionID, mode, state string) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO interviews (application_id, session_id, mode, state)
		 VALUES ($1,$2,$3,$4) RETURNING id`,
		applicationID, sessionID, mode, state).Scan(&id)
	return id, err
}

// FinishInterview records the terminal state of a session.
func (s *Store) FinishInterview(ctx context.Context, sessionID, state, failure, nextStage string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE interviews SET state=$2, failure=$3, next_stage=$4, ended_at=now() WHERE session_id=$1`,
		sessionID, state, failure, nextStage)
	return err
}

func (s *Store) GetInterviewBySession(ctx context.Context, sessionID string) (Interview, error) {
	var iv Interview
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, application_id, session_id, mode, state, failure, next_stage, started_at, ended_at
		 FROM interviews WHERE session_id=$1`, sessionID).
		Scan(&iv.ID, &iv.ApplicationID, &iv.SessionID, &iv.Mode, &iv.State, &iv.Failure, &iv.NextStage, &iv.StartedAt, &iv.EndedAt)
	return iv, err
}
