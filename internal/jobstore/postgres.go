package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/ossamaweb/auto-vid/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	job_id                TEXT PRIMARY KEY,
	status                TEXT NOT NULL,
	submitted_at          TIMESTAMPTZ NOT NULL,
	updated_at            TIMESTAMPTZ NOT NULL,
	completed_at          TIMESTAMPTZ,
	processing_time       NUMERIC,
	output_url            TEXT,
	output_url_expires_at TIMESTAMPTZ,
	output_storage_uri    TEXT,
	output_duration       NUMERIC,
	output_size           BIGINT,
	error                 TEXT,
	job_info              JSONB,
	expires_at            TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS jobs_expires_at_idx ON jobs (expires_at);
`

// jobRow mirrors the jobs table. NUMERIC columns are scanned as text so the
// stored decimal parses back to the exact float64 that was written.
type jobRow struct {
	JobID              string         `db:"job_id"`
	Status             string         `db:"status"`
	SubmittedAt        time.Time      `db:"submitted_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
	CompletedAt        sql.NullTime   `db:"completed_at"`
	ProcessingTime     sql.NullString `db:"processing_time"`
	OutputURL          sql.NullString `db:"output_url"`
	OutputURLExpiresAt sql.NullTime   `db:"output_url_expires_at"`
	OutputStorageURI   sql.NullString `db:"output_storage_uri"`
	OutputDuration     sql.NullString `db:"output_duration"`
	OutputSize         sql.NullInt64  `db:"output_size"`
	Error              sql.NullString `db:"error"`
	JobInfo            sql.NullString `db:"job_info"`
	ExpiresAt          sql.NullTime   `db:"expires_at"`
}

// PostgresStore keeps jobs in a single table. Expired rows are hidden from
// reads and removed by PurgeExpired.
type PostgresStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate jobs table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, job *model.Job) error {
	row := toRow(job)
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO jobs (job_id, status, submitted_at, updated_at, completed_at,
			processing_time, output_url, output_url_expires_at, output_storage_uri,
			output_duration, output_size, error, job_info, expires_at)
		VALUES (:job_id, :status, :submitted_at, :updated_at, :completed_at,
			:processing_time, :output_url, :output_url_expires_at, :output_storage_uri,
			:output_duration, :output_size, :error, :job_info, :expires_at)`, row)
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", job.JobID, err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, jobID string, u model.JobUpdate) error {
	set, del := encodeUpdate(u)
	var (
		clauses []string
		args    []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	for field, value := range set {
		column, ok := columns[field]
		if !ok {
			continue
		}
		add(column, value)
	}
	for _, field := range del {
		clauses = append(clauses, columns[field]+" = NULL")
	}
	if len(clauses) == 0 {
		return nil
	}

	args = append(args, jobID, s.now())
	query := fmt.Sprintf(
		"UPDATE jobs SET %s WHERE job_id = $%d AND (expires_at IS NULL OR expires_at > $%d)",
		strings.Join(clauses, ", "), len(args)-1, len(args))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", jobID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", jobID, err)
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, jobID string) (*model.Job, error) {
	var row jobRow
	err := s.db.GetContext(ctx, &row,
		`SELECT * FROM jobs WHERE job_id = $1 AND (expires_at IS NULL OR expires_at > $2)`,
		jobID, s.now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}
	return fromRow(&row)
}

// PurgeExpired deletes rows past their expiry and returns how many went.
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE expires_at <= $1`, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired jobs: %w", err)
	}
	return res.RowsAffected()
}

// columns maps codec field names onto table columns. Values are passed as
// text; Postgres casts them to the column type.
var columns = map[string]string{
	fieldStatus:         "status",
	fieldUpdatedAt:      "updated_at",
	fieldCompletedAt:    "completed_at",
	fieldProcessingTime: "processing_time",
	fieldURL:            "output_url",
	fieldURLExpiresAt:   "output_url_expires_at",
	fieldStorageURI:     "output_storage_uri",
	fieldDuration:       "output_duration",
	fieldSize:           "output_size",
	fieldError:          "error",
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullFloat(p *float64) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatFloat(*p), Valid: true}
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: p.UTC(), Valid: true}
}

func toRow(job *model.Job) *jobRow {
	row := &jobRow{
		JobID:              job.JobID,
		Status:             string(job.Status),
		SubmittedAt:        job.SubmittedAt.UTC(),
		UpdatedAt:          job.UpdatedAt.UTC(),
		CompletedAt:        nullTime(job.CompletedAt),
		ProcessingTime:     nullFloat(job.ProcessingTime),
		OutputURL:          nullString(job.Output.URL),
		OutputURLExpiresAt: nullTime(job.Output.URLExpiresAt),
		OutputStorageURI:   nullString(job.Output.StorageURI),
		OutputDuration:     nullFloat(job.Output.Duration),
		Error:              nullString(job.Error),
	}
	if job.Output.Size != nil {
		row.OutputSize = sql.NullInt64{Int64: *job.Output.Size, Valid: true}
	}
	if len(job.JobInfo) > 0 {
		row.JobInfo = sql.NullString{String: string(job.JobInfo), Valid: true}
	}
	if !job.TTL.IsZero() {
		row.ExpiresAt = sql.NullTime{Time: job.TTL.UTC(), Valid: true}
	}
	return row
}

func fromRow(row *jobRow) (*model.Job, error) {
	job := &model.Job{
		JobID:       row.JobID,
		Status:      model.JobStatus(row.Status),
		SubmittedAt: row.SubmittedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
	if row.JobInfo.Valid {
		job.JobInfo = []byte(row.JobInfo.String)
	}
	var err error
	if row.CompletedAt.Valid {
		t := row.CompletedAt.Time.UTC()
		job.CompletedAt = &t
	}
	if job.ProcessingTime, err = parseNullFloat(row.ProcessingTime); err != nil {
		return nil, err
	}
	if row.OutputURL.Valid {
		job.Output.URL = &row.OutputURL.String
	}
	if row.OutputURLExpiresAt.Valid {
		t := row.OutputURLExpiresAt.Time.UTC()
		job.Output.URLExpiresAt = &t
	}
	if row.OutputStorageURI.Valid {
		job.Output.StorageURI = &row.OutputStorageURI.String
	}
	if job.Output.Duration, err = parseNullFloat(row.OutputDuration); err != nil {
		return nil, err
	}
	if row.OutputSize.Valid {
		job.Output.Size = &row.OutputSize.Int64
	}
	if row.Error.Valid {
		job.Error = &row.Error.String
	}
	if row.ExpiresAt.Valid {
		job.TTL = row.ExpiresAt.Time.UTC()
	}
	return job, nil
}

func parseNullFloat(v sql.NullString) (*float64, error) {
	if !v.Valid {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v.String, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid numeric %q: %w", v.String, err)
	}
	return &f, nil
}
