package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/prepstack/interviewflow/internal/domain"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS interviews (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	source_ref TEXT NOT NULL,
	state TEXT NOT NULL,
	failure_reason TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS interview_questions (
	id TEXT PRIMARY KEY,
	interview_id TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	question TEXT NOT NULL,
	answer TEXT NOT NULL DEFAULT '',
	context TEXT NOT NULL DEFAULT '',
	extra_context TEXT NOT NULL DEFAULT '',
	is_global BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS interview_questions_interview_id_idx
	ON interview_questions (interview_id);
`

// questionBatchSize bounds one multi-row insert. Matches the page size the
// upstream table loader used.
const questionBatchSize = 25

type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{db: db, now: time.Now}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure interview schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Create(ctx context.Context, interview domain.Interview) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO interviews (id, owner_id, source_ref, state, failure_reason, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		interview.ID,
		interview.OwnerID,
		interview.SourceRef,
		interview.State,
		interview.FailureReason,
		interview.CreatedAt,
		interview.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert interview: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (domain.Interview, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, owner_id, source_ref, state, failure_reason, created_at, updated_at
		 FROM interviews
		 WHERE id = $1`,
		id,
	)

	var interview domain.Interview
	if err := row.Scan(
		&interview.ID,
		&interview.OwnerID,
		&interview.SourceRef,
		&interview.State,
		&interview.FailureReason,
		&interview.CreatedAt,
		&interview.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return domain.Interview{}, false, nil
		}
		return domain.Interview{}, false, fmt.Errorf("query interview: %w", err)
	}

	return interview, true, nil
}

func (s *PostgresStore) Transition(ctx context.Context, id, from, to, reason string) (domain.Interview, error) {
	if !domain.CanTransition(from, to) {
		return domain.Interview{}, fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	if to != domain.StateFailed {
		reason = ""
	}

	now := s.now().UTC()
	result, err := s.db.ExecContext(
		ctx,
		`UPDATE interviews
		 SET state = $1, failure_reason = $2, updated_at = $3
		 WHERE id = $4 AND state = $5`,
		to,
		reason,
		now,
		id,
		from,
	)
	if err != nil {
		return domain.Interview{}, fmt.Errorf("transition interview state: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return domain.Interview{}, fmt.Errorf("transition interview state: %w", err)
	}
	if affected == 0 {
		_, ok, err := s.Get(ctx, id)
		if err != nil {
			return domain.Interview{}, err
		}
		if !ok {
			return domain.Interview{}, ErrInterviewNotFound
		}
		return domain.Interview{}, ErrStateConflict
	}

	interview, ok, err := s.Get(ctx, id)
	if err != nil {
		return domain.Interview{}, err
	}
	if !ok {
		return domain.Interview{}, ErrInterviewNotFound
	}
	return interview, nil
}

func (s *PostgresStore) SaveBatch(ctx context.Context, records []domain.QuestionRecord) (BatchResult, error) {
	var result BatchResult

	for start := 0; start < len(records); start += questionBatchSize {
		end := min(start+questionBatchSize, len(records))
		chunk := records[start:end]

		if err := ctx.Err(); err != nil {
			return result, err
		}

		written, err := s.insertChunk(ctx, chunk)
		if err != nil {
			for _, record := range chunk {
				result.Failed = append(result.Failed, FailedRecord{Record: record, Err: err})
			}
			continue
		}
		result.Written += written
		result.Skipped += len(chunk) - written
	}

	return result, nil
}

func (s *PostgresStore) insertChunk(ctx context.Context, chunk []domain.QuestionRecord) (int, error) {
	var (
		sb   strings.Builder
		args = make([]any, 0, len(chunk)*10)
	)
	sb.WriteString(`INSERT INTO interview_questions
		(id, interview_id, owner_id, question, answer, context, extra_context, is_global, created_at, updated_at)
		VALUES `)

	for i, record := range chunk {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 10
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10)
		args = append(args,
			record.ID,
			record.InterviewID,
			record.OwnerID,
			record.Question,
			record.Answer,
			record.Context,
			record.ExtraContext,
			record.IsGlobal,
			record.CreatedAt,
			record.UpdatedAt,
		)
	}
	sb.WriteString(" ON CONFLICT (id) DO NOTHING")

	result, err := s.db.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("insert question batch: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("insert question batch: %w", err)
	}
	return int(affected), nil
}

func (s *PostgresStore) CountByInterview(ctx context.Context, interviewID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM interview_questions WHERE interview_id = $1`,
		interviewID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count interview questions: %w", err)
	}
	return count, nil
}
