package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/postwave/post-gateway/internal/core"
)

// Postgres is the durable Store backend. Update takes a row lock
// (SELECT ... FOR UPDATE) so concurrent updates to the same post serialize;
// independent posts only ever touch their own row.
type Postgres struct {
	Pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres { return &Postgres{Pool: pool} }

const postColumns = `id, channel, body, hashtags, media_refs, scheduled_for, status,
	retry_count, max_retries, external_id, external_url, error_message,
	metadata, created_at, posted_at, queued_at, version`

func (s *Postgres) Create(ctx context.Context, post *core.ScheduledPost) error {
	meta, err := json.Marshal(post.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	// nil slices would encode as SQL NULL; the columns are NOT NULL.
	hashtags := post.Hashtags
	if hashtags == nil {
		hashtags = []string{}
	}
	mediaRefs := post.MediaRefs
	if mediaRefs == nil {
		mediaRefs = []string{}
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO posts(id, channel, body, hashtags, media_refs, scheduled_for, status,
			retry_count, max_retries, metadata, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, post.ID, post.Channel, post.Body, hashtags, mediaRefs,
		post.ScheduledFor, string(post.Status), post.RetryCount, post.MaxRetries,
		meta, post.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, id string) (core.ScheduledPost, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id=$1`, id)
	return scanPost(row)
}

func (s *Postgres) Update(ctx context.Context, id string, mutate func(p *core.ScheduledPost) error) (core.ScheduledPost, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return core.ScheduledPost{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id=$1 FOR UPDATE`, id)
	post, err := scanPost(row)
	if err != nil {
		return core.ScheduledPost{}, err
	}

	if err := mutate(&post); err != nil {
		return core.ScheduledPost{}, err
	}
	post.Version++

	meta, err := json.Marshal(post.Metadata)
	if err != nil {
		return core.ScheduledPost{}, fmt.Errorf("marshal metadata: %w", err)
	}
	hashtags := post.Hashtags
	if hashtags == nil {
		hashtags = []string{}
	}
	mediaRefs := post.MediaRefs
	if mediaRefs == nil {
		mediaRefs = []string{}
	}
	_, err = tx.Exec(ctx, `
		UPDATE posts SET channel=$2, body=$3, hashtags=$4, media_refs=$5, scheduled_for=$6,
			status=$7, retry_count=$8, max_retries=$9, external_id=$10, external_url=$11,
			error_message=$12, metadata=$13, posted_at=$14, queued_at=$15, version=$16
		WHERE id=$1
	`, post.ID, post.Channel, post.Body, hashtags, mediaRefs, post.ScheduledFor,
		string(post.Status), post.RetryCount, post.MaxRetries, post.ExternalID, post.ExternalURL,
		post.ErrorMessage, meta, post.PostedAt, post.QueuedAt, post.Version)
	if err != nil {
		return core.ScheduledPost{}, fmt.Errorf("update post: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return core.ScheduledPost{}, fmt.Errorf("commit: %w", err)
	}
	return post, nil
}

func (s *Postgres) List(ctx context.Context, f Filter) ([]core.ScheduledPost, error) {
	q := `SELECT ` + postColumns + ` FROM posts`
	var conds []string
	var args []any
	idx := 1
	if f.Channel != "" {
		conds = append(conds, fmt.Sprintf("channel=$%d", idx))
		args = append(args, f.Channel)
		idx++
	}
	if len(f.Statuses) > 0 {
		ss := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			ss = append(ss, string(s))
		}
		conds = append(conds, fmt.Sprintf("status = ANY($%d)", idx))
		args = append(args, ss)
		idx++
	}
	if f.DueBefore != nil {
		conds = append(conds, fmt.Sprintf("scheduled_for <= $%d", idx))
		args = append(args, *f.DueBefore)
		idx++
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY scheduled_for ASC, created_at ASC"
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT $%d", idx)
		args = append(args, f.Limit)
	}

	rows, err := s.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var out []core.ScheduledPost
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPost(row pgx.Row) (core.ScheduledPost, error) {
	var p core.ScheduledPost
	var status string
	var meta []byte
	var extID, extURL, errMsg *string
	var postedAt, queuedAt *time.Time
	err := row.Scan(&p.ID, &p.Channel, &p.Body, &p.Hashtags, &p.MediaRefs, &p.ScheduledFor,
		&status, &p.RetryCount, &p.MaxRetries, &extID, &extURL, &errMsg,
		&meta, &p.CreatedAt, &postedAt, &queuedAt, &p.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.ScheduledPost{}, ErrNotFound
		}
		return core.ScheduledPost{}, fmt.Errorf("scan post: %w", err)
	}
	p.Status = core.Status(status)
	p.ExternalID = extID
	p.ExternalURL = extURL
	p.ErrorMessage = errMsg
	p.PostedAt = postedAt
	p.QueuedAt = queuedAt
	if len(meta) > 0 && string(meta) != "null" {
		if err := json.Unmarshal(meta, &p.Metadata); err != nil {
			return core.ScheduledPost{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return p, nil
}
