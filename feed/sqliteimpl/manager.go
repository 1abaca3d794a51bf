package sqliteimpl

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fitspo-feed/feed"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const scoreSQL = "(likes + comments_count + shares_count)"

// maxBatch caps the rows one query reads; larger pages come back short with a
// cursor.
const maxBatch = 1000

var postColumns = []string{
	"id", "author_id", "created_at", "likes", "comments_count", "shares_count",
	"latitude", "longitude", "image_url", "caption", "city", "hashtags",
}

// SQLiteManager stores posts in a single SQLite file. created_at is kept as
// unix milliseconds so cursor comparisons are exact.
type SQLiteManager struct {
	db  *sql.DB
	now func() time.Time
}

func Open(dbPath string) (*SQLiteManager, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}
	db.SetMaxOpenConns(1)

	m := &SQLiteManager{db: db, now: time.Now}
	if err := m.init(); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

func (m *SQLiteManager) init() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS posts (
			id             TEXT PRIMARY KEY,
			author_id      TEXT NOT NULL,
			created_at     INTEGER NOT NULL,
			likes          INTEGER NOT NULL DEFAULT 0,
			comments_count INTEGER NOT NULL DEFAULT 0,
			shares_count   INTEGER NOT NULL DEFAULT 0,
			latitude       REAL,
			longitude      REAL,
			image_url      TEXT NOT NULL DEFAULT '',
			caption        TEXT NOT NULL DEFAULT '',
			city           TEXT NOT NULL DEFAULT '',
			hashtags       TEXT NOT NULL DEFAULT '[]'
		);
		CREATE INDEX IF NOT EXISTS idx_posts_recency ON posts(created_at DESC, id ASC);
		CREATE INDEX IF NOT EXISTS idx_posts_author ON posts(author_id);
	`)
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

func (m *SQLiteManager) Close() error {
	return m.db.Close()
}

func (m *SQLiteManager) IsReady(ctx context.Context) bool {
	return m.db.PingContext(ctx) == nil
}

func (m *SQLiteManager) AddPost(ctx context.Context, post feed.NewPost) (feed.PostRecord, error) {
	if post.AuthorID == "" {
		return feed.PostRecord{}, fmt.Errorf("%w: author id is required", feed.ErrInvalidArgument)
	}
	record := feed.PostRecord{
		ID:        uuid.NewString(),
		AuthorID:  post.AuthorID,
		CreatedAt: m.now().UTC().Truncate(time.Millisecond),
		Location:  post.Location,
		ImageURL:  post.ImageURL,
		Caption:   post.Caption,
		City:      post.City,
		Hashtags:  post.Hashtags,
	}
	if err := m.Put(ctx, record); err != nil {
		return feed.PostRecord{}, err
	}
	return record, nil
}

// Put inserts or replaces full records, counters included.
func (m *SQLiteManager) Put(ctx context.Context, records ...feed.PostRecord) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, r := range records {
		tags, err := json.Marshal(r.Hashtags)
		if err != nil {
			return fmt.Errorf("encode hashtags: %w", err)
		}
		var lat, lon sql.NullFloat64
		if r.Location != nil {
			lat = sql.NullFloat64{Float64: r.Location.Latitude, Valid: true}
			lon = sql.NullFloat64{Float64: r.Location.Longitude, Valid: true}
		}
		query, args, err := sq.Insert("posts").
			Options("OR REPLACE").
			Columns(postColumns...).
			Values(r.ID, r.AuthorID, r.CreatedAt.UnixMilli(), r.LikeCount, r.CommentCount, r.ShareCount,
				lat, lon, r.ImageURL, r.Caption, r.City, string(tags)).
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("%w: insert post %s: %w", feed.ErrStorage, r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (m *SQLiteManager) GetPost(ctx context.Context, postID string) (feed.PostRecord, error) {
	query, args, err := sq.Select(postColumns...).From("posts").Where(sq.Eq{"id": postID}).ToSql()
	if err != nil {
		return feed.PostRecord{}, fmt.Errorf("build select: %w", err)
	}
	post, err := scanPost(m.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return feed.PostRecord{}, feed.ErrNotFound
	}
	if err != nil {
		return feed.PostRecord{}, fmt.Errorf("get post %s: %w", postID, err)
	}
	return post, nil
}

func (m *SQLiteManager) SetCounters(ctx context.Context, postID string, likes, comments, shares int) error {
	query, args, err := sq.Update("posts").
		Set("likes", likes).
		Set("comments_count", comments).
		Set("shares_count", shares).
		Where(sq.Eq{"id": postID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	res, err := m.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: update counters: %w", feed.ErrStorage, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return feed.ErrNotFound
	}
	return nil
}

func (m *SQLiteManager) FetchPostsOrderedByScore(ctx context.Context, cursor *feed.Cursor, pageSize int) (feed.StorePage, error) {
	q := sq.Select(postColumns...).From("posts")
	if cursor != nil {
		pos, err := feed.DecodePosition(cursor.Token)
		if err != nil {
			return feed.StorePage{}, err
		}
		if pos.Score == nil {
			return feed.StorePage{}, fmt.Errorf("%w: cursor cannot resume score order", feed.ErrInvalidArgument)
		}
		q = q.Where(sq.Or{
			sq.Expr(scoreSQL+" < ?", *pos.Score),
			sq.And{sq.Expr(scoreSQL+" = ?", *pos.Score), sq.Lt{"created_at": pos.CreatedAt}},
			sq.And{sq.Expr(scoreSQL+" = ?", *pos.Score), sq.Eq{"created_at": pos.CreatedAt}, sq.Gt{"id": pos.ID}},
		})
	}
	q = q.OrderBy(scoreSQL+" DESC", "created_at DESC", "id ASC")
	return m.query(ctx, q, pageSize, func(post feed.PostRecord) feed.Position {
		score := feed.InteractionScore(post)
		return feed.PositionOf(post, &score)
	}, true)
}

func (m *SQLiteManager) FetchPostsOrderedByRecency(ctx context.Context, cursor *feed.Cursor, pageSize int) (feed.StorePage, error) {
	q := sq.Select(postColumns...).From("posts")
	if cursor != nil {
		pos, err := feed.DecodePosition(cursor.Token)
		if err != nil {
			return feed.StorePage{}, err
		}
		q = q.Where(sq.Or{
			sq.Lt{"created_at": pos.CreatedAt},
			sq.And{sq.Eq{"created_at": pos.CreatedAt}, sq.Gt{"id": pos.ID}},
		})
	}
	q = q.OrderBy("created_at DESC", "id ASC")
	return m.query(ctx, q, pageSize, func(post feed.PostRecord) feed.Position {
		return feed.PositionOf(post, nil)
	}, false)
}

func (m *SQLiteManager) query(ctx context.Context, q sq.SelectBuilder, pageSize int, position func(feed.PostRecord) feed.Position, composite bool) (feed.StorePage, error) {
	if pageSize <= 0 {
		return feed.StorePage{}, fmt.Errorf("%w: page size must be positive", feed.ErrInvalidArgument)
	}
	pageSize = min(pageSize, maxBatch)
	query, args, err := q.Limit(uint64(pageSize) + 1).ToSql()
	if err != nil {
		return feed.StorePage{}, fmt.Errorf("build select: %w", err)
	}
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return feed.StorePage{}, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	posts := make([]feed.PostRecord, 0, pageSize)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return feed.StorePage{}, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return feed.StorePage{}, fmt.Errorf("iterate posts: %w", err)
	}

	if len(posts) <= pageSize {
		return feed.StorePage{Posts: posts}, nil
	}
	posts = posts[:pageSize]
	return feed.StorePage{
		Posts: posts,
		Next: &feed.Cursor{
			Token:                        feed.EncodePosition(position(posts[len(posts)-1])),
			SupportsCompositeOrderResume: composite,
		},
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPost(row scanner) (feed.PostRecord, error) {
	var (
		p         feed.PostRecord
		createdAt int64
		lat, lon  sql.NullFloat64
		tags      string
	)
	err := row.Scan(&p.ID, &p.AuthorID, &createdAt, &p.LikeCount, &p.CommentCount, &p.ShareCount,
		&lat, &lon, &p.ImageURL, &p.Caption, &p.City, &tags)
	if err != nil {
		return p, err
	}
	p.CreatedAt = time.UnixMilli(createdAt).UTC()
	if lat.Valid && lon.Valid {
		p.Location = &feed.GeoPoint{Latitude: lat.Float64, Longitude: lon.Float64}
	}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &p.Hashtags); err != nil {
			return p, fmt.Errorf("decode hashtags: %w", err)
		}
	}
	return p, nil
}
