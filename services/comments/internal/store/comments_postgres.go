package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const commentColumns = `id, tid, parent, created, modified, mode, remote_addr, text,
	author, email, website, hash, likes, dislikes, voters`

// PostgresStore persists threads and comments in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store backed by Postgres.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(pgTx{q: tx})
	})
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (Comment, error) {
	return getComment(ctx, s.pool, id)
}

func (s *PostgresStore) Count(ctx context.Context, uri string) (int64, error) {
	const q = `SELECT count(*) FROM comments c
	           JOIN threads t ON t.id = c.tid
	           WHERE t.uri = $1 AND c.mode <> $2`
	var n int64
	err := s.pool.QueryRow(ctx, q, uri, int16(ModePending)).Scan(&n)
	return n, err
}

func (s *PostgresStore) Rows(ctx context.Context, uri string) ([]Comment, error) {
	const q = `SELECT c.id, c.tid, c.parent, c.created, c.modified, c.mode, c.remote_addr, c.text,
	                  c.author, c.email, c.website, c.hash, c.likes, c.dislikes, c.voters
	           FROM comments c
	           JOIN threads t ON t.id = c.tid
	           WHERE t.uri = $1 AND c.mode IN ($2, $3)
	           ORDER BY c.id ASC`
	rows, err := s.pool.Query(ctx, q, uri, int16(ModeVisible), int16(ModeTombstoned))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Thread(ctx context.Context, uri string) (Thread, error) {
	const q = `SELECT id, uri, title FROM threads WHERE uri = $1`
	var t Thread
	err := s.pool.QueryRow(ctx, q, uri).Scan(&t.ID, &t.URI, &t.Title)
	if errors.Is(err, pgx.ErrNoRows) {
		return Thread{}, ErrNotFound
	}
	return t, err
}

func (s *PostgresStore) CreateThread(ctx context.Context, uri, title string) (Thread, error) {
	return createThread(ctx, s.pool, uri, title)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgTx struct {
	q querier
}

func (t pgTx) Ancestors(ctx context.Context, id int64, max int) ([]int64, error) {
	const q = `WITH RECURSIVE chain (id, parent, n) AS (
	               SELECT id, parent, 1 FROM comments WHERE id = $1
	               UNION ALL
	               SELECT c.id, c.parent, chain.n + 1
	               FROM comments c JOIN chain ON c.id = chain.parent
	               WHERE chain.n < $2
	           )
	           SELECT id FROM chain ORDER BY n`
	rows, err := t.q.Query(ctx, q, id, max)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (t pgTx) Insert(ctx context.Context, c NewComment) (int64, error) {
	if c.Parent != nil {
		var tid int64
		err := t.q.QueryRow(ctx, `SELECT tid FROM comments WHERE id = $1`, *c.Parent).Scan(&tid)
		if errors.Is(err, pgx.ErrNoRows) || (err == nil && tid != c.ThreadID) {
			return 0, ErrInvalidParent
		}
		if err != nil {
			return 0, err
		}
	}

	const q = `INSERT INTO comments (tid, parent, created, mode, remote_addr, text, author, email, website, hash)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	           RETURNING id`
	var id int64
	err := t.q.QueryRow(ctx, q, c.ThreadID, c.Parent, c.Created, int16(c.Mode), c.RemoteAddr,
		c.Text, c.Author, c.Email, c.Website, c.Hash).Scan(&id)
	return id, err
}

func (t pgTx) Get(ctx context.Context, id int64) (Comment, error) {
	return getComment(ctx, t.q, id)
}

func (t pgTx) Update(ctx context.Context, id int64, e Edit) error {
	const q = `UPDATE comments SET text = $1, author = $2, email = $3, website = $4, hash = $5, modified = $6
	           WHERE id = $7`
	tag, err := t.q.Exec(ctx, q, e.Text, e.Author, e.Email, e.Website, e.Hash, e.Modified, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t pgTx) CountChildren(ctx context.Context, id int64) (int64, error) {
	var n int64
	err := t.q.QueryRow(ctx, `SELECT count(*) FROM comments WHERE parent = $1`, id).Scan(&n)
	return n, err
}

func (t pgTx) Remove(ctx context.Context, id int64) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t pgTx) Tombstone(ctx context.Context, id int64) error {
	const q = `UPDATE comments
	           SET mode = $1, text = '', author = NULL, email = NULL, website = NULL, hash = '',
	               remote_addr = NULL, likes = NULL, dislikes = NULL, voters = NULL
	           WHERE id = $2`
	tag, err := t.q.Exec(ctx, q, int16(ModeTombstoned), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t pgTx) SweepTombstones(ctx context.Context, threadID int64) (int64, error) {
	const q = `DELETE FROM comments c
	           WHERE c.tid = $1 AND c.mode = $2
	             AND NOT EXISTS (SELECT 1 FROM comments k WHERE k.parent = c.id)`
	var removed int64
	for {
		tag, err := t.q.Exec(ctx, q, threadID, int16(ModeTombstoned))
		if err != nil {
			return removed, err
		}
		if tag.RowsAffected() == 0 {
			return removed, nil
		}
		removed += tag.RowsAffected()
	}
}

func (t pgTx) LoadVoters(ctx context.Context, id int64) ([]byte, error) {
	const q = `SELECT voters FROM comments WHERE id = $1 AND mode = $2 FOR UPDATE`
	var blob []byte
	err := t.q.QueryRow(ctx, q, id, int16(ModeVisible)).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return blob, err
}

func (t pgTx) StoreVoters(ctx context.Context, id int64, blob []byte) error {
	tag, err := t.q.Exec(ctx, `UPDATE comments SET voters = $1 WHERE id = $2`, blob, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t pgTx) IncrementVotes(ctx context.Context, id int64, up bool) error {
	q := `UPDATE comments SET dislikes = COALESCE(dislikes, 0) + 1 WHERE id = $1`
	if up {
		q = `UPDATE comments SET likes = COALESCE(likes, 0) + 1 WHERE id = $1`
	}
	tag, err := t.q.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t pgTx) ThreadURI(ctx context.Context, threadID int64) (string, error) {
	var uri string
	err := t.q.QueryRow(ctx, `SELECT uri FROM threads WHERE id = $1`, threadID).Scan(&uri)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return uri, err
}

func (t pgTx) CreateThread(ctx context.Context, uri, title string) (Thread, error) {
	return createThread(ctx, t.q, uri, title)
}

func createThread(ctx context.Context, q querier, uri, title string) (Thread, error) {
	const stmt = `INSERT INTO threads (uri, title) VALUES ($1, $2)
	              ON CONFLICT (uri) DO UPDATE SET uri = EXCLUDED.uri
	              RETURNING id, uri, title`
	var t Thread
	err := q.QueryRow(ctx, stmt, uri, title).Scan(&t.ID, &t.URI, &t.Title)
	return t, err
}

func getComment(ctx context.Context, q querier, id int64) (Comment, error) {
	row := q.QueryRow(ctx, `SELECT `+commentColumns+` FROM comments WHERE id = $1`, id)
	c, err := scanComment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Comment{}, ErrNotFound
	}
	return c, err
}

func scanComment(row pgx.Row) (Comment, error) {
	var c Comment
	var mode int16
	err := row.Scan(&c.ID, &c.ThreadID, &c.Parent, &c.Created, &c.Modified, &mode, &c.RemoteAddr,
		&c.Text, &c.Author, &c.Email, &c.Website, &c.Hash, &c.Likes, &c.Dislikes, &c.Voters)
	c.Mode = Mode(mode)
	return c, err
}
