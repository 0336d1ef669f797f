// Package storage provides the durable backends consumed through the
// annotation.Store interface: a sqlite database for post/comment documents
// and a directory of flat files for attachment blobs.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/pixil98/go-town/internal/annotation"
	"github.com/pixil98/go-town/internal/town"
)

const schema = `
CREATE TABLE IF NOT EXISTS posts (
	id      TEXT PRIMARY KEY,
	town_id TEXT NOT NULL,
	doc     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS posts_by_town ON posts(town_id);

CREATE TABLE IF NOT EXISTS comments (
	id           TEXT PRIMARY KEY,
	root_post_id TEXT NOT NULL,
	doc          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS comments_by_post ON comments(root_post_id);
`

// SQLiteStore implements annotation.Store. Entities are stored as JSON
// documents with the columns needed for lookup pulled out alongside, which
// keeps the schema stable while the document shapes evolve.
type SQLiteStore struct {
	db    *sql.DB
	blobs *BlobStore
}

// NewSQLiteStore opens (creating if needed) the database at path and
// prepares the schema. File operations are delegated to blobs.
func NewSQLiteStore(path string, blobs *BlobStore) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// The modernc driver serializes writes itself, but a single connection
	// avoids SQLITE_BUSY between our own transactions.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing schema: %w", err)
	}

	return &SQLiteStore{db: db, blobs: blobs}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreatePost(ctx context.Context, p *annotation.Post) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding post: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO posts (id, town_id, doc) VALUES (?, ?, ?)`, p.ID, p.TownID, doc)
	if err != nil {
		return fmt.Errorf("inserting post: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetPost(ctx context.Context, id string) (*annotation.Post, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM posts WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: post %s", town.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying post: %w", err)
	}

	var p annotation.Post
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("decoding post %s: %w", id, err)
	}
	return &p, nil
}

func (s *SQLiteStore) GetAllPostsInTown(ctx context.Context, townID string) ([]*annotation.Post, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM posts WHERE town_id = ? ORDER BY id`, townID)
	if err != nil {
		return nil, fmt.Errorf("querying posts: %w", err)
	}
	defer rows.Close()

	var posts []*annotation.Post
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scanning post: %w", err)
		}
		var p annotation.Post
		if err := json.Unmarshal(doc, &p); err != nil {
			return nil, fmt.Errorf("decoding post: %w", err)
		}
		posts = append(posts, &p)
	}
	return posts, rows.Err()
}

func (s *SQLiteStore) UpdatePost(ctx context.Context, p *annotation.Post) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding post: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE posts SET doc = ? WHERE id = ?`, doc, p.ID)
	if err != nil {
		return fmt.Errorf("updating post: %w", err)
	}
	return requireRow(res, "post", p.ID)
}

func (s *SQLiteStore) DeletePost(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting post: %w", err)
	}
	return requireRow(res, "post", id)
}

func (s *SQLiteStore) CreateComment(ctx context.Context, c *annotation.Comment) error {
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding comment: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO comments (id, root_post_id, doc) VALUES (?, ?, ?)`, c.ID, c.RootPostID, doc)
	if err != nil {
		return fmt.Errorf("inserting comment: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetComment(ctx context.Context, id string) (*annotation.Comment, error) {
	return getComment(ctx, s.db, id)
}

func (s *SQLiteStore) GetAllComments(ctx context.Context, ids []string) ([]*annotation.Comment, error) {
	comments := make([]*annotation.Comment, 0, len(ids))
	for _, id := range ids {
		c, err := getComment(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, nil
}

func (s *SQLiteStore) UpdateComment(ctx context.Context, c *annotation.Comment) error {
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding comment: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE comments SET doc = ? WHERE id = ?`, doc, c.ID)
	if err != nil {
		return fmt.Errorf("updating comment: %w", err)
	}
	return requireRow(res, "comment", c.ID)
}

func (s *SQLiteStore) DeleteComment(ctx context.Context, id string) error {
	c, err := getComment(ctx, s.db, id)
	if err != nil {
		return err
	}

	c.IsDeleted = true
	c.Content = ""
	return s.UpdateComment(ctx, c)
}

func (s *SQLiteStore) DeleteCommentsUnderPost(ctx context.Context, postID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE root_post_id = ?`, postID)
	if err != nil {
		return fmt.Errorf("deleting comments under post %s: %w", postID, err)
	}
	return nil
}

func (s *SQLiteStore) LinkCommentToParent(ctx context.Context, parentID, childID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		parent, err := getComment(ctx, tx, parentID)
		if err != nil {
			return err
		}
		parent.ChildIDs = append(parent.ChildIDs, childID)

		doc, err := json.Marshal(parent)
		if err != nil {
			return fmt.Errorf("encoding comment: %w", err)
		}
		_, err = tx.ExecContext(ctx, `UPDATE comments SET doc = ? WHERE id = ?`, doc, parentID)
		return err
	})
}

func (s *SQLiteStore) LinkCommentToPost(ctx context.Context, postID, childID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var doc []byte
		err := tx.QueryRowContext(ctx, `SELECT doc FROM posts WHERE id = ?`, postID).Scan(&doc)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: post %s", town.ErrNotFound, postID)
		}
		if err != nil {
			return fmt.Errorf("querying post: %w", err)
		}

		var p annotation.Post
		if err := json.Unmarshal(doc, &p); err != nil {
			return fmt.Errorf("decoding post %s: %w", postID, err)
		}
		p.CommentIDs = append(p.CommentIDs, childID)
		p.NumComments = len(p.CommentIDs)

		updated, err := json.Marshal(&p)
		if err != nil {
			return fmt.Errorf("encoding post: %w", err)
		}
		_, err = tx.ExecContext(ctx, `UPDATE posts SET doc = ? WHERE id = ?`, updated, postID)
		return err
	})
}

func (s *SQLiteStore) PutFile(ctx context.Context, id string, data []byte) error {
	return s.blobs.Put(ctx, id, data)
}

func (s *SQLiteStore) GetFile(ctx context.Context, id string) ([]byte, error) {
	return s.blobs.Get(ctx, id)
}

func (s *SQLiteStore) DeleteFile(ctx context.Context, id string) error {
	return s.blobs.Delete(ctx, id)
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getComment(ctx context.Context, q querier, id string) (*annotation.Comment, error) {
	var doc []byte
	err := q.QueryRowContext(ctx, `SELECT doc FROM comments WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: comment %s", town.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying comment: %w", err)
	}

	var c annotation.Comment
	if err := json.Unmarshal(doc, &c); err != nil {
		return nil, fmt.Errorf("decoding comment %s: %w", id, err)
	}
	return &c, nil
}

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", town.ErrNotFound, kind, id)
	}
	return nil
}
