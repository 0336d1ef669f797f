package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/pixil98/go-testutil"
	"github.com/pixil98/go-town/internal/annotation"
	"github.com/pixil98/go-town/internal/town"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	blobs, err := NewBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("creating blob store: %v", err)
	}
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "town.db"), blobs)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_PostRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &annotation.Post{
		ID:         "p1",
		TownID:     "t1",
		Title:      "lost cat",
		Content:    "orange tabby",
		OwnerID:    "alice",
		IsVisible:  true,
		Coordinate: town.Coordinate{X: 49, Y: 33},
	}
	if err := s.CreatePost(ctx, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.GetPost(ctx, "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "title", got.Title, "lost cat")
	testutil.AssertEqual(t, "owner", got.OwnerID, "alice")
	testutil.AssertEqual(t, "coordinate", got.Coordinate, town.Coordinate{X: 49, Y: 33})

	p.Title = "found cat"
	if err := s.UpdatePost(ctx, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err = s.GetPost(ctx, "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "title", got.Title, "found cat")

	if err := s.DeletePost(ctx, "p1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = s.GetPost(ctx, "p1")
	if !errors.Is(err, town.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_MissingEntities(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := map[string]func() error{
		"get post": func() error {
			_, err := s.GetPost(ctx, "nope")
			return err
		},
		"update post": func() error {
			return s.UpdatePost(ctx, &annotation.Post{ID: "nope"})
		},
		"delete post": func() error {
			return s.DeletePost(ctx, "nope")
		},
		"get comment": func() error {
			_, err := s.GetComment(ctx, "nope")
			return err
		},
		"update comment": func() error {
			return s.UpdateComment(ctx, &annotation.Comment{ID: "nope"})
		},
		"link to missing parent": func() error {
			return s.LinkCommentToParent(ctx, "nope", "child")
		},
		"link to missing post": func() error {
			return s.LinkCommentToPost(ctx, "nope", "child")
		},
	}

	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			if err := fn(); !errors.Is(err, town.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestSQLiteStore_GetAllPostsInTown(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, p := range []*annotation.Post{
		{ID: "a", TownID: "t1", Title: "one"},
		{ID: "b", TownID: "t1", Title: "two"},
		{ID: "c", TownID: "t2", Title: "elsewhere"},
	} {
		if err := s.CreatePost(ctx, p); err != nil {
			t.Fatalf("creating post %s: %v", p.ID, err)
		}
	}

	posts, err := s.GetAllPostsInTown(ctx, "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "count", len(posts), 2)
	for _, p := range posts {
		testutil.AssertEqual(t, "town", p.TownID, "t1")
	}
}

func TestSQLiteStore_CommentLinks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreatePost(ctx, &annotation.Post{ID: "p1", TownID: "t1", Title: "thread"}); err != nil {
		t.Fatalf("creating post: %v", err)
	}
	for _, c := range []*annotation.Comment{
		{ID: "c1", RootPostID: "p1", Content: "first"},
		{ID: "c2", RootPostID: "p1", Content: "second"},
		{ID: "c3", RootPostID: "p1", Content: "nested"},
	} {
		if err := s.CreateComment(ctx, c); err != nil {
			t.Fatalf("creating comment %s: %v", c.ID, err)
		}
	}

	if err := s.LinkCommentToPost(ctx, "p1", "c1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.LinkCommentToPost(ctx, "p1", "c2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.LinkCommentToParent(ctx, "c1", "c3"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p, err := s.GetPost(ctx, "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "top-level count", len(p.CommentIDs), 2)
	testutil.AssertEqual(t, "first id", p.CommentIDs[0], "c1")
	testutil.AssertEqual(t, "second id", p.CommentIDs[1], "c2")
	testutil.AssertEqual(t, "comment count", p.NumComments, 2)

	parent, err := s.GetComment(ctx, "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "child count", len(parent.ChildIDs), 1)
	testutil.AssertEqual(t, "child id", parent.ChildIDs[0], "c3")
}

func TestSQLiteStore_GetAllComments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, c := range []*annotation.Comment{
		{ID: "c1", RootPostID: "p1"},
		{ID: "c2", RootPostID: "p1"},
	} {
		if err := s.CreateComment(ctx, c); err != nil {
			t.Fatalf("creating comment %s: %v", c.ID, err)
		}
	}

	// Input order is preserved.
	comments, err := s.GetAllComments(ctx, []string{"c2", "c1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "count", len(comments), 2)
	testutil.AssertEqual(t, "first", comments[0].ID, "c2")
	testutil.AssertEqual(t, "second", comments[1].ID, "c1")

	// An unresolvable id fails the batch.
	_, err = s.GetAllComments(ctx, []string{"c1", "ghost"})
	if !errors.Is(err, town.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_DeleteComment_Soft(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := &annotation.Comment{ID: "c1", RootPostID: "p1", Content: "secret", ChildIDs: []string{"c2"}}
	if err := s.CreateComment(ctx, c); err != nil {
		t.Fatalf("creating comment: %v", err)
	}

	if err := s.DeleteComment(ctx, "c1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.GetComment(ctx, "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsDeleted {
		t.Error("expected deleted flag")
	}
	testutil.AssertEqual(t, "content", got.Content, "")
	testutil.AssertEqual(t, "children kept", len(got.ChildIDs), 1)
	testutil.AssertEqual(t, "child id", got.ChildIDs[0], "c2")
}

func TestSQLiteStore_DeleteCommentsUnderPost(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, c := range []*annotation.Comment{
		{ID: "c1", RootPostID: "p1"},
		{ID: "c2", RootPostID: "p1"},
		{ID: "c3", RootPostID: "p2"},
	} {
		if err := s.CreateComment(ctx, c); err != nil {
			t.Fatalf("creating comment %s: %v", c.ID, err)
		}
	}

	if err := s.DeleteCommentsUnderPost(ctx, "p1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, id := range []string{"c1", "c2"} {
		if _, err := s.GetComment(ctx, id); !errors.Is(err, town.ErrNotFound) {
			t.Errorf("comment %s: expected ErrNotFound, got %v", id, err)
		}
	}
	if _, err := s.GetComment(ctx, "c3"); err != nil {
		t.Errorf("comment c3 should survive, got %v", err)
	}

	// Sweeping a post with no comments is a no-op, not an error.
	if err := s.DeleteCommentsUnderPost(ctx, "p1"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSQLiteStore_Files(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.PutFile(ctx, "p1", []byte("bytes")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := s.GetFile(ctx, "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "data", string(data), "bytes")

	if err := s.DeleteFile(ctx, "p1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = s.GetFile(ctx, "p1")
	if !errors.Is(err, town.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
