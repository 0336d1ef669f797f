// Package annotation implements coordinate-anchored posts and their comment
// trees: an ownership-gated mutation pipeline over a durable store, with
// updates fanned out through the town listener bus.
package annotation

import (
	"time"

	"github.com/pixil98/go-town/internal/town"
)

// FileDescriptor describes a file attached to a post. The bytes themselves
// live in the blob store, keyed by the post id.
type FileDescriptor struct {
	Name        string `json:"filename"`
	ContentType string `json:"contentType"`
}

// Post is a persistent annotation anchored to a world coordinate. At most
// one post may occupy a given coordinate per town.
type Post struct {
	ID         string          `json:"id"`
	TownID     string          `json:"townId"`
	Title      string          `json:"title"`
	Content    string          `json:"postContent"`
	OwnerID    string          `json:"ownerId"`
	IsVisible  bool            `json:"isVisible"`
	Coordinate town.Coordinate `json:"coordinates"`
	Skin       string          `json:"postSkin,omitempty"`

	// ExpiresAt is when the post becomes eligible for the expiry sweep.
	// Comment activity pushes it further out.
	ExpiresAt time.Time `json:"expiresAt"`

	// CommentIDs lists direct (top-level) comments in creation order.
	CommentIDs  []string `json:"comments"`
	NumComments int      `json:"numComments"`

	File *FileDescriptor `json:"file,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Expired reports whether the post is past its time-to-live at the given
// instant. Posts with no expiry never expire.
func (p *Post) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && p.ExpiresAt.Before(now)
}

// PostPatch is a partial update to a post. Nil fields are left unchanged.
type PostPatch struct {
	Title     *string `json:"title,omitempty"`
	Content   *string `json:"postContent,omitempty"`
	IsVisible *bool   `json:"isVisible,omitempty"`
	Skin      *string `json:"postSkin,omitempty"`
}

func (p *Post) apply(patch PostPatch) {
	if patch.Title != nil {
		p.Title = *patch.Title
	}
	if patch.Content != nil {
		p.Content = *patch.Content
	}
	if patch.IsVisible != nil {
		p.IsVisible = *patch.IsVisible
	}
	if patch.Skin != nil {
		p.Skin = *patch.Skin
	}
}

// Comment is a reply to a post or to another comment. RootPostID and
// ParentCommentID are immutable after creation; an empty ParentCommentID
// marks a direct reply to the post. Deleted comments are kept as tombstones
// so their children stay reachable.
type Comment struct {
	ID              string `json:"id"`
	RootPostID      string `json:"rootPostId"`
	ParentCommentID string `json:"parentCommentId,omitempty"`
	OwnerID         string `json:"ownerId"`
	Content         string `json:"commentContent"`
	IsDeleted       bool   `json:"isDeleted"`

	// ChildIDs lists direct replies in creation order.
	ChildIDs []string `json:"comments"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CommentPatch is a partial update to a comment.
type CommentPatch struct {
	Content *string `json:"commentContent,omitempty"`
}

func (c *Comment) apply(patch CommentPatch) {
	if patch.Content != nil {
		c.Content = *patch.Content
	}
}

// CommentNode is one node of a materialized comment tree.
type CommentNode struct {
	Comment
	Children []*CommentNode `json:"children"`
}

// CommentTree is the commentUpdate broadcast payload: the fully nested
// comment forest for one post.
type CommentTree struct {
	PostID   string         `json:"postId"`
	Comments []*CommentNode `json:"comments"`
}
