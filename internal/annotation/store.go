package annotation

import "context"

// Store is the durable repository the coordinator mutates through. It is
// implemented by the persistence layer (internal/storage); the coordinator
// never assumes anything about the engine behind it beyond these contracts.
//
// Update methods persist the full entity the coordinator merged under its
// lock; concurrent edits of the same entity are last-write-wins by design.
// Implementations must honor context cancellation so the coordinator can
// bound every call with a timeout.
type Store interface {
	CreatePost(ctx context.Context, p *Post) error
	GetPost(ctx context.Context, id string) (*Post, error)
	GetAllPostsInTown(ctx context.Context, townID string) ([]*Post, error)
	UpdatePost(ctx context.Context, p *Post) error
	DeletePost(ctx context.Context, id string) error

	CreateComment(ctx context.Context, c *Comment) error
	GetComment(ctx context.Context, id string) (*Comment, error)

	// GetAllComments resolves a batch of comment ids, preserving input
	// order. Unresolvable ids are an error.
	GetAllComments(ctx context.Context, ids []string) ([]*Comment, error)

	UpdateComment(ctx context.Context, c *Comment) error

	// DeleteComment is a soft delete: it clears the content and sets the
	// deleted flag, but keeps the node and its child links.
	DeleteComment(ctx context.Context, id string) error

	// DeleteCommentsUnderPost hard-removes every comment whose root post is
	// postID in one bulk operation, so a cascading post delete has no
	// partial-failure window.
	DeleteCommentsUnderPost(ctx context.Context, postID string) error

	// LinkCommentToParent appends childID to the parent comment's child list.
	LinkCommentToParent(ctx context.Context, parentID, childID string) error

	// LinkCommentToPost appends childID to the post's top-level comment list.
	LinkCommentToPost(ctx context.Context, postID, childID string) error

	PutFile(ctx context.Context, id string, data []byte) error
	GetFile(ctx context.Context, id string) ([]byte, error)
	DeleteFile(ctx context.Context, id string) error
}
