package annotation

import (
	"context"
	"fmt"

	"github.com/pixil98/go-town/internal/town"
)

// maxTreeDepth caps recursion while assembling a comment tree. Parent links
// are immutable and always point at an existing ancestor, so a cycle cannot
// be created through the pipeline; hitting the cap therefore means the
// stored data is corrupt.
const maxTreeDepth = 64

// tombstone replaces the content of soft-deleted comments so their replies
// stay renderable without exposing the discarded text.
const tombstone = "[deleted]"

// assembleTree materializes the nested comment tree for a post by resolving
// child id lists level by level, depth-first. Deleted comments are emitted
// as tombstone nodes, never pruned. Caller must hold c.mu.
func (c *Coordinator) assembleTree(ctx context.Context, post *Post) (*CommentTree, error) {
	seen := make(map[string]bool)
	nodes, err := c.resolveNodes(ctx, post.CommentIDs, seen, 0)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", post.ID, err)
	}
	return &CommentTree{PostID: post.ID, Comments: nodes}, nil
}

func (c *Coordinator) resolveNodes(ctx context.Context, ids []string, seen map[string]bool, depth int) ([]*CommentNode, error) {
	if len(ids) == 0 {
		return []*CommentNode{}, nil
	}
	if depth >= maxTreeDepth {
		return nil, fmt.Errorf("%w: comment tree exceeds depth %d", town.ErrDataIntegrity, maxTreeDepth)
	}
	for _, id := range ids {
		if seen[id] {
			return nil, fmt.Errorf("%w: comment %s reachable twice (cycle)", town.ErrDataIntegrity, id)
		}
		seen[id] = true
	}

	sctx, cancel := c.storeContext(ctx)
	defer cancel()
	comments, err := c.store.GetAllComments(sctx, ids)
	if err != nil {
		return nil, storeFailure("resolving comments", err)
	}

	nodes := make([]*CommentNode, 0, len(comments))
	for _, cm := range comments {
		children, err := c.resolveNodes(ctx, cm.ChildIDs, seen, depth+1)
		if err != nil {
			return nil, err
		}

		node := &CommentNode{Comment: *cm, Children: children}
		if node.IsDeleted {
			node.Content = tombstone
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}
