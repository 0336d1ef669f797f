package annotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pixil98/go-town/internal/town"
)

const (
	// DefaultPostTTL is how long a fresh post lives without comment activity.
	DefaultPostTTL = 7 * 24 * time.Hour

	// DefaultTTLExtension is added to a post's expiry whenever it receives a
	// comment. Activity is a sign the post should not expire yet.
	DefaultTTLExtension = 8 * time.Hour

	// DefaultStoreTimeout bounds every repository call so a stalled store
	// fails the operation instead of holding the coordinator lock forever.
	DefaultStoreTimeout = 5 * time.Second
)

// Town is the slice of the town coordinator the annotation layer needs:
// request authentication and town-scope broadcast.
type Town interface {
	ID() string
	SessionByToken(token string) (*town.Session, error)
	Broadcast(ev town.Event)
}

// Coordinator is the ownership-gated mutation pipeline for one town's posts
// and comments. Every operation authenticates its session token before
// touching the store, and broadcasts only after the store write succeeds, so
// a rejected or failed mutation never emits a partial event.
type Coordinator struct {
	mu sync.Mutex

	town  Town
	store Store

	// postBuses holds the post-scope listener buses, keyed by post id.
	// Comment updates fan out here rather than town-wide.
	postBuses map[string]*town.ListenerBus

	postTTL      time.Duration
	ttlExtension time.Duration
	storeTimeout time.Duration
}

// NewCoordinator attaches an annotation pipeline to a town.
func NewCoordinator(t Town, store Store, opts ...CoordinatorOpt) *Coordinator {
	c := &Coordinator{
		town:         t,
		store:        store,
		postBuses:    make(map[string]*town.ListenerBus),
		postTTL:      DefaultPostTTL,
		ttlExtension: DefaultTTLExtension,
		storeTimeout: DefaultStoreTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CreatePost validates and persists a new post owned by the session's
// player, then broadcasts onPostCreate town-wide.
func (c *Coordinator) CreatePost(ctx context.Context, token string, p *Post) (*Post, error) {
	s, err := c.town.SessionByToken(token)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Title) == "" {
		return nil, fmt.Errorf("%w: post title must not be empty", town.ErrInvalidInput)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()

	existing, err := c.getAllPosts(ctx)
	if err != nil {
		return nil, err
	}
	for _, other := range existing {
		if other.IsVisible && !other.Expired(now) && other.Coordinate == p.Coordinate {
			return nil, fmt.Errorf("%w: post %s is already at (%g, %g)",
				town.ErrPostCollision, other.ID, p.Coordinate.X, p.Coordinate.Y)
		}
	}

	stored := &Post{
		ID:         uuid.NewString(),
		TownID:     c.town.ID(),
		Title:      p.Title,
		Content:    p.Content,
		OwnerID:    s.Player.ID,
		IsVisible:  p.IsVisible,
		Coordinate: p.Coordinate,
		Skin:       p.Skin,
		ExpiresAt:  now.Add(c.postTTL),
		File:       p.File,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	sctx, cancel := c.storeContext(ctx)
	defer cancel()
	if err := c.store.CreatePost(sctx, stored); err != nil {
		return nil, storeFailure("creating post", err)
	}

	c.town.Broadcast(town.Event{Kind: town.EventPostCreate, Payload: stored})
	return stored, nil
}

// GetPost returns a single post. Expired posts read as not found.
func (c *Coordinator) GetPost(ctx context.Context, token, id string) (*Post, error) {
	if _, err := c.town.SessionByToken(token); err != nil {
		return nil, err
	}
	return c.getPost(ctx, id)
}

// GetAllPostsInTown returns every unexpired post in the town.
func (c *Coordinator) GetAllPostsInTown(ctx context.Context, token string) ([]*Post, error) {
	if _, err := c.town.SessionByToken(token); err != nil {
		return nil, err
	}

	posts, err := c.getAllPosts(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	live := make([]*Post, 0, len(posts))
	for _, p := range posts {
		if !p.Expired(now) {
			live = append(live, p)
		}
	}
	return live, nil
}

// UpdatePost merges the patch into the post if the session owns it, then
// broadcasts onPostUpdate.
func (c *Coordinator) UpdatePost(ctx context.Context, token, id string, patch PostPatch) (*Post, error) {
	s, err := c.town.SessionByToken(token)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	post, err := c.getPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if post.OwnerID != s.Player.ID {
		return nil, fmt.Errorf("%w: post %s belongs to another player", town.ErrForbidden, id)
	}

	post.apply(patch)
	post.UpdatedAt = time.Now().UTC()

	sctx, cancel := c.storeContext(ctx)
	defer cancel()
	if err := c.store.UpdatePost(sctx, post); err != nil {
		return nil, storeFailure("updating post", err)
	}

	c.town.Broadcast(town.Event{Kind: town.EventPostUpdate, Payload: post})
	return post, nil
}

// DeletePost removes the post and, in one bulk store operation, every
// comment rooted at it, then broadcasts onPostDelete.
func (c *Coordinator) DeletePost(ctx context.Context, token, id string) error {
	s, err := c.town.SessionByToken(token)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	post, err := c.getPost(ctx, id)
	if err != nil {
		return err
	}
	if post.OwnerID != s.Player.ID {
		return fmt.Errorf("%w: post %s belongs to another player", town.ErrForbidden, id)
	}

	return c.deletePostLocked(ctx, post)
}

// deletePostLocked performs the cascade for an already-authorized delete.
// Caller must hold c.mu.
func (c *Coordinator) deletePostLocked(ctx context.Context, post *Post) error {
	sctx, cancel := c.storeContext(ctx)
	defer cancel()

	if err := c.store.DeletePost(sctx, post.ID); err != nil {
		return storeFailure("deleting post", err)
	}
	if err := c.store.DeleteCommentsUnderPost(sctx, post.ID); err != nil {
		return storeFailure("deleting comments under post", err)
	}
	if post.File != nil {
		// The post is already gone; a stale blob is recoverable, so log
		// instead of failing the cascade.
		if err := c.store.DeleteFile(sctx, post.ID); err != nil {
			slog.Warn("deleting post attachment", "post", post.ID, "error", err)
		}
	}

	delete(c.postBuses, post.ID)
	c.town.Broadcast(town.Event{Kind: town.EventPostDelete, Payload: post})
	return nil
}

// CreateComment persists a new comment, links it under its parent (the post
// for top-level comments, the parent comment otherwise), extends the post's
// time-to-live, and broadcasts the rebuilt comment tree to the post's
// subscribers.
func (c *Coordinator) CreateComment(ctx context.Context, token string, cm *Comment) (*Comment, error) {
	s, err := c.town.SessionByToken(token)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cm.Content) == "" {
		return nil, fmt.Errorf("%w: comment content must not be empty", town.ErrInvalidInput)
	}
	if cm.RootPostID == "" {
		return nil, fmt.Errorf("%w: comment must reference a post", town.ErrInvalidInput)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	post, err := c.getPost(ctx, cm.RootPostID)
	if err != nil {
		return nil, err
	}

	sctx, cancel := c.storeContext(ctx)
	defer cancel()

	if cm.ParentCommentID != "" {
		parent, err := c.store.GetComment(sctx, cm.ParentCommentID)
		if err != nil {
			return nil, fmt.Errorf("%w: parent comment %s", town.ErrInvalidInput, cm.ParentCommentID)
		}
		if parent.RootPostID != cm.RootPostID {
			return nil, fmt.Errorf("%w: parent comment belongs to another post", town.ErrInvalidInput)
		}
	}

	now := time.Now().UTC()
	stored := &Comment{
		ID:              uuid.NewString(),
		RootPostID:      cm.RootPostID,
		ParentCommentID: cm.ParentCommentID,
		OwnerID:         s.Player.ID,
		Content:         cm.Content,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := c.store.CreateComment(sctx, stored); err != nil {
		return nil, storeFailure("creating comment", err)
	}
	if stored.ParentCommentID == "" {
		err = c.store.LinkCommentToPost(sctx, post.ID, stored.ID)
	} else {
		err = c.store.LinkCommentToParent(sctx, stored.ParentCommentID, stored.ID)
	}
	if err != nil {
		return nil, storeFailure("linking comment", err)
	}

	// Re-read the post so the expiry update carries the fresh link state.
	post, err = c.getPost(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	post.ExpiresAt = post.ExpiresAt.Add(c.ttlExtension)
	post.UpdatedAt = now
	if err := c.store.UpdatePost(sctx, post); err != nil {
		return nil, storeFailure("extending post expiry", err)
	}

	c.broadcastTreeLocked(ctx, post)
	return stored, nil
}

// UpdateComment edits a comment's content if the session owns it.
func (c *Coordinator) UpdateComment(ctx context.Context, token, id string, patch CommentPatch) (*Comment, error) {
	s, err := c.town.SessionByToken(token)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cm, err := c.getComment(ctx, id)
	if err != nil {
		return nil, err
	}
	if cm.OwnerID != s.Player.ID {
		return nil, fmt.Errorf("%w: comment %s belongs to another player", town.ErrForbidden, id)
	}
	if cm.IsDeleted {
		return nil, fmt.Errorf("%w: comment %s is deleted", town.ErrInvalidInput, id)
	}

	cm.apply(patch)
	cm.UpdatedAt = time.Now().UTC()

	sctx, cancel := c.storeContext(ctx)
	defer cancel()
	if err := c.store.UpdateComment(sctx, cm); err != nil {
		return nil, storeFailure("updating comment", err)
	}

	c.broadcastTreeForPost(ctx, cm.RootPostID)
	return cm, nil
}

// DeleteComment soft-deletes: the content is discarded and the node becomes
// a tombstone, but it stays in the tree so replies keep a valid parent.
func (c *Coordinator) DeleteComment(ctx context.Context, token, id string) error {
	s, err := c.town.SessionByToken(token)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cm, err := c.getComment(ctx, id)
	if err != nil {
		return err
	}
	if cm.OwnerID != s.Player.ID {
		return fmt.Errorf("%w: comment %s belongs to another player", town.ErrForbidden, id)
	}

	sctx, cancel := c.storeContext(ctx)
	defer cancel()
	if err := c.store.DeleteComment(sctx, id); err != nil {
		return storeFailure("deleting comment", err)
	}

	c.broadcastTreeForPost(ctx, cm.RootPostID)
	return nil
}

// GetComment returns a single comment.
func (c *Coordinator) GetComment(ctx context.Context, token, id string) (*Comment, error) {
	if _, err := c.town.SessionByToken(token); err != nil {
		return nil, err
	}
	return c.getComment(ctx, id)
}

// CommentTree returns the fully materialized nested tree for a post.
func (c *Coordinator) CommentTree(ctx context.Context, token, postID string) (*CommentTree, error) {
	if _, err := c.town.SessionByToken(token); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	post, err := c.getPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	return c.assembleTree(ctx, post)
}

// PutFile attaches a file to a post if the session owns it, replacing any
// existing attachment, and broadcasts the updated post.
func (c *Coordinator) PutFile(ctx context.Context, token, postID string, fd FileDescriptor, data []byte) error {
	s, err := c.town.SessionByToken(token)
	if err != nil {
		return err
	}
	if strings.TrimSpace(fd.Name) == "" {
		return fmt.Errorf("%w: file name must be set", town.ErrInvalidInput)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: file is empty", town.ErrInvalidInput)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	post, err := c.getPost(ctx, postID)
	if err != nil {
		return err
	}
	if post.OwnerID != s.Player.ID {
		return fmt.Errorf("%w: post %s belongs to another player", town.ErrForbidden, postID)
	}

	sctx, cancel := c.storeContext(ctx)
	defer cancel()
	if err := c.store.PutFile(sctx, postID, data); err != nil {
		return storeFailure("writing file", err)
	}
	post.File = &fd
	post.UpdatedAt = time.Now().UTC()
	if err := c.store.UpdatePost(sctx, post); err != nil {
		return storeFailure("updating post", err)
	}

	c.town.Broadcast(town.Event{Kind: town.EventPostUpdate, Payload: post})
	return nil
}

// GetFile returns the bytes and descriptor of a post's attachment.
func (c *Coordinator) GetFile(ctx context.Context, token, postID string) ([]byte, *FileDescriptor, error) {
	if _, err := c.town.SessionByToken(token); err != nil {
		return nil, nil, err
	}

	post, err := c.getPost(ctx, postID)
	if err != nil {
		return nil, nil, err
	}
	if post.File == nil {
		return nil, nil, fmt.Errorf("%w: post %s has no attachment", town.ErrNotFound, postID)
	}

	sctx, cancel := c.storeContext(ctx)
	defer cancel()
	data, err := c.store.GetFile(sctx, postID)
	if err != nil {
		return nil, nil, storeFailure("reading file", err)
	}
	return data, post.File, nil
}

// DeleteFile removes a post's attachment if the session owns the post, and
// broadcasts the updated post.
func (c *Coordinator) DeleteFile(ctx context.Context, token, postID string) error {
	s, err := c.town.SessionByToken(token)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	post, err := c.getPost(ctx, postID)
	if err != nil {
		return err
	}
	if post.OwnerID != s.Player.ID {
		return fmt.Errorf("%w: post %s belongs to another player", town.ErrForbidden, postID)
	}
	if post.File == nil {
		return fmt.Errorf("%w: post %s has no attachment", town.ErrNotFound, postID)
	}

	sctx, cancel := c.storeContext(ctx)
	defer cancel()
	if err := c.store.DeleteFile(sctx, postID); err != nil {
		return storeFailure("deleting file", err)
	}
	post.File = nil
	post.UpdatedAt = time.Now().UTC()
	if err := c.store.UpdatePost(sctx, post); err != nil {
		return storeFailure("updating post", err)
	}

	c.town.Broadcast(town.Event{Kind: town.EventPostUpdate, Payload: post})
	return nil
}

// SubscribeToPost registers a post-scope listener for commentUpdate events.
func (c *Coordinator) SubscribeToPost(postID string, l town.Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bus, ok := c.postBuses[postID]
	if !ok {
		bus = town.NewListenerBus()
		c.postBuses[postID] = bus
	}
	bus.Register(l)
}

// UnsubscribeFromPost removes a post-scope listener.
func (c *Coordinator) UnsubscribeFromPost(postID, listenerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if bus, ok := c.postBuses[postID]; ok {
		bus.Remove(listenerID)
	}
}

// RemoveListener drops the listener from every post bus, for use when its
// transport channel closes.
func (c *Coordinator) RemoveListener(listenerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, bus := range c.postBuses {
		bus.Remove(listenerID)
	}
}

// SweepExpired cascades deletion of every post past its time-to-live,
// broadcasting onPostDelete for each. It returns the number of posts swept.
func (c *Coordinator) SweepExpired(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	posts, err := c.getAllPosts(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	swept := 0
	for _, p := range posts {
		if !p.Expired(now) {
			continue
		}
		if err := c.deletePostLocked(ctx, p); err != nil {
			slog.Warn("sweeping expired post", "post", p.ID, "error", err)
			continue
		}
		swept++
	}
	return swept, nil
}

// broadcastTreeForPost rebuilds the post's tree and broadcasts it; used
// where the post entity is not already loaded. Caller must hold c.mu.
func (c *Coordinator) broadcastTreeForPost(ctx context.Context, postID string) {
	post, err := c.getPost(ctx, postID)
	if err != nil {
		slog.Warn("loading post for comment broadcast", "post", postID, "error", err)
		return
	}
	c.broadcastTreeLocked(ctx, post)
}

// broadcastTreeLocked delivers the rebuilt tree to the post's subscribers.
// An assembly failure aborts only the broadcast, never the mutation that
// triggered it. Caller must hold c.mu.
func (c *Coordinator) broadcastTreeLocked(ctx context.Context, post *Post) {
	bus, ok := c.postBuses[post.ID]
	if !ok || bus.Len() == 0 {
		return
	}

	tree, err := c.assembleTree(ctx, post)
	if err != nil {
		slog.Error("assembling comment tree for broadcast", "post", post.ID, "error", err)
		return
	}
	bus.Broadcast(town.Event{Kind: town.EventCommentUpdate, Payload: tree})
}

func (c *Coordinator) getPost(ctx context.Context, id string) (*Post, error) {
	sctx, cancel := c.storeContext(ctx)
	defer cancel()

	post, err := c.store.GetPost(sctx, id)
	if err != nil {
		if errors.Is(err, town.ErrNotFound) {
			return nil, err
		}
		return nil, storeFailure("reading post", err)
	}
	if post.Expired(time.Now().UTC()) {
		return nil, fmt.Errorf("%w: post %s", town.ErrNotFound, id)
	}
	return post, nil
}

func (c *Coordinator) getComment(ctx context.Context, id string) (*Comment, error) {
	sctx, cancel := c.storeContext(ctx)
	defer cancel()

	cm, err := c.store.GetComment(sctx, id)
	if err != nil {
		if errors.Is(err, town.ErrNotFound) {
			return nil, err
		}
		return nil, storeFailure("reading comment", err)
	}
	return cm, nil
}

func (c *Coordinator) getAllPosts(ctx context.Context) ([]*Post, error) {
	sctx, cancel := c.storeContext(ctx)
	defer cancel()

	posts, err := c.store.GetAllPostsInTown(sctx, c.town.ID())
	if err != nil {
		return nil, storeFailure("listing posts", err)
	}
	return posts, nil
}

func (c *Coordinator) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.storeTimeout)
}

func storeFailure(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, town.ErrStorageUnavailable, err)
}
