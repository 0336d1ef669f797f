package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pixil98/go-log"
	"github.com/pixil98/go-town/internal/annotation"
	"github.com/pixil98/go-town/internal/messaging"
	"github.com/pixil98/go-town/internal/registry"
	"github.com/pixil98/go-town/internal/town"
	"github.com/sirupsen/logrus"
)

// writeBuffer is how many pending frames a slow client may accumulate
// before events are dropped for it.
const writeBuffer = 64

// wsConn is the slice of *websocket.Conn the client drives.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// broker is the slice of the messaging server the client uses.
type broker interface {
	messaging.Publisher
	Subscribe(subject string, handler func(data []byte)) (func(), error)
}

// client owns one websocket connection for the lifetime of a session. The
// read loop dispatches requests; a writer goroutine drains the writes
// channel, fed by responses and by the session's NATS subject.
type client struct {
	conn   wsConn
	twn    *registry.Town
	broker broker

	session *town.Session

	writes    chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

func newClient(conn wsConn, twn *registry.Town, b broker) *client {
	return &client{
		conn:   conn,
		twn:    twn,
		broker: b,
		writes: make(chan []byte, writeBuffer),
		done:   make(chan struct{}),
	}
}

// run joins the player to the town, then serves the connection until it
// drops or the town closes. Teardown turns the transport closure into a
// game-state disconnect.
func (c *client) run(ctx context.Context, userName string) error {
	logger := log.GetLogger(ctx)
	coord := c.twn.Coordinator

	player := town.NewPlayer(userName)
	session, err := coord.AddPlayer(player, wsChannel{c.conn})
	if err != nil {
		c.writeNow(errResponse("", err))
		return c.conn.Close()
	}
	c.session = session
	token := session.Token

	// Pump the session's NATS subject into the writer. The subscription is
	// created before the bus listener so no event can slip between.
	unsub, err := c.broker.Subscribe(messaging.SessionSubject(token), c.enqueue)
	if err != nil {
		coord.DestroySession(session)
		c.conn.Close()
		return fmt.Errorf("subscribing session subject: %w", err)
	}

	defer func() {
		unsub()
		coord.HandleChannelClosed(token)
		if c.twn.Annotations != nil {
			c.twn.Annotations.RemoveListener(token)
		}
		c.closeOnce.Do(func() { close(c.done) })
	}()

	coord.AddListener(messaging.NewSessionPublisher(token, c.broker))

	go c.writeLoop(logger)

	c.respond(okResponse("", &JoinedPayload{
		Token:    token,
		PlayerID: player.ID,
		TownID:   coord.ID(),
		Players:  coord.Players(),
		Areas:    coord.Areas(),
	}))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return fmt.Errorf("reading websocket: %w", err)
			}
			return nil
		}
		c.dispatch(ctx, data)
	}
}

// enqueue hands an already-serialized frame to the writer, dropping it if
// the client cannot keep up. Blocking here would stall the NATS callback.
func (c *client) enqueue(data []byte) {
	select {
	case c.writes <- data:
	case <-c.done:
	default:
		slog.Warn("dropping frame for slow client", "session", c.session.Token)
	}
}

func (c *client) writeLoop(logger logrus.FieldLogger) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.writes:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Warnf("writing to websocket: %s", err)
				return
			}
		}
	}
}

func (c *client) respond(resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	c.enqueue(data)
}

// writeNow writes synchronously, for use before the writer goroutine exists.
func (c *client) writeNow(resp *Response) {
	if data, err := json.Marshal(resp); err == nil {
		_ = c.conn.WriteMessage(websocket.TextMessage, data)
	}
}

func (c *client) dispatch(ctx context.Context, data []byte) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		c.respond(errResponse("", fmt.Errorf("%w: malformed request", town.ErrInvalidInput)))
		return
	}

	resp := c.handle(ctx, &req)
	if resp != nil {
		resp.Ref = req.Ref
		c.respond(resp)
	}
}

func (c *client) handle(ctx context.Context, req *Request) *Response {
	switch req.Type {
	case ReqMove:
		return c.handleMove(req)
	case ReqAreaCreate:
		return c.handleAreaCreate(req)
	case ReqPostSubscribe, ReqPostUnsubscribe:
		return c.handleSubscription(req)
	case ReqPostCreate, ReqPostGet, ReqPostList, ReqPostUpdate, ReqPostDelete,
		ReqCommentCreate, ReqCommentGet, ReqCommentUpdate, ReqCommentDelete,
		ReqCommentTree, ReqFilePut, ReqFileGet, ReqFileDelete:
		return c.handleAnnotation(ctx, req)
	default:
		return errResponse(req.Ref, fmt.Errorf("%w: unknown request type %q", town.ErrInvalidInput, req.Type))
	}
}

func (c *client) handleMove(req *Request) *Response {
	var p MovePayload
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		return errResponse(req.Ref, fmt.Errorf("%w: malformed location", town.ErrInvalidInput))
	}

	s, err := c.twn.Coordinator.SessionByToken(req.Token)
	if err != nil {
		return errResponse(req.Ref, err)
	}
	c.twn.Coordinator.UpdatePlayerLocation(s.Player, p.Location)
	return okResponse(req.Ref, nil)
}

func (c *client) handleAreaCreate(req *Request) *Response {
	var p AreaCreatePayload
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		return errResponse(req.Ref, fmt.Errorf("%w: malformed conversation area", town.ErrInvalidInput))
	}

	if _, err := c.twn.Coordinator.SessionByToken(req.Token); err != nil {
		return errResponse(req.Ref, err)
	}
	area := p.Area
	if err := c.twn.Coordinator.AddConversationArea(&area); err != nil {
		return errResponse(req.Ref, err)
	}
	return okResponse(req.Ref, &area)
}

func (c *client) handleSubscription(req *Request) *Response {
	if c.twn.Annotations == nil {
		return errResponse(req.Ref, fmt.Errorf("%w: town has no annotation support", town.ErrNotFound))
	}
	if _, err := c.twn.Coordinator.SessionByToken(req.Token); err != nil {
		return errResponse(req.Ref, err)
	}

	var p PostIDPayload
	if err := json.Unmarshal(req.Payload, &p); err != nil || p.PostID == "" {
		return errResponse(req.Ref, fmt.Errorf("%w: postId is required", town.ErrInvalidInput))
	}

	if req.Type == ReqPostSubscribe {
		c.twn.Annotations.SubscribeToPost(p.PostID, messaging.NewSessionPublisher(req.Token, c.broker))
	} else {
		c.twn.Annotations.UnsubscribeFromPost(p.PostID, req.Token)
	}
	return okResponse(req.Ref, nil)
}

func (c *client) handleAnnotation(ctx context.Context, req *Request) *Response {
	ann := c.twn.Annotations
	if ann == nil {
		return errResponse(req.Ref, fmt.Errorf("%w: town has no annotation support", town.ErrNotFound))
	}

	switch req.Type {
	case ReqPostCreate:
		var p PostCreatePayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errResponse(req.Ref, fmt.Errorf("%w: malformed post", town.ErrInvalidInput))
		}
		post, err := ann.CreatePost(ctx, req.Token, &p.Post)
		if err != nil {
			return errResponse(req.Ref, err)
		}
		return okResponse(req.Ref, post)

	case ReqPostGet:
		var p PostIDPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errResponse(req.Ref, fmt.Errorf("%w: postId is required", town.ErrInvalidInput))
		}
		post, err := ann.GetPost(ctx, req.Token, p.PostID)
		if err != nil {
			return errResponse(req.Ref, err)
		}
		return okResponse(req.Ref, post)

	case ReqPostList:
		posts, err := ann.GetAllPostsInTown(ctx, req.Token)
		if err != nil {
			return errResponse(req.Ref, err)
		}
		return okResponse(req.Ref, posts)

	case ReqPostUpdate:
		var p PostUpdatePayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errResponse(req.Ref, fmt.Errorf("%w: malformed patch", town.ErrInvalidInput))
		}
		post, err := ann.UpdatePost(ctx, req.Token, p.PostID, p.Patch)
		if err != nil {
			return errResponse(req.Ref, err)
		}
		return okResponse(req.Ref, post)

	case ReqPostDelete:
		var p PostIDPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errResponse(req.Ref, fmt.Errorf("%w: postId is required", town.ErrInvalidInput))
		}
		if err := ann.DeletePost(ctx, req.Token, p.PostID); err != nil {
			return errResponse(req.Ref, err)
		}
		return okResponse(req.Ref, nil)

	case ReqCommentCreate:
		var p CommentCreatePayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errResponse(req.Ref, fmt.Errorf("%w: malformed comment", town.ErrInvalidInput))
		}
		cm, err := ann.CreateComment(ctx, req.Token, &p.Comment)
		if err != nil {
			return errResponse(req.Ref, err)
		}
		return okResponse(req.Ref, cm)

	case ReqCommentGet:
		var p CommentIDPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errResponse(req.Ref, fmt.Errorf("%w: commentId is required", town.ErrInvalidInput))
		}
		cm, err := ann.GetComment(ctx, req.Token, p.CommentID)
		if err != nil {
			return errResponse(req.Ref, err)
		}
		return okResponse(req.Ref, cm)

	case ReqCommentUpdate:
		var p CommentUpdatePayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errResponse(req.Ref, fmt.Errorf("%w: malformed patch", town.ErrInvalidInput))
		}
		cm, err := ann.UpdateComment(ctx, req.Token, p.CommentID, p.Patch)
		if err != nil {
			return errResponse(req.Ref, err)
		}
		return okResponse(req.Ref, cm)

	case ReqCommentDelete:
		var p CommentIDPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errResponse(req.Ref, fmt.Errorf("%w: commentId is required", town.ErrInvalidInput))
		}
		if err := ann.DeleteComment(ctx, req.Token, p.CommentID); err != nil {
			return errResponse(req.Ref, err)
		}
		return okResponse(req.Ref, nil)

	case ReqCommentTree:
		var p PostIDPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errResponse(req.Ref, fmt.Errorf("%w: postId is required", town.ErrInvalidInput))
		}
		tree, err := ann.CommentTree(ctx, req.Token, p.PostID)
		if err != nil {
			return errResponse(req.Ref, err)
		}
		return okResponse(req.Ref, tree)

	case ReqFilePut:
		var p FilePayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errResponse(req.Ref, fmt.Errorf("%w: malformed file", town.ErrInvalidInput))
		}
		fd := annotation.FileDescriptor{Name: p.Name, ContentType: p.ContentType}
		if err := ann.PutFile(ctx, req.Token, p.PostID, fd, p.Data); err != nil {
			return errResponse(req.Ref, err)
		}
		return okResponse(req.Ref, nil)

	case ReqFileGet:
		var p PostIDPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errResponse(req.Ref, fmt.Errorf("%w: postId is required", town.ErrInvalidInput))
		}
		data, desc, err := ann.GetFile(ctx, req.Token, p.PostID)
		if err != nil {
			return errResponse(req.Ref, err)
		}
		return okResponse(req.Ref, &FilePayload{
			PostID:      p.PostID,
			Name:        desc.Name,
			ContentType: desc.ContentType,
			Data:        data,
		})

	case ReqFileDelete:
		var p PostIDPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errResponse(req.Ref, fmt.Errorf("%w: postId is required", town.ErrInvalidInput))
		}
		if err := ann.DeleteFile(ctx, req.Token, p.PostID); err != nil {
			return errResponse(req.Ref, err)
		}
		return okResponse(req.Ref, nil)
	}

	return errResponse(req.Ref, fmt.Errorf("%w: unknown request type %q", town.ErrInvalidInput, req.Type))
}

// wsChannel adapts a websocket connection to town.TransportChannel.
type wsChannel struct {
	conn wsConn
}

func (c wsChannel) Close() error {
	return c.conn.Close()
}
