package listener

import (
	"encoding/json"
	"errors"

	"github.com/pixil98/go-town/internal/annotation"
	"github.com/pixil98/go-town/internal/town"
)

// Request is the envelope of every inbound websocket message. Ref is echoed
// back on the response so the client can correlate; Token is the session
// token issued at join.
type Request struct {
	Ref     string          `json:"ref,omitempty"`
	Type    string          `json:"type"`
	Token   string          `json:"token"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Request types.
const (
	ReqMove            = "playerMovement"
	ReqAreaCreate      = "conversationAreaCreate"
	ReqPostCreate      = "postCreate"
	ReqPostGet         = "postGet"
	ReqPostList        = "postList"
	ReqPostUpdate      = "postUpdate"
	ReqPostDelete      = "postDelete"
	ReqCommentCreate   = "commentCreate"
	ReqCommentGet      = "commentGet"
	ReqCommentUpdate   = "commentUpdate"
	ReqCommentDelete   = "commentDelete"
	ReqCommentTree     = "commentTreeGet"
	ReqPostSubscribe   = "postSubscribe"
	ReqPostUnsubscribe = "postUnsubscribe"
	ReqFilePut         = "filePut"
	ReqFileGet         = "fileGet"
	ReqFileDelete      = "fileDelete"
)

// Response is the envelope of every reply. Exactly one response is sent per
// request; events arrive separately as messaging.EventFrame.
type Response struct {
	Type    string `json:"type"`
	Ref     string `json:"ref,omitempty"`
	OK      bool   `json:"ok"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// JoinedPayload is returned for a successful join, carrying everything the
// client needs to render the current town state.
type JoinedPayload struct {
	Token    string                   `json:"sessionToken"`
	PlayerID string                   `json:"playerId"`
	TownID   string                   `json:"townId"`
	Players  []*town.Player           `json:"currentPlayers"`
	Areas    []*town.ConversationArea `json:"conversationAreas"`
}

type MovePayload struct {
	Location town.PlayerLocation `json:"location"`
}

type AreaCreatePayload struct {
	Area town.ConversationArea `json:"conversationArea"`
}

type PostCreatePayload struct {
	Post annotation.Post `json:"post"`
}

type PostIDPayload struct {
	PostID string `json:"postId"`
}

type PostUpdatePayload struct {
	PostID string               `json:"postId"`
	Patch  annotation.PostPatch `json:"patch"`
}

type CommentCreatePayload struct {
	Comment annotation.Comment `json:"comment"`
}

type CommentIDPayload struct {
	CommentID string `json:"commentId"`
}

type CommentUpdatePayload struct {
	CommentID string                  `json:"commentId"`
	Patch     annotation.CommentPatch `json:"patch"`
}

// FilePayload carries attachment bytes for filePut requests and fileGet
// responses; Data is base64-encoded on the wire.
type FilePayload struct {
	PostID      string `json:"postId"`
	Name        string `json:"filename"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

// errorCode maps the failure taxonomy to wire-level codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, town.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, town.ErrForbidden):
		return "forbidden"
	case errors.Is(err, town.ErrNotFound):
		return "notFound"
	case errors.Is(err, town.ErrPostCollision):
		return "postCollision"
	case errors.Is(err, town.ErrInvalidInput), errors.Is(err, town.ErrAreaExists):
		return "invalidInput"
	case errors.Is(err, town.ErrStorageUnavailable):
		return "storageUnavailable"
	case errors.Is(err, town.ErrDataIntegrity):
		return "dataIntegrity"
	case errors.Is(err, town.ErrTownClosed):
		return "townClosed"
	default:
		return "internal"
	}
}

func okResponse(ref string, payload any) *Response {
	return &Response{Type: "response", Ref: ref, OK: true, Payload: payload}
}

func errResponse(ref string, err error) *Response {
	return &Response{Type: "response", Ref: ref, OK: false, Code: errorCode(err), Error: err.Error()}
}
