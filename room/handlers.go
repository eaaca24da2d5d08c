package room

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Nebulaz7/veil/domain"
	"github.com/Nebulaz7/veil/event"
)

var (
	ErrRoomNotFoundStr         = "room-not-found"
	ErrPollNotFoundStr         = "poll-not-found"
	ErrOptionNotFoundStr       = "option-not-found"
	ErrInvalidRequestFormatStr = "bad-request-format"
	ErrUnknownStr              = "unknown-error"
)

// RoomStore is the REST surface's persistence dependency.
type RoomStore interface {
	CreateRoom(ctx context.Context, title, hostId string) (domain.Room, error)
	RoomById(ctx context.Context, id string) (domain.Room, error)
	ActivePolls(ctx context.Context, roomId string) ([]event.Poll, error)
	VoteByIndex(ctx context.Context, pollId, userId string, optionIndex int) (roomId string, updated event.Poll, err error)
}

type RoomHandler struct {
	hub   *Hub
	store RoomStore
}

func NewRoomHandler(hub *Hub, store RoomStore) *RoomHandler {
	return &RoomHandler{hub: hub, store: store}
}

// SocketHandler upgrades to a websocket and registers the connection with
// the room actor before the first frame is read, so a questionsList
// response can never be delivered before its listener exists.
func (h *RoomHandler) SocketHandler(ctx *gin.Context) {
	roomId := ctx.Param("id")

	userId := ctx.Query("userId")
	if userId == "" {
		userId = "anonymous"
	}
	role := ctx.Query("role")
	if role != "moderator" {
		role = "user"
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true }, // origin is filtered by server middleware
	}
	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("room", roomId).Msg("ws upgrade failed")
		return
	}

	socketConn := NewWebsocketConnection(conn)
	client := NewClient(userId, role, socketConn)

	if err := h.hub.Join(ctx.Request.Context(), roomId, client); err != nil {
		switch {
		case errors.Is(err, ErrRoomNotFound):
			socketConn.Close(ErrRoomNotFoundStr)
		default:
			log.Error().Err(err).Str("room", roomId).Msg("joining room")
			socketConn.Close(ErrUnknownStr)
		}
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

func (h *RoomHandler) CreateRoomHandler(ctx *gin.Context) {
	hostId := ctx.GetString("id")
	if hostId == "" {
		ctx.String(http.StatusUnauthorized, "unauthenticated")
		ctx.Abort()
		return
	}

	var body struct {
		Title string `json:"title"`
	}
	if err := ctx.ShouldBindJSON(&body); err != nil {
		ctx.String(http.StatusBadRequest, ErrInvalidRequestFormatStr)
		ctx.Abort()
		return
	}
	title := strings.TrimSpace(body.Title)
	if title == "" {
		ctx.String(http.StatusBadRequest, "title is required")
		ctx.Abort()
		return
	}

	room, err := h.store.CreateRoom(ctx.Request.Context(), title, hostId)
	if err != nil {
		log.Error().Err(err).Msg("creating room")
		ctx.String(http.StatusInternalServerError, ErrUnknownStr)
		ctx.Abort()
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"id":        room.Id,
		"title":     room.Title,
		"hostId":    room.HostId,
		"createdAt": room.CreatedAt,
	})
}

func (h *RoomHandler) GetRoomHandler(ctx *gin.Context) {
	room, err := h.store.RoomById(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRoomNotFound):
			ctx.String(http.StatusNotFound, ErrRoomNotFoundStr)
		default:
			log.Error().Err(err).Str("room", ctx.Param("id")).Msg("fetching room")
			ctx.String(http.StatusInternalServerError, ErrUnknownStr)
		}
		ctx.Abort()
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"id":        room.Id,
		"title":     room.Title,
		"hostId":    room.HostId,
		"createdAt": room.CreatedAt,
	})
}

// GetRoomPollsHandler prefers the live actor's state and falls back to
// storage for rooms with no connected participants.
func (h *RoomHandler) GetRoomPollsHandler(ctx *gin.Context) {
	roomId := ctx.Param("id")

	if polls, live := h.hub.LivePolls(ctx.Request.Context(), roomId); live {
		ctx.JSON(http.StatusOK, polls)
		return
	}

	polls, err := h.store.ActivePolls(ctx.Request.Context(), roomId)
	if err != nil {
		log.Error().Err(err).Str("room", roomId).Msg("fetching polls")
		ctx.String(http.StatusInternalServerError, ErrUnknownStr)
		ctx.Abort()
		return
	}
	ctx.JSON(http.StatusOK, polls)
}

func (h *RoomHandler) GetParticipantCountHandler(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, h.hub.ParticipantCount(ctx.Request.Context(), ctx.Param("id")))
}

// VotePollHandler is the REST vote path: the database arbitrates the vote,
// then the updated poll is pushed into the live room.
func (h *RoomHandler) VotePollHandler(ctx *gin.Context) {
	userId := ctx.GetString("id")
	if userId == "" {
		ctx.String(http.StatusUnauthorized, "unauthenticated")
		ctx.Abort()
		return
	}

	var body struct {
		OptionIndex *int `json:"optionIndex"`
	}
	if err := ctx.ShouldBindJSON(&body); err != nil || body.OptionIndex == nil {
		ctx.String(http.StatusBadRequest, ErrInvalidRequestFormatStr)
		ctx.Abort()
		return
	}

	roomId, updated, err := h.store.VoteByIndex(ctx.Request.Context(), ctx.Param("id"), userId, *body.OptionIndex)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrPollNotFound):
			ctx.String(http.StatusNotFound, ErrPollNotFoundStr)
		case errors.Is(err, domain.ErrOptionNotFound):
			ctx.String(http.StatusNotFound, ErrOptionNotFoundStr)
		default:
			log.Error().Err(err).Str("poll", ctx.Param("id")).Msg("recording vote")
			ctx.String(http.StatusInternalServerError, ErrUnknownStr)
		}
		ctx.Abort()
		return
	}

	h.hub.BroadcastPollUpdate(ctx.Request.Context(), roomId, updated)
	ctx.JSON(http.StatusOK, updated)
}
