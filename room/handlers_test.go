package room

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Nebulaz7/veil/domain"
	"github.com/Nebulaz7/veil/event"
)

type MockRoomStore struct {
	mock.Mock
}

func (m *MockRoomStore) CreateRoom(ctx context.Context, title, hostId string) (domain.Room, error) {
	args := m.Called(ctx, title, hostId)
	return args.Get(0).(domain.Room), args.Error(1)
}

func (m *MockRoomStore) RoomById(ctx context.Context, id string) (domain.Room, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Room), args.Error(1)
}

func (m *MockRoomStore) ActivePolls(ctx context.Context, roomId string) ([]event.Poll, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).([]event.Poll), args.Error(1)
}

func (m *MockRoomStore) VoteByIndex(ctx context.Context, pollId, userId string, optionIndex int) (string, event.Poll, error) {
	args := m.Called(ctx, pollId, userId, optionIndex)
	return args.String(0), args.Get(1).(event.Poll), args.Error(2)
}

func newHandlerRouter(t *testing.T, store RoomStore, authedUser string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h, _ := startHub(t, permissiveStore(), 0)
	handler := NewRoomHandler(h, store)

	router := gin.New()
	if authedUser != "" {
		router.Use(func(ctx *gin.Context) { ctx.Set("id", authedUser) })
	}
	router.POST("/rooms", handler.CreateRoomHandler)
	router.GET("/rooms/:id", handler.GetRoomHandler)
	router.GET("/rooms/:id/polls", handler.GetRoomPollsHandler)
	router.GET("/user/room/:id/no", handler.GetParticipantCountHandler)
	router.POST("/polls/:id/vote", handler.VotePollHandler)
	return router
}

func TestCreateRoomHandler(t *testing.T) {
	created := domain.Room{Id: "room-1", Title: "AMA", HostId: "host-1", CreatedAt: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}

	tests := []struct {
		name       string
		authedUser string
		body       string
		setup      func(store *MockRoomStore)
		wantStatus int
		wantBody   string
	}{
		{
			name:       "unauthenticated",
			body:       `{"title":"AMA"}`,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "malformed body",
			authedUser: "host-1",
			body:       `{"title":`,
			wantStatus: http.StatusBadRequest,
			wantBody:   ErrInvalidRequestFormatStr,
		},
		{
			name:       "blank title",
			authedUser: "host-1",
			body:       `{"title":"   "}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "created",
			authedUser: "host-1",
			body:       `{"title":"AMA"}`,
			setup: func(store *MockRoomStore) {
				store.On("CreateRoom", mock.Anything, "AMA", "host-1").Return(created, nil)
			},
			wantStatus: http.StatusCreated,
			wantBody:   `"id":"room-1"`,
		},
		{
			name:       "storage failure",
			authedUser: "host-1",
			body:       `{"title":"AMA"}`,
			setup: func(store *MockRoomStore) {
				store.On("CreateRoom", mock.Anything, "AMA", "host-1").Return(domain.Room{}, domain.UnexpectedDatabaseError)
			},
			wantStatus: http.StatusInternalServerError,
			wantBody:   ErrUnknownStr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockRoomStore)
			if tt.setup != nil {
				tt.setup(store)
			}
			router := newHandlerRouter(t, store, tt.authedUser)

			req := httptest.NewRequest(http.MethodPost, "/rooms", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)

			assert.Equal(t, tt.wantStatus, resp.Code)
			if tt.wantBody != "" {
				assert.Contains(t, resp.Body.String(), tt.wantBody)
			}
			store.AssertExpectations(t)
		})
	}
}

func TestGetRoomHandler(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(store *MockRoomStore)
		wantStatus int
		wantBody   string
	}{
		{
			name: "found",
			setup: func(store *MockRoomStore) {
				store.On("RoomById", mock.Anything, "room-1").Return(domain.Room{Id: "room-1", Title: "AMA", HostId: "host-1"}, nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   `"title":"AMA"`,
		},
		{
			name: "missing",
			setup: func(store *MockRoomStore) {
				store.On("RoomById", mock.Anything, "room-1").Return(domain.Room{}, domain.ErrRoomNotFound)
			},
			wantStatus: http.StatusNotFound,
			wantBody:   ErrRoomNotFoundStr,
		},
		{
			name: "storage failure",
			setup: func(store *MockRoomStore) {
				store.On("RoomById", mock.Anything, "room-1").Return(domain.Room{}, domain.UnexpectedDatabaseError)
			},
			wantStatus: http.StatusInternalServerError,
			wantBody:   ErrUnknownStr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockRoomStore)
			tt.setup(store)
			router := newHandlerRouter(t, store, "")

			req := httptest.NewRequest(http.MethodGet, "/rooms/room-1", nil)
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)

			assert.Equal(t, tt.wantStatus, resp.Code)
			assert.Contains(t, resp.Body.String(), tt.wantBody)
		})
	}
}

func TestGetRoomPollsHandlerStorageFallback(t *testing.T) {
	store := new(MockRoomStore)
	store.On("ActivePolls", mock.Anything, "room-1").Return([]event.Poll{
		{Id: "poll-1", Question: "stored", Options: []event.PollOption{{Id: "a", Text: "A"}}},
	}, nil)
	router := newHandlerRouter(t, store, "")

	req := httptest.NewRequest(http.MethodGet, "/rooms/room-1/polls", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"id":"poll-1"`)
	store.AssertCalled(t, "ActivePolls", mock.Anything, "room-1")
}

func TestGetParticipantCountHandler(t *testing.T) {
	router := newHandlerRouter(t, new(MockRoomStore), "")

	req := httptest.NewRequest(http.MethodGet, "/user/room/room-1/no", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "0", resp.Body.String(), "no live room means zero participants")
}

func TestVotePollHandler(t *testing.T) {
	updated := event.Poll{
		Id:       "poll-1",
		Question: "Lunch?",
		Options:  []event.PollOption{{Id: "a", Text: "Pizza", Votes: 1, Percentage: 100}},
	}
	updated.Recompute()

	tests := []struct {
		name       string
		authedUser string
		body       string
		setup      func(store *MockRoomStore)
		wantStatus int
		wantBody   string
	}{
		{
			name:       "unauthenticated",
			body:       `{"optionIndex":0}`,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing option index",
			authedUser: "user-1",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   ErrInvalidRequestFormatStr,
		},
		{
			name:       "poll not found",
			authedUser: "user-1",
			body:       `{"optionIndex":0}`,
			setup: func(store *MockRoomStore) {
				store.On("VoteByIndex", mock.Anything, "poll-1", "user-1", 0).Return("", event.Poll{}, domain.ErrPollNotFound)
			},
			wantStatus: http.StatusNotFound,
			wantBody:   ErrPollNotFoundStr,
		},
		{
			name:       "option not found",
			authedUser: "user-1",
			body:       `{"optionIndex":9}`,
			setup: func(store *MockRoomStore) {
				store.On("VoteByIndex", mock.Anything, "poll-1", "user-1", 9).Return("", event.Poll{}, domain.ErrOptionNotFound)
			},
			wantStatus: http.StatusNotFound,
			wantBody:   ErrOptionNotFoundStr,
		},
		{
			name:       "recorded",
			authedUser: "user-1",
			body:       `{"optionIndex":0}`,
			setup: func(store *MockRoomStore) {
				store.On("VoteByIndex", mock.Anything, "poll-1", "user-1", 0).Return("room-1", updated, nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   `"totalVotes":1`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockRoomStore)
			if tt.setup != nil {
				tt.setup(store)
			}
			router := newHandlerRouter(t, store, tt.authedUser)

			req := httptest.NewRequest(http.MethodPost, "/polls/poll-1/vote", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)

			assert.Equal(t, tt.wantStatus, resp.Code)
			if tt.wantBody != "" {
				assert.Contains(t, resp.Body.String(), tt.wantBody)
			}
			store.AssertExpectations(t)
		})
	}
}
