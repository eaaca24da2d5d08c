package room

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/Nebulaz7/veil/event"
)

// recordingSession collects every frame written to it and blocks reads until
// closed, standing in for a connected websocket.
type recordingSession struct {
	mu       sync.Mutex
	frames   [][]byte
	pings    int
	closed   bool
	reason   string
	readGate chan struct{}
}

func newRecordingSession() *recordingSession {
	return &recordingSession{readGate: make(chan struct{})}
}

func (s *recordingSession) Close(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.reason = reason
	close(s.readGate)
}

func (s *recordingSession) Write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, data)
	return nil
}

func (s *recordingSession) Read() ([]byte, error) {
	<-s.readGate
	return nil, context.Canceled
}

func (s *recordingSession) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pings++
	return nil
}

func (s *recordingSession) pingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pings
}

func (s *recordingSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// received decodes every recorded frame carrying the given event name.
func (s *recordingSession) received(name string) []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var payloads []json.RawMessage
	for _, frame := range s.frames {
		env, err := event.Unmarshal(frame)
		if err != nil {
			continue
		}
		if env.Event == name {
			payloads = append(payloads, env.Data)
		}
	}
	return payloads
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) SaveQuestion(ctx context.Context, roomId string, q event.Question) error {
	args := m.Called(ctx, roomId, q)
	return args.Error(0)
}

func (m *MockStore) SaveReply(ctx context.Context, roomId, questionId string, r event.Reply) error {
	args := m.Called(ctx, roomId, questionId, r)
	return args.Error(0)
}

func (m *MockStore) SetUpvotes(ctx context.Context, questionId string, upvotedBy []string) error {
	args := m.Called(ctx, questionId, upvotedBy)
	return args.Error(0)
}

func (m *MockStore) SavePoll(ctx context.Context, roomId string, p event.Poll, expiresAt *time.Time) error {
	args := m.Called(ctx, roomId, p, expiresAt)
	return args.Error(0)
}

func (m *MockStore) SaveVote(ctx context.Context, pollId, userId, optionId string) error {
	args := m.Called(ctx, pollId, userId, optionId)
	return args.Error(0)
}

func (m *MockStore) MarkPollClosed(ctx context.Context, pollId string) error {
	args := m.Called(ctx, pollId)
	return args.Error(0)
}

func (m *MockStore) Questions(ctx context.Context, roomId string) ([]event.Question, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).([]event.Question), args.Error(1)
}

func (m *MockStore) ActivePolls(ctx context.Context, roomId string) ([]event.Poll, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).([]event.Poll), args.Error(1)
}

func (m *MockStore) PollVoters(ctx context.Context, pollId string) (map[string]string, error) {
	args := m.Called(ctx, pollId)
	return args.Get(0).(map[string]string), args.Error(1)
}

func (m *MockStore) PollExpiry(ctx context.Context, pollId string) (time.Time, error) {
	args := m.Called(ctx, pollId)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *MockStore) RoomExists(ctx context.Context, roomId string) (bool, error) {
	args := m.Called(ctx, roomId)
	return args.Bool(0), args.Error(1)
}

// permissiveStore accepts every write; for tests that exercise actor
// behavior rather than persistence.
func permissiveStore() *MockStore {
	store := new(MockStore)
	store.On("SaveQuestion", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	store.On("SaveReply", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	store.On("SetUpvotes", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	store.On("SavePoll", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	store.On("SaveVote", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	store.On("MarkPollClosed", mock.Anything, mock.Anything).Return(nil).Maybe()
	return store
}

type fakeTickerCreator struct {
	mu       sync.Mutex
	channels []chan time.Time
}

func (f *fakeTickerCreator) Create(time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan time.Time, 16)
	f.channels = append(f.channels, ch)
	return ch
}
