package room

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/Nebulaz7/veil/event"
)

// NetworkSession is the transport a client talks through. Satisfied by the
// gorilla adapter in websocket.go and by mocks in tests.
type NetworkSession interface {
	Close(reason string)
	Write(data []byte) error
	Read() ([]byte, error)
	Ping() error
}

// Store is the persistence surface the realtime layer writes through to.
type Store interface {
	SaveQuestion(ctx context.Context, roomId string, q event.Question) error
	SaveReply(ctx context.Context, roomId, questionId string, r event.Reply) error
	SetUpvotes(ctx context.Context, questionId string, upvotedBy []string) error
	SavePoll(ctx context.Context, roomId string, p event.Poll, expiresAt *time.Time) error
	SaveVote(ctx context.Context, pollId, userId, optionId string) error
	MarkPollClosed(ctx context.Context, pollId string) error
	Questions(ctx context.Context, roomId string) ([]event.Question, error)
	ActivePolls(ctx context.Context, roomId string) ([]event.Poll, error)
	// PollVoters returns the option each participant currently holds on
	// the poll.
	PollVoters(ctx context.Context, pollId string) (map[string]string, error)
	// PollExpiry returns the poll's stored expiry instant, zero when the
	// poll never expires.
	PollExpiry(ctx context.Context, pollId string) (time.Time, error)
	RoomExists(ctx context.Context, roomId string) (bool, error)
}

// PollSeed restores a stored poll, its expiry and its recorded voters into
// a rematerializing room.
type PollSeed struct {
	Poll      event.Poll
	ExpiresAt time.Time
	Voters    map[string]string
}

// Parent is the slice of the hub a room needs.
type Parent interface {
	RemoveRoom(roomId string)
}

type Client struct {
	id       string
	role     string
	limiter  *rate.Limiter
	socket   NetworkSession
	outbox   chan []byte
	pingChan chan struct{}
	room     *Room
}

type clientEnvelope struct {
	env  event.Envelope
	from *Client
}

type roomJoinRequest struct {
	client  *Client
	errChan chan error
}

type countRequest struct {
	resp chan int
}

type pollsRequest struct {
	resp chan []event.Poll
}

// pollState pairs a live poll with its bookkeeping: the optional expiry
// instant and the option each participant voted for.
type pollState struct {
	poll      event.Poll
	expiresAt time.Time
	voters    map[string]string
	closed    bool
}

type Room struct {
	id      string
	parent  Parent
	store   Store
	pollTTL time.Duration

	clients   []*Client
	questions []event.Question
	polls     []*pollState

	inbox        chan clientEnvelope
	ticks        chan time.Time
	pingClients  chan struct{}
	removals     chan *Client
	joinRequests chan roomJoinRequest
	countReqs    chan countRequest
	pollsReqs    chan pollsRequest
	pollUpdates  chan event.Poll
	done         chan struct{}
}
