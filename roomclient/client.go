// Package roomclient implements the state machine behind one room visit: it
// owns the question list, poll list, vote records and rate-limit countdown,
// and reconciles the viewer's optimistic edits against the authoritative
// events the server pushes back.
package roomclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nebulaz7/veil/event"
)

// State is the lifecycle of one room visit.
type State int

const (
	Joining State = iota
	Active
	Left
)

const (
	// voteGuards and the creating-poll flag expire on their own so a lost
	// confirmation can never permanently disable a control
	voteGuardTTL     = 4 * time.Second
	pollCreateGuard  = 5 * time.Second
	pollRefreshDelay = 2 * time.Second

	tempPollPrefix = "temp-"
)

// RoomAPI is the REST collaborator consumed alongside the event channel.
type RoomAPI interface {
	Room(ctx context.Context, roomId string) error
	ParticipantCount(ctx context.Context, roomId string) (int, error)
}

// PeriodicTickerChannelCreator lets tests drive the countdown and guard
// sweeps by injecting channels.
type PeriodicTickerChannelCreator interface {
	Create(duration time.Duration) <-chan time.Time
}

type systemTicker struct{}

func (systemTicker) Create(duration time.Duration) <-chan time.Time {
	return time.NewTicker(duration).C
}

type Config struct {
	RoomId    string
	Session   Session
	Sessions  SessionStore
	Transport Transport
	API       RoomAPI // optional
	Notifier  Notifier
	Tickers   PeriodicTickerChannelCreator
	Now       func() time.Time
}

type inbound struct {
	name string
	data json.RawMessage
}

type Client struct {
	roomId    string
	session   Session
	sessions  SessionStore
	transport Transport
	api       RoomAPI
	notifier  Notifier
	now       func() time.Time

	cmds   chan func()
	events chan inbound
	ticks  <-chan time.Time
	done   chan struct{}

	// all fields below are owned by the run loop
	state       State
	roomLoading bool
	userCount   int

	questions []event.Question

	polls      []event.Poll
	localPolls []event.Poll
	optionIds  *OptionMapping
	myVotes    map[string]string // pollId -> option id this viewer picked
	myVoteIdx  map[string]int    // pollId -> displayed selected index

	replying      map[string]bool      // questionId -> reply emit in flight
	voteGuards    map[string]time.Time // pollId#index -> guard expiry
	creatingPoll  bool
	createGuardAt time.Time
	pollRefreshAt time.Time

	rateLimitRemaining int
	rateLimitMessage   string
}

// serverEvents is every event name the client listens for. Registration
// happens before the initial requests are emitted, so no response can be
// delivered to a missing listener.
var serverEvents = []string{
	event.NewQuestion,
	event.QuestionsList,
	event.QuestionReplied,
	event.QuestionUpdated,
	event.UpvoteResponse,
	event.NewPoll,
	event.ActivePollsList,
	event.PollVoteAdded,
	event.VoteConfirmed,
	event.PollClosed,
	event.PollError,
	event.RateLimitError,
	event.ParticipantCount,
}

func New(cfg Config) (*Client, error) {
	if cfg.RoomId == "" {
		return nil, fmt.Errorf("roomclient: missing room id")
	}
	if cfg.Transport == nil {
		return nil, fmt.Errorf("roomclient: missing transport")
	}
	if cfg.Sessions == nil {
		cfg.Sessions = &MemorySessionStore{}
	}
	if cfg.Notifier == nil {
		cfg.Notifier = nopNotifier{}
	}
	if cfg.Tickers == nil {
		cfg.Tickers = systemTicker{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	session := cfg.Session
	if session.UserId == "" {
		if stored, ok := cfg.Sessions.Load(); ok {
			session = stored
		}
	}

	return &Client{
		roomId:      cfg.RoomId,
		session:     session,
		sessions:    cfg.Sessions,
		transport:   cfg.Transport,
		api:         cfg.API,
		notifier:    cfg.Notifier,
		now:         cfg.Now,
		cmds:        make(chan func(), 64),
		events:      make(chan inbound, 256),
		ticks:       cfg.Tickers.Create(time.Second),
		done:        make(chan struct{}),
		state:       Joining,
		roomLoading: true,
		optionIds:   NewOptionMapping(),
		myVotes:     map[string]string{},
		myVoteIdx:   map[string]int{},
		replying:    map[string]bool{},
		voteGuards:  map[string]time.Time{},
	}, nil
}

// Start registers every listener, then runs the join sequence: joinRoom,
// getQuestions, getActivePolls. The room metadata fetch runs concurrently
// and flips the loading flag when it lands.
func (c *Client) Start() {
	for _, name := range serverEvents {
		c.transport.On(name, c.forward(name))
	}

	go c.run()

	c.cmds <- func() {
		userId := c.session.UserId
		if userId == "" {
			userId = "guest"
		}
		c.emit(event.JoinRoom, event.JoinRoomPayload{RoomId: c.roomId, UserId: userId, Role: c.session.Role()})
		// the original web client sends the bare room id here
		c.emit(event.GetQuestions, c.roomId)
		c.emit(event.GetActivePolls, event.GetActivePollsPayload{RoomId: c.roomId})
		c.state = Active
		if c.api == nil {
			c.roomLoading = false
		}
	}

	if c.api != nil {
		go c.fetchInitial()
	}
}

func (c *Client) fetchInitial() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := c.api.Room(ctx, c.roomId)
	c.enqueue(func() {
		if err != nil {
			log.Error().Err(err).Str("room", c.roomId).Msg("fetching room")
			return
		}
		c.roomLoading = false
	})

	count, err := c.api.ParticipantCount(ctx, c.roomId)
	c.enqueue(func() {
		if err == nil {
			c.userCount = count
		}
	})
}

// Leave is terminal for the visit: it notifies the server, clears the
// stored anonymous identity and tears down every listener and timer.
func (c *Client) Leave() {
	c.do(func() error {
		if c.state == Left {
			return nil
		}
		c.emit(event.LeaveRoom, event.LeaveRoomPayload{RoomId: c.roomId, UserId: c.session.UserId})
		if err := c.sessions.Clear(); err != nil {
			log.Error().Err(err).Msg("clearing session")
		}
		for _, name := range serverEvents {
			c.transport.Off(name)
		}
		c.state = Left
		close(c.done)
		return nil
	})
}

func (c *Client) run() {
	for {
		select {
		case fn := <-c.cmds:
			fn()
		case in := <-c.events:
			c.apply(in)
		case now := <-c.ticks:
			c.tick(now)
		case <-c.done:
			return
		}
	}
}

func (c *Client) forward(name string) func(json.RawMessage) {
	return func(data json.RawMessage) {
		select {
		case c.events <- inbound{name: name, data: data}:
		case <-c.done:
		}
	}
}

func (c *Client) enqueue(fn func()) {
	select {
	case c.cmds <- fn:
	case <-c.done:
	}
}

func (c *Client) do(fn func() error) error {
	resp := make(chan error, 1)
	select {
	case c.cmds <- func() { resp <- fn() }:
	case <-c.done:
		return ErrRoomLeft
	}
	select {
	case err := <-resp:
		return err
	case <-c.done:
		return ErrRoomLeft
	}
}

func (c *Client) emit(name string, payload any) {
	if err := c.transport.Emit(name, payload); err != nil {
		log.Error().Err(err).Str("event", name).Msg("emit failed")
	}
}

// --- user operations ---

// SubmitQuestion validates locally and emits the submission. The question
// is not inserted optimistically; it enters the list when the server
// broadcasts it back, which keeps ordering stable under concurrent
// submissions.
func (c *Client) SubmitQuestion(text string) error {
	return c.do(func() error {
		if c.state == Left {
			return ErrRoomLeft
		}
		if strings.TrimSpace(text) == "" {
			return ErrEmptyQuestion
		}
		if c.roomLoading {
			return ErrRoomLoading
		}
		if c.rateLimitRemaining > 0 {
			return ErrRateLimited
		}

		c.ensureIdentity()
		c.emit(event.AskQuestion, event.AskQuestionPayload{
			RoomId:   c.roomId,
			UserId:   c.session.UserId,
			Question: text,
		})
		return nil
	})
}

// UpvoteQuestion optimistically records the viewer in the upvoter set and
// bumps the count; the server broadcast overwrites both when it arrives.
// Upvoting a question the viewer already upvoted is rejected locally.
func (c *Client) UpvoteQuestion(questionId string) error {
	return c.do(func() error {
		if c.state == Left {
			return ErrRoomLeft
		}
		idx := c.questionIndex(questionId)
		if idx < 0 {
			return ErrUnknownQuestion
		}
		c.ensureIdentity()

		q := &c.questions[idx]
		for _, voter := range q.UpvotedBy {
			if voter == c.session.UserId {
				return ErrAlreadyUpvoted
			}
		}
		q.UpvotedBy = append(q.UpvotedBy, c.session.UserId)
		q.Upvotes++

		c.emit(event.UpvoteQuestion, event.UpvoteQuestionPayload{RoomId: c.roomId, QuestionId: questionId})
		return nil
	})
}

// SubmitReply is fire-and-forget: the in-flight flag only prevents a
// duplicate emit for the same question and clears once the emit returns;
// the appended reply arrives later via broadcast.
func (c *Client) SubmitReply(questionId, text string) error {
	return c.do(func() error {
		if c.state == Left {
			return ErrRoomLeft
		}
		content := strings.TrimSpace(text)
		if content == "" {
			return ErrEmptyReply
		}
		if c.replying[questionId] {
			return ErrReplyInFlight
		}
		if c.rateLimitRemaining > 0 {
			return ErrRateLimited
		}
		if c.questionIndex(questionId) < 0 {
			return ErrUnknownQuestion
		}

		c.ensureIdentity()
		c.replying[questionId] = true
		go func() {
			c.emit(event.ReplyToQuestion, event.ReplyToQuestionPayload{
				RoomId:     c.roomId,
				QuestionId: questionId,
				Content:    content,
			})
			c.enqueue(func() { delete(c.replying, questionId) })
		}()
		return nil
	})
}

// CreatePoll validates per-field, then either emits the creation and waits
// for the canonical broadcast, or, without a live connection, falls back to
// a fully local temporarily-identified poll for display only.
func (c *Client) CreatePoll(question string, optionTexts []string) error {
	return c.do(func() error {
		if c.state == Left {
			return ErrRoomLeft
		}

		title := strings.TrimSpace(question)
		options := make([]string, 0, len(optionTexts))
		for _, text := range optionTexts {
			if trimmed := strings.TrimSpace(text); trimmed != "" {
				options = append(options, trimmed)
			}
		}

		verr := &PollValidationError{}
		if title == "" {
			verr.Title = "Poll title is required"
		}
		if len(options) < 2 {
			verr.Options = "At least 2 valid options are required"
		}
		if verr.Title != "" || verr.Options != "" {
			return verr
		}

		c.ensureIdentity()

		if !c.transport.Connected() {
			c.addLocalPoll(title, options)
			return nil
		}

		wire := make([]event.CreatePollOption, len(options))
		for i, text := range options {
			wire[i] = event.CreatePollOption{Text: text}
		}
		c.emit(event.CreatePoll, event.CreatePollPayload{
			RoomId:   c.roomId,
			UserId:   c.session.UserId,
			Name:     title,
			Question: title,
			Options:  wire,
		})
		c.creatingPoll = true
		c.createGuardAt = c.now().Add(pollCreateGuard)
		return nil
	})
}

// Vote translates the displayed option index into a server option id and
// sends the vote, optimistically recording the viewer's choice. A missing
// mapping entry is recoverable: a fallback id is synthesized, the vote is
// still sent, and the authoritative poll list is re-requested to repair
// the table.
func (c *Client) Vote(pollId string, optionIndex int) error {
	return c.do(func() error {
		if c.state == Left {
			return ErrRoomLeft
		}

		if strings.HasPrefix(pollId, tempPollPrefix) {
			return c.voteLocal(pollId, optionIndex)
		}

		pollIdx := c.pollIndex(pollId)
		if pollIdx < 0 {
			return ErrUnknownPoll
		}
		if optionIndex < 0 || optionIndex >= len(c.polls[pollIdx].Options) {
			return ErrUnknownPoll
		}

		now := c.now()
		guardKey := fmt.Sprintf("%s#%d", pollId, optionIndex)
		if deadline, held := c.voteGuards[guardKey]; held && now.Before(deadline) {
			return ErrVoteInFlight
		}

		optionId, synthesized := c.optionIds.Resolve(pollId, optionIndex)
		if synthesized {
			// benign: poll data raced the vote; repair from the server
			c.pollRefreshAt = now.Add(pollRefreshDelay)
		}

		c.ensureIdentity()
		c.myVotes[pollId] = optionId
		c.myVoteIdx[pollId] = optionIndex
		c.voteGuards[guardKey] = now.Add(voteGuardTTL)

		c.emit(event.VotePoll, event.VotePollPayload{
			RoomId:   c.roomId,
			PollId:   pollId,
			OptionId: optionId,
			UserId:   c.session.UserId,
		})
		return nil
	})
}

// ensureIdentity generates and persists an anonymous identity the first
// time the viewer acts.
func (c *Client) ensureIdentity() {
	if c.session.UserId != "" {
		return
	}
	generated := NewAnonymousSession()
	generated.Moderator = c.session.Moderator
	generated.Token = c.session.Token
	c.session = generated
	if err := c.sessions.Save(c.session); err != nil {
		log.Error().Err(err).Msg("persisting session")
	}
}

func (c *Client) questionIndex(id string) int {
	for i := range c.questions {
		if c.questions[i].Id == id {
			return i
		}
	}
	return -1
}

func (c *Client) pollIndex(id string) int {
	for i := range c.polls {
		if c.polls[i].Id == id {
			return i
		}
	}
	return -1
}

// tick advances everything timed: the rate-limit countdown, the vote and
// poll-creation guards, and the delayed poll list repair.
func (c *Client) tick(now time.Time) {
	if c.rateLimitRemaining > 0 {
		c.rateLimitRemaining--
		if c.rateLimitRemaining == 0 {
			c.rateLimitMessage = ""
		}
	}

	for key, deadline := range c.voteGuards {
		if !now.Before(deadline) {
			delete(c.voteGuards, key)
		}
	}

	if c.creatingPoll && !now.Before(c.createGuardAt) {
		c.creatingPoll = false
	}

	if !c.pollRefreshAt.IsZero() && !now.Before(c.pollRefreshAt) {
		c.pollRefreshAt = time.Time{}
		c.emit(event.GetActivePolls, event.GetActivePollsPayload{RoomId: c.roomId})
	}
}
