package room

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Nebulaz7/veil/event"
)

const timestampLayout = "3:04 PM"

func NewRoom(id string, store Store, pollTTL time.Duration) *Room {
	return &Room{
		id:           id,
		store:        store,
		pollTTL:      pollTTL,
		clients:      make([]*Client, 0, 8),
		inbox:        make(chan clientEnvelope, 1024),
		ticks:        make(chan time.Time, 24),
		pingClients:  make(chan struct{}, 1),
		removals:     make(chan *Client, 64),
		joinRequests: make(chan roomJoinRequest),
		countReqs:    make(chan countRequest, 64),
		pollsReqs:    make(chan pollsRequest, 64),
		pollUpdates:  make(chan event.Poll, 64),
		done:         make(chan struct{}),
	}
}

func (r *Room) SetParent(p Parent) { r.parent = p }

// Seed installs state loaded from storage before the actor starts. The
// stored expiry and voter records carry over so a rematerialized room keeps
// the single-choice supersede semantics and the original TTL clock.
func (r *Room) Seed(questions []event.Question, polls []PollSeed) {
	r.questions = questions
	for _, seed := range polls {
		voters := seed.Voters
		if voters == nil {
			voters = map[string]string{}
		}
		r.polls = append(r.polls, &pollState{poll: seed.Poll, expiresAt: seed.ExpiresAt, voters: voters})
	}
}

// --- requests from other goroutines ---

func (r *Room) RequestJoin(jreq roomJoinRequest) {
	select {
	case r.joinRequests <- jreq:
	case <-r.done:
		jreq.errChan <- ErrRoomClosed
	}
}

func (r *Room) RequestRemoval(c *Client) {
	select {
	case r.removals <- c:
	case <-r.done:
	}
}

func (r *Room) Tick(now time.Time) {
	select {
	case r.ticks <- now:
	default:
	}
}

func (r *Room) PingClients() {
	select {
	case r.pingClients <- struct{}{}:
	default:
	}
}

func (r *Room) ParticipantCount(ctx context.Context) int {
	req := countRequest{resp: make(chan int, 1)}
	select {
	case r.countReqs <- req:
	case <-r.done:
		return 0
	case <-ctx.Done():
		return 0
	}
	select {
	case n := <-req.resp:
		return n
	case <-r.done:
		return 0
	case <-ctx.Done():
		return 0
	}
}

func (r *Room) ActivePolls(ctx context.Context) ([]event.Poll, bool) {
	req := pollsRequest{resp: make(chan []event.Poll, 1)}
	select {
	case r.pollsReqs <- req:
	case <-r.done:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
	select {
	case polls := <-req.resp:
		return polls, true
	case <-r.done:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// ApplyPollUpdate installs an authoritative poll snapshot produced outside
// the actor (the REST vote path) and broadcasts it to the room.
func (r *Room) ApplyPollUpdate(p event.Poll) {
	select {
	case r.pollUpdates <- p:
	case <-r.done:
	}
}

// --- actor loop ---

func (r *Room) Run(started chan struct{}) {
	close(started)

	for {
		select {
		case jreq := <-r.joinRequests:
			r.handleJoin(jreq)

		case c := <-r.removals:
			r.handleRemoval(c)

		case envelope := <-r.inbox:
			r.dispatch(envelope)

		case now := <-r.ticks:
			r.closeExpiredPolls(now)

		case <-r.pingClients:
			for _, c := range r.clients {
				select {
				case c.pingChan <- struct{}{}:
				default:
				}
			}

		case req := <-r.countReqs:
			req.resp <- len(r.clients)

		case req := <-r.pollsReqs:
			req.resp <- r.snapshotPolls()

		case p := <-r.pollUpdates:
			r.installPoll(p)
			r.broadcast(event.PollVoteAdded, p)

		case <-r.done:
			return
		}
	}
}

// CloseAndRelease tears the room down. Called by the hub after the room has
// been unlinked; no join requests arrive past this point.
func (r *Room) CloseAndRelease() {
	close(r.done)
	for _, c := range r.clients {
		c.CancelAndRelease()
	}
	r.clients = nil
}

func (r *Room) handleJoin(jreq roomJoinRequest) {
	c := jreq.client
	c.room = r
	r.clients = append(r.clients, c)
	jreq.errChan <- nil
	r.broadcast(event.ParticipantCount, event.ParticipantCountPayload{RoomId: r.id, Count: len(r.clients)})
}

func (r *Room) handleRemoval(c *Client) {
	idx := slices.Index(r.clients, c)
	if idx < 0 {
		return
	}
	r.clients = slices.Delete(r.clients, idx, idx+1)
	c.CancelAndRelease()
	r.broadcast(event.ParticipantCount, event.ParticipantCountPayload{RoomId: r.id, Count: len(r.clients)})
	if len(r.clients) == 0 && r.parent != nil {
		r.parent.RemoveRoom(r.id)
	}
}

func (r *Room) dispatch(envelope clientEnvelope) {
	from := envelope.from
	if !slices.Contains(r.clients, from) {
		return
	}

	switch envelope.env.Event {
	case event.JoinRoom:
		// membership is established at upgrade time; the explicit event
		// only refreshes the client's role
		var p event.JoinRoomPayload
		if event.Decode(envelope.env, &p) == nil && p.Role != "" {
			from.role = p.Role
		}

	case event.LeaveRoom:
		r.handleRemoval(from)

	case event.GetQuestions:
		from.Send(event.QuestionsList, r.questions)

	case event.AskQuestion:
		r.handleAskQuestion(envelope)

	case event.UpvoteQuestion:
		r.handleUpvoteQuestion(envelope)

	case event.ReplyToQuestion:
		r.handleReply(envelope)

	case event.GetActivePolls:
		from.Send(event.ActivePollsList, r.snapshotPolls())

	case event.CreatePoll:
		r.handleCreatePoll(envelope)

	case event.VotePoll:
		r.handleVotePoll(envelope)
	}
}

func (r *Room) handleAskQuestion(envelope clientEnvelope) {
	from := envelope.from
	var p event.AskQuestionPayload
	if err := event.Decode(envelope.env, &p); err != nil {
		log.Debug().Err(err).Str("room", r.id).Msg("bad askQuestion payload")
		return
	}
	text := strings.TrimSpace(p.Question)
	if text == "" {
		return
	}
	if remaining, ok := from.reserveSubmit(); !ok {
		from.Send(event.RateLimitError, event.RateLimitErrorPayload{
			Message:       "You are sending questions too quickly, please wait",
			RemainingTime: remaining,
		})
		return
	}

	user := p.UserId
	if user == "" {
		user = from.id
	}
	q := event.Question{
		Id:        uuid.NewString(),
		User:      user,
		Question:  text,
		Timestamp: time.Now().Format(timestampLayout),
		UpvotedBy: []string{},
		Replies:   []event.Reply{},
	}
	r.questions = append([]event.Question{q}, r.questions...)

	if err := r.store.SaveQuestion(context.Background(), r.id, q); err != nil {
		log.Error().Err(err).Str("room", r.id).Str("question", q.Id).Msg("persisting question")
	}
	r.broadcast(event.NewQuestion, q)
}

func (r *Room) handleUpvoteQuestion(envelope clientEnvelope) {
	from := envelope.from
	var p event.UpvoteQuestionPayload
	if err := event.Decode(envelope.env, &p); err != nil {
		return
	}

	idx := slices.IndexFunc(r.questions, func(q event.Question) bool { return q.Id == p.QuestionId })
	if idx < 0 {
		from.Send(event.UpvoteResponse, event.UpvoteResponsePayload{Success: false, Message: "question not found"})
		return
	}

	q := &r.questions[idx]
	if slices.Contains(q.UpvotedBy, from.id) {
		from.Send(event.UpvoteResponse, event.UpvoteResponsePayload{Success: false, Message: "already upvoted"})
		return
	}
	q.UpvotedBy = append(q.UpvotedBy, from.id)
	q.Upvotes = len(q.UpvotedBy)

	if err := r.store.SetUpvotes(context.Background(), q.Id, q.UpvotedBy); err != nil {
		log.Error().Err(err).Str("question", q.Id).Msg("persisting upvote")
	}
	from.Send(event.UpvoteResponse, event.UpvoteResponsePayload{Success: true, Message: "upvoted"})
	r.broadcast(event.QuestionUpdated, *q)
}

func (r *Room) handleReply(envelope clientEnvelope) {
	from := envelope.from
	var p event.ReplyToQuestionPayload
	if err := event.Decode(envelope.env, &p); err != nil {
		return
	}
	content := strings.TrimSpace(p.Content)
	if content == "" {
		return
	}
	if remaining, ok := from.reserveSubmit(); !ok {
		from.Send(event.RateLimitError, event.RateLimitErrorPayload{
			Message:       "You are replying too quickly, please wait",
			RemainingTime: remaining,
		})
		return
	}

	idx := slices.IndexFunc(r.questions, func(q event.Question) bool { return q.Id == p.QuestionId })
	if idx < 0 {
		return
	}

	reply := event.Reply{
		Id:        uuid.NewString(),
		User:      from.id,
		Content:   content,
		Timestamp: time.Now().Format(timestampLayout),
	}
	q := &r.questions[idx]
	q.Replies = append(q.Replies, reply)

	if err := r.store.SaveReply(context.Background(), r.id, q.Id, reply); err != nil {
		log.Error().Err(err).Str("question", q.Id).Msg("persisting reply")
	}
	r.broadcast(event.QuestionReplied, *q)
}

func (r *Room) handleCreatePoll(envelope clientEnvelope) {
	from := envelope.from
	var p event.CreatePollPayload
	if err := event.Decode(envelope.env, &p); err != nil {
		from.Send(event.PollError, event.PollErrorPayload{Code: event.CodeInvalid, Message: "bad poll payload"})
		return
	}

	question := strings.TrimSpace(p.Question)
	if question == "" {
		question = strings.TrimSpace(p.Name)
	}
	options := make([]event.PollOption, 0, len(p.Options))
	for _, opt := range p.Options {
		text := strings.TrimSpace(opt.Text)
		if text == "" {
			continue
		}
		options = append(options, event.PollOption{Id: uuid.NewString(), Text: text})
	}

	if question == "" || len(options) < 2 {
		from.Send(event.PollError, event.PollErrorPayload{
			Code:    event.CodeInvalid,
			Message: "a poll needs a question and at least 2 options",
		})
		return
	}

	poll := event.Poll{
		Id:       uuid.NewString(),
		Question: question,
		Options:  options,
	}
	poll.Recompute()

	state := &pollState{poll: poll, voters: map[string]string{}}
	var expiresAt *time.Time
	if r.pollTTL > 0 {
		state.expiresAt = time.Now().Add(r.pollTTL)
		expiresAt = &state.expiresAt
	}
	r.polls = append(r.polls, state)

	if err := r.store.SavePoll(context.Background(), r.id, poll, expiresAt); err != nil {
		log.Error().Err(err).Str("room", r.id).Str("poll", poll.Id).Msg("persisting poll")
	}
	r.broadcast(event.NewPoll, r.presentPoll(state))
}

func (r *Room) handleVotePoll(envelope clientEnvelope) {
	from := envelope.from
	var p event.VotePollPayload
	if err := event.Decode(envelope.env, &p); err != nil {
		from.Send(event.PollError, event.PollErrorPayload{Code: event.CodeInvalid, Message: "bad vote payload"})
		return
	}

	state := r.findPoll(p.PollId)
	if state == nil {
		from.Send(event.PollError, event.PollErrorPayload{Code: event.CodeNotFound, Message: "poll not found"})
		return
	}
	optIdx := slices.IndexFunc(state.poll.Options, func(o event.PollOption) bool { return o.Id == p.OptionId })
	if optIdx < 0 {
		from.Send(event.PollError, event.PollErrorPayload{Code: event.CodeNotFound, Message: "option not found"})
		return
	}

	voter := p.UserId
	if voter == "" {
		voter = from.id
	}

	// single-choice: a later vote supersedes the earlier one
	if prev, voted := state.voters[voter]; voted {
		if prev == p.OptionId {
			from.Send(event.VoteConfirmed, event.VoteConfirmedPayload{PollId: state.poll.Id, OptionId: p.OptionId})
			return
		}
		if prevIdx := slices.IndexFunc(state.poll.Options, func(o event.PollOption) bool { return o.Id == prev }); prevIdx >= 0 {
			state.poll.Options[prevIdx].Votes--
		}
	}
	state.voters[voter] = p.OptionId
	state.poll.Options[optIdx].Votes++
	state.poll.Recompute()

	if err := r.store.SaveVote(context.Background(), state.poll.Id, voter, p.OptionId); err != nil {
		log.Error().Err(err).Str("poll", state.poll.Id).Msg("persisting vote")
	}
	from.Send(event.VoteConfirmed, event.VoteConfirmedPayload{PollId: state.poll.Id, OptionId: p.OptionId})
	r.broadcast(event.PollVoteAdded, r.presentPoll(state))
}

func (r *Room) closeExpiredPolls(now time.Time) {
	for _, state := range r.polls {
		if state.closed || state.expiresAt.IsZero() || now.Before(state.expiresAt) {
			continue
		}
		state.closed = true
		if err := r.store.MarkPollClosed(context.Background(), state.poll.Id); err != nil {
			log.Error().Err(err).Str("poll", state.poll.Id).Msg("closing poll")
		}
		r.broadcast(event.PollClosed, event.PollClosedPayload{PollId: state.poll.Id})
	}
	r.polls = slices.DeleteFunc(r.polls, func(s *pollState) bool { return s.closed })
}

func (r *Room) findPoll(id string) *pollState {
	for _, state := range r.polls {
		if state.poll.Id == id {
			return state
		}
	}
	return nil
}

func (r *Room) installPoll(p event.Poll) {
	if state := r.findPoll(p.Id); state != nil {
		state.poll = p
		return
	}
	// a poll first seen through an update snapshot carries no expiry clock;
	// storage keeps filtering it out once its stored deadline passes
	r.polls = append(r.polls, &pollState{poll: p, voters: map[string]string{}})
}

func (r *Room) snapshotPolls() []event.Poll {
	polls := make([]event.Poll, 0, len(r.polls))
	for _, state := range r.polls {
		polls = append(polls, r.presentPoll(state))
	}
	return polls
}

// presentPoll derives the display fields recomputed on every send.
func (r *Room) presentPoll(state *pollState) event.Poll {
	p := state.poll
	p.Options = slices.Clone(state.poll.Options)
	p.Recompute()
	p.TimeLeft = formatTimeLeft(state.expiresAt, time.Now())
	return p
}

func formatTimeLeft(expiresAt, now time.Time) string {
	if expiresAt.IsZero() || !now.Before(expiresAt) {
		return ""
	}
	left := expiresAt.Sub(now).Round(time.Second)
	mins := int(left.Minutes())
	secs := int(left.Seconds()) % 60
	if mins > 0 {
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	return fmt.Sprintf("%ds", secs)
}

func (r *Room) broadcast(name string, payload any) {
	for _, c := range r.clients {
		c.Send(name, payload)
	}
}
