package roomclient

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nebulaz7/veil/event"
)

// apply folds one server event into the state. Server data is always
// authoritative: it overwrites whatever the viewer's optimistic edits put
// in place.
func (c *Client) apply(in inbound) {
	switch in.name {
	case event.QuestionsList:
		var questions []event.Question
		if !c.decode(in, &questions) {
			return
		}
		c.questions = questions

	case event.NewQuestion:
		var q event.Question
		if !c.decode(in, &q) {
			return
		}
		if c.questionIndex(q.Id) >= 0 {
			return
		}
		c.questions = append([]event.Question{q}, c.questions...)

	case event.QuestionUpdated:
		var q event.Question
		if !c.decode(in, &q) {
			return
		}
		if idx := c.questionIndex(q.Id); idx >= 0 {
			c.questions[idx].Upvotes = q.Upvotes
			c.questions[idx].UpvotedBy = q.UpvotedBy
		}

	case event.QuestionReplied:
		var q event.Question
		if !c.decode(in, &q) {
			return
		}
		if idx := c.questionIndex(q.Id); idx >= 0 {
			c.questions[idx] = q
		}

	case event.UpvoteResponse:
		var resp event.UpvoteResponsePayload
		if !c.decode(in, &resp) {
			return
		}
		if !resp.Success {
			log.Debug().Str("message", resp.Message).Msg("upvote rejected")
		}

	case event.NewPoll:
		var p event.Poll
		if !c.decode(in, &p) {
			return
		}
		c.creatingPoll = false
		p.Recompute()
		c.installPoll(p)
		c.dropLocalPollsFor(p.Question)

	case event.ActivePollsList:
		var polls []event.Poll
		if !c.decode(in, &polls) {
			return
		}
		for i := range polls {
			polls[i].Recompute()
		}
		c.polls = polls
		c.optionIds.Rebuild(polls)
		c.pollRefreshAt = time.Time{}

	case event.PollVoteAdded:
		var p event.Poll
		if !c.decode(in, &p) {
			return
		}
		p.Recompute()
		c.installPoll(p)

	case event.VoteConfirmed:
		var conf event.VoteConfirmedPayload
		if !c.decode(in, &conf) {
			return
		}
		c.myVotes[conf.PollId] = conf.OptionId
		if idx, ok := c.optionIds.IndexOf(conf.PollId, conf.OptionId); ok {
			c.myVoteIdx[conf.PollId] = idx
		}
		c.clearVoteGuards(conf.PollId)

	case event.PollClosed:
		var closed event.PollClosedPayload
		if !c.decode(in, &closed) {
			return
		}
		c.removePoll(closed.PollId)

	case event.PollError:
		var perr event.PollErrorPayload
		if !c.decode(in, &perr) {
			return
		}
		c.creatingPoll = false
		if perr.Code == event.CodeNotFound || strings.Contains(strings.ToLower(perr.Message), "not found") {
			// timing race between vote and poll propagation, repair quietly
			c.pollRefreshAt = c.now().Add(pollRefreshDelay)
			return
		}
		c.notifier.Notify(perr.Message)

	case event.RateLimitError:
		var limited event.RateLimitErrorPayload
		if !c.decode(in, &limited) {
			return
		}
		c.rateLimitRemaining = limited.RemainingTime
		c.rateLimitMessage = limited.Message

	case event.ParticipantCount:
		var count event.ParticipantCountPayload
		if !c.decode(in, &count) {
			return
		}
		c.userCount = count.Count
	}
}

func (c *Client) decode(in inbound, dst any) bool {
	if err := json.Unmarshal(in.data, dst); err != nil {
		log.Error().Err(err).Str("event", in.name).Msg("undecodable event payload")
		return false
	}
	return true
}

// installPoll replaces the poll in place or prepends it, and refreshes the
// option-id table for it.
func (c *Client) installPoll(p event.Poll) {
	if idx := c.pollIndex(p.Id); idx >= 0 {
		c.polls[idx] = p
	} else {
		c.polls = append([]event.Poll{p}, c.polls...)
	}
	c.optionIds.RebuildPoll(p)
}

func (c *Client) removePoll(pollId string) {
	if idx := c.pollIndex(pollId); idx >= 0 {
		c.polls = append(c.polls[:idx], c.polls[idx+1:]...)
	}
	c.optionIds.Forget(pollId)
	delete(c.myVotes, pollId)
	delete(c.myVoteIdx, pollId)
	c.clearVoteGuards(pollId)
}

func (c *Client) clearVoteGuards(pollId string) {
	prefix := pollId + "#"
	for key := range c.voteGuards {
		if strings.HasPrefix(key, prefix) {
			delete(c.voteGuards, key)
		}
	}
}
