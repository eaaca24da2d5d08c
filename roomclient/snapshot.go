package roomclient

import (
	"slices"

	"github.com/Nebulaz7/veil/event"
)

// Snapshot accessors run on the state loop and return copies, so callers
// can render from them without holding anything.

func (c *Client) State() State {
	select {
	case <-c.done:
		return Left
	default:
	}
	state := Joining
	c.do(func() error {
		state = c.state
		return nil
	})
	return state
}

func (c *Client) RoomLoading() bool {
	loading := false
	c.do(func() error {
		loading = c.roomLoading
		return nil
	})
	return loading
}

func (c *Client) UserCount() int {
	count := 0
	c.do(func() error {
		count = c.userCount
		return nil
	})
	return count
}

func (c *Client) Questions() []event.Question {
	var out []event.Question
	c.do(func() error {
		out = make([]event.Question, len(c.questions))
		for i, q := range c.questions {
			q.UpvotedBy = slices.Clone(q.UpvotedBy)
			q.Replies = slices.Clone(q.Replies)
			out[i] = q
		}
		return nil
	})
	return out
}

// Polls returns the displayed poll list: local stand-ins first, then the
// server polls, each with fresh percentages.
func (c *Client) Polls() []event.Poll {
	var out []event.Poll
	c.do(func() error {
		out = make([]event.Poll, 0, len(c.localPolls)+len(c.polls))
		for _, p := range c.localPolls {
			p.Options = slices.Clone(p.Options)
			out = append(out, p)
		}
		for _, p := range c.polls {
			p.Options = slices.Clone(p.Options)
			out = append(out, p)
		}
		return nil
	})
	return out
}

// MyVote reports the option index the viewer currently has selected on a
// poll, or ok=false when they have not voted.
func (c *Client) MyVote(pollId string) (optionIndex int, ok bool) {
	c.do(func() error {
		optionIndex, ok = c.myVoteIdx[pollId]
		return nil
	})
	return optionIndex, ok
}

// RateLimit reports the live countdown: remaining seconds and the server's
// message, zero and empty once expired.
func (c *Client) RateLimit() (remaining int, message string) {
	c.do(func() error {
		remaining = c.rateLimitRemaining
		message = c.rateLimitMessage
		return nil
	})
	return remaining, message
}

func (c *Client) CreatingPoll() bool {
	creating := false
	c.do(func() error {
		creating = c.creatingPoll
		return nil
	})
	return creating
}

func (c *Client) ReplyInFlight(questionId string) bool {
	inFlight := false
	c.do(func() error {
		inFlight = c.replying[questionId]
		return nil
	})
	return inFlight
}

func (c *Client) Session() Session {
	session := Session{}
	c.do(func() error {
		session = c.session
		return nil
	})
	return session
}
