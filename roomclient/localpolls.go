package roomclient

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Nebulaz7/veil/event"
)

// Local polls exist only while the event channel is down: they are created
// and voted on entirely in process, displayed alongside the server polls,
// and dropped as soon as the server broadcasts a poll with the same
// question text.

func (c *Client) addLocalPoll(question string, optionTexts []string) {
	id := tempPollPrefix + uuid.NewString()
	options := make([]event.PollOption, len(optionTexts))
	for i, text := range optionTexts {
		options[i] = event.PollOption{
			Id:   fmt.Sprintf("%s-option-%d", id, i),
			Text: text,
		}
	}
	poll := event.Poll{
		Id:       id,
		Question: question,
		Options:  options,
	}
	poll.Recompute()
	c.localPolls = append([]event.Poll{poll}, c.localPolls...)
}

// voteLocal applies the single-choice rule in process: a second vote on the
// same poll moves the viewer's vote instead of adding one.
func (c *Client) voteLocal(pollId string, optionIndex int) error {
	idx := c.localPollIndex(pollId)
	if idx < 0 {
		return ErrUnknownPoll
	}
	poll := &c.localPolls[idx]
	if optionIndex < 0 || optionIndex >= len(poll.Options) {
		return ErrUnknownPoll
	}

	if prev, voted := c.myVoteIdx[pollId]; voted {
		if prev == optionIndex {
			return nil
		}
		if prev >= 0 && prev < len(poll.Options) && poll.Options[prev].Votes > 0 {
			poll.Options[prev].Votes--
		}
	}
	poll.Options[optionIndex].Votes++
	poll.Recompute()

	c.myVoteIdx[pollId] = optionIndex
	c.myVotes[pollId] = poll.Options[optionIndex].Id
	return nil
}

func (c *Client) localPollIndex(id string) int {
	for i := range c.localPolls {
		if c.localPolls[i].Id == id {
			return i
		}
	}
	return -1
}

// dropLocalPollsFor retires local stand-ins once the server version of the
// same poll arrives.
func (c *Client) dropLocalPollsFor(question string) {
	kept := c.localPolls[:0]
	for _, p := range c.localPolls {
		if !strings.EqualFold(strings.TrimSpace(p.Question), strings.TrimSpace(question)) {
			kept = append(kept, p)
		}
	}
	c.localPolls = kept
}
