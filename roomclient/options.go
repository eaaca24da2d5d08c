package roomclient

import (
	"fmt"

	"github.com/Nebulaz7/veil/event"
)

// OptionMapping translates a poll's positional option index, which is how
// the UI addresses options, into the server's canonical option identifier,
// which is how the wire addresses them. It is rebuilt whenever poll data is
// received.
type OptionMapping struct {
	byPoll map[string]map[int]string
}

func NewOptionMapping() *OptionMapping {
	return &OptionMapping{byPoll: map[string]map[int]string{}}
}

// RebuildPoll refreshes the entries for one poll. Options without a
// server-issued id produce no entry and will resolve as synthesized.
func (om *OptionMapping) RebuildPoll(p event.Poll) {
	entry := make(map[int]string, len(p.Options))
	for i, opt := range p.Options {
		if opt.Id != "" {
			entry[i] = opt.Id
		}
	}
	om.byPoll[p.Id] = entry
}

// Rebuild replaces the whole table from an authoritative poll list.
func (om *OptionMapping) Rebuild(polls []event.Poll) {
	om.byPoll = make(map[string]map[int]string, len(polls))
	for _, p := range polls {
		om.RebuildPoll(p)
	}
}

func (om *OptionMapping) Forget(pollId string) {
	delete(om.byPoll, pollId)
}

// Resolve returns the server option id for (pollId, index). When no true
// mapping exists it synthesizes a deterministic fallback id and reports
// synthesized=true so the caller can repair the table.
func (om *OptionMapping) Resolve(pollId string, index int) (id string, synthesized bool) {
	if entry, ok := om.byPoll[pollId]; ok {
		if id, ok := entry[index]; ok {
			return id, false
		}
	}
	return fmt.Sprintf("%s-option-%d", pollId, index), true
}

// IndexOf finds the position of a server option id within a poll, for
// mapping a confirmation back to a displayed index.
func (om *OptionMapping) IndexOf(pollId, optionId string) (int, bool) {
	entry, ok := om.byPoll[pollId]
	if !ok {
		return 0, false
	}
	for idx, id := range entry {
		if id == optionId {
			return idx, true
		}
	}
	return 0, false
}
