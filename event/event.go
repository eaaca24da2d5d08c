// Package event defines the realtime wire contract between the Veil server
// and room clients: the closed set of event names, the typed payload carried
// by each one, and the JSON envelope they travel in.
package event

// Client -> server events.
const (
	JoinRoom        = "joinRoom"
	LeaveRoom       = "leaveRoom"
	GetQuestions    = "getQuestions"
	AskQuestion     = "askQuestion"
	UpvoteQuestion  = "upvoteQuestion"
	ReplyToQuestion = "replyToQuestion"
	GetActivePolls  = "getActivePolls"
	CreatePoll      = "createPoll"
	VotePoll        = "votePoll"
)

// Server -> client events.
const (
	NewQuestion      = "newQuestion"
	QuestionsList    = "questionsList"
	QuestionReplied  = "questionReplied"
	QuestionUpdated  = "questionUpdated"
	UpvoteResponse   = "upvoteResponse"
	NewPoll          = "newPoll"
	ActivePollsList  = "activePollsList"
	PollVoteAdded    = "pollVoteAdded"
	VoteConfirmed    = "voteConfirmed"
	PollClosed       = "pollClosed"
	PollError        = "pollError"
	RateLimitError   = "rateLimitError"
	ParticipantCount = "participantCount"
)

var known = map[string]struct{}{
	JoinRoom:         {},
	LeaveRoom:        {},
	GetQuestions:     {},
	AskQuestion:      {},
	UpvoteQuestion:   {},
	ReplyToQuestion:  {},
	GetActivePolls:   {},
	CreatePoll:       {},
	VotePoll:         {},
	NewQuestion:      {},
	QuestionsList:    {},
	QuestionReplied:  {},
	QuestionUpdated:  {},
	UpvoteResponse:   {},
	NewPoll:          {},
	ActivePollsList:  {},
	PollVoteAdded:    {},
	VoteConfirmed:    {},
	PollClosed:       {},
	PollError:        {},
	RateLimitError:   {},
	ParticipantCount: {},
}

// Known reports whether name is part of the wire contract.
func Known(name string) bool {
	_, ok := known[name]
	return ok
}
