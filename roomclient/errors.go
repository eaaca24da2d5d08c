package roomclient

import "errors"

var (
	ErrRoomLoading     = errors.New("room-still-loading")
	ErrRoomLeft        = errors.New("room-left")
	ErrEmptyQuestion   = errors.New("empty-question")
	ErrEmptyReply      = errors.New("empty-reply")
	ErrReplyInFlight   = errors.New("reply-in-flight")
	ErrRateLimited     = errors.New("rate-limited")
	ErrAlreadyUpvoted  = errors.New("already-upvoted")
	ErrUnknownQuestion = errors.New("unknown-question")
	ErrUnknownPoll     = errors.New("unknown-poll")
	ErrVoteInFlight    = errors.New("vote-in-flight")
	ErrNotConnected    = errors.New("not-connected")
)

// PollValidationError carries per-field messages for the poll creation form.
type PollValidationError struct {
	Title   string
	Options string
}

func (e *PollValidationError) Error() string {
	switch {
	case e.Title != "" && e.Options != "":
		return e.Title + "; " + e.Options
	case e.Title != "":
		return e.Title
	default:
		return e.Options
	}
}
