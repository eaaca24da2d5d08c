package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var ErrBadPayload = errors.New("bad-payload")

// Entities carried by the wire. Field names match the original web client.

type Reply struct {
	Id        string `json:"id"`
	User      string `json:"user"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

type Question struct {
	Id        string   `json:"id"`
	User      string   `json:"user"`
	Question  string   `json:"question"`
	Timestamp string   `json:"timestamp"`
	Upvotes   int      `json:"upvotes"`
	Answered  bool     `json:"answered"`
	Answer    string   `json:"answer,omitempty"`
	UpvotedBy []string `json:"upvotedBy"`
	Replies   []Reply  `json:"replies"`
}

type PollOption struct {
	Id         string `json:"id,omitempty"`
	Text       string `json:"text"`
	Votes      int    `json:"votes"`
	Percentage int    `json:"percentage"`
}

type Poll struct {
	Id         string       `json:"id"`
	Question   string       `json:"question"`
	Options    []PollOption `json:"options"`
	TotalVotes int          `json:"totalVotes"`
	TimeLeft   string       `json:"timeLeft"`
}

// Percentage derives the displayed percentage of votes out of total.
// Defined as 0 when total is 0.
func Percentage(votes, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(votes) / float64(total) * 100))
}

// Recompute refreshes TotalVotes and every option's Percentage from the
// per-option vote counts.
func (p *Poll) Recompute() {
	total := 0
	for _, opt := range p.Options {
		total += opt.Votes
	}
	p.TotalVotes = total
	for i := range p.Options {
		p.Options[i].Percentage = Percentage(p.Options[i].Votes, total)
	}
}

// Client -> server payloads.

type JoinRoomPayload struct {
	RoomId string `json:"roomId"`
	UserId string `json:"userId"`
	Role   string `json:"role"`
}

type LeaveRoomPayload struct {
	RoomId string `json:"roomId"`
	UserId string `json:"userId"`
}

type GetQuestionsPayload struct {
	RoomId string `json:"roomId"`
}

type AskQuestionPayload struct {
	RoomId   string `json:"roomId"`
	UserId   string `json:"userId"`
	Question string `json:"question"`
}

type UpvoteQuestionPayload struct {
	RoomId     string `json:"roomId"`
	QuestionId string `json:"questionId"`
}

type ReplyToQuestionPayload struct {
	RoomId     string `json:"roomId"`
	QuestionId string `json:"questionId"`
	Content    string `json:"content"`
}

type GetActivePollsPayload struct {
	RoomId string `json:"roomId"`
}

type CreatePollOption struct {
	Text string `json:"text"`
}

type CreatePollPayload struct {
	RoomId   string             `json:"roomId"`
	UserId   string             `json:"userId"`
	Name     string             `json:"name"`
	Question string             `json:"question"`
	Options  []CreatePollOption `json:"options"`
}

type VotePollPayload struct {
	RoomId   string `json:"roomId"`
	PollId   string `json:"pollId"`
	OptionId string `json:"optionId"`
	UserId   string `json:"userId"`
}

// Server -> client payloads without a dedicated entity.

type UpvoteResponsePayload struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type VoteConfirmedPayload struct {
	PollId   string `json:"pollId"`
	OptionId string `json:"optionId"`
}

type PollClosedPayload struct {
	PollId string `json:"pollId"`
}

// PollError codes. CodeNotFound marks the benign timing race the client
// recovers from by re-requesting the poll list.
const (
	CodeNotFound = "not-found"
	CodeInvalid  = "invalid-poll"
)

type PollErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type RateLimitErrorPayload struct {
	Message       string `json:"message"`
	RemainingTime int    `json:"remainingTime"`
}

type ParticipantCountPayload struct {
	RoomId string `json:"roomId"`
	Count  int    `json:"count"`
}

// DecodeGetQuestions accepts both the {roomId} object form and the bare
// string form the original web client sends.
func DecodeGetQuestions(raw json.RawMessage) (string, error) {
	var p GetQuestionsPayload
	if err := json.Unmarshal(raw, &p); err == nil && p.RoomId != "" {
		return p.RoomId, nil
	}
	var roomId string
	if err := json.Unmarshal(raw, &roomId); err == nil && roomId != "" {
		return roomId, nil
	}
	return "", fmt.Errorf("%w: getQuestions requires a room id", ErrBadPayload)
}
