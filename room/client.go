package room

import (
	"math"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Nebulaz7/veil/event"
)

// Submissions per client are throttled to one every five seconds with a
// small burst allowance; the countdown sent back to the client comes from
// the reservation delay.
const (
	submitRate  = rate.Limit(1.0 / 5.0)
	submitBurst = 3
)

func NewClient(id, role string, socket NetworkSession) *Client {
	return &Client{
		id:       id,
		role:     role,
		limiter:  rate.NewLimiter(submitRate, submitBurst),
		socket:   socket,
		outbox:   make(chan []byte, 256),
		pingChan: make(chan struct{}, 1),
	}
}

// Send frames payload under name and queues it for the write pump. Frames
// are dropped when the client cannot keep up; the authoritative state is
// re-derivable from getQuestions/getActivePolls.
func (c *Client) Send(name string, payload any) {
	data, err := event.Marshal(name, payload)
	if err != nil {
		log.Error().Err(err).Str("event", name).Msg("marshaling outbound frame")
		return
	}
	select {
	case c.outbox <- data:
	default:
		log.Warn().Str("client", c.id).Str("event", name).Msg("outbox full, dropping frame")
	}
}

// reserveSubmit consumes a rate limiter token. When the client is over its
// budget it returns the whole seconds left until the next token, without
// consuming it.
func (c *Client) reserveSubmit() (remainingSeconds int, ok bool) {
	res := c.limiter.Reserve()
	delay := res.Delay()
	if delay == 0 {
		return 0, true
	}
	res.Cancel()
	return int(math.Ceil(delay.Seconds())), false
}

// ReadPump decodes inbound frames and forwards them to the room actor.
// Frames outside the wire contract are dropped at this boundary.
func (c *Client) ReadPump() {
	room := c.room
	defer func() {
		room.RequestRemoval(c)
	}()

	for {
		data, err := c.socket.Read()
		if err != nil {
			return
		}

		env, err := event.Unmarshal(data)
		if err != nil {
			log.Debug().Err(err).Str("client", c.id).Msg("dropping bad frame")
			continue
		}

		select {
		case room.inbox <- clientEnvelope{env: env, from: c}:
		case <-room.done:
			return
		}
	}
}

func (c *Client) WritePump() {
loop:
	for {
		select {
		case data, ok := <-c.outbox:
			if !ok {
				break loop
			}
			if err := c.socket.Write(data); err != nil {
				break loop
			}
		case _, ok := <-c.pingChan:
			if !ok {
				break loop
			}
			if err := c.socket.Ping(); err != nil {
				break loop
			}
		}
	}
}

func (c *Client) CancelAndRelease() {
	close(c.outbox)
	close(c.pingChan)
	c.socket.Close("")
}
