package room

import "time"

// PeriodicTickerChannelCreator lets tests drive time by injecting channels.
type PeriodicTickerChannelCreator interface {
	Create(duration time.Duration) <-chan time.Time
}

type ticker struct{}

func (t *ticker) Create(duration time.Duration) <-chan time.Time {
	return time.NewTicker(duration).C
}

func NewTickerGen() *ticker {
	return &ticker{}
}
