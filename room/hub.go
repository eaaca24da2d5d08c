package room

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nebulaz7/veil/event"
)

// Hub owns every live room. Rooms are materialized lazily from storage when
// the first participant connects and removed again when the last one leaves.
type Hub struct {
	rooms map[string]*Room

	store   Store
	pollTTL time.Duration

	tickerCreator PeriodicTickerChannelCreator

	lookupReqs     chan hubLookupRequest
	installReqs    chan hubInstallRequest
	removeRoomChan chan string
}

type hubLookupRequest struct {
	roomId string
	resp   chan *Room
}

type hubInstallRequest struct {
	room *Room
	resp chan *Room
}

func NewHub(store Store, pollTTL time.Duration, tickerCreator PeriodicTickerChannelCreator) *Hub {
	return &Hub{
		rooms:          map[string]*Room{},
		store:          store,
		pollTTL:        pollTTL,
		tickerCreator:  tickerCreator,
		lookupReqs:     make(chan hubLookupRequest, 256),
		installReqs:    make(chan hubInstallRequest, 32),
		removeRoomChan: make(chan string, 32),
	}
}

func (h *Hub) HubActor(started chan struct{}) {
	ticker := h.tickerCreator.Create(time.Second)
	pingTicker := h.tickerCreator.Create(time.Second * 30)

	close(started)

	for {
		select {
		case now := <-ticker:
			for _, r := range h.rooms {
				r.Tick(now)
			}

		case <-pingTicker:
			for _, r := range h.rooms {
				r.PingClients()
			}

		case req := <-h.lookupReqs:
			req.resp <- h.rooms[req.roomId]

		case req := <-h.installReqs:
			h.handleInstall(req)

		case roomId := <-h.removeRoomChan:
			h.handleRemoveRoom(roomId)
		}
	}
}

// handleInstall keeps at most one live actor per room id; a concurrent
// install loses the race and gets the already-running room back.
func (h *Hub) handleInstall(req hubInstallRequest) {
	if existing, ok := h.rooms[req.room.id]; ok {
		req.resp <- existing
		return
	}
	h.rooms[req.room.id] = req.room
	req.room.SetParent(h)
	roomStarted := make(chan struct{})
	go req.room.Run(roomStarted)
	<-roomStarted
	req.resp <- req.room
}

func (h *Hub) handleRemoveRoom(roomId string) {
	r, ok := h.rooms[roomId]
	if !ok {
		return
	}
	delete(h.rooms, roomId)
	r.CloseAndRelease()
	log.Debug().Str("room", roomId).Msg("room released")
}

// RemoveRoom implements Parent; called by a room actor once it is empty.
func (h *Hub) RemoveRoom(roomId string) {
	h.removeRoomChan <- roomId
}

func (h *Hub) lookup(ctx context.Context, roomId string) (*Room, error) {
	req := hubLookupRequest{roomId: roomId, resp: make(chan *Room, 1)}
	select {
	case h.lookupReqs <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-req.resp:
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Join connects a client to a room, materializing the room from storage if
// it is not live yet. Storage I/O happens on the caller's goroutine, never
// inside the hub actor.
func (h *Hub) Join(ctx context.Context, roomId string, client *Client) error {
	for attempt := 0; attempt < 2; attempt++ {
		r, err := h.lookup(ctx, roomId)
		if err != nil {
			return err
		}

		if r == nil {
			r, err = h.materialize(ctx, roomId)
			if err != nil {
				return err
			}
		}

		jreq := roomJoinRequest{client: client, errChan: make(chan error, 1)}
		r.RequestJoin(jreq)
		select {
		case err := <-jreq.errChan:
			if err == ErrRoomClosed {
				// lost a race with the room emptying out; materialize again
				continue
			}
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return ErrRoomClosed
}

func (h *Hub) materialize(ctx context.Context, roomId string) (*Room, error) {
	exists, err := h.store.RoomExists(ctx, roomId)
	if err != nil {
		return nil, fmt.Errorf("checking room %s: %w", roomId, err)
	}
	if !exists {
		return nil, ErrRoomNotFound
	}

	questions, err := h.store.Questions(ctx, roomId)
	if err != nil {
		return nil, fmt.Errorf("loading questions for %s: %w", roomId, err)
	}
	polls, err := h.store.ActivePolls(ctx, roomId)
	if err != nil {
		return nil, fmt.Errorf("loading polls for %s: %w", roomId, err)
	}
	seeds := make([]PollSeed, 0, len(polls))
	for _, p := range polls {
		voters, err := h.store.PollVoters(ctx, p.Id)
		if err != nil {
			return nil, fmt.Errorf("loading voters for poll %s: %w", p.Id, err)
		}
		expiresAt, err := h.store.PollExpiry(ctx, p.Id)
		if err != nil {
			return nil, fmt.Errorf("loading expiry for poll %s: %w", p.Id, err)
		}
		seeds = append(seeds, PollSeed{Poll: p, ExpiresAt: expiresAt, Voters: voters})
	}

	r := NewRoom(roomId, h.store, h.pollTTL)
	r.Seed(questions, seeds)

	req := hubInstallRequest{room: r, resp: make(chan *Room, 1)}
	select {
	case h.installReqs <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case installed := <-req.resp:
		return installed, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ParticipantCount reports the live participant count; 0 when the room has
// no connected clients.
func (h *Hub) ParticipantCount(ctx context.Context, roomId string) int {
	r, err := h.lookup(ctx, roomId)
	if err != nil || r == nil {
		return 0
	}
	return r.ParticipantCount(ctx)
}

// LivePolls returns the live actor's poll snapshot, or ok=false when the
// room is not materialized and the caller should fall back to storage.
func (h *Hub) LivePolls(ctx context.Context, roomId string) ([]event.Poll, bool) {
	r, err := h.lookup(ctx, roomId)
	if err != nil || r == nil {
		return nil, false
	}
	return r.ActivePolls(ctx)
}

// BroadcastPollUpdate pushes an authoritative poll snapshot (produced by the
// REST vote path) into the live room, if any.
func (h *Hub) BroadcastPollUpdate(ctx context.Context, roomId string, p event.Poll) {
	r, err := h.lookup(ctx, roomId)
	if err != nil || r == nil {
		return
	}
	r.ApplyPollUpdate(p)
}
