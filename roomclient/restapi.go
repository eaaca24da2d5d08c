package roomclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Nebulaz7/veil/event"
)

// HTTPRoomAPI talks to the server's REST surface. The bearer token is
// attached when the session carries one; anonymous viewers call the public
// endpoints without it.
type HTTPRoomAPI struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewHTTPRoomAPI(baseURL, token string) *HTTPRoomAPI {
	return &HTTPRoomAPI{
		BaseURL: baseURL,
		Token:   token,
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (a *HTTPRoomAPI) Room(ctx context.Context, roomId string) error {
	return a.getJSON(ctx, fmt.Sprintf("/rooms/%s", roomId), &struct{}{})
}

func (a *HTTPRoomAPI) ParticipantCount(ctx context.Context, roomId string) (int, error) {
	var count int
	if err := a.getJSON(ctx, fmt.Sprintf("/user/room/%s/no", roomId), &count); err != nil {
		return 0, err
	}
	return count, nil
}

func (a *HTTPRoomAPI) ActivePolls(ctx context.Context, roomId string) ([]event.Poll, error) {
	var polls []event.Poll
	if err := a.getJSON(ctx, fmt.Sprintf("/rooms/%s/polls", roomId), &polls); err != nil {
		return nil, err
	}
	return polls, nil
}

// Vote casts a positional vote over REST. The server resolves the index
// itself, so no option-id mapping is involved on this path.
func (a *HTTPRoomAPI) Vote(ctx context.Context, pollId string, optionIndex int) (event.Poll, error) {
	body, err := json.Marshal(map[string]int{"optionIndex": optionIndex})
	if err != nil {
		return event.Poll{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+fmt.Sprintf("/polls/%s/vote", pollId), bytes.NewReader(body))
	if err != nil {
		return event.Poll{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	a.authorize(req)

	resp, err := a.Client.Do(req)
	if err != nil {
		return event.Poll{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return event.Poll{}, fmt.Errorf("vote request failed with status %d", resp.StatusCode)
	}

	var poll event.Poll
	if err := json.NewDecoder(resp.Body).Decode(&poll); err != nil {
		return event.Poll{}, err
	}
	return poll, nil
}

func (a *HTTPRoomAPI) getJSON(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.BaseURL+path, nil)
	if err != nil {
		return err
	}
	a.authorize(req)

	resp, err := a.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request for %s failed with status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func (a *HTTPRoomAPI) authorize(req *http.Request) {
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}
}
