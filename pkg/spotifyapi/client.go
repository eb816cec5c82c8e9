package spotifyapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// CurrentlyPlaying gets the track a user is currently playing,
// it returns (nil, nil) if nothing is being played
func (c *Client) CurrentlyPlaying(ctx context.Context, accessToken string) (*CurrentlyPlaying, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+currentlyPlayingPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if len(body) == 0 {
			return nil, nil
		}
		var playing CurrentlyPlaying
		if err = json.Unmarshal(body, &playing); err != nil {
			return nil, fmt.Errorf("error parsing currently-playing response: %w", err)
		}
		return &playing, nil
	case http.StatusUnauthorized:
		return nil, ErrAuthorizationExpired
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	default:
		return nil, fmt.Errorf("%w: unexpected status %d (%s)", ErrUnknown, resp.StatusCode, body)
	}
}
