package spotifyapi

import "strings"

// artistSeparator joins multiple artist names into one display string
const artistSeparator = ", "

// CurrentlyPlaying represents a response of the currently-playing endpoint
type CurrentlyPlaying struct {
	IsPlaying bool   `json:"is_playing"`
	Item      *Track `json:"item"`
}

// Track represents a Spotify track
type Track struct {
	Name         string            `json:"name"`
	Artists      []Artist          `json:"artists"`
	Href         string            `json:"href"`
	ExternalURLs map[string]string `json:"external_urls"`
}

// Artist represents a Spotify artist
type Artist struct {
	Name string `json:"name"`
}

// JoinedArtists returns the track's artist names joined into one string
func (t Track) JoinedArtists() string {
	names := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		names[i] = a.Name
	}
	return strings.Join(names, artistSeparator)
}

// OpenURL returns a URL a user can open the track with, preferring the
// public open.spotify.com link over the API resource href
func (t Track) OpenURL() string {
	if url, ok := t.ExternalURLs["spotify"]; ok && url != "" {
		return url
	}
	return t.Href
}
