package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	IntroSeconds          = 5    // fixed intro clip length
	OutroSeconds          = 5    // fixed outro clip length
	DefaultFeatureSeconds = 3600 // used when the media probe fails
)

// Clip is one playlist entry.  Source is relative to the static root so the
// browser can load it directly.
type Clip struct {
	Source   string `json:"src"`
	Duration int    `json:"duration"` // seconds
}

// Playlist is the ordered list of clips played during a screening.
type Playlist []Clip

// BuildPlaylist returns [intro, feature, outro].  A non-positive feature
// duration is replaced by DefaultFeatureSeconds.
func BuildPlaylist(intro, feature, outro string, featureSeconds int) Playlist {
	if featureSeconds <= 0 {
		featureSeconds = DefaultFeatureSeconds
	}
	return Playlist{
		{Source: intro, Duration: IntroSeconds},
		{Source: feature, Duration: featureSeconds},
		{Source: outro, Duration: OutroSeconds},
	}
}

// DurationAt returns the duration of clip i, falling back to the default
// feature length for clips stored without one.
func (p Playlist) DurationAt(i int) (int, bool) {
	if i < 0 || i >= len(p) {
		return 0, false
	}
	if p[i].Duration <= 0 {
		return DefaultFeatureSeconds, true
	}
	return p[i].Duration, true
}

// MarshalPlaylist encodes p for the playlist_json column.
func MarshalPlaylist(p Playlist) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ParsePlaylist decodes the playlist_json column.  An empty playlist is an
// error because an ACTIVE session needs at least one clip.
func ParsePlaylist(raw string) (Playlist, error) {
	var p Playlist
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode playlist: %w", err)
	}
	if len(p) == 0 {
		return nil, errors.New("decode playlist: empty")
	}
	return p, nil
}
