package model

// Role of a room participant. The host is the single authority for
// playback state over the live channel; everyone else is a viewer.
type Role string

const (
	RoleHost   Role = "host"
	RoleViewer Role = "viewer"
)

// ParseRole coerces a client-asserted role string to a known role.
// Anything that is not exactly "host" joins as a viewer.
func ParseRole(s string) Role {
	if s == string(RoleHost) {
		return RoleHost
	}
	return RoleViewer
}

type (
	// PlaybackState is the latest playback snapshot for a room. It is
	// always replaced wholesale, never merged.
	PlaybackState struct {
		Playing      bool    `json:"playing"`
		CurrentTime  float64 `json:"currentTime"`
		PlaybackRate float64 `json:"playbackRate"`
		LastHostTs   int64   `json:"lastHostTs"`
	}

	// Member identifies the originator of a relayed message.
	Member struct {
		ID       string `json:"id"`
		Nickname string `json:"nickname"`
		Role     Role   `json:"role,omitempty"`
	}
)
