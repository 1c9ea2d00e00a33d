// Package session keeps the client's signed-in state and performs calls on
// its behalf: it attaches the access token, refreshes it once when the
// server answers 401, and replays the call.
package session

import "time"

// State is where the session is in its lifecycle.
type State int

const (
	Unauthenticated State = iota
	Authenticated
	Refreshing
	// Expired is Authenticated with a locally known access expiry in the
	// past. The next call will refresh.
	Expired
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "Authenticated"
	case Refreshing:
		return "Refreshing"
	case Expired:
		return "Expired"
	default:
		return "Unauthenticated"
	}
}

// Credentials is the token pair of a signed-in session.
type Credentials struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}
