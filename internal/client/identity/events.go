package identity

// Event is an authentication state change.
type Event string

const (
	EventSignIn  Event = "signin"
	EventSignOut Event = "signout"
)

// Listener receives identity events together with the affected user id.
type Listener func(ev Event, userID string)
