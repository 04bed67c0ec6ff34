package fireauth

// User is the profile projection stored into the orchestrator after a
// successful account lookup.
type User struct {
	UID           string
	DisplayName   string
	Email         string
	EmailVerified bool
	PhotoURL      string
}
