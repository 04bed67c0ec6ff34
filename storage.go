package fireauth

// Storage is the persistent key/value backend (cookies, local storage, a
// file) the expiry instant survives reloads in. Implementations must be
// safe for concurrent use: the refresh scheduler reads while login/refresh
// write.
type Storage interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool)

	// Set persists value under key, replacing any existing value.
	Set(key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
}
