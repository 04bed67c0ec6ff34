package fireauth

import "encoding/json"

// APIKey is the provider web API key used to qualify every endpoint
type APIKey string

// RedactedAPIKey is the redacted string or json for an API key
const RedactedAPIKey = "[REDACTED: api key]"

// String will redact the key
func (k APIKey) String() string {
	return RedactedAPIKey
}

// MarshalJSON will redact the key
func (k APIKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedAPIKey)
}

// IDToken is the short-lived bearer credential authenticating calls to the
// provider
type IDToken string

// RedactedIDToken is the redacted string or json for an id token
const RedactedIDToken = "[REDACTED: id_token]"

// String will redact the token
func (t IDToken) String() string {
	return RedactedIDToken
}

// MarshalJSON will redact the token
func (t IDToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedIDToken)
}

// RefreshToken is the long-lived credential exchanged for a new id token
type RefreshToken string

// RedactedRefreshToken is the redacted string or json for a refresh token
const RedactedRefreshToken = "[REDACTED: refresh_token]"

// String will redact the token
func (t RefreshToken) String() string {
	return RedactedRefreshToken
}

// MarshalJSON will redact the token
func (t RefreshToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedRefreshToken)
}
