// Package fireauth integrates the Firebase identity provider's REST API
// (the identitytoolkit relying-party surface) into a generic application
// auth orchestrator. It provides password login, token refresh, profile
// fetch/update, password and email verification flows, and a session
// lifecycle manager that tracks access-token expiry and proactively
// refreshes tokens before they lapse.
package fireauth
