// Package auth is the authentication core of noire: bcrypt password
// hashing, HS256 tokens scoped by audience, and the guard deciding whether
// a bearer token grants access to a route.
//
// Tokens:
//   - TokenCodec issues and verifies tokens for three audiences. Auth
//     tokens authenticate requests, signup and password reset tokens only
//     unlock their own flow.
//   - Auth tokens carry the session start (loggedInAt) and survive renewal
//     until the configured max session age.
//   - A version claim ties tokens to the user's token version. Resetting
//     the password bumps it, revoking every outstanding token.
//
// Guard:
//   - Guard.Authenticate decodes, resolves the identity, checks the version
//     and then the required scopes. Failures map to AuthError, which only
//     exposes a vague reason to clients.
//
// Activity sinks:
//   - ActivitySink receives login, renewal, access and lifecycle events.
//     Sinks run best effort, errors are logged.
//
// Claims decoration:
//   - ClaimsDecorator runs before auth tokens are signed at login. It may
//     only add Extra claims, the reserved claims stay immutable.
package auth
