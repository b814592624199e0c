package auth

import "errors"

// ErrConsentRequired indicates a code exchange succeeded but Google granted
// no refresh token. The authorization URL always requests offline access with
// forced re-consent, so this points at a misconfigured consent flow rather
// than a transient failure.
var ErrConsentRequired = errors.New("no refresh token granted; re-run the consent flow")

// ErrNotAuthenticated indicates an operation requiring credentials was
// attempted with none present.
var ErrNotAuthenticated = errors.New("not authenticated with Google")

// ErrNoRefreshToken indicates a refresh was requested for a token set that
// carries no refresh token and therefore can never be silently renewed.
var ErrNoRefreshToken = errors.New("token set has no refresh token")
