// Package token persists the gateway's Google OAuth credentials.
//
// A single TokenSet is stored as one JSON file written wholesale on every
// save. The Store keeps an in-process cache in front of the file so repeated
// loads do not hit disk. A missing or corrupt file is treated as "no
// credentials", never as a fatal error: the gateway simply starts
// unauthenticated and exposes the authorization URL.
package token
