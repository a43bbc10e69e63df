// Package auth handles bearer tokens for the travel assistant API.
//
// The CLI discovers a token with Discover (VNGUIDE_TOKEN, the config file,
// then $XDG_CONFIG_HOME/vnguide/token) and wraps it in a Source, which the
// API client consults on every request. JWTs are inspected without their
// secret so an expired token is reported locally; the backend still decides.
//
// The fake backend uses JWTVerifier and BearerMiddleware to require HS256
// tokens when started with a secret.
package auth
