// Package auth validates static API keys issued to service clients of the
// retention API.
//
// Keys are configured under auth.api_keys and map to the user recorded as
// the actor of every change made with them.
package auth
