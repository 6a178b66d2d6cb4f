// Package oauth implements federated sign-in through external OpenID Connect
// providers.
//
// A login attempt starts with a random state and a PKCE verifier. The state
// and verifier are parked in a StateCache, and the user is redirected to the
// provider's AuthCodeURL. The callback must present a state that is still in
// the cache. Take hands the verifier out once, so a replayed callback fails.
// Exchange then redeems the code, verifies the ID token, and returns an
// identity.Assertion for the reconciler.
package oauth
