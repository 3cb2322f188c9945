// Package oauth drives the credential lifecycle for the two identity
// providers milecal fronts.
//
// The primary provider (Google) establishes the session identity, feeds
// role derivation, and supports refresh. The secondary provider
// (GitHub) supplies a bearer token for the milestone integration and
// has no refresh support: an invalid token forces a fresh authorization
// redirect.
//
// Per session and provider the lifecycle is
//
//	Unlinked -> Pending(csrf state) -> Linked -> Expired/Invalid -> Unlinked
//
// The managers themselves are stateless; every transition is recorded
// in the session store by the gateway handlers. Both network calls of a
// completion (code exchange, identity verification) are bounded by a
// timeout, and a timeout is indistinguishable from an exchange failure.
package oauth
