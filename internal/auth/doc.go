// Package auth issues and validates the bearer tokens that protect the
// bridge's HTTP command endpoint.
//
// Tokens are HS256 JWTs signed with api.auth.secret. Each carries a subject
// (who asked for it), the vehicle it is valid for and a scope. Validation is
// by signature and expiry only; there is no token store.
//
//	token, err := auth.GenerateAccessToken("ops", "car1", auth.ScopeCommand, secret, time.Hour)
//	claims, err := auth.ParseToken(token, secret)
//	if claims.Allows(auth.ScopeCommand) { ... }
package auth
