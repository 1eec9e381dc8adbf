// Package auth provides dashboard accounts and token authentication.
//
// Passwords are hashed with Argon2id in PHC string format. A successful
// login issues an HS256 JWT carrying the user's ID and display name; the
// token is validated by signature and expiry only, without a database hit.
//
// There are no roles: any authenticated user may manage devices and
// plants. GET /api/registered lets the dashboard offer first-run
// registration while no account exists.
package auth
