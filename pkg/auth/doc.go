// Package auth signs Coinbase API requests.
//
// Two schemes are supported and exactly one is active per client:
//
//   - HMAC (Exchange / legacy keys): CB-ACCESS-KEY, CB-ACCESS-SIGN,
//     CB-ACCESS-TIMESTAMP and CB-ACCESS-PASSPHRASE headers, where the signature
//     is base64(HMAC-SHA256(base64decode(secret), timestamp+method+path+body)).
//   - JWT (CDP keys): an ES256 token bound to the request method, host and path,
//     valid for two minutes, sent as "Authorization: Bearer <token>".
//
// Both are reached through the sealed Signer interface so callers never
// inspect the concrete scheme. Key material lives in Credentials values that
// redact themselves when logged or marshalled and are wiped by Destroy.
package auth
