// Package models defines domain entities for the Spotify integration lifecycle.
//
// The package contains two categories of types:
//
// 1. Data Transfer Objects (DTOs): payloads exchanged with the account backend
//   - [RemoteUser] : the backend's view of the signed-in user and their linked accounts
//   - [RemoteIntegration] : one linked account inside a [RemoteUser]
//
// 2. Persistent Entities: database-backed models
//   - [Integration] : a stored link to a third-party music provider with its OAuth tokens
//
// Persistent entities implement the [Model] interface providing ID, timestamps and validation.
// Provider and status comparisons are case-insensitive throughout.
package models
