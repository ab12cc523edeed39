// Package integration owns the lifecycle of the linked Spotify account.
//
// The [Controller] is the only writer of integration records and the only publisher of
// playback configuration. Every state-changing flow (connect, disconnect, switch, legacy
// migration, callback completion) routes through [Controller.UpdateConfig] before it
// returns, so the playback library always reflects the stored authoritative record.
//
// Process-wide state lives in explicit objects handed to [New]: [ClientCredentials] holds
// the application credentials fetched from the backend, [UserCache] holds the last
// fetched Spotify profile and [CredentialBridge] turns records into full configuration
// snapshots.
//
// Remote failures are logged and the flow continues on local state. A declined or
// dismissed confirmation is a normal outcome ([OutcomeDeclined]), not an error.
package integration
