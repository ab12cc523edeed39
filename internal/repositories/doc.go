// Package repositories implements persistence for integration records and local settings.
//
// Key Implementations:
//   - [IntegrationRepository] : linked third-party accounts in SQLite, soft-deleted on removal
//   - [SettingsRepository] : SQLite-backed [KeyValueStore] for session token, callback state and legacy keys
//   - [RedisKeyValueStore] : Redis-backed [KeyValueStore] shared between editor instances
//
// Integration records carry a per-table sequence number assigned on insert so that
// "newest active record wins" can be decided without relying on timestamps.
//
// The repositories apply no business rules beyond filtering. Callers serialize writes.
package repositories
