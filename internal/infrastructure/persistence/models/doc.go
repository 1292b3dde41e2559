// Package models contains the GORM persistence models for the accounting
// tables. Domain entities in internal/domain/accounting carry no ORM tags;
// each model here converts to and from its entity with ToDomain and a
// FromDomain constructor, and repositories only ever touch models.
//
// Tables:
//   - accounting_webhook_events: queued provider notifications
//   - accounting_sync_records: local to upstream id mappings
//   - integration_connections: active provider connection per org
//   - invoices / payments: the local rows reconciliation writes to
//
// AccountingModels lists every model so tests can AutoMigrate against
// sqlite. Production schemas come from the SQL files in migrations/.
package models
