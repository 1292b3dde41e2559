// Package accounting contains the Accounting Integration bounded context.
//
// The context keeps local invoices and payments consistent with an external
// bookkeeping system. The bookkeeping system announces entity changes through
// webhooks; the changes are queued as WebhookEvents and a batch worker later
// fetches the authoritative snapshot for each one and merges it locally.
//
// Key concepts:
//   - WebhookEvent: one inbound entity-change notification, queued until it
//     reaches a terminal status
//   - SyncRecord: bookkeeping row linking a local entity to its external id
//   - IntegrationConnection: a tenant's authorized link to one external realm
//   - AccountingClient: port used to fetch snapshots from the external system
package accounting
