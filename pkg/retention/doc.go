// Package retention defines the shared model of the retention policy engine:
// policies assigned to managed containers, per-file retention records, the
// append-only processing log, and scheduled notifications.
//
// # Architecture
//
// The engine is split into packages that build on each other:
//
//  1. period    - calendar-correct expiration math and period validation
//  2. store     - persistence for policies, assignments, records and logs
//  3. policy    - administrative policy CRUD and container assignment
//  4. resolver  - deterministic selection of the policy that applies to a file
//  5. records   - per-file retention assignment on behalf of users
//  6. executor  - applies the disposal action for one record
//  7. scheduler - periodic batch driver over due records
//
// # Record Lifecycle
//
// A record is created active and is only ever moved forward:
//
//	active ──claim──▶ processing ──success──▶ processed
//	   │                   │
//	   │                   └──failure──▶ active (retried next tick)
//	   └──remove──▶ cancelled
//
// The processing state is an explicit claim taken with a conditional update
// before any action runs, so overlapping batch runs never act on the same
// record twice. Processed and cancelled records are terminal; setting
// retention again on the file creates a new record.
//
// # Errors
//
// Every operation reports failures through the typed errors in this package
// (ValidationError, NotFoundError, ConflictError, ProcessingError and
// CriticalJobError). Callers use errors.As, or the Is* helpers, to map them
// onto transport status codes.
package retention
