// Package orchestrate holds the application use cases around the
// ScheduledTask aggregate: create, update, cancel, execute (single,
// due-batch, overdue-batch), and list.
//
// Every operation returns a discriminated Result instead of an error:
// validation, not-found, permission, execution, and system failures are
// data, not panics. Audit-log and event-bus failures are swallowed
// (logged) so they never mask the primary outcome.
package orchestrate
