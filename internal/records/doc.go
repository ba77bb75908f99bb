// Package records is a small tenant-scoped slice that runs the whole
// isolation pipeline end to end.
//
// POST /records dispatches CreateRecord through the command bus, which
// rejects it unless the declared tenant is the active one. The handler stores
// the row and a RecordCreated event in one tenant-bound transaction; the
// event is delivered after commit to ActivityProjector, which runs on the
// queue worker under the tenant stamped on the envelope. Reads go through the
// same binder, so a record that belongs to another tenant is reported as not
// found exactly like one that does not exist.
package records
