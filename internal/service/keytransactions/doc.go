// Package keytransactions implements key transaction bookmarks for an
// organization member: create, list with delegated metrics, delete and CSV
// export.
//
// Every operation is gated on the organizations:discover feature for the
// (organization, actor) pair, and the gate is checked before any input is
// validated.
//
// Invariants:
//   - (organization, project, owner, transaction) is unique.
//   - An owner holds at most domain.MaxKeyTransactions records per
//     (organization, project). The limit is checked before the duplicate.
//   - Records are only visible to, and deletable by, their owner.
//
// Auditing:
//   - Successful create, delete and export emit exactly one audit event.
//   - Rejected operations emit none.
package keytransactions
