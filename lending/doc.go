// Package lending provides the core types and the lending engine for a
// library's circulating collection: catalog, members and the full loan
// lifecycle (issue, return, renew, overdue tracking).
//
// The package guarantees that a title's availability counter and the set of
// open loans in the ledger never diverge, even under concurrent operations.
// All mutating operations run as a single atomic transaction against a
// backing Store; the overdue status of a loan is never persisted but derived
// at read time.
//
// Key types:
//   - Engine: orchestrates Issue/Return/Renew and the overdue scan
//   - BookTitle, Member, Loan: the persistent records
//   - LoanFilter: criteria for querying the loan ledger
//   - Store, TxStore: the narrow persistence contracts backends implement
//
// Common usage pattern:
//
//	engine, err := lending.NewEngine(store,
//		lending.WithLoanPeriod(21*24*time.Hour),
//	)
//	if err != nil {
//		...
//	}
//
//	loan, err := engine.Issue(ctx, lending.BuildIssueCommand(memberID, titleID))
//	switch {
//	case lending.IsNotFound(err):
//		// bad id supplied by the caller
//	case lending.IsPreconditionFailed(err):
//		// business rule rejection, show to the user
//	case err != nil:
//		// infrastructure failure
//	}
//
// Backend implementations live in the sub-packages memorystore (in-memory,
// for tests and embedding) and postgresstore (PostgreSQL).
package lending
