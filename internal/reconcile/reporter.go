// Package reconcile turns provider data into ledger writes: it transforms
// transactions, binds provider accounts to ledger accounts and adds missing
// categories. Reconciliation is additive; nothing is renamed or removed.
package reconcile

// Reporter receives the user-visible log lines of a reconciliation step.
// runlog.Recorder satisfies it.
type Reporter interface {
	Info(format string, args ...interface{})
	Success(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}
