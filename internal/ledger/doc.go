// Package ledger records terminal job outcomes in SQLite. The ledger
// is an audit surface for the history command and the jobs API; it is
// not consulted by the pipeline and holds no in-flight state.
package ledger
