// Package sqlrun validates and executes read-only SQL statements and
// converts their results into the canonical result envelope.
//
// Validation is a security boundary, not a parser: anything that is not a
// single SELECT statement is rejected before the database is contacted,
// and the check is robust to leading comments, case variation, string
// literals and trailing semicolons. Ambiguous input is rejected by
// default.
package sqlrun
