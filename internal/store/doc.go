// Package store defines interfaces for persistence dependencies (the operator
// audit log). Implementations live in other packages; this package must not
// import database drivers or concrete clients.
package store
