// Package requestlog is the request journal: a bounded record of every
// request the mock listener served, which mapping answered it and with
// what status. Unmatched entries carry the near-miss report.
//
// It is distinct from operational logging (log/slog). The engine writes
// entries through Logger; the admin API reads them through Store.
//
//	journal := requestlog.NewMemoryStore(1000)
//	journal.Log(&requestlog.Entry{Method: "GET", Path: "/test", ResponseStatus: 200})
//	unmatched := journal.List(&requestlog.Filter{Matched: requestlog.Bool(false)})
//
// This is a leaf package so any component can record entries without
// import cycles.
package requestlog
