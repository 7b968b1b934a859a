// Package metrics exposes Prometheus collectors for the stub server.
//
// Each Metrics value owns its registry, so several servers (and tests) can
// run in one process without colliding on the default registerer.
//
// Collected series:
//
//   - stubd_requests_total: stubbed requests (labels: method, outcome, status)
//   - stubd_request_duration_seconds: stubbed request latency (labels: outcome)
//   - stubd_mapping_hits_total: selections per mapping (labels: mapping_id)
//   - stubd_mappings: mappings in the current store snapshot
//   - stubd_template_warnings_total: responses rendered with unresolved placeholders
//   - stubd_scenario_transitions_total: applied scenario transitions (labels: scenario)
//   - stubd_admin_requests_total: admin API calls (labels: method, route, status)
//   - stubd_admin_request_duration_seconds: admin API latency (labels: route)
//   - stubd_in_flight: requests currently being served
//
// A nil *Metrics is valid and records nothing.
package metrics
