// Package cmd defines the purifier CLI: one-shot operator commands against
// the manager, a live terminal episode view and the console HTTP API.
//
// Architecture overview:
//   - Every command loads config (viper, PURIFIER_* env overrides), builds an
//     app container in PersistentPreRunE and closes it in PersistentPostRun.
//   - Operator mutations go through internal/console, which validates input,
//     calls the manager's REST API and records an audit entry.
//   - watch, progress tail and serve open the progress channel. It reconnects
//     after a fixed delay whenever the socket drops; the snapshot it keeps
//     overlays live percent and stage on queued and processing rows.
//   - serve exposes internal/api.Server and drains for up to 10s on SIGINT or
//     SIGTERM.
package cmd
