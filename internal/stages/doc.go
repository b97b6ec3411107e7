// Package stages implements the concrete pipeline tasks: clean, styles,
// webpack (scripts), styles:assets (static images) and assets (HTML).
//
// Every stage receives the build mode explicitly and exposes a Run method
// with the taskgraph.Func signature. Compile failures are logged and sent to
// the notifier; in development they are returned as tolerated so the watch
// session keeps going, in production they fail the task.
package stages
