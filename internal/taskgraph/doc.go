// Package taskgraph defines named build tasks and composes them into
// sequences and parallel groups.
//
// A Graph maps task names to bodies. Bodies are built from Ref (another task
// by name), Series, Parallel and Inline (an anonymous function). Names are
// resolved lazily, so tasks may reference tasks defined later, but Run
// validates everything reachable from the requested names before the first
// task starts: an unknown name or a reference cycle is a ConfigError and
// nothing runs.
//
// Execution guarantees:
//   - Series starts each node only after the previous one returned, and stops
//     at the first error.
//   - Parallel starts every node at once and waits for all of them. A failure
//     does not cancel siblings; the first error is returned once all finished.
//   - A task body may return Tolerate(err): the failure is reported to
//     observers with OutcomeTolerated but the composition carries on as if the
//     task succeeded. Watch-mode tasks use this to stay alive across bad edits.
package taskgraph
