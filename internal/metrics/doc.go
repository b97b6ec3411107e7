// Package metrics provides the observability hooks of the asset pipeline.
//
// Components receive a Recorder through dependency injection. NoopRecorder is
// the default so callers never need nil checks; PrometheusRecorder is swapped
// in when the dev server exposes /metrics.
//
//	rec := metrics.NewPrometheusRecorder(reg)
//	graph := taskgraph.New(taskgraph.WithObserver(metrics.TaskObserver{Recorder: rec}))
//
// Task durations and outcomes are fed by TaskObserver. Watch triggers and
// live-reload activity are recorded by the watch and server packages.
package metrics
