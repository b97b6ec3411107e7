// Package errors provides the classified error primitives used across assetpipe.
//
// Every task failure is expressed as a ClassifiedError so the orchestrator,
// the notification channel and the CLI can treat failures uniformly:
//   - ErrorCategory: config, validation, compile, filesystem, notify, history, runtime, internal
//   - ErrorSeverity: fatal, error, warning, info
//   - RetryStrategy: whether repeating the operation can help
//   - ErrorBuilder: fluent construction with structured context
//   - CLIErrorAdapter: exit codes and user-facing messages
//
// Example usage:
//
//	err := errors.CompileError("undefined variable").
//		WithContext("file", "src/css/index.scss").
//		WithContext("line", 12).
//		Build()
package errors
