// Package executor dispatches one schedule to its controller.
//
// Execute walks a fixed sequence where every step may end the execution:
// rate limit, command resolution, dry run, read-only brand, unsupported
// brand, credential decryption, then a bounded retry loop of
// connect/command/disconnect. Every outcome is returned as a
// model.ExecutionResult; Execute never returns an error and never panics on
// collaborator failures.
package executor
