// Package logger wraps zap with a global sugared logger, context helpers
// (ToContext/FromContext/WithName/WithKV), level parsing, and leveled
// convenience functions.
//
// Logs go to stderr: stdout is reserved for the packing report.
package logger
