// Package middleware provides the gateway's gin middlewares and the
// transport-independent pipeline stages that every RPC call runs through.
//
// HTTP middlewares, in registration order:
//
//	ErrorTranslator -> Correlation -> Tracing -> Metrics -> AccessLog
//
// ErrorTranslator is registered first so that it observes the outcome of
// everything after it. Handlers never write failure responses themselves;
// they record the error with c.Error and abort.
//
// Pipeline stages, in call order:
//
//	WebSocketLogging -> NormalizeKeys -> AuthGate -> procedure
package middleware
