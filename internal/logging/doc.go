// Package logging provides structured logging for resolvd.
//
// Logger wraps Zap with context-aware methods that attach correlation
// fields automatically: trace and span ids, the request id, and the error
// signature, kind and plan id of the error currently being resolved.
//
//	ctx = logging.WithSignature(ctx, sig)
//	ctx = logging.WithErrorKind(ctx, "TABLE_NOT_FOUND")
//	logger.Info(ctx, "plan generated", zap.String("strategy", "preventive"))
//
// Output:
//
//	{"ts":"...","level":"info","msg":"plan generated",
//	 "error.signature":"3f1a9c0d22be","error.kind":"TABLE_NOT_FOUND",
//	 "strategy":"preventive"}
//
// Stdout output is JSON (or console) with a redacting encoder, and can be
// teed into an OpenTelemetry log provider. Sampling never drops errors.
// Components that only need a *zap.Logger receive Logger.Underlying().
package logging
