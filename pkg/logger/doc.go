// Package logger builds *slog.Logger values for tenantguard services.
//
// New returns a JSON or text logger wrapped in a ContextHandler. The handler
// runs ContextExtractor callbacks on every record, so attributes that live in
// the context, such as the active tenant, the actor and the request id, are
// attached without threading them through every call:
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "tenantd"),
//		logger.WithContextExtractors(
//			tenant.LoggerExtractor(),
//			tenant.ActorLoggerExtractor(),
//			requestid.LoggerExtractor(),
//		),
//	)
//
// The attribute helpers in attr.go keep key names consistent. Isolation
// signals carry identifiers, operation names and depths only. Payloads
// are never logged.
package logger
