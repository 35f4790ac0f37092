// Package logging builds the process slog logger and carries request-scoped
// loggers through context.
//
// LOG_LEVEL selects debug, info, warn or error. LOG_FORMAT=text switches from
// JSON to the text handler for local runs.
//
//	logger := logging.NewLogger()
//	slog.SetDefault(logger)
//
//	func handle(ctx context.Context) {
//	    logging.FromContext(ctx).Info("processing request")
//	}
package logging
