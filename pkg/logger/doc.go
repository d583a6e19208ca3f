// Package logger builds the *slog.Logger shared by the entitlement engine,
// its stores and the entitlements command.
//
// New takes Option values. WithEnvironment picks text at debug level for
// development and JSON at info level for staging and production, and tags
// every record with the service and environment. Later options win, so a
// WithLevel placed after it overrides the preset:
//
//	log := logger.New(
//		logger.WithOutput(os.Stderr),
//		logger.WithEnvironment(cfg.Environment, "entitlements"),
//		logger.WithLevel(slog.LevelWarn),
//		logger.WithContextExtractors(entitlement.LoggerExtractor()),
//	)
//	logger.SetAsDefault(log)
//
// Context extractors run for every record through LogHandlerDecorator.
// entitlement.LoggerExtractor adds organization_id for requests carrying an
// organization set by entitlement.WithOrganization.
//
// Attribute helpers keep key names identical across packages:
// OrganizationID, WorkspaceID, Feature, PlanID, Backend, Component, Duration
// and Error. Error and Errors return an empty attribute for nil errors.
//
//	log.LogAttrs(ctx, slog.LevelDebug, "feature consumption",
//		logger.OrganizationID(org.ID),
//		logger.Feature(string(f)),
//		logger.Error(err),
//	)
package logger
