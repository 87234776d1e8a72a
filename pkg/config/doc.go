// Package config loads and validates pluserd settings.
//
// Settings come from the environment through cleanenv struct tags; an
// optional .env file is loaded by the command before Load is called.
//
//	cfg, err := config.Load()
//	if err != nil {
//		slog.Error("Invalid configuration", "error", err)
//		os.Exit(1)
//	}
//
// Validation collects every problem instead of stopping at the first:
//
//	err := config.Validate(
//		func() config.ValidationErrors {
//			return config.CollectErrors(
//				config.RequireAddress("PLUSER_FACTORY_OWNER", owner),
//				config.RequirePositive("RATELIMIT_GLOBAL_CAPACITY", capacity),
//			)
//		},
//	)
//
// The returned error is a ValidationErrors listing each field and message.
package config
