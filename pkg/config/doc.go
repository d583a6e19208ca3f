// Package config loads configuration structs from environment variables.
//
// It combines github.com/joho/godotenv, which reads .env files into the
// process environment, with github.com/caarlos0/env/v11, which parses the
// environment into structs annotated with env tags. Each configuration type
// is parsed once and cached for the life of the process, so packages can
// call Load for the same type independently.
//
// # Usage
//
//	if err := config.LoadEnv(".env.local"); err != nil {
//		log.Fatal(err)
//	}
//
//	var pgCfg pg.Config
//	if err := config.Load(&pgCfg); err != nil {
//		log.Fatal(err)
//	}
//
//	var cfg entitlement.Config
//	config.MustLoad(&cfg)
//
// Variables already present in the environment are never overwritten by
// .env files.
//
// # Errors
//
// ErrParsingConfig wraps parser failures such as a missing required
// variable; ErrLoadingEnvFile wraps unreadable .env files; ErrNilPointer is
// returned for a nil destination.
//
// # Testing
//
// ResetCache clears the cache so a test can parse a type again after
// changing the environment.
package config
