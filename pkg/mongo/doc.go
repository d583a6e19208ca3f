// Package mongo connects to MongoDB with the official v2 driver.
//
// Config is populated from MONGODB_* environment variables. New pings the
// deployment before returning the client, retrying on failure, and
// Healthcheck wraps the same ping for readiness endpoints.
//
//	var cfg mongo.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//
//	db, err := mongo.NewWithDatabase(ctx, cfg, "entitlements")
//	if err != nil {
//		return err
//	}
//	defer db.Client().Disconnect(context.Background())
//
//	usage, err := mongostore.New(ctx, db)
//
// Connection failures are returned joined with ErrFailedToConnectToMongo.
package mongo
