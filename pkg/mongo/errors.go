package mongo

import "errors"

var (
	ErrEmptyConnectionURL     = errors.New("mongo.errors.empty_connection_url")
	ErrFailedToConnectToMongo = errors.New("mongo.errors.connection_failed")
	ErrHealthcheckFailed      = errors.New("mongo.errors.healthcheck_failed")
)
