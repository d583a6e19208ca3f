package mongostore

import "errors"

var (
	ErrFailedToCreateIndexes = errors.New("mongostore.errors.failed_to_create_indexes")
	ErrCorruptDocument       = errors.New("mongostore.errors.corrupt_document")
)
