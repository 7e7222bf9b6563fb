package store

import "errors"

var (
	ErrNotFound      = errors.New("record not found")
	ErrDuplicateSlug = errors.New("publication slug already exists")
)
