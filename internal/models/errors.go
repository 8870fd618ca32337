package models

import "errors"

var (
	ErrUnauthorized = errors.New("caller is not identified")
	ErrForbidden    = errors.New("caller does not have permission for this operation")
	ErrNotFound     = errors.New("requested entity does not exist")
	ErrConflict     = errors.New("entity with the same natural key already exists")
)
