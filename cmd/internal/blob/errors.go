package blob

import "errors"

var (
	ErrNotFound    = errors.New("blob not found")
	ErrInvalidName = errors.New("invalid blob name")
	ErrEmptyFile   = errors.New("cannot store empty file")
)
