package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrUpload        = errors.New("input upload rejected")
	ErrJobCreate     = errors.New("job creation rejected")
	ErrStatusQuery   = errors.New("status query failed")
	ErrResultMissing = errors.New("completed job has no matching result record")
)
