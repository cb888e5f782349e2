package recording

import "errors"

var (
	ErrNotFound            = errors.New("recording: not found")
	ErrInvalidArgument     = errors.New("recording: invalid argument")
	ErrRangeNotSatisfiable = errors.New("recording: range not satisfiable")

	errNoChunks    = errors.New("no chunks")
	errEmptyOutput = errors.New("merged output is empty")
)
