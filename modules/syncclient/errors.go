package syncclient

import "errors"

var (
	ErrMissingURL   = errors.New("server url is required")
	ErrNotConnected = errors.New("not connected")
	ErrNoStroke     = errors.New("no stroke in progress")
)
