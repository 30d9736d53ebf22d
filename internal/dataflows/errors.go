package dataflows

import "errors"

var (
	// ErrDataUnavailable means the upstream answered but had nothing usable.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrInsufficientHistory means too few rows for an indicator window.
	ErrInsufficientHistory = errors.New("insufficient price history")
	// ErrParseFailure means a payload did not have the expected shape.
	ErrParseFailure = errors.New("unexpected payload shape")
	// ErrUpstream wraps network and transport failures.
	ErrUpstream = errors.New("upstream request failed")
	// ErrModel means the language model call failed or returned nothing usable.
	ErrModel = errors.New("model error")
)
