package core

import "errors"

// Errors
var (
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrOrderExists      = errors.New("order exists")
	ErrNonexistentOrder = errors.New("nonexistent order")
	ErrUnknownEvent     = errors.New("unknown event")
)
