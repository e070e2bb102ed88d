package utils

import "errors"

// ErrInvalidDifficulty is returned when converting a non-positive difficulty
// value into a target.
var ErrInvalidDifficulty = errors.New("difficulty must be positive")

// ErrNilGormDB is returned by data access methods invoked without a database
// handle.
var ErrNilGormDB = errors.New("nil gorm db")
