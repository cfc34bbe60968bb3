package model

import "errors"

// Initialization errors. All of them are fatal: the model cannot run.
var (
	// ErrInvalidConfig indicates a parameter outside its admissible range.
	ErrInvalidConfig = errors.New("model: invalid configuration")

	// ErrMoistureRange indicates an initial water content outside [thr, ths].
	ErrMoistureRange = errors.New("model: initial moisture outside [thr, ths]")

	// ErrLengthMismatch indicates input series of different lengths.
	ErrLengthMismatch = errors.New("model: input arrays have mismatched lengths")
)
