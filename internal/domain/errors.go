package domain

import "errors"

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnknownInterval = errors.New("unknown interval")
	ErrFinerResample   = errors.New("cannot resample to a finer interval")
	ErrNonBinaryMarket = errors.New("market is not binary")
	ErrNoData          = errors.New("no data")
	ErrInvalidConfig   = errors.New("invalid config")
	ErrEngineState     = errors.New("invalid engine state")
)
