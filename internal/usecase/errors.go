package usecase

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("resource not found")
	ErrLineupNotLoaded    = errors.New("lineup not loaded")
	ErrStoreClosed        = errors.New("lineup store closed")
	ErrOptimizationFailed = errors.New("optimization failed")
	ErrSyncExhausted      = errors.New("realtime reconnect attempts exhausted")
)
