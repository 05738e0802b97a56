package cpu

import "errors"

var (
	ErrNoSceneData  = errors.New("cpu tracer: no scene data attached to block request")
	ErrInvalidBlock = errors.New("cpu tracer: invalid block request")
	ErrTracerClosed = errors.New("cpu tracer: tracer is closed")
	ErrTracerBusy   = errors.New("cpu tracer: tracer is busy")
)
