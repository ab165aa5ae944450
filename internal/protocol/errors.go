package protocol

import "errors"

var (
	// ErrMalformedResponse means the bytes could not be parsed as a frame or as JSON
	ErrMalformedResponse = errors.New("malformed agent response")
	// ErrUnrecognizedResponse means the JSON was valid but matched no known response
	ErrUnrecognizedResponse = errors.New("unrecognized agent response")
	// ErrAgentFailure means the agent answered with a Failure result
	ErrAgentFailure = errors.New("agent reported failure")
	// ErrFrameTooLarge means a declared frame length exceeds MaxFrameSize
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
)
