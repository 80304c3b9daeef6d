package rag

import "errors"

var (
	// ErrInvalidInput rejects a request before any external call is made.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUpstreamUnavailable means the embedder, index or model failed or timed out.
	// It is a failure, never an abstention.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrSessionNotFound     = errors.New("session not found")
)
