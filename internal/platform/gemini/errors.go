package gemini

import "errors"

// Error definitions for the gemini package.
var (
	// ErrInvalidConfig is returned when the API key or model is missing.
	ErrInvalidConfig = errors.New("invalid gemini configuration")

	// ErrInvalidResponse is returned when the model output cannot be used.
	ErrInvalidResponse = errors.New("invalid response from gemini")

	// ErrContentBlocked is returned when safety filters stopped generation.
	ErrContentBlocked = errors.New("content blocked by gemini safety filters")

	// ErrAudioTooLarge is returned for recordings over the inline limit.
	ErrAudioTooLarge = errors.New("audio exceeds inline upload limit")

	// ErrEmptyText is returned when Analyze is called without text.
	ErrEmptyText = errors.New("text cannot be empty")
)
