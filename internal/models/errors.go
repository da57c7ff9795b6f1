package models

import (
	"errors"
	"fmt"
)

// Application-wide standard errors
var (
	// Common Resource/DB Errors
	ErrNotFound        = errors.New("resource not found")
	ErrAccountNotFound = errors.New("credit account not found")

	// Validation Errors. Конкретные ошибки оборачивают ErrInvalidInput,
	// чтобы обработчики могли матчить и частный случай, и весь класс.
	ErrInvalidInput        = errors.New("invalid input data")
	ErrInvalidLevel        = fmt.Errorf("%w: unknown compression level", ErrInvalidInput)
	ErrNegativeCeiling     = fmt.Errorf("%w: token ceiling must not be negative", ErrInvalidInput)
	ErrEmptyUserID         = fmt.Errorf("%w: user id is empty", ErrInvalidInput)
	ErrInvalidStoryContext = fmt.Errorf("%w: story context is invalid", ErrInvalidInput)

	// Billing Errors
	ErrInsufficientCredits = errors.New("insufficient credits for operation")

	// Generation Errors
	ErrGenerationFailed = errors.New("AI text generation failed")
)
