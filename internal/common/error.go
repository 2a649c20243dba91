package common

import "fmt"

var (
	ErrNotFound            = fmt.Errorf("not found")
	ErrInvalidPath         = fmt.Errorf("invalid file path")
	ErrInvalidLink         = fmt.Errorf("invalid link")
	ErrExpiredLink         = fmt.Errorf("link expired")
	ErrPaymentNotConfirmed = fmt.Errorf("payment not confirmed")
	ErrAccessDenied        = fmt.Errorf("access denied")
	ErrBuildFailure        = fmt.Errorf("cannot build artifact")
)
