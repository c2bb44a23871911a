package biz

import (
	"errors"
)

var (
	ErrInvalidToken    = errors.New("invalid session token")
	ErrInvalidPassword = errors.New("invalid email or password")
	ErrInvalidJWT      = errors.New("invalid step-up token")
	ErrNotInitialized  = errors.New("system not initialized")
	ErrInternal        = errors.New("server internal error, please try again later")
)
