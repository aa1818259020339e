package executor

import (
	"errors"

	"github.com/bselee/enviroflow/core/adapter"
	"github.com/bselee/enviroflow/core/model"
)

var (
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrUnsupportedBrand = adapter.ErrUnsupportedBrand
	ErrDecryption       = errors.New("credential decryption failed")
	ErrConnection       = errors.New("connection failed")
	ErrCommand          = errors.New("command failed")
	ErrReadOnlyBrand    = errors.New("brand is read-only")
	ErrInvalidSchedule  = errors.New("invalid schedule")
)

// KindOf maps an error to its ErrorKind.
func KindOf(err error) model.ErrorKind {
	switch {
	case err == nil:
		return model.KindNone
	case errors.Is(err, ErrRateLimited):
		return model.KindRateLimited
	case errors.Is(err, ErrUnsupportedBrand):
		return model.KindUnsupported
	case errors.Is(err, ErrDecryption):
		return model.KindDecryption
	case errors.Is(err, ErrConnection):
		return model.KindConnection
	case errors.Is(err, ErrReadOnlyBrand):
		return model.KindReadOnly
	case errors.Is(err, ErrInvalidSchedule):
		return model.KindInvalid
	default:
		return model.KindCommand
	}
}
