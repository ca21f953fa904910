package bazaar

import "errors"

var (
	ErrInvalidParam   = errors.New("the param is invalid")
	ErrNotFound       = errors.New("not found")
	ErrShutdown       = errors.New("market service is shutting down")
	ErrTimeout        = errors.New("timeout")
	ErrUnknownProduct = errors.New("product is not in the catalogue")
	ErrInternal       = errors.New("internal error")
)
