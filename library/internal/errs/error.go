package errs

import (
	"errors"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCredentials = errors.New("incorrect email or password")
	ErrEmailTaken         = errors.New("email is already registered")

	ErrOutOfStock       = errors.New("book is out of stock")
	ErrAlreadyBorrowed  = errors.New("book is already borrowed")
	ErrLimitReached     = errors.New("maximum limit of borrowed books reached")
	ErrNotBorrowed      = errors.New("book is not borrowed")
	ErrConcurrentUpdate = errors.New("concurrent update, try again")
)

// IsConflict reports whether err is a business-rule or concurrency conflict
// that maps to http 409.
func IsConflict(err error) bool {
	for _, conflict := range []error{
		ErrEmailTaken,
		ErrOutOfStock,
		ErrAlreadyBorrowed,
		ErrLimitReached,
		ErrNotBorrowed,
		ErrConcurrentUpdate,
	} {
		if errors.Is(err, conflict) {
			return true
		}
	}
	return false
}
