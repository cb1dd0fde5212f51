package linker

import (
	"fmt"

	"github.com/pkg/errors"
)

// Class tells whether duplicate content may already be gone when a link step fails.
type Class int

const (
	// Safe failures leave the duplicate exactly as it was.
	Safe Class = iota + 1
	// DataLoss failures happen after the duplicate name was removed, or
	// after something else removed it.
	DataLoss
)

func (c Class) String() string {
	switch c {
	case Safe:
		return "safe"
	case DataLoss:
		return "data-loss"
	default:
		return "unknown"
	}
}

var (
	ErrRace   = errors.New("link succeeded before unlinking (race condition)")
	ErrLink   = errors.New("link failed")
	ErrUnlink = errors.New("unlink failed")
	ErrRelink = errors.New("relink failed after unlinking")
)

// Error describes a failed ReplaceWithLink. It matches its Kind sentinel and
// the underlying errno with errors.Is.
type Error struct {
	Kind      error
	Class     Class
	Canonical string
	Duplicate string
	Err       error
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrRace:
		return fmt.Sprintf("linking %s to %s succeeded before unlinking (race condition)", e.Canonical, e.Duplicate)
	case ErrLink:
		return fmt.Sprintf("error linking %s to %s: %v, nothing bad happened", e.Canonical, e.Duplicate, e.Err)
	case ErrUnlink:
		return fmt.Sprintf("error unlinking %s before linking %s to it: %v", e.Duplicate, e.Canonical, e.Err)
	case ErrRelink:
		return fmt.Sprintf("error linking %s to %s: %v, destination filename was already unlinked", e.Canonical, e.Duplicate, e.Err)
	default:
		return fmt.Sprintf("linking %s to %s: %v", e.Canonical, e.Duplicate, e.Err)
	}
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsDataLoss reports whether err is a link failure that may have destroyed a duplicate's name.
func IsDataLoss(err error) bool {
	var linkErr *Error
	return errors.As(err, &linkErr) && linkErr.Class == DataLoss
}
