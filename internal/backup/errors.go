package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// Kind classifies a failure so callers can decide whether to retry,
// pick a different target, or abort.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindPermissionDenied
	KindIntegrityFailure
	KindInsufficientStorage
	KindInvalidArgument
	KindIO
)

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrNotFound            = errors.New("not found")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrIntegrity           = errors.New("integrity check failed")
	ErrInsufficientStorage = errors.New("insufficient storage")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrIO                  = errors.New("i/o error")

	// ErrLocked is returned when an encrypted payload must be decoded but no
	// decryption key has been unlocked. It is reported as KindPermissionDenied.
	ErrLocked = errors.New("encryption key is locked")
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindPermissionDenied:
		return "permission denied"
	case KindIntegrityFailure:
		return "integrity failure"
	case KindInsufficientStorage:
		return "insufficient storage"
	case KindInvalidArgument:
		return "invalid argument"
	case KindIO:
		return "i/o error"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindPermissionDenied:
		return ErrPermissionDenied
	case KindIntegrityFailure:
		return ErrIntegrity
	case KindInsufficientStorage:
		return ErrInsufficientStorage
	case KindInvalidArgument:
		return ErrInvalidArgument
	case KindIO:
		return ErrIO
	default:
		return nil
	}
}

// Error describes a failed engine operation.
type Error struct {
	Op   string // e.g. "create", "restore"
	Path string // source, target or payload path involved, if any
	ID   string // backup id involved, if any
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.ID != "" {
		msg += " (" + e.ID + ")"
	}
	return fmt.Sprintf("%s: %s: %v", msg, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for e's kind, so errors.Is(err, ErrNotFound)
// works for every not-found failure regardless of its cause.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf classifies err. Errors already carrying a kind keep it;
// filesystem errors are mapped onto the closest kind.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}

	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return KindNotFound
	case errors.Is(err, ErrLocked), errors.Is(err, ErrPermissionDenied), errors.Is(err, fs.ErrPermission):
		return KindPermissionDenied
	case errors.Is(err, ErrIntegrity):
		return KindIntegrityFailure
	case errors.Is(err, ErrInsufficientStorage), errors.Is(err, syscall.ENOSPC), errors.Is(err, syscall.EDQUOT):
		return KindInsufficientStorage
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, fs.ErrInvalid):
		return KindInvalidArgument
	default:
		return KindIO
	}
}

// opError wraps err with operation context. An *Error passed in keeps its
// kind but gains the outer operation's context.
func opError(op, path, id string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Path: path, ID: id, Kind: KindOf(err), Err: err}
}
