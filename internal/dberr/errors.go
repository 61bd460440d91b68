// Package dberr is the closed error taxonomy (spec §7): every error
// kind the library raises is a named variant here, wrapped around the
// underlying cause so callers can errors.Is/errors.As against the
// category without parsing a library's error strings.
package dberr


// Kind is one variant of the closed error taxonomy.
type Kind string

const (
	// Validation failures (thrown synchronously by facade/collection).
	UndefinedDatabaseName             Kind = "UndefinedDatabaseName"
	InvalidWorkingDirectoryPathLength Kind = "InvalidWorkingDirectoryPathLength"
	InvalidIDCharacter                Kind = "InvalidIdCharacter"
	InvalidJSONObject                 Kind = "InvalidJsonObject"
	InvalidJSONFileExtension          Kind = "InvalidJsonFileExtension"

	// Lifecycle / I-O (reject pending futures).
	DatabaseClosing       Kind = "DatabaseClosing"
	DatabaseCloseTimeout  Kind = "DatabaseCloseTimeout"
	RepositoryNotFound    Kind = "RepositoryNotFound"
	RepositoryNotOpen     Kind = "RepositoryNotOpen"
	CannotCreateRepository Kind = "CannotCreateRepository"
	CannotCreateDirectory Kind = "CannotCreateDirectory"
	CannotOpenRepository  Kind = "CannotOpenRepository"
	CannotWriteData       Kind = "CannotWriteData"
	CannotDeleteData      Kind = "CannotDeleteData"
	FileRemoveTimeout     Kind = "FileRemoveTimeout"

	// CRUD precondition (reject that call only).
	DocumentNotFound Kind = "DocumentNotFound"
	SameIDExists     Kind = "SameIdExists"

	// Cancellation (reject the task's future).
	TaskCancel Kind = "TaskCancel"

	// Sync setup (thrown by sync()/engine).
	UndefinedRemoteURL        Kind = "UndefinedRemoteURL"
	IntervalTooSmall          Kind = "IntervalTooSmall"
	RemoteAlreadyRegistered   Kind = "RemoteAlreadyRegistered"
	InvalidAuthenticationType Kind = "InvalidAuthenticationType"
	InvalidURLFormat          Kind = "InvalidURLFormat"
	InvalidRepositoryURL      Kind = "InvalidRepositoryURL"
	InvalidGitRemote          Kind = "InvalidGitRemote"

	// Transport (normalized by Remote Engine; possibly retried).
	NetworkError                     Kind = "NetworkError"
	HTTPError401AuthorizationRequired Kind = "HTTPError401AuthorizationRequired"
	HTTPError403Forbidden            Kind = "HTTPError403Forbidden"
	HTTPError404NotFound             Kind = "HTTPError404NotFound"
	CannotConnect                    Kind = "CannotConnect"

	// Push rejected as non-fast-forward (handled internally; surfaced
	// after bounded retries).
	UnfetchedCommitExists Kind = "UnfetchedCommitExists"

	// Disjoint histories with combineDbStrategy=throw-error.
	NoMergeBaseFound Kind = "NoMergeBaseFound"
)

// Error is the closed taxonomy's carrier type.
type Error struct {
	Kind   Kind
	Op     string // operation in progress, e.g. "put", "trySync"
	Path   string // document or working-directory path, if applicable
	Detail string // additional diagnostic context (never substitutes for Kind)
	Err    error  // underlying cause, if any
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers
// can write errors.Is(err, dberr.New(dberr.DocumentNotFound)).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New constructs a bare sentinel of the given kind, suitable for use
// with errors.Is as a target.
func New(kind Kind) *Error { return &Error{Kind: kind} }

// Wrap attaches an underlying cause and operation/path context to kind.
func Wrap(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Of reports the Kind of err if it (or something it wraps) is a
// *Error, and ok=false otherwise.
func Of(err error) (Kind, bool) {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind, true
	}
	return "", false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// IsTransient reports whether kind is a transport connectivity kind
// (NetworkError or CannotConnect). The Remote Engine's retry loop does
// not call it and retries NetworkError only.
func IsTransient(kind Kind) bool {
	switch kind {
	case NetworkError, CannotConnect:
		return true
	default:
		return false
	}
}
