package chat

// Code classifies a chat error.
type Code string

const (
	CodeAuth           Code = "auth"
	CodeInvalid        Code = "invalid"
	CodeConflict       Code = "conflict"
	CodeNotFound       Code = "not_found"
	CodePersistence    Code = "persistence"
	CodeBusUnavailable Code = "bus_unavailable"
)

// Error is returned by service operations. Two errors are equal under
// errors.Is when their codes match.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

var (
	ErrAuth           = &Error{Code: CodeAuth, Message: "id or password is invalid!"}
	ErrInvalid        = &Error{Code: CodeInvalid, Message: "invalid request"}
	ErrConflict       = &Error{Code: CodeConflict, Message: "this account is using, input another!"}
	ErrNotFound       = &Error{Code: CodeNotFound, Message: "can not find handler"}
	ErrPersistence    = &Error{Code: CodePersistence, Message: "persistence failure"}
	ErrBusUnavailable = &Error{Code: CodeBusUnavailable, Message: "presence bus unavailable"}
)

func wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}
