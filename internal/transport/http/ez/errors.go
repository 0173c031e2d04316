package ez

import (
	"errors"

	"subgate/internal/domain"
	resp "subgate/internal/transport/http/response"
)

// AErr 统一错误对象（配合 resp.Error(int, msg)）
type AErr struct {
	Code int
	Msg  string
	Err  error
}

func (e *AErr) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "action error"
}

func (e *AErr) Unwrap() error { return e.Err }

func Unauthorized(msg string) error    { return &AErr{Code: resp.CodeUnauthorized, Msg: msg} }
func PaymentRequired(msg string) error { return &AErr{Code: resp.CodePaymentRequired, Msg: msg} }
func NotFound(msg string) error        { return &AErr{Code: resp.CodeNotFound, Msg: msg} }
func Unavailable(msg string) error     { return &AErr{Code: resp.CodeUnavailable, Msg: msg} }
func Internal(msg string, err error) error {
	return &AErr{Code: resp.CodeServerError, Msg: msg, Err: err}
}

// FromDomain 领域错误 → 传输层错误码与面向用户的提示
func FromDomain(err error) *AErr {
	var ae *AErr
	if errors.As(err, &ae) {
		return ae
	}
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return &AErr{Code: resp.CodeBadRequest, Msg: ve.Msg, Err: err}
	case errors.Is(err, domain.ErrValidation):
		return &AErr{Code: resp.CodeBadRequest, Msg: "invalid input", Err: err}
	case errors.Is(err, domain.ErrDuplicateEmail):
		return &AErr{Code: resp.CodeConflict, Msg: "An account with this email already exists. Please sign in.", Err: err}
	case errors.Is(err, domain.ErrInvalidCredentials):
		return &AErr{Code: resp.CodeUnauthorized, Msg: "Invalid email or password.", Err: err}
	case errors.Is(err, domain.ErrUnauthenticated):
		return &AErr{Code: resp.CodeUnauthorized, Msg: "Please sign in to continue.", Err: err}
	case errors.Is(err, domain.ErrPaymentRequired):
		return &AErr{Code: resp.CodePaymentRequired, Msg: "Your access has expired. Upgrade to continue.", Err: err}
	case errors.Is(err, domain.ErrNotFound):
		return &AErr{Code: resp.CodeNotFound, Msg: "Not found.", Err: err}
	}
	return &AErr{Code: resp.CodeServerError, Msg: "Something went wrong. Please try again.", Err: err}
}
