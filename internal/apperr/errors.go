package apperr

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeBadInput        = "WEBHOOK_BAD_INPUT"
	TextCodeUnauthorized    = "WEBHOOK_UNAUTHORIZED"
	TextCodeTenantNotFound  = "TENANT_NOT_FOUND"
	TextCodeProviderFailed  = "PROVIDER_OPERATION_FAILED"
	TextCodeFlowExecution   = "FLOW_EXECUTION_FAILED"
	TextCodeInternal        = "INTERNAL_ERROR"
	TextCodeVersionConflict = "CONVERSATION_VERSION_CONFLICT"
)

// New builds a rich error with the HTTP code and text code of its category.
func New(message string, category goerrors.Category, metadata map[string]any) error {
	err := goerrors.New(message, category).
		WithCode(HTTPStatus(category)).
		WithTextCode(textCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// Wrap is New around an underlying error. A nil source behaves like New.
func Wrap(source error, category goerrors.Category, message string, metadata map[string]any) error {
	if source == nil {
		return New(message, category, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(HTTPStatus(category)).
		WithTextCode(textCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// CategoryOf returns the category of the outermost rich error, or CategoryInternal.
func CategoryOf(err error) goerrors.Category {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.Category
	}
	return goerrors.CategoryInternal
}

func Is(err error, category goerrors.Category) bool {
	if err == nil {
		return false
	}
	return CategoryOf(err) == category
}

func HTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	case goerrors.CategoryOperation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func textCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return TextCodeBadInput
	case goerrors.CategoryAuth:
		return TextCodeUnauthorized
	case goerrors.CategoryNotFound:
		return TextCodeTenantNotFound
	case goerrors.CategoryConflict:
		return TextCodeVersionConflict
	case goerrors.CategoryExternal:
		return TextCodeProviderFailed
	case goerrors.CategoryOperation:
		return TextCodeFlowExecution
	default:
		return TextCodeInternal
	}
}
