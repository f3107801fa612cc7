package graph

import (
	"errors"

	"github.com/alim08/cryptobook/pkg/auth"
	"github.com/alim08/cryptobook/pkg/logger"
	"github.com/alim08/cryptobook/pkg/metrics"
	"github.com/alim08/cryptobook/pkg/pubsub"
	"github.com/alim08/cryptobook/pkg/store"
	"github.com/alim08/cryptobook/pkg/validation"
	"go.uber.org/zap"
)

// Code is the machine-readable extensions.code of a GraphQL error.
type Code string

const (
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeBadUserInput     Code = "BAD_USER_INPUT"
	CodeInternal         Code = "INTERNAL"
)

// Error is returned from resolvers; graphql-go copies Extensions into the
// response.
type Error struct {
	Code    Code
	Message string
	Fields  validation.ValidationErrors
	// CreatedID is set when a write landed but the response could not be
	// built, so clients know not to retry it.
	CreatedID string
	cause     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Extensions() map[string]interface{} {
	ext := map[string]interface{}{"code": string(e.Code)}
	if len(e.Fields) > 0 {
		ext["fields"] = e.Fields
	}
	if e.CreatedID != "" {
		ext["createdId"] = e.CreatedID
	}
	return ext
}

// toGraphQLError classifies err, records it and hides internals from the
// client.
func toGraphQLError(field string, err error) error {
	var gerr *Error
	if !errors.As(err, &gerr) {
		gerr = classify(err)
	}

	metrics.ResolverErrors.WithLabelValues(field, string(gerr.Code)).Inc()
	log := logger.Log.With(zap.String("field", field), zap.String("code", string(gerr.Code)), zap.Error(err))
	if gerr.Code == CodeBadUserInput || gerr.Code == CodeUnauthorized {
		log.Debug("resolver rejected request")
	} else {
		log.Error("resolver failed")
	}
	return gerr
}

func classify(err error) *Error {
	var verrs validation.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return &Error{Code: CodeBadUserInput, Message: verrs.Error(), Fields: verrs, cause: err}
	case errors.Is(err, store.ErrInvalidInput):
		return &Error{Code: CodeBadUserInput, Message: "invalid input", cause: err}
	case errors.Is(err, auth.ErrUnauthorized):
		return &Error{Code: CodeUnauthorized, Message: "not authorized to perform this operation", cause: err}
	case errors.Is(err, store.ErrStoreUnavailable):
		return &Error{Code: CodeStoreUnavailable, Message: "record store unavailable", cause: err}
	case errors.Is(err, pubsub.ErrClosed):
		return &Error{Code: CodeInternal, Message: "server is shutting down", cause: err}
	default:
		return &Error{Code: CodeInternal, Message: "internal error", cause: err}
	}
}
