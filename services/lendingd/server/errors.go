package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"frendlend/core"
	"frendlend/gateway/auth"
	"frendlend/native/claims"
	nativecommon "frendlend/native/common"
	"frendlend/native/lending"
	"frendlend/native/token"
	"frendlend/services/lendingd/indexer"
)

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

type errorClass struct {
	status int
	code   string
}

var errorClasses = []struct {
	targets []error
	class   errorClass
}{
	{[]error{errBadRequest}, errorClass{http.StatusBadRequest, "bad_request"}},
	{[]error{
		auth.ErrMissingHeader, auth.ErrBadSignature, auth.ErrSignerMismatch,
		auth.ErrStaleTimestamp, auth.ErrNonceReplayed,
	}, errorClass{http.StatusUnauthorized, "unauthenticated"}},
	{[]error{auth.ErrBodyTooLarge}, errorClass{http.StatusRequestEntityTooLarge, "body_too_large"}},
	{[]error{
		lending.ErrLoanOfferNotFound, lending.ErrLoanNotFound,
		claims.ErrClaimNotFound, indexer.ErrLoanNotIndexed,
	}, errorClass{http.StatusNotFound, "not_found"}},
	{[]error{
		lending.ErrNotAdmin, lending.ErrNotOfferor, lending.ErrNotCounterparty,
		lending.ErrNotCreditor, lending.ErrNotCreditorOrDebtor,
		claims.ErrNotAdmin, claims.ErrNotController, claims.ErrNotAuthorized,
	}, errorClass{http.StatusForbidden, "forbidden"}},
	{[]error{
		lending.ErrLoanOfferExpired, lending.ErrLoanNotActive,
		lending.ErrStillInGracePeriod, claims.ErrClaimClosed, claims.ErrPermitExpired,
	}, errorClass{http.StatusConflict, "conflict"}},
	{[]error{
		lending.ErrCallbackNotWhitelisted, lending.ErrCallbackFailed, core.ErrNoCallbackHandler,
	}, errorClass{http.StatusUnprocessableEntity, "callback_rejected"}},
	{[]error{
		token.ErrInsufficientBalance, token.ErrInsufficientAllowance,
	}, errorClass{http.StatusUnprocessableEntity, "insufficient_funds"}},
	{[]error{
		lending.ErrIncorrectFee, lending.ErrBatchFeeMismatch, lending.ErrInvalidProtocolFee,
		lending.ErrInvalidLoanParams, lending.ErrInvalidReceiver, lending.ErrInvalidPaymentAmount,
		lending.ErrUnknownMethod, claims.ErrInvalidClaim, claims.ErrInvalidPaymentAmount,
		claims.ErrInvalidPermit, token.ErrInvalidAmount, token.ErrAmountOverflow,
		token.ErrZeroAddress, core.ErrValueNoReceiver,
	}, errorClass{http.StatusBadRequest, "invalid_request"}},
	{[]error{nativecommon.ErrModulePaused}, errorClass{http.StatusServiceUnavailable, "module_paused"}},
	{[]error{errIndexerDisabled}, errorClass{http.StatusServiceUnavailable, "indexer_disabled"}},
}

func classify(err error) errorClass {
	for _, entry := range errorClasses {
		for _, target := range entry.targets {
			if errors.Is(err, target) {
				return entry.class
			}
		}
	}
	return errorClass{http.StatusInternalServerError, "internal"}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	class := classify(err)
	requestID := RequestID(r.Context())
	message := err.Error()
	if class.status >= http.StatusInternalServerError && class.status != http.StatusServiceUnavailable {
		s.logger.Error("request failed",
			slog.String("request_id", requestID),
			slog.String("path", r.URL.Path),
			slog.String("error", message))
		message = http.StatusText(class.status)
	}
	writeJSON(w, class.status, errorBody{Code: class.code, Message: message, RequestID: requestID})
}
