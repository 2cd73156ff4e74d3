package server

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	academicdomain "github.com/smallbiznis/schoolpay/internal/academic/domain"
	auditdomain "github.com/smallbiznis/schoolpay/internal/audit/domain"
	authdomain "github.com/smallbiznis/schoolpay/internal/auth/domain"
	"github.com/smallbiznis/schoolpay/internal/authorization"
	feedomain "github.com/smallbiznis/schoolpay/internal/fee/domain"
	"github.com/smallbiznis/schoolpay/internal/gateway"
	invoicedomain "github.com/smallbiznis/schoolpay/internal/invoice/domain"
	"github.com/smallbiznis/schoolpay/internal/invoicegen"
	paymentdomain "github.com/smallbiznis/schoolpay/internal/payment/domain"
	platformdomain "github.com/smallbiznis/schoolpay/internal/platformbilling/domain"
	"github.com/smallbiznis/schoolpay/internal/reconcile"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
	"github.com/smallbiznis/schoolpay/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

const (
	typeInvalidRequest      = "invalid_request"
	typeInvalidSignature    = "invalid_signature"
	typeUnauthorized        = "unauthorized"
	typeForbidden           = "forbidden"
	typeNotFound            = "not_found"
	typeConflict            = "conflict"
	typeRateLimited         = "rate_limited"
	typeUpstreamUnavailable = "upstream_unavailable"
	typeServiceUnavailable  = "service_unavailable"
	typeInternal            = "internal_error"
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// bindError turns a gin binding failure into per-field details. Decode
// errors carry no field and collapse to a generic invalid request.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return invalidRequestError()
	}
	out := &ValidationErrors{Errors: make([]ValidationError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Errors = append(out.Errors, ValidationError{
			Field:   fe.Field(),
			Code:    fe.Tag(),
			Message: fieldMessage(fe),
		})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email"
	case "min", "gte":
		return fe.Field() + " must be at least " + fe.Param()
	case "max", "lte":
		return fe.Field() + " must be at most " + fe.Param()
	default:
		return "invalid value"
	}
}

func useWireFieldNames() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(jsonFieldName)
	}
}

// jsonFieldName reports validator failures under their wire names.
func jsonFieldName(field reflect.StructField) string {
	for _, tag := range []string{"json", "form"} {
		name := strings.SplitN(field.Tag.Get(tag), ",", 2)[0]
		if name == "-" {
			continue
		}
		if name != "" {
			return name
		}
	}
	return field.Name
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    typeInternal,
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    typeInvalidRequest,
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    typeInvalidRequest,
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, gateway.ErrInvalidSignature):
		return http.StatusBadRequest, errorPayload{
			Type:    typeInvalidSignature,
			Message: "invalid request",
		}
	case isUnauthorizedError(err):
		return http.StatusUnauthorized, errorPayload{
			Type:    typeUnauthorized,
			Message: "unauthorized",
		}
	case isForbiddenError(err):
		return http.StatusForbidden, errorPayload{
			Type:    typeForbidden,
			Message: forbiddenMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    typeNotFound,
			Message: "not found",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    typeConflict,
			Message: conflictMessage(err),
		}
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, authdomain.ErrTooManyAttempts):
		return http.StatusTooManyRequests, errorPayload{
			Type:    typeRateLimited,
			Message: "too many requests",
		}
	case errors.Is(err, paymentdomain.ErrGatewayUnavailable),
		errors.Is(err, gateway.ErrGatewayUnavailable):
		return http.StatusBadGateway, errorPayload{
			Type:    typeUpstreamUnavailable,
			Message: "payment gateway unavailable, try again",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, gateway.ErrNotConfigured),
		errors.Is(err, invoicedomain.ErrNotificationsOff):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    typeServiceUnavailable,
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    typeInternal,
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger. Unknown errors keep an empty
// code so raw messages never reach the access log.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError && payload.Type == typeInternal {
		return payload.Type, ""
	}
	if vErr := asValidationErrors(err); vErr != nil && len(vErr.Errors) > 0 {
		return payload.Type, vErr.Errors[0].Code
	}
	return payload.Type, err.Error()
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	return anyIs(err,
		ErrInvalidRequest,
		pagination.ErrInvalidPageToken,
		tenancy.ErrMissingTargetSchool,
		gateway.ErrInvalidPayload,
		authdomain.ErrInvalidRole,
		authdomain.ErrWeakPassword,
		authdomain.ErrNoChanges,
		authdomain.ErrSelfModification,
		auditdomain.ErrInvalidPageToken,
		auditdomain.ErrInvalidTimeRange,
		academicdomain.ErrInvalidID,
		academicdomain.ErrInvalidName,
		academicdomain.ErrInvalidDateRange,
		academicdomain.ErrInvalidScholarship,
		academicdomain.ErrInvalidStudentStatus,
		academicdomain.ErrInvalidSubscription,
		feedomain.ErrInvalidID,
		feedomain.ErrInvalidAmount,
		feedomain.ErrInvalidCategory,
		feedomain.ErrEmptyStructure,
		invoicedomain.ErrInvalidID,
		invoicedomain.ErrInvalidStatus,
		invoicedomain.ErrInvalidReason,
		invoicedomain.ErrInvalidPageToken,
		invoicedomain.ErrInvalidWindow,
		invoicegen.ErrInvalidID,
		invoicegen.ErrNoActiveEnrollments,
		paymentdomain.ErrInvalidID,
		paymentdomain.ErrInvalidAmount,
		paymentdomain.ErrInvalidReference,
		paymentdomain.ErrInvalidReason,
		paymentdomain.ErrInvalidFileName,
		paymentdomain.ErrMissingEmail,
		platformdomain.ErrInvalidID,
		platformdomain.ErrInvalidTermLabel,
		platformdomain.ErrInvalidCount,
	)
}

func isUnauthorizedError(err error) bool {
	return anyIs(err,
		ErrUnauthorized,
		authdomain.ErrInvalidCredentials,
		authdomain.ErrInvalidToken,
		authdomain.ErrTokenExpired,
		authdomain.ErrUserInactive,
		invoicedomain.ErrMissingActor,
		paymentdomain.ErrMissingActor,
	)
}

func isForbiddenError(err error) bool {
	return anyIs(err,
		ErrForbidden,
		authorization.ErrForbidden,
		tenancy.ErrPlatformAdminOnly,
		tenancy.ErrMissingTenant,
		academicdomain.ErrSchoolSubscriptionOff,
	)
}

func forbiddenMessage(err error) string {
	if errors.Is(err, academicdomain.ErrSchoolSubscriptionOff) {
		return "school subscription is inactive"
	}
	return "forbidden"
}

func isNotFoundError(err error) bool {
	return anyIs(err,
		ErrNotFound,
		gorm.ErrRecordNotFound,
		tenancy.ErrNotFound,
		gateway.ErrProviderNotFound,
		authdomain.ErrUserNotFound,
		academicdomain.ErrNotFound,
		feedomain.ErrNotFound,
		invoicedomain.ErrNotFound,
		invoicegen.ErrTermNotFound,
		paymentdomain.ErrNotFound,
		paymentdomain.ErrInvoiceNotFound,
		paymentdomain.ErrNoReceipt,
		platformdomain.ErrNotFound,
		platformdomain.ErrSchoolNotFound,
		reconcile.ErrInvoiceNotFound,
	)
}

func isConflictError(err error) bool {
	return anyIs(err,
		ErrConflict,
		authdomain.ErrUserExists,
		academicdomain.ErrDuplicateAdmission,
		academicdomain.ErrAlreadyEnrolled,
		academicdomain.ErrDuplicateName,
		feedomain.ErrFeeStructureExists,
		invoicedomain.ErrInvoiceClosed,
		invoicedomain.ErrHasPayments,
		invoicegen.ErrGenerationInProgress,
		paymentdomain.ErrDuplicateReference,
		paymentdomain.ErrAlreadyProcessed,
		paymentdomain.ErrAlreadyVoided,
		paymentdomain.ErrNotConfirmed,
		paymentdomain.ErrNothingToPay,
		paymentdomain.ErrInvoiceClosed,
		platformdomain.ErrAlreadyPaid,
	)
}

var conflictMessages = map[error]string{
	paymentdomain.ErrDuplicateReference: "a payment with this reference already exists",
	paymentdomain.ErrAlreadyProcessed:   "payment has already been processed",
	paymentdomain.ErrAlreadyVoided:      "payment is already voided",
	paymentdomain.ErrNotConfirmed:       "only confirmed payments can be voided",
	paymentdomain.ErrNothingToPay:       "invoice has no outstanding balance",
	paymentdomain.ErrInvoiceClosed:      "invoice is closed",
	invoicedomain.ErrInvoiceClosed:      "invoice is closed",
	invoicedomain.ErrHasPayments:        "invoice has confirmed payments",
	feedomain.ErrFeeStructureExists:     "an active fee structure already exists for this class and term",
	invoicegen.ErrGenerationInProgress:  "invoice generation is already running for this term",
}

func conflictMessage(err error) string {
	for target, msg := range conflictMessages {
		if errors.Is(err, target) {
			return msg
		}
	}
	return "conflict"
}

func anyIs(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "no_active_enrollments":
		return "term_id"
	case "missing_target_school":
		return "school_id"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "no_active_enrollments":
		return "no active enrollments for this term"
	case "weak_password":
		return "password is too short"
	default:
		return "invalid value"
	}
}
