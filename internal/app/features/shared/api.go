// internal/app/features/shared/api.go
package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dalemusser/stratacomm/internal/app/fabric"
	"github.com/dalemusser/stratacomm/internal/app/fabric/directory"
	"github.com/dalemusser/stratacomm/internal/app/fabric/groups"
	"github.com/dalemusser/stratacomm/internal/app/fabric/messaging"
	"github.com/dalemusser/stratacomm/internal/app/fabric/notify"
	departmentstore "github.com/dalemusser/stratacomm/internal/app/store/departments"
	rolestore "github.com/dalemusser/stratacomm/internal/app/store/roles"
	teamstore "github.com/dalemusser/stratacomm/internal/app/store/teams"
	userstore "github.com/dalemusser/stratacomm/internal/app/store/users"
	"github.com/dalemusser/stratacomm/internal/app/system/auth"
	"github.com/dalemusser/stratacomm/internal/app/system/inputval"
	"github.com/dalemusser/stratacomm/internal/domain/models"
	"go.uber.org/zap"
)

// MaxBodyBytes caps JSON request bodies.
const MaxBodyBytes = 1 << 20

// Error codes carried in the "code" field of error bodies.
const (
	CodeInvalid      = "INVALID"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeRateLimited  = "RATE_LIMITED"
	CodeServerError  = "SERVER_ERROR"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Code    string                `json:"code"`
	Error   string                `json:"error"`
	Details []inputval.FieldError `json:"details,omitempty"`
}

// ValidationError carries field-level failures from Decode.
type ValidationError struct {
	Result *inputval.Result
}

func (e *ValidationError) Error() string { return e.Result.All() }

// ErrBadRequest wraps malformed bodies and query parameters.
var ErrBadRequest = errors.New("bad request")

// errorClass maps sentinel errors onto a status and code.
type errorClass struct {
	status int
	code   string
	errs   []error
}

var classes = []errorClass{
	{http.StatusForbidden, CodeForbidden, []error{fabric.ErrForbidden}},
	{http.StatusNotFound, CodeNotFound, []error{
		groups.ErrNotFound,
		groups.ErrCollabNotFound,
		messaging.ErrNotRecipient,
		notify.ErrNotFound,
		directory.ErrUserNotFound,
		directory.ErrDepartmentNotFound,
		directory.ErrParentNotFound,
		directory.ErrRoleNotFound,
		directory.ErrAssignmentNotFound,
	}},
	{http.StatusConflict, CodeConflict, []error{
		groups.ErrLastAdmin,
		groups.ErrCollaborationClosed,
		userstore.ErrDuplicateUser,
		rolestore.ErrDuplicateRoleName,
		departmentstore.ErrDuplicateDepartmentName,
		teamstore.ErrDuplicateTeamName,
	}},
	{http.StatusBadRequest, CodeInvalid, []error{
		ErrBadRequest,
		messaging.ErrInvalidPayload,
		messaging.ErrNoRecipients,
		messaging.ErrUnknownSender,
		groups.ErrNameRequired,
		groups.ErrInvalidType,
		groups.ErrCreatorRequired,
		groups.ErrUnknownMember,
		groups.ErrNotMember,
		groups.ErrTaskRequired,
		groups.ErrNoParticipants,
		groups.ErrInvalidFile,
		notify.ErrUnknownRecipient,
		notify.ErrInvalidNotification,
		directory.ErrUnknownUser,
		directory.ErrNameRequired,
		directory.ErrInvalidEmail,
		directory.ErrInvalidStatus,
		directory.ErrManagerRequired,
		directory.ErrLeaderRequired,
		models.ErrUnknownAction,
		models.ErrRoleNameRequired,
		models.ErrRoleNoPermissions,
		models.ErrEmptyResource,
		models.ErrEmptyActions,
	}},
}

// StatusFor returns the HTTP status and error code for err.
func StatusFor(err error) (int, string) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, CodeInvalid
	}
	for _, c := range classes {
		for _, target := range c.errs {
			if errors.Is(err, target) {
				return c.status, c.code
			}
		}
	}
	return http.StatusInternalServerError, CodeServerError
}

// WriteJSON writes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteError maps err to a status and writes an ErrorBody. Server errors are
// logged and their text is not exposed.
func WriteError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	status, code := StatusFor(err)
	body := ErrorBody{Code: code, Error: err.Error()}

	var ve *ValidationError
	if errors.As(err, &ve) {
		body.Error = ve.Result.First()
		body.Details = ve.Result.Errors
	}
	if status == http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		body.Error = "internal server error"
	}
	WriteJSON(w, status, body)
}

// Decode reads a JSON body into dst and runs its validate tags.
func Decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", ErrBadRequest)
		}
		return fmt.Errorf("%w: invalid JSON body: %v", ErrBadRequest, err)
	}
	if res := inputval.Validate(dst); res.HasErrors() {
		return &ValidationError{Result: res}
	}
	return nil
}

// Actor returns the authenticated user's ID. Routes are mounted behind
// auth.RequireUser, so a missing user is a wiring bug and yields "".
func Actor(r *http.Request) string {
	if u, ok := auth.CurrentUser(r); ok {
		return u.ID
	}
	return ""
}

// QueryInt parses an optional integer query parameter. Absent means 0.
func QueryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", ErrBadRequest, name)
	}
	return n, nil
}

// QueryBool parses an optional boolean query parameter. Absent means false.
func QueryBool(r *http.Request, name string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be true or false", ErrBadRequest, name)
	}
	return b, nil
}
