package shared_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dalemusser/stratacomm/internal/app/fabric"
	"github.com/dalemusser/stratacomm/internal/app/fabric/groups"
	"github.com/dalemusser/stratacomm/internal/app/features/shared"
	userstore "github.com/dalemusser/stratacomm/internal/app/store/users"
	"github.com/dalemusser/stratacomm/internal/app/system/inputval"
	"github.com/dalemusser/stratacomm/internal/testutil"
	"go.uber.org/zap"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"forbidden", fmt.Errorf("%w: write on messages", fabric.ErrForbidden), http.StatusForbidden},
		{"group not found", groups.ErrNotFound, http.StatusNotFound},
		{"last admin", groups.ErrLastAdmin, http.StatusConflict},
		{"duplicate user", fmt.Errorf("create: %w", userstore.ErrDuplicateUser), http.StatusConflict},
		{"unknown member", groups.ErrUnknownMember, http.StatusBadRequest},
		{"bad request", shared.ErrBadRequest, http.StatusBadRequest},
		{"validation", &shared.ValidationError{Result: &inputval.Result{}}, http.StatusBadRequest},
		{"unmapped", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, _ := shared.StatusFor(tt.err); got != tt.want {
				t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

type createBody struct {
	Name string `json:"name" validate:"required,max=10" label:"Name"`
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		wantErr  bool
		wantCode int
	}{
		{"valid", createBody{Name: "core"}, false, 0},
		{"empty body", nil, true, http.StatusBadRequest},
		{"malformed", `{"name":`, true, http.StatusBadRequest},
		{"unknown field", `{"name":"x","extra":1}`, true, http.StatusBadRequest},
		{"fails validation", createBody{Name: "this name is far too long"}, true, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.NewJSONRequest(http.MethodPost, "/", tt.body)
			var dst createBody
			err := shared.Decode(httptest.NewRecorder(), req, &dst)
			if tt.wantErr != (err != nil) {
				t.Fatalf("Decode err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if got, _ := shared.StatusFor(err); got != tt.wantCode {
					t.Errorf("status = %d, want %d", got, tt.wantCode)
				}
			}
		})
	}
}

func TestWriteError_HidesInternalText(t *testing.T) {
	rec := testutil.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)

	shared.WriteError(rec, req, zap.NewNop(), errors.New("connection refused to 10.0.0.3"))

	rec.AssertStatus(t, http.StatusInternalServerError)
	if strings.Contains(rec.Body.String(), "10.0.0.3") {
		t.Errorf("internal error text leaked: %s", rec.Body.String())
	}
}

func TestWriteError_ValidationDetails(t *testing.T) {
	rec := testutil.NewRecorder()
	req := testutil.NewJSONRequest(http.MethodPost, "/", `{"name":""}`)
	var dst createBody
	err := shared.Decode(httptest.NewRecorder(), req, &dst)
	if err == nil {
		t.Fatal("expected validation error")
	}

	shared.WriteError(rec, req, zap.NewNop(), err)

	rec.AssertStatus(t, http.StatusBadRequest)
	var body shared.ErrorBody
	rec.DecodeJSON(t, &body)
	if body.Code != shared.CodeInvalid || len(body.Details) != 1 || body.Details[0].Field != "Name" {
		t.Errorf("unexpected body: %+v", body)
	}
}
