package events

import (
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/flathub/internal/domain/apperr"
	"github.com/dalemusser/flathub/internal/domain/models"
	"github.com/dalemusser/flathub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func TestCreateRequest_Payload(t *testing.T) {
	amount := int64(1250)
	resident := primitive.NewObjectID()
	expire := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		body     createRequest
		wantType string
		wantErr  bool
	}{
		{"plain", createRequest{Type: models.EventPlain}, models.EventPlain, false},
		{"expense", createRequest{Type: models.EventExpense, Amount: &amount}, models.EventExpense, false},
		{"need", createRequest{Type: models.EventNeed, Message: "milk", RequestedResidentID: resident.Hex(), ExpireAt: &expire}, models.EventNeed, false},
		{"need bad resident", createRequest{Type: models.EventNeed, RequestedResidentID: "nope"}, "", true},
		{"missing type", createRequest{}, "", true},
		{"unknown type", createRequest{Type: "party"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.body.payload()
			if tt.wantErr {
				if apperr.KindOf(err) != apperr.KindValidation {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("payload failed: %v", err)
			}
			if p.EventType() != tt.wantType {
				t.Errorf("EventType = %q, want %q", p.EventType(), tt.wantType)
			}
		})
	}

	p, _ := createRequest{Type: models.EventNeed, RequestedResidentID: resident.Hex()}.payload()
	need := p.(models.NeedPayload)
	if need.RequestedResidentID == nil || *need.RequestedResidentID != resident {
		t.Error("requested resident not carried into payload")
	}
}

// The cases below are rejected before the ledger is consulted.
func TestHandler_Create_RejectsBadInput(t *testing.T) {
	h := NewHandler(nil, zap.NewNop())
	user := models.User{ID: primitive.NewObjectID(), Email: "u@example.com"}
	flatID := primitive.NewObjectID().Hex()

	tests := []struct {
		name   string
		req    func() *http.Request
		status int
	}{
		{
			name: "signed out",
			req: func() *http.Request {
				return testutil.WithChiURLParam(testutil.NewJSONRequest(t, http.MethodPost, "/", map[string]any{"type": "plain"}), "id", flatID)
			},
			status: http.StatusUnauthorized,
		},
		{
			name: "bad flat id",
			req: func() *http.Request {
				r := testutil.NewJSONRequest(t, http.MethodPost, "/", map[string]any{"type": "plain"})
				return testutil.WithUser(testutil.WithChiURLParam(r, "id", "xyz"), user)
			},
			status: http.StatusBadRequest,
		},
		{
			name: "unknown type",
			req: func() *http.Request {
				r := testutil.NewJSONRequest(t, http.MethodPost, "/", map[string]any{"type": "party"})
				return testutil.WithUser(testutil.WithChiURLParam(r, "id", flatID), user)
			},
			status: http.StatusBadRequest,
		},
		{
			name: "unknown field",
			req: func() *http.Request {
				r := testutil.NewJSONRequest(t, http.MethodPost, "/", map[string]any{"type": "plain", "colour": "red"})
				return testutil.WithUser(testutil.WithChiURLParam(r, "id", flatID), user)
			},
			status: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testutil.NewRecorder()
			h.Create(rec, tt.req())
			rec.AssertStatus(t, tt.status)
		})
	}
}
