package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"ticket-validation-api/internal/database"
	"ticket-validation-api/internal/features"
	"ticket-validation-api/internal/models"
	"ticket-validation-api/internal/service"
)

var testNow = time.Date(2026, 10, 19, 9, 41, 30, 0, time.UTC)

func setupTestHandler(t *testing.T) (*Handler, func()) {
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test_handler.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	svc := service.NewService(db, nil, service.Terminal{LocationID: 5, DefaultAmount: 1},
		service.WithClock(func() time.Time { return testNow }),
	)
	h := NewHandler(svc)

	cleanup := func() {
		db.Close()
	}

	return h, cleanup
}

func setupRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func doRequest(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func issueCard(t *testing.T, r http.Handler, req models.IssueCardRequest) models.CardSummary {
	rr := doRequest(r, "POST", "/cards", req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var summary models.CardSummary
	if err := json.Unmarshal(rr.Body.Bytes(), &summary); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	return summary
}

func seasonPassRequest() models.IssueCardRequest {
	return models.IssueCardRequest{
		Product:            "mifare_ultralight",
		EnvironmentEndDate: "2030-12-31",
		Contracts:          []models.ContractSpec{{Tariff: "SEASON_PASS", ValidityEndDate: "2027-06-30"}},
	}
}

func TestHealthCheck(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()

	rr := doRequest(setupRouter(h), "GET", "/health", nil)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	if rr.Body.String() != "OK" {
		t.Errorf("Expected body 'OK', got '%s'", rr.Body.String())
	}
}

func TestListLocations(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()

	rr := doRequest(setupRouter(h), "GET", "/locations", nil)

	var locations []models.Location
	if err := json.Unmarshal(rr.Body.Bytes(), &locations); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if len(locations) != 12 || locations[5].Name != "Paris" {
		t.Errorf("Unexpected locations %+v", locations)
	}
}

func TestIssueAndValidate_SeasonPass(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	summary := issueCard(t, r, seasonPassRequest())
	if summary.CardType != "Mifare Ultralight" {
		t.Errorf("Expected Mifare Ultralight, got %s", summary.CardType)
	}

	rr := doRequest(r, "POST", "/cards/"+summary.ID+"/validations", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var receipt models.ValidationReceipt
	if err := json.Unmarshal(rr.Body.Bytes(), &receipt); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if receipt.Outcome.Status != models.StatusSuccess || receipt.Outcome.Contract != "Season pass" {
		t.Errorf("Expected season pass success, got %+v", receipt.Outcome)
	}
	if receipt.Outcome.PassValidityEndDate == nil {
		t.Error("Expected pass validity end date")
	}

	rr = doRequest(r, "GET", "/validations/"+receipt.ID, nil)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	rr = doRequest(r, "GET", "/cards/"+summary.ID, nil)
	var card models.CardSummary
	json.Unmarshal(rr.Body.Bytes(), &card)
	if card.LastEvent == nil || card.LastEvent.LocationID != 5 {
		t.Errorf("Expected last event at location 5, got %+v", card.LastEvent)
	}
}

func TestValidate_RejectionIsOK(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	summary := issueCard(t, r, seasonPassRequest())
	doRequest(r, "POST", "/cards/"+summary.ID+"/validations", nil)
	rr := doRequest(r, "POST", "/cards/"+summary.ID+"/validations", map[string]any{"location_id": 2})

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var receipt models.ValidationReceipt
	json.Unmarshal(rr.Body.Bytes(), &receipt)
	if receipt.Outcome.Status != models.StatusInvalidCard {
		t.Errorf("Expected invalid_card, got %s", receipt.Outcome.Status)
	}

	rr = doRequest(r, "GET", "/cards/"+summary.ID+"/validations?limit=1", nil)
	var journal models.ValidationsResponse
	json.Unmarshal(rr.Body.Bytes(), &journal)
	if len(journal.Validations) != 1 || journal.Validations[0].ID != receipt.ID {
		t.Errorf("Expected the latest receipt only, got %+v", journal.Validations)
	}
}

func TestIssueCard_BadRequests(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"invalid json", "invalid json"},
		{"unknown product", `{"product":"desfire","environment_end_date":"2030-12-31"}`},
		{"bad tariff", `{"product":"calypso","environment_end_date":"2030-12-31","contracts":[{"tariff":"GOLD","validity_end_date":"2027-01-01"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/cards", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d. Body: %s", rr.Code, rr.Body.String())
			}
			var response models.ErrorResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
				t.Fatalf("Failed to unmarshal error response: %v", err)
			}
			if response.Error == "" {
				t.Error("Expected error message in response")
			}
		})
	}
}

func TestNotFoundAndInvalidIDs(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	tests := []struct {
		method, path string
		want         int
	}{
		{"GET", "/cards/" + uuid.NewString(), http.StatusNotFound},
		{"POST", "/cards/" + uuid.NewString() + "/validations", http.StatusNotFound},
		{"GET", "/validations/" + uuid.NewString(), http.StatusNotFound},
		{"GET", "/cards/not-a-uuid", http.StatusBadRequest},
		{"GET", "/cards/" + uuid.NewString() + "/validations?limit=-3", http.StatusBadRequest},
		{"PUT", "/features/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		var body any
		if tt.method == "PUT" {
			body = map[string]bool{"enabled": true}
		}
		rr := doRequest(r, tt.method, tt.path, body)
		if rr.Code != tt.want {
			t.Errorf("%s %s: expected status %d, got %d", tt.method, tt.path, tt.want, rr.Code)
		}
	}
}

func TestValidate_BadLocation(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	summary := issueCard(t, r, seasonPassRequest())
	rr := doRequest(r, "POST", "/cards/"+summary.ID+"/validations", map[string]any{"location_id": 42})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}

func TestFeatures(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	rr := doRequest(r, "PUT", "/features/"+features.FeatureValidationJournal, map[string]bool{"enabled": false})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(r, "GET", "/features", nil)
	var flags []features.FeatureFlag
	if err := json.Unmarshal(rr.Body.Bytes(), &flags); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	for _, f := range flags {
		if f.Name == features.FeatureValidationJournal && f.Enabled {
			t.Error("Expected the journal to be disabled")
		}
	}

	rr = doRequest(r, "PUT", "/features/"+features.FeatureValidationJournal, map[string]string{})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 without enabled, got %d", rr.Code)
	}
}
