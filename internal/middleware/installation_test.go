package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/checkin/internal/model"
)

func TestInstallationMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
		want       model.Installation
	}{
		{"正規の拠点", "AKURE", http.StatusOK, model.InstallationAkure},
		{"小文字と空白", "  ikeja ", http.StatusOK, model.InstallationIkeja},
		{"ヘッダーなし", "", http.StatusBadRequest, ""},
		{"未知の拠点", "LONDON", http.StatusBadRequest, ""},
		{"GLOBALはチェックイン先にできない", "GLOBAL", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got model.Installation
			handler := NewInstallationMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = InstallationFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/v1/attendance/check-in", nil)
			if tt.header != "" {
				req.Header.Set(InstallationHeader, tt.header)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got != tt.want {
				t.Errorf("installation = %q, want %q", got, tt.want)
			}
			if tt.wantStatus == http.StatusBadRequest {
				var body ErrorResponseBody
				if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				if body.Code != model.ErrCodeInvalidInstallation {
					t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInvalidInstallation)
				}
			}
		})
	}
}
