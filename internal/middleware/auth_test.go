package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/crlx1q/antimat/internal/models"
	"github.com/crlx1q/antimat/internal/repository"
	"github.com/crlx1q/antimat/internal/security"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type stubUsers struct {
	users map[primitive.ObjectID]models.User
	err   error
}

func (s stubUsers) GetByID(_ context.Context, id primitive.ObjectID) (models.User, error) {
	if s.err != nil {
		return models.User{}, s.err
	}
	u, ok := s.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

type errorBody struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
}

func serve(t *testing.T, h gin.HandlerFunc, authorization string) (*httptest.ResponseRecorder, errorBody) {
	t.Helper()
	engine := gin.New()
	engine.GET("/x", h, func(c *gin.Context) {
		if user, ok := CurrentUser(c); ok {
			c.String(http.StatusOK, user.Name)
			return
		}
		c.String(http.StatusOK, "admin")
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	var body errorBody
	if rec.Code != http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
		}
	}
	return rec, body
}

func userToken(t *testing.T, id string, ttl time.Duration) string {
	t.Helper()
	tok, err := security.GenerateAccessToken(testSecret, id, ttl)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return "Bearer " + tok
}

func TestAuth(t *testing.T) {
	alice := models.User{ID: primitive.NewObjectID(), Name: "Alice"}
	users := stubUsers{users: map[primitive.ObjectID]models.User{alice.ID: alice}}

	tests := []struct {
		name   string
		users  UserLookup
		header string
		status int
		code   string
	}{
		{"missing", users, "", http.StatusUnauthorized, "missing_token"},
		{"not bearer", users, "Basic abc", http.StatusUnauthorized, "missing_token"},
		{"malformed", users, "Bearer not-a-jwt", http.StatusUnauthorized, "malformed_token"},
		{"expired", users, userToken(t, alice.ID.Hex(), -time.Minute), http.StatusUnauthorized, "token_expired"},
		{"bad id", users, userToken(t, "nope", time.Hour), http.StatusUnauthorized, "invalid_token"},
		{"unknown user", users, userToken(t, primitive.NewObjectID().Hex(), time.Hour), http.StatusUnauthorized, "user_not_found"},
		{"lookup failure", stubUsers{err: errors.New("db down")}, userToken(t, alice.ID.Hex(), time.Hour), http.StatusInternalServerError, "internal_error"},
		{"ok", users, userToken(t, alice.ID.Hex(), time.Hour), http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := serve(t, Auth(testSecret, tt.users), tt.header)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
			if tt.status == http.StatusOK {
				if rec.Body.String() != "Alice" {
					t.Fatalf("handler saw %q", rec.Body.String())
				}
				return
			}
			if body.Success || body.Code != tt.code {
				t.Fatalf("body = %+v, want code %s", body, tt.code)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	adminTok, err := security.GenerateAdminToken(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("admin token: %v", err)
	}

	tests := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"missing", "", http.StatusUnauthorized, "missing_token"},
		{"user token", userToken(t, primitive.NewObjectID().Hex(), time.Hour), http.StatusForbidden, "forbidden"},
		{"garbage", "Bearer x.y", http.StatusUnauthorized, "malformed_token"},
		{"admin", "Bearer " + adminTok, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := serve(t, RequireAdmin(testSecret), tt.header)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
			if tt.code != "" && body.Code != tt.code {
				t.Fatalf("code = %q, want %q", body.Code, tt.code)
			}
		})
	}
}
