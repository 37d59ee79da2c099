package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"taskdeck/pkg/auth"
	"taskdeck/pkg/models"
	"taskdeck/pkg/store"
)

const testSecret = "handlers-test-secret-0123"

func userRouter() *mux.Router {
	r := mux.NewRouter()
	RegisterUsers(r, UserDeps{JWTSecret: testSecret, TokenTTL: time.Hour})
	return r
}

func registerUser(t *testing.T, r *mux.Router, email, username string) sessionResponse {
	t.Helper()
	rec := doAs(t, r, "", http.MethodPost, "/users/register", map[string]string{
		"name":     "Ada",
		"email":    email,
		"username": username,
		"password": "longenough",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var s sessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return s
}

func TestRegisterReturnsSessionWithoutSecrets(t *testing.T) {
	openTestStore(t)
	r := userRouter()
	s := registerUser(t, r, "ada@example.com", "ada")

	if s.Token == "" {
		t.Fatalf("expected a session token")
	}
	if s.User.PasswordHash != "" || s.User.VerifyToken != "" {
		t.Fatalf("response leaked secrets: %+v", s.User)
	}
	if s.User.Verified {
		t.Fatalf("new accounts start unverified")
	}
	id, err := auth.VerifyToken(testSecret, s.Token)
	if err != nil || id != s.User.ID {
		t.Fatalf("token should verify to the new user: %v %q", err, id)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	openTestStore(t)
	r := userRouter()
	registerUser(t, r, "ada@example.com", "ada")

	rec := doAs(t, r, "", http.MethodPost, "/users/register", map[string]string{
		"name": "Other", "email": "ada@example.com", "username": "other", "password": "longenough",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate email: expected 400, got %d", rec.Code)
	}
	rec = doAs(t, r, "", http.MethodPost, "/users/register", map[string]string{
		"name": "Other", "email": "other@example.com", "username": "ada", "password": "longenough",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate username: expected 400, got %d", rec.Code)
	}
}

func TestLoginByEmailOrUsername(t *testing.T) {
	openTestStore(t)
	r := userRouter()
	registerUser(t, r, "ada@example.com", "ada")

	for _, ident := range []string{"ada@example.com", "ada", "ADA@example.com"} {
		rec := doAs(t, r, "", http.MethodPost, "/users/login", map[string]string{
			"identifier": ident, "password": "longenough",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("login as %q: expected 200, got %d: %s", ident, rec.Code, rec.Body.String())
		}
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	openTestStore(t)
	r := userRouter()
	registerUser(t, r, "ada@example.com", "ada")

	rec := doAs(t, r, "", http.MethodPost, "/users/login", map[string]string{
		"identifier": "ada", "password": "wrongpassword",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: expected 401, got %d", rec.Code)
	}
	rec = doAs(t, r, "", http.MethodPost, "/users/login", map[string]string{
		"identifier": "nobody", "password": "longenough",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown identifier: expected 401, got %d", rec.Code)
	}
}

func TestMe(t *testing.T) {
	openTestStore(t)
	r := userRouter()
	s := registerUser(t, r, "ada@example.com", "ada")

	rec := doAs(t, r, s.User.ID, http.MethodGet, "/users/me", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", rec.Code)
	}
	var u models.User
	_ = json.NewDecoder(rec.Body).Decode(&u)
	if u.ID != s.User.ID || u.Email != "ada@example.com" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if u.PasswordHash != "" {
		t.Fatalf("me leaked password hash")
	}

	if rec := doAs(t, r, "", http.MethodGet, "/users/me", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("me without identity: expected 401, got %d", rec.Code)
	}
}

func TestVerifyFlow(t *testing.T) {
	openTestStore(t)
	r := userRouter()
	s := registerUser(t, r, "ada@example.com", "ada")

	// garbage token first
	rec := doAs(t, r, "", http.MethodGet, "/users/verify/not-a-token", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad token: expected 400, got %d", rec.Code)
	}

	// fetch the real token straight from the store, standing in for the email
	stored, err := store.GetUser(s.User.ID)
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	rec = doAs(t, r, "", http.MethodGet, "/users/verify/"+stored.VerifyToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doAs(t, r, s.User.ID, http.MethodGet, "/users/me", nil)
	var u models.User
	_ = json.NewDecoder(rec.Body).Decode(&u)
	if !u.Verified {
		t.Fatalf("user should be verified: %+v", u)
	}

	// redeeming again stays a 200 no-op
	rec = doAs(t, r, "", http.MethodGet, "/users/verify/"+stored.VerifyToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat verify: expected 200, got %d", rec.Code)
	}
}
