package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"taskdeck/pkg/auth"
	"taskdeck/pkg/logger"
	"taskdeck/pkg/models"
	"taskdeck/pkg/store"
	"taskdeck/pkg/utils"
	"taskdeck/pkg/validation"
)

// verifyTokenTTL bounds how long an unredeemed verification link stays valid.
const verifyTokenTTL = 24 * time.Hour

// UserDeps carries account handler settings.
type UserDeps struct {
	JWTSecret    string
	TokenTTL     time.Duration
	MaxBodyBytes int64
}

// RegisterUsers registers account routes on the provided router.
func RegisterUsers(r *mux.Router, d UserDeps) {
	h := &userHandlers{deps: d}
	r.HandleFunc("/users/register", h.register).Methods(http.MethodPost)
	r.HandleFunc("/users/login", h.login).Methods(http.MethodPost)
	r.HandleFunc("/users/me", h.me).Methods(http.MethodGet)
	r.HandleFunc("/users/verify/{token}", h.verify).Methods(http.MethodGet)
}

type userHandlers struct {
	deps UserDeps
}

type sessionResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// register handles POST /users/register. Email and username must be
// unused. The verification token is logged rather than mailed; operators
// hand it to the user out of band.
func (h *userHandlers) register(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := utils.DecodeJSON(w, r, &body, h.deps.MaxBodyBytes); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	body.Email = strings.ToLower(strings.TrimSpace(body.Email))
	body.Username = strings.TrimSpace(body.Username)
	if err := validation.Registration(body.Name, body.Email, body.Username, body.Password); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := store.LookupUserID("email", body.Email); err == nil {
		utils.JSONError(w, http.StatusBadRequest, "email already registered")
		return
	}
	if _, err := store.LookupUserID("name", body.Username); err == nil {
		utils.JSONError(w, http.StatusBadRequest, "username already taken")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "hash password")
		return
	}
	id := utils.GenUserID()
	verifyTok, err := auth.IssueToken(h.deps.JWTSecret, id, verifyTokenTTL)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	u := models.User{
		ID:           id,
		Name:         strings.TrimSpace(body.Name),
		Email:        body.Email,
		Username:     body.Username,
		PasswordHash: string(hash),
		VerifyToken:  verifyTok,
		CreatedTS:    time.Now().UTC().UnixNano(),
	}
	if err := store.SaveUser(u); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	tok, err := auth.IssueToken(h.deps.JWTSecret, u.ID, h.deps.TokenTTL)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Info("user_registered", "id", u.ID, "username", u.Username, "verify_token", u.VerifyToken)
	utils.JSONWrite(w, http.StatusCreated, sessionResponse{Token: tok, User: u.Public()})
}

// login handles POST /users/login. The identifier matches either email or
// username. Unknown identifier and bad password both return the same 401.
func (h *userHandlers) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
	}
	if err := utils.DecodeJSON(w, r, &body, h.deps.MaxBodyBytes); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	ident := strings.TrimSpace(body.Identifier)
	if ident == "" || body.Password == "" {
		utils.JSONError(w, http.StatusBadRequest, "identifier and password are required")
		return
	}
	id, err := store.LookupUserID("email", strings.ToLower(ident))
	if err != nil {
		id, err = store.LookupUserID("name", ident)
	}
	if err != nil {
		utils.JSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	u, err := store.GetUser(id)
	if err != nil {
		utils.JSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(body.Password)) != nil {
		logger.Warn("login_failed", "user", u.ID)
		utils.JSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	tok, err := auth.IssueToken(h.deps.JWTSecret, u.ID, h.deps.TokenTTL)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Info("user_logged_in", "id", u.ID)
	utils.JSONWrite(w, http.StatusOK, sessionResponse{Token: tok, User: u.Public()})
}

// me handles GET /users/me.
func (h *userHandlers) me(w http.ResponseWriter, r *http.Request) {
	id := auth.UserIDFromContext(r.Context())
	if id == "" {
		utils.JSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	u, err := store.GetUser(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.JSONError(w, http.StatusNotFound, "user not found")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.JSONWrite(w, http.StatusOK, u.Public())
}

// verify handles GET /users/verify/{token}. The token is a short-lived
// signed token issued at registration and must still match the stored
// copy, so a redeemed or replaced token cannot verify twice.
func (h *userHandlers) verify(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	id, err := auth.VerifyToken(h.deps.JWTSecret, token)
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid or expired verification token")
		return
	}
	u, err := store.GetUser(id)
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid verification token")
		return
	}
	if u.Verified {
		utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "already verified"})
		return
	}
	if u.VerifyToken == "" || u.VerifyToken != token {
		utils.JSONError(w, http.StatusBadRequest, "invalid verification token")
		return
	}
	u.Verified = true
	u.VerifyToken = ""
	if err := store.SaveUser(u); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Info("user_verified", "id", u.ID)
	utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "verified"})
}
