// HTTP handlers for register, login and guest sessions (public endpoints, no AuthMiddleware).
// Translates HTTP requests into domain/auth.AuthService calls and maps domain errors to HTTP codes.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	domainauth "github.com/matiasleandrokruk/tutora/internal/domain/auth"
	pkgauth "github.com/matiasleandrokruk/tutora/pkg/auth"
)

// AuthHandler handles authentication HTTP requests.
type AuthHandler struct {
	authService domainauth.AuthService
}

// NewAuthHandler creates a new AuthHandler backed by the provided AuthService.
func NewAuthHandler(authService domainauth.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// RegisterRequest is the request body for POST /auth/register.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	SchoolLevel string `json:"schoolLevel"`
}

// LoginRequest is the request body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is the response body returned after register, login or guest start.
type AuthResponse struct {
	Token  string       `json:"token"`
	UserID string       `json:"userId"`
	Role   pkgauth.Role `json:"role"`
}

// Register handles POST /auth/register.
// A request carrying a guest Bearer token upgrades that guest in place, so its
// conversations survive sign-up.
//
// Response codes:
//   - 201 Created: registration successful
//   - 400 Bad Request: invalid JSON, missing fields, bad email or short password
//   - 404 Not Found: the guest token refers to an unknown guest
//   - 409 Conflict: email already registered
//   - 500 Internal Server Error: unexpected failure
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := validateRegisterRequest(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.authService.Register(r.Context(), domainauth.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		SchoolLevel: req.SchoolLevel,
		GuestID:     guestFromHeader(r),
	})
	switch {
	case err == nil:
	case errors.Is(err, domainauth.ErrEmailAlreadyExists):
		writeError(w, http.StatusConflict, "email already registered")
		return
	case errors.Is(err, domainauth.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, domainauth.ErrGuestNotFound):
		writeError(w, http.StatusNotFound, "guest session not found")
		return
	default:
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	writeJSON(w, http.StatusCreated, toAuthResponse(result))
}

// Login handles POST /auth/login.
//
// Response codes:
//   - 200 OK: login successful
//   - 400 Bad Request: invalid JSON or missing required fields
//   - 401 Unauthorized: invalid credentials (generic, doesn't reveal if email exists)
//   - 500 Internal Server Error: unexpected failure
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := validateLoginRequest(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.authService.Login(r.Context(), domainauth.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, domainauth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, toAuthResponse(result))
}

// Guest handles POST /auth/guest: an anonymous session limited to the free question quota.
func (h *AuthHandler) Guest(w http.ResponseWriter, r *http.Request) {
	result, err := h.authService.StartGuest(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not start guest session")
		return
	}
	writeJSON(w, http.StatusCreated, toAuthResponse(result))
}

func toAuthResponse(res *domainauth.AuthResult) AuthResponse {
	return AuthResponse{Token: res.Token, UserID: res.UserID, Role: res.Role}
}

// guestFromHeader returns the user id of a valid guest Bearer token, or "".
func guestFromHeader(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	c, err := pkgauth.ParseJWT(strings.TrimSpace(token))
	if err != nil || c.Role != pkgauth.RoleGuest {
		return ""
	}
	return c.UserID
}

// validateRegisterRequest checks required fields for the register endpoint.
func validateRegisterRequest(req RegisterRequest) error {
	if req.Email == "" {
		return errors.New("email is required")
	}
	if req.Password == "" {
		return errors.New("password is required")
	}
	return nil
}

// validateLoginRequest checks required fields for the login endpoint.
func validateLoginRequest(req LoginRequest) error {
	if req.Email == "" {
		return errors.New("email is required")
	}
	if req.Password == "" {
		return errors.New("password is required")
	}
	return nil
}
