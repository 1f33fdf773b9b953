package identity

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/bissquit/pizzeria/internal/domain"
	"github.com/bissquit/pizzeria/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for the identity module.
type Handler struct {
	service      *Service
	validator    *validator.Validate
	loginLimiter func(http.Handler) http.Handler
}

// NewHandler creates a new identity handler. loginLimiter may be nil.
func NewHandler(service *Service, loginLimiter func(http.Handler) http.Handler) *Handler {
	return &Handler{
		service:      service,
		validator:    httputil.NewValidator(),
		loginLimiter: loginLimiter,
	}
}

// RegisterRoutes registers anonymous identity routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/user/register", h.Register)
	r.Group(func(r chi.Router) {
		if h.loginLimiter != nil {
			r.Use(h.loginLimiter)
		}
		r.Post("/user/login", h.Login)
	})
}

// RegisterProtectedRoutes registers routes that require authentication.
func (h *Handler) RegisterProtectedRoutes(r chi.Router) {
	r.Get("/user/me", h.Me)

	r.Group(func(r chi.Router) {
		r.Use(httputil.RequireRole(domain.RoleAdmin))
		r.Get("/user/list", h.ListUsers)
		r.Get("/user/{id}", h.GetUser)
	})
}

// RegisterRequest represents registration request body.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=3,max=64"`
	Email    string `json:"email" validate:"required,max=64,email"`
	Password string `json:"password" validate:"required,min=8,max=32,password"`
	Phone    string `json:"phone" validate:"required,min=10,max=20"`
	Address  string `json:"address" validate:"required,min=8,max=40"`
}

// trim strips surrounding whitespace so length rules apply to the stored values.
// The password is kept as typed.
func (req *RegisterRequest) trim() {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Address = strings.TrimSpace(req.Address)
}

// Register handles POST /user/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.InvalidJSON(w)
		return
	}
	req.trim()

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	user, err := h.service.Register(r.Context(), RegisterInput(req))
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusCreated, user)
}

// LoginRequest represents login request body.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login handles POST /user/login. The message is the bearer token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.InvalidJSON(w)
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	token, _, err := h.service.Login(r.Context(), LoginInput(req))
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusOK, token)
}

// Me handles GET /user/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.ResolvePrincipal(r.Context(), httputil.GetPrincipal(r.Context()))
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusOK, user)
}

// ListUsers handles GET /user/list.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	if len(users) == 0 {
		httputil.Failure(w, http.StatusNotFound, httputil.CodeNotFound, "no users found")
		return
	}

	httputil.Success(w, http.StatusOK, users)
}

// GetUser handles GET /user/{id}.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httputil.Failure(w, http.StatusBadRequest, httputil.CodeValidation, "invalid user id")
		return
	}

	user, err := h.service.GetUserByID(r.Context(), id)
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusOK, user)
}

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrUserNotFound, Status: http.StatusNotFound},
	{Error: ErrEmailExists, Status: http.StatusConflict},
	{Error: ErrInvalidCredentials, Status: http.StatusBadRequest, Message: "invalid credentials"},
	{Error: ErrInvalidToken, Status: http.StatusUnauthorized},
	{Error: ErrUnknownPrincipal, Status: http.StatusForbidden, Code: httputil.CodeForbidden},
}

func (h *Handler) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	httputil.HandleError(ctx, w, err, errorMappings)
}
