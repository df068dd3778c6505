package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hongminglow/moviebox-be/internal/http/respond"
	"github.com/hongminglow/moviebox-be/internal/models"
	"github.com/hongminglow/moviebox-be/internal/models/dto"
	"github.com/hongminglow/moviebox-be/internal/storage"
)

const maxBodyBytes = 1 << 20

// storeTimeout caps each store call so a stalled connection attempt turns
// into a 503 well before the server's write deadline.
const storeTimeout = 5 * time.Second

const (
	msgInvalidJSON      = "invalid JSON payload"
	msgRegisterRequired = "Username, password, and email are required"
	msgLoginRequired    = "Username and password are required"
	msgInvalidLogin     = "Invalid username or password"
	msgUnavailable      = "Database service unavailable"
)

// UserHandler owns registration, listing and login. Passwords are stored and
// compared as plain text; no token or session is issued.
type UserHandler struct {
	store   storage.UserStore
	logger  *zap.Logger
	timeout time.Duration
}

// NewUserHandler constructs the handler.
func NewUserHandler(store storage.UserStore, logger *zap.Logger) *UserHandler {
	return &UserHandler{store: store, logger: logger, timeout: storeTimeout}
}

// Register attaches user routes to the mux.
func (h *UserHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/users", h.handleCreate)
	mux.HandleFunc("GET /api/users", h.handleList)
	mux.HandleFunc("POST /api/login", h.handleLogin)
}

func (h *UserHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if blank(req.Username) || blank(req.Password) || blank(req.Email) {
		respond.Error(w, http.StatusBadRequest, msgRegisterRequired)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	created, err := h.store.CreateUser(ctx, models.User{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
		Phone:    req.Phone,
	})
	if err != nil {
		h.storeError(w, err, "create user", "Failed to create user")
		return
	}

	respond.JSON(w, http.StatusCreated, created)
}

func (h *UserHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	users, err := h.store.ListUsers(ctx)
	if err != nil {
		h.storeError(w, err, "list users", "Failed to fetch users")
		return
	}
	if users == nil {
		users = []models.User{}
	}
	respond.JSON(w, http.StatusOK, users)
}

func (h *UserHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	identifier := req.Username
	if blank(identifier) {
		identifier = req.Identifier
	}
	if blank(identifier) || blank(req.Password) {
		respond.Error(w, http.StatusBadRequest, msgLoginRequired)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	user, err := h.store.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respond.Error(w, http.StatusUnauthorized, msgInvalidLogin)
			return
		}
		h.storeError(w, err, "login", "Failed to login")
		return
	}
	if user.Password != req.Password {
		respond.Error(w, http.StatusUnauthorized, msgInvalidLogin)
		return
	}

	respond.JSON(w, http.StatusOK, dto.LoginResponse{Message: "Login successful", User: user.Profile()})
}

// storeError maps store failures to 503 when the store is unreachable and
// 500 otherwise.
func (h *UserHandler) storeError(w http.ResponseWriter, err error, op, message string) {
	h.logger.Error(op+" failed", zap.Error(err))
	if errors.Is(err, storage.ErrUnavailable) {
		respond.Error(w, http.StatusServiceUnavailable, msgUnavailable)
		return
	}
	respond.Error(w, http.StatusInternalServerError, message)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respond.Error(w, http.StatusBadRequest, msgInvalidJSON)
		return false
	}
	return true
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
