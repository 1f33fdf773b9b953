package orders

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bissquit/pizzeria/internal/domain"
	"github.com/bissquit/pizzeria/internal/identity"
	"github.com/bissquit/pizzeria/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// UserDirectory resolves the users orders belong to.
type UserDirectory interface {
	ResolvePrincipal(ctx context.Context, principal *domain.Principal) (*domain.User, error)
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
}

// Handler handles HTTP requests for the orders module.
type Handler struct {
	service   *Service
	users     UserDirectory
	validator *validator.Validate
}

// NewHandler creates a new orders handler.
func NewHandler(service *Service, users UserDirectory) *Handler {
	return &Handler{
		service:   service,
		users:     users,
		validator: httputil.NewValidator(),
	}
}

// scope resolves the user an order route operates on and the path segment
// that names that user in links.
type scope func(w http.ResponseWriter, r *http.Request) (userID int64, segment string, ok bool)

// RegisterRoutes registers order routes. They require authentication.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/order", func(r chi.Router) {
		r.Get("/user/me", h.list(h.self))
		r.Get("/{orderId}/user/me", h.get(h.self))
		r.Post("/user/me", h.create(h.self))
		r.Post("/many/user/me", h.CreateManyMine)
		r.Put("/many/user/me", h.updateMany(h.self))
		r.Put("/{orderId}/user/me", h.update(h.self))
		r.Delete("/many/user/me", h.deleteMany(h.self))
		r.Delete("/{orderId}/user/me", h.delete(h.self))

		r.Group(func(r chi.Router) {
			r.Use(httputil.RequireRole(domain.RoleAdmin))

			r.Get("/user/{userId}", h.list(h.pathUser))
			r.Get("/{orderId}/user/{userId}", h.get(h.pathUser))
			r.Post("/", h.CreateForUser)
			r.Post("/many", h.CreateMany)
			r.Put("/many/user/{userId}", h.updateMany(h.pathUser))
			r.Put("/{orderId}/user/{userId}", h.update(h.pathUser))
			r.Delete("/many/user/{userId}", h.deleteMany(h.pathUser))
			r.Delete("/{orderId}/user/{userId}", h.delete(h.pathUser))
		})
	})
}

// ItemRequest is one order line.
type ItemRequest struct {
	Name  string  `json:"name" validate:"required,max=50"`
	Price float64 `json:"price" validate:"gt=0,lte=9999.99"`
}

// OrderRequest is the body for creating or updating the caller's order.
type OrderRequest struct {
	Items []ItemRequest `json:"items" validate:"required,min=1,dive"`
}

// AdminOrderRequest is the body for creating an order on behalf of a user.
type AdminOrderRequest struct {
	UserID int64         `json:"userId" validate:"required,gt=0"`
	Items  []ItemRequest `json:"items" validate:"required,min=1,dive"`
}

// BulkUpdateRequest is one entry of a bulk update body.
type BulkUpdateRequest struct {
	OrderID string       `json:"orderId" validate:"required"`
	Order   OrderRequest `json:"order"`
}

func toItems(reqs []ItemRequest) []domain.OrderItem {
	items := make([]domain.OrderItem, 0, len(reqs))
	for _, it := range reqs {
		items = append(items, domain.OrderItem(it))
	}
	return items
}

func (h *Handler) self(w http.ResponseWriter, r *http.Request) (int64, string, bool) {
	user, err := h.users.ResolvePrincipal(r.Context(), httputil.GetPrincipal(r.Context()))
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return 0, "", false
	}
	return user.ID, "me", true
}

func (h *Handler) pathUser(w http.ResponseWriter, r *http.Request) (int64, string, bool) {
	raw := chi.URLParam(r, "userId")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		httputil.Failure(w, http.StatusBadRequest, httputil.CodeValidation, "invalid user id")
		return 0, "", false
	}
	return id, raw, true
}

func (h *Handler) list(resolve scope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, ok := resolve(w, r)
		if !ok {
			return
		}

		orders, err := h.service.ListForUser(r.Context(), userID)
		if err != nil {
			h.handleServiceError(r.Context(), w, err)
			return
		}
		if len(orders) == 0 {
			httputil.Failure(w, http.StatusNotFound, httputil.CodeNotFound, "no orders found")
			return
		}

		httputil.Success(w, http.StatusOK, orders)
	}
}

func (h *Handler) get(resolve scope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, ok := resolve(w, r)
		if !ok {
			return
		}

		order, err := h.service.GetForUser(r.Context(), userID, chi.URLParam(r, "orderId"))
		if err != nil {
			h.handleServiceError(r.Context(), w, err)
			return
		}

		httputil.Success(w, http.StatusOK, order)
	}
}

func (h *Handler) create(resolve scope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, segment, ok := resolve(w, r)
		if !ok {
			return
		}

		var req OrderRequest
		if !h.decodeAndValidate(w, r, &req) {
			return
		}

		h.respondCreated(w, r, userID, segment, toItems(req.Items))
	}
}

// CreateForUser handles POST /order. The owner is named in the body.
func (h *Handler) CreateForUser(w http.ResponseWriter, r *http.Request) {
	var req AdminOrderRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if !h.usersExist(w, r, []int64{req.UserID}) {
		return
	}

	h.respondCreated(w, r, req.UserID, strconv.FormatInt(req.UserID, 10), toItems(req.Items))
}

func (h *Handler) respondCreated(w http.ResponseWriter, r *http.Request, userID int64, segment string, items []domain.OrderItem) {
	order, err := h.service.Create(r.Context(), userID, items)
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/order/%s/user/%s", order.ID, segment))
	httputil.Success(w, http.StatusCreated, order)
}

// CreateManyMine handles POST /order/many/user/me.
func (h *Handler) CreateManyMine(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := h.self(w, r)
	if !ok {
		return
	}

	var reqs []OrderRequest
	if !decodeAndValidateList(h, w, r, &reqs) {
		return
	}

	batch := make([]domain.Order, 0, len(reqs))
	for _, req := range reqs {
		batch = append(batch, domain.Order{UserID: userID, Items: toItems(req.Items)})
	}
	h.respondCreatedMany(w, r, batch)
}

// CreateMany handles POST /order/many. Every entry names its owner.
func (h *Handler) CreateMany(w http.ResponseWriter, r *http.Request) {
	var reqs []AdminOrderRequest
	if !decodeAndValidateList(h, w, r, &reqs) {
		return
	}

	userIDs := make([]int64, 0, len(reqs))
	batch := make([]domain.Order, 0, len(reqs))
	for _, req := range reqs {
		userIDs = append(userIDs, req.UserID)
		batch = append(batch, domain.Order{UserID: req.UserID, Items: toItems(req.Items)})
	}

	if !h.usersExist(w, r, userIDs) {
		return
	}
	h.respondCreatedMany(w, r, batch)
}

func (h *Handler) respondCreatedMany(w http.ResponseWriter, r *http.Request, batch []domain.Order) {
	res, err := h.service.CreateMany(r.Context(), batch)
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	status := http.StatusCreated
	if res.Outcome == OutcomePartial {
		status = http.StatusMultiStatus
	}
	httputil.Success(w, status, res.Orders)
}

func (h *Handler) update(resolve scope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, ok := resolve(w, r)
		if !ok {
			return
		}

		var req OrderRequest
		if !h.decodeAndValidate(w, r, &req) {
			return
		}

		order, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "orderId"), toItems(req.Items))
		if err != nil {
			h.handleServiceError(r.Context(), w, err)
			return
		}

		httputil.Success(w, http.StatusOK, order)
	}
}

func (h *Handler) updateMany(resolve scope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, ok := resolve(w, r)
		if !ok {
			return
		}

		var reqs []BulkUpdateRequest
		if !decodeAndValidateList(h, w, r, &reqs) {
			return
		}

		updates := make([]OrderUpdate, 0, len(reqs))
		for _, req := range reqs {
			updates = append(updates, OrderUpdate{OrderID: req.OrderID, Items: toItems(req.Order.Items)})
		}

		res, err := h.service.UpdateMany(r.Context(), userID, updates)
		if err != nil {
			h.handleServiceError(r.Context(), w, err)
			return
		}

		status := http.StatusOK
		if res.Outcome == OutcomePartial {
			status = http.StatusMultiStatus
		}
		httputil.Success(w, status, res)
	}
}

func (h *Handler) delete(resolve scope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, ok := resolve(w, r)
		if !ok {
			return
		}

		orderID := chi.URLParam(r, "orderId")
		if err := h.service.Delete(r.Context(), userID, orderID); err != nil {
			h.handleServiceError(r.Context(), w, err)
			return
		}

		httputil.Success(w, http.StatusOK, map[string]string{"orderId": orderID})
	}
}

func (h *Handler) deleteMany(resolve scope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, ok := resolve(w, r)
		if !ok {
			return
		}

		var ids []string
		if err := httputil.DecodeJSON(r, &ids); err != nil {
			httputil.InvalidJSON(w)
			return
		}

		res, err := h.service.DeleteMany(r.Context(), userID, ids)
		if err != nil {
			h.handleServiceError(r.Context(), w, err)
			return
		}

		status := http.StatusOK
		if res.Outcome == OutcomePartial {
			status = http.StatusMultiStatus
		}
		httputil.Success(w, status, res)
	}
}

func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httputil.DecodeJSON(r, dst); err != nil {
		httputil.InvalidJSON(w)
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		httputil.ValidationError(w, err)
		return false
	}
	return true
}

func decodeAndValidateList[T any](h *Handler, w http.ResponseWriter, r *http.Request, dst *[]T) bool {
	if err := httputil.DecodeJSON(r, dst); err != nil {
		httputil.InvalidJSON(w)
		return false
	}
	if len(*dst) == 0 {
		httputil.Failure(w, http.StatusBadRequest, httputil.CodeValidation, ErrEmptyBatch.Error())
		return false
	}
	for i := range *dst {
		if err := h.validator.Struct((*dst)[i]); err != nil {
			httputil.ValidationError(w, err)
			return false
		}
	}
	return true
}

// usersExist writes a 400 and returns false if any id is unknown.
func (h *Handler) usersExist(w http.ResponseWriter, r *http.Request, ids []int64) bool {
	checked := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := checked[id]; ok {
			continue
		}
		checked[id] = struct{}{}

		if _, err := h.users.GetUserByID(r.Context(), id); err != nil {
			if errors.Is(err, identity.ErrUserNotFound) {
				httputil.Failure(w, http.StatusBadRequest, httputil.CodeValidation,
					fmt.Sprintf("user %d does not exist", id))
				return false
			}
			httputil.InternalError(r.Context(), w, err)
			return false
		}
	}
	return true
}

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrOrderNotFound, Status: http.StatusNotFound},
	{Error: ErrNoChanges, Status: http.StatusBadRequest},
	{Error: ErrVersionConflict, Status: http.StatusConflict},
	{Error: ErrInvalidDelete, Status: http.StatusBadRequest},
	{Error: ErrInvalidIDs, Status: http.StatusBadRequest},
	{Error: ErrEmptyBatch, Status: http.StatusBadRequest},
	{Error: ErrBulkCreateFailed, Status: http.StatusInternalServerError},
	{Error: identity.ErrUnknownPrincipal, Status: http.StatusForbidden},
}

func (h *Handler) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var notFound *BatchOrderNotFoundError
	if errors.As(err, &notFound) {
		httputil.FailureWithDetails(w, http.StatusUnprocessableEntity, httputil.CodeNotFound,
			notFound.Error(), map[string]string{"orderId": notFound.OrderID})
		return
	}
	httputil.HandleError(ctx, w, err, errorMappings)
}
