package access

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/beaconhq/beacon/internal/audit"
	"github.com/beaconhq/beacon/internal/platform/httpx"
)

// Handler exposes the role and permission administration API.
type Handler struct {
	logger  *slog.Logger
	service *Service
	matrix  *MatrixBuilder
	auditor audit.Recorder
	mw      Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, matrix *MatrixBuilder, auditor audit.Recorder, mw Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, matrix: matrix, auditor: auditor, mw: mw}
}

// MountRoutes registers the administration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/permissions", h.listPermissions)

	r.Group(func(r chi.Router) {
		r.Use(h.mw.Require(PermAdmin))
		r.Get("/roles", h.listRootRoles)
		r.Get("/roles/{roleID}", h.getRole)
		r.Post("/roles/{roleID}/permissions", h.addPermission)
		r.Delete("/roles/{roleID}/permissions", h.removePermission)
		r.Post("/roles/{roleID}/users/{userID}", h.addUser)
		r.Delete("/roles/{roleID}/users/{userID}", h.removeUser)
		r.Put("/users/{userID}/root-role", h.setRootRole)
		r.Get("/users/{userID}/permissions", h.userMatrix)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireForProject(PermUpdateProject, "projectID"))
		r.Get("/projects/{projectID}/access", h.projectAccess)
	})
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{
		"permissions": h.service.Catalog().Permissions(),
	})
}

func (h *Handler) listRootRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.RootRoles(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.roleID(w, r)
	if !ok {
		return
	}
	data, err := h.service.GetRole(r.Context(), roleID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, data)
}

type permissionRequest struct {
	Permission  string `json:"permission" validate:"required"`
	ProjectID   string `json:"projectId"`
	Environment string `json:"environment"`
}

func (h *Handler) addPermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.roleID(w, r)
	if !ok {
		return
	}
	var req permissionRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var err error
	if req.Environment != "" {
		err = h.service.AddEnvironmentPermissionToRole(r.Context(), roleID, req.Permission, req.ProjectID, req.Environment)
	} else {
		err = h.service.AddPermissionToRole(r.Context(), roleID, req.Permission, req.ProjectID)
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.record(r, "role.permission.added", "role", strconv.FormatInt(int64(roleID), 10), map[string]any{
		"permission": req.Permission,
		"project":    req.ProjectID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removePermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.roleID(w, r)
	if !ok {
		return
	}
	var req permissionRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.RemovePermissionFromRole(r.Context(), roleID, req.Permission, req.ProjectID); err != nil {
		h.respondError(w, err)
		return
	}
	h.record(r, "role.permission.removed", "role", strconv.FormatInt(int64(roleID), 10), map[string]any{
		"permission": req.Permission,
		"project":    req.ProjectID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addUser(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.roleID(w, r)
	if !ok {
		return
	}
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	if err := h.service.AddUserToRole(r.Context(), userID, roleID); err != nil {
		h.respondError(w, err)
		return
	}
	h.record(r, "role.user.added", "role", strconv.FormatInt(int64(roleID), 10), map[string]any{
		"userId": userID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeUser(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.roleID(w, r)
	if !ok {
		return
	}
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	if err := h.service.RemoveUserFromRole(r.Context(), userID, roleID); err != nil {
		h.respondError(w, err)
		return
	}
	h.record(r, "role.user.removed", "role", strconv.FormatInt(int64(roleID), 10), map[string]any{
		"userId": userID,
	})
	w.WriteHeader(http.StatusNoContent)
}

type rootRoleRequest struct {
	RoleID   int64  `json:"roleId"`
	RoleName string `json:"roleName"`
}

func (h *Handler) setRootRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req rootRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	roleID := RoleID(req.RoleID)
	if req.RoleID == 0 {
		if req.RoleName == "" {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "roleId or roleName is required")
			return
		}
		role, err := h.service.RootRoleByName(r.Context(), req.RoleName)
		if err != nil {
			h.respondError(w, err)
			return
		}
		roleID = role.ID
	}
	if err := h.service.SetUserRootRole(r.Context(), userID, roleID); err != nil {
		h.respondError(w, err)
		return
	}
	h.record(r, "user.root_role.changed", "user", strconv.FormatInt(userID, 10), map[string]any{
		"roleId": int64(roleID),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) userMatrix(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	m, err := h.matrix.Build(r.Context(), userID, r.URL.Query().Get("project"), r.URL.Query().Get("environment"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) projectAccess(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	roles, users, err := h.service.ProjectRoleUsers(r.Context(), projectID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles, "users": users})
}

func (h *Handler) roleID(w http.ResponseWriter, r *http.Request) (RoleID, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "roleID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return 0, false
	}
	return RoleID(id), true
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return 0, false
	}
	return id, true
}

func (h *Handler) record(r *http.Request, action, entity, entityID string, meta map[string]any) {
	if h.auditor == nil {
		return
	}
	actorID, _ := h.mw.currentUserID(r)
	h.auditor.Record(r.Context(), audit.Event{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
	})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidArgument):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", err.Error())
	case errors.Is(err, ErrConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("access request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
