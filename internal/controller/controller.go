package controller

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"medrelief/internal/models"
	"medrelief/internal/service"
)

const (
	HeaderUserId     = "X-User-Id"
	HeaderAdminToken = "X-Admin-Token"
	HeaderCache      = "X-Cache"
)

type Service interface {
	GetOrganizations(ctx context.Context, caller uuid.NullUUID, q models.OrganizationQuery) ([]models.Organization, error)
	GetOrganization(ctx context.Context, id uuid.UUID) (models.Organization, error)
	SubmitOrganization(ctx context.Context, submitter uuid.UUID, sub models.Organization) (models.Organization, error)
	UpdateOrganization(ctx context.Context, caller, id uuid.UUID, sub models.Organization) (models.Organization, error)
	DeleteOrganization(ctx context.Context, caller, id uuid.UUID) error
	AddOrganizationContact(ctx context.Context, caller, orgId uuid.UUID, contact models.OrganizationContact) (models.OrganizationContact, error)
	DeleteOrganizationContact(ctx context.Context, caller, orgId, contactId uuid.UUID) error
	AddOrganizationDemand(ctx context.Context, caller, orgId uuid.UUID, demand models.OrganizationDemand) (models.OrganizationDemand, error)
	DeleteOrganizationDemand(ctx context.Context, caller, orgId, demandId uuid.UUID) error
	ImportOrganizations(ctx context.Context, records []models.Organization) (service.ImportResult, error)
	SetOrganizationVerified(ctx context.Context, id uuid.UUID, verified bool) (models.Organization, error)

	GetTeams(ctx context.Context, caller uuid.NullUUID, q models.TeamQuery) ([]models.Team, error)
	GetTeam(ctx context.Context, id uuid.UUID) (models.Team, error)
	SubmitTeam(ctx context.Context, submitter uuid.UUID, sub models.Team) (models.Team, error)
	UpdateTeam(ctx context.Context, caller, id uuid.UUID, sub models.Team) (models.Team, error)
	DeleteTeam(ctx context.Context, caller, id uuid.UUID) error
	AddTeamContact(ctx context.Context, caller, teamId uuid.UUID, contact models.TeamContact) (models.TeamContact, error)
	DeleteTeamContact(ctx context.Context, caller, teamId, contactId uuid.UUID) error
	SetTeamVerified(ctx context.Context, id uuid.UUID, verified bool) (models.Team, error)

	Caller(ctx context.Context, id uuid.UUID) (models.User, error)
	AddUser(ctx context.Context, phone string) (models.User, error)
	GetUsers(ctx context.Context, limit, offset int) ([]models.User, error)
}

// ResponseCache stores rendered read responses.
type ResponseCache interface {
	Get(key string) ([]byte, bool)
	Generation(key string) uint64
	SetIfCurrent(key string, gen uint64, body []byte) bool
}

type Controller struct {
	service    Service
	cache      ResponseCache
	adminToken string
	logger     *zap.Logger
}

func NewController(service Service, cache ResponseCache, adminToken string, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		service:    service,
		cache:      cache,
		adminToken: adminToken,
		logger:     logger,
	}
}

// GET /api/ping
func (c *Controller) Ping(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}

//// Callers

// requireCaller resolves the X-User-Id header, writing 401 when it is absent,
// malformed or unknown.
func (c *Controller) requireCaller(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	header := r.Header.Get(HeaderUserId)
	if len(header) == 0 {
		c.errorResponse(w, http.StatusUnauthorized, "empty "+HeaderUserId+" header supplied")
		return uuid.Nil, false
	}

	id, err := uuid.Parse(header)
	if err != nil {
		c.errorResponse(w, http.StatusUnauthorized, "malformed "+HeaderUserId+" header supplied")
		return uuid.Nil, false
	}

	user, err := c.service.Caller(r.Context(), id)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return uuid.Nil, false
	}
	return user.Id, true
}

// optionalCaller is requireCaller for reads: anything unresolvable is anonymous.
func (c *Controller) optionalCaller(r *http.Request) uuid.NullUUID {
	id, err := uuid.Parse(r.Header.Get(HeaderUserId))
	if err != nil {
		return uuid.NullUUID{}
	}

	user, err := c.service.Caller(r.Context(), id)
	if err != nil {
		if !errors.Is(err, models.ErrUnauthorized) {
			c.logger.Warn("could not resolve caller", zap.Error(err))
		}
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: user.Id, Valid: true}
}

func (c *Controller) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	token := r.Header.Get(HeaderAdminToken)
	if len(c.adminToken) == 0 || subtle.ConstantTimeCompare([]byte(token), []byte(c.adminToken)) != 1 {
		c.errorResponse(w, http.StatusForbidden, "admin token is missing or invalid")
		return false
	}
	return true
}

//// Service

type ErrorResponse struct {
	Reason string `json:"reason"`
}

// cachedResponse serves a read from the response cache, filling it on a miss.
func (c *Controller) cachedResponse(w http.ResponseWriter, key string, fetch func() (any, error)) {
	if body, ok := c.cache.Get(key); ok {
		w.Header().Set(HeaderCache, "HIT")
		c.writeJSON(w, http.StatusOK, body)
		return
	}

	gen := c.cache.Generation(key)
	data, err := fetch()
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	body, err := json.Marshal(data)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not marshal response data")
		return
	}

	// a write committed during fetch may have made body stale
	if !c.cache.SetIfCurrent(key, gen, body) {
		c.logger.Debug("stale read not cached", zap.String("key", key))
	}
	w.Header().Set(HeaderCache, "MISS")
	c.writeJSON(w, http.StatusOK, body)
}

func queryError(key string, query url.Values) error {
	return fmt.Errorf("invalid value of '%s' query parameter: %s", key, query.Get(key))
}

func callerKey(caller uuid.NullUUID) string {
	if !caller.Valid {
		return ""
	}
	return caller.UUID.String()
}

func (c *Controller) getQueryInt(query url.Values, key string) (int, error) {
	strs, ok := query[key]
	if ok && len(strs) > 0 {
		v, err := strconv.Atoi(strs[0])
		if err != nil {
			return 0, err
		}
		if v < 0 {
			return 0, fmt.Errorf("negative value")
		}
		return v, nil
	}
	return 0, nil
}

func (c *Controller) getQueryBool(query url.Values, key string) (*bool, error) {
	strs, ok := query[key]
	if !ok || len(strs) == 0 || len(strs[0]) == 0 {
		return nil, nil
	}
	v, err := strconv.ParseBool(strs[0])
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Controller) getQueryUUID(query url.Values, key string) (uuid.NullUUID, error) {
	str := query.Get(key)
	if len(str) == 0 {
		return uuid.NullUUID{}, nil
	}
	id, err := uuid.Parse(str)
	if err != nil {
		return uuid.NullUUID{}, err
	}
	return uuid.NullUUID{UUID: id, Valid: true}, nil
}

// pathUUID parses a path wildcard, writing 400 when it is not a UUID.
func (c *Controller) pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	str := r.PathValue(name)
	if len(str) == 0 {
		c.errorResponse(w, http.StatusBadRequest, "empty "+name+" supplied")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(str)
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, "malformed "+name+" supplied: "+str)
		return uuid.Nil, false
	}
	return id, true
}

func (c *Controller) errorResponse(w http.ResponseWriter, status int, text string) {
	data, err := json.Marshal(ErrorResponse{Reason: text})
	if err != nil {
		c.logger.Error("controller.Controller.errorResponse", zap.Error(err))
		w.WriteHeader(status)
		return
	}
	c.writeJSON(w, status, data)
}

func (c *Controller) serviceErrorResponse(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrUnauthorized):
		c.errorResponse(w, http.StatusUnauthorized, "user does not exist or is not identified")
	case errors.Is(err, models.ErrForbidden):
		c.errorResponse(w, http.StatusForbidden, "user have no permission for requested action")
	case errors.Is(err, models.ErrNotFound):
		c.errorResponse(w, http.StatusNotFound, "requested entity does not exist")
	case errors.Is(err, models.ErrConflict):
		c.errorResponse(w, http.StatusConflict, "entity with the same natural key already exists")
	default:
		c.logger.Error("controller: service error", zap.Error(err))
		c.errorResponse(w, http.StatusInternalServerError, "internal server error")
	}
}

func (c *Controller) marshalResponse(w http.ResponseWriter, data any) {
	d, err := json.Marshal(data)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not marshal response data")
		return
	}
	c.writeJSON(w, http.StatusOK, d)
}

func (c *Controller) writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, err := w.Write(body)
	if err != nil {
		c.logger.Warn("could not write response data", zap.Error(err))
	}
}

func (c *Controller) readBody(src io.ReadCloser) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(src, maxBodySize))
	if err != nil {
		return nil, err
	}
	src.Close()
	return data, nil
}
