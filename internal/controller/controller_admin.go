package controller

import (
	"net/http"

	"go.uber.org/zap"
)

// POST /api/admin/organizations/import
func (c *Controller) ImportOrganizations(w http.ResponseWriter, r *http.Request) {
	if !c.requireAdmin(w, r) {
		return
	}

	data, err := c.readBody(r.Body)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not read request body")
		return
	}

	req, err := ParseImportReq(data)
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := c.service.ImportOrganizations(r.Context(), req.ToModels())
	if err != nil {
		c.logger.Error("import interrupted",
			zap.Int("created", res.Created), zap.Int("replaced", res.Replaced), zap.Int("skipped", res.Skipped))
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, res)
}

// PUT /api/admin/organizations/{organizationId}/verify
func (c *Controller) VerifyOrganization(w http.ResponseWriter, r *http.Request) {
	if !c.requireAdmin(w, r) {
		return
	}
	id, ok := c.pathUUID(w, r, "organizationId")
	if !ok {
		return
	}
	verified, ok := c.verifiedParam(w, r)
	if !ok {
		return
	}

	org, err := c.service.SetOrganizationVerified(r.Context(), id, verified)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, org)
}

// PUT /api/admin/teams/{teamId}/verify
func (c *Controller) VerifyTeam(w http.ResponseWriter, r *http.Request) {
	if !c.requireAdmin(w, r) {
		return
	}
	id, ok := c.pathUUID(w, r, "teamId")
	if !ok {
		return
	}
	verified, ok := c.verifiedParam(w, r)
	if !ok {
		return
	}

	team, err := c.service.SetTeamVerified(r.Context(), id, verified)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, team)
}

// GET /api/users
func (c *Controller) GetUsers(w http.ResponseWriter, r *http.Request) {
	if !c.requireAdmin(w, r) {
		return
	}

	query := r.URL.Query()

	limit, err := c.getQueryInt(query, "limit")
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, queryError("limit", query).Error())
		return
	}

	offset, err := c.getQueryInt(query, "offset")
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, queryError("offset", query).Error())
		return
	}

	users, err := c.service.GetUsers(r.Context(), limit, offset)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, users)
}

// POST /api/users
func (c *Controller) NewUser(w http.ResponseWriter, r *http.Request) {
	if !c.requireAdmin(w, r) {
		return
	}

	data, err := c.readBody(r.Body)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not read request body")
		return
	}

	req, err := ParseNewUserReq(data)
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := c.service.AddUser(r.Context(), req.Phone)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, user)
}

// verifiedParam reads the "verified" query parameter, true when absent.
func (c *Controller) verifiedParam(w http.ResponseWriter, r *http.Request) (bool, bool) {
	query := r.URL.Query()
	verified, err := c.getQueryBool(query, "verified")
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, queryError("verified", query).Error())
		return false, false
	}
	if verified == nil {
		return true, true
	}
	return *verified, true
}
