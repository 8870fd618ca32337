package controller

import (
	"net/http"
	"net/url"

	"medrelief/internal/cache"
	"medrelief/internal/models"
)

func (c *Controller) parseOrganizationQuery(query url.Values) (models.OrganizationQuery, error) {
	var q models.OrganizationQuery
	var err error

	if q.Limit, err = c.getQueryInt(query, "limit"); err != nil {
		return q, queryError("limit", query)
	}
	if q.Offset, err = c.getQueryInt(query, "offset"); err != nil {
		return q, queryError("offset", query)
	}
	if q.Inspector, err = c.getQueryUUID(query, "inspector"); err != nil {
		return q, queryError("inspector", query)
	}
	if q.Verified, err = c.getQueryBool(query, "verified"); err != nil {
		return q, queryError("verified", query)
	}
	mine, err := c.getQueryBool(query, "mine")
	if err != nil {
		return q, queryError("mine", query)
	}
	q.Mine = mine != nil && *mine

	q.Province = query.Get("province")
	q.City = query.Get("city")
	q.Name = query.Get("name")
	q.Address = query.Get("address")
	q.FuzzyName = query.Get("fuzzy_name")
	q.FuzzyAddress = query.Get("fuzzy_address")

	// unknown scopes are ignored
	if scope := models.Scope(query.Get("scope")); models.ValidScope(scope) {
		q.Scope = scope
	}
	return q, nil
}

// GET /api/organizations
func (c *Controller) GetOrganizations(w http.ResponseWriter, r *http.Request) {
	q, err := c.parseOrganizationQuery(r.URL.Query())
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	caller := c.optionalCaller(r)
	key := cache.Key(cache.PrefixOrganization, r.URL.Path, r.URL.RawQuery, callerKey(caller))

	c.cachedResponse(w, key, func() (any, error) {
		return c.service.GetOrganizations(r.Context(), caller, q)
	})
}

// GET /api/organizations/{organizationId}
func (c *Controller) GetOrganization(w http.ResponseWriter, r *http.Request) {
	id, ok := c.pathUUID(w, r, "organizationId")
	if !ok {
		return
	}

	key := cache.Key(cache.PrefixOrganization, r.URL.Path, "", "")
	c.cachedResponse(w, key, func() (any, error) {
		return c.service.GetOrganization(r.Context(), id)
	})
}

// POST /api/organizations
func (c *Controller) NewOrganization(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.requireCaller(w, r)
	if !ok {
		return
	}

	data, err := c.readBody(r.Body)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not read request body")
		return
	}

	req, err := ParseOrganizationReq(data)
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	org, err := c.service.SubmitOrganization(r.Context(), caller, req.ToModel())
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, org)
}

// PUT /api/organizations/{organizationId}
func (c *Controller) UpdateOrganization(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := c.pathUUID(w, r, "organizationId")
	if !ok {
		return
	}

	data, err := c.readBody(r.Body)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not read request body")
		return
	}

	req, err := ParseOrganizationReq(data)
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	org, err := c.service.UpdateOrganization(r.Context(), caller, id, req.ToModel())
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, org)
}

// DELETE /api/organizations/{organizationId}
func (c *Controller) DeleteOrganization(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := c.pathUUID(w, r, "organizationId")
	if !ok {
		return
	}

	err := c.service.DeleteOrganization(r.Context(), caller, id)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// POST /api/organizations/{organizationId}/contacts
func (c *Controller) NewOrganizationContact(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := c.pathUUID(w, r, "organizationId")
	if !ok {
		return
	}

	data, err := c.readBody(r.Body)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not read request body")
		return
	}

	req, err := ParseContactReq(data)
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	contact, err := c.service.AddOrganizationContact(r.Context(), caller, id, models.OrganizationContact{
		Name:  req.Name,
		Phone: req.Phone,
	})
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, contact)
}

// DELETE /api/organizations/{organizationId}/contacts/{contactId}
func (c *Controller) DeleteOrganizationContact(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := c.pathUUID(w, r, "organizationId")
	if !ok {
		return
	}
	contactId, ok := c.pathUUID(w, r, "contactId")
	if !ok {
		return
	}

	err := c.service.DeleteOrganizationContact(r.Context(), caller, id, contactId)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// POST /api/organizations/{organizationId}/demands
func (c *Controller) NewOrganizationDemand(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := c.pathUUID(w, r, "organizationId")
	if !ok {
		return
	}

	data, err := c.readBody(r.Body)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not read request body")
		return
	}

	req, err := ParseDemandReq(data)
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	demand, err := c.service.AddOrganizationDemand(r.Context(), caller, id, req.ToModel())
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, demand)
}

// DELETE /api/organizations/{organizationId}/demands/{demandId}
func (c *Controller) DeleteOrganizationDemand(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := c.pathUUID(w, r, "organizationId")
	if !ok {
		return
	}
	demandId, ok := c.pathUUID(w, r, "demandId")
	if !ok {
		return
	}

	err := c.service.DeleteOrganizationDemand(r.Context(), caller, id, demandId)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
