package controller

import (
	"net/http"
	"net/url"

	"medrelief/internal/cache"
	"medrelief/internal/models"
)

func (c *Controller) parseTeamQuery(query url.Values) (models.TeamQuery, error) {
	var q models.TeamQuery
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

	q.Name = query.Get("name")
	q.Address = query.Get("address")
	q.FuzzyName = query.Get("fuzzy_name")
	q.FuzzyAddress = query.Get("fuzzy_address")
	return q, nil
}

// GET /api/teams
func (c *Controller) GetTeams(w http.ResponseWriter, r *http.Request) {
	q, err := c.parseTeamQuery(r.URL.Query())
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	caller := c.optionalCaller(r)
	key := cache.Key(cache.PrefixTeam, r.URL.Path, r.URL.RawQuery, callerKey(caller))

	c.cachedResponse(w, key, func() (any, error) {
		return c.service.GetTeams(r.Context(), caller, q)
	})
}

// GET /api/teams/{teamId}
func (c *Controller) GetTeam(w http.ResponseWriter, r *http.Request) {
	id, ok := c.pathUUID(w, r, "teamId")
	if !ok {
		return
	}

	key := cache.Key(cache.PrefixTeam, r.URL.Path, "", "")
	c.cachedResponse(w, key, func() (any, error) {
		return c.service.GetTeam(r.Context(), id)
	})
}

// POST /api/teams
func (c *Controller) NewTeam(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.requireCaller(w, r)
	if !ok {
		return
	}

	data, err := c.readBody(r.Body)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not read request body")
		return
	}

	req, err := ParseTeamReq(data)
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	team, err := c.service.SubmitTeam(r.Context(), caller, req.ToModel())
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, team)
}

// PUT /api/teams/{teamId}
func (c *Controller) UpdateTeam(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := c.pathUUID(w, r, "teamId")
	if !ok {
		return
	}

	data, err := c.readBody(r.Body)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not read request body")
		return
	}

	req, err := ParseTeamReq(data)
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	team, err := c.service.UpdateTeam(r.Context(), caller, id, req.ToModel())
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, team)
}

// DELETE /api/teams/{teamId}
func (c *Controller) DeleteTeam(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := c.pathUUID(w, r, "teamId")
	if !ok {
		return
	}

	err := c.service.DeleteTeam(r.Context(), caller, id)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// POST /api/teams/{teamId}/contacts
func (c *Controller) NewTeamContact(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := c.pathUUID(w, r, "teamId")
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

	contact, err := c.service.AddTeamContact(r.Context(), caller, id, models.TeamContact{
		Name:  req.Name,
		Phone: req.Phone,
	})
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, contact)
}

// DELETE /api/teams/{teamId}/contacts/{contactId}
func (c *Controller) DeleteTeamContact(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := c.pathUUID(w, r, "teamId")
	if !ok {
		return
	}
	contactId, ok := c.pathUUID(w, r, "contactId")
	if !ok {
		return
	}

	err := c.service.DeleteTeamContact(r.Context(), caller, id, contactId)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
