package router

import (
	"net/http"

	"medrelief/internal/controller"
)

func NewRouter(c *controller.Controller) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/ping", c.Ping)

	mux.HandleFunc("GET /api/organizations", c.GetOrganizations)
	mux.HandleFunc("POST /api/organizations", c.NewOrganization)
	mux.HandleFunc("GET /api/organizations/{organizationId}", c.GetOrganization)
	mux.HandleFunc("PUT /api/organizations/{organizationId}", c.UpdateOrganization)
	mux.HandleFunc("DELETE /api/organizations/{organizationId}", c.DeleteOrganization)
	mux.HandleFunc("POST /api/organizations/{organizationId}/contacts", c.NewOrganizationContact)
	mux.HandleFunc("DELETE /api/organizations/{organizationId}/contacts/{contactId}", c.DeleteOrganizationContact)
	mux.HandleFunc("POST /api/organizations/{organizationId}/demands", c.NewOrganizationDemand)
	mux.HandleFunc("DELETE /api/organizations/{organizationId}/demands/{demandId}", c.DeleteOrganizationDemand)

	mux.HandleFunc("GET /api/teams", c.GetTeams)
	mux.HandleFunc("POST /api/teams", c.NewTeam)
	mux.HandleFunc("GET /api/teams/{teamId}", c.GetTeam)
	mux.HandleFunc("PUT /api/teams/{teamId}", c.UpdateTeam)
	mux.HandleFunc("DELETE /api/teams/{teamId}", c.DeleteTeam)
	mux.HandleFunc("POST /api/teams/{teamId}/contacts", c.NewTeamContact)
	mux.HandleFunc("DELETE /api/teams/{teamId}/contacts/{contactId}", c.DeleteTeamContact)

	mux.HandleFunc("POST /api/admin/organizations/import", c.ImportOrganizations)
	mux.HandleFunc("PUT /api/admin/organizations/{organizationId}/verify", c.VerifyOrganization)
	mux.HandleFunc("PUT /api/admin/teams/{teamId}/verify", c.VerifyTeam)
	mux.HandleFunc("GET /api/users", c.GetUsers)
	mux.HandleFunc("POST /api/users", c.NewUser)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("page not found"))
	})

	cors := http.NewServeMux()
	cors.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+controller.HeaderUserId+", "+controller.HeaderAdminToken)
		w.Header().Set("Accept", "*/*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
		} else {
			mux.ServeHTTP(w, r)
		}
	})

	return cors
}
