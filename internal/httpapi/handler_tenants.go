package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pbx-admin/internal/models"
	"pbx-admin/internal/tenant"
)

type deleteResponse struct {
	Deleted    bool                `json:"deleted"`
	FreeSWITCH *tenant.SyncOutcome `json:"freeswitch,omitempty"`
}

type syncResponse struct {
	TenantID   string              `json:"tenant_id"`
	FreeSWITCH *tenant.SyncOutcome `json:"freeswitch"`
}

func ListTenantsHandler(ctl *tenant.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ts, err := ctl.List(r.Context())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ts)
	}
}

func GetTenantHandler(ctl *tenant.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := ctl.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

// CreateTenantHandler persists the tenant and reports the FreeSWITCH sync
// under data.freeswitch. Sync problems never change the 201.
func CreateTenantHandler(ctl *tenant.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in models.Tenant
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		out, err := ctl.Create(r.Context(), &in)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	}
}

func UpdateTenantHandler(ctl *tenant.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in models.Tenant
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		out, err := ctl.Update(r.Context(), chi.URLParam(r, "id"), &in)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func DeleteTenantHandler(ctl *tenant.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := ctl.Delete(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, deleteResponse{Deleted: true, FreeSWITCH: out})
	}
}

// SyncTenantHandler re-runs the FreeSWITCH sync for one tenant.
func SyncTenantHandler(ctl *tenant.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		out, err := ctl.Resync(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, syncResponse{TenantID: id, FreeSWITCH: out})
	}
}

func DiagnoseTenantHandler(ctl *tenant.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := ctl.Diagnose(r.Context(), chi.URLParam(r, "tenantId"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}
