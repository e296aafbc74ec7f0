package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pbx-admin/internal/models"
	"pbx-admin/internal/tenant"
)

type recordResponse struct {
	Record     any                 `json:"record,omitempty"`
	Deleted    bool                `json:"deleted,omitempty"`
	FreeSWITCH *tenant.SyncOutcome `json:"freeswitch"`
}

// childRoutes serves one routing entity kind nested under a tenant.
type childRoutes[T any] struct {
	list   func(ctx context.Context, tenantID string) ([]T, error)
	save   func(ctx context.Context, tenantID string, rec *T) (*tenant.SyncOutcome, error)
	del    func(ctx context.Context, tenantID, id string) (*tenant.SyncOutcome, error)
	setID  func(rec *T, id string)
	redact func(rec *T)
}

func (c childRoutes[T]) mount(r chi.Router, path string) {
	r.Get(path, c.handleList)
	r.Post(path, c.handleSave(false))
	r.Put(path+"/{childID}", c.handleSave(true))
	r.Delete(path+"/{childID}", c.handleDelete)
}

func (c childRoutes[T]) handleList(w http.ResponseWriter, r *http.Request) {
	recs, err := c.list(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if c.redact != nil {
		for i := range recs {
			c.redact(&recs[i])
		}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (c childRoutes[T]) handleSave(update bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rec T
		if err := decodeJSON(w, r, &rec); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if update {
			c.setID(&rec, chi.URLParam(r, "childID"))
		} else {
			c.setID(&rec, "")
		}

		out, err := c.save(r.Context(), chi.URLParam(r, "id"), &rec)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if c.redact != nil {
			c.redact(&rec)
		}

		status := http.StatusOK
		if !update {
			status = http.StatusCreated
		}
		writeJSON(w, status, recordResponse{Record: &rec, FreeSWITCH: out})
	}
}

func (c childRoutes[T]) handleDelete(w http.ResponseWriter, r *http.Request) {
	out, err := c.del(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "childID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recordResponse{Deleted: true, FreeSWITCH: out})
}

func mountChildRoutes(r chi.Router, ctl *tenant.Controller) {
	childRoutes[models.Extension]{
		list:  ctl.ListExtensions,
		save:  ctl.SaveExtension,
		del:   ctl.DeleteExtension,
		setID: func(e *models.Extension, id string) { e.ID = id },
		// SIP credentials are write-only.
		redact: func(e *models.Extension) {
			e.Secret = ""
			e.VoicemailPIN = ""
		},
	}.mount(r, "/extensions")

	childRoutes[models.RingGroup]{
		list:  ctl.ListRingGroups,
		save:  ctl.SaveRingGroup,
		del:   ctl.DeleteRingGroup,
		setID: func(g *models.RingGroup, id string) { g.ID = id },
	}.mount(r, "/ring-groups")

	childRoutes[models.InboundRoute]{
		list:  ctl.ListInboundRoutes,
		save:  ctl.SaveInboundRoute,
		del:   ctl.DeleteInboundRoute,
		setID: func(ir *models.InboundRoute, id string) { ir.ID = id },
	}.mount(r, "/inbound-routes")

	childRoutes[models.OutboundRoute]{
		list:  ctl.ListOutboundRoutes,
		save:  ctl.SaveOutboundRoute,
		del:   ctl.DeleteOutboundRoute,
		setID: func(or *models.OutboundRoute, id string) { or.ID = id },
	}.mount(r, "/outbound-routes")
}
