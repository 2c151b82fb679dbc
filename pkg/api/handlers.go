package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sitewright/cloudcode/pkg/acl"
	"github.com/sitewright/cloudcode/pkg/billing"
	"github.com/sitewright/cloudcode/pkg/hooks"
	"github.com/sitewright/cloudcode/pkg/observability"
	"github.com/sitewright/cloudcode/pkg/store"
	"github.com/sitewright/cloudcode/pkg/tenant"
)

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	class, trigger := vars["class"], vars["trigger"]

	var env triggerEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	obj, err := decodeObject(class, env.Object)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := hooks.Request{ActorID: env.actorID(), Master: env.Master}
	ctx := r.Context()
	if req.ActorID != "" {
		ctx = observability.WithActorID(ctx, req.ActorID)
	}

	switch {
	case class == tenant.ClassCollaboration && trigger == "beforeSave":
		err = s.hooks.CollaborationBeforeSave(ctx, req, tenant.Collaboration{Object: obj})
	case class == tenant.ClassCollaboration && trigger == "beforeDelete":
		err = s.hooks.CollaborationBeforeDelete(ctx, req, tenant.Collaboration{Object: obj})
	case class == tenant.ClassUser && trigger == "beforeSave":
		err = s.hooks.UserBeforeSave(ctx, tenant.User{Object: obj})
	case class == tenant.ClassUser && trigger == "afterSave":
		err = s.hooks.UserAfterSave(ctx, tenant.User{Object: obj})
	case class == tenant.ClassSite && trigger == "beforeSave":
		err = s.hooks.SiteBeforeSave(ctx, req, tenant.Site{Object: obj})
	case class == tenant.ClassSite && trigger == "beforeDelete":
		err = s.hooks.SiteBeforeDelete(ctx, req, tenant.Site{Object: obj})
	case class == tenant.ClassModel && trigger == "beforeSave":
		err = s.hooks.ModelBeforeSave(ctx, req, tenant.Model{Object: obj})
	case class == tenant.ClassModel && trigger == "beforeDelete":
		err = s.hooks.ModelBeforeDelete(ctx, req, tenant.Model{Object: obj})
	case class == tenant.ClassModelField && trigger == "beforeSave":
		err = s.hooks.ModelFieldBeforeSave(ctx, req, tenant.ModelField{Object: obj})
	case class == tenant.ClassMediaItem && trigger == "beforeSave":
		err = s.hooks.MediaItemBeforeSave(ctx, req, tenant.MediaItem{Object: obj})
	default:
		writeError(w, http.StatusNotFound, "unknown hook")
		return
	}

	if err != nil {
		writeHookError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"object":  encodeObject(obj),
	})
}

func (s *Server) deleteContentItem(w http.ResponseWriter, r *http.Request) {
	var env functionEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req := hooks.Request{ActorID: env.actorID(), Master: env.Master}
	ctx := r.Context()
	if req.ActorID != "" {
		ctx = observability.WithActorID(ctx, req.ActorID)
	}

	err := s.hooks.DeleteContentItem(ctx, req, env.stringParam("tableName"), env.stringParam("itemId"))
	if err != nil {
		writeHookError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result": "Successfully deleted content item.",
	})
}

func (s *Server) getSiteNameID(w http.ResponseWriter, r *http.Request) {
	var env functionEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	nameID, err := s.hooks.SiteNameID(r.Context(), env.stringParam("siteId"))
	if err != nil {
		writeHookError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result": map[string]any{"siteNameId": nameID},
	})
}

// writeHookError maps service failures onto HTTP statuses.
func writeHookError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, acl.ErrAccessDenied):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, hooks.ErrNotSignedIn):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, hooks.ErrMissingParams):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case billing.IsQuotaExceeded(err):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"code":  status,
		"error": message,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
