package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"pbx-admin/internal/fsxml"
	"pbx-admin/internal/metrics"
	"pbx-admin/internal/store"
)

// mod_xml_curl sends lookups as POST form fields; GET query parameters are
// accepted as well.

func DirectoryHandler(src fsxml.Source) http.HandlerFunc {
	svc := &fsxml.DirectoryService{Source: src}

	return func(w http.ResponseWriter, r *http.Request) {
		user := r.FormValue("user")
		domain := r.FormValue("domain")

		if user == "" || domain == "" {
			metrics.XMLCurlRequests.WithLabelValues("directory", "bad_request").Inc()
			http.Error(w, "missing user or domain", http.StatusBadRequest)
			return
		}

		doc, err := svc.BuildDirectory(r.Context(), user, domain)
		writeXMLDocument(w, "directory", doc, err)
	}
}

func DialplanHandler(src fsxml.Source) http.HandlerFunc {
	svc := &fsxml.DialplanService{Source: src}

	return func(w http.ResponseWriter, r *http.Request) {
		contextName := r.FormValue("context")
		if contextName == "" {
			contextName = r.FormValue("Caller-Context")
		}
		if contextName == "" {
			metrics.XMLCurlRequests.WithLabelValues("dialplan", "bad_request").Inc()
			http.Error(w, "missing context", http.StatusBadRequest)
			return
		}

		doc, err := svc.BuildDialplan(r.Context(), contextName)
		writeXMLDocument(w, "dialplan", doc, err)
	}
}

func writeXMLDocument(w http.ResponseWriter, section string, doc *fsxml.Document, err error) {
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, fsxml.ErrNotFound) {
			metrics.XMLCurlRequests.WithLabelValues(section, "not_found").Inc()
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		metrics.XMLCurlRequests.WithLabelValues(section, "error").Inc()
		slog.Error("xml_curl lookup failed", "section", section, "error", err)
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}

	body, err := fsxml.MarshalDocument(doc)
	if err != nil {
		metrics.XMLCurlRequests.WithLabelValues(section, "error").Inc()
		slog.Error("xml_curl encode failed", "section", section, "error", err)
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}

	metrics.XMLCurlRequests.WithLabelValues(section, "ok").Inc()
	slog.Debug("xml_curl document served", "section", section, "document", doc.DebugString(), "bytes", len(body))
	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write(body)
}
