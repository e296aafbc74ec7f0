package httpapi

import (
	"net/http"
)

// Version is overridden at build time with -ldflags "-X pbx-admin/internal/httpapi.Version=...".
var Version = "dev"

type versionInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func VersionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, versionInfo{Name: "pbx-admin", Version: Version})
	}
}
