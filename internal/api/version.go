package api

import (
	"net/http"

	"github.com/shaharia-lab/bookwell/internal/build"
)

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, build.Current())
}
