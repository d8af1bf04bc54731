package routers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/quantumVector/app-mtla-me/handlers"
)

// RegisterRoutes sets up all the HTTP routes of the resolution API
func RegisterRoutes(r *mux.Router, h *handlers.Handler, metrics http.Handler) {

	// Registry members including synthetic delegation targets
	r.HandleFunc("/members", h.GetMembers).Methods("GET")

	// Delegation forest for ?field=council|assembly
	r.HandleFunc("/tree", h.GetTree).Methods("GET")

	// Council candidates and assembly view
	r.HandleFunc("/council", h.GetCouncil).Methods("GET")
	r.HandleFunc("/assembly", h.GetAssembly).Methods("GET")

	// Signers recorded on the governance account and the changes to apply
	r.HandleFunc("/signers", h.GetSigners).Methods("GET")
	r.HandleFunc("/changes", h.GetChanges).Methods("GET")
	r.HandleFunc("/transaction", h.GetTransaction).Methods("GET")

	r.HandleFunc("/corporate", h.GetCorporate).Methods("GET")
	r.HandleFunc("/resolutions/latest", h.GetLatestResolution).Methods("GET")

	// Forces the next request to refetch source data
	r.HandleFunc("/refresh", h.Refresh).Methods("POST")

	if metrics != nil {
		r.Handle("/metrics", metrics).Methods("GET")
	}
}
