package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	router := mux.NewRouter()
	router.Use(handler.logRequests)

	// Health check
	router.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	// API v1 routes, all scoped to the caller in X-User-ID
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(requireUser)

	// Portfolios
	api.HandleFunc("/portfolios", handler.ListPortfolios).Methods("GET")
	api.HandleFunc("/portfolios", handler.CreatePortfolio).Methods("POST")
	api.HandleFunc("/portfolios/{portfolioID}/positions", handler.ListPositions).Methods("GET")
	api.HandleFunc("/portfolios/{portfolioID}/positions", handler.RecordPurchase).Methods("POST")

	// Positions
	api.HandleFunc("/positions/{id}", handler.GetPosition).Methods("GET")
	api.HandleFunc("/positions/{id}", handler.EditPosition).Methods("PATCH")
	api.HandleFunc("/positions/{id}", handler.DeletePosition).Methods("DELETE")
	api.HandleFunc("/positions/{id}/sell", handler.RecordSale).Methods("POST")
	api.HandleFunc("/positions/{id}/price", handler.SetCurrentPrice).Methods("PUT")
	api.HandleFunc("/positions/{id}/transactions", handler.ListTransactions).Methods("GET")
	api.HandleFunc("/positions/{id}/reconcile", handler.Reconcile).Methods("POST")

	// Ledger administration
	api.HandleFunc("/transactions/{id}", handler.DeleteTransaction).Methods("DELETE")

	return router
}
