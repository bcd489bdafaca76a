package api

import (
	"net/http"

	"github.com/erazemk/najdeno/internal/catalog"
)

// NewRouter creates the API router with all endpoints registered.
func NewRouter(svc *catalog.Service, tokenSecret string) http.Handler {
	mux := http.NewServeMux()

	items := &ItemsHandler{Service: svc}

	mux.HandleFunc("GET /api/items", items.List)
	mux.HandleFunc("POST /api/items", items.Create)
	mux.HandleFunc("GET /api/items/{id}", items.Get)
	mux.HandleFunc("GET /api/items/{id}/image", items.GetImage)
	mux.HandleFunc("POST /api/items/{id}/claim", items.Claim)
	mux.HandleFunc("GET /api/categories", items.Categories)

	return AuthMiddleware(tokenSecret)(mux)
}
