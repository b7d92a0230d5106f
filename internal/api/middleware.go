// Package api implements the ThinkBlock REST API using chi.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// CORSMiddleware allows the given browser origins to call the API with
// credentials. An empty list disables cross-origin access.
func CORSMiddleware(origins []string) func(http.Handler) http.Handler {
	// cors treats an empty allow-list as "allow all".
	if len(origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

// notFound answers unmatched /api paths with JSON instead of the SPA.
func notFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, errorBody("API endpoint not found", http.StatusText(http.StatusNotFound)))
}

// Recoverer answers a handler panic with the JSON 500 body every other error
// uses and logs the stack. The panic value reaches the client only in
// development mode.
func Recoverer(development bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				slog.Error("panic recovered",
					slog.String("path", r.URL.Path),
					slog.String("request_id", middleware.GetReqID(r.Context())),
					slog.String("panic", fmt.Sprint(rec)),
					slog.String("stack", string(debug.Stack())))

				msg := http.StatusText(http.StatusInternalServerError)
				if development {
					msg = fmt.Sprint(rec)
				}
				writeJSON(w, http.StatusInternalServerError, errorBody("internal server error", msg))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
