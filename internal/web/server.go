// Package web exposes the delivery-status webhook and operational endpoints.
package web

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vendaslab/prospect-cli/internal/model"
	"github.com/vendaslab/prospect-cli/internal/store"
)

// NewRouter builds the HTTP surface: health, prometheus metrics, and the
// delivery webhook the WhatsApp gateway posts status updates to.
func NewRouter(st store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Use(Metrics)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/webhook/delivery", handleDelivery(st))

	return r
}

type deliveryPayload struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

// handleDelivery applies an asynchronous delivery-status callback. Unknown
// message ids and backward transitions are acknowledged without effect.
func handleDelivery(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p deliveryPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if p.MessageID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "messageId is required"})
			return
		}

		status, ok := parseDeliveryStatus(p.Status)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown status " + p.Status})
			return
		}

		applied, err := st.AdvanceDeliveryStatus(r.Context(), p.MessageID, status)
		if err != nil {
			zap.L().Error("delivery callback",
				zap.String("message_id", p.MessageID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "store failure"})
			return
		}
		recordDeliveryCallback(string(status), applied)

		writeJSON(w, http.StatusOK, map[string]any{"applied": applied})
	}
}

func parseDeliveryStatus(s string) (model.SendStatus, bool) {
	switch strings.ToLower(s) {
	case "sent":
		return model.SendStatusSent, true
	case "delivered":
		return model.SendStatusDelivered, true
	case "read":
		return model.SendStatusRead, true
	}
	return "", false
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body) //nolint:errcheck
}
