package httpx

import (
	"context"
	"crypto/subtle"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ariefcatur/go-storefront-checkout/internal/apperr"
	"github.com/ariefcatur/go-storefront-checkout/internal/catalog"
	"github.com/go-chi/chi/v5"
)

type CatalogIndexer interface {
	Apply(ctx context.Context, ev catalog.Event) (string, error)
	ReindexAll(ctx context.Context) (catalog.BulkResult, error)
}

type CatalogHandler struct {
	Indexer    CatalogIndexer
	Secret     string // content-store webhook secret
	AdminToken string // guards bulk reindex; empty disables it
	Log        *slog.Logger
}

func (h *CatalogHandler) Register(r chi.Router) {
	r.Post("/api/catalog/webhook", h.webhook)
	r.Post("/api/catalog/reindex", h.reindex)
}

func (h *CatalogHandler) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}
	if err := catalog.VerifySignature(r.Header.Get(catalog.SignatureHeader), body, h.Secret); err != nil {
		h.Log.Warn("catalog webhook rejected", "reason", apperr.Message(err))
		writeError(w, err)
		return
	}
	ev, err := catalog.ParseEvent(body)
	if err != nil {
		writeError(w, err)
		return
	}
	msg, err := h.Indexer.Apply(r.Context(), ev)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Error indexing objects"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (h *CatalogHandler) reindex(w http.ResponseWriter, r *http.Request) {
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if h.AdminToken == "" || !ok || subtle.ConstantTimeCompare([]byte(got), []byte(h.AdminToken)) != 1 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}
	res, err := h.Indexer.ReindexAll(r.Context())
	if err != nil {
		h.Log.Error("bulk reindex failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Error indexing objects"})
		return
	}
	writeJSON(w, http.StatusOK, res)
}
