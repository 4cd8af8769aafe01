package bomhttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/daesung-metal/erp/internal/platform/httpx"
)

// MountRoutes registers the BOM endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/explode", h.handleExplode)
	r.Get("/explosion/{parent_item_id}", h.handleExplosion)
	r.Get("/integrity", h.handleLatestScan)

	r.Group(func(gr chi.Router) {
		if h.limits.RatePerMinute > 0 {
			gr.Use(httprate.Limit(h.limits.RatePerMinute, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					httpx.Failure(w, http.StatusTooManyRequests, "요청이 너무 많습니다. 잠시 후 다시 시도하세요", "")
				}),
			))
		}
		gr.Post("/explode", h.handleBatch)
		gr.Post("/integrity/scan", h.handleTriggerScan)
	})
}
