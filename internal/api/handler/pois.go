package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/albapepper/arrival/internal/api/respond"
	"github.com/albapepper/arrival/internal/arrival"
	"github.com/albapepper/arrival/internal/cache"
)

const poiResponseTTL = 5 * time.Minute

// GetPOIs lists every restaurant and valet location the engine watches.
// @Summary List points of interest
// @Description Returns restaurants and valet locations. Supports If-None-Match.
// @Tags pois
// @Produce json
// @Success 200 {array} arrival.POI
// @Success 304
// @Failure 503 {object} respond.ErrorResponse
// @Router /api/v1/pois [get]
func (h *Handler) GetPOIs(w http.ResponseWriter, r *http.Request) {
	pois, err := h.pois.AllPointsOfInterest(r.Context())
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusServiceUnavailable, "POI_UNAVAILABLE", "Could not load points of interest", err.Error())
		return
	}

	if pois == nil {
		pois = []arrival.POI{}
	}

	data, err := json.Marshal(pois)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "Could not encode points of interest")
		return
	}

	etag := cache.ComputeETag(data)
	if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
		respond.WriteNotModified(w, etag)
		return
	}
	respond.WriteJSON(w, data, etag, poiResponseTTL)
}
