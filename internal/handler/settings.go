package handler

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"lifesync/internal/service"
)

type SettingsHandler struct {
	Settings *service.SystemSettingsService
}

type putSwitchRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type switchView struct {
	Name    string `json:"name"`
	Key     string `json:"key"`
	Enabled bool   `json:"enabled"`
}

func (h *SettingsHandler) Register(r *gin.Engine) {
	g := r.Group("/api/settings")
	g.GET("/switches", h.listSwitches)
	g.PUT("/switches/:service", h.putSwitch)
}

// @Summary List feature switches
// @Tags settings
// @Produce json
// @Success 200 {array} switchView
// @Router /api/settings/switches [get]
func (h *SettingsHandler) listSwitches(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings service unavailable", nil)
		return
	}
	items, err := h.Settings.Switches(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	out := make([]switchView, 0, len(items))
	for key, enabled := range items {
		out = append(out, switchView{Name: switchName(key), Key: key, Enabled: enabled})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	Ok(c, out, nil)
}

// @Summary Enable or disable scheduled sync
// @Description "scheduler" toggles the whole scheduler; any other name toggles one service.
// @Tags settings
// @Accept json
// @Produce json
// @Param service path string true "service id or scheduler"
// @Param body body putSwitchRequest true "switch"
// @Success 200 {object} switchView
// @Router /api/settings/switches/{service} [put]
func (h *SettingsHandler) putSwitch(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings service unavailable", nil)
		return
	}
	name := strings.TrimSpace(c.Param("service"))
	if name == "" {
		Error(c, http.StatusBadRequest, "invalid switch name", nil)
		return
	}
	var req putSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	key := switchKey(name)
	if err := h.Settings.SetEnabled(c.Request.Context(), key, *req.Enabled); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, switchView{Name: name, Key: key, Enabled: *req.Enabled}, nil)
}

func switchKey(name string) string {
	if name == "scheduler" {
		return service.FeatureScheduler
	}
	return service.FeatureSync(name)
}

func switchName(key string) string {
	if key == service.FeatureScheduler {
		return "scheduler"
	}
	return strings.TrimPrefix(key, service.FeatureSyncPrefix)
}
