package controllers

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

const metricsPath = "/metrics"

// MetricsController exposes the prometheus scrape endpoint
type MetricsController struct {
	handler http.Handler
}

// NewMetricsController Factory for new MetricsController
func NewMetricsController(handler http.Handler) *MetricsController {
	return &MetricsController{handler: handler}
}

// GetPath returns the endpoint path
func (cont *MetricsController) GetPath() string {
	return metricsPath
}

// FormatAsRelativeLink Format as relative URL of this resource based on the params
func (cont *MetricsController) FormatAsRelativeLink(params ...httprouter.Param) string {
	return metricsPath
}

// Get is the GET /metrics endpoint controller
func (cont *MetricsController) Get(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	cont.handler.ServeHTTP(w, r)
}
