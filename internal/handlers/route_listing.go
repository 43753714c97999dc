package handlers

import (
	"net/http"
	"sort"
	"strings"

	"github.com/mohankp/sales-enablement-training/internal/observability"
	"github.com/mohankp/sales-enablement-training/internal/version"

	"github.com/gin-gonic/gin"
)

// RouteInfo represents information about a single route
type RouteInfo struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

// RouteListingHandler serves the registered routes of a service at its root path
type RouteListingHandler struct {
	serviceName string
	routes      []RouteInfo
}

// NewRouteListingHandler creates a new route listing handler
func NewRouteListingHandler(serviceName string) *RouteListingHandler {
	return &RouteListingHandler{serviceName: serviceName}
}

// CollectRoutes extracts all routes from a Gin engine, sorted by path then method
func (h *RouteListingHandler) CollectRoutes(engine *gin.Engine) {
	h.routes = h.routes[:0]
	for _, route := range engine.Routes() {
		if strings.HasPrefix(route.Path, "/debug/") {
			continue
		}
		h.routes = append(h.routes, RouteInfo{Method: route.Method, Path: route.Path})
	}
	sort.Slice(h.routes, func(i, j int) bool {
		if h.routes[i].Path == h.routes[j].Path {
			return h.routes[i].Method < h.routes[j].Method
		}
		return h.routes[i].Path < h.routes[j].Path
	})
}

// GetRouteListing returns the route listing as JSON
func (h *RouteListingHandler) GetRouteListing(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_route_listing")
	defer observability.FinishSpan(span, nil)

	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.JSON(http.StatusOK, gin.H{
		"service": h.serviceName,
		"version": version.Version,
		"routes":  h.routes,
	})
}
