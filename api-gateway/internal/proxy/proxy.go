// Package proxy forwards gateway requests to the backing services.
package proxy

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cldrn/dataverse/shared/middleware"
	"github.com/gin-gonic/gin"
)

// Headers that describe a single connection and are never forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Route sends requests whose path starts with Prefix to Target.
type Route struct {
	Prefix string
	Target string
}

// Proxy picks the backing service by longest matching prefix.
type Proxy struct {
	routes []Route
	client *http.Client
	logger *slog.Logger
}

func New(routes []Route, logger *slog.Logger) *Proxy {
	sorted := make([]Route, 0, len(routes))
	for _, r := range routes {
		r.Target = strings.TrimSuffix(r.Target, "/")
		sorted = append(sorted, r)
	}
	// longest prefix first
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && len(sorted[j].Prefix) > len(sorted[j-1].Prefix); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return &Proxy{
		routes: sorted,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

func (p *Proxy) target(path string) (string, bool) {
	for _, r := range p.routes {
		if path == r.Prefix || strings.HasPrefix(path, r.Prefix+"/") {
			return r.Target, true
		}
	}
	return "", false
}

// Handler forwards the request unchanged, including credentials, and relays
// the response. Authentication is done by the services themselves.
func (p *Proxy) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		serviceURL, ok := p.target(c.Request.URL.Path)
		if !ok {
			middleware.RespondWithError(c, http.StatusNotFound, "Endpoint not found")
			return
		}

		targetURL := serviceURL + c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			targetURL += "?" + c.Request.URL.RawQuery
		}

		var body io.Reader
		if c.Request.Body != nil {
			bodyBytes, err := io.ReadAll(c.Request.Body)
			if err != nil {
				middleware.RespondWithError(c, http.StatusBadRequest, "Failed to read request body")
				return
			}
			body = bytes.NewReader(bodyBytes)
		}

		req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, targetURL, body)
		if err != nil {
			middleware.RespondWithError(c, http.StatusInternalServerError, "Failed to create request")
			return
		}
		req.Header = endToEnd(c.Request.Header)
		req.Header.Set("X-Forwarded-For", c.ClientIP())

		resp, err := p.client.Do(req)
		if err != nil {
			p.logger.Error("proxy request failed", "target", serviceURL, "path", c.Request.URL.Path, "error", err)
			middleware.RespondWithError(c, http.StatusBadGateway, "Service unavailable")
			return
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			middleware.RespondWithError(c, http.StatusBadGateway, "Failed to read response")
			return
		}
		for key, values := range endToEnd(resp.Header) {
			if key == "Content-Length" {
				continue
			}
			for _, value := range values {
				c.Writer.Header().Add(key, value)
			}
		}
		c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), respBody)
	}
}

// endToEnd copies h without hop-by-hop headers, including any named in Connection.
func endToEnd(h http.Header) http.Header {
	out := h.Clone()
	for _, field := range h.Values("Connection") {
		for _, name := range strings.Split(field, ",") {
			if name = strings.TrimSpace(name); name != "" {
				out.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		out.Del(name)
	}
	return out
}
