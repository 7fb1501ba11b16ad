package utils

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
)

func requestScheme(c *gin.Context) string {
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		return "https"
	}
	return "http"
}

// GetBaseURL returns the configured base URL, or detects it from the request.
func GetBaseURL(c *gin.Context, configBaseURL string) string {
	if configBaseURL != "" {
		return strings.TrimRight(configBaseURL, "/")
	}
	return fmt.Sprintf("%s://%s", requestScheme(c), c.Request.Host)
}

// UrlFor builds an absolute URL for path.
func UrlFor(c *gin.Context, configBaseURL string, path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return GetBaseURL(c, configBaseURL) + path
}
