package app

import (
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"logi-track/internal/routes"
	"logi-track/internal/utils"
)

func securityHeaders(c *gin.Context) {
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("X-Frame-Options", "DENY")
	c.Header("Referrer-Policy", "same-origin")

	// Disable caching
	c.Header("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.Next()
}

// Middleware to check if the IP is allowed.
func IPAccessControl(allowedCIDRs []string) gin.HandlerFunc {
	var parsedCIDRs []*net.IPNet

	// Allow local networks in debug mode
	if os.Getenv("GIN_MODE") != "release" {
		allowedCIDRs = append(allowedCIDRs, "127.0.0.1/8", "::1/128")
	}

	for _, cidr := range allowedCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			slog.Warn("Invalid CIDR", "cidr", cidr)
			continue
		}
		slog.Debug("Allowed CIDR", "cidr", cidr)
		parsedCIDRs = append(parsedCIDRs, network)
	}

	return func(c *gin.Context) {
		clientIP := net.ParseIP(c.ClientIP())
		if clientIP == nil {
			// Should not happen
			slog.Warn("Invalid client IP", "ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}

		for _, cidr := range parsedCIDRs {
			if cidr.Contains(clientIP) {
				c.Next()
				return
			}
		}
		slog.Warn("IP not allowed", "ip", clientIP)
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
	}
}

// requestLogger logs one line per request through slog.
func requestLogger(c *gin.Context) {
	c.Next()
	slog.Debug("Request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"ip", c.ClientIP(),
	)
}

// HTTPServer assembles the API router around env.
func HTTPServer(env *routes.Env) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger)

	if env.Config.AllowedNetworks != "" {
		slog.Debug("Enabling IP access control", "allowed_networks", env.Config.AllowedNetworks)
		var allowedCIDRs []string

		for cidr := range strings.SplitSeq(env.Config.AllowedNetworks, ",") {
			// Remove spaces and ignore empty sets
			if cidr := strings.TrimSpace(cidr); cidr != "" {
				allowedCIDRs = append(allowedCIDRs, cidr)
			}
		}

		r.Use(IPAccessControl(allowedCIDRs))
	}
	r.Use(securityHeaders)

	r.GET("/config.json", func(c *gin.Context) {
		// Settings the web client needs before sign-in
		c.JSON(http.StatusOK, gin.H{
			"UserAuthTTL":  env.Config.UserAuthTTL,
			"MagicLinkTTL": env.Config.MagicLinkTTL,
			"SupportURL":   env.Config.SupportURL,
			"BaseURL":      utils.GetBaseURL(c, env.Config.BaseURL),
		})
	})

	routes.RegisterRoutes(r, env)

	return r
}
