package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/arklim/realm-auth-service/internal/core/domain"
	"github.com/arklim/realm-auth-service/internal/core/port"
	appLogger "github.com/arklim/realm-auth-service/internal/infra/logger"
)

const (
	screeningComponent = "http.screening"
	suspiciousKey      = "suspicious_client"
)

var errSuspiciousClient = errors.New("request from suspicious address")

// SecurityHeaders sets the response headers every route carries.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Next()
	}
}

// ScreenSuspiciousIPs flags requests whose client address is in the suspicious
// IP filter. Flagged requests are reported and counted but still served.
func ScreenSuspiciousIPs(ips port.MembershipFilter, reporter port.ErrorReporter, flagged prometheus.Counter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ips != nil && ip != "" && ips.Contains(ip) {
			c.Set(suspiciousKey, true)
			if flagged != nil {
				flagged.Inc()
			}
			if reporter != nil {
				reporter.Report(c.Request.Context(), domain.SeverityHigh, screeningComponent, errSuspiciousClient,
					zap.String("client_ip", appLogger.MaskIP(ip)),
					zap.String("path", c.Request.URL.Path),
				)
			}
		}
		c.Next()
	}
}

// IsSuspicious reports whether ScreenSuspiciousIPs flagged the request.
func IsSuspicious(c *gin.Context) bool {
	return c.GetBool(suspiciousKey)
}
