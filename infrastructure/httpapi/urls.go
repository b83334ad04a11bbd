package httpapi

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"dubbing-service/domain/artifact"
)

var routeForBucket = map[artifact.Bucket]string{
	artifact.BucketAudio:  "/audio/",
	artifact.BucketMerged: "/merged/",
}

// baseURL is the configured public URL, or the scheme and host the client used
func (s *Server) baseURL(c *gin.Context) string {
	if s.cfg.PublicURL != "" {
		return strings.TrimRight(s.cfg.PublicURL, "/")
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if p := c.GetHeader("X-Forwarded-Proto"); p == "http" || p == "https" {
		scheme = p
	}
	return scheme + "://" + c.Request.Host
}

// artifactURL returns the absolute URL a served artifact can be fetched from
func (s *Server) artifactURL(c *gin.Context, ref artifact.Ref) string {
	route, ok := routeForBucket[ref.Bucket]
	if !ok {
		return ""
	}
	return s.baseURL(c) + route + ref.Name
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<30 && n%(1<<30) == 0:
		return fmt.Sprintf("%d GB", n>>30)
	case n >= 1<<20:
		return fmt.Sprintf("%d MB", n>>20)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}
