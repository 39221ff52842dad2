package server

import "net/http"

// OriginChecker validates the Origin header on websocket upgrades. An empty
// allow list accepts every origin, matching the portal's single-host
// deployment where the dashboard is served from the same address.
type OriginChecker struct {
	allowedOrigins map[string]struct{}
}

func NewOriginChecker(allowedOrigins []string) *OriginChecker {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origins[origin] = struct{}{}
	}

	return &OriginChecker{
		allowedOrigins: origins,
	}
}

func (c *OriginChecker) Check(r *http.Request) bool {
	if len(c.allowedOrigins) == 0 {
		return true
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	_, ok := c.allowedOrigins[origin]

	return ok
}
