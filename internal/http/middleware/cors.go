// Package middleware holds the HTTP middleware shared by the intake API.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	defaultCORSMethods = []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions}
	defaultCORSHeaders = []string{"Authorization", "Content-Type", "X-Request-Id"}
)

const defaultCORSMaxAge = 10 * time.Minute

// CORSPolicy describes which browser origins may call the API. An origin of "*"
// admits any Origin; empty method and header lists use the API defaults.
type CORSPolicy struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         time.Duration
}

// Enabled reports whether any origin is listed.
func (p CORSPolicy) Enabled() bool {
	for _, origin := range p.AllowedOrigins {
		if strings.TrimSpace(origin) != "" {
			return true
		}
	}
	return false
}

type corsRules struct {
	anyOrigin bool
	origins   map[string]struct{}
	methods   map[string]struct{}
	// pre-joined response header values
	methodList string
	headerList string
	maxAge     string
}

func compileCORS(p CORSPolicy) corsRules {
	rules := corsRules{origins: map[string]struct{}{}, methods: map[string]struct{}{}}
	for _, origin := range p.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		switch origin {
		case "":
		case "*":
			rules.anyOrigin = true
		default:
			rules.origins[origin] = struct{}{}
		}
	}

	methods := normalizeList(p.AllowedMethods, strings.ToUpper)
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	for _, m := range methods {
		rules.methods[m] = struct{}{}
	}
	headers := normalizeList(p.AllowedHeaders, http.CanonicalHeaderKey)
	if len(headers) == 0 {
		headers = defaultCORSHeaders
	}
	maxAge := p.MaxAge
	if maxAge <= 0 {
		maxAge = defaultCORSMaxAge
	}

	rules.methodList = strings.Join(methods, ", ")
	rules.headerList = strings.Join(headers, ", ")
	rules.maxAge = strconv.Itoa(int(maxAge / time.Second))
	return rules
}

func normalizeList(values []string, canon func(string) string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, canon(v))
		}
	}
	return out
}

func (c corsRules) allowOrigin(origin string) bool {
	if c.anyOrigin {
		return true
	}
	_, ok := c.origins[origin]
	return ok
}

// CORS applies the policy. Preflights from unlisted origins, or asking for a method
// outside the policy, are refused with 403 before reaching the API.
func CORS(policy CORSPolicy) func(http.Handler) http.Handler {
	rules := compileCORS(policy)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			requested := strings.ToUpper(strings.TrimSpace(r.Header.Get("Access-Control-Request-Method")))
			preflight := r.Method == http.MethodOptions && origin != "" && requested != ""

			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Origin")
			if !rules.allowOrigin(origin) {
				if preflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			if !preflight {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := rules.methods[requested]; !ok {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.Header().Set("Access-Control-Allow-Methods", rules.methodList)
			w.Header().Set("Access-Control-Allow-Headers", rules.headerList)
			w.Header().Set("Access-Control-Max-Age", rules.maxAge)
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
