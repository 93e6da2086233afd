// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package httpapi

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/samber/oops"
	"golang.org/x/time/rate"

	"github.com/natours/natours/pkg/errutil"
)

// RateLimit allows Max requests per client IP in each Window. Tokens
// refill evenly over the window, so a client that used its budget gets
// one request back every Window/Max.
type RateLimit struct {
	Max    int           `koanf:"max"`
	Window time.Duration `koanf:"window"`
}

const msgRateLimited = "Too many requests from this IP, please try again later."

// ipLimiters hands out one token bucket per client IP.
type ipLimiters struct {
	limit rate.Limit
	burst int
	every time.Duration

	mu        sync.RWMutex
	limiters  map[string]*rate.Limiter
	lastPrune time.Time
}

func newIPLimiters(cfg RateLimit) *ipLimiters {
	return &ipLimiters{
		limit:    rate.Every(cfg.Window / time.Duration(cfg.Max)),
		burst:    cfg.Max,
		every:    cfg.Window,
		limiters: make(map[string]*rate.Limiter),
	}
}

// get returns the limiter for ip, creating it on first use.
func (l *ipLimiters) get(ip string) *rate.Limiter {
	l.mu.RLock()
	lim, ok := l.limiters[ip]
	l.mu.RUnlock()
	if ok {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok = l.limiters[ip]; !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[ip] = lim
	}
	return lim
}

// prune drops limiters whose bucket has refilled, at most once a window.
// A full bucket behaves exactly like a new one.
func (l *ipLimiters) prune(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastPrune) < l.every {
		return
	}
	l.lastPrune = now
	for ip, lim := range l.limiters {
		if lim.TokensAt(now) >= float64(l.burst) {
			delete(l.limiters, ip)
		}
	}
}

// limitRate rejects requests from clients that exceeded cfg with 429.
// It keys on RemoteAddr, which middleware.RealIP has already rewritten.
func limitRate(rs *Responder, cfg RateLimit, now func() time.Time) func(http.Handler) http.Handler {
	limiters := newIPLimiters(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t := now()
			limiters.prune(t)

			ip := clientIP(r)
			lim := limiters.get(ip)
			allowed := lim.AllowN(t, 1)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(0, int(lim.TokensAt(t)))))
			if !allowed {
				rs.Error(w, r, oops.Code("HTTP_RATE_LIMITED").With("ip", ip).
					Wrap(errutil.New(errutil.KindRateLimited, msgRateLimited)))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
