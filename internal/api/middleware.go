package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

// requestLogger emits one zerolog line per request.
func requestLogger() func(http.Handler) http.Handler {
	access := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		if status == 0 {
			status = http.StatusOK
		}
		var evt *zerolog.Event
		switch {
		case status >= 500:
			evt = hlog.FromRequest(r).Error()
		case status >= 400:
			evt = hlog.FromRequest(r).Warn()
		default:
			evt = hlog.FromRequest(r).Info()
		}
		evt.Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Int("status", status).
			Int("bytes", size).
			Dur("duration", duration).
			Msg("HTTP request")
	})
	return func(next http.Handler) http.Handler {
		return hlog.NewHandler(log.Logger)(access(next))
	}
}
