package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/Rox-Lvmaohua/qrsignature/internal/http/handler"
	"github.com/Rox-Lvmaohua/qrsignature/internal/http/middleware"
	"github.com/Rox-Lvmaohua/qrsignature/internal/http/response"
	"github.com/Rox-Lvmaohua/qrsignature/internal/security"
)

type Dependencies struct {
	Logger           *slog.Logger
	SignHandler      *handler.SignHandler
	SignatureHandler *handler.SignatureHandler
	TokenCodec       *security.SignTokenCodec
	StatusLimiter    *middleware.RateLimiter
	APILimiter       *middleware.RateLimiter
	DB               *gorm.DB
	Redis            redis.UniversalClient
}

func New(dep Dependencies) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	if dep.Logger != nil {
		r.Use(requestLogger(dep.Logger))
	}

	r.Get("/health/live", func(w http.ResponseWriter, req *http.Request) {
		response.JSON(w, req, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", readyHandler(dep.DB, dep.Redis))

	r.Route("/api/v1/sign", func(r chi.Router) {
		// Status polling gets its own per-session budget; everything else
		// shares the general API window.
		r.Group(func(r chi.Router) {
			if dep.StatusLimiter != nil {
				r.Use(dep.StatusLimiter.Middleware())
			}
			r.Use(middleware.RequireSignToken(dep.TokenCodec))
			r.Get("/status/{sessionRef}", dep.SignHandler.Status)
		})

		r.Group(func(r chi.Router) {
			if dep.APILimiter != nil {
				r.Use(dep.APILimiter.Middleware())
			}
			r.Post("/url", dep.SignHandler.Generate)
			r.Get("/signature-image/{sessionRef}", dep.SignHandler.SignatureImage)
			r.Get("/signature-image/{sessionRef}/url", dep.SignHandler.SignatureImageURL)
			r.Get("/user-signatures", dep.SignatureHandler.UserSignatures)
			r.Get("/check-signature-exists", dep.SignatureHandler.CheckSignatureExists)
			r.Get("/history", dep.SignatureHandler.History)
			r.Delete("/user-signatures/{signatureId}", dep.SignatureHandler.DeleteUserSignature)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireSignToken(dep.TokenCodec))
				r.Get("/session", dep.SignHandler.Session)
				r.Post("/confirm", dep.SignHandler.Confirm)
				r.Get("/user-info", dep.SignHandler.UserInfo)
			})
		})
	})

	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", chimiddleware.GetReqID(r.Context()),
			)
		})
	}
}

func readyHandler(db *gorm.DB, rdb redis.UniversalClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if db != nil {
			sqlDB, err := db.DB()
			if err != nil || sqlDB.PingContext(ctx) != nil {
				response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "database unreachable", nil)
				return
			}
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "redis unreachable", nil)
				return
			}
		}
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
	}
}
