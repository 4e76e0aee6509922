package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/checkin/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger // nilの場合はslog.Default()
	Authenticator     middleware.Authenticator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	StatusObserver    middleware.StatusObserver // nil可

	// ヘルスチェック・メトリクス
	HealthCheckers map[string]HealthChecker
	MetricsHandler http.Handler // nilの場合は/metricsを公開しない

	Validator Validator

	AuthService    AuthServiceInterface
	CheckinService CheckinServiceInterface
	MemberService  MemberServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Recovery → Logging → SecurityHeaders → CORS → (Auth → RateLimit(General))
//
// サインアップ・ログイン等の未認証ルートにはIP単位のRateLimit(Auth)を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusObserver))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.Validator)
	checkinHandler := NewCheckinHandler(deps.CheckinService, deps.Validator)
	memberHandler := NewMemberHandler(deps.MemberService, deps.Validator)

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthCheckers))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/admin", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(deps.RateLimiter.AuthMiddleware())
				r.Post("/signup", authHandler.SignUp)
				r.Post("/login", authHandler.Login)
				r.Post("/refresh", authHandler.Refresh)
				r.Post("/forgot-password", authHandler.ForgotPassword)
				r.Post("/reset-password", authHandler.ResetPassword)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.NewAuthMiddleware(deps.Authenticator))
				r.Use(deps.RateLimiter.GeneralMiddleware())
				r.Post("/logout", authHandler.Logout)
				r.Get("/me", authHandler.Me)
				r.Patch("/me", authHandler.UpdateMe)
			})
		})

		// --- 認証が必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewAuthMiddleware(deps.Authenticator))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			// チェックイン（installationヘッダー必須）
			r.Route("/attendance", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(middleware.NewInstallationMiddleware())
					r.Post("/check-in", checkinHandler.CheckIn)
					r.Post("/check-in/token", checkinHandler.CheckInByToken)
					r.Post("/check-in/{member_id}", checkinHandler.CheckInByID)
					r.Post("/new-member", checkinHandler.RegisterFirstTimer)
				})

				r.Get("/{member_id}", memberHandler.GetMember)
				r.Patch("/{member_id}", memberHandler.UpdateMember)
				r.Delete("/{member_id}", memberHandler.DeleteMember)
			})

			r.Route("/attendances", func(r chi.Router) {
				r.Get("/", memberHandler.ListMembers)
				r.Get("/dashboard", checkinHandler.Dashboard)
				r.Get("/{uid}", memberHandler.GetAttendance)
				r.Patch("/{uid}", memberHandler.UpdateAttendance)
				r.Delete("/{uid}", memberHandler.DeleteAttendance)
			})
		})
	})

	return r
}
