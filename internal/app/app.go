package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hitoshi/checkin/internal/auth"
	"github.com/hitoshi/checkin/internal/cache"
	"github.com/hitoshi/checkin/internal/checkin"
	"github.com/hitoshi/checkin/internal/config"
	"github.com/hitoshi/checkin/internal/database"
	"github.com/hitoshi/checkin/internal/handler"
	"github.com/hitoshi/checkin/internal/logger"
	"github.com/hitoshi/checkin/internal/mail"
	"github.com/hitoshi/checkin/internal/member"
	"github.com/hitoshi/checkin/internal/metrics"
	"github.com/hitoshi/checkin/internal/middleware"
	"github.com/hitoshi/checkin/internal/repository"
	"github.com/hitoshi/checkin/internal/security"
	"github.com/hitoshi/checkin/internal/validation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("timezone", cfg.Location.String()),
	)

	switch cmd {
	case CommandMigrate:
		var migrateArgs []string
		if len(args) > 1 {
			migrateArgs = args[1:]
		}
		return runMigrate(cfg, migrateArgs)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DBとRedisに接続し、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL, database.PoolOptions{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLife,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. Redis接続
	pool := cache.NewPool(cfg.RedisURL)
	defer pool.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	err = cache.Ping(pingCtx, pool)
	cancelPing()
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	slog.Info("redis connection established")

	// 3. リポジトリの初期化
	memberRepo := repository.NewPostgresMemberRepo(db)
	attendanceRepo := repository.NewPostgresAttendanceRepo(db)
	adminRepo := repository.NewPostgresAdminRepo(db)
	statisticsRepo := repository.NewPostgresStatisticsRepo(db)
	txRunner := repository.NewPostgresTxRunner(db)

	// 4. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 5. セキュリティ・メール
	sanitizer := security.NewTextSanitizer()
	hasher := security.NewPasswordHasher(cfg.BcryptCost)
	mailer := newMailSender(cfg)

	// 6. ドメインサービスの初期化
	tokenIssuer := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  cfg.JWTSecretKey,
		RefreshSecret: cfg.RefreshSecretKey,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	})
	authService := auth.NewService(
		adminRepo, tokenIssuer, cache.NewTokenStore(pool), hasher, mailer, collector,
		auth.ServiceConfig{
			ResetTokenTTL: cfg.ForgotPasswordTTL,
			BlacklistTTL:  cfg.TokenBlacklistTTL,
		},
	)

	checkinService := checkin.NewService(
		checkin.Repositories{Tx: txRunner, Statistics: statisticsRepo},
		auth.NewCheckinSigner(cfg.CheckinTokenSecret),
		sanitizer,
		collector,
		checkin.ServiceConfig{
			Clock:               checkin.NewClock(cfg.Location),
			FirstTimerThreshold: cfg.FirstTimerThreshold,
		},
	)
	memberService := member.NewService(memberRepo, attendanceRepo, sanitizer)

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitAuth),
	)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		Authenticator:     authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		StatusObserver:    collector,

		HealthCheckers: map[string]handler.HealthChecker{
			"database": db,
			"redis": handler.HealthCheckerFunc(func(ctx context.Context) error {
				return cache.Ping(ctx, pool)
			}),
		},
		MetricsHandler: metrics.Handler(registry),

		Validator: validation.New(),

		AuthService:    authService,
		CheckinService: checkinService,
		MemberService:  memberService,
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// newMailSender はRESEND_API_KEYが設定されていればResend経由の送信者を、
// 未設定であればログ出力のみの送信者を返す。
func newMailSender(cfg *config.Config) mail.Sender {
	if cfg.ResendAPIKey == "" {
		slog.Warn("RESEND_API_KEY is not set; password reset mails are logged only")
		return mail.LogSender{}
	}
	return mail.NewResendSender(cfg.ResendAPIKey, mail.FormatFrom(cfg.MailFromName, cfg.MailFrom))
}

// runMigrate はデータベースマイグレーションを実行する。
// 引数なしまたは "up" で未適用マイグレーションをすべて適用する。
// "down N" でN件ロールバックし、"version" で現在のバージョンを出力する。
func runMigrate(cfg *config.Config, args []string) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	action, steps, err := parseMigrateArgs(args)
	if err != nil {
		return err
	}

	switch action {
	case "down":
		if err := database.RollbackMigrations(cfg.DatabaseURL, steps); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
		slog.Info("database migrations rolled back", slog.Int("steps", steps))
	case "version":
		version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to read migration version: %w", err)
		}
		slog.Info("database migration version",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("database migrations completed successfully")
	}

	return nil
}

// parseMigrateArgs はmigrateサブコマンドの引数を解析する。
// downのステップ数は省略時1。
func parseMigrateArgs(args []string) (action string, steps int, err error) {
	if len(args) == 0 {
		return "up", 0, nil
	}

	switch args[0] {
	case "up", "version":
		return args[0], 0, nil
	case "down":
		steps = 1
		if len(args) > 1 {
			steps, err = strconv.Atoi(args[1])
			if err != nil || steps <= 0 {
				return "", 0, fmt.Errorf("invalid rollback steps %q", args[1])
			}
		}
		return "down", steps, nil
	default:
		return "", 0, fmt.Errorf("unknown migrate action %q", args[0])
	}
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
