package bootstrap

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/aihub/docqa-go/internal/config"
	"github.com/aihub/docqa-go/internal/database"
	"github.com/aihub/docqa-go/internal/di"
	"github.com/aihub/docqa-go/internal/knowledge"
	"github.com/aihub/docqa-go/internal/logger"
	"github.com/aihub/docqa-go/internal/services"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// App encapsulates the services shared by controllers and the resources
// that need to be cleaned up on shutdown.
type App struct {
	Config    *config.Config
	State     *services.SystemState
	Chat      *services.ChatService
	Ingestion *services.IngestionTask

	// startupErr 启动阶段的不可恢复错误，摄取不会开始
	startupErr   error
	cleanupTasks []func() error
}

// Global app instance for controllers to access
var globalApp *App

// GetApp returns the global app instance
func GetApp() *App {
	return globalApp
}

// SetGlobalApp sets the global app instance
func SetGlobalApp(app *App) {
	globalApp = app
}

// Init loads configuration, builds the dependency graph and registers the
// global App. Missing credentials do not fail startup: the ingestion task
// reports them and the service stays not-ready.
func Init() (*App, error) {
	// Load environment variables from .env if present (non-fatal if missing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize structured logger.
	if err := logger.InitLogger(); err != nil {
		return nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if missing := cfg.MissingKeys(); len(missing) > 0 {
		logger.Warn("Required configuration missing, ingestion will not start", zap.Strings("missing", missing))
	}
	logger.Debug("Configuration loaded",
		zap.String("env", cfg.Server.Env), zap.String("vector_store", cfg.VectorStore.Provider))

	app := &App{Config: cfg}
	if err := applyPDFLicense(cfg); err != nil {
		logger.Error("Failed to activate PDF license", zap.Error(err))
		app.startupErr = err
	}

	if err := os.MkdirAll(cfg.Server.ImageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir %s: %w", cfg.Server.ImageDir, err)
	}

	if _, err := di.Build(cfg); err != nil {
		return nil, err
	}

	if err := app.resolveServices(); err != nil {
		return nil, fmt.Errorf("resolve services: %w", err)
	}

	SetGlobalApp(app)
	return app, nil
}

func (a *App) resolveServices() error {
	var err error
	if a.State, err = di.Resolve[*services.SystemState](); err != nil {
		return err
	}
	if a.Chat, err = di.Resolve[*services.ChatService](); err != nil {
		return err
	}
	if a.Ingestion, err = di.Resolve[*services.IngestionTask](); err != nil {
		return err
	}
	index, err := di.Resolve[*knowledge.SharedIndex]()
	if err != nil {
		return err
	}
	a.cleanupTasks = append(a.cleanupTasks, index.Close, database.CloseRedis)
	return nil
}

// applyPDFLicense 配置了许可证时激活；未配置由摄取的配置校验报告
func applyPDFLicense(cfg *config.Config) error {
	if cfg.Unidoc.LicenseKey == "" {
		return nil
	}
	return knowledge.SetPDFLicenseKey(cfg.Unidoc.LicenseKey)
}

// ServerTimeoutSeconds HTTP读写超时与问答超时保持一致
func ServerTimeoutSeconds(cfg *config.Config) int64 {
	timeout := cfg.Server.ChatTimeout
	if timeout <= 0 {
		timeout = services.DefaultChatTimeout
	}
	seconds := int64(timeout / time.Second)
	if timeout%time.Second != 0 {
		seconds++
	}
	return seconds
}

// StartIngestion runs the one-shot ingestion task in the background.
// A startup error marks the system failed instead.
func (a *App) StartIngestion(ctx context.Context) {
	if a.startupErr != nil {
		if a.State != nil {
			_ = a.State.MarkError(a.startupErr)
		}
		return
	}
	if a.Ingestion != nil {
		a.Ingestion.Start(ctx)
	}
}

// Shutdown flushes/logs and closes resources gracefully.
func (a *App) Shutdown() {
	// Execute cleanup tasks in reverse order (best effort).
	for i := len(a.cleanupTasks) - 1; i >= 0; i-- {
		if err := a.cleanupTasks[i](); err != nil {
			log.Printf("Cleanup error: %v\n", err)
		}
	}

	// Flush logger buffers.
	logger.Sync()
}
