package router

import (
	"github.com/aihub/docqa-go/app/controllers"
	"github.com/aihub/docqa-go/app/middleware"
	"github.com/aihub/docqa-go/internal/config"
	"github.com/beego/beego/v2/server/web"
)

// Init registers all routes. Must be called after config is loaded.
func Init(cfg *config.Config) {
	web.BConfig.CopyRequestBody = true

	web.Router("/", &controllers.RootController{}, "get:Index")
	web.Router("/health", &controllers.HealthController{}, "get:Health")
	web.Router("/status", &controllers.StatusController{}, "get:Status")
	web.Router("/chat", &controllers.ChatController{}, "post:Chat")
	web.Router("/metrics", &controllers.MetricsController{}, "get:Metrics")

	web.InsertFilter("/chat", web.BeforeRouter, middleware.RequestGuard(middleware.DefaultMaxRequestBytes))

	// 图片目录以静态文件方式对外提供
	web.SetStaticPath(cfg.Server.ImagePath, cfg.Server.ImageDir)
}
