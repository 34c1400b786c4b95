package main

import (
	"context"
	"log"

	"github.com/aihub/docqa-go/app/bootstrap"
	"github.com/aihub/docqa-go/app/router"
	"github.com/aihub/docqa-go/internal/logger"
	"github.com/beego/beego/v2/server/web"
	"go.uber.org/zap"
)

func main() {
	app, err := bootstrap.Init()
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer app.Shutdown()

	router.Init(app.Config)

	// 配置Beego全局设置
	web.BConfig.AppName = "Document QA Service"
	web.BConfig.Listen.HTTPPort = app.Config.Server.Port
	// 生成回答可能较慢，写超时跟随问答超时
	web.BConfig.Listen.ServerTimeOut = bootstrap.ServerTimeoutSeconds(app.Config)

	// 摄取在后台进行，HTTP服务立即可用
	app.StartIngestion(context.Background())

	logger.Info("🚀 Starting Document QA Service",
		zap.Int("port", web.BConfig.Listen.HTTPPort),
		zap.String("status", app.State.Snapshot().Message))
	web.Run()
}
