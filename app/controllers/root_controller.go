package controllers

// RootController 根控制器
type RootController struct {
	BaseController
}

func (c *RootController) Index() {
	c.JSONSuccess(map[string]interface{}{
		"message":   "Document QA Service API",
		"endpoints": []string{"GET /status", "POST /chat", "GET /images/{filename}", "GET /health", "GET /metrics"},
	})
}

// HealthController 健康检查控制器（只表示进程存活，不代表摄取已完成）
type HealthController struct {
	BaseController
}

func (c *HealthController) Health() {
	c.JSONSuccess(map[string]string{"status": "healthy"})
}
