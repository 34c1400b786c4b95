package controllers

import (
	"net/http"

	"github.com/aihub/docqa-go/app/bootstrap"
	"github.com/beego/beego/v2/server/web"
)

// BaseController provides helpers for consistent JSON responses.
type BaseController struct {
	web.Controller
}

// JSON writes a JSON response with the supplied HTTP status code.
func (c *BaseController) JSON(status int, payload interface{}) {
	c.Ctx.Output.SetStatus(status)
	c.Data["json"] = payload
	c.ServeJSON()
}

// JSONSuccess writes a standard success envelope.
func (c *BaseController) JSONSuccess(data interface{}) {
	c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// JSONError writes an error envelope with message.
func (c *BaseController) JSONError(status int, message string) {
	c.JSON(status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// app 返回全局App；未初始化时写入503并返回nil
func (c *BaseController) app() *bootstrap.App {
	app := bootstrap.GetApp()
	if app == nil {
		c.JSONError(http.StatusServiceUnavailable, "App instance not available")
		return nil
	}
	return app
}

// baseURL 请求的外部访问地址（考虑反向代理的 X-Forwarded-Proto）
func (c *BaseController) baseURL() string {
	return c.Ctx.Input.Scheme() + "://" + c.Ctx.Request.Host
}
