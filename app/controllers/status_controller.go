package controllers

import "net/http"

// StatusResponse 摄取状态
type StatusResponse struct {
	Ready   bool   `json:"ready"`
	Message string `json:"message"`
}

// StatusController 系统状态控制器
type StatusController struct {
	BaseController
}

// Status 返回系统是否就绪
func (c *StatusController) Status() {
	app := c.app()
	if app == nil {
		return
	}
	snapshot := app.State.Snapshot()
	c.JSON(http.StatusOK, StatusResponse{Ready: snapshot.Ready(), Message: snapshot.Message})
}
