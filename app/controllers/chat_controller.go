package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/aihub/docqa-go/internal/errors"
	"github.com/aihub/docqa-go/internal/services"
	"github.com/go-playground/validator/v10"
)

// ChatRequest 问答请求
type ChatRequest struct {
	Query string `json:"query" validate:"required"`
}

// ChatResponse 问答响应。sources 为兼容字段，始终为空数组
type ChatResponse struct {
	Answer  string        `json:"answer"`
	Images  []string      `json:"images"`
	Sources []interface{} `json:"sources"`
}

var validate = validator.New()

// ChatController 问答控制器
type ChatController struct {
	BaseController
}

// Chat 处理问答请求。系统未就绪或处理失败时仍返回200，说明写在 answer 中
func (c *ChatController) Chat() {
	var req ChatRequest
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.writeError(apperrors.NewBadRequestError("invalid request body").WithCause(err))
		return
	}
	if err := validateChatRequest(req); err != nil {
		c.writeError(err)
		return
	}

	app := c.app()
	if app == nil {
		return
	}

	result := app.Chat.Respond(c.Ctx.Request.Context(), req.Query)
	c.JSON(http.StatusOK, ChatResponse{
		Answer:  result.Answer,
		Images:  services.ImageURLs(c.baseURL(), app.Config.Server.ImagePath, result.ImagePaths),
		Sources: []interface{}{},
	})
}

func validateChatRequest(req ChatRequest) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Tag() == "required" {
		return apperrors.NewMissingFieldError("query")
	}
	return apperrors.NewValidationError("invalid chat request").WithCause(err)
}

func (c *ChatController) writeError(err error) {
	appErr := apperrors.GetAppError(err)
	c.JSON(appErr.HTTPCode, map[string]interface{}{
		"success": false,
		"code":    appErr.Code,
		"error":   appErr.Message,
	})
}
