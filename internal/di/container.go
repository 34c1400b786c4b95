package di

import (
	"fmt"

	"github.com/aihub/docqa-go/internal/config"
	"go.uber.org/dig"
)

// Container 全局依赖注入容器，Build 之后可用
var Container *dig.Container

// InitContainer 创建新的容器并替换全局实例
func InitContainer() *dig.Container {
	Container = dig.New()
	return Container
}

// Build 创建容器并注册全部依赖提供者
func Build(cfg *config.Config) (*dig.Container, error) {
	container := InitContainer()
	if err := RegisterProviders(container, cfg); err != nil {
		return nil, fmt.Errorf("register providers: %w", err)
	}
	return container, nil
}

// Resolve 从全局容器中取出单个依赖
func Resolve[T any]() (T, error) {
	var out T
	if Container == nil {
		return out, fmt.Errorf("container not initialized")
	}
	err := Container.Invoke(func(v T) { out = v })
	return out, err
}
