package routes

import (
	"time"

	"github.com/gin-gonic/gin"

	"todo-sync/internal/controller"
	"todo-sync/internal/middleware"
)

func Router(todos *controller.Todos, requestTimeout time.Duration) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog())

	// Health for load balancers and K8s liveness checks
	router.GET("/health", controller.Health)
	router.GET("/ready", todos.Ready)

	api := router.Group("/api/todos")
	api.Use(middleware.Timeout(requestTimeout))
	{
		api.GET("", todos.GetTodos)
		api.POST("", todos.CreateTodo)
		api.PUT("/:id", todos.UpdateTodo)
		api.DELETE("/:id", todos.DeleteTodo)

		// Bulk routes
		api.DELETE("/completed/all", todos.ClearCompleted)
		api.PUT("/toggle-all/all", todos.ToggleAll)
	}

	return router
}
