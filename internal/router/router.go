package router

import (
	"github.com/chloHabitto/habitto/internal/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API) *gin.Engine {
	r := gin.Default()

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/habits", api.ListHabits)
		apiGroup.POST("/habits", api.CreateHabit)
		apiGroup.GET("/habits/heatmap", api.GetHabitHeatmap)
		apiGroup.GET("/habits/:id", api.GetHabit)
		apiGroup.PUT("/habits/:id", api.UpdateHabit)
		apiGroup.DELETE("/habits/:id", api.DeleteHabit)

		apiGroup.POST("/habits/:id/progress", api.LogProgress)
		apiGroup.POST("/habits/:id/progress/undo", api.UndoProgress)
		apiGroup.GET("/habits/:id/projection", api.GetProjection)

		apiGroup.POST("/habits/:id/skips", api.AddHabitSkip)
		apiGroup.DELETE("/habits/:id/skips", api.RemoveHabitSkip)

		apiGroup.GET("/vacations", api.ListVacations)
		apiGroup.POST("/vacations", api.CreateVacation)
		apiGroup.DELETE("/vacations/:id", api.DeleteVacation)

		apiGroup.GET("/streak", api.GetStreak)
		apiGroup.GET("/reward", api.GetTotalReward)
	}

	return r
}
