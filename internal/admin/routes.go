package admin

import (
	"github.com/ubuygold/contentmill/internal/auth"
	"github.com/ubuygold/contentmill/internal/config"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler, cfg *config.Config) {
	adminGroup := router.Group("/admin")
	adminGroup.Use(auth.AdminAuthMiddleware(cfg.Admin.Password))
	{
		keysGroup := adminGroup.Group("/keys")
		{
			keysGroup.GET("", handler.ListKeysHandler)
			keysGroup.POST("", handler.AddKeyHandler)
			keysGroup.DELETE("/:id", handler.DeleteKeyHandler)
			keysGroup.POST("/:id/reset", handler.ResetKeyHandler)
			keysGroup.PUT("/:id/active", handler.SetKeyActiveHandler)
		}

		projectsGroup := adminGroup.Group("/projects")
		{
			projectsGroup.GET("", handler.ListProjectsHandler)
			projectsGroup.POST("", handler.CreateProjectHandler)
			projectsGroup.GET("/:id", handler.GetProjectHandler)
			projectsGroup.PUT("/:id", handler.UpdateProjectHandler)
			projectsGroup.DELETE("/:id", handler.DeleteProjectHandler)
			projectsGroup.GET("/:id/stats", handler.ProjectStatsHandler)
			projectsGroup.GET("/:id/articles", handler.ListArticlesHandler)
			projectsGroup.GET("/:id/articles/:article_id", handler.GetArticleHandler)
			projectsGroup.GET("/:id/keywords", handler.ListKeywordsHandler)
			projectsGroup.POST("/:id/stages/:stage", handler.RunStageHandler)
			projectsGroup.POST("/:id/pipeline", handler.RunPipelineHandler)
			projectsGroup.POST("/:id/publish", handler.PublishHandler)
		}

		adminGroup.GET("/jobs", handler.JobsHandler)
	}
}
