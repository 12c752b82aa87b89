package router

import (
	"github.com/gin-gonic/gin"

	"contractx/api/handler"
)

func RegisterRoutes(r *gin.Engine, contractH *handler.ContractHandler) {
	r.GET("/health", contractH.Health)
	api := r.Group("/api/v1")
	{
		contract := api.Group("/contract")
		{
			contract.POST("/upload", contractH.Upload)
		}
		documents := api.Group("/documents")
		{
			documents.GET("", contractH.ListDocuments)
			documents.GET("/:id", contractH.GetDocument)
			documents.DELETE("/:id", contractH.DeleteDocument)
			documents.POST("/:id/finalize", contractH.Finalize)
			documents.DELETE("/:id/ingestion", contractH.CancelIngestion)
			documents.GET("/:id/stats", contractH.DocumentStats)
			documents.GET("/:id/chatbot", contractH.ChatbotInfo)
		}
		api.POST("/tables/merge", contractH.MergeTables)
		api.POST("/entities/reconcile", contractH.ReconcileEntities)
		retrieval := api.Group("/retrieval")
		{
			retrieval.POST("/context", contractH.AnswerContext)
			retrieval.POST("/ask", contractH.Ask)
		}
	}
}
