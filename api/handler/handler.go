package handler

import (
	"context"
	"mime/multipart"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"contractx/api/response"
	"contractx/storage"
	"contractx/types"
)

// Ingestion handler 用到的入库能力
type Ingestion interface {
	UploadAndProcess(ctx context.Context, fileHeader *multipart.FileHeader, documentID string) (*types.Document, error)
	FinalizeDocument(ctx context.Context, documentID string, pages []types.PageExtraction) (*types.Document, error)
	GetDocument(ctx context.Context, documentID string) (*types.Document, error)
	ListDocuments(ctx context.Context, filter storage.DocumentFilter) ([]storage.DocumentSummary, error)
	DeleteDocument(ctx context.Context, documentID string) error
	CancelIngestion(documentID string) bool
	MergeTables(pages []types.PageExtraction) ([]types.MergedTable, error)
	ReconcileEntities(pages []types.PageExtraction) types.CanonicalEntities
	DocumentStats(ctx context.Context, documentID string) (*types.DocumentStats, error)
	ChatbotInfo(ctx context.Context, documentID string) (*types.ChatbotInfo, error)
}

type Retrieval interface {
	AnswerContext(ctx context.Context, req types.ContextRequest) (*types.FusedContext, error)
	Ask(ctx context.Context, req types.ContextRequest) (*types.AskResponse, error)
}

type ContractHandler struct {
	ingestionSvc Ingestion
	retrievalSvc Retrieval
	model        types.ModelInfo
	log          *logrus.Entry
}

func NewContractHandler(ingestionSvc Ingestion, retrievalSvc Retrieval, model types.ModelInfo) *ContractHandler {
	return &ContractHandler{
		ingestionSvc: ingestionSvc,
		retrievalSvc: retrievalSvc,
		model:        model,
		log:          logrus.WithField("component", "handler"),
	}
}

// Health 进程存活即健康，附带当前的模型和存储后端
func (h *ContractHandler) Health(c *gin.Context) {
	response.Success(c, map[string]any{
		"status": "healthy",
		"models": map[string]string{
			"provider":  h.model.Provider,
			"chat":      h.model.ChatModel,
			"embedding": h.model.EmbedModel,
		},
		"services": map[string]string{
			"document_store": h.model.StoreBackend,
			"vector_store":   h.model.VectorBackend,
		},
	})
}

// Upload 上传合同接口，支持一次多个文件；单个文件失败不影响其他文件
func (h *ContractHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.Fail(c, "文件上传失败或格式错误")
		return
	}
	files := form.File["file"]
	if len(files) == 0 {
		response.Fail(c, "未接收到文件，请检查参数名是否为 'file'")
		return
	}
	// 只有单文件上传时才接受调用方指定的 document_id，便于中途取消
	documentID := ""
	if len(files) == 1 {
		documentID = c.PostForm("document_id")
	}

	var (
		docIDs    []string
		failFiles []string
		lastErr   error
	)
	for _, file := range files {
		doc, err := h.ingestionSvc.UploadAndProcess(c.Request.Context(), file, documentID)
		if err != nil {
			h.log.WithError(err).WithField("file", file.Filename).Error("文件处理失败")
			failFiles = append(failFiles, file.Filename)
			lastErr = err
			continue
		}
		docIDs = append(docIDs, doc.DocumentID)
	}

	if len(docIDs) == 0 && lastErr != nil {
		response.Error(c, lastErr)
		return
	}
	response.Success(c, map[string]any{
		"doc_ids":     docIDs,
		"status":      "indexed",
		"total_count": len(docIDs),
		"fail_files":  failFiles,
	})
}

func (h *ContractHandler) Finalize(c *gin.Context) {
	var req types.FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "参数错误: pages 不能为空")
		return
	}
	doc, err := h.ingestionSvc.FinalizeDocument(c.Request.Context(), c.Param("id"), req.Pages)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *ContractHandler) GetDocument(c *gin.Context) {
	doc, err := h.ingestionSvc.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, doc)
}

// ListDocuments 支持 party / type / limit 过滤
func (h *ContractHandler) ListDocuments(c *gin.Context) {
	filter := storage.DocumentFilter{
		Party:        c.Query("party"),
		DocumentType: c.Query("type"),
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.Fail(c, "参数错误: limit 必须是正整数")
			return
		}
		filter.Limit = n
	}
	list, err := h.ingestionSvc.ListDocuments(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, list)
}

func (h *ContractHandler) DeleteDocument(c *gin.Context) {
	id := c.Param("id")
	if err := h.ingestionSvc.DeleteDocument(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, map[string]any{"document_id": id, "deleted": true})
}

func (h *ContractHandler) CancelIngestion(c *gin.Context) {
	id := c.Param("id")
	response.Success(c, map[string]any{"document_id": id, "cancelled": h.ingestionSvc.CancelIngestion(id)})
}

func (h *ContractHandler) MergeTables(c *gin.Context) {
	var req types.FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "参数错误: pages 不能为空")
		return
	}
	tables, err := h.ingestionSvc.MergeTables(req.Pages)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, tables)
}

func (h *ContractHandler) ReconcileEntities(c *gin.Context) {
	var req types.FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "参数错误: pages 不能为空")
		return
	}
	response.Success(c, h.ingestionSvc.ReconcileEntities(req.Pages))
}

func (h *ContractHandler) AnswerContext(c *gin.Context) {
	var req types.ContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "参数错误: question 不能为空")
		return
	}
	fused, err := h.retrievalSvc.AnswerContext(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, fused)
}

func (h *ContractHandler) Ask(c *gin.Context) {
	var req types.ContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "参数错误: question 不能为空")
		return
	}
	result, err := h.retrievalSvc.Ask(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

func (h *ContractHandler) DocumentStats(c *gin.Context) {
	stats, err := h.ingestionSvc.DocumentStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, stats)
}

func (h *ContractHandler) ChatbotInfo(c *gin.Context) {
	info, err := h.ingestionSvc.ChatbotInfo(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	info.Model = h.model
	response.Success(c, info)
}
