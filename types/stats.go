package types

// LLMUsage 单个文档在某一阶段累计的模型调用量
type LLMUsage struct {
	Stage            string `json:"stage"`
	Calls            int    `json:"calls"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// DocumentStats 文档在两类索引里的规模和模型用量
type DocumentStats struct {
	DocumentID string     `json:"document_id"`
	Chunks     int        `json:"chunks"`
	Nodes      int        `json:"nodes"`
	Edges      int        `json:"edges"`
	Usage      []LLMUsage `json:"llm_usage"`
}

// ModelInfo 当前进程使用的模型和检索参数
type ModelInfo struct {
	Provider      string `json:"provider"`
	ChatModel     string `json:"chat_model"`
	EmbedModel    string `json:"embed_model"`
	StoreBackend  string `json:"store_backend"`
	VectorBackend string `json:"vector_backend"`
	RetrievalK    int    `json:"retrieval_k"`
	GraphMaxDepth int    `json:"graph_max_depth"`
}

// ChatbotInfo 问答前展示的文档概况；Ready 表示两类索引都已写入
type ChatbotInfo struct {
	DocumentID   string        `json:"document_id"`
	DocumentType string        `json:"document_type"`
	BuyerName    string        `json:"buyer_name"`
	SellerName   string        `json:"seller_name"`
	PageCount    int           `json:"page_count"`
	Ready        bool          `json:"ready"`
	Stats        DocumentStats `json:"stats"`
	Model        ModelInfo     `json:"model"`
}
