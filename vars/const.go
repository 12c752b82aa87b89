package vars

const (
	// 模型名称
	NOMIC  = "nomic-embed-text"
	BGEM3  = "bge-m3"
	QWEN7B = "qwen2.5:7b"
	QWEN3B = "qwen2.5:3b"

	// Milvus Collection 名称
	COLLECTION = "contract_chunks_v3"

	// ES 索引名称
	ESINDEX = "contract_chunks_knn_v1"

	// 存储后端
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendMilvus   = "milvus"
	BackendES       = "es"

	// LLM 提供方
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// 提示词
const (
	EXTRACT = `
You are a contract data-entry specialist. Extract the structure of ONE page of a business contract.
Page number: {{.PageNumber}}

Return a single JSON object with these keys:
- "summary": 1-3 sentence summary of this page.
- "sections": [{"heading_id","heading","sub_headings":[{"sub_heading_id","sub_heading","clauses":[{"clause_id","clause","sub_clauses":[{"sub_clause_id","sub_clause"}]}]}]}]
- "tables": [{"table_id","title","type","headers":[...],"rows":[[...]],"has_merged_cells",
              "continues_to_next_page","continued_from_previous_page"}]
  Set continues_to_next_page when the table is cut off at the bottom of the page,
  continued_from_previous_page when the table starts mid-way (no title, repeated or missing header).
- "entities": {"document_type","buyer_name","seller_name","dates":[],"deadlines":[],"alerts":[],"addresses":[],
               "obligations":[{"party","description"}],"contact_info":{"email": "...", "phone": "..."}}
- "visuals": [{"visual_id","type","bbox":{"x0","y0","x1","y1"},"summary"}]
Leave a field empty when the page does not mention it. Do not invent values.

Page text:
{{.Content}}

Output JSON only:
`

	SUMMARIZE = `
You write the overall summary of a contract from its page summaries and resolved entities.
Keep it under {{.MaxChars}} characters. Mention the parties, the subject, key dates, deadlines and obligations.

Entities:
{{.Entities}}

Page summaries:
{{.Pages}}

Summary:
`

	ANSWER = `
You answer questions about one contract using ONLY the context below.
Passages are ordered by vector similarity; graph facts are ordered by distance from the matched entities.
If the context does not contain the answer, say so.

{{.Context}}

Question: {{.Question}}
`
)
