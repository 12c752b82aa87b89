package types

// ContextRequest answer_context 的入参
type ContextRequest struct {
	DocumentID    string `json:"document_id"`
	Question      string `json:"question" binding:"required"`
	IncludeVector bool   `json:"include_vector"`
	IncludeGraph  bool   `json:"include_graph"`
	K             int    `json:"k"`
}

type RankedChunk struct {
	Rank     int     `json:"rank"`
	Chunk    Chunk   `json:"chunk"`
	Distance float64 `json:"distance"`
}

type RankedNode struct {
	Rank     int       `json:"rank"`
	Node     GraphNode `json:"node"`
	Depth    int       `json:"depth"`
	Relation EdgeType  `json:"relation,omitempty"`
}

type Diagnostic struct {
	Branch   string `json:"branch"`
	Stage    string `json:"stage"`
	Attempts int    `json:"attempts,omitempty"`
	Error    string `json:"error"`
}

// FusedContext 两路结果分开排序，不做混合打分
type FusedContext struct {
	DocumentID  string        `json:"document_id"`
	Question    string        `json:"question"`
	Terms       []string      `json:"terms,omitempty"`
	SeedNodeIDs []string      `json:"seed_node_ids,omitempty"`
	Chunks      []RankedChunk `json:"chunks"`
	Nodes       []RankedNode  `json:"nodes"`
	Diagnostics []Diagnostic  `json:"diagnostics,omitempty"`
}

type AskResponse struct {
	Answer  string        `json:"answer"`
	Context *FusedContext `json:"context"`
}

type FinalizeRequest struct {
	Pages []PageExtraction `json:"pages" binding:"required"`
}
