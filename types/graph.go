package types

type ChunkType string

const (
	ChunkSection ChunkType = "section"
	ChunkTable   ChunkType = "table"
	ChunkVisual  ChunkType = "visual"
	ChunkSummary ChunkType = "summary"
)

type Chunk struct {
	ChunkID    string    `json:"chunk_id"`
	DocumentID string    `json:"document_id"`
	Content    string    `json:"content"`
	ChunkType  ChunkType `json:"chunk_type"`
	PageNumber *int      `json:"page_number"`
	SourceRef  string    `json:"source_ref"`
}

// ChunkHit 向量检索的一条结果，Distance 越小越相似
type ChunkHit struct {
	Chunk    Chunk   `json:"chunk"`
	Distance float64 `json:"distance"`
}

type NodeType string

const (
	NodeDocument NodeType = "Document"
	NodePage     NodeType = "Page"
	NodeSection  NodeType = "Section"
	NodeClause   NodeType = "Clause"
	NodeTable    NodeType = "Table"
	NodeVisual   NodeType = "Visual"
	NodeEntity   NodeType = "Entity"
)

type EdgeType string

const (
	EdgeHasPage    EdgeType = "HAS_PAGE"
	EdgeHasSection EdgeType = "HAS_SECTION"
	EdgeHasClause  EdgeType = "HAS_CLAUSE"
	EdgeHasTable   EdgeType = "HAS_TABLE"
	EdgeHasVisual  EdgeType = "HAS_VISUAL"
	EdgeHasEntity  EdgeType = "HAS_ENTITY"

	EdgeSpansPage     EdgeType = "SPANS_PAGE"
	EdgeContractsWith EdgeType = "CONTRACTS_WITH"
	EdgeHasObligation EdgeType = "HAS_OBLIGATION"
	EdgeStatedOn      EdgeType = "STATED_ON"
)

// GraphNode Seq 是节点在文档子图里的创建顺序
type GraphNode struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	Type       NodeType          `json:"type"`
	Label      string            `json:"label"`
	Properties map[string]string `json:"properties,omitempty"`
	Seq        int               `json:"seq"`
}

type GraphEdge struct {
	DocumentID string   `json:"document_id"`
	From       string   `json:"from"`
	To         string   `json:"to"`
	Type       EdgeType `json:"type"`
}

type TraversedNode struct {
	Node     GraphNode `json:"node"`
	Depth    int       `json:"depth"`
	Relation EdgeType  `json:"relation,omitempty"`
	Parent   string    `json:"parent,omitempty"`
}

type Subgraph struct {
	Nodes []TraversedNode `json:"nodes"`
	Edges []GraphEdge     `json:"edges"`
}
