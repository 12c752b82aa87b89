package types

import "time"

// PageInput 送入抽取阶段的单页内容
type PageInput struct {
	Number int    `json:"page_number"`
	Text   string `json:"text"`
}

type SubClause struct {
	ID   string `json:"sub_clause_id"`
	Text string `json:"sub_clause"`
}

type Clause struct {
	ID         string      `json:"clause_id"`
	Text       string      `json:"clause"`
	SubClauses []SubClause `json:"sub_clauses,omitempty"`
}

type SubHeading struct {
	ID      string   `json:"sub_heading_id"`
	Text    string   `json:"sub_heading"`
	Clauses []Clause `json:"clauses,omitempty"`
}

type Section struct {
	ID          string       `json:"heading_id"`
	Heading     string       `json:"heading"`
	SubHeadings []SubHeading `json:"sub_headings,omitempty"`
}

type BoundingBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

type Visual struct {
	ID      string      `json:"visual_id"`
	Type    string      `json:"type"`
	BBox    BoundingBox `json:"bbox"`
	Summary string      `json:"summary"`
}

// TableCandidate 单页检测出的表格，续表标记只是提示
type TableCandidate struct {
	TableID                   string     `json:"table_id"`
	Title                     string     `json:"title"`
	Type                      string     `json:"type"`
	Headers                   []string   `json:"headers"`
	Rows                      [][]string `json:"rows"`
	HasMergedCells            bool       `json:"has_merged_cells"`
	ContinuesToNextPage       bool       `json:"continues_to_next_page"`
	ContinuedFromPreviousPage bool       `json:"continued_from_previous_page"`
}

type MergedTable struct {
	TableID        string     `json:"table_id"`
	Title          string     `json:"title"`
	Type           string     `json:"type,omitempty"`
	Headers        []string   `json:"headers"`
	Rows           [][]string `json:"rows"`
	HasMergedCells bool       `json:"has_merged_cells"`
	SourcePages    []int      `json:"source_pages"`
	TotalRows      int        `json:"total_rows"`
	TotalColumns   int        `json:"total_columns"`
}

type Obligation struct {
	Party       string `json:"party"`
	Description string `json:"description"`
	Page        int    `json:"page"`
}

// EntityBag 单页抽取出的实体
type EntityBag struct {
	DocumentType string            `json:"document_type,omitempty"`
	BuyerName    string            `json:"buyer_name,omitempty"`
	SellerName   string            `json:"seller_name,omitempty"`
	Dates        []string          `json:"dates,omitempty"`
	Deadlines    []string          `json:"deadlines,omitempty"`
	Alerts       []string          `json:"alerts,omitempty"`
	Addresses    []string          `json:"addresses,omitempty"`
	Obligations  []Obligation      `json:"obligations,omitempty"`
	ContactInfo  map[string]string `json:"contact_info,omitempty"`
}

// CanonicalEntities 文档级实体，Candidates 记录被首个值压住的冲突值
type CanonicalEntities struct {
	DocumentType string              `json:"document_type"`
	BuyerName    string              `json:"buyer_name"`
	SellerName   string              `json:"seller_name"`
	Dates        []string            `json:"dates"`
	Deadlines    []string            `json:"deadlines"`
	Alerts       []string            `json:"alerts"`
	Addresses    []string            `json:"addresses"`
	Obligations  []Obligation        `json:"obligations"`
	ContactInfo  map[string]string   `json:"contact_info"`
	Candidates   map[string][]string `json:"candidates,omitempty"`
}

type PageExtraction struct {
	PageNumber int              `json:"page_number"`
	Summary    string           `json:"summary,omitempty"`
	Sections   []Section        `json:"sections,omitempty"`
	Tables     []TableCandidate `json:"tables,omitempty"`
	Entities   EntityBag        `json:"entities"`
	Visuals    []Visual         `json:"visuals,omitempty"`
}

// Document 聚合根，finalize 之后只读
type Document struct {
	DocumentID        string            `json:"document_id"`
	Pages             []PageExtraction  `json:"pages"`
	MergedTables      []MergedTable     `json:"merged_tables"`
	CanonicalEntities CanonicalEntities `json:"canonical_entities"`
	OverallSummary    string            `json:"overall_summary"`
	CreatedAt         time.Time         `json:"created_at"`
}
