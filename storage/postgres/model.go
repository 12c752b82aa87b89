package postgres

import (
	"time"

	"gorm.io/datatypes"
)

// DocumentRecord 对应 documents 表，结构化字段单独建列便于筛选，其余整体存 jsonb
type DocumentRecord struct {
	DocID        string         `gorm:"column:doc_id;primaryKey;type:varchar(64)"`
	DocumentType string         `gorm:"column:document_type;type:varchar(100);index"`
	BuyerName    string         `gorm:"column:buyer_name;index"`
	SellerName   string         `gorm:"column:seller_name;index"`
	PageCount    int            `gorm:"column:page_count"`
	Pages        datatypes.JSON `gorm:"column:pages;type:jsonb;not null;default:'[]'"`
	MergedTables datatypes.JSON `gorm:"column:merged_tables;type:jsonb;not null;default:'[]'"`
	Entities     datatypes.JSON `gorm:"column:canonical_entities;type:jsonb;not null;default:'{}'"`
	Summary      string         `gorm:"column:overall_summary;type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (DocumentRecord) TableName() string {
	return "documents"
}

// GraphNodeRecord 图节点，(doc_id, node_id) 唯一
type GraphNodeRecord struct {
	DocID      string         `gorm:"column:doc_id;primaryKey;type:varchar(64)"`
	NodeID     string         `gorm:"column:node_id;primaryKey;type:varchar(255)"`
	NodeType   string         `gorm:"column:node_type;type:varchar(32);index"`
	Label      string         `gorm:"column:label;type:text"`
	Properties datatypes.JSON `gorm:"column:properties;type:jsonb;not null;default:'{}'"`
	Seq        int            `gorm:"column:seq"`
}

func (GraphNodeRecord) TableName() string {
	return "graph_nodes"
}

type GraphEdgeRecord struct {
	ID       uint   `gorm:"column:id;primaryKey;autoIncrement"`
	DocID    string `gorm:"column:doc_id;type:varchar(64);index;uniqueIndex:idx_graph_edge"`
	FromID   string `gorm:"column:from_id;type:varchar(255);uniqueIndex:idx_graph_edge"`
	ToID     string `gorm:"column:to_id;type:varchar(255);uniqueIndex:idx_graph_edge"`
	EdgeType string `gorm:"column:edge_type;type:varchar(32);uniqueIndex:idx_graph_edge"`
}

func (GraphEdgeRecord) TableName() string {
	return "graph_edges"
}
