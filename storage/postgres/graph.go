package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"contractx/storage/graph"
	"contractx/types"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const batchSize = 200

// GraphRepo 节点和边存两张表，遍历时整图载入内存做 BFS
type GraphRepo struct {
	db *gorm.DB
}

func NewGraphRepo(db *gorm.DB) *GraphRepo {
	return &GraphRepo{db: db}
}

func (r *GraphRepo) UpsertSubgraph(ctx context.Context, documentID string, nodes []types.GraphNode, edges []types.GraphEdge) error {
	nodeRecs, err := toNodeRecords(documentID, nodes)
	if err != nil {
		return err
	}
	edgeRecs := toEdgeRecords(documentID, edges)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(nodeRecs) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "doc_id"}, {Name: "node_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"node_type", "label", "properties", "seq"}),
			}).CreateInBatches(nodeRecs, batchSize).Error
			if err != nil {
				return fmt.Errorf("upsert graph nodes: %w", err)
			}
		}
		if len(edgeRecs) > 0 {
			err := tx.Clauses(clause.OnConflict{DoNothing: true}).
				CreateInBatches(edgeRecs, batchSize).Error
			if err != nil {
				return fmt.Errorf("upsert graph edges: %w", err)
			}
		}
		return nil
	})
}

func (r *GraphRepo) EntityNodes(ctx context.Context, documentID string) ([]types.GraphNode, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&GraphNodeRecord{}).Where("doc_id = ?", documentID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: no graph for document %s", types.ErrNotFound, documentID)
	}
	var recs []GraphNodeRecord
	err := r.db.WithContext(ctx).
		Where("doc_id = ? AND node_type = ?", documentID, string(types.NodeEntity)).
		Order("seq ASC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	return fromNodeRecords(recs)
}

func (r *GraphRepo) CountGraph(ctx context.Context, documentID string) (nodes, edges int, err error) {
	var n, e int64
	if err := r.db.WithContext(ctx).Model(&GraphNodeRecord{}).Where("doc_id = ?", documentID).Count(&n).Error; err != nil {
		return 0, 0, err
	}
	if err := r.db.WithContext(ctx).Model(&GraphEdgeRecord{}).Where("doc_id = ?", documentID).Count(&e).Error; err != nil {
		return 0, 0, err
	}
	return int(n), int(e), nil
}

func (r *GraphRepo) Traverse(ctx context.Context, documentID string, seedNodeIDs []string, maxDepth int) (*types.Subgraph, error) {
	var nodeRecs []GraphNodeRecord
	if err := r.db.WithContext(ctx).Where("doc_id = ?", documentID).Order("seq ASC").Find(&nodeRecs).Error; err != nil {
		return nil, err
	}
	if len(nodeRecs) == 0 {
		return nil, fmt.Errorf("%w: no graph for document %s", types.ErrNotFound, documentID)
	}
	var edgeRecs []GraphEdgeRecord
	if err := r.db.WithContext(ctx).Where("doc_id = ?", documentID).Order("id ASC").Find(&edgeRecs).Error; err != nil {
		return nil, err
	}
	nodes, err := fromNodeRecords(nodeRecs)
	if err != nil {
		return nil, err
	}
	return graph.Traverse(nodes, fromEdgeRecords(edgeRecs), seedNodeIDs, maxDepth), nil
}

func (r *GraphRepo) Delete(ctx context.Context, documentID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("doc_id = ?", documentID).Delete(&GraphEdgeRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("doc_id = ?", documentID).Delete(&GraphNodeRecord{}).Error
	})
}

func toNodeRecords(documentID string, nodes []types.GraphNode) ([]GraphNodeRecord, error) {
	recs := make([]GraphNodeRecord, 0, len(nodes))
	for _, n := range nodes {
		props, err := json.Marshal(n.Properties)
		if err != nil {
			return nil, fmt.Errorf("marshal node %s properties: %w", n.ID, err)
		}
		recs = append(recs, GraphNodeRecord{
			DocID:      documentID,
			NodeID:     n.ID,
			NodeType:   string(n.Type),
			Label:      n.Label,
			Properties: datatypes.JSON(props),
			Seq:        n.Seq,
		})
	}
	return recs, nil
}

func fromNodeRecords(recs []GraphNodeRecord) ([]types.GraphNode, error) {
	nodes := make([]types.GraphNode, 0, len(recs))
	for _, rec := range recs {
		var props map[string]string
		if len(rec.Properties) > 0 {
			if err := json.Unmarshal(rec.Properties, &props); err != nil {
				return nil, fmt.Errorf("unmarshal node %s properties: %w", rec.NodeID, err)
			}
		}
		nodes = append(nodes, types.GraphNode{
			ID:         rec.NodeID,
			DocumentID: rec.DocID,
			Type:       types.NodeType(rec.NodeType),
			Label:      rec.Label,
			Properties: props,
			Seq:        rec.Seq,
		})
	}
	return nodes, nil
}

func toEdgeRecords(documentID string, edges []types.GraphEdge) []GraphEdgeRecord {
	recs := make([]GraphEdgeRecord, 0, len(edges))
	for _, e := range edges {
		recs = append(recs, GraphEdgeRecord{DocID: documentID, FromID: e.From, ToID: e.To, EdgeType: string(e.Type)})
	}
	return recs
}

func fromEdgeRecords(recs []GraphEdgeRecord) []types.GraphEdge {
	edges := make([]types.GraphEdge, 0, len(recs))
	for _, rec := range recs {
		edges = append(edges, types.GraphEdge{DocumentID: rec.DocID, From: rec.FromID, To: rec.ToID, Type: types.EdgeType(rec.EdgeType)})
	}
	return edges
}
