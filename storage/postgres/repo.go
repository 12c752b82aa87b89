package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"contractx/storage"
	"contractx/types"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentRepo 封装对 documents 表的所有操作
type DocumentRepo struct {
	db *gorm.DB
}

func NewDocumentRepo(db *gorm.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// Save 文档 ID 不复用，已存在返回 ErrConflict
func (r *DocumentRepo) Save(ctx context.Context, doc *types.Document) error {
	rec, err := toRecord(doc)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rec)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: document %s already exists", types.ErrConflict, doc.DocumentID)
	}
	return nil
}

func (r *DocumentRepo) Load(ctx context.Context, documentID string) (*types.Document, error) {
	var rec DocumentRecord
	err := r.db.WithContext(ctx).
		Where("doc_id = ?", documentID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: document %s", types.ErrNotFound, documentID)
	}
	if err != nil {
		return nil, err
	}
	return fromRecord(&rec)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// containsPattern 子串匹配的 LIKE 模式，用户输入里的通配符按字面匹配
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// List 按买卖方模糊匹配、按类型精确匹配，最新的在前
func (r *DocumentRepo) List(ctx context.Context, filter storage.DocumentFilter) ([]storage.DocumentSummary, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}
	tx := r.db.WithContext(ctx).Model(&DocumentRecord{}).
		Select("doc_id", "document_type", "buyer_name", "seller_name", "page_count", "overall_summary", "created_at")
	if filter.Party != "" {
		pattern := containsPattern(filter.Party)
		tx = tx.Where(`buyer_name ILIKE ? ESCAPE '\' OR seller_name ILIKE ? ESCAPE '\'`, pattern, pattern)
	}
	if filter.DocumentType != "" {
		tx = tx.Where("LOWER(document_type) = LOWER(?)", filter.DocumentType)
	}

	var recs []DocumentRecord
	if err := tx.Order("created_at DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]storage.DocumentSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, storage.DocumentSummary{
			DocumentID:     rec.DocID,
			DocumentType:   rec.DocumentType,
			BuyerName:      rec.BuyerName,
			SellerName:     rec.SellerName,
			PageCount:      rec.PageCount,
			OverallSummary: rec.Summary,
			CreatedAt:      rec.CreatedAt,
		})
	}
	return out, nil
}

func (r *DocumentRepo) Delete(ctx context.Context, documentID string) error {
	return r.db.WithContext(ctx).Where("doc_id = ?", documentID).Delete(&DocumentRecord{}).Error
}

func toRecord(doc *types.Document) (*DocumentRecord, error) {
	pages, err := json.Marshal(doc.Pages)
	if err != nil {
		return nil, fmt.Errorf("marshal pages: %w", err)
	}
	tables, err := json.Marshal(doc.MergedTables)
	if err != nil {
		return nil, fmt.Errorf("marshal merged tables: %w", err)
	}
	entities, err := json.Marshal(doc.CanonicalEntities)
	if err != nil {
		return nil, fmt.Errorf("marshal entities: %w", err)
	}
	e := doc.CanonicalEntities
	return &DocumentRecord{
		DocID:        doc.DocumentID,
		DocumentType: e.DocumentType,
		BuyerName:    e.BuyerName,
		SellerName:   e.SellerName,
		PageCount:    len(doc.Pages),
		Pages:        datatypes.JSON(pages),
		MergedTables: datatypes.JSON(tables),
		Entities:     datatypes.JSON(entities),
		Summary:      doc.OverallSummary,
		CreatedAt:    doc.CreatedAt,
	}, nil
}

func fromRecord(rec *DocumentRecord) (*types.Document, error) {
	doc := &types.Document{
		DocumentID:     rec.DocID,
		OverallSummary: rec.Summary,
		CreatedAt:      rec.CreatedAt.UTC(),
	}
	if err := json.Unmarshal(rec.Pages, &doc.Pages); err != nil {
		return nil, fmt.Errorf("unmarshal pages: %w", err)
	}
	if err := json.Unmarshal(rec.MergedTables, &doc.MergedTables); err != nil {
		return nil, fmt.Errorf("unmarshal merged tables: %w", err)
	}
	if err := json.Unmarshal(rec.Entities, &doc.CanonicalEntities); err != nil {
		return nil, fmt.Errorf("unmarshal entities: %w", err)
	}
	return doc, nil
}
