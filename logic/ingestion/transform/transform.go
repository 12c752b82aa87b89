package transform

import (
	"strconv"

	"contractx/types"

	"github.com/cloudwego/eino/schema"
)

// eino 文档元数据里存放 chunk 字段的 key
const (
	MetaDocumentID = "doc_id"
	MetaChunkType  = "chunk_type"
	MetaPageNumber = "page_number"
	MetaSourceRef  = "source_ref"
)

// ToSchemaDocuments chunk 转成 eino 文档，交给 eino 索引器写入
func ToSchemaDocuments(chunks []types.Chunk) []*schema.Document {
	docs := make([]*schema.Document, 0, len(chunks))
	for _, c := range chunks {
		page := -1
		if c.PageNumber != nil {
			page = *c.PageNumber
		}
		docs = append(docs, &schema.Document{
			ID:      c.ChunkID,
			Content: c.Content,
			MetaData: map[string]any{
				MetaDocumentID: c.DocumentID,
				MetaChunkType:  string(c.ChunkType),
				MetaPageNumber: int64(page),
				MetaSourceRef:  c.SourceRef,
			},
		})
	}
	return docs
}

// FromSchemaDocument 反向转换，页码 <0 表示文档级 chunk
func FromSchemaDocument(d *schema.Document) types.Chunk {
	c := types.Chunk{ChunkID: d.ID, Content: d.Content}
	if d.MetaData == nil {
		return c
	}
	c.DocumentID, _ = d.MetaData[MetaDocumentID].(string)
	if t, ok := d.MetaData[MetaChunkType].(string); ok {
		c.ChunkType = types.ChunkType(t)
	}
	c.SourceRef, _ = d.MetaData[MetaSourceRef].(string)
	if page, ok := pageOf(d.MetaData[MetaPageNumber]); ok && page >= 0 {
		c.PageNumber = &page
	}
	return c
}

func pageOf(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		return int(x), true
	case string:
		n, err := strconv.Atoi(x)
		return n, err == nil
	}
	return 0, false
}
