package transform

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"contractx/types"

	"github.com/google/uuid"
)

// MaxChunkBytes 单个 chunk 内容的字节上限，Milvus content 字段最长 65535 字节
const MaxChunkBytes = 60000

// ChunkID 由文档、类型、来源和序号生成稳定 ID，重复索引同一文档得到相同的 chunk_id
func ChunkID(documentID string, typ types.ChunkType, sourceRef string, ordinal int) string {
	name := strings.Join([]string{documentID, string(typ), sourceRef, strconv.Itoa(ordinal)}, "|")
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// BuildChunks 把定稿后的文档切成向量索引单元：
// 每页每个一级章节一块，每张合并表一块，每个图示一块，每页摘要一块，外加一块文档级摘要
func BuildChunks(doc *types.Document) []types.Chunk {
	var chunks []types.Chunk
	ordinal := 0
	add := func(typ types.ChunkType, page *int, ref, content string) {
		if strings.TrimSpace(content) == "" {
			return
		}
		ordinal++
		chunks = append(chunks, types.Chunk{
			ChunkID:    ChunkID(doc.DocumentID, typ, ref, ordinal),
			DocumentID: doc.DocumentID,
			Content:    strings.TrimRight(truncateBytes(content, MaxChunkBytes), "\n"),
			ChunkType:  typ,
			PageNumber: page,
			SourceRef:  ref,
		})
	}

	for _, p := range doc.Pages {
		page := p.PageNumber
		for i, s := range p.Sections {
			ref := s.ID
			if ref == "" {
				ref = fmt.Sprintf("p%d_s%d", page, i+1)
			}
			add(types.ChunkSection, intPtr(page), ref, RenderSection(s))
		}
		for _, v := range p.Visuals {
			add(types.ChunkVisual, intPtr(page), v.ID, renderVisual(v, page))
		}
		if p.Summary != "" {
			add(types.ChunkSummary, intPtr(page), fmt.Sprintf("page_%d", page), fmt.Sprintf("Page %d Summary: %s", page, p.Summary))
		}
	}

	for i, t := range doc.MergedTables {
		var page *int
		if len(t.SourcePages) > 0 {
			page = intPtr(t.SourcePages[0])
		}
		// 超长的表按行切成多块，共用同一个 source_ref
		for _, part := range RenderTableParts(i+1, t, MaxChunkBytes) {
			add(types.ChunkTable, page, t.TableID, part)
		}
	}

	add(types.ChunkSummary, nil, doc.DocumentID, renderDocumentSummary(doc))
	return chunks
}

// RenderSection 章节树按缩进展开成文本
func RenderSection(s types.Section) string {
	var b strings.Builder
	if s.Heading != "" || s.ID != "" {
		fmt.Fprintf(&b, "Section %s: %s\n", s.ID, s.Heading)
	}
	for _, sh := range s.SubHeadings {
		if sh.Text != "" {
			fmt.Fprintf(&b, "  %s\n", sh.Text)
		}
		for _, c := range sh.Clauses {
			if c.Text != "" {
				fmt.Fprintf(&b, "    Clause %s: %s\n", c.ID, c.Text)
			}
			for _, sc := range c.SubClauses {
				if sc.Text != "" {
					fmt.Fprintf(&b, "      %s\n", sc.Text)
				}
			}
		}
	}
	return b.String()
}

func RenderTable(n int, t types.MergedTable) string {
	return RenderTableParts(n, t, 0)[0]
}

// RenderTableParts 按行切分表格文本，每块都带标题和表头，行号保持全表编号。
// maxBytes <= 0 时不切分。
func RenderTableParts(n int, t types.MergedTable, maxBytes int) []string {
	title := t.Title
	if title == "" {
		title = "Untitled"
	}
	typ := t.Type
	if typ == "" {
		typ = "unknown"
	}
	head := fmt.Sprintf("Table %d: %s (%s)\nHeaders: %s\n", n, title, typ, strings.Join(t.Headers, " | "))
	note := ""
	if t.HasMergedCells {
		note = "Note: Table has merged cells\n"
	}
	if maxBytes > 0 {
		head = truncateBytes(head, maxBytes/4)
	}

	var (
		parts []string
		b     strings.Builder
		rows  int
	)
	b.WriteString(head)
	for i, row := range t.Rows {
		line := fmt.Sprintf("Row %d: %s\n", i+1, strings.Join(row, " | "))
		if maxBytes > 0 {
			line = truncateBytes(line, maxBytes-len(head)-len(note))
			if rows > 0 && b.Len()+len(line)+len(note) > maxBytes {
				b.WriteString(note)
				parts = append(parts, b.String())
				b.Reset()
				b.WriteString(head)
				rows = 0
			}
		}
		b.WriteString(line)
		rows++
	}
	b.WriteString(note)
	return append(parts, b.String())
}

// truncateBytes 按字节截断，不切断多字节字符
func truncateBytes(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func renderVisual(v types.Visual, page int) string {
	typ := v.Type
	if typ == "" {
		typ = "unknown"
	}
	s := fmt.Sprintf("Visual: %s on page %d\n", typ, page)
	if v.Summary != "" {
		s += "Summary: " + v.Summary + "\n"
	}
	return s
}

func renderDocumentSummary(doc *types.Document) string {
	e := doc.CanonicalEntities
	var b strings.Builder
	if doc.OverallSummary != "" {
		fmt.Fprintf(&b, "Document Summary: %s\n", doc.OverallSummary)
	}
	if e.DocumentType != "" {
		fmt.Fprintf(&b, "Document Type: %s\n", e.DocumentType)
	}
	if e.BuyerName != "" {
		fmt.Fprintf(&b, "Buyer: %s\n", e.BuyerName)
	}
	if e.SellerName != "" {
		fmt.Fprintf(&b, "Seller: %s\n", e.SellerName)
	}
	if len(e.Dates) > 0 {
		fmt.Fprintf(&b, "Dates: %s\n", strings.Join(e.Dates, ", "))
	}
	if len(e.Deadlines) > 0 {
		fmt.Fprintf(&b, "Deadlines: %s\n", strings.Join(e.Deadlines, ", "))
	}
	if len(e.Alerts) > 0 {
		fmt.Fprintf(&b, "Alerts: %s\n", strings.Join(e.Alerts, ", "))
	}
	return b.String()
}

func intPtr(n int) *int { return &n }
