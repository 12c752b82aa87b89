package transform

import (
	"context"
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	"contractx/types"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocument() *types.Document {
	return &types.Document{
		DocumentID: "doc-1",
		Pages: []types.PageExtraction{
			{
				PageNumber: 1,
				Summary:    "Parties and scope",
				Sections: []types.Section{{
					ID: "1", Heading: "Scope",
					SubHeadings: []types.SubHeading{{
						ID: "1.1", Text: "Deliverables",
						Clauses: []types.Clause{{
							ID: "1.1.a", Text: "Seller delivers widgets",
							SubClauses: []types.SubClause{{ID: "i", Text: "within 30 days"}},
						}},
					}},
				}},
				Visuals: []types.Visual{{ID: "p1_v1", Type: "logo", Summary: "Acme logo"}},
			},
			{PageNumber: 2},
		},
		MergedTables: []types.MergedTable{{
			TableID: "table_1", Title: "Pricing Schedule", Type: "pricing",
			Headers: []string{"Item", "Price"}, Rows: [][]string{{"Widget", "10"}, {"Gadget", "20"}},
			SourcePages: []int{1, 2}, TotalRows: 2, TotalColumns: 2,
		}},
		CanonicalEntities: types.CanonicalEntities{
			DocumentType: "Supply Agreement",
			BuyerName:    "Acme",
			SellerName:   "Globex",
			Dates:        []string{"2024-01-01"},
			Obligations: []types.Obligation{
				{Party: "acme", Description: "Pay invoices", Page: 2},
				{Party: "Initech", Description: "Audit", Page: 1},
			},
			ContactInfo: map[string]string{"phone": "555", "email": "a@acme.test"},
		},
		OverallSummary: "Acme buys widgets from Globex.",
	}
}

func TestBuildChunks(t *testing.T) {
	doc := sampleDocument()
	chunks := BuildChunks(doc)

	byType := map[types.ChunkType][]types.Chunk{}
	for _, c := range chunks {
		assert.Equal(t, "doc-1", c.DocumentID)
		byType[c.ChunkType] = append(byType[c.ChunkType], c)
	}
	require.Len(t, byType[types.ChunkSection], 1)
	require.Len(t, byType[types.ChunkTable], 1)
	require.Len(t, byType[types.ChunkVisual], 1)
	require.Len(t, byType[types.ChunkSummary], 2)

	section := byType[types.ChunkSection][0]
	assert.Equal(t, "1", section.SourceRef)
	assert.Equal(t, 1, *section.PageNumber)
	assert.Contains(t, section.Content, "Section 1: Scope")
	assert.Contains(t, section.Content, "    Clause 1.1.a: Seller delivers widgets")
	assert.Contains(t, section.Content, "      within 30 days")

	table := byType[types.ChunkTable][0]
	assert.Equal(t, "table_1", table.SourceRef)
	assert.Equal(t, "Table 1: Pricing Schedule (pricing)\nHeaders: Item | Price\nRow 1: Widget | 10\nRow 2: Gadget | 20", table.Content)

	docSummary := byType[types.ChunkSummary][1]
	assert.Nil(t, docSummary.PageNumber)
	assert.Contains(t, docSummary.Content, "Buyer: Acme")

	again := BuildChunks(sampleDocument())
	require.Len(t, again, len(chunks))
	for i := range chunks {
		assert.Equal(t, chunks[i].ChunkID, again[i].ChunkID)
	}
}

func TestBuildChunksSkipsEmptyContent(t *testing.T) {
	chunks := BuildChunks(&types.Document{DocumentID: "d", Pages: []types.PageExtraction{{PageNumber: 1}}})
	assert.Empty(t, chunks)
}

func TestBuildGraphConnectedFromRoot(t *testing.T) {
	nodes, edges := BuildGraph(sampleDocument())

	ids := map[string]types.GraphNode{}
	for i, n := range nodes {
		assert.Equal(t, i, n.Seq)
		assert.Equal(t, "doc-1", n.DocumentID)
		ids[n.ID] = n
	}
	require.Len(t, ids, len(nodes))
	assert.Equal(t, types.NodeDocument, nodes[0].Type)

	adj := map[string][]string{}
	for _, e := range edges {
		require.Contains(t, ids, e.From)
		require.Contains(t, ids, e.To)
		adj[e.From] = append(adj[e.From], e.To)
		adj[e.To] = append(adj[e.To], e.From)
	}
	seen := map[string]bool{nodes[0].ID: true}
	queue := []string{nodes[0].ID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range adj[cur] {
			if !seen[n] {
				seen[n] = true
				queue = append(queue, n)
			}
		}
	}
	assert.Len(t, seen, len(nodes))
}

func TestBuildGraphRelationships(t *testing.T) {
	_, edges := BuildGraph(sampleDocument())
	has := func(from, to string, typ types.EdgeType) bool {
		for _, e := range edges {
			if e.From == from && e.To == to && e.Type == typ {
				return true
			}
		}
		return false
	}
	assert.True(t, has("doc-1:entity:buyer", "doc-1:entity:seller", types.EdgeContractsWith))
	// 义务方 "acme" 归一化后匹配买方
	assert.True(t, has("doc-1:entity:buyer", "doc-1:entity:obligation:1", types.EdgeHasObligation))
	assert.True(t, has("doc-1:entity:obligation:1", "doc-1:page:2", types.EdgeStatedOn))
	assert.True(t, has("doc-1:entity:party:3", "doc-1:entity:obligation:2", types.EdgeHasObligation))
	assert.True(t, has("doc-1:table:table_1", "doc-1:page:2", types.EdgeSpansPage))
	assert.True(t, has("doc-1:section:1:1:1", "doc-1:clause:1:1:1:1", types.EdgeHasClause))
}

func TestSchemaDocumentRoundTrip(t *testing.T) {
	chunks := BuildChunks(sampleDocument())
	docs := ToSchemaDocuments(chunks)
	require.Len(t, docs, len(chunks))
	for i, d := range docs {
		assert.Equal(t, chunks[i], FromSchemaDocument(d))
	}
}

type nanEmbedder struct{}

func (nanEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{1, math.NaN(), math.Inf(1)}
	}
	return out, nil
}

func TestCleanEmbedderAndDetectDimension(t *testing.T) {
	e := NewCleanEmbedder(nanEmbedder{})
	vecs, err := e.EmbedStrings(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 0}, vecs[0])

	dim, err := DetectDimension(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, 3, dim)
}

func TestRenderSectionSkipsEmptyText(t *testing.T) {
	out := RenderSection(types.Section{ID: "2", Heading: "Payment", SubHeadings: []types.SubHeading{{Clauses: []types.Clause{{ID: "x"}}}}})
	assert.Equal(t, "Section 2: Payment\n", out)
	assert.False(t, strings.Contains(out, "Clause x"))
}

func TestOversizedTableIsSplitByRows(t *testing.T) {
	doc := sampleDocument()
	rows := make([][]string, 3000)
	for i := range rows {
		rows[i] = []string{strings.Repeat("widget", 5), "10.00"}
	}
	doc.MergedTables[0].Rows = rows
	doc.MergedTables[0].TotalRows = len(rows)

	var tables []types.Chunk
	ids := map[string]bool{}
	for _, c := range BuildChunks(doc) {
		assert.LessOrEqual(t, len(c.Content), MaxChunkBytes)
		ids[c.ChunkID] = true
		if c.ChunkType == types.ChunkTable {
			tables = append(tables, c)
		}
	}
	require.Greater(t, len(tables), 1)

	rowLines := 0
	for _, c := range tables {
		assert.Equal(t, "table_1", c.SourceRef)
		assert.True(t, strings.HasPrefix(c.Content, "Table 1: Pricing Schedule (pricing)\nHeaders: Item | Price\n"))
		rowLines += strings.Count(c.Content, "\nRow ")
	}
	assert.Equal(t, 3000, rowLines)
	assert.Contains(t, tables[len(tables)-1].Content, "Row 3000: ")
	assert.Len(t, ids, len(BuildChunks(doc)))

	// 小表不切
	assert.Len(t, RenderTableParts(1, sampleDocument().MergedTables[0], MaxChunkBytes), 1)
}

func TestOversizedSectionIsTruncatedOnRuneBoundary(t *testing.T) {
	doc := sampleDocument()
	doc.Pages[0].Sections[0].SubHeadings[0].Clauses[0].Text = strings.Repeat("买方应按期付款", 5000)

	for _, c := range BuildChunks(doc) {
		assert.LessOrEqual(t, len(c.Content), MaxChunkBytes)
		assert.True(t, utf8.ValidString(c.Content))
	}
	assert.Equal(t, "ab", truncateBytes("ab", 5))
	assert.Equal(t, "a", truncateBytes("a买", 3))
}
