package transform

import (
	"fmt"
	"sort"
	"strconv"

	"contractx/logic/normalize"
	"contractx/types"
)

// 实体节点 role 属性的取值
const (
	RoleDocumentType = "document_type"
	RoleBuyer        = "buyer"
	RoleSeller       = "seller"
	RoleParty        = "party"
	RoleDate         = "date"
	RoleDeadline     = "deadline"
	RoleAlert        = "alert"
	RoleAddress      = "address"
	RoleContact      = "contact"
	RoleObligation   = "obligation"
)

type graphBuilder struct {
	docID string
	nodes []types.GraphNode
	edges []types.GraphEdge
	index map[string]bool
}

func (g *graphBuilder) node(id string, typ types.NodeType, label string, props map[string]string) string {
	if g.index[id] {
		return id
	}
	g.index[id] = true
	g.nodes = append(g.nodes, types.GraphNode{
		ID:         id,
		DocumentID: g.docID,
		Type:       typ,
		Label:      label,
		Properties: props,
		Seq:        len(g.nodes),
	})
	return id
}

func (g *graphBuilder) edge(from, to string, typ types.EdgeType) {
	g.edges = append(g.edges, types.GraphEdge{DocumentID: g.docID, From: from, To: to, Type: typ})
}

func (g *graphBuilder) id(parts ...any) string {
	s := g.docID
	for _, p := range parts {
		s += fmt.Sprintf(":%v", p)
	}
	return s
}

// DocumentNodeID 文档子图的根节点
func DocumentNodeID(documentID string) string {
	return documentID + ":document"
}

// BuildGraph 生成以 Document 为根的连通子图，节点 Seq 即创建顺序
func BuildGraph(doc *types.Document) ([]types.GraphNode, []types.GraphEdge) {
	g := &graphBuilder{docID: doc.DocumentID, index: map[string]bool{}}
	root := g.node(DocumentNodeID(doc.DocumentID), types.NodeDocument, doc.DocumentID, map[string]string{
		"document_type": doc.CanonicalEntities.DocumentType,
	})

	pageIDs := make(map[int]string, len(doc.Pages))
	for _, p := range doc.Pages {
		pid := g.node(g.id("page", p.PageNumber), types.NodePage, fmt.Sprintf("Page %d", p.PageNumber), map[string]string{
			"page_number": strconv.Itoa(p.PageNumber),
			"summary":     p.Summary,
		})
		pageIDs[p.PageNumber] = pid
		g.edge(root, pid, types.EdgeHasPage)

		for i, s := range p.Sections {
			sid := g.node(g.id("section", p.PageNumber, i+1), types.NodeSection, s.Heading, map[string]string{
				"heading_id": s.ID,
				"page":       strconv.Itoa(p.PageNumber),
			})
			g.edge(pid, sid, types.EdgeHasSection)
			for j, sh := range s.SubHeadings {
				shid := g.node(g.id("section", p.PageNumber, i+1, j+1), types.NodeSection, sh.Text, map[string]string{
					"heading_id": sh.ID,
					"page":       strconv.Itoa(p.PageNumber),
				})
				g.edge(sid, shid, types.EdgeHasSection)
				for k, c := range sh.Clauses {
					cid := g.node(g.id("clause", p.PageNumber, i+1, j+1, k+1), types.NodeClause, c.Text, map[string]string{
						"clause_id": c.ID,
						"page":      strconv.Itoa(p.PageNumber),
					})
					g.edge(shid, cid, types.EdgeHasClause)
					for m, sc := range c.SubClauses {
						scid := g.node(g.id("clause", p.PageNumber, i+1, j+1, k+1, m+1), types.NodeClause, sc.Text, map[string]string{
							"clause_id": sc.ID,
							"page":      strconv.Itoa(p.PageNumber),
						})
						g.edge(cid, scid, types.EdgeHasClause)
					}
				}
			}
		}

		for i, v := range p.Visuals {
			vid := g.node(g.id("visual", p.PageNumber, i+1), types.NodeVisual, v.Summary, map[string]string{
				"visual_id": v.ID,
				"type":      v.Type,
			})
			g.edge(pid, vid, types.EdgeHasVisual)
		}
	}

	for _, t := range doc.MergedTables {
		tid := g.node(g.id("table", t.TableID), types.NodeTable, t.Title, map[string]string{
			"table_id":   t.TableID,
			"type":       t.Type,
			"total_rows": strconv.Itoa(t.TotalRows),
		})
		g.edge(root, tid, types.EdgeHasTable)
		for _, sp := range t.SourcePages {
			if pid, ok := pageIDs[sp]; ok {
				g.edge(tid, pid, types.EdgeSpansPage)
			}
		}
	}

	addEntities(g, root, doc.CanonicalEntities, pageIDs)
	return g.nodes, g.edges
}

func addEntities(g *graphBuilder, root string, e types.CanonicalEntities, pageIDs map[int]string) {
	entity := func(id, role, value string, extra map[string]string) string {
		props := map[string]string{"role": role, "value": value}
		for k, v := range extra {
			props[k] = v
		}
		nid := g.node(id, types.NodeEntity, value, props)
		g.edge(root, nid, types.EdgeHasEntity)
		return nid
	}

	if e.DocumentType != "" {
		entity(g.id("entity", RoleDocumentType), RoleDocumentType, e.DocumentType, nil)
	}
	parties := map[string]string{}
	var buyer, seller string
	if e.BuyerName != "" {
		buyer = entity(g.id("entity", RoleBuyer), RoleBuyer, e.BuyerName, nil)
		parties[normalize.Key(e.BuyerName)] = buyer
	}
	if e.SellerName != "" {
		seller = entity(g.id("entity", RoleSeller), RoleSeller, e.SellerName, nil)
		if _, ok := parties[normalize.Key(e.SellerName)]; !ok {
			parties[normalize.Key(e.SellerName)] = seller
		}
	}
	if buyer != "" && seller != "" {
		g.edge(buyer, seller, types.EdgeContractsWith)
	}

	sets := []struct {
		role   string
		values []string
	}{
		{RoleDate, e.Dates},
		{RoleDeadline, e.Deadlines},
		{RoleAlert, e.Alerts},
		{RoleAddress, e.Addresses},
	}
	for _, set := range sets {
		for i, v := range set.values {
			entity(g.id("entity", set.role, i+1), set.role, v, nil)
		}
	}

	channels := make([]string, 0, len(e.ContactInfo))
	for ch := range e.ContactInfo {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	for _, ch := range channels {
		entity(g.id("entity", RoleContact, ch), RoleContact, e.ContactInfo[ch], map[string]string{"channel": ch})
	}

	for i, ob := range e.Obligations {
		oid := entity(g.id("entity", RoleObligation, i+1), RoleObligation, ob.Description, map[string]string{
			"party": ob.Party,
			"page":  strconv.Itoa(ob.Page),
		})
		if ob.Party != "" {
			key := normalize.Key(ob.Party)
			pid, ok := parties[key]
			if !ok {
				pid = entity(g.id("entity", RoleParty, len(parties)+1), RoleParty, ob.Party, nil)
				parties[key] = pid
			}
			g.edge(pid, oid, types.EdgeHasObligation)
		}
		if page, ok := pageIDs[ob.Page]; ok {
			g.edge(oid, page, types.EdgeStatedOn)
		}
	}
}
