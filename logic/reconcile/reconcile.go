// Package reconcile 把逐页实体合并为文档级规范实体。
//
// 规则与页序强相关：标量字段首个非空值胜出，后续冲突值只记为候选；
// 集合字段按规范化后的字符串去重，保留首次出现的写法。
package reconcile

import (
	"sort"

	"contractx/logic/normalize"
	"contractx/types"
)

// 候选值的字段名
const (
	FieldDocumentType = "document_type"
	FieldBuyerName    = "buyer_name"
	FieldSellerName   = "seller_name"
	FieldContactInfo  = "contact_info"
)

// Entities 永远返回结果，不会失败
func Entities(pages []types.PageExtraction) types.CanonicalEntities {
	ordered := make([]types.PageExtraction, len(pages))
	copy(ordered, pages)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].PageNumber < ordered[j].PageNumber
	})

	var (
		docType    = scalar{field: FieldDocumentType}
		buyer      = scalar{field: FieldBuyerName}
		seller     = scalar{field: FieldSellerName}
		dates      = newSet()
		deadlines  = newSet()
		alerts     = newSet()
		addresses  = newSet()
		obligation = newObligations()
		contacts   = newContacts()
	)

	for _, p := range ordered {
		e := p.Entities
		docType.observe(e.DocumentType)
		buyer.observe(e.BuyerName)
		seller.observe(e.SellerName)
		dates.addAll(e.Dates)
		deadlines.addAll(e.Deadlines)
		alerts.addAll(e.Alerts)
		addresses.addAll(e.Addresses)
		for _, o := range e.Obligations {
			obligation.add(o, p.PageNumber)
		}
		contacts.addAll(e.ContactInfo)
	}

	out := types.CanonicalEntities{
		DocumentType: docType.value,
		BuyerName:    buyer.value,
		SellerName:   seller.value,
		Dates:        dates.items,
		Deadlines:    deadlines.items,
		Alerts:       alerts.items,
		Addresses:    addresses.items,
		Obligations:  obligation.items,
		ContactInfo:  contacts.values,
	}

	candidates := map[string][]string{}
	for _, s := range []*scalar{&docType, &buyer, &seller} {
		if len(s.candidates.items) > 0 {
			candidates[s.field] = s.candidates.items
		}
	}
	if len(contacts.conflicts.items) > 0 {
		candidates[FieldContactInfo] = contacts.conflicts.items
	}
	if len(candidates) > 0 {
		out.Candidates = candidates
	}
	return out
}

// scalar 首个非空值胜出
type scalar struct {
	field      string
	value      string
	key        string
	candidates set
}

func (s *scalar) observe(raw string) {
	v := normalize.Collapse(raw)
	if v == "" {
		return
	}
	k := normalize.Key(v)
	if s.value == "" {
		s.value, s.key = v, k
		return
	}
	if k != s.key {
		if s.candidates.seen == nil {
			s.candidates = newSet()
		}
		s.candidates.add(v)
	}
}

// set 规范化比较、保留首次写法的有序集合
type set struct {
	seen  map[string]bool
	items []string
}

func newSet() set {
	return set{seen: map[string]bool{}, items: []string{}}
}

func (s *set) add(raw string) {
	v := normalize.Collapse(raw)
	if v == "" {
		return
	}
	k := normalize.Key(v)
	if s.seen[k] {
		return
	}
	s.seen[k] = true
	s.items = append(s.items, v)
}

func (s *set) addAll(values []string) {
	for _, v := range values {
		s.add(v)
	}
}

type obligations struct {
	index map[string]int
	items []types.Obligation
}

func newObligations() obligations {
	return obligations{index: map[string]int{}, items: []types.Obligation{}}
}

// add 按 (当事方, 描述) 去重，保留最早页码。义务自带页码时以其为准。
func (o *obligations) add(ob types.Obligation, pageNumber int) {
	party := normalize.Collapse(ob.Party)
	desc := normalize.Collapse(ob.Description)
	if party == "" && desc == "" {
		return
	}
	pg := ob.Page
	if pg <= 0 {
		pg = pageNumber
	}
	k := normalize.Key(party) + "\x1f" + normalize.Key(desc)
	if i, ok := o.index[k]; ok {
		if pg < o.items[i].Page {
			o.items[i].Page = pg
		}
		return
	}
	o.index[k] = len(o.items)
	o.items = append(o.items, types.Obligation{Party: party, Description: desc, Page: pg})
}

type contactInfo struct {
	keys      map[string]bool
	values    map[string]string
	conflicts set
}

func newContacts() contactInfo {
	return contactInfo{keys: map[string]bool{}, values: map[string]string{}, conflicts: newSet()}
}

// addAll 同一渠道首个值胜出。map 本身无序，按渠道名排序后处理以保证可复现。
func (c *contactInfo) addAll(m map[string]string) {
	channels := make([]string, 0, len(m))
	for ch := range m {
		channels = append(channels, ch)
	}
	sort.Strings(channels)

	for _, ch := range channels {
		name := normalize.Collapse(ch)
		val := normalize.Collapse(m[ch])
		if name == "" || val == "" {
			continue
		}
		k := normalize.Key(name)
		if c.keys[k] {
			if existing := c.lookup(k); normalize.Key(existing) != normalize.Key(val) {
				c.conflicts.add(name + ": " + val)
			}
			continue
		}
		c.keys[k] = true
		c.values[name] = val
	}
}

func (c *contactInfo) lookup(key string) string {
	for name, v := range c.values {
		if normalize.Key(name) == key {
			return v
		}
	}
	return ""
}
