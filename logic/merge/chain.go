package merge

import (
	"fmt"

	"contractx/logic/normalize"
	"contractx/types"
)

// chain 一张跨页表格的续表链
type chain struct {
	title     string
	typ       string
	headers   []string
	headerKey string
	width     int // 0 表示还没见过表头
	rows      [][]string
	pages     []int
	lastPage  int
	continues bool // 链上最后一个候选表是否标记了 continues_to_next_page
	merged    bool
}

func (c *chain) add(cand types.TableCandidate, page int) error {
	if len(c.headers) == 0 {
		if key := normalize.JoinKey(cand.Headers); key != "" {
			for i, row := range c.rows {
				if len(row) > len(cand.Headers) {
					return fmt.Errorf("row %d has %d cells, header width is %d", i+1, len(row), len(cand.Headers))
				}
			}
			c.headers = append([]string(nil), cand.Headers...)
			c.headerKey = key
			c.width = len(cand.Headers)
		}
	}

	for i, row := range cand.Rows {
		if c.width > 0 && len(row) > c.width {
			return fmt.Errorf("row %d has %d cells, header width is %d", i+1, len(row), c.width)
		}
		c.rows = append(c.rows, append([]string(nil), row...))
	}
	if len(cand.Rows) > 0 {
		c.pages = append(c.pages, page)
	}

	if c.title == "" {
		c.title = normalize.Collapse(cand.Title)
	}
	if c.typ == "" {
		c.typ = normalize.Collapse(cand.Type)
	}
	c.merged = c.merged || cand.HasMergedCells
	c.continues = cand.ContinuesToNextPage
	c.lastPage = page
	return nil
}

// close 输出 MergedTable，短行右侧补空串。没有行的链返回 false。
func (c *chain) close(tableID string) (types.MergedTable, bool) {
	if len(c.rows) == 0 {
		return types.MergedTable{}, false
	}
	width := c.width
	if width == 0 {
		for _, row := range c.rows {
			width = max(width, len(row))
		}
	}
	rows := make([][]string, len(c.rows))
	for i, row := range c.rows {
		padded := make([]string, width)
		copy(padded, row)
		rows[i] = padded
	}
	headers := c.headers
	if headers == nil {
		headers = []string{}
	}
	return types.MergedTable{
		TableID:        tableID,
		Title:          c.title,
		Type:           c.typ,
		Headers:        headers,
		Rows:           rows,
		HasMergedCells: c.merged,
		SourcePages:    c.pages,
		TotalRows:      len(rows),
		TotalColumns:   width,
	}, true
}
