// Package merge 把逐页检测出的表格候选合并成文档级表格
package merge

import (
	"fmt"
	"sort"

	"contractx/types"
)

// Tables 按页码顺序合并续表。
// 只有某行比所在链的表头更宽时返回 ErrValidation，其余形状问题都补齐处理。
func Tables(pages []types.PageExtraction) ([]types.MergedTable, error) {
	ordered := make([]types.PageExtraction, len(pages))
	copy(ordered, pages)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].PageNumber < ordered[j].PageNumber
	})

	var (
		open   []*chain
		out    []types.MergedTable
		nextID = 1
	)
	emit := func(c *chain) {
		if t, ok := c.close(fmt.Sprintf("table_%d", nextID)); ok {
			out = append(out, t)
			nextID++
		}
	}

	for _, page := range ordered {
		used := make(map[*chain]bool)
		for idx, cand := range page.Tables {
			var avail []*chain
			for _, c := range open {
				if c.lastPage == page.PageNumber-1 && !used[c] {
					avail = append(avail, c)
				}
			}

			var target *chain
			for _, m := range matchers {
				if target = m(cand, avail); target != nil {
					break
				}
			}
			if target == nil {
				target = &chain{}
				open = append(open, target)
			}
			used[target] = true

			if err := target.add(cand, page.PageNumber); err != nil {
				return nil, fmt.Errorf("%w: page %d table %d (%q): %v",
					types.ErrValidation, page.PageNumber, idx+1, cand.Title, err)
			}
		}

		// 本页没有续上的链就此关闭，table_id 按关闭顺序分配
		remaining := open[:0]
		for _, c := range open {
			if c.lastPage < page.PageNumber {
				emit(c)
			} else {
				remaining = append(remaining, c)
			}
		}
		open = remaining
	}

	// 文档结束，剩余的链全部关闭
	for _, c := range open {
		emit(c)
	}
	if out == nil {
		out = []types.MergedTable{}
	}
	return out, nil
}
