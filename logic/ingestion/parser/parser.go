// Package parser 把抽取模型返回的 JSON 解析成 PageExtraction
package parser

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"contractx/types"
)

// 模型返回的表格单元格可能是数字或 null，先按 any 接住再转成字符串
type rawTable struct {
	TableID                   string  `json:"table_id"`
	Title                     string  `json:"title"`
	Type                      string  `json:"type"`
	Headers                   []any   `json:"headers"`
	Rows                      [][]any `json:"rows"`
	HasMergedCells            bool    `json:"has_merged_cells"`
	ContinuesToNextPage       bool    `json:"continues_to_next_page"`
	ContinuedFromPreviousPage bool    `json:"continued_from_previous_page"`
}

type rawPage struct {
	Summary  string          `json:"summary"`
	Sections []types.Section `json:"sections"`
	Tables   []rawTable      `json:"tables"`
	Entities types.EntityBag `json:"entities"`
	Visuals  []types.Visual  `json:"visuals"`
}

// ParsePage 去掉 ``` 围栏，截取最外层的 JSON 对象再解码。解析失败返回 ErrInvalidContent。
func ParsePage(raw string, pageNumber int) (*types.PageExtraction, error) {
	body := StripFence(raw)
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("%w: no json object in response", types.ErrInvalidContent)
	}
	body = body[start : end+1]

	var rp rawPage
	if err := json.Unmarshal([]byte(body), &rp); err != nil {
		return nil, fmt.Errorf("%w: json unmarshal failed: %v", types.ErrInvalidContent, err)
	}

	page := &types.PageExtraction{
		PageNumber: pageNumber,
		Summary:    strings.TrimSpace(rp.Summary),
		Sections:   rp.Sections,
		Entities:   rp.Entities,
		Visuals:    rp.Visuals,
	}
	for i, t := range rp.Tables {
		id := t.TableID
		if id == "" {
			id = fmt.Sprintf("p%d_t%d", pageNumber, i+1)
		}
		rows := make([][]string, 0, len(t.Rows))
		for _, r := range t.Rows {
			rows = append(rows, cells(r))
		}
		page.Tables = append(page.Tables, types.TableCandidate{
			TableID:                   id,
			Title:                     t.Title,
			Type:                      t.Type,
			Headers:                   cells(t.Headers),
			Rows:                      rows,
			HasMergedCells:            t.HasMergedCells,
			ContinuesToNextPage:       t.ContinuesToNextPage,
			ContinuedFromPreviousPage: t.ContinuedFromPreviousPage,
		})
	}
	for i := range page.Visuals {
		if page.Visuals[i].ID == "" {
			page.Visuals[i].ID = fmt.Sprintf("p%d_v%d", pageNumber, i+1)
		}
	}
	for i := range page.Entities.Obligations {
		if page.Entities.Obligations[i].Page == 0 {
			page.Entities.Obligations[i].Page = pageNumber
		}
	}
	return page, nil
}

// StripFence 去掉模型常带的 markdown 代码围栏
func StripFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func cells(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		switch x := v.(type) {
		case nil:
			out[i] = ""
		case string:
			out[i] = x
		case float64:
			out[i] = strconv.FormatFloat(x, 'f', -1, 64)
		case bool:
			out[i] = strconv.FormatBool(x)
		default:
			b, _ := json.Marshal(x)
			out[i] = string(b)
		}
	}
	return out
}
