package processors

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"contractx/types"

	"github.com/cloudwego/eino/schema"
)

var (
	controlChars = regexp.MustCompile(`[\x00-\x08\x0B-\x0C\x0E-\x1F\x7F]`)
	// 扫描件常见的连续占位字符
	fillerRuns  = regexp.MustCompile(`[甲_.·]{5,}`)
	spaceRuns   = regexp.MustCompile(`[ \t\f\v\x{3000}]+`)
	blankLines  = regexp.MustCompile(`\n{3,}`)
	lineTrailer = regexp.MustCompile(` *\n *`)
)

// CleanText 去掉 NUL、非法 UTF-8 和控制字符，压缩空白，保留换行供模型判断版面
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	text = controlChars.ReplaceAllString(text, "")
	text = fillerRuns.ReplaceAllString(text, " ")
	text = spaceRuns.ReplaceAllString(text, " ")
	text = lineTrailer.ReplaceAllString(text, "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Processor 按页序把解析结果转成抽取输入。空白页保留页码，保证页码从 1 连续。
func Processor(src []*schema.Document) []types.PageInput {
	pages := make([]types.PageInput, 0, len(src))
	for i, doc := range src {
		text := ""
		if doc != nil {
			text = CleanText(doc.Content)
		}
		pages = append(pages, types.PageInput{Number: i + 1, Text: text})
	}
	return pages
}
