// Package normalize 提供表头和实体比较用的规范化函数
package normalize

import (
	"strings"

	"golang.org/x/text/cases"
)

// Collapse 去掉首尾空白并把连续空白压成一个空格
func Collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Key 比较用的键：空白折叠 + 大小写折叠。
// cases.Caser 有状态，不能跨 goroutine 共享，所以每次新建。
func Key(s string) string {
	c := Collapse(s)
	if c == "" {
		return ""
	}
	return cases.Fold().String(c)
}

// JoinKey 把一组字符串规范化后拼成一个签名，全部为空时返回 ""
func JoinKey(parts []string) string {
	keys := make([]string, len(parts))
	empty := true
	for i, p := range parts {
		keys[i] = Key(p)
		if keys[i] != "" {
			empty = false
		}
	}
	if empty {
		return ""
	}
	return strings.Join(keys, "\x1f")
}
