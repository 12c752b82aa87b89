package merge

import (
	"contractx/logic/normalize"
	"contractx/types"
)

// matcher 在可续接的链里找当前候选表的归属，找不到返回 nil。
// open 只包含上一页还在延续、本页尚未被占用的链，按创建顺序排列。
type matcher func(cand types.TableCandidate, open []*chain) *chain

// 按优先级依次尝试：先看上游提示，再看表头签名
var matchers = []matcher{
	byHint,
	bySignature,
}

// byHint 候选表声明了 continued_from_previous_page。
// 多条链可选时依次取：声明续表且表头一致的，声明续表的，表头一致的，最近开启的链。
func byHint(cand types.TableCandidate, open []*chain) *chain {
	if !cand.ContinuedFromPreviousPage || len(open) == 0 {
		return nil
	}
	key := normalize.JoinKey(cand.Headers)
	sameHeader := func(c *chain) bool { return key != "" && c.headerKey == key }

	for _, accept := range []func(*chain) bool{
		func(c *chain) bool { return c.continues && sameHeader(c) },
		func(c *chain) bool { return c.continues },
		sameHeader,
	} {
		for _, c := range open {
			if accept(c) {
				return c
			}
		}
	}
	return open[len(open)-1]
}

// bySignature 提示缺失或错误时的兜底：表头一致且上一页的链声明了续表
func bySignature(cand types.TableCandidate, open []*chain) *chain {
	key := normalize.JoinKey(cand.Headers)
	if key == "" {
		return nil
	}
	for _, c := range open {
		if c.continues && c.headerKey == key {
			return c
		}
	}
	return nil
}
