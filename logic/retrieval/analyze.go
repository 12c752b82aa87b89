package retrieval

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"contractx/logic/normalize"
	"contractx/types"
)

// 问题里最多取多少个检索词
const maxTerms = 10

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "was": true, "were": true, "what": true,
	"which": true, "who": true, "whom": true, "when": true, "where": true, "why": true, "how": true,
	"does": true, "did": true, "this": true, "that": true, "these": true, "those": true, "with": true,
	"from": true, "into": true, "about": true, "there": true, "their": true, "they": true, "them": true,
	"has": true, "have": true, "had": true, "any": true, "all": true, "can": true, "could": true,
	"should": true, "would": true, "will": true, "shall": true, "may": true, "might": true, "must": true,
	"not": true, "but": true, "our": true, "your": true, "you": true, "its": true, "his": true, "her": true,
	"contract": true, "document": true, "please": true, "tell": true, "show": true, "list": true,
}

// ExtractTerms 问题分词：大小写折叠，去停用词，ASCII 词长度需大于 2，按出现顺序去重
func ExtractTerms(question string) []string {
	tokens := strings.FieldsFunc(normalize.Key(question), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := map[string]bool{}
	var terms []string
	for _, tok := range tokens {
		if seen[tok] || stopwords[tok] || !longEnough(tok) {
			continue
		}
		seen[tok] = true
		terms = append(terms, tok)
		if len(terms) == maxTerms {
			break
		}
	}
	return terms
}

// 中文等非 ASCII 词两个字就有意义
func longEnough(tok string) bool {
	n := utf8.RuneCountInString(tok)
	for _, r := range tok {
		if r > unicode.MaxASCII {
			return n >= 2
		}
	}
	return n > 2
}

// MatchSeeds 实体值包含某个检索词，或问题里直接出现了实体值，即为种子；按 Seq 顺序返回
func MatchSeeds(question string, terms []string, entities []types.GraphNode) []string {
	q := normalize.Key(question)
	var seeds []string
	for _, n := range entities {
		value := n.Properties["value"]
		if value == "" {
			value = n.Label
		}
		v := normalize.Key(value)
		if v == "" {
			continue
		}
		if strings.Contains(q, v) || containsAny(v, terms) {
			seeds = append(seeds, n.ID)
		}
	}
	return seeds
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
