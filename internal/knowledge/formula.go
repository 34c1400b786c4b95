package knowledge

import (
	"regexp"
	"strings"

	"github.com/aihub/docqa-go/internal/metrics"
)

const formulaPrefix = "Mathematical Context/Formula:\n"

// 行内 $...$、显示公式 \[...\]、equation 环境以及常见数学符号
var formulaPattern = regexp.MustCompile(`(?s)(\$[^$]+\$|\\\[.*?\\\]|\\begin\{equation\}.*?\\end\{equation\}|[∑∫∂√∆])`)

// ClassifyFormulas 将含数学内容的正文片段改标为公式片段并加前缀。
// 非正文片段原样保留，nil 条目被丢弃。
func ClassifyFormulas(segments []Segment) []Segment {
	out := make([]Segment, 0, len(segments))
	formulas := 0
	for _, seg := range segments {
		if seg == nil {
			continue
		}
		text, ok := seg.(TextSegment)
		if !ok || !looksLikeFormula(text.Text) {
			out = append(out, seg)
			continue
		}

		content := text.Text
		if !strings.Contains(content, "Mathematical Context") {
			content = formulaPrefix + content
		}
		out = append(out, FormulaSegment{SegmentBase{Text: content, Page: text.Page}})
		formulas++
	}

	metrics.SegmentsExtracted.WithLabelValues(string(KindFormula)).Add(float64(formulas))
	return out
}

func looksLikeFormula(text string) bool {
	if text == "" {
		return false
	}
	return formulaPattern.MatchString(text) || strings.Contains(strings.ToLower(text), "equation")
}
