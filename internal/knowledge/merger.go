package knowledge

// MergeSegments 合并各抽取器输出：图片、表格在前，正文与公式在后。
// 顺序只影响记录ID中的序号，与检索结果无关。
func MergeSegments(images, tables, texts []Segment) []Segment {
	merged := make([]Segment, 0, len(images)+len(tables)+len(texts))
	for _, group := range [][]Segment{images, tables, texts} {
		for _, seg := range group {
			if seg != nil {
				merged = append(merged, seg)
			}
		}
	}
	return merged
}
