package knowledge

import (
	"strconv"
)

// SegmentKind 内容片段类型
type SegmentKind string

const (
	KindText    SegmentKind = "text"
	KindTable   SegmentKind = "table"
	KindImage   SegmentKind = "image"
	KindFormula SegmentKind = "formula"
)

// Page 1起始的页码，0表示未知
type Page int

const UnknownPage Page = 0

func (p Page) String() string {
	if p <= UnknownPage {
		return "unknown"
	}
	return strconv.Itoa(int(p))
}

// SegmentBase 各类片段共享的字段
type SegmentBase struct {
	Text string
	Page Page
}

// Segment 抽取结果的统一单元。只有本包内的四种类型实现该接口。
type Segment interface {
	Kind() SegmentKind
	Content() string
	PageNumber() Page
	ImagePath() string
	isSegment()
}

func (b SegmentBase) Content() string   { return b.Text }
func (b SegmentBase) PageNumber() Page  { return b.Page }
func (b SegmentBase) ImagePath() string { return "" }
func (SegmentBase) isSegment()          {}

// TextSegment 正文分块
type TextSegment struct {
	SegmentBase
}

func (TextSegment) Kind() SegmentKind { return KindText }

// TableSegment 表格，Text为带序号标签的CSV
type TableSegment struct {
	SegmentBase
	Rows    int
	Columns int
}

func (TableSegment) Kind() SegmentKind { return KindTable }

// ImageSegment 图片，Text为模型生成的描述
type ImageSegment struct {
	SegmentBase
	Path string
}

func (ImageSegment) Kind() SegmentKind   { return KindImage }
func (s ImageSegment) ImagePath() string { return s.Path }

// FormulaSegment 含数学内容的正文分块
type FormulaSegment struct {
	SegmentBase
}

func (FormulaSegment) Kind() SegmentKind { return KindFormula }

// Metadata 随向量一起存储的元数据
type Metadata struct {
	Text      string `json:"text"`
	Type      string `json:"type"`
	Page      string `json:"page"`
	ImagePath string `json:"image_path"`
}

// MetadataOf 将片段转换为存储元数据
func MetadataOf(seg Segment) Metadata {
	return Metadata{
		Text:      seg.Content(),
		Type:      string(seg.Kind()),
		Page:      seg.PageNumber().String(),
		ImagePath: seg.ImagePath(),
	}
}

// VectorRecord 写入向量库的记录
type VectorRecord struct {
	ID       string
	Vector   []float32
	Metadata Metadata
}

// RetrievalMatch 检索命中结果，不持久化
type RetrievalMatch struct {
	ID       string
	Metadata Metadata
	Score    float64
}

// Result 阶段输出：Value 为（可能降级后的）结果，Issues 为已被吸收的局部失败
type Result[T any] struct {
	Value  T
	Issues []error
}

// Degraded 是否存在被降级处理的失败
func (r Result[T]) Degraded() bool {
	return len(r.Issues) > 0
}
