package services

import (
	"path"
	"regexp"
	"strings"

	"github.com/aihub/docqa-go/internal/knowledge"
)

const referenceQueryExpansion = " references bibliography list [25] [30] [35] [40] author title year"

// RetrievalPlan 检索策略
type RetrievalPlan struct {
	SearchText string
	TopK       int
	Wide       bool
}

// PlanRetrieval 统计参考文献数量类问题需要扫描更多片段，并补充检索词
func PlanRetrieval(query string, defaultTopK, wideTopK int) RetrievalPlan {
	lower := strings.ToLower(query)
	if strings.Contains(lower, "how many") && strings.Contains(lower, "ref") {
		return RetrievalPlan{SearchText: query + referenceQueryExpansion, TopK: wideTopK, Wide: true}
	}
	return RetrievalPlan{SearchText: query, TopK: defaultTopK}
}

// AssembledContext 拼接后的上下文及可展示的图片（文件名 → 存储路径）
type AssembledContext struct {
	Text   string
	Images map[string]string
}

// AssembleContext 按检索顺序拼接上下文，不同类型使用不同标签
func AssembleContext(matches []knowledge.RetrievalMatch) AssembledContext {
	var b strings.Builder
	images := make(map[string]string)

	for _, match := range matches {
		meta := match.Metadata
		page := meta.Page
		if page == "" {
			page = "N/A"
		}

		switch meta.Type {
		case string(knowledge.KindImage):
			// 没有文件路径的图片无法展示，直接忽略
			if meta.ImagePath == "" {
				continue
			}
			filename := path.Base(meta.ImagePath)
			images[filename] = meta.ImagePath
			b.WriteString("\n[IMAGE AVAILABLE]: ID=" + filename + " (Description: " + meta.Text + ")\n")
		case string(knowledge.KindTable):
			b.WriteString("\n[TABLE DATA (CSV) - Page " + page + "]:\n" + meta.Text + "\n")
		default:
			b.WriteString("\n[TEXT Page " + page + "]: " + meta.Text + "\n")
		}
	}

	return AssembledContext{Text: b.String(), Images: images}
}

const promptGuidelines = `
--- STRICT GUIDELINES ---
1. **TABLES (Dataframe Style):**
   - If you encounter '[TABLE DATA (CSV)]', convert it into a **Markdown Table**.
   - **SMART FILL:** Many PDFs merge cells. If a cell is empty but clearly belongs to the group above it, **FILL IN the value**. Do not leave it blank.
   - Make it look like a dense Pandas DataFrame.

2. **REFERENCES (Validation):**
   - If asked for a count, **DO NOT** count lines or guess.
   - Scan for the pattern: "[n] Author Name".
   - Find the **HIGHEST VALID NUMBER** matching that pattern.
   - Ignore isolated numbers like "[40]" if they are not citations.

3. **IMAGES:**
   - **Rule:** Do NOT show images for simple text questions.
   - **Trigger:** Only if the user asks (e.g., "Show diagram", "Visuals") or if critical for explanation.
   - Syntax: <<SHOW_IMAGES>>filename.png<</SHOW_IMAGES>>

4. **CITATIONS:**
   - Always end sentences with [Source: Page X] when relevant.
`

// BuildPrompt 组装生成模型的提示词
func BuildPrompt(contextText, query string) string {
	var b strings.Builder
	b.WriteString("You are a precise Research Assistant. Answer using ONLY the context provided.\n\n")
	b.WriteString("Context:\n")
	b.WriteString(contextText)
	b.WriteString("\n\nUser Question: ")
	b.WriteString(query)
	b.WriteString("\n")
	b.WriteString(promptGuidelines)
	return b.String()
}

var showImagesPattern = regexp.MustCompile(`(?s)<<SHOW_IMAGES>>(.*?)<</SHOW_IMAGES>>`)

// ResolveImageTags 解析回答中的第一个图片标记：只保留候选集中存在的文件，
// 并从回答中移除该标记
func ResolveImageTags(answer string, candidates map[string]string) (string, []string) {
	loc := showImagesPattern.FindStringSubmatchIndex(answer)
	if loc == nil {
		return strings.TrimSpace(answer), nil
	}

	block := answer[loc[0]:loc[1]]
	var images []string
	for _, name := range strings.Split(answer[loc[2]:loc[3]], ",") {
		if p, ok := candidates[strings.TrimSpace(name)]; ok {
			images = append(images, p)
		}
	}
	return strings.TrimSpace(strings.ReplaceAll(answer, block, "")), images
}
