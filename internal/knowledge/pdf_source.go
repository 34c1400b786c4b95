package knowledge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"os"
	"strings"

	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/core"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
)

// PageText 单页原始文本。Err 非空表示该页抽取失败
type PageText struct {
	Number int // 1起始
	Text   string
	Err    error
}

// RawTable 检测到的表格（按行、列组织的单元格文本）
type RawTable struct {
	Page int
	Rows [][]string
}

// RawImage 页面内嵌图片的原始数据
type RawImage struct {
	Page  int // 1起始
	Index int // 页内序号，0起始
	Data  []byte
	Ext   string
}

// PageTextSource 按页提供文本
type PageTextSource interface {
	PageTexts(ctx context.Context, pdf []byte) ([]PageText, error)
}

// TableDetector 对落盘的PDF执行表格检测
type TableDetector interface {
	DetectTables(ctx context.Context, path string) ([]RawTable, error)
}

// ImageSource 枚举页面内嵌图片
type ImageSource interface {
	Images(ctx context.Context, pdf []byte) ([]RawImage, error)
}

// SetPDFLicenseKey 激活unipdf计量许可证。未激活时文本与表格抽取会逐页失败
func SetPDFLicenseKey(apiKey string) error {
	if strings.TrimSpace(apiKey) == "" {
		return errors.New("unidoc license key is empty")
	}
	if err := license.SetMeteredKey(apiKey); err != nil {
		return fmt.Errorf("activate unidoc license: %w", err)
	}
	return nil
}

// UniPDFSource 基于unipdf的文本、表格、图片抽取实现
type UniPDFSource struct{}

func NewUniPDFSource() *UniPDFSource {
	return &UniPDFSource{}
}

func openPdfReader(rs io.ReadSeeker) (*model.PdfReader, error) {
	pdfReader, err := model.NewPdfReader(rs)
	if err != nil {
		return nil, fmt.Errorf("解析PDF失败: %w", err)
	}

	encrypted, err := pdfReader.IsEncrypted()
	if err != nil {
		return nil, fmt.Errorf("检查PDF加密状态失败: %w", err)
	}
	if encrypted {
		// 仅支持空口令的加密文档
		ok, err := pdfReader.Decrypt([]byte(""))
		if err != nil || !ok {
			return nil, fmt.Errorf("PDF已加密，无法解密")
		}
	}
	return pdfReader, nil
}

// PageTexts 逐页抽取文本，单页失败记录在 PageText.Err 中
func (s *UniPDFSource) PageTexts(ctx context.Context, pdf []byte) ([]PageText, error) {
	pdfReader, err := openPdfReader(bytes.NewReader(pdf))
	if err != nil {
		return nil, err
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return nil, fmt.Errorf("获取PDF页数失败: %w", err)
	}

	pages := make([]PageText, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := extractPageText(pdfReader, i)
		pages = append(pages, PageText{Number: i, Text: text, Err: err})
	}
	return pages, nil
}

func extractPageText(pdfReader *model.PdfReader, pageNum int) (string, error) {
	page, err := pdfReader.GetPage(pageNum)
	if err != nil {
		return "", fmt.Errorf("读取第%d页失败: %w", pageNum, err)
	}
	ex, err := extractor.New(page)
	if err != nil {
		return "", fmt.Errorf("创建第%d页抽取器失败: %w", pageNum, err)
	}
	text, err := ex.ExtractText()
	if err != nil {
		return "", fmt.Errorf("抽取第%d页文本失败: %w", pageNum, err)
	}
	return text, nil
}

// DetectTables 使用unipdf的页面表格识别（基于单元格边界与文本网格）
func (s *UniPDFSource) DetectTables(ctx context.Context, path string) ([]RawTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pdfReader, err := openPdfReader(f)
	if err != nil {
		return nil, err
	}
	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return nil, fmt.Errorf("获取PDF页数失败: %w", err)
	}

	var tables []RawTable
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := pdfReader.GetPage(i)
		if err != nil {
			return nil, fmt.Errorf("读取第%d页失败: %w", i, err)
		}
		ex, err := extractor.New(page)
		if err != nil {
			return nil, fmt.Errorf("创建第%d页抽取器失败: %w", i, err)
		}
		pageText, _, _, err := ex.ExtractPageText()
		if err != nil {
			return nil, fmt.Errorf("抽取第%d页文本失败: %w", i, err)
		}

		for _, table := range pageText.Tables() {
			if rows := tableRows(table); len(rows) > 0 {
				tables = append(tables, RawTable{Page: i, Rows: rows})
			}
		}
	}
	return tables, nil
}

// tableRows 按行读取单元格文本
func tableRows(table extractor.TextTable) [][]string {
	rows := make([][]string, 0, len(table.Cells))
	for _, row := range table.Cells {
		cells := make([]string, len(row))
		for x, cell := range row {
			cells[x] = strings.TrimSpace(cell.Text)
		}
		rows = append(rows, cells)
	}
	return rows
}

// Images 遍历每页资源中的图片XObject。JPEG直接保留原始编码，其他格式解码后转为PNG。
func (s *UniPDFSource) Images(ctx context.Context, pdf []byte) ([]RawImage, error) {
	pdfReader, err := openPdfReader(bytes.NewReader(pdf))
	if err != nil {
		return nil, err
	}
	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return nil, fmt.Errorf("获取PDF页数失败: %w", err)
	}

	var images []RawImage
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := pdfReader.GetPage(i)
		if err != nil || page.Resources == nil {
			continue
		}
		xobjects, ok := core.GetDict(page.Resources.XObject)
		if !ok {
			continue
		}

		index := 0
		for _, name := range xobjects.Keys() {
			stream, xtype := page.Resources.GetXObjectByName(name)
			if stream == nil || xtype != model.XObjectTypeImage {
				continue
			}
			data, ext, err := encodeXObjectImage(stream)
			if err == nil {
				images = append(images, RawImage{Page: i, Index: index, Data: data, Ext: ext})
			}
			index++
		}
	}
	return images, nil
}

func encodeXObjectImage(stream *core.PdfObjectStream) ([]byte, string, error) {
	ximg, err := model.NewXObjectImageFromStream(stream)
	if err != nil {
		return nil, "", err
	}
	if _, isJPEG := ximg.Filter.(*core.DCTEncoder); isJPEG {
		return stream.Stream, "jpeg", nil
	}

	img, err := ximg.ToImage()
	if err != nil {
		return nil, "", err
	}
	goImg, err := img.ToGoImage()
	if err != nil {
		return nil, "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, goImg); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "png", nil
}
