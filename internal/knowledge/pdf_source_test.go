package knowledge

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unidoc/unipdf/v3/extractor"
)

// buildPDF 按对象顺序拼装PDF并生成正确的交叉引用表
func buildPDF(t *testing.T, objects [][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, body := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n", i+1)
		buf.Write(body)
		buf.WriteString("\nendobj\n")
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func streamObject(dict string, data []byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "<< %s /Length %d >>\nstream\n", dict, len(data))
	buf.Write(data)
	buf.WriteString("\nendstream")
	return buf.Bytes()
}

func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for x := 0; x < 2; x++ {
		for y := 0; y < 2; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

// samplePDF 两页文档：第1页含正文与三个图片XObject（JPEG、缺少宽度的损坏图片、未压缩RGB），
// 第2页只含一个未压缩RGB图片
func samplePDF(t *testing.T) (pdf, jpegData []byte) {
	t.Helper()
	jpegData = testJPEG(t)
	rgb := []byte{255, 0, 0, 0, 255, 0, 0, 0, 255, 255, 255, 255}
	content := []byte("BT /F1 12 Tf 72 720 Td (Attention is all you need. Attention is all you need.) Tj ET")

	objects := [][]byte{
		[]byte("<< /Type /Catalog /Pages 2 0 R >>"),
		[]byte("<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 2 >>"),
		[]byte("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] " +
			"/Resources << /Font << /F1 5 0 R >> /XObject << /Im0 7 0 R /Im1 8 0 R /Im2 9 0 R >> >> " +
			"/Contents 6 0 R >>"),
		[]byte("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] " +
			"/Resources << /XObject << /Im0 9 0 R >> >> >>"),
		[]byte("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>"),
		streamObject("", content),
		streamObject("/Type /XObject /Subtype /Image /Width 2 /Height 2 /ColorSpace /DeviceRGB "+
			"/BitsPerComponent 8 /Filter /DCTDecode", jpegData),
		streamObject("/Type /XObject /Subtype /Image /Height 2 /ColorSpace /DeviceRGB /BitsPerComponent 8", rgb),
		streamObject("/Type /XObject /Subtype /Image /Width 2 /Height 2 /ColorSpace /DeviceRGB /BitsPerComponent 8", rgb),
	}
	return buildPDF(t, objects), jpegData
}

func TestUniPDFSource_Images(t *testing.T) {
	pdf, jpegData := samplePDF(t)

	images, err := NewUniPDFSource().Images(context.Background(), pdf)
	require.NoError(t, err)
	require.Len(t, images, 3)

	// JPEG保留原始编码
	assert.Equal(t, 1, images[0].Page)
	assert.Equal(t, 0, images[0].Index)
	assert.Equal(t, "jpeg", images[0].Ext)
	assert.Equal(t, jpegData, images[0].Data)

	// 损坏的图片被跳过，但仍占用页内序号
	assert.Equal(t, 1, images[1].Page)
	assert.Equal(t, 2, images[1].Index)
	assert.Equal(t, "png", images[1].Ext)
	decoded, err := png.Decode(bytes.NewReader(images[1].Data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 2), decoded.Bounds())

	assert.Equal(t, 2, images[2].Page)
	assert.Equal(t, 0, images[2].Index)
	assert.Equal(t, "png", images[2].Ext)
}

func TestUniPDFSource_PageTexts(t *testing.T) {
	pdf, _ := samplePDF(t)

	pages, err := NewUniPDFSource().PageTexts(context.Background(), pdf)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, 2, pages[1].Number)

	// 未激活许可证时每页都带错误而不是静默返回空文本
	if pages[0].Err != nil {
		assert.Empty(t, pages[0].Text)
		assert.Contains(t, pages[0].Err.Error(), "第1页")
		return
	}
	assert.Contains(t, pages[0].Text, "Attention is all you need")
}

func TestUniPDFSource_PageTextsHonoursCancellation(t *testing.T) {
	pdf, _ := samplePDF(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewUniPDFSource().PageTexts(ctx, pdf)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUniPDFSource_RejectsInvalidPDF(t *testing.T) {
	source := NewUniPDFSource()
	notPDF := []byte("this is not a pdf")

	_, err := source.PageTexts(context.Background(), notPDF)
	assert.Error(t, err)

	_, err = source.Images(context.Background(), notPDF)
	assert.Error(t, err)

	_, err = source.DetectTables(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)
}

func TestUniPDFSource_DetectTablesOnTextOnlyDocument(t *testing.T) {
	pdf, _ := samplePDF(t)
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, pdf, 0o644))

	tables, err := NewUniPDFSource().DetectTables(context.Background(), path)
	if err != nil {
		assert.Contains(t, err.Error(), "第1页")
		return
	}
	assert.Empty(t, tables)
}

func TestTableRows(t *testing.T) {
	table := extractor.TextTable{
		W: 2,
		H: 2,
		Cells: [][]extractor.TableCell{
			{{Text: " Model "}, {Text: "BLEU\n"}},
			{{Text: "Transformer"}, {Text: ""}},
		},
	}

	rows := tableRows(table)
	assert.Equal(t, [][]string{
		{"Model", "BLEU"},
		{"Transformer", ""},
	}, rows)
}

func TestSetPDFLicenseKey_RejectsEmpty(t *testing.T) {
	err := SetPDFLicenseKey("  ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}
