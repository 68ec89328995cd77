package corpus

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"keiri-backend/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newTestLoader(t *testing.T) (*Loader, string) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewLocalStorage(root)
	require.NoError(t, err)
	return NewLoader(store), root
}

func writeFile(t *testing.T, root, name string, data []byte) {
	t.Helper()
	full := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, data, 0644))
}

func TestLoadAccountTitlesWithBOMAndReorderedColumns(t *testing.T) {
	loader, root := newTestLoader(t)

	// Excel exports carry a UTF-8 BOM, and column order is not guaranteed.
	csv := "\uFEFF解説,勘定科目\n少額物品の購入費,消耗品費\n什器類,器具備品\n,\n"
	writeFile(t, root, AccountTitlesCSV, []byte(csv))

	titles, err := loader.LoadAccountTitles(context.Background())
	require.NoError(t, err)
	require.Len(t, titles, 2)
	assert.Equal(t, "消耗品費", titles[0].Title)
	assert.Equal(t, "少額物品の購入費", titles[0].Description)
	assert.Equal(t, "器具備品", titles[1].Title)
}

func TestLoadAccountTitlesMissingFile(t *testing.T) {
	loader, _ := newTestLoader(t)
	_, err := loader.LoadAccountTitles(context.Background())
	assert.Error(t, err)
}

func TestLoadRegulationTextMissing(t *testing.T) {
	loader, _ := newTestLoader(t)
	text, err := loader.LoadRegulationText(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RegulationMissing, text)
}

func TestLoadRegulationTextPresent(t *testing.T) {
	loader, root := newTestLoader(t)
	writeFile(t, root, RegulationTxt, []byte("減価償却の方法について。"))

	text, err := loader.LoadRegulationText(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "減価償却の方法について。", text)
}

func TestLoadLawTextsSortedXMLOnly(t *testing.T) {
	loader, root := newTestLoader(t)
	writeFile(t, root, "b_別表.xml", []byte("<b/>"))
	writeFile(t, root, "a_省令.xml", []byte("<a/>"))
	writeFile(t, root, "メモ.txt", []byte("対象外"))

	laws, err := loader.LoadLawTexts(context.Background())
	require.NoError(t, err)
	require.Len(t, laws, 2)
	assert.Equal(t, "a_省令.xml", laws[0].Name)
	assert.Equal(t, "<a/>", laws[0].Content)
	assert.Equal(t, "b_別表.xml", laws[1].Name)
}

func TestLoadJournalExamples(t *testing.T) {
	loader, root := newTestLoader(t)

	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "日付"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "借方科目"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "2023-04-01"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", "器具備品"))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	writeFile(t, root, filepath.Join(ExamplesDir, "2023年度.xlsx"), buf.Bytes())
	// Unreadable spreadsheets are skipped, not fatal.
	writeFile(t, root, filepath.Join(ExamplesDir, "壊れた.xlsx"), []byte("not a workbook"))
	writeFile(t, root, filepath.Join(ExamplesDir, "無関係.txt"), []byte("対象外"))

	sets, err := loader.LoadJournalExamples(context.Background())
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, "2023年度.xlsx", sets[0].Source)
	assert.Contains(t, sets[0].Table, "日付")
	assert.Contains(t, sets[0].Table, "器具備品")
}

func TestRenderTablePadsColumns(t *testing.T) {
	out := renderTable([][]string{
		{"日付", "科目"},
		{"2023-04-01", "器具備品"},
	})
	lines := []string{"日付", "2023-04-01"}
	for _, prefix := range lines {
		assert.Contains(t, out, prefix)
	}
	// Cells in one row are separated by at least two spaces.
	assert.Contains(t, out, "日付  ")
}

func TestLoadIndexDocuments(t *testing.T) {
	loader, root := newTestLoader(t)
	writeFile(t, root, filepath.Join(IndexDocsDir, "基準.txt"), []byte("有形固定資産の定義。"))
	writeFile(t, root, filepath.Join(IndexDocsDir, "空.txt"), []byte("   \n"))

	docs, err := loader.LoadIndexDocuments(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "基準.txt", docs[0].ID)
	assert.Equal(t, "有形固定資産の定義。", docs[0].Text)
}

func TestAddIndexDocument(t *testing.T) {
	loader, root := newTestLoader(t)

	require.NoError(t, loader.AddIndexDocument(context.Background(), "新基準.txt", []byte("本文")))
	data, err := os.ReadFile(filepath.Join(root, IndexDocsDir, "新基準.txt"))
	require.NoError(t, err)
	assert.Equal(t, "本文", string(data))

	assert.Error(t, loader.AddIndexDocument(context.Background(), "../escape.txt", []byte("x")))
	assert.Error(t, loader.AddIndexDocument(context.Background(), "dir/escape.txt", []byte("x")))
}
