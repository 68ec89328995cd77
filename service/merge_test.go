package service

import (
	"testing"

	"keiri-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(name, amount, account, life string) models.AssetJudgmentRecord {
	return models.AssetJudgmentRecord{
		ItemName: name, Amount: amount, AccountTitle: account, UsefulLife: life, Basis: "根拠",
	}
}

func TestMergeJudgmentRecordsSumsAmounts(t *testing.T) {
	merged := MergeJudgmentRecords([]models.AssetJudgmentRecord{
		rec("ノートPC", "100,000円", "備品", "4年"),
		rec("デスクトップPC", "50,000円", "備品", "4年"),
	})

	require.Len(t, merged, 1)
	assert.Equal(t, "150,000円", merged[0].Amount)
	assert.Equal(t, "備品", merged[0].AccountTitle)
	assert.Equal(t, "4年", merged[0].UsefulLife)
	assert.Equal(t, "ノートPC・デスクトップPC", merged[0].ItemName)
}

func TestMergeJudgmentRecordsKeepsDistinctGroups(t *testing.T) {
	merged := MergeJudgmentRecords([]models.AssetJudgmentRecord{
		rec("ノートPC", "150,000円", "器具備品", "4年"),
		rec("エアコン", "320,000円", "建物附属設備", "13年"),
		rec("サーバー", "800,000円", "器具備品", "5年"),
	})

	require.Len(t, merged, 3)
	// First-seen group order is preserved.
	assert.Equal(t, "ノートPC", merged[0].ItemName)
	assert.Equal(t, "エアコン", merged[1].ItemName)
	assert.Equal(t, "サーバー", merged[2].ItemName)
}

func TestMergeJudgmentRecordsUnparseableAmountPassesThrough(t *testing.T) {
	in := []models.AssetJudgmentRecord{
		rec("ノートPC", "150,000円", "器具備品", "4年"),
		rec("プリンター", "該当情報なし", "器具備品", "4年"),
	}

	merged := MergeJudgmentRecords(in)
	assert.Equal(t, in, merged)
}

func TestMergeJudgmentRecordsSingleRecordUnchanged(t *testing.T) {
	in := []models.AssetJudgmentRecord{rec("ノートPC", "150,000円", "器具備品", "4年")}
	assert.Equal(t, in, MergeJudgmentRecords(in))
}

func TestParseYenAmount(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want int64
		ok   bool
	}{
		{"150,000円", 150000, true},
		{"150000円", 150000, true},
		{"1,234,567円", 1234567, true},
		{"0円", 0, true},
		{" 500円 ", 500, true},
		{"該当情報なし", 0, false},
		{"", 0, false},
		{"円", 0, false},
		{"十万円", 0, false},
	} {
		got, ok := parseYenAmount(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		if tc.ok {
			assert.Equal(t, tc.want, got, "input %q", tc.in)
		}
	}
}

func TestFormatYenAmount(t *testing.T) {
	assert.Equal(t, "0円", formatYenAmount(0))
	assert.Equal(t, "500円", formatYenAmount(500))
	assert.Equal(t, "150,000円", formatYenAmount(150000))
	assert.Equal(t, "1,234,567円", formatYenAmount(1234567))
}
