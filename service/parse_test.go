package service

import (
	"testing"

	"keiri-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExtractedItems(t *testing.T) {
	text := `抽出結果は以下の通りです。

品目名: ノートPC 金額: 150,000円
品目名: 延長保証サービス 金額: 該当情報なし
品目名: モニター
金額: 35,000円

以上です。`

	items := ParseExtractedItems(text)
	require.Len(t, items, 3)
	assert.Equal(t, models.ExtractedItem{ItemName: "ノートPC", Amount: "150,000円"}, items[0])
	assert.Equal(t, models.ExtractedItem{ItemName: "延長保証サービス", Amount: "該当情報なし"}, items[1])
	assert.Equal(t, models.ExtractedItem{ItemName: "モニター", Amount: "35,000円"}, items[2])
}

func TestParseExtractedItemsNoMatches(t *testing.T) {
	assert.Empty(t, ParseExtractedItems("証憑から品目を読み取れませんでした。"))
	assert.Empty(t, ParseExtractedItems(""))
}

func TestParseJudgmentRecords(t *testing.T) {
	text := `判断結果は以下の通りです。

品目名: ノートPC
・金額：150,000円
・勘定科目：器具備品
・法定耐用年数：4年
・根拠：取得価額が10万円以上のため資産計上。
耐用年数省令別表第一の「電子計算機」に該当する。

品目名: 事務用椅子
・金額：45,000円
・勘定科目：消耗品費
・法定耐用年数：-
・根拠：取得価額が10万円未満のため費用処理。`

	records := ParseJudgmentRecords(text)
	require.Len(t, records, 2)

	assert.Equal(t, "ノートPC", records[0].ItemName)
	assert.Equal(t, "150,000円", records[0].Amount)
	assert.Equal(t, "器具備品", records[0].AccountTitle)
	assert.Equal(t, "4年", records[0].UsefulLife)
	// The basis keeps its embedded newline up to the next record.
	assert.Equal(t, "取得価額が10万円以上のため資産計上。\n耐用年数省令別表第一の「電子計算機」に該当する。", records[0].Basis)

	assert.Equal(t, "事務用椅子", records[1].ItemName)
	assert.Equal(t, "消耗品費", records[1].AccountTitle)
	assert.Equal(t, "取得価額が10万円未満のため費用処理。", records[1].Basis)
}

func TestParseJudgmentRecordsSkipsIncompleteSegments(t *testing.T) {
	text := `品目名: 不完全な品目
・金額：10,000円
・勘定科目：消耗品費

品目名: 完全な品目
・金額：200,000円
・勘定科目：器具備品
・法定耐用年数：5年
・根拠：別表第一による。`

	records := ParseJudgmentRecords(text)
	require.Len(t, records, 1)
	assert.Equal(t, "完全な品目", records[0].ItemName)
}

func TestParseJudgmentRecordsEmpty(t *testing.T) {
	assert.Empty(t, ParseJudgmentRecords(""))
	assert.Empty(t, ParseJudgmentRecords("該当する品目はありませんでした。"))
}

func TestRenderParseRoundTrip(t *testing.T) {
	records := []models.AssetJudgmentRecord{
		{
			ItemName:     "ノートPC",
			Amount:       "150,000円",
			AccountTitle: "器具備品",
			UsefulLife:   "4年",
			Basis:        "電子計算機として別表第一に該当。\n取得価額が10万円以上。",
		},
		{
			ItemName:     "エアコン",
			Amount:       "320,000円",
			AccountTitle: "建物附属設備",
			UsefulLife:   "13年",
			Basis:        "冷暖房設備に該当。",
		},
	}

	parsed := ParseJudgmentRecords(RenderJudgmentRecords(records))
	assert.Equal(t, records, parsed)
}
