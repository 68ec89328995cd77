package service

import (
	"strings"
	"testing"

	"keiri-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembleGroundingContextSectionOrder(t *testing.T) {
	out := AssembleGroundingContext(GroundingInput{
		AccountTitles: []models.AccountTitle{
			{Title: "器具備品", Description: "耐用年数1年以上かつ10万円以上の什器類"},
		},
		Retrieved: []models.RetrievedChunk{
			{Chunk: models.DocumentChunk{Text: "有形固定資産の取得価額には付随費用を含める。"}},
		},
		UsefulLifeInfo: "電子計算機 4年",
		RegulationText: "減価償却資産の償却は定額法または定率法による。",
		JournalExamples: []models.JournalExampleSet{
			{Source: "2023年度.xlsx", Table: "日付  借方  貸方"},
		},
		Query:        "このPCは資産計上が必要ですか",
		DocumentText: "ノートPC 150,000円",
		History:      "ユーザー: こんにちは\nボット: こんにちは\n",
	})

	headings := []string{
		"【勘定科目一覧】",
		"【情報】有形固定資産に関連する会計基準・実務資料の抜粋:",
		"【情報】対象品目に対する法定耐用年数（法令・別表から抽出）:",
		"【情報】減価償却に関する法令（法令テキスト）:",
		"【情報】仕訳例:",
		"【ユーザーの質問】",
		"【対象となる証憑テキスト】",
		"【過去の会話履歴】",
	}
	last := -1
	for _, h := range headings {
		pos := strings.Index(out, h)
		require.GreaterOrEqual(t, pos, 0, "missing heading %s", h)
		assert.Greater(t, pos, last, "heading %s out of order", h)
		last = pos
	}

	assert.Contains(t, out, "器具備品: 耐用年数1年以上かつ10万円以上の什器類")
	assert.Contains(t, out, "■ 2023年度.xlsx の仕訳例:")
}

func TestAssembleGroundingContextEmptySectionsMarked(t *testing.T) {
	out := AssembleGroundingContext(GroundingInput{
		RegulationText: "（法令テキストが見つかりませんでした）",
	})

	assert.Contains(t, out, noAccountTitles)
	assert.Contains(t, out, noRetrievedPassages)
	assert.Contains(t, out, noUsefulLifeInfo)
	assert.Contains(t, out, noJournalExamples)

	// Caller-supplied trailing sections are omitted entirely when empty.
	assert.NotContains(t, out, "【ユーザーの質問】")
	assert.NotContains(t, out, "【対象となる証憑テキスト】")
	assert.NotContains(t, out, "【過去の会話履歴】")
}

func TestHistoryTextTranscript(t *testing.T) {
	conv := models.Conversation{Turns: []models.ChatTurn{
		{Role: models.RoleUser, Message: "このPCは資産ですか"},
		{Role: models.RoleAssistant, Message: "金額によります"},
	}}
	assert.Equal(t, "ユーザー: このPCは資産ですか\nボット: 金額によります\n", conv.HistoryText())
	assert.Equal(t, "", models.Conversation{}.HistoryText())
}
