package service

import (
	"strings"

	"keiri-backend/models"
)

// In-band markers for grounding data that could not be produced. Sections are
// always rendered in the same order; a section with no content carries its
// marker so prompts never contain a silently blank heading.
const (
	noRetrievedPassages = "（該当する抜粋は見つかりませんでした）"
	noUsefulLifeInfo    = "（該当情報なし）"
	noAccountTitles     = "（勘定科目一覧が見つかりませんでした）"
	noJournalExamples   = "（仕訳例なし）"
)

// GroundingInput collects everything the prompt assembler can draw on.
// Zero-valued fields are legal: data sections fall back to their in-band
// markers, while the caller-supplied trailing sections (query, document text,
// history) are omitted entirely when empty.
type GroundingInput struct {
	AccountTitles   []models.AccountTitle
	Retrieved       []models.RetrievedChunk
	UsefulLifeInfo  string
	RegulationText  string
	JournalExamples []models.JournalExampleSet
	Query           string
	DocumentText    string
	History         string
}

// AssembleGroundingContext renders the grounding sections in their fixed
// order: account titles, retrieved passages, useful-life information, the
// full regulatory text, journal examples, then the caller's query, document
// text and conversation history.
func AssembleGroundingContext(in GroundingInput) string {
	var b strings.Builder

	b.WriteString("【勘定科目一覧】\n")
	if len(in.AccountTitles) == 0 {
		b.WriteString(noAccountTitles)
		b.WriteString("\n")
	} else {
		for _, t := range in.AccountTitles {
			b.WriteString(t.Title)
			if t.Description != "" {
				b.WriteString(": ")
				b.WriteString(t.Description)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n【情報】有形固定資産に関連する会計基準・実務資料の抜粋:\n")
	if len(in.Retrieved) == 0 {
		b.WriteString(noRetrievedPassages)
		b.WriteString("\n")
	} else {
		for _, r := range in.Retrieved {
			b.WriteString(r.Chunk.Text)
			b.WriteString("\n")
		}
	}

	b.WriteString("\n【情報】対象品目に対する法定耐用年数（法令・別表から抽出）:\n")
	if strings.TrimSpace(in.UsefulLifeInfo) == "" {
		b.WriteString(noUsefulLifeInfo)
	} else {
		b.WriteString(in.UsefulLifeInfo)
	}
	b.WriteString("\n")

	b.WriteString("\n【情報】減価償却に関する法令（法令テキスト）:\n")
	b.WriteString(in.RegulationText)
	b.WriteString("\n")

	b.WriteString("\n【情報】仕訳例:\n")
	if len(in.JournalExamples) == 0 {
		b.WriteString(noJournalExamples)
		b.WriteString("\n")
	} else {
		for _, ex := range in.JournalExamples {
			b.WriteString("■ ")
			b.WriteString(ex.Source)
			b.WriteString(" の仕訳例:\n")
			b.WriteString(ex.Table)
			b.WriteString("\n")
		}
	}

	if in.Query != "" {
		b.WriteString("\n【ユーザーの質問】\n")
		b.WriteString(in.Query)
		b.WriteString("\n")
	}
	if in.DocumentText != "" {
		b.WriteString("\n【対象となる証憑テキスト】\n")
		b.WriteString(in.DocumentText)
		b.WriteString("\n")
	}
	if in.History != "" {
		b.WriteString("\n【過去の会話履歴】\n")
		b.WriteString(in.History)
	}

	return b.String()
}
