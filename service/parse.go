package service

import (
	"regexp"
	"strings"

	"keiri-backend/models"
)

// The extraction and judgment outputs follow fixed textual templates keyed on
// the literal field labels below. The parsers are pure, total functions over
// arbitrary text: malformed input yields fewer or zero records, never an
// error. Callers detect conversion failure by checking record count.

var (
	extractedItemRe = regexp.MustCompile(`品目名[:：]\s*(.*?)\s+金額[:：]\s*([\d,]+円|該当情報なし)`)

	recordStartRe = regexp.MustCompile(`品目名[:：]`)

	itemNameRe     = regexp.MustCompile(`品目名[:：][ \t]*([^\n]*)`)
	amountRe       = regexp.MustCompile(`・金額[:：][ \t]*([^\n]*)`)
	accountTitleRe = regexp.MustCompile(`・勘定科目[:：][ \t]*([^\n]*)`)
	usefulLifeRe   = regexp.MustCompile(`・法定耐用年数[:：][ \t]*([^\n]*)`)
	basisRe        = regexp.MustCompile(`(?s)・根拠[:：][ \t]*(.*)`)
)

// ParseExtractedItems pulls 品目名/金額 pairs out of the item-extraction
// output. Text between records is ignored; zero matches returns an empty
// slice.
func ParseExtractedItems(text string) []models.ExtractedItem {
	matches := extractedItemRe.FindAllStringSubmatch(text, -1)
	items := make([]models.ExtractedItem, 0, len(matches))
	for _, m := range matches {
		items = append(items, models.ExtractedItem{
			ItemName: strings.TrimSpace(m[1]),
			Amount:   strings.TrimSpace(m[2]),
		})
	}
	return items
}

// ParseJudgmentRecords pulls five-field asset records out of the judgment
// output. The text is segmented on the 品目名 record-start marker, so the
// 根拠 field may contain embedded newlines: each record ends where the next
// one starts, or at end of input. Segments missing any field are dropped.
func ParseJudgmentRecords(text string) []models.AssetJudgmentRecord {
	starts := recordStartRe.FindAllStringIndex(text, -1)
	records := make([]models.AssetJudgmentRecord, 0, len(starts))

	for i, start := range starts {
		end := len(text)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		segment := text[start[0]:end]

		name := itemNameRe.FindStringSubmatch(segment)
		amount := amountRe.FindStringSubmatch(segment)
		account := accountTitleRe.FindStringSubmatch(segment)
		life := usefulLifeRe.FindStringSubmatch(segment)
		basis := basisRe.FindStringSubmatch(segment)
		if name == nil || amount == nil || account == nil || life == nil || basis == nil {
			continue
		}

		records = append(records, models.AssetJudgmentRecord{
			ItemName:     strings.TrimSpace(name[1]),
			Amount:       strings.TrimSpace(amount[1]),
			AccountTitle: strings.TrimSpace(account[1]),
			UsefulLife:   strings.TrimSpace(life[1]),
			Basis:        strings.TrimSpace(basis[1]),
		})
	}
	return records
}

// RenderJudgmentRecords writes records back into the canonical judgment
// template. Rendered output re-parses to the same records as long as no
// field contains the literal marker tokens.
func RenderJudgmentRecords(records []models.AssetJudgmentRecord) string {
	var b strings.Builder
	for i, r := range records {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("品目名: ")
		b.WriteString(r.ItemName)
		b.WriteString("\n・金額：")
		b.WriteString(r.Amount)
		b.WriteString("\n・勘定科目：")
		b.WriteString(r.AccountTitle)
		b.WriteString("\n・法定耐用年数：")
		b.WriteString(r.UsefulLife)
		b.WriteString("\n・根拠：")
		b.WriteString(r.Basis)
		b.WriteString("\n")
	}
	return b.String()
}
