package service

import (
	"strconv"
	"strings"

	"keiri-backend/models"
)

// MergeJudgmentRecords consolidates records that share the same 勘定科目 and
// 法定耐用年数 into one record with summed amounts. Groups keep first-seen
// order. A group whose amounts cannot all be parsed as yen values is passed
// through unmerged so no figure is ever silently dropped.
func MergeJudgmentRecords(records []models.AssetJudgmentRecord) []models.AssetJudgmentRecord {
	type group struct {
		records []models.AssetJudgmentRecord
	}

	var order []string
	groups := make(map[string]*group)
	for _, r := range records {
		key := r.AccountTitle + "\x00" + r.UsefulLife
		g, ok := groups[key]
		if !ok {
			g = &group{}
			groups[key] = g
			order = append(order, key)
		}
		g.records = append(g.records, r)
	}

	var merged []models.AssetJudgmentRecord
	for _, key := range order {
		g := groups[key]
		if len(g.records) == 1 {
			merged = append(merged, g.records[0])
			continue
		}

		total := int64(0)
		parseable := true
		for _, r := range g.records {
			n, ok := parseYenAmount(r.Amount)
			if !ok {
				parseable = false
				break
			}
			total += n
		}
		if !parseable {
			merged = append(merged, g.records...)
			continue
		}

		merged = append(merged, models.AssetJudgmentRecord{
			ItemName:     joinDistinct(g.records, func(r models.AssetJudgmentRecord) string { return r.ItemName }, "・"),
			Amount:       formatYenAmount(total),
			AccountTitle: g.records[0].AccountTitle,
			UsefulLife:   g.records[0].UsefulLife,
			Basis:        joinDistinct(g.records, func(r models.AssetJudgmentRecord) string { return r.Basis }, "\n"),
		})
	}
	return merged
}

// parseYenAmount parses strings like "150,000円" or "150000 円" into an
// integer yen value. Anything else, including 該当情報なし, reports false.
func parseYenAmount(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "円")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// formatYenAmount renders an integer yen value with comma grouping, e.g.
// 150000 -> "150,000円".
func formatYenAmount(n int64) string {
	digits := strconv.FormatInt(n, 10)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteString(",")
		}
		b.WriteRune(d)
	}
	b.WriteString("円")
	return b.String()
}

func joinDistinct(records []models.AssetJudgmentRecord, field func(models.AssetJudgmentRecord) string, sep string) string {
	var parts []string
	seen := make(map[string]bool)
	for _, r := range records {
		v := field(r)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		parts = append(parts, v)
	}
	return strings.Join(parts, sep)
}
