package models

// LawCorpusEntry is one regulatory source file, included verbatim in prompts.
// Unlike index chunks these are never split; the full text is the unit.
type LawCorpusEntry struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// AccountTitle is one row of the chart-of-accounts reference table.
type AccountTitle struct {
	Title       string `json:"title"`       // 勘定科目
	Description string `json:"description"` // 解説
}

// JournalExampleSet is one historical journal-entry spreadsheet rendered as
// text, used for few-shot grounding in the judgment prompt.
type JournalExampleSet struct {
	Source string `json:"source"`
	Table  string `json:"table"`
}
