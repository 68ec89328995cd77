package models

// ExtractedItem is one 品目名/金額 pair parsed from the item-extraction output.
type ExtractedItem struct {
	ItemName string `json:"item_name"`
	Amount   string `json:"amount"`
}

// AssetJudgmentRecord is one parsed row of the judgment output: an item
// classified into an account title with its legal useful life and the
// cited basis. This is the canonical unit handed to downstream callers.
type AssetJudgmentRecord struct {
	ItemName     string `json:"item_name"`     // 品目名
	Amount       string `json:"amount"`        // 金額 (e.g. "150,000円")
	AccountTitle string `json:"account_title"` // 勘定科目
	UsefulLife   string `json:"useful_life"`   // 法定耐用年数 (e.g. "4年")
	Basis        string `json:"basis"`         // 根拠, may span multiple lines
}
