package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"sync"

	"keiri-backend/corpus"
	"keiri-backend/index"
	"keiri-backend/llm"
	"keiri-backend/models"
)

// JudgmentService runs the document-to-journal pipeline: item extraction,
// asset judgment, refinement, useful-life lookup and free-form chat. Each
// call is a pure function of its inputs plus the corpus store and the loaded
// vector index; there is no per-session state inside the service.
type JudgmentService struct {
	completer llm.Completer
	embedder  llm.Embedder
	loader    *corpus.Loader

	indexDir     string
	topK         int
	chunkSize    int
	chunkOverlap int

	mu  sync.RWMutex
	idx *index.Index
}

// JudgmentServiceOption is a functional option for JudgmentService
type JudgmentServiceOption func(*JudgmentService)

// WithCompleter sets the text-generation backend
func WithCompleter(c llm.Completer) JudgmentServiceOption {
	return func(s *JudgmentService) {
		s.completer = c
	}
}

// WithEmbedder sets the embedding backend
func WithEmbedder(e llm.Embedder) JudgmentServiceOption {
	return func(s *JudgmentService) {
		s.embedder = e
	}
}

// WithCorpusLoader sets the corpus loader
func WithCorpusLoader(l *corpus.Loader) JudgmentServiceOption {
	return func(s *JudgmentService) {
		s.loader = l
	}
}

// WithIndexDir sets the vector index persistence directory
func WithIndexDir(dir string) JudgmentServiceOption {
	return func(s *JudgmentService) {
		s.indexDir = dir
	}
}

// WithTopK sets the number of chunks retrieved per query
func WithTopK(k int) JudgmentServiceOption {
	return func(s *JudgmentService) {
		s.topK = k
	}
}

// WithChunking sets the chunk size and overlap used for index rebuilds
func WithChunking(size, overlap int) JudgmentServiceOption {
	return func(s *JudgmentService) {
		s.chunkSize = size
		s.chunkOverlap = overlap
	}
}

// NewJudgmentService creates a new judgment service
func NewJudgmentService(opts ...JudgmentServiceOption) *JudgmentService {
	s := &JudgmentService{
		indexDir:     defaultIndexDir,
		topK:         defaultTopK,
		chunkSize:    defaultChunkSize,
		chunkOverlap: defaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	ErrIndexNotLoaded = errors.New("vector index is not loaded")
	ErrNoRecords      = errors.New("no judgment records to refine")
)

const (
	defaultIndexDir     = "storage"
	defaultTopK         = 2
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200

	maxOutputTokens = 2048

	extractTemperature    = 0.1
	judgeTemperature      = 0.2
	refineTemperature     = 0.1
	usefulLifeTemperature = 0.2
	chatTemperature       = 0.2
)

const (
	extractSystemPrompt    = "あなたは日本の会計に精通したAIです。"
	judgeSystemPrompt      = "あなたは日本の会計に精通した経理アシスタントAIです。"
	refineSystemPrompt     = "あなたは会計処理の専門AIです。"
	usefulLifeSystemPrompt = "あなたは減価償却資産の法定耐用年数に詳しいAIです。"
	chatSystemPrompt       = "あなたは日本の会計に精通した経理アシスタントAIです。"
)

// LoadIndex reads the persisted vector index into memory. Call at startup and
// after out-of-process rebuilds.
func (s *JudgmentService) LoadIndex() error {
	idx, err := index.Load(s.indexDir, s.embedder)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.idx = idx
	s.mu.Unlock()
	log.Printf("Loaded vector index: %d chunks, backend %s", idx.Len(), idx.Meta().BackendID)
	return nil
}

// RebuildIndex re-reads the raw index documents, chunks and embeds them, and
// atomically replaces both the on-disk and the in-memory index.
func (s *JudgmentService) RebuildIndex(ctx context.Context) (index.Metadata, error) {
	docs, err := s.loader.LoadIndexDocuments(ctx)
	if err != nil {
		return index.Metadata{}, fmt.Errorf("failed to load index documents: %w", err)
	}

	srcs := make([]index.Document, 0, len(docs))
	for _, d := range docs {
		srcs = append(srcs, index.Document{ID: d.ID, Text: d.Text})
	}

	idx, err := index.Build(ctx, srcs, index.BuildOptions{
		ChunkSize:    s.chunkSize,
		ChunkOverlap: s.chunkOverlap,
		Dir:          s.indexDir,
	}, s.embedder)
	if err != nil {
		return index.Metadata{}, err
	}

	s.mu.Lock()
	s.idx = idx
	s.mu.Unlock()
	return idx.Meta(), nil
}

// IndexStatus reports the loaded index's metadata, or ok=false when no index
// is loaded.
func (s *JudgmentService) IndexStatus() (index.Metadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.idx == nil {
		return index.Metadata{}, false
	}
	return s.idx.Meta(), true
}

func (s *JudgmentService) currentIndex() (*index.Index, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.idx == nil {
		return nil, ErrIndexNotLoaded
	}
	return s.idx, nil
}

// ExtractResult carries the raw extraction response plus its parsed items.
type ExtractResult struct {
	Response string
	Items    []models.ExtractedItem
}

// ExtractItems pulls 品目名/金額 pairs out of raw document text. Backend
// failures come back as a diagnostic Response with no items, never an error.
func (s *JudgmentService) ExtractItems(ctx context.Context, documentText string) (*ExtractResult, error) {
	prompt := fmt.Sprintf(`以下の証憑テキストから、購入された品目とその金額をすべて抽出してください。

【出力形式】
品目名: <品目名> 金額: <金額>円
金額が読み取れない場合は、金額の欄に「該当情報なし」と記載してください。
上記の形式の行のみを品目ごとに1行ずつ出力してください。

【証憑テキスト】
%s`, documentText)

	resp, err := s.completer.Complete(ctx, extractSystemPrompt, prompt, extractTemperature, maxOutputTokens)
	if err != nil {
		if isUpstream(err) {
			log.Printf("Item extraction degraded: %v", err)
			return &ExtractResult{Response: diagnosticText(err)}, nil
		}
		return nil, err
	}

	return &ExtractResult{
		Response: resp,
		Items:    ParseExtractedItems(resp),
	}, nil
}

// JudgeRequest is one asset-judgment call.
type JudgeRequest struct {
	Query        string
	DocumentText string
	Conversation models.Conversation
}

// JudgeResult carries the raw judgment response, its parsed records, and any
// account titles that fall outside the chart of accounts.
type JudgeResult struct {
	Response      string
	Records       []models.AssetJudgmentRecord
	InvalidTitles []string
}

// JudgeAssets classifies each item in the document into an account title with
// its legal useful life. Corpus and index failures propagate as errors;
// generation failures come back as a diagnostic Response with no records.
func (s *JudgmentService) JudgeAssets(ctx context.Context, req JudgeRequest) (*JudgeResult, error) {
	idx, err := s.currentIndex()
	if err != nil {
		return nil, err
	}

	queryText := strings.TrimSpace(req.Query + "\n" + req.DocumentText)
	retrieved, err := idx.Query(ctx, s.embedder, queryText, s.topK)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve grounding passages: %w", err)
	}

	laws, err := s.loader.LoadLawTexts(ctx)
	if err != nil {
		return nil, err
	}
	lifetimeInfo, err := s.extractUsefulLifeInfo(ctx, queryText, laws)
	if err != nil {
		log.Printf("Warning: useful-life lookup failed, continuing without it: %v", err)
		lifetimeInfo = ""
	}

	regulation, err := s.loader.LoadRegulationText(ctx)
	if err != nil {
		return nil, err
	}
	titles, err := s.loader.LoadAccountTitles(ctx)
	if err != nil {
		return nil, err
	}
	examples, err := s.loader.LoadJournalExamples(ctx)
	if err != nil {
		log.Printf("Warning: failed to load journal examples, continuing without them: %v", err)
		examples = nil
	}

	grounding := AssembleGroundingContext(GroundingInput{
		AccountTitles:   titles,
		Retrieved:       retrieved,
		UsefulLifeInfo:  lifetimeInfo,
		RegulationText:  regulation,
		JournalExamples: examples,
		Query:           req.Query,
		DocumentText:    req.DocumentText,
		History:         req.Conversation.HistoryText(),
	})

	prompt := fmt.Sprintf(`以下の情報に基づいて、証憑に含まれる各品目について資産計上の要否を判断し、勘定科目と法定耐用年数を決定してください。
勘定科目は必ず【勘定科目一覧】に記載された科目の中から選択してください。

%s

【出力形式】
品目ごとに、次の形式で出力してください。

品目名: <品目名>
・金額：<金額>
・勘定科目：<勘定科目>
・法定耐用年数：<法定耐用年数>
・根拠：<判断の根拠>`, grounding)

	resp, err := s.completer.Complete(ctx, judgeSystemPrompt, prompt, judgeTemperature, maxOutputTokens)
	if err != nil {
		if isUpstream(err) {
			log.Printf("Asset judgment degraded: %v", err)
			return &JudgeResult{Response: diagnosticText(err)}, nil
		}
		return nil, err
	}

	records := ParseJudgmentRecords(resp)
	return &JudgeResult{
		Response:      resp,
		Records:       records,
		InvalidTitles: invalidAccountTitles(records, titles),
	}, nil
}

// invalidAccountTitles returns the distinct account titles in records that do
// not appear in the chart of accounts. An empty chart disables the check.
func invalidAccountTitles(records []models.AssetJudgmentRecord, titles []models.AccountTitle) []string {
	if len(titles) == 0 {
		return nil
	}
	known := make(map[string]bool, len(titles))
	for _, t := range titles {
		known[t.Title] = true
	}

	var invalid []string
	seen := make(map[string]bool)
	for _, r := range records {
		if r.AccountTitle == "" || known[r.AccountTitle] || seen[r.AccountTitle] {
			continue
		}
		seen[r.AccountTitle] = true
		invalid = append(invalid, r.AccountTitle)
	}
	return invalid
}

// RefineResult carries the reworded response plus the records it stands for.
type RefineResult struct {
	Response string
	Records  []models.AssetJudgmentRecord
}

// Refine consolidates user-edited judgment records deterministically, then
// asks the backend to polish the wording of the canonical rendering. The
// merge arithmetic never depends on the model: on a backend failure the
// merged records are still returned alongside the diagnostic Response, and a
// model reply is discarded in favor of the deterministic rendering unless it
// parses back to the same records, 根拠 wording aside.
func (s *JudgmentService) Refine(ctx context.Context, records []models.AssetJudgmentRecord, conv models.Conversation) (*RefineResult, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}

	merged := MergeJudgmentRecords(records)
	rendered := RenderJudgmentRecords(merged)

	prompt := fmt.Sprintf(`以下の【編集後データ】は確定済みの資産計上データです。
品目名・金額・勘定科目・法定耐用年数の値は一切変更せず、根拠の文面のみを読みやすく整えて、同じ形式で全件出力してください。

【編集後データ】
%s
【出力形式】
品目名: <品目名>
・金額：<金額>
・勘定科目：<勘定科目>
・法定耐用年数：<法定耐用年数>
・根拠：<根拠>`, rendered)
	if h := conv.HistoryText(); h != "" {
		prompt += "\n\n【過去の会話履歴】\n" + h
	}

	resp, err := s.completer.Complete(ctx, refineSystemPrompt, prompt, refineTemperature, maxOutputTokens)
	if err != nil {
		if isUpstream(err) {
			log.Printf("Refine degraded, returning deterministic merge: %v", err)
			return &RefineResult{Response: diagnosticText(err), Records: merged}, nil
		}
		return nil, err
	}

	parsed := ParseJudgmentRecords(resp)
	if !sameFixedFields(parsed, merged) {
		log.Printf("Warning: refine reply does not match the merged records; keeping deterministic rendering")
		return &RefineResult{Response: rendered, Records: merged}, nil
	}
	return &RefineResult{Response: resp, Records: parsed}, nil
}

// sameFixedFields reports whether two record lists agree on everything except
// 根拠 wording. The refine pass may only rephrase; any change to an item name,
// amount, account title or useful life is tampering with merged data.
func sameFixedFields(a, b []models.AssetJudgmentRecord) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ItemName != b[i].ItemName ||
			a[i].Amount != b[i].Amount ||
			a[i].AccountTitle != b[i].AccountTitle ||
			a[i].UsefulLife != b[i].UsefulLife {
			return false
		}
	}
	return true
}

// ExtractUsefulLife looks up statutory useful-life information for the given
// text against the law corpus. Backend failures come back as diagnostic text.
func (s *JudgmentService) ExtractUsefulLife(ctx context.Context, text string) (string, error) {
	laws, err := s.loader.LoadLawTexts(ctx)
	if err != nil {
		return "", err
	}
	info, err := s.extractUsefulLifeInfo(ctx, text, laws)
	if err != nil {
		if isUpstream(err) {
			log.Printf("Useful-life extraction degraded: %v", err)
			return diagnosticText(err), nil
		}
		return "", err
	}
	return info, nil
}

func (s *JudgmentService) extractUsefulLifeInfo(ctx context.Context, text string, laws []models.LawCorpusEntry) (string, error) {
	var lawText strings.Builder
	for _, law := range laws {
		lawText.WriteString("■ ")
		lawText.WriteString(law.Name)
		lawText.WriteString("\n")
		lawText.WriteString(law.Content)
		lawText.WriteString("\n")
	}

	prompt := fmt.Sprintf(`以下の法令・別表テキストを参照して、対象テキストに含まれる品目の法定耐用年数に関する記述を抜き出してください。
該当する記述がない場合は「該当情報なし」とだけ回答してください。

【法令・別表】
%s
【対象テキスト】
%s`, lawText.String(), text)

	return s.completer.Complete(ctx, usefulLifeSystemPrompt, prompt, usefulLifeTemperature, maxOutputTokens)
}

// ChatRequest is one free-form QA call.
type ChatRequest struct {
	Query        string
	DocumentText string
	Conversation models.Conversation
}

// ChatRespond answers a free-form accounting question grounded on retrieval,
// the useful-life lookup and the regulation text. Backend failures come back
// as diagnostic text.
func (s *JudgmentService) ChatRespond(ctx context.Context, req ChatRequest) (string, error) {
	idx, err := s.currentIndex()
	if err != nil {
		return "", err
	}

	retrieved, err := idx.Query(ctx, s.embedder, req.Query, s.topK)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve grounding passages: %w", err)
	}

	laws, err := s.loader.LoadLawTexts(ctx)
	if err != nil {
		return "", err
	}
	lifetimeInfo, err := s.extractUsefulLifeInfo(ctx, req.Query, laws)
	if err != nil {
		log.Printf("Warning: useful-life lookup failed, continuing without it: %v", err)
		lifetimeInfo = ""
	}

	regulation, err := s.loader.LoadRegulationText(ctx)
	if err != nil {
		return "", err
	}

	grounding := AssembleGroundingContext(GroundingInput{
		Retrieved:      retrieved,
		UsefulLifeInfo: lifetimeInfo,
		RegulationText: regulation,
		Query:          req.Query,
		DocumentText:   req.DocumentText,
		History:        req.Conversation.HistoryText(),
	})

	prompt := fmt.Sprintf(`以下の情報に基づいて、ユーザーの質問に日本語で簡潔に回答してください。
情報に根拠がない場合は、その旨を明示してください。

%s`, grounding)

	resp, err := s.completer.Complete(ctx, chatSystemPrompt, prompt, chatTemperature, maxOutputTokens)
	if err != nil {
		if isUpstream(err) {
			log.Printf("Chat response degraded: %v", err)
			return diagnosticText(err), nil
		}
		return "", err
	}
	return resp, nil
}

func isUpstream(err error) bool {
	var ue *llm.UpstreamError
	return errors.As(err, &ue)
}

// diagnosticText formats a backend failure as the in-band error text handed
// back in place of a model response, stack included so the failure site
// survives into logs and transcripts.
func diagnosticText(err error) string {
	return fmt.Sprintf(
		"生成AIバックエンドの呼び出しでエラーが発生しました。\n型: %T\n内容: %v\n\nスタックトレース:\n%s",
		err, err, debug.Stack())
}
