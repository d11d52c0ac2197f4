// Package post は投稿下書きの編集バッファとライフサイクル遷移を管理する。
// バックエンドが唯一の信頼できる情報源であり、ローカルバッファは
// 保存スナップショットとの差分（ダーティ判定）のみを追跡する。
package post

import (
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hitoshi/sparkle/internal/api"
	"github.com/hitoshi/sparkle/internal/metrics"
	"github.com/hitoshi/sparkle/internal/model"
)

// minImageContentLength はAI画像生成に必要な本文の最小文字数。
// これより短い本文ではカスタムプロンプトなしの生成を拒否する。
const minImageContentLength = 20

// PostAPI は投稿エンドポイントのインターフェース。
type PostAPI interface {
	CreatePost(ctx context.Context, data api.PostCreate) (*model.Post, error)
	UpdatePost(ctx context.Context, postID string, data api.PostUpdate) (*model.Post, error)
	GetPost(ctx context.Context, postID string) (*model.Post, error)
	ListPosts(ctx context.Context, statusFilter string, limit int) (*model.PostList, error)
	DeletePost(ctx context.Context, postID string) error
	SchedulePost(ctx context.Context, postID string, scheduledFor time.Time) (*model.Post, error)
	PublishPost(ctx context.Context, postID string) (*model.Post, error)
	UploadImage(ctx context.Context, filename string, r io.Reader) (string, error)
	GenerateAIImage(ctx context.Context, content, customPrompt string) (string, error)
}

// Clipboard はOSクリップボードへの書き込みインターフェース。
type Clipboard interface {
	Copy(text string) error
}

// URLValidator は外部URLの安全性検証インターフェース。
type URLValidator interface {
	ValidateURL(raw string) error
}

// snapshot は最後に保存された下書きの内容を表す。ダーティ判定の基準となる。
type snapshot struct {
	content  string
	hashtags []string
	imageURL string
}

func (s snapshot) equal(content string, hashtags []string, imageURL string) bool {
	return s.content == content &&
		slices.Equal(s.hashtags, hashtags) &&
		s.imageURL == imageURL
}

// Manager は投稿下書きの編集とライフサイクル操作を提供する。
type Manager struct {
	api       PostAPI
	clipboard Clipboard
	urls      URLValidator
	logger    *slog.Logger
	metrics   metrics.Recorder
	sanitizer *bluemonday.Policy

	mu              sync.Mutex
	postID          string
	content         string
	hashtags        []string
	imageURL        string
	localImageURI   string
	sourceType      model.SourceType
	sourceArticleID string
	status          model.PostStatus
	scheduledFor    *time.Time
	lastHook        string
	hookSuggestion  string
	saved           snapshot
}

// NewManager はManagerの新しいインスタンスを生成する。下書きは空の状態で始まる。
func NewManager(postAPI PostAPI, clipboard Clipboard, urls URLValidator, logger *slog.Logger, rec metrics.Recorder) *Manager {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Manager{
		api:        postAPI,
		clipboard:  clipboard,
		urls:       urls,
		logger:     logger,
		metrics:    rec,
		sanitizer:  bluemonday.StrictPolicy(),
		sourceType: model.SourceTypeManual,
		status:     model.PostStatusDraft,
	}
}

// --- 編集バッファ ---

// Content は現在の本文を返す。
func (m *Manager) Content() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.content
}

// SetContent は本文を設定する。文字数上限を超えても編集自体は妨げない。
func (m *Manager) SetContent(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.content = content
}

// Hashtags は現在のハッシュタグのコピーを返す。
func (m *Manager) Hashtags() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.hashtags...)
}

// SetHashtags はハッシュタグを正規化して設定する。
func (m *Manager) SetHashtags(raw []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashtags = NormalizeHashtags(raw)
}

// AddHashtag はハッシュタグを1件追加する。既存と大文字小文字を無視して
// 重複する場合は無視される。
func (m *Manager) AddHashtag(raw string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashtags = NormalizeHashtags(append(m.hashtags, raw))
}

// ImageURL は添付画像のリモートURLを返す。未添付の場合は空文字列。
// アップロード成功のレスポンスからのみ設定され、ローカルファイルパスが入ることはない。
func (m *Manager) ImageURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.imageURL
}

// LocalImageURI はアップロード中のプレビュー用ローカルURIを返す。
// アップロードが完了または失敗すると空文字列へ戻る。
func (m *Manager) LocalImageURI() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.localImageURI
}

// RemoveImage は添付画像とプレビューを取り外す。
func (m *Manager) RemoveImage() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.imageURL = ""
	m.localImageURI = ""
}

// PostID は保存済み投稿のIDを返す。未保存の場合は空文字列。
func (m *Manager) PostID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.postID
}

// Status は投稿の現在のライフサイクル状態を返す。
func (m *Manager) Status() model.PostStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// ScheduledFor は予約日時を返す。未予約の場合はnil。
func (m *Manager) ScheduledFor() *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scheduledFor
}

// CharacterCount は本文の文字数を返す。
func (m *Manager) CharacterCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return utf8.RuneCountInString(m.content)
}

// Dirty は最後の保存以降にバッファが変更されたかを返す。未保存の下書きは常にtrue。
func (m *Manager) Dirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirtyLocked()
}

func (m *Manager) dirtyLocked() bool {
	if m.postID == "" {
		return true
	}
	return !m.saved.equal(m.content, m.hashtags, m.imageURL)
}

// Discard はバッファを空の下書きへ戻す。リモートの投稿には影響しない。
func (m *Manager) Discard() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discardLocked()
}

func (m *Manager) discardLocked() {
	m.postID = ""
	m.content = ""
	m.hashtags = nil
	m.imageURL = ""
	m.localImageURI = ""
	m.sourceType = model.SourceTypeManual
	m.sourceArticleID = ""
	m.status = model.PostStatusDraft
	m.scheduledFor = nil
	m.lastHook = ""
	m.hookSuggestion = ""
	m.saved = snapshot{}
}

// NewDraftFromArticle はインスピレーション記事を起点に新しい下書きを開始する。
func (m *Manager) NewDraftFromArticle(articleID, seed string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discardLocked()
	m.content = seed
	m.sourceType = model.SourceTypeTrendingNews
	m.sourceArticleID = articleID
}

// Load はリモートの投稿を編集バッファへ読み込む。読み込み直後はダーティではない。
func (m *Manager) Load(ctx context.Context, postID string) error {
	post, err := m.api.GetPost(ctx, postID)
	if err != nil {
		return fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.postID = post.ID
	m.content = post.Content
	m.hashtags = append([]string(nil), post.Hashtags...)
	m.imageURL = post.ImageURL
	m.localImageURI = ""
	m.sourceType = post.SourceType
	m.sourceArticleID = post.SourceArticleID
	m.status = post.Status
	m.scheduledFor = post.ScheduledFor
	m.lastHook = ""
	m.hookSuggestion = ""
	m.saved = snapshot{
		content:  post.Content,
		hashtags: append([]string(nil), post.Hashtags...),
		imageURL: post.ImageURL,
	}
	return nil
}

// --- フック ---

// HookSuggestion はAIアシストが提案したフック文を返す。提案がない場合は空文字列。
func (m *Manager) HookSuggestion() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hookSuggestion
}

// UseHook はフック文を本文の先頭へ挿入する。
// 直前にUseHookで挿入したフックが先頭に残っている場合は置き換える。
// 同じ下書きへフックを選び直しても先頭に積み重ならない。
func (m *Manager) UseHook(hook string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastHook != "" {
		if m.content == m.lastHook {
			m.content = ""
		} else {
			m.content = strings.TrimPrefix(m.content, m.lastHook+"\n\n")
		}
	}

	if m.content == "" {
		m.content = hook
	} else {
		m.content = hook + "\n\n" + m.content
	}
	m.lastHook = hook
}

// --- AIアシスト結果の適用 ---

// ApplyAssist はAIアシストの結果を下書きへ反映する。
// 本文はHTMLタグを除去したうえで置き換え、ハッシュタグは正規化してマージする。
// フック提案はHookSuggestionで参照できる形で保持する（自動挿入はしない）。
func (m *Manager) ApplyAssist(result *model.AIAssistResult) {
	if result == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if content := m.sanitize(result.Content); content != "" {
		m.content = content
		m.sourceType = model.SourceTypeAIGenerated
		m.lastHook = ""
	}
	if len(result.Hashtags) > 0 {
		m.hashtags = NormalizeHashtags(append(m.hashtags, result.Hashtags...))
	}
	if hook := m.sanitize(result.HookSuggestion); hook != "" {
		m.hookSuggestion = hook
	}
}

// sanitize はAI生成テキストからHTMLタグを除去し、プレーンテキストへ戻す。
func (m *Manager) sanitize(raw string) string {
	return strings.TrimSpace(html.UnescapeString(m.sanitizer.Sanitize(raw)))
}

// --- ライフサイクル ---

// SaveDraft は下書きをリモートへ保存する。初回はCreate、以降はUpdateとなる。
// 文字数上限を超えていても保存は許可される（予約・公開のみ拒否される）。
func (m *Manager) SaveDraft(ctx context.Context) (*model.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveDraftLocked(ctx)
}

func (m *Manager) saveDraftLocked(ctx context.Context) (*model.Post, error) {
	if strings.TrimSpace(m.content) == "" {
		return nil, model.NewEmptyContentError()
	}

	var (
		post *model.Post
		err  error
	)
	if m.postID == "" {
		post, err = m.api.CreatePost(ctx, api.PostCreate{
			Content:         m.content,
			Hashtags:        append([]string(nil), m.hashtags...),
			ImageURL:        m.imageURL,
			SourceType:      m.sourceType,
			SourceArticleID: m.sourceArticleID,
		})
	} else {
		content := m.content
		imageURL := m.imageURL
		post, err = m.api.UpdatePost(ctx, m.postID, api.PostUpdate{
			Content:  &content,
			Hashtags: append([]string(nil), m.hashtags...),
			ImageURL: &imageURL,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("下書きの保存に失敗しました: %w", err)
	}

	m.postID = post.ID
	m.status = post.Status
	m.saved = snapshot{
		content:  m.content,
		hashtags: append([]string(nil), m.hashtags...),
		imageURL: m.imageURL,
	}

	m.logger.Info("下書きを保存しました", slog.String("post_id", m.postID))
	return post, nil
}

// validateForTransition は予約・公開の前提条件を検証する。
func (m *Manager) validateForTransition() error {
	if strings.TrimSpace(m.content) == "" {
		return model.NewEmptyContentError()
	}
	if length := utf8.RuneCountInString(m.content); length > model.MaxContentLength {
		return model.NewContentTooLongError(length)
	}
	return nil
}

// Schedule は投稿を指定日時で予約する。
// バッファに未保存の変更がある場合は先に保存してから予約する。
// 予約されるのは常に画面上の最新内容であり、古い保存内容ではない。
func (m *Manager) Schedule(ctx context.Context, at time.Time) (*model.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.validateForTransition(); err != nil {
		return nil, err
	}
	if !at.After(time.Now()) {
		return nil, model.NewInvalidScheduleError()
	}

	if m.dirtyLocked() {
		if _, err := m.saveDraftLocked(ctx); err != nil {
			return nil, err
		}
	}

	post, err := m.api.SchedulePost(ctx, m.postID, at)
	if err != nil {
		return nil, fmt.Errorf("投稿の予約に失敗しました: %w", err)
	}

	m.status = post.Status
	m.scheduledFor = post.ScheduledFor
	m.logger.Info("投稿を予約しました",
		slog.String("post_id", m.postID),
		slog.Time("scheduled_for", at),
	)
	return post, nil
}

// Publish は投稿を即時公開する。
// バッファに未保存の変更がある場合は先に保存してから公開する。
// 成功時は共有用テキストをクリップボードへコピーする（失敗してもエラーにしない）。
func (m *Manager) Publish(ctx context.Context) (*model.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.validateForTransition(); err != nil {
		return nil, err
	}

	if m.dirtyLocked() {
		if _, err := m.saveDraftLocked(ctx); err != nil {
			return nil, err
		}
	}

	post, err := m.api.PublishPost(ctx, m.postID)
	if err != nil {
		return nil, fmt.Errorf("投稿の公開に失敗しました: %w", err)
	}

	m.status = post.Status
	m.metrics.RecordPublish()
	m.logger.Info("投稿を公開しました", slog.String("post_id", m.postID))

	if err := m.clipboard.Copy(shareText(post.Content, post.Hashtags)); err != nil {
		m.logger.Warn("クリップボードへのコピーに失敗しました", slog.String("error", err.Error()))
	}
	return post, nil
}

// Recopy は公開済み投稿の共有用テキストを再度クリップボードへコピーする。
func (m *Manager) Recopy(ctx context.Context, postID string) error {
	post, err := m.api.GetPost(ctx, postID)
	if err != nil {
		return fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	if post.Status != model.PostStatusPublished {
		return model.NewPostNotPublishedError()
	}
	if err := m.clipboard.Copy(shareText(post.Content, post.Hashtags)); err != nil {
		return fmt.Errorf("クリップボードへのコピーに失敗しました: %w", err)
	}
	return nil
}

// List は現在のユーザーの投稿一覧を取得する。statusが空の場合は全状態を返す。
func (m *Manager) List(ctx context.Context, status model.PostStatus, limit int) (*model.PostList, error) {
	list, err := m.api.ListPosts(ctx, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("投稿一覧の取得に失敗しました: %w", err)
	}
	return list, nil
}

// Delete は投稿を削除する。編集中の投稿を削除した場合はバッファも破棄する。
func (m *Manager) Delete(ctx context.Context, postID string) error {
	if err := m.api.DeletePost(ctx, postID); err != nil {
		return fmt.Errorf("投稿の削除に失敗しました: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.postID == postID {
		m.discardLocked()
	}
	return nil
}

// --- 画像 ---

// AttachImage はローカル画像を下書きへ添付し、バックエンドへアップロードする。
// プレビューを先に表示できるようlocalURIをlocalImageURIへ楽観的に保持し、
// アップロード成功時のみimageURLをリモートURLで設定する。
// ローカルURIがimageURLとして保存・送信されることはない。
// 失敗時はプレビューを取り消す。
func (m *Manager) AttachImage(ctx context.Context, filename string, r io.Reader, localURI string) error {
	m.mu.Lock()
	m.localImageURI = localURI
	m.mu.Unlock()

	remoteURL, err := m.api.UploadImage(ctx, filename, r)
	if err != nil {
		m.metrics.RecordImageUpload(false)
		m.logger.Warn("画像のアップロードに失敗しました。添付を取り消します",
			slog.String("filename", filename),
			slog.String("error", err.Error()),
		)
		m.mu.Lock()
		if m.localImageURI == localURI {
			m.localImageURI = ""
		}
		m.mu.Unlock()
		return model.NewImageUploadFailedError(err.Error())
	}

	m.metrics.RecordImageUpload(true)
	m.mu.Lock()
	// アップロード中にRemoveImageや別画像の添付があった場合は結果を捨てる
	if m.localImageURI == localURI {
		m.imageURL = remoteURL
		m.localImageURI = ""
	}
	m.mu.Unlock()
	return nil
}

// GenerateImage は本文またはカスタムプロンプトからAI画像を生成して添付する。
// 本文が短すぎる場合（カスタムプロンプトもない場合）はネットワークを呼ばずに拒否する。
// 生成されたURLは安全性検証を通過した場合のみ添付される。
func (m *Manager) GenerateImage(ctx context.Context, customPrompt string) error {
	m.mu.Lock()
	content := m.content
	m.mu.Unlock()

	if utf8.RuneCountInString(strings.TrimSpace(content)) < minImageContentLength &&
		strings.TrimSpace(customPrompt) == "" {
		return model.NewImagePromptTooShortError()
	}

	imageURL, err := m.api.GenerateAIImage(ctx, content, customPrompt)
	if err != nil {
		return fmt.Errorf("AI画像の生成に失敗しました: %w", err)
	}

	if err := m.urls.ValidateURL(imageURL); err != nil {
		m.logger.Warn("生成された画像URLが検証を通過しませんでした",
			slog.String("error", err.Error()),
		)
		return model.NewInvalidImageURLError(err.Error())
	}

	m.mu.Lock()
	m.imageURL = imageURL
	m.localImageURI = ""
	m.mu.Unlock()
	return nil
}

// --- ヘルパー ---

// NormalizeHashtags はハッシュタグの生入力を正規化する。
// 前後の空白を除去し、先頭の'#'を1つ取り除き、空要素を捨てる。
// 大文字小文字を無視して重複を除き、最初に現れた表記を残す。
func NormalizeHashtags(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	result := make([]string, 0, len(raw))
	for _, h := range raw {
		h = strings.TrimSpace(h)
		h = strings.TrimPrefix(h, "#")
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		key := strings.ToLower(h)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, h)
	}
	return result
}

// shareText はLinkedInへ貼り付ける共有用テキストを組み立てる。
func shareText(content string, hashtags []string) string {
	if len(hashtags) == 0 {
		return content
	}
	tags := make([]string, len(hashtags))
	for i, h := range hashtags {
		tags[i] = "#" + h
	}
	return content + "\n\n" + strings.Join(tags, " ")
}
