// Package api はSparkleバックエンドのREST APIクライアントを提供する。
// 全レスポンスは{status, data, message}のエンベロープ形式であり、dataのみを消費する。
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/sparkle/internal/metrics"
	"github.com/hitoshi/sparkle/internal/model"
)

// TokenSource は保存済み認証トークンの読み取りインターフェース。
// トークンが未保存の場合は空文字列を返す。
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client はSparkleバックエンドAPIのクライアント。
// Bearerトークンの付与、エンベロープのデコード、エラーの正規化を行う。
type Client struct {
	httpClient   *http.Client
	uploadClient *http.Client
	baseURL      string
	tokens       TokenSource
	logger       *slog.Logger
	metrics      metrics.Recorder
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLは末尾スラッシュなしで指定する（例: "https://api.sparkle.app/api/v1"）。
// uploadClientは画像アップロード専用のHTTPクライアント。大きなファイルの送信には
// 通常のAPIタイムアウトでは不足するため、長めのタイムアウトを持つクライアントを
// 指定する。nilの場合はhttpClientを使う。
func NewClient(httpClient, uploadClient *http.Client, baseURL string, tokens TokenSource, logger *slog.Logger, rec metrics.Recorder) *Client {
	if uploadClient == nil {
		uploadClient = httpClient
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Client{
		httpClient:   httpClient,
		uploadClient: uploadClient,
		baseURL:      strings.TrimRight(baseURL, "/"),
		tokens:       tokens,
		logger:       logger,
		metrics:      rec,
	}
}

// envelope はバックエンドの統一レスポンス形式を表す。
type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// errorBody はエラーレスポンスのボディを表す。エンベロープ形式とFastAPIの
// detail形式の両方に対応する。
type errorBody struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// do はHTTPリクエストを実行し、エンベロープのdataをoutへデコードする。
// 401はmodel.ErrUnauthenticated、404はmodel.ErrNotFoundへ正規化する。
// endpointはメトリクスのラベルに使う固定の操作名。パスやクエリ文字列を
// そのまま渡すとラベルの値が無制限に増えるため、必ず固定値を指定する。
func (c *Client) do(ctx context.Context, method, path, endpoint string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.setCommonHeaders(ctx, req); err != nil {
		return err
	}

	return c.execute(c.httpClient, req, endpoint, out)
}

// setCommonHeaders は認証トークンとリクエストIDをヘッダーへ付与する。
func (c *Client) setCommonHeaders(ctx context.Context, req *http.Request) error {
	req.Header.Set("X-Request-ID", uuid.NewString())
	req.Header.Set("User-Agent", "Sparkle/1.0 Client")

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("トークンの読み取りに失敗しました: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return nil
}

// execute はリクエストを送信し、ステータスの正規化とdataのデコードを行う。
func (c *Client) execute(client *http.Client, req *http.Request, endpoint string, out any) error {
	start := time.Now()
	resp, err := client.Do(req)
	c.metrics.RecordAPILatency(endpoint, time.Since(start))
	if err != nil {
		c.metrics.RecordAPIRequest(endpoint, 0)
		c.logger.Error("APIリクエストに失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("APIリクエストに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	c.metrics.RecordAPIRequest(endpoint, resp.StatusCode)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%s: %w", endpoint, model.ErrUnauthenticated)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", endpoint, model.ErrNotFound)
	case resp.StatusCode >= 400:
		detail := remoteErrorDetail(respBody)
		c.logger.Warn("APIがエラーステータスを返しました",
			slog.String("endpoint", endpoint),
			slog.Int("http_status", resp.StatusCode),
			slog.String("detail", detail),
		)
		if detail != "" {
			return fmt.Errorf("APIがステータス %d を返しました: %s", resp.StatusCode, detail)
		}
		return fmt.Errorf("APIがステータス %d を返しました", resp.StatusCode)
	}

	if out == nil {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("レスポンスdataのパースに失敗しました: %w", err)
	}
	return nil
}

// remoteErrorDetail はエラーレスポンスからユーザー向けの詳細メッセージを取り出す。
func remoteErrorDetail(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	if eb.Message != "" {
		return eb.Message
	}
	return eb.Detail
}

// --- 認証 ---

// AuthTokens はログイン・サインアップのレスポンスを表す。
type AuthTokens struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// SignupParams はサインアップのリクエストを表す。
type SignupParams struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// Login はメールアドレスとパスワードでログインする。
func (c *Client) Login(ctx context.Context, email, password string) (*AuthTokens, error) {
	body := map[string]string{"email": email, "password": password}
	var tokens AuthTokens
	if err := c.do(ctx, http.MethodPost, "/auth/login", "login", body, &tokens); err != nil {
		return nil, err
	}
	return &tokens, nil
}

// Signup は新規ユーザーを登録する。成功時は即時ログインと等価に扱える。
func (c *Client) Signup(ctx context.Context, params SignupParams) (*AuthTokens, error) {
	var tokens AuthTokens
	if err := c.do(ctx, http.MethodPost, "/auth/signup", "signup", params, &tokens); err != nil {
		return nil, err
	}
	return &tokens, nil
}

// Me は現在のユーザー情報を取得する。
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := c.do(ctx, http.MethodGet, "/auth/me", "me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// --- オンボーディング ---

// GetBlueprint はブランド設計図を取得する。
// 未作成の場合はmodel.ErrNotFoundを返す（新規ユーザーの正常系）。
func (c *Client) GetBlueprint(ctx context.Context) (*model.BrandBlueprint, error) {
	var bp model.BrandBlueprint
	if err := c.do(ctx, http.MethodGet, "/onboarding/brand-blueprint", "get_blueprint", nil, &bp); err != nil {
		return nil, err
	}
	return &bp, nil
}

// CreateBlueprint はブランド設計図を新規作成する。
func (c *Client) CreateBlueprint(ctx context.Context, payload model.BlueprintPayload) (*model.BrandBlueprint, error) {
	var bp model.BrandBlueprint
	if err := c.do(ctx, http.MethodPost, "/onboarding/brand-blueprint", "create_blueprint", payload, &bp); err != nil {
		return nil, err
	}
	return &bp, nil
}

// UpdateBlueprint は既存のブランド設計図を更新する。
func (c *Client) UpdateBlueprint(ctx context.Context, payload model.BlueprintPayload) (*model.BrandBlueprint, error) {
	var bp model.BrandBlueprint
	if err := c.do(ctx, http.MethodPut, "/onboarding/brand-blueprint", "update_blueprint", payload, &bp); err != nil {
		return nil, err
	}
	return &bp, nil
}

// --- 投稿 ---

// PostCreate は投稿作成のリクエストを表す。
type PostCreate struct {
	Content         string           `json:"content"`
	Hashtags        []string         `json:"hashtags,omitempty"`
	ImageURL        string           `json:"image_url,omitempty"`
	SourceType      model.SourceType `json:"source_type,omitempty"`
	SourceArticleID string           `json:"source_article_id,omitempty"`
}

// PostUpdate は投稿更新のリクエストを表す。
type PostUpdate struct {
	Content  *string  `json:"content,omitempty"`
	Hashtags []string `json:"hashtags,omitempty"`
	ImageURL *string  `json:"image_url,omitempty"`
}

// CreatePost は新規投稿を作成する。
func (c *Client) CreatePost(ctx context.Context, data PostCreate) (*model.Post, error) {
	var post model.Post
	if err := c.do(ctx, http.MethodPost, "/posts", "create_post", data, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// ListPosts は現在のユーザーの投稿一覧を取得する。
// statusFilterが空の場合は全状態を対象とする。limitは最大件数（デフォルト50）。
func (c *Client) ListPosts(ctx context.Context, statusFilter string, limit int) (*model.PostList, error) {
	if limit <= 0 {
		limit = 50
	}
	path := "/posts?limit=" + strconv.Itoa(limit)
	if statusFilter != "" {
		path += "&status_filter=" + statusFilter
	}

	var list model.PostList
	if err := c.do(ctx, http.MethodGet, path, "list_posts", nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetPost は指定IDの投稿を取得する。
func (c *Client) GetPost(ctx context.Context, postID string) (*model.Post, error) {
	var post model.Post
	if err := c.do(ctx, http.MethodGet, "/posts/"+postID, "get_post", nil, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// UpdatePost は投稿の本文・ハッシュタグ・画像を更新する。
func (c *Client) UpdatePost(ctx context.Context, postID string, data PostUpdate) (*model.Post, error) {
	var post model.Post
	if err := c.do(ctx, http.MethodPut, "/posts/"+postID, "update_post", data, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// DeletePost は投稿を削除する。
func (c *Client) DeletePost(ctx context.Context, postID string) error {
	return c.do(ctx, http.MethodDelete, "/posts/"+postID, "delete_post", nil, nil)
}

// SchedulePost は投稿を指定日時で予約する。日時はISO-8601（UTC）で送信する。
func (c *Client) SchedulePost(ctx context.Context, postID string, scheduledFor time.Time) (*model.Post, error) {
	body := map[string]string{"scheduled_for": scheduledFor.UTC().Format(time.RFC3339)}
	var post model.Post
	if err := c.do(ctx, http.MethodPost, "/posts/"+postID+"/schedule", "schedule_post", body, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// PublishPost は投稿を即時公開する。
func (c *Client) PublishPost(ctx context.Context, postID string) (*model.Post, error) {
	var post model.Post
	if err := c.do(ctx, http.MethodPost, "/posts/"+postID+"/publish", "publish_post", nil, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// --- 画像 ---

// imageResult は画像アップロード・生成のレスポンスを表す。
type imageResult struct {
	ImageURL string `json:"image_url"`
}

// UploadImage は画像をmultipartでアップロードし、公開URLを返す。
func (c *Client) UploadImage(ctx context.Context, filename string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("multipartフォームの作成に失敗しました: %w", err)
	}
	if _, err := io.Copy(fw, r); err != nil {
		return "", fmt.Errorf("画像データの読み取りに失敗しました: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("multipartフォームの終端に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/posts/upload-image", &buf)
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if err := c.setCommonHeaders(ctx, req); err != nil {
		return "", err
	}

	var result imageResult
	if err := c.execute(c.uploadClient, req, "upload_image", &result); err != nil {
		return "", err
	}
	return result.ImageURL, nil
}

// GenerateAIImage は本文またはカスタムプロンプトからAI画像を生成し、URLを返す。
func (c *Client) GenerateAIImage(ctx context.Context, content, customPrompt string) (string, error) {
	body := map[string]string{"content": content}
	if customPrompt != "" {
		body["custom_prompt"] = customPrompt
	}
	var result imageResult
	if err := c.do(ctx, http.MethodPost, "/posts/generate-ai-image", "generate_ai_image", body, &result); err != nil {
		return "", err
	}
	return result.ImageURL, nil
}

// --- AIアシスト ---

// Assist はAIアシストを呼び出す。actionは"continue"等の動作識別子。
func (c *Client) Assist(ctx context.Context, action, text string) (*model.AIAssistResult, error) {
	body := map[string]string{"action": action, "text": text}
	var result model.AIAssistResult
	if err := c.do(ctx, http.MethodPost, "/posts/ai-assist", "assist", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// IsNotFound はエラーがリソース未存在を表すかを判定する。
func IsNotFound(err error) bool {
	return errors.Is(err, model.ErrNotFound)
}

// IsUnauthenticated はエラーが認証切れを表すかを判定する。
func IsUnauthenticated(err error) bool {
	return errors.Is(err, model.ErrUnauthenticated)
}
