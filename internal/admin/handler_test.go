package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ubuygold/contentmill/internal/config"
	"github.com/ubuygold/contentmill/internal/db"
	"github.com/ubuygold/contentmill/internal/generator"
	"github.com/ubuygold/contentmill/internal/keymanager"
	"github.com/ubuygold/contentmill/internal/logger"
	"github.com/ubuygold/contentmill/internal/model"
	"github.com/ubuygold/contentmill/internal/project"
	"github.com/ubuygold/contentmill/internal/publisher"
	"github.com/ubuygold/contentmill/internal/scheduler"
	"github.com/ubuygold/contentmill/internal/secret"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "test-password"

type fakeGenerator struct {
	err    error
	report *generator.PipelineReport
}

func (g *fakeGenerator) GenerateKeywords(ctx context.Context, p *model.Project) (int, error) {
	return 7, g.err
}
func (g *fakeGenerator) GenerateTitles(ctx context.Context, p *model.Project) (int, int, error) {
	return 2, 1, g.err
}
func (g *fakeGenerator) GenerateArticle(ctx context.Context, p *model.Project) (*uint, error) {
	if g.err != nil {
		return nil, g.err
	}
	id := uint(11)
	return &id, nil
}
func (g *fakeGenerator) GenerateAds(ctx context.Context, p *model.Project) (*uint, error) {
	return nil, g.err
}
func (g *fakeGenerator) GenerateBeinParagraphs(ctx context.Context, p *model.Project) (int, error) {
	return 50, g.err
}
func (g *fakeGenerator) GenerateInfoBlocks(ctx context.Context, p *model.Project) (int, error) {
	return 50, g.err
}
func (g *fakeGenerator) GenerateBulletItems(ctx context.Context, p *model.Project) (int, error) {
	return 250, g.err
}
func (g *fakeGenerator) GenerateSupplementary(ctx context.Context, p *model.Project) (*generator.SupplementaryReport, error) {
	return &generator.SupplementaryReport{BeinParagraphs: 50}, g.err
}
func (g *fakeGenerator) RunFullPipeline(ctx context.Context, p *model.Project) (*generator.PipelineReport, error) {
	if g.report != nil {
		return g.report, nil
	}
	return &generator.PipelineReport{ProjectID: p.ID}, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	result    *publisher.Result
	err       error
	requested []*uint
}

func (p *fakePublisher) Publish(ctx context.Context, project *model.Project, articleID *uint) (*publisher.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requested = append(p.requested, articleID)
	return p.result, p.err
}

type testEnv struct {
	router    *gin.Engine
	store     db.Service
	generator *fakeGenerator
	publisher *fakePublisher
}

func setupTestRouter(t *testing.T) *testEnv {
	gin.SetMode(gin.TestMode)
	log := logger.Discard()

	store, err := db.NewService(config.DatabaseConfig{Type: "sqlite", DSN: "file::memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	encodedKey, err := secret.GenerateKey()
	require.NoError(t, err)
	sealer, err := secret.NewSealer(encodedKey)
	require.NoError(t, err)
	km := keymanager.NewKeyManager(store, sealer, config.VaultConfig{DisableKeyThreshold: 5, RevivalCooldownMinutes: 60}, log)

	gen := &fakeGenerator{}
	pub := &fakePublisher{}
	sched := scheduler.NewScheduler(store, gen, pub, log)
	projects := project.NewService(store, sched, log)

	cfg := &config.Config{Admin: config.AdminConfig{Password: testPassword}}
	router := gin.New()
	SetupRoutes(router, NewHandler(km, projects, store, gen, pub, sched, log), cfg)
	return &testEnv{router: router, store: store, generator: gen, publisher: pub}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req, _ = http.NewRequest(method, path, nil)
	} else {
		req, _ = http.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth("admin", testPassword)
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	return resp
}

func (e *testEnv) createProject(t *testing.T, body string) model.Project {
	resp := e.do(http.MethodPost, "/admin/projects", body)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var p model.Project
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &p))
	return p
}

func TestAdminRequiresAuth(t *testing.T) {
	env := setupTestRouter(t)

	req, _ := http.NewRequest(http.MethodGet, "/admin/keys", nil)
	resp := httptest.NewRecorder()
	env.router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	req.SetBasicAuth("admin", "wrong-password")
	resp = httptest.NewRecorder()
	env.router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestKeyHandlers(t *testing.T) {
	env := setupTestRouter(t)

	resp := env.do(http.MethodPost, "/admin/keys", `{"provider": "mistral", "secret": "abc"}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = env.do(http.MethodPost, "/admin/keys", `{"provider": "gemini"}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = env.do(http.MethodPost, "/admin/keys", `{"provider": "Gemini", "name": "main", "secret": "AIza-secret-1234"}`)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var created keymanager.KeyView
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))
	assert.Equal(t, "gemini", created.Provider)
	assert.Equal(t, "****1234", created.MaskedSecret)
	assert.NotContains(t, resp.Body.String(), "AIza-secret")

	resp = env.do(http.MethodGet, "/admin/keys?provider=gemini", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var keys []keymanager.KeyView
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &keys))
	require.Len(t, keys, 1)
	assert.True(t, keys[0].Active)

	keyPath := fmt.Sprintf("/admin/keys/%d", created.ID)

	resp = env.do(http.MethodPut, keyPath+"/active", `{"active": false}`)
	assert.Equal(t, http.StatusOK, resp.Code)
	stored, err := env.store.GetAPIKey(created.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)

	resp = env.do(http.MethodPut, keyPath+"/active", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = env.do(http.MethodPost, keyPath+"/reset", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	stored, err = env.store.GetAPIKey(created.ID)
	require.NoError(t, err)
	assert.True(t, stored.Active)

	resp = env.do(http.MethodDelete, keyPath, "")
	assert.Equal(t, http.StatusNoContent, resp.Code)
	resp = env.do(http.MethodDelete, keyPath, "")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = env.do(http.MethodPost, "/admin/keys/abc/reset", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestProjectHandlers(t *testing.T) {
	env := setupTestRouter(t)

	resp := env.do(http.MethodPost, "/admin/projects", `{"name": "acme", "content_settings": {"article_chapters": 0}}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	p := env.createProject(t, `{"name": "acme", "keyword": "seo-ads"}`)
	assert.NotZero(t, p.ID)
	assert.Equal(t, 10, p.ContentSettings.ArticleChapters)
	assert.Equal(t, 60, p.Schedule.CreationIntervalMinutes)

	projectPath := fmt.Sprintf("/admin/projects/%d", p.ID)

	resp = env.do(http.MethodGet, "/admin/jobs", "")
	assert.JSONEq(t, `[]`, resp.Body.String())

	resp = env.do(http.MethodPut, projectPath, `{"schedule": {"creation_enabled": true, "creation_interval_minutes": 30}}`)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var updated model.Project
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &updated))
	assert.Equal(t, "acme", updated.Name)
	assert.Equal(t, "seo-ads", updated.SeedKeywords)
	assert.True(t, updated.Schedule.CreationEnabled)

	resp = env.do(http.MethodGet, "/admin/jobs", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var jobs []scheduler.JobStatus
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, fmt.Sprintf("creation_%d", p.ID), jobs[0].ID)
	assert.Equal(t, "every 30m0s", jobs[0].Trigger)
	assert.Equal(t, 30, jobs[0].IntervalMinutes)

	resp = env.do(http.MethodGet, projectPath+"/stats", "")
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = env.do(http.MethodGet, "/admin/projects", "")
	var projects []model.Project
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &projects))
	assert.Len(t, projects, 1)

	resp = env.do(http.MethodDelete, projectPath, "")
	assert.Equal(t, http.StatusNoContent, resp.Code)
	resp = env.do(http.MethodGet, projectPath, "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	resp = env.do(http.MethodGet, "/admin/jobs", "")
	assert.JSONEq(t, `[]`, resp.Body.String())
}

func TestUpdateProjectKeepsRowBookkeeping(t *testing.T) {
	env := setupTestRouter(t)
	p := env.createProject(t, `{"name": "acme"}`)
	projectPath := fmt.Sprintf("/admin/projects/%d", p.ID)

	resp := env.do(http.MethodPut, projectPath, `{"ID": 999, "DeletedAt": "2024-01-01T00:00:00Z", "CreatedAt": "2000-01-01T00:00:00Z", "name": "renamed"}`)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = env.do(http.MethodGet, projectPath, "")
	require.Equal(t, http.StatusOK, resp.Code)
	var stored model.Project
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &stored))
	assert.Equal(t, p.ID, stored.ID)
	assert.Equal(t, "renamed", stored.Name)
	assert.False(t, stored.DeletedAt.Valid)
	assert.WithinDuration(t, p.CreatedAt, stored.CreatedAt, time.Second)

	resp = env.do(http.MethodGet, "/admin/projects/999", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestContentHandlers(t *testing.T) {
	env := setupTestRouter(t)
	p := env.createProject(t, `{"name": "acme"}`)
	other := env.createProject(t, `{"name": "other"}`)
	base := fmt.Sprintf("/admin/projects/%d", p.ID)

	resp := env.do(http.MethodGet, base+"/articles", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `[]`, resp.Body.String())

	queued := model.Article{ProjectID: p.ID, Title: "queued"}
	require.NoError(t, env.store.CreateArticle(&queued))
	live := model.Article{ProjectID: p.ID, Title: "live"}
	require.NoError(t, env.store.CreateArticle(&live))
	require.NoError(t, env.store.MarkArticlePublished(live.ID, 5, "https://blog.example/?p=5", time.Now()))
	foreign := model.Article{ProjectID: other.ID, Title: "foreign"}
	require.NoError(t, env.store.CreateArticle(&foreign))

	listTitles := func(query string) []string {
		resp := env.do(http.MethodGet, base+"/articles"+query, "")
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
		var articles []model.Article
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &articles))
		var titles []string
		for _, a := range articles {
			titles = append(titles, a.Title)
		}
		return titles
	}
	assert.Equal(t, []string{"live", "queued"}, listTitles(""))
	assert.Equal(t, []string{"queued"}, listTitles("?published=false"))
	assert.Equal(t, []string{"live"}, listTitles("?published=true"))
	assert.Equal(t, []string{"live"}, listTitles("?limit=1"))

	resp = env.do(http.MethodGet, base+"/articles?published=maybe", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	resp = env.do(http.MethodGet, base+"/articles?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = env.do(http.MethodGet, fmt.Sprintf("%s/articles/%d", base, live.ID), "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"wp_post_url":"https://blog.example/?p=5"`)

	resp = env.do(http.MethodGet, fmt.Sprintf("%s/articles/%d", base, foreign.ID), "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	resp = env.do(http.MethodGet, base+"/articles/4242", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	resp = env.do(http.MethodGet, base+"/articles/abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	resp = env.do(http.MethodGet, "/admin/projects/999/articles", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	_, err := env.store.AddKeywords(p.ID, []string{"alpha", "beta"}, model.SourceSeed)
	require.NoError(t, err)
	resp = env.do(http.MethodGet, base+"/keywords", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var keywords []model.Keyword
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &keywords))
	require.Len(t, keywords, 2)
	assert.Equal(t, "beta", keywords[0].Text)
	assert.False(t, keywords[0].TitleGenerated)
}

func TestStageHandlers(t *testing.T) {
	env := setupTestRouter(t)
	p := env.createProject(t, `{"name": "acme"}`)
	base := fmt.Sprintf("/admin/projects/%d", p.ID)

	tests := []struct {
		stage string
		want  string
	}{
		{"keywords", `{"inserted": 7}`},
		{"titles", `{"blog_titles": 2, "ads_titles": 1}`},
		{"article", `{"article_id": 11}`},
		{"ads", `{"ads_content_id": null}`},
		{"bullets", `{"inserted": 250}`},
	}
	for _, tt := range tests {
		t.Run(tt.stage, func(t *testing.T) {
			resp := env.do(http.MethodPost, base+"/stages/"+tt.stage, "")
			require.Equal(t, http.StatusOK, resp.Code)
			assert.JSONEq(t, tt.want, resp.Body.String())
		})
	}

	resp := env.do(http.MethodPost, base+"/stages/unknown", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = env.do(http.MethodPost, "/admin/projects/999/stages/keywords", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	env.generator.err = fmt.Errorf("gemini: %w", model.ErrNoActiveCredential)
	resp = env.do(http.MethodPost, base+"/stages/article", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)

	env.generator.err = fmt.Errorf("%w: gemini: boom", model.ErrProvider)
	resp = env.do(http.MethodPost, base+"/stages/keywords", "")
	assert.Equal(t, http.StatusBadGateway, resp.Code)
}

func TestPipelineHandler(t *testing.T) {
	env := setupTestRouter(t)
	p := env.createProject(t, `{"name": "acme"}`)
	path := fmt.Sprintf("/admin/projects/%d/pipeline", p.ID)

	resp := env.do(http.MethodPost, path, "")
	assert.Equal(t, http.StatusOK, resp.Code)

	env.generator.report = &generator.PipelineReport{ProjectID: p.ID, Errors: map[string]string{"article": "boom"}}
	resp = env.do(http.MethodPost, path, "")
	assert.Equal(t, http.StatusMultiStatus, resp.Code)
	assert.Contains(t, resp.Body.String(), "boom")
}

func TestPublishHandler(t *testing.T) {
	env := setupTestRouter(t)
	p := env.createProject(t, `{"name": "acme"}`)
	path := fmt.Sprintf("/admin/projects/%d/publish", p.ID)

	resp := env.do(http.MethodPost, path, "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"published":false`)

	env.publisher.result = &publisher.Result{ArticleID: 3, WPPostID: 99, WPPostURL: "https://blog.example/p/99"}
	resp = env.do(http.MethodPost, path, `{"article_id": 3}`)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"wp_post_id":99`)

	require.Len(t, env.publisher.requested, 2)
	assert.Nil(t, env.publisher.requested[0])
	require.NotNil(t, env.publisher.requested[1])
	assert.Equal(t, uint(3), *env.publisher.requested[1])

	env.publisher.err = fmt.Errorf("article 3: %w", model.ErrAlreadyPublished)
	resp = env.do(http.MethodPost, path, `{"article_id": 3}`)
	assert.Equal(t, http.StatusConflict, resp.Code)

	env.publisher.err = fmt.Errorf("project 1: %w", model.ErrConfiguration)
	resp = env.do(http.MethodPost, path, "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{model.ErrNotFound, http.StatusNotFound},
		{model.ErrConfiguration, http.StatusBadRequest},
		{model.ErrAlreadyPublished, http.StatusConflict},
		{model.ErrNoActiveCredential, http.StatusServiceUnavailable},
		{model.ErrMalformedResponse, http.StatusBadGateway},
		{model.ErrRemoteIntegration, http.StatusBadGateway},
		{fmt.Errorf("%w: post 5: %w", model.ErrPartialPublish, assert.AnError), http.StatusInternalServerError},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
