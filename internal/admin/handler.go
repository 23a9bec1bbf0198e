package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ubuygold/contentmill/internal/generator"
	"github.com/ubuygold/contentmill/internal/keymanager"
	"github.com/ubuygold/contentmill/internal/model"
	"github.com/ubuygold/contentmill/internal/provider"
	"github.com/ubuygold/contentmill/internal/publisher"
	"github.com/ubuygold/contentmill/internal/scheduler"

	"github.com/gin-gonic/gin"
)

// KeyAdmin is the part of the vault exposed to operators.
type KeyAdmin interface {
	AddKey(provider, name, plain string) (*keymanager.KeyView, error)
	ListKeys(provider string) ([]keymanager.KeyView, error)
	DeleteKey(keyID uint) error
	ResetKey(keyID uint) error
	SetActive(keyID uint, active bool) error
}

// Projects manages project profiles.
type Projects interface {
	Create(p *model.Project) error
	Update(id uint, p *model.Project) error
	Delete(id uint) error
	Get(id uint) (*model.Project, error)
	List() ([]model.Project, error)
	Stats(id uint) (*model.ProjectStats, error)
}

// Content exposes the generated pools of a project for inspection.
type Content interface {
	ListArticles(projectID uint, published *bool, limit int) ([]model.Article, error)
	GetArticle(id uint) (*model.Article, error)
	ListKeywords(projectID uint, limit int) ([]model.Keyword, error)
}

// Generator runs pipeline stages on demand.
type Generator interface {
	GenerateKeywords(ctx context.Context, project *model.Project) (int, error)
	GenerateTitles(ctx context.Context, project *model.Project) (blog, ads int, err error)
	GenerateArticle(ctx context.Context, project *model.Project) (*uint, error)
	GenerateAds(ctx context.Context, project *model.Project) (*uint, error)
	GenerateBeinParagraphs(ctx context.Context, project *model.Project) (int, error)
	GenerateInfoBlocks(ctx context.Context, project *model.Project) (int, error)
	GenerateBulletItems(ctx context.Context, project *model.Project) (int, error)
	GenerateSupplementary(ctx context.Context, project *model.Project) (*generator.SupplementaryReport, error)
	RunFullPipeline(ctx context.Context, project *model.Project) (*generator.PipelineReport, error)
}

type Publisher interface {
	Publish(ctx context.Context, project *model.Project, articleID *uint) (*publisher.Result, error)
}

type Jobs interface {
	Status() []scheduler.JobStatus
}

// Handler serves the ops surface.
type Handler struct {
	keys      KeyAdmin
	projects  Projects
	content   Content
	generator Generator
	publisher Publisher
	jobs      Jobs
	logger    *slog.Logger
}

func NewHandler(keys KeyAdmin, projects Projects, content Content, gen Generator, pub Publisher, jobs Jobs, logger *slog.Logger) *Handler {
	return &Handler{
		keys:      keys,
		projects:  projects,
		content:   content,
		generator: gen,
		publisher: pub,
		jobs:      jobs,
		logger:    logger.With("component", "admin"),
	}
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrAlreadyPublished):
		return http.StatusConflict
	case errors.Is(err, model.ErrNoActiveCredential):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrPartialPublish):
		return http.StatusInternalServerError
	case errors.Is(err, model.ErrProvider), errors.Is(err, model.ErrMalformedResponse), errors.Is(err, model.ErrRemoteIntegration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return uint(id), true
}

func (h *Handler) loadProject(c *gin.Context) (*model.Project, bool) {
	id, ok := parseID(c, "id")
	if !ok {
		return nil, false
	}
	project, err := h.projects.Get(id)
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return project, true
}

// Keys

type addKeyRequest struct {
	Provider string `json:"provider" binding:"required"`
	Name     string `json:"name"`
	Secret   string `json:"secret" binding:"required"`
}

func (h *Handler) ListKeysHandler(c *gin.Context) {
	keys, err := h.keys.ListKeys(c.Query("provider"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, keys)
}

func (h *Handler) AddKeyHandler(c *gin.Context) {
	var req addKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	tag, err := provider.ParseTag(req.Provider)
	if err != nil {
		h.fail(c, err)
		return
	}
	view, err := h.keys.AddKey(string(tag), req.Name, req.Secret)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *Handler) DeleteKeyHandler(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.keys.DeleteKey(id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ResetKeyHandler(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.keys.ResetKey(id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Key reset"})
}

type setActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

func (h *Handler) SetKeyActiveHandler(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := h.keys.SetActive(id, *req.Active); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "active": *req.Active})
}

// Projects

func (h *Handler) ListProjectsHandler(c *gin.Context) {
	projects, err := h.projects.List()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, projects)
}

func (h *Handler) CreateProjectHandler(c *gin.Context) {
	project := model.DefaultProject()
	if err := c.ShouldBindJSON(&project); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := h.projects.Create(&project); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

func (h *Handler) GetProjectHandler(c *gin.Context) {
	project, ok := h.loadProject(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, project)
}

// UpdateProjectHandler applies the request body on top of the stored project, so
// omitted fields keep their current values.
func (h *Handler) UpdateProjectHandler(c *gin.Context) {
	project, ok := h.loadProject(c)
	if !ok {
		return
	}
	id := project.ID
	if err := c.ShouldBindJSON(project); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := h.projects.Update(id, project); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (h *Handler) DeleteProjectHandler(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.projects.Delete(id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ProjectStatsHandler(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	stats, err := h.projects.Stats(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Content

const defaultListLimit = 100

func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return 0, false
	}
	return limit, true
}

// ListArticlesHandler lists a project's articles, newest first. The optional
// published query parameter narrows the list to the publish queue or its history.
func (h *Handler) ListArticlesHandler(c *gin.Context) {
	project, ok := h.loadProject(c)
	if !ok {
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	var published *bool
	if raw := c.Query("published"); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid published filter"})
			return
		}
		published = &value
	}
	articles, err := h.content.ListArticles(project.ID, published, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, articles)
}

func (h *Handler) GetArticleHandler(c *gin.Context) {
	project, ok := h.loadProject(c)
	if !ok {
		return
	}
	articleID, ok := parseID(c, "article_id")
	if !ok {
		return
	}
	article, err := h.content.GetArticle(articleID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if article.ProjectID != project.ID {
		c.JSON(http.StatusNotFound, gin.H{"error": "Article not found"})
		return
	}
	c.JSON(http.StatusOK, article)
}

func (h *Handler) ListKeywordsHandler(c *gin.Context) {
	project, ok := h.loadProject(c)
	if !ok {
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	keywords, err := h.content.ListKeywords(project.ID, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, keywords)
}

// Generation

// RunStageHandler triggers one pipeline stage for a project.
func (h *Handler) RunStageHandler(c *gin.Context) {
	project, ok := h.loadProject(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var (
		body gin.H
		err  error
	)
	switch stage := c.Param("stage"); stage {
	case generator.StageKeywords:
		var n int
		n, err = h.generator.GenerateKeywords(ctx, project)
		body = gin.H{"inserted": n}
	case generator.StageTitles:
		var blog, ads int
		blog, ads, err = h.generator.GenerateTitles(ctx, project)
		body = gin.H{"blog_titles": blog, "ads_titles": ads}
	case generator.StageArticle:
		var id *uint
		id, err = h.generator.GenerateArticle(ctx, project)
		body = gin.H{"article_id": id}
	case generator.StageAds:
		var id *uint
		id, err = h.generator.GenerateAds(ctx, project)
		body = gin.H{"ads_content_id": id}
	case generator.StageBein:
		var n int
		n, err = h.generator.GenerateBeinParagraphs(ctx, project)
		body = gin.H{"inserted": n}
	case generator.StageInfo:
		var n int
		n, err = h.generator.GenerateInfoBlocks(ctx, project)
		body = gin.H{"inserted": n}
	case generator.StageBullets:
		var n int
		n, err = h.generator.GenerateBulletItems(ctx, project)
		body = gin.H{"inserted": n}
	case "supplementary":
		var report *generator.SupplementaryReport
		report, err = h.generator.GenerateSupplementary(ctx, project)
		body = gin.H{"report": report}
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown stage " + stage})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) RunPipelineHandler(c *gin.Context) {
	project, ok := h.loadProject(c)
	if !ok {
		return
	}
	report, err := h.generator.RunFullPipeline(c.Request.Context(), project)
	if err != nil {
		h.fail(c, err)
		return
	}
	status := http.StatusOK
	if report.Failed() {
		status = http.StatusMultiStatus
	}
	c.JSON(status, report)
}

// Publishing

type publishRequest struct {
	ArticleID *uint `json:"article_id"`
}

func (h *Handler) PublishHandler(c *gin.Context) {
	project, ok := h.loadProject(c)
	if !ok {
		return
	}
	var req publishRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}
	result, err := h.publisher.Publish(c.Request.Context(), project, req.ArticleID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if result == nil {
		c.JSON(http.StatusOK, gin.H{"published": false, "message": "No unpublished article available"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"published": true, "result": result})
}

// Jobs

func (h *Handler) JobsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, h.jobs.Status())
}
