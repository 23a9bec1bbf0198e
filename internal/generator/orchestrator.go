// Package generator runs the content generation stages of a project: keywords, titles,
// articles, ads copy and the supplementary pools used when publishing.
package generator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ubuygold/contentmill/internal/lease"
	"github.com/ubuygold/contentmill/internal/metrics"
	"github.com/ubuygold/contentmill/internal/model"
)

// Batch sizes requested from the model by the supplementary stages.
const (
	BeinBatchSize   = 50
	InfoBatchSize   = 50
	BulletBatchSize = 250
)

// Stage names used in logs, metrics and pipeline reports.
const (
	StageKeywords = "keywords"
	StageTitles   = "titles"
	StageArticle  = "article"
	StageAds      = "ads"
	StageBein     = "bein"
	StageInfo     = "info"
	StageBullets  = "bullets"
)

// AI is the text generation backend of the orchestrator.
type AI interface {
	GenerateText(ctx context.Context, prompt, system string) (string, error)
	GenerateJSON(ctx context.Context, prompt, system string) (map[string]any, error)
}

// Store is the part of the content store the orchestrator writes to.
type Store interface {
	AddKeywords(projectID uint, texts []string, source string) (int, error)
	SampleUnusedKeyword(projectID uint) (*model.Keyword, error)
	MarkKeywordUsed(id uint) error
	AddBlogTitles(projectID uint, keyword string, titles []string) (int, error)
	SampleUnusedBlogTitle(projectID uint) (*model.BlogTitle, error)
	MarkBlogTitleUsed(id uint) error
	AddAdsTitles(projectID uint, keyword string, titles []string) (int, error)
	SampleUnusedAdsTitle(projectID uint) (*model.AdsTitle, error)
	MarkAdsTitleUsed(id uint) error
	CreateArticle(article *model.Article) error
	CreateAdsContent(content *model.AdsContent) error
	AddBeinParagraphs(projectID uint, texts []string) (int, error)
	AddInfoBlocks(projectID uint, texts []string) (int, error)
	AddBulletItems(projectID uint, texts []string) (int, error)
}

// Orchestrator runs generation stages for projects. Every public stage runs under the
// project lease of the configured guard; with lease.Noop concurrent runs of a stage on
// the same project may consume the same input row twice.
type Orchestrator struct {
	store  Store
	ai     AI
	guard  lease.Guard
	logger *slog.Logger
}

// NewOrchestrator creates an orchestrator. A nil guard disables serialization.
func NewOrchestrator(store Store, ai AI, guard lease.Guard, logger *slog.Logger) *Orchestrator {
	if guard == nil {
		guard = lease.Noop{}
	}
	return &Orchestrator{
		store:  store,
		ai:     ai,
		guard:  guard,
		logger: logger.With("component", "generator"),
	}
}

// guarded runs fn while holding the lease of the project.
func (o *Orchestrator) guarded(ctx context.Context, projectID uint, fn func(ctx context.Context) error) error {
	release, err := o.guard.Acquire(ctx, leaseKey(projectID))
	if err != nil {
		return fmt.Errorf("failed to acquire project lease: %w", err)
	}
	defer release()
	return fn(ctx)
}

func leaseKey(projectID uint) string {
	return fmt.Sprintf("project:%d", projectID)
}

// observe records the outcome of a stage.
func (o *Orchestrator) observe(stage string, projectID uint, err error) {
	metrics.StageRuns.WithLabelValues(stage, metrics.Outcome(err)).Inc()
	if err != nil {
		o.logger.Error("Stage failed", "stage", stage, "project_id", projectID, "error", err)
	}
}

// GenerateKeywords inserts the seed keywords of the project and a batch of AI keywords.
func (o *Orchestrator) GenerateKeywords(ctx context.Context, project *model.Project) (int, error) {
	var n int
	err := o.guarded(ctx, project.ID, func(ctx context.Context) error {
		var err error
		n, err = o.generateKeywords(ctx, project)
		return err
	})
	o.observe(StageKeywords, project.ID, err)
	return n, err
}

// GenerateTitles turns one unused keyword into blog and ads titles.
func (o *Orchestrator) GenerateTitles(ctx context.Context, project *model.Project) (blog, ads int, err error) {
	err = o.guarded(ctx, project.ID, func(ctx context.Context) error {
		var err error
		blog, ads, err = o.generateTitles(ctx, project)
		return err
	})
	o.observe(StageTitles, project.ID, err)
	return blog, ads, err
}

// GenerateArticle writes one article from an unused blog title. It returns nil when
// the title pool is empty.
func (o *Orchestrator) GenerateArticle(ctx context.Context, project *model.Project) (*uint, error) {
	var id *uint
	err := o.guarded(ctx, project.ID, func(ctx context.Context) error {
		var err error
		id, err = o.generateArticle(ctx, project)
		return err
	})
	o.observe(StageArticle, project.ID, err)
	return id, err
}

// GenerateAds writes promotional copy for one unused ads title. It returns nil when
// the ads title pool is empty.
func (o *Orchestrator) GenerateAds(ctx context.Context, project *model.Project) (*uint, error) {
	var id *uint
	err := o.guarded(ctx, project.ID, func(ctx context.Context) error {
		var err error
		id, err = o.generateAds(ctx, project)
		return err
	})
	o.observe(StageAds, project.ID, err)
	return id, err
}

func (o *Orchestrator) GenerateBeinParagraphs(ctx context.Context, project *model.Project) (int, error) {
	var n int
	err := o.guarded(ctx, project.ID, func(ctx context.Context) error {
		var err error
		n, err = o.generateBein(ctx, project)
		return err
	})
	o.observe(StageBein, project.ID, err)
	return n, err
}

func (o *Orchestrator) GenerateInfoBlocks(ctx context.Context, project *model.Project) (int, error) {
	var n int
	err := o.guarded(ctx, project.ID, func(ctx context.Context) error {
		var err error
		n, err = o.generateInfo(ctx, project)
		return err
	})
	o.observe(StageInfo, project.ID, err)
	return n, err
}

func (o *Orchestrator) GenerateBulletItems(ctx context.Context, project *model.Project) (int, error) {
	var n int
	err := o.guarded(ctx, project.ID, func(ctx context.Context) error {
		var err error
		n, err = o.generateBullets(ctx, project)
		return err
	})
	o.observe(StageBullets, project.ID, err)
	return n, err
}

// SupplementaryReport holds the inserted counts of the three supplementary generators.
type SupplementaryReport struct {
	BeinParagraphs int               `json:"bein_paragraphs"`
	InfoBlocks     int               `json:"info_blocks"`
	BulletItems    int               `json:"bullet_items"`
	Errors         map[string]string `json:"errors,omitempty"`
}

// GenerateSupplementary runs the three supplementary generators. A failure of one does
// not stop the others.
func (o *Orchestrator) GenerateSupplementary(ctx context.Context, project *model.Project) (*SupplementaryReport, error) {
	report := &SupplementaryReport{}
	err := o.guarded(ctx, project.ID, func(ctx context.Context) error {
		record := func(stage string, err error) {
			o.observe(stage, project.ID, err)
			if err != nil {
				if report.Errors == nil {
					report.Errors = make(map[string]string)
				}
				report.Errors[stage] = err.Error()
			}
		}
		var err error
		report.BeinParagraphs, err = o.generateBein(ctx, project)
		record(StageBein, err)
		report.InfoBlocks, err = o.generateInfo(ctx, project)
		record(StageInfo, err)
		report.BulletItems, err = o.generateBullets(ctx, project)
		record(StageBullets, err)
		return nil
	})
	return report, err
}

// PipelineReport is the per-stage outcome of a full pipeline run.
type PipelineReport struct {
	ProjectID      uint              `json:"project_id"`
	Keywords       int               `json:"keywords"`
	BlogTitles     int               `json:"blog_titles"`
	AdsTitles      int               `json:"ads_titles"`
	ArticleID      *uint             `json:"article_id"`
	AdsContentID   *uint             `json:"ads_content_id"`
	BeinParagraphs int               `json:"bein_paragraphs"`
	InfoBlocks     int               `json:"info_blocks"`
	BulletItems    int               `json:"bullet_items"`
	Errors         map[string]string `json:"errors,omitempty"`
}

// Failed reports whether any stage failed.
func (r *PipelineReport) Failed() bool {
	return len(r.Errors) > 0
}

func (r *PipelineReport) record(stage string, err error) {
	if err == nil {
		return
	}
	if r.Errors == nil {
		r.Errors = make(map[string]string)
	}
	r.Errors[stage] = err.Error()
}

// RunFullPipeline runs every stage in order. Each stage's error is recorded in the
// report and the later stages still run. The returned error is only set when the
// project lease could not be acquired.
func (o *Orchestrator) RunFullPipeline(ctx context.Context, project *model.Project) (*PipelineReport, error) {
	report := &PipelineReport{ProjectID: project.ID}
	err := o.guarded(ctx, project.ID, func(ctx context.Context) error {
		var err error

		report.Keywords, err = o.generateKeywords(ctx, project)
		o.observe(StageKeywords, project.ID, err)
		report.record(StageKeywords, err)

		report.BlogTitles, report.AdsTitles, err = o.generateTitles(ctx, project)
		o.observe(StageTitles, project.ID, err)
		report.record(StageTitles, err)

		report.ArticleID, err = o.generateArticle(ctx, project)
		o.observe(StageArticle, project.ID, err)
		report.record(StageArticle, err)

		report.AdsContentID, err = o.generateAds(ctx, project)
		o.observe(StageAds, project.ID, err)
		report.record(StageAds, err)

		report.BeinParagraphs, err = o.generateBein(ctx, project)
		o.observe(StageBein, project.ID, err)
		report.record(StageBein, err)

		report.InfoBlocks, err = o.generateInfo(ctx, project)
		o.observe(StageInfo, project.ID, err)
		report.record(StageInfo, err)

		report.BulletItems, err = o.generateBullets(ctx, project)
		o.observe(StageBullets, project.ID, err)
		report.record(StageBullets, err)
		return nil
	})
	if err != nil {
		return nil, err
	}
	o.logger.Info("Pipeline finished", "project_id", project.ID, "failed_stages", len(report.Errors))
	return report, nil
}
