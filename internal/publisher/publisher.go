// Package publisher assembles generated articles into HTML posts and publishes them to
// a project's WordPress site exactly once.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/ubuygold/contentmill/internal/metrics"
	"github.com/ubuygold/contentmill/internal/model"
)

// beinsPerPost is the number of bein paragraphs sampled for a post.
const beinsPerPost = 3

// Store is the part of the content store the publisher reads and commits to.
type Store interface {
	GetArticle(id uint) (*model.Article, error)
	SampleUnpublishedArticle(projectID uint) (*model.Article, error)
	MarkArticlePublished(id uint, postID int64, postURL string, at time.Time) error
	SampleBeinParagraphs(projectID uint, n int) ([]model.BeinParagraph, error)
	SampleInfoBlock(projectID uint) (*model.InfoBlock, error)
	SampleBulletItem(projectID uint) (*model.BulletItem, error)
}

// CMS creates posts on a remote site.
type CMS interface {
	CreatePost(ctx context.Context, creds model.WordPress, post Post) (*PostResult, error)
}

// Archiver stores a copy of published HTML.
type Archiver interface {
	Archive(ctx context.Context, key string, html []byte) error
}

// Result describes a successful publication.
type Result struct {
	ArticleID uint   `json:"article_id"`
	Title     string `json:"article_title"`
	WPPostID  int64  `json:"wp_post_id"`
	WPPostURL string `json:"wp_post_url"`
}

// Publisher publishes articles to WordPress.
type Publisher struct {
	store    Store
	cms      CMS
	archiver Archiver
	palette  []string
	logger   *slog.Logger
	now      func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewPublisher creates a publisher. archiver may be nil.
func NewPublisher(store Store, cms CMS, archiver Archiver, palette []string, logger *slog.Logger) *Publisher {
	return &Publisher{
		store:    store,
		cms:      cms,
		archiver: archiver,
		palette:  palette,
		logger:   logger.With("component", "publisher"),
		now:      func() time.Time { return time.Now().UTC() },
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Publish sends one article of the project to its WordPress site. With a nil articleID a
// random unpublished article is chosen, and nil, nil is returned when there is none.
// The local commit happens only after the remote post exists; if it fails the error
// wraps model.ErrPartialPublish and names the remote post.
func (p *Publisher) Publish(ctx context.Context, project *model.Project, articleID *uint) (*Result, error) {
	if !project.WordPress.Complete() {
		return nil, fmt.Errorf("project %d has incomplete WordPress credentials: %w", project.ID, model.ErrConfiguration)
	}

	article, err := p.pickArticle(project, articleID)
	if err != nil || article == nil {
		return nil, err
	}

	supp, err := p.sampleSupplement(project.ID)
	if err != nil {
		return nil, err
	}
	html := Assemble(article, supp, p.pickColors())

	post, err := p.cms.CreatePost(ctx, project.WordPress, Post{
		Title:      article.Title,
		Content:    html,
		Slug:       article.Slug,
		CategoryID: project.WordPress.CategoryID,
	})
	if err != nil {
		metrics.Publications.WithLabelValues("remote_error").Inc()
		return nil, err
	}

	if err := p.store.MarkArticlePublished(article.ID, post.ID, post.Link, p.now()); err != nil {
		metrics.Publications.WithLabelValues("partial").Inc()
		p.logger.Error("Remote post created but local commit failed",
			"project_id", project.ID, "article_id", article.ID, "wp_post_id", post.ID, "wp_post_url", post.Link, "error", err)
		return nil, fmt.Errorf("%w: article %d, wp post %d (%s): %w", model.ErrPartialPublish, article.ID, post.ID, post.Link, err)
	}
	metrics.Publications.WithLabelValues("success").Inc()
	p.logger.Info("Published article", "project_id", project.ID, "article_id", article.ID, "wp_post_url", post.Link)

	if p.archiver != nil {
		key := fmt.Sprintf("projects/%d/articles/%d.html", project.ID, article.ID)
		if err := p.archiver.Archive(ctx, key, []byte(html)); err != nil {
			p.logger.Warn("Failed to archive published article", "article_id", article.ID, "error", err)
		}
	}

	return &Result{
		ArticleID: article.ID,
		Title:     article.Title,
		WPPostID:  post.ID,
		WPPostURL: post.Link,
	}, nil
}

func (p *Publisher) pickArticle(project *model.Project, articleID *uint) (*model.Article, error) {
	if articleID == nil {
		article, err := p.store.SampleUnpublishedArticle(project.ID)
		if err != nil {
			return nil, err
		}
		if article == nil {
			p.logger.Info("No unpublished articles", "project_id", project.ID)
		}
		return article, nil
	}

	article, err := p.store.GetArticle(*articleID)
	if err != nil {
		return nil, err
	}
	if article.ProjectID != project.ID {
		return nil, fmt.Errorf("article %d does not belong to project %d: %w", article.ID, project.ID, model.ErrNotFound)
	}
	if article.IsPublished {
		return nil, fmt.Errorf("article %d: %w", article.ID, model.ErrAlreadyPublished)
	}
	return article, nil
}

func (p *Publisher) sampleSupplement(projectID uint) (Supplement, error) {
	var supp Supplement
	beins, err := p.store.SampleBeinParagraphs(projectID, beinsPerPost)
	if err != nil {
		return supp, err
	}
	for _, b := range beins {
		supp.Beins = append(supp.Beins, b.Text)
	}
	bullet, err := p.store.SampleBulletItem(projectID)
	if err != nil {
		return supp, err
	}
	if bullet != nil {
		supp.Bullet = bullet.Text
	}
	info, err := p.store.SampleInfoBlock(projectID)
	if err != nil {
		return supp, err
	}
	if info != nil {
		supp.Info = info.Text
	}
	return supp, nil
}

func (p *Publisher) pickColors() []string {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return PickColors(p.rng, p.palette)
}

