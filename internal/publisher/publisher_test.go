package publisher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ubuygold/contentmill/internal/config"
	"github.com/ubuygold/contentmill/internal/db"
	"github.com/ubuygold/contentmill/internal/logger"
	"github.com/ubuygold/contentmill/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCMS struct {
	mu    sync.Mutex
	posts []Post
	err   error
}

func (f *fakeCMS) CreatePost(ctx context.Context, creds model.WordPress, post Post) (*PostResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, post)
	if f.err != nil {
		return nil, f.err
	}
	id := int64(100 + len(f.posts))
	return &PostResult{ID: id, Link: fmt.Sprintf("https://blog.example/?p=%d", id)}, nil
}

type fakeArchiver struct {
	keys []string
	err  error
}

func (f *fakeArchiver) Archive(ctx context.Context, key string, html []byte) error {
	f.keys = append(f.keys, key)
	return f.err
}

// failingCommitStore fails every publish commit.
type failingCommitStore struct {
	db.Service
}

func (s failingCommitStore) MarkArticlePublished(id uint, postID int64, postURL string, at time.Time) error {
	return errors.New("database is locked")
}

func setupPublisher(t *testing.T) (db.Service, *model.Project) {
	service, err := db.NewService(config.DatabaseConfig{Type: "sqlite", DSN: "file::memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = service.Close() })

	project := model.DefaultProject()
	project.Name = "acme"
	project.WordPress = model.WordPress{URL: "https://blog.example", Username: "editor", AppPassword: "secret", CategoryID: 3}
	require.NoError(t, service.CreateProject(&project))
	return service, &project
}

func addArticle(t *testing.T, service db.Service, projectID uint) *model.Article {
	article := &model.Article{
		ProjectID: projectID,
		Title:     "Fixing leaks",
		Slug:      "fixing-leaks",
		Chapters:  []model.Chapter{{Title: "A", Content: "c1"}, {Title: "B", Content: "c2"}},
		FAQ:       "<table>faq</table>",
	}
	require.NoError(t, service.CreateArticle(article))
	return article
}

func TestPublish(t *testing.T) {
	service, project := setupPublisher(t)
	article := addArticle(t, service, project.ID)
	_, _ = service.AddBeinParagraphs(project.ID, []string{"bein"})
	_, _ = service.AddBulletItems(project.ID, []string{"bullet"})
	_, _ = service.AddInfoBlocks(project.ID, []string{"<p>info</p>"})

	cms := &fakeCMS{}
	archiver := &fakeArchiver{}
	p := NewPublisher(service, cms, archiver, config.DefaultHeadingColors, logger.Discard())

	result, err := p.Publish(context.Background(), project, nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, article.ID, result.ArticleID)
	assert.Equal(t, int64(101), result.WPPostID)

	require.Len(t, cms.posts, 1)
	post := cms.posts[0]
	assert.Equal(t, "Fixing leaks", post.Title)
	assert.Equal(t, "fixing-leaks", post.Slug)
	assert.Equal(t, int64(3), post.CategoryID)
	assert.Contains(t, post.Content, "<blockquote>bein</blockquote>")
	assert.True(t, strings.HasSuffix(post.Content, "<table>faq</table>\n<strong>bullet</strong>\n<p>info</p>"))

	stored, err := service.GetArticle(article.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsPublished)
	require.NotNil(t, stored.WPPostID)
	assert.Equal(t, int64(101), *stored.WPPostID)
	assert.NotNil(t, stored.WPPostURL)
	assert.NotNil(t, stored.PublishedAt)

	assert.Equal(t, []string{"projects/1/articles/1.html"}, archiver.keys)

	// Nothing left to publish.
	result, err = p.Publish(context.Background(), project, nil)
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.Len(t, cms.posts, 1)
}

func TestPublishMissingCredentials(t *testing.T) {
	service, project := setupPublisher(t)
	article := addArticle(t, service, project.ID)
	project.WordPress.Username = ""

	cms := &fakeCMS{}
	p := NewPublisher(service, cms, nil, config.DefaultHeadingColors, logger.Discard())

	_, err := p.Publish(context.Background(), project, &article.ID)
	assert.ErrorIs(t, err, model.ErrConfiguration)
	assert.Empty(t, cms.posts)

	stored, err := service.GetArticle(article.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsPublished)
}

func TestPublishRemoteFailureLeavesArticleUnpublished(t *testing.T) {
	service, project := setupPublisher(t)
	article := addArticle(t, service, project.ID)

	cms := &fakeCMS{err: model.ErrRemoteIntegration}
	p := NewPublisher(service, cms, nil, config.DefaultHeadingColors, logger.Discard())

	_, err := p.Publish(context.Background(), project, nil)
	assert.ErrorIs(t, err, model.ErrRemoteIntegration)

	stored, _ := service.GetArticle(article.ID)
	assert.False(t, stored.IsPublished)
	assert.Nil(t, stored.WPPostID)
	assert.Nil(t, stored.PublishedAt)
}

func TestPublishExplicitArticle(t *testing.T) {
	service, project := setupPublisher(t)
	first := addArticle(t, service, project.ID)
	second := addArticle(t, service, project.ID)

	cms := &fakeCMS{}
	p := NewPublisher(service, cms, nil, config.DefaultHeadingColors, logger.Discard())

	result, err := p.Publish(context.Background(), project, &second.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, result.ArticleID)

	stored, _ := service.GetArticle(first.ID)
	assert.False(t, stored.IsPublished)

	_, err = p.Publish(context.Background(), project, &second.ID)
	assert.ErrorIs(t, err, model.ErrAlreadyPublished)
	assert.Len(t, cms.posts, 1)

	missing := uint(999)
	_, err = p.Publish(context.Background(), project, &missing)
	assert.ErrorIs(t, err, model.ErrNotFound)

	other := model.DefaultProject()
	other.Name = "other"
	other.WordPress = project.WordPress
	require.NoError(t, service.CreateProject(&other))
	_, err = p.Publish(context.Background(), &other, &first.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestPublishCommitFailureIsPartial(t *testing.T) {
	service, project := setupPublisher(t)
	article := addArticle(t, service, project.ID)

	cms := &fakeCMS{}
	archiver := &fakeArchiver{}
	p := NewPublisher(failingCommitStore{service}, cms, archiver, config.DefaultHeadingColors, logger.Discard())

	_, err := p.Publish(context.Background(), project, &article.ID)
	assert.ErrorIs(t, err, model.ErrPartialPublish)
	assert.Contains(t, err.Error(), "wp post 101")
	assert.Len(t, cms.posts, 1)
	assert.Empty(t, archiver.keys)
}

func TestPublishArchiveFailureIsIgnored(t *testing.T) {
	service, project := setupPublisher(t)
	addArticle(t, service, project.ID)

	p := NewPublisher(service, &fakeCMS{}, &fakeArchiver{err: errors.New("bucket gone")}, config.DefaultHeadingColors, logger.Discard())
	result, err := p.Publish(context.Background(), project, nil)
	require.NoError(t, err)
	assert.NotNil(t, result)
}
