package generator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ubuygold/contentmill/internal/config"
	"github.com/ubuygold/contentmill/internal/db"
	"github.com/ubuygold/contentmill/internal/lease"
	"github.com/ubuygold/contentmill/internal/logger"
	"github.com/ubuygold/contentmill/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAI answers prompts with canned replies and records what it was asked.
type fakeAI struct {
	mu      sync.Mutex
	prompts []string
	systems []string
	text    func(prompt string) (string, error)
	json    func(prompt string) (map[string]any, error)
}

func (f *fakeAI) record(prompt, system string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.systems = append(f.systems, system)
}

func (f *fakeAI) GenerateText(ctx context.Context, prompt, system string) (string, error) {
	f.record(prompt, system)
	if f.text == nil {
		return "", errors.New("unexpected text call")
	}
	return f.text(prompt)
}

func (f *fakeAI) GenerateJSON(ctx context.Context, prompt, system string) (map[string]any, error) {
	f.record(prompt, system)
	if f.json == nil {
		return nil, errors.New("unexpected json call")
	}
	return f.json(prompt)
}

func setup(t *testing.T, ai AI) (*Orchestrator, db.Service, *model.Project) {
	service, err := db.NewService(config.DatabaseConfig{Type: "sqlite", DSN: "file::memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = service.Close() })

	project := model.DefaultProject()
	project.Name = "acme"
	project.CompanyName = "Acme"
	project.ServicesProducts = "plumbing"
	project.BusinessField = "home services"
	project.Lang = "en"
	require.NoError(t, service.CreateProject(&project))

	return NewOrchestrator(service, ai, nil, logger.Discard()), service, &project
}

func TestGenerateKeywords(t *testing.T) {
	ai := &fakeAI{text: func(string) (string, error) {
		return "alpha\n==============\n beta \n==============\n\n==============gamma", nil
	}}
	o, service, project := setup(t, ai)
	project.SeedKeywords = "seed one - seed two -"

	n, err := o.GenerateKeywords(context.Background(), project)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	require.Len(t, ai.prompts, 1)
	assert.Contains(t, ai.prompts[0], "exactly 5 targeted")
	assert.Contains(t, ai.prompts[0], Delimiter)

	stats, err := service.GetProjectStats(project.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.Keywords)
	assert.Equal(t, int64(5), stats.KeywordsUnused)
}

func TestGenerateKeywordsKeepsSeedsWhenAIFails(t *testing.T) {
	ai := &fakeAI{text: func(string) (string, error) { return "", errors.New("provider down") }}
	o, service, project := setup(t, ai)
	project.SeedKeywords = "a-b"

	n, err := o.GenerateKeywords(context.Background(), project)
	assert.Error(t, err)
	assert.Equal(t, 2, n)

	stats, _ := service.GetProjectStats(project.ID)
	assert.Equal(t, int64(2), stats.Keywords)
}

func TestGenerateTitles(t *testing.T) {
	ai := &fakeAI{json: func(string) (map[string]any, error) {
		return map[string]any{"blog": "T1\nT2", "ads": "A1"}, nil
	}}
	o, service, project := setup(t, ai)
	project.ContentSettings.NumberOfContent = 100
	project.ContentSettings.NumberOfKeyword = 20
	project.ContentSettings.NumberOfAds = 50
	_, err := service.AddKeywords(project.ID, []string{"k"}, model.SourceSeed)
	require.NoError(t, err)

	blog, ads, err := o.GenerateTitles(context.Background(), project)
	require.NoError(t, err)
	assert.Equal(t, 2, blog)
	assert.Equal(t, 1, ads)

	require.Len(t, ai.prompts, 1)
	assert.Contains(t, ai.prompts[0], "1. 6 blog titles")
	assert.Contains(t, ai.prompts[0], "2. 3 advertising titles")
	assert.Contains(t, ai.prompts[0], "Keyword: k")
	assert.Contains(t, ai.prompts[0], `"blog"`)

	keyword, err := service.SampleUnusedKeyword(project.ID)
	require.NoError(t, err)
	assert.Nil(t, keyword)

	title, err := service.SampleUnusedBlogTitle(project.ID)
	require.NoError(t, err)
	require.NotNil(t, title)
	assert.Equal(t, "k", title.Keyword)

	// The keyword pool is now empty, so a second run is a no-op.
	blog, ads, err = o.GenerateTitles(context.Background(), project)
	assert.NoError(t, err)
	assert.Equal(t, 0, blog)
	assert.Equal(t, 0, ads)
	assert.Len(t, ai.prompts, 1)
}

func TestGenerateTitlesWithZeroKeywordTarget(t *testing.T) {
	ai := &fakeAI{json: func(string) (map[string]any, error) { return map[string]any{}, nil }}
	o, service, project := setup(t, ai)
	project.ContentSettings.NumberOfKeyword = 0
	project.ContentSettings.NumberOfContent = 10
	_, _ = service.AddKeywords(project.ID, []string{"k"}, model.SourceSeed)

	blog, ads, err := o.GenerateTitles(context.Background(), project)
	require.NoError(t, err)
	assert.Equal(t, 0, blog)
	assert.Equal(t, 0, ads)
	assert.Contains(t, ai.prompts[0], "1. 12 blog titles")
}

func TestGenerateTitlesFailureLeavesKeywordUnused(t *testing.T) {
	ai := &fakeAI{json: func(string) (map[string]any, error) { return nil, model.ErrMalformedResponse }}
	o, service, project := setup(t, ai)
	_, _ = service.AddKeywords(project.ID, []string{"k"}, model.SourceSeed)

	_, _, err := o.GenerateTitles(context.Background(), project)
	assert.ErrorIs(t, err, model.ErrMalformedResponse)

	keyword, err := service.SampleUnusedKeyword(project.ID)
	require.NoError(t, err)
	assert.NotNil(t, keyword)
}

func TestGenerateArticle(t *testing.T) {
	ai := &fakeAI{json: func(string) (map[string]any, error) {
		return map[string]any{
			"chapters": []any{
				map[string]any{"title": "A", "content": "c1"},
				"ignored",
				map[string]any{"title": "B"},
			},
			"refrence": "sources",
			"slug":     "how-to",
		}, nil
	}}
	o, service, project := setup(t, ai)
	project.ContentSettings.ArticleWordCount = 3000
	project.ContentSettings.ArticleChapters = 4

	id, err := o.GenerateArticle(context.Background(), project)
	require.NoError(t, err)
	assert.Nil(t, id)
	assert.Empty(t, ai.prompts)

	_, err = service.AddBlogTitles(project.ID, "kw", []string{"How to fix a leak"})
	require.NoError(t, err)

	id, err = o.GenerateArticle(context.Background(), project)
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Contains(t, ai.prompts[0], "about 750 words")
	assert.Contains(t, ai.prompts[0], "Title: How to fix a leak")

	article, err := service.GetArticle(*id)
	require.NoError(t, err)
	assert.Equal(t, "How to fix a leak", article.Title)
	assert.Equal(t, "kw", article.Tag)
	assert.Equal(t, "how-to", article.Slug)
	assert.Equal(t, "sources", article.Reference)
	assert.Equal(t, "", article.FAQ)
	assert.False(t, article.IsPublished)
	assert.Nil(t, article.WPPostID)
	assert.Equal(t, []model.Chapter{{Title: "A", Content: "c1"}, {Title: "B"}}, []model.Chapter(article.Chapters))

	title, err := service.SampleUnusedBlogTitle(project.ID)
	require.NoError(t, err)
	assert.Nil(t, title)
}

func TestGenerateAds(t *testing.T) {
	ai := &fakeAI{text: func(string) (string, error) { return "Buy now", nil }}
	o, service, project := setup(t, ai)
	project.Address = "Main St 1"

	id, err := o.GenerateAds(context.Background(), project)
	require.NoError(t, err)
	assert.Nil(t, id)

	_, _ = service.AddAdsTitles(project.ID, "kw", []string{"Best plumbing"})
	id, err = o.GenerateAds(context.Background(), project)
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Contains(t, ai.prompts[0], "Contact: Main St 1")

	stats, _ := service.GetProjectStats(project.ID)
	assert.Equal(t, int64(1), stats.AdsContents)
	assert.Equal(t, int64(0), stats.AdsTitlesUnused)
}

func TestGenerateSupplementary(t *testing.T) {
	ai := &fakeAI{
		text: func(string) (string, error) { return "p1==============p2==============p3", nil },
		json: func(prompt string) (map[string]any, error) {
			if strings.Contains(prompt, "Use this format") {
				return map[string]any{"bullet": []any{"b1", "b2"}}, nil
			}
			return map[string]any{"info": "i1\n==============\ni2"}, nil
		},
	}
	o, service, project := setup(t, ai)

	report, err := o.GenerateSupplementary(context.Background(), project)
	require.NoError(t, err)
	assert.Equal(t, 3, report.BeinParagraphs)
	assert.Equal(t, 2, report.InfoBlocks)
	assert.Equal(t, 2, report.BulletItems)
	assert.Empty(t, report.Errors)

	require.Len(t, ai.prompts, 3)
	assert.Contains(t, ai.prompts[0], "write 50 unique advertising texts")
	assert.Contains(t, ai.prompts[1], "write 50 unique promotional texts")
	assert.Contains(t, ai.prompts[2], "write 250 different")

	stats, _ := service.GetProjectStats(project.ID)
	assert.Equal(t, int64(3), stats.BeinParagraphs)
	assert.Equal(t, int64(2), stats.InfoBlocks)
	assert.Equal(t, int64(2), stats.BulletItems)
}

func TestRunFullPipelineContinuesAfterFailures(t *testing.T) {
	ai := &fakeAI{
		text: func(prompt string) (string, error) {
			if strings.Contains(prompt, "targeted SEO keywords") {
				return "", errors.New("keyword call failed")
			}
			return "x==============y", nil
		},
		json: func(prompt string) (map[string]any, error) {
			if strings.Contains(prompt, "blog titles") {
				return map[string]any{"blog": "T1", "ads": "A1"}, nil
			}
			if strings.Contains(prompt, "chapters") {
				return map[string]any{"chapters": []any{map[string]any{"title": "t", "content": "c"}}}, nil
			}
			return nil, model.ErrMalformedResponse
		},
	}
	o, _, project := setup(t, ai)
	project.SeedKeywords = "k"

	report, err := o.RunFullPipeline(context.Background(), project)
	require.NoError(t, err)
	assert.True(t, report.Failed())
	assert.Equal(t, 1, report.Keywords)
	assert.Equal(t, 1, report.BlogTitles)
	assert.Equal(t, 1, report.AdsTitles)
	assert.NotNil(t, report.ArticleID)
	assert.NotNil(t, report.AdsContentID)
	assert.Equal(t, 2, report.BeinParagraphs)
	assert.Contains(t, report.Errors, StageKeywords)
	assert.Contains(t, report.Errors, StageInfo)
	assert.Contains(t, report.Errors, StageBullets)
	assert.NotContains(t, report.Errors, StageTitles)
	assert.NotContains(t, report.Errors, StageArticle)
}

func TestRunFullPipelineOnEmptyPoolsIsNotAnError(t *testing.T) {
	ai := &fakeAI{
		text: func(string) (string, error) { return "", nil },
		json: func(string) (map[string]any, error) { return map[string]any{}, nil },
	}
	o, _, project := setup(t, ai)

	report, err := o.RunFullPipeline(context.Background(), project)
	require.NoError(t, err)
	assert.False(t, report.Failed())
	assert.Nil(t, report.ArticleID)
	assert.Nil(t, report.AdsContentID)
}

func TestSerializedStagesDoNotOverlap(t *testing.T) {
	var running, overlaps int32
	ai := &fakeAI{text: func(string) (string, error) {
		if atomic.AddInt32(&running, 1) > 1 {
			atomic.AddInt32(&overlaps, 1)
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return "", nil
	}}
	_, service, project := setup(t, ai)
	o := NewOrchestrator(service, ai, lease.NewLocal(), logger.Discard())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.GenerateBeinParagraphs(context.Background(), project)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(0), overlaps)
}
