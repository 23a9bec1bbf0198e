package generator

import (
	"context"
	"fmt"

	"github.com/ubuygold/contentmill/internal/metrics"
	"github.com/ubuygold/contentmill/internal/model"
)

func (o *Orchestrator) generateKeywords(ctx context.Context, project *model.Project) (int, error) {
	inserted := 0
	if seeds := splitSeeds(project.SeedKeywords); len(seeds) > 0 {
		n, err := o.store.AddKeywords(project.ID, seeds, model.SourceSeed)
		if err != nil {
			return 0, err
		}
		inserted += n
		o.logger.Info("Added seed keywords", "project_id", project.ID, "count", n)
	}

	count := project.ContentSettings.NumberOfKeyword / 4
	prompt, err := render(keywordsPrompt, promptData{P: project, Count: count})
	if err != nil {
		return inserted, fmt.Errorf("failed to render keyword prompt: %w", err)
	}
	text, err := o.ai.GenerateText(ctx, prompt, keywordsSystem)
	if err != nil {
		return inserted, err
	}
	n, err := o.store.AddKeywords(project.ID, splitDelimited(text), model.SourceAI)
	if err != nil {
		return inserted, err
	}
	inserted += n
	metrics.ItemsGenerated.WithLabelValues("keyword").Add(float64(inserted))
	o.logger.Info("Generated keywords", "project_id", project.ID, "requested", count, "inserted", n)
	return inserted, nil
}

func (o *Orchestrator) generateTitles(ctx context.Context, project *model.Project) (int, int, error) {
	keyword, err := o.store.SampleUnusedKeyword(project.ID)
	if err != nil {
		return 0, 0, err
	}
	if keyword == nil {
		o.logger.Warn("No unused keywords", "project_id", project.ID)
		return 0, 0, nil
	}

	settings := project.ContentSettings
	perKeyword := float64(max(settings.NumberOfKeyword, 1))
	blogCount := int(float64(settings.NumberOfContent) * 1.2 / perKeyword)
	adsCount := int(float64(settings.NumberOfAds) * 1.2 / perKeyword)

	prompt, err := render(titlesPrompt, promptData{
		P:         project,
		BlogCount: blogCount,
		AdsCount:  adsCount,
		Keyword:   keyword.Text,
		Schema:    titlesSchema,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to render titles prompt: %w", err)
	}
	data, err := o.ai.GenerateJSON(ctx, prompt, titlesSystem)
	if err != nil {
		return 0, 0, err
	}

	blog, err := o.store.AddBlogTitles(project.ID, keyword.Text, splitLines(stringField(data, "blog")))
	if err != nil {
		return 0, 0, err
	}
	ads, err := o.store.AddAdsTitles(project.ID, keyword.Text, splitLines(stringField(data, "ads")))
	if err != nil {
		return blog, 0, err
	}
	if err := o.store.MarkKeywordUsed(keyword.ID); err != nil {
		return blog, ads, err
	}

	metrics.ItemsGenerated.WithLabelValues("blog_title").Add(float64(blog))
	metrics.ItemsGenerated.WithLabelValues("ads_title").Add(float64(ads))
	o.logger.Info("Generated titles", "project_id", project.ID, "keyword_id", keyword.ID, "blog", blog, "ads", ads)
	return blog, ads, nil
}

func (o *Orchestrator) generateArticle(ctx context.Context, project *model.Project) (*uint, error) {
	title, err := o.store.SampleUnusedBlogTitle(project.ID)
	if err != nil {
		return nil, err
	}
	if title == nil {
		o.logger.Warn("No unused blog titles", "project_id", project.ID)
		return nil, nil
	}

	settings := project.ContentSettings
	chapters := max(settings.ArticleChapters, 1)
	prompt, err := render(articlePrompt, promptData{
		P:          project,
		Title:      title.Content,
		Keyword:    title.Keyword,
		WordCount:  settings.ArticleWordCount,
		Chapters:   chapters,
		PerChapter: settings.ArticleWordCount / chapters,
		Schema:     articleSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render article prompt: %w", err)
	}
	data, err := o.ai.GenerateJSON(ctx, prompt, articleSystem)
	if err != nil {
		return nil, err
	}

	article := &model.Article{
		ProjectID: project.ID,
		Title:     title.Content,
		Slug:      stringField(data, "slug"),
		Tag:       title.Keyword,
		Chapters:  chaptersField(data),
		FAQ:       stringField(data, "faq"),
		Reference: stringField(data, "refrence", "reference"),
	}
	if err := o.store.CreateArticle(article); err != nil {
		return nil, err
	}
	if err := o.store.MarkBlogTitleUsed(title.ID); err != nil {
		return &article.ID, err
	}

	metrics.ItemsGenerated.WithLabelValues("article").Inc()
	o.logger.Info("Generated article", "project_id", project.ID, "article_id", article.ID, "chapters", len(article.Chapters))
	return &article.ID, nil
}

func (o *Orchestrator) generateAds(ctx context.Context, project *model.Project) (*uint, error) {
	title, err := o.store.SampleUnusedAdsTitle(project.ID)
	if err != nil {
		return nil, err
	}
	if title == nil {
		o.logger.Warn("No unused ads titles", "project_id", project.ID)
		return nil, nil
	}

	prompt, err := render(adsPrompt, promptData{P: project, Title: title.Content, Keyword: title.Keyword})
	if err != nil {
		return nil, fmt.Errorf("failed to render ads prompt: %w", err)
	}
	text, err := o.ai.GenerateText(ctx, prompt, "")
	if err != nil {
		return nil, err
	}

	content := &model.AdsContent{ProjectID: project.ID, Title: title.Content, Text: text}
	if err := o.store.CreateAdsContent(content); err != nil {
		return nil, err
	}
	if err := o.store.MarkAdsTitleUsed(title.ID); err != nil {
		return &content.ID, err
	}

	metrics.ItemsGenerated.WithLabelValues("ads_content").Inc()
	o.logger.Info("Generated ads content", "project_id", project.ID, "ads_content_id", content.ID)
	return &content.ID, nil
}

func (o *Orchestrator) generateBein(ctx context.Context, project *model.Project) (int, error) {
	prompt, err := render(beinPrompt, promptData{P: project, Count: BeinBatchSize})
	if err != nil {
		return 0, fmt.Errorf("failed to render bein prompt: %w", err)
	}
	text, err := o.ai.GenerateText(ctx, prompt, supplementarySystem)
	if err != nil {
		return 0, err
	}
	n, err := o.store.AddBeinParagraphs(project.ID, splitDelimited(text))
	if err != nil {
		return 0, err
	}
	metrics.ItemsGenerated.WithLabelValues("bein_paragraph").Add(float64(n))
	o.logger.Info("Generated bein paragraphs", "project_id", project.ID, "count", n)
	return n, nil
}

func (o *Orchestrator) generateInfo(ctx context.Context, project *model.Project) (int, error) {
	prompt, err := render(infoPrompt, promptData{P: project, Count: InfoBatchSize, Schema: infoSchema})
	if err != nil {
		return 0, fmt.Errorf("failed to render info prompt: %w", err)
	}
	data, err := o.ai.GenerateJSON(ctx, prompt, supplementarySystem)
	if err != nil {
		return 0, err
	}
	n, err := o.store.AddInfoBlocks(project.ID, poolItems(data, "info"))
	if err != nil {
		return 0, err
	}
	metrics.ItemsGenerated.WithLabelValues("info_block").Add(float64(n))
	o.logger.Info("Generated info blocks", "project_id", project.ID, "count", n)
	return n, nil
}

func (o *Orchestrator) generateBullets(ctx context.Context, project *model.Project) (int, error) {
	prompt, err := render(bulletPrompt, promptData{P: project, Count: BulletBatchSize, Schema: bulletSchema})
	if err != nil {
		return 0, fmt.Errorf("failed to render bullet prompt: %w", err)
	}
	data, err := o.ai.GenerateJSON(ctx, prompt, supplementarySystem)
	if err != nil {
		return 0, err
	}
	n, err := o.store.AddBulletItems(project.ID, poolItems(data, "bullet"))
	if err != nil {
		return 0, err
	}
	metrics.ItemsGenerated.WithLabelValues("bullet_item").Add(float64(n))
	o.logger.Info("Generated bullet items", "project_id", project.ID, "count", n)
	return n, nil
}
