package db

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ubuygold/contentmill/internal/model"

	"gorm.io/gorm"
)

// ContentStore persists the generated content pools of every project.
type ContentStore interface {
	AddKeywords(projectID uint, texts []string, source string) (int, error)
	SampleUnusedKeyword(projectID uint) (*model.Keyword, error)
	MarkKeywordUsed(id uint) error
	ListKeywords(projectID uint, limit int) ([]model.Keyword, error)

	AddBlogTitles(projectID uint, keyword string, titles []string) (int, error)
	SampleUnusedBlogTitle(projectID uint) (*model.BlogTitle, error)
	MarkBlogTitleUsed(id uint) error

	AddAdsTitles(projectID uint, keyword string, titles []string) (int, error)
	SampleUnusedAdsTitle(projectID uint) (*model.AdsTitle, error)
	MarkAdsTitleUsed(id uint) error

	CreateArticle(article *model.Article) error
	GetArticle(id uint) (*model.Article, error)
	ListArticles(projectID uint, published *bool, limit int) ([]model.Article, error)
	SampleUnpublishedArticle(projectID uint) (*model.Article, error)
	MarkArticlePublished(id uint, postID int64, postURL string, at time.Time) error

	CreateAdsContent(content *model.AdsContent) error

	AddBeinParagraphs(projectID uint, texts []string) (int, error)
	SampleBeinParagraphs(projectID uint, n int) ([]model.BeinParagraph, error)
	AddInfoBlocks(projectID uint, texts []string) (int, error)
	SampleInfoBlock(projectID uint) (*model.InfoBlock, error)
	AddBulletItems(projectID uint, texts []string) (int, error)
	SampleBulletItem(projectID uint) (*model.BulletItem, error)
}

// insertTexts builds one row per non-blank text and inserts them in a single batch.
func insertTexts[T any](db *gorm.DB, texts []string, build func(string) T) (int, error) {
	rows := make([]T, 0, len(texts))
	for _, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		rows = append(rows, build(text))
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if err := db.Create(&rows).Error; err != nil {
		return 0, err
	}
	return len(rows), nil
}

// sampleOne loads one uniformly random row matching the query into dest.
// It reports false when no row matches.
func (s *service) sampleOne(dest interface{}, query string, args ...interface{}) (bool, error) {
	result := s.db.Where(query, args...).Order(s.randomOrder()).Limit(1).Find(dest)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *service) markFlag(m interface{}, id uint, column string) error {
	result := s.db.Model(m).Where("id = ?", id).Update(column, true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("row %d: %w", id, model.ErrNotFound)
	}
	return nil
}

func (s *service) AddKeywords(projectID uint, texts []string, source string) (int, error) {
	n, err := insertTexts(s.db, texts, func(text string) model.Keyword {
		return model.Keyword{ProjectID: projectID, Text: text, Source: source}
	})
	if err != nil {
		return 0, fmt.Errorf("failed to insert keywords: %w", err)
	}
	return n, nil
}

// SampleUnusedKeyword returns a random keyword with no titles generated yet, or nil.
func (s *service) SampleUnusedKeyword(projectID uint) (*model.Keyword, error) {
	var keyword model.Keyword
	found, err := s.sampleOne(&keyword, "project_id = ? AND title_generated = ?", projectID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to sample keyword: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &keyword, nil
}

func (s *service) MarkKeywordUsed(id uint) error {
	if err := s.markFlag(&model.Keyword{}, id, "title_generated"); err != nil {
		return fmt.Errorf("failed to mark keyword %d: %w", id, err)
	}
	return nil
}

// ListKeywords returns the most recent keywords of a project, newest first.
func (s *service) ListKeywords(projectID uint, limit int) ([]model.Keyword, error) {
	var keywords []model.Keyword
	query := s.db.Where("project_id = ?", projectID).Order("id desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&keywords).Error; err != nil {
		return nil, fmt.Errorf("failed to list keywords: %w", err)
	}
	return keywords, nil
}

func (s *service) AddBlogTitles(projectID uint, keyword string, titles []string) (int, error) {
	n, err := insertTexts(s.db, titles, func(text string) model.BlogTitle {
		return model.BlogTitle{ProjectID: projectID, Content: text, Keyword: keyword}
	})
	if err != nil {
		return 0, fmt.Errorf("failed to insert blog titles: %w", err)
	}
	return n, nil
}

func (s *service) SampleUnusedBlogTitle(projectID uint) (*model.BlogTitle, error) {
	var title model.BlogTitle
	found, err := s.sampleOne(&title, "project_id = ? AND article_generated = ?", projectID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to sample blog title: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &title, nil
}

func (s *service) MarkBlogTitleUsed(id uint) error {
	if err := s.markFlag(&model.BlogTitle{}, id, "article_generated"); err != nil {
		return fmt.Errorf("failed to mark blog title %d: %w", id, err)
	}
	return nil
}

func (s *service) AddAdsTitles(projectID uint, keyword string, titles []string) (int, error) {
	n, err := insertTexts(s.db, titles, func(text string) model.AdsTitle {
		return model.AdsTitle{ProjectID: projectID, Content: text, Keyword: keyword}
	})
	if err != nil {
		return 0, fmt.Errorf("failed to insert ads titles: %w", err)
	}
	return n, nil
}

func (s *service) SampleUnusedAdsTitle(projectID uint) (*model.AdsTitle, error) {
	var title model.AdsTitle
	found, err := s.sampleOne(&title, "project_id = ? AND content_generated = ?", projectID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to sample ads title: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &title, nil
}

func (s *service) MarkAdsTitleUsed(id uint) error {
	if err := s.markFlag(&model.AdsTitle{}, id, "content_generated"); err != nil {
		return fmt.Errorf("failed to mark ads title %d: %w", id, err)
	}
	return nil
}

func (s *service) CreateArticle(article *model.Article) error {
	if err := s.db.Create(article).Error; err != nil {
		return fmt.Errorf("failed to create article: %w", err)
	}
	return nil
}

func (s *service) GetArticle(id uint) (*model.Article, error) {
	var article model.Article
	if err := s.db.First(&article, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("article %d: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get article %d: %w", id, err)
	}
	return &article, nil
}

// ListArticles returns the most recent articles of a project, newest first. A non-nil
// published keeps only articles in that publish state.
func (s *service) ListArticles(projectID uint, published *bool, limit int) ([]model.Article, error) {
	var articles []model.Article
	query := s.db.Where("project_id = ?", projectID).Order("id desc")
	if published != nil {
		query = query.Where("is_published = ?", *published)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&articles).Error; err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	return articles, nil
}

func (s *service) SampleUnpublishedArticle(projectID uint) (*model.Article, error) {
	var article model.Article
	found, err := s.sampleOne(&article, "project_id = ? AND is_published = ?", projectID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to sample article: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &article, nil
}

// MarkArticlePublished commits the publication of an article. The update only applies
// while the article is still unpublished, so of two concurrent commits exactly one wins;
// the loser gets ErrAlreadyPublished.
func (s *service) MarkArticlePublished(id uint, postID int64, postURL string, at time.Time) error {
	result := s.db.Model(&model.Article{}).
		Where("id = ? AND is_published = ?", id, false).
		Updates(map[string]interface{}{
			"is_published": true,
			"wp_post_id":   postID,
			"wp_post_url":  postURL,
			"published_at": at,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to commit article %d: %w", id, result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := s.db.Model(&model.Article{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check article %d: %w", id, err)
	}
	if count == 0 {
		return fmt.Errorf("article %d: %w", id, model.ErrNotFound)
	}
	return fmt.Errorf("article %d: %w", id, model.ErrAlreadyPublished)
}

func (s *service) CreateAdsContent(content *model.AdsContent) error {
	if err := s.db.Create(content).Error; err != nil {
		return fmt.Errorf("failed to create ads content: %w", err)
	}
	return nil
}

func (s *service) AddBeinParagraphs(projectID uint, texts []string) (int, error) {
	n, err := insertTexts(s.db, texts, func(text string) model.BeinParagraph {
		return model.BeinParagraph{ProjectID: projectID, Text: text}
	})
	if err != nil {
		return 0, fmt.Errorf("failed to insert bein paragraphs: %w", err)
	}
	return n, nil
}

// SampleBeinParagraphs returns up to n distinct random paragraphs.
func (s *service) SampleBeinParagraphs(projectID uint, n int) ([]model.BeinParagraph, error) {
	var paragraphs []model.BeinParagraph
	if n <= 0 {
		return paragraphs, nil
	}
	err := s.db.Where("project_id = ?", projectID).Order(s.randomOrder()).Limit(n).Find(&paragraphs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sample bein paragraphs: %w", err)
	}
	return paragraphs, nil
}

func (s *service) AddInfoBlocks(projectID uint, texts []string) (int, error) {
	n, err := insertTexts(s.db, texts, func(text string) model.InfoBlock {
		return model.InfoBlock{ProjectID: projectID, Text: text}
	})
	if err != nil {
		return 0, fmt.Errorf("failed to insert info blocks: %w", err)
	}
	return n, nil
}

func (s *service) SampleInfoBlock(projectID uint) (*model.InfoBlock, error) {
	var block model.InfoBlock
	found, err := s.sampleOne(&block, "project_id = ?", projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to sample info block: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &block, nil
}

func (s *service) AddBulletItems(projectID uint, texts []string) (int, error) {
	n, err := insertTexts(s.db, texts, func(text string) model.BulletItem {
		return model.BulletItem{ProjectID: projectID, Text: text}
	})
	if err != nil {
		return 0, fmt.Errorf("failed to insert bullet items: %w", err)
	}
	return n, nil
}

func (s *service) SampleBulletItem(projectID uint) (*model.BulletItem, error) {
	var item model.BulletItem
	found, err := s.sampleOne(&item, "project_id = ?", projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to sample bullet item: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &item, nil
}
