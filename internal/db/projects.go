package db

import (
	"errors"
	"fmt"

	"github.com/ubuygold/contentmill/internal/model"

	"gorm.io/gorm"
)

// ProjectStore persists project profiles.
type ProjectStore interface {
	CreateProject(project *model.Project) error
	GetProject(id uint) (*model.Project, error)
	ListProjects() ([]model.Project, error)
	UpdateProject(project *model.Project) error
	DeleteProject(id uint) error
	GetProjectStats(id uint) (*model.ProjectStats, error)
}

func (s *service) CreateProject(project *model.Project) error {
	if err := s.db.Create(project).Error; err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func (s *service) GetProject(id uint) (*model.Project, error) {
	var project model.Project
	if err := s.db.First(&project, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("project %d: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get project %d: %w", id, err)
	}
	return &project, nil
}

func (s *service) ListProjects() ([]model.Project, error) {
	var projects []model.Project
	if err := s.db.Order("id asc").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

// UpdateProject writes every field of the project, zero values included.
func (s *service) UpdateProject(project *model.Project) error {
	if project.ID == 0 {
		return fmt.Errorf("cannot update a project without id")
	}
	if err := s.db.Save(project).Error; err != nil {
		return fmt.Errorf("failed to update project %d: %w", project.ID, err)
	}
	return nil
}

// DeleteProject removes a project together with every row that references it.
func (s *service) DeleteProject(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		owned := []interface{}{
			&model.Keyword{},
			&model.BlogTitle{},
			&model.AdsTitle{},
			&model.Article{},
			&model.AdsContent{},
			&model.BeinParagraph{},
			&model.InfoBlock{},
			&model.BulletItem{},
		}
		for _, m := range owned {
			if err := tx.Where("project_id = ?", id).Delete(m).Error; err != nil {
				return fmt.Errorf("failed to delete project content: %w", err)
			}
		}
		result := tx.Unscoped().Delete(&model.Project{}, id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete project %d: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("project %d: %w", id, model.ErrNotFound)
		}
		return nil
	})
}

func (s *service) GetProjectStats(id uint) (*model.ProjectStats, error) {
	var stats model.ProjectStats
	// flag, when set, restricts the count to rows where that column equals value.
	counts := []struct {
		model interface{}
		flag  string
		value bool
		dest  *int64
	}{
		{model: &model.Keyword{}, dest: &stats.Keywords},
		{model: &model.Keyword{}, flag: "title_generated", value: false, dest: &stats.KeywordsUnused},
		{model: &model.BlogTitle{}, dest: &stats.BlogTitles},
		{model: &model.BlogTitle{}, flag: "article_generated", value: false, dest: &stats.BlogTitlesUnused},
		{model: &model.AdsTitle{}, dest: &stats.AdsTitles},
		{model: &model.AdsTitle{}, flag: "content_generated", value: false, dest: &stats.AdsTitlesUnused},
		{model: &model.Article{}, dest: &stats.ArticlesTotal},
		{model: &model.Article{}, flag: "is_published", value: true, dest: &stats.ArticlesPublished},
		{model: &model.AdsContent{}, dest: &stats.AdsContents},
		{model: &model.BeinParagraph{}, dest: &stats.BeinParagraphs},
		{model: &model.InfoBlock{}, dest: &stats.InfoBlocks},
		{model: &model.BulletItem{}, dest: &stats.BulletItems},
	}
	for _, c := range counts {
		query := s.db.Model(c.model).Where("project_id = ?", id)
		if c.flag != "" {
			query = query.Where(c.flag+" = ?", c.value)
		}
		if err := query.Count(c.dest).Error; err != nil {
			return nil, fmt.Errorf("failed to compute stats for project %d: %w", id, err)
		}
	}
	stats.ArticlesUnpublished = stats.ArticlesTotal - stats.ArticlesPublished
	return &stats, nil
}
