package model

import (
	"time"

	"gorm.io/datatypes"
)

// Keyword sources.
const (
	SourceSeed = "seed"
	SourceAI   = "ai"
)

// Keyword is the input of the title stage. TitleGenerated only ever moves from false to true.
type Keyword struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	ProjectID      uint      `gorm:"index;not null" json:"project_id"`
	Text           string    `gorm:"type:text;not null" json:"text"`
	Source         string    `gorm:"type:varchar(16)" json:"source"`
	TitleGenerated bool      `gorm:"index;not null;default:false" json:"title_generated"`
}

// BlogTitle is the input of the article stage.
type BlogTitle struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	CreatedAt        time.Time `json:"created_at"`
	ProjectID        uint      `gorm:"index;not null" json:"project_id"`
	Content          string    `gorm:"type:text;not null" json:"content"`
	Keyword          string    `gorm:"type:text" json:"keyword"`
	ArticleGenerated bool      `gorm:"index;not null;default:false" json:"article_generated"`
}

// AdsTitle is the input of the ads stage.
type AdsTitle struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	CreatedAt        time.Time `json:"created_at"`
	ProjectID        uint      `gorm:"index;not null" json:"project_id"`
	Content          string    `gorm:"type:text;not null" json:"content"`
	Keyword          string    `gorm:"type:text" json:"keyword"`
	ContentGenerated bool      `gorm:"index;not null;default:false" json:"content_generated"`
}

// Chapter is one titled section of an article.
type Chapter struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Article is a generated long-form post. The published fields are set together by a
// single commit and are otherwise all empty.
type Article struct {
	ID          uint                         `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time                    `json:"created_at"`
	ProjectID   uint                         `gorm:"index:idx_article_project_published;not null" json:"project_id"`
	Title       string                       `gorm:"type:text;not null" json:"title"`
	Slug        string                       `gorm:"type:varchar(255)" json:"slug"`
	Tag         string                       `gorm:"type:text" json:"tag"`
	Chapters    datatypes.JSONSlice[Chapter] `json:"chapters"`
	FAQ         string                       `gorm:"type:text" json:"faq"`
	Reference   string                       `gorm:"type:text" json:"reference"`
	IsPublished bool                         `gorm:"index:idx_article_project_published;not null;default:false" json:"is_published"`
	WPPostID    *int64                       `json:"wp_post_id"`
	WPPostURL   *string                      `json:"wp_post_url"`
	PublishedAt *time.Time                   `json:"published_at"`
}

// AdsContent is persuasive copy written for an AdsTitle.
type AdsContent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ProjectID uint      `gorm:"index;not null" json:"project_id"`
	Title     string    `gorm:"type:text" json:"title"`
	Text      string    `gorm:"type:text" json:"text"`
}

// BeinParagraph is a short promotional paragraph injected between chapters.
type BeinParagraph struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ProjectID uint      `gorm:"index;not null" json:"project_id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
}

// InfoBlock is an HTML contact block appended to a published article.
type InfoBlock struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ProjectID uint      `gorm:"index;not null" json:"project_id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
}

// BulletItem is a list of services appended to a published article.
type BulletItem struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ProjectID uint      `gorm:"index;not null" json:"project_id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
}
