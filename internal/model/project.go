package model

import "gorm.io/gorm"

// ContentSettings are the per-project generation targets.
type ContentSettings struct {
	NumberOfKeyword  int `json:"number_of_keyword" validate:"gte=0"`
	NumberOfContent  int `json:"number_of_content" validate:"gte=0"`
	NumberOfAds      int `json:"number_of_ads" validate:"gte=0"`
	ArticleWordCount int `json:"article_word_count" validate:"gte=0"`
	ArticleChapters  int `json:"article_chapters" validate:"gte=1"`
}

// Schedule holds the desired state of the two recurring job slots of a project.
type Schedule struct {
	CreationEnabled         bool `json:"creation_enabled"`
	CreationIntervalMinutes int  `json:"creation_interval_minutes" validate:"gte=0"`
	PublishEnabled          bool `json:"publish_enabled"`
	PublishIntervalMinutes  int  `json:"publish_interval_minutes" validate:"gte=0"`
}

// WordPress holds the CMS credentials of a project.
type WordPress struct {
	URL         string `json:"url"`
	Username    string `json:"username"`
	AppPassword string `json:"app_password"`
	CategoryID  int64  `json:"category_id"`
}

// Complete reports whether every credential needed to publish is present.
func (w WordPress) Complete() bool {
	return w.URL != "" && w.Username != "" && w.AppPassword != ""
}

// Project is a tenant profile and the namespace of all generated content.
type Project struct {
	gorm.Model
	Name             string `gorm:"type:varchar(255);not null" json:"name" validate:"required"`
	CompanyName      string `json:"company_name"`
	BusinessField    string `json:"business_field"`
	ServicesProducts string `gorm:"type:text" json:"services_products"`
	AboutCompany     string `gorm:"type:text" json:"about_company"`
	Lang             string `gorm:"type:varchar(16)" json:"lang"`
	Address          string `json:"address"`
	Phone            string `json:"phone"`
	MobilePhone      string `json:"mobile_phone"`
	Email            string `json:"email"`
	// SeedKeywords is a "-" delimited list inserted verbatim by the keyword stage.
	SeedKeywords string `gorm:"type:text" json:"keyword"`
	Bullet1      string `json:"bullet1"`
	Bullet2      string `json:"bullet2"`
	Bullet3      string `json:"bullet3"`

	ContentSettings ContentSettings `gorm:"embedded;embeddedPrefix:cs_" json:"content_settings"`
	Schedule        Schedule        `gorm:"embedded;embeddedPrefix:schedule_" json:"schedule"`
	WordPress       WordPress       `gorm:"embedded;embeddedPrefix:wp_" json:"wordpress"`
}

// DefaultProject returns a project populated with the default settings.
func DefaultProject() Project {
	return Project{
		Lang: "fa",
		ContentSettings: ContentSettings{
			NumberOfKeyword:  20,
			NumberOfContent:  100,
			NumberOfAds:      50,
			ArticleWordCount: 3500,
			ArticleChapters:  10,
		},
		Schedule: Schedule{
			CreationIntervalMinutes: 60,
			PublishIntervalMinutes:  20,
		},
	}
}

// ProjectStats summarises the content pools of a project.
type ProjectStats struct {
	Keywords            int64 `json:"keywords"`
	KeywordsUnused      int64 `json:"keywords_unused"`
	BlogTitles          int64 `json:"blog_titles"`
	BlogTitlesUnused    int64 `json:"blog_titles_unused"`
	AdsTitles           int64 `json:"ads_titles"`
	AdsTitlesUnused     int64 `json:"ads_titles_unused"`
	ArticlesTotal       int64 `json:"articles_total"`
	ArticlesPublished   int64 `json:"articles_published"`
	ArticlesUnpublished int64 `json:"articles_unpublished"`
	AdsContents         int64 `json:"ads_contents"`
	BeinParagraphs      int64 `json:"bein_paragraphs"`
	InfoBlocks          int64 `json:"info_blocks"`
	BulletItems         int64 `json:"bullet_items"`
}
