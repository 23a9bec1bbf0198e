package project

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ubuygold/contentmill/internal/db"
	"github.com/ubuygold/contentmill/internal/model"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// Reconciler keeps recurring jobs in line with a project's schedule.
type Reconciler interface {
	Sync(project *model.Project)
	Remove(projectID uint)
}

// Service manages project profiles. Every write re-triggers scheduler reconciliation.
type Service struct {
	store     db.ProjectStore
	scheduler Reconciler
	validate  *validator.Validate
	trans     ut.Translator
	logger    *slog.Logger
}

func NewService(store db.ProjectStore, scheduler Reconciler, logger *slog.Logger) *Service {
	validate := validator.New(validator.WithRequiredStructEnabled())
	english := en.New()
	trans, _ := ut.New(english, english).GetTranslator("en")
	if err := en_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		logger.Warn("Failed to register validation messages", "error", err)
	}
	return &Service{
		store:     store,
		scheduler: scheduler,
		validate:  validate,
		trans:     trans,
		logger:    logger.With("component", "project"),
	}
}

// Validate checks the settings of a project without touching the store.
func (s *Service) Validate(p *model.Project) error {
	err := s.validate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", model.ErrConfiguration, err)
	}
	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, fe.Translate(s.trans))
	}
	return fmt.Errorf("%w: %s", model.ErrConfiguration, strings.Join(messages, "; "))
}

// Create validates and stores a new project, then schedules its enabled jobs.
func (s *Service) Create(p *model.Project) error {
	p.ID = 0
	if err := s.Validate(p); err != nil {
		return err
	}
	if err := s.store.CreateProject(p); err != nil {
		return err
	}
	s.logger.Info("Project created", "project_id", p.ID, "name", p.Name)
	s.scheduler.Sync(p)
	return nil
}

// Update replaces the profile of an existing project and reconciles its jobs.
func (s *Service) Update(id uint, p *model.Project) error {
	existing, err := s.store.GetProject(id)
	if err != nil {
		return err
	}
	// Row bookkeeping is never taken from the caller.
	p.Model = existing.Model
	if err := s.Validate(p); err != nil {
		return err
	}
	if err := s.store.UpdateProject(p); err != nil {
		return err
	}
	s.logger.Info("Project updated", "project_id", p.ID)
	s.scheduler.Sync(p)
	return nil
}

// Delete removes the project jobs first, then the project with all of its content.
func (s *Service) Delete(id uint) error {
	if _, err := s.store.GetProject(id); err != nil {
		return err
	}
	s.scheduler.Remove(id)
	if err := s.store.DeleteProject(id); err != nil {
		return err
	}
	s.logger.Info("Project deleted", "project_id", id)
	return nil
}

func (s *Service) Get(id uint) (*model.Project, error) {
	return s.store.GetProject(id)
}

func (s *Service) List() ([]model.Project, error) {
	return s.store.ListProjects()
}

func (s *Service) Stats(id uint) (*model.ProjectStats, error) {
	if _, err := s.store.GetProject(id); err != nil {
		return nil, err
	}
	return s.store.GetProjectStats(id)
}
