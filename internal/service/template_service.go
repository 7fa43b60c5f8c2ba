package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"tradeflow/internal/api"
	"tradeflow/internal/models"
	"tradeflow/internal/repository"
	"tradeflow/internal/workflow"
)

type TemplateService struct {
	Repo repository.TemplateRepository
}

func (s *TemplateService) Create(ctx context.Context, by workflow.User, req api.CreateTemplateRequest) (*models.TradeTemplate, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("template name is required: %w", ErrInvalidInput)
	}
	if len(req.Stages) == 0 {
		return nil, fmt.Errorf("template needs at least one stage: %w", ErrInvalidInput)
	}
	stages := make([]workflow.StageTemplate, 0, len(req.Stages))
	for i, st := range req.Stages {
		st.Name = strings.TrimSpace(st.Name)
		if st.Name == "" {
			return nil, fmt.Errorf("stage %d has no name: %w", i, ErrInvalidInput)
		}
		if st.Owner == "" {
			st.Owner = workflow.ActorNone
		}
		if st.Owner != workflow.ActorBuyer && st.Owner != workflow.ActorSeller && st.Owner != workflow.ActorNone {
			return nil, fmt.Errorf("stage %d owner %q: %w", i, st.Owner, ErrInvalidInput)
		}
		stages = append(stages, st)
	}
	b, err := json.Marshal(stages)
	if err != nil {
		return nil, err
	}
	item := &models.TradeTemplate{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Stages:      datatypes.JSON(b),
		CreatedBy:   by.ID,
	}
	if err := s.Repo.InsertTemplate(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *TemplateService) List(ctx context.Context) ([]models.TradeTemplate, error) {
	return s.Repo.ListTemplates(ctx)
}
