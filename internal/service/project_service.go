package service

import (
	"context"
	"fmt"
	"time"

	"fieldops-backend/internal/model"
	"fieldops-backend/internal/repository"

	"github.com/google/uuid"
)

// --- DTOs ---

type CreateProjectRequest struct {
	ClientID    string `json:"client_id"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type UpdateProjectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Status      *string `json:"status" binding:"omitempty,oneof=ACTIVE PAUSED FINISHED"`
}

type ProjectResponse struct {
	ID          string  `json:"id"`
	ClientID    *string `json:"client_id"`
	ClientName  string  `json:"client_name,omitempty"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
}

// --- Interface ---

type ProjectService interface {
	CreateProject(ctx context.Context, req CreateProjectRequest) (ProjectResponse, error)
	ListProjects(ctx context.Context, clientID string, page, limit int) ([]ProjectResponse, int64, error)
	UpdateProject(ctx context.Context, id string, req UpdateProjectRequest) (ProjectResponse, error)
	DeleteProject(ctx context.Context, id string) error
}

type projectService struct {
	projectRepo repository.ProjectRepository
	clientRepo  repository.ClientRepository
}

func NewProjectService(projectRepo repository.ProjectRepository, clientRepo repository.ClientRepository) ProjectService {
	return &projectService{projectRepo: projectRepo, clientRepo: clientRepo}
}

// --- Implementation ---

func (s *projectService) CreateProject(ctx context.Context, req CreateProjectRequest) (ProjectResponse, error) {
	project := &model.Project{
		Name:        req.Name,
		Description: req.Description,
		Status:      model.ProjectActive,
	}

	if req.ClientID != "" {
		clientID, err := uuid.Parse(req.ClientID)
		if err != nil {
			return ProjectResponse{}, fmt.Errorf("invalid client_id: %w", err)
		}
		if _, err := s.clientRepo.FindByID(ctx, clientID); err != nil {
			return ProjectResponse{}, fmt.Errorf("client not found: %w", err)
		}
		project.ClientID = &clientID
	}

	if err := s.projectRepo.Create(ctx, project); err != nil {
		return ProjectResponse{}, fmt.Errorf("failed to create project: %w", err)
	}

	return toProjectResponse(*project), nil
}

func (s *projectService) ListProjects(ctx context.Context, clientID string, page, limit int) ([]ProjectResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	var filter *uuid.UUID
	if clientID != "" {
		id, err := uuid.Parse(clientID)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid client id: %w", err)
		}
		filter = &id
	}

	projects, total, err := s.projectRepo.List(ctx, filter, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch projects: %w", err)
	}

	result := make([]ProjectResponse, 0, len(projects))
	for _, project := range projects {
		result = append(result, toProjectResponse(project))
	}
	return result, total, nil
}

func (s *projectService) UpdateProject(ctx context.Context, id string, req UpdateProjectRequest) (ProjectResponse, error) {
	projectID, err := uuid.Parse(id)
	if err != nil {
		return ProjectResponse{}, fmt.Errorf("invalid project id: %w", err)
	}

	project, err := s.projectRepo.FindByID(ctx, projectID)
	if err != nil {
		return ProjectResponse{}, fmt.Errorf("project not found: %w", err)
	}

	if req.Name != nil {
		project.Name = *req.Name
	}
	if req.Description != nil {
		project.Description = *req.Description
	}
	if req.Status != nil {
		project.Status = *req.Status
	}

	if err := s.projectRepo.Update(ctx, project); err != nil {
		return ProjectResponse{}, fmt.Errorf("failed to update project: %w", err)
	}

	return toProjectResponse(*project), nil
}

func (s *projectService) DeleteProject(ctx context.Context, id string) error {
	projectID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid project id: %w", err)
	}

	if _, err := s.projectRepo.FindByID(ctx, projectID); err != nil {
		return fmt.Errorf("project not found: %w", err)
	}

	return s.projectRepo.Delete(ctx, projectID)
}

func toProjectResponse(project model.Project) ProjectResponse {
	resp := ProjectResponse{
		ID:          project.ID.String(),
		Name:        project.Name,
		Description: project.Description,
		Status:      project.Status,
		CreatedAt:   project.CreatedAt.Format(time.RFC3339),
	}
	if project.ClientID != nil {
		id := project.ClientID.String()
		resp.ClientID = &id
	}
	if project.Client != nil {
		resp.ClientName = project.Client.CompanyName
	}
	return resp
}
