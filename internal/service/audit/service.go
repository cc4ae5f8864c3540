package audit

import (
	"context"
	"log/slog"

	models "dashboards/internal/domain/models/dashboard"
	"dashboards/internal/domain/repositories"
	"dashboards/internal/domain/services"
)

// service implements the AuditService interface
type service struct {
	auditRepo repositories.AuditRepository
	logger    *slog.Logger
}

// NewService creates a new audit service
func NewService(auditRepo repositories.AuditRepository, logger *slog.Logger) services.AuditService {
	return &service{auditRepo: auditRepo, logger: logger}
}

// ListAuditLog returns a family's entries oldest first
func (s *service) ListAuditLog(ctx context.Context, familyID string) ([]*models.AuditLogEntry, error) {
	return s.auditRepo.List(ctx, familyID)
}
