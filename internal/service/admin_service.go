package service

import (
	"context"
	"errors"

	"keymarket/internal/broker"
	"keymarket/internal/models"
	"keymarket/internal/redisclient"
	"keymarket/internal/store"
	"keymarket/internal/util"

	"go.uber.org/zap"
)

// AdminService covers user moderation
type AdminService struct {
	store          *store.Store
	redis          *redisclient.Client
	inventory      *InventoryService
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
}

// NewAdminService creates a new admin service
func NewAdminService(
	store *store.Store,
	redis *redisclient.Client,
	inventory *InventoryService,
	eventPublisher *broker.EventPublisher,
) *AdminService {
	return &AdminService{
		store:          store,
		redis:          redis,
		inventory:      inventory,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

func (s *AdminService) ListUsers(ctx context.Context, admin Identity) ([]models.User, error) {
	if err := requireRole(admin, models.RoleAdmin); err != nil {
		return nil, err
	}

	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, storageError("list users", err)
	}
	return users, nil
}

// ListPendingSellers lists sellers that registered but have no shop yet
func (s *AdminService) ListPendingSellers(ctx context.Context, admin Identity) ([]models.PendingSeller, error) {
	if err := requireRole(admin, models.RoleAdmin); err != nil {
		return nil, err
	}

	pending, err := s.store.ListPendingSellers(ctx)
	if err != nil {
		return nil, storageError("list pending sellers", err)
	}
	return pending, nil
}

// DeleteUser removes an account. Admin accounts, the caller's own included,
// cannot be deleted. A seller's unsold keys are withdrawn with the shop.
func (s *AdminService) DeleteUser(ctx context.Context, admin Identity, targetID int64) (err error) {
	ctx, span := util.StartSpan(ctx, "AdminService.DeleteUser")
	defer func() { util.EndSpan(span, err) }()

	if err := requireRole(admin, models.RoleAdmin); err != nil {
		return err
	}
	if targetID == admin.UserID {
		return conflictError("cannot delete your own account")
	}

	target, err := s.store.GetUserByID(ctx, targetID)
	if errors.Is(err, store.ErrDBNotFound) {
		return notFoundError("user %d", targetID)
	}
	if err != nil {
		return storageError("load user", err)
	}
	if target.Role == models.RoleAdmin {
		return conflictError("cannot delete an admin account")
	}

	err = s.store.DeleteUserTx(ctx, targetID)
	if errors.Is(err, store.ErrDBNotFound) {
		return notFoundError("user %d", targetID)
	}
	if err != nil {
		return storageError("delete user", err)
	}

	util.UsersDeletedTotal.Inc()
	s.logger.Info("User deleted",
		zap.Int64("user_id", targetID),
		zap.String("role", target.Role),
		zap.Int64("by", admin.UserID))

	if err := s.redis.DeleteUserSessions(ctx, targetID); err != nil {
		s.logger.Warn("Failed to drop sessions of deleted user", zap.Int64("user_id", targetID), zap.Error(err))
	}
	if target.Role == models.RoleSeller {
		if err := s.inventory.SyncStockToRedis(ctx); err != nil {
			s.logger.Warn("Failed to resync stock after seller removal", zap.Error(err))
		}
	}

	if err := s.eventPublisher.PublishUserDeleted(ctx, &models.UserDeletedEvent{
		UserID:    targetID,
		DeletedBy: admin.UserID,
	}); err != nil {
		s.logger.Error("Failed to publish UserDeleted event", zap.Error(err))
	}

	return nil
}
