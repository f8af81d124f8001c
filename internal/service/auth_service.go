package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"keymarket/config"
	"keymarket/internal/broker"
	"keymarket/internal/models"
	"keymarket/internal/redisclient"
	"keymarket/internal/store"
	"keymarket/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 64
	minPasswordLen = 6
)

// AuthService handles registration, credential checks and sessions
type AuthService struct {
	store          *store.Store
	redis          *redisclient.Client
	eventPublisher *broker.EventPublisher
	cfg            config.AuthConfig
	dummyHash      []byte
	logger         *zap.Logger
}

// Session is an issued login session
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Identity  Identity  `json:"identity"`
}

// NewAuthService creates a new auth service
func NewAuthService(
	store *store.Store,
	redis *redisclient.Client,
	eventPublisher *broker.EventPublisher,
	cfg config.AuthConfig,
) *AuthService {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}

	// Compared against when the username is unknown so that both failure
	// paths cost one bcrypt comparison.
	dummy, err := bcrypt.GenerateFromPassword([]byte(uuid.New().String()), cfg.BcryptCost)
	if err != nil {
		dummy = nil
	}

	return &AuthService{
		store:          store,
		redis:          redis,
		eventPublisher: eventPublisher,
		cfg:            cfg,
		dummyHash:      dummy,
		logger:         util.GetLogger(),
	}
}

// Authenticate checks credentials and returns the caller's identity.
// Unknown usernames and wrong passwords both yield ErrInvalidCredentials.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (id *Identity, err error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Authenticate")
	defer func() { util.EndSpan(span, err) }()

	user, err := s.store.GetUserByUsername(ctx, normalizeUsername(username))
	if errors.Is(err, store.ErrDBNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, storageError("load user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return &Identity{UserID: user.ID, Username: user.Username, Role: user.Role}, nil
}

// Register creates an account. A seller is also queued as pending until it
// opens a shop; both rows are written in one transaction.
func (s *AuthService) Register(ctx context.Context, username, password, role string) (user *models.User, err error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Register")
	defer func() { util.EndSpan(span, err) }()

	username = normalizeUsername(username)
	if err := validateCredentials(username, password); err != nil {
		return nil, err
	}
	if !models.ValidRole(role) {
		return nil, validationError("unknown role %q", role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user = &models.User{
		Username:  username,
		Password:  string(hash),
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}

	err = s.store.CreateUserTx(ctx, user, role == models.RoleSeller)
	if errors.Is(err, store.ErrDBDuplicate) {
		return nil, ErrUsernameTaken
	}
	if err != nil {
		return nil, storageError("create user", err)
	}

	util.RegistrationsTotal.WithLabelValues(role).Inc()
	s.logger.Info("User registered",
		zap.Int64("user_id", user.ID),
		zap.String("username", user.Username),
		zap.String("role", role))

	if err := s.eventPublisher.PublishUserRegistered(ctx, &models.UserRegisteredEvent{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
	}); err != nil {
		s.logger.Error("Failed to publish UserRegistered event", zap.Error(err))
	}

	return user, nil
}

// normalizeUsername is applied on every path that takes a username from a
// client
func normalizeUsername(username string) string {
	return strings.TrimSpace(username)
}

func validateCredentials(username, password string) error {
	n := utf8.RuneCountInString(username)
	if n < minUsernameLen || n > maxUsernameLen {
		return validationError("username must be %d to %d characters", minUsernameLen, maxUsernameLen)
	}
	if utf8.RuneCountInString(password) < minPasswordLen {
		return validationError("password must be at least %d characters", minPasswordLen)
	}
	return nil
}

// Login authenticates and issues a session token. Attempts are throttled
// per username; throttling is skipped when Redis is unavailable.
func (s *AuthService) Login(ctx context.Context, username, password string) (session *Session, err error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Login")
	defer func() { util.EndSpan(span, err) }()

	username = normalizeUsername(username)
	attempts, rerr := s.redis.RegisterLoginAttempt(ctx, username, s.cfg.LoginWindow)
	if rerr != nil {
		s.logger.Warn("Login throttling unavailable", zap.Error(rerr))
	} else if s.cfg.MaxLoginAttempts > 0 && attempts > int64(s.cfg.MaxLoginAttempts) {
		util.LoginsTotal.WithLabelValues("throttled").Inc()
		return nil, fmt.Errorf("%w: try again later", ErrTooManyAttempts)
	}

	id, err := s.Authenticate(ctx, username, password)
	if err != nil {
		util.LoginsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	token := uuid.New().String()
	now := time.Now().UTC()
	if err := s.redis.SaveSession(ctx, token, &redisclient.Session{
		UserID:    id.UserID,
		Username:  id.Username,
		Role:      id.Role,
		CreatedAt: now,
	}, s.cfg.SessionTTL); err != nil {
		util.LoginsTotal.WithLabelValues("error").Inc()
		return nil, storageError("save session", err)
	}

	if err := s.redis.ResetLoginAttempts(ctx, username); err != nil {
		s.logger.Warn("Failed to reset login attempts", zap.String("username", username), zap.Error(err))
	}

	util.LoginsTotal.WithLabelValues("success").Inc()
	s.logger.Info("User logged in", zap.Int64("user_id", id.UserID))

	return &Session{Token: token, ExpiresAt: now.Add(s.cfg.SessionTTL), Identity: *id}, nil
}

// Logout drops the session. Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if err := s.redis.DeleteSession(ctx, token); err != nil {
		return storageError("delete session", err)
	}
	return nil
}

// ResolveSession maps a session token back to the identity that owns it
func (s *AuthService) ResolveSession(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrSessionExpired
	}

	sess, err := s.redis.GetSession(ctx, token)
	if errors.Is(err, redisclient.ErrSessionNotFound) {
		return nil, ErrSessionExpired
	}
	if err != nil {
		return nil, storageError("load session", err)
	}

	return &Identity{UserID: sess.UserID, Username: sess.Username, Role: sess.Role}, nil
}

// EnsureAdmin creates the bootstrap admin account unless an admin exists.
// It reports whether an account was created.
func (s *AuthService) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	exists, err := s.store.AdminExists(ctx)
	if err != nil {
		return false, storageError("check admin", err)
	}
	if exists {
		return false, nil
	}
	if password == "" {
		return false, validationError("admin password is not configured")
	}

	if _, err := s.Register(ctx, username, password, models.RoleAdmin); err != nil {
		return false, err
	}
	return true, nil
}
