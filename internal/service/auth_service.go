package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"tradeflow/internal/api"
	"tradeflow/internal/ledger"
	"tradeflow/internal/models"
	"tradeflow/internal/repository"
	"tradeflow/internal/session"
)

// AuthService enrolls users and exchanges a signed login challenge for a
// session token.
type AuthService struct {
	Repo       repository.UserRepository
	JWT        session.JWT
	Skew       time.Duration
	Moderators []string
	Logger     *zap.Logger

	Now func() time.Time
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *AuthService) checkChallenge(userID string, ts int64, sig, address string) error {
	skew := s.Skew
	if skew <= 0 {
		skew = 5 * time.Minute
	}
	at := time.Unix(ts, 0)
	if d := s.now().Sub(at); d > skew || d < -skew {
		return fmt.Errorf("login timestamp outside of %s window: %w", skew, ErrBadLogin)
	}
	if err := ledger.VerifyMessage(api.LoginMessage(userID, ts), sig, address); err != nil {
		return fmt.Errorf("%v: %w", err, ErrBadLogin)
	}
	return nil
}

func (s *AuthService) Register(ctx context.Context, req api.RegisterRequest) (*models.User, error) {
	userID := strings.TrimSpace(req.UserID)
	name := strings.TrimSpace(req.Name)
	address := strings.ToLower(strings.TrimSpace(req.Address))
	if userID == "" || name == "" || address == "" {
		return nil, fmt.Errorf("user_id, name and address are required: %w", ErrInvalidInput)
	}
	if err := s.checkChallenge(userID, req.Timestamp, req.Signature, address); err != nil {
		return nil, err
	}
	existing, err := s.Repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("user %s already exists: %w", userID, ErrInvalidInput)
	}
	if other, err := s.Repo.GetUserByAddress(ctx, address); err != nil {
		return nil, err
	} else if other != nil {
		return nil, fmt.Errorf("address already registered: %w", ErrInvalidInput)
	}

	roles := []string{}
	for _, id := range s.Moderators {
		if strings.TrimSpace(id) == userID {
			roles = append(roles, session.RoleModerator)
			break
		}
	}
	u := &models.User{
		ID:      userID,
		Name:    name,
		Address: address,
		Roles:   models.StringsJSON(roles),
	}
	if err := s.Repo.InsertUser(ctx, u); err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("user registered", zap.String("user_id", userID), zap.Strings("roles", roles))
	}
	return u, nil
}

func (s *AuthService) Login(ctx context.Context, req api.LoginRequest) (api.LoginResponse, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return api.LoginResponse{}, fmt.Errorf("user_id is required: %w", ErrInvalidInput)
	}
	u, err := s.Repo.GetUser(ctx, userID)
	if err != nil {
		return api.LoginResponse{}, err
	}
	if u == nil {
		return api.LoginResponse{}, fmt.Errorf("user %s: %w", userID, ErrBadLogin)
	}
	if err := s.checkChallenge(userID, req.Timestamp, req.Signature, u.Address); err != nil {
		return api.LoginResponse{}, err
	}

	wu := u.Workflow()
	token, exp, err := s.JWT.Sign(session.Claims{UserID: wu.ID, Roles: wu.Roles, PubKey: wu.PubKey})
	if err != nil {
		return api.LoginResponse{}, err
	}
	return api.LoginResponse{Token: token, ExpiresAt: exp, User: wu}, nil
}
