// Package auth signs the user in and out, persists the session in the
// credential store and restores it at start-up.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/nhle/brancard/internal/api"
	"github.com/nhle/brancard/internal/credential"
	"github.com/nhle/brancard/internal/model"
	"github.com/nhle/brancard/internal/state"
)

// User-facing messages.
const (
	msgLoginOK        = "Connexion réussie!"
	msgLoginFailed    = "Échec de la connexion."
	msgLogoutOK       = "Déconnexion réussie!"
	msgForcedLogout   = "Vous avez été déconnecté car vous êtes connecté depuis un autre appareil."
	msgLogoutFailed   = "Échec de la déconnexion."
	msgDeviceRegister = "Erreur lors de l’enregistrement du device token"
)

var (
	// ErrPasswordResetRequired is returned by Login when the account must
	// change its password first.
	ErrPasswordResetRequired = errors.New("password reset required")

	// ErrNotSignedIn is returned when no session is stored.
	ErrNotSignedIn = errors.New("no user signed in")

	// ErrSessionExpired is returned by Restore when the stored token has
	// expired. The stored session is wiped.
	ErrSessionExpired = errors.New("stored session expired")
)

// Backend is the subset of the REST API used for authentication.
type Backend interface {
	Login(ctx context.Context, req api.LoginRequest) (model.Identity, error)
	Logout(ctx context.Context, req api.LogoutRequest) error
	RegisterDeviceToken(ctx context.Context, req model.DeviceTokenRequest) error
	RemoveDeviceToken(ctx context.Context, req model.DeviceTokenRequest) error
}

// Service owns the signed-in identity.
type Service struct {
	backend  Backend
	creds    credential.Store
	store    *state.Store
	platform string
	log      zerolog.Logger
	now      func() time.Time
}

// NewService creates a Service. platform is reported when registering or
// removing a device token.
func NewService(
	backend Backend,
	creds credential.Store,
	store *state.Store,
	platform string,
	logger zerolog.Logger,
) *Service {
	return &Service{
		backend:  backend,
		creds:    creds,
		store:    store,
		platform: platform,
		log:      logger.With().Str("component", "auth").Logger(),
		now:      time.Now,
	}
}

// Token returns the stored bearer token, or "" when signed out. It is used
// as the REST token source and the hub access-token factory.
func (s *Service) Token() (string, error) {
	return credential.Lookup(s.creds, credential.KeyJWT)
}

// Login authenticates against the backend, persists the session and sets
// the identity. With rememberMe the session survives a restart.
func (s *Service) Login(ctx context.Context, username, password string, rememberMe bool) (model.Identity, error) {
	id, err := s.backend.Login(ctx, api.LoginRequest{Username: username, Password: password})
	if err != nil {
		var apiErr *api.Error
		if errors.As(err, &apiErr) && apiErr.RequiresPasswordReset {
			return model.Identity{}, ErrPasswordResetRequired
		}
		msg := msgLoginFailed
		if apiErr != nil && apiErr.Message != "" {
			msg = apiErr.Message
		}
		s.store.ShowError(msg)
		return model.Identity{}, fmt.Errorf("logging in: %w", err)
	}

	if err := s.persist(id, rememberMe); err != nil {
		s.store.ShowError(msgLoginFailed)
		return model.Identity{}, err
	}

	s.store.SetIdentity(id)
	s.store.ShowToast(msgLoginOK)
	s.log.Info().Int64("user_id", id.ID).Bool("remember_me", rememberMe).Msg("signed in")
	return id, nil
}

func (s *Service) persist(id model.Identity, rememberMe bool) error {
	raw, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	values := []struct{ key, value string }{
		{credential.KeyJWT, id.Token},
		{credential.KeyAuth, string(raw)},
		{credential.KeyID, strconv.FormatInt(id.ID, 10)},
		{credential.KeyEmail, id.Email},
	}
	for _, v := range values {
		if err := s.creds.Set(v.key, v.value); err != nil {
			return fmt.Errorf("saving session: %w", err)
		}
	}

	if rememberMe {
		return s.creds.Set(credential.KeyRememberMe, "true")
	}
	return s.creds.Delete(credential.KeyRememberMe)
}

// Restore loads a remembered session. It returns nil when there is nothing
// to restore. A session saved without rememberMe is wiped.
func (s *Service) Restore(ctx context.Context) (*model.Identity, error) {
	raw, err := credential.Lookup(s.creds, credential.KeyAuth)
	if err != nil {
		return nil, fmt.Errorf("restoring session: %w", err)
	}
	if raw == "" {
		return nil, nil
	}

	remember, err := credential.Lookup(s.creds, credential.KeyRememberMe)
	if err != nil {
		return nil, fmt.Errorf("restoring session: %w", err)
	}
	if remember != "true" {
		s.log.Debug().Msg("discarding session saved without remember me")
		s.ClearSession()
		return nil, nil
	}

	var id model.Identity
	if err := json.Unmarshal([]byte(raw), &id); err != nil {
		s.ClearSession()
		return nil, fmt.Errorf("decoding stored session: %w", err)
	}
	if token, _ := credential.Lookup(s.creds, credential.KeyJWT); token != "" {
		id.Token = token
	}

	if s.expired(id.Token) {
		s.log.Info().Int64("user_id", id.ID).Msg("stored session expired")
		s.ClearSession()
		return nil, ErrSessionExpired
	}

	s.store.SetIdentity(id)
	return &id, nil
}

// expired reports whether token is malformed or past its exp claim. The
// signature is not checked; the backend does that on every request.
func (s *Service) expired(token string) bool {
	if token == "" {
		return true
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !claims.ExpiresAt.After(s.now())
}

// Logout ends the session on the backend, removes the device token and
// wipes the stored credentials. forced marks a logout caused by a sign-in
// on another device. On backend failure the session is kept.
func (s *Service) Logout(ctx context.Context, forced bool) error {
	raw, err := credential.Lookup(s.creds, credential.KeyAuth)
	if err != nil || raw == "" {
		if err == nil {
			err = ErrNotSignedIn
		}
		s.store.ShowError(msgLogoutFailed)
		return fmt.Errorf("logging out: %w", err)
	}
	var id model.Identity
	if err := json.Unmarshal([]byte(raw), &id); err != nil {
		s.store.ShowError(msgLogoutFailed)
		return fmt.Errorf("decoding stored session: %w", err)
	}

	if err := s.backend.Logout(ctx, api.LogoutRequest{UserName: id.Email, ForcedLogout: forced}); err != nil {
		s.store.ShowError(msgLogoutFailed)
		return fmt.Errorf("logging out: %w", err)
	}

	if push, _ := credential.Lookup(s.creds, credential.KeyDevicePush); push != "" {
		req := model.DeviceTokenRequest{UserID: id.ID, Token: push, Platform: s.platform}
		if err := s.backend.RemoveDeviceToken(ctx, req); err != nil {
			s.log.Warn().Err(err).Msg("removing device token")
		}
		s.store.SetDeviceTokenRegistered(false)
	}

	s.ClearSession()

	msg := msgLogoutOK
	if forced {
		msg = msgForcedLogout
	}
	s.store.ShowToast(msg)
	s.log.Info().Int64("user_id", id.ID).Bool("forced", forced).Msg("signed out")
	return nil
}

// ClearSession wipes the stored session and the identity without calling
// the backend.
func (s *Service) ClearSession() {
	for _, key := range credential.SessionKeys {
		if err := s.creds.Delete(key); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("wiping credential")
		}
	}
	if err := s.creds.Delete(credential.KeyRememberMe); err != nil {
		s.log.Warn().Err(err).Msg("wiping remember me")
	}
	s.store.ClearIdentity()
}

// RegisterDevice registers a push token for the signed-in user and
// remembers it so Logout can remove it.
func (s *Service) RegisterDevice(ctx context.Context, token string) error {
	id := s.store.Identity()
	if id == nil {
		return ErrNotSignedIn
	}

	req := model.DeviceTokenRequest{UserID: id.ID, Token: token, Platform: s.platform}
	if err := s.backend.RegisterDeviceToken(ctx, req); err != nil {
		s.store.SetDeviceTokenRegistered(false)
		s.store.SetNotificationsError(msgDeviceRegister)
		return fmt.Errorf("registering device: %w", err)
	}
	if err := s.creds.Set(credential.KeyDevicePush, token); err != nil {
		return fmt.Errorf("registering device: %w", err)
	}
	s.store.SetDeviceTokenRegistered(true)
	return nil
}
