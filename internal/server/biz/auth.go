package biz

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/fx"
	"golang.org/x/crypto/bcrypt"

	"github.com/keeldata/trustvault/internal/authz"
	"github.com/keeldata/trustvault/internal/log"
	"github.com/keeldata/trustvault/internal/objects"
	"github.com/keeldata/trustvault/internal/pkg/xtime"
	"github.com/keeldata/trustvault/internal/vault"
)

// defaultStepUpTTL bounds a step-up grant. Short on purpose: the grant
// proves the holder re-authenticated moments ago.
const defaultStepUpTTL = 5 * time.Minute

type AuthServiceParams struct {
	fx.In

	SystemService  *SystemService
	ActorService   *ActorService
	SessionService *SessionService
	Store          vault.Store
}

func NewAuthService(params AuthServiceParams) *AuthService {
	return &AuthService{
		AbstractService: &AbstractService{
			store: params.Store,
		},
		SystemService:  params.SystemService,
		ActorService:   params.ActorService,
		SessionService: params.SessionService,
	}
}

type AuthService struct {
	*AbstractService

	SystemService  *SystemService
	ActorService   *ActorService
	SessionService *SessionService
}

// HashPassword hashes a password using bcrypt.
func HashPassword(password string) (string, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	return hex.EncodeToString(hashedPassword), nil
}

// VerifyPassword verifies a password against a hash.
func VerifyPassword(hashedPassword, password string) error {
	decodedHashedPassword, err := hex.DecodeString(hashedPassword)
	if err != nil {
		return fmt.Errorf("failed to decode hashed password: %w", err)
	}

	return bcrypt.CompareHashAndPassword(decodedHashedPassword, []byte(password))
}

// GenerateSecretKey generates a random secret key for JWT.
func GenerateSecretKey() (string, error) {
	bytes := make([]byte, 32) // 256 bits

	_, err := rand.Read(bytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	return hex.EncodeToString(bytes), nil
}

// SignIn authenticates an actor in the root tenant and issues a session.
func (s *AuthService) SignIn(
	ctx context.Context,
	email, password string,
	opts IssueOptions,
) (*objects.AuthResult, error) {
	tenant, err := authz.RunWithSystemBypass(ctx, "auth-root-tenant", func(bypassCtx context.Context) (vault.HashKey, error) {
		return s.SystemService.RootTenant(bypassCtx)
	})
	if err != nil {
		return nil, err
	}

	return s.SignInTenant(ctx, tenant, email, password, opts)
}

// SignInTenant authenticates an actor with email and password.
func (s *AuthService) SignInTenant(
	ctx context.Context,
	tenant vault.HashKey,
	email, password string,
	opts IssueOptions,
) (*objects.AuthResult, error) {
	actor, err := authz.RunWithSystemBypass(ctx, "auth-lookup", func(bypassCtx context.Context) (*Actor, error) {
		return s.ActorService.GetByEmail(bypassCtx, tenant, email)
	})
	if err != nil {
		if vault.IsNotFound(err) {
			return nil, fmt.Errorf("invalid email or password: %w", ErrInvalidPassword)
		}

		log.Error(ctx, "failed to get actor", log.Cause(err))

		return nil, ErrInternal
	}

	err = VerifyPassword(actor.Profile.PasswordHash, password)
	if err != nil {
		s.SessionService.Risk.RecordFailure(actor.Hub.Key)

		return nil, fmt.Errorf("invalid email or password: %w", ErrInvalidPassword)
	}

	s.SessionService.Risk.ResetFailures(actor.Hub.Key)

	// The caller has no principal yet; issuing the first session runs
	// under the system identity.
	issued, err := authz.RunWithSystemBypass(ctx, "auth-issue-session", func(bypassCtx context.Context) (*objects.IssuedSession, error) {
		return s.SessionService.Issue(bypassCtx, tenant, actor.Hub.Key, opts)
	})
	if err != nil {
		log.Error(ctx, "failed to issue session", log.Cause(err))

		return nil, ErrInternal
	}

	log.Debug(ctx, "actor authenticated", log.String("actor_key", actor.Hub.Key.String()))

	return &objects.AuthResult{
		Token: issued.Token,
		Actor: actor.Info(),
	}, nil
}

// GrantStepUp re-authenticates the session holder and mints a short
// lived grant bound to the session digest.
func (s *AuthService) GrantStepUp(
	ctx context.Context,
	token, password string,
	ttl time.Duration,
) (*objects.StepUpGrant, error) {
	digest := vault.TokenDigest(token)

	session, err := s.SessionService.Get(ctx, digest)
	if err != nil {
		if vault.IsNotFound(err) {
			return nil, fmt.Errorf("unknown session: %w", ErrInvalidToken)
		}

		return nil, err
	}

	if session.State.Terminal() || session.ExpiredAt(xtime.Now()) {
		return nil, fmt.Errorf("session no longer active: %w", ErrInvalidToken)
	}

	actor, err := s.ActorService.Get(ctx, session.ActorKey)
	if err != nil {
		log.Error(ctx, "failed to get actor for step-up", log.Cause(err))

		return nil, ErrInternal
	}

	err = VerifyPassword(actor.Profile.PasswordHash, password)
	if err != nil {
		s.SessionService.Risk.RecordFailure(session.ActorKey)

		return nil, fmt.Errorf("invalid email or password: %w", ErrInvalidPassword)
	}

	if ttl <= 0 {
		ttl = defaultStepUpTTL
	}

	expiresAt := xtime.Now().Add(ttl)

	grant, err := s.generateStepUpToken(ctx, digest, expiresAt)
	if err != nil {
		return nil, err
	}

	log.Info(ctx, "step-up granted",
		log.String("session_digest", digest),
		log.Time("expires_at", expiresAt))

	return &objects.StepUpGrant{
		Grant:     grant,
		ExpiresAt: expiresAt,
	}, nil
}

// VerifyStepUp validates a step-up grant and returns the session digest
// it is bound to.
func (s *AuthService) VerifyStepUp(ctx context.Context, grant string) (string, error) {
	secretKey, err := authz.RunWithSystemBypass(ctx, "auth-get-secret-key", func(bypassCtx context.Context) (string, error) {
		return s.SystemService.SecretKey(bypassCtx)
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret key: %w", err)
	}

	token, err := jwt.Parse(grant, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method: %v", ErrInvalidJWT, token.Header["alg"])
		}

		return []byte(secretKey), nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to parse step-up grant: %w", ErrInvalidJWT, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("%w: invalid grant", ErrInvalidJWT)
	}

	digest, ok := claims["session_digest"].(string)
	if !ok || digest == "" {
		return "", fmt.Errorf("%w: invalid grant claims", ErrInvalidJWT)
	}

	return digest, nil
}

func (s *AuthService) generateStepUpToken(ctx context.Context, digest string, expiresAt time.Time) (string, error) {
	secretKey, err := authz.RunWithSystemBypass(ctx, "auth-get-secret-key", func(bypassCtx context.Context) (string, error) {
		return s.SystemService.SecretKey(bypassCtx)
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret key: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"session_digest": digest,
		"exp":            expiresAt.Unix(),
	})

	tokenString, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to generate step-up grant: %w", err)
	}

	return tokenString, nil
}
