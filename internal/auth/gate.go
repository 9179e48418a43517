package auth

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/ortaizi/sync-service/internal/domain"
	"github.com/ortaizi/sync-service/internal/metrics"
	"github.com/ortaizi/sync-service/internal/security"
	syncsvc "github.com/ortaizi/sync-service/internal/sync"
)

const claimsCacheTTL = 30 * time.Second

type UserStore interface {
	UpsertProviderUser(ctx context.Context, p domain.ProviderProfile) (*domain.User, error)
	FindUserByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
	MarkSetupComplete(ctx context.Context, id primitive.ObjectID, institutionID string) error
}

// AttemptLog is append-only; a failed insert is logged but never blocks the
// sign-in itself.
type AttemptLog interface {
	InsertAttempt(ctx context.Context, a domain.AuthAttempt) error
}

type LastSyncSource interface {
	GetLastCompletedAt(ctx context.Context, userID primitive.ObjectID) (*time.Time, error)
}

// CredentialVault is the slice of the vault the gate needs.
type CredentialVault interface {
	Upsert(ctx context.Context, userID primitive.ObjectID, institutionID, username, secret string) error
	Active(ctx context.Context, userID primitive.ObjectID) (*domain.InstitutionCredential, error)
	Revoke(ctx context.Context, userID primitive.ObjectID, institutionID string) error
}

// InstitutionAuthenticator performs the live stage-2 verification.
type InstitutionAuthenticator interface {
	Authenticate(ctx context.Context, institutionID, username, secret string) (syncsvc.AuthResult, error)
}

type RateLimiter interface {
	IncrAttempt(ctx context.Context, identifier string) (int, error)
}

// DualStageCache shortcuts the credential lookup on claims refresh. The
// vault invalidates it whenever a credential changes, so a stale positive
// lives at most claimsCacheTTL.
type DualStageCache interface {
	GetDualStage(ctx context.Context, userID string) (institutionID string, ok bool, err error)
	SetDualStage(ctx context.Context, userID, institutionID string, ttl time.Duration) error
}

type SyncStarter interface {
	Start(ctx context.Context, userID primitive.ObjectID, creds syncsvc.Credentials) (string, error)
}

// Gate drives the two-stage sign-in: stage 1 establishes identity through
// the external provider, stage 2 verifies institution credentials and
// unlocks the dual-stage session.
type Gate struct {
	users    UserStore
	attempts AttemptLog
	lastSync LastSyncSource
	vault    CredentialVault
	source   InstitutionAuthenticator
	limiter  RateLimiter
	cache    DualStageCache
	syncs    SyncStarter

	allowedDomains []string
	rateLimit      int
	autoSync       bool
	log            *zap.Logger
}

type GateDeps struct {
	Users    UserStore
	Attempts AttemptLog
	LastSync LastSyncSource
	Vault    CredentialVault
	Source   InstitutionAuthenticator
	Limiter  RateLimiter // nil disables rate limiting
	Cache    DualStageCache
	Syncs    SyncStarter // nil disables auto-sync
}

func NewGate(d GateDeps, allowedDomains []string, rateLimit int, autoSync bool, log *zap.Logger) *Gate {
	return &Gate{
		users:          d.Users,
		attempts:       d.Attempts,
		lastSync:       d.LastSync,
		vault:          d.Vault,
		source:         d.Source,
		limiter:        d.Limiter,
		cache:          d.Cache,
		syncs:          d.Syncs,
		allowedDomains: allowedDomains,
		rateLimit:      rateLimit,
		autoSync:       autoSync,
		log:            log,
	}
}

// OnProviderSignIn handles a verified identity-provider profile. The email
// domain must match the allow-list exactly; a rejected email leaves no user
// row behind. Repeat sign-ins converge on the same user.
func (g *Gate) OnProviderSignIn(ctx context.Context, p domain.ProviderProfile) (*domain.User, error) {
	if !g.domainAllowed(p.Email) {
		g.record(ctx, domain.AuthAttempt{
			Identifier:   p.Email,
			Kind:         domain.AttemptProvider,
			ErrorMessage: ErrInvalidDomain.Error(),
		}, false)
		return nil, ErrInvalidDomain
	}

	u, err := g.users.UpsertProviderUser(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}

	g.record(ctx, domain.AuthAttempt{
		Identifier: p.Email,
		Kind:       domain.AttemptProvider,
	}, true)
	g.log.Info("provider sign-in", zap.String("user_id", u.ID.Hex()), zap.String("email", u.Email))
	return u, nil
}

// OnInstitutionSignIn verifies institution credentials against the live
// portal exactly once, stores them through the vault on success, and marks
// the account setup-complete. Stage ordering is enforced: the user row from
// stage 1 must already exist.
func (g *Gate) OnInstitutionSignIn(ctx context.Context, userID primitive.ObjectID, institutionID, username, secret string) error {
	if g.limiter != nil && g.rateLimit > 0 {
		n, err := g.limiter.IncrAttempt(ctx, username)
		if err != nil {
			g.log.Warn("rate limiter unavailable", zap.Error(err))
		} else if n > g.rateLimit {
			return ErrRateLimited
		}
	}

	u, err := g.users.FindUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if u == nil {
		return ErrIdentityNotEstablished
	}

	res, err := g.source.Authenticate(ctx, institutionID, username, secret)
	if err != nil {
		g.record(ctx, domain.AuthAttempt{
			Identifier:    username,
			Kind:          domain.AttemptInstitution,
			InstitutionID: institutionID,
			ErrorMessage:  err.Error(),
		}, false)
		return fmt.Errorf("institution authentication: %w", err)
	}
	if !res.OK {
		// a stored credential that now fails live auth is stale; deactivate
		// it so claims refresh demotes the session
		if err := g.vault.Revoke(ctx, userID, institutionID); err != nil {
			g.log.Warn("stale credential revoke failed",
				zap.String("user_id", userID.Hex()), zap.Error(err))
		}
		g.record(ctx, domain.AuthAttempt{
			Identifier:    username,
			Kind:          domain.AttemptInstitution,
			InstitutionID: institutionID,
			ErrorMessage:  res.Message.En,
		}, false)
		return &InstitutionError{Msg: res.Message}
	}

	if err := g.vault.Upsert(ctx, userID, institutionID, username, secret); err != nil {
		return err
	}
	if err := g.users.MarkSetupComplete(ctx, userID, institutionID); err != nil {
		return fmt.Errorf("mark setup complete: %w", err)
	}

	g.record(ctx, domain.AuthAttempt{
		Identifier:    username,
		Kind:          domain.AttemptInstitution,
		InstitutionID: institutionID,
	}, true)
	g.log.Info("institution sign-in verified",
		zap.String("user_id", userID.Hex()), zap.String("institution_id", institutionID))

	g.autoStart(userID, syncsvc.Credentials{
		InstitutionID: institutionID,
		Username:      username,
		Secret:        secret,
	})
	return nil
}

// autoStart fires the initial sync without blocking the sign-in response.
// A failed start is logged; the user can trigger a manual sync later.
func (g *Gate) autoStart(userID primitive.ObjectID, creds syncsvc.Credentials) {
	if !g.autoSync || g.syncs == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := g.syncs.Start(ctx, userID, creds); err != nil {
			g.log.Error("auto-sync start failed", zap.String("user_id", userID.Hex()), zap.Error(err))
		}
	}()
}

// Claims derives the token claims for a user from current credential state,
// not from the previous token, so a revoked credential demotes the session
// on the next refresh.
func (g *Gate) Claims(ctx context.Context, u *domain.User) (security.Claims, error) {
	c := security.Claims{
		UID:      u.ID.Hex(),
		Email:    u.Email,
		Provider: security.ProviderIdentityOnly,
	}

	institutionID, ok := g.cachedStage(ctx, u.ID.Hex())
	if !ok {
		cred, err := g.vault.Active(ctx, u.ID)
		if err != nil {
			return security.Claims{}, fmt.Errorf("credential lookup: %w", err)
		}
		if cred.Valid() {
			institutionID = cred.InstitutionID
			ok = true
			g.cacheStage(ctx, u.ID.Hex(), institutionID)
		}
	}
	if ok {
		c.Provider = security.ProviderDualStageComplete
		c.InstitutionID = institutionID
		c.IsDualStageComplete = true
	}

	if g.lastSync != nil {
		if ts, err := g.lastSync.GetLastCompletedAt(ctx, u.ID); err != nil {
			g.log.Warn("last sync lookup failed", zap.String("user_id", u.ID.Hex()), zap.Error(err))
		} else if ts != nil {
			c.LastSync = jwt.NewNumericDate(*ts)
		}
	}
	return c, nil
}

// SignOut is stateless beyond the audit trail; tokens expire on their own.
func (g *Gate) SignOut(ctx context.Context, email string) {
	g.record(ctx, domain.AuthAttempt{
		Identifier: email,
		Kind:       domain.AttemptSignOut,
	}, true)
}

func (g *Gate) domainAllowed(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	dom := strings.ToLower(email[at+1:])
	for _, allowed := range g.allowedDomains {
		if dom == allowed {
			return true
		}
	}
	return false
}

func (g *Gate) cachedStage(ctx context.Context, userID string) (string, bool) {
	if g.cache == nil {
		return "", false
	}
	institutionID, ok, err := g.cache.GetDualStage(ctx, userID)
	if err != nil {
		g.log.Warn("claims cache read failed", zap.String("user_id", userID), zap.Error(err))
		return "", false
	}
	return institutionID, ok
}

func (g *Gate) cacheStage(ctx context.Context, userID, institutionID string) {
	if g.cache == nil {
		return
	}
	if err := g.cache.SetDualStage(ctx, userID, institutionID, claimsCacheTTL); err != nil {
		g.log.Warn("claims cache write failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (g *Gate) record(ctx context.Context, a domain.AuthAttempt, success bool) {
	a.Success = success
	a.CreatedAt = time.Now().UTC()
	metrics.AuthAttempts.WithLabelValues(string(a.Kind), strconv.FormatBool(success)).Inc()
	if err := g.attempts.InsertAttempt(ctx, a); err != nil {
		g.log.Warn("attempt log insert failed", zap.String("identifier", a.Identifier), zap.Error(err))
	}
}
