package http_test

import (
	"context"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/ortaizi/sync-service/internal/auth"
	"github.com/ortaizi/sync-service/internal/domain"
	api "github.com/ortaizi/sync-service/internal/http"
	"github.com/ortaizi/sync-service/internal/security"
	syncsvc "github.com/ortaizi/sync-service/internal/sync"
	"github.com/ortaizi/sync-service/internal/vault"
)

const testSecret = "test-jwt-secret"

type fakeUsers struct {
	byID    map[primitive.ObjectID]*domain.User
	byEmail map[string]*domain.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		byID:    map[primitive.ObjectID]*domain.User{},
		byEmail: map[string]*domain.User{},
	}
}

func (f *fakeUsers) UpsertProviderUser(ctx context.Context, p domain.ProviderProfile) (*domain.User, error) {
	if u, ok := f.byEmail[p.Email]; ok {
		return u, nil
	}
	u := &domain.User{ID: primitive.NewObjectID(), Email: p.Email, DisplayName: p.Name, ProviderID: p.Subject}
	f.byID[u.ID] = u
	f.byEmail[u.Email] = u
	return u, nil
}

func (f *fakeUsers) FindUserByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	return f.byID[id], nil
}

func (f *fakeUsers) MarkSetupComplete(ctx context.Context, id primitive.ObjectID, institutionID string) error {
	if u, ok := f.byID[id]; ok {
		u.IsSetupComplete = true
		u.InstitutionID = institutionID
	}
	return nil
}

type fakeAttempts struct{ rows []domain.AuthAttempt }

func (f *fakeAttempts) InsertAttempt(ctx context.Context, a domain.AuthAttempt) error {
	f.rows = append(f.rows, a)
	return nil
}

type fakeLastSync struct{ at *time.Time }

func (f *fakeLastSync) GetLastCompletedAt(ctx context.Context, userID primitive.ObjectID) (*time.Time, error) {
	return f.at, nil
}

type fakeCredStore struct {
	creds map[string]*domain.InstitutionCredential
}

func newFakeCredStore() *fakeCredStore {
	return &fakeCredStore{creds: map[string]*domain.InstitutionCredential{}}
}

func credKey(userID primitive.ObjectID, institutionID string) string {
	return userID.Hex() + "/" + institutionID
}

func (f *fakeCredStore) UpsertCredential(ctx context.Context, c domain.InstitutionCredential) error {
	cp := c
	f.creds[credKey(c.UserID, c.InstitutionID)] = &cp
	return nil
}

func (f *fakeCredStore) FindCredential(ctx context.Context, userID primitive.ObjectID, institutionID string) (*domain.InstitutionCredential, error) {
	return f.creds[credKey(userID, institutionID)], nil
}

func (f *fakeCredStore) FindActiveCredential(ctx context.Context, userID primitive.ObjectID) (*domain.InstitutionCredential, error) {
	for _, c := range f.creds {
		if c.UserID == userID && c.Valid() {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeCredStore) RevokeCredential(ctx context.Context, userID primitive.ObjectID, institutionID string) error {
	if c, ok := f.creds[credKey(userID, institutionID)]; ok {
		c.IsActive = false
	}
	return nil
}

type fakeAuthn struct {
	ok      bool
	message domain.Message
}

func (f *fakeAuthn) Authenticate(ctx context.Context, institutionID, username, secret string) (syncsvc.AuthResult, error) {
	return syncsvc.AuthResult{OK: f.ok, Message: f.message}, nil
}

type fakeJobs struct {
	jobs map[string]*domain.SyncJob
}

func newFakeJobs() *fakeJobs { return &fakeJobs{jobs: map[string]*domain.SyncJob{}} }

func (f *fakeJobs) GetJob(ctx context.Context, jobID string) (*domain.SyncJob, error) {
	return f.jobs[jobID], nil
}

func (f *fakeJobs) GetActiveJob(ctx context.Context, userID primitive.ObjectID) (*domain.SyncJob, error) {
	for _, j := range f.jobs {
		if j.UserID == userID && !j.Status.Terminal() {
			return j, nil
		}
	}
	return nil, nil
}

type fakeStarter struct {
	jobID string
	creds []syncsvc.Credentials
}

func (f *fakeStarter) Start(ctx context.Context, userID primitive.ObjectID, creds syncsvc.Credentials) (string, error) {
	f.creds = append(f.creds, creds)
	return f.jobID, nil
}

type fakeProvider struct {
	profile *domain.ProviderProfile
	err     error
}

func (f *fakeProvider) MakeState(raw string) string   { return raw + ".sig" }
func (f *fakeProvider) VerifyState(got string) bool   { return got != "" && got != "bad" }
func (f *fakeProvider) AuthURL(state string) string   { return "https://provider.test/auth?state=" + state }
func (f *fakeProvider) ExchangeAndVerify(ctx context.Context, code string) (*domain.ProviderProfile, error) {
	return f.profile, f.err
}

type okPinger struct{}

func (okPinger) Ping(ctx context.Context) error { return nil }

type testEnv struct {
	Router   *gin.Engine
	Users    *fakeUsers
	Jobs     *fakeJobs
	Starter  *fakeStarter
	Authn    *fakeAuthn
	Provider *fakeProvider
	Creds    *fakeCredStore
	Vault    *vault.Vault
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := newFakeUsers()
	creds := newFakeCredStore()
	authn := &fakeAuthn{ok: true}
	jobs := newFakeJobs()
	starter := &fakeStarter{jobID: "job-123"}
	provider := &fakeProvider{}

	cipher, err := security.NewCipher("test-master-key", "sync-service/v1")
	require.NoError(t, err)
	v := vault.New(cipher, creds, nil, zap.NewNop())

	gate := auth.NewGate(auth.GateDeps{
		Users:    users,
		Attempts: &fakeAttempts{},
		LastSync: &fakeLastSync{},
		Vault:    v,
		Source:   authn,
	}, []string{"bgu.ac.il", "post.bgu.ac.il", "tau.ac.il"}, 0, false, zap.NewNop())

	h := &api.Handler{
		Gate:      gate,
		Google:    provider,
		Users:     users,
		Jobs:      jobs,
		Syncs:     starter,
		Secrets:   v,
		DB:        okPinger{},
		JWTSecret: testSecret,
		AccessTTL: 15 * time.Minute,
		Log:       zap.NewNop(),
	}

	return &testEnv{
		Router:   api.NewRouter(h),
		Users:    users,
		Jobs:     jobs,
		Starter:  starter,
		Authn:    authn,
		Provider: provider,
		Creds:    creds,
		Vault:    v,
	}
}

func (e *testEnv) addUser(t *testing.T, email string) *domain.User {
	t.Helper()
	u, err := e.Users.UpsertProviderUser(context.Background(), domain.ProviderProfile{
		Subject: "sub-" + email, Email: email, Name: "Test User",
	})
	require.NoError(t, err)
	return u
}

func (e *testEnv) token(t *testing.T, u *domain.User, dualStage bool) string {
	t.Helper()
	c := security.Claims{UID: u.ID.Hex(), Email: u.Email, Provider: security.ProviderIdentityOnly}
	if dualStage {
		c.Provider = security.ProviderDualStageComplete
		c.InstitutionID = "bgu"
		c.IsDualStageComplete = true
	}
	tok, err := security.MakeAccess(testSecret, c, 15*time.Minute)
	require.NoError(t, err)
	return tok
}
