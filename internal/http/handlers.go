package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/ortaizi/sync-service/internal/auth"
	"github.com/ortaizi/sync-service/internal/domain"
	"github.com/ortaizi/sync-service/internal/security"
	syncsvc "github.com/ortaizi/sync-service/internal/sync"
	"github.com/ortaizi/sync-service/internal/vault"
)

// Provider is the identity-provider surface the handlers use; nil means the
// provider is not configured and its routes answer 503.
type Provider interface {
	MakeState(raw string) string
	VerifyState(got string) bool
	AuthURL(state string) string
	ExchangeAndVerify(ctx context.Context, code string) (*domain.ProviderProfile, error)
}

type SyncStarter interface {
	Start(ctx context.Context, userID primitive.ObjectID, creds syncsvc.Credentials) (string, error)
}

type JobReader interface {
	GetJob(ctx context.Context, jobID string) (*domain.SyncJob, error)
	GetActiveJob(ctx context.Context, userID primitive.ObjectID) (*domain.SyncJob, error)
}

type UserFinder interface {
	FindUserByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
}

// SecretSource hands the manual-sync handler the decrypted credential; it is
// used in-process only and never serialized.
type SecretSource interface {
	Plaintext(ctx context.Context, userID primitive.ObjectID, institutionID string) (username, secret string, err error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	Gate      *auth.Gate
	Google    Provider
	Users     UserFinder
	Jobs      JobReader
	Syncs     SyncStarter
	Secrets   SecretSource
	DB        Pinger
	JWTSecret string
	AccessTTL time.Duration
	Log       *zap.Logger
}

type institutionInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	NameEn string `json:"name_en"`
}

var institutions = []institutionInfo{
	{ID: "bgu", Name: "אוניברסיטת בן-גוריון בנגב", NameEn: "Ben-Gurion University of the Negev"},
	{ID: "tau", Name: "אוניברסיטת תל אביב", NameEn: "Tel Aviv University"},
	{ID: "huji", Name: "האוניברסיטה העברית בירושלים", NameEn: "The Hebrew University of Jerusalem"},
}

// GoogleLogin godoc
// @Summary Start provider sign-in
// @Tags auth
// @Success 302
// @Failure 503 {object} map[string]string
// @Router /api/auth/google/login [get]
func (h *Handler) GoogleLogin(c *gin.Context) {
	if h.Google == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "identity provider disabled"})
		return
	}
	state := h.Google.MakeState(uuid.NewString())
	c.Redirect(http.StatusFound, h.Google.AuthURL(state))
}

// GoogleCallback godoc
// @Summary Provider sign-in callback
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Router /api/auth/google/callback [get]
func (h *Handler) GoogleCallback(c *gin.Context) {
	if h.Google == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "identity provider disabled"})
		return
	}
	state, code := c.Query("state"), c.Query("code")
	if code == "" || !h.Google.VerifyState(state) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state or code"})
		return
	}

	profile, err := h.Google.ExchangeAndVerify(c.Request.Context(), code)
	if err != nil {
		h.Log.Warn("provider exchange failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "provider exchange failed"})
		return
	}

	u, err := h.Gate.OnProviderSignIn(c.Request.Context(), *profile)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidDomain) {
			c.JSON(http.StatusForbidden, gin.H{
				"error":      "email domain not allowed",
				"message_he": "כתובת האימייל אינה שייכת למוסד נתמך",
				"message_en": "This email does not belong to a supported institution",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign-in failed"})
		return
	}

	tok, err := h.issueToken(c.Request.Context(), u)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access": tok, "user": userDTO(u)})
}

type institutionReq struct {
	InstitutionID string `json:"institution_id"`
	Username      string `json:"username"`
	Password      string `json:"password"`
}

// InstitutionSignIn godoc
// @Summary Verify institution credentials (stage 2)
// @Tags auth
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body institutionReq true "credentials"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 429 {object} map[string]string
// @Router /api/auth/institution [post]
func (h *Handler) InstitutionSignIn(c *gin.Context) {
	claims := mustClaims(c)

	var in institutionReq
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	in.InstitutionID = strings.ToLower(strings.TrimSpace(in.InstitutionID))
	in.Username = strings.TrimSpace(in.Username)
	if !knownInstitution(in.InstitutionID) || in.Username == "" || in.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or unknown institution/credentials"})
		return
	}

	uid, err := primitive.ObjectIDFromHex(claims.UID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token subject"})
		return
	}

	err = h.Gate.OnInstitutionSignIn(c.Request.Context(), uid, in.InstitutionID, in.Username, in.Password)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many attempts, try again later"})
		return
	case errors.Is(err, auth.ErrIdentityNotEstablished):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "provider sign-in required first"})
		return
	case errors.Is(err, auth.ErrInstitutionAuthFailed):
		var ie *auth.InstitutionError
		msg := domain.Message{He: "שם המשתמש או הסיסמה שגויים", En: "Invalid username or password"}
		if errors.As(err, &ie) {
			msg = ie.Msg
		}
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":      "institution authentication failed",
			"message_he": msg.He,
			"message_en": msg.En,
		})
		return
	case errors.Is(err, vault.ErrStorage):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "credential storage failed"})
		return
	default:
		h.Log.Error("institution sign-in failed", zap.String("user_id", claims.UID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "institution unavailable, try again later"})
		return
	}

	u, err := h.Users.FindUserByID(c.Request.Context(), uid)
	if err != nil || u == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	tok, err := h.issueToken(c.Request.Context(), u)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access": tok})
}

// Refresh re-derives claims from storage, so credential revocation or a
// finished sync shows up in the new token.
func (h *Handler) Refresh(c *gin.Context) {
	claims := mustClaims(c)
	uid, err := primitive.ObjectIDFromHex(claims.UID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token subject"})
		return
	}
	u, err := h.Users.FindUserByID(c.Request.Context(), uid)
	if err != nil || u == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	tok, err := h.issueToken(c.Request.Context(), u)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access": tok})
}

func (h *Handler) SignOut(c *gin.Context) {
	claims := mustClaims(c)
	h.Gate.SignOut(c.Request.Context(), claims.Email)
	c.Status(http.StatusNoContent)
}

// Me godoc
// @Summary Current user
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]string
// @Router /api/auth/me [get]
func (h *Handler) Me(c *gin.Context) {
	claims := mustClaims(c)
	uid, err := primitive.ObjectIDFromHex(claims.UID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token subject"})
		return
	}
	u, err := h.Users.FindUserByID(c.Request.Context(), uid)
	if err != nil || u == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, userDTO(u))
}

func (h *Handler) Institutions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"institutions": institutions})
}

type jobResp struct {
	JobID     string             `json:"job_id"`
	Status    string             `json:"status"`
	Progress  int                `json:"progress"`
	Message   string             `json:"message"`
	MessageEn string             `json:"message_en"`
	Result    *domain.SyncResult `json:"result,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// SyncStatus godoc
// @Summary Sync job status
// @Tags sync
// @Security BearerAuth
// @Produce json
// @Success 200 {object} jobResp
// @Failure 404 {object} map[string]string
// @Router /api/sync/status/{jobID} [get]
func (h *Handler) SyncStatus(c *gin.Context) {
	claims := mustClaims(c)
	// "active" is reserved: gin's tree cannot hold a static segment next to
	// the :jobID wildcard, so the by-id route dispatches it
	if c.Param("jobID") == "active" {
		h.ActiveSync(c)
		return
	}
	job, err := h.Jobs.GetJob(c.Request.Context(), c.Param("jobID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "job lookup failed"})
		return
	}
	// not-owned is indistinguishable from not-found
	if job == nil || job.UserID.Hex() != claims.UID {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, jobDTO(job))
}

func (h *Handler) ActiveSync(c *gin.Context) {
	claims := mustClaims(c)
	uid, err := primitive.ObjectIDFromHex(claims.UID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token subject"})
		return
	}
	job, err := h.Jobs.GetActiveJob(c.Request.Context(), uid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "job lookup failed"})
		return
	}
	if job == nil {
		c.JSON(http.StatusOK, gin.H{"job": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": jobDTO(job)})
}

// TriggerSync godoc
// @Summary Start a manual re-sync
// @Tags sync
// @Security BearerAuth
// @Produce json
// @Success 202 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Router /api/sync [post]
func (h *Handler) TriggerSync(c *gin.Context) {
	claims := mustClaims(c)
	uid, err := primitive.ObjectIDFromHex(claims.UID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token subject"})
		return
	}

	username, secret, err := h.Secrets.Plaintext(c.Request.Context(), uid, claims.InstitutionID)
	if err != nil {
		if errors.Is(err, vault.ErrNoCredential) {
			c.JSON(http.StatusForbidden, gin.H{"error": "no verified credential on record"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "credential load failed"})
		return
	}

	jobID, err := h.Syncs.Start(c.Request.Context(), uid, syncsvc.Credentials{
		InstitutionID: claims.InstitutionID,
		Username:      username,
		Secret:        secret,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sync start failed"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

func (h *Handler) Healthz(c *gin.Context) {
	if err := h.DB.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) issueToken(ctx context.Context, u *domain.User) (string, error) {
	claims, err := h.Gate.Claims(ctx, u)
	if err != nil {
		return "", err
	}
	return security.MakeAccess(h.JWTSecret, claims, h.AccessTTL)
}

func userDTO(u *domain.User) gin.H {
	return gin.H{
		"id":                u.ID.Hex(),
		"email":             u.Email,
		"name":              u.DisplayName,
		"avatar_url":        u.AvatarURL,
		"institution_id":    u.InstitutionID,
		"is_setup_complete": u.IsSetupComplete,
		"created_at":        u.CreatedAt,
	}
}

func jobDTO(j *domain.SyncJob) jobResp {
	return jobResp{
		JobID:     j.ID,
		Status:    string(j.Status),
		Progress:  j.Progress,
		Message:   j.Message,
		MessageEn: j.MessageEn,
		Result:    j.Result,
		UpdatedAt: j.UpdatedAt,
	}
}

func knownInstitution(id string) bool {
	for _, inst := range institutions {
		if inst.ID == id {
			return true
		}
	}
	return false
}
