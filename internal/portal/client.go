package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ortaizi/sync-service/internal/domain"
	syncsvc "github.com/ortaizi/sync-service/internal/sync"
)

// Client talks to the scraper service that fronts the institution portals.
// It implements sync.CourseDataSource; transient transport failures surface
// as errors and are retried by the pipeline, not here.
type Client struct {
	base string
	http *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		base: baseURL,
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

type authReq struct {
	InstitutionID string `json:"institution_id"`
	Username      string `json:"username"`
	Password      string `json:"password"`
}

type authResp struct {
	OK        bool   `json:"ok"`
	MessageHe string `json:"message_he"`
	MessageEn string `json:"message_en"`
}

func (c *Client) Authenticate(ctx context.Context, institutionID, username, secret string) (syncsvc.AuthResult, error) {
	var out authResp
	err := c.post(ctx, "/auth/verify", authReq{
		InstitutionID: institutionID,
		Username:      username,
		Password:      secret,
	}, &out)
	if err != nil {
		return syncsvc.AuthResult{}, err
	}
	return syncsvc.AuthResult{
		OK:      out.OK,
		Message: domain.Message{He: out.MessageHe, En: out.MessageEn},
	}, nil
}

type credsReq struct {
	InstitutionID string `json:"institution_id"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	CourseID      string `json:"course_id,omitempty"`
}

type courseRefResp struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (c *Client) ListCourses(ctx context.Context, creds syncsvc.Credentials) ([]syncsvc.CourseRef, error) {
	var out struct {
		Courses []courseRefResp `json:"courses"`
	}
	err := c.post(ctx, "/courses", credsReq{
		InstitutionID: creds.InstitutionID,
		Username:      creds.Username,
		Password:      creds.Secret,
	}, &out)
	if err != nil {
		return nil, err
	}
	refs := make([]syncsvc.CourseRef, 0, len(out.Courses))
	for _, cr := range out.Courses {
		refs = append(refs, syncsvc.CourseRef{ExternalID: cr.ID, Name: cr.Name, URL: cr.URL})
	}
	return refs, nil
}

type itemResp struct {
	Kind       string     `json:"kind"`
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	URL        string     `json:"url"`
	Body       string     `json:"body"`
	DueAt      *time.Time `json:"due_at"`
	PostedAt   time.Time  `json:"posted_at"`
	Email      string     `json:"email"`
	Role       string     `json:"role"`
	Order      int        `json:"order"`
}

func (c *Client) FetchCourseDetail(ctx context.Context, creds syncsvc.Credentials, ref syncsvc.CourseRef) (syncsvc.CourseDetail, error) {
	var out struct {
		Semester string     `json:"semester"`
		Items    []itemResp `json:"items"`
	}
	err := c.post(ctx, "/course/detail", credsReq{
		InstitutionID: creds.InstitutionID,
		Username:      creds.Username,
		Password:      creds.Secret,
		CourseID:      ref.ExternalID,
	}, &out)
	if err != nil {
		return syncsvc.CourseDetail{}, err
	}

	items := make([]syncsvc.Item, 0, len(out.Items))
	for _, it := range out.Items {
		items = append(items, syncsvc.Item{
			Kind:       syncsvc.ItemKind(it.Kind),
			ExternalID: it.ID,
			Title:      it.Title,
			URL:        it.URL,
			Body:       it.Body,
			DueAt:      it.DueAt,
			PostedAt:   it.PostedAt,
			Email:      it.Email,
			Role:       it.Role,
			Order:      it.Order,
		})
	}
	return syncsvc.CourseDetail{Ref: ref, Semester: out.Semester, Items: items}, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("scraper %s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
