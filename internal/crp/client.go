package crp

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"git.internal.example/releng/pkgrelease/internal/foundation"
)

// tokenTTL is how long a login token is trusted before a proactive
// re-login, independent of the 401-triggered reactive re-login below.
const tokenTTL = 25 * time.Minute

// Client is the HTTP implementation of PackageService, grounded on
// original_source/app/services/crp_service.py: RSA-encrypt-then-base64 the
// password before POST /login, cache the returned token, and transparently
// re-login on expiry or a 401 response.
type Client struct {
	baseURL    string
	username   string
	password   string
	publicKey  *rsa.PublicKey
	httpClient *http.Client

	mu        sync.Mutex
	token     string
	fetchedAt time.Time
}

// NewClient builds a Client. publicKeyPEM is the CRP login endpoint's RSA
// public key, configured per-deployment via GlobalConfig.CRPPublicKeyPEM.
func NewClient(baseURL, username, password, publicKeyPEM string, httpClient *http.Client) (*Client, error) {
	pub, err := parsePublicKey(publicKeyPEM)
	if err != nil {
		return nil, foundation.NewError(foundation.ErrorCodeCRP, "parse CRP public key").
			WithCause(err).WithComponent("crp").Build()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		password:   password,
		publicKey:  pub,
		httpClient: httpClient,
	}, nil
}

func parsePublicKey(pemText string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		if pub2, err2 := x509.ParsePKCS1PublicKey(block.Bytes); err2 == nil {
			return pub2, nil
		}
		return nil, err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key is not RSA")
	}
	return rsaPub, nil
}

// encryptPassword mirrors crp_service.py's encrypt_password: RSA-PKCS1v15
// encrypt the UTF-8 password bytes, then base64-encode the ciphertext.
func (c *Client) encryptPassword() (string, error) {
	cipherBytes, err := rsa.EncryptPKCS1v15(rand.Reader, c.publicKey, []byte(c.password))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(cipherBytes), nil
}

// login performs POST /login and caches the returned token.
func (c *Client) login(ctx context.Context) error {
	encrypted, err := c.encryptPassword()
	if err != nil {
		return foundation.NewError(foundation.ErrorCodeCRP, "encrypt password").
			WithCause(err).WithComponent("crp").WithOperation("login").Build()
	}

	body, _ := json.Marshal(map[string]string{
		"username": c.username,
		"password": encrypted,
	})
	resp, err := c.do(ctx, http.MethodPost, "/login", nil, bytes.NewReader(body), false)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var parsed struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return foundation.NewError(foundation.ErrorCodeCRP, "decode login response").
			WithCause(err).WithComponent("crp").WithOperation("login").Build()
	}
	if parsed.Token == "" {
		return foundation.NewError(foundation.ErrorCodeCRP, "login response missing token").
			WithComponent("crp").WithOperation("login").Build()
	}

	c.mu.Lock()
	c.token = parsed.Token
	c.fetchedAt = time.Now()
	c.mu.Unlock()
	return nil
}

// getToken returns a cached token, refreshing it if stale or absent.
func (c *Client) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.token
	stale := token == "" || time.Since(c.fetchedAt) > tokenTTL
	c.mu.Unlock()

	if !stale {
		return token, nil
	}
	if err := c.login(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, nil
}

// invalidateToken drops the cached token so the next call re-logs in; used
// after a 401 response (reactive re-login per crp_service.py's get_token).
func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// do issues an authenticated request against the CRP API, retrying once
// after a fresh login on a 401 (unless this request *is* the login call).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, authenticate bool) (*http.Response, error) {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = io.ReadAll(body)
		if err != nil {
			return nil, err
		}
	}

	attempt := func(token string) (*http.Response, error) {
		full := c.baseURL + path
		if len(query) > 0 {
			full += "?" + query.Encode()
		}
		var reqBody io.Reader
		if bodyBytes != nil {
			reqBody = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, full, reqBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return c.httpClient.Do(req)
	}

	var token string
	if authenticate {
		var err error
		token, err = c.getToken(ctx)
		if err != nil {
			return nil, err
		}
	}

	resp, err := attempt(token)
	if err != nil {
		return nil, foundation.NewError(foundation.ErrorCodeCRP, "request failed").
			WithCause(err).WithComponent("crp").WithOperation(method+" "+path).Retryable().Build()
	}

	if authenticate && resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		c.invalidateToken()
		token, err = c.getToken(ctx)
		if err != nil {
			return nil, err
		}
		resp, err = attempt(token)
		if err != nil {
			return nil, foundation.NewError(foundation.ErrorCodeCRP, "request failed after re-login").
				WithCause(err).WithComponent("crp").WithOperation(method+" "+path).Build()
		}
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		payload, _ := io.ReadAll(resp.Body)
		return nil, foundation.NewError(foundation.ErrorCodeCRP, "CRP returned an error status").
			WithComponent("crp").WithOperation(method+" "+path).
			WithField("status", resp.StatusCode).WithField("body", string(payload)).Build()
	}
	return resp, nil
}

// CurrentUser implements PackageService.
func (c *Client) CurrentUser(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/user", nil, nil, true)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var parsed struct {
		Name string `json:"Name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", foundation.NewError(foundation.ErrorCodeCRP, "decode user response").
			WithCause(err).WithComponent("crp").Build()
	}
	return parsed.Name, nil
}

// SearchTopics implements PackageService.
func (c *Client) SearchTopics(ctx context.Context, topicType, username, branchID string) ([]string, error) {
	q := url.Values{"type": {topicType}, "username": {username}, "branch": {branchID}}
	resp, err := c.do(ctx, http.MethodGet, "/topics/search", q, nil, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var parsed []struct {
		ID string `json:"ID"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, foundation.NewError(foundation.ErrorCodeCRP, "decode topic search response").
			WithCause(err).WithComponent("crp").Build()
	}
	ids := make([]string, 0, len(parsed))
	for _, t := range parsed {
		ids = append(ids, t.ID)
	}
	return ids, nil
}

// ListTopicReleases implements PackageService.
func (c *Client) ListTopicReleases(ctx context.Context, topicID string) ([]Release, error) {
	resp, err := c.do(ctx, http.MethodGet, "/topics/"+url.PathEscape(topicID)+"/releases", nil, nil, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var parsed []struct {
		ID          int    `json:"ID"`
		ProjectID   int    `json:"ProjectID"`
		ProjectName string `json:"ProjectName"`
		Branch      string `json:"Branch"`
		Tag         string `json:"Tag"`
		Commit      string `json:"Commit"`
		BuildID     int    `json:"BuildID"`
		BuildState  string `json:"BuildState"`
		Arches      string `json:"Arches"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, foundation.NewError(foundation.ErrorCodeCRP, "decode topic releases response").
			WithCause(err).WithComponent("crp").Build()
	}
	releases := make([]Release, 0, len(parsed))
	for _, r := range parsed {
		releases = append(releases, Release{
			ID: r.ID, ProjectID: r.ProjectID, ProjectName: r.ProjectName, Branch: r.Branch,
			Tag: r.Tag, Commit: r.Commit, BuildID: r.BuildID, BuildState: BuildState(r.BuildState), Arches: r.Arches,
		})
	}
	return releases, nil
}

// SearchProjects implements PackageService.
func (c *Client) SearchProjects(ctx context.Context, name, branchID string) ([]Project, error) {
	q := url.Values{"name": {name}, "branch": {branchID}}
	resp, err := c.do(ctx, http.MethodGet, "/projects/search", q, nil, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var parsed []struct {
		ID     int    `json:"ID"`
		Name   string `json:"Name"`
		Branch string `json:"Branch"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, foundation.NewError(foundation.ErrorCodeCRP, "decode project search response").
			WithCause(err).WithComponent("crp").Build()
	}
	projects := make([]Project, 0, len(parsed))
	for _, p := range parsed {
		projects = append(projects, Project{ID: p.ID, Name: p.Name, Branch: p.Branch})
	}
	return projects, nil
}

// SubmitRelease implements PackageService. Response parsing tolerates a raw
// integer id, a JSON object carrying "ID", or a plain-text integer body, the
// way crp_service.py's submit_build does.
func (c *Client) SubmitRelease(ctx context.Context, req ReleaseRequest) (int, string, error) {
	arches := req.Arches
	if len(arches) == 0 {
		arches = DefaultArches
	}
	payload := map[string]any{
		"ProjectID": req.ProjectID,
		"Branch":    req.Branch,
		"BranchID":  req.BranchID,
		"Commit":    req.Commit,
		"Tag":       req.Tag,
		"Arches":    arches,
		"Title":     req.ChangelogTitle,
	}
	body, _ := json.Marshal(payload)
	resp, err := c.do(ctx, http.MethodPost, "/topics/"+url.PathEscape(req.TopicID)+"/releases", nil, bytes.NewReader(body), true)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", foundation.NewError(foundation.ErrorCodeCRP, "read release response").
			WithCause(err).WithComponent("crp").Build()
	}

	id, buildURL, err := parseReleaseResponse(raw)
	if err != nil {
		return 0, "", foundation.NewError(foundation.ErrorCodeCRP, "unrecognized release response").
			WithComponent("crp").WithField("body", string(raw)).Build()
	}
	return id, buildURL, nil
}

func parseReleaseResponse(raw []byte) (int, string, error) {
	trimmed := bytes.TrimSpace(raw)

	if id, err := strconv.Atoi(string(trimmed)); err == nil {
		return id, "", nil
	}

	var obj struct {
		ID       int    `json:"ID"`
		BuildURL string `json:"BuildURL"`
	}
	if err := json.Unmarshal(trimmed, &obj); err == nil && obj.ID != 0 {
		return obj.ID, obj.BuildURL, nil
	}

	return 0, "", fmt.Errorf("response is neither an integer nor an {ID:...} object: %q", trimmed)
}

// DeleteRelease implements PackageService.
func (c *Client) DeleteRelease(ctx context.Context, releaseID int) error {
	resp, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/releases/%d", releaseID), nil, nil, true)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// RetryRelease implements PackageService.
func (c *Client) RetryRelease(ctx context.Context, releaseID int) error {
	resp, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/releases/%d/retry", releaseID), nil, nil, true)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
