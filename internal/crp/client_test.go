package crp

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func decryptBase64RSA(key *rsa.PrivateKey, encoded string) (string, error) {
	cipherBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	plain, err := rsa.DecryptPKCS1v15(rand.Reader, key, cipherBytes)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func testKeyPEM(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return key, string(pem.EncodeToMemory(block))
}

func TestClient_Login_EncryptsPasswordAndCachesToken(t *testing.T) {
	key, pubPEM := testKeyPEM(t)

	var loginCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			loginCalls++
			var body struct {
				Username string `json:"username"`
				Password string `json:"password"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "alice", body.Username)
			require.NotEmpty(t, body.Password)

			plain, err := decryptBase64RSA(key, body.Password)
			require.NoError(t, err)
			require.Equal(t, "hunter2", plain)

			_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-1"})
		case "/user":
			require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			_ = json.NewEncoder(w).Encode(map[string]string{"Name": "alice"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "alice", "hunter2", pubPEM, srv.Client())
	require.NoError(t, err)

	name, err := c.CurrentUser(context.Background())
	require.NoError(t, err)
	require.Equal(t, "alice", name)
	require.Equal(t, 1, loginCalls)

	// Second call reuses the cached token; no second login.
	_, err = c.CurrentUser(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, loginCalls)
}

func TestClient_ReLoginsOn401(t *testing.T) {
	key, pubPEM := testKeyPEM(t)
	_ = key

	var userCalls int
	var loginCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			loginCalls++
			_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
		case "/user":
			userCalls++
			if userCalls == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"Name": "bob"})
		}
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "bob", "pw", pubPEM, srv.Client())
	require.NoError(t, err)

	name, err := c.CurrentUser(context.Background())
	require.NoError(t, err)
	require.Equal(t, "bob", name)
	require.Equal(t, 2, userCalls)
	require.Equal(t, 2, loginCalls)
}

func TestParseReleaseResponse_AcceptsRawIntOrObject(t *testing.T) {
	id, url, err := parseReleaseResponse([]byte("42"))
	require.NoError(t, err)
	require.Equal(t, 42, id)
	require.Empty(t, url)

	id, url, err = parseReleaseResponse([]byte(`{"ID": 7, "BuildURL": "https://build/7"}`))
	require.NoError(t, err)
	require.Equal(t, 7, id)
	require.Equal(t, "https://build/7", url)

	_, _, err = parseReleaseResponse([]byte("not a release"))
	require.Error(t, err)
}

func TestResolveProjectID_PrefixMatchesExistingReleaseBeforeSearch(t *testing.T) {
	fake := &fakeService{
		releases: []Release{{ProjectID: 9, ProjectName: "mypkg-extra", Branch: "v25"}},
	}
	id, err := ResolveProjectID(context.Background(), fake, "topic", "mypkg", "v25")
	require.NoError(t, err)
	require.Equal(t, 9, id)
	require.False(t, fake.searchedProjects)
}

func TestSubmitOrReplace_DeletesFuzzyMatchBeforeResubmitting(t *testing.T) {
	fake := &fakeService{
		releases: []Release{{ID: 5, ProjectName: "mypkg-old", Branch: "v25"}},
	}
	id, _, err := SubmitOrReplace(context.Background(), fake, ReleaseRequest{
		TopicID: "t", ProjectName: "mypkg", BranchID: "v25",
	})
	require.NoError(t, err)
	require.Equal(t, 99, id)
	require.Equal(t, []int{5}, fake.deleted)
}

type fakeService struct {
	releases         []Release
	searchedProjects bool
	deleted          []int
}

func (f *fakeService) CurrentUser(context.Context) (string, error) { return "", nil }
func (f *fakeService) SearchTopics(context.Context, string, string, string) ([]string, error) {
	return nil, nil
}
func (f *fakeService) ListTopicReleases(context.Context, string) ([]Release, error) {
	return f.releases, nil
}
func (f *fakeService) SearchProjects(context.Context, string, string) ([]Project, error) {
	f.searchedProjects = true
	return nil, nil
}
func (f *fakeService) SubmitRelease(context.Context, ReleaseRequest) (int, string, error) {
	return 99, "https://build/99", nil
}
func (f *fakeService) DeleteRelease(_ context.Context, id int) error {
	f.deleted = append(f.deleted, id)
	return nil
}
func (f *fakeService) RetryRelease(context.Context, int) error { return nil }
