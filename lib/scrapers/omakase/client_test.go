package omakase

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"omakase-monitor/lib/retry"
	"omakase-monitor/lib/telemetry"

	"github.com/stretchr/testify/require"
)

const testToken = "token-123"
const testEmail = "user@example.com"
const testPassword = "hunter2"

// fakeUpstream mimics the sign-in flow and the slot endpoint.
type fakeUpstream struct {
	mu sync.Mutex

	tokenInInput  bool
	omitToken     bool
	failPageTimes int

	slotsStatus int
	slotsBody   string

	loginPageHits int
	loginPosts    int
	slotHits      int
}

func (f *fakeUpstream) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /users/sign_in", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.loginPageHits++
		mustFail := f.failPageTimes > 0
		if mustFail {
			f.failPageTimes--
		}
		f.mu.Unlock()

		if mustFail {
			http.Error(w, "upstream hiccup", http.StatusInternalServerError)
			return
		}
		f.writeLoginPage(w)
	})

	mux.HandleFunc("POST /users/sign_in", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.loginPosts++
		f.mu.Unlock()

		err := r.ParseForm()
		if err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		if r.PostFormValue("authenticity_token") != testToken ||
			r.PostFormValue("user[email]") != testEmail ||
			r.PostFormValue("user[password]") != testPassword {
			// rejected credentials re-render the sign-in page in place
			f.writeLoginPage(w)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "_omakase_session", Value: "session-abc", Path: "/"})
		http.Redirect(w, r, "/", http.StatusFound)
	})

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>home</body></html>")
	})

	mux.HandleFunc("GET /api/v1/omakase/r/{slug}/online_stock_groups", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.slotHits++
		status, body := f.slotsStatus, f.slotsBody
		f.mu.Unlock()

		if status == 0 {
			status = http.StatusOK
		}
		w.Header().Set("content-type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	})

	return mux
}

func (f *fakeUpstream) writeLoginPage(w http.ResponseWriter) {
	token := ""
	if !f.omitToken {
		if f.tokenInInput {
			token = fmt.Sprintf(`<input type="hidden" name="authenticity_token" value="%s">`, testToken)
		} else {
			token = fmt.Sprintf(`<meta name="csrf-token" content="%s">`, testToken)
		}
	}
	fmt.Fprintf(w, `<html><head>%s</head><body><form action="/users/sign_in"></form></body></html>`, token)
}

func (f *fakeUpstream) counts() (pages, posts, slots int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginPageHits, f.loginPosts, f.slotHits
}

func newTestClient(t *testing.T, upstream *fakeUpstream) (*Client, string) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/omakase")
	t.Cleanup(cleanup)

	server := httptest.NewServer(upstream.handler())
	t.Cleanup(server.Close)

	cookiesFile := filepath.Join(t.TempDir(), "cookies.json")
	client, err := NewClient(context.Background(), ClientOptions{
		BaseURL:     server.URL,
		CookiesFile: cookiesFile,
		Retry:       retry.Policy{MaxRetries: 3, Factor: 2.0, Unit: time.Millisecond},
	})
	require.NoError(t, err)

	// the anti-detection delay only slows tests down
	client.loginDelayMin = 0
	client.loginDelayMax = 0

	return client, cookiesFile
}

func TestLoginSuccess(t *testing.T) {
	upstream := &fakeUpstream{}
	client, cookiesFile := newTestClient(t, upstream)

	require.False(t, client.Authenticated())
	err := client.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	require.True(t, client.Authenticated())

	contents, err := os.ReadFile(cookiesFile)
	require.NoError(t, err)
	require.Contains(t, string(contents), "_omakase_session")

	// second login short-circuits, zero additional requests
	pages, posts, _ := upstream.counts()
	err = client.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	pagesAfter, postsAfter, _ := upstream.counts()
	require.Equal(t, pages, pagesAfter)
	require.Equal(t, posts, postsAfter)
}

func TestLoginTokenFromHiddenInput(t *testing.T) {
	upstream := &fakeUpstream{tokenInInput: true}
	client, _ := newTestClient(t, upstream)

	err := client.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	require.True(t, client.Authenticated())
}

func TestLoginMissingTokenNotRetried(t *testing.T) {
	upstream := &fakeUpstream{omitToken: true}
	client, _ := newTestClient(t, upstream)

	err := client.Login(context.Background(), testEmail, testPassword)
	require.ErrorIs(t, err, ErrAuthTokenMissing)
	require.False(t, client.Authenticated())

	pages, posts, _ := upstream.counts()
	require.Equal(t, 1, pages)
	require.Zero(t, posts)
}

func TestLoginRejectedCredentials(t *testing.T) {
	upstream := &fakeUpstream{}
	client, cookiesFile := newTestClient(t, upstream)

	err := client.Login(context.Background(), testEmail, "wrong")
	require.ErrorIs(t, err, ErrLoginRejected)
	require.False(t, client.Authenticated())
	require.NoFileExists(t, cookiesFile)

	_, posts, _ := upstream.counts()
	require.Equal(t, 1, posts)
}

func TestLoginRetriesTransientFailures(t *testing.T) {
	upstream := &fakeUpstream{failPageTimes: 2}
	client, _ := newTestClient(t, upstream)

	err := client.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	require.True(t, client.Authenticated())

	pages, _, _ := upstream.counts()
	require.Equal(t, 3, pages)
}

func TestSessionRestoredFromCookieFile(t *testing.T) {
	upstream := &fakeUpstream{}
	client, cookiesFile := newTestClient(t, upstream)

	err := client.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)

	server := httptest.NewServer(upstream.handler())
	defer server.Close()
	restored, err := NewClient(context.Background(), ClientOptions{
		BaseURL:     server.URL,
		CookiesFile: cookiesFile,
	})
	require.NoError(t, err)
	require.True(t, restored.Authenticated())

	// restored sessions skip the network entirely on login
	pages, posts, _ := upstream.counts()
	err = restored.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	pagesAfter, postsAfter, _ := upstream.counts()
	require.Equal(t, pages, pagesAfter)
	require.Equal(t, posts, postsAfter)
}

func TestCorruptCookieFileMeansNoSession(t *testing.T) {
	upstream := &fakeUpstream{}
	client, cookiesFile := newTestClient(t, upstream)

	require.NoError(t, os.WriteFile(cookiesFile, []byte("{{{garbage"), 0600))
	restored, err := NewClient(context.Background(), ClientOptions{
		BaseURL:     client.baseURL.String(),
		CookiesFile: cookiesFile,
	})
	require.NoError(t, err)
	require.False(t, restored.Authenticated())
}

func TestFetchSlots(t *testing.T) {
	upstream := &fakeUpstream{
		slotsBody: `{"2026-02-15": [{"time": "19:00", "price": 15000}]}`,
	}
	client, _ := newTestClient(t, upstream)

	slots, err := client.FetchSlots(context.Background(), "bu286225")
	require.NoError(t, err)
	require.Equal(t, []TimeSlot{{Date: "2026-02-15", Time: "19:00", Price: 15000}}, slots)
}

func TestFetchSlotsMalformedBodyDegradesToEmpty(t *testing.T) {
	upstream := &fakeUpstream{slotsBody: "<html>definitely not json</html>"}
	client, _ := newTestClient(t, upstream)

	slots, err := client.FetchSlots(context.Background(), "bu286225")
	require.NoError(t, err)
	require.Empty(t, slots)
}

func TestFetchSlotsUnauthorizedExpiresSession(t *testing.T) {
	upstream := &fakeUpstream{slotsStatus: http.StatusUnauthorized, slotsBody: `{}`}
	client, _ := newTestClient(t, upstream)

	err := client.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	require.True(t, client.Authenticated())

	_, err = client.FetchSlots(context.Background(), "bu286225")
	require.ErrorIs(t, err, ErrSessionExpired)
	require.False(t, client.Authenticated())

	// the 401 is not retried
	_, _, slotHits := upstream.counts()
	require.Equal(t, 1, slotHits)

	// and the next login does a real round trip instead of
	// short-circuiting on the dead session
	pages, _, _ := upstream.counts()
	err = client.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	pagesAfter, _, _ := upstream.counts()
	require.Equal(t, pages+1, pagesAfter)
}

func TestFetchSlotsServerErrorPropagatesAfterRetries(t *testing.T) {
	upstream := &fakeUpstream{slotsStatus: http.StatusBadGateway, slotsBody: "oops"}
	client, _ := newTestClient(t, upstream)

	_, err := client.FetchSlots(context.Background(), "bu286225")
	require.Error(t, err)

	_, _, slotHits := upstream.counts()
	require.Equal(t, 3, slotHits)
}
