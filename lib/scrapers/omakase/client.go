package omakase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"omakase-monitor/lib/jitter"
	"omakase-monitor/lib/retry"
	"omakase-monitor/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("scrapers/omakase")

var (
	ErrAuthTokenMissing = errors.New("could not find anti-forgery token on sign-in page")
	ErrLoginRejected    = errors.New("login rejected, landed back on sign-in page")
	ErrSessionExpired   = errors.New("session expired")
)

// Client owns the HTTP session against omakase.in: the cookie jar, the
// authentication state and the durable cookie file. Nothing else may
// touch the jar. A Client is built for a single sequential monitoring
// run and is not safe for concurrent use.
type Client struct {
	baseURL       *url.URL
	http          *resty.Client
	cookies       cookieStore
	retry         retry.Policy
	authenticated bool

	// delay before submitting credentials, zeroed in tests
	loginDelayMin time.Duration
	loginDelayMax time.Duration
}

type ClientOptions struct {
	// defaults to the production BaseURL
	BaseURL string
	// path of the durable cookie file, empty disables persistence
	CookiesFile string
	// zero value falls back to retry.DefaultPolicy
	Retry retry.Policy
}

func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	base := opts.BaseURL
	if base == "" {
		base = BaseURL
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(base)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetHeader("accept-language", "ja,en-US;q=0.9,en;q=0.8")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseURL.Hostname()))
	client.SetTimeout(time.Second * 30)

	telemetry.InstrumentResty(client, "scrapers/omakase/http")

	policy := opts.Retry
	if policy.MaxRetries == 0 {
		policy = retry.DefaultPolicy
	}

	c := &Client{
		baseURL:       baseURL,
		http:          client,
		cookies:       cookieStore{path: opts.CookiesFile},
		retry:         policy,
		loginDelayMin: time.Second,
		loginDelayMax: 2 * time.Second,
	}
	c.restoreSession(ctx)
	return c, nil
}

// restoreSession loads the persisted cookie jar, best effort. A restored
// jar counts as logged in until the upstream proves otherwise with a 401.
func (c *Client) restoreSession(ctx context.Context) {
	saved := c.cookies.load()
	if len(saved) == 0 {
		return
	}
	cookies := make([]*http.Cookie, 0, len(saved))
	for name, value := range saved {
		cookies = append(cookies, &http.Cookie{Name: name, Value: value, Path: "/"})
	}
	c.http.GetClient().Jar.SetCookies(c.baseURL, cookies)
	c.authenticated = true
	slog.InfoContext(ctx, "restored session cookies", "count", len(cookies))
}

func (c *Client) Authenticated() bool {
	return c.authenticated
}

// Login authenticates against the sign-in form. When a restored session
// already exists it returns immediately without any network round trip.
// Transport failures are retried with backoff, a missing anti-forgery
// token or rejected credentials are not.
func (c *Client) Login(ctx context.Context, email, password string) error {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	if c.authenticated {
		slog.InfoContext(ctx, "reusing saved session")
		return nil
	}

	err := retry.Retry(ctx, c.retry, "login", func() error {
		return c.loginOnce(ctx, email, password)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		slog.ErrorContext(ctx, "login failed", "email", email, "err", err)
		return err
	}

	c.authenticated = true
	c.cookies.save(c.http.GetClient().Jar.Cookies(c.baseURL))
	slog.InfoContext(ctx, "login successful", "email", email)
	return nil
}

func (c *Client) loginOnce(ctx context.Context, email, password string) error {
	res, err := c.http.R().
		SetContext(ctx).
		Get(signInPath)
	if err != nil {
		return err
	}
	if res.IsError() {
		return fmt.Errorf("sign-in page returned %s", res.Status())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return err
	}
	token := extractAuthToken(doc)
	if token == "" {
		return retry.Permanent(ErrAuthTokenMissing)
	}

	// submitting the form instantly after the page load is a bot tell
	jitter.Sleep(ctx, c.loginDelayMin, c.loginDelayMax)

	res, err = c.http.R().
		SetContext(ctx).
		SetHeader("referer", strings.TrimSuffix(c.baseURL.String(), "/")+signInPath).
		SetFormData(map[string]string{
			"authenticity_token": token,
			"user[email]":        email,
			"user[password]":     password,
			"user[remember_me]":  "1",
			"commit":             "ログイン",
		}).
		Post(signInPath)
	if err != nil {
		return err
	}
	if res.IsError() {
		return fmt.Errorf("login submit returned %s", res.Status())
	}

	// a successful login redirects away, landing back on the sign-in
	// page means the credentials were rejected
	if strings.Contains(res.RawResponse.Request.URL.Path, signInPath) {
		return retry.Permanent(ErrLoginRejected)
	}
	return nil
}

func extractAuthToken(doc *goquery.Document) string {
	token := doc.Find(`meta[name="csrf-token"]`).AttrOr("content", "")
	if token != "" {
		return token
	}
	return doc.Find(`input[name="authenticity_token"]`).AttrOr("value", "")
}

// FetchSlots returns the canonical slot list for one restaurant. It still
// works without a session since the endpoint may serve public data, but a
// 401 flips the client back to unauthenticated so the next Login call
// does a real round trip instead of short-circuiting.
func (c *Client) FetchSlots(ctx context.Context, slug string) ([]TimeSlot, error) {
	ctx, span := tracer.Start(ctx, "client:FetchSlots")
	defer span.End()
	span.SetAttributes(attribute.String("restaurant", slug))

	if !c.authenticated {
		slog.WarnContext(ctx, "fetching slots without a session, results may be incomplete", "restaurant", slug)
	}

	slots, err := retry.Do(ctx, c.retry, "fetch slots", func() ([]TimeSlot, error) {
		res, err := c.http.R().
			SetContext(ctx).
			SetHeader("accept", "application/json").
			Get(fmt.Sprintf(stockPathFmt, slug))
		if err != nil {
			return nil, err
		}
		if res.StatusCode() == http.StatusUnauthorized {
			c.authenticated = false
			return nil, retry.Permanent(fmt.Errorf("%w: %s", ErrSessionExpired, slug))
		}
		if res.IsError() {
			return nil, fmt.Errorf("slot endpoint returned %s", res.Status())
		}
		// a body that fails to parse degrades to zero slots on purpose
		return ParseSlots(res.Body()), nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch slots")
		return nil, err
	}

	slog.InfoContext(ctx, "fetched slots", "restaurant", slug, "count", len(slots))
	return slots, nil
}
