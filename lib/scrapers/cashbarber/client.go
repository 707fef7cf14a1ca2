package cashbarber

import (
	"bytes"
	"cashsync/lib/restyutil"
	"cashsync/lib/telemetry"
	"context"
	"errors"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("cashsync/lib/scrapers/cashbarber")

var ErrLoginFailed = errors.New("failed to login to the cashbarber panel, check the credentials")

const (
	DefaultBaseUrl    = "https://painel.cashbarber.com.br"
	DefaultReportPath = "/relatorio/relatorio19"
	loginPath         = "/login"
)

type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client
}

type ClientOptions struct {
	BaseUrl string
	Timeout time.Duration
	// DisableCloudflareBypass leaves the default transport untouched.
	DisableCloudflareBypass bool
	// DumpOutput receives every raw HTTP exchange when set.
	DumpOutput restyutil.InstrumentOutput
}

func NewClient(opts ClientOptions) (*Client, error) {
	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Second * 30
	}

	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimSuffix(opts.BaseUrl, "/"))
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	if !opts.DisableCloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}

	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetTimeout(opts.Timeout)

	telemetry.InstrumentResty(client, "cashsync/lib/scrapers/cashbarber/http")
	restyutil.InstrumentClient(client, opts.DumpOutput)

	return &Client{
		BaseUrl: baseUrl,
		Http:    client,
	}, nil
}

// get fetches a page and parses it, returning the path the request ended
// up on after redirects.
func (c *Client) get(ctx context.Context, path string) (*goquery.Document, string, error) {
	res, err := c.Http.R().
		SetContext(ctx).
		Get(path)
	if err != nil {
		return nil, "", err
	}
	return parseResponse(res)
}

func parseResponse(res *resty.Response) (*goquery.Document, string, error) {
	if res.IsError() {
		return nil, "", fmt.Errorf("%s %s: unexpected status %s", res.Request.Method, res.Request.URL, res.Status())
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return nil, "", err
	}
	finalPath := ""
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		finalPath = res.RawResponse.Request.URL.Path
	}
	return doc, finalPath, nil
}

func onLoginPage(path string) bool {
	return path == loginPath || strings.HasPrefix(path, loginPath+"/")
}

// Login signs into the panel with the login form. The session is kept in the
// client's cookie jar.
func (c *Client) Login(ctx context.Context, email, password string) error {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	doc, _, err := c.get(ctx, loginPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch login page")
		return err
	}

	form := map[string]string{
		"email":    email,
		"password": password,
	}
	token := doc.Find("input[name=_token]").AttrOr("value", "")
	if token != "" {
		form["_token"] = token
	}

	res, err := c.Http.R().
		SetContext(ctx).
		SetFormData(form).
		Post(loginPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to make login request")
		return err
	}
	_, finalPath, err := parseResponse(res)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read login response")
		return err
	}

	if onLoginPage(finalPath) {
		span.SetStatus(codes.Error, ErrLoginFailed.Error())
		return ErrLoginFailed
	}
	return nil
}

// FetchReport loads a report page. Landing back on the login page means the
// session is gone.
func (c *Client) FetchReport(ctx context.Context, path string) (*goquery.Document, error) {
	ctx, span := tracer.Start(ctx, "client:FetchReport")
	defer span.End()

	if path == "" {
		path = DefaultReportPath
	}
	doc, finalPath, err := c.get(ctx, path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch report")
		return nil, err
	}
	if onLoginPage(finalPath) {
		span.SetStatus(codes.Error, "redirected to login")
		return nil, ErrLoginFailed
	}
	return doc, nil
}
