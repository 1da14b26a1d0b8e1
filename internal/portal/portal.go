// Package portal signs in to the student extranet and fetches the grades page.
package portal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"gradewatch/internal/assert"
	"gradewatch/internal/extract"
	"gradewatch/internal/htmlsource"
	"gradewatch/internal/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/net/publicsuffix"
)

var tracer = otel.Tracer("portal")

var (
	ErrLoginFailed     = errors.New("portal: login failed, check the credentials")
	ErrGradesNotFound  = errors.New("portal: could not find the grades button")
	ErrMissingUsername = errors.New("portal: login required but no credentials configured")
)

const (
	DefaultBaseURL      = "https://extranet.insa-strasbourg.fr/"
	DefaultGradesButton = "1er semestre"
)

var defaultLoginHosts = []string{"cas.insa-strasbourg.fr"}

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

const loginFormSelector = "form:has(input[type=password])"

type Options struct {
	BaseURL  string
	Username string
	Password string
	// GradesButton is matched against the value of the submit button that
	// opens the grades page, as a substring.
	GradesButton string
	// LoginHosts are the hosts redirects may lead to besides the portal's own.
	LoginHosts []string
	Timeout    time.Duration
}

type Client struct {
	http    *resty.Client
	baseURL string
	opts    Options
	tel     telemetry.API
}

func NewClient(opts Options, tel telemetry.API) (Client, error) {
	assert.NotNil(tel, "tel")

	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.GradesButton == "" {
		opts.GradesButton = DefaultGradesButton
	}
	if opts.LoginHosts == nil {
		opts.LoginHosts = defaultLoginHosts
	}
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}

	baseURL, err := url.Parse(opts.BaseURL)
	if err != nil {
		return Client{}, fmt.Errorf("parse base url: %w", err)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return Client{}, err
	}

	tel = telemetry.NewScopedAPI("portal", tel)

	client := resty.New()
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", userAgent)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(
		append([]string{baseURL.Hostname()}, opts.LoginHosts...)...,
	))
	client.SetTimeout(opts.Timeout)
	telemetry.InstrumentResty(client, tel)

	return Client{
		http:    client,
		baseURL: baseURL.String(),
		opts:    opts,
		tel:     tel,
	}, nil
}

type page struct {
	url *url.URL
	doc *goquery.Document
}

func (c Client) load(ctx context.Context, req *resty.Request, method, target string) (page, error) {
	res, err := req.SetContext(ctx).Execute(method, target)
	if err != nil {
		return page{}, err
	}
	if res.IsError() {
		return page{}, fmt.Errorf("%s %s: %s", method, target, res.Status())
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return page{}, fmt.Errorf("parse %s: %w", target, err)
	}

	final, _ := url.Parse(target)
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		final = res.RawResponse.Request.URL
	}
	return page{url: final, doc: doc}, nil
}

// Fetch signs in if the session expired and returns the grades page.
func (c Client) Fetch(ctx context.Context) (extract.Document, error) {
	ctx, span := tracer.Start(ctx, "portal:Fetch")
	defer span.End()

	fail := func(err error, msg string) (extract.Document, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		return nil, err
	}

	home, err := c.load(ctx, c.http.R(), resty.MethodGet, c.baseURL)
	if err != nil {
		return fail(fmt.Errorf("open portal: %w", err), "failed to open portal")
	}

	if loginForm(home) != nil {
		span.AddEvent("login")
		home, err = c.login(ctx, home)
		if err != nil {
			return fail(err, "failed to login")
		}
	}

	button := home.doc.Find(fmt.Sprintf("input[value*=%q]", c.opts.GradesButton)).First()
	if button.Length() == 0 {
		return fail(ErrGradesNotFound, "failed to find grades button")
	}
	form := button.Closest("form")
	if form.Length() == 0 {
		return fail(fmt.Errorf("%w: button is outside of a form", ErrGradesNotFound), "failed to find grades form")
	}

	values := formValues(form)
	if name, ok := button.Attr("name"); ok && name != "" {
		values.Set(name, button.AttrOr("value", ""))
	}
	result, err := c.submit(ctx, home, form, values)
	if err != nil {
		return fail(fmt.Errorf("open grades page: %w", err), "failed to open grades page")
	}

	tables := result.doc.Find("table").Length()
	span.SetAttributes(attribute.Int("tables", tables))
	c.tel.ReportDebug("fetched grades page", result.url.String(), "tables", tables)

	return htmlsource.FromGoquery(result.doc), nil
}

func loginForm(p page) *goquery.Selection {
	form := p.doc.Find(loginFormSelector).First()
	if form.Length() == 0 {
		return nil
	}
	return form
}

func (c Client) login(ctx context.Context, p page) (page, error) {
	if c.opts.Username == "" {
		return page{}, ErrMissingUsername
	}

	form := loginForm(p)
	values := formValues(form)

	userField := form.Find("input#username, input[name=username]").First().AttrOr("name", "username")
	passField := form.Find("input[type=password]").First().AttrOr("name", "password")
	values.Set(userField, c.opts.Username)
	values.Set(passField, c.opts.Password)
	if !values.Has("_eventId") {
		values.Set("_eventId", "submit")
	}

	result, err := c.submit(ctx, p, form, values)
	if err != nil {
		return page{}, fmt.Errorf("submit login form: %w", err)
	}
	if loginForm(result) != nil {
		return page{}, ErrLoginFailed
	}
	return result, nil
}

func (c Client) submit(ctx context.Context, p page, form *goquery.Selection, values url.Values) (page, error) {
	action, err := p.url.Parse(form.AttrOr("action", ""))
	if err != nil {
		return page{}, fmt.Errorf("parse form action: %w", err)
	}

	if strings.EqualFold(form.AttrOr("method", "get"), "post") {
		return c.load(ctx, c.http.R().SetFormDataFromValues(values), resty.MethodPost, action.String())
	}
	action.RawQuery = values.Encode()
	return c.load(ctx, c.http.R(), resty.MethodGet, action.String())
}

// formValues collects what a browser would submit for form, without any
// submit button.
func formValues(form *goquery.Selection) url.Values {
	values := url.Values{}
	form.Find("input[name]").Each(func(_ int, input *goquery.Selection) {
		name := input.AttrOr("name", "")
		switch strings.ToLower(input.AttrOr("type", "text")) {
		case "submit", "button", "image", "reset", "file":
			return
		case "checkbox", "radio":
			if _, checked := input.Attr("checked"); !checked {
				return
			}
			values.Add(name, input.AttrOr("value", "on"))
			return
		}
		values.Add(name, input.AttrOr("value", ""))
	})
	form.Find("select[name]").Each(func(_ int, sel *goquery.Selection) {
		option := sel.Find("option[selected]").First()
		if option.Length() == 0 {
			option = sel.Find("option").First()
		}
		if option.Length() == 0 {
			return
		}
		values.Add(sel.AttrOr("name", ""), option.AttrOr("value", strings.TrimSpace(option.Text())))
	})
	return values
}
