// Package nrsr fetches and parses records from the parliament's public
// website. It knows nothing about persistence: it hands typed records
// to the sync service and that is all.
package nrsr

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"nrsr-backend/lib/telemetry"
	"nrsr-backend/lib/webcache"
)

const baseURL = "http://www.nrsr.sk/web/"

// ErrNotFound reports that the website served its error page instead
// of the requested record: a nonexistent id, term or session number.
var ErrNotFound = errors.New("record not found on source website")

type Client struct {
	rst   *resty.Client
	cache webcache.Cache
	// UseCache toggles the page cache, the parser self-check keeps it
	// on so checks never double-fetch.
	UseCache bool
}

func NewClient(cache webcache.Cache) *Client {
	rst := resty.New()
	rst.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(rst.GetClient().Transport)
	telemetry.InstrumentResty(rst, "internal/nrsr")

	return &Client{
		rst:      rst,
		cache:    cache,
		UseCache: true,
	}
}

// ClearCache drops all cached pages, called at the start of a run.
func (c *Client) ClearCache(ctx context.Context) error {
	return c.cache.Clear(ctx)
}

// download fetches a page, through the cache when enabled. `ext` makes
// POST requests with different form data cache under distinct keys.
func (c *Client) download(ctx context.Context, method, pageURL string, form map[string]string, ext string) (string, error) {
	key := webcache.Key(method, pageURL, ext)
	if c.UseCache {
		contents, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			return "", err
		}
		if ok {
			return contents, nil
		}
	}

	req := c.rst.R().SetContext(ctx)
	var res *resty.Response
	var err error
	switch method {
	case "GET":
		res, err = req.Get(pageURL)
	case "POST":
		res, err = req.SetFormData(form).Post(pageURL)
	default:
		return "", fmt.Errorf("unsupported method %q", method)
	}
	if err != nil {
		return "", err
	}
	if res.IsError() {
		return "", fmt.Errorf("source website returned status %d for %s", res.StatusCode(), pageURL)
	}

	contents := res.String()
	if c.UseCache {
		err = c.cache.Set(ctx, key, contents)
		if err != nil {
			return "", err
		}
	}
	return contents, nil
}

func (c *Client) getDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	contents, err := c.download(ctx, "GET", pageURL, nil, "")
	if err != nil {
		return nil, err
	}
	if strings.Contains(contents, "Unexpected error!") {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, pageURL)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(contents))
}

// postDocument re-submits a page's ASP.NET form with extra fields, the
// site requires this to select older terms and to page through grids.
func (c *Client) postDocument(ctx context.Context, pageURL string, doc *goquery.Document, fields map[string]string, ext string) (*goquery.Document, error) {
	form := map[string]string{}
	for _, hidden := range []string{"__VIEWSTATE", "__EVENTVALIDATION"} {
		value, ok := doc.Find(fmt.Sprintf("input#%s", hidden)).Attr("value")
		if !ok {
			return nil, fmt.Errorf("page %s is missing the %s field", pageURL, hidden)
		}
		form[hidden] = value
	}
	for k, v := range fields {
		form[k] = v
	}

	contents, err := c.download(ctx, "POST", pageURL, form, ext)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(contents))
}

func absoluteURL(href string) string {
	return baseURL + strings.TrimPrefix(href, "/web/")
}

func queryParam(href, name string) string {
	u, err := url.Parse(strings.ReplaceAll(href, "&amp;", "&"))
	if err != nil {
		return ""
	}
	return u.Query().Get(name)
}
