// Package vpapi is the client for the parliament entity store, a REST
// API with mongo-style filter documents and per-resource CRUD. All
// mutation of scraped entities goes through this client; the scraper
// itself owns no persistent state besides its page cache.
package vpapi

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"

	"nrsr-backend/lib/telemetry"
)

// ApiError is a non-2xx response from the store, it always indicates a
// genuine fault: lookups that find nothing are not errors.
type ApiError struct {
	Status int
	Body   string
}

func (e *ApiError) Error() string {
	return fmt.Sprintf("entity store returned status %d: %s", e.Status, e.Body)
}

type ClientOptions struct {
	BaseURL  string
	Username string
	Password string
}

type Client struct {
	rst *resty.Client
}

func NewClient(opts ClientOptions) *Client {
	rst := resty.New().
		SetBaseURL(opts.BaseURL).
		SetHeader("Accept", "application/json")
	if opts.Username != "" {
		rst.SetBasicAuth(opts.Username, opts.Password)
	}
	telemetry.InstrumentResty(rst, "lib/vpapi")
	return &Client{rst: rst}
}

type itemsEnvelope struct {
	Items []json.RawMessage `json:"_items"`
	Links struct {
		Next *struct {
			Href string `json:"href"`
		} `json:"next"`
	} `json:"_links"`
}

type writeEnvelope struct {
	Status string `json:"_status"`
	ID     string `json:"id"`
	Issues any    `json:"_issues"`
}

func (c *Client) list(ctx context.Context, resource string, q Query, page int) (itemsEnvelope, error) {
	req := c.rst.R().SetContext(ctx)
	if doc := q.whereDoc(); doc != nil {
		where, err := json.Marshal(doc)
		if err != nil {
			return itemsEnvelope{}, err
		}
		req.SetQueryParam("where", string(where))
	}
	if spec := q.sortSpec(); spec != "" {
		req.SetQueryParam("sort", spec)
	}
	if page > 1 {
		req.SetQueryParam("page", fmt.Sprint(page))
	}

	res, err := req.Get(resource)
	if err != nil {
		return itemsEnvelope{}, err
	}
	if res.IsError() {
		return itemsEnvelope{}, &ApiError{Status: res.StatusCode(), Body: res.String()}
	}

	var envelope itemsEnvelope
	err = json.Unmarshal(res.Body(), &envelope)
	if err != nil {
		return itemsEnvelope{}, fmt.Errorf("failed to decode %s response: %w", resource, err)
	}
	return envelope, nil
}

// GetFirst finds the first record matching the query and decodes it
// into out. The boolean reports whether anything matched, a miss is
// not an error.
func (c *Client) GetFirst(ctx context.Context, resource string, q Query, out any) (bool, error) {
	envelope, err := c.list(ctx, resource, q, 1)
	if err != nil {
		return false, err
	}
	if len(envelope.Items) == 0 {
		return false, nil
	}
	if out != nil {
		err = json.Unmarshal(envelope.Items[0], out)
		if err != nil {
			return false, fmt.Errorf("failed to decode %s record: %w", resource, err)
		}
	}
	return true, nil
}

// GetAll reads every matching record across all result pages into out,
// which must be a pointer to a slice.
func (c *Client) GetAll(ctx context.Context, resource string, q Query, out any) error {
	var raw []json.RawMessage
	for page := 1; ; page++ {
		envelope, err := c.list(ctx, resource, q, page)
		if err != nil {
			return err
		}
		raw = append(raw, envelope.Items...)
		if envelope.Links.Next == nil {
			break
		}
	}

	combined, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(combined, out)
}

// Create inserts a record and returns its store-assigned id.
func (c *Client) Create(ctx context.Context, resource string, doc any) (string, error) {
	res, err := c.rst.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(doc).
		Post(resource)
	if err != nil {
		return "", err
	}
	if res.IsError() {
		return "", &ApiError{Status: res.StatusCode(), Body: res.String()}
	}

	var envelope writeEnvelope
	err = json.Unmarshal(res.Body(), &envelope)
	if err != nil {
		return "", fmt.Errorf("failed to decode create response: %w", err)
	}
	if envelope.Status != "OK" {
		return "", fmt.Errorf("create on %s rejected: %v", resource, envelope.Issues)
	}
	return envelope.ID, nil
}

// Replace overwrites a record by id with PUT semantics: properties
// missing from doc are removed. effectiveDate time-bounds the update
// for the store's versioning, it may be empty.
func (c *Client) Replace(ctx context.Context, resource, id string, doc any, effectiveDate string) error {
	req := c.rst.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(doc)
	if effectiveDate != "" {
		req.SetQueryParam("effective_date", effectiveDate)
	}
	res, err := req.Put(resource + "/" + id)
	if err != nil {
		return err
	}
	if res.IsError() {
		return &ApiError{Status: res.StatusCode(), Body: res.String()}
	}
	return nil
}

// Patch updates only the given fields of a record.
func (c *Client) Patch(ctx context.Context, resource, id string, partial map[string]any) error {
	res, err := c.rst.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(partial).
		Patch(resource + "/" + id)
	if err != nil {
		return err
	}
	if res.IsError() {
		return &ApiError{Status: res.StatusCode(), Body: res.String()}
	}
	return nil
}

// Delete removes a record by id. Deleting a vote-event cascades to its
// votes at the store, the compensation logic in the sync service
// relies on that.
func (c *Client) Delete(ctx context.Context, resource, id string) error {
	res, err := c.rst.R().
		SetContext(ctx).
		Delete(resource + "/" + id)
	if err != nil {
		return err
	}
	if res.IsError() {
		return &ApiError{Status: res.StatusCode(), Body: res.String()}
	}
	return nil
}
