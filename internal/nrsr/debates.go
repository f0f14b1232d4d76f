package nrsr

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"nrsr-backend/lib/htmlutil"
	"nrsr-backend/lib/skdate"
)

// NewDebatesList parses the debate transcript search results of one
// term, restricted to parts spoken on `since` or later. `since` is an
// ISO date, an empty value lists the whole term. Results come ordered
// as the site lists them, oldest first.
func (c *Client) NewDebatesList(ctx context.Context, term, since string) ([]DebatePartRef, error) {
	if err := validTerm(term); err != nil {
		return nil, err
	}

	pageURL := baseURL + "default.aspx?sid=schodze/rozprava"
	doc, err := c.getDocument(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	fields := map[string]string{
		"_sectionLayoutContainer$ctl01$_termNr":       term,
		"_sectionLayoutContainer$ctl01$_search":       "Vyhľadať",
		"_sectionLayoutContainer$ctl01$_dateFrom$dateInput": "",
	}
	if since != "" {
		t, err := skdate.Parse(since)
		if err != nil {
			return nil, fmt.Errorf("invalid since date %q: %w", since, err)
		}
		fields["_sectionLayoutContainer$ctl01$_dateFrom$dateInput"] = t.Format("2.1.2006")
	}

	var parts []DebatePartRef
	ctl := "ctl00"
	for page := 1; ; page++ {
		doc, err = c.postDocument(ctx, pageURL, doc, withPager(fields,
			"_sectionLayoutContainer$ctl01$_resultGrid$ctl01$"+ctl, page,
		), fmt.Sprintf("|%s|%s|%d", term, since, page))
		if err != nil {
			return nil, err
		}

		doc.Find("table#_sectionLayoutContainer_ctl01__resultGrid tr").Each(func(_ int, tr *goquery.Selection) {
			if class, _ := tr.Attr("class"); class == "pager" || class == "tab_zoznam_header" {
				return
			}
			href, _ := tr.Find("td a").FilterFunction(func(_ int, a *goquery.Selection) bool {
				h, _ := a.Attr("href")
				return strings.Contains(h, "rozprava/vystupenie")
			}).First().Attr("href")
			id := queryParam(href, "id")
			if id == "" {
				return
			}
			date, err := skdate.ToISO(htmlutil.SelectionText(tr.Find("td:nth-child(1)")))
			if err != nil {
				return
			}
			parts = append(parts, DebatePartRef{
				ID:            id,
				Date:          date,
				SessionNumber: htmlutil.SelectionText(tr.Find("td:nth-child(2)")),
			})
		})

		next := doc.Find("table#_sectionLayoutContainer_ctl01__resultGrid tr:first-child span").
			First().NextFiltered("a")
		href, ok := next.Attr("href")
		if !ok || len(href) < 10 {
			break
		}
		ctl = href[len(href)-10 : len(href)-5]
	}

	// the site lists newest first, the segmentation engine wants
	// chronological order
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return parts, nil
}

func withPager(fields map[string]string, target string, page int) map[string]string {
	form := map[string]string{}
	for k, v := range fields {
		form[k] = v
	}
	if page > 1 {
		form["__EVENTTARGET"] = target
	}
	return form
}

// DebatePartText fetches one transcript segment and splits it into the
// paragraphs the segmentation engine consumes in order.
func (c *Client) DebatePartText(ctx context.Context, id string) (DebatePart, error) {
	pageURL := baseURL + "Default.aspx?sid=schodze/rozprava/vystupenie&id=" + id
	doc, err := c.getDocument(ctx, pageURL)
	if err != nil {
		return DebatePart{}, err
	}

	part := DebatePart{ID: id, URL: pageURL}
	doc.Find("div#_sectionLayoutContainer__panelContent span.daily_info_speech_text p").
		Each(func(_ int, p *goquery.Selection) {
			text := htmlutil.SelectionText(p)
			if text == "" {
				return
			}
			part.Paragraphs = append(part.Paragraphs, text)
		})
	if len(part.Paragraphs) == 0 {
		return DebatePart{}, fmt.Errorf("%w: debate part %s has no transcript text", ErrNotFound, id)
	}
	return part, nil
}
