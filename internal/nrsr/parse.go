package nrsr

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"nrsr-backend/lib/htmlutil"
)

// CurrentTerm reads the term of office currently selected on the MP
// list page.
func (c *Client) CurrentTerm(ctx context.Context) (string, error) {
	doc, err := c.getDocument(ctx, baseURL+"default.aspx?sid=poslanci")
	if err != nil {
		return "", err
	}
	term, ok := doc.Find("select#_sectionLayoutContainer_ctl01__currentTerm option[selected]").Attr("value")
	if !ok {
		return "", fmt.Errorf("%w: current term selector missing", ErrNotFound)
	}
	return term, nil
}

func validTerm(term string) error {
	if _, ok := Terms[term]; !ok {
		return fmt.Errorf("unknown term %q", term)
	}
	return nil
}

// MPList parses the list of MPs of one term.
func (c *Client) MPList(ctx context.Context, term string) ([]MPRef, error) {
	if err := validTerm(term); err != nil {
		return nil, err
	}

	pageURL := baseURL + "Default.aspx?sid=poslanci/zoznam_abc&ListType=0&CisObdobia=" + term
	doc, err := c.getDocument(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	var mps []MPRef
	doc.Find("div.mps_list li a").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		id := queryParam(href, "PoslanecID")
		if id == "" {
			return
		}
		mps = append(mps, MPRef{
			ID:   id,
			Name: htmlutil.SelectionText(a),
		})
	})
	return mps, nil
}

// MP parses one MP's profile page.
func (c *Client) MP(ctx context.Context, id, term string) (MPProfile, error) {
	if err := validTerm(term); err != nil {
		return MPProfile{}, err
	}

	pageURL := MPURL(id, term)
	doc, err := c.getDocument(ctx, pageURL)
	if err != nil {
		return MPProfile{}, err
	}

	fields := map[string]string{}
	doc.Find("div.mp_personal_data div:has(strong)").Each(func(_ int, div *goquery.Selection) {
		label := strings.ToLower(htmlutil.SelectionText(div.Find("strong").First()))
		fields[label] = htmlutil.SelectionText(div.Find("span").First())
	})

	profile := MPProfile{
		ID:          id,
		URL:         pageURL,
		GivenName:   fields["meno"],
		FamilyName:  fields["priezvisko"],
		Title:       fields["titul"],
		Born:        fields["narodený(á)"],
		Email:       fields["e-mail"],
		Nationality: fields["národnosť"],
		Residence:   fields["bydlisko"],
		Region:      fields["kraj"],
		Website:     fields["www"],
	}
	if profile.GivenName == "" || profile.FamilyName == "" {
		return MPProfile{}, fmt.Errorf("MP %s (term %s): profile page is missing name fields", id, term)
	}

	profile.Photo, _ = doc.Find("div.mp_foto img").Attr("src")

	membershipRe := regexp.MustCompile(`(.*?)\s*\((.*?)\)`)
	doc.Find("span#_sectionLayoutContainer_ctl01_ctlClenstvoLabel").
		Parent().Next().Find("li").
		Each(func(_ int, li *goquery.Selection) {
			m := membershipRe.FindStringSubmatch(htmlutil.SelectionText(li))
			if m == nil {
				return
			}
			profile.Memberships = append(profile.Memberships, MembershipNote{
				Group: m[1],
				Role:  m[2],
			})
		})

	return profile, nil
}

type groupListLayout struct {
	url           string
	termParamName string
}

var groupListLayouts = map[string]groupListLayout{
	"committee": {
		url:           baseURL + "default.aspx?SectionId=77",
		termParamName: "_sectionLayoutContainer$ctl02$_currentTerm",
	},
	"caucus": {
		url:           baseURL + "default.aspx?SectionId=69",
		termParamName: "_sectionLayoutContainer$ctl02$_currentTerm",
	},
	"delegation": {
		url:           baseURL + "default.aspx?sid=eu/delegacie/zoznam",
		termParamName: "_sectionLayoutContainer$ctl01$_currentTerm",
	},
	"friendship group": {
		url:           baseURL + "default.aspx?sid=eu/sp/zoznam",
		termParamName: "_sectionLayoutContainer$ctl01$_currentTerm",
	},
}

// GroupList parses the list of groups of one type (committee, caucus,
// delegation, friendship group) in one term.
func (c *Client) GroupList(ctx context.Context, groupType, term string) ([]GroupRef, error) {
	layout, ok := groupListLayouts[groupType]
	if !ok {
		return nil, fmt.Errorf("unknown type of group %q", groupType)
	}
	if err := validTerm(term); err != nil {
		return nil, err
	}

	doc, err := c.getDocument(ctx, layout.url)
	if err != nil {
		return nil, err
	}
	// older terms need a POST emulating the term selectbox
	doc, err = c.postDocument(ctx, layout.url, doc, map[string]string{
		layout.termParamName: term,
	}, "|"+term)
	if err != nil {
		return nil, err
	}

	var groups []GroupRef
	doc.Find("ul.longlist li").Each(func(_ int, li *goquery.Selection) {
		a := li.Find("a").First()
		href, _ := a.Attr("href")
		id := queryParam(href, "ID")
		if id == "" {
			id = queryParam(href, "SkupinaId")
		}
		if id == "" {
			return
		}
		group := GroupRef{
			ID:   id,
			Name: htmlutil.SelectionText(a),
		}

		line := htmlutil.SelectionText(li)
		info := regexp.MustCompile(
			regexp.QuoteMeta(group.Name) + `\s*(\((.+?) - (.+?)\))?\s*(\S.*)?$`,
		).FindStringSubmatch(line)
		if info != nil {
			group.From = info[2]
			group.To = info[3]
			group.Note = info[4]
		}
		groups = append(groups, group)
	})
	return groups, nil
}

type groupLayout struct {
	url          string
	membersTable string
	nameSel      string
}

var groupLayouts = map[string]groupLayout{
	"committee": {
		url:          baseURL + "Default.aspx?sid=vybory/vybor&ID=",
		membersTable: "table.tab_zoznam tr",
		nameSel:      "td:nth-child(1) a strong",
	},
	"caucus": {
		url:          baseURL + "Default.aspx?sid=poslanci/kluby/klub&ID=",
		membersTable: "table.tab_zoznam tr",
		nameSel:      "td:nth-child(1) a strong",
	},
	"delegation": {
		url:          baseURL + "Default.aspx?sid=eu/delegacie/delegacia&ID=",
		membersTable: "table.tab_details tr",
		nameSel:      "td:nth-child(1) strong a",
	},
	"friendship group": {
		url:          baseURL + "Default.aspx?sid=eu/sp/sp&SkupinaId=",
		membersTable: "table.tab_details tr",
		nameSel:      "td:nth-child(1) strong a",
	},
}

// Group parses a group's profile page. The site renders the current
// term (contact info plus member cards) differently from older terms
// (a member table with roles and durations).
func (c *Client) Group(ctx context.Context, groupType, id string) (GroupProfile, error) {
	layout, ok := groupLayouts[groupType]
	if !ok {
		return GroupProfile{}, fmt.Errorf("unknown type of group %q", groupType)
	}

	pageURL := layout.url + id
	contents, err := c.download(ctx, "GET", pageURL, nil, "")
	if err != nil {
		return GroupProfile{}, err
	}
	if strings.Contains(contents, "Unexpected error!") {
		return GroupProfile{}, fmt.Errorf("%w: %s group %s", ErrNotFound, groupType, id)
	}
	// one committee (id=119) renders its member cards under a
	// different class
	contents = strings.ReplaceAll(contents, "member_vez", "member")

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(contents))
	if err != nil {
		return GroupProfile{}, err
	}

	profile := GroupProfile{
		ID:   id,
		URL:  pageURL,
		Name: htmlutil.SelectionText(doc.Find("h1").First()),
	}
	if subtitle := htmlutil.SelectionText(doc.Find("h2 span").First()); subtitle != "" && subtitle != "Zoznam členov" {
		profile.Subtitle = subtitle
	}

	if strings.Contains(contents, "Zoznam členov") {
		parseCurrentTermGroup(doc, groupType, &profile)
	} else {
		parseOlderTermGroup(doc, groupType, layout, &profile)
	}
	return profile, nil
}

func parseCurrentTermGroup(doc *goquery.Document, groupType string, profile *GroupProfile) {
	doc.Find("table.tab_details tr").Each(func(_ int, tr *goquery.Selection) {
		label := htmlutil.SelectionText(tr.Find("td:nth-child(1) span").First())
		if label == "" {
			return
		}
		label = strings.ToLower(strings.TrimRight(label, ".:"))
		profile.Contacts = append(profile.Contacts, Contact{
			Type:  label,
			Value: htmlutil.SelectionText(tr.Find("td:nth-child(2) span").First()),
		})
	})
	profile.DocumentsURL, _ = doc.
		Find("a#_sectionLayoutContainer_ctl01__otherDocumentsLink").
		Attr("href")

	doc.Find("div.member").Each(func(_ int, div *goquery.Selection) {
		href, _ := div.Find("a").First().Attr("href")
		member := GroupMember{
			ID:   queryParam(href, "PoslanecID"),
			Name: htmlutil.SelectionText(div.Find("a strong").First()),
			Periods: []MembershipPeriod{
				{Role: strings.ToLower(htmlutil.SelectionText(div.Find("span").First()))},
			},
		}
		if groupType != "caucus" {
			caucus := htmlutil.SelectionText(div.Find("em").First())
			caucus = strings.Trim(caucus, "()")
			switch {
			case caucus == "-" || caucus == "nie je členom poslaneckého klubu":
				caucus = ""
			case !strings.HasPrefix(caucus, "Klub "):
				caucus = "Klub " + caucus
			}
			member.Caucus = caucus
		}
		profile.Members = append(profile.Members, member)
	})
}

var periodRe = regexp.MustCompile(`(?s)([^\(]*)\((.+?) - (.+?)\)`)

func parseOlderTermGroup(doc *goquery.Document, groupType string, layout groupLayout, profile *GroupProfile) {
	doc.Find(layout.membersTable).Each(func(i int, tr *goquery.Selection) {
		// the first two rows of committee and caucus tables are headers
		if (groupType == "caucus" || groupType == "committee") && i < 2 {
			return
		}
		href, _ := tr.Find("td:nth-child(1) a").First().Attr("href")
		id := queryParam(href, "PoslanecID")
		if id == "" {
			return
		}
		member := GroupMember{
			ID:   id,
			Name: htmlutil.SelectionText(tr.Find(layout.nameSel).First()),
		}
		for _, period := range strings.Split(htmlutil.SelectionText(tr.Find("td:nth-child(2)").First()), ", ") {
			m := periodRe.FindStringSubmatch(period)
			if m == nil {
				continue
			}
			member.Periods = append(member.Periods, MembershipPeriod{
				Role: strings.TrimSpace(m[1]),
				From: m[2],
				To:   m[3],
			})
		}
		profile.Members = append(profile.Members, member)
	})
}

var parenRe = regexp.MustCompile(`(\S.*?)\s*\((.*?)\)`)

// ChangeList parses the full list of chamber membership changes of one
// term, walking all pages of the grid.
func (c *Client) ChangeList(ctx context.Context, term string) (ChangeList, error) {
	if err := validTerm(term); err != nil {
		return ChangeList{}, err
	}

	pageURL := baseURL + "default.aspx?sid=poslanci/zmeny"
	doc, err := c.getDocument(ctx, pageURL)
	if err != nil {
		return ChangeList{}, err
	}

	result := ChangeList{URL: pageURL}
	ctl := "ctl00"
	for page := 1; ; page++ {
		// each grid page needs a POST emulating the pager click
		doc, err = c.postDocument(ctx, pageURL, doc, map[string]string{
			"__EVENTTARGET": "_sectionLayoutContainer$ctl01$_ResultGrid$ctl01$" + ctl,
			"_sectionLayoutContainer$ctl01$_currentTerm": term,
		}, fmt.Sprintf("|%s|%d", term, page))
		if err != nil {
			return ChangeList{}, err
		}

		doc.Find("table#_sectionLayoutContainer_ctl01__ResultGrid tr").Each(func(_ int, tr *goquery.Selection) {
			if class, _ := tr.Attr("class"); class == "pager" || class == "tab_zoznam_header" {
				return
			}
			mpCell := tr.Find("td:nth-child(2)")
			m := parenRe.FindStringSubmatch(htmlutil.SelectionText(mpCell))
			href, _ := mpCell.Find("a").First().Attr("href")
			id := queryParam(href, "PoslanecID")
			if m == nil || id == "" {
				return
			}
			result.Items = append(result.Items, MandateChange{
				Date:   htmlutil.SelectionText(tr.Find("td:nth-child(1)")),
				Name:   m[1],
				MPID:   id,
				Caucus: m[2],
				Change: htmlutil.SelectionText(tr.Find("td:nth-child(3)")),
				Reason: htmlutil.SelectionText(tr.Find("td:nth-child(4)")),
			})
		})

		next := doc.Find("table#_sectionLayoutContainer_ctl01__ResultGrid tr:first-child span").
			First().NextFiltered("a")
		href, ok := next.Attr("href")
		if !ok || len(href) < 10 {
			break
		}
		ctl = href[len(href)-10 : len(href)-5]
	}
	return result, nil
}

// DeputySpeakers parses the current deputy speakers of the chamber.
func (c *Client) DeputySpeakers(ctx context.Context) ([]DeputySpeaker, error) {
	doc, err := c.getDocument(ctx, baseURL+"default.aspx?sid=podpredsedovia")
	if err != nil {
		return nil, err
	}

	var result []DeputySpeaker
	doc.Find("div.vicechairman_bigbox").Each(func(_ int, div *goquery.Selection) {
		a := div.Find("a").First()
		href, _ := a.Attr("href")
		id := queryParam(href, "PoslanecID")
		if id == "" {
			return
		}
		result = append(result, DeputySpeaker{
			ID:   id,
			Name: htmlutil.SelectionText(a),
			URL:  absoluteURL(href),
		})
	})
	return result, nil
}

// SessionList parses the list of voting sessions of one term.
func (c *Client) SessionList(ctx context.Context, term string) ([]SessionRef, error) {
	if err := validTerm(term); err != nil {
		return nil, err
	}

	pageURL := baseURL + "default.aspx?sid=schodze/hlasovanie/schodze"
	doc, err := c.getDocument(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err = c.postDocument(ctx, pageURL, doc, map[string]string{
		"_sectionLayoutContainer$ctl01$_termsCombo": term,
	}, "|"+term)
	if err != nil {
		return nil, err
	}

	durationRe := regexp.MustCompile(`\((.+?)\)`)
	var sessions []SessionRef
	doc.Find("div#_sectionLayoutContainer__panelContent ul li").Each(func(_ int, li *goquery.Selection) {
		a := li.Find("a").First()
		href, _ := a.Attr("href")
		number := queryParam(href, "CisSchodze")
		if number == "" {
			return
		}
		session := SessionRef{
			Number: number,
			Name:   htmlutil.SelectionText(a),
			URL:    absoluteURL(href),
		}
		if m := durationRe.FindStringSubmatch(htmlutil.SelectionText(li)); m != nil {
			session.Duration = m[1]
		}
		sessions = append(sessions, session)
	})
	return sessions, nil
}

// Session parses one session's list of voted motions, walking all grid
// pages. A session number the site does not know yields ErrNotFound.
func (c *Client) Session(ctx context.Context, sessionNumber, term string) ([]SessionMotion, error) {
	if err := validTerm(term); err != nil {
		return nil, err
	}
	if n, err := strconv.Atoi(sessionNumber); err != nil || n == 0 {
		return nil, fmt.Errorf("invalid session number %q", sessionNumber)
	}

	pageURL := fmt.Sprintf(
		"%sDefault.aspx?sid=schodze/hlasovanie/vyhladavanie_vysledok&ZakZborID=13&CisObdobia=%s&CisSchodze=%s&ShowCisloSchodze=False",
		baseURL, term, sessionNumber,
	)
	contents, err := c.download(ctx, "GET", pageURL, nil, "")
	if err != nil {
		return nil, err
	}
	if strings.Contains(contents, "V systéme nie sú evidované žiadne hlasovania") {
		return nil, fmt.Errorf("%w: session %s of term %s", ErrNotFound, sessionNumber, term)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(contents))
	if err != nil {
		return nil, err
	}

	var motions []SessionMotion
	ctl := "ctl00"
	for page := 1; ; page++ {
		doc, err = c.postDocument(ctx, pageURL, doc, map[string]string{
			"__EVENTTARGET": "_sectionLayoutContainer$ctl01$_resultGrid$ctl01$" + ctl,
		}, fmt.Sprintf("|%s|%d", term, page))
		if err != nil {
			return nil, err
		}

		doc.Find("table#_sectionLayoutContainer_ctl01__resultGrid tr").Each(func(_ int, tr *goquery.Selection) {
			if class, _ := tr.Attr("class"); class == "pager" || class == "tab_zoznam_header" {
				return
			}
			voteEvent := tr.Find("td:nth-child(2) a").First()
			href, _ := voteEvent.Attr("href")
			id := queryParam(href, "ID")
			if id == "" {
				return
			}
			motions = append(motions, SessionMotion{
				ID:        id,
				Date:      htmlutil.SelectionText(tr.Find("td:nth-child(1)")),
				Number:    htmlutil.SelectionText(voteEvent),
				Name:      htmlutil.SelectionText(tr.Find("td:nth-child(4)")),
				ResultURL: absoluteURL(href),
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
	return motions, nil
}

// MPURL is the url of an MP's profile page within a term.
func MPURL(id, term string) string {
	return fmt.Sprintf("%sDefault.aspx?sid=poslanci/poslanec&PoslanecID=%s&CisObdobia=%s", baseURL, id, term)
}

// MotionURL is the canonical url of a motion detail page, used as the
// motion's natural key in the store.
func MotionURL(id string) string {
	return baseURL + "Default.aspx?sid=schodze/hlasovanie/hlasklub&ID=" + id
}

var countLabels = []string{
	"prítomní",
	"hlasujúcich",
	"[z] za",
	"[p] proti",
	"[?] zdržalo sa",
	"[n] nehlasovalo",
	"[0] neprítomní",
}

// Motion parses a motion detail page with the individual votes cast.
func (c *Client) Motion(ctx context.Context, id string) (MotionDetail, error) {
	pageURL := MotionURL(id)
	doc, err := c.getDocument(ctx, pageURL)
	if err != nil {
		return MotionDetail{}, err
	}

	panel := doc.Find("div#_sectionLayoutContainer__panelContent")
	summary := panel.Find("div.voting_stats_summary_full").First()
	sessionHref, _ := summary.Find("div:nth-child(1) a").First().Attr("href")

	result := MotionDetail{
		URL:           pageURL,
		SessionNumber: queryParam(sessionHref, "CisSchodze"),
		Term:          queryParam(sessionHref, "CisObdobia"),
		Date:          htmlutil.SelectionText(summary.Find("div:nth-child(2) > span")),
		Number:        htmlutil.SelectionText(summary.Find("div:nth-child(3) > span")),
		Name:          htmlutil.SelectionText(summary.Find("div:nth-child(4) > span")),
		Result:        htmlutil.SelectionText(summary.Find("div:nth-child(5) > span")),
	}
	if result.SessionNumber == "" || result.Term == "" {
		return MotionDetail{}, fmt.Errorf("motion %s: no session reference on page", id)
	}

	counts := panel.Find("div#_sectionLayoutContainer_ctl01_ctl00__resultsTablePanel > div").First()
	if counts.Length() > 0 {
		result.Counts = map[string]string{}
		counts.Find("div > span").Each(func(i int, span *goquery.Selection) {
			if i < len(countLabels) {
				result.Counts[countLabels[i]] = htmlutil.SelectionText(span)
			}
		})
	}

	var caucus string
	panel.Find("div#_sectionLayoutContainer_ctl01__bodyPanel td").Each(func(_ int, td *goquery.Selection) {
		if class, _ := td.Attr("class"); class == "hpo_result_block_title" {
			caucus = htmlutil.SelectionText(td)
			return
		}
		text := td.Text()
		if strings.TrimSpace(text) == "" {
			return
		}
		a := td.Find("a").First()
		href, _ := a.Attr("href")
		mpID := queryParam(href, "PoslanecID")
		if mpID == "" {
			return
		}
		// the vote code is the bracketed letter preceding the name
		runes := []rune(strings.TrimSpace(text))
		if len(runes) < 2 {
			return
		}
		vote := strings.ToLower(string(runes[1]))

		familyName, givenName, _ := strings.Cut(htmlutil.SelectionText(a), ",")
		result.Votes = append(result.Votes, MPVote{
			MPID:   mpID,
			Name:   strings.TrimSpace(givenName) + " " + strings.TrimSpace(familyName),
			Caucus: caucus,
			Vote:   vote,
			URL:    absoluteURL(href),
		})
	})

	return result, nil
}
