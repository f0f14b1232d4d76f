package nrsr

import (
	"context"
	"fmt"
)

// SelfCheck probes the site's main list pages and fails when a parser
// no longer finds anything there. Run before a scrape so a silent
// layout change on the site aborts the run instead of producing empty
// results.
func (c *Client) SelfCheck(ctx context.Context) error {
	term, err := c.CurrentTerm(ctx)
	if err != nil {
		return fmt.Errorf("current term: %w", err)
	}

	mps, err := c.MPList(ctx, term)
	if err != nil {
		return fmt.Errorf("MP list: %w", err)
	}
	if len(mps) == 0 {
		return fmt.Errorf("MP list of term %s parsed empty", term)
	}

	mp, err := c.MP(ctx, mps[0].ID, term)
	if err != nil {
		return fmt.Errorf("MP profile: %w", err)
	}
	if mp.GivenName == "" {
		return fmt.Errorf("MP %s parsed without a name", mps[0].ID)
	}

	sessions, err := c.SessionList(ctx, term)
	if err != nil {
		return fmt.Errorf("session list: %w", err)
	}
	if len(sessions) == 0 {
		return fmt.Errorf("session list of term %s parsed empty", term)
	}

	groups, err := c.GroupList(ctx, "committee", term)
	if err != nil {
		return fmt.Errorf("committee list: %w", err)
	}
	if len(groups) == 0 {
		return fmt.Errorf("committee list of term %s parsed empty", term)
	}
	return nil
}
