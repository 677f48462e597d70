package main

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"moff.io/crowdfund/internal/campaign"
	"moff.io/crowdfund/pkg/errors"
)

func TestStatus(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	base := campaign.Campaign{
		Goal:    big.NewInt(10),
		Pledged: big.NewInt(0),
		StartAt: now.Add(-time.Hour),
		EndAt:   now.Add(time.Hour),
	}
	tests := []struct {
		name   string
		modify func(c *campaign.Campaign)
		want   string
	}{
		{"open", func(c *campaign.Campaign) {}, "open"},
		{"ended", func(c *campaign.Campaign) { c.EndAt = now }, "ended"},
		{"funded", func(c *campaign.Campaign) { c.EndAt = now; c.Pledged = big.NewInt(10) }, "funded"},
		{"claimed", func(c *campaign.Campaign) { c.Claimed = true }, "claimed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base.Clone()
			tt.modify(c)
			assert.Equal(t, tt.want, status(c, now))
		})
	}
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Request rejected in the wallet", describe(errors.NewKind(errors.KindUserRejected, "nope")))
	assert.Equal(t, "No campaigns yet", describe(errors.NewKind(errors.KindNoCampaigns, "count is zero")))
	assert.Equal(t, "boom", describe(errors.New("boom")))
}

func TestRootCommands(t *testing.T) {
	root := rootCmd()
	for _, path := range [][]string{{"serve"}, {"accounts"}, {"campaigns", "list"}, {"campaigns", "launch"}, {"campaigns", "pledge"}, {"deployments", "record"}, {"deployments", "latest"}} {
		cmd, _, err := root.Find(path)
		assert.NoError(t, err)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}
