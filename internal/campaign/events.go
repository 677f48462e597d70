package campaign

import (
	"encoding/json"
	"strconv"
	"time"

	"moff.io/crowdfund/internal/databus"
)

// Publisher delivers campaign events; *databus.DataBus satisfies it.
type Publisher interface {
	Publish(e databus.Event) error
}

const (
	EventLaunched = "campaign.launched"
	EventPledged  = "campaign.pledged"
)

// Event is the payload published after a confirmed launch or pledge.
type Event struct {
	Type       string    `json:"type"`
	CampaignID uint64    `json:"campaign_id"`
	Name       string    `json:"name,omitempty"`
	Creator    string    `json:"creator,omitempty"`
	AmountWei  string    `json:"amount_wei"`
	TxHash     string    `json:"tx_hash"`
	At         time.Time `json:"at"`

	topic string
}

func (e *Event) Serialize() []byte {
	b, _ := json.Marshal(e)
	return b
}

func (e *Event) Topic() string { return e.topic }

func (e *Event) Key() string { return strconv.FormatUint(e.CampaignID, 10) }
