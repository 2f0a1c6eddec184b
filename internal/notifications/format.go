// Package notifications turns an eligible price drop into a Discord webhook
// message and delivers it with bounded, rate-limit aware retries.
package notifications

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/albapepper/pricewatch/internal/config"
	"github.com/albapepper/pricewatch/internal/price"
	"github.com/albapepper/pricewatch/internal/provider/stocktrack"
)

// NotAvailable is rendered for statistics that do not exist for an item.
const NotAvailable = "N/A"

const (
	embedColor   = 15158332 // red
	footerPrefix = "StockTrack Monitor"
	footerLayout = "2006-01-02 15:04:05"
)

var hundred = decimal.NewFromInt(100)

// Payload is everything an alert shows, with every amount already rendered
// to two decimals.
type Payload struct {
	Sku      string `json:"sku"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url,omitempty"`
	Link     string `json:"link"`
	Reason   string `json:"reason"`

	Current           string `json:"current"`
	IsAllTimeLow      bool   `json:"is_all_time_low"`
	Lowest            string `json:"lowest"`
	Highest           string `json:"highest"`
	Average           string `json:"average"`
	HighestDiff       string `json:"highest_diff"`
	SecondLowestDiff  string `json:"second_lowest_diff"`
	DiscountVsAverage string `json:"discount_vs_average"`
}

// Format builds the alert payload for an item that passed the eligibility
// rule. Amounts are rounded half away from zero to two places.
func Format(item stocktrack.Item, stats *price.Stats, reason, baseURL string) Payload {
	p := Payload{
		Sku:      item.Sku,
		Name:     item.Name,
		ImageURL: item.Image,
		Link:     baseURL + item.Href,
		Reason:   reason,

		SecondLowestDiff:  NotAvailable,
		DiscountVsAverage: NotAvailable,
	}
	if stats == nil {
		p.Current, p.Lowest, p.Highest, p.Average, p.HighestDiff = NotAvailable, NotAvailable, NotAvailable, NotAvailable, NotAvailable
		return p
	}

	cur := stats.Current
	p.Current = money(cur)
	p.IsAllTimeLow = cur.LessThanOrEqual(stats.Lowest)
	p.Lowest = money(stats.Lowest)
	p.Highest = money(stats.Highest)
	p.Average = money(stats.Average)
	p.HighestDiff = money(stats.Highest.Sub(cur))

	if stats.SecondLowest != nil {
		p.SecondLowestDiff = money(stats.SecondLowest.Sub(cur))
	}
	if stats.Average.IsPositive() {
		discount := stats.Average.Sub(cur).Mul(hundred).DivRound(stats.Average, 16)
		p.DiscountVsAverage = money(discount)
	}
	return p
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// --------------------------------------------------------------------------
// Discord webhook message
// --------------------------------------------------------------------------

// WebhookMessage is the JSON body of a Discord webhook execution.
type WebhookMessage struct {
	Username  string  `json:"username,omitempty"`
	AvatarURL string  `json:"avatar_url,omitempty"`
	Content   string  `json:"content,omitempty"`
	Embeds    []Embed `json:"embeds,omitempty"`
}

type Embed struct {
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	URL         string          `json:"url,omitempty"`
	Color       int             `json:"color,omitempty"`
	Fields      []EmbedField    `json:"fields,omitempty"`
	Footer      *EmbedFooter    `json:"footer,omitempty"`
	Thumbnail   *EmbedThumbnail `json:"thumbnail,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type EmbedFooter struct {
	Text string `json:"text"`
}

type EmbedThumbnail struct {
	URL string `json:"url"`
}

// Message renders the payload as a single-embed webhook message.
func (p Payload) Message(cfg config.DiscordConfig, now time.Time) WebhookMessage {
	atl := "No"
	if p.IsAllTimeLow {
		atl = "Yes"
	}
	discount := p.DiscountVsAverage
	if discount != NotAvailable {
		discount += "%"
	}
	reason := p.Reason
	if reason == "" {
		reason = "Details in logs"
	}

	embed := Embed{
		Title: "🚨 Price Drop: " + p.Name,
		URL:   p.Link,
		Color: embedColor,
		Fields: []EmbedField{
			{Name: "SKU", Value: p.Sku, Inline: true},
			{Name: "Current Price", Value: dollars(p.Current), Inline: true},
			{Name: "All-Time Low", Value: atl, Inline: true},
			{Name: "Lowest Hist.", Value: dollars(p.Lowest), Inline: true},
			{Name: "Highest Hist.", Value: dollars(p.Highest), Inline: true},
			{Name: "Average Hist.", Value: dollars(p.Average), Inline: true},
			{Name: "Diff (Highest-Now)", Value: dollars(p.HighestDiff), Inline: true},
			{Name: "Diff (2ndLow-Now)", Value: p.SecondLowestDiff, Inline: true},
			{Name: "Discount vs Avg.", Value: discount, Inline: true},
			{Name: "Alert Reason", Value: reason, Inline: false},
		},
		Footer: footer(now),
	}
	if p.ImageURL != "" {
		embed.Thumbnail = &EmbedThumbnail{URL: p.ImageURL}
	}

	return WebhookMessage{
		Username:  cfg.Username,
		AvatarURL: cfg.AvatarURL,
		Embeds:    []Embed{embed},
	}
}

// TestMessage is sent by the test-webhook command to check the webhook
// end to end.
func TestMessage(cfg config.DiscordConfig, now time.Time) WebhookMessage {
	return WebhookMessage{
		Username:  cfg.Username,
		AvatarURL: cfg.AvatarURL,
		Embeds: []Embed{{
			Title:       "Webhook test",
			Description: "pricewatch can post to this channel.",
			Color:       embedColor,
			Footer:      footer(now),
		}},
	}
}

func footer(now time.Time) *EmbedFooter {
	return &EmbedFooter{Text: fmt.Sprintf("%s | %s", footerPrefix, now.Format(footerLayout))}
}

func dollars(s string) string {
	if s == NotAvailable {
		return s
	}
	return "$" + s
}
