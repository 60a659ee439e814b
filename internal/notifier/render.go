package notifier

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"sentinel/internal/adapters/notify"
	"sentinel/internal/events"
)

// RenderAlert turns a news alert into a channel-ready message
func RenderAlert(alert events.NewsAlert) notify.Message {
	ev := alert.Event
	direction := "up"
	if ev.PercentChange.Sign() < 0 {
		direction = "down"
	}

	pct, _ := ev.PercentChange.Abs().Float64()
	price, _ := ev.Price.Float64()

	subject := fmt.Sprintf("%s %s %s%%", ev.Symbol, direction, humanize.CommafWithDigits(pct, 2))

	var b strings.Builder
	fmt.Fprintf(&b, "%s moved %s %s%% to %s (volume %s, %s)\n",
		ev.Symbol,
		direction,
		humanize.CommafWithDigits(pct, 2),
		humanize.CommafWithDigits(price, 2),
		humanize.Comma(ev.Volume),
		humanize.Time(ev.Timestamp),
	)

	if alert.Sentiment != nil {
		fmt.Fprintf(&b, "News sentiment: %s (%.2f across %d articles)\n",
			alert.Sentiment.Label, alert.Sentiment.Value, alert.Sentiment.Articles)
	} else {
		b.WriteString("News sentiment unavailable\n")
	}

	if alert.Summary != "" {
		b.WriteString(alert.Summary)
		b.WriteString("\n")
	}

	for _, headline := range alert.Headlines {
		fmt.Fprintf(&b, "- %s\n", headline)
	}

	return notify.Message{
		Subject: subject,
		Body:    strings.TrimRight(b.String(), "\n"),
		Payload: alert,
	}
}

// RenderMarketEvent turns a raw market event into a message for the
// optional unenriched stream
func RenderMarketEvent(ev events.MarketEvent) notify.Message {
	direction := "up"
	if ev.PercentChange.Sign() < 0 {
		direction = "down"
	}

	pct, _ := ev.PercentChange.Abs().Float64()
	price, _ := ev.Price.Float64()

	subject := fmt.Sprintf("%s %s %s%%", ev.Symbol, direction, humanize.CommafWithDigits(pct, 2))
	body := fmt.Sprintf("%s moved %s %s%% to %s (volume %s, %s)",
		ev.Symbol,
		direction,
		humanize.CommafWithDigits(pct, 2),
		humanize.CommafWithDigits(price, 2),
		humanize.Comma(ev.Volume),
		humanize.Time(ev.Timestamp),
	)

	return notify.Message{
		Subject: subject,
		Body:    body,
		Payload: ev,
	}
}
