package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"SignalSentinel/internal/model"
)

var kindIcons = map[model.Kind]string{
	model.KindTrend:             "📈",
	model.KindTrendContinuation: "🚀",
	model.KindMACDCross:         "🔀",
	model.KindRSILevel:          "🌡",
	model.KindPivot:             "🎯",
}

// FormatEvent renders an event as a Telegram HTML message ending with the
// resolution tag, e.g. "(TF: 4h)".
func FormatEvent(ev model.Event) string {
	var b strings.Builder
	if icon, ok := kindIcons[ev.Kind()]; ok {
		b.WriteString(icon + " ")
	}
	if ev.Importance() >= model.Critical {
		b.WriteString("<b>[!]</b> ")
	}
	b.WriteString(html.EscapeString(ev.Message()))
	b.WriteString(fmt.Sprintf(" (TF: %s)", ev.Resolution()))
	return b.String()
}

// FormatHeartbeat renders the hourly liveness message.
func FormatHeartbeat(now time.Time, jobs int, paused bool) string {
	state := "running"
	if paused {
		state = "paused"
	}
	return fmt.Sprintf("✅ <b>Signal agent alive</b> | %s UTC\n%d jobs, %s",
		now.UTC().Format("2006-01-02 15:04"), jobs, state)
}
