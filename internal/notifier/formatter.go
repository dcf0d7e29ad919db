package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"DCASentinel/internal/model"
)

var statusIcon = map[model.OutcomeStatus]string{
	model.StatusSubmitted: "✅",
	model.StatusPlanned:   "📝",
	model.StatusSkipped:   "⏭",
	model.StatusFailed:    "❌",
}

// FormatCycleReport formats a finished cycle into a Telegram message.
func FormatCycleReport(r *model.CycleReport) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("📊 <b>DCASentinel weekly DCA</b> | %s\n", r.StartedAt.Format("2006-01-02 15:04 MST")))
	if r.DryRun {
		b.WriteString("<i>dry run, no orders submitted</i>\n")
	}
	b.WriteString(fmt.Sprintf("\nBudget: %.2f USDT | Planned: %.2f USDT\n", r.Budget, r.PlannedSpend()))
	for _, bal := range r.Balances {
		if bal.Asset == "USDT" {
			b.WriteString(fmt.Sprintf("USDT free: %.2f | locked: %.2f\n", bal.Free, bal.Locked))
		}
	}

	b.WriteString("\n💰 <b>Orders:</b>\n")
	for _, o := range r.Outcomes {
		b.WriteString(fmt.Sprintf("%s <b>%s</b>", statusIcon[o.Status], html.EscapeString(o.Symbol)))
		if o.Score > 0 {
			b.WriteString(fmt.Sprintf(" RSI %.1f", o.Score))
		}
		if o.TargetSpend > 0 {
			b.WriteString(fmt.Sprintf(" → %.2f USDT", o.TargetSpend))
		}
		if o.Quantity != "" {
			b.WriteString(fmt.Sprintf(", qty %s @ %s", o.Quantity, formatPrice(o.Price)))
		}
		if o.OrderID != 0 {
			b.WriteString(fmt.Sprintf(" (#%d)", o.OrderID))
		}
		if o.Reason != "" {
			b.WriteString(fmt.Sprintf("\n   %s", html.EscapeString(o.Reason)))
		}
		b.WriteString("\n")
	}

	b.WriteString(fmt.Sprintf("\nSubmitted %d | Planned %d | Skipped %d | Failed %d\n",
		r.Count(model.StatusSubmitted), r.Count(model.StatusPlanned),
		r.Count(model.StatusSkipped), r.Count(model.StatusFailed)))
	return b.String()
}

// FormatCycleError formats a cycle that aborted before producing a report.
func FormatCycleError(err error) string {
	return fmt.Sprintf("❌ <b>DCA cycle aborted</b>\n\n%s", html.EscapeString(err.Error()))
}

// FormatNextRun formats the scheduler state for the /next command.
func FormatNextRun(next time.Time, running bool) string {
	var b strings.Builder
	if next.IsZero() {
		b.WriteString("⏰ No run scheduled")
	} else {
		b.WriteString(fmt.Sprintf("⏰ Next DCA run: %s", next.Format("2006-01-02 15:04 MST")))
	}
	if running {
		b.WriteString("\n⏳ a cycle is running now")
	}
	return b.String()
}

func formatPrice(p float64) string {
	s := fmt.Sprintf("%.8f", p)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
