package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/dyike/StockPilot/consts"
	"github.com/dyike/StockPilot/internal/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Background(lipgloss.Color("#1F2937")).
			Padding(0, 1).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 2).
			Width(80)

	reportsStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#10B981")).
			Padding(1, 2).
			Width(100)

	progressStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	toolCallStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8B5CF6"))

	completedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#9CA3AF")).
			Width(24)
)

func DisplayWelcomeBanner(w io.Writer) {
	welcomeStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#7C3AED")).
		Bold(true).
		Align(lipgloss.Center).
		Width(80)

	taglineStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#3B82F6")).
		Italic(true).
		Align(lipgloss.Center).
		Width(80).
		MarginBottom(1)

	fmt.Fprintln(w, welcomeStyle.Render("StockPilot"))
	fmt.Fprintln(w, taglineStyle.Render("Price action, fundamentals and headlines, summarised by an LLM analyst"))
}

func renderAnalysisHeader(ticker, question, mode string) string {
	return headerStyle.Render(fmt.Sprintf("📊 %s | ❓ %s | ⚙️  %s", ticker, question, mode))
}

// renderReport boxes the final answer; error answers are highlighted.
func renderReport(answer string) string {
	if strings.HasPrefix(answer, consts.AnalysisErrorPrefix) {
		return errorStyle.Render("❌ " + answer)
	}
	return reportsStyle.Render(strings.TrimSpace(answer))
}

func renderProgress(line string) string {
	if strings.HasPrefix(line, "fetching") || strings.HasPrefix(line, "model requested") {
		return toolCallStyle.Render("🔧 " + line)
	}
	if line == "report ready" {
		return completedStyle.Render("✅ " + line)
	}
	return progressStyle.Render("… " + line)
}

func renderNews(result models.NewsResult) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("📰 %s news (source: %s)", result.Stock, result.Source)))
	b.WriteString("\n")
	for i, item := range result.News {
		published := ""
		if item.PublishedAt > 0 {
			published = time.Unix(item.PublishedAt, 0).Format("2006-01-02 15:04")
		}
		fmt.Fprintf(&b, "%d. %s\n   %s · %s\n   %s\n", i+1, item.Title, item.Publisher, published, item.Link)
	}
	return b.String()
}

func renderIndicators(ticker string, set models.IndicatorSet) string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(titleStyle.Render("📈 " + ticker + " technical indicators"))
	b.WriteString("\n")
	for _, name := range names {
		v := set[name]
		if v.Unavailable {
			fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(name), models.NotAvailable)
			continue
		}
		if !v.IsWindow() {
			fmt.Fprintf(&b, "%s %.2f\n", labelStyle.Render(name), *v.Latest)
			continue
		}
		parts := make([]string, 0, len(v.Window))
		for _, p := range v.Window {
			parts = append(parts, fmt.Sprintf("%s=%d", shortDate(p.Date), p.Value))
		}
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(name), strings.Join(parts, "  "))
	}
	return b.String()
}

// shortDate drops the year from YYYY-MM-DD.
func shortDate(d string) string {
	if len(d) == len(time.DateOnly) {
		return d[5:]
	}
	return d
}

func renderQuote(q *models.Quote) string {
	var b strings.Builder
	title := q.Symbol
	if q.Name != "" {
		title += " · " + q.Name
	}
	b.WriteString(titleStyle.Render("💹 " + title))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Price"), q.Price.StringFixed(2))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Open"), q.Open.StringFixed(2))
	fmt.Fprintf(&b, "%s %s / %s\n", labelStyle.Render("High / Low"), q.High.StringFixed(2), q.Low.StringFixed(2))
	fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("Volume"), q.Volume)
	if !q.Timestamp.IsZero() {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("As of"), q.Timestamp.Format(time.RFC1123))
	}
	return b.String()
}

func renderKV(rows [][2]string) string {
	var b strings.Builder
	for _, row := range rows {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(row[0]), row[1])
	}
	return b.String()
}

func configured(v string) string {
	if v == "" {
		return errorStyle.Render("not configured")
	}
	return completedStyle.Render("configured")
}
