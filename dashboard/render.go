package dashboard

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/shopspring/decimal"

	"github.com/warp/yield-pacing/goals"
)

// Renderer writes a snapshot somewhere a person can read it.
type Renderer interface {
	Render(w io.Writer, snap Snapshot) error
}

// TextRenderer draws the snapshot as terminal tables. Colors follow the
// writer's terminal profile, so pipes and buffers get plain text.
type TextRenderer struct {
	// MaxDays trims MS tables to the last n dates; 0 shows all.
	MaxDays int
}

var _ Renderer = TextRenderer{}

var funnelKeys = []string{
	"newInterviews", "proposals", "recommendations", "interviewsScheduled",
	"interviewsHeld", "offers", "accepts", "hires",
}

type palette struct {
	title lipgloss.Style
	muted lipgloss.Style
	bands map[goals.Band]lipgloss.Style
}

func newPalette(w io.Writer) palette {
	re := lipgloss.NewRenderer(w)
	return palette{
		title: re.NewStyle().Bold(true),
		muted: re.NewStyle().Faint(true),
		bands: map[goals.Band]lipgloss.Style{
			goals.BandHigh: re.NewStyle().Foreground(lipgloss.Color("#8BC34A")),
			goals.BandMid:  re.NewStyle().Foreground(lipgloss.Color("#FFC107")),
			goals.BandLow:  re.NewStyle().Foreground(lipgloss.Color("#e53935")),
			goals.BandNone: re.NewStyle(),
		},
	}
}

func (r TextRenderer) Render(w io.Writer, snap Snapshot) error {
	p := newPalette(w)
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", p.title.Render(fmt.Sprintf("yield dashboard #%d", snap.Seq)))
	if !snap.LoadedAt.IsZero() {
		fmt.Fprintf(&b, "%s\n", p.muted.Render("loaded "+snap.LoadedAt.Format("2006-01-02 15:04:05")+" advisor "+snap.AdvisorID.String()))
	}
	sel := snap.Selection
	if sel.Scope.Wants(ScopePersonal) {
		b.WriteString("\n" + p.title.Render("personal "+string(sel.PersonalPeriodID)) + "\n")
		b.WriteString(kpiTable([]kpiRow{
			{"today", snap.PersonalToday},
			{"month", snap.PersonalMonthly},
			{"period", snap.PersonalPeriod},
		}) + "\n")
		b.WriteString(targetLine(snap.PersonalTarget) + "\n")
	}
	if sel.Scope.Wants(ScopeCompany) {
		b.WriteString("\n" + p.title.Render("company "+string(sel.CompanyPeriodID)) + "\n")
		b.WriteString(kpiTable([]kpiRow{{"period", snap.CompanyPeriod}}) + "\n")
		b.WriteString(targetLine(snap.CompanyTarget) + "\n")
	}
	if sel.Scope.Wants(ScopeAdmin) && len(snap.Employees) > 0 {
		rows := make([]kpiRow, 0, len(snap.Employees))
		for _, e := range snap.Employees {
			name := e.Name
			if name == "" {
				name = "ID:" + e.AdvisorID.String()
			}
			rows = append(rows, kpiRow{name, e.Summary})
		}
		b.WriteString("\n" + p.title.Render("employees") + "\n")
		b.WriteString(kpiTable(rows) + "\n")
	}
	for _, t := range []MsTable{snap.CompanyMs, snap.PersonalMs} {
		if len(t.Rows) == 0 {
			continue
		}
		b.WriteString("\n" + p.title.Render(fmt.Sprintf("ms %s %s", t.Scope, t.PeriodID)) + "\n")
		b.WriteString(r.msTable(t, p) + "\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

type kpiRow struct {
	label   string
	summary KPISummary
}

func kpiTable(rows []kpiRow) string {
	headers := append([]string{"", "mode"}, funnelKeys...)
	t := table.New().Border(lipgloss.NormalBorder()).Headers(headers...)
	for _, row := range rows {
		cells := []string{row.label, string(row.summary.Mode)}
		for _, key := range funnelKeys {
			cells = append(cells, formatCount(row.summary.Counts.Count(key)))
		}
		t.Row(cells...)

		rates := []string{"", "rate"}
		rates = append(rates, "")
		for _, step := range goals.RateSteps {
			rates = append(rates, strconv.Itoa(row.summary.Rates[step.RateKey])+"%")
		}
		t.Row(rates...)
	}
	return t.String()
}

func targetLine(t goals.Target) string {
	if len(t) == 0 {
		return "targets: -"
	}
	parts := make([]string, 0, len(goals.KPITargetKeys))
	for _, key := range goals.KPITargetKeys {
		if v := t[key]; v != 0 {
			parts = append(parts, strings.TrimSuffix(key, "Target")+"="+formatCount(v))
		}
	}
	if len(parts) == 0 {
		return "targets: -"
	}
	return "targets: " + strings.Join(parts, " ")
}

func formatCount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// msTable lays dates out as rows and departments as columns.
func (r TextRenderer) msTable(t MsTable, p palette) string {
	start := 0
	if r.MaxDays > 0 && len(t.Dates) > r.MaxDays {
		start = len(t.Dates) - r.MaxDays
	}

	headers := []string{"date"}
	for _, row := range t.Rows {
		label := goals.DepartmentLabel(row.Department) + " " + row.Metric.Label
		if !row.Configured {
			label += " (" + row.NoticeMonth + " 未設定)"
		}
		headers = append(headers, label)
	}
	tb := table.New().Border(lipgloss.NormalBorder()).Headers(headers...)

	for i := start; i < len(t.Dates); i++ {
		cells := []string{t.Dates[i].String()}
		for _, row := range t.Rows {
			cells = append(cells, msCell(row, i, p))
		}
		tb.Row(cells...)
	}

	totals := []string{"total"}
	for _, row := range t.Rows {
		if !row.Configured {
			totals = append(totals, "-")
			continue
		}
		totals = append(totals, row.TargetTotal.String())
	}
	tb.Row(totals...)
	return tb.String()
}

func msCell(row MsRow, i int, p palette) string {
	if !row.Configured || i >= len(row.Cells) {
		return ""
	}
	c := row.Cells[i]
	if c.Disabled {
		return p.muted.Render("-")
	}
	text := fmt.Sprintf("%s/%s %d%%", c.Actual.Round(0), c.Value.Round(0), c.Achievement)
	if c.Value.Equal(decimal.Zero) {
		text = c.Actual.Round(0).String() + "/-"
	}
	return p.bands[c.Band].Render(text)
}
