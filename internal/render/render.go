package render

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/JakeFAU/purifier-console/internal/episodes"
	"github.com/JakeFAU/purifier-console/internal/manager"
	"github.com/JakeFAU/purifier-console/internal/progress"
	"github.com/JakeFAU/purifier-console/internal/store"
)

const placeholder = "-"

// Feeds renders the subscription list.
func Feeds(feeds []manager.Feed, now time.Time) string {
	if len(feeds) == 0 {
		return "No feeds subscribed."
	}
	rows := make([][]string, 0, len(feeds))
	for _, f := range feeds {
		auto := "off"
		if f.AutoProcess {
			auto = "on"
		}
		rows = append(rows, []string{
			strconv.FormatInt(f.ID, 10),
			truncate(f.Title, maxTitleWidth),
			auto,
			f.RSSURL,
			relative(f.UpdatedAt.Time, now),
		})
	}
	return renderTable(
		[]string{"ID", "Title", "Auto", "RSS URL", "Updated"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
	)
}

// Episodes renders listing rows. Progress only appears on overlaid rows.
func Episodes(rows []episodes.Row, now time.Time) string {
	if len(rows) == 0 {
		return "No episodes."
	}
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		published := placeholder
		if r.PublishedAt != nil {
			published = relative(r.PublishedAt.Time, now)
		}
		out = append(out, []string{
			strconv.FormatInt(r.ID, 10),
			truncate(r.FeedTitle, maxTitleWidth/2),
			truncate(r.Title, maxTitleWidth),
			string(r.Status),
			rowProgress(r),
			published,
		})
	}
	return renderTable(
		[]string{"ID", "Feed", "Title", "Status", "Progress", "Published"},
		out,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
	)
}

// Frame renders one Episode View refresh: a status line, the table and the
// pagination footer. A failed refresh shows the error above the last good
// listing.
func Frame(f episodes.Frame, now time.Time) string {
	var b strings.Builder
	live := "live progress: disconnected"
	if f.Connected {
		live = "live progress: connected"
	}
	fmt.Fprintf(&b, "%s | refreshed %s\n", live, relative(f.FetchedAt, now))
	if f.Err != nil {
		fmt.Fprintf(&b, "refresh failed: %v\n", f.Err)
	}
	b.WriteString(Episodes(f.Rows, now))
	b.WriteString("\n")
	b.WriteString(PageFooter(f.Page))
	return b.String()
}

// PageFooter summarizes pagination.
func PageFooter(page manager.EpisodePage) string {
	pages := max(page.TotalPages, 1)
	current := max(page.Page, 1)
	return fmt.Sprintf("page %d of %d, %s episodes", current, pages, humanize.Comma(int64(page.Total)))
}

// Actions renders the audit log.
func Actions(actions []store.Action, now time.Time) string {
	if len(actions) == 0 {
		return "No recorded actions."
	}
	rows := make([][]string, 0, len(actions))
	for _, a := range actions {
		target := placeholder
		switch {
		case a.FeedID != nil:
			target = "feed " + strconv.FormatInt(*a.FeedID, 10)
		case len(a.EpisodeIDs) > 0:
			target = "episodes " + joinIDs(a.EpisodeIDs)
		}
		detail := a.Detail
		if detail == "" {
			detail = placeholder
		}
		rows = append(rows, []string{
			relative(a.At, now),
			string(a.Kind),
			target,
			strconv.Itoa(a.Affected),
			truncate(detail, maxTitleWidth),
		})
	}
	return renderTable(
		[]string{"When", "Action", "Target", "Affected", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

// Event renders one live progress event as a single line.
func Event(evt progress.Event) string {
	line := fmt.Sprintf("episode %d  %s  %s", evt.EpisodeID, Percent(evt.Progress), evt.Stage)
	if evt.Terminal() {
		line += "  (finished)"
	}
	return line
}

// Percent formats a completion percentage without a trailing ".0".
func Percent(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64) + "%"
}

func rowProgress(r episodes.Row) string {
	pct, ok := r.Percent()
	if !ok {
		return placeholder
	}
	return Percent(pct) + " " + r.Stage()
}

func relative(t, now time.Time) string {
	if t.IsZero() {
		return placeholder
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
