package bot

import (
	"fmt"
	"strings"

	"chanwatch_bot/internal/filter"
	"chanwatch_bot/internal/model"
)

const (
	statusActive   = "active"
	statusPaused   = "paused"
	statusEnabled  = "on"
	statusDisabled = "off"

	maxPreviewLen = 200
)

// FormatWatchNotification formats a thread picked up by a watch filter.
func FormatWatchNotification(post model.Post, rule model.FilterRule) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] No.%d", post.Board, post.ThreadNo)
	if rule.ID > 0 {
		fmt.Fprintf(&b, " (filter #%d)", rule.ID)
	}
	b.WriteString("\n\n")
	if post.Subject != "" {
		b.WriteString(post.Subject)
		b.WriteString("\n")
	}
	if post.Comment != "" {
		b.WriteString(truncate(post.Comment, maxPreviewLen))
		b.WriteString("\n")
	}
	if post.Link != "" {
		b.WriteString("\n")
		b.WriteString(post.Link)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatRuleList formats a chat's filter rules in evaluation order.
func FormatRuleList(rules []model.FilterRule) string {
	if len(rules) == 0 {
		return "You have no filters yet. Use /addfilter <pattern> to add one."
	}
	var b strings.Builder
	b.WriteString("Your filters (first match wins):\n")
	for _, r := range rules {
		fmt.Fprintf(&b, "\n%d. #%d %s [%s]\n", r.Position, r.ID, r.Pattern, enabledLabel(r.Enabled))
		fmt.Fprintf(&b, "   %s on %s, boards: %s\n", actionLabel(r), r.Type, FormatScope(r))
	}
	return b.String()
}

// FormatRuleInfo formats detailed information about a single rule.
func FormatRuleInfo(r *model.FilterRule) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Filter #%d [%s]\n", r.ID, enabledLabel(r.Enabled))
	fmt.Fprintf(&b, "Position: %d\n", r.Position)
	fmt.Fprintf(&b, "Pattern: %s\n", r.Pattern)
	fmt.Fprintf(&b, "Type: %s\n", r.Type)
	fmt.Fprintf(&b, "Action: %s\n", actionLabel(*r))
	fmt.Fprintf(&b, "Boards: %s\n", FormatScope(*r))

	var opts []string
	if r.ApplyToReplies {
		opts = append(opts, "replies")
	}
	if r.OnlyOnOP {
		opts = append(opts, "OP only")
	}
	if r.ApplyToSaved {
		opts = append(opts, "saved posts")
	}
	if len(opts) > 0 {
		fmt.Fprintf(&b, "Options: %s\n", strings.Join(opts, ", "))
	}
	return b.String()
}

// FormatScope renders the boards a rule applies to.
func FormatScope(r model.FilterRule) string {
	if r.AllBoards {
		return "all"
	}
	if len(r.Boards) == 0 {
		return "none"
	}
	names := make([]string, len(r.Boards))
	for i, b := range r.Boards {
		names[i] = b.String()
	}
	return strings.Join(names, ", ")
}

// FormatColor renders an ARGB color as #aarrggbb.
func FormatColor(c int) string {
	return fmt.Sprintf("#%08x", uint32(c)) //nolint:gosec // colors are 32-bit ARGB
}

// FormatValidation turns a failed validation into a user-facing message.
func FormatValidation(res filter.ValidationResult) string {
	switch res.Code {
	case filter.ValidationSuccess:
		return "Filter is valid."
	case filter.ValidationEmptyPattern:
		return "Filter pattern is empty."
	case filter.ValidationUninterpretablePattern:
		return "Cannot compile the filter pattern. Check the /regex/ syntax."
	case filter.ValidationDuplicateFilter:
		return fmt.Sprintf("An identical filter already exists at position %d.", res.Position)
	case filter.ValidationDisallowedTypeForWatch:
		return fmt.Sprintf("Type %q is not allowed with watch filters. Use subject and/or comment.", res.TypeName)
	case filter.ValidationNoTypeSelected:
		return "No filter type selected. Use -t, e.g. -t subject,comment."
	case filter.ValidationNoBoardsSelected:
		return "No boards selected. Use -b all or -b g,v."
	}
	return fmt.Sprintf("Invalid filter: %v", res.Err())
}

// FormatBoardList formats the board subscriptions of a chat.
func FormatBoardList(boards []model.BoardSubscription) string {
	if len(boards) == 0 {
		return "You have no boards yet. Use /addboard <board> <rss_url> to add one."
	}
	var b strings.Builder
	b.WriteString("Your boards:\n")
	for _, s := range boards {
		status := statusActive
		if !s.IsActive {
			status = statusPaused
		}
		fmt.Fprintf(&b, "\n#%d %s  (every %d min) [%s]\n", s.ID, s.Board, s.IntervalMinutes, status)
		fmt.Fprintf(&b, "   %s\n", s.URL)
		if s.LastCheckAt != nil {
			fmt.Fprintf(&b, "   last check: %s\n", s.LastCheckAt.Format("2006-01-02 15:04 UTC"))
		}
	}
	return b.String()
}

// FormatWatchedList formats the watched threads of a chat.
func FormatWatchedList(threads []model.WatchedThread) string {
	if len(threads) == 0 {
		return "No watched threads. Add a filter with -a watch to watch matching threads."
	}
	var b strings.Builder
	b.WriteString("Watched threads:\n")
	for _, w := range threads {
		subject := w.Subject
		if subject == "" {
			subject = "(no subject)"
		}
		fmt.Fprintf(&b, "\n#%d %s No.%d %s\n", w.ID, w.Board, w.ThreadNo, subject)
		if w.Link != "" {
			fmt.Fprintf(&b, "   %s\n", w.Link)
		}
	}
	return b.String()
}

// FormatCheckResult summarizes a dry run of the chat's rules over a catalog.
// Threads present in watched are marked as already on the watch list.
func FormatCheckResult(sub *model.BoardSubscription, posts []model.Post, decisions []filter.Decision, watched map[int64]bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Checked #%d %s: %d thread(s), %d matched.\n", sub.ID, sub.Board, len(posts), len(decisions))
	for _, d := range decisions {
		subject := d.Post.Subject
		if subject == "" {
			subject = truncate(d.Post.Comment, 40)
		}
		fmt.Fprintf(&b, "\nNo.%d %s\n   %s by filter #%d", d.Post.No, subject, d.Rule.Action, d.Rule.ID)
		if d.Inherited {
			b.WriteString(" (reply)")
		}
		if watched[d.Post.ThreadNo] {
			b.WriteString(" (watched)")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func actionLabel(r model.FilterRule) string {
	if r.Action == model.ActionColor {
		return "color " + FormatColor(r.Color)
	}
	return r.Action.String()
}

func enabledLabel(enabled bool) string {
	if enabled {
		return statusEnabled
	}
	return statusDisabled
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
