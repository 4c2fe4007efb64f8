package bot

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"github.com/spf13/pflag"

	"chanwatch_bot/internal/model"
)

const (
	defaultRuleType   = model.TypeSubject | model.TypeComment
	defaultRuleAction = model.ActionHide
	defaultColor      = 0xFFFF0000
)

// RuleArgs holds the parsed flags and pattern of /addfilter and /editfilter.
type RuleArgs struct {
	Pattern        string
	Type           model.FilterType
	Action         model.FilterAction
	Color          int
	Boards         []model.BoardDescriptor
	AllBoards      bool
	ApplyToReplies bool
	OnlyOnOP       bool
	ApplyToSaved   bool

	changed map[string]bool
}

// Changed reports whether the named long flag was given.
func (a RuleArgs) Changed(name string) bool {
	return a.changed[name]
}

// ParseRuleArgs parses "[flags] <pattern>". Flags must precede the pattern;
// use "--" before a pattern that starts with a dash.
//
// Flags: -t/--type name[,name], -a/--action name, -c/--color #rrggbb,
// -b/--boards all|board[,board], --replies, --op, --saved.
func ParseRuleArgs(args, defaultSite string) (RuleArgs, error) {
	fs := pflag.NewFlagSet("filter", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SetInterspersed(false)

	typ := fs.StringP("type", "t", defaultRuleType.String(), "post fields to match")
	action := fs.StringP("action", "a", defaultRuleAction.String(), "action for matched posts")
	color := fs.StringP("color", "c", "", "highlight color for the color action")
	boards := fs.StringP("boards", "b", "all", "boards the filter applies to")
	replies := fs.Bool("replies", false, "apply to replies of matched posts")
	op := fs.Bool("op", false, "only match opening posts")
	saved := fs.Bool("saved", false, "also match your own posts")

	fields := strings.Fields(args)
	if err := fs.Parse(fields); err != nil {
		return RuleArgs{}, fmt.Errorf("parse flags: %w", err)
	}

	out := RuleArgs{
		Pattern:        skipFields(args, len(fields)-len(fs.Args())),
		ApplyToReplies: *replies,
		OnlyOnOP:       *op,
		ApplyToSaved:   *saved,
		Color:          defaultColor,
		changed:        make(map[string]bool),
	}
	fs.Visit(func(f *pflag.Flag) { out.changed[f.Name] = true })

	var err error
	if out.Type, err = model.ParseFilterType(*typ); err != nil {
		return RuleArgs{}, err
	}
	if out.Action, err = model.ParseFilterAction(*action); err != nil {
		return RuleArgs{}, err
	}
	if *color != "" {
		if out.Color, err = ParseColor(*color); err != nil {
			return RuleArgs{}, err
		}
	}
	if out.AllBoards, out.Boards, err = ParseBoardList(*boards, defaultSite); err != nil {
		return RuleArgs{}, err
	}
	return out, nil
}

// skipFields drops the first n whitespace-separated fields of s and returns
// the remainder with its inner spacing intact.
func skipFields(s string, n int) string {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	for range n {
		i := strings.IndexFunc(s, unicode.IsSpace)
		if i < 0 {
			return ""
		}
		s = strings.TrimLeftFunc(s[i:], unicode.IsSpace)
	}
	return strings.TrimRightFunc(s, unicode.IsSpace)
}

// NewRule builds a new enabled rule for chatID from parsed arguments.
func (a RuleArgs) NewRule(chatID int64) model.FilterRule {
	return model.FilterRule{
		ChatID:         chatID,
		Enabled:        true,
		Pattern:        a.Pattern,
		Type:           a.Type,
		Action:         a.Action,
		Color:          a.Color,
		Boards:         a.Boards,
		AllBoards:      a.AllBoards,
		ApplyToReplies: a.ApplyToReplies,
		OnlyOnOP:       a.OnlyOnOP,
		ApplyToSaved:   a.ApplyToSaved,
	}
}

// ApplyTo overwrites the fields of r that were given explicitly.
// The pattern is replaced only when one was given.
func (a RuleArgs) ApplyTo(r *model.FilterRule) {
	if a.Pattern != "" {
		r.Pattern = a.Pattern
	}
	if a.Changed("type") {
		r.Type = a.Type
	}
	if a.Changed("action") {
		r.Action = a.Action
	}
	if a.Changed("color") {
		r.Color = a.Color
	}
	if a.Changed("boards") {
		r.AllBoards = a.AllBoards
		r.Boards = a.Boards
	}
	if a.Changed("replies") {
		r.ApplyToReplies = a.ApplyToReplies
	}
	if a.Changed("op") {
		r.OnlyOnOP = a.OnlyOnOP
	}
	if a.Changed("saved") {
		r.ApplyToSaved = a.ApplyToSaved
	}
}

// ParseBoardList parses "all" or a comma-separated board list.
// An empty list selects no boards.
func ParseBoardList(s, defaultSite string) (bool, []model.BoardDescriptor, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "all") {
		return true, nil, nil
	}
	var boards []model.BoardDescriptor
	seen := make(map[model.BoardDescriptor]bool)
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		b, err := model.ParseBoard(part, defaultSite)
		if err != nil {
			return false, nil, err
		}
		if !seen[b] {
			seen[b] = true
			boards = append(boards, b)
		}
	}
	return false, boards, nil
}

// ParseColor parses #rrggbb (opaque) or #aarrggbb into an ARGB value.
func ParseColor(s string) (int, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 && len(hex) != 8 {
		return 0, fmt.Errorf("invalid color %q, use #rrggbb or #aarrggbb", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid color %q, use #rrggbb or #aarrggbb", s)
	}
	if len(hex) == 6 {
		v |= 0xFF000000
	}
	return int(v), nil
}

// ParseIDArg extracts a numeric ID from a command argument string.
func ParseIDArg(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("ID is required")
	}
	id, err := strconv.ParseInt(strings.Fields(s)[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ID %q", s)
	}
	return id, nil
}

// ParseEditArgs splits /editfilter arguments into the rule ID and the rest.
func ParseEditArgs(args string) (int64, string, error) {
	parts := strings.SplitN(strings.TrimSpace(args), " ", 2)
	if parts[0] == "" {
		return 0, "", fmt.Errorf("usage: /editfilter <id> [flags] [pattern]")
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid filter ID %q", parts[0])
	}
	rest := ""
	if len(parts) == 2 {
		rest = strings.TrimSpace(parts[1])
	}
	if rest == "" {
		return 0, "", fmt.Errorf("nothing to change, give flags or a new pattern")
	}
	return id, rest, nil
}

// ParseTestArgs extracts a rule ID and the sample text for /testfilter.
func ParseTestArgs(args string) (int64, string, error) {
	parts := strings.SplitN(strings.TrimSpace(args), " ", 2)
	if len(parts) < 2 {
		return 0, "", fmt.Errorf("usage: /testfilter <id> <text>")
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid filter ID %q", parts[0])
	}
	return id, strings.TrimSpace(parts[1]), nil
}

// ParseMoveArgs extracts a rule ID and its new 1-based position.
func ParseMoveArgs(args string) (int64, int, error) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("usage: /move <id> <position>")
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid filter ID %q", parts[0])
	}
	pos, err := strconv.Atoi(parts[1])
	if err != nil || pos < 1 {
		return 0, 0, fmt.Errorf("position must be a number starting at 1")
	}
	return id, pos, nil
}

// ParseBoardArgs extracts a board and its catalog feed URL for /addboard.
func ParseBoardArgs(args, defaultSite string) (model.BoardDescriptor, string, error) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return model.BoardDescriptor{}, "", fmt.Errorf("usage: /addboard <board> <rss_url>")
	}
	board, err := model.ParseBoard(parts[0], defaultSite)
	if err != nil {
		return model.BoardDescriptor{}, "", err
	}
	u, err := url.Parse(parts[1])
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return model.BoardDescriptor{}, "", fmt.Errorf("invalid feed URL %q", parts[1])
	}
	return board, u.String(), nil
}

// ParseIntervalArgs extracts a board ID and interval in minutes.
func ParseIntervalArgs(args string) (int64, int, error) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("usage: /interval <id> <minutes>")
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid board ID %q", parts[0])
	}
	mins, err := strconv.Atoi(parts[1])
	if err != nil || mins < 1 || mins > 1440 {
		return 0, 0, fmt.Errorf("interval must be between 1 and 1440 minutes")
	}
	return id, mins, nil
}
