// Package model defines the domain types used across the application.
package model

import (
	"fmt"
	"strings"
	"time"
)

// FilterType is a bitset of post fields a filter rule matches against.
type FilterType int

// Supported filter types. The declaration order is the order used by Flags.
const (
	TypeTripcode    FilterType = 1 << 0
	TypeName        FilterType = 1 << 1
	TypeComment     FilterType = 1 << 2
	TypeID          FilterType = 1 << 3
	TypeSubject     FilterType = 1 << 4
	TypeFilename    FilterType = 1 << 5
	TypeCountryCode FilterType = 1 << 6
	TypeImageHash   FilterType = 1 << 7
)

var allTypes = []FilterType{
	TypeTripcode,
	TypeName,
	TypeComment,
	TypeID,
	TypeSubject,
	TypeFilename,
	TypeCountryCode,
	TypeImageHash,
}

var typeNames = map[FilterType]string{
	TypeTripcode:    "tripcode",
	TypeName:        "name",
	TypeComment:     "comment",
	TypeID:          "id",
	TypeSubject:     "subject",
	TypeFilename:    "filename",
	TypeCountryCode: "country",
	TypeImageHash:   "hash",
}

// Has reports whether every flag of f is set in t.
func (t FilterType) Has(f FilterType) bool {
	return t&f == f
}

// Flags returns the individual flags set in t in declaration order.
func (t FilterType) Flags() []FilterType {
	var out []FilterType
	for _, f := range allTypes {
		if t&f != 0 {
			out = append(out, f)
		}
	}
	return out
}

// Name returns the user-facing name of a single flag.
func (t FilterType) Name() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// String renders t as a comma-separated list of flag names.
func (t FilterType) String() string {
	flags := t.Flags()
	if len(flags) == 0 {
		return "none"
	}
	names := make([]string, len(flags))
	for i, f := range flags {
		names[i] = f.Name()
	}
	return strings.Join(names, ",")
}

// ParseFilterType parses a comma-separated list of flag names. "none" and
// empty entries select nothing.
func ParseFilterType(s string) (FilterType, error) {
	var t FilterType
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" || part == "none" {
			continue
		}
		found := false
		for f, name := range typeNames {
			if name == part {
				t |= f
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown filter type %q", part)
		}
	}
	return t, nil
}

// FilterAction defines what happens to a post matched by a filter rule.
type FilterAction int

// Supported filter actions.
const (
	ActionHide   FilterAction = 0
	ActionColor  FilterAction = 1
	ActionRemove FilterAction = 2
	ActionWatch  FilterAction = 3
	ActionAvoid  FilterAction = 4
)

var actionNames = map[FilterAction]string{
	ActionHide:   "hide",
	ActionColor:  "color",
	ActionRemove: "remove",
	ActionWatch:  "watch",
	ActionAvoid:  "avoid",
}

// IsWatch reports whether the action adds matched threads to the watch list.
func (a FilterAction) IsWatch() bool {
	return a == ActionWatch
}

func (a FilterAction) String() string {
	if n, ok := actionNames[a]; ok {
		return n
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// ParseFilterAction parses an action name.
func ParseFilterAction(s string) (FilterAction, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for a, name := range actionNames {
		if name == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown filter action %q", s)
}

// BoardDescriptor identifies a board on a site, e.g. 4chan/g.
type BoardDescriptor struct {
	Site string
	Code string
}

func (b BoardDescriptor) String() string {
	return b.Site + "/" + b.Code
}

// ParseBoard parses "site/code" or a bare "code" using defaultSite.
func ParseBoard(s, defaultSite string) (BoardDescriptor, error) {
	s = strings.Trim(strings.TrimSpace(s), "/")
	if s == "" {
		return BoardDescriptor{}, fmt.Errorf("board is empty")
	}
	site, code, found := strings.Cut(s, "/")
	if !found {
		site, code = defaultSite, s
	}
	site = strings.ToLower(strings.TrimSpace(site))
	code = strings.TrimSpace(code)
	if site == "" || code == "" || strings.Contains(code, "/") {
		return BoardDescriptor{}, fmt.Errorf("invalid board %q, use site/code", s)
	}
	return BoardDescriptor{Site: site, Code: code}, nil
}

// FilterRule is a user-defined pattern and action applied to posts.
// ID <= 0 means the rule has not been persisted yet.
type FilterRule struct {
	ID             int64
	ChatID         int64
	Enabled        bool
	Position       int
	Pattern        string
	Type           FilterType
	Action         FilterAction
	Color          int
	Boards         []BoardDescriptor
	AllBoards      bool
	ApplyToReplies bool
	OnlyOnOP       bool
	ApplyToSaved   bool
	CreatedAt      time.Time
}

// AppliesToBoard reports whether the rule is scoped to the given board.
func (r FilterRule) AppliesToBoard(b BoardDescriptor) bool {
	if r.AllBoards {
		return true
	}
	for _, rb := range r.Boards {
		if rb == b {
			return true
		}
	}
	return false
}

// SameBoards reports whether two board lists contain the same set of boards.
// Repeated boards count once.
func SameBoards(a, b []BoardDescriptor) bool {
	sa, sb := boardSet(a), boardSet(b)
	if len(sa) != len(sb) {
		return false
	}
	for x := range sb {
		if _, ok := sa[x]; !ok {
			return false
		}
	}
	return true
}

func boardSet(boards []BoardDescriptor) map[BoardDescriptor]struct{} {
	set := make(map[BoardDescriptor]struct{}, len(boards))
	for _, x := range boards {
		set[x] = struct{}{}
	}
	return set
}

// BoardSubscription is a board catalog polled for watch rule matches.
type BoardSubscription struct {
	ID              int64
	ChatID          int64
	Board           BoardDescriptor
	URL             string
	IntervalMinutes int
	IsActive        bool
	LastCheckAt     *time.Time
	CreatedAt       time.Time
}

// PostImage describes a file attached to a post.
type PostImage struct {
	ServerFilename string
	Filename       string
	Extension      string
	ImageURL       string
	ThumbnailURL   string
	Width          int
	Height         int
	Size           int64
	Spoiler        bool
	FileHash       string
}

// Post is a single post of a thread, as seen by the filter engine.
type Post struct {
	Board       BoardDescriptor
	No          int64
	ThreadNo    int64
	IsOP        bool
	IsSaved     bool
	Name        string
	Tripcode    string
	PosterID    string
	CountryCode string
	Subject     string
	Comment     string
	Link        string
	Images      []PostImage
	RepliesTo   []int64
}

// WatchedThread is a thread added to a chat's watch list by a watch rule.
type WatchedThread struct {
	ID        int64
	ChatID    int64
	Board     BoardDescriptor
	ThreadNo  int64
	Subject   string
	Link      string
	RuleID    int64
	CreatedAt time.Time
}
