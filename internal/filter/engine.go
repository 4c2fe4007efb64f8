// Package filter implements the post matching engine and filter rule validation.
package filter

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"chanwatch_bot/internal/model"
)

const maxCachedPatterns = 1024

var (
	// /body/flags selects raw regular expression mode.
	regexSyntax = regexp.MustCompile(`^/(.*)/([im]*)$`)
	metaChars   = regexp.MustCompile(`[.^$?+|\[\](){}\\]`)
)

const (
	wordStart = `(?:^|[^\p{L}\p{N}_])`
	wordEnd   = `(?:$|[^\p{L}\p{N}_])`
)

// Engine compiles filter patterns and matches them against posts.
// It is safe for concurrent use.
type Engine struct {
	mu    sync.RWMutex
	cache map[string]*regexp.Regexp
}

// NewEngine creates an Engine with an empty pattern cache.
func NewEngine() *Engine {
	return &Engine{cache: make(map[string]*regexp.Regexp)}
}

// Compile turns a user pattern into a regular expression.
//
// Three syntaxes are understood:
//   - /regex/flags is used as-is, flags i (case-insensitive) and m (multi-line);
//   - "exact phrase" matches the phrase literally;
//   - anything else is a space-separated list of words, any of which must
//     appear as a whole word, case-insensitively. A * inside a word matches
//     any run of characters.
func (e *Engine) Compile(pattern string, caseInsensitive bool) (*regexp.Regexp, error) {
	key := "s:" + pattern
	if caseInsensitive {
		key = "i:" + pattern
	}

	e.mu.RLock()
	re, ok := e.cache[key]
	e.mu.RUnlock()
	if ok {
		return re, nil
	}

	expr, err := translatePattern(pattern, caseInsensitive)
	if err != nil {
		return nil, err
	}
	re, err = regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile pattern: %w", err)
	}

	e.mu.Lock()
	if len(e.cache) >= maxCachedPatterns {
		e.cache = make(map[string]*regexp.Regexp)
	}
	e.cache[key] = re
	e.mu.Unlock()
	return re, nil
}

func translatePattern(raw string, caseInsensitive bool) (string, error) {
	flags := ""
	if caseInsensitive {
		flags = "i"
	}

	var body string
	switch m := regexSyntax.FindStringSubmatch(raw); {
	case m != nil:
		body = m[1]
		if strings.Contains(m[2], "i") && !caseInsensitive {
			flags += "i"
		}
		if strings.Contains(m[2], "m") {
			flags += "m"
		}
	case len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"':
		body = escapePattern(raw[1 : len(raw)-1])
	default:
		words := strings.Fields(raw)
		if len(words) == 0 {
			return "", fmt.Errorf("pattern has no words")
		}
		escaped := make([]string, len(words))
		for i, w := range words {
			escaped[i] = escapePattern(w)
		}
		body = wordStart + "(?:" + strings.Join(escaped, "|") + ")" + wordEnd
		if !caseInsensitive {
			flags += "i"
		}
	}

	if flags != "" {
		body = "(?" + flags + ")" + body
	}
	return body, nil
}

func escapePattern(s string) string {
	s = metaChars.ReplaceAllString(s, `\$0`)
	return strings.ReplaceAll(s, "*", ".*")
}

func caseInsensitiveFor(t model.FilterType) bool {
	return t&model.TypeCountryCode != 0
}

// MatchesText reports whether the rule's pattern matches text, compiling it
// the way the rule's type requires. Invalid patterns never match.
func (e *Engine) MatchesText(rule model.FilterRule, text string) bool {
	re, err := e.Compile(rule.Pattern, caseInsensitiveFor(rule.Type))
	if err != nil {
		return false
	}
	return re.MatchString(text)
}

// MatchPost reports whether an enabled rule matches any of the post fields
// selected by its type.
func (e *Engine) MatchPost(rule model.FilterRule, post model.Post) bool {
	if !rule.Enabled || rule.Pattern == "" {
		return false
	}
	if !rule.AppliesToBoard(post.Board) {
		return false
	}
	if rule.OnlyOnOP && !post.IsOP {
		return false
	}
	if post.IsSaved && !rule.ApplyToSaved {
		return false
	}

	re, err := e.Compile(rule.Pattern, caseInsensitiveFor(rule.Type))
	if err != nil {
		return false
	}

	for _, f := range rule.Type.Flags() {
		for _, text := range fieldTexts(post, f) {
			if text != "" && re.MatchString(text) {
				return true
			}
		}
	}
	return false
}

func fieldTexts(post model.Post, f model.FilterType) []string {
	switch f {
	case model.TypeTripcode:
		return []string{post.Tripcode}
	case model.TypeName:
		return []string{post.Name}
	case model.TypeComment:
		return []string{post.Comment}
	case model.TypeID:
		return []string{post.PosterID}
	case model.TypeSubject:
		return []string{post.Subject}
	case model.TypeCountryCode:
		return []string{post.CountryCode}
	case model.TypeFilename:
		out := make([]string, 0, len(post.Images))
		for _, img := range post.Images {
			name := img.Filename
			if img.Extension != "" {
				name += "." + img.Extension
			}
			out = append(out, name)
		}
		return out
	case model.TypeImageHash:
		out := make([]string, 0, len(post.Images))
		for _, img := range post.Images {
			out = append(out, img.FileHash)
		}
		return out
	}
	return nil
}

// Decision is the outcome of applying a rule set to one post.
type Decision struct {
	Post model.Post
	Rule model.FilterRule
	// Inherited is set when the decision was propagated from a quoted post.
	Inherited bool
}

// Apply runs rules over posts in order and returns a decision for every
// matched post. For each post the first matching rule wins. When that rule
// has ApplyToReplies set, posts replying to the matched post get the same
// decision.
func (e *Engine) Apply(posts []model.Post, rules []model.FilterRule) []Decision {
	var decisions []Decision
	propagating := make(map[int64]model.FilterRule)

	for _, post := range posts {
		matched := false
		for _, rule := range rules {
			if e.MatchPost(rule, post) {
				decisions = append(decisions, Decision{Post: post, Rule: rule})
				if rule.ApplyToReplies {
					propagating[post.No] = rule
				}
				matched = true
				break
			}
		}
		if matched {
			continue
		}

		for _, no := range post.RepliesTo {
			rule, ok := propagating[no]
			if !ok {
				continue
			}
			decisions = append(decisions, Decision{Post: post, Rule: rule, Inherited: true})
			propagating[post.No] = rule
			break
		}
	}
	return decisions
}

// WatchRules returns the enabled watch rules of rules, keeping their order.
func WatchRules(rules []model.FilterRule) []model.FilterRule {
	var out []model.FilterRule
	for _, r := range rules {
		if r.Enabled && r.Action.IsWatch() {
			out = append(out, r)
		}
	}
	return out
}
