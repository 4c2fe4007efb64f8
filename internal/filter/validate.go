package filter

import (
	"errors"
	"fmt"
	"iter"
	"regexp"

	"chanwatch_bot/internal/model"
)

// Compiler compiles a filter pattern into a regular expression.
type Compiler interface {
	Compile(pattern string, caseInsensitive bool) (*regexp.Regexp, error)
}

// Matcher tests a rule against a piece of text.
type Matcher interface {
	MatchesText(rule model.FilterRule, text string) bool
}

// ValidationCode identifies the outcome of Validate.
type ValidationCode int

// Validation outcomes, in the order the checks run.
const (
	ValidationSuccess ValidationCode = iota
	ValidationEmptyPattern
	ValidationUninterpretablePattern
	ValidationDuplicateFilter
	ValidationDisallowedTypeForWatch
	ValidationNoTypeSelected
	ValidationNoBoardsSelected
)

// Sentinel errors returned by ValidationResult.Err.
var (
	ErrEmptyPattern           = errors.New("filter pattern is empty")
	ErrUninterpretablePattern = errors.New("cannot compile filter pattern")
	ErrDuplicateFilter        = errors.New("identical filter detected")
	ErrDisallowedTypeForWatch = errors.New("filter type not allowed with watch filters")
	ErrNoTypeSelected         = errors.New("no filter type selected")
	ErrNoBoardsSelected       = errors.New("no boards selected")
)

// ValidationResult is the structured outcome of Validate.
type ValidationResult struct {
	Code ValidationCode
	// Position is the 1-based position of the duplicate rule.
	Position int
	// TypeName names the type rejected for a watch rule.
	TypeName string
}

// OK reports whether validation succeeded.
func (r ValidationResult) OK() bool {
	return r.Code == ValidationSuccess
}

// Err returns nil on success, otherwise an error wrapping one of the
// sentinel errors.
func (r ValidationResult) Err() error {
	switch r.Code {
	case ValidationSuccess:
		return nil
	case ValidationEmptyPattern:
		return ErrEmptyPattern
	case ValidationUninterpretablePattern:
		return ErrUninterpretablePattern
	case ValidationDuplicateFilter:
		return fmt.Errorf("%w (position: %d)", ErrDuplicateFilter, r.Position)
	case ValidationDisallowedTypeForWatch:
		return fmt.Errorf("%w: %s", ErrDisallowedTypeForWatch, r.TypeName)
	case ValidationNoTypeSelected:
		return ErrNoTypeSelected
	case ValidationNoBoardsSelected:
		return ErrNoBoardsSelected
	}
	return fmt.Errorf("unknown validation code %d", r.Code)
}

// Validate checks a candidate rule before it is persisted. Checks run in a
// fixed order and stop at the first failure:
//
//  1. the pattern must not be empty;
//  2. the pattern must compile;
//  3. a new rule (ID <= 0) must not duplicate any rule in existing;
//  4. a watch rule may only match on comment and subject;
//  5. at least one type must be selected;
//  6. the rule must apply to all boards or to at least one board.
//
// existing is consumed in order and only up to the first duplicate.
func Validate(c Compiler, candidate model.FilterRule, existing iter.Seq[model.FilterRule]) ValidationResult {
	if candidate.Pattern == "" {
		return ValidationResult{Code: ValidationEmptyPattern}
	}

	if _, err := c.Compile(candidate.Pattern, caseInsensitiveFor(candidate.Type)); err != nil {
		return ValidationResult{Code: ValidationUninterpretablePattern}
	}

	// Edits of persisted rules are never duplicates.
	if candidate.ID <= 0 && existing != nil {
		if pos := duplicatePosition(candidate, existing); pos > 0 {
			return ValidationResult{Code: ValidationDuplicateFilter, Position: pos}
		}
	}

	if candidate.Action.IsWatch() {
		for _, t := range candidate.Type.Flags() {
			if t != model.TypeComment && t != model.TypeSubject {
				return ValidationResult{Code: ValidationDisallowedTypeForWatch, TypeName: t.Name()}
			}
		}
	}

	if candidate.Type == 0 {
		return ValidationResult{Code: ValidationNoTypeSelected}
	}

	if !candidate.AllBoards && len(candidate.Boards) == 0 {
		return ValidationResult{Code: ValidationNoBoardsSelected}
	}

	return ValidationResult{Code: ValidationSuccess}
}

// duplicatePosition returns the 1-based position of the first rule in
// existing identical to candidate, or 0 when there is none.
func duplicatePosition(candidate model.FilterRule, existing iter.Seq[model.FilterRule]) int {
	pos := 0
	for rule := range existing {
		pos++
		if sameRule(candidate, rule) {
			return pos
		}
	}
	return 0
}

func sameRule(a, b model.FilterRule) bool {
	if a.Type != b.Type || a.Action != b.Action {
		return false
	}
	if a.Action == model.ActionColor && a.Color != b.Color {
		return false
	}
	if a.Pattern != b.Pattern {
		return false
	}
	if !model.SameBoards(a.Boards, b.Boards) {
		return false
	}
	return a.ApplyToReplies == b.ApplyToReplies &&
		a.OnlyOnOP == b.OnlyOnOP &&
		a.ApplyToSaved == b.ApplyToSaved
}

// MatchResult is the outcome of MatchesSample.
type MatchResult int

// Sample match outcomes.
const (
	MatchRegexEmpty MatchResult = iota
	MatchTestTextEmpty
	MatchMatches
	MatchDoesNotMatch
)

func (r MatchResult) String() string {
	switch r {
	case MatchRegexEmpty:
		return "pattern is empty"
	case MatchTestTextEmpty:
		return "test text is empty"
	case MatchMatches:
		return "matches"
	case MatchDoesNotMatch:
		return "does not match"
	}
	return fmt.Sprintf("MatchResult(%d)", int(r))
}

// MatchesSample tests candidate against sampleText for interactive feedback.
// pattern is the pattern as currently typed; it is only checked for
// emptiness, matching uses the candidate's own pattern and type.
func MatchesSample(m Matcher, candidate model.FilterRule, sampleText, pattern string) MatchResult {
	if pattern == "" {
		return MatchRegexEmpty
	}
	if sampleText == "" {
		return MatchTestTextEmpty
	}
	if m.MatchesText(candidate, sampleText) {
		return MatchMatches
	}
	return MatchDoesNotMatch
}
