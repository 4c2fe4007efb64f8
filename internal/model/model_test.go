package model

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

var (
	boardG = BoardDescriptor{Site: "4chan", Code: "g"}
	boardV = BoardDescriptor{Site: "4chan", Code: "v"}
)

func TestFilterTypeString(t *testing.T) {
	tests := []struct {
		typ  FilterType
		want string
	}{
		{0, "none"},
		{TypeComment, "comment"},
		{TypeSubject | TypeComment, "comment,subject"},
		{TypeImageHash | TypeTripcode | TypeCountryCode, "tripcode,country,hash"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.typ.String()); diff != "" {
				t.Errorf("String() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseFilterType(t *testing.T) {
	tests := []struct {
		in      string
		want    FilterType
		wantErr bool
	}{
		{in: "comment", want: TypeComment},
		{in: " Subject , COMMENT ", want: TypeSubject | TypeComment},
		{in: "name,name", want: TypeName},
		{in: "filename,hash,country,id", want: TypeFilename | TypeImageHash | TypeCountryCode | TypeID},
		{in: "none", want: 0},
		{in: "", want: 0},
		{in: "body", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFilterType(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseFilterType() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFilterTypeFlags(t *testing.T) {
	got := (TypeImageHash | TypeName | TypeSubject).Flags()
	if diff := cmp.Diff([]FilterType{TypeName, TypeSubject, TypeImageHash}, got); diff != "" {
		t.Errorf("Flags() mismatch (-want +got):\n%s", diff)
	}
	if !(TypeName | TypeSubject).Has(TypeSubject) {
		t.Error("Has(TypeSubject) = false")
	}
	if TypeName.Has(TypeName | TypeSubject) {
		t.Error("Has with a missing flag = true")
	}
}

func TestParseFilterAction(t *testing.T) {
	for a, name := range actionNames {
		got, err := ParseFilterAction(" " + name + " ")
		if err != nil {
			t.Fatalf("ParseFilterAction(%q): %v", name, err)
		}
		if diff := cmp.Diff(a, got); diff != "" {
			t.Errorf("ParseFilterAction(%q) mismatch (-want +got):\n%s", name, diff)
		}
	}
	if _, err := ParseFilterAction("nuke"); err == nil {
		t.Error("expected error for unknown action")
	}
	if !ActionWatch.IsWatch() || ActionHide.IsWatch() {
		t.Error("IsWatch reports wrong actions")
	}
	if diff := cmp.Diff("action(9)", FilterAction(9).String()); diff != "" {
		t.Errorf("unknown action String() (-want +got):\n%s", diff)
	}
}

func TestParseBoard(t *testing.T) {
	tests := []struct {
		in      string
		want    BoardDescriptor
		wantErr bool
	}{
		{in: "g", want: boardG},
		{in: "/g/", want: boardG},
		{in: "4chan/g", want: boardG},
		{in: "Lainchan/tech", want: BoardDescriptor{Site: "lainchan", Code: "tech"}},
		{in: "", wantErr: true},
		{in: "/", wantErr: true},
		{in: "4chan/g/x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBoard(tt.in, "4chan")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseBoard() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAppliesToBoard(t *testing.T) {
	tests := []struct {
		name string
		rule FilterRule
		want bool
	}{
		{name: "all boards", rule: FilterRule{AllBoards: true}, want: true},
		{name: "listed", rule: FilterRule{Boards: []BoardDescriptor{boardV, boardG}}, want: true},
		{name: "not listed", rule: FilterRule{Boards: []BoardDescriptor{boardV}}, want: false},
		{name: "none", rule: FilterRule{}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.rule.AppliesToBoard(boardG)); diff != "" {
				t.Errorf("AppliesToBoard() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSameBoards(t *testing.T) {
	tests := []struct {
		name string
		a, b []BoardDescriptor
		want bool
	}{
		{name: "both empty", want: true},
		{name: "nil and empty", a: nil, b: []BoardDescriptor{}, want: true},
		{name: "order ignored", a: []BoardDescriptor{boardG, boardV}, b: []BoardDescriptor{boardV, boardG}, want: true},
		{name: "different", a: []BoardDescriptor{boardG}, b: []BoardDescriptor{boardV}, want: false},
		{name: "different length", a: []BoardDescriptor{boardG}, b: []BoardDescriptor{boardG, boardV}, want: false},
		{name: "repeated board against pair", a: []BoardDescriptor{boardG, boardV}, b: []BoardDescriptor{boardG, boardG}, want: false},
		{name: "pair against repeated board", a: []BoardDescriptor{boardG, boardG}, b: []BoardDescriptor{boardG, boardV}, want: false},
		{name: "repeats collapse", a: []BoardDescriptor{boardG, boardG, boardV}, b: []BoardDescriptor{boardV, boardG}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, SameBoards(tt.a, tt.b)); diff != "" {
				t.Errorf("SameBoards() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
