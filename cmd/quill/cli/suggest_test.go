// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"abc", "abc", 0},
		{"abc", "abd", 1},
		{"abc", "ab", 1},
		{"ab", "abc", 1},
		{"abc", "bac", 2},
		{"kitten", "sitting", 3},
		{"promote", "promte", 1},
		{"verify", "verfiy", 2},
	}
	for _, test := range tests {
		if got := levenshtein(test.a, test.b); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
		if got := levenshtein(test.b, test.a); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d (reversed)", test.b, test.a, got, test.want)
		}
	}
}

func TestSuggestCommand(t *testing.T) {
	commands := []*Command{{Name: "promote"}, {Name: "verify"}, {Name: "history"}, {Name: "bundle"}}
	tests := map[string]string{
		"promot": "promote",
		"verfy":  "verify",
		"hist":   "history",
		"bundel": "bundle",
		"zzz":    "",
	}
	for input, want := range tests {
		if got := suggestCommand(input, commands); got != want {
			t.Errorf("suggestCommand(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestSuggestFlag(t *testing.T) {
	newFlagSet := func() *pflag.FlagSet {
		flagSet := pflag.NewFlagSet("verify", pflag.ContinueOnError)
		flagSet.Bool("json", false, "")
		flagSet.StringP("output", "o", "", "")
		flagSet.String("schema-version", "", "")
		return flagSet
	}
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"--jsno"}, "--json"},
		{[]string{"--json", "--schema-versoin=1.0"}, "--schema-version"},
		{[]string{"-o", "x", "--outptu"}, "--output"},
		{[]string{"--completely-unrelated"}, ""},
		{[]string{"--", "--jsno"}, ""},
	}
	for _, test := range tests {
		if got := suggestFlag(test.args, newFlagSet()); got != test.want {
			t.Errorf("suggestFlag(%q) = %q, want %q", test.args, got, test.want)
		}
	}
}
