package stap

import (
	"testing"

	"tracesig/pkg/models"
)

func TestParseArgsScalarsAndStrings(t *testing.T) {
	args := ParseArgs(`"/etc/passwd", O_RDONLY, 438`)
	if len(args) != 3 {
		t.Fatalf("expected 3 args, got %d: %+v", len(args), args)
	}
	if args["p0"] != "/etc/passwd" {
		t.Fatalf("unexpected p0: %v", args["p0"])
	}
	if args["p1"] != "O_RDONLY" {
		t.Fatalf("unexpected p1: %v", args["p1"])
	}
	if args["p2"] != "438" {
		t.Fatalf("unexpected p2: %v", args["p2"])
	}
}

func TestParseArgsEmptyBlob(t *testing.T) {
	if args := ParseArgs(""); len(args) != 0 {
		t.Fatalf("expected no args, got %+v", args)
	}
}

func TestParseArgsQuotedArray(t *testing.T) {
	args := ParseArgs(`"/bin/sh", ["sh", "-c", "id"], 0`)
	list, ok := args["p1"].(models.List)
	if !ok {
		t.Fatalf("expected list for p1, got %T", args["p1"])
	}
	if len(list) != 3 || list[0] != "sh" || list[1] != "-c" || list[2] != "id" {
		t.Fatalf("unexpected argv list: %+v", list)
	}
	if args["p2"] != "0" {
		t.Fatalf("expected trailing arg after array, got %v", args["p2"])
	}
}

func TestParseArgsArrayOfStructs(t *testing.T) {
	args := ParseArgs(`[{fd=4, events=POLLIN}, {fd=5, events=POLLOUT}], 2, -1`)
	list, ok := args["p0"].(models.List)
	if !ok {
		t.Fatalf("expected list for p0, got %T", args["p0"])
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(list))
	}
	st, ok := list[0].(models.Struct)
	if !ok {
		t.Fatalf("expected struct element, got %T", list[0])
	}
	if v, ok := st.Get("fd"); !ok || v != "4" {
		t.Fatalf("unexpected fd field: %v", v)
	}
	if v, ok := st.Get("events"); !ok || v != "POLLIN" {
		t.Fatalf("unexpected events field: %v", v)
	}
	if args["p1"] != "2" || args["p2"] != "-1" {
		t.Fatalf("unexpected trailing args: %+v", args)
	}
}

func TestParseArgsUnnamedStructDecodesAsList(t *testing.T) {
	args := ParseArgs(`3, {AF_INET, 53, 8.8.8.8}, 16`)
	list, ok := args["p1"].(models.List)
	if !ok {
		t.Fatalf("expected list for unnamed struct, got %T", args["p1"])
	}
	if len(list) != 3 || list[2] != "8.8.8.8" {
		t.Fatalf("unexpected struct body: %+v", list)
	}
}

func TestParseArgsCommentPrefixedBracketIsOpaque(t *testing.T) {
	args := ParseArgs(`[/*18 vars*/]`)
	if args["p0"] != "[/*18 vars*/]" {
		t.Fatalf("expected opaque scalar, got %v (%T)", args["p0"], args["p0"])
	}
}

func TestUnescape(t *testing.T) {
	if got := unescape(`a\tb\nc`); got != "a\tb\nc" {
		t.Fatalf("unexpected control escapes: %q", got)
	}
	if got := unescape(`\x41\102`); got != "AB" {
		t.Fatalf("unexpected numeric escapes: %q", got)
	}
	if got := unescape(`\"quoted\"`); got != `"quoted"` {
		t.Fatalf("unexpected quote escape: %q", got)
	}
	if got := unescape(`\q`); got != `\q` {
		t.Fatalf("unknown escape should pass through: %q", got)
	}
	if got := unescape("plain"); got != "plain" {
		t.Fatalf("escape-free input must be unchanged: %q", got)
	}
}

func TestFormatArgRoundTripsScalars(t *testing.T) {
	for _, raw := range []string{"O_RDONLY", "438", "-1", "0x7fff"} {
		decoded := parseArg(raw)
		if got := FormatArg(decoded); got != raw {
			t.Fatalf("scalar %q did not round-trip: %q", raw, got)
		}
	}
}

func TestFormatArgNested(t *testing.T) {
	v := models.List{"a", models.Struct{{Name: "fd", Value: "3"}}, "b"}
	if got := FormatArg(v); got != "[a, {fd=3}, b]" {
		t.Fatalf("unexpected rendering: %q", got)
	}
}
