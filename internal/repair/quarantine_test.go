package repair

import (
	"strings"
	"testing"
)

func TestNewActionIDShape(t *testing.T) {
	id := NewActionID("quarantine")
	parts := strings.Split(id, "_")
	if len(parts) != 4 {
		t.Fatalf("id = %s", id)
	}
	if len(parts[0]) != 8 || len(parts[1]) != 6 {
		t.Fatalf("timestamp part malformed: %s", id)
	}
	if parts[2] != "quarantine" || len(parts[3]) != 6 {
		t.Fatalf("id = %s", id)
	}
	if id == NewActionID("quarantine") {
		t.Fatal("two action ids collided")
	}
}

func TestRelPath(t *testing.T) {
	cases := []struct{ path, root, want string }{
		{"/site/wp-content/uploads/x.php", "/site", "wp-content/uploads/x.php"},
		{"/site/", "/site", "."},
		{"/other/x.php", "/site", "other/x.php"},
		{"/site/a.php", "/site/", "a.php"},
	}
	for _, c := range cases {
		if got := RelPath(c.path, c.root); got != c.want {
			t.Errorf("RelPath(%q, %q) = %q, want %q", c.path, c.root, got, c.want)
		}
	}
}

func TestQuarantineNameRoundTrip(t *testing.T) {
	actionID := NewActionID("quarantine")
	name := QuarantineName(actionID, KindFile, "/site/wp-content/uploads/shell.php", "/site")

	gotID, kind, key, base, ok := ParseQuarantineName(name)
	if !ok {
		t.Fatalf("name %q did not parse", name)
	}
	if gotID != actionID || kind != KindFile || base != "shell.php" {
		t.Fatalf("parsed %s %s %s from %q", gotID, kind, base, name)
	}
	if len(key) != 10 {
		t.Fatalf("key = %q", key)
	}

	// Same relative path yields the same key, a different one does not.
	again := QuarantineName(actionID, KindFile, "/site/wp-content/uploads/shell.php", "/site")
	if again != name {
		t.Fatalf("name not deterministic: %q vs %q", name, again)
	}
	other := QuarantineName(actionID, KindFile, "/site/index.php", "/site")
	if _, _, otherKey, _, _ := ParseQuarantineName(other); otherKey == key {
		t.Fatal("distinct paths produced the same key")
	}
}

func TestParseQuarantineNameRejectsGarbage(t *testing.T) {
	for _, name := range []string{
		"plain.php",
		"a__b__c",
		"id__NOPE__0123456789__x.php",
	} {
		if _, _, _, _, ok := ParseQuarantineName(name); ok {
			t.Errorf("%q parsed but should not", name)
		}
	}
}
