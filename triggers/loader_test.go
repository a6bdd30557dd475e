package triggers

import (
	"os"
	"path/filepath"
	"testing"
)

func writeRuleFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadFileStampsProvenance(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "a.yaml", "- on: message\n  action: reply\n  text: hi\n- on: join\n  action: say\n  text: hello\n")

	rules, err := LoadFile(filepath.Join(dir, "a.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}
	if rules[0].index != 0 || rules[1].index != 1 {
		t.Fatalf("expected indexes 0,1, got %d,%d", rules[0].index, rules[1].index)
	}
	if rules[0].file == "" {
		t.Fatal("expected file provenance to be stamped")
	}
}

func TestLoadDirMergesInPathSortOrder(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "b.yml", "- on: message\n  action: reply\n  text: from-b\n")
	writeRuleFile(t, dir, "a.yml", "- on: message\n  action: reply\n  text: from-a\n")
	writeRuleFile(t, dir, "ignore.txt", "not a rule file")

	rules, err := LoadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 merged rules (ignoring the .txt file), got %d", len(rules))
	}
	if rules[0].Text != "from-a" || rules[1].Text != "from-b" {
		t.Fatalf("expected a.yml before b.yml, got %q then %q", rules[0].Text, rules[1].Text)
	}
}

func TestLoadDirMissingDirReturnsError(t *testing.T) {
	if _, err := LoadDir(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected an error for a nonexistent directory")
	}
}
