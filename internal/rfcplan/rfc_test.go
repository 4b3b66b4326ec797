package rfcplan

import (
	"context"
	"strings"
	"testing"
)

func testOpts(title, shortName string) CreateRFCOptions {
	return CreateRFCOptions{
		Title:     title,
		ShortName: shortName,
		Author:    "alice",
		Summary:   "a summary",
		Requirements: "req 1",
	}
}

func TestCreateRFCWritesMarkdownAndSidecar(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	rfc, err := store.CreateRFC(context.Background(), testOpts("Streaming Tool Calls", "streaming-tool-calls"))
	if err != nil {
		t.Fatalf("CreateRFC: %v", err)
	}
	if rfc.Sidecar.Status != StatusInProgress {
		t.Errorf("status = %q, want in_progress", rfc.Sidecar.Status)
	}
	if !strings.Contains(rfc.Markdown, "# RFC: Streaming Tool Calls") {
		t.Errorf("markdown missing title heading: %s", rfc.Markdown)
	}
	if !strings.HasPrefix(rfc.Sidecar.RFCID, "RFC-") {
		t.Errorf("rfc id = %q, want RFC- prefix", rfc.Sidecar.RFCID)
	}

	loaded, err := store.LoadRFC(rfc.Sidecar.RFCID)
	if err != nil {
		t.Fatalf("LoadRFC: %v", err)
	}
	if loaded.Markdown != rfc.Markdown {
		t.Error("loaded markdown does not match what was written")
	}
}

func TestCreateRFCAllocatesDistinctIDsForSameDay(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(dir)

	first, err := store.CreateRFC(context.Background(), testOpts("First", "first-rfc"))
	if err != nil {
		t.Fatalf("CreateRFC first: %v", err)
	}
	second, err := store.CreateRFC(context.Background(), testOpts("Second", "second-rfc"))
	if err != nil {
		t.Fatalf("CreateRFC second: %v", err)
	}
	if first.Sidecar.RFCID == second.Sidecar.RFCID {
		t.Errorf("expected distinct rfc ids, both got %q", first.Sidecar.RFCID)
	}
}

func TestCreateRFCDisambiguatesFilenameCollision(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(dir)

	first, err := store.CreateRFC(context.Background(), testOpts("Memory Budgets", "memory-budgets"))
	if err != nil {
		t.Fatalf("CreateRFC first: %v", err)
	}
	second, err := store.CreateRFC(context.Background(), testOpts("Memory Budgets Revisited", "memory-budgets"))
	if err != nil {
		t.Fatalf("CreateRFC second: %v", err)
	}
	if first.Sidecar.Filename == second.Sidecar.Filename {
		t.Errorf("expected distinct filenames, both got %q", first.Sidecar.Filename)
	}
	if !strings.Contains(second.Sidecar.Filename, "-2") {
		t.Errorf("expected disambiguated filename to contain -2, got %q", second.Sidecar.Filename)
	}
}

func TestCreateRFCRejectsBadShortName(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(dir)

	_, err := store.CreateRFC(context.Background(), testOpts("Bad", "Not Valid!"))
	if err == nil {
		t.Fatal("expected error for invalid short_name, got nil")
	}
}

func TestTransitionRFCMovesBetweenStatusFolders(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(dir)

	rfc, err := store.CreateRFC(context.Background(), testOpts("Archival Test", "archival-test"))
	if err != nil {
		t.Fatalf("CreateRFC: %v", err)
	}

	archived, err := store.TransitionRFC(context.Background(), rfc.Sidecar.RFCID, "archived")
	if err != nil {
		t.Fatalf("TransitionRFC: %v", err)
	}
	if archived.Sidecar.Status != StatusArchived {
		t.Errorf("status = %q, want archived", archived.Sidecar.Status)
	}
	if !strings.Contains(archived.Markdown, "**Status**: archived") {
		t.Errorf("markdown status line not rewritten: %s", archived.Markdown)
	}
	if len(archived.Sidecar.StatusHistory) != 2 {
		t.Errorf("status history length = %d, want 2", len(archived.Sidecar.StatusHistory))
	}

	loaded, err := store.LoadRFC(rfc.Sidecar.RFCID)
	if err != nil {
		t.Fatalf("LoadRFC after transition: %v", err)
	}
	if loaded.Sidecar.Status != StatusArchived {
		t.Errorf("reloaded status = %q, want archived", loaded.Sidecar.Status)
	}
}

func TestTransitionRFCAcceptsNewAsAliasOfInProgress(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(dir)

	rfc, err := store.CreateRFC(context.Background(), testOpts("Alias Test", "alias-test"))
	if err != nil {
		t.Fatalf("CreateRFC: %v", err)
	}
	result, err := store.TransitionRFC(context.Background(), rfc.Sidecar.RFCID, "new")
	if err != nil {
		t.Fatalf("TransitionRFC with new: %v", err)
	}
	if result.Sidecar.Status != StatusInProgress {
		t.Errorf("status = %q, want in_progress", result.Sidecar.Status)
	}
}

func TestTransitionRFCToSameStatusIsNoop(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(dir)

	rfc, _ := store.CreateRFC(context.Background(), testOpts("Noop Test", "noop-test"))
	result, err := store.TransitionRFC(context.Background(), rfc.Sidecar.RFCID, "in_progress")
	if err != nil {
		t.Fatalf("TransitionRFC: %v", err)
	}
	if len(result.Sidecar.StatusHistory) != 1 {
		t.Errorf("status history should be unchanged on no-op, got %d entries", len(result.Sidecar.StatusHistory))
	}
}

func TestRFCHashChangesWithContent(t *testing.T) {
	h1 := RFCHash("# RFC: A\n")
	h2 := RFCHash("# RFC: B\n")
	if h1 == h2 {
		t.Error("expected different hashes for different markdown")
	}
	if RFCHash("same") != RFCHash("same") {
		t.Error("expected identical hashes for identical markdown")
	}
}
