package store

import (
	"reflect"
	"testing"
)

func TestPendingOfSkipsAppliedAndKeepsOrder(t *testing.T) {
	files := []string{
		"0001_initial.up.sql",
		"0002_comments.up.sql",
		"0003_fts.up.sql",
	}
	applied := map[string]bool{"0001_initial.up.sql": true, "0003_fts.up.sql": true}

	got := pendingOf(files, applied)
	want := []string{"0002_comments.up.sql"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("pending = %v, want %v", got, want)
	}
}

func TestPendingOfEmptyLedgerRunsEverything(t *testing.T) {
	files := []string{"0001_initial.up.sql", "0002_comments.up.sql"}

	got := pendingOf(files, map[string]bool{})
	if !reflect.DeepEqual(got, files) {
		t.Fatalf("pending = %v, want %v", got, files)
	}
}
