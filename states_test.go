package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseStates(t *testing.T) {
	for in, want := range map[string]string{
		"1,2,3":       "[1 2 3]",
		" 0, 4 ,8, ":  "[0 4 8]",
		"":            "[]",
		"255":         "[255]",
		"7,7,3,7,200": "[7 7 3 7 200]",
	} {
		got, err := parseStates(in)
		if err != nil {
			t.Errorf("parseStates(%q): %v", in, err)
			continue
		}
		if fmt.Sprint(got) != want {
			t.Errorf("parseStates(%q) = %v, want %s", in, got, want)
		}
	}
	if _, err := parseStates("1,two,3"); err == nil {
		t.Error("expected error for non-numeric state")
	}
}

func TestReadStates(t *testing.T) {
	got, err := readStates(strings.NewReader("states,0,1, 2,x,64\n99,100\n"))
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(got) != "[0 1 2 64]" {
		t.Errorf("readStates() = %v", got)
	}
	for _, in := range []string{"", "a,b,c\n1,2\n"} {
		if _, err := readStates(strings.NewReader(in)); err == nil {
			t.Errorf("readStates(%q) should fail", in)
		}
	}
}

func TestReadStatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phase.csv")
	if err := os.WriteFile(path, []byte("3,5,9\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := readStatesFile(path)
	if err != nil || fmt.Sprint(got) != "[3 5 9]" {
		t.Errorf("readStatesFile() = %v, %v", got, err)
	}
	if _, err := readStatesFile(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("expected error for missing file")
	}
}
