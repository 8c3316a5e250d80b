package vna

import (
	"errors"
	"testing"
)

func TestResolve(t *testing.T) {
	axis := Axis{10, 11, 12, 13, 14}
	tests := []struct {
		desc      string
		w         Window
		wantStart int
		wantStop  int
		wantErr   bool
	}{
		{desc: "end clamps below overshoot", w: Window{11, 13.5}, wantStart: 1, wantStop: 3},
		{desc: "full axis", w: Window{10, 14}, wantStart: 0, wantStop: 4},
		{desc: "start rounds up", w: Window{10.2, 12}, wantStart: 1, wantStop: 2},
		{desc: "single point", w: Window{12, 12}, wantStart: 2, wantStop: 2},
		{desc: "no point inside", w: Window{11.5, 11.7}, wantErr: true},
		{desc: "start below sweep", w: Window{9.9, 12}, wantErr: true},
		{desc: "end above sweep", w: Window{11, 14.1}, wantErr: true},
		{desc: "reversed", w: Window{13, 11}, wantErr: true},
	}
	for _, tc := range tests {
		start, stop, err := Resolve(axis, tc.w)
		if tc.wantErr {
			if !errors.Is(err, ErrWindowOutOfRange) {
				t.Errorf("%s: expected ErrWindowOutOfRange, got %v", tc.desc, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error %v", tc.desc, err)
			continue
		}
		if start != tc.wantStart || stop != tc.wantStop {
			t.Errorf("%s: expected (%d, %d), got (%d, %d)", tc.desc, tc.wantStart, tc.wantStop, start, stop)
		}
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	axis := Axis{10, 10.25, 10.5, 10.75, 11}
	w := Window{10.1, 10.8}
	s1, e1, err := Resolve(axis, w)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	s2, e2, err := Resolve(axis, w)
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if s1 != s2 || e1 != e2 {
		t.Fatalf("resolve not stable: (%d, %d) then (%d, %d)", s1, e1, s2, e2)
	}
	if s1 != 1 || e1 != 3 {
		t.Fatalf("expected (1, 3), got (%d, %d)", s1, e1)
	}
}

func TestResolveEmptyAxis(t *testing.T) {
	if _, _, err := Resolve(nil, Window{1, 2}); !errors.Is(err, ErrWindowOutOfRange) {
		t.Fatalf("expected ErrWindowOutOfRange, got %v", err)
	}
}
