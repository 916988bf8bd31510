package selection

import (
	"errors"
	"image/color"
	"reflect"
	"testing"
)

func TestToggle(t *testing.T) {
	tests := []struct {
		name   string
		toggle []int
		want   []int
	}{
		{"empty", nil, []int{}},
		{"order kept", []int{5, 1, 7}, []int{5, 1, 7}},
		{"toggle twice removes", []int{3, 3}, []int{}},
		{"remove from middle", []int{0, 1, 2, 1}, []int{0, 2}},
		{"fifth is ignored", []int{0, 1, 2, 3, 4}, []int{0, 1, 2, 3}},
		{"room after removal", []int{0, 1, 2, 3, 4, 1, 4}, []int{0, 2, 3, 4}},
		{"out of range", []int{-1, 8, 100, 2}, []int{2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(8)
			for _, i := range tt.toggle {
				s.Toggle(i)
			}
			got := s.Indices()
			if got == nil {
				got = []int{}
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Indices = %v, want %v", got, tt.want)
			}
			if s.Len() != len(tt.want) {
				t.Errorf("Len = %d, want %d", s.Len(), len(tt.want))
			}
			if s.Full() != (len(tt.want) == Max) {
				t.Errorf("Full = %v with %d selected", s.Full(), len(tt.want))
			}
		})
	}
}

func TestNoDuplicates(t *testing.T) {
	s := New(8)
	seq := []int{1, 2, 1, 1, 2, 3, 3, 3, 0, 5, 6, 7, 2}
	for _, i := range seq {
		s.Toggle(i)
		seen := map[int]bool{}
		for _, j := range s.Indices() {
			if seen[j] {
				t.Fatalf("duplicate %d in %v", j, s.Indices())
			}
			seen[j] = true
		}
		if s.Len() > Max {
			t.Fatalf("Len = %d, over %d", s.Len(), Max)
		}
	}
}

func TestIndicesCopy(t *testing.T) {
	s := New(8)
	s.Toggle(4)
	got := s.Indices()
	got[0] = 6
	if s.Indices()[0] != 4 {
		t.Error("Indices shares storage with the selection")
	}
}

func TestColor(t *testing.T) {
	s := New(8)
	if s.Color().Name != "Black" {
		t.Errorf("default color = %s, want Black", s.Color().Name)
	}
	if err := s.SetColor("magenta"); err != nil {
		t.Fatalf("SetColor: %v", err)
	}
	if got := s.Color().RGBA; got != (color.RGBA{255, 0, 255, 255}) {
		t.Errorf("Magenta = %v", got)
	}
	if err := s.SetColor("purple"); !errors.Is(err, ErrUnknownColor) {
		t.Errorf("SetColor(purple) = %v, want ErrUnknownColor", err)
	}
	if s.Color().Name != "Magenta" {
		t.Errorf("color after failed SetColor = %s, want Magenta", s.Color().Name)
	}

	s.Toggle(1)
	s.Reset()
	if s.Len() != 0 || s.Color().Name != "Black" {
		t.Errorf("after Reset: len=%d color=%s", s.Len(), s.Color().Name)
	}
}

func TestPalette(t *testing.T) {
	if len(Palette) != 8 {
		t.Fatalf("palette has %d colors, want 8", len(Palette))
	}
	for _, c := range Palette {
		got, err := ParseColor(c.Name)
		if err != nil || got != c {
			t.Errorf("ParseColor(%q) = %v, %v", c.Name, got, err)
		}
	}
}

func TestOnChange(t *testing.T) {
	s := New(8)
	calls := 0
	s.OnChange = func() {
		calls++
		// Reading back must not deadlock.
		_ = s.Indices()
	}

	s.Toggle(0)
	s.Toggle(0)
	if err := s.SetColor("Red"); err != nil {
		t.Fatal(err)
	}
	_ = s.SetColor("nope")
	s.Toggle(9)
	for i := 0; i < 5; i++ {
		s.Toggle(i)
	}
	if calls != 7 {
		t.Errorf("OnChange called %d times, want 7", calls)
	}
}
