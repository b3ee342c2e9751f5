package devices

import "testing"

func TestSnapshotEqual(t *testing.T) {
	a := Record{Serial: "a", State: StateDevice}
	b := Record{Serial: "b", State: StateDevice}
	bOffline := Record{Serial: "b", State: StateOffline}

	tests := []struct {
		name string
		x, y Snapshot
		want bool
	}{
		{"both empty", Snapshot{}, Snapshot{}, true},
		{"nil equals empty", nil, Snapshot{}, true},
		{"identical", Snapshot{a, b}, Snapshot{a, b}, true},
		{"different length", Snapshot{a}, Snapshot{a, b}, false},
		{"state changed", Snapshot{a, b}, Snapshot{a, bOffline}, false},
		{"serial changed", Snapshot{a}, Snapshot{b}, false},
		// Strict pairwise comparison: the same devices in a different
		// order are NOT equal. Intentional, see Equal's doc comment.
		{"reordered", Snapshot{a, b}, Snapshot{b, a}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.x.Equal(tt.y); got != tt.want {
				t.Errorf("Equal = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWithoutAuthorizing(t *testing.T) {
	snap := Snapshot{
		{Serial: "a", State: StateDevice},
		{Serial: "b", State: StateAuthorizing},
		{Serial: "c", State: StateUnauthorized},
	}

	got := snap.WithoutAuthorizing()
	want := Snapshot{
		{Serial: "a", State: StateDevice},
		{Serial: "c", State: StateUnauthorized},
	}
	if !got.Equal(want) {
		t.Errorf("WithoutAuthorizing = %v, want %v", got, want)
	}
}

func TestParseList(t *testing.T) {
	payload := "serial1\tdevice\nserial2\tunauthorized\r\nserial3\toffline\n\nmalformed\nserial4\tweird-state\n"

	got := ParseList(payload)
	want := Snapshot{
		{Serial: "serial1", State: StateDevice},
		{Serial: "serial2", State: StateUnauthorized},
		{Serial: "serial3", State: StateOffline},
		{Serial: "serial4", State: StateUnknown},
	}
	if !got.Equal(want) {
		t.Errorf("ParseList = %v, want %v", got, want)
	}
}

func TestParseListEmpty(t *testing.T) {
	if got := ParseList(""); len(got) != 0 {
		t.Errorf("ParseList(\"\") = %v, want empty", got)
	}
}

func TestStateRoundTrip(t *testing.T) {
	for name, state := range map[string]State{
		"device":       StateDevice,
		"unauthorized": StateUnauthorized,
		"authorizing":  StateAuthorizing,
		"offline":      StateOffline,
	} {
		if got := ParseState(name); got != state {
			t.Errorf("ParseState(%q) = %v, want %v", name, got, state)
		}
		if got := state.String(); got != name {
			t.Errorf("%v.String() = %q, want %q", state, got, name)
		}
	}

	if got := ParseState("sideload"); got != StateUnknown {
		t.Errorf("ParseState(sideload) = %v, want StateUnknown", got)
	}
}
