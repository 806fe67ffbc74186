package nominatim

import "testing"

func TestNameFallbackOrder(t *testing.T) {
	tests := []struct {
		name string
		addr Address
		want string
	}{
		{"road wins", Address{Road: "Marienplatz", City: "München"}, "Marienplatz"},
		{"pedestrian when no road", Address{Pedestrian: "Kaufingerstraße", City: "München"}, "Kaufingerstraße"},
		{"suburb before town", Address{Suburb: "Schwabing", Town: "Garching"}, "Schwabing"},
		{"village", Address{Village: "Oberammergau"}, "Oberammergau"},
		{"town", Address{Town: "Garching"}, "Garching"},
		{"city", Address{City: "München"}, "München"},
		{"municipality last", Address{Municipality: "Landkreis München"}, "Landkreis München"},
		{"empty", Address{}, ""},
	}
	for _, tt := range tests {
		info := RoadInfo{Address: tt.addr}
		if got := info.Name(); got != tt.want {
			t.Errorf("%s: Name() = %q, want %q", tt.name, got, tt.want)
		}
	}
}
