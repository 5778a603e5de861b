package names

import "testing"

func TestLowerCamel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"ID", "id"},
		{"Name", "name"},
		{"RoomID", "roomID"},
		{"URLPath", "urlPath"},
		{"HTTPServer", "httpServer"},
		{"WithStatus", "withStatus"},
		{"already", "already"},
		{"A", "a"},
		{"AB", "ab"},
		{"ABc", "aBc"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := LowerCamel(tt.in)
			if got != tt.want {
				t.Errorf("LowerCamel(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNested(t *testing.T) {
	got := Nested("Chatroom", "settings")
	if got != "Chatroom_settings" {
		t.Errorf("expected Chatroom_settings, got %s", got)
	}
}
