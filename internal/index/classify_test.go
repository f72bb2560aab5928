package index

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		line    string
		keyOpen bool
		kind    LineKind
		key     string
		value   string
	}{
		{"# game.zip", false, FilenameHeader, "", "game.zip"},
		{"#game.zip  ", true, FilenameHeader, "", "game.zip"},
		{"## Heading", false, Description, "", ""},
		{"#", false, Description, "", ""},
		{"ifid: ABC", false, MetadataStart, "ifid", "ABC"},
		{"   ifid:ABC  ", false, MetadataStart, "ifid", "ABC"},
		{"    ifid: ABC", false, Description, "", ""},
		{"    ifid: ABC", true, MetadataContinuation, "", "ifid: ABC"},
		{"\tmore", true, MetadataContinuation, "", "more"},
		{"\tmore", false, Description, "", ""},
		{"", false, Blank, "", ""},
		{"  \t ", true, Blank, "", ""},
		{"Some text: with colon", false, Description, "", ""},
		{"Note: looks like metadata", false, MetadataStart, "Note", "looks like metadata"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got := Classify(tt.line, tt.keyOpen)
			if got.Kind != tt.kind {
				t.Fatalf("Classify(%q, %v).Kind = %v, want %v", tt.line, tt.keyOpen, got.Kind, tt.kind)
			}
			if got.Key != tt.key || got.Value != tt.value {
				t.Errorf("Classify(%q) key/value = %q/%q, want %q/%q", tt.line, got.Key, got.Value, tt.key, tt.value)
			}
			if got.Text != tt.line {
				t.Errorf("Text = %q, want verbatim %q", got.Text, tt.line)
			}
		})
	}
}
