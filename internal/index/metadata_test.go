package index

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestValidateMetadataBlock_Continuation(t *testing.T) {
	got, err := ValidateMetadataBlock("ifid: X1\n    more\nabout: desc\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Metadata{
		{Key: "ifid", Value: "X1"},
		{Key: "ifid", Value: "more"},
		{Key: "about", Value: "desc"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateMetadataBlock_RejectsText(t *testing.T) {
	_, err := ValidateMetadataBlock("not a meta line\n")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if verr.Line != "not a meta line" || verr.LineNo != 1 {
		t.Errorf("ValidationError = %+v", verr)
	}
}

func TestValidateMetadataBlock_Cases(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Metadata
		badLine int
	}{
		{name: "empty", in: ""},
		{name: "blank lines skipped", in: "a: 1\n\n\nb: 2\n",
			want: Metadata{{"a", "1"}, {"b", "2"}}},
		{name: "tab continuation", in: "a: 1\n\tmore\n",
			want: Metadata{{"a", "1"}, {"a", "more"}}},
		{name: "indented keys", in: "   my-key_2:v\n",
			want: Metadata{{"my-key_2", "v"}}},
		{name: "empty value", in: "a:\n", want: Metadata{{"a", ""}}},
		{name: "crlf", in: "a: 1\r\nb: 2\r\n",
			want: Metadata{{"a", "1"}, {"b", "2"}}},
		{name: "continuation after blank", in: "a: 1\n\n    more\n", badLine: 3},
		{name: "leading continuation", in: "    orphan\n", badLine: 1},
		{name: "header line", in: "a: 1\n# file.zip\n", badLine: 2},
		{name: "space in key", in: "bad key: v\n", badLine: 1},
		{name: "four space key", in: "    a: 1\n", badLine: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateMetadataBlock(tt.in)
			if tt.badLine > 0 {
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("expected ValidationError, got %v (pairs %v)", err, got)
				}
				if verr.LineNo != tt.badLine {
					t.Errorf("LineNo = %d, want %d", verr.LineNo, tt.badLine)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFormatMetadata_RoundTrip(t *testing.T) {
	md := Metadata{{"ifid", "X1"}, {"ifid", "X2"}, {"about", "a: b"}}
	got, err := ValidateMetadataBlock(FormatMetadata(md))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(md, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}
