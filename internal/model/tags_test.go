package model

import (
	"reflect"
	"testing"
)

func TestExtractTags(t *testing.T) {
	got := ExtractTags("Buy milk #grocery and #ToDo")
	want := []string{"#grocery", "#todo"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExtractTags = %v, want %v", got, want)
	}
}

func TestExtractTagsDeduplicatesWithinText(t *testing.T) {
	got := ExtractTags("#Work call #work #work_2 # nothing")
	want := []string{"#work", "#work_2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExtractTags = %v, want %v", got, want)
	}
	if ExtractTags("no tags here") != nil {
		t.Fatal("expected nil for text without tags")
	}
}
