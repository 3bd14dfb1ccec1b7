package model

import (
	"errors"
	"testing"
	"time"
)

func TestSystemFolders(t *testing.T) {
	folders := SystemFolders(time.Now())
	if len(folders) != 5 || folders[0].ID != InboxID || folders[0].Smart {
		t.Fatalf("unexpected system folders: %+v", folders)
	}
	for _, f := range folders[1:] {
		if !f.Smart || f.Filter != f.ID {
			t.Fatalf("expected smart folder with filter, got %+v", f)
		}
		if !IsSystemFolder(f.ID) {
			t.Fatalf("expected %q to be a system folder", f.ID)
		}
	}
	if IsSystemFolder("abcd1234") {
		t.Fatal("user folder reported as system folder")
	}
}

func TestFolderValidate(t *testing.T) {
	if err := (Folder{ID: "x", Name: " "}).Validate(); !errors.Is(err, ErrFolderNameRequired) {
		t.Fatalf("expected ErrFolderNameRequired, got %v", err)
	}
	if len(NewShortID()) != 8 {
		t.Fatal("expected 8 character folder id")
	}
}
