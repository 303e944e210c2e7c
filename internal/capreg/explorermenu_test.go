package capreg

import "testing"

func TestExplorerMenuFiltersByWhen(t *testing.T) {
	r := NewExplorerMenuRegistry()
	r.Register("x", "fileOnly", ExplorerMenuItemDefinition{Label: "File Only", When: WhenFile})
	r.Register("x", "folderOnly", ExplorerMenuItemDefinition{Label: "Folder Only", When: WhenFolder})

	fileItems := r.ItemsFor(FileItem{Path: "a.txt", IsFolder: false})
	if len(fileItems) != 1 || fileItems[0].Label != "File Only" {
		t.Errorf("expected only File Only for a file item, got %+v", fileItems)
	}

	folderItems := r.ItemsFor(FileItem{Path: "dir", IsFolder: true})
	if len(folderItems) != 1 || folderItems[0].Label != "Folder Only" {
		t.Errorf("expected only Folder Only for a folder item, got %+v", folderItems)
	}
}

func TestExplorerMenuBinaryOnly(t *testing.T) {
	r := NewExplorerMenuRegistry()
	r.Register("x", "bin", ExplorerMenuItemDefinition{Label: "Binary Action", BinaryOnly: true})

	if items := r.ItemsFor(FileItem{Path: "a.txt", IsBinary: false}); len(items) != 0 {
		t.Errorf("expected binaryOnly item excluded for text file, got %+v", items)
	}
	if items := r.ItemsFor(FileItem{Path: "a.png", IsBinary: true}); len(items) != 1 {
		t.Errorf("expected binaryOnly item included for binary file, got %+v", items)
	}
}

func TestExplorerMenuFileExtensionsCaseInsensitive(t *testing.T) {
	r := NewExplorerMenuRegistry()
	r.Register("x", "go", ExplorerMenuItemDefinition{Label: "Go Action", FileExtensions: []string{"go"}})

	if items := r.ItemsFor(FileItem{Path: "main.GO"}); len(items) != 1 {
		t.Errorf("expected case-insensitive extension match, got %+v", items)
	}
	if items := r.ItemsFor(FileItem{Path: "main.py"}); len(items) != 0 {
		t.Errorf("expected no match for different extension, got %+v", items)
	}
}

func TestExplorerMenuExcludesExtensionlessAndDotOnly(t *testing.T) {
	r := NewExplorerMenuRegistry()
	r.Register("x", "go", ExplorerMenuItemDefinition{Label: "Go Action", FileExtensions: []string{"go"}})

	if items := r.ItemsFor(FileItem{Path: "Makefile"}); len(items) != 0 {
		t.Errorf("expected no match for extensionless file, got %+v", items)
	}
	if items := r.ItemsFor(FileItem{Path: ".gitignore"}); len(items) != 0 {
		t.Errorf("expected no match for dot-only file, got %+v", items)
	}
}

func TestExplorerMenuUnregisterAll(t *testing.T) {
	r := NewExplorerMenuRegistry()
	r.Register("x", "a", ExplorerMenuItemDefinition{Label: "A"})
	r.Register("y", "b", ExplorerMenuItemDefinition{Label: "B"})

	removed := r.UnregisterAll("x")
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	items := r.ItemsFor(FileItem{Path: "any.txt"})
	if len(items) != 1 || items[0].Label != "B" {
		t.Errorf("expected only B left, got %+v", items)
	}
}
