package dataset

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"
)

const testDataset = `[
  {
    "_id": "q1",
    "question": "Where was Marie Curie born?",
    "answer": "Warsaw",
    "context": [
      ["Marie Curie", ["Marie Curie was a physicist.", "She was born in Warsaw."]],
      ["Poland", ["Poland is a country in Europe."]]
    ]
  },
  {
    "_id": "q2",
    "question": "Who married Marie Curie?",
    "answer": "Pierre Curie",
    "context": [
      ["Marie Curie", ["Duplicate paragraph, different text."]],
      ["Pierre Curie", ["Pierre Curie was a physicist."]]
    ]
  }
]`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeTemp(t, "dataset.json", testDataset)
	examples, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(examples) != 2 {
		t.Fatalf("expected 2 examples, got %d", len(examples))
	}
	ex := examples[0]
	if ex.ID != "q1" || ex.Answer != "Warsaw" {
		t.Errorf("example = %+v", ex)
	}
	if len(ex.Context) != 2 || ex.Context[0].Title != "Marie Curie" {
		t.Fatalf("context = %+v", ex.Context)
	}
	if got := ex.Context[0].Text(); got != "Marie Curie was a physicist. She was born in Warsaw." {
		t.Errorf("paragraph text = %q", got)
	}
}

func TestParagraphSingleStringSentences(t *testing.T) {
	var p Paragraph
	if err := p.UnmarshalJSON([]byte(`["T", "one sentence"]`)); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if p.Text() != "one sentence" {
		t.Errorf("text = %q", p.Text())
	}
}

func TestUniqueDocumentsFirstWriteWins(t *testing.T) {
	path := writeTemp(t, "dataset.json", testDataset)
	examples, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	docs := UniqueDocuments(examples)
	titles := make([]string, len(docs))
	for i, d := range docs {
		titles[i] = d.Title
	}
	want := []string{"Marie Curie", "Poland", "Pierre Curie"}
	if !reflect.DeepEqual(titles, want) {
		t.Fatalf("titles = %v, want %v", titles, want)
	}
	// The q2 duplicate must not replace q1's paragraph.
	if docs[0].Text != "Marie Curie was a physicist. She was born in Warsaw." {
		t.Errorf("first write lost: %q", docs[0].Text)
	}
}

func TestLoadSources(t *testing.T) {
	path := writeTemp(t, "sources.txt", `["Marie Curie", "Poland"]

["Pierre Curie"]
`)
	sources, err := LoadSources(path)
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	want := [][]string{{"Marie Curie", "Poland"}, {"Pierre Curie"}}
	if !reflect.DeepEqual(sources, want) {
		t.Errorf("sources = %v", sources)
	}
}

func TestLoadSourcesBadLine(t *testing.T) {
	path := writeTemp(t, "sources.txt", "not json\n")
	if _, err := LoadSources(path); err == nil {
		t.Fatal("expected error for malformed sources line")
	}
}

func TestLoadLines(t *testing.T) {
	path := writeTemp(t, "questions.txt", "Who?\n\nWhere?\n")
	lines, err := LoadLines(path)
	if err != nil {
		t.Fatalf("LoadLines: %v", err)
	}
	if !reflect.DeepEqual(lines, []string{"Who?", "Where?"}) {
		t.Errorf("lines = %v", lines)
	}
}

func TestLoadTextFile(t *testing.T) {
	path := writeTemp(t, "note.txt", "  some text\n")
	doc, err := LoadTextFile(path)
	if err != nil {
		t.Fatalf("LoadTextFile: %v", err)
	}
	if doc.Title != "note" || doc.Text != "some text" {
		t.Errorf("doc = %+v", doc)
	}
}

func TestLoadXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	f.SetCellValue(sheet, "A1", "name")
	f.SetCellValue(sheet, "B1", "population")
	f.SetCellValue(sheet, "A2", "Poland")
	f.SetCellValue(sheet, "B2", 38000000)

	path := filepath.Join(t.TempDir(), "data.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("saving xlsx: %v", err)
	}
	f.Close()

	docs, err := LoadXLSX(path)
	if err != nil {
		t.Fatalf("LoadXLSX: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	if docs[0].Title != "data/"+sheet {
		t.Errorf("title = %q", docs[0].Title)
	}
	if docs[0].Text != "| name | population |\n| Poland | 38000000 |" {
		t.Errorf("text = %q", docs[0].Text)
	}
}

func TestLoadFileDispatch(t *testing.T) {
	path := writeTemp(t, "plain.md", "hello")
	docs, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(docs) != 1 || docs[0].Title != "plain" {
		t.Errorf("docs = %+v", docs)
	}
}

func TestLoadPDFMissing(t *testing.T) {
	if _, err := LoadPDF(filepath.Join(t.TempDir(), "missing.pdf")); err == nil {
		t.Fatal("expected error for missing PDF")
	}
}
