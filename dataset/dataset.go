// Package dataset loads ingestion corpora: multi-hop QA dataset files, the
// derived sources/questions/answers files, and plain document files (text,
// PDF, XLSX).
package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Document is one titled paragraph ready for ingestion.
type Document struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Paragraph is one context entry of a dataset example, serialized as
// [title, [sentence, ...]].
type Paragraph struct {
	Title     string
	Sentences []string
}

// Text joins the paragraph's sentences.
func (p Paragraph) Text() string {
	return strings.Join(p.Sentences, " ")
}

// UnmarshalJSON accepts the dataset's pair encoding. The sentence part may
// be a list or a single string.
func (p *Paragraph) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("context entry must be [title, sentences], got %d elements", len(raw))
	}
	if err := json.Unmarshal(raw[0], &p.Title); err != nil {
		return fmt.Errorf("context entry title: %w", err)
	}
	if err := json.Unmarshal(raw[1], &p.Sentences); err != nil {
		var s string
		if err2 := json.Unmarshal(raw[1], &s); err2 != nil {
			return fmt.Errorf("context entry sentences: %w", err)
		}
		p.Sentences = []string{s}
	}
	return nil
}

// MarshalJSON emits the pair encoding.
func (p Paragraph) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.Title, p.Sentences})
}

// Example is one multi-hop QA dataset entry.
type Example struct {
	ID       string      `json:"_id"`
	Question string      `json:"question"`
	Answer   string      `json:"answer"`
	Context  []Paragraph `json:"context"`
}

// Load reads a dataset JSON file (an array of examples).
func Load(path string) ([]Example, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading dataset: %w", err)
	}
	var examples []Example
	if err := json.Unmarshal(data, &examples); err != nil {
		return nil, fmt.Errorf("parsing dataset %s: %w", path, err)
	}
	return examples, nil
}

// UniqueDocuments flattens example contexts into documents, keeping the
// first paragraph seen for each title. Same title means same page across
// examples, so later duplicates carry no new text.
func UniqueDocuments(examples []Example) []Document {
	seen := make(map[string]bool)
	var docs []Document
	for _, ex := range examples {
		for _, p := range ex.Context {
			if seen[p.Title] {
				continue
			}
			seen[p.Title] = true
			docs = append(docs, Document{Title: p.Title, Text: p.Text()})
		}
	}
	return docs
}

// LoadSources reads a sources file: one JSON list of page titles per line.
// Each line is the source set of one example.
func LoadSources(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loading sources: %w", err)
	}
	defer f.Close()

	var out [][]string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var titles []string
		if err := json.Unmarshal([]byte(line), &titles); err != nil {
			return nil, fmt.Errorf("sources line %d: %w", lineNo, err)
		}
		out = append(out, titles)
	}
	return out, scanner.Err()
}

// LoadLines reads a file with one entry per line, skipping blanks. Used for
// questions and expected-answers files.
func LoadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			out = append(out, line)
		}
	}
	return out, scanner.Err()
}
