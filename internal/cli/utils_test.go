package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/aisight/mitsuke/internal/models"
)

func sampleRecord() models.VisualPromptRecord {
	return models.VisualPromptRecord{
		MemoryID:      "mem-1",
		ObjectName:    "wallet",
		BoundingBoxes: []models.BoundingBox{{X: 10, Y: 20, Width: 30, Height: 40}},
		ClassID:       7,
		Coordinates:   &models.SpatialCoordinates{X: 1.5, Y: 0.5, Z: 2.0},
		CreatedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestWriteMemoriesJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMemories(&buf, []models.VisualPromptRecord{sampleRecord()}, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var out []models.VisualPromptRecord
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(out) != 1 || out[0].MemoryID != "mem-1" {
		t.Errorf("unexpected round-trip %+v", out)
	}
}

func TestWriteMemoriesText(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMemories(&buf, []models.VisualPromptRecord{sampleRecord()}, OutputText); err != nil {
		t.Fatal(err)
	}
	s := buf.String()
	for _, want := range []string{"wallet", "mem-1", "30x40", "Found 1 memory"} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q:\n%s", want, s)
		}
	}
}

func TestWriteMemoriesTextEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMemories(&buf, nil, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No memories") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestWriteTerms(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTerms(&buf, []string{"car", "cup", "person"}, 2, 1, 50, OutputText); err != nil {
		t.Fatal(err)
	}
	s := buf.String()
	if !strings.Contains(s, "3 terms (2 base, 1 dynamic, capacity 50)") {
		t.Errorf("unexpected header in %q", s)
	}
	if !strings.Contains(s, "car, cup, person") {
		t.Errorf("terms missing in %q", s)
	}

	buf.Reset()
	if err := WriteTerms(&buf, []string{"car"}, 1, 0, 50, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
}

func TestParseOutputFormat(t *testing.T) {
	if f, err := ParseOutputFormat(""); err != nil || f != OutputText {
		t.Errorf("empty should default to text, got %v %v", f, err)
	}
	if f, err := ParseOutputFormat("json"); err != nil || f != OutputJSON {
		t.Errorf("json: got %v %v", f, err)
	}
	if _, err := ParseOutputFormat("yaml"); err == nil {
		t.Error("expected error for unknown format")
	}
}
