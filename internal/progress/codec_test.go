package progress_test

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/Vladislav15-maker/English-family-app-sub000/internal/progress"
)

func sampleStudents() progress.Students {
	return progress.Students{
		"anna": {
			"unit-1": {
				UnitID: "unit-1",
				Vocabulary: map[string]*progress.RoundProgress{
					"family": {
						RoundID:        "family",
						Completed:      true,
						Score:          100,
						CorrectAnswers: 2,
						TotalItems:     2,
						Attempts: []progress.Attempt{{
							ID:        "a1",
							Answers:   []progress.Answer{{ItemID: "w1", Submitted: "mother", Correct: true}, {ItemID: "w2", Submitted: "father", Correct: true}},
							Correct:   2,
							Score:     100,
							CreatedAt: fixedNow,
						}},
					},
				},
				Grammar:    map[string]*progress.RoundProgress{},
				Completion: 100,
			},
		},
	}
}

func TestEncodeDecode(t *testing.T) {
	data, err := progress.Encode(sampleStudents(), fixedNow)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	got, version, err := progress.Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if version != progress.SchemaVersion {
		t.Errorf("version = %d, want %d", version, progress.SchemaVersion)
	}
	rp := got["anna"]["unit-1"].Vocabulary["family"]
	if rp.Score != 100 || len(rp.Attempts) != 1 || rp.Attempts[0].Answers[1].Submitted != "father" {
		t.Errorf("family = %+v", rp)
	}
	if got["anna"]["unit-1"].Grammar == nil {
		t.Error("Grammar = nil, want empty map")
	}
}

func TestDecode_ReformattedBlob(t *testing.T) {
	data, err := progress.Encode(sampleStudents(), fixedNow)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		t.Fatalf("Indent() error = %v", err)
	}

	if _, _, err := progress.Decode(pretty.Bytes()); err != nil {
		t.Errorf("Decode(indented) error = %v", err)
	}
}

func TestDecode_Rejects(t *testing.T) {
	valid, err := progress.Encode(sampleStudents(), fixedNow)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	tests := []struct {
		name    string
		data    []byte
		wantErr string
	}{
		{"not json", []byte("not json"), "malformed"},
		{"tampered", bytes.Replace(valid, []byte(`"submitted":"father"`), []byte(`"submitted":"uncle"`), 1), "checksum mismatch"},
		{"score out of range", bytes.Replace(valid, []byte(`"completed":true,"score":100`), []byte(`"completed":true,"score":150`), 1), "invalid envelope"},
		{"missing checksum", []byte(`{"schema_version": 2, "students": {}}`), "invalid envelope"},
		{"future version", []byte(`{"schema_version": 3, "checksum": "` + zeroSum + `", "students": {}}`), "unsupported schema version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := progress.Decode(tt.data)
			if err == nil {
				t.Fatal("Decode() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Decode() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestDecode_MigratesVersion1(t *testing.T) {
	legacy, err := json.Marshal(sampleStudents())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	got, version, err := progress.Decode(legacy)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if version != 1 {
		t.Errorf("version = %d, want 1", version)
	}
	if got["anna"]["unit-1"].Vocabulary["family"].Score != 100 {
		t.Errorf("migrated record lost its score: %+v", got["anna"]["unit-1"])
	}
}

func TestStore_Load_MigratesVersion1(t *testing.T) {
	legacy, err := json.Marshal(sampleStudents())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	storage := progress.NewMemoryStorage()
	if err := storage.Set(t.Context(), progress.DefaultKey, legacy); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	s := newTestStore(t, storeOpts{storage: storage})
	up, err := s.UnitProgress(t.Context(), "anna", "unit-1")
	if err != nil {
		t.Fatalf("UnitProgress() error = %v", err)
	}
	// family 100, home 0, to-be 0
	if got := up.Completion; got != 100.0/3 {
		t.Errorf("Completion = %v, want %v", got, 100.0/3)
	}

	data, err := storage.Get(t.Context(), progress.DefaultKey)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, version, err := progress.Decode(data); err != nil || version != progress.SchemaVersion {
		t.Errorf("stored blob version = %d, err = %v, want version %d", version, err, progress.SchemaVersion)
	}
}

func TestDecode_Version1ClampsScores(t *testing.T) {
	students := sampleStudents()
	up := students["anna"]["unit-1"]
	up.Vocabulary["family"].Score = 150
	up.Vocabulary["family"].Attempts[0].Score = 150
	up.Grammar["to-be"] = &progress.RoundProgress{RoundID: "to-be", Completed: true, Score: -5}
	up.Test = &progress.RoundProgress{RoundID: "unit-1-test", Completed: true, Score: 400}
	up.Completion = 215
	legacy, err := json.Marshal(students)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	got, _, err := progress.Decode(legacy)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	dec := got["anna"]["unit-1"]
	if s := dec.Vocabulary["family"].Score; s != 100 {
		t.Errorf("family Score = %v, want 100", s)
	}
	if s := dec.Vocabulary["family"].Attempts[0].Score; s != 100 {
		t.Errorf("family attempt Score = %v, want 100", s)
	}
	if s := dec.Grammar["to-be"].Score; s != 0 {
		t.Errorf("to-be Score = %v, want 0", s)
	}
	if s := dec.Test.Score; s != 100 {
		t.Errorf("Test Score = %v, want 100", s)
	}
	// (100 + 0 + 100) / 3
	if dec.Completion > 100 || math.Abs(dec.Completion-200.0/3) > 1e-9 {
		t.Errorf("Completion = %v, want %v", dec.Completion, 200.0/3)
	}
}
