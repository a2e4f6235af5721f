package progress

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/crypto/blake2b"
)

// SchemaVersion is the version written by this build.
//
//	1: bare student -> unit -> record map, no envelope
//	2: envelope with schema_version, saved_at, checksum and students
const SchemaVersion = 2

// Students maps student ID -> unit ID -> unit progress.
type Students map[string]map[string]*UnitProgress

type envelope struct {
	SchemaVersion int             `json:"schema_version"`
	SavedAt       time.Time       `json:"saved_at"`
	Checksum      string          `json:"checksum"`
	Students      json.RawMessage `json:"students"`
}

const envelopeSchema = `{
  "type": "object",
  "required": ["schema_version", "checksum", "students"],
  "properties": {
    "schema_version": {"type": "integer", "minimum": 1},
    "saved_at": {"type": "string"},
    "checksum": {"type": "string", "pattern": "^[0-9a-f]{64}$"},
    "students": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "additionalProperties": {"$ref": "#/definitions/unit"}
      }
    }
  },
  "definitions": {
    "round": {
      "type": "object",
      "required": ["round_id", "completed", "score"],
      "properties": {
        "round_id": {"type": "string"},
        "completed": {"type": "boolean"},
        "score": {"type": "number", "minimum": 0, "maximum": 100},
        "correct_answers": {"type": "integer", "minimum": 0},
        "total_items": {"type": "integer", "minimum": 0},
        "attempts": {"type": ["array", "null"]}
      }
    },
    "unit": {
      "type": "object",
      "required": ["unit_id"],
      "properties": {
        "unit_id": {"type": "string"},
        "vocabulary": {"type": ["object", "null"], "additionalProperties": {"$ref": "#/definitions/round"}},
        "grammar": {"type": ["object", "null"], "additionalProperties": {"$ref": "#/definitions/round"}},
        "test": {"oneOf": [{"type": "null"}, {"$ref": "#/definitions/round"}]},
        "completion": {"type": "number"}
      }
    }
  }
}`

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(envelopeSchema))
})

// Encode serializes the whole store into a version 2 envelope.
func Encode(students Students, savedAt time.Time) ([]byte, error) {
	body, err := json.Marshal(students)
	if err != nil {
		return nil, fmt.Errorf("marshal students: %w", err)
	}
	return json.Marshal(envelope{
		SchemaVersion: SchemaVersion,
		SavedAt:       savedAt.UTC(),
		Checksum:      checksum(body),
		Students:      body,
	})
}

// Decode parses a stored blob. Version 1 blobs are migrated. Any structural
// problem, checksum mismatch or unknown version is an error; the caller
// decides how to recover.
func Decode(data []byte) (Students, int, error) {
	var head map[string]json.RawMessage
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, 0, fmt.Errorf("malformed progress blob: %w", err)
	}

	if _, ok := head["schema_version"]; !ok {
		students, err := decodeStudents(data)
		if err != nil {
			return nil, 1, fmt.Errorf("malformed version 1 blob: %w", err)
		}
		return students, 1, nil
	}

	if err := validateEnvelope(data); err != nil {
		return nil, 0, err
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, 0, fmt.Errorf("malformed envelope: %w", err)
	}
	if env.SchemaVersion != SchemaVersion {
		return nil, env.SchemaVersion, fmt.Errorf("unsupported schema version %d", env.SchemaVersion)
	}

	body := compact(env.Students)
	if got := checksum(body); got != env.Checksum {
		return nil, env.SchemaVersion, fmt.Errorf("checksum mismatch: stored %s, computed %s", env.Checksum, got)
	}

	students, err := decodeStudents(body)
	if err != nil {
		return nil, env.SchemaVersion, err
	}
	return students, env.SchemaVersion, nil
}

func validateEnvelope(data []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile envelope schema: %w", err)
	}

	res, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("validate envelope: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("invalid envelope: %s", strings.Join(msgs, "; "))
	}
	return nil
}

func decodeStudents(data []byte) (Students, error) {
	var students Students
	if err := json.Unmarshal(data, &students); err != nil {
		return nil, fmt.Errorf("unmarshal students: %w", err)
	}
	if students == nil {
		students = Students{}
	}

	for sid, units := range students {
		if units == nil {
			students[sid] = map[string]*UnitProgress{}
			continue
		}
		for uid, up := range units {
			if up == nil {
				delete(units, uid)
				continue
			}
			up.UnitID = uid
			if up.Vocabulary == nil {
				up.Vocabulary = map[string]*RoundProgress{}
			}
			if up.Grammar == nil {
				up.Grammar = map[string]*RoundProgress{}
			}
			fixRounds(up.Vocabulary)
			fixRounds(up.Grammar)
			if up.Test != nil {
				fixRound(up.Test, up.Test.RoundID)
			}
			for _, rp := range up.Retired {
				if rp != nil {
					fixRound(rp, rp.RoundID)
				}
			}
			up.Completion = UnitCompletion(up)
		}
	}
	return students, nil
}

func fixRounds(rounds map[string]*RoundProgress) {
	for id, rp := range rounds {
		if rp == nil {
			rounds[id] = newRoundProgress(id, 0)
			continue
		}
		fixRound(rp, id)
	}
}

// fixRound fills defaults and clamps scores into [0, 100]. Version 1 blobs
// are not schema-checked, so out-of-range values can reach this point.
func fixRound(rp *RoundProgress, id string) {
	rp.RoundID = id
	if rp.Attempts == nil {
		rp.Attempts = []Attempt{}
	}
	rp.Score = ClampScore(rp.Score)
	for i := range rp.Attempts {
		rp.Attempts[i].Score = ClampScore(rp.Attempts[i].Score)
	}
}

func checksum(body []byte) string {
	sum := blake2b.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// compact strips insignificant whitespace so checksums survive media that
// reformat JSON.
func compact(raw []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}
