package progress

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/crypto/blake2b"
)

const ledgerSchema = `{
  "type": "object",
  "required": ["student_id", "course_id", "lessons", "topics", "quizzes"],
  "properties": {
    "student_id": {"type": "string"},
    "course_id": {"type": "string"},
    "percentage": {"type": "number", "minimum": 0, "maximum": 100},
    "lesson_count": {"type": "integer", "minimum": 0},
    "topic_count": {"type": "integer", "minimum": 0},
    "quiz_count": {"type": "integer", "minimum": 0},
    "prerequisite": {"type": "object"},
    "lessons": {"type": "object", "additionalProperties": {"$ref": "#/definitions/lesson"}},
    "topics": {"type": "object", "additionalProperties": {"$ref": "#/definitions/topic"}},
    "quizzes": {"type": "object", "additionalProperties": {"$ref": "#/definitions/quiz"}}
  },
  "definitions": {
    "flags": {
      "type": "object",
      "required": ["completed", "submitted", "attempted"],
      "properties": {
        "completed": {"type": "boolean"},
        "submitted": {"type": "boolean"},
        "attempted": {"type": "boolean"},
        "marked_at": {"type": "string", "format": "date-time"}
      }
    },
    "lesson": {
      "allOf": [{"$ref": "#/definitions/flags"}],
      "properties": {"is_allowed": {"type": "boolean"}, "go_green": {"type": "boolean"}}
    },
    "topic": {
      "allOf": [{"$ref": "#/definitions/flags"}],
      "required": ["lesson_id", "quizzes"],
      "properties": {
        "lesson_id": {"type": "string"},
        "is_allowed": {"type": "boolean"},
        "quizzes": {
          "type": "object",
          "required": ["count", "attempted", "passed"],
          "properties": {
            "count": {"type": "integer", "minimum": 0},
            "attempted": {"type": "integer", "minimum": 0},
            "passed": {"type": "integer", "minimum": 0}
          }
        }
      }
    },
    "quiz": {
      "allOf": [{"$ref": "#/definitions/flags"}],
      "required": ["topic_id"],
      "properties": {
        "topic_id": {"type": "string"},
        "attempt_id": {"type": "string"},
        "attempt_number": {"type": "integer", "minimum": 0}
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(ledgerSchema))
	})
	return schema, schemaErr
}

// Encode serializes a ledger. Map keys are sorted, so equal ledgers encode
// to identical bytes.
func Encode(l *Ledger) ([]byte, error) {
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("encode ledger: %w", err)
	}
	return data, nil
}

// Decode validates and parses a stored ledger. Any defect is reported as
// ErrMalformedLedger.
func Decode(data []byte) (*Ledger, error) {
	s, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile ledger schema: %w", err)
	}
	result, err := s.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedLedger, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrMalformedLedger, strings.Join(msgs, "; "))
	}

	var l Ledger
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedLedger, err)
	}
	if l.Lessons == nil {
		l.Lessons = make(map[string]*LessonEntry)
	}
	if l.Topics == nil {
		l.Topics = make(map[string]*TopicEntry)
	}
	if l.Quizzes == nil {
		l.Quizzes = make(map[string]*QuizEntry)
	}
	return &l, nil
}

// Fingerprint is a short digest of the encoded ledger, used as an ETag and
// to detect no-op syncs.
func Fingerprint(l *Ledger) string {
	data, err := Encode(l)
	if err != nil {
		return ""
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:16])
}
