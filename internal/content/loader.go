package content

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// assessmentsFile lists quizzes that live outside any course tree.
type assessmentsFile struct {
	Quizzes []Quiz `yaml:"quizzes"`
}

// LoadDir builds a MemoryReader from a directory of YAML course files.
// Files ending in .assessments.yaml hold standalone prerequisite quizzes.
func LoadDir(rootDir string) (*MemoryReader, error) {
	r := NewMemoryReader()
	courses := 0

	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		if strings.HasSuffix(path, ".assessments.yaml") {
			var f assessmentsFile
			if err := yaml.Unmarshal(data, &f); err != nil {
				slog.Warn("skipping invalid assessments YAML", "path", path, "error", err)
				return nil
			}
			for _, q := range f.Quizzes {
				if q.ID != "" {
					r.AddQuiz(q)
				}
			}
			return nil
		}

		var doc CourseDoc
		if err := yaml.Unmarshal(data, &doc); err != nil {
			slog.Warn("skipping invalid course YAML", "path", path, "error", err)
			return nil
		}
		if doc.ID == "" {
			return nil // Not a course file
		}
		if err := r.AddCourse(doc); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		courses++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading content: %w", err)
	}

	slog.Info("content loaded", "courses", courses)
	return r, nil
}
