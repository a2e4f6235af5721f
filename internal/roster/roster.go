// Package roster holds the class roster: the students whose progress is
// tracked and the teachers who grade them.
package roster

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Person is a roster entry.
type Person struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// Roster is an immutable, ordered list of students and teachers.
type Roster struct {
	students []Person
	teachers []Person
	byID     map[string]Person
	teacher  map[string]bool
}

type rosterFile struct {
	Students []Person `yaml:"students"`
	Teachers []Person `yaml:"teachers"`
}

// Load reads a roster YAML file.
func Load(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading roster: %w", err)
	}

	var f rosterFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing roster %s: %w", path, err)
	}

	r, err := New(f.Students, f.Teachers)
	if err != nil {
		return nil, err
	}

	slog.Info("roster loaded", "students", len(r.students), "teachers", len(r.teachers))
	return r, nil
}

// New builds a roster. IDs must be non-empty and unique across students and
// teachers.
func New(students, teachers []Person) (*Roster, error) {
	r := &Roster{
		byID:    make(map[string]Person),
		teacher: make(map[string]bool),
	}
	for _, p := range students {
		if err := r.add(p); err != nil {
			return nil, err
		}
		r.students = append(r.students, p)
	}
	for _, p := range teachers {
		if err := r.add(p); err != nil {
			return nil, err
		}
		r.teachers = append(r.teachers, p)
		r.teacher[p.ID] = true
	}
	return r, nil
}

func (r *Roster) add(p Person) error {
	if p.ID == "" {
		return fmt.Errorf("roster entry %q has empty id", p.Name)
	}
	if _, dup := r.byID[p.ID]; dup {
		return fmt.Errorf("duplicate roster id %q", p.ID)
	}
	r.byID[p.ID] = p
	return nil
}

// Students returns all students in roster order.
func (r *Roster) Students() []Person {
	return append([]Person(nil), r.students...)
}

// StudentIDs returns the IDs of all students in roster order.
func (r *Roster) StudentIDs() []string {
	ids := make([]string, 0, len(r.students))
	for _, s := range r.students {
		ids = append(ids, s.ID)
	}
	return ids
}

// Student returns a student by ID.
func (r *Roster) Student(id string) (Person, bool) {
	p, ok := r.byID[id]
	if !ok || r.teacher[id] {
		return Person{}, false
	}
	return p, true
}

// HasStudent reports whether id belongs to a student.
func (r *Roster) HasStudent(id string) bool {
	_, ok := r.Student(id)
	return ok
}

// IsTeacher reports whether id belongs to a teacher.
func (r *Roster) IsTeacher(id string) bool {
	return r.teacher[id]
}
