// Package student holds the student and grade records that reports are generated from.
package student

import "math"

// Grade is one course result.
type Grade struct {
	Course  string  `yaml:"course" json:"course"`
	Score   float64 `yaml:"score" json:"score"`
	Credits float64 `yaml:"credits,omitempty" json:"credits,omitempty"`
}

// Student is a single roster entry.
type Student struct {
	ID        string  `yaml:"id" json:"id"`
	FirstName string  `yaml:"first_name" json:"first_name"`
	LastName  string  `yaml:"last_name" json:"last_name"`
	Email     string  `yaml:"email,omitempty" json:"email,omitempty"`
	Grades    []Grade `yaml:"grades,omitempty" json:"grades,omitempty"`
}

// FullName returns "First Last".
func (s Student) FullName() string {
	switch {
	case s.FirstName == "":
		return s.LastName
	case s.LastName == "":
		return s.FirstName
	default:
		return s.FirstName + " " + s.LastName
	}
}

// Average returns the credit-weighted mean score. Grades without credits weigh 1.
// It returns 0 when there are no grades.
func (s Student) Average() float64 {
	var sum, weight float64
	for _, g := range s.Grades {
		w := g.Credits
		if w <= 0 {
			w = 1
		}
		sum += g.Score * w
		weight += w
	}
	if weight == 0 {
		return 0
	}
	return math.Round(sum/weight*100) / 100
}

// letterBands maps lower score bounds to letters, highest first.
//
//nolint:gochecknoglobals // Read-only lookup table.
var letterBands = []struct {
	min    float64
	letter string
}{
	{90, "A"},
	{80, "B"},
	{70, "C"},
	{60, "D"},
}

// LetterGrade converts the average into a letter on the usual 10-point scale.
func (s Student) LetterGrade() string {
	if len(s.Grades) == 0 {
		return "-"
	}
	avg := s.Average()
	for _, b := range letterBands {
		if avg >= b.min {
			return b.letter
		}
	}
	return "F"
}
