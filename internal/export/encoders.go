package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/rshade/gradebook/internal/student"
)

// Encoder writes one student's report to w.
type Encoder interface {
	Encode(w io.Writer, s student.Student) error
}

// EncoderFunc adapts a function to Encoder.
type EncoderFunc func(w io.Writer, s student.Student) error

// Encode calls f.
func (f EncoderFunc) Encode(w io.Writer, s student.Student) error { return f(w, s) }

// DefaultEncoders returns a fresh encoder table covering every Format.
func DefaultEncoders() map[Format]Encoder {
	return map[Format]Encoder{
		FormatCSV:    EncoderFunc(encodeCSV),
		FormatJSON:   EncoderFunc(encodeJSON),
		FormatYAML:   EncoderFunc(encodeYAML),
		FormatBinary: EncoderFunc(EncodeBinary),
		FormatText:   EncoderFunc(encodeText),
	}
}

// reportDocument is the structured form shared by the JSON and YAML encoders.
type reportDocument struct {
	Student     student.Student `json:"student" yaml:"student"`
	Average     float64         `json:"average" yaml:"average"`
	LetterGrade string          `json:"letter_grade" yaml:"letter_grade"`
	CourseCount int             `json:"course_count" yaml:"course_count"`
}

func newReportDocument(s student.Student) reportDocument {
	return reportDocument{
		Student:     s,
		Average:     s.Average(),
		LetterGrade: s.LetterGrade(),
		CourseCount: len(s.Grades),
	}
}

//nolint:gochecknoglobals // Header row is constant.
var csvHeader = []string{"student_id", "first_name", "last_name", "email", "course", "score", "credits"}

// averageRowLabel marks the trailing summary row in CSV reports.
const averageRowLabel = "(average)"

func encodeCSV(w io.Writer, s student.Student) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, g := range s.Grades {
		row := []string{
			s.ID, s.FirstName, s.LastName, s.Email,
			g.Course, formatFloat(g.Score), formatFloat(g.Credits),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	summary := []string{s.ID, s.FirstName, s.LastName, s.Email, averageRowLabel, formatFloat(s.Average()), ""}
	if err := cw.Write(summary); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func encodeJSON(w io.Writer, s student.Student) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(newReportDocument(s))
}

func encodeYAML(w io.Writer, s student.Student) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(newReportDocument(s)); err != nil {
		return err
	}
	return enc.Close()
}

func encodeText(w io.Writer, s student.Student) error {
	p := message.NewPrinter(language.English)

	if _, err := p.Fprintf(w, "REPORT CARD\n%s (%s)\n", s.FullName(), s.ID); err != nil {
		return err
	}
	if s.Email != "" {
		if _, err := p.Fprintf(w, "%s\n", s.Email); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	for _, g := range s.Grades {
		if _, err := p.Fprintf(w, "  %-24s %8.2f  (%.1f cr)\n", g.Course, g.Score, g.Credits); err != nil {
			return err
		}
	}
	_, err := p.Fprintf(w, "\n  Average: %.2f  Grade: %s  Courses: %d\n",
		s.Average(), s.LetterGrade(), len(s.Grades))
	return err
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
