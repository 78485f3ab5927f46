package export

import (
	"errors"
	"fmt"
	"io"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/rshade/gradebook/internal/student"
)

// Field numbers of the binary report. The layout is protobuf wire compatible:
//
//	message Report { string id = 1; string first_name = 2; string last_name = 3;
//	                 string email = 4; repeated Grade grades = 5; double average = 6; }
//	message Grade  { string course = 1; double score = 2; double credits = 3; }
const (
	fieldID        protowire.Number = 1
	fieldFirstName protowire.Number = 2
	fieldLastName  protowire.Number = 3
	fieldEmail     protowire.Number = 4
	fieldGrade     protowire.Number = 5
	fieldAverage   protowire.Number = 6

	fieldCourse  protowire.Number = 1
	fieldScore   protowire.Number = 2
	fieldCredits protowire.Number = 3
)

// ErrMalformedBinary is returned by DecodeBinary for truncated or invalid input.
var ErrMalformedBinary = errors.New("malformed binary report")

// EncodeBinary writes s in the protobuf wire layout described above.
func EncodeBinary(w io.Writer, s student.Student) error {
	_, err := w.Write(MarshalBinary(s))
	return err
}

// MarshalBinary returns the binary report for s.
func MarshalBinary(s student.Student) []byte {
	var b []byte
	b = appendString(b, fieldID, s.ID)
	b = appendString(b, fieldFirstName, s.FirstName)
	b = appendString(b, fieldLastName, s.LastName)
	b = appendString(b, fieldEmail, s.Email)
	for _, g := range s.Grades {
		var gb []byte
		gb = appendString(gb, fieldCourse, g.Course)
		gb = appendDouble(gb, fieldScore, g.Score)
		gb = appendDouble(gb, fieldCredits, g.Credits)
		b = protowire.AppendTag(b, fieldGrade, protowire.BytesType)
		b = protowire.AppendBytes(b, gb)
	}
	b = appendDouble(b, fieldAverage, s.Average())
	return b
}

// DecodeBinary parses a binary report. Unknown fields are skipped. The stored
// average is returned alongside the student.
func DecodeBinary(b []byte) (student.Student, float64, error) {
	var s student.Student
	var avg float64

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return s, 0, fmt.Errorf("%w: %w", ErrMalformedBinary, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType && num == fieldGrade:
			raw, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return s, 0, fmt.Errorf("%w: %w", ErrMalformedBinary, protowire.ParseError(m))
			}
			g, err := decodeGrade(raw)
			if err != nil {
				return s, 0, err
			}
			s.Grades = append(s.Grades, g)
			n = m
		case typ == protowire.BytesType && num <= fieldEmail:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return s, 0, fmt.Errorf("%w: %w", ErrMalformedBinary, protowire.ParseError(m))
			}
			switch num {
			case fieldID:
				s.ID = v
			case fieldFirstName:
				s.FirstName = v
			case fieldLastName:
				s.LastName = v
			case fieldEmail:
				s.Email = v
			}
			n = m
		case typ == protowire.Fixed64Type && num == fieldAverage:
			v, m := protowire.ConsumeFixed64(b)
			if m < 0 {
				return s, 0, fmt.Errorf("%w: %w", ErrMalformedBinary, protowire.ParseError(m))
			}
			avg = math.Float64frombits(v)
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return s, 0, fmt.Errorf("%w: %w", ErrMalformedBinary, protowire.ParseError(n))
			}
		}
		b = b[n:]
	}
	return s, avg, nil
}

func decodeGrade(b []byte) (student.Grade, error) {
	var g student.Grade
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return g, fmt.Errorf("%w: %w", ErrMalformedBinary, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldCourse && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return g, fmt.Errorf("%w: %w", ErrMalformedBinary, protowire.ParseError(m))
			}
			g.Course = v
			n = m
		case (num == fieldScore || num == fieldCredits) && typ == protowire.Fixed64Type:
			v, m := protowire.ConsumeFixed64(b)
			if m < 0 {
				return g, fmt.Errorf("%w: %w", ErrMalformedBinary, protowire.ParseError(m))
			}
			if num == fieldScore {
				g.Score = math.Float64frombits(v)
			} else {
				g.Credits = math.Float64frombits(v)
			}
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return g, fmt.Errorf("%w: %w", ErrMalformedBinary, protowire.ParseError(n))
			}
		}
		b = b[n:]
	}
	return g, nil
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}
