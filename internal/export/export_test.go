package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/rshade/gradebook/internal/student"
)

func sampleStudent() student.Student {
	return student.Student{
		ID:        "s-42",
		FirstName: "Grace",
		LastName:  "Hopper",
		Email:     "grace@example.edu",
		Grades: []student.Grade{
			{Course: "Compilers", Score: 97.5, Credits: 4},
			{Course: "Logic", Score: 88, Credits: 2},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "csv", want: FormatCSV},
		{in: " JSON ", want: FormatJSON},
		{in: "all", want: FormatAll},
		{in: "binary", want: FormatBinary},
		{in: "pdf", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormat_Expand(t *testing.T) {
	assert.Equal(t, []Format{FormatText}, FormatText.Expand())
	assert.Equal(t, Formats(), FormatAll.Expand())
	assert.False(t, FormatAll.IsConcrete())
	assert.Empty(t, FormatAll.Extension())

	seen := map[string]bool{}
	for _, f := range Formats() {
		ext := f.Extension()
		assert.NotEmpty(t, ext, f)
		assert.False(t, seen[ext], "duplicate extension %s", ext)
		seen[ext] = true
	}
}

func TestEncoders(t *testing.T) {
	s := sampleStudent()
	encoders := DefaultEncoders()
	for _, f := range Formats() {
		require.Contains(t, encoders, f)
	}

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, encoders[FormatCSV].Encode(&buf, s))
		rows, err := csv.NewReader(&buf).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 4)
		assert.Equal(t, csvHeader, rows[0])
		assert.Equal(t, "Compilers", rows[1][4])
		assert.Equal(t, "97.5", rows[1][5])
		assert.Equal(t, averageRowLabel, rows[3][4])
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, encoders[FormatJSON].Encode(&buf, s))
		var doc reportDocument
		require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
		assert.Equal(t, "s-42", doc.Student.ID)
		assert.Equal(t, 2, doc.CourseCount)
		assert.Equal(t, "A", doc.LetterGrade)
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, encoders[FormatYAML].Encode(&buf, s))
		var doc reportDocument
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
		assert.Equal(t, "Hopper", doc.Student.LastName)
		assert.InDelta(t, s.Average(), doc.Average, 0.001)
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, encoders[FormatText].Encode(&buf, s))
		out := buf.String()
		assert.Contains(t, out, "Grace Hopper (s-42)")
		assert.Contains(t, out, "Compilers")
		assert.Contains(t, out, "Grade: A")
	})

	t.Run("binary decodes back", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, encoders[FormatBinary].Encode(&buf, s))
		got, avg, err := DecodeBinary(buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, s, got)
		assert.InDelta(t, s.Average(), avg, 0.0001)
	})

	t.Run("binary rejects truncation", func(t *testing.T) {
		b := MarshalBinary(s)
		_, _, err := DecodeBinary(b[:len(b)-3])
		assert.ErrorIs(t, err, ErrMalformedBinary)
	})
}

func TestFileExporter_Export(t *testing.T) {
	dir := t.TempDir()
	e := NewFileExporter()
	s := sampleStudent()

	for _, f := range Formats() {
		t.Run(string(f), func(t *testing.T) {
			path, err := e.Export(context.Background(), s, f, filepath.Join(dir, s.ID))
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, s.ID+f.Extension()), path)

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Positive(t, info.Size())
		})
	}

	t.Run("no temp files left behind", func(t *testing.T) {
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, len(Formats()))
	})

	t.Run("all is not an export format", func(t *testing.T) {
		_, err := e.Export(context.Background(), s, FormatAll, filepath.Join(dir, "x"))
		assert.ErrorIs(t, err, ErrNoEncoder)
	})

	t.Run("encoder failure leaves nothing", func(t *testing.T) {
		boom := errors.New("boom")
		failing := NewFileExporter().WithEncoder(FormatCSV, EncoderFunc(func(io.Writer, student.Student) error {
			return boom
		}))
		sub := t.TempDir()
		_, err := failing.Export(context.Background(), s, FormatCSV, filepath.Join(sub, "s"))
		assert.ErrorIs(t, err, boom)
		entries, err := os.ReadDir(sub)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := e.Export(context.Background(), s, FormatJSON, filepath.Join(dir, "missing", "s"))
		assert.Error(t, err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := e.Export(ctx, s, FormatJSON, filepath.Join(dir, "c"))
		assert.ErrorIs(t, err, context.Canceled)
	})
}
