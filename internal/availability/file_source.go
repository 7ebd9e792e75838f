package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// FileSource reads availability from a JSON document, for deployments
// running on the memory store:
//
//	{
//	  "doctors": [{"id": "…", "windows": [{"day": "monday", "start": "09:00", "end": "12:00"}]}],
//	  "overrides": [{"doctor_id": "…", "date": "2026-12-25", "windows": []}]
//	}
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

type fileWindow struct {
	Day   string `json:"day"`
	Start Clock  `json:"start"`
	End   Clock  `json:"end"`
}

type fileDocument struct {
	Doctors []struct {
		ID      uuid.UUID    `json:"id"`
		Windows []fileWindow `json:"windows"`
	} `json:"doctors"`
	Overrides []struct {
		DoctorID uuid.UUID    `json:"doctor_id"`
		Date     string       `json:"date"`
		Windows  []fileWindow `json:"windows"`
	} `json:"overrides"`
}

func (s *FileSource) read() (*fileDocument, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read availability file: %w", err)
	}
	var doc fileDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse availability file %s: %w", s.path, err)
	}
	return &doc, nil
}

func (s *FileSource) LoadWeekly(_ context.Context) (map[uuid.UUID][]Window, error) {
	doc, err := s.read()
	if err != nil {
		return nil, err
	}

	out := make(map[uuid.UUID][]Window, len(doc.Doctors))
	for _, d := range doc.Doctors {
		windows := make([]Window, 0, len(d.Windows))
		for _, w := range d.Windows {
			day, err := ParseWeekday(w.Day)
			if err != nil {
				return nil, fmt.Errorf("doctor %s: %w", d.ID, err)
			}
			windows = append(windows, Window{Day: day, Start: w.Start, End: w.End})
		}
		out[d.ID] = append(out[d.ID], windows...)
	}
	return out, nil
}

func (s *FileSource) LoadOverrides(_ context.Context) ([]DateOverride, error) {
	doc, err := s.read()
	if err != nil {
		return nil, err
	}

	out := make([]DateOverride, 0, len(doc.Overrides))
	for _, o := range doc.Overrides {
		date, err := time.Parse(time.DateOnly, o.Date)
		if err != nil {
			return nil, fmt.Errorf("doctor %s override: %w", o.DoctorID, err)
		}
		ov := DateOverride{DoctorID: o.DoctorID, Date: date}
		for _, w := range o.Windows {
			ov.Windows = append(ov.Windows, Window{Start: w.Start, End: w.End})
		}
		out = append(out, ov)
	}
	return out, nil
}
