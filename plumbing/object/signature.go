package object

import (
	"bytes"
	"strconv"
	"time"
)

// Signature identifies a commit or tag actor: author or committer, name,
// email and the moment the action was taken.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// Decode parses the "Name <email> seconds offset" trailer used by commit
// and tag headers for the author/committer lines.
func (s *Signature) Decode(b []byte) {
	open := bytes.LastIndexByte(b, '<')
	close := bytes.LastIndexByte(b, '>')
	if open < 0 || close < 0 || close < open {
		s.Name = string(bytes.TrimSpace(b))
		return
	}

	s.Name = string(bytes.TrimSpace(b[:open]))
	s.Email = string(b[open+1 : close])

	fields := bytes.Fields(b[close+1:])
	if len(fields) == 0 {
		return
	}

	secs, err := strconv.ParseInt(string(fields[0]), 10, 64)
	if err != nil {
		return
	}
	s.When = time.Unix(secs, 0)

	if len(fields) > 1 {
		if loc, err := parseTimezone(string(fields[1])); err == nil {
			s.When = s.When.In(loc)
		}
	}
}

// Encode writes the "Name <email> seconds offset" trailer.
func (s *Signature) Encode(w *bytes.Buffer) {
	w.WriteString(s.Name)
	w.WriteString(" <")
	w.WriteString(s.Email)
	w.WriteString("> ")
	w.WriteString(strconv.FormatInt(s.When.Unix(), 10))
	w.WriteByte(' ')
	w.WriteString(s.When.Format("-0700"))
}

func parseTimezone(s string) (*time.Location, error) {
	t, err := time.Parse("-0700", s)
	if err != nil {
		return nil, err
	}
	_, offset := t.Zone()
	return time.FixedZone(s, offset), nil
}
