package object

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Signature identifies an author, committer or tagger and the moment they
// acted.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// NewSignature returns a signature stamped with the current time.
func NewSignature(name, email string) Signature {
	return Signature{Name: name, Email: email, When: time.Now()}
}

// String formats the signature as "Name <email> unix ±hhmm".
func (s Signature) String() string {
	return fmt.Sprintf("%s <%s> %d %s", s.Name, s.Email, s.When.Unix(), s.When.Format("-0700"))
}

// Ident returns "Name <email>" without the timestamp.
func (s Signature) Ident() string {
	return fmt.Sprintf("%s <%s>", s.Name, s.Email)
}

func (s Signature) validate(field string) error {
	if strings.ContainsAny(s.Name, "<>\n") || strings.ContainsAny(s.Email, "<>\n") {
		return fmt.Errorf("%s: %q contains unsafe characters", field, s.Ident())
	}
	return nil
}

// ParseSignature parses "Name <email> unix ±hhmm". Landmarks are found from
// the end of the line so unusual names survive.
func ParseSignature(line []byte) (Signature, error) {
	tzStart := bytes.LastIndexByte(line, ' ')
	if tzStart == -1 {
		return Signature{}, fmt.Errorf("signature %q: missing timezone", line)
	}
	tsStart := bytes.LastIndexByte(line[:tzStart], ' ')
	if tsStart == -1 {
		return Signature{}, fmt.Errorf("signature %q: missing timestamp", line)
	}
	ident := line[:tsStart]
	lt := bytes.LastIndexByte(ident, '<')
	gt := bytes.LastIndexByte(ident, '>')
	if lt == -1 || gt < lt || gt != len(ident)-1 {
		return Signature{}, fmt.Errorf("signature %q: malformed identity", line)
	}

	ts, err := strconv.ParseInt(string(line[tsStart+1:tzStart]), 10, 64)
	if err != nil {
		return Signature{}, fmt.Errorf("signature %q: parse timestamp: %w", line, err)
	}
	tz, err := parseTZOffset(line[tzStart+1:])
	if err != nil {
		return Signature{}, err
	}
	return Signature{
		Name:  string(bytes.TrimSuffix(ident[:lt], []byte(" "))),
		Email: string(ident[lt+1 : gt]),
		When:  time.Unix(ts, 0).In(tz),
	}, nil
}

func parseTZOffset(src []byte) (*time.Location, error) {
	if len(src) != 5 {
		return nil, fmt.Errorf("parse UTC offset %q: wrong length", src)
	}
	var sign int
	switch src[0] {
	case '-':
		sign = -1
	case '+':
		sign = 1
	default:
		return nil, fmt.Errorf("parse UTC offset %q: must start with plus or minus sign", src)
	}
	for _, b := range src[1:] {
		if b < '0' || b > '9' {
			return nil, fmt.Errorf("parse UTC offset %q: must have 4 digits after sign", src)
		}
	}
	hours := int(src[1]-'0')*10 + int(src[2]-'0')
	minutes := int(src[3]-'0')*10 + int(src[4]-'0')
	return time.FixedZone(string(src), sign*(hours*3600+minutes*60)), nil
}

// CommitSigningPayload returns the canonical bytes that are signed for a
// commit: its encoding with the gpgsig header left out.
func CommitSigningPayload(c *CommitObj) []byte {
	if c == nil {
		return nil
	}
	unsigned := *c
	unsigned.Signature = ""
	data, _ := MarshalCommit(&unsigned)
	return data
}
