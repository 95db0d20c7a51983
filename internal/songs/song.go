// Package songs accepts uploaded MIDI files, stores them and records them in
// the client's song catalog.
package songs

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"path"
	"regexp"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

var (
	ErrUnsupportedType = errors.New("songs: only .mid/.midi files are accepted")
	ErrEmptyName       = errors.New("songs: file name has no usable characters")
)

var (
	extPattern     = regexp.MustCompile(`\.[^.]+$`)
	nonAlnumRun    = regexp.MustCompile(`[^a-zA-Z0-9]+`)
	allowedExtsSet = map[string]bool{".mid": true, ".midi": true}
)

// CheckExtension reports ErrUnsupportedType unless filename ends in .mid or
// .midi, case-insensitively.
func CheckExtension(filename string) error {
	if !allowedExtsSet[strings.ToLower(path.Ext(filename))] {
		return ErrUnsupportedType
	}
	return nil
}

// Slug turns an uploaded file name into a URL-safe base name: the extension
// is dropped and every run of non-alphanumerics becomes one hyphen.
func Slug(filename string) string {
	base := extPattern.ReplaceAllString(filename, "")
	return strings.Trim(nonAlnumRun.ReplaceAllString(base, "-"), "-")
}

// Title renders a slug for display: "fur-elise" becomes "Fur Elise".
func Title(slug string) string {
	words := strings.Split(slug, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Duration parses a Standard MIDI File and returns its length in whole
// seconds: the time of the last note event on any track, tempo changes
// included. Trailing meta events such as a padded end of track don't count.
func Duration(data []byte) (int, error) {
	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("songs: parse midi: %w", err)
	}

	var last int64
	for _, track := range s.Tracks {
		var abs int64
		for _, ev := range track {
			abs += int64(ev.Delta)
			if ev.Message.IsOneOf(midi.NoteOnMsg, midi.NoteOffMsg) && abs > last {
				last = abs
			}
		}
	}

	micros := s.TimeAt(last)
	return int(math.Round(float64(micros) / 1e6)), nil
}

// Song is one accepted upload.
type Song struct {
	// ID is the stored file name, e.g. "fur-elise.mid".
	ID       string
	Title    string
	Duration int
	Data     []byte
}

// Prepare validates an upload and derives its catalog identity.
func Prepare(filename string, data []byte) (*Song, error) {
	if err := CheckExtension(filename); err != nil {
		return nil, err
	}
	slug := Slug(filename)
	if slug == "" {
		return nil, ErrEmptyName
	}
	duration, err := Duration(data)
	if err != nil {
		return nil, err
	}
	return &Song{
		ID:       slug + ".mid",
		Title:    Title(slug),
		Duration: duration,
		Data:     data,
	}, nil
}
