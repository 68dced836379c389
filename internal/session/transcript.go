package session

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// WriteTranscript writes the session as indented JSON. Transcripts are an
// export for review; nothing reads them back into a live session.
func (s *Session) WriteTranscript(w io.Writer) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// SaveTranscript writes the transcript to path.
func (s *Session) SaveTranscript(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create transcript: %w", err)
	}
	if err := s.WriteTranscript(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
