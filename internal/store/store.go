package store

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"github.com/daanzu/speech-training-recorder/internal/apperr"
)

const (
	// FilePrefix starts every recording file name.
	FilePrefix = "recorder_"
	// FileExt is the container extension of recordings.
	FileExt = ".wav"
	// DefaultMetadataFile is the metadata log name inside the save directory.
	DefaultMetadataFile = "recorder.tsv"
	// ReservedFlag is the constant second field of every metadata record.
	ReservedFlag = "0"

	// Recordings and the metadata log share one mode, subject to the umask.
	filePerm os.FileMode = 0644
)

// Metadata is one line of the metadata log
type Metadata struct {
	Path     string `json:"path"`
	Flag     string `json:"flag"`
	Corpus   string `json:"corpus"`
	Reserved string `json:"reserved"`
	Text     string `json:"text"`
}

// NewMetadata builds a record with the constant flag and an empty reserved field.
func NewMetadata(path, corpus, text string) Metadata {
	return Metadata{
		Path:   path,
		Flag:   ReservedFlag,
		Corpus: corpus,
		Text:   text,
	}
}

var fieldFolder = strings.NewReplacer("\t", " ", "\r\n", " ", "\n", " ", "\r", " ")

// Line renders the record as one newline-terminated TSV line. Tabs and line
// breaks inside fields are folded to spaces.
func (m Metadata) Line() string {
	fields := []string{m.Path, m.Flag, m.Corpus, m.Reserved, m.Text}
	for i, f := range fields {
		fields[i] = fieldFolder.Replace(f)
	}
	return strings.Join(fields, "\t") + "\n"
}

// FileStore writes recordings and metadata under one save directory
type FileStore struct {
	dir          string
	metadataPath string
	logger       *slog.Logger
}

// NewFileStore opens a store over an existing directory. A missing directory is
// a configuration error; the store never creates it.
func NewFileStore(dir, metadataFile string, logger *slog.Logger) (*FileStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, apperr.E(apperr.CodeConfiguration, "store.NewFileStore", fmt.Sprintf("save_dir %q is not accessible", dir), err)
	}
	if !info.IsDir() {
		return nil, apperr.E(apperr.CodeConfiguration, "store.NewFileStore", fmt.Sprintf("save_dir %q is not a directory", dir), nil)
	}
	if metadataFile == "" {
		metadataFile = DefaultMetadataFile
	}

	return &FileStore{
		dir:          dir,
		metadataPath: filepath.Join(dir, metadataFile),
		logger:       logger,
	}, nil
}

// Dir returns the save directory
func (s *FileStore) Dir() string {
	return s.dir
}

// MetadataPath returns the path of the metadata log
func (s *FileStore) MetadataPath() string {
	return s.metadataPath
}

// RecordingName returns the file name for a recording started at t,
// recorder_YYYY-MM-DD_HH-MM-SS_ffffff.wav.
func RecordingName(t time.Time) string {
	return fmt.Sprintf("%s%s_%06d%s", FilePrefix, t.Format("2006-01-02_15-04-05"), t.Nanosecond()/1000, FileExt)
}

// RecordingPath returns the normalized path for a recording started at t.
func (s *FileStore) RecordingPath(t time.Time) string {
	return filepath.Clean(filepath.Join(s.dir, RecordingName(t)))
}

// WriteRecording writes data to path all-or-nothing: it goes to a temporary
// file in the save directory first and is renamed into place once synced.
func (s *FileStore) WriteRecording(path string, data []byte) error {
	if err := renameio.WriteFile(path, data, filePerm, renameio.WithTempDir(s.dir)); err != nil {
		return apperr.E(apperr.CodeIO, "FileStore.WriteRecording", "failed to write recording", err)
	}

	s.logger.Debug("Wrote recording",
		slog.String("file", path),
		slog.Int("bytes", len(data)),
	)
	return nil
}

// Remove deletes a recording. A file that is already gone is not an error.
func (s *FileStore) Remove(path string) error {
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("Recording already removed", slog.String("file", path))
			return nil
		}
		return apperr.E(apperr.CodeIO, "FileStore.Remove", "failed to delete recording", err)
	}

	s.logger.Debug("Deleted recording", slog.String("file", path))
	return nil
}

// AppendMetadata appends one record to the metadata log with a single write.
func (s *FileStore) AppendMetadata(m Metadata) error {
	const op = "FileStore.AppendMetadata"

	file, err := os.OpenFile(s.metadataPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm)
	if err != nil {
		return apperr.E(apperr.CodeIO, op, "failed to open metadata log", err)
	}

	if _, err := file.WriteString(m.Line()); err != nil {
		file.Close()
		return apperr.E(apperr.CodeIO, op, "failed to append metadata", err)
	}
	if err := file.Close(); err != nil {
		return apperr.E(apperr.CodeIO, op, "failed to close metadata log", err)
	}
	return nil
}

// ReadMetadata loads every record of the metadata log. A log that does not
// exist yet has no records.
func (s *FileStore) ReadMetadata() ([]Metadata, error) {
	const op = "FileStore.ReadMetadata"

	file, err := os.Open(s.metadataPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, apperr.E(apperr.CodeIO, op, "failed to open metadata log", err)
	}
	defer file.Close()

	var records []Metadata
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) != 5 {
			return nil, apperr.E(apperr.CodeIO, op, fmt.Sprintf("malformed record on line %d", len(records)+1), nil)
		}
		records = append(records, Metadata{
			Path:     fields[0],
			Flag:     fields[1],
			Corpus:   fields[2],
			Reserved: fields[3],
			Text:     fields[4],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, apperr.E(apperr.CodeIO, op, "failed to read metadata log", err)
	}
	return records, nil
}
