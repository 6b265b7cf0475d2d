package journal

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/rustyeddy/tradesim/evidence"
)

type ManifestFile struct {
	Path   string `json:"path"`
	Bytes  int64  `json:"bytes"`
	SHA256 string `json:"sha256"`
}

// Manifest lists every artifact of a run directory with its checksum.
type Manifest struct {
	Layout          string         `json:"layout"`
	RunID           string         `json:"run_id"`
	EvidenceVersion string         `json:"evidence_version"`
	Files           []ManifestFile `json:"files"`
}

func writeManifest(dir, runID string, names []string) error {
	m := Manifest{Layout: Layout, RunID: runID, EvidenceVersion: evidence.Version}
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	for _, name := range sorted {
		mf, err := checksum(dir, name)
		if err != nil {
			return err
		}
		m.Files = append(m.Files, mf)
	}
	return writeJSON(filepath.Join(dir, FileManifest), m)
}

func checksum(dir, name string) (ManifestFile, error) {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return ManifestFile{}, err
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return ManifestFile{}, err
	}
	return ManifestFile{Path: name, Bytes: n, SHA256: hex.EncodeToString(h.Sum(nil))}, nil
}

// ReadManifest loads the manifest of a run directory.
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, FileManifest))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Layout != Layout {
		return m, fmt.Errorf("unsupported layout %q", m.Layout)
	}
	return m, nil
}

// VerifyManifest recomputes every listed checksum.
func VerifyManifest(dir string) (Manifest, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return m, err
	}
	for _, want := range m.Files {
		got, err := checksum(dir, want.Path)
		if err != nil {
			return m, err
		}
		if got != want {
			return m, fmt.Errorf("%s: checksum mismatch", want.Path)
		}
	}
	return m, nil
}
