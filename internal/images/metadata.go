package images

import (
	"errors"
	"os"
	"time"

	"github.com/MimeLyc/bioreel/pkg/file"
	"github.com/MimeLyc/bioreel/pkg/log"
)

// Metadata is the per-project image document. It is the durable source of
// truth for deduplication across runs.
type Metadata struct {
	ActorName string               `json:"actor_name"`
	UpdatedAt time.Time            `json:"updated_at"`
	Images    []ImageRecord        `json:"images"`
	Shots     map[int]ShotMetadata `json:"shots"`
}

// LoadMetadata reads path. A missing or unreadable file yields an empty
// document so a damaged file never blocks a run.
func LoadMetadata(path, actor string) *Metadata {
	m := &Metadata{ActorName: actor, Shots: make(map[int]ShotMetadata)}
	if err := file.ReadJSON(path, m); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn("Image metadata %s is unreadable, starting fresh: %v", path, err)
		}
		return &Metadata{ActorName: actor, Shots: make(map[int]ShotMetadata)}
	}
	if m.Shots == nil {
		m.Shots = make(map[int]ShotMetadata)
	}
	if m.ActorName == "" {
		m.ActorName = actor
	}
	return m
}

func (m *Metadata) Save(path string) error {
	m.UpdatedAt = time.Now().UTC()
	return file.WriteJSON(path, m)
}

// Hashes returns the content hashes of every stored image.
func (m *Metadata) Hashes() []string {
	var out []string
	for _, rec := range m.Images {
		if rec.DownloadSucceeded && rec.ContentHash != "" {
			out = append(out, rec.ContentHash)
		}
	}
	return out
}
