package images

import (
	"os"
	"strconv"
	"sync"
)

// HashSet is the project-wide set of content hashes already on disk.
type HashSet struct {
	mu     sync.Mutex
	hashes map[string]struct{}
}

func NewHashSet(initial ...string) *HashSet {
	h := &HashSet{hashes: make(map[string]struct{}, len(initial))}
	for _, s := range initial {
		if s != "" {
			h.hashes[s] = struct{}{}
		}
	}
	return h
}

// Add registers hash and reports whether it was new.
func (h *HashSet) Add(hash string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.hashes[hash]; ok {
		return false
	}
	h.hashes[hash] = struct{}{}
	return true
}

func (h *HashSet) Remove(hash string) {
	h.mu.Lock()
	delete(h.hashes, hash)
	h.mu.Unlock()
}

func (h *HashSet) Contains(hash string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.hashes[hash]
	return ok
}

func (h *HashSet) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.hashes)
}

const (
	firstLetter = 'B'
	lastLetter  = 'Z'
)

// Letters hands out per-shot filename suffixes B..Z. 'A' is reserved for a
// generated image that is never downloaded.
type Letters struct {
	mu   sync.Mutex
	used map[int]map[byte]bool
}

func NewLetters() *Letters {
	return &Letters{used: make(map[int]map[byte]bool)}
}

// ScanLetters marks every "{shot}{letter}.{ext}" file in dir as used.
func ScanLetters(dir string) (*Letters, error) {
	l := NewLetters()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if shot, letter, ok := ParseFilename(e.Name()); ok {
			l.mark(shot, letter)
		}
	}
	return l, nil
}

// ParseFilename splits "12C.jpg" into 12 and 'C'.
func ParseFilename(name string) (int, byte, bool) {
	i := 0
	for i < len(name) && name[i] >= '0' && name[i] <= '9' {
		i++
	}
	if i == 0 || i+1 >= len(name) || name[i+1] != '.' {
		return 0, 0, false
	}
	letter := name[i]
	if letter < firstLetter || letter > lastLetter {
		return 0, 0, false
	}
	shot, err := strconv.Atoi(name[:i])
	if err != nil {
		return 0, 0, false
	}
	return shot, letter, true
}

func (l *Letters) mark(shot int, letter byte) {
	if l.used[shot] == nil {
		l.used[shot] = make(map[byte]bool)
	}
	l.used[shot][letter] = true
}

// Next reserves the first free letter for shot.
func (l *Letters) Next(shot int) (byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for c := byte(firstLetter); c <= lastLetter; c++ {
		if !l.used[shot][c] {
			l.mark(shot, c)
			return c, true
		}
	}
	return 0, false
}

func (l *Letters) Release(shot int, letter byte) {
	l.mu.Lock()
	delete(l.used[shot], letter)
	l.mu.Unlock()
}

// Count returns how many letters shot has in use.
func (l *Letters) Count(shot int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.used[shot])
}
