package content

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/Lectern/core/cache"
	"github.com/FocuswithJustin/Lectern/core/errors"
)

// volumeMeta is the optional volume.json metadata file inside a volume
// directory.
type volumeMeta struct {
	Title string `json:"title"`
}

// volumeEntry records where a volume's chapter files live. Content is loaded
// lazily and cached.
type volumeEntry struct {
	dir          string
	title        string
	chapterFiles []string
}

// Library is an ordered collection of volumes rooted at a directory: one
// subdirectory per volume (sorted lexically), one markup or text file per
// chapter (sorted lexically), plus optional volume.json metadata.
type Library struct {
	dir     string
	volumes []volumeEntry
	cache   cache.Cache[int, *Content]
}

// chapterExtensions are the chapter file types the loader recognizes.
var chapterExtensions = map[string]bool{
	".xhtml": true,
	".html":  true,
	".xml":   true,
	".txt":   true,
}

// LoadLibrary scans dir for volumes. Chapter content itself is loaded on
// first access and kept in an LRU cache; the immutability contract means a
// cached Content never goes stale within a session.
func LoadLibrary(dir string) (*Library, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading library %s", dir)
	}

	lib := &Library{
		dir:   dir,
		cache: cache.NewLRUCache[int, *Content](cache.Config{MaxSize: 8}),
	}

	var volumeDirs []string
	for _, e := range entries {
		if e.IsDir() {
			volumeDirs = append(volumeDirs, e.Name())
		}
	}
	sort.Strings(volumeDirs)

	for _, name := range volumeDirs {
		vdir := filepath.Join(dir, name)
		entry := volumeEntry{dir: vdir, title: name}

		if data, err := os.ReadFile(filepath.Join(vdir, "volume.json")); err == nil {
			var meta volumeMeta
			if json.Unmarshal(data, &meta) == nil && meta.Title != "" {
				entry.title = meta.Title
			}
		}

		files, err := os.ReadDir(vdir)
		if err != nil {
			return nil, errors.Wrapf(err, "reading volume %s", vdir)
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			if chapterExtensions[strings.ToLower(filepath.Ext(f.Name()))] {
				entry.chapterFiles = append(entry.chapterFiles, f.Name())
			}
		}
		sort.Strings(entry.chapterFiles)

		if len(entry.chapterFiles) > 0 {
			lib.volumes = append(lib.volumes, entry)
		}
	}

	return lib, nil
}

// VolumeCount returns the number of volumes in the library.
func (l *Library) VolumeCount() int {
	return len(l.volumes)
}

// VolumeTitle returns the display title of a volume.
func (l *Library) VolumeTitle(volumeIndex int) string {
	if volumeIndex < 0 || volumeIndex >= len(l.volumes) {
		return ""
	}
	return l.volumes[volumeIndex].title
}

// Content returns the flattened content of a volume, loading and caching it
// on first access.
func (l *Library) Content(volumeIndex int) (*Content, error) {
	if volumeIndex < 0 || volumeIndex >= len(l.volumes) {
		return nil, errors.NewNotFound("volume", strconv.Itoa(volumeIndex))
	}
	if c, ok := l.cache.Get(volumeIndex); ok {
		return c, nil
	}

	entry := l.volumes[volumeIndex]
	var chapters []Chapter
	var texts []string
	for i, name := range entry.chapterFiles {
		path := filepath.Join(entry.dir, name)
		anchor := strings.TrimSuffix(name, filepath.Ext(name))

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading chapter %s", path)
		}

		var title, text string
		if strings.EqualFold(filepath.Ext(name), ".txt") {
			text = FlattenPlainText(string(data))
		} else {
			title, text, err = FlattenMarkup(strings.NewReader(string(data)))
			if err != nil {
				return nil, errors.Wrapf(err, "flattening chapter %s", path)
			}
		}
		if title == "" {
			title = anchor
		}

		chapters = append(chapters, Chapter{AnchorID: anchor, Title: title, Ordinal: i})
		texts = append(texts, text)
	}

	c := build(volumeIndex, entry.title, chapters, texts)
	l.cache.Put(volumeIndex, c)
	return c, nil
}

// FlattenedText returns a volume's flattened text. Together with VolumeCount
// this satisfies the anchor resolver's content source contract.
func (l *Library) FlattenedText(volumeIndex int) (string, error) {
	c, err := l.Content(volumeIndex)
	if err != nil {
		return "", err
	}
	return c.Text, nil
}

// Chapters returns a volume's ordered chapter table.
func (l *Library) Chapters(volumeIndex int) ([]ChapterSpan, error) {
	c, err := l.Content(volumeIndex)
	if err != nil {
		return nil, err
	}
	return c.Chapters, nil
}
