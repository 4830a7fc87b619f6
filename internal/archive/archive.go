package archive

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zip"
)

type Entry struct {
	Name string
	Data []byte
}

// Archive is an ordered set of named entries held in memory until it is
// serialized.
type Archive struct {
	created time.Time
	entries []Entry
	index   map[string]int
}

func New(created time.Time) *Archive {
	return &Archive{created: created, index: make(map[string]int)}
}

func (a *Archive) Created() time.Time {
	return a.created
}

// Add appends an entry. Adding a name twice replaces the data but keeps the
// original position.
func (a *Archive) Add(name string, data []byte) {
	if i, ok := a.index[name]; ok {
		a.entries[i].Data = data
		return
	}
	a.index[name] = len(a.entries)
	a.entries = append(a.entries, Entry{Name: name, Data: data})
}

func (a *Archive) Entry(name string) ([]byte, bool) {
	i, ok := a.index[name]
	if !ok {
		return nil, false
	}
	return a.entries[i].Data, true
}

func (a *Archive) Names() []string {
	names := make([]string, 0, len(a.entries))
	for _, entry := range a.entries {
		names = append(names, entry.Name)
	}
	return names
}

func (a *Archive) Entries() []Entry {
	return append([]Entry(nil), a.entries...)
}

func (a *Archive) Size() int64 {
	var size int64
	for _, entry := range a.entries {
		size += int64(len(entry.Data))
	}
	return size
}

func (a *Archive) WriteZip(w io.Writer) error {
	zw := zip.NewWriter(w)
	for _, entry := range a.entries {
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     entry.Name,
			Method:   zip.Deflate,
			Modified: a.created,
		})
		if err != nil {
			return fmt.Errorf("zip entry %s: %w", entry.Name, err)
		}
		if _, err := fw.Write(entry.Data); err != nil {
			return fmt.Errorf("zip entry %s: %w", entry.Name, err)
		}
	}
	return zw.Close()
}

func (a *Archive) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := a.WriteZip(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadZip loads an archive previously produced by WriteZip.
func ReadZip(data []byte) (*Archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	var created time.Time
	if len(zr.File) > 0 {
		created = zr.File[0].Modified
	}
	out := New(created)
	for _, file := range zr.File {
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", file.Name, err)
		}
		content, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file.Name, err)
		}
		out.Add(file.Name, content)
	}
	return out, nil
}
