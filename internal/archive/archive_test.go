package archive

import (
	"bytes"
	"testing"
	"time"
)

func TestZipRoundTrip(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 6, 0, time.UTC)
	a := New(created)
	a.Add("b", []byte("second"))
	a.Add("a", []byte("first"))
	a.Add("b", []byte("replaced"))

	var buf bytes.Buffer
	if err := a.WriteZip(&buf); err != nil {
		t.Fatalf("write zip: %v", err)
	}
	read, err := ReadZip(buf.Bytes())
	if err != nil {
		t.Fatalf("read zip: %v", err)
	}
	names := read.Names()
	if len(names) != 2 || names[0] != "b" || names[1] != "a" {
		t.Fatalf("expected insertion order, got %v", names)
	}
	if data, _ := read.Entry("b"); string(data) != "replaced" {
		t.Fatalf("unexpected data %q", data)
	}
	if !read.Created().Equal(created) {
		t.Fatalf("expected modified time %v, got %v", created, read.Created())
	}
}

func TestWriteZipDeterministic(t *testing.T) {
	build := func() []byte {
		a := New(time.Date(2024, 1, 2, 3, 4, 6, 0, time.UTC))
		a.Add(".logpack", []byte("rc: 500\n"))
		a.Add("trace.log", []byte("line\n"))
		data, err := a.Bytes()
		if err != nil {
			t.Fatalf("bytes: %v", err)
		}
		return data
	}
	if !bytes.Equal(build(), build()) {
		t.Fatalf("same entries must serialize identically")
	}
}
