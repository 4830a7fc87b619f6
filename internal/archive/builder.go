package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"logpack/internal/tracelog"

	"github.com/tidwall/jsonc"
)

const (
	MetaEntry     = ".logpack"
	TraceEntry    = "trace.log"
	EnvEntry      = "env.log"
	RequestEntry  = "request"
	ResponseEntry = "response"
	DepsEntry     = "deps.log"
)

type Options struct {
	IncludeRequestPayload  bool
	IncludeResponse        bool
	IncludeResponsePayload bool
	IncludeFiles           []string
	RedactHeaders          bool
	Location               *time.Location
	Dependencies           DependencyDescriptor
	Collector              tracelog.Collector
	// Environ defaults to os.Environ.
	Environ func() []string
}

// Input is everything known about one finished request.
type Input struct {
	CorrelationID  string
	Request        *http.Request
	RequestBody    string
	HasRequestBody bool
	Status         int
	ResponseHeader http.Header
	ResponseBody   []byte
	Time           time.Time
}

type Builder struct {
	opts Options
}

type step struct {
	name string
	run  func(*Archive, Input) error
}

func NewBuilder(opts Options) *Builder {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Collector == nil {
		opts.Collector = tracelog.Nop{}
	}
	if opts.Environ == nil {
		opts.Environ = os.Environ
	}
	return &Builder{opts: opts}
}

func (b *Builder) Location() *time.Location {
	return b.opts.Location
}

// Build assembles the archive for in. Every entry is produced by its own
// step; a failing or panicking step is recorded in the returned error and the
// remaining steps still run. The second return value is the metadata text
// also stored as the .logpack entry.
func (b *Builder) Build(ctx context.Context, in Input) (*Archive, string, error) {
	if in.Time.IsZero() {
		in.Time = time.Now()
	}
	in.Time = in.Time.In(b.opts.Location)
	meta := Metadata(in, b.opts.Location)
	out := New(in.Time)

	steps := []step{
		{name: MetaEntry, run: func(a *Archive, _ Input) error {
			a.Add(MetaEntry, []byte(meta))
			return nil
		}},
		{name: TraceEntry, run: b.trace},
		{name: EnvEntry, run: b.env},
		{name: RequestEntry, run: b.request},
	}
	if b.opts.IncludeResponse {
		steps = append(steps, step{name: ResponseEntry, run: b.response})
	}
	if b.opts.Dependencies != nil {
		steps = append(steps, step{name: DepsEntry, run: b.deps})
	}
	for _, file := range b.opts.IncludeFiles {
		file := file
		steps = append(steps, step{name: file, run: func(a *Archive, _ Input) error {
			return includeFile(a, file)
		}})
	}

	var errs []error
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("archive aborted before %s: %w", s.name, err))
			break
		}
		if err := runStep(s, out, in); err != nil {
			errs = append(errs, err)
		}
	}
	return out, meta, errors.Join(errs...)
}

func runStep(s step, a *Archive, in Input) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("archive step %s panicked: %v", s.name, recovered)
		}
	}()
	if err := s.run(a, in); err != nil {
		return fmt.Errorf("archive step %s: %w", s.name, err)
	}
	return nil
}

// Metadata renders the .logpack text for in.
func Metadata(in Input, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	now := in.Time
	if now.IsZero() {
		now = time.Now()
	}
	now = now.In(loc)
	urlPath := ""
	if in.Request != nil && in.Request.URL != nil {
		urlPath = in.Request.URL.Path
	}
	var sb strings.Builder
	sb.WriteString("path: " + urlPath + "\n")
	sb.WriteString("date: " + now.Format("2006-01-02") + "\n")
	sb.WriteString("time: " + now.Format("15:04") + "\n")
	sb.WriteString("rc: " + strconv.Itoa(in.Status) + "\n")
	return sb.String()
}

func (b *Builder) trace(a *Archive, in Input) error {
	var buf bytes.Buffer
	for _, line := range b.opts.Collector.Get(in.CorrelationID) {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	b.opts.Collector.Remove(in.CorrelationID)
	a.Add(TraceEntry, buf.Bytes())
	return nil
}

func (b *Builder) env(a *Archive, _ Input) error {
	vars := append([]string(nil), b.opts.Environ()...)
	sort.Strings(vars)
	var buf bytes.Buffer
	for _, kv := range vars {
		buf.WriteString(kv)
		buf.WriteByte('\n')
	}
	a.Add(EnvEntry, buf.Bytes())
	return nil
}

func (b *Builder) request(a *Archive, in Input) error {
	r := in.Request
	if r == nil {
		return errors.New("no request")
	}
	var buf bytes.Buffer
	urlPath := ""
	query := ""
	if r.URL != nil {
		urlPath = r.URL.Path
		if r.URL.RawQuery != "" {
			query = "?" + r.URL.RawQuery
		}
	}
	fmt.Fprintf(&buf, "%s %s %s\n", r.Proto, urlPath, r.Method)
	fmt.Fprintf(&buf, "Host: %s\n", r.Host)
	fmt.Fprintf(&buf, "Request.Query:    %s\n", query)
	b.writeHeaders(&buf, r.Header)

	if b.opts.IncludeRequestPayload && in.HasRequestBody {
		body := in.RequestBody
		if isJSON(r.Header.Get("Content-Type")) {
			body = prettyJSON(body)
		}
		buf.WriteString(body)
		buf.WriteByte('\n')
	}
	a.Add(RequestEntry, buf.Bytes())
	return nil
}

func (b *Builder) response(a *Archive, in Input) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "statusCode: %d\n", in.Status)
	b.writeHeaders(&buf, in.ResponseHeader)
	if b.opts.IncludeResponsePayload {
		buf.Write(in.ResponseBody)
		buf.WriteByte('\n')
	}
	a.Add(ResponseEntry, buf.Bytes())
	return nil
}

func (b *Builder) deps(a *Archive, _ Input) error {
	var buf bytes.Buffer
	buf.WriteString(b.opts.Dependencies.Main())
	buf.WriteByte('\n')
	for _, dep := range b.opts.Dependencies.Dependencies() {
		buf.WriteString("  " + dep + "\n")
	}
	a.Add(DepsEntry, buf.Bytes())
	return nil
}

func (b *Builder) writeHeaders(buf *bytes.Buffer, header http.Header) {
	names := make([]string, 0, len(header))
	for name := range header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value := strings.Join(header[name], ",")
		if b.opts.RedactHeaders {
			value = redactValue(name, value)
		}
		fmt.Fprintf(buf, "%s: %s\n", name, value)
	}
}

func includeFile(a *Archive, file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	a.Add(EntryName(file), data)
	return nil
}

// EntryName maps a file path to the archive entry it is stored under.
func EntryName(file string) string {
	name := filepath.ToSlash(filepath.Clean(file))
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	if name == "" {
		return filepath.Base(file)
	}
	return name
}

func isJSON(contentType string) bool {
	media, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return media == "application/json"
}

func prettyJSON(body string) string {
	var out bytes.Buffer
	if err := json.Indent(&out, jsonc.ToJSON([]byte(body)), "", "  "); err != nil {
		return body
	}
	return out.String()
}
