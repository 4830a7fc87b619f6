package archive

import "runtime/debug"

// DependencyDescriptor lists the running program and what it was built with.
type DependencyDescriptor interface {
	Main() string
	Dependencies() []string
}

// BuildInfo describes the current binary from its embedded module data.
type BuildInfo struct {
	info *debug.BuildInfo
}

func NewBuildInfo() (*BuildInfo, bool) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil, false
	}
	return &BuildInfo{info: info}, true
}

func (b *BuildInfo) Main() string {
	return moduleLine(&b.info.Main)
}

func (b *BuildInfo) Dependencies() []string {
	out := make([]string, 0, len(b.info.Deps))
	for _, dep := range b.info.Deps {
		out = append(out, moduleLine(dep))
	}
	return out
}

// moduleLine formats m like go version -m does, with replacements as
// "path version => replacement version".
func moduleLine(m *debug.Module) string {
	line := m.Path
	if m.Version != "" {
		line += " " + m.Version
	}
	if m.Replace != nil {
		line += " => " + moduleLine(m.Replace)
	}
	return line
}

// StaticDependencies is a fixed DependencyDescriptor.
type StaticDependencies struct {
	Module string
	Deps   []string
}

func (s StaticDependencies) Main() string {
	return s.Module
}

func (s StaticDependencies) Dependencies() []string {
	return s.Deps
}
