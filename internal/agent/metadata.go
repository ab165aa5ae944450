package agent

import (
	"os"
	"runtime"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"github.com/GriffinCanCode/tracekit/internal/infrastructure/config"
	"github.com/GriffinCanCode/tracekit/internal/protocol"
)

// Metadata describes the application in the handshake event
type Metadata struct {
	Language         string      `json:"language"`
	LanguageVersion  string      `json:"language_version"`
	ServerTime       string      `json:"server_time"`
	Framework        string      `json:"framework"`
	FrameworkVersion string      `json:"framework_version"`
	Environment      string      `json:"environment"`
	AppServer        string      `json:"app_server"`
	Hostname         string      `json:"hostname"`
	DatabaseEngine   string      `json:"database_engine"`
	DatabaseAdapter  string      `json:"database_adapter"`
	ApplicationName  string      `json:"application_name"`
	Libraries        [][2]string `json:"libraries"`
	PaaS             string      `json:"paas"`
	ApplicationRoot  string      `json:"application_root"`
	GitSHA           string      `json:"git_sha"`
}

// BuildMetadata collects metadata from configuration and the running binary
func BuildMetadata(app config.AppConfig, started time.Time) Metadata {
	md := Metadata{
		Language:         protocol.Language,
		LanguageVersion:  strings.TrimPrefix(runtime.Version(), "go"),
		ServerTime:       protocol.FormatTime(started),
		Framework:        app.Framework,
		FrameworkVersion: app.FrameworkVersion,
		Hostname:         app.Hostname,
		ApplicationName:  app.Name,
		ApplicationRoot:  app.AppRoot,
		GitSHA:           app.RevisionSHA,
		Libraries:        [][2]string{},
	}

	if md.Hostname == "" {
		md.Hostname, _ = os.Hostname()
	}
	if md.ApplicationRoot == "" {
		md.ApplicationRoot, _ = os.Getwd()
	}

	if info, ok := debug.ReadBuildInfo(); ok {
		md.Libraries = libraries(info)
		if md.GitSHA == "" {
			md.GitSHA = vcsRevision(info)
		}
	}
	return md
}

func libraries(info *debug.BuildInfo) [][2]string {
	libs := make([][2]string, 0, len(info.Deps))
	for _, dep := range info.Deps {
		if dep.Replace != nil {
			dep = dep.Replace
		}
		libs = append(libs, [2]string{dep.Path, dep.Version})
	}
	slices.SortFunc(libs, func(a, b [2]string) int { return strings.Compare(a[0], b[0]) })
	return libs
}

func vcsRevision(info *debug.BuildInfo) string {
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}

// Event wraps the metadata in the handshake event
func (m Metadata) Event(at time.Time) *protocol.ApplicationEvent {
	return protocol.NewMetadataEvent(m, at)
}
