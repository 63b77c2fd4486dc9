package pipeline

import (
	"time"

	"github.com/prbench/prbench/pkg/archive"
	"github.com/prbench/prbench/pkg/candidate"
	"github.com/prbench/prbench/pkg/filters"
	"github.com/prbench/prbench/pkg/ghapi"
	"github.com/prbench/prbench/pkg/llm"
	"github.com/prbench/prbench/pkg/patch"
	"github.com/prbench/prbench/pkg/prcache"
)

// Exporter is the on-disk task-instance writer dependency. pkg/export.Writer
// satisfies this structurally.
type Exporter interface {
	Export(candidate.TaskInstance) error
}

// Deps is every external dependency the Orchestrator composes. All of it
// is built elsewhere (cmd/prbench wires concrete implementations); the
// Orchestrator only sequences calls to it under the concurrency model of
// spec.md §5.
type Deps struct {
	Archive     archive.Source
	StartHour   time.Time
	EndHour     time.Time
	PreFilter   filters.PreFilterConfig
	LocalFilter filters.LocalFilterConfig
	GHAPI       *ghapi.Client
	LLMClient   llm.Client
	Extractor   *patch.Extractor
	Cache       *prcache.Cache
	Exporter    Exporter
	Budget      *LLMBudget
}
