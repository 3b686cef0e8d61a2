/*package lib ties shc's subpackages together for the command-line driver. It
parses run configuration files and resolves them into the structures the
correlation engine is built from. Almost all of the heavy lifting is done by
lib/'s subpackages.
*/
package lib

import (
	"fmt"
	"os"

	"gopkg.in/gcfg.v1"

	"github.com/thermalab/shc/lib/group"
	"github.com/thermalab/shc/lib/heat"
)

// File is the on-disk layout of a run configuration: an ini-style file parsed
// with gcfg. gcfg rejects unknown sections and variables, so a typoed keyword
// fails the run instead of being silently ignored.
type File struct {
	Run struct {
		// Trajectory is the binary trajectory file to stream frames from.
		Trajectory string
		// Threads is the number of worker threads. -1 means one per core.
		Threads int
		// TimeStep is the MD integration time step, used only to scale the
		// frequency axis when a spectrum is requested.
		TimeStep float64 `gcfg:"time-step"`
		// Spectrum, if non-empty, is a file the frequency decomposition of
		// the averaged correlations is written to after the run.
		Spectrum string
	}
	SHC struct {
		SampleInterval   int    `gcfg:"sample-interval"`
		CorrelationSteps int    `gcfg:"correlation-steps"`
		Direction        string
		Output           string
		// GroupFile and GroupID select a named particle subset. An empty
		// GroupFile means all particles are tracked.
		GroupFile string `gcfg:"group-file"`
		GroupID   int    `gcfg:"group-id"`
	}
}

// ParseConfigFile parses the configuration file name. Missing variables keep
// their defaults; unknown variables are an error.
func ParseConfigFile(name string) (*File, error) {
	cfg := &File{ }
	cfg.Run.Threads = -1
	cfg.Run.TimeStep = 1

	if err := gcfg.ReadFileInto(cfg, name); err != nil {
		return nil, fmt.Errorf("Could not parse the config file '%s': %s",
			name, err.Error())
	}
	return cfg, nil
}

// EngineConfig converts the parsed file into a validated engine
// configuration. It fails on the first illegal parameter, before anything is
// allocated.
func (cfg *File) EngineConfig() (heat.Config, error) {
	dir, err := ParseDirection(cfg.SHC.Direction)
	if err != nil {
		return heat.Config{ }, err
	}

	out := heat.Config{
		SampleInterval:   cfg.SHC.SampleInterval,
		CorrelationSteps: cfg.SHC.CorrelationSteps,
		Direction:        dir,
		Output:           cfg.SHC.Output,
	}
	if err := out.Validate(); err != nil {
		return heat.Config{ }, err
	}
	return out, nil
}

// ParseDirection converts a transport direction code from a config file into
// an Axis.
func ParseDirection(s string) (heat.Axis, error) {
	if s == "" {
		return 0, fmt.Errorf("The config file does not set the transport direction.")
	}
	return heat.ParseAxis(s)
}

// ResolveGroup resolves the Tracked-Particle Set for an nTotal-particle
// system: all particles when no group file is configured, otherwise the
// configured group looked up in the group file.
func (cfg *File) ResolveGroup(nTotal int) (group.Source, error) {
	if cfg.SHC.GroupFile == "" {
		return group.All(nTotal), nil
	}

	f, err := os.Open(cfg.SHC.GroupFile)
	if err != nil {
		return nil, fmt.Errorf("Could not open the group file '%s': %s",
			cfg.SHC.GroupFile, err.Error())
	}
	defer f.Close()

	reg, err := group.LoadRegistry(f, nTotal)
	if err != nil { return nil, err }

	return reg.Source(cfg.SHC.GroupID)
}

// Describe returns a one-line-per-parameter report of the resolved engine
// configuration, printed by the "check" mode so users can confirm what a run
// would actually do.
func Describe(cfg heat.Config, src group.Source) string {
	groupKind := "all particles"
	if _, ok := src.(*group.Indexed); ok {
		groupKind = "named subset"
	}

	return fmt.Sprintf(
		"sample interval:   %d\n" +
		"correlation steps: %d\n" +
		"direction:         %s\n" +
		"tracked particles: %d (%s)\n" +
		"output:            %s",
		cfg.SampleInterval, cfg.CorrelationSteps, cfg.Direction,
		src.Size(), groupKind, cfg.Output,
	)
}
