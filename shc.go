package main

import (
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/floats"

	"github.com/thermalab/shc/lib"
	"github.com/thermalab/shc/lib/device"
	"github.com/thermalab/shc/lib/error"
	"github.com/thermalab/shc/lib/group"
	"github.com/thermalab/shc/lib/heat"
	"github.com/thermalab/shc/lib/thread"
	"github.com/thermalab/shc/lib/traj"
)

func main() {
	// Parse arguments.
	if len(os.Args) < 2 {
		PrintHelp()
		os.Exit(1)
	}
	mode := os.Args[1]

	// Run the chosen mode.
	switch mode {
	case "help":
		PrintHelp()
	case "check":
		Check(configFile())
	case "run":
		Run(configFile())
	default:
		error.External(
			"You attempted to run shc in the mode '%s', but the only valid " +
				"modes are 'help', 'check', and 'run'.", mode,
		)
	}
}

func configFile() string {
	if len(os.Args) != 3 {
		error.External("The '%s' mode needs exactly one argument, a config file. Run 'shc help' for usage.", os.Args[1])
	}
	return os.Args[2]
}

// PrintHelp prints shc's usage text.
func PrintHelp() {
	fmt.Println(`shc computes the spectral heat current of an MD trajectory.

Usage:
    shc help
    shc check <config file>
    shc run <config file>

'check' parses and validates the configuration and reports the resolved
settings without running anything. 'run' streams the configured trajectory
through the correlation engine and writes the averaged correlations (and
optionally their frequency decomposition) at the end.`)
}

// Check runs shc's "check" mode, which tests for errors in the configuration
// arguments and reports the resolved choices.
func Check(configFile string) {
	cfg, engCfg, src, rd := setup(configFile)
	defer rd.Close()

	fmt.Println(lib.Describe(engCfg, src))
	fmt.Printf("trajectory:        %s (%d particles)\n",
		cfg.Run.Trajectory, rd.N())
	fmt.Println("No errors detected.")
}

// Run runs shc's "run" mode: it streams every frame of the trajectory through
// the engine, finalizes the averaged correlations, and optionally writes
// their frequency decomposition.
func Run(configFile string) {
	cfg, engCfg, src, rd := setup(configFile)
	defer rd.Close()

	thread.Set(cfg.Run.Threads)
	dev := device.New(cfg.Run.Threads)

	engine, err := heat.New(engCfg, src, dev)
	if err != nil {
		error.External("%s", err.Error())
	}

	frame := traj.NewFrame(rd.N())
	for {
		err := rd.Read(frame)
		if err == io.EOF { break }
		if err != nil {
			error.External("Could not read the trajectory '%s': %s",
				cfg.Run.Trajectory, err.Error())
		}

		err = engine.Process(int(frame.Step), frame.Velocity, frame.Virial)
		if err != nil {
			error.Internal("%s", err.Error())
		}
	}

	if err := engine.Finalize(); err != nil {
		error.External("%s", err.Error())
	}

	if cfg.Run.Spectrum != "" {
		writeSpectrum(cfg, engine)
	}
}

// writeSpectrum writes the frequency decomposition of the run's averaged
// correlations: one line per frequency with the angular frequency and the
// spectral density.
func writeSpectrum(cfg *lib.File, engine *heat.Engine) {
	kiNeg, koNeg, kiPos, koPos, err := engine.Averages()
	if err != nil {
		error.External("%s", err.Error())
	}

	// Total correlation: both tensor parts, both passes superposed.
	corr := make([]float64, len(kiNeg))
	floats.Add(corr, kiNeg)
	floats.Add(corr, koNeg)
	floats.Add(corr, kiPos)
	floats.Add(corr, koPos)
	floats.Scale(0.5, corr)

	dt := cfg.Run.TimeStep * float64(engine.Config().SampleInterval)
	omega, density, err := heat.Spectrum(corr, dt)
	if err != nil {
		error.External("%s", err.Error())
	}

	f, err := os.Create(cfg.Run.Spectrum)
	if err != nil {
		error.External("Could not create the spectrum file '%s': %s",
			cfg.Run.Spectrum, err.Error())
	}
	defer f.Close()

	for i := range omega {
		fmt.Fprintf(f, "%25.15f %25.15f\n", omega[i], density[i])
	}
}

// setup parses and validates the config file and opens the run's inputs. All
// failures here are user-fixable and fatal.
func setup(configFile string) (
	cfg *lib.File, engCfg heat.Config, src group.Source, rd *traj.Reader,
) {
	cfg, err := lib.ParseConfigFile(configFile)
	if err != nil {
		error.External("%s", err.Error())
	}

	engCfg, err = cfg.EngineConfig()
	if err != nil {
		error.External("%s", err.Error())
	}

	if cfg.Run.Trajectory == "" {
		error.External("The config file does not set a trajectory file.")
	}
	rd, err = traj.Open(cfg.Run.Trajectory)
	if err != nil {
		error.External("%s", err.Error())
	}

	src, err = cfg.ResolveGroup(rd.N())
	if err != nil {
		rd.Close()
		error.External("%s", err.Error())
	}

	return cfg, engCfg, src, rd
}
