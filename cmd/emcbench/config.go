package main

import (
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	log "github.com/sirupsen/logrus"

	"github.com/emc-lab/emcbench/report"
	"github.com/emc-lab/emcbench/session"
	"github.com/emc-lab/emcbench/sweep"
	"github.com/emc-lab/emcbench/util"
)

// LogSetup configures logrus
type LogSetup struct {
	// Level is any logrus level name, "debug", "info", ...
	Level string `koanf:"level" yaml:"level"`

	// Format is "text" or "json"
	Format string `koanf:"format" yaml:"format"`
}

// GeneratorSetup locates the signal generator.  Empty Addr means none
type GeneratorSetup struct {
	// Addr is host:port of the instrument or a serial port path
	Addr        string `koanf:"addr" yaml:"addr"`
	Serial      bool   `koanf:"serial" yaml:"serial"`
	Handshaking bool   `koanf:"handshaking" yaml:"handshaking"`
}

// DeviceSetup names a DAQmx device, e.g. "Dev1".  Empty Device means none
type DeviceSetup struct {
	Device string `koanf:"device" yaml:"device"`
}

// PositionerSetup tunes the CtrlAxes positioner
type PositionerSetup struct {
	Enabled   bool    `koanf:"enabled" yaml:"enabled"`
	Tolerance float64 `koanf:"tolerance" yaml:"tolerance"`

	// Poll is in seconds
	Poll float64 `koanf:"poll" yaml:"poll"`
}

// ProcedureSetup mirrors session.Procedure with plain types.  Durations
// are in seconds
type ProcedureSetup struct {
	FrequencyHz      float64  `koanf:"frequencyhz" yaml:"frequencyhz"`
	Start            float64  `koanf:"start" yaml:"start"`
	End              float64  `koanf:"end" yaml:"end"`
	Step             float64  `koanf:"step" yaml:"step"`
	Trigger          float64  `koanf:"trigger" yaml:"trigger"`
	Settle           float64  `koanf:"settle" yaml:"settle"`
	Channel          int      `koanf:"channel" yaml:"channel"`
	Angles           []int    `koanf:"angles" yaml:"angles"`
	Polarizations    []string `koanf:"polarizations" yaml:"polarizations"`
	PolarSettle      float64  `koanf:"polarsettle" yaml:"polarsettle"`
	TurntableTimeout float64  `koanf:"turntabletimeout" yaml:"turntabletimeout"`
	ReturnHome       bool     `koanf:"returnhome" yaml:"returnhome"`
}

// Config is the whole of the configuration
type Config struct {
	// Addr is the address to listen at
	Addr string `koanf:"addr" yaml:"addr"`

	// Mock replaces the hardware with a simulated chamber
	Mock bool `koanf:"mock" yaml:"mock"`

	// ResultsDir is where reports are written
	ResultsDir string `koanf:"resultsdir" yaml:"resultsdir"`

	// AgentAddr is host:port of the Windows-side agent that drives DAQmx
	// and the CtrlAxes window
	AgentAddr string `koanf:"agentaddr" yaml:"agentaddr"`

	// Origins are allowed by CORS
	Origins []string `koanf:"origins" yaml:"origins"`

	Log        LogSetup        `koanf:"log" yaml:"log"`
	Generator  GeneratorSetup  `koanf:"generator" yaml:"generator"`
	Relay      DeviceSetup     `koanf:"relay" yaml:"relay"`
	Analog     DeviceSetup     `koanf:"analog" yaml:"analog"`
	Positioner PositionerSetup `koanf:"positioner" yaml:"positioner"`
	Procedure  ProcedureSetup  `koanf:"procedure" yaml:"procedure"`
	Link       LinkSetup       `koanf:"link" yaml:"link"`
}

// LinkSetup is the default geometry of the sensitivity conversion
type LinkSetup struct {
	FreqMHz   float64 `koanf:"freqmhz" yaml:"freqmhz"`
	DistanceM float64 `koanf:"distancem" yaml:"distancem"`
	WireLoss  float64 `koanf:"wireloss" yaml:"wireloss"`
	AntFactor float64 `koanf:"antfactor" yaml:"antfactor"`
}

func (l LinkSetup) link() report.Link {
	return report.Link{FreqMHz: l.FreqMHz, DistanceM: l.DistanceM, WireLoss: l.WireLoss, AntFactor: l.AntFactor}
}

// legacyEnv maps the bench's historical variable names to config keys
var legacyEnv = map[string]string{
	"GENERATOR_ADDRESS":   "generator.addr",
	"NI_RELAY_DEVICE_ID":  "relay.device",
	"NI_ANALOG_DEVICE_ID": "analog.device",
}

// EnvPrefix prefixes environment overrides, EMCBENCH_GENERATOR_ADDR => generator.addr
const EnvPrefix = "EMCBENCH_"

func defaults() Config {
	p := session.DefaultProcedure()
	pols := make([]string, len(p.Polarizations))
	for i, v := range p.Polarizations {
		pols[i] = string(v)
	}
	return Config{
		Addr:       ":8000",
		ResultsDir: "results",
		Origins:    []string{"http://localhost:5173", "http://localhost:3000"},
		Log:        LogSetup{Level: "info", Format: "text"},
		Generator:  GeneratorSetup{Handshaking: true},
		Positioner: PositionerSetup{Enabled: true, Tolerance: 0.01, Poll: 0.5},
		Procedure: ProcedureSetup{
			FrequencyHz:      p.FrequencyHz,
			Start:            p.Threshold.Start,
			End:              p.Threshold.End,
			Step:             p.Threshold.Step,
			Trigger:          p.Threshold.Trigger,
			Settle:           p.Threshold.Settle.Seconds(),
			Channel:          p.Channel,
			Angles:           p.Angles,
			Polarizations:    pols,
			PolarSettle:      p.PolarSettle.Seconds(),
			TurntableTimeout: p.TurntableTimeout.Seconds(),
			ReturnHome:       p.ReturnHome,
		},
		Link: LinkSetup{FreqMHz: p.FrequencyHz / 1e6, DistanceM: 3},
	}
}

// loadConfig layers defaults, the YAML file at path, an optional .env, the
// legacy variables and finally EMCBENCH_ variables into k
func loadConfig(k *koanf.Koanf, path string) error {
	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return err
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, os.ErrNotExist) && !strings.Contains(err.Error(), "no such") {
			return err
		}
	}
	// a missing .env is the common case
	_ = godotenv.Load()

	legacy := map[string]interface{}{}
	for name, key := range legacyEnv {
		if v, ok := os.LookupEnv(name); ok {
			legacy[key] = v
		}
	}
	if err := k.Load(confmap.Provider(legacy, "."), nil); err != nil {
		return err
	}
	return k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", -1)
	}), nil)
}

// procedure converts the plain setup into a session.Procedure
func (p ProcedureSetup) procedure() session.Procedure {
	pols := make([]report.Polarization, len(p.Polarizations))
	for i, v := range p.Polarizations {
		pols[i] = report.Polarization(strings.ToUpper(strings.TrimSpace(v)))
	}
	return session.Procedure{
		FrequencyHz: p.FrequencyHz,
		Threshold: sweep.Threshold{
			Start:   p.Start,
			End:     p.End,
			Step:    p.Step,
			Trigger: p.Trigger,
			Settle:  util.SecsToDuration(p.Settle),
		},
		Channel:          p.Channel,
		Angles:           p.Angles,
		Polarizations:    pols,
		PolarSettle:      util.SecsToDuration(p.PolarSettle),
		TurntableTimeout: util.SecsToDuration(p.TurntableTimeout),
		ReturnHome:       p.ReturnHome,
	}
}

// setupLogging applies the log section to the standard logrus logger
func setupLogging(c LogSetup) {
	level, err := log.ParseLevel(c.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if c.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05"})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	}
}
