package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/knadh/koanf"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"github.com/theckman/yacspin"
	yml "gopkg.in/yaml.v2"

	"github.com/emc-lab/emcbench/metrics"
	"github.com/emc-lab/emcbench/report"
	"github.com/emc-lab/emcbench/server"
	"github.com/emc-lab/emcbench/session"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "emcbench.yml"
	k              = koanf.New(".")
)

func setupconfig() Config {
	if err := loadConfig(k, ConfigFileName); err != nil {
		log.Fatalf("error loading config: %v", err)
	}
	c := Config{}
	if err := k.Unmarshal("", &c); err != nil {
		log.Fatal(err)
	}
	setupLogging(c.Log)
	return c
}

func root() {
	str := `emcbench drives an EMC chamber through a sensitivity sweep: an RF generator,
a relay bank, an analog sensor on the device under test and a turntable with an
antenna mast.  For every angle and polarization it finds the generator level
that activates the device and writes the results as a JSON report.

Usage:
	emcbench <command>

Commands:
	run
	sweep
	health
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `emcbench is amenable to configuration via its .yml file, emcbench.yml in the
working directory.  For a primer on YAML, see https://yaml.org/start.html
Use mkconf to write the defaults to emcbench.yml, conf to print the effective
configuration.

Every key may be overridden from the environment with the EMCBENCH_ prefix,
nested keys separated by underscores, e.g. EMCBENCH_GENERATOR_ADDR.  An .env
file in the working directory is loaded first.  The bench's historical
variables are honored as well:
	GENERATOR_ADDRESS     generator.addr
	NI_RELAY_DEVICE_ID    relay.device
	NI_ANALOG_DEVICE_ID   analog.device

Hardware left unconfigured is skipped by health and refused by a sweep, except
the relay bank, which a sweep can do without.  The NI devices and the CtrlAxes
positioner are driven through the Windows-side agent at agentaddr.  Set mock to
true to run against a simulated chamber.

run serves the dashboard API on addr:
	POST /start-test     start a sweep in the background
	POST /stop-test      stop it, no report is written
	GET  /check-status   is_running, results_ready, state, run_id, last_outcome
	GET  /download-data  the last report
	GET  /sensitivity    the last report as field strength
	GET  /health-check   connect, identify and safe every resource
	GET  /metrics        prometheus
	GET  /endpoints      this list

sweep runs one sweep in the foreground; Ctrl+C stops it safely.`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	if err := k.Unmarshal("", &c); err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	if err := yml.NewEncoder(f).Encode(c); err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	if err := yml.NewEncoder(os.Stdout).Encode(c); err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("emcbench version %v\n", Version)
}

func newSession(c Config, reg prometheus.Registerer) *session.Session {
	return session.New(c.Procedure.procedure(), acquirer(c),
		report.Sink{Dir: c.ResultsDir}, metrics.New(reg))
}

func run(c Config) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	sess := newSession(c, reg)
	s := &server.Server{
		Sweeper:  sess,
		Link:     c.Link.link(),
		Gatherer: reg,
		Origins:  c.Origins,
	}
	srv := &http.Server{Addr: c.Addr, Handler: s.Handler()}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		if sess.Stop() {
			sess.Wait()
		}
		shutdown, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		srv.Shutdown(shutdown)
	}()

	log.Println("now listening for requests at ", c.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

func sweepCmd(c Config) {
	sess := newSession(c, prometheus.NewRegistry())
	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " sweeping",
		SuffixAutoColon:   true,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil {
		log.Fatal(err)
	}

	if _, err := sess.Start(); err != nil {
		log.Fatal(err)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- sess.Wait() }()

	spinner.Start()
	t0 := time.Now()
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			spinner.Message("stopping, driving the bench to its safe state")
			sess.Stop()
			ctx = context.Background()
		case <-tick.C:
			spinner.Message(fmt.Sprintf("%s, %s elapsed", sess.State(), time.Since(t0).Round(time.Second)))
		case err := <-done:
			st := sess.Status()
			switch st.LastOutcome {
			case session.OutcomeCompleted:
				spinner.StopMessage("report written to " + sess.Artifact())
				spinner.Stop()
				rows, err := sess.Results()
				if err != nil {
					log.Fatal(err)
				}
				printRows(rows)
				return
			case session.OutcomeStopped:
				spinner.StopFailMessage("stopped, no report written")
			default:
				spinner.StopFailMessage(fmt.Sprintf("failed: %v", err))
			}
			spinner.StopFail()
			os.Exit(1)
		}
	}
}

func printRows(rows []report.Row) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "angle\tH act\tH stop\tV act\tV stop")
	for _, r := range rows {
		fmt.Fprintf(w, "%d°\t%.2f\t%.2f\t%.2f\t%.2f\n", r.Angle, r.HAct, r.HStop, r.VAct, r.VStop)
	}
	w.Flush()
}

func health(c Config) {
	sess := newSession(c, prometheus.NewRegistry())
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	checks, err := sess.Health(ctx)
	if err != nil {
		log.Fatal(err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "resource\tid\tidentity\tstate\terror")
	ok := true
	for _, ch := range checks {
		if ch.Skipped {
			fmt.Fprintf(w, "%s\t-\t-\tskipped\t\n", ch.Name)
			continue
		}
		ok = ok && ch.OK()
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", ch.Name, ch.ID, ch.Identity, ch.State, ch.Error)
	}
	w.Flush()
	if !ok {
		os.Exit(1)
	}
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	c := setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run(c)
		return
	case "sweep":
		sweepCmd(c)
		return
	case "health":
		health(c)
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
