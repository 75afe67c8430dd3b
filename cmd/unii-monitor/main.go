package main

import (
	"context"
	_ "embed"
	"html/template"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	logp "github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	unii "github.com/unii-security/go-unii"
	"github.com/unii-security/go-unii/wire"
)

//go:embed index.html
var index []byte

var indexTpl = template.Must(template.New("index").Parse(string(index)))

var log = logp.NewWithOptions(os.Stderr, logp.Options{
	ReportTimestamp: true,
	TimeFormat:      time.Kitchen,
	Prefix:          "unii-monitor",
})

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	log.Info(
		"unii-monitor",
		"version", version,
		"commit", commit,
		"date", date,
	)

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatal(
			"could not parse env",
			"err",
			strings.TrimPrefix(strings.ReplaceAll(err.Error(), "; ", "\n"), "env: ")+"\n",
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var opts []unii.Option
	if cfg.UserCode != "" {
		opts = append(opts, unii.WithUserCode(cfg.UserCode))
	}
	cli := unii.New(cfg.Host, cfg.Port, []byte(cfg.SharedKey), opts...)
	if err := cli.Connect(ctx); err != nil {
		log.Fatal("could not connect to panel", "err", err)
	}
	defer func() { _ = cli.Close() }()

	macAddr, err := unii.MacAddress(cfg.Host)
	if err != nil {
		log.Warn(
			"could not get the mac address, needs 'cap_net_raw+ep' capabilities",
			"err", err,
		)
	}
	info := cli.EquipmentInformation()
	log.Info(
		"got panel information",
		"device", info.DeviceName,
		"model", info.Model,
		"serial", info.SerialNumber,
		"firmware", info.FirmwareVersion,
		"mac", macAddr,
	)

	refresh := func() {
		for _, sec := range cli.Sections() {
			sectionStatusGauge.
				WithLabelValues(cfg.sectionName(sec.ID, sec.Name)).
				Set(float64(sec.Status))
		}
		for _, in := range cli.Inputs() {
			if cfg.ignored(in.ID) {
				continue
			}
			name := cfg.inputName(in.ID, in.Name)
			inputOpenGauge.WithLabelValues(name).Set(boolGauge(in.Condition == wire.InputOpen))
			inputTamperGauge.WithLabelValues(name).
				Set(boolGauge(in.Condition == wire.InputTamper || in.Condition == wire.InputMasking))
			inputBypassedGauge.WithLabelValues(name).Set(boolGauge(in.Bypassed))
		}
	}
	connectedGauge.Set(1)
	refresh()

	events, cancel := cli.Subscribe(unii.WithQueueSize(128))
	defer cancel()
	go func() {
		for ev := range events {
			eventCounter.Inc()
			switch ev := ev.(type) {
			case unii.ConnectionChange:
				connectedGauge.Set(boolGauge(ev.Status == unii.StatusConnected))
				// The subscription started after the initial connect, so
				// every connected transition seen here is a reconnect.
				if ev.Status == unii.StatusConnected {
					reconnectCounter.Inc()
					refresh()
				}
				log.Info("connection", "status", ev.Status)
			case unii.SectionChange:
				name := cfg.sectionName(ev.Section.ID, ev.Section.Name)
				sectionStatusGauge.WithLabelValues(name).Set(float64(ev.Section.Status))
				log.Info("section", "name", name, "status", ev.Section.Status, "was", ev.Previous)
			case unii.InputChange:
				if cfg.ignored(ev.Input.ID) {
					continue
				}
				name := cfg.inputName(ev.Input.ID, ev.Input.Name)
				inputOpenGauge.WithLabelValues(name).Set(boolGauge(ev.Input.Condition == wire.InputOpen))
				inputTamperGauge.WithLabelValues(name).
					Set(boolGauge(ev.Input.Condition == wire.InputTamper || ev.Input.Condition == wire.InputMasking))
				inputBypassedGauge.WithLabelValues(name).Set(boolGauge(ev.Input.Bypassed))
				log.Info("input", "name", name, "condition", ev.Input.Condition, "bypassed", ev.Input.Bypassed)
			case unii.AlarmEvent:
				name := cfg.sectionName(ev.SectionID, "")
				alarmCounter.WithLabelValues(name).Inc()
				log.Warn("alarm raised!", "section", name, "type", ev.Type)
			}
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := Page{
			Device:   info.DeviceName,
			Model:    info.Model,
			Firmware: info.FirmwareVersion,
			Status:   cli.Status().String(),
		}
		for _, sec := range cli.Sections() {
			page.Sections = append(page.Sections, PageItem{
				Number: int(sec.ID),
				Name:   cfg.sectionName(sec.ID, sec.Name),
				Status: sec.Status.String(),
			})
		}
		for _, in := range cli.Inputs() {
			if cfg.ignored(in.ID) {
				continue
			}
			page.Inputs = append(page.Inputs, PageItem{
				Number:   int(in.ID),
				Name:     cfg.inputName(in.ID, in.Name),
				Status:   in.Condition.String(),
				Bypassed: in.Bypassed,
			})
		}
		if err := indexTpl.Execute(w, page); err != nil {
			log.Error("could not render status page", "err", err)
		}
	}))

	srv := &http.Server{Addr: cfg.Address, Handler: mux}
	go func() {
		log.Info("listening", "addr", cfg.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("could not serve", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = srv.Shutdown(shutdownCtx)
}

type Page struct {
	Device   string
	Model    string
	Firmware string
	Status   string
	Sections []PageItem
	Inputs   []PageItem
}

type PageItem struct {
	Number   int
	Name     string
	Status   string
	Bypassed bool
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
