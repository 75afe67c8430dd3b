package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	logp "github.com/charmbracelet/log"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	unii "github.com/unii-security/go-unii"
)

var log = logp.NewWithOptions(os.Stderr, logp.Options{
	ReportTimestamp: true,
	TimeFormat:      time.Kitchen,
	Prefix:          "unii-mqtt",
})

const (
	offlinePayload = "offline"
	onlinePayload  = "online"
)

type bridge struct {
	cfg    *Config
	cli    *unii.Client
	mq     mqtt.Client
	topics Topics
}

func main() {
	configFile := flag.String("config", "config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := LoadConfig(*configFile)
	if err != nil {
		log.Fatal("could not load config", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var opts []unii.Option
	if cfg.Panel.UserCode != "" {
		opts = append(opts, unii.WithUserCode(cfg.Panel.UserCode))
	}
	cli := unii.New(cfg.Panel.Host, cfg.Panel.Port, []byte(cfg.Panel.SharedKey), opts...)
	if err := cli.Connect(ctx); err != nil {
		log.Fatal("could not connect to panel", "err", err)
	}
	defer func() { _ = cli.Close() }()

	b := &bridge{
		cfg:    cfg,
		cli:    cli,
		topics: Topics{prefix: cfg.MQTT.Prefix},
	}

	mqOpts := mqtt.NewClientOptions()
	mqOpts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port))
	mqOpts.SetClientID(cfg.MQTT.ClientID)
	mqOpts.SetUsername(cfg.MQTT.Username)
	mqOpts.SetPassword(cfg.MQTT.Password)
	mqOpts.SetCleanSession(cfg.MQTT.Clean)
	mqOpts.SetAutoReconnect(true)
	mqOpts.SetOnConnectHandler(b.onConnect)
	mqOpts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Error("mqtt connection lost", "err", err)
	})
	mqOpts.SetWill(b.topics.Status(), offlinePayload, byte(cfg.MQTT.QOS), true)

	b.mq = mqtt.NewClient(mqOpts)
	if token := b.mq.Connect(); token.Wait() && token.Error() != nil {
		log.Fatal("could not connect to mqtt broker", "err", token.Error())
	}

	events, cancel := cli.Subscribe(unii.WithQueueSize(128))
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			b.publish(b.topics.Status(), offlinePayload, true)
			b.mq.Disconnect(250)
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			b.handleEvent(ev)
		}
	}
}

func (b *bridge) onConnect(mqtt.Client) {
	log.Info("connected to mqtt broker", "host", b.cfg.MQTT.Host, "port", b.cfg.MQTT.Port)
	b.publish(b.topics.Status(), onlinePayload, true)
	b.publishPanelInfo()
	b.publishFullState()
	b.subscribeCommands()
}

func (b *bridge) publishPanelInfo() {
	info := b.cli.EquipmentInformation()
	b.publish(b.topics.Panel(), map[string]interface{}{
		"device":           info.DeviceName,
		"model":            info.Model,
		"serial_number":    info.SerialNumber,
		"firmware_version": info.FirmwareVersion,
	}, true)
}

func (b *bridge) publishFullState() {
	b.publish(b.topics.Connection(), b.cli.Status().String(), true)
	for _, sec := range b.cli.Sections() {
		b.publishSection(sec)
	}
	for _, in := range b.cli.Inputs() {
		b.publishInput(in)
	}
}

func (b *bridge) publishSection(sec unii.Section) {
	b.publish(b.topics.Section(sec.Name), map[string]interface{}{
		"id":     sec.ID,
		"name":   sec.Name,
		"status": sec.Status.String(),
	}, true)
}

func (b *bridge) publishInput(in unii.Input) {
	b.publish(b.topics.Input(in.Name), map[string]interface{}{
		"id":        in.ID,
		"name":      in.Name,
		"condition": in.Condition.String(),
		"bypassed":  in.Bypassed,
	}, true)
}

func (b *bridge) handleEvent(ev unii.Event) {
	switch ev := ev.(type) {
	case unii.ConnectionChange:
		b.publish(b.topics.Connection(), ev.Status.String(), true)
		if ev.Status == unii.StatusConnected {
			// The mirror was resynced, republish everything.
			b.publishFullState()
		}
	case unii.SectionChange:
		b.publishSection(ev.Section)
	case unii.InputChange:
		b.publishInput(ev.Input)
	case unii.AlarmEvent:
		b.publish(b.topics.Alarm(), map[string]interface{}{
			"section_id": ev.SectionID,
			"type":       ev.Type,
			"time":       ev.Time.Format(time.RFC3339),
		}, false)
	}
}

func (b *bridge) subscribeCommands() {
	for _, sec := range b.cli.Sections() {
		sec := sec
		b.subscribe(b.topics.SectionCommand(sec.Name), func(payload string) {
			b.handleSectionCommand(sec.ID, payload)
		})
	}
	for _, in := range b.cli.Inputs() {
		in := in
		b.subscribe(b.topics.InputCommand(in.Name), func(payload string) {
			b.handleInputCommand(in.ID, payload)
		})
	}
}

func (b *bridge) handleSectionCommand(id uint16, command string) {
	ctx, cancel := context.WithTimeout(context.Background(), unii.DefaultCommandTimeout)
	defer cancel()
	var err error
	switch command {
	case "arm":
		err = b.cli.Arm(ctx, id)
	case "disarm":
		err = b.cli.Disarm(ctx, id)
	default:
		log.Warn("unknown section command", "command", command)
		return
	}
	if err != nil {
		log.Error("section command failed", "section", id, "command", command, "err", err)
	}
}

func (b *bridge) handleInputCommand(id uint16, command string) {
	ctx, cancel := context.WithTimeout(context.Background(), unii.DefaultCommandTimeout)
	defer cancel()
	var err error
	switch command {
	case "bypass":
		err = b.cli.Bypass(ctx, id)
	case "unbypass":
		err = b.cli.Unbypass(ctx, id)
	default:
		log.Warn("unknown input command", "command", command)
		return
	}
	if err != nil {
		log.Error("input command failed", "input", id, "command", command, "err", err)
	}
}

func (b *bridge) subscribe(topic string, handle func(payload string)) {
	token := b.mq.Subscribe(topic, byte(b.cfg.MQTT.QOS), func(_ mqtt.Client, msg mqtt.Message) {
		handle(string(msg.Payload()))
	})
	if token.Wait() && token.Error() != nil {
		log.Error("could not subscribe", "topic", topic, "err", token.Error())
	} else {
		log.Debug("subscribed", "topic", topic)
	}
}

func (b *bridge) publish(topic string, payload interface{}, retain bool) {
	var raw []byte
	switch p := payload.(type) {
	case string:
		raw = []byte(p)
	default:
		var err error
		raw, err = json.Marshal(p)
		if err != nil {
			log.Error("could not marshal payload", "topic", topic, "err", err)
			return
		}
	}
	retain = retain && b.cfg.MQTT.Retain
	token := b.mq.Publish(topic, byte(b.cfg.MQTT.QOS), retain, raw)
	if token.Wait() && token.Error() != nil {
		log.Error("could not publish", "topic", topic, "err", token.Error())
	}
}
