package bus

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"billy-bassistant/internal/log"
)

const (
	stateTopic   = "billy/state"
	commandTopic = "billy/command"
	sayTopic     = "billy/say"

	connectTimeout = 5 * time.Second
)

// Options configures the MQTT connection.
type Options struct {
	Host     string
	Port     int
	Username string
	Password string

	// OnSay is invoked with the text of a billy/say message.
	OnSay func(text string)
	// OnCommand is invoked with a billy/command payload, lowercased.
	OnCommand func(command string)
}

// Configured reports whether enough settings are present to connect.
func (o Options) Configured() bool {
	return o.Host != "" && o.Port != 0 && o.Username != "" && o.Password != ""
}

// MQTT is a connected bus publisher.
type MQTT struct {
	client mqtt.Client
	opts   Options
}

// Connect dials the broker, publishes discovery, and subscribes to the
// command topics. Returns an error if the broker is unreachable.
func Connect(opts Options) (*MQTT, error) {
	b := &MQTT{opts: opts}

	co := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", opts.Host, opts.Port)).
		SetClientID("billy-bassistant").
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(c mqtt.Client) {
			log.Info("mqtt connected", "host", opts.Host)
			b.sendDiscovery()
			b.subscribe()
		})

	b.client = mqtt.NewClient(co)
	token := b.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s:%d: timeout", opts.Host, opts.Port)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s:%d: %w", opts.Host, opts.Port, err)
	}

	b.PublishState("idle")
	return b, nil
}

// PublishState reports the fish's current activity, retained.
func (b *MQTT) PublishState(state string) {
	b.publish(stateTopic, state, true)
}

// Close disconnects from the broker.
func (b *MQTT) Close() {
	b.client.Disconnect(250)
	log.Info("mqtt disconnected")
}

func (b *MQTT) publish(topic, payload string, retain bool) {
	token := b.client.Publish(topic, 0, retain, payload)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			log.Warn("mqtt publish failed", "topic", topic, "error", err)
		}
	}()
}

func (b *MQTT) subscribe() {
	b.client.Subscribe(commandTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		command := strings.ToLower(strings.TrimSpace(string(msg.Payload())))
		log.Info("mqtt command received", "command", command)
		if b.opts.OnCommand != nil {
			b.opts.OnCommand(command)
		}
	})
	b.client.Subscribe(sayTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		text := strings.TrimSpace(string(msg.Payload()))
		if text == "" {
			log.Warn("mqtt say received with empty text")
			return
		}
		if b.opts.OnSay != nil {
			b.opts.OnSay(text)
		}
	})
}

// deviceInfo is shared across all discovery payloads so Home Assistant
// groups the entities under one device.
var deviceInfo = map[string]any{
	"identifiers":  []string{"billy_bass"},
	"name":         "Big Mouth Billy Bass",
	"model":        "Billy Bassistant",
	"manufacturer": "Thom Koopman",
}

// sendDiscovery announces the state sensor, the shutdown button, and
// the say text input.
func (b *MQTT) sendDiscovery() {
	b.publishJSON("homeassistant/sensor/billy/state/config", map[string]any{
		"name":        "Billy State",
		"unique_id":   "billy_state",
		"state_topic": stateTopic,
		"icon":        "mdi:fish",
		"device":      deviceInfo,
	})
	b.publishJSON("homeassistant/button/billy/shutdown/config", map[string]any{
		"name":          "Billy Shutdown",
		"unique_id":     "billy_shutdown",
		"command_topic": commandTopic,
		"payload_press": "shutdown",
		"device":        deviceInfo,
	})
	b.publishJSON("homeassistant/text/billy/say/config", map[string]any{
		"name":          "Billy Say",
		"unique_id":     "billy_say",
		"command_topic": sayTopic,
		"mode":          "text",
		"max":           255,
		"device":        deviceInfo,
	})
}

func (b *MQTT) publishJSON(topic string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Warn("mqtt discovery encode failed", "topic", topic, "error", err)
		return
	}
	b.publish(topic, string(data), true)
}
