// Package app wires the whole fish together: motors, playback,
// personality, the session controller, MQTT, and the config server.
package app

import (
	"context"
	"fmt"
	"time"

	"billy-bassistant/internal/config"
	"billy-bassistant/internal/log"
	"billy-bassistant/pkg/audio"
	"billy-bassistant/pkg/audioio"
	"billy-bassistant/pkg/bus"
	"billy-bassistant/pkg/metrics"
	"billy-bassistant/pkg/motion"
	"billy-bassistant/pkg/motor"
	"billy-bassistant/pkg/personality"
	"billy-bassistant/pkg/realtime"
	"billy-bassistant/pkg/session"
	"billy-bassistant/pkg/smarthome"
	"billy-bassistant/pkg/songs"
	"billy-bassistant/pkg/web"
)

const sayTimeout = 60 * time.Second

// App is the assembled assistant.
type App struct {
	cfg config.Config

	driver  motor.Driver
	motors  *motor.Controller
	mic     audioio.Source
	sink    audioio.Sink
	queue   *audio.Queue
	player  *audio.Player
	library *songs.Library

	store   *personality.Store
	profile *personality.Profile

	publish *bus.Fanout
	mqtt    *bus.MQTT
	ctrl    *session.Controller
	web     *web.Server

	cancel context.CancelFunc
}

// New builds every component from configuration. Nothing irreversible
// happens here; connections are made in Run.
func New(cfg config.Config) (*App, error) {
	if cfg.OpenAI.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}

	a := &App{cfg: cfg}

	a.driver = motor.NewDriver(cfg.Motor.Backend)
	a.motors = motor.NewController(a.driver, motor.ProfileFor(cfg.Motor.Profile))

	flapper := motion.NewFlapper(a.motors, cfg.Audio.ChunkMS, cfg.Motor.Articulation,
		motion.WithSmoothing(cfg.Motor.Smoothing))

	audioCfg := audioio.DefaultConfig()
	audioCfg.SampleRate = cfg.Audio.SampleRate
	audioCfg.ChunkDuration = time.Duration(cfg.Audio.ChunkMS) * time.Millisecond
	// Hardware capture/playback backends slot in here; the mock
	// backends carry text-only mode and CI.
	a.mic = audioio.NewMockSource(audioCfg)
	a.sink = audioio.NewMockSink(audioCfg, audioio.WithRealtimePacing())

	a.queue = audio.NewQueue()
	a.player = audio.NewPlayer(a.queue, a.sink, flapper, a.motors, cfg.Audio.ChunkMS, cfg.Audio.Volume)
	a.library = songs.NewLibrary(cfg.Audio.SongsDir)

	history, err := audio.NewHistory(cfg.Audio.SoundsDir)
	if err != nil {
		return nil, err
	}

	store, err := personality.OpenStore(cfg.Personality.Path)
	if err != nil {
		log.Warn("persona file unavailable, using defaults", "path", cfg.Personality.Path, "error", err)
	} else {
		a.store = store
	}

	if a.store != nil {
		a.profile = personality.NewProfileWith(a.store.Traits())
	} else {
		a.profile = personality.NewProfile()
	}

	home := smarthome.NewClient(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token, cfg.HomeAssistant.Language)

	a.publish = bus.NewFanout()

	sessCfg := session.Config{
		APIKey:           cfg.OpenAI.APIKey,
		Model:            cfg.OpenAI.Model,
		Voice:            cfg.OpenAI.Voice,
		TextOnly:         cfg.Audio.TextOnly,
		ChunkMS:          cfg.Audio.ChunkMS,
		SilenceThreshold: cfg.Audio.SilenceThreshold,
		MicTimeout:       cfg.Audio.MicTimeout,
		SoundsDir:        cfg.Audio.SoundsDir,

		Instructions:        a.instructions,
		AllowPersonaPersist: cfg.Personality.AllowUpdate,

		Dialer:    realtime.Dial,
		Mic:       a.mic,
		Queue:     a.queue,
		Playback:  a.player,
		History:   history,
		Motors:    a.motors,
		Publish:   a.publish,
		Profile:   a.profile,
		SaveTrait: a.saveTrait,
		SmartHome: home,
		PlaySong:  a.playSong,
	}

	a.ctrl = session.NewController(sessCfg)
	a.ctrl.WakeClip = func() error {
		clip, err := audio.PlayWakeClip(cfg.Audio.SoundsDir, a.queue, cfg.Audio.ChunkMS)
		if err == nil {
			log.Debug("wake-up clip played", "clip", clip)
		}
		return err
	}

	webOpts := web.Options{
		Port:       cfg.Server.Port,
		Profile:    a.profile,
		Speaker:    a.ctrl,
		Songs:      a.library,
		History:    history,
		ConfigView: configView(cfg),
	}
	if a.store != nil {
		webOpts.Store = a.store
	}
	a.web = web.NewServer(webOpts)
	a.publish.Add(a.web)

	return a, nil
}

// instructions builds the system prompt from the live profile each
// time the session configures, so trait edits apply on the next
// conversation.
func (a *App) instructions() string {
	custom, backstory := "", ""
	if a.store != nil {
		custom = a.store.Instructions()
		backstory = a.store.Backstory()
	}
	return personality.BuildInstructions(custom, a.profile, backstory)
}

func (a *App) saveTrait(name string, value int) error {
	if a.store == nil {
		return nil
	}
	return a.store.SaveTrait(name, value)
}

// playSong owns the hardware for the duration of one song: choreograph
// head and tail from the stems, then hand control back.
func (a *App) playSong(ctx context.Context, name string) error {
	song, err := a.library.Load(name, a.cfg.Audio.ChunkMS)
	if err != nil {
		return err
	}

	log.Info("playing song", "song", name, "chunks", len(song.Items))
	a.publish.PublishState("playing_song")
	defer a.publish.PublishState("idle")

	a.player.BeginSong(song.Meta.Params())
	defer a.player.EndSong()

	for _, item := range song.Items {
		select {
		case <-ctx.Done():
			a.queue.Flush()
			return ctx.Err()
		default:
		}
		a.queue.Put(item)
	}
	a.queue.Join()
	a.motors.StopAll()
	return nil
}

// Run starts every background worker and blocks until the context is
// canceled or a shutdown command arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.cancel = cancel

	go metrics.Serve(a.cfg.Server.MetricsPort)
	go motor.NewWatchdog(a.motors).Run(ctx)
	go a.player.Run(ctx)
	a.web.StartAsync()

	a.connectMQTT(ctx)

	log.Info("billy ready",
		"model", a.cfg.OpenAI.Model,
		"voice", a.cfg.OpenAI.Voice,
		"motors", a.cfg.Motor.Backend,
		"text_only", a.cfg.Audio.TextOnly)

	<-ctx.Done()
	return nil
}

// connectMQTT attaches the bus when the broker is configured. The fish
// works fine without it.
func (a *App) connectMQTT(ctx context.Context) {
	opts := bus.Options{
		Host:     a.cfg.MQTT.Host,
		Port:     a.cfg.MQTT.Port,
		Username: a.cfg.MQTT.Username,
		Password: a.cfg.MQTT.Password,
		OnSay: func(text string) {
			sayCtx, cancel := context.WithTimeout(ctx, sayTimeout)
			defer cancel()
			if err := a.ctrl.Say(sayCtx, text); err != nil {
				log.Warn("say request failed", "error", err)
			}
		},
		OnCommand: func(command string) {
			switch command {
			case "shutdown":
				log.Info("shutdown requested over mqtt")
				a.cancel()
			case "trigger", "press":
				a.ctrl.Trigger(ctx)
			default:
				log.Warn("unknown mqtt command", "command", command)
			}
		},
	}
	if !opts.Configured() {
		log.Info("mqtt not configured, skipping")
		return
	}

	mq, err := bus.Connect(opts)
	if err != nil {
		log.Warn("mqtt unavailable", "error", err)
		return
	}
	a.mqtt = mq
	a.publish.Add(mq)
}

// Shutdown releases everything in reverse order of startup.
func (a *App) Shutdown() {
	log.Info("shutting down")

	a.queue.Put(nil)
	a.motors.StopAll()
	a.mic.Close()
	a.sink.Close()

	if a.mqtt != nil {
		a.mqtt.PublishState("idle")
		a.mqtt.Close()
	}
	if err := a.web.Shutdown(); err != nil {
		log.Warn("web shutdown failed", "error", err)
	}
	if err := a.driver.Close(); err != nil {
		log.Warn("motor driver close failed", "error", err)
	}
}

// configView is the masked configuration snapshot for the web UI.
func configView(cfg config.Config) map[string]string {
	view := map[string]string{
		"OPENAI_MODEL":        cfg.OpenAI.Model,
		"VOICE":               cfg.OpenAI.Voice,
		"MIC_TIMEOUT_SECONDS": fmt.Sprintf("%d", int(cfg.Audio.MicTimeout.Seconds())),
		"SILENCE_THRESHOLD":   fmt.Sprintf("%.0f", cfg.Audio.SilenceThreshold),
		"MQTT_HOST":           cfg.MQTT.Host,
		"HA_URL":              cfg.HomeAssistant.URL,
		"HA_LANG":             cfg.HomeAssistant.Language,
		"BILLY_PINS":          cfg.Motor.Profile,
	}
	view["OPENAI_API_KEY"] = mask(cfg.OpenAI.APIKey)
	view["MQTT_PASSWORD"] = mask(cfg.MQTT.Password)
	view["HA_TOKEN"] = mask(cfg.HomeAssistant.Token)
	return view
}

// mask keeps just enough of a secret to recognize it.
func mask(s string) string {
	if len(s) <= 4 {
		if s == "" {
			return ""
		}
		return "****"
	}
	return s[:4] + "****"
}
