// Command loopd boots the loop engine: it wires config, the Message Store,
// the Destination Router and its Senders, the Apply Scheduler, the
// Note-off Scheduler, the Clock Generator, the Extension Pipeline, the Loop
// Engine, and the HTTP control plane, then serves. The teacher's go.mod
// already carried cobra unused; this gives it a root command with a
// default "serve" subcommand, plus "version".
package main

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/oiduna/loopd/internal/api"
	"github.com/oiduna/loopd/internal/apply"
	"github.com/oiduna/loopd/internal/clientmeta"
	"github.com/oiduna/loopd/internal/clock"
	"github.com/oiduna/loopd/internal/config"
	"github.com/oiduna/loopd/internal/engine"
	"github.com/oiduna/loopd/internal/extension"
	"github.com/oiduna/loopd/internal/midisend"
	"github.com/oiduna/loopd/internal/noteoff"
	"github.com/oiduna/loopd/internal/oscsend"
	"github.com/oiduna/loopd/internal/router"
	"github.com/oiduna/loopd/internal/sse"
	"github.com/oiduna/loopd/internal/store"
)

// version is set via -ldflags "-X main.version=..." at build time.
var version = "dev"

const sentryFlushTimeout = 2 * time.Second

func main() {
	root := &cobra.Command{
		Use:   "loopd",
		Short: "Real-time musical loop engine with an HTTP/SSE control plane",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the loop engine and HTTP control plane (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	})

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func serve() error {
	cfg := config.Load()

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:     cfg.SentryDSN,
			Release: "loopd@" + version,
			Debug:   cfg.LogDebug,
		}); err != nil {
			log.Printf("[MAIN] failed to initialize sentry: %v", err)
		} else {
			defer sentry.Flush(sentryFlushTimeout)
		}
	}

	broker := sse.New()
	if cfg.SSEBufferSize > 0 {
		broker = sse.NewWithBuffer(cfg.SSEBufferSize)
	}

	st := store.New()
	clients := clientmeta.New(broker)
	ext := extension.New()

	rtr := router.New(st.WarnUnknownOnce)

	oscSender := oscsend.New("osc", oscsend.Config{
		Host: cfg.OSCHost,
		Port: cfg.OSCPort,
	})
	rtr.Register(engine.DestinationOSC, oscSender)

	midiSender := midisend.New()
	if err := selectMIDIPort(midiSender, cfg.MIDIPort); err != nil {
		log.Printf("[MAIN] midi port not selected: %v", err)
	}

	applyScheduler := apply.New()
	noteoffScheduler := noteoff.New()
	clockGen := clock.New()

	eng := engine.New(engine.Deps{
		Store:   st,
		Router:  rtr,
		Apply:   applyScheduler,
		NoteOff: noteoffScheduler,
		Clock:   clockGen,
		Ext:     ext,
		MIDI:    midiSender,
		Pub:     broker,
	})

	srv := &api.Server{
		Store:   st,
		Router:  rtr,
		Apply:   applyScheduler,
		Engine:  eng,
		Ext:     ext,
		Clients: clients,
		Broker:  broker,
		MIDI:    midiSender,
		NoteOff: noteoffScheduler,
	}

	if !cfg.LogDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	addr := cfg.APIHost + ":" + cfg.APIPort
	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv.NewRouter(),
	}

	log.Printf("[MAIN] loopd %s listening on %s (osc %s:%d)", version, addr, cfg.OSCHost, cfg.OSCPort)
	if err := httpServer.ListenAndServe(); err != nil {
		if cfg.SentryDSN != "" {
			sentry.CaptureException(err)
		}
		return err
	}
	return nil
}

// selectMIDIPort opens preferred (a case-insensitive substring match) if
// non-empty, otherwise the first port the system reports. No ports present
// is not an error: MIDI tracks simply drop their output until a port is
// selected via POST /midi/port.
func selectMIDIPort(sender *midisend.Sender, preferred string) error {
	ports := midisend.Ports()
	if len(ports) == 0 {
		return nil
	}
	if preferred != "" {
		for _, p := range ports {
			if strings.Contains(strings.ToLower(p), strings.ToLower(preferred)) {
				return sender.SelectPort(p)
			}
		}
		return fmt.Errorf("no midi port matching %q (available: %v)", preferred, ports)
	}
	return sender.SelectPort(ports[0])
}
