// Command server is the clashrelay supervisor: it wires the session
// registry, frame store, inference dispatcher, WebRTC signaling
// endpoint, WebSocket fanout, and watchdog into a single HTTP
// listener, then blocks until an interrupt signal triggers graceful
// shutdown. Follows a flat main.go style (http.HandleFunc/ListenAndServe,
// package-level singletons built up front) rather than a
// framework-driven bootstrap.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clashrelay/streamcore/internal/config"
	"github.com/clashrelay/streamcore/internal/detect"
	"github.com/clashrelay/streamcore/internal/frame"
	"github.com/clashrelay/streamcore/internal/httpapi"
	"github.com/clashrelay/streamcore/internal/inference"
	"github.com/clashrelay/streamcore/internal/rtcsignal"
	"github.com/clashrelay/streamcore/internal/session"
	"github.com/clashrelay/streamcore/internal/stats"
	"github.com/clashrelay/streamcore/internal/watchdog"
	"github.com/clashrelay/streamcore/internal/wsfanout"
)

func main() {
	cfg := config.Load()

	frames := frame.NewStore()
	registry := session.NewRegistry(cfg.MaxViewersPerSession)
	results := inference.NewStore(cfg.InferenceTTL)
	fanout := wsfanout.NewHub()
	go fanout.Run()

	recorder, err := stats.Open(cfg.StatsDBPath)
	if err != nil {
		log.Fatalf("server: open stats db: %v", err)
	}
	defer recorder.Close()

	detector, timerReader := buildAnalyzers(cfg.CascadeFile)

	dispatcher := inference.NewDispatcher(frames, results, detector, timerReader, cfg.InferenceInterval)
	dispatcher.OnComplete = func(code string, elapsed time.Duration, err error) {
		if err != nil {
			recorder.InferenceError(code, err)
			return
		}
		recorder.InferenceOK(code, elapsed.Milliseconds())
		fanoutResult, ok := results.Get(code)
		if !ok {
			fanout.PublishNoData(code)
			return
		}
		fanout.Publish(code, fanoutResult)
	}

	api, err := rtcsignal.NewAPI()
	if err != nil {
		log.Fatalf("server: build webrtc api: %v", err)
	}
	offers := rtcsignal.NewEndpoint(api, rtcsignal.ICEServers(cfg.StunURLs), registry, frames, cfg.IceTimeout, cfg.MaxFrameAge, cfg.TargetWidth)

	srv := httpapi.NewServer(registry, frames, results, offers, fanout, recorder, cfg.MaxConnectionsPerIP, cfg.MaxMessagesPerConnection, cfg.RateLimitWindow)
	srv.SetUpload(dispatcher)

	wd := watchdog.New(registry, frames, dispatcher, recorder, cfg.WatchdogInterval, cfg.SessionTimeout, cfg.FrameTimeout)
	wdCtx, cancelWatchdog := context.WithCancel(context.Background())
	go wd.Run(wdCtx)
	defer cancelWatchdog()

	httpServer := &http.Server{
		Addr:    cfg.Addr(),
		Handler: srv.Mux(),
	}

	go func() {
		log.Printf("server: listening on %s", cfg.Addr())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("server: shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("server: graceful shutdown failed: %v", err)
	}
	for _, code := range registry.Codes() {
		registry.CloseAll(code)
	}
}

// buildAnalyzers loads the Haar cascade configured by CASCADE_FILE,
// falling back to the no-op analyzers (DESIGN NOTES, "dynamic dispatch
// on analyzers") so the relay still runs without a model present.
func buildAnalyzers(cascadeFile string) (detect.Detector, detect.TimerReader) {
	if cascadeFile == "" {
		log.Println("server: CASCADE_FILE unset, running with no-op detector")
		return detect.NoopDetector{}, detect.NoopTimerReader{}
	}
	cascade, err := detect.NewCascadeDetector(cascadeFile)
	if err != nil {
		log.Printf("server: load cascade %q failed, falling back to no-op: %v", cascadeFile, err)
		return detect.NoopDetector{}, detect.NoopTimerReader{}
	}
	return cascade, detect.NewRegionTimerReader()
}
