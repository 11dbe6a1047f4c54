package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/guidoenr/fantasia/internal/app"
	"github.com/guidoenr/fantasia/internal/audio"
	"github.com/guidoenr/fantasia/internal/config"
	"github.com/guidoenr/fantasia/internal/override"
	"github.com/guidoenr/fantasia/internal/params"
	"github.com/guidoenr/fantasia/internal/remote"
	"github.com/guidoenr/fantasia/internal/render"
	"github.com/guidoenr/fantasia/internal/web"
)

func main() {
	env := config.LoadSettings()

	var (
		query      = flag.String("config", env.Config, "Force a package by id or name (substring match)")
		tablePath  = flag.String("table", env.TablePath, "JSON meeting table (hot reloaded); empty uses the built-in table")
		assetBase  = flag.String("assets", env.AssetBase, "Directory or URL that asset paths are resolved against")
		overrides  = flag.String("override-file", env.OverridePath, "Override flag file (default: user config dir)")
		volume     = flag.Float64("volume", env.Volume, "Initial music volume (0-1)")
		intensity  = flag.Float64("intensity", env.Intensity, "Effects intensity (0-1)")
		effects    = flag.Bool("effects", env.Effects, "Enable audio-reactive effects")
		shader     = flag.String("shader", env.Shader, "Shader backend (cpu|gl|off)")
		quality    = flag.String("quality", env.Quality, "Shader quality (high|balanced|eco)")
		backend    = flag.String("backend", env.Backend, "Output backend (terminal|sdl)")
		colorMode  = flag.String("color-mode", "truecolor", "Terminal color mode (truecolor|ansi256|mono)")
		palette    = flag.String("palette", "default", "Glyph palette for mono mode (default|box|lines|spark)")
		winW       = flag.Int("window-width", 960, "SDL window width")
		winH       = flag.Int("window-height", 540, "SDL window height")
		width      = flag.Int("width", 80, "Terminal columns when the size cannot be detected")
		height     = flag.Int("height", 24, "Terminal rows when the size cannot be detected")
		targetFPS  = flag.Float64("fps", env.FPS, "Target frames per second")
		noiseFloor = flag.Float64("noise-floor", env.NoiseFloor, "Zero band energy below this level (0 disables)")
		capture    = flag.Bool("capture", false, "Analyze a live input device instead of the package music")
		deviceName = flag.String("audio-device", "", "Optional PortAudio device name (substring match)")
		bufferSize = flag.Int("buffer-size", 1024, "Capture buffer size in frames")
		noAudio    = flag.Bool("no-audio", false, "Run with synthetic audio (for testing)")
		listDevs   = flag.Bool("list-audio-devices", false, "List available audio input devices and exit")
		logoPath   = flag.String("logo", "", "PNG or JPEG logo for the watermark")
		webPort    = flag.Int("web-port", env.WebPort, "Serve the control API on this port (0 disables)")
		broker     = flag.String("mqtt-broker", env.MQTTBroker, "MQTT broker URL, e.g. tcp://localhost:1883")
		topic      = flag.String("mqtt-topic", env.MQTTTopic, "MQTT topic prefix")
		profile    = flag.String("profile", "", "Append per-frame timings to this CSV file")
		debug      = flag.Bool("debug", false, "Enable verbose logging")
		showStatus = flag.Bool("status", true, "Display status bar")
	)

	flag.Parse()

	if *width <= 0 || *height <= 0 {
		log.Fatalf("invalid dimensions: width=%d height=%d", *width, *height)
	}
	if *targetFPS <= 0 {
		log.Fatalf("fps must be positive (got %.2f)", *targetFPS)
	}
	if *noiseFloor < 0 || *noiseFloor >= 1 {
		log.Fatalf("noise-floor must be in [0,1) (got %.2f)", *noiseFloor)
	}
	if *bufferSize <= 0 {
		log.Fatalf("buffer-size must be positive (got %d)", *bufferSize)
	}

	if fd := int(os.Stdout.Fd()); fd >= 0 {
		if w, h, err := term.GetSize(fd); err == nil {
			if w > 0 {
				*width = w
			}
			if h > 0 {
				*height = h
			}
		}
	}

	logger := log.New(os.Stdout, "[fantasia] ", log.LstdFlags)
	if !*debug {
		logger.SetOutput(os.Stderr)
		logger.SetFlags(0)
	}

	if *listDevs {
		devices, err := audio.ListDevices()
		if err != nil {
			logger.Fatalf("list devices: %v", err)
		}
		fmt.Printf("\n=== Audio Input Devices ===\n\n")
		for _, dev := range devices {
			markers := ""
			if dev.IsDefaultInput {
				markers += " (default)"
			}
			if dev.IsLoopback {
				markers += " (loopback)"
			}
			fmt.Printf("- %s [%s]%s\n    inputs:%d sample:%.0f Hz\n",
				dev.Name, dev.HostAPI, markers, dev.MaxInput, dev.DefaultSampleHz)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	table, err := config.LoadTable(*tablePath)
	if err != nil {
		logger.Fatalf("meeting table: %v", err)
	}
	var tableUpdates <-chan config.Table
	if *tablePath != "" {
		tableUpdates, err = config.Watch(ctx, *tablePath, logger)
		if err != nil {
			logger.Printf("table hot reload disabled: %v", err)
		}
	}

	overridePath := *overrides
	if overridePath == "" {
		if overridePath, err = override.DefaultPath(); err != nil {
			logger.Printf("override file: %v", err)
		}
	}
	store := override.NewStore(overridePath, table)

	fx := params.DefaultEffects()
	fx.Enabled = *effects
	fx.SetIntensity(*intensity)
	vol := *volume

	explicit := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
	savePath := web.DefaultSavePath()
	if saved, err := web.LoadSettings(savePath); err == nil {
		if !explicit["volume"] {
			vol = saved.Volume
		}
		if !explicit["effects"] && !explicit["intensity"] {
			fx = saved.Effects
		}
		logger.Printf("loaded saved settings from %s", savePath)
	}

	var logo image.Image
	if *logoPath != "" {
		if logo, err = loadImage(*logoPath); err != nil {
			logger.Printf("logo: %v", err)
		}
	}

	board := &remote.Board{}
	cmds := make(chan remote.Command, 16)

	a, err := app.New(app.Config{
		Width:         *width,
		Height:        *height,
		TargetFPS:     *targetFPS,
		Backend:       *backend,
		ColorMode:     *colorMode,
		Palette:       *palette,
		WindowWidth:   *winW,
		WindowHeight:  *winH,
		ShowStatusBar: *showStatus && *backend != "sdl",
		Shader:        *shader,
		Quality:       *quality,
		Volume:        vol,
		Effects:       fx,
		Capture:       *capture,
		DeviceName:    *deviceName,
		BufferSize:    *bufferSize,
		DisableAudio:  *noAudio,
		NoiseFloor:    *noiseFloor,
		AssetBase:     *assetBase,
		Logo:          logo,
		Table:         table,
		TableUpdates:  tableUpdates,
		Query:         *query,
		Overrides:     store,
		Commands:      cmds,
		Board:         board,
		ProfilePath:   *profile,
		HTTPClient:    &http.Client{Timeout: 30 * time.Second},
		Log:           logger,
	})
	if err != nil {
		logger.Fatalf("failed to create app: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "cleanup error: %v\n", err)
		}
	}()

	if *broker != "" {
		bridge, err := remote.Dial(remote.Config{
			Broker:      *broker,
			ClientID:    env.MQTTClient,
			Username:    env.MQTTUser,
			Password:    env.MQTTPass,
			Topic:       *topic,
			StatusEvery: env.StatusEvery,
			Log:         logger,
		}, cmds, board)
		if err != nil {
			logger.Printf("mqtt disabled: %v", err)
		} else {
			defer bridge.Close()
			go bridge.Run(ctx)
		}
	}

	if *webPort > 0 {
		srv := web.NewServer(board, a, cmds, web.Options{SavePath: savePath, Log: logger})
		go func() {
			if err := srv.Start(ctx, *webPort); err != nil {
				logger.Printf("web: %v", err)
			}
		}()
	}

	if err := a.Run(ctx); err != nil {
		if ctx.Err() != nil {
			fmt.Println("\nExiting...")
			return
		}
		logger.Fatalf("runtime error: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s:\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintf(flag.CommandLine.Output(), "\ncolor modes: %v\nshader quality: %v\npalettes: %v\n",
			render.ColorModeNames(), render.QualityModeNames(), render.PaletteNames())
	}
}
