package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Settings are the deployment knobs read from the environment. Command line
// flags override them.
type Settings struct {
	Config       string
	TablePath    string
	AssetBase    string
	OverridePath string
	Volume       float64
	Intensity    float64
	Effects      bool
	Shader       string
	Quality      string
	Backend      string
	FPS          float64
	NoiseFloor   float64
	WebPort      int
	MQTTBroker   string
	MQTTTopic    string
	MQTTClient   string
	MQTTUser     string
	MQTTPass     string
	StatusEvery  time.Duration
}

// LoadSettings loads an optional .env file and reads FANTASIA_* variables.
func LoadSettings(files ...string) Settings {
	_ = godotenv.Load(files...)

	return Settings{
		Config:       getEnv("FANTASIA_CONFIG", ""),
		TablePath:    getEnv("FANTASIA_TABLE", ""),
		AssetBase:    getEnv("FANTASIA_ASSET_BASE", "."),
		OverridePath: getEnv("FANTASIA_OVERRIDE_FILE", ""),
		Volume:       getEnvFloat("FANTASIA_VOLUME", 0.05),
		Intensity:    getEnvFloat("FANTASIA_INTENSITY", 0.8),
		Effects:      getEnvBool("FANTASIA_EFFECTS", true),
		Shader:       getEnv("FANTASIA_SHADER", "cpu"),
		Quality:      getEnv("FANTASIA_QUALITY", "balanced"),
		Backend:      getEnv("FANTASIA_BACKEND", "terminal"),
		FPS:          getEnvFloat("FANTASIA_FPS", 30),
		NoiseFloor:   getEnvFloat("FANTASIA_NOISE_FLOOR", 0),
		WebPort:      getEnvInt("FANTASIA_WEB_PORT", 0),
		MQTTBroker:   getEnv("FANTASIA_MQTT_BROKER", ""),
		MQTTTopic:    getEnv("FANTASIA_MQTT_TOPIC", "fantasia"),
		MQTTClient:   getEnv("FANTASIA_MQTT_CLIENT_ID", "fantasia-lobby"),
		MQTTUser:     getEnv("FANTASIA_MQTT_USERNAME", ""),
		MQTTPass:     getEnv("FANTASIA_MQTT_PASSWORD", ""),
		StatusEvery:  getEnvDuration("FANTASIA_STATUS_INTERVAL", 5*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("Warning: failed to parse %s as float, using default: %v", key, err)
		return defaultValue
	}
	return floatValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: failed to parse %s as int, using default: %v", key, err)
		return defaultValue
	}
	return intValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Warning: failed to parse %s as bool, using default: %v", key, err)
		return defaultValue
	}
	return boolValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		log.Printf("Warning: failed to parse %s as duration, using default: %v", key, err)
		return defaultValue
	}
	return d
}
