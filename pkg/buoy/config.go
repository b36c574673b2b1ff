package buoy

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/robotalks/buoy.go/pkg/env"
	fx "github.com/robotalks/buoy.go/pkg/framework"
	"github.com/robotalks/buoy.go/pkg/motion"
	"github.com/robotalks/buoy.go/pkg/motion/ism330"
	"github.com/robotalks/buoy.go/pkg/retry"
	"github.com/robotalks/buoy.go/pkg/sampler"
)

// Config provides the options of a buoy.
type Config struct {
	// Device identifies the buoy on the hub. Defaults to the machine ID.
	Device string `yaml:"device"`

	// MQTTBrokerURL specifies the MQTT broker relaying to the hub.
	// e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string `yaml:"mqtt"`

	// Simulate replaces the motion sensor with a synthetic swell.
	Simulate bool   `yaml:"simulate"`
	I2CBus   string `yaml:"i2c_bus"`
	IMUAddr  uint16 `yaml:"imu_addr"`

	// GPSPort is the serial port of the NMEA receiver. Empty reports
	// the static position instead.
	GPSPort   string  `yaml:"gps_port"`
	GPSBaud   int     `yaml:"gps_baud"`
	StaticLon float64 `yaml:"static_lon"`
	StaticLat float64 `yaml:"static_lat"`

	SamplePeriod     time.Duration `yaml:"sample_period"`
	SamplesPerPacket int           `yaml:"samples_per_packet"`
	SimulatedRate    float64       `yaml:"simulated_rate"`

	IterationPeriod time.Duration `yaml:"iteration_period"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	IdleMode        string        `yaml:"idle_mode"`

	RetryBudget     int           `yaml:"retry_budget"`
	EscalationDelay time.Duration `yaml:"escalation_delay"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	BootDelay       time.Duration `yaml:"boot_delay"`
	ResetMode       string        `yaml:"reset_mode"`
	SamplerFaults   string        `yaml:"sampler_faults"`

	// MetricsAddr serves Prometheus metrics when not empty.
	MetricsAddr string `yaml:"metrics_addr"`
}

var defaultConfig = Config{
	MQTTBrokerURL: "mqtt://localhost:1883/sfy/",
	I2CBus:        "",
	IMUAddr:       ism330.DefaultAddr,

	SamplePeriod:     sampler.DefaultPeriod,
	SamplesPerPacket: motion.MaxSamples,
	SimulatedRate:    208,

	IterationPeriod: time.Second,
	PollInterval:    fx.DefaultInterval,
	IdleMode:        "sleep",

	RetryBudget:     retry.DefaultBudget,
	EscalationDelay: 3 * time.Second,
	RequestTimeout:  5 * time.Second,
	ResetMode:       "exit",
	SamplerFaults:   "reset",
}

func init() {
	if val := os.Getenv("SFY_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
	if val := os.Getenv("SFY_I2C_BUS"); val != "" {
		defaultConfig.I2CBus = val
	}
	if val := os.Getenv("SFY_GPS_PORT"); val != "" {
		defaultConfig.GPSPort = val
	}
	if val := os.Getenv("SFY_DEVICE"); val != "" {
		defaultConfig.Device = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Device, "id", defaultConfig.Device, "Buoy ID, defaults to machine ID")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL")
	flag.BoolVar(&defaultConfig.Simulate, "simulate", defaultConfig.Simulate, "Simulate the motion sensor")
	flag.StringVar(&defaultConfig.I2CBus, "i2c", defaultConfig.I2CBus, "I2C bus of the motion sensor")
	flag.StringVar(&defaultConfig.GPSPort, "gps", defaultConfig.GPSPort, "Serial port of the NMEA receiver")
	flag.IntVar(&defaultConfig.GPSBaud, "gps-baud", defaultConfig.GPSBaud, "Baud rate of the NMEA receiver")
	flag.IntVar(&defaultConfig.SamplesPerPacket, "samples", defaultConfig.SamplesPerPacket, "Samples per motion packet")
	flag.DurationVar(&defaultConfig.SamplePeriod, "sample-period", defaultConfig.SamplePeriod, "Sampling alarm period")
	flag.DurationVar(&defaultConfig.IterationPeriod, "iteration", defaultConfig.IterationPeriod, "Main loop iteration period")
	flag.DurationVar(&defaultConfig.PollInterval, "poll", defaultConfig.PollInterval, "Main loop poll interval in sleep mode")
	flag.StringVar(&defaultConfig.IdleMode, "idle", defaultConfig.IdleMode, "Idle mode between iterations: sleep, halt")
	flag.IntVar(&defaultConfig.RetryBudget, "retries", defaultConfig.RetryBudget, "Failed iterations tolerated before reset")
	flag.DurationVar(&defaultConfig.BootDelay, "boot-delay", defaultConfig.BootDelay, "Delay before bringing up peripherals")
	flag.StringVar(&defaultConfig.ResetMode, "reset", defaultConfig.ResetMode, "Reset mode: exit, reboot")
	flag.StringVar(&defaultConfig.SamplerFaults, "sampler-faults", defaultConfig.SamplerFaults, "Sampler fault policy: reset, skip")
	flag.StringVar(&defaultConfig.MetricsAddr, "metrics", defaultConfig.MetricsAddr, "Listen address of the metrics endpoint")
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// LoadFile merges the YAML file at path into c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

// Validate fills derived defaults and checks the options.
func (c *Config) Validate() error {
	if c.Device == "" {
		id, err := env.MachineID()
		if err != nil {
			return fmt.Errorf("device id: %w", err)
		}
		c.Device = id
	}
	if c.SamplePeriod <= 0 {
		return fmt.Errorf("invalid sample period %v", c.SamplePeriod)
	}
	if c.SamplesPerPacket <= 0 || c.SamplesPerPacket > motion.MaxSamples {
		return fmt.Errorf("samples per packet must be in [1, %d]", motion.MaxSamples)
	}
	if c.IterationPeriod <= 0 {
		return fmt.Errorf("invalid iteration period %v", c.IterationPeriod)
	}
	if _, err := fx.ParseIdleMode(c.IdleMode); err != nil {
		return err
	}
	if _, err := sampler.ParseFaultPolicy(c.SamplerFaults); err != nil {
		return err
	}
	if c.RetryBudget <= 0 {
		return fmt.Errorf("retry budget must be positive")
	}
	return nil
}
