// Package sh provides the operator shell of the hub.
package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/golang/protobuf/proto"

	"github.com/robotalks/buoy.go/pkg/relay/mqtt"
	"github.com/robotalks/buoy.go/pkg/relay/wire"
)

// Config provides the options of the shell.
type Config struct {
	// MQTTBrokerURL specifies the broker the buoys relay through.
	MQTTBrokerURL string
	// Device is selected on start when not empty.
	Device string
	// Timeout bounds discovery and waiting for messages.
	Timeout time.Duration
}

var defaultConfig = Config{
	MQTTBrokerURL: "mqtt://localhost:1883/sfy/",
	Timeout:       5 * time.Second,
}

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool

	Shell  *ishell.Shell
	Config *Config
	Queue  *mqtt.Queue
	Device string
}

const (
	shellKey         = "$shell"
	unselectedPrompt = "[none] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&DiscoverCmd,
		&SelectCmd,
		&DeselectCmd,
		&StatusCmd,
		&WatchCmd,
	}
)

func init() {
	if val := os.Getenv("SFY_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL")
	flag.StringVar(&defaultConfig.Device, "id", defaultConfig.Device, "Buoy to select")
	flag.DurationVar(&defaultConfig.Timeout, "timeout", defaultConfig.Timeout, "Timeout of discovery and status")
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *Config, q *mqtt.Queue) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
		Queue:  q,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unselectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeSelected wraps command func requires a selected buoy.
func MustBeSelected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Device == "" {
			c.Err(fmt.Errorf("no buoy selected"))
			return
		}
		fn(c)
	}
}

// FormatMeta prints Meta into friendly string for display.
func FormatMeta(meta *wire.Meta) string {
	started := time.Unix(0, meta.StartedAt*int64(time.Millisecond)).UTC()
	return fmt.Sprintf("%s: %s, %g Hz, %d samples/packet, up since %s",
		meta.Device, meta.Version, meta.SampleRate, meta.SamplesPerPacket, started.Format(time.RFC3339))
}

// Discover lists the connected buoys.
func (s *Shell) Discover() ([]*wire.Meta, error) {
	return mqtt.Discover(context.Background(), s.Queue, s.Config.Timeout)
}

// Select makes device the target of the following commands.
func (s *Shell) Select(device string) {
	s.Device = device
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", device))
}

// Deselect clears the selected buoy.
func (s *Shell) Deselect() {
	s.Device = ""
	s.Shell.SetPrompt(unselectedPrompt)
}

// Watch prints up to count messages of kind from the selected buoy.
// It returns the number of messages received before timeout.
func (s *Shell) Watch(c *ishell.Context, kind string, count int, timeout time.Duration) int {
	msgCh := make(chan proto.Message, count)
	sub := s.Queue.SubMsgs(mqtt.DeviceTopic(s.Device, kind), func(_ string, msg proto.Message) {
		select {
		case msgCh <- msg:
		default:
		}
	})
	defer sub.Close()
	expire := time.After(timeout)
	for n := 0; n < count; n++ {
		select {
		case msg := <-msgCh:
			s.print(c, msg)
		case <-expire:
			return n
		}
	}
	return count
}

func (s *Shell) print(c *ishell.Context, msg proto.Message) {
	if s.OutputJSON {
		out, err := json.Marshal(msg)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Println(wire.Describe(msg))
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.Config.Device != "" {
		s.Select(s.Config.Device)
	}
	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// DiscoverCmd discovers buoys.
	DiscoverCmd = ishell.Cmd{
		Name:    "discover",
		Aliases: []string{"list", "l"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			metas, err := s.Discover()
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				out, err := json.Marshal(metas)
				if err != nil {
					c.Err(err)
					return
				}
				c.Println(string(out))
				return
			}
			if len(metas) == 0 {
				c.Println("No buoys found")
				return
			}
			for _, meta := range metas {
				c.Println(FormatMeta(meta))
			}
		},
	}

	// SelectCmd selects a buoy.
	SelectCmd = ishell.Cmd{
		Name:    "select",
		Aliases: []string{"s"},
		Help:    "[ID]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) > 0 {
				s.Select(c.Args[0])
				return
			}
			metas, err := s.Discover()
			if err != nil {
				c.Err(err)
				return
			}
			switch {
			case len(metas) == 0:
				c.Err(fmt.Errorf("no buoy discovered"))
			case len(metas) == 1:
				s.Select(metas[0].Device)
			case !s.Interactive:
				c.Err(fmt.Errorf("more than 1 buoys discovered in non-interactive mode"))
			default:
				items := make([]string, len(metas))
				for n, meta := range metas {
					items[n] = FormatMeta(meta)
				}
				if index := s.Shell.MultiChoice(items, "Which one?"); index >= 0 {
					s.Select(metas[index].Device)
				}
			}
		},
	}

	// DeselectCmd clears the selection.
	DeselectCmd = ishell.Cmd{
		Name:    "deselect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Deselect()
		},
	}

	// StatusCmd waits for the next status of the selected buoy.
	StatusCmd = ishell.Cmd{
		Name: "status",
		Help: "",
		Func: MustBeSelected(func(c *ishell.Context) {
			s := ShellFrom(c)
			if s.Watch(c, mqtt.TopicStatus, 1, s.Config.Timeout) == 0 {
				c.Err(fmt.Errorf("no status within %v", s.Config.Timeout))
			}
		}),
	}

	// WatchCmd prints messages of the selected buoy.
	WatchCmd = ishell.Cmd{
		Name:    "watch",
		Aliases: []string{"w"},
		Help:    "axl|log|status [COUNT]",
		Func: MustBeSelected(func(c *ishell.Context) {
			s := ShellFrom(c)
			kind, count := mqtt.TopicAxl, 10
			if len(c.Args) > 0 {
				kind = c.Args[0]
			}
			if len(c.Args) > 1 {
				n, err := strconv.Atoi(c.Args[1])
				if err != nil || n <= 0 {
					c.Err(fmt.Errorf("invalid count %q", c.Args[1]))
					return
				}
				count = n
			}
			switch kind {
			case mqtt.TopicAxl, mqtt.TopicLog, mqtt.TopicStatus:
			default:
				c.Err(fmt.Errorf("unknown message kind %q", kind))
				return
			}
			timeout := s.Config.Timeout * time.Duration(count)
			if n := s.Watch(c, kind, count, timeout); n < count {
				c.Printf("%d of %d messages before timeout\n", n, count)
			}
		}),
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	conf := NewConfig()
	q, err := mqtt.NewQueueFromURL(conf.MQTTBrokerURL)
	if err != nil {
		log.Fatalln(err)
	}
	if err := q.ConnectWait(conf.Timeout); err != nil {
		log.Fatalf("connect %s: %v", conf.MQTTBrokerURL, err)
	}
	defer q.Close()
	New(conf, q).Run(flag.Args()...)
}
