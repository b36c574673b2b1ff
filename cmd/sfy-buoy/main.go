package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"log"
	"net/http"

	"github.com/golang/glog"

	"github.com/robotalks/buoy.go/pkg/buoy"
	fx "github.com/robotalks/buoy.go/pkg/framework"
	"github.com/robotalks/buoy.go/pkg/metrics"
)

var configFile string

func init() {
	buoy.SetupFlags()
	flag.StringVar(&configFile, "config", configFile, "YAML config file, overrides flags")
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf := buoy.NewConfig()
	if configFile != "" {
		if err := conf.LoadFile(configFile); err != nil {
			log.Fatalln(err)
		}
	}
	if err := conf.Validate(); err != nil {
		log.Fatalln(err)
	}

	m, err := metrics.NewCollector(nil)
	if err != nil {
		log.Fatalln(err)
	}
	if conf.MetricsAddr != "" {
		go func() {
			log.Fatalln(http.ListenAndServe(conf.MetricsAddr, m.Handler()))
		}()
	}

	devices, err := conf.OpenDevices()
	if err != nil {
		log.Fatalln(err)
	}
	defer devices.Close()

	b, err := buoy.Boot(conf, devices, m)
	if err != nil {
		log.Fatalln(err)
	}
	glog.Infof("buoy %s booted", conf.Device)

	runner := fx.NewRunner().HandleSignals()
	if err := b.Run(runner.Context); err != nil && err != context.Canceled {
		log.Fatalln(err)
	}
}
