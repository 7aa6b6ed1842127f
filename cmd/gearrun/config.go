// Package main implements gearrun, a thin CLI that executes one dispatch
// against a program for local testing, mirroring cmd/gprobe's
// flag/config-file wiring (config.go) but scoped to the execution runtime
// only: no RPC, no P2P, no consensus (see SPEC_FULL §1 "CLI").
package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"

	"github.com/c2h5oh/datasize"
	"github.com/naoina/toml"
	"gopkg.in/urfave/cli.v1"

	"github.com/gearbox/corevm/core/precharge"
	"github.com/gearbox/corevm/params"
)

// tomlSettings mirrors the collaborator's field-name convention (config.go
// in cmd/gprobe): TOML keys match Go struct field names exactly.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

// GearConfig is the full gearrun configuration: the pre-charge cost table
// plus the page-size/reservation knobs, expressed with human-sized values
// where the spec's own field is a byte count (HostPageSize).
type GearConfig struct {
	Precharge       precharge.Rules
	HostPageSize    datasize.ByteSize
	MaxReservations int
	MetricsExpensive bool
}

// defaultConfig seeds GearConfig from the published reference costs in
// params and precharge.DefaultRules, the same two-step "defaults then
// override" pattern as cmd/gprobe's makeConfigNode.
func defaultConfig() GearConfig {
	return GearConfig{
		Precharge:       precharge.DefaultRules(),
		HostPageSize:    params.HostPageSize,
		MaxReservations: params.MaxReservations,
	}
}

func loadConfig(file string, cfg *GearConfig) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

var configFileFlag = cli.StringFlag{
	Name:  "config",
	Usage: "TOML file overriding the published gas-cost table and page-size knobs",
}

func makeConfig(ctx *cli.Context) GearConfig {
	cfg := defaultConfig()
	if file := ctx.GlobalString(configFileFlag.Name); file != "" {
		if err := loadConfig(file, &cfg); err != nil {
			fmt.Fprintln(os.Stderr, "gearrun: config:", err)
			os.Exit(1)
		}
	}
	if ctx.GlobalBool(metricsExpensiveFlag.Name) {
		cfg.MetricsExpensive = true
	}
	return cfg
}
