// Package config collects the router's command-line/YAML-file configuration
// into a single Config struct: a flag.FlagSet built once in NewConfig,
// overridable by a YAML file whose keys shadow the flag names.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v2"
)

// Config holds every setting the router binary needs to start serving.
type Config struct {
	ConfigFile string
	Flags      *flag.FlagSet `yaml:"-"`

	// discovery identifies which route configuration this instance fetches
	// and how it identifies itself to the discovery cluster.
	DiscoveryAddress string        `yaml:"discovery-address"`
	RouteConfigName  string        `yaml:"route-config-name"`
	LocalClusterName string        `yaml:"local-cluster-name"`
	LocalNodeID      string        `yaml:"local-node-id"`
	RefreshDelay     time.Duration `yaml:"refresh-delay"`
	RequestTimeout   time.Duration `yaml:"request-timeout"`

	// AdminAddress serves the /routes inspection endpoint; empty disables it.
	AdminAddress string `yaml:"admin-address"`

	// Tracing selects the opentracing.Tracer implementation: "noop" or
	// "basic", the latter optionally followed by ":opt1,opt2=value"
	// (see tracing/tracers/basic). Anything else is rejected at startup.
	Tracing string `yaml:"tracing"`

	// ValidateClusters rejects a fetched configuration whose routes
	// reference a cluster name unknown to the local ClusterManager. Dynamic
	// deployments that learn cluster membership out of band should disable
	// this.
	ValidateClusters bool `yaml:"validate-clusters"`
}

func NewConfig() *Config {
	cfg := new(Config)

	flags := flag.NewFlagSet("", flag.ExitOnError)
	flags.StringVar(&cfg.ConfigFile, "config-file", "", "if provided, the flags will be loaded/overwritten by the values in this file (yaml)")

	flags.StringVar(&cfg.DiscoveryAddress, "discovery-address", "", "base URL of the discovery cluster serving route configurations")
	flags.StringVar(&cfg.RouteConfigName, "route-config-name", "", "name of the route configuration this instance fetches")
	flags.StringVar(&cfg.LocalClusterName, "local-cluster-name", "", "cluster name this instance reports itself as when fetching")
	flags.StringVar(&cfg.LocalNodeID, "local-node-id", "", "node id this instance reports itself as when fetching")
	flags.DurationVar(&cfg.RefreshDelay, "refresh-delay", 10*time.Second, "interval between successive fetch attempts")
	flags.DurationVar(&cfg.RequestTimeout, "request-timeout", 5*time.Second, "timeout for a single fetch request")
	flags.StringVar(&cfg.AdminAddress, "admin-address", ":9911", "network address for the /routes admin endpoint, empty disables it")
	flags.StringVar(&cfg.Tracing, "tracing", "noop", "opentracing implementation: noop, or basic[:opt1,opt2=value]")
	flags.BoolVar(&cfg.ValidateClusters, "validate-clusters", false, "reject fetched configurations referencing unknown clusters")

	cfg.Flags = flags
	return cfg
}

func (c *Config) Parse() error {
	return c.ParseArgs(os.Args[0], os.Args[1:])
}

func (c *Config) ParseArgs(progname string, args []string) error {
	c.Flags.Init(progname, flag.ExitOnError)
	if err := c.Flags.Parse(args); err != nil {
		return err
	}

	if len(c.Flags.Args()) != 0 {
		return fmt.Errorf("invalid arguments: %s", c.Flags.Args())
	}

	if c.ConfigFile != "" {
		yamlFile, err := os.ReadFile(c.ConfigFile)
		if err != nil {
			return fmt.Errorf("invalid config file: %w", err)
		}

		if err := yaml.Unmarshal(yamlFile, c); err != nil {
			return fmt.Errorf("unmarshalling config file error: %w", err)
		}

		// flags given on the command line still take precedence over the file
		if err := c.Flags.Parse(args); err != nil {
			return err
		}
	}

	name, _, _ := strings.Cut(c.Tracing, ":")
	switch name {
	case "", "noop", "basic":
	default:
		return fmt.Errorf("unknown tracing implementation: %s", c.Tracing)
	}

	if c.LocalNodeID == "" {
		c.LocalNodeID = uuid.NewString()
	}

	return nil
}
