package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --durable-dsn
// on both "rolodex serve" and "rolodex sweep").
type Flag struct {
	// Name is the long flag name (e.g. "listen").
	Name string

	// Shorthand is the one-letter short flag (e.g. "l"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "server.listen").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagListen          = "listen"
	FlagTimezone        = "timezone"
	FlagRedisAddr       = "redis-addr"
	FlagDurableDriver   = "durable-driver"
	FlagDurableDSN      = "durable-dsn"
	FlagMemoryURL       = "memory-url"
	FlagDirectoryURL    = "directory-url"
	FlagScope           = "scope"
	FlagWorkers         = "workers"
	FlagEventStreamProv = "eventstream-provider"
)

// Flags is the registry of every flag shared by rolodex commands.
var Flags = FlagSet{
	FlagListen: {
		Name:        "listen",
		Shorthand:   "l",
		ViperKey:    "server.listen",
		Description: "Address for the API server to listen on",
	},
	FlagTimezone: {
		Name:        "timezone",
		ViperKey:    "server.timezone",
		Description: "IANA timezone used for slot labels and daily counters",
	},
	FlagRedisAddr: {
		Name:        "redis-addr",
		ViperKey:    "redis.addr",
		Description: "Redis address for the fast cache tier (empty disables it)",
	},
	FlagDurableDriver: {
		Name:        "durable-driver",
		ViperKey:    "durable.driver",
		Description: "Durable store driver: sqlite, postgres or memory",
	},
	FlagDurableDSN: {
		Name:        "durable-dsn",
		ViperKey:    "durable.dsn",
		Description: "Durable store DSN (SQLite path or PostgreSQL connection string)",
	},
	FlagMemoryURL: {
		Name:        "memory-url",
		ViperKey:    "sources.memory.url",
		Description: "Base URL of the fact memory API",
	},
	FlagDirectoryURL: {
		Name:        "directory-url",
		ViperKey:    "sources.directory.url",
		Description: "Base URL of the contact directory API",
	},
	FlagScope: {
		Name:        "scope",
		ViperKey:    "sources.availability.scope",
		Description: "Calendar id free slots are read from",
	},
	FlagWorkers: {
		Name:        "workers",
		ViperKey:    "reconcile.workers",
		Description: "Number of reconciliation workers",
	},
	FlagEventStreamProv: {
		Name:        "eventstream-provider",
		ViperKey:    "eventstream.provider",
		Description: "Interaction event publisher: nop or kafka",
	},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}
