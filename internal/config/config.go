package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
)

const (
	BackendMemory = "memory"
	BackendSqlite = "sqlite"
	BackendRedis  = "redis"

	RemotePostgres = "postgres"
	RemoteRest     = "rest"
)

type Application struct {
	Host     string   `koanf:"host"`
	Log      Log      `koanf:"log"`
	Storage  Storage  `koanf:"storage"`
	Sync     Sync     `koanf:"sync"`
	Schedule Schedule `koanf:"schedule"`
}

type Log struct {
	Level string `koanf:"level"`
	// File enables rotated file output next to stderr when set.
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"maxsizemb"`
	MaxBackups int    `koanf:"maxbackups"`
}

type Storage struct {
	Backend     string `koanf:"backend"`
	SqlitePath  string `koanf:"sqlitepath"`
	RedisUrl    string `koanf:"redisurl"`
	RedisPrefix string `koanf:"redisprefix"`
}

type Sync struct {
	Enabled      bool          `koanf:"enabled"`
	Kind         string        `koanf:"kind"`
	Debounce     time.Duration `koanf:"debounce"`
	PingInterval time.Duration `koanf:"pinginterval"`
	// UserUid identifies the account rows belong to when talking to Postgres directly.
	UserUid  string   `koanf:"useruid"`
	Database Database `koanf:"db"`
	Rest     Rest     `koanf:"rest"`
}

type Database struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	User   string `koanf:"user"`
	Pass   string `koanf:"pass"`
	Name   string `koanf:"name"`
	Schema string `koanf:"schema"`
}

type Rest struct {
	Url          string `koanf:"url"`
	ApiKey       string `koanf:"apikey"`
	AccessToken  string `koanf:"accesstoken"`
	RefreshToken string `koanf:"refreshtoken"`
	ClientId     string `koanf:"clientid"`
}

type Schedule struct {
	SaveDebounce     time.Duration `koanf:"savedebounce"`
	RolloverInterval time.Duration `koanf:"rolloverinterval"`
	ReminderInterval time.Duration `koanf:"reminderinterval"`
}

// Configured reports whether enough remote settings exist to start syncing.
func (s Sync) Configured() bool {
	if !s.Enabled {
		return false
	}
	switch s.Kind {
	case RemotePostgres:
		return s.Database.Host != "" && s.Database.Name != ""
	case RemoteRest:
		return s.Rest.Url != ""
	default:
		return false
	}
}

func Defaults() Application {
	return Application{
		Host: ":8181",
		Log: Log{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Storage: Storage{
			Backend:     BackendSqlite,
			SqlitePath:  "./data/ritual.db",
			RedisUrl:    "redis://localhost:6379/0",
			RedisPrefix: "ritual:",
		},
		Sync: Sync{
			Enabled:      false,
			Kind:         RemotePostgres,
			Debounce:     5 * time.Second,
			PingInterval: 30 * time.Second,
			Database: Database{
				Host:   "localhost",
				Port:   5432,
				User:   "ritual",
				Pass:   "",
				Name:   "ritual",
				Schema: "ritual",
			},
		},
		Schedule: Schedule{
			SaveDebounce:     500 * time.Millisecond,
			RolloverInterval: time.Minute,
			ReminderInterval: 30 * time.Second,
		},
	}
}

func Load(path string) (Application, error) {
	var k = koanf.New(".")

	err := k.Load(structs.Provider(Defaults(), "koanf"), nil)
	if err != nil {
		log.Errorf("error loading config from structs: %v", err)
		return Application{}, err
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if os.IsNotExist(err) {
			log.Infof("Config file not found at %s, using defaults and environment variables", path)
		} else {
			log.Errorf("error loading config from YAML: %v", err)
			return Application{}, err
		}
	} else {
		log.Infof("Loaded configuration from file: %s", path)
	}

	err = k.Load(env.Provider(".", env.Opt{
		Prefix: "RITUAL_",
		TransformFunc: func(k, v string) (string, any) {
			k = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(k, "RITUAL_")), "_", ".")
			return k, v
		},
	}), nil)
	if err != nil {
		log.Errorf("error loading config from envs: %v", err)
		return Application{}, err
	}

	var app Application
	if err := k.Unmarshal("", &app); err != nil {
		return Application{}, err
	}

	return app, nil
}
