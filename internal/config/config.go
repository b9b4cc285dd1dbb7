package config

type App struct {
	Name       string
	Version    string
	GitHash    string
	LongName   string
	InstanceId string
}

type Config struct {
	App        App        `yaml:"-"`
	Server     Server     `yaml:"server,omitempty"`
	Player     Player     `yaml:"player,omitempty"`
	NTP        NTP        `yaml:"ntp,omitempty"`
	Telemetry  Telemetry  `yaml:"telemetry,omitempty"`
	PubSub     PubSub     `yaml:"pubsub,omitempty"`
	Prometheus Prometheus `yaml:"prometheus,omitempty"`
	Debug      bool       `yaml:"debug,omitempty"`
	Log        LogConfig  `yaml:"log"`
}

func (cfg *Config) GetDefaults() *Config {
	cfg.SetDefaults()
	return cfg
}

// SetDefaults sets the default values
func (cfg *Config) SetDefaults() {
	cfg.Server = Server{
		RESTPort:         32281,
		CameraSelectPort: 9100,
	}
	cfg.Player = Player{
		ServerIP:  "10.0.31.42",
		HeadsetIP: "10.0.31.220",
		RESTPort:  32281,
	}
	cfg.NTP = NTP{
		Server:         "10.0.31.42",
		FallbackServer: "pool.ntp.org",
	}
	cfg.Telemetry = Telemetry{
		Port: 8502,
	}
	cfg.PubSub = PubSub{
		Enable:  false,
		Adapter: "redis",
		Channel: "telestream-stats",
		Adapters: map[string]interface{}{
			"redis": &Redis{
				Address: ":6379",
				Network: "tcp",
			},
		},
	}
	cfg.Prometheus = Prometheus{
		Enable:        false,
		ListenAddress: "127.0.0.1:3200",
	}
}

// Server holds the robot-side streaming driver settings.
type Server struct {
	RESTPort         int `yaml:"restPort,omitempty"`
	CameraSelectPort int `yaml:"cameraSelectPort,omitempty"`
}

// Player holds the headset-side consumer settings.
type Player struct {
	ServerIP       string `yaml:"serverIp,omitempty"`
	HeadsetIP      string `yaml:"headsetIp,omitempty"`
	RESTPort       int    `yaml:"restPort,omitempty"`
	StatsDirectory string `yaml:"statsDirectory,omitempty"`
}

type NTP struct {
	Server         string `yaml:"server,omitempty"`
	FallbackServer string `yaml:"fallbackServer,omitempty"`
}

type Telemetry struct {
	Port int `yaml:"port,omitempty"`
}

type Redis struct {
	Address  string `yaml:"address,omitempty"`
	Network  string `yaml:"network,omitempty"`
	Password string `yaml:"password,omitempty"`
}

type PubSub struct {
	Enable   bool   `yaml:"enable,omitempty"`
	Adapter  string `yaml:"adapter,omitempty"`
	Channel  string `yaml:"channel,omitempty"`
	Adapters map[string]interface{}
}

type Prometheus struct {
	Enable        bool   `yaml:"enable,omitempty"`
	ListenAddress string `yaml:"listenAddress,omitempty"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}
