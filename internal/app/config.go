package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ctu-vras/telestream/internal/config"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

func initConfig() *config.Config {
	return (&config.Config{App: app}).GetDefaults()
}

func loadConfig() {
	newCfg := initConfig()
	newCfg.Load(app, flags.config)
	if cfg == nil {
		cfg = newCfg
	} else {
		*cfg = *newCfg
	}
}

func dumpConfig() {
	var v interface{}
	y, _ := yaml.Marshal(cfg)

	if err := yaml.Unmarshal(y, &v); err != nil {
		log.Fatalf("failed to unmarshal config: %s", err)
	}

	if flags.dump != "all" {
		for _, a := range strings.Split(flags.dump, ".") {
			var i *int
			if n, err := strconv.Atoi(a); err == nil {
				i = &n
			}
			switch node := v.(type) {
			case []interface{}:
				if i == nil || len(node) < *i+1 {
					v = nil
				} else {
					v = node[*i]
				}
			case map[string]interface{}:
				var ok bool
				if v, ok = node[a]; !ok {
					v = nil
				}
			default:
				v = nil
			}
			if v == nil {
				break
			}
		}
	}
	if v != nil {
		b, _ := yaml.Marshal(v)
		fmt.Print(string(b))
		os.Exit(0)
	}
	os.Exit(1)
}
