package replika

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// Options is the engine configuration. The zero value is the documented
// default for every knob.
type Options struct {
	// AutoParticipate adds new connections as participants.
	AutoParticipate bool `toml:"auto_participate" env:"REPLIKA_AUTO_PARTICIPATE"`

	// AutoConstruct synthesizes construct commands for all registered
	// replicas when a participant is added.
	AutoConstruct bool `toml:"auto_construct" env:"REPLIKA_AUTO_CONSTRUCT"`

	// DefaultScope is the in-scope bit for fresh mirror entries.
	DefaultScope bool `toml:"default_scope" env:"REPLIKA_DEFAULT_SCOPE"`

	// SendChannel tags all engine sends.
	SendChannel byte `toml:"send_channel" env:"REPLIKA_SEND_CHANNEL"`

	// SequencedSerialize numbers serialize messages per object so a
	// receiver can drop stale state updates. Channel-wide; both sides
	// must agree.
	SequencedSerialize bool `toml:"sequenced_serialize" env:"REPLIKA_SEQUENCED_SERIALIZE"`
}

// LoadOptions reads a TOML config file (path may be empty to skip) and
// then applies REPLIKA_* environment overrides on top.
func LoadOptions(path string) (opts Options, err error) {
	if path != "" {
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return opts, errors.Wrap(rerr, "read config")
		}
		if err = toml.Unmarshal(data, &opts); err != nil {
			return opts, errors.Wrap(err, "parse config")
		}
	}
	if err = env.Parse(&opts); err != nil {
		return opts, errors.Wrap(err, "parse environment")
	}
	return opts, nil
}
