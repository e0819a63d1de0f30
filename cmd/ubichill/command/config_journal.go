package command

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"

	"github.com/pixil98/ubichill/internal/journal"
)

type JournalBackend string

const (
	JournalNone   JournalBackend = "none"
	JournalBolt   JournalBackend = "bolt"
	JournalSQLite JournalBackend = "sqlite"
	JournalRedis  JournalBackend = "redis"

	defaultBusyTimeout = 5 * time.Second
	defaultRedisMaxLen = 10000
)

// JournalConfig selects where lifecycle facts are recorded.
type JournalConfig struct {
	Backend     JournalBackend `json:"backend"`
	Path        string         `json:"path"`
	BusyTimeout string         `json:"busy_timeout"`
	Addr        string         `json:"addr"`
	DB          int            `json:"db"`
	Key         string         `json:"key"`
	MaxLen      int            `json:"max_len"`
	BufferSize  int            `json:"buffer_size"`
}

func (c *JournalConfig) validate() error {
	el := errors.NewErrorList()

	switch c.Backend {
	case "", JournalNone:
	case JournalBolt, JournalSQLite:
		if c.Path == "" {
			el.Add(fmt.Errorf("path is required for the %s backend", c.Backend))
		}
	case JournalRedis:
		if c.Addr == "" {
			el.Add(fmt.Errorf("addr is required for the redis backend"))
		}
		if c.DB < 0 {
			el.Add(fmt.Errorf("db must not be negative"))
		}
	default:
		el.Add(fmt.Errorf("unknown backend %q", c.Backend))
	}

	if c.MaxLen < 0 {
		el.Add(fmt.Errorf("max_len must not be negative"))
	}
	if c.BufferSize < 0 {
		el.Add(fmt.Errorf("buffer_size must not be negative"))
	}
	_, err := parseOptionalDuration("busy_timeout", c.BusyTimeout)
	el.Add(err)

	return el.Err()
}

// buildRecorder opens the configured sink. The reader is nil when the sink
// cannot be queried.
func (c *JournalConfig) buildRecorder() (*journal.Recorder, journal.Reader, error) {
	sink, err := c.openSink()
	if err != nil {
		return nil, nil, err
	}

	var opts []journal.RecorderOpt
	if c.BufferSize > 0 {
		opts = append(opts, journal.WithBufferSize(c.BufferSize))
	}

	reader, _ := sink.(journal.Reader)
	return journal.NewRecorder(sink, opts...), reader, nil
}

func (c *JournalConfig) openSink() (journal.Sink, error) {
	switch c.Backend {
	case "", JournalNone:
		return journal.Discard{}, nil
	case JournalBolt:
		return journal.OpenBolt(c.Path)
	case JournalSQLite:
		timeout, err := parseOptionalDuration("busy_timeout", c.BusyTimeout)
		if err != nil {
			return nil, err
		}
		if timeout == 0 {
			timeout = defaultBusyTimeout
		}
		return journal.OpenSQLite(c.Path, timeout)
	case JournalRedis:
		key := c.Key
		if key == "" {
			key = journal.DefaultRedisKey
		}
		maxLen := c.MaxLen
		if maxLen == 0 {
			maxLen = defaultRedisMaxLen
		}
		return journal.DialRedis(c.Addr, c.DB, key, maxLen)
	default:
		return nil, fmt.Errorf("unknown journal backend %q", c.Backend)
	}
}
