package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/goodieshq/godiode/internal/utils"
)

// File is the optional TOML configuration. All fields are pointers so a
// file can override any subset of the defaults; explicit CLI flags still
// win over file values.
type File struct {
	Send    FileSend    `toml:"send"`
	Receive FileReceive `toml:"receive"`
}

type FileSend struct {
	Port             *uint16 `toml:"port"`
	Rate             *int64  `toml:"rate"`
	ChunkBytes       *int    `toml:"chunk_bytes"`
	K                *int    `toml:"k"`
	R                *int    `toml:"r"`
	RedundantFinal   *int    `toml:"redundant_final"`
	RedundantInitial *int    `toml:"redundant_initial"`
}

type FileReceive struct {
	Port           *uint16  `toml:"port"`
	ChunkBytes     *int     `toml:"chunk_bytes"`
	K              *int     `toml:"k"`
	R              *int     `toml:"r"`
	WindowBlocks   *int     `toml:"window"`
	IdleTimeoutSec *float64 `toml:"idle_timeout"`
}

// LoadFile parses a TOML config file.
func LoadFile(path string) (*File, error) {
	var f File
	meta, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if undec := meta.Undecoded(); len(undec) > 0 {
		return nil, fmt.Errorf("unknown config key %q", undec[0].String())
	}
	return &f, nil
}

// ApplySend folds the file's [send] table onto cfg.
func (f *File) ApplySend(cfg *Send) {
	cfg.Port = utils.DefaultIfNil(f.Send.Port, cfg.Port)
	cfg.RateBytesPerSec = utils.DefaultIfNil(f.Send.Rate, cfg.RateBytesPerSec)
	cfg.ChunkBytes = utils.DefaultIfNil(f.Send.ChunkBytes, cfg.ChunkBytes)
	cfg.K = utils.DefaultIfNil(f.Send.K, cfg.K)
	cfg.R = utils.DefaultIfNil(f.Send.R, cfg.R)
	cfg.RedundantFinal = utils.DefaultIfNil(f.Send.RedundantFinal, cfg.RedundantFinal)
	cfg.RedundantInitial = utils.DefaultIfNil(f.Send.RedundantInitial, cfg.RedundantInitial)
}

// ApplyReceive folds the file's [receive] table onto cfg.
func (f *File) ApplyReceive(cfg *Receive) {
	cfg.Port = utils.DefaultIfNil(f.Receive.Port, cfg.Port)
	cfg.ChunkBytes = utils.DefaultIfNil(f.Receive.ChunkBytes, cfg.ChunkBytes)
	cfg.K = utils.DefaultIfNil(f.Receive.K, cfg.K)
	cfg.R = utils.DefaultIfNil(f.Receive.R, cfg.R)
	cfg.WindowBlocks = utils.DefaultIfNil(f.Receive.WindowBlocks, cfg.WindowBlocks)
	if f.Receive.IdleTimeoutSec != nil {
		cfg.IdleTimeout = utils.SecondsToDuration(*f.Receive.IdleTimeoutSec)
	}
}
