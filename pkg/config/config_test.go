package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/herlein/watertower/pkg/si4432"
	"github.com/herlein/watertower/pkg/simradio"
	"github.com/herlein/watertower/pkg/watertower"
)

const sample = `{
	// station on the pump house roof
	"radio": {
		"profile": "433-20k",
		"channel": 3,
		"reply_timeout_ms": 800,
	},
	"bus": {"kind": "sim"},
	"towers": [
		{"id": 0, "name": "north", "enabled": true, "height_cm": 300, "reserved_cm": 20},
		{"id": 2, "enabled": false},
	],
	"sample_interval_s": 30,
	"log": {"level": "debug", "format": "json"},
}
`

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "station.json5")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	f, err := LoadFromFile(writeFile(t, sample))
	if err != nil {
		t.Fatal(err)
	}
	if f.BusKind() != BusSim || len(f.Towers) != 2 || f.Towers[0].Name != "north" {
		t.Errorf("loaded %+v", f)
	}

	s, err := f.ToSettings()
	if err != nil {
		t.Fatal(err)
	}
	want := si4432.Settings{FrequencyMHz: 433, BaudKbps: 20, Channel: 3, Signature: 0x2DD4}
	if s != want {
		t.Errorf("settings = %+v, want %+v", s, want)
	}
	if got := f.ToLinkOptions().ReplyTimeout; got != 800*time.Millisecond {
		t.Errorf("reply timeout = %v", got)
	}
	if got := f.ToTowerOptions().SampleInterval; got != 30*time.Second {
		t.Errorf("sample interval = %v", got)
	}
	if opts := f.ToDeviceOptions(); opts.TransmitTimeout != 0 || opts.PollInterval != 0 {
		t.Errorf("unset timings must stay zero for the driver defaults: %+v", opts)
	}
}

func TestExplicitOverridesProfile(t *testing.T) {
	f := &File{Radio: RadioConfig{Profile: "868-100k", BaudKbps: 50, Signature: 0x1234}}
	s, err := f.ToSettings()
	if err != nil {
		t.Fatal(err)
	}
	if s.FrequencyMHz != 868.3 || s.BaudKbps != 50 || s.Signature != 0x1234 {
		t.Errorf("settings = %+v", s)
	}
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		modify func(f *File)
		want   error
	}{
		{"default", func(f *File) {}, nil},
		{"unknown profile", func(f *File) { f.Radio.Profile = "2g4" }, ErrInvalidRadio},
		{"frequency", func(f *File) { f.Radio.FrequencyMHz = 1000 }, ErrInvalidRadio},
		{"baud", func(f *File) { f.Radio.BaudKbps = 300 }, ErrInvalidRadio},
		{"timeout", func(f *File) { f.Radio.ReplyTimeoutMS = -1 }, ErrInvalidTiming},
		{"bus", func(f *File) { f.Bus.Kind = "i2c" }, ErrUnknownBus},
		{"tower id", func(f *File) { f.Towers[0].ID = 6 }, watertower.ErrInvalidTower},
		{"duplicate", func(f *File) { f.Towers = append(f.Towers, f.Towers[0]) }, watertower.ErrDuplicateTower},
		{"reserved", func(f *File) { f.Towers[0].ReservedCM = 500 }, watertower.ErrInvalidHeight},
		{"interval", func(f *File) { f.SampleIntervalS = 300 }, watertower.ErrInvalidInterval},
		{"level", func(f *File) { f.Log.Level = "loud" }, ErrInvalidLog},
		{"format", func(f *File) { f.Log.Format = "xml" }, ErrInvalidLog},
		{"redis", func(f *File) { f.Redis = &RedisConfig{Addr: "localhost:6379"} }, nil},
		{"redis addr", func(f *File) { f.Redis = &RedisConfig{} }, ErrInvalidRedis},
		{"redis db", func(f *File) { f.Redis = &RedisConfig{Addr: "localhost:6379", DB: -1} }, ErrInvalidRedis},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := Default()
			tc.modify(f)
			err := f.Validate()
			if tc.want == nil {
				if err != nil {
					t.Fatalf("Validate() = %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("Validate() = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestToPublishOptions(t *testing.T) {
	f := Default()
	if _, ok := f.ToPublishOptions(); ok {
		t.Error("publishing on without a redis section")
	}
	f.Redis = &RedisConfig{Addr: "db:6379", DB: 2, Prefix: "farm"}
	o, ok := f.ToPublishOptions()
	if !ok || o.Addr != "db:6379" || o.DB != 2 || o.Prefix != "farm" {
		t.Errorf("options = %+v, %v", o, ok)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	if _, err := LoadFromFile(writeFile(t, `{"bus": {"kind": "usb"}}`)); !errors.Is(err, ErrUnknownBus) {
		t.Errorf("err = %v", err)
	}
	if _, err := LoadFromFile(writeFile(t, `{"radio": `)); err == nil {
		t.Error("truncated file accepted")
	}
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "station.json")
	want := Default()
	if err := SaveToFile(want, path); err != nil {
		t.Fatal(err)
	}
	got, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Radio != want.Radio || got.Bus != want.Bus || got.Towers[0] != want.Towers[0] {
		t.Errorf("round trip = %+v", got)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger(LogConfig{Level: "warn", Format: LogJSON}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	log.Info("hidden")
	log.WithField("tower", 1).Warn("alarm")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatal(err)
	}
	if entry["msg"] != "alarm" || entry["tower"] != float64(1) {
		t.Errorf("entry = %v", entry)
	}

	log, err = NewLogger(LogConfig{}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if log.Level != logrus.InfoLevel {
		t.Errorf("default logger level %v", log.Level)
	}
}

// dropWrites discards writes to one register
type dropWrites struct {
	*simradio.Chip
	addr uint8
}

func (d dropWrites) Tx(w, r []byte) error {
	if len(w) > 0 && w[0] == d.addr|0x80 {
		return nil
	}
	return d.Chip.Tx(w, r)
}

func bootedDevice(t *testing.T, bus si4432.Bus, chip *simradio.Chip) *si4432.Device {
	t.Helper()
	dev := si4432.New(bus, si4432.DefaultSettings(), si4432.Options{
		Shutdown: chip,
		IRQ:      chip,
		Clock:    simradio.NewClock(),
	})
	if err := dev.HardReset(); err != nil {
		t.Fatal(err)
	}
	return dev
}

func TestApplyToDevice(t *testing.T) {
	chip := simradio.New()
	dev := bootedDevice(t, chip, chip)

	s := si4432.Settings{FrequencyMHz: 868.3, BaudKbps: 100, Channel: 7, Signature: 0xBEEF}
	if err := ApplyToDevice(dev, s); err != nil {
		t.Fatal(err)
	}
	if dev.Settings() != s {
		t.Errorf("device settings = %+v", dev.Settings())
	}
	if chip.Register(0x79) != 7 || chip.Register(0x3A) != 0xBE || chip.Register(0x40) != 0xEF {
		t.Error("chip registers not programmed")
	}

	if err := ApplyToDevice(dev, si4432.Settings{FrequencyMHz: 100, BaudKbps: 20}); err == nil {
		t.Error("out of range settings applied")
	}
}

func TestApplyToDeviceVerify(t *testing.T) {
	chip := simradio.New()
	dev := bootedDevice(t, dropWrites{Chip: chip, addr: 0x79}, chip)

	err := ApplyToDevice(dev, si4432.Settings{FrequencyMHz: 433, BaudKbps: 20, Channel: 9, Signature: 0x2DD4})
	if !errors.Is(err, ErrVerify) {
		t.Fatalf("err = %v, want %v", err, ErrVerify)
	}
}

func TestDumpFromDevice(t *testing.T) {
	chip := simradio.New()
	chip.RSSIValue = 0x42
	dev := bootedDevice(t, chip, chip)

	dump, err := DumpFromDevice(dev)
	if err != nil {
		t.Fatal(err)
	}
	if dump.Mode != "Ready" || dump.RSSI != 0x42 || dump.Version != 0x06 || dump.Stats.Resets != 1 {
		t.Errorf("dump = %+v", dump)
	}
	if got, _ := dump.Registers.Get(dev.Registers().FrequencyBand); !bytes.Equal(got, []byte{0x53, 0x4B, 0x00}) {
		t.Errorf("frequency band = % X", got)
	}

	path := filepath.Join(t.TempDir(), "dumps", "sim.json")
	if err := SaveDump(dump, path); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadDump(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(loaded.Registers.Values, dump.Registers.Values) || loaded.Settings != dump.Settings {
		t.Error("dump round trip mismatch")
	}
}

func TestPaths(t *testing.T) {
	if got := GetConfigPath("roof"); got != filepath.Join("etc", "watertower", "roof.json") {
		t.Errorf("GetConfigPath = %s", got)
	}
}
