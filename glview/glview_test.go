package glview

import "testing"

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.defaults()
	if cfg.Width != 800 || cfg.Height != 600 || cfg.FPS != 60 || cfg.Title == "" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	cfg = Config{Width: 320, FPS: 30}
	cfg.defaults()
	if cfg.Width != 320 || cfg.Height != 600 || cfg.FPS != 30 {
		t.Fatalf("set fields overwritten: %+v", cfg)
	}
}
