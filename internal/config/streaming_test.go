package config

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamingConfig_RESTJSONRoundTrip(t *testing.T) {
	cfg := DefaultStreamingConfig()
	cfg.IP = "10.0.31.220"
	cfg.Codec = CodecH264
	cfg.Bitrate = 8000000

	data, err := cfg.MarshalRESTJSON()
	require.NoError(t, err)

	parsed, err := StreamingConfigFromRESTJSON(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, parsed)
}

func TestStreamingConfigFromRESTJSON_Rejections(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "unknown codec",
			body: `{"bitrate":1,"codec":"AV1","encoding_quality":60,"fps":60,
				"ip_address":"1.2.3.4","port_left":8554,"port_right":8556,
				"resolution":{"width":1920,"height":1080},"video_mode":"stereo"}`,
		},
		{
			name: "unknown mode",
			body: `{"bitrate":1,"codec":"JPEG","encoding_quality":60,"fps":60,
				"ip_address":"1.2.3.4","port_left":8554,"port_right":8556,
				"resolution":{"width":1920,"height":1080},"video_mode":"quad"}`,
		},
		{
			name: "off-preset resolution",
			body: `{"bitrate":1,"codec":"JPEG","encoding_quality":60,"fps":60,
				"ip_address":"1.2.3.4","port_left":8554,"port_right":8556,
				"resolution":{"width":1921,"height":1080},"video_mode":"stereo"}`,
		},
		{
			name: "equal ports",
			body: `{"bitrate":1,"codec":"JPEG","encoding_quality":60,"fps":60,
				"ip_address":"1.2.3.4","port_left":8554,"port_right":8554,
				"resolution":{"width":1920,"height":1080},"video_mode":"stereo"}`,
		},
		{
			name: "fps out of range",
			body: `{"bitrate":1,"codec":"JPEG","encoding_quality":60,"fps":144,
				"ip_address":"1.2.3.4","port_left":8554,"port_right":8556,
				"resolution":{"width":1920,"height":1080},"video_mode":"stereo"}`,
		},
		{
			name: "not json",
			body: `{"bitrate":`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := StreamingConfigFromRESTJSON([]byte(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestStreamingConfig_CommandJSONRoundTrip(t *testing.T) {
	cfg := DefaultStreamingConfig()
	data, err := cfg.MarshalCommandJSON()
	require.NoError(t, err)

	parsed, err := StreamingConfigFromCommandJSON(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, parsed)
}

func TestHotSwappable(t *testing.T) {
	base := DefaultStreamingConfig()

	tests := []struct {
		name   string
		mutate func(*StreamingConfig)
		want   bool
	}{
		{"no change", func(c *StreamingConfig) {}, true},
		{"quality only", func(c *StreamingConfig) { c.EncodingQuality = 60 }, true},
		{"bitrate only", func(c *StreamingConfig) { c.Bitrate = 8000000 }, true},
		{"quality and bitrate", func(c *StreamingConfig) { c.EncodingQuality = 60; c.Bitrate = 1 }, true},
		{"resolution", func(c *StreamingConfig) { c.Resolution = Resolution{1280, 720, "HD"} }, false},
		{"fps", func(c *StreamingConfig) { c.FPS = 30 }, false},
		{"codec", func(c *StreamingConfig) { c.Codec = CodecH264 }, false},
		{"mode", func(c *StreamingConfig) { c.Mode = ModeMono }, false},
		{"address", func(c *StreamingConfig) { c.IP = "10.0.0.2" }, false},
		{"port", func(c *StreamingConfig) { c.PortLeft = 9000 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := base
			tt.mutate(&next)
			assert.Equal(t, tt.want, base.HotSwappable(next))
		})
	}
}

func TestCell_VersionZeroMeansUninitialized(t *testing.T) {
	var cell Cell
	_, version := cell.Load()
	assert.Zero(t, version)
}

func TestCell_StoreBumpsVersionAtomically(t *testing.T) {
	var cell Cell

	cfg := DefaultStreamingConfig()
	assert.EqualValues(t, 1, cell.Store(cfg))

	cfg.EncodingQuality = 60
	assert.EqualValues(t, 2, cell.Store(cfg))

	got, version := cell.Load()
	assert.EqualValues(t, 2, version)
	assert.Equal(t, 60, got.EncodingQuality)
}

// A reader must never observe a new version paired with an old config.
func TestCell_ConcurrentReadersSeeConsistentPairs(t *testing.T) {
	var cell Cell
	var wg sync.WaitGroup

	const writes = 200
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= writes; i++ {
			cfg := DefaultStreamingConfig()
			cfg.EncodingQuality = i
			cell.Store(cfg)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		var lastVersion uint64
		for i := 0; i < writes; i++ {
			cfg, version := cell.Load()
			assert.GreaterOrEqual(t, version, lastVersion)
			if version > 0 {
				assert.EqualValues(t, cfg.EncodingQuality, int(version))
			}
			lastVersion = version
		}
	}()

	wg.Wait()
}
