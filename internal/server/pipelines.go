package server

import (
	"fmt"
	"strings"

	"github.com/ctu-vras/telestream/internal/config"
)

// Panoramic constants. The capture ISP supports three concurrent
// sessions, so exactly windowSize source branches are materialized;
// activeSensors lists which physical sensors populate the window.
const (
	PanoramicNumCameras = 6
	windowSize          = 3
)

var activeSensors = [windowSize]int{0, 1, 5}

// sensorPort returns the destination port for a sensor's flow.
func sensorPort(cfg config.StreamingConfig, sensorID int) int {
	if sensorID == 0 {
		return cfg.PortLeft
	}
	return cfg.PortRight
}

func encoderStage(cfg config.StreamingConfig) (string, error) {
	switch cfg.Codec {
	case config.CodecJPEG:
		return fmt.Sprintf("jpegenc name=encoder quality=%d", cfg.EncodingQuality), nil
	case config.CodecH264:
		return fmt.Sprintf("h264enc name=encoder insert-sps-pps=1 bitrate=%d preset-level=1", cfg.Bitrate), nil
	case config.CodecH265:
		return fmt.Sprintf("h265enc name=encoder insert-sps-pps=1 bitrate=%d preset-level=1", cfg.Bitrate), nil
	default:
		return "", fmt.Errorf("unsupported codec %s in this build", cfg.Codec)
	}
}

func sourceStage(cfg config.StreamingConfig, sensorID int) string {
	return fmt.Sprintf(
		"camsrc sensor-id=%d ! video/x-raw,width=(int)%d,height=(int)%d,framerate=(fraction)%d/1,format=(string)RGB",
		sensorID, cfg.Resolution.Width, cfg.Resolution.Height, cfg.FPS)
}

// StreamingPipeline renders the send pipeline description for one sensor:
// source, the four instrumentation identities, encoder, payloader, UDP out.
func StreamingPipeline(cfg config.StreamingConfig, sensorID int) (string, error) {
	enc, err := encoderStage(cfg)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"%s ! identity name=camsrc_ident"+
			" ! videoconvert flip-method=vertical-flip ! identity name=vidconv_ident"+
			" ! %s ! identity name=enc_ident"+
			" ! rtppay mtu=1300 pt=%d ! identity name=rtppay_ident"+
			" ! udpsink host=%s port=%d sync=false",
		sourceStage(cfg, sensorID), enc, cfg.Codec.PayloadType(), cfg.IP, sensorPort(cfg, sensorID)), nil
}

// PanoramicPipeline renders the selector-fed single-flow description: the
// windowed source branches fan into "sel", then one encoder chain sends
// to the left port.
func PanoramicPipeline(cfg config.StreamingConfig) (string, error) {
	enc, err := encoderStage(cfg)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, sensor := range activeSensors {
		fmt.Fprintf(&b, "%s ! sel. ", sourceStage(cfg, sensor))
	}
	fmt.Fprintf(&b,
		"input-selector name=sel ! identity name=camsrc_ident"+
			" ! videoconvert flip-method=vertical-flip ! identity name=vidconv_ident"+
			" ! %s ! identity name=enc_ident"+
			" ! rtppay mtu=1300 pt=%d ! identity name=rtppay_ident"+
			" ! udpsink host=%s port=%d sync=false",
		enc, cfg.Codec.PayloadType(), cfg.IP, cfg.PortLeft)
	return b.String(), nil
}

// padForCamera maps a physical camera index to a selector pad index, or
// -1 when the camera is outside the materialized window.
func padForCamera(camera int) int {
	for i, sensor := range activeSensors {
		if sensor == camera {
			return i
		}
	}
	return -1
}
