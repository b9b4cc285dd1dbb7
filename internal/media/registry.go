package media

// factories maps element factory names to their constructors.
var factories = map[string]func() elementImpl{
	"camsrc":         func() elementImpl { return &camSrc{} },
	"identity":       func() elementImpl { return identity{} },
	"videoconvert":   func() elementImpl { return videoConvert{} },
	"capsfilter":     func() elementImpl { return capsFilter{} },
	"jpegenc":        func() elementImpl { return jpegEnc{} },
	"jpegdec":        func() elementImpl { return jpegDec{} },
	"h264enc":        func() elementImpl { return &codecEnc{encoding: "h264"} },
	"h265enc":        func() elementImpl { return &codecEnc{encoding: "h265"} },
	"h264dec":        func() elementImpl { return &codecDec{encoding: "h264"} },
	"h265dec":        func() elementImpl { return &codecDec{encoding: "h265"} },
	"rtppay":         func() elementImpl { return &rtpPay{} },
	"rtpdepay":       func() elementImpl { return &rtpDepay{} },
	"udpsink":        func() elementImpl { return &udpSink{} },
	"udpsrc":         func() elementImpl { return &udpSrc{} },
	"queue":          func() elementImpl { return newQueue() },
	"appsink":        func() elementImpl { return appSink{} },
	"input-selector": func() elementImpl { return &inputSelector{} },
}
